package scripting

import "fmt"

// CompileError rejects a script before any execution: syntax errors and
// statically detectable capability violations. Line is 1-based.
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Fault is a runtime error raised by the script's own logic or by a
// dynamic capability denial. The message is written for the script's
// author; it never carries host stack traces.
type Fault struct {
	Line    int
	Message string
}

func (f *Fault) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %s", f.Line, f.Message)
	}
	return f.Message
}

func faultf(line int, format string, args ...any) *Fault {
	return &Fault{Line: line, Message: fmt.Sprintf(format, args...)}
}
