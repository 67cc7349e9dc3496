package scripting

import (
	"fmt"

	"github.com/codeofpride/drillcore/internal/policy"
)

// Opcodes for the drillscript VM. The program counter doubles as the
// resumption point between scheduling slices, so every opcode must
// leave the machine in a consistent state when it finishes.
type opcode uint8

const (
	opStmt        opcode = iota // budget checkpoint; Arg = source line
	opConst                     // push Consts[Arg]
	opLoadName                  // push value of Names[Arg]
	opStoreName                 // pop into Names[Arg]
	opLoadAttr                  // pop module, push bound method Names[Arg]
	opIndex                     // pop index, pop container, push element
	opStoreIndex                // pop index, pop container, pop value? see vm
	opBinary                    // pop rhs, pop lhs, push result; Arg = operator
	opNeg                       // arithmetic negation
	opNot                       // logical not
	opMakeList                  // pop Arg items, push list
	opJump                      // pc = Arg
	opJumpIfFalse               // pop; if falsy pc = Arg
	opJumpIfTruePeek            // if TOS truthy pc = Arg (TOS kept)
	opJumpIfFalsePeek           // if TOS falsy pc = Arg (TOS kept)
	opPop                       // drop TOS
	opCall                      // call with Arg positional args
	opIterNew                   // pop iterable, push iterator
	opIterNext                  // push next element or pop iterator and pc = Arg
	opReturn                    // pop frame, push return value
	opHalt                      // end of module code
)

type instr struct {
	op   opcode
	arg  int
	line int
}

// Program is an immutable compiled script. Compiling the same source
// against the same policy always yields an equivalent program;
// execution state lives entirely in Execution, so one Program can back
// any number of attempts.
type Program struct {
	code   []instr
	consts []Value
	names  []string
	haltPC int
}

// Compile lexes, parses and compiles a script, statically rejecting any
// reference to a name outside the capability table. Returns
// *CompileError on rejection.
func Compile(source string, table *policy.Table) (*Program, error) {
	toks, lerr := lex(source)
	if lerr != nil {
		return nil, lerr
	}
	stmts, perr := parse(toks)
	if perr != nil {
		return nil, perr
	}

	c := &compiler{
		table:    table,
		nameIdx:  map[string]int{},
		assigned: map[string]bool{},
	}
	collectAssigned(stmts, c.assigned)
	if err := c.program(stmts); err != nil {
		return nil, err
	}
	return &Program{code: c.code, consts: c.consts, names: c.names, haltPC: len(c.code) - 1}, nil
}

// collectAssigned gathers every name the script itself binds, at any
// depth: plain assignments, loop variables, def names and parameters.
// A load of anything else must be on the capability table.
func collectAssigned(stmts []stmt, out map[string]bool) {
	for _, s := range stmts {
		switch n := s.(type) {
		case *assignStmt:
			if t, ok := n.target.(*nameExpr); ok {
				out[t.name] = true
			}
		case *ifStmt:
			collectAssigned(n.body, out)
			collectAssigned(n.els, out)
		case *whileStmt:
			collectAssigned(n.body, out)
		case *forStmt:
			out[n.varName] = true
			collectAssigned(n.body, out)
		case *defStmt:
			out[n.name] = true
			for _, p := range n.params {
				out[p] = true
			}
			collectAssigned(n.body, out)
		}
	}
}

type loopCtx struct {
	continuePC int
	breakPatch []int
}

type compiler struct {
	table     *policy.Table
	code      []instr
	consts    []Value
	names     []string
	nameIdx   map[string]int
	assigned  map[string]bool
	loops     []loopCtx
	funcDepth int
}

func (c *compiler) program(stmts []stmt) *CompileError {
	if err := c.stmts(stmts); err != nil {
		return err
	}
	c.emit(opHalt, 0, 0)
	return nil
}

func (c *compiler) emit(op opcode, arg, line int) int {
	c.code = append(c.code, instr{op: op, arg: arg, line: line})
	return len(c.code) - 1
}

func (c *compiler) patch(at, target int) { c.code[at].arg = target }

func (c *compiler) constIdx(v Value) int {
	c.consts = append(c.consts, v)
	return len(c.consts) - 1
}

func (c *compiler) name(s string) int {
	if i, ok := c.nameIdx[s]; ok {
		return i
	}
	c.names = append(c.names, s)
	c.nameIdx[s] = len(c.names) - 1
	return len(c.names) - 1
}

func (c *compiler) stmts(list []stmt) *CompileError {
	for _, s := range list {
		if err := c.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) stmt(s stmt) *CompileError {
	switch n := s.(type) {
	case *passStmt:
		c.emit(opStmt, 0, n.line)

	case *exprStmt:
		c.emit(opStmt, 0, n.line)
		if err := c.expr(n.x); err != nil {
			return err
		}
		c.emit(opPop, 0, n.line)

	case *assignStmt:
		c.emit(opStmt, 0, n.line)
		return c.assign(n)

	case *ifStmt:
		c.emit(opStmt, 0, n.line)
		if err := c.expr(n.cond); err != nil {
			return err
		}
		jElse := c.emit(opJumpIfFalse, 0, n.line)
		if err := c.stmts(n.body); err != nil {
			return err
		}
		if len(n.els) > 0 {
			jEnd := c.emit(opJump, 0, n.line)
			c.patch(jElse, len(c.code))
			if err := c.stmts(n.els); err != nil {
				return err
			}
			c.patch(jEnd, len(c.code))
		} else {
			c.patch(jElse, len(c.code))
		}

	case *whileStmt:
		top := len(c.code)
		c.emit(opStmt, 0, n.line)
		if err := c.expr(n.cond); err != nil {
			return err
		}
		jEnd := c.emit(opJumpIfFalse, 0, n.line)
		c.loops = append(c.loops, loopCtx{continuePC: top})
		if err := c.stmts(n.body); err != nil {
			return err
		}
		c.emit(opJump, top, n.line)
		c.patch(jEnd, len(c.code))
		c.popLoop(len(c.code))

	case *forStmt:
		if err := c.expr(n.iter); err != nil {
			return err
		}
		c.emit(opIterNew, 0, n.line)
		top := len(c.code)
		c.emit(opStmt, 0, n.line)
		jEnd := c.emit(opIterNext, 0, n.line)
		c.emit(opStoreName, c.name(n.varName), n.line)
		c.loops = append(c.loops, loopCtx{continuePC: top})
		if err := c.stmts(n.body); err != nil {
			return err
		}
		c.emit(opJump, top, n.line)
		// break lands before the pop so the abandoned iterator is
		// discarded; normal exhaustion pops it in opIterNext.
		breakTo := len(c.code)
		c.emit(opPop, 0, n.line)
		c.patch(jEnd, len(c.code))
		c.popLoop(breakTo)

	case *defStmt:
		c.emit(opStmt, 0, n.line)
		fn := &Function{Name: n.name, Params: n.params}
		c.emit(opConst, c.constIdx(fn), n.line)
		c.emit(opStoreName, c.name(n.name), n.line)
		jSkip := c.emit(opJump, 0, n.line)
		fn.Entry = len(c.code)
		// Loops do not cross the function boundary: a break in the body
		// must not patch against an enclosing module-level loop.
		savedLoops := c.loops
		c.loops = nil
		c.funcDepth++
		if err := c.stmts(n.body); err != nil {
			return err
		}
		c.funcDepth--
		c.loops = savedLoops
		c.emit(opConst, c.constIdx(None{}), n.line)
		c.emit(opReturn, 0, n.line)
		c.patch(jSkip, len(c.code))

	case *returnStmt:
		if c.funcDepth == 0 {
			return &CompileError{Line: n.line, Message: "return outside function"}
		}
		c.emit(opStmt, 0, n.line)
		if n.value != nil {
			if err := c.expr(n.value); err != nil {
				return err
			}
		} else {
			c.emit(opConst, c.constIdx(None{}), n.line)
		}
		c.emit(opReturn, 0, n.line)

	case *breakStmt:
		if len(c.loops) == 0 {
			return &CompileError{Line: n.line, Message: "break outside loop"}
		}
		c.emit(opStmt, 0, n.line)
		at := c.emit(opJump, 0, n.line)
		c.loops[len(c.loops)-1].breakPatch = append(c.loops[len(c.loops)-1].breakPatch, at)

	case *continueStmt:
		if len(c.loops) == 0 {
			return &CompileError{Line: n.line, Message: "continue outside loop"}
		}
		c.emit(opStmt, 0, n.line)
		c.emit(opJump, c.loops[len(c.loops)-1].continuePC, n.line)

	default:
		return &CompileError{Message: fmt.Sprintf("cannot compile %T", s)}
	}
	return nil
}

func (c *compiler) popLoop(breakTarget int) {
	l := c.loops[len(c.loops)-1]
	c.loops = c.loops[:len(c.loops)-1]
	for _, at := range l.breakPatch {
		c.patch(at, breakTarget)
	}
}

func (c *compiler) assign(n *assignStmt) *CompileError {
	switch t := n.target.(type) {
	case *nameExpr:
		if n.op == tokAssign {
			if err := c.expr(n.value); err != nil {
				return err
			}
		} else {
			if err := c.expr(t); err != nil {
				return err
			}
			if err := c.expr(n.value); err != nil {
				return err
			}
			c.emit(opBinary, augOp(n.op), n.line)
		}
		c.emit(opStoreName, c.name(t.name), n.line)
	case *indexExpr:
		if err := c.expr(t.x); err != nil {
			return err
		}
		if err := c.expr(t.index); err != nil {
			return err
		}
		if n.op == tokAssign {
			if err := c.expr(n.value); err != nil {
				return err
			}
		} else {
			// container and index are duplicated by re-compiling the
			// lookup; drillscript expressions are side-effect free apart
			// from calls, and augmented index targets may not contain
			// calls.
			if containsCall(t.x) || containsCall(t.index) {
				return &CompileError{Line: n.line, Message: "augmented assignment target is too complex"}
			}
			if err := c.expr(t.x); err != nil {
				return err
			}
			if err := c.expr(t.index); err != nil {
				return err
			}
			c.emit(opIndex, 0, n.line)
			if err := c.expr(n.value); err != nil {
				return err
			}
			c.emit(opBinary, augOp(n.op), n.line)
		}
		c.emit(opStoreIndex, 0, n.line)
	default:
		return &CompileError{Line: n.line, Message: "cannot assign to this expression"}
	}
	return nil
}

func augOp(k tokKind) int {
	switch k {
	case tokPlusAssign:
		return binAdd
	case tokMinusAssign:
		return binSub
	case tokStarAssign:
		return binMul
	}
	return binAdd
}

func containsCall(e expr) bool {
	switch n := e.(type) {
	case *callExpr:
		return true
	case *binaryExpr:
		return containsCall(n.l) || containsCall(n.r)
	case *logicalExpr:
		return containsCall(n.l) || containsCall(n.r)
	case *unaryExpr:
		return containsCall(n.x)
	case *indexExpr:
		return containsCall(n.x) || containsCall(n.index)
	case *attrExpr:
		return containsCall(n.x)
	case *listLit:
		for _, it := range n.items {
			if containsCall(it) {
				return true
			}
		}
	}
	return false
}

func (c *compiler) expr(e expr) *CompileError {
	switch n := e.(type) {
	case *nameExpr:
		if !c.assigned[n.name] && !c.table.AllowsName(n.name) {
			return &CompileError{Line: n.line, Message: fmt.Sprintf("name %q is not allowed here", n.name)}
		}
		c.emit(opLoadName, c.name(n.name), n.line)

	case *numberLit:
		if n.isFloat {
			c.emit(opConst, c.constIdx(Float(n.fltVal)), n.line)
		} else {
			c.emit(opConst, c.constIdx(Int(n.intVal)), n.line)
		}

	case *stringLit:
		c.emit(opConst, c.constIdx(Str(n.val)), n.line)

	case *boolLit:
		c.emit(opConst, c.constIdx(Bool(n.val)), n.line)

	case *noneLit:
		c.emit(opConst, c.constIdx(None{}), n.line)

	case *listLit:
		for _, it := range n.items {
			if err := c.expr(it); err != nil {
				return err
			}
		}
		c.emit(opMakeList, len(n.items), n.line)

	case *binaryExpr:
		if err := c.expr(n.l); err != nil {
			return err
		}
		if err := c.expr(n.r); err != nil {
			return err
		}
		c.emit(opBinary, n.op, n.line)

	case *logicalExpr:
		if err := c.expr(n.l); err != nil {
			return err
		}
		var jShort int
		if n.isAnd {
			jShort = c.emit(opJumpIfFalsePeek, 0, n.line)
		} else {
			jShort = c.emit(opJumpIfTruePeek, 0, n.line)
		}
		c.emit(opPop, 0, n.line)
		if err := c.expr(n.r); err != nil {
			return err
		}
		c.patch(jShort, len(c.code))

	case *unaryExpr:
		if err := c.expr(n.x); err != nil {
			return err
		}
		if n.isNot {
			c.emit(opNot, 0, n.line)
		} else {
			c.emit(opNeg, 0, n.line)
		}

	case *callExpr:
		if err := c.expr(n.fn); err != nil {
			return err
		}
		for _, a := range n.args {
			if err := c.expr(a); err != nil {
				return err
			}
		}
		c.emit(opCall, len(n.args), n.line)

	case *attrExpr:
		// Attribute access exists only on host modules. When the base is
		// a literal module name the capability is checked right here;
		// otherwise the VM re-checks at runtime.
		if base, ok := n.x.(*nameExpr); ok && !c.assigned[base.name] {
			if !c.table.Allows(policy.Op(base.name + "." + n.name)) {
				return &CompileError{Line: n.line, Message: fmt.Sprintf("%s.%s is not allowed here", base.name, n.name)}
			}
		}
		if err := c.expr(n.x); err != nil {
			return err
		}
		c.emit(opLoadAttr, c.name(n.name), n.line)

	case *indexExpr:
		if err := c.expr(n.x); err != nil {
			return err
		}
		if err := c.expr(n.index); err != nil {
			return err
		}
		c.emit(opIndex, 0, n.line)

	default:
		return &CompileError{Message: fmt.Sprintf("cannot compile %T", e)}
	}
	return nil
}
