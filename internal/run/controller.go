// Package run orchestrates one full edit-run-watch cycle: compile the
// script once, drive simulation ticks, drain the executor slice by
// slice, evaluate the objective, and assemble the replay trace. All
// script failures are recovered here and turned into terminal trace
// events; nothing a script does can escape as a panic.
package run

import (
	"context"
	"fmt"

	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/budget"
	"github.com/codeofpride/drillcore/internal/level"
	"github.com/codeofpride/drillcore/internal/objective"
	"github.com/codeofpride/drillcore/internal/policy"
	"github.com/codeofpride/drillcore/internal/scripting"
	"github.com/codeofpride/drillcore/internal/trace"
)

// Verdict is the terminal outcome of a run attempt.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictFailure Verdict = "failure"
	VerdictAborted Verdict = "aborted"
)

// Reasons carried alongside the verdict.
const (
	ReasonObjectiveMet           = "objective_met"
	ReasonObjectiveViolated      = "objective_violated"
	ReasonObjectiveUnsatisfiable = "objective_unsatisfiable"
	ReasonCompileError           = "compile_error"
	ReasonRuntimeFault           = "runtime_fault"
	ReasonBudgetExhausted        = "budget_exhausted"
	ReasonTickCeiling            = "tick_ceiling"
	ReasonCancelled              = "cancelled"
)

// Options bound a run attempt. Zero fields take the defaults below.
type Options struct {
	// SliceSteps is the statement budget per execution slice.
	SliceSteps int
	// TotalSteps is the statement budget for the whole run.
	TotalSteps int
	// MaxTicks caps simulation length.
	MaxTicks int
	// OnEvent, when set, receives every trace event as it is
	// appended. Called from the goroutine driving the run.
	OnEvent func(trace.Event)
}

const (
	DefaultSliceSteps = 200
	DefaultTotalSteps = 8000
	DefaultMaxTicks   = 256
)

func (o *Options) fill() {
	if o.SliceSteps <= 0 {
		o.SliceSteps = DefaultSliceSteps
	}
	if o.TotalSteps <= 0 {
		o.TotalSteps = DefaultTotalSteps
	}
	if o.MaxTicks <= 0 {
		o.MaxTicks = DefaultMaxTicks
	}
}

// Result is the finished run: verdict, why, where it hurt, and the
// full replay log.
type Result struct {
	Verdict Verdict
	Reason  string
	// FailedConstraint names the violated constraint on an objective
	// failure.
	FailedConstraint string
	// FaultLine/FaultMessage locate a compile error or runtime fault.
	FaultLine    int
	FaultMessage string
	Trace        []trace.Event
	Ticks        int
	StepsUsed    int
}

type state int

const (
	stateTicking state = iota
	stateDone
)

// Controller drives one run attempt. Not safe for concurrent use;
// one controller per attempt.
type Controller struct {
	opts  Options
	form  *band.Formation
	eval  *objective.Evaluator
	exec  *scripting.Execution
	guard *budget.Guard

	st     state
	events []trace.Event
	res    Result

	// pending output lines accumulated across slices of the current
	// tick.
	output []string
}

// New compiles the script under the level's capability policy and
// prepares the simulation. Level data problems (bad constraints,
// duplicate entities) come back as an error; script problems do not —
// a compile error becomes an immediately terminal run whose result
// carries the offending line, so callers surface it the same way they
// surface a runtime fault.
func New(lv *level.Level, source string, opts Options) (*Controller, error) {
	opts.fill()

	form, err := band.New(lv.Starts())
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	eval, err := objective.Compile(lv.Objective)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}

	c := &Controller{opts: opts, form: form, eval: eval}

	table := policy.NewTable(lv.AllowedAPI)
	prog, err := scripting.Compile(source, table)
	if err != nil {
		ce, ok := err.(*scripting.CompileError)
		if !ok {
			return nil, fmt.Errorf("run: %w", err)
		}
		c.res = Result{
			Verdict:      VerdictAborted,
			Reason:       ReasonCompileError,
			FaultLine:    ce.Line,
			FaultMessage: ce.Message,
		}
		c.terminalEvent(0, nil, nil, nil)
		return c, nil
	}

	c.guard = budget.NewGuard(opts.SliceSteps, opts.TotalSteps)
	c.exec = scripting.Start(prog, table, form, c.guard)
	return c, nil
}

// Advance runs one tick. It returns false once the run is terminal;
// further calls are no-ops.
func (c *Controller) Advance(ctx context.Context) bool {
	if c.st == stateDone {
		return false
	}
	tick := c.form.TickCount()

	// Drain the script for this tick: keep granting fresh slices
	// until it completes, faults, or runs the total budget dry. The
	// tick's evaluation happens only once the script work for the
	// tick is done. Cancellation is honored between slices, never
	// inside one.
	var sr scripting.SliceResult
	for {
		c.guard.BeginSlice(0)
		sr = c.exec.Resume()
		c.output = append(c.output, sr.Output...)
		if sr.Status != scripting.Yielded {
			break
		}
		if ctx != nil && ctx.Err() != nil {
			c.Cancel()
			return false
		}
	}

	cmds := c.exec.FinishTick()
	tr := c.form.Tick(cmds)
	states := c.form.Snapshot()
	c.eval.Observe(states, tick)
	rep := c.eval.Evaluate(states, tick)

	ev := trace.Event{
		Tick:      tick,
		Commands:  tr.Applied,
		Rejected:  tr.Rejected,
		Entities:  states,
		Objective: rep.Results,
		Output:    c.output,
	}
	c.output = nil

	switch sr.Status {
	case scripting.Faulted:
		c.res = Result{
			Verdict:      VerdictFailure,
			Reason:       ReasonRuntimeFault,
			FaultLine:    sr.Fault.Line,
			FaultMessage: sr.Fault.Message,
		}
		ev.FaultLine = sr.Fault.Line
		ev.FaultMessage = sr.Fault.Message
		return c.finish(ev)
	case scripting.Aborted:
		c.res = Result{Verdict: VerdictAborted, Reason: ReasonBudgetExhausted}
		return c.finish(ev)
	}

	switch rep.Aggregate {
	case objective.Success:
		c.res = Result{Verdict: VerdictSuccess, Reason: ReasonObjectiveMet}
		return c.finish(ev)
	case objective.Failure:
		c.res = Result{
			Verdict:          VerdictFailure,
			Reason:           ReasonObjectiveViolated,
			FailedConstraint: rep.Failed,
		}
		return c.finish(ev)
	}

	// Still pending. If the script is spent, the schedule is empty,
	// and no time-based constraint can still flip, the objective can
	// never resolve.
	if sr.ScriptDone && c.exec.ScheduleEmpty() && tick+1 >= c.eval.MaxDeadline() {
		c.res = Result{
			Verdict:          VerdictFailure,
			Reason:           ReasonObjectiveUnsatisfiable,
			FailedConstraint: firstPending(rep),
		}
		return c.finish(ev)
	}

	if tick+1 >= c.opts.MaxTicks {
		c.res = Result{Verdict: VerdictAborted, Reason: ReasonTickCeiling}
		return c.finish(ev)
	}

	c.append(ev)
	return true
}

func firstPending(rep objective.Report) string {
	for _, r := range rep.Results {
		if r.Verdict == objective.Pending {
			return r.Name
		}
	}
	return ""
}

// finish marks the given event terminal, stamps the verdict on it,
// and closes the run.
func (c *Controller) finish(ev trace.Event) bool {
	ev.Terminal = true
	ev.Verdict = string(c.res.Verdict)
	ev.Reason = c.res.Reason
	c.append(ev)
	c.seal()
	return false
}

func (c *Controller) terminalEvent(tick int, cmds []band.Command, rej []band.Rejected, results []objective.Result) {
	ev := trace.Event{
		Tick:         tick,
		Commands:     cmds,
		Rejected:     rej,
		Entities:     c.form.Snapshot(),
		Objective:    results,
		Output:       c.output,
		Terminal:     true,
		Verdict:      string(c.res.Verdict),
		Reason:       c.res.Reason,
		FaultLine:    c.res.FaultLine,
		FaultMessage: c.res.FaultMessage,
	}
	c.output = nil
	c.append(ev)
	c.seal()
}

func (c *Controller) append(ev trace.Event) {
	c.events = append(c.events, ev)
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

func (c *Controller) seal() {
	c.st = stateDone
	c.res.Trace = c.events
	c.res.Ticks = len(c.events)
	if c.guard != nil {
		c.res.StepsUsed = c.guard.Used()
	}
}

// Cancel ends the run with an aborted verdict. No-op once terminal.
func (c *Controller) Cancel() {
	if c.st == stateDone {
		return
	}
	c.res = Result{Verdict: VerdictAborted, Reason: ReasonCancelled}
	c.terminalEvent(c.form.TickCount(), nil, nil, nil)
}

// Run drives ticks until the run is terminal or ctx is cancelled.
func (c *Controller) Run(ctx context.Context) Result {
	for c.st != stateDone {
		select {
		case <-ctx.Done():
			c.Cancel()
		default:
			c.Advance(ctx)
		}
	}
	return c.res
}

// Result returns the outcome. Valid once the run is terminal.
func (c *Controller) Result() Result { return c.res }

// Done reports whether the run has reached a terminal state.
func (c *Controller) Done() bool { return c.st == stateDone }
