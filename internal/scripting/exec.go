package scripting

import (
	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/budget"
	"github.com/codeofpride/drillcore/internal/policy"
)

// SliceStatus describes how one execution slice ended.
type SliceStatus int

const (
	// Yielded: the slice budget ran out mid-script; call Resume again
	// next tick.
	Yielded SliceStatus = iota
	// Completed: the script finished everything it will ever do.
	Completed
	// Faulted: the script hit a runtime error; the fault carries the
	// source line.
	Faulted
	// Aborted: the total step budget is exhausted.
	Aborted
)

func (s SliceStatus) String() string {
	switch s {
	case Yielded:
		return "yielded"
	case Completed:
		return "completed"
	case Faulted:
		return "faulted"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

// SliceResult is what one execution slice produced. A tick may take
// several slices; the run controller keeps resuming until the status
// is no longer Yielded, then drains the tick's commands with
// FinishTick.
type SliceResult struct {
	Status SliceStatus
	// Output lines printed during the slice.
	Output []string
	// Fault is set when Status is Faulted.
	Fault *Fault
	// ScriptDone reports that the script body (and its per-tick hook,
	// if any) has no more code to run. The schedule may still hold
	// phrases; the run goes on until those drain too.
	ScriptDone bool
}

// OnTickName is the optional per-tick hook a script may define. When
// present it is called once per tick with the tick index after the
// top-level body completes.
const OnTickName = "on_tick"

type execPhase int

const (
	phaseBody execPhase = iota
	phaseHookIdle
	phaseHookRunning
	phaseDone
)

// Execution drives one compiled script across ticks. Each Resume runs
// at most one slice of steps, collects the commands the script issued,
// and drains one count from the phrase schedule. The machine's program
// counter is the whole resumption state; nothing here blocks or spawns
// goroutines.
type Execution struct {
	m      *machine
	guard  *budget.Guard
	bandm  *bandModule
	phase  execPhase
	hook   *Function
	tick   int
	output []string
}

// Start prepares an execution for a compiled program. The capability
// table must be the one the program was compiled against. The world
// view is consulted lazily, so the caller may keep mutating the
// formation between Resume calls.
func Start(prog *Program, table *policy.Table, world WorldView, guard *budget.Guard) *Execution {
	ex := &Execution{guard: guard}
	ex.bandm = newBandModule(table, world)
	bindings := builtins(table, func(line string) { ex.output = append(ex.output, line) })
	if table.AllowsName("band") {
		bindings["band"] = ex.bandm
	}
	ex.m = newMachine(prog, bindings)
	return ex
}

// Resume runs one slice and reports how it ended. Resume never emits
// commands; the controller calls FinishTick for that once the tick's
// script work is done.
func (ex *Execution) Resume() SliceResult {
	var res SliceResult

	for {
		switch ex.phase {
		case phaseBody:
			out := ex.m.run(ex.guard)
			switch out {
			case runSuspended:
				return ex.finishSlice(&res, Yielded)
			case runAborted:
				return ex.finishSlice(&res, Aborted)
			case runFaulted:
				res.Fault = ex.m.fault
				return ex.finishSlice(&res, Faulted)
			}
			// Body done; look for the per-tick hook.
			if fn, ok := ex.m.globals[OnTickName].(*Function); ok {
				ex.hook = fn
				ex.phase = phaseHookIdle
			} else {
				ex.phase = phaseDone
			}
		case phaseHookIdle:
			ex.m.setupCall(ex.hook, []Value{Int(ex.tick)})
			ex.phase = phaseHookRunning
		case phaseHookRunning:
			out := ex.m.run(ex.guard)
			switch out {
			case runSuspended:
				return ex.finishSlice(&res, Yielded)
			case runAborted:
				return ex.finishSlice(&res, Aborted)
			case runFaulted:
				res.Fault = ex.m.fault
				return ex.finishSlice(&res, Faulted)
			}
			// The hook ran to completion for this tick; it runs again
			// next tick.
			ex.phase = phaseDone
			return ex.finishSlice(&res, Completed)
		case phaseDone:
			return ex.finishSlice(&res, Completed)
		}
	}
}

func (ex *Execution) finishSlice(res *SliceResult, status SliceStatus) SliceResult {
	res.Status = status
	res.Output = ex.output
	ex.output = nil
	res.ScriptDone = ex.phase == phaseDone && ex.hook == nil
	return *res
}

// FinishTick drains one count from every scheduled phrase plus any
// instant commands, and advances to the next tick. A faulted or
// aborted tick still drains, so the trace shows how far the drill
// got.
func (ex *Execution) FinishTick() []band.Command {
	cmds := ex.bandm.EmitTick()
	ex.tick++
	if ex.hook != nil && ex.phase == phaseDone {
		ex.phase = phaseHookIdle
	}
	return cmds
}

// ScheduleEmpty reports whether every queued phrase has drained.
func (ex *Execution) ScheduleEmpty() bool { return ex.bandm.ScheduleEmpty() }

// ScriptDone reports whether the script body is finished and no
// per-tick hook remains to run.
func (ex *Execution) ScriptDone() bool { return ex.phase == phaseDone && ex.hook == nil }
