package run

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"github.com/codeofpride/drillcore/internal/level"
	"github.com/codeofpride/drillcore/internal/trace"
)

func reachLevel(api ...string) *level.Level {
	return &level.Level{
		ID:         1,
		Week:       1,
		Title:      "First Dot",
		AllowedAPI: api,
		StartEntities: []level.StartEntity{
			{Name: "DM", Section: "LEADERSHIP", X: 2, Y: 10},
		},
		Objective: []level.ConstraintSpec{
			{Name: "dm_on_dot", Type: "reach", Entity: "DM", Target: &level.Point{X: 4, Y: 10}},
		},
	}
}

func surviveLevel(ticks int) *level.Level {
	return &level.Level{
		ID:         2,
		Week:       2,
		Title:      "Hold",
		AllowedAPI: []string{"dismiss", "wait"},
		StartEntities: []level.StartEntity{
			{Name: "B1", Section: "BRASS", X: 5, Y: 5},
		},
		Objective: []level.ConstraintSpec{
			{Name: "hold_b1", Type: "survive", Entity: "B1", Ticks: ticks},
		},
	}
}

func TestRunReachSuccess(t *testing.T) {
	ctrl, err := New(reachLevel("set_pos"), `band.set_pos("DM", 4, 10)`+"\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictSuccess || res.Reason != ReasonObjectiveMet {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if len(res.Trace) != 1 {
		t.Fatalf("trace length %d, want 1", len(res.Trace))
	}
	last := res.Trace[0]
	if !last.Terminal || last.Verdict != "success" {
		t.Errorf("terminal event wrong: %+v", last)
	}
	if last.Entities[0].X != 4 || last.Entities[0].Y != 10 {
		t.Errorf("DM at (%d,%d), want (4,10)", last.Entities[0].X, last.Entities[0].Y)
	}
}

func TestRunStepToSuccessOverTicks(t *testing.T) {
	ctrl, err := New(reachLevel("step_to"), `band.step_to("DM", 4, 10, 2)`+"\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictSuccess {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if len(res.Trace) != 2 {
		t.Fatalf("trace length %d, want 2", len(res.Trace))
	}
	if x := res.Trace[0].Entities[0].X; x != 3 {
		t.Errorf("tick 0: DM at x=%d, want 3", x)
	}
	if !res.Trace[1].Terminal {
		t.Error("last event not terminal")
	}
}

func TestRunSurviveFailsOnDismissal(t *testing.T) {
	ctrl, err := New(surviveLevel(5), `band.dismiss("B1")`+"\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictFailure || res.Reason != ReasonObjectiveViolated {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.FailedConstraint != "hold_b1" {
		t.Errorf("failed constraint %q, want hold_b1", res.FailedConstraint)
	}
}

func TestRunSurviveSucceedsByWaiting(t *testing.T) {
	ctrl, err := New(surviveLevel(3), `band.wait("B1", 3)`+"\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictSuccess {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if len(res.Trace) != 3 {
		t.Errorf("trace length %d, want 3", len(res.Trace))
	}
}

func TestRunRunawayLoopAborts(t *testing.T) {
	src := "while True:\n    pass\n"
	ctrl, err := New(reachLevel("set_pos"), src, Options{TotalSteps: 1000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictAborted || res.Reason != ReasonBudgetExhausted {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.StepsUsed != 1000 {
		t.Errorf("steps used %d, want exactly 1000", res.StepsUsed)
	}
	if len(res.Trace) != 1 || !res.Trace[0].Terminal {
		t.Errorf("runaway loop should burn out within its first tick: %d events", len(res.Trace))
	}
}

func TestRunCompileErrorIsTerminal(t *testing.T) {
	ctrl, err := New(reachLevel("set_pos"), "x = frobnicate()\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !ctrl.Done() {
		t.Fatal("compile error should leave the run terminal")
	}
	res := ctrl.Result()
	if res.Verdict != VerdictAborted || res.Reason != ReasonCompileError {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.FaultLine != 1 || res.FaultMessage == "" {
		t.Errorf("fault at line %d %q", res.FaultLine, res.FaultMessage)
	}
	if len(res.Trace) != 1 || !res.Trace[0].Terminal {
		t.Errorf("want a single terminal trace event, got %d", len(res.Trace))
	}
	// Run on a terminal controller returns immediately.
	if got := ctrl.Run(context.Background()); got.Reason != ReasonCompileError {
		t.Errorf("re-run reason %q", got.Reason)
	}
}

func TestRunTopLevelReturnIsCompileError(t *testing.T) {
	ctrl, err := New(reachLevel("set_pos"), "return 1\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !ctrl.Done() {
		t.Fatal("top-level return should leave the run terminal")
	}
	res := ctrl.Result()
	if res.Verdict != VerdictAborted || res.Reason != ReasonCompileError {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.FaultLine != 1 {
		t.Errorf("fault line %d, want 1", res.FaultLine)
	}
}

func TestRunRuntimeFault(t *testing.T) {
	src := "x = 1\ny = x // 0\n"
	ctrl, err := New(reachLevel("set_pos"), src, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictFailure || res.Reason != ReasonRuntimeFault {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.FaultLine != 2 {
		t.Errorf("fault line %d, want 2", res.FaultLine)
	}
	if res.Trace[len(res.Trace)-1].FaultMessage == "" {
		t.Error("terminal event should carry the fault message")
	}
}

func TestRunUnsatisfiableObjective(t *testing.T) {
	// The script ends without moving anyone and schedules nothing, so
	// the reach constraint can never flip.
	ctrl, err := New(reachLevel("get_pos"), "pass\n", Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictFailure || res.Reason != ReasonObjectiveUnsatisfiable {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.FailedConstraint != "dm_on_dot" {
		t.Errorf("failed constraint %q", res.FailedConstraint)
	}
}

func TestRunTickCeiling(t *testing.T) {
	src := "def on_tick(t):\n    pass\n"
	ctrl, err := New(reachLevel("get_pos"), src, Options{MaxTicks: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if res.Verdict != VerdictAborted || res.Reason != ReasonTickCeiling {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if len(res.Trace) != 4 {
		t.Errorf("trace length %d, want 4", len(res.Trace))
	}
}

func TestRunCancel(t *testing.T) {
	src := "def on_tick(t):\n    pass\n"
	ctrl, err := New(reachLevel("get_pos"), src, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := ctrl.Run(ctx)
	if res.Verdict != VerdictAborted || res.Reason != ReasonCancelled {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	last := res.Trace[len(res.Trace)-1]
	if !last.Terminal || last.Reason != ReasonCancelled {
		t.Errorf("terminal event wrong: %+v", last)
	}
}

// Cancellation lands at the next slice boundary, not just at tick
// boundaries: a script that never finishes its tick still stops after
// the slice in flight.
func TestRunCancelAtSliceBoundary(t *testing.T) {
	src := "while True:\n    pass\n"
	ctrl, err := New(reachLevel("set_pos"), src, Options{SliceSteps: 10, TotalSteps: 100000})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ctrl.Advance(ctx) {
		t.Fatal("Advance should report terminal after cancellation")
	}
	res := ctrl.Result()
	if res.Verdict != VerdictAborted || res.Reason != ReasonCancelled {
		t.Fatalf("verdict %s/%s", res.Verdict, res.Reason)
	}
	if res.StepsUsed != 10 {
		t.Errorf("steps used %d, want one slice of 10", res.StepsUsed)
	}
}

func TestRunOnEventGapFree(t *testing.T) {
	var ticks []int
	ctrl, err := New(reachLevel("step_to"), `band.step_to("DM", 4, 10, 2)`+"\n", Options{
		OnEvent: func(ev trace.Event) { ticks = append(ticks, ev.Tick) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res := ctrl.Run(context.Background())
	if len(ticks) != len(res.Trace) {
		t.Fatalf("OnEvent saw %d events, trace has %d", len(ticks), len(res.Trace))
	}
	for i, tk := range ticks {
		if tk != i {
			t.Fatalf("tick sequence has a gap: %v", ticks)
		}
	}
}

func TestRunTraceByteIdentical(t *testing.T) {
	lv := reachLevel("step_to", "print")
	src := "band.step_to(\"DM\", 4, 10, 2)\nprint(\"marking time\")\n"
	var first []byte
	for i := 0; i < 2; i++ {
		ctrl, err := New(lv, src, Options{})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		res := ctrl.Run(context.Background())
		b, err := json.Marshal(res.Trace)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = b
			continue
		}
		if !bytes.Equal(b, first) {
			t.Fatalf("trace differs between identical runs:\n%s\n%s", first, b)
		}
	}
}

func TestRunDeterministicAcrossSliceSizes(t *testing.T) {
	lv := surviveLevel(3)
	src := "i = 0\nwhile i < 3:\n    band.wait(\"B1\", 1)\n    i = i + 1\n"
	var base Result
	for i, slice := range []int{1, 7, 200} {
		ctrl, err := New(lv, src, Options{SliceSteps: slice})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		res := ctrl.Run(context.Background())
		if res.Verdict != VerdictSuccess {
			t.Fatalf("slice %d: verdict %s/%s", slice, res.Verdict, res.Reason)
		}
		if i == 0 {
			base = res
			continue
		}
		if !reflect.DeepEqual(res, base) {
			t.Errorf("slice %d: result differs from slice 1", slice)
		}
	}
}
