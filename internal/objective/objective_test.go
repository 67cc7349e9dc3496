package objective

import (
	"testing"

	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/level"
)

func pt(x, y int) *level.Point { return &level.Point{X: x, Y: y} }

func active(name string, x, y int) band.EntityState {
	return band.EntityState{Name: name, Section: "GEN", X: x, Y: y, Active: true}
}

func mustEval(t *testing.T, specs ...level.ConstraintSpec) *Evaluator {
	t.Helper()
	ev, err := Compile(specs)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return ev
}

func TestCompileRejectsBadSpecs(t *testing.T) {
	bad := []level.ConstraintSpec{
		{Name: "x", Type: "teleport"},
		{Name: "x", Type: "reach"},
		{Name: "x", Type: "line", Count: 0},
		{Name: "x", Type: "arc", Entities: []string{"A"}, Radius: 0},
		{Name: "x", Type: "survive", Entity: "A", Ticks: 0},
	}
	for _, s := range bad {
		if _, err := Compile([]level.ConstraintSpec{s}); err == nil {
			t.Errorf("spec %+v should be rejected", s)
		}
	}
	if _, err := Compile(nil); err == nil {
		t.Error("empty constraint set should be rejected")
	}
}

func TestReach(t *testing.T) {
	ev := mustEval(t, level.ConstraintSpec{Name: "dm_on_dot", Type: "reach", Entity: "DM", Target: pt(3, 3)})

	rep := ev.Evaluate([]band.EntityState{active("DM", 0, 0)}, 0)
	if rep.Aggregate != StillPending {
		t.Fatalf("aggregate %v, want pending", rep.Aggregate)
	}

	rep = ev.Evaluate([]band.EntityState{active("DM", 3, 3)}, 1)
	if rep.Aggregate != Success {
		t.Fatalf("aggregate %v, want success", rep.Aggregate)
	}

	gone := band.EntityState{Name: "DM", Active: false}
	rep = ev.Evaluate([]band.EntityState{gone}, 2)
	if rep.Aggregate != Failure || rep.Failed != "dm_on_dot" {
		t.Fatalf("aggregate %v failed %q", rep.Aggregate, rep.Failed)
	}
}

func TestLineAndColumn(t *testing.T) {
	line := mustEval(t, level.ConstraintSpec{Name: "winds", Type: "line", Count: 3, XStart: 2, Y: 8, DX: 2})

	rep := line.Evaluate([]band.EntityState{
		active("W1", 2, 8), active("W2", 4, 8), active("W3", 6, 8),
	}, 0)
	if rep.Aggregate != Success {
		t.Fatalf("line: %v", rep.Aggregate)
	}

	rep = line.Evaluate([]band.EntityState{
		active("W1", 2, 8), active("W2", 4, 7), active("W3", 6, 8),
	}, 1)
	if rep.Results[0].Verdict != Pending {
		t.Fatalf("off-dot wind should leave the line pending: %v", rep.Results[0].Verdict)
	}

	col := mustEval(t, level.ConstraintSpec{Name: "file", Type: "column", Prefix: "P", Count: 2, X: 5, YStart: 2, DY: 3})
	rep = col.Evaluate([]band.EntityState{active("P1", 5, 2), active("P2", 5, 5)}, 0)
	if rep.Aggregate != Success {
		t.Fatalf("column: %v", rep.Aggregate)
	}
}

func TestArcTolerance(t *testing.T) {
	ev := mustEval(t, level.ConstraintSpec{
		Name: "brass_arc", Type: "arc",
		Entities: []string{"B1", "B2"},
		Center:   pt(10, 6), Radius: 4,
	})
	// B1 exactly on radius, B2 at distance ~4.47, inside the default
	// 1.5 tolerance.
	rep := ev.Evaluate([]band.EntityState{active("B1", 6, 6), active("B2", 8, 2)}, 0)
	if rep.Aggregate != Success {
		t.Fatalf("aggregate %v", rep.Aggregate)
	}
	// Way off radius: still pending, the drill may yet bend into shape.
	rep = ev.Evaluate([]band.EntityState{active("B1", 10, 6), active("B2", 8, 2)}, 1)
	if rep.Aggregate != StillPending {
		t.Fatalf("aggregate %v", rep.Aggregate)
	}
}

func TestAvoidCollision(t *testing.T) {
	ev := mustEval(t, level.ConstraintSpec{
		Name: "careful", Type: "avoid_collision",
		Entity: "S1", Obstacle: "TUBA", Target: pt(9, 0),
	})

	states := []band.EntityState{active("S1", 0, 0), active("TUBA", 5, 0)}
	ev.Observe(states, 0)
	if rep := ev.Evaluate(states, 0); rep.Aggregate != StillPending {
		t.Fatalf("tick 0: %v", rep.Aggregate)
	}

	// Collision at tick 1 is permanent: reaching the target later
	// cannot undo it.
	states = []band.EntityState{active("S1", 5, 0), active("TUBA", 5, 0)}
	ev.Observe(states, 1)
	if rep := ev.Evaluate(states, 1); rep.Aggregate != Failure {
		t.Fatalf("tick 1: %v", rep.Aggregate)
	}
	states = []band.EntityState{active("S1", 9, 0), active("TUBA", 5, 0)}
	ev.Observe(states, 2)
	if rep := ev.Evaluate(states, 2); rep.Aggregate != Failure {
		t.Fatalf("tick 2: collision must be sticky, got %v", rep.Aggregate)
	}
}

func TestSurvive(t *testing.T) {
	ev := mustEval(t, level.ConstraintSpec{Name: "stay", Type: "survive", Entity: "B1", Ticks: 3})

	alive := []band.EntityState{active("B1", 0, 0)}
	for tick := 0; tick < 2; tick++ {
		ev.Observe(alive, tick)
		if rep := ev.Evaluate(alive, tick); rep.Aggregate != StillPending {
			t.Fatalf("tick %d: %v", tick, rep.Aggregate)
		}
	}
	ev.Observe(alive, 2)
	if rep := ev.Evaluate(alive, 2); rep.Aggregate != Success {
		t.Fatalf("tick 2: %v", rep.Aggregate)
	}
}

func TestSurviveViolatedByDismissal(t *testing.T) {
	ev := mustEval(t, level.ConstraintSpec{Name: "stay", Type: "survive", Entity: "B1", Ticks: 3})

	gone := []band.EntityState{{Name: "B1", Active: false}}
	ev.Observe(gone, 1)
	rep := ev.Evaluate(gone, 1)
	if rep.Aggregate != Failure || rep.Failed != "stay" {
		t.Fatalf("aggregate %v failed %q", rep.Aggregate, rep.Failed)
	}
}

func TestAggregateMixes(t *testing.T) {
	ev := mustEval(t,
		level.ConstraintSpec{Name: "a", Type: "reach", Entity: "A", Target: pt(1, 1)},
		level.ConstraintSpec{Name: "b", Type: "reach", Entity: "B", Target: pt(2, 2)},
	)
	// One satisfied, one pending: aggregate pending.
	rep := ev.Evaluate([]band.EntityState{active("A", 1, 1), active("B", 0, 0)}, 0)
	if rep.Aggregate != StillPending {
		t.Fatalf("aggregate %v", rep.Aggregate)
	}
	// A violation outranks everything.
	rep = ev.Evaluate([]band.EntityState{active("A", 1, 1), {Name: "B", Active: false}}, 1)
	if rep.Aggregate != Failure || rep.Failed != "b" {
		t.Fatalf("aggregate %v failed %q", rep.Aggregate, rep.Failed)
	}
}

func TestMaxDeadline(t *testing.T) {
	ev := mustEval(t,
		level.ConstraintSpec{Name: "a", Type: "reach", Entity: "A", Target: pt(1, 1)},
		level.ConstraintSpec{Name: "s", Type: "survive", Entity: "A", Ticks: 7},
	)
	if got := ev.MaxDeadline(); got != 7 {
		t.Errorf("MaxDeadline = %d, want 7", got)
	}
}
