package band

import (
	"reflect"
	"testing"
)

func formation(t *testing.T, starts ...EntityState) *Formation {
	t.Helper()
	f, err := New(starts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	_, err := New([]EntityState{
		{Name: "DM", Section: "DM"},
		{Name: "DM", Section: "DM"},
	})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestTickAppliesMoves(t *testing.T) {
	f := formation(t,
		EntityState{Name: "DM", Section: "DM", X: 0, Y: 0},
		EntityState{Name: "W1", Section: "WIND", X: 5, Y: 5},
	)
	res := f.Tick([]Command{
		{Kind: CmdMove, Member: "DM", X: 1, Y: 0},
	})
	if len(res.Applied) != 1 || len(res.Rejected) != 0 {
		t.Fatalf("applied=%d rejected=%d", len(res.Applied), len(res.Rejected))
	}
	s, _ := f.Lookup("DM")
	if s.X != 1 || s.Y != 0 {
		t.Errorf("DM at (%d,%d), want (1,0)", s.X, s.Y)
	}
	if f.TickCount() != 1 {
		t.Errorf("tick count %d, want 1", f.TickCount())
	}
}

// Two moves contesting one dot resolve in canonical (spawn) order:
// the earlier member wins regardless of command submission order.
func TestTickConflictCanonicalOrder(t *testing.T) {
	f := formation(t,
		EntityState{Name: "A", Section: "GEN", X: 0, Y: 0},
		EntityState{Name: "B", Section: "GEN", X: 9, Y: 9},
	)
	// B's command submitted first; A still wins the dot.
	res := f.Tick([]Command{
		{Kind: CmdMove, Member: "B", X: 4, Y: 4},
		{Kind: CmdMove, Member: "A", X: 4, Y: 4},
	})
	if len(res.Applied) != 1 || res.Applied[0].Member != "A" {
		t.Fatalf("applied %+v, want A's move", res.Applied)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Command.Member != "B" {
		t.Fatalf("rejected %+v, want B's move", res.Rejected)
	}
	a, _ := f.Lookup("A")
	b, _ := f.Lookup("B")
	if a.X != 4 || a.Y != 4 {
		t.Errorf("A at (%d,%d)", a.X, a.Y)
	}
	if b.X != 9 || b.Y != 9 {
		t.Errorf("B should hold its dot, at (%d,%d)", b.X, b.Y)
	}
}

func TestTickMoveOntoStationaryMemberAllowed(t *testing.T) {
	f := formation(t,
		EntityState{Name: "A", Section: "GEN", X: 0, Y: 0},
		EntityState{Name: "B", Section: "GEN", X: 4, Y: 4},
	)
	res := f.Tick([]Command{{Kind: CmdMove, Member: "A", X: 4, Y: 4}})
	if len(res.Rejected) != 0 {
		t.Fatalf("pass-through move rejected: %+v", res.Rejected)
	}
	if !f.OccupiedAt(4, 4) {
		t.Error("dot should be occupied")
	}
}

func TestTickSpawnExtendsCanonicalOrder(t *testing.T) {
	f := formation(t, EntityState{Name: "A", Section: "GEN"})
	res := f.Tick([]Command{
		{Kind: CmdSpawn, Member: "N1", Section: "WIND", X: 2, Y: 2},
		// The freshly spawned member can move the same tick, but loses
		// conflicts to everyone spawned before it.
		{Kind: CmdMove, Member: "N1", X: 3, Y: 3},
		{Kind: CmdMove, Member: "A", X: 3, Y: 3},
	})
	if len(res.Rejected) != 1 || res.Rejected[0].Command.Member != "N1" {
		t.Fatalf("rejected %+v, want N1's move", res.Rejected)
	}
	names := []string{}
	for _, s := range f.Snapshot() {
		names = append(names, s.Name)
	}
	if !reflect.DeepEqual(names, []string{"A", "N1"}) {
		t.Errorf("canonical order %v", names)
	}
}

func TestTickSpawnDuplicateRejected(t *testing.T) {
	f := formation(t, EntityState{Name: "A", Section: "GEN"})
	res := f.Tick([]Command{{Kind: CmdSpawn, Member: "A", Section: "GEN", X: 1, Y: 1}})
	if len(res.Rejected) != 1 {
		t.Fatalf("rejected %+v", res.Rejected)
	}
}

func TestTickDismiss(t *testing.T) {
	f := formation(t,
		EntityState{Name: "A", Section: "GEN", X: 1, Y: 1},
		EntityState{Name: "B", Section: "GEN", X: 2, Y: 2},
	)
	f.Tick([]Command{{Kind: CmdDismiss, Member: "B"}})
	s, ok := f.Lookup("B")
	if !ok || s.Active {
		t.Errorf("B should remain in the roster, inactive: ok=%v active=%v", ok, s.Active)
	}
	if f.OccupiedAt(2, 2) {
		t.Error("inactive member must not occupy its dot")
	}
	// Dismissed members cannot move.
	res := f.Tick([]Command{{Kind: CmdMove, Member: "B", X: 5, Y: 5}})
	if len(res.Rejected) != 1 {
		t.Fatalf("move after dismissal: %+v", res)
	}
}

func TestTickUnknownMemberRejected(t *testing.T) {
	f := formation(t, EntityState{Name: "A", Section: "GEN"})
	res := f.Tick([]Command{
		{Kind: CmdMove, Member: "GHOST", X: 1, Y: 1},
		{Kind: CmdDismiss, Member: "GHOST"},
	})
	if len(res.Rejected) != 2 {
		t.Fatalf("rejected %+v, want both commands", res.Rejected)
	}
}

func TestTickDuplicateMoveRejected(t *testing.T) {
	f := formation(t, EntityState{Name: "A", Section: "GEN"})
	res := f.Tick([]Command{
		{Kind: CmdMove, Member: "A", X: 1, Y: 1},
		{Kind: CmdMove, Member: "A", X: 2, Y: 2},
	})
	if len(res.Applied) != 1 || len(res.Rejected) != 1 {
		t.Fatalf("applied=%d rejected=%d", len(res.Applied), len(res.Rejected))
	}
	s, _ := f.Lookup("A")
	if s.X != 1 || s.Y != 1 {
		t.Errorf("first move should win, A at (%d,%d)", s.X, s.Y)
	}
}

// The same command sequence always produces the same formation.
func TestTickDeterministic(t *testing.T) {
	runOnce := func() []EntityState {
		f := formation(t,
			EntityState{Name: "A", Section: "GEN", X: 0, Y: 0},
			EntityState{Name: "B", Section: "GEN", X: 8, Y: 8},
		)
		f.Tick([]Command{
			{Kind: CmdMove, Member: "B", X: 4, Y: 4},
			{Kind: CmdMove, Member: "A", X: 4, Y: 4},
			{Kind: CmdSpawn, Member: "C", Section: "PERC", X: 1, Y: 7},
		})
		f.Tick([]Command{
			{Kind: CmdMove, Member: "C", X: 2, Y: 7},
			{Kind: CmdDismiss, Member: "B"},
		})
		return f.Snapshot()
	}
	first := runOnce()
	for i := 0; i < 5; i++ {
		if got := runOnce(); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d diverged:\n%+v\nvs\n%+v", i, got, first)
		}
	}
}
