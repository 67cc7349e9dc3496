package budget

import "testing"

func TestGuardSliceExhaustion(t *testing.T) {
	g := NewGuard(3, 100)
	g.BeginSlice(0)

	for i := 0; i < 3; i++ {
		if st := g.Step(); st != Proceed {
			t.Fatalf("step %d: expected Proceed, got %v", i, st)
		}
	}
	if st := g.Step(); st != SliceExhausted {
		t.Fatalf("expected SliceExhausted, got %v", st)
	}
	if g.Used() != 3 {
		t.Errorf("expected 3 steps used, got %d", g.Used())
	}

	// A fresh slice keeps going where the old one stopped.
	g.BeginSlice(0)
	if st := g.Step(); st != Proceed {
		t.Fatalf("expected Proceed after new slice, got %v", st)
	}
	if g.Used() != 4 {
		t.Errorf("expected 4 steps used, got %d", g.Used())
	}
}

func TestGuardTotalExhaustion(t *testing.T) {
	g := NewGuard(10, 5)
	g.BeginSlice(0)

	for i := 0; i < 5; i++ {
		if st := g.Step(); st != Proceed {
			t.Fatalf("step %d: expected Proceed, got %v", i, st)
		}
	}
	if st := g.Step(); st != TotalExhausted {
		t.Fatalf("expected TotalExhausted, got %v", st)
	}
	// Exhaustion is sticky across slices.
	g.BeginSlice(0)
	if st := g.Step(); st != TotalExhausted {
		t.Fatalf("expected TotalExhausted after new slice, got %v", st)
	}
	if g.Used() != 5 {
		t.Errorf("denied steps must not count; got %d used", g.Used())
	}
}

// The total step count must come out identical no matter how the work
// is sliced, or replays would diverge between slice configurations.
func TestGuardTotalsIndependentOfSlicing(t *testing.T) {
	runWith := func(sliceLimit int) int {
		g := NewGuard(sliceLimit, 50)
		steps := 0
		for {
			g.BeginSlice(0)
			for {
				st := g.Step()
				if st == Proceed {
					steps++
					continue
				}
				if st == TotalExhausted {
					return steps
				}
				break // slice exhausted
			}
		}
	}

	want := runWith(50)
	for _, slice := range []int{1, 3, 7, 49, 200} {
		if got := runWith(slice); got != want {
			t.Errorf("slice=%d: %d total steps, want %d", slice, got, want)
		}
	}
}

func TestGuardBeginSliceOverride(t *testing.T) {
	g := NewGuard(100, 1000)
	g.BeginSlice(2)
	if g.Step() != Proceed || g.Step() != Proceed {
		t.Fatal("expected 2 steps in override slice")
	}
	if st := g.Step(); st != SliceExhausted {
		t.Fatalf("expected SliceExhausted at override limit, got %v", st)
	}
}
