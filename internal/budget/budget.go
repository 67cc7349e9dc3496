// Package budget meters script execution in discrete steps.
//
// One step is one executed statement. The guard enforces two limits: a
// per-slice budget that bounds how much work happens before control
// returns to the host scheduler, and a total budget that bounds a whole
// run attempt. Checkpoints land only at statement boundaries, so a
// script is never stopped mid-expression.
package budget

// Status is the outcome of a single checkpoint.
type Status int

const (
	// Proceed means the statement may execute.
	Proceed Status = iota
	// SliceExhausted means the current slice is spent; execution must
	// suspend and can be resumed with a fresh slice.
	SliceExhausted
	// TotalExhausted means the run attempt has consumed its whole
	// budget; execution must abort.
	TotalExhausted
)

func (s Status) String() string {
	switch s {
	case Proceed:
		return "proceed"
	case SliceExhausted:
		return "slice-exhausted"
	case TotalExhausted:
		return "total-exhausted"
	}
	return "unknown"
}

// Guard counts statements against the two limits. The zero value is not
// usable; construct with NewGuard.
type Guard struct {
	sliceLimit int
	totalLimit int

	sliceUsed int
	totalUsed int
}

// NewGuard returns a guard with the given limits. Limits must be
// positive; a slice limit larger than the total limit is allowed and
// simply never triggers.
func NewGuard(sliceLimit, totalLimit int) *Guard {
	return &Guard{sliceLimit: sliceLimit, totalLimit: totalLimit}
}

// BeginSlice resets the per-slice counter, optionally overriding the
// slice limit for this slice (0 keeps the configured limit).
func (g *Guard) BeginSlice(limit int) {
	g.sliceUsed = 0
	if limit > 0 {
		g.sliceLimit = limit
	}
}

// Step is called before each statement executes. When it returns
// SliceExhausted the statement has NOT been counted: the caller suspends
// and the same statement is re-checked on resume, so total usage is
// identical no matter how a run is sliced.
func (g *Guard) Step() Status {
	if g.totalUsed >= g.totalLimit {
		return TotalExhausted
	}
	if g.sliceUsed >= g.sliceLimit {
		return SliceExhausted
	}
	g.sliceUsed++
	g.totalUsed++
	return Proceed
}

// Used reports total steps consumed so far. Monotonically
// non-decreasing and never above the total limit.
func (g *Guard) Used() int { return g.totalUsed }

// Remaining reports steps left in the total budget.
func (g *Guard) Remaining() int { return g.totalLimit - g.totalUsed }
