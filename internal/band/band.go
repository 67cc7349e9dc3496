// Package band is the deterministic tick simulation: the marchers, the
// commands a script issues for them, and the resolution rules that turn
// one tick's commands into the next formation state.
//
// The simulation is a pure state machine. It performs no I/O, consults
// no clock, and applies commands in canonical order (spawn order), so
// identical command sequences always produce identical formations.
package band

import "fmt"

// EntityState is the externally visible snapshot of one marcher.
type EntityState struct {
	Name    string `json:"name"`
	Section string `json:"section"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Active  bool   `json:"active"`
}

// Kind tags a command.
type Kind string

const (
	// CmdMove places the member on a cell this tick.
	CmdMove Kind = "move"
	// CmdSpawn adds a new member at the end of canonical order.
	CmdSpawn Kind = "spawn"
	// CmdDismiss marks the member inactive. The slot stays so canonical
	// order and identifiers remain stable for the rest of the run.
	CmdDismiss Kind = "dismiss"
	// CmdSignal emits an opaque signal into the trace; no state change.
	CmdSignal Kind = "signal"
)

// Command is one action for one member for one tick. Immutable once
// produced; ownership passes from the executor to the simulation.
type Command struct {
	Kind    Kind   `json:"kind"`
	Member  string `json:"member,omitempty"`
	Section string `json:"section,omitempty"`
	X       int    `json:"x,omitempty"`
	Y       int    `json:"y,omitempty"`
	Signal  string `json:"signal,omitempty"`
}

// Rejected records a command that was downgraded to a no-op, with the
// reason, for the tick's trace event.
type Rejected struct {
	Command Command `json:"command"`
	Reason  string  `json:"reason"`
}

// TickResult reports what one tick actually did.
type TickResult struct {
	Applied  []Command
	Rejected []Rejected
}

type entity struct {
	EntityState
}

// Formation owns the entities for one run attempt. Nothing outside
// this package mutates them.
type Formation struct {
	members []*entity
	index   map[string]int
	tick    int
}

// New builds a formation from a level's start entities, in order.
// Duplicate names are rejected: identifiers must be unique and stable
// for the whole run.
func New(starts []EntityState) (*Formation, error) {
	f := &Formation{index: map[string]int{}}
	for _, s := range starts {
		if _, dup := f.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate start entity %q", s.Name)
		}
		e := &entity{EntityState: s}
		e.Active = true
		f.index[e.Name] = len(f.members)
		f.members = append(f.members, e)
	}
	return f, nil
}

// Tick applies one tick's commands and advances the tick counter.
//
// Resolution order: spawns first (in submission order, extending the
// canonical order), then moves in canonical member order, then
// dismissals and signals in submission order. When two moves contest
// the same cell, the member earliest in canonical order wins and the
// later command is recorded as rejected. Moves onto a cell held by a
// stationary member are allowed: marchers may pass through each other
// mid-drill, and collision objectives judge the outcome.
func (f *Formation) Tick(cmds []Command) TickResult {
	var res TickResult

	// Spawns extend canonical order before anything moves.
	for _, c := range cmds {
		if c.Kind != CmdSpawn {
			continue
		}
		if _, dup := f.index[c.Member]; dup {
			res.Rejected = append(res.Rejected, Rejected{Command: c, Reason: fmt.Sprintf("member %q already exists", c.Member)})
			continue
		}
		e := &entity{EntityState: EntityState{Name: c.Member, Section: c.Section, X: c.X, Y: c.Y, Active: true}}
		f.index[e.Name] = len(f.members)
		f.members = append(f.members, e)
		res.Applied = append(res.Applied, c)
	}

	// Moves, canonical order, earliest claim wins.
	type claim struct{ x, y int }
	claimed := map[claim]string{}
	moveFor := map[string]*Command{}
	for i := range cmds {
		c := &cmds[i]
		if c.Kind != CmdMove {
			continue
		}
		if _, dup := moveFor[c.Member]; dup {
			res.Rejected = append(res.Rejected, Rejected{Command: *c, Reason: fmt.Sprintf("member %q already moved this tick", c.Member)})
			continue
		}
		moveFor[c.Member] = c
	}
	for _, e := range f.members {
		c, ok := moveFor[e.Name]
		if !ok {
			continue
		}
		if !e.Active {
			res.Rejected = append(res.Rejected, Rejected{Command: *c, Reason: fmt.Sprintf("member %q has left the field", e.Name)})
			continue
		}
		cell := claim{c.X, c.Y}
		if winner, taken := claimed[cell]; taken {
			res.Rejected = append(res.Rejected, Rejected{Command: *c, Reason: fmt.Sprintf("dot (%d,%d) already claimed by %q", c.X, c.Y, winner)})
			continue
		}
		claimed[cell] = e.Name
		e.X, e.Y = c.X, c.Y
		res.Applied = append(res.Applied, *c)
	}
	// Moves for members that do not exist at all.
	for i := range cmds {
		c := &cmds[i]
		if c.Kind != CmdMove || moveFor[c.Member] != c {
			continue
		}
		if _, known := f.index[c.Member]; !known {
			res.Rejected = append(res.Rejected, Rejected{Command: *c, Reason: fmt.Sprintf("unknown member %q", c.Member)})
		}
	}

	// Dismissals and signals.
	for _, c := range cmds {
		switch c.Kind {
		case CmdDismiss:
			i, known := f.index[c.Member]
			if !known {
				res.Rejected = append(res.Rejected, Rejected{Command: c, Reason: fmt.Sprintf("unknown member %q", c.Member)})
				continue
			}
			f.members[i].Active = false
			res.Applied = append(res.Applied, c)
		case CmdSignal:
			res.Applied = append(res.Applied, c)
		}
	}

	f.tick++
	return res
}

// Tick index of the next tick to resolve (also the number resolved so
// far).
func (f *Formation) TickCount() int { return f.tick }

// Snapshot returns all members in canonical order, inactive included.
func (f *Formation) Snapshot() []EntityState {
	out := make([]EntityState, len(f.members))
	for i, e := range f.members {
		out[i] = e.EntityState
	}
	return out
}

// Lookup returns the state of one member.
func (f *Formation) Lookup(name string) (EntityState, bool) {
	i, ok := f.index[name]
	if !ok {
		return EntityState{}, false
	}
	return f.members[i].EntityState, true
}

// States implements the read-only view handed to script bindings and
// the objective evaluator.
func (f *Formation) States() []EntityState { return f.Snapshot() }

// OccupiedAt reports whether any active member stands on the cell.
func (f *Formation) OccupiedAt(x, y int) bool {
	for _, e := range f.members {
		if e.Active && e.X == x && e.Y == y {
			return true
		}
	}
	return false
}
