// Package objective evaluates a level's constraint set against
// simulation state. Evaluation is pure: the evaluator keeps a little
// history (collision sightings, dismissal sightings) but Evaluate
// itself never mutates the formation and is safe to call every tick.
package objective

import (
	"fmt"
	"math"

	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/level"
)

// Verdict for one constraint at one tick.
type Verdict string

const (
	Satisfied Verdict = "satisfied"
	Violated  Verdict = "violated"
	Pending   Verdict = "pending"
)

// Aggregate verdict over the whole constraint set.
type Aggregate string

const (
	Success      Aggregate = "success"
	Failure      Aggregate = "failure"
	StillPending Aggregate = "pending"
)

// Result is one constraint's verdict with a short reason for the
// trace and the hint surface.
type Result struct {
	Name    string  `json:"name"`
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}

// Report is a full evaluation at one tick.
type Report struct {
	Results   []Result
	Aggregate Aggregate
	// Failed names the first violated constraint when Aggregate is
	// Failure.
	Failed string
}

// constraint is a compiled predicate. check runs every tick; verdicts
// are tri-state so a constraint can distinguish "not yet" from "never
// again".
type constraint interface {
	name() string
	check(ev *Evaluator, states []band.EntityState, tick int) (Verdict, string)
}

// Evaluator holds the compiled constraints plus the cross-tick
// observations some of them need.
type Evaluator struct {
	constraints []constraint
	// dismissed[name] = tick the member went inactive, first seen.
	dismissed map[string]int
	// collided[pair key] set when two active members shared a dot.
	collided map[string]int
}

// Compile turns authored constraint specs into an evaluator. Unknown
// types are an authoring error caught here, not at run time.
func Compile(specs []level.ConstraintSpec) (*Evaluator, error) {
	ev := &Evaluator{dismissed: map[string]int{}, collided: map[string]int{}}
	for _, s := range specs {
		c, err := compileOne(s)
		if err != nil {
			return nil, err
		}
		ev.constraints = append(ev.constraints, c)
	}
	if len(ev.constraints) == 0 {
		return nil, fmt.Errorf("objective: no constraints")
	}
	return ev, nil
}

func compileOne(s level.ConstraintSpec) (constraint, error) {
	switch s.Type {
	case "reach":
		if s.Entity == "" || s.Target == nil {
			return nil, fmt.Errorf("objective %q: reach needs entity and target", s.Name)
		}
		return &reachC{base: s.Name, entity: s.Entity, target: *s.Target}, nil
	case "line":
		if s.Count < 1 {
			return nil, fmt.Errorf("objective %q: line needs count", s.Name)
		}
		prefix := s.Prefix
		if prefix == "" {
			prefix = "W"
		}
		return &rankC{base: s.Name, prefix: prefix, count: s.Count, x0: s.XStart, y0: s.Y, dx: s.DX, dy: 0}, nil
	case "column":
		if s.Count < 1 {
			return nil, fmt.Errorf("objective %q: column needs count", s.Name)
		}
		prefix := s.Prefix
		if prefix == "" {
			prefix = "W"
		}
		return &rankC{base: s.Name, prefix: prefix, count: s.Count, x0: s.X, y0: s.YStart, dx: 0, dy: s.DY}, nil
	case "arc":
		if len(s.Entities) == 0 || s.Center == nil || s.Radius <= 0 {
			return nil, fmt.Errorf("objective %q: arc needs entities, center and radius", s.Name)
		}
		tol := s.Tolerance
		if tol == 0 {
			tol = 1.5
		}
		return &arcC{base: s.Name, entities: s.Entities, center: *s.Center, radius: s.Radius, tol: tol}, nil
	case "avoid_collision":
		if s.Entity == "" || s.Obstacle == "" || s.Target == nil {
			return nil, fmt.Errorf("objective %q: avoid_collision needs entity, obstacle and target", s.Name)
		}
		return &avoidC{base: s.Name, entity: s.Entity, obstacle: s.Obstacle, target: *s.Target}, nil
	case "survive":
		if s.Entity == "" || s.Ticks < 1 {
			return nil, fmt.Errorf("objective %q: survive needs entity and ticks", s.Name)
		}
		return &surviveC{base: s.Name, entity: s.Entity, ticks: s.Ticks}, nil
	}
	return nil, fmt.Errorf("objective %q: unknown type %q", s.Name, s.Type)
}

// Observe records the post-tick state for cross-tick constraints.
// Call once per tick, before Evaluate for the same tick.
func (ev *Evaluator) Observe(states []band.EntityState, tick int) {
	byCell := map[level.Point][]string{}
	for _, s := range states {
		if !s.Active {
			if _, seen := ev.dismissed[s.Name]; !seen {
				ev.dismissed[s.Name] = tick
			}
			continue
		}
		cell := level.Point{X: s.X, Y: s.Y}
		byCell[cell] = append(byCell[cell], s.Name)
	}
	for _, names := range byCell {
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				a, b := names[i], names[j]
				if b < a {
					a, b = b, a
				}
				key := a + "\x00" + b
				if _, seen := ev.collided[key]; !seen {
					ev.collided[key] = tick
				}
			}
		}
	}
}

// Evaluate checks every constraint against the given post-tick state.
func (ev *Evaluator) Evaluate(states []band.EntityState, tick int) Report {
	rep := Report{Aggregate: Success}
	for _, c := range ev.constraints {
		v, reason := c.check(ev, states, tick)
		rep.Results = append(rep.Results, Result{Name: c.name(), Verdict: v, Reason: reason})
		switch v {
		case Violated:
			if rep.Aggregate != Failure {
				rep.Aggregate = Failure
				rep.Failed = c.name()
			}
		case Pending:
			if rep.Aggregate == Success {
				rep.Aggregate = StillPending
			}
		}
	}
	return rep
}

// MaxDeadline returns the largest tick any time-based constraint can
// still flip at on its own. Past this tick, a pending aggregate with no
// commands left to issue can never resolve.
func (ev *Evaluator) MaxDeadline() int {
	max := 0
	for _, c := range ev.constraints {
		if s, ok := c.(*surviveC); ok && s.ticks > max {
			max = s.ticks
		}
	}
	return max
}

func find(states []band.EntityState, name string) (band.EntityState, bool) {
	for _, s := range states {
		if s.Name == name {
			return s, true
		}
	}
	return band.EntityState{}, false
}

type reachC struct {
	base   string
	entity string
	target level.Point
}

func (c *reachC) name() string { return c.base }

func (c *reachC) check(ev *Evaluator, states []band.EntityState, tick int) (Verdict, string) {
	s, ok := find(states, c.entity)
	if !ok || !s.Active {
		return Violated, fmt.Sprintf("%s left the field before reaching (%d,%d)", c.entity, c.target.X, c.target.Y)
	}
	if s.X == c.target.X && s.Y == c.target.Y {
		return Satisfied, ""
	}
	return Pending, ""
}

// rankC covers line and column: count members named prefix1..prefixN
// standing at even intervals.
type rankC struct {
	base   string
	prefix string
	count  int
	x0, y0 int
	dx, dy int
}

func (c *rankC) name() string { return c.base }

func (c *rankC) check(ev *Evaluator, states []band.EntityState, tick int) (Verdict, string) {
	for i := 0; i < c.count; i++ {
		who := fmt.Sprintf("%s%d", c.prefix, i+1)
		s, ok := find(states, who)
		if !ok {
			return Pending, ""
		}
		if !s.Active {
			return Violated, fmt.Sprintf("%s left the field", who)
		}
		if s.X != c.x0+i*c.dx || s.Y != c.y0+i*c.dy {
			return Pending, ""
		}
	}
	return Satisfied, ""
}

type arcC struct {
	base     string
	entities []string
	center   level.Point
	radius   float64
	tol      float64
}

func (c *arcC) name() string { return c.base }

func (c *arcC) check(ev *Evaluator, states []band.EntityState, tick int) (Verdict, string) {
	for _, who := range c.entities {
		s, ok := find(states, who)
		if !ok {
			return Pending, ""
		}
		if !s.Active {
			return Violated, fmt.Sprintf("%s left the field", who)
		}
		d := math.Hypot(float64(s.X-c.center.X), float64(s.Y-c.center.Y))
		if math.Abs(d-c.radius) > c.tol {
			return Pending, ""
		}
	}
	return Satisfied, ""
}

type avoidC struct {
	base     string
	entity   string
	obstacle string
	target   level.Point
}

func (c *avoidC) name() string { return c.base }

func (c *avoidC) check(ev *Evaluator, states []band.EntityState, tick int) (Verdict, string) {
	a, b := c.entity, c.obstacle
	if b < a {
		a, b = b, a
	}
	if _, hit := ev.collided[a+"\x00"+b]; hit {
		return Violated, fmt.Sprintf("%s collided with %s", c.entity, c.obstacle)
	}
	s, ok := find(states, c.entity)
	if !ok || !s.Active {
		return Violated, fmt.Sprintf("%s left the field", c.entity)
	}
	if s.X == c.target.X && s.Y == c.target.Y {
		return Satisfied, ""
	}
	return Pending, ""
}

type surviveC struct {
	base   string
	entity string
	ticks  int
}

func (c *surviveC) name() string { return c.base }

func (c *surviveC) check(ev *Evaluator, states []band.EntityState, tick int) (Verdict, string) {
	if when, gone := ev.dismissed[c.entity]; gone && when < c.ticks {
		return Violated, fmt.Sprintf("%s was dismissed at tick %d, before tick %d", c.entity, when, c.ticks)
	}
	if _, ok := find(states, c.entity); !ok {
		return Violated, fmt.Sprintf("%s never took the field", c.entity)
	}
	if tick+1 >= c.ticks {
		return Satisfied, ""
	}
	return Pending, ""
}
