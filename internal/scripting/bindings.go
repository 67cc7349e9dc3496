package scripting

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/codeofpride/drillcore/internal/band"
	"github.com/codeofpride/drillcore/internal/policy"
)

// WorldView is the read surface the band module needs from the
// simulation. The executor receives one from the run controller;
// *band.Formation satisfies it.
type WorldView interface {
	States() []band.EntityState
	OccupiedAt(x, y int) bool
}

// phrase is one queued unit of drill for one member. Phrases drain one
// tick at a time; a move phrase resolves its start position when its
// first count is emitted, so chained step_to calls compose naturally.
type phrase struct {
	member string

	// move
	isMove    bool
	toX, toY  int
	counts    int
	done      int
	haveStart bool
	fromX     int
	fromY     int

	// wait
	isWait bool
	holds  int
}

// bandModule exposes the band API to scripts. It implements HostModule:
// every band.X call lands in CallMethod, which is also where the
// capability table is enforced, so the check holds no matter how the
// script obtained the reference.
type bandModule struct {
	table *policy.Table
	world WorldView

	// spawned/dismissed this run, overlaying the world view until the
	// commands are applied. pending holds instant commands for the
	// next EmitTick; schedule holds the per-member phrase queues.
	pending  []band.Command
	schedule map[string][]*phrase
	spawned  map[string]band.EntityState
	gone     map[string]bool
	order    []string
}

func newBandModule(table *policy.Table, world WorldView) *bandModule {
	return &bandModule{
		table:    table,
		world:    world,
		schedule: map[string][]*phrase{},
		spawned:  map[string]band.EntityState{},
		gone:     map[string]bool{},
	}
}

func (b *bandModule) typeName() string { return "band" }

func (b *bandModule) CallMethod(name string, args []Value) (Value, error) {
	op := policy.Op("band." + name)
	if !b.table.Allows(op) {
		return nil, fmt.Errorf("band.%s is not available in this drill", name)
	}
	switch name {
	case "spawn":
		return b.doSpawn(args)
	case "set_pos":
		return b.doSetPos(args)
	case "get_pos":
		return b.doGetPos(args)
	case "get_all":
		return b.doGetAll(args)
	case "is_occupied":
		return b.doIsOccupied(args)
	case "step_to":
		return b.doStepTo(args)
	case "wait":
		return b.doWait(args)
	case "scan":
		return b.doScan(args)
	case "dismiss":
		return b.doDismiss(args)
	case "emit":
		return b.doEmit(args)
	}
	return nil, fmt.Errorf("band has no method %q", name)
}

func argInt(args []Value, i int, method string) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("band.%s: missing argument %d", method, i+1)
	}
	n, ok := asInt(args[i])
	if !ok {
		return 0, fmt.Errorf("band.%s: argument %d must be an integer, got %s", method, i+1, args[i].typeName())
	}
	return int(n), nil
}

func argStr(args []Value, i int, method string) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("band.%s: missing argument %d", method, i+1)
	}
	s, ok := args[i].(Str)
	if !ok {
		return "", fmt.Errorf("band.%s: argument %d must be a string, got %s", method, i+1, args[i].typeName())
	}
	return string(s), nil
}

func arity(args []Value, n int, method string) error {
	if len(args) != n {
		return fmt.Errorf("band.%s takes %d arguments, got %d", method, n, len(args))
	}
	return nil
}

// member resolves a name against the world plus the overlay of members
// spawned or dismissed earlier in this same script run.
func (b *bandModule) member(name string) (band.EntityState, bool) {
	if b.gone[name] {
		return band.EntityState{}, false
	}
	if s, ok := b.spawned[name]; ok {
		return s, true
	}
	for _, s := range b.world.States() {
		if s.Name == name && s.Active {
			return s, true
		}
	}
	return band.EntityState{}, false
}

func (b *bandModule) doSpawn(args []Value) (Value, error) {
	if err := arity(args, 4, "spawn"); err != nil {
		return nil, err
	}
	name, err := argStr(args, 0, "spawn")
	if err != nil {
		return nil, err
	}
	section, err := argStr(args, 1, "spawn")
	if err != nil {
		return nil, err
	}
	x, err := argInt(args, 2, "spawn")
	if err != nil {
		return nil, err
	}
	y, err := argInt(args, 3, "spawn")
	if err != nil {
		return nil, err
	}
	// Names are never reusable: a dismissed member keeps its roster slot
	// in the simulation, so a respawn there would be rejected while the
	// overlay thought it succeeded.
	if b.gone[name] {
		return nil, fmt.Errorf("band.spawn: member %q has left the field", name)
	}
	if _, exists := b.spawned[name]; exists {
		return nil, fmt.Errorf("band.spawn: member %q already exists", name)
	}
	for _, s := range b.world.States() {
		if s.Name == name {
			return nil, fmt.Errorf("band.spawn: member %q already exists", name)
		}
	}
	b.spawned[name] = band.EntityState{Name: name, Section: section, X: x, Y: y, Active: true}
	b.pending = append(b.pending, band.Command{Kind: band.CmdSpawn, Member: name, Section: section, X: x, Y: y})
	return None{}, nil
}

func (b *bandModule) doSetPos(args []Value) (Value, error) {
	if err := arity(args, 3, "set_pos"); err != nil {
		return nil, err
	}
	name, err := argStr(args, 0, "set_pos")
	if err != nil {
		return nil, err
	}
	x, err := argInt(args, 1, "set_pos")
	if err != nil {
		return nil, err
	}
	y, err := argInt(args, 2, "set_pos")
	if err != nil {
		return nil, err
	}
	s, ok := b.member(name)
	if !ok {
		return nil, fmt.Errorf("band.set_pos: no member %q on the field", name)
	}
	s.X, s.Y = x, y
	b.spawned[name] = s
	b.pending = append(b.pending, band.Command{Kind: band.CmdMove, Member: name, X: x, Y: y})
	return None{}, nil
}

func (b *bandModule) doGetPos(args []Value) (Value, error) {
	if err := arity(args, 1, "get_pos"); err != nil {
		return nil, err
	}
	name, err := argStr(args, 0, "get_pos")
	if err != nil {
		return nil, err
	}
	s, ok := b.member(name)
	if !ok {
		return nil, fmt.Errorf("band.get_pos: no member %q on the field", name)
	}
	return &List{Items: []Value{Int(s.X), Int(s.Y)}}, nil
}

func (b *bandModule) doGetAll(args []Value) (Value, error) {
	if err := arity(args, 0, "get_all"); err != nil {
		return nil, err
	}
	var names []string
	seen := map[string]bool{}
	for _, s := range b.world.States() {
		if s.Active && !b.gone[s.Name] {
			names = append(names, s.Name)
			seen[s.Name] = true
		}
	}
	var extra []string
	for n := range b.spawned {
		if !seen[n] && !b.gone[n] {
			extra = append(extra, n)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)
	items := make([]Value, len(names))
	for i, n := range names {
		items[i] = Str(n)
	}
	return &List{Items: items}, nil
}

func (b *bandModule) doIsOccupied(args []Value) (Value, error) {
	if err := arity(args, 2, "is_occupied"); err != nil {
		return nil, err
	}
	x, err := argInt(args, 0, "is_occupied")
	if err != nil {
		return nil, err
	}
	y, err := argInt(args, 1, "is_occupied")
	if err != nil {
		return nil, err
	}
	if b.world.OccupiedAt(x, y) {
		return Bool(true), nil
	}
	for n, s := range b.spawned {
		if !b.gone[n] && s.X == x && s.Y == y {
			return Bool(true), nil
		}
	}
	return Bool(false), nil
}

func (b *bandModule) doScan(args []Value) (Value, error) {
	if err := arity(args, 1, "scan"); err != nil {
		return nil, err
	}
	section, err := argStr(args, 0, "scan")
	if err != nil {
		return nil, err
	}
	var items []Value
	for _, s := range b.world.States() {
		if s.Active && !b.gone[s.Name] && s.Section == section {
			items = append(items, Str(s.Name))
		}
	}
	var extra []string
	for n, s := range b.spawned {
		if !b.gone[n] && s.Section == section {
			dup := false
			for _, w := range b.world.States() {
				if w.Name == n {
					dup = true
					break
				}
			}
			if !dup {
				extra = append(extra, n)
			}
		}
	}
	sort.Strings(extra)
	for _, n := range extra {
		items = append(items, Str(n))
	}
	return &List{Items: items}, nil
}

func (b *bandModule) doStepTo(args []Value) (Value, error) {
	if err := arity(args, 4, "step_to"); err != nil {
		return nil, err
	}
	name, err := argStr(args, 0, "step_to")
	if err != nil {
		return nil, err
	}
	x, err := argInt(args, 1, "step_to")
	if err != nil {
		return nil, err
	}
	y, err := argInt(args, 2, "step_to")
	if err != nil {
		return nil, err
	}
	counts, err := argInt(args, 3, "step_to")
	if err != nil {
		return nil, err
	}
	if counts < 1 {
		return nil, fmt.Errorf("band.step_to: counts must be at least 1, got %d", counts)
	}
	if _, ok := b.member(name); !ok {
		return nil, fmt.Errorf("band.step_to: no member %q on the field", name)
	}
	b.enqueue(name, &phrase{member: name, isMove: true, toX: x, toY: y, counts: counts})
	return None{}, nil
}

func (b *bandModule) doWait(args []Value) (Value, error) {
	if err := arity(args, 2, "wait"); err != nil {
		return nil, err
	}
	name, err := argStr(args, 0, "wait")
	if err != nil {
		return nil, err
	}
	counts, err := argInt(args, 1, "wait")
	if err != nil {
		return nil, err
	}
	if counts < 1 {
		return nil, fmt.Errorf("band.wait: counts must be at least 1, got %d", counts)
	}
	if _, ok := b.member(name); !ok {
		return nil, fmt.Errorf("band.wait: no member %q on the field", name)
	}
	b.enqueue(name, &phrase{member: name, isWait: true, holds: counts})
	return None{}, nil
}

func (b *bandModule) doDismiss(args []Value) (Value, error) {
	if err := arity(args, 1, "dismiss"); err != nil {
		return nil, err
	}
	name, err := argStr(args, 0, "dismiss")
	if err != nil {
		return nil, err
	}
	if _, ok := b.member(name); !ok {
		return nil, fmt.Errorf("band.dismiss: no member %q on the field", name)
	}
	b.gone[name] = true
	delete(b.schedule, name)
	b.pending = append(b.pending, band.Command{Kind: band.CmdDismiss, Member: name})
	return None{}, nil
}

func (b *bandModule) doEmit(args []Value) (Value, error) {
	if err := arity(args, 1, "emit"); err != nil {
		return nil, err
	}
	sig, err := argStr(args, 0, "emit")
	if err != nil {
		return nil, err
	}
	b.pending = append(b.pending, band.Command{Kind: band.CmdSignal, Signal: sig})
	return None{}, nil
}

func (b *bandModule) enqueue(name string, p *phrase) {
	if _, had := b.schedule[name]; !had {
		b.order = append(b.order, name)
	}
	b.schedule[name] = append(b.schedule[name], p)
}

// ScheduleEmpty reports whether every member's phrase queue has
// drained and no instant commands are pending.
func (b *bandModule) ScheduleEmpty() bool {
	if len(b.pending) > 0 {
		return false
	}
	for _, q := range b.schedule {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

// EmitTick drains one count from every member's queue and returns the
// tick's commands, instant commands first, then one move per scheduled
// member in the order members were first scheduled. A move phrase
// interpolates linearly from the position the member held when the
// phrase started, rounding halves away from zero like a drill chart
// does.
func (b *bandModule) EmitTick() []band.Command {
	cmds := b.pending
	b.pending = nil

	for _, name := range b.order {
		q := b.schedule[name]
		if len(q) == 0 {
			continue
		}
		p := q[0]
		switch {
		case p.isWait:
			p.holds--
			if p.holds <= 0 {
				b.schedule[name] = q[1:]
			}
		case p.isMove:
			if !p.haveStart {
				s, ok := b.member(name)
				if !ok {
					// Dismissed after scheduling; drop the queue.
					b.schedule[name] = nil
					continue
				}
				p.fromX, p.fromY = s.X, s.Y
				p.haveStart = true
			}
			p.done++
			x := lerp(p.fromX, p.toX, p.done, p.counts)
			y := lerp(p.fromY, p.toY, p.done, p.counts)
			cmds = append(cmds, band.Command{Kind: band.CmdMove, Member: name, X: x, Y: y})
			if s, ok := b.spawned[name]; ok {
				s.X, s.Y = x, y
				b.spawned[name] = s
			}
			if p.done >= p.counts {
				b.schedule[name] = q[1:]
			}
		}
	}
	return cmds
}

// lerp returns the position after done of counts steps from a to z,
// rounded to the nearest dot, halves away from zero.
func lerp(a, z, done, counts int) int {
	num := a*counts + (z-a)*done
	if num >= 0 {
		return (2*num + counts) / (2 * counts)
	}
	return -((-2*num + counts) / (2 * counts))
}

// builtins constructs the builtin bindings the capability table grants,
// with print writing lines to sink.
func builtins(table *policy.Table, sink func(string)) map[string]Value {
	all := map[string]func([]Value) (Value, error){
		"abs":       builtinAbs,
		"enumerate": builtinEnumerate,
		"float":     builtinFloat,
		"int":       builtinInt,
		"len":       builtinLen,
		"list":      builtinList,
		"max":       builtinMax,
		"min":       builtinMin,
		"range":     builtinRange,
		"str":       builtinStr,
		"sum":       builtinSum,
	}
	out := map[string]Value{}
	for name, fn := range all {
		if table.AllowsName(name) {
			out[name] = Builtin{Name: name, Fn: fn}
		}
	}
	if table.AllowsName("print") {
		out["print"] = Builtin{Name: "print", Fn: func(args []Value) (Value, error) {
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = display(a)
			}
			sink(strings.Join(parts, " "))
			return None{}, nil
		}}
	}
	return out
}

func builtinLen(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case Str:
		return Int(len([]rune(string(v)))), nil
	case *List:
		return Int(len(v.Items)), nil
	case Range:
		return Int(rangeLen(v)), nil
	}
	return nil, fmt.Errorf("len: cannot measure %s", args[0].typeName())
}

func builtinRange(args []Value) (Value, error) {
	switch len(args) {
	case 1:
		n, ok := asInt(args[0])
		if !ok {
			return nil, fmt.Errorf("range: arguments must be integers")
		}
		return Range{Start: 0, Stop: n, Step: 1}, nil
	case 2, 3:
		start, ok1 := asInt(args[0])
		stop, ok2 := asInt(args[1])
		step := int64(1)
		ok3 := true
		if len(args) == 3 {
			step, ok3 = asInt(args[2])
		}
		if !ok1 || !ok2 || !ok3 {
			return nil, fmt.Errorf("range: arguments must be integers")
		}
		if step == 0 {
			return nil, fmt.Errorf("range: step must not be zero")
		}
		return Range{Start: start, Stop: stop, Step: step}, nil
	}
	return nil, fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
}

func builtinAbs(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case Int:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case Float:
		if v < 0 {
			return -v, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("abs: cannot take %s", args[0].typeName())
}

func builtinMin(args []Value) (Value, error) { return pickExtreme(args, "min", cmpLt) }
func builtinMax(args []Value) (Value, error) { return pickExtreme(args, "max", cmpGt) }

func pickExtreme(args []Value, name string, op int) (Value, error) {
	items := args
	if len(args) == 1 {
		l, ok := args[0].(*List)
		if !ok {
			return nil, fmt.Errorf("%s: single argument must be a list", name)
		}
		items = l.Items
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s: empty", name)
	}
	best := items[0]
	for _, v := range items[1:] {
		better, err := applyCompare(op, v, best)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", name, err)
		}
		if b, ok := better.(Bool); ok && bool(b) {
			best = v
		}
	}
	return best, nil
}

func builtinSum(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sum takes 1 argument, got %d", len(args))
	}
	l, ok := args[0].(*List)
	if !ok {
		return nil, fmt.Errorf("sum: argument must be a list, got %s", args[0].typeName())
	}
	var acc Value = Int(0)
	for _, v := range l.Items {
		next, err := applyBinary(binAdd, acc, v)
		if err != nil {
			return nil, fmt.Errorf("sum: %v", err)
		}
		acc = next
	}
	return acc, nil
}

func builtinInt(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("int takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case Int:
		return v, nil
	case Float:
		return Int(int(v)), nil
	case Bool:
		if v {
			return Int(1), nil
		}
		return Int(0), nil
	case Str:
		n, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("int: cannot parse %q", string(v))
		}
		return Int(n), nil
	}
	return nil, fmt.Errorf("int: cannot convert %s", args[0].typeName())
}

func builtinFloat(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("float takes 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case Int:
		return Float(float64(v)), nil
	case Float:
		return v, nil
	case Str:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64)
		if err != nil {
			return nil, fmt.Errorf("float: cannot parse %q", string(v))
		}
		return Float(f), nil
	}
	return nil, fmt.Errorf("float: cannot convert %s", args[0].typeName())
}

func builtinStr(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("str takes 1 argument, got %d", len(args))
	}
	return Str(display(args[0])), nil
}

func builtinList(args []Value) (Value, error) {
	switch len(args) {
	case 0:
		return &List{}, nil
	case 1:
		switch v := args[0].(type) {
		case *List:
			items := make([]Value, len(v.Items))
			copy(items, v.Items)
			return &List{Items: items}, nil
		case Range:
			n := rangeLen(v)
			items := make([]Value, 0, n)
			for i := int64(0); i < n; i++ {
				items = append(items, Int(v.Start+i*v.Step))
			}
			return &List{Items: items}, nil
		case Str:
			var items []Value
			for _, r := range string(v) {
				items = append(items, Str(string(r)))
			}
			return &List{Items: items}, nil
		}
		return nil, fmt.Errorf("list: cannot convert %s", args[0].typeName())
	}
	return nil, fmt.Errorf("list takes at most 1 argument, got %d", len(args))
}

func builtinEnumerate(args []Value) (Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("enumerate takes 1 argument, got %d", len(args))
	}
	seq, err := builtinList(args)
	if err != nil {
		return nil, fmt.Errorf("enumerate: cannot iterate %s", args[0].typeName())
	}
	src := seq.(*List)
	items := make([]Value, len(src.Items))
	for i, v := range src.Items {
		items[i] = &List{Items: []Value{Int(i), v}}
	}
	return &List{Items: items}, nil
}
