// Package policy defines the capability surface a player script may touch.
//
// The table is a strict allow-list: an operation is reachable only if it
// was declared here, and levels may narrow the band surface further via
// their allowed_api list. Anything unknown is denied by default.
package policy

import "sort"

// Op identifies a single capability a script can request: either a bare
// builtin name ("range", "print") or a band method ("band.step_to").
type Op string

// Builtin operations every level grants. These are data helpers with no
// reach into the host: they cannot touch the filesystem, the network,
// the clock, or unseeded randomness.
var baseBuiltins = []Op{
	"abs",
	"enumerate",
	"float",
	"int",
	"len",
	"list",
	"max",
	"min",
	"print",
	"range",
	"str",
	"sum",
}

// Band methods that exist at all. A level's allowed_api may grant any
// subset of these; granting a name outside this set has no effect.
var bandMethods = []Op{
	"band.dismiss",
	"band.emit",
	"band.get_all",
	"band.get_pos",
	"band.is_occupied",
	"band.scan",
	"band.set_pos",
	"band.spawn",
	"band.step_to",
	"band.wait",
}

// Table is an immutable allow/deny decision function.
type Table struct {
	allowed map[Op]bool
}

// NewTable builds a table granting the base builtins plus the requested
// band methods. Method names may be given bare ("step_to") or qualified
// ("band.step_to"); unknown names are silently ignored so that level
// data can mention future capabilities without widening the surface.
func NewTable(api []string) *Table {
	t := &Table{allowed: make(map[Op]bool, len(baseBuiltins)+len(api)+1)}
	for _, op := range baseBuiltins {
		t.allowed[op] = true
	}
	known := make(map[Op]bool, len(bandMethods))
	for _, op := range bandMethods {
		known[op] = true
	}
	for _, name := range api {
		op := Op(name)
		if len(name) < 5 || name[:5] != "band." {
			op = Op("band." + name)
		}
		if known[op] {
			t.allowed[op] = true
			// Referencing any band method requires the band object itself.
			t.allowed["band"] = true
		}
	}
	return t
}

// FullTable grants every band method. Used by sandbox (free rehearsal)
// mode and by tests.
func FullTable() *Table {
	api := make([]string, len(bandMethods))
	for i, op := range bandMethods {
		api[i] = string(op)
	}
	return NewTable(api)
}

// Allows reports whether the operation is on the allow-list.
func (t *Table) Allows(op Op) bool {
	return t.allowed[op]
}

// AllowsName reports whether a bare identifier may be referenced at all.
// Band method reachability is checked separately via Allows at the call
// site; here "band" itself counts as a name.
func (t *Table) AllowsName(name string) bool {
	return t.allowed[Op(name)]
}

// Ops returns the allowed operations in sorted order, for diagnostics
// and for the levels endpoint.
func (t *Table) Ops() []Op {
	out := make([]Op, 0, len(t.allowed))
	for op := range t.allowed {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
