package scripting

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a drillscript runtime value. The set of types is closed:
// ints, floats, strings, bools, none, lists, ranges, functions and the
// host-provided band surface. There is deliberately no reflection and
// no way to manufacture a value outside this set.
type Value interface {
	typeName() string
}

type (
	// Int is a drillscript integer.
	Int int64
	// Float is a drillscript float.
	Float float64
	// Str is a drillscript string.
	Str string
	// Bool is a drillscript boolean.
	Bool bool
	// None is the absence of a value.
	None struct{}
)

// List is a mutable ordered collection.
type List struct {
	Items []Value
}

// Range is the value produced by range(); iterated without
// materializing its elements.
type Range struct {
	Start, Stop, Step int64
}

// Function is a script-defined function. Entry is the bytecode offset
// of its body.
type Function struct {
	Name   string
	Params []string
	Entry  int
}

// Builtin is a host-provided function exposed through the capability
// table.
type Builtin struct {
	Name string
	Fn   func(args []Value) (Value, error)
}

// HostModule is the extension point for host objects (the band). All
// attribute access on a module resolves to bound methods whose calls
// are routed through Call; the capability table gates each name before
// the call is ever made.
type HostModule interface {
	Value
	CallMethod(name string, args []Value) (Value, error)
}

// boundMethod is a host module method plucked off via attribute access.
type boundMethod struct {
	module HostModule
	name   string
}

func (Int) typeName() string         { return "int" }
func (Float) typeName() string       { return "float" }
func (Str) typeName() string         { return "str" }
func (Bool) typeName() string        { return "bool" }
func (None) typeName() string        { return "none" }
func (*List) typeName() string       { return "list" }
func (Range) typeName() string       { return "range" }
func (*Function) typeName() string   { return "function" }
func (Builtin) typeName() string     { return "builtin" }
func (boundMethod) typeName() string { return "method" }

// truthy implements Python-style truthiness: zero, empty and none are
// false, everything else true.
func truthy(v Value) bool {
	switch x := v.(type) {
	case Int:
		return x != 0
	case Float:
		return x != 0
	case Str:
		return x != ""
	case Bool:
		return bool(x)
	case None:
		return false
	case *List:
		return len(x.Items) > 0
	case Range:
		return rangeLen(x) > 0
	default:
		return true
	}
}

func rangeLen(r Range) int64 {
	if r.Step == 0 {
		return 0
	}
	if r.Step > 0 {
		if r.Stop <= r.Start {
			return 0
		}
		return (r.Stop - r.Start + r.Step - 1) / r.Step
	}
	if r.Start <= r.Stop {
		return 0
	}
	return (r.Start - r.Stop - r.Step - 1) / (-r.Step)
}

// display renders a value the way print shows it: strings bare,
// numbers without noise.
func display(v Value) string {
	switch x := v.(type) {
	case Str:
		return string(x)
	default:
		return repr(x)
	}
}

// repr renders a value unambiguously: strings quoted, used inside
// lists and error messages.
func repr(v Value) string {
	switch x := v.(type) {
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		s := strconv.FormatFloat(float64(x), 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case Str:
		return strconv.Quote(string(x))
	case Bool:
		if x {
			return "True"
		}
		return "False"
	case None:
		return "None"
	case *List:
		parts := make([]string, len(x.Items))
		for i, it := range x.Items {
			parts[i] = repr(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Range:
		return fmt.Sprintf("range(%d, %d, %d)", x.Start, x.Stop, x.Step)
	case *Function:
		return fmt.Sprintf("<function %s>", x.Name)
	case Builtin:
		return fmt.Sprintf("<builtin %s>", x.Name)
	case boundMethod:
		return fmt.Sprintf("<method band.%s>", x.name)
	default:
		return fmt.Sprintf("<%s>", v.typeName())
	}
}

// valuesEqual implements ==. Ints and floats compare numerically;
// otherwise values of different types are unequal.
func valuesEqual(a, b Value) bool {
	if an, aok := numeric(a); aok {
		if bn, bok := numeric(b); bok {
			return an == bn
		}
		return false
	}
	switch x := a.(type) {
	case Str:
		y, ok := b.(Str)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case None:
		_, ok := b.(None)
		return ok
	case *List:
		y, ok := b.(*List)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !valuesEqual(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// numeric converts ints, floats and bools to a common float64.
func numeric(v Value) (float64, bool) {
	switch x := v.(type) {
	case Int:
		return float64(x), true
	case Float:
		return float64(x), true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asInt(v Value) (int64, bool) {
	switch x := v.(type) {
	case Int:
		return int64(x), true
	case Bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Binary operator codes (Instr.Arg for opBinary).
const (
	binAdd = iota
	binSub
	binMul
	binDiv
	binFloorDiv
	binMod
	cmpEq
	cmpNe
	cmpLt
	cmpLe
	cmpGt
	cmpGe
)

func binOpName(op int) string {
	switch op {
	case binAdd:
		return "+"
	case binSub:
		return "-"
	case binMul:
		return "*"
	case binDiv:
		return "/"
	case binFloorDiv:
		return "//"
	case binMod:
		return "%"
	case cmpEq:
		return "=="
	case cmpNe:
		return "!="
	case cmpLt:
		return "<"
	case cmpLe:
		return "<="
	case cmpGt:
		return ">"
	case cmpGe:
		return ">="
	}
	return "?"
}

// applyBinary evaluates one binary operation. Errors are phrased for
// the script author; the VM attaches the line.
func applyBinary(op int, a, b Value) (Value, error) {
	switch op {
	case cmpEq:
		return Bool(valuesEqual(a, b)), nil
	case cmpNe:
		return Bool(!valuesEqual(a, b)), nil
	case cmpLt, cmpLe, cmpGt, cmpGe:
		return applyCompare(op, a, b)
	}

	// String concatenation and repetition.
	if as, ok := a.(Str); ok {
		if bs, ok := b.(Str); ok && op == binAdd {
			return as + bs, nil
		}
		if bn, ok := asInt(b); ok && op == binMul {
			return Str(strings.Repeat(string(as), clampRepeat(bn))), nil
		}
		return nil, fmt.Errorf("unsupported operands for %s: %s and %s", binOpName(op), a.typeName(), b.typeName())
	}
	// List concatenation.
	if al, ok := a.(*List); ok {
		if bl, ok := b.(*List); ok && op == binAdd {
			items := make([]Value, 0, len(al.Items)+len(bl.Items))
			items = append(items, al.Items...)
			items = append(items, bl.Items...)
			return &List{Items: items}, nil
		}
		return nil, fmt.Errorf("unsupported operands for %s: %s and %s", binOpName(op), a.typeName(), b.typeName())
	}

	ai, aInt := a.(Int)
	bi, bInt := b.(Int)
	if aInt && bInt {
		return applyIntBinary(op, int64(ai), int64(bi))
	}
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if !aok || !bok {
		return nil, fmt.Errorf("unsupported operands for %s: %s and %s", binOpName(op), a.typeName(), b.typeName())
	}
	switch op {
	case binAdd:
		return Float(an + bn), nil
	case binSub:
		return Float(an - bn), nil
	case binMul:
		return Float(an * bn), nil
	case binDiv:
		if bn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(an / bn), nil
	case binFloorDiv:
		if bn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(math.Floor(an / bn)), nil
	case binMod:
		if bn == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(pyFloatMod(an, bn)), nil
	}
	return nil, fmt.Errorf("unknown operator")
}

func applyIntBinary(op int, a, b int64) (Value, error) {
	switch op {
	case binAdd:
		return Int(a + b), nil
	case binSub:
		return Int(a - b), nil
	case binMul:
		return Int(a * b), nil
	case binDiv:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Float(float64(a) / float64(b)), nil
	case binFloorDiv:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Int(pyIntFloorDiv(a, b)), nil
	case binMod:
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return Int(a - pyIntFloorDiv(a, b)*b), nil
	}
	return nil, fmt.Errorf("unknown operator")
}

// pyIntFloorDiv rounds toward negative infinity, matching the floor
// division scripts expect.
func pyIntFloorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func pyFloatMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func applyCompare(op int, a, b Value) (Value, error) {
	if as, ok := a.(Str); ok {
		if bs, ok := b.(Str); ok {
			return orderResult(op, strings.Compare(string(as), string(bs))), nil
		}
	}
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if !aok || !bok {
		return nil, fmt.Errorf("cannot order %s and %s", a.typeName(), b.typeName())
	}
	switch {
	case an < bn:
		return orderResult(op, -1), nil
	case an > bn:
		return orderResult(op, 1), nil
	default:
		return orderResult(op, 0), nil
	}
}

func orderResult(op, cmp int) Bool {
	switch op {
	case cmpLt:
		return Bool(cmp < 0)
	case cmpLe:
		return Bool(cmp <= 0)
	case cmpGt:
		return Bool(cmp > 0)
	case cmpGe:
		return Bool(cmp >= 0)
	}
	return false
}

func clampRepeat(n int64) int {
	if n < 0 {
		return 0
	}
	if n > 4096 {
		return 4096
	}
	return int(n)
}
