package scripting

import (
	"fmt"

	"github.com/codeofpride/drillcore/internal/budget"
)

// runOutcome reports why the interpreter loop stopped.
type runOutcome int

const (
	runHalted    runOutcome = iota // reached opHalt / finished a re-entry call
	runSuspended                   // slice budget exhausted, resumable
	runAborted                     // total budget exhausted, terminal
	runFaulted                     // script fault, terminal
)

// iterator values live only on the VM stack.
type listIter struct {
	items []Value
	pos   int
}

type rangeIter struct {
	cur, stop, step int64
}

func (*listIter) typeName() string  { return "iterator" }
func (*rangeIter) typeName() string { return "iterator" }

type frame struct {
	retPC  int
	base   int // stack height at call time; restored on return
	locals map[string]Value
}

// machine executes a Program. All state needed to resume — program
// counter, stack, frames, globals — sits in plain fields, so suspending
// is just returning from run and resuming is calling it again.
type machine struct {
	prog     *Program
	stack    []Value
	frames   []frame
	globals  map[string]Value
	bindings map[string]Value // capability surface: builtins + band
	pc       int
	line     int
	fault    *Fault
}

func newMachine(prog *Program, bindings map[string]Value) *machine {
	return &machine{
		prog:     prog,
		globals:  map[string]Value{},
		bindings: bindings,
	}
}

func (m *machine) push(v Value) { m.stack = append(m.stack, v) }

func (m *machine) pop() Value {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

func (m *machine) peek() Value { return m.stack[len(m.stack)-1] }

// setupCall prepares a re-entry into a script function (the per-tick
// hook). The frame returns to the trailing opHalt so the machine halts
// cleanly when the call finishes.
func (m *machine) setupCall(fn *Function, args []Value) *Fault {
	if len(args) > len(fn.Params) {
		args = args[:len(fn.Params)]
	}
	locals := make(map[string]Value, len(fn.Params))
	for i, p := range fn.Params {
		if i < len(args) {
			locals[p] = args[i]
		} else {
			locals[p] = None{}
		}
	}
	m.stack = m.stack[:0]
	m.frames = append(m.frames[:0], frame{retPC: m.prog.haltPC, base: 0, locals: locals})
	m.pc = fn.Entry
	return nil
}

// run executes instructions until the program halts, the guard stops
// it, or the script faults. Suspension happens only at opStmt, so the
// machine is always between statements when control returns.
func (m *machine) run(g *budget.Guard) runOutcome {
	code := m.prog.code
	for {
		in := code[m.pc]
		switch in.op {
		case opStmt:
			switch g.Step() {
			case budget.SliceExhausted:
				return runSuspended
			case budget.TotalExhausted:
				return runAborted
			}
			m.line = in.line
			m.pc++

		case opConst:
			m.push(m.prog.consts[in.arg])
			m.pc++

		case opLoadName:
			name := m.prog.names[in.arg]
			v, ok := m.lookup(name)
			if !ok {
				return m.failf("name %q is not defined", name)
			}
			m.push(v)
			m.pc++

		case opStoreName:
			name := m.prog.names[in.arg]
			v := m.pop()
			if len(m.frames) > 0 {
				m.frames[len(m.frames)-1].locals[name] = v
			} else {
				m.globals[name] = v
			}
			m.pc++

		case opLoadAttr:
			name := m.prog.names[in.arg]
			recv := m.pop()
			mod, ok := recv.(HostModule)
			if !ok {
				return m.failf("%s has no attribute %q", recv.typeName(), name)
			}
			bm, err := bindAttr(mod, name)
			if err != nil {
				return m.fail(err)
			}
			m.push(bm)
			m.pc++

		case opIndex:
			idx := m.pop()
			cont := m.pop()
			v, err := indexValue(cont, idx)
			if err != nil {
				return m.fail(err)
			}
			m.push(v)
			m.pc++

		case opStoreIndex:
			v := m.pop()
			idx := m.pop()
			cont := m.pop()
			if err := storeIndex(cont, idx, v); err != nil {
				return m.fail(err)
			}
			m.pc++

		case opBinary:
			r := m.pop()
			l := m.pop()
			v, err := applyBinary(in.arg, l, r)
			if err != nil {
				return m.fail(err)
			}
			m.push(v)
			m.pc++

		case opNeg:
			switch x := m.pop().(type) {
			case Int:
				m.push(Int(-x))
			case Float:
				m.push(Float(-x))
			case Bool:
				if x {
					m.push(Int(-1))
				} else {
					m.push(Int(0))
				}
			default:
				return m.failf("cannot negate %s", x.typeName())
			}
			m.pc++

		case opNot:
			m.push(Bool(!truthy(m.pop())))
			m.pc++

		case opMakeList:
			items := make([]Value, in.arg)
			copy(items, m.stack[len(m.stack)-in.arg:])
			m.stack = m.stack[:len(m.stack)-in.arg]
			m.push(&List{Items: items})
			m.pc++

		case opJump:
			m.pc = in.arg

		case opJumpIfFalse:
			if !truthy(m.pop()) {
				m.pc = in.arg
			} else {
				m.pc++
			}

		case opJumpIfTruePeek:
			if truthy(m.peek()) {
				m.pc = in.arg
			} else {
				m.pc++
			}

		case opJumpIfFalsePeek:
			if !truthy(m.peek()) {
				m.pc = in.arg
			} else {
				m.pc++
			}

		case opPop:
			m.pop()
			m.pc++

		case opCall:
			if out := m.call(in.arg); out != runHalted {
				return out
			}

		case opIterNew:
			it, err := makeIterator(m.pop())
			if err != nil {
				return m.fail(err)
			}
			m.push(it)
			m.pc++

		case opIterNext:
			switch it := m.peek().(type) {
			case *listIter:
				if it.pos < len(it.items) {
					m.push(it.items[it.pos])
					it.pos++
					m.pc++
				} else {
					m.pop()
					m.pc = in.arg
				}
			case *rangeIter:
				if (it.step > 0 && it.cur < it.stop) || (it.step < 0 && it.cur > it.stop) {
					m.push(Int(it.cur))
					it.cur += it.step
					m.pc++
				} else {
					m.pop()
					m.pc = in.arg
				}
			default:
				return m.failf("internal: bad iterator")
			}

		case opReturn:
			v := m.pop()
			f := m.frames[len(m.frames)-1]
			m.frames = m.frames[:len(m.frames)-1]
			m.stack = m.stack[:f.base]
			m.push(v)
			m.pc = f.retPC

		case opHalt:
			return runHalted

		default:
			return m.failf("internal: unknown opcode %d", in.op)
		}
	}
}

// call dispatches opCall. Script functions push a frame and continue in
// the loop; builtins and band methods run to completion immediately.
func (m *machine) call(argc int) runOutcome {
	args := make([]Value, argc)
	copy(args, m.stack[len(m.stack)-argc:])
	m.stack = m.stack[:len(m.stack)-argc]
	callee := m.pop()

	switch fn := callee.(type) {
	case *Function:
		if argc != len(fn.Params) {
			return m.failf("%s() takes %d arguments, got %d", fn.Name, len(fn.Params), argc)
		}
		if len(m.frames) >= maxCallDepth {
			return m.failf("call depth limit reached in %s()", fn.Name)
		}
		locals := make(map[string]Value, len(fn.Params))
		for i, p := range fn.Params {
			locals[p] = args[i]
		}
		m.frames = append(m.frames, frame{retPC: m.pc + 1, base: len(m.stack), locals: locals})
		m.pc = fn.Entry
		return runHalted

	case Builtin:
		v, err := fn.Fn(args)
		if err != nil {
			return m.fail(err)
		}
		m.push(v)
		m.pc++
		return runHalted

	case boundMethod:
		v, err := fn.module.CallMethod(fn.name, args)
		if err != nil {
			return m.fail(err)
		}
		m.push(v)
		m.pc++
		return runHalted

	default:
		return m.failf("%s is not callable", callee.typeName())
	}
}

const maxCallDepth = 64

func (m *machine) lookup(name string) (Value, bool) {
	if len(m.frames) > 0 {
		if v, ok := m.frames[len(m.frames)-1].locals[name]; ok {
			return v, true
		}
	}
	if v, ok := m.globals[name]; ok {
		return v, true
	}
	if v, ok := m.bindings[name]; ok {
		return v, true
	}
	return nil, false
}

func (m *machine) fail(err error) runOutcome {
	if f, ok := err.(*Fault); ok {
		if f.Line == 0 {
			f.Line = m.line
		}
		m.fault = f
	} else {
		m.fault = &Fault{Line: m.line, Message: err.Error()}
	}
	return runFaulted
}

func (m *machine) failf(format string, args ...any) runOutcome {
	m.fault = faultf(m.line, format, args...)
	return runFaulted
}

func makeIterator(v Value) (Value, error) {
	switch x := v.(type) {
	case *List:
		// Iterate over a snapshot so the body may mutate the list.
		items := make([]Value, len(x.Items))
		copy(items, x.Items)
		return &listIter{items: items}, nil
	case Range:
		step := x.Step
		if step == 0 {
			step = 1
		}
		return &rangeIter{cur: x.Start, stop: x.Stop, step: step}, nil
	case Str:
		items := make([]Value, 0, len(x))
		for _, r := range string(x) {
			items = append(items, Str(string(r)))
		}
		return &listIter{items: items}, nil
	default:
		return nil, fmt.Errorf("%s is not iterable", v.typeName())
	}
}

func indexValue(cont, idx Value) (Value, error) {
	switch c := cont.(type) {
	case *List:
		i, ok := asInt(idx)
		if !ok {
			return nil, fmt.Errorf("list index must be int, not %s", idx.typeName())
		}
		n := int64(len(c.Items))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("list index %d out of range", i)
		}
		return c.Items[i], nil
	case Str:
		i, ok := asInt(idx)
		if !ok {
			return nil, fmt.Errorf("string index must be int, not %s", idx.typeName())
		}
		runes := []rune(string(c))
		n := int64(len(runes))
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, fmt.Errorf("string index %d out of range", i)
		}
		return Str(string(runes[i])), nil
	default:
		return nil, fmt.Errorf("%s is not indexable", cont.typeName())
	}
}

func storeIndex(cont, idx, v Value) error {
	c, ok := cont.(*List)
	if !ok {
		return fmt.Errorf("cannot assign into %s", cont.typeName())
	}
	i, iok := asInt(idx)
	if !iok {
		return fmt.Errorf("list index must be int, not %s", idx.typeName())
	}
	n := int64(len(c.Items))
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return fmt.Errorf("list index %d out of range", i)
	}
	c.Items[i] = v
	return nil
}

func bindAttr(mod HostModule, name string) (Value, error) {
	return boundMethod{module: mod, name: name}, nil
}
