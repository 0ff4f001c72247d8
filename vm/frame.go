package vm

import (
	"fmt"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
	"github.com/hashicorp/go-multierror"
)

// frame is the state of one running bytecode procedure.
type frame struct {
	call   op.CallNum
	proc   *procedure
	code   *bytecode.Code
	pc     int // word position of the current instruction
	ins    bytecode.Instruction
	args   [2]object.Ptr
	local  [op.NumTypes]registers
	imm    [2]*object.Memory
	jumped bool
	line   int

	// failed and exit are both set on error; exit alone means the
	// procedure returned.
	failed bool
	exit   bool
	err    error
}

func newFrame(num op.CallNum, proc *procedure) *frame {
	return &frame{
		call: num,
		proc: proc,
		code: proc.code,
		imm:  [2]*object.Memory{object.NewMemory(object.PointSize), object.NewMemory(object.PointSize)},
	}
}

// fail stops the frame with a recoverable error.
func (f *frame) fail(kind errz.ErrorKind, format string, args ...any) {
	f.failWith(errz.NewStructuredErrorf(kind, nil, format, args...))
}

// failWith stops the frame with err, which may carry the backtrace of a
// failed callee.
func (f *frame) failWith(err error) {
	if f.failed {
		return
	}
	f.err = err
	f.failed = true
	f.exit = true
}

// stackFrame describes the current position for backtraces.
func (f *frame) stackFrame() errz.StackFrame {
	return errz.StackFrame{
		CallNum:   uint32(f.call),
		Procedure: f.proc.name,
		Offset:    f.pc * 4,
		Line:      f.line,
	}
}

// allocateLocals gives the frame its registers of category t. Calling it
// twice for the same category, or with negative counts, is fatal.
func (f *frame) allocateLocals(t op.Type, numVars, numRegs int) {
	f.local[t].alloc(t, numVars, numRegs)
}

// register returns the address of a local register, failing the frame
// when the index is out of range.
func (f *frame) register(t op.Type, index int) (object.Ptr, bool) {
	p, ok := f.local[t].addr(index)
	if !ok {
		f.fail(errz.ErrBounds, "local %s register %d out of range", t.Name(), index)
	}
	return p, ok
}

// teardown frees the registers allocated by the frame, releasing the
// objects its Obj registers reference.
func (f *frame) teardown(heap *object.Heap) error {
	var first error
	for t := range f.local {
		if err := f.local[t].release(heap, op.Type(t)); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// addressOf resolves an operand of category t to the address it denotes.
// Immediates are copied into the frame's scratch memory for operand slot.
func (vm *VirtualMachine) addressOf(f *frame, slot int, t op.Type, arg bytecode.Operand) (object.Ptr, bool) {
	switch arg.Kind {
	case op.ArgGlobal:
		p, ok := vm.globals[t].addr(int(arg.Index))
		if !ok {
			f.fail(errz.ErrBounds, "global %s register %d out of range", t.Name(), arg.Index)
		}
		return p, ok
	case op.ArgLocal:
		return f.register(t, int(arg.Index))
	case op.ArgPtr:
		base, ok := f.register(op.TypeObj, 0)
		if !ok {
			return object.Null, false
		}
		target := base.Obj()
		if target.IsNull() {
			f.fail(errz.ErrBounds, "null pointer dereference")
			return object.Null, false
		}
		p := target.Add(int(arg.Index))
		if !p.Valid(slotSize[t]) {
			f.fail(errz.ErrBounds, "%s access at offset %d outside object", t.Name(), arg.Index)
			return object.Null, false
		}
		return p, true
	case op.ArgImm:
		p := object.Addr(f.imm[slot], 0)
		switch t {
		case op.TypeChar:
			p.SetChar(arg.Char())
		case op.TypeInt:
			p.SetInt(arg.Int())
		case op.TypeReal:
			p.SetReal(arg.Real())
		case op.TypePoint:
			x, y := arg.Point()
			p.SetPoint(object.Point{X: x, Y: y})
		default:
			errz.Fatalf("immediate operand of category %s", t.Name())
		}
		return p, true
	}
	errz.Fatalf("invalid operand kind %d", arg.Kind)
	return object.Null, false
}

// getArgs resolves the operands of the current instruction according to
// its getter.
func (vm *VirtualMachine) getArgs(f *frame) bool {
	info := f.ins.Info()
	f.args = [2]object.Ptr{}
	switch info.Getter {
	case op.GetNone, op.GetImm:
		return true
	case op.GetOne, op.GetOneImm:
		p, ok := vm.addressOf(f, 0, info.Types[0], f.ins.Args[0])
		f.args[0] = p
		return ok
	case op.GetTwo:
		for i := 0; i < 2; i++ {
			p, ok := vm.addressOf(f, i, info.Types[i], f.ins.Args[i])
			if !ok {
				return false
			}
			f.args[i] = p
		}
		return true
	}
	errz.Fatalf("invalid getter %d for %s", info.Getter, info.Name)
	return false
}

// runCode interprets a bytecode procedure until it returns, fails or runs
// off the end of its code.
func (vm *VirtualMachine) runCode(num op.CallNum, proc *procedure) error {
	f := newFrame(num, proc)
	caller := vm.frame
	vm.frame = f
	defer func() { vm.frame = caller }()

	for !f.exit && f.pc < f.code.Len() {
		ins, err := bytecode.Decode(f.code, f.pc)
		if err != nil {
			errz.Fatalf("%s at offset %d: %v", proc.name, f.pc*4, err)
		}
		f.ins = ins
		exec := executors[ins.Op]
		if exec == nil {
			errz.Fatalf("%s at offset %d: no executor for opcode %d", proc.name, f.pc*4, ins.Op)
		}
		if !vm.onStep(f) {
			f.failWith(errz.NewStructuredError(errz.ErrRuntime, ErrHalted.Error(), nil).WithCause(ErrHalted))
			break
		}
		if !vm.getArgs(f) {
			break
		}
		f.jumped = false
		exec(vm, f)
		if f.failed {
			break
		}
		if !f.jumped {
			f.pc += ins.Len
		}
	}

	err := f.teardown(vm.heap)
	if f.failed {
		if err != nil {
			f.err = multierror.Append(f.err, err)
		}
		return withFrame(f.err, f.stackFrame())
	}
	if err != nil {
		return withFrame(err, f.stackFrame())
	}
	return nil
}

func (f *frame) String() string {
	return fmt.Sprintf("frame(%s, offset %d)", f.proc.name, f.pc*4)
}
