package vm

import (
	"math"

	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
)

type executor func(vm *VirtualMachine, f *frame)

// executors is the dispatch table, indexed by opcode. The operand getter
// of each opcode comes from the op package table.
var executors [256]executor

func init() {
	table := map[op.Code]executor{
		op.Nop:  func(*VirtualMachine, *frame) {},
		op.Line: func(_ *VirtualMachine, f *frame) { f.line = int(f.ins.Args[0].Int()) },
		op.Call: execCall,
		op.Ret:  func(_ *VirtualMachine, f *frame) { f.exit = true },
		op.Fail: execFail,
		op.Jmp:  func(_ *VirtualMachine, f *frame) { f.jump(f.ins.Args[0].Int()) },
		op.Jc:   execJc,

		op.NewC: newLocals(op.TypeChar),
		op.NewI: newLocals(op.TypeInt),
		op.NewR: newLocals(op.TypeReal),
		op.NewP: newLocals(op.TypePoint),
		op.NewO: newLocals(op.TypeObj),

		op.MovC:  func(_ *VirtualMachine, f *frame) { f.args[0].SetChar(f.args[1].Char()) },
		op.MovI:  intOp2(func(_, b int64) int64 { return b }),
		op.MovR:  realOp2(func(_, b float64) float64 { return b }),
		op.MovP:  pointOp2(func(_, b object.Point) object.Point { return b }),
		op.MovO:  func(_ *VirtualMachine, f *frame) { f.args[0].SetObj(f.args[1].Obj()) },
		op.RefO:  execRefO,
		op.NullO: func(_ *VirtualMachine, f *frame) { f.args[0].SetObj(object.Null) },

		op.AddI:  intOp2(func(a, b int64) int64 { return a + b }),
		op.SubI:  intOp2(func(a, b int64) int64 { return a - b }),
		op.MulI:  intOp2(func(a, b int64) int64 { return a * b }),
		op.DivI:  execDivI,
		op.RemI:  execRemI,
		op.NegI:  intOp1(func(a int64) int64 { return -a }),
		op.PowI:  execPowI,
		op.IncI:  intOp1(func(a int64) int64 { return a + 1 }),
		op.DecI:  intOp1(func(a int64) int64 { return a - 1 }),
		op.ShlI:  execShift(func(a int64, n uint64) int64 { return a << n }),
		op.ShrI:  execShift(func(a int64, n uint64) int64 { return a >> n }),
		op.BAndI: intOp2(func(a, b int64) int64 { return a & b }),
		op.BOrI:  intOp2(func(a, b int64) int64 { return a | b }),
		op.BXorI: intOp2(func(a, b int64) int64 { return a ^ b }),
		op.BNotI: intOp1(func(a int64) int64 { return ^a }),
		op.LNotI: intOp1(func(a int64) int64 { return boolInt(a == 0) }),
		op.LAndI: intOp2(func(a, b int64) int64 { return boolInt(a != 0 && b != 0) }),
		op.LOrI:  intOp2(func(a, b int64) int64 { return boolInt(a != 0 || b != 0) }),

		op.AddR: realOp2(func(a, b float64) float64 { return a + b }),
		op.SubR: realOp2(func(a, b float64) float64 { return a - b }),
		op.MulR: realOp2(func(a, b float64) float64 { return a * b }),
		op.DivR: realOp2(func(a, b float64) float64 { return a / b }),
		op.NegR: func(_ *VirtualMachine, f *frame) { f.args[0].SetReal(-f.args[0].Real()) },
		op.PowR: realOp2(math.Pow),

		op.AddP: pointOp2(object.Point.Add),
		op.SubP: pointOp2(object.Point.Sub),
		op.NegP: func(_ *VirtualMachine, f *frame) { f.args[0].SetPoint(f.args[0].Point().Scale(-1)) },
		op.MulP: func(_ *VirtualMachine, f *frame) { f.args[0].SetPoint(f.args[0].Point().Scale(f.args[1].Real())) },
		op.DivP: func(_ *VirtualMachine, f *frame) {
			d := f.args[1].Real()
			p := f.args[0].Point()
			f.args[0].SetPoint(object.Point{X: p.X / d, Y: p.Y / d})
		},

		op.EqI: compareInt(func(a, b int64) bool { return a == b }),
		op.NeI: compareInt(func(a, b int64) bool { return a != b }),
		op.LtI: compareInt(func(a, b int64) bool { return a < b }),
		op.LeI: compareInt(func(a, b int64) bool { return a <= b }),
		op.GtI: compareInt(func(a, b int64) bool { return a > b }),
		op.GeI: compareInt(func(a, b int64) bool { return a >= b }),
		op.EqR: compareReal(func(a, b float64) bool { return a == b }),
		op.NeR: compareReal(func(a, b float64) bool { return a != b }),
		op.LtR: compareReal(func(a, b float64) bool { return a < b }),
		op.LeR: compareReal(func(a, b float64) bool { return a <= b }),
		op.GtR: compareReal(func(a, b float64) bool { return a > b }),
		op.GeR: compareReal(func(a, b float64) bool { return a >= b }),
		op.EqC: compare(func(f *frame) bool { return f.args[0].Char() == f.args[1].Char() }),
		op.NeC: compare(func(f *frame) bool { return f.args[0].Char() != f.args[1].Char() }),
		op.EqP: compare(func(f *frame) bool { return f.args[0].Point() == f.args[1].Point() }),
		op.NeP: compare(func(f *frame) bool { return f.args[0].Point() != f.args[1].Point() }),
		op.EqO: compare(func(f *frame) bool { return f.args[0].Obj().SameLocation(f.args[1].Obj()) }),
		op.NeO: compare(func(f *frame) bool { return !f.args[0].Obj().SameLocation(f.args[1].Obj()) }),

		op.Real: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypeReal, 0); ok {
				r.SetReal(float64(f.args[0].Int()))
			}
		},
		op.Int: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypeInt, 0); ok {
				r.SetInt(int64(f.args[0].Real()))
			}
		},
		op.CToI: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypeInt, 0); ok {
				r.SetInt(int64(f.args[0].Char()))
			}
		},
		op.IToC: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypeChar, 0); ok {
				r.SetChar(byte(f.args[0].Int()))
			}
		},
		op.Point: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypePoint, 0); ok {
				r.SetPoint(object.Point{X: f.args[0].Real(), Y: f.args[1].Real()})
			}
		},
		op.ProjX: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypeReal, 0); ok {
				r.SetReal(f.args[0].Point().X)
			}
		},
		op.ProjY: func(_ *VirtualMachine, f *frame) {
			if r, ok := f.register(op.TypeReal, 0); ok {
				r.SetReal(f.args[0].Point().Y)
			}
		},

		op.Malloc: execMalloc,
		op.Create: execCreate,
		op.MLn:    func(vm *VirtualMachine, f *frame) { vm.heap.Retain(f.args[0].Obj()) },
		op.MUnln:  execMUnln,
		op.MCopy:  execMCopy,
		op.Reloc:  execReloc,
		op.Lea:    execLea,
		op.ShiftO: func(_ *VirtualMachine, f *frame) {
			f.args[0].SetObj(f.args[0].Obj().Add(int(f.ins.Args[1].Int())))
		},
	}
	for code, exec := range table {
		if !op.GetInfo(code).Valid() {
			panic("executor for unknown opcode " + code.String())
		}
		executors[code] = exec
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// jump moves the frame by a relative word offset from the current
// instruction.
func (f *frame) jump(offset int64) {
	target := f.pc + int(offset)
	if target < 0 || target > f.code.Len() {
		f.fail(errz.ErrRuntime, "jump to word %d outside procedure", target)
		return
	}
	f.pc = target
	f.jumped = true
}

func execJc(_ *VirtualMachine, f *frame) {
	cond, ok := f.register(op.TypeInt, 0)
	if ok && cond.Int() != 0 {
		f.jump(f.ins.Args[0].Int())
	}
}

func execCall(vm *VirtualMachine, f *frame) {
	if err := vm.invoke(op.CallNum(f.args[0].Int())); err != nil {
		f.failWith(err)
	}
}

func execFail(vm *VirtualMachine, f *frame) {
	msg := vm.failMsg
	if msg == "" {
		msg = "failure"
	}
	f.fail(errz.ErrRuntime, "%s", msg)
}

func newLocals(t op.Type) executor {
	return func(_ *VirtualMachine, f *frame) {
		f.allocateLocals(t, int(f.ins.Args[0].Int()), int(f.ins.Args[1].Int()))
	}
}

func intOp1(fn func(a int64) int64) executor {
	return func(_ *VirtualMachine, f *frame) {
		f.args[0].SetInt(fn(f.args[0].Int()))
	}
}

func intOp2(fn func(a, b int64) int64) executor {
	return func(_ *VirtualMachine, f *frame) {
		f.args[0].SetInt(fn(f.args[0].Int(), f.args[1].Int()))
	}
}

func realOp2(fn func(a, b float64) float64) executor {
	return func(_ *VirtualMachine, f *frame) {
		f.args[0].SetReal(fn(f.args[0].Real(), f.args[1].Real()))
	}
}

func pointOp2(fn func(a, b object.Point) object.Point) executor {
	return func(_ *VirtualMachine, f *frame) {
		f.args[0].SetPoint(fn(f.args[0].Point(), f.args[1].Point()))
	}
}

// compare stores the outcome of a comparison in local register i0.
func compare(fn func(f *frame) bool) executor {
	return func(_ *VirtualMachine, f *frame) {
		result := fn(f)
		if r, ok := f.register(op.TypeInt, 0); ok {
			r.SetInt(boolInt(result))
		}
	}
}

func compareInt(fn func(a, b int64) bool) executor {
	return compare(func(f *frame) bool { return fn(f.args[0].Int(), f.args[1].Int()) })
}

func compareReal(fn func(a, b float64) bool) executor {
	return compare(func(f *frame) bool { return fn(f.args[0].Real(), f.args[1].Real()) })
}

func execDivI(_ *VirtualMachine, f *frame) {
	d := f.args[1].Int()
	if d == 0 {
		f.fail(errz.ErrRuntime, "integer division by zero")
		return
	}
	f.args[0].SetInt(f.args[0].Int() / d)
}

func execRemI(_ *VirtualMachine, f *frame) {
	d := f.args[1].Int()
	if d == 0 {
		f.fail(errz.ErrRuntime, "integer remainder by zero")
		return
	}
	f.args[0].SetInt(f.args[0].Int() % d)
}

func execPowI(_ *VirtualMachine, f *frame) {
	base, exp := f.args[0].Int(), f.args[1].Int()
	if exp < 0 {
		f.fail(errz.ErrRuntime, "negative integer exponent %d", exp)
		return
	}
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	f.args[0].SetInt(result)
}

func execShift(fn func(a int64, n uint64) int64) executor {
	return func(_ *VirtualMachine, f *frame) {
		n := f.args[1].Int()
		if n < 0 {
			f.fail(errz.ErrRuntime, "negative shift count %d", n)
			return
		}
		f.args[0].SetInt(fn(f.args[0].Int(), uint64(n)))
	}
}

// execRefO assigns a counted reference: the source gains a reference and
// the previous target of the destination loses one.
func execRefO(vm *VirtualMachine, f *frame) {
	src := f.args[1].Obj()
	old := f.args[0].Obj()
	vm.heap.Retain(src)
	f.args[0].SetObj(src)
	if err := vm.heap.Release(old); err != nil {
		f.failWith(err)
	}
}

// setResult stores a new reference in local register o0, releasing the
// previous one.
func (vm *VirtualMachine) setResult(f *frame, p object.Ptr) {
	r, ok := f.register(op.TypeObj, 0)
	if !ok {
		_ = vm.heap.Release(p)
		return
	}
	old := r.Obj()
	r.SetObj(p)
	if err := vm.heap.Release(old); err != nil {
		f.failWith(err)
	}
}

func (vm *VirtualMachine) checkAlloc(f *frame, size int64, id object.AllocID) bool {
	if size < 0 {
		f.fail(errz.ErrRuntime, "negative allocation size %d", size)
		return false
	}
	if id == object.NoAllocID {
		return true
	}
	d, ok := vm.registry.Lookup(id)
	if !ok {
		f.fail(errz.ErrRuntime, "unknown allocation ID %d", id)
		return false
	}
	if size < int64(d.Size) {
		f.fail(errz.ErrRuntime, "allocation of %d bytes too small for %s (%d bytes)",
			size, vm.registry.Name(id), d.Size)
		return false
	}
	return true
}

func execMalloc(vm *VirtualMachine, f *frame) {
	size, id := f.args[0].Int(), object.AllocID(f.args[1].Int())
	if !vm.checkAlloc(f, size, id) {
		return
	}
	vm.setResult(f, vm.heap.Alloc(int(size), id))
}

// execCreate allocates and constructs an object. When construction fails
// the partially built object is neither finalized nor freed.
func execCreate(vm *VirtualMachine, f *frame) {
	size, id := f.args[0].Int(), object.AllocID(f.args[1].Int())
	if !vm.checkAlloc(f, size, id) {
		return
	}
	p := vm.heap.Alloc(int(size), id)
	if err := vm.heap.Construct(p, id); err != nil {
		f.failWith(err)
		return
	}
	vm.setResult(f, p)
}

func execMUnln(vm *VirtualMachine, f *frame) {
	target := f.args[0].Obj()
	f.args[0].SetObj(object.Null)
	if err := vm.heap.Release(target); err != nil {
		f.failWith(err)
	}
}

// allocIDArg reads the allocation ID operand of mcopy and reloc from local
// register i0.
func (vm *VirtualMachine) allocIDArg(f *frame) (object.AllocID, bool) {
	r, ok := f.register(op.TypeInt, 0)
	if !ok {
		return object.NoAllocID, false
	}
	id := object.AllocID(r.Int())
	if id != object.NoAllocID {
		if _, found := vm.registry.Lookup(id); !found {
			f.fail(errz.ErrRuntime, "unknown allocation ID %d", id)
			return object.NoAllocID, false
		}
	}
	return id, true
}

func execMCopy(vm *VirtualMachine, f *frame) {
	id, ok := vm.allocIDArg(f)
	if !ok {
		return
	}
	dst, src := f.args[0].Obj(), f.args[1].Obj()
	if dst.IsNull() || src.IsNull() {
		f.fail(errz.ErrRuntime, "mcopy with a null object")
		return
	}
	if err := vm.heap.Copy(dst, src, id); err != nil {
		f.failWith(err)
	}
}

func execReloc(vm *VirtualMachine, f *frame) {
	id, ok := vm.allocIDArg(f)
	if !ok {
		return
	}
	dst, src := f.args[0].Obj(), f.args[1].Obj()
	if dst.IsNull() || src.IsNull() {
		f.fail(errz.ErrRuntime, "reloc with a null object")
		return
	}
	moved := src
	if err := vm.heap.Relocate(dst, &moved, id); err != nil {
		f.failWith(err)
		return
	}
	if moved.IsNull() {
		f.args[1].SetObj(object.Null)
		if err := vm.heap.Release(src); err != nil {
			f.failWith(err)
		}
	}
}

// execLea stores the address of its second operand in the first. The
// stored pointer is detached: it does not keep the object alive.
func execLea(vm *VirtualMachine, f *frame) {
	if f.ins.Args[1].Kind == op.ArgImm {
		f.fail(errz.ErrRuntime, "lea of an immediate")
		return
	}
	old := f.args[0].Obj()
	f.args[0].SetObj(f.args[1].Detach())
	if err := vm.heap.Release(old); err != nil {
		f.failWith(err)
	}
}
