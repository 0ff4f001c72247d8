package vm

import (
	"errors"
	"strings"
	"testing"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
	"github.com/stretchr/testify/require"
)

// proc assembles one procedure on a sheet of a test machine.
type proc struct {
	t     *testing.T
	vm    *VirtualMachine
	sheet SheetID
	asm   *bytecode.Assembler
}

func newProc(t *testing.T, vm *VirtualMachine, name string) *proc {
	t.Helper()
	sheet := vm.NewSheet(name)
	asm, err := vm.Assembler(sheet)
	require.Nil(t, err)
	return &proc{t: t, vm: vm, sheet: sheet, asm: asm}
}

func (p *proc) emit(opc op.Code, args ...bytecode.Arg) *proc {
	p.t.Helper()
	_, err := p.asm.Emit(opc, args...)
	require.Nil(p.t, err)
	return p
}

func (p *proc) emitLong(opc op.Code, args ...bytecode.Arg) *proc {
	p.t.Helper()
	_, err := p.asm.EmitLong(opc, args...)
	require.Nil(p.t, err)
	return p
}

func (p *proc) install() op.CallNum {
	p.t.Helper()
	num, err := p.vm.InstallSheet(p.sheet)
	require.Nil(p.t, err)
	return num
}

func globalInt(t *testing.T, vm *VirtualMachine, index int) int64 {
	t.Helper()
	p, err := vm.Global(op.TypeInt, index)
	require.Nil(t, err)
	return p.Int()
}

func globalReal(t *testing.T, vm *VirtualMachine, index int) float64 {
	t.Helper()
	p, err := vm.Global(op.TypeReal, index)
	require.Nil(t, err)
	return p.Real()
}

func requireKind(t *testing.T, err error, kind errz.ErrorKind) *errz.StructuredError {
	t.Helper()
	require.NotNil(t, err)
	var se *errz.StructuredError
	require.True(t, errors.As(err, &se), "expected a structured error, got %T: %v", err, err)
	require.Equal(t, kind, se.Kind, se.Error())
	return se
}

func TestNew(t *testing.T) {
	vm := New()
	require.NotEqual(t, "", vm.ID().String())
	require.Contains(t, vm.String(), vm.ID().String())

	_, err := vm.Global(op.TypeObj, ParentReg)
	require.Nil(t, err)
	_, err = vm.Global(op.TypeObj, ChildReg)
	require.Nil(t, err)
	_, err = vm.Global(op.TypeInt, -DefaultGlobalVars)
	require.Nil(t, err)
	_, err = vm.Global(op.TypeInt, DefaultGlobalRegs+1)
	require.NotNil(t, err)
	require.Nil(t, vm.Close())
}

func TestObjGlobalsKeepParentAndChild(t *testing.T) {
	vm := New(WithGlobalRegisters(op.TypeObj, 0, 0), WithGlobalRegisters(op.TypeInt, 2, 1))
	_, err := vm.Global(op.TypeObj, ChildReg)
	require.Nil(t, err)
	_, err = vm.Global(op.TypeInt, -2)
	require.Nil(t, err)
	_, err = vm.Global(op.TypeInt, 2)
	require.NotNil(t, err)
}

func TestLocalRegisterLifecycle(t *testing.T) {
	vm := New()
	g, err := vm.Global(op.TypeInt, 1)
	require.Nil(t, err)
	g.SetInt(42)

	f := newFrame(1, &procedure{name: "locals", code: bytecode.NewCode("locals")})
	f.allocateLocals(op.TypeInt, 2, 3)

	v, ok := f.register(op.TypeInt, -2)
	require.True(t, ok)
	v.SetInt(5)
	r, ok := f.register(op.TypeInt, 3)
	require.True(t, ok)
	r.SetInt(6)
	require.False(t, f.failed)

	_, ok = f.register(op.TypeInt, 4)
	require.False(t, ok)
	require.True(t, f.failed)
	require.True(t, f.exit)
	requireKind(t, f.err, errz.ErrBounds)

	require.Nil(t, f.teardown(vm.heap))
	require.False(t, f.local[op.TypeInt].allocated)
	require.Equal(t, int64(42), g.Int())
}

func TestRegisterBounds(t *testing.T) {
	for typ := op.Type(0); typ < op.NumTypes; typ++ {
		f := newFrame(1, &procedure{name: "bounds", code: bytecode.NewCode("bounds")})
		_, ok := f.local[typ].addr(0)
		require.False(t, ok, "unallocated %s file", typ.Name())

		f.allocateLocals(typ, 3, 4)
		for i := -3; i <= 4; i++ {
			_, ok := f.local[typ].addr(i)
			require.True(t, ok, "%s register %d", typ.Name(), i)
		}
		for _, i := range []int{-4, 5, 100, -100} {
			_, ok := f.local[typ].addr(i)
			require.False(t, ok, "%s register %d", typ.Name(), i)
		}
	}
}

func TestBoundsFailureInBytecode(t *testing.T) {
	vm := New()
	num := newProc(t, vm, "oob").
		emit(op.NewI, bytecode.Imm(2), bytecode.Imm(3)).
		emit(op.MovI, bytecode.LReg(-2), bytecode.Imm(1)).
		emit(op.MovI, bytecode.LReg(3), bytecode.Imm(2)).
		emit(op.MovI, bytecode.LReg(4), bytecode.Imm(3)).
		install()

	se := requireKind(t, vm.Run(num), errz.ErrBounds)
	require.Len(t, se.Stack, 1)
	require.Equal(t, "oob", se.Stack[0].Procedure)
	require.Equal(t, 12, se.Stack[0].Offset)
	require.Equal(t, 0, vm.heap.Live())
}

func TestDoubleAllocationIsFatal(t *testing.T) {
	vm := New()
	num := newProc(t, vm, "twice").
		emit(op.NewI, bytecode.Imm(0), bytecode.Imm(1)).
		emit(op.NewI, bytecode.Imm(0), bytecode.Imm(1)).
		install()
	require.PanicsWithError(t, "fatal error: double allocation of Int registers", func() {
		_ = vm.Run(num)
	})
}

func TestNegativeRegisterCountIsFatal(t *testing.T) {
	vm := New()
	num := newProc(t, vm, "negative").
		emit(op.NewR, bytecode.Imm(-1), bytecode.Imm(0)).
		install()
	require.Panics(t, func() { _ = vm.Run(num) })
}

func TestUnknownOpcodeIsFatal(t *testing.T) {
	vm := New()
	p := newProc(t, vm, "garbage").emit(op.Nop)
	code, err := vm.Sheet(p.sheet)
	require.Nil(t, err)
	// Short form with opcode 255.
	require.Nil(t, code.SetWord(0, 1<<1|255<<8))
	num := p.install()
	require.Panics(t, func() { _ = vm.Run(num) })
}

func TestImplicitReturn(t *testing.T) {
	vm := New()
	num := newProc(t, vm, "fallthrough").
		emit(op.MovI, bytecode.GReg(1), bytecode.Imm(3)).
		install()
	require.Nil(t, vm.Run(num))
	require.Equal(t, int64(3), globalInt(t, vm, 1))
}

func TestRetStopsExecution(t *testing.T) {
	vm := New()
	num := newProc(t, vm, "early").
		emit(op.MovI, bytecode.GReg(1), bytecode.Imm(1)).
		emit(op.Ret).
		emit(op.MovI, bytecode.GReg(1), bytecode.Imm(2)).
		install()
	require.Nil(t, vm.Run(num))
	require.Equal(t, int64(1), globalInt(t, vm, 1))
}

func TestShortAndLongFormsResolveAlike(t *testing.T) {
	vm := New()
	code := bytecode.NewCode("forms")
	asm := bytecode.NewAssembler(code)
	_, err := asm.Emit(op.AddI, bytecode.LReg(1), bytecode.LReg(2))
	require.Nil(t, err)
	_, err = asm.EmitLong(op.AddI, bytecode.LReg(1), bytecode.LReg(2))
	require.Nil(t, err)

	f := newFrame(1, &procedure{name: "forms", code: code})
	f.allocateLocals(op.TypeInt, 0, 2)

	short, err := bytecode.Decode(code, 0)
	require.Nil(t, err)
	require.False(t, short.Long)
	f.ins = short
	require.True(t, vm.getArgs(f))
	shortArgs := f.args

	long, err := bytecode.Decode(code, short.Len)
	require.Nil(t, err)
	require.True(t, long.Long)
	f.ins = long
	require.True(t, vm.getArgs(f))

	require.True(t, shortArgs[0].SameLocation(f.args[0]))
	require.True(t, shortArgs[1].SameLocation(f.args[1]))
}

func TestLongFormRegisterIndex(t *testing.T) {
	vm := New()
	num := newProc(t, vm, "wide").
		emit(op.NewI, bytecode.Imm(0), bytecode.Imm(200)).
		emit(op.MovI, bytecode.LReg(1), bytecode.Imm(7)).
		emit(op.MovI, bytecode.LReg(200), bytecode.Imm(1000)).
		emit(op.AddI, bytecode.LReg(1), bytecode.LReg(200)).
		emitLong(op.AddI, bytecode.LReg(1), bytecode.LReg(200)).
		emit(op.MovI, bytecode.GReg(1), bytecode.LReg(1)).
		install()
	require.Nil(t, vm.Run(num))
	require.Equal(t, int64(2007), globalInt(t, vm, 1))
}

func TestParentAndChildRestoredAfterCall(t *testing.T) {
	vm := New()
	heap := vm.Heap()
	a := heap.Alloc(8, object.NoAllocID)
	b := heap.Alloc(8, object.NoAllocID)

	g3, err := vm.Global(op.TypeObj, 3)
	require.Nil(t, err)
	heap.Retain(b)
	g3.SetObj(b)

	callee := newProc(t, vm, "callee").
		emit(op.RefO, bytecode.GReg(ParentReg), bytecode.GReg(3)).
		emit(op.NullO, bytecode.GReg(ChildReg)).
		install()

	var seen object.Ptr
	recorder := vm.InstallNative("recorder", func(c *Call) error {
		seen = c.Parent()
		return nil
	})

	main := newProc(t, vm, "main").
		emit(op.Call, bytecode.Imm(int64(callee))).
		emit(op.Call, bytecode.Imm(int64(recorder))).
		install()

	require.Nil(t, vm.RunWith(main, a, object.Null))
	require.True(t, seen.SameLocation(a))
	require.Equal(t, 1, heap.Refs(a))
	require.Equal(t, 2, heap.Refs(b))

	parent, err := vm.Global(op.TypeObj, ParentReg)
	require.Nil(t, err)
	require.True(t, parent.Obj().IsNull())

	require.Nil(t, heap.Release(a))
	require.Nil(t, heap.Release(b))
	require.Nil(t, vm.Close())
	require.Equal(t, 0, heap.Live())
}

func TestFailureBacktrace(t *testing.T) {
	vm := New()
	inner := newProc(t, vm, "inner").
		emit(op.Line, bytecode.Imm(7)).
		emit(op.Nop).
		emit(op.Fail).
		install()
	outer := newProc(t, vm, "outer").
		emit(op.Line, bytecode.Imm(3)).
		emit(op.Call, bytecode.Imm(int64(inner))).
		install()

	se := requireKind(t, vm.Run(outer), errz.ErrRuntime)
	require.Equal(t, "failure", se.Message)
	require.Equal(t, []errz.StackFrame{
		{CallNum: uint32(inner), Procedure: "inner", Offset: 8, Line: 7},
		{CallNum: uint32(outer), Procedure: "outer", Offset: 4, Line: 3},
	}, se.Stack)

	msg := se.FriendlyErrorMessage()
	require.Contains(t, msg, "failure")
	require.Less(t, strings.Index(msg, "at outer"), strings.Index(msg, "at inner"))
}

func TestFailUsesFailMsg(t *testing.T) {
	vm := New()
	ink := vm.InstallNative("ink", func(c *Call) error {
		c.SetFailMsg("out of ink")
		return nil
	})
	num := newProc(t, vm, "f").
		emit(op.Call, bytecode.Imm(int64(ink))).
		emit(op.Fail).
		install()
	se := requireKind(t, vm.Run(num), errz.ErrRuntime)
	require.Equal(t, "out of ink", se.Message)
	vm.ClearFailMsg()
	require.Equal(t, "", vm.FailMsg())
}

func TestFailMsgClearedBetweenRuns(t *testing.T) {
	vm := New()
	explode := vm.InstallNative("explode", func(c *Call) error {
		return errors.New("explode failed")
	})
	require.NotNil(t, vm.Run(explode))
	require.Equal(t, "explode failed", vm.FailMsg())

	num := newProc(t, vm, "f").emit(op.Fail).install()
	se := requireKind(t, vm.Run(num), errz.ErrRuntime)
	require.Equal(t, "failure", se.Message)

	vm.SetFailMsg("stale")
	parent := vm.Heap().Alloc(object.IntSize, object.NoAllocID)
	se = requireKind(t, vm.RunWith(num, parent, object.Null), errz.ErrRuntime)
	require.Equal(t, "failure", se.Message)
	require.Nil(t, vm.Heap().Release(parent))
}

func TestNativeFailure(t *testing.T) {
	vm := New()
	explode := vm.InstallNative("explode", func(c *Call) error {
		c.SetFailMsg("kaboom")
		return errors.New("explode failed")
	})
	plain := vm.InstallNative("plain", func(c *Call) error {
		return errors.New("plain failed")
	})

	err := vm.Run(explode)
	se := requireKind(t, err, errz.ErrRuntime)
	require.Equal(t, "explode failed", se.Message)
	require.Equal(t, "kaboom", vm.FailMsg())
	require.Equal(t, "explode", se.Stack[0].Procedure)

	vm.ClearFailMsg()
	caller := newProc(t, vm, "caller").emit(op.Call, bytecode.Imm(int64(plain))).install()
	se = requireKind(t, vm.Run(caller), errz.ErrRuntime)
	require.Equal(t, "plain failed", vm.FailMsg())
	require.Len(t, se.Stack, 2)
	require.Equal(t, "plain", se.Stack[0].Procedure)
	require.Equal(t, "caller", se.Stack[1].Procedure)
}

func TestUnknownProcedure(t *testing.T) {
	vm := New()
	require.ErrorIs(t, vm.Run(99), ErrUnknownProcedure)

	num := newProc(t, vm, "bad").emit(op.Call, bytecode.Imm(99)).install()
	err := vm.Run(num)
	require.ErrorIs(t, err, ErrUnknownProcedure)
	se := requireKind(t, err, errz.ErrRuntime)
	require.Len(t, se.Stack, 1)
}

func TestMaxDepth(t *testing.T) {
	vm := New(WithMaxDepth(10))
	p := newProc(t, vm, "forever")
	sym := vm.NewProcSymbol("forever")
	require.Nil(t, vm.EmitCall(p.sheet, sym))
	num := p.install()
	require.Nil(t, vm.DefineProcSymbol(sym, num))
	require.Nil(t, vm.Link())

	se := requireKind(t, vm.Run(num), errz.ErrRuntime)
	require.Contains(t, se.Message, "maximum call depth (10)")
	require.Len(t, se.Stack, 10)
	require.Equal(t, 0, vm.depth)
}

func TestInstallAndLookup(t *testing.T) {
	vm := New()
	num := vm.InstallNative("noop", func(*Call) error { return nil })
	found, ok := vm.Lookup("noop")
	require.True(t, ok)
	require.Equal(t, num, found)
	require.Equal(t, "noop", vm.ProcName(num))
	_, ok = vm.ProcCode(num)
	require.False(t, ok)

	code := bytecode.NewCode("body")
	num = vm.InstallCode("body", code)
	got, ok := vm.ProcCode(num)
	require.True(t, ok)
	require.Same(t, code, got)

	_, ok = vm.Lookup("missing")
	require.False(t, ok)
}

func TestNativeArguments(t *testing.T) {
	vm := New()
	double := vm.InstallNative("double", func(c *Call) error {
		r, err := c.ChildReal()
		if err != nil {
			return err
		}
		return c.SetParentInt(int64(r * 2))
	})
	parent := vm.Heap().Alloc(object.IntSize, object.NoAllocID)
	child := vm.Heap().Alloc(object.RealSize, object.NoAllocID)
	child.SetReal(2.5)

	require.Nil(t, vm.RunWith(double, parent, child))
	require.Equal(t, int64(5), parent.Int())

	err := vm.RunWith(double, parent, object.Null)
	requireKind(t, err, errz.ErrBounds)
}

func TestSheets(t *testing.T) {
	vm := New()
	a := vm.NewSheet("a")
	b := vm.NewSheet("b")
	require.NotEqual(t, a, b)

	num, err := vm.InstallSheet(a)
	require.Nil(t, err)
	again, err := vm.InstallSheet(a)
	require.Nil(t, err)
	require.Equal(t, num, again)

	require.Nil(t, vm.RemoveSheet(a))
	requireKind(t, vm.RemoveSheet(a), errz.ErrDoubleRelease)
	_, err = vm.Assembler(a)
	require.NotNil(t, err)

	// The installed code outlives the sheet, and the slot is reused.
	_, ok := vm.ProcCode(num)
	require.True(t, ok)
	require.Equal(t, a, vm.NewSheet("c"))
	requireKind(t, vm.RemoveSheet(0), errz.ErrDoubleRelease)
}

func TestRemoveSheetWithUnresolvedReferences(t *testing.T) {
	vm := New()
	a := vm.NewSheet("a")
	callee := vm.NewProcSymbol("callee")
	require.Nil(t, vm.EmitCall(a, callee))

	err := vm.RemoveSheet(a)
	requireKind(t, err, errz.ErrLink)
	require.ErrorIs(t, err, ErrSheetInUse)
	_, err = vm.Sheet(a)
	require.Nil(t, err)

	require.Nil(t, vm.DefineProcSymbol(callee, 7))
	require.Nil(t, vm.Link())
	require.Nil(t, vm.RemoveSheet(a))
}

func TestReusedSheetIsNotPatched(t *testing.T) {
	vm := New()
	a := vm.NewSheet("a")
	label := vm.NewLabel()
	require.Nil(t, vm.PlaceLabel(label, a))
	require.Nil(t, vm.RemoveSheet(a))

	// b takes the slot of a but is a different sheet.
	b := vm.NewSheet("b")
	require.Equal(t, a, b)
	err := vm.EmitJump(b, op.Jmp, label)
	require.ErrorIs(t, err, errCrossSheetJump)
}

func TestForceResolvedReferencesReleaseTheSheet(t *testing.T) {
	vm := New()
	a := vm.NewSheet("a")
	callee := vm.NewProcSymbol("callee")
	require.Nil(t, vm.EmitCall(a, callee))
	require.NotNil(t, vm.RemoveSheet(a))

	require.Nil(t, vm.Symbols().ForceResolve(callee))
	require.Nil(t, vm.RemoveSheet(a))
}
