// Package vm provides a VirtualMachine that executes Box bytecode.
package vm

import (
	"errors"
	"fmt"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/symbol"
	"github.com/boxlang/boxvm/types"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxDepth is the default limit on nested procedure calls.
	DefaultMaxDepth = 1000

	// DefaultGlobalVars and DefaultGlobalRegs size the global register files
	// of every category unless WithGlobalRegisters says otherwise.
	DefaultGlobalVars = 16
	DefaultGlobalRegs = 3

	// ParentReg and ChildReg are the global Obj registers holding the
	// current parent and child objects.
	ParentReg = 1
	ChildReg  = 2
)

var (
	// ErrUnknownProcedure is returned when calling a call number with no
	// installed procedure.
	ErrUnknownProcedure = errors.New("unknown procedure")

	// ErrHalted is returned when an observer stops execution.
	ErrHalted = errors.New("execution halted")
)

// NativeFunc is a procedure implemented in Go.
type NativeFunc func(c *Call) error

type procedure struct {
	name   string
	native NativeFunc
	code   *bytecode.Code
}

type globalSize struct {
	vars, regs int
}

// VirtualMachine executes Box procedures. It owns the type system, the
// symbol table, the descriptor registry and the heap used by the code it
// runs. A VirtualMachine is not safe for concurrent use; independent
// machines share nothing.
type VirtualMachine struct {
	id       uuid.UUID
	log      zerolog.Logger
	types    *types.System
	prims    map[types.PrimaryID]*types.Type
	symbols  *symbol.Table
	registry *object.Registry
	heap     *object.Heap
	procs    []*procedure
	byName   map[string]op.CallNum
	sheets   []*sheet
	sheetSeq uint32
	globals  [op.NumTypes]registers
	sizes    [op.NumTypes]globalSize
	allocIDs map[*types.Type]object.AllocID
	ptrID    object.AllocID
	failMsg  string
	frame    *frame
	depth    int
	maxDepth int
	observer Observer
	obsCfg   ObserverConfig
	steps    int
}

// New creates a virtual machine with its primary types and global
// registers set up.
func New(options ...Option) *VirtualMachine {
	vm := &VirtualMachine{
		id:       uuid.Must(uuid.NewV4()),
		log:      zerolog.Nop(),
		types:    types.NewSystem(),
		prims:    map[types.PrimaryID]*types.Type{},
		registry: object.NewRegistry(),
		procs:    []*procedure{nil},
		byName:   map[string]op.CallNum{},
		allocIDs: map[*types.Type]object.AllocID{},
		maxDepth: DefaultMaxDepth,
	}
	for t := range vm.sizes {
		vm.sizes[t] = globalSize{DefaultGlobalVars, DefaultGlobalRegs}
	}
	for _, opt := range options {
		opt(vm)
	}
	vm.log = vm.log.With().Str("vm", vm.id.String()).Logger()
	vm.symbols = symbol.New(vm.log)
	vm.heap = object.NewHeap(vm.registry, vm, vm.log)

	if s := &vm.sizes[op.TypeObj]; s.regs < ChildReg {
		s.regs = ChildReg
	}
	for t := range vm.globals {
		vm.globals[t].alloc(op.Type(t), vm.sizes[t].vars, vm.sizes[t].regs)
	}
	if vm.observer != nil {
		vm.obsCfg = NormalizeConfig(vm.observer.Config())
	}

	prims := []struct {
		id          types.PrimaryID
		size, align int
	}{
		{types.PrimaryVoid, 0, 1},
		{types.PrimaryChar, object.CharSize, object.CharSize},
		{types.PrimaryInt, object.IntSize, object.IntSize},
		{types.PrimaryReal, object.RealSize, object.RealSize},
		{types.PrimaryPoint, object.PointSize, object.RealSize},
		{types.PrimaryPtr, object.PtrSize, object.PtrSize},
	}
	for _, p := range prims {
		vm.prims[p.id] = vm.types.NewPrimary(p.id, p.size, p.align)
	}
	vm.installPtrMethods()
	vm.log.Debug().Msg("vm created")
	return vm
}

// ID returns the instance id of the machine, as shown in its logs.
func (vm *VirtualMachine) ID() uuid.UUID { return vm.id }

// Logger returns the logger of the machine.
func (vm *VirtualMachine) Logger() zerolog.Logger { return vm.log }

// Types returns the type system of the machine.
func (vm *VirtualMachine) Types() *types.System { return vm.types }

// Primary returns the built-in type with the given id.
func (vm *VirtualMachine) Primary(id types.PrimaryID) *types.Type { return vm.prims[id] }

// Symbols returns the symbol table used for linking.
func (vm *VirtualMachine) Symbols() *symbol.Table { return vm.symbols }

// Registry returns the object descriptor registry.
func (vm *VirtualMachine) Registry() *object.Registry { return vm.registry }

// Heap returns the object allocator.
func (vm *VirtualMachine) Heap() *object.Heap { return vm.heap }

// FailMsg returns the failure message set by the last failing procedure.
func (vm *VirtualMachine) FailMsg() string { return vm.failMsg }

// SetFailMsg sets the failure message.
func (vm *VirtualMachine) SetFailMsg(msg string) { vm.failMsg = msg }

// ClearFailMsg clears the failure message.
func (vm *VirtualMachine) ClearFailMsg() { vm.failMsg = "" }

// Global returns the address of a global register or variable.
func (vm *VirtualMachine) Global(t op.Type, index int) (object.Ptr, error) {
	p, ok := vm.globals[t].addr(index)
	if !ok {
		return object.Null, errz.NewStructuredErrorf(errz.ErrBounds, nil,
			"global %s register %d out of range", t.Name(), index)
	}
	return p, nil
}

func (vm *VirtualMachine) parentSlot() object.Ptr {
	p, _ := vm.globals[op.TypeObj].addr(ParentReg)
	return p
}

func (vm *VirtualMachine) childSlot() object.Ptr {
	p, _ := vm.globals[op.TypeObj].addr(ChildReg)
	return p
}

// Close releases the objects referenced by the global Obj registers.
func (vm *VirtualMachine) Close() error {
	g := &vm.globals[op.TypeObj]
	var targets []object.Ptr
	for i := g.min; i <= g.max; i++ {
		slot, _ := g.addr(i)
		targets = append(targets, slot.Obj())
		slot.SetObj(object.Null)
	}
	return vm.release(targets...)
}

// InstallNative installs a Go procedure and returns its call number.
func (vm *VirtualMachine) InstallNative(name string, fn NativeFunc) op.CallNum {
	return vm.install(&procedure{name: name, native: fn})
}

// InstallCode installs a bytecode procedure and returns its call number.
func (vm *VirtualMachine) InstallCode(name string, code *bytecode.Code) op.CallNum {
	return vm.install(&procedure{name: name, code: code})
}

func (vm *VirtualMachine) install(p *procedure) op.CallNum {
	num := op.CallNum(len(vm.procs))
	vm.procs = append(vm.procs, p)
	if p.name != "" {
		vm.byName[p.name] = num
	}
	kind := "code"
	if p.native != nil {
		kind = "native"
	}
	vm.log.Debug().Str("proc", p.name).Uint32("call", uint32(num)).Str("kind", kind).Msg("procedure installed")
	return num
}

// Lookup returns the call number of the named procedure.
func (vm *VirtualMachine) Lookup(name string) (op.CallNum, bool) {
	num, ok := vm.byName[name]
	return num, ok
}

// ProcName returns the name of an installed procedure.
func (vm *VirtualMachine) ProcName(num op.CallNum) string {
	if int(num) >= len(vm.procs) || vm.procs[num] == nil {
		return ""
	}
	return vm.procs[num].name
}

// ProcCode returns the code of a bytecode procedure.
func (vm *VirtualMachine) ProcCode(num op.CallNum) (*bytecode.Code, bool) {
	if int(num) >= len(vm.procs) || vm.procs[num] == nil || vm.procs[num].code == nil {
		return nil, false
	}
	return vm.procs[num].code, true
}

// RegisterBuiltin installs fn as the procedure applying child at parent,
// making it reachable through combination lookup.
func (vm *VirtualMachine) RegisterBuiltin(parent *types.Type, kind types.CombKind, child *types.Type, name string, fn NativeFunc) (op.CallNum, error) {
	num := vm.InstallNative(name, fn)
	if err := types.DefineCombination(parent, kind, child, num); err != nil {
		return op.NoCall, err
	}
	return num, nil
}

// Run executes procedure num with the current parent and child. A run
// started from outside the machine clears the failure message first.
func (vm *VirtualMachine) Run(num op.CallNum) error {
	if vm.depth == 0 {
		vm.failMsg = ""
	}
	return vm.invoke(num)
}

// RunWith executes procedure num with the given parent and child. The
// previous parent and child are restored afterwards. Like Run, it clears
// the failure message when called from outside the machine.
func (vm *VirtualMachine) RunWith(num op.CallNum, parent, child object.Ptr) error {
	if vm.depth == 0 {
		vm.failMsg = ""
	}
	return vm.runWith(num, parent, child)
}

func (vm *VirtualMachine) runWith(num op.CallNum, parent, child object.Ptr) error {
	parentSlot, childSlot := vm.parentSlot(), vm.childSlot()
	oldParent, oldChild := parentSlot.Obj(), childSlot.Obj()
	vm.heap.Retain(parent)
	vm.heap.Retain(child)
	parentSlot.SetObj(parent)
	childSlot.SetObj(child)

	err := vm.invoke(num)

	leftParent, leftChild := parentSlot.Obj(), childSlot.Obj()
	parentSlot.SetObj(oldParent)
	childSlot.SetObj(oldChild)
	if relErr := vm.release(leftParent, leftChild); relErr != nil && err == nil {
		err = relErr
	}
	return err
}

// release releases every pointer and returns the first failure.
func (vm *VirtualMachine) release(ptrs ...object.Ptr) error {
	var first error
	for _, p := range ptrs {
		if err := vm.heap.Release(p); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CallMethod runs a special method on behalf of the heap.
func (vm *VirtualMachine) CallMethod(num op.CallNum, parent, child object.Ptr) error {
	return vm.runWith(num, parent, child)
}

// invoke runs procedure num. The parent and child registers are retained
// for the duration of the call and restored afterwards, so that whatever
// the callee stores there is released and the caller's view is unchanged.
func (vm *VirtualMachine) invoke(num op.CallNum) error {
	if int(num) >= len(vm.procs) || vm.procs[num] == nil {
		return errz.NewStructuredErrorf(errz.ErrRuntime, nil, "call %d: %s", num, ErrUnknownProcedure).
			WithCause(ErrUnknownProcedure)
	}
	proc := vm.procs[num]
	if vm.depth >= vm.maxDepth {
		return errz.NewStructuredErrorf(errz.ErrRuntime, nil,
			"maximum call depth (%d) exceeded calling %s", vm.maxDepth, proc.name)
	}
	if !vm.onCall(num, proc) {
		return errz.NewStructuredError(errz.ErrRuntime, ErrHalted.Error(), nil).WithCause(ErrHalted)
	}

	parentSlot, childSlot := vm.parentSlot(), vm.childSlot()
	savedParent, savedChild := parentSlot.Obj(), childSlot.Obj()
	vm.heap.Retain(savedParent)
	vm.heap.Retain(savedChild)

	vm.depth++
	vm.log.Trace().Str("proc", proc.name).Uint32("call", uint32(num)).Int("depth", vm.depth).Msg("call")
	var err error
	if proc.native != nil {
		err = vm.runNative(num, proc)
	} else {
		err = vm.runCode(num, proc)
	}
	vm.depth--

	leftParent, leftChild := parentSlot.Obj(), childSlot.Obj()
	parentSlot.SetObj(savedParent)
	childSlot.SetObj(savedChild)
	if relErr := vm.release(leftParent, leftChild); relErr != nil && err == nil {
		err = relErr
	}
	if !vm.onReturn(num, proc) && err == nil {
		err = errz.NewStructuredError(errz.ErrRuntime, ErrHalted.Error(), nil).WithCause(ErrHalted)
	}
	return err
}

func (vm *VirtualMachine) runNative(num op.CallNum, proc *procedure) error {
	err := proc.native(&Call{vm: vm, num: num})
	if err == nil {
		return nil
	}
	if vm.failMsg == "" {
		vm.failMsg = err.Error()
	}
	return withFrame(err, errz.StackFrame{CallNum: uint32(num), Procedure: proc.name})
}

// withFrame records a backtrace entry on the first structured error err
// holds, turning err into one when it has none.
func withFrame(err error, frame errz.StackFrame) error {
	var se *errz.StructuredError
	if !errors.As(err, &se) {
		se = errz.NewStructuredError(errz.ErrRuntime, err.Error(), nil).WithCause(err)
		err = se
	}
	se.Stack = append(se.Stack, frame)
	return err
}

// String returns a short description of the machine.
func (vm *VirtualMachine) String() string {
	return fmt.Sprintf("vm(%s, %d procedures)", vm.id, len(vm.procs)-1)
}
