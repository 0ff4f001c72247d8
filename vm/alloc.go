package vm

import (
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/types"
)

// installPtrMethods installs the finalizer and copier of managed pointer
// slots and interns their descriptor.
func (vm *VirtualMachine) installPtrMethods() {
	finish := vm.InstallNative("Ptr.finish", func(c *Call) error {
		slot := c.Parent()
		target := slot.Obj()
		slot.SetObj(object.Null)
		return c.Heap().Release(target)
	})
	copier := vm.InstallNative("Ptr.copy", func(c *Call) error {
		dst, src := c.Parent(), c.Child()
		value := src.Obj()
		old := dst.Obj()
		c.Heap().Retain(value)
		dst.SetObj(value)
		return c.Heap().Release(old)
	})
	d := &object.Descriptor{Size: object.PtrSize}
	d.Methods[object.MethodFinish] = finish
	d.Methods[object.MethodCopy] = copier
	vm.ptrID, _ = vm.registry.Intern(d)
	vm.registry.SetName(vm.ptrID, "Ptr")
	vm.allocIDs[vm.prims[types.PrimaryPtr]] = vm.ptrID
}

// PtrAllocID returns the allocation ID of a managed pointer slot.
func (vm *VirtualMachine) PtrAllocID() object.AllocID {
	return vm.ptrID
}

var methodKinds = [object.NumMethods]types.CombKind{
	object.MethodInit:   types.CombInit,
	object.MethodFinish: types.CombFinish,
	object.MethodCopy:   types.CombCopy,
	object.MethodMove:   types.CombMove,
}

// AllocIDOf returns the allocation ID of objects of type t, building and
// interning its descriptor on first use. Types that need no special
// handling get object.NoAllocID.
func (vm *VirtualMachine) AllocIDOf(t *types.Type) object.AllocID {
	if id, ok := vm.allocIDs[t]; ok {
		return id
	}
	core := types.Resolve(t, types.ResolveIdent|types.ResolveRaised|types.ResolveSpecies|types.ResolveSubtype, 0)
	if id, ok := vm.allocIDs[core]; ok && core != t && !hasMethods(t) {
		vm.allocIDs[t] = id
		return id
	}

	size, _ := types.SizeAndAlign(t)
	d := &object.Descriptor{Size: size}
	for m, kind := range methodKinds {
		if call, ok := types.FindMethod(t, kind); ok {
			d.Methods[m] = call
		}
	}
	switch core.Kind() {
	case types.KindPointer, types.KindAny:
		d.SubObjects = append(d.SubObjects, object.SubObject{ID: vm.ptrID, Offset: 0})
	case types.KindStructure:
		for _, m := range core.Members() {
			if sub := vm.AllocIDOf(m.Type); sub != object.NoAllocID {
				d.SubObjects = append(d.SubObjects, object.SubObject{ID: sub, Offset: m.Offset})
			}
		}
	}
	if d.IsEmpty() {
		vm.allocIDs[t] = object.NoAllocID
		return object.NoAllocID
	}
	if core.Kind() == types.KindPointer && d.Methods == [object.NumMethods]op.CallNum{} {
		vm.allocIDs[t] = vm.ptrID
		return vm.ptrID
	}
	id, installed := vm.registry.Intern(d)
	if installed {
		vm.registry.SetName(id, types.Repr(t))
		vm.log.Debug().Uint32("alloc_id", uint32(id)).Str("type", types.Repr(t)).Int("size", size).Msg("descriptor installed")
	}
	vm.allocIDs[t] = id
	return id
}

func hasMethods(t *types.Type) bool {
	for _, kind := range methodKinds {
		if _, ok := types.FindMethod(t, kind); ok {
			return true
		}
	}
	return false
}
