package vm

import (
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
)

// slotSize is the size in bytes of one register of each category.
var slotSize = [op.NumTypes]int{
	op.TypeChar:  object.CharSize,
	op.TypeInt:   object.IntSize,
	op.TypeReal:  object.RealSize,
	op.TypePoint: object.PointSize,
	op.TypeObj:   object.PtrSize,
}

// registers is the register file of one category in one scope. Negative
// indices address variables, non-negative ones registers. A file that was
// never allocated rejects every index.
type registers struct {
	mem       *object.Memory
	min, max  int
	size      int
	allocated bool
}

// alloc sizes the file for numVars variables and numRegs registers, plus
// register 0. Every slot starts zeroed, which for Obj means null.
func (r *registers) alloc(t op.Type, numVars, numRegs int) {
	if r.allocated {
		errz.Fatalf("double allocation of %s registers", t.Name())
	}
	if numVars < 0 || numRegs < 0 {
		errz.Fatalf("negative register count for %s: %d variables, %d registers",
			t.Name(), numVars, numRegs)
	}
	r.size = slotSize[t]
	r.min = -numVars
	r.max = numRegs
	r.mem = object.NewMemory((numVars + numRegs + 1) * r.size)
	r.allocated = true
}

// addr returns the address of slot index, or false when the file does not
// hold it.
func (r *registers) addr(index int) (object.Ptr, bool) {
	if !r.allocated || index < r.min || index > r.max {
		return object.Null, false
	}
	return object.Addr(r.mem, (index-r.min)*r.size), true
}

// release drops the references held by an Obj file and frees its storage.
// Every slot is released even when some releases fail; the first failure is
// returned.
func (r *registers) release(heap *object.Heap, t op.Type) error {
	if !r.allocated {
		return nil
	}
	var first error
	if t == op.TypeObj {
		for i := r.min; i <= r.max; i++ {
			slot, _ := r.addr(i)
			target := slot.Obj()
			slot.SetObj(object.Null)
			if err := heap.Release(target); err != nil && first == nil {
				first = err
			}
		}
	}
	*r = registers{}
	return first
}
