package object

import (
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/op"
	"github.com/rs/zerolog"
)

// MethodCaller invokes the procedure installed under a call number with the
// given parent (the object being managed) and child (the source object for
// copy and move, Null otherwise).
type MethodCaller interface {
	CallMethod(call op.CallNum, parent, child Ptr) error
}

// Block is a reference-counted heap object: a head holding the allocation
// ID and reference count, followed by the data region.
type Block struct {
	Memory
	id     AllocID
	refs   int
	serial uint64
	freed  bool
}

// AllocID returns the allocation ID the block was allocated with.
func (b *Block) AllocID() AllocID { return b.id }

// Refs returns the reference count of the block.
func (b *Block) Refs() int { return b.refs }

// Freed reports whether the block has been deallocated.
func (b *Block) Freed() bool { return b.freed }

// Heap allocates reference-counted objects and drives their construction,
// destruction and copying according to the descriptors of a Registry.
type Heap struct {
	registry *Registry
	caller   MethodCaller
	log      zerolog.Logger
	live     int
	serial   uint64
	dying    []*Block
	draining bool
}

// NewHeap creates a heap. Special methods are invoked through caller.
func NewHeap(registry *Registry, caller MethodCaller, log zerolog.Logger) *Heap {
	return &Heap{registry: registry, caller: caller, log: log}
}

// Registry returns the descriptor registry used by the heap.
func (h *Heap) Registry() *Registry {
	return h.registry
}

// Live returns the number of blocks allocated and not yet freed.
func (h *Heap) Live() int {
	return h.live
}

func (h *Heap) descriptor(id AllocID) *Descriptor {
	d, ok := h.registry.Lookup(id)
	if !ok {
		errz.Fatalf("unknown allocation ID %d", id)
	}
	return d
}

// Alloc allocates a zeroed block of size bytes with reference count 1. The
// object is not constructed.
func (h *Heap) Alloc(size int, id AllocID) Ptr {
	if size < 0 {
		errz.Fatalf("negative allocation size %d", size)
	}
	h.serial++
	h.live++
	b := &Block{
		Memory: Memory{data: make([]byte, size)},
		id:     id,
		refs:   1,
		serial: h.serial,
	}
	h.log.Trace().Uint64("block", b.serial).Int("size", size).
		Uint32("alloc_id", uint32(id)).Msg("alloc")
	return Ptr{mem: &b.Memory, block: b}
}

// Create allocates and constructs an object of the given descriptor.
func (h *Heap) Create(id AllocID) (Ptr, error) {
	size := 0
	if id != NoAllocID {
		size = h.descriptor(id).Size
	}
	p := h.Alloc(size, id)
	if err := h.Construct(p, id); err != nil {
		return Null, err
	}
	return p, nil
}

// Construct initializes the object at p: every sub-object first, in
// declaration order, then the object itself. A failure is returned as is:
// the sub-objects constructed so far are not finalized.
func (h *Heap) Construct(p Ptr, id AllocID) error {
	if id == NoAllocID {
		return nil
	}
	d := h.descriptor(id)
	for _, sub := range d.SubObjects {
		if err := h.Construct(p.Add(sub.Offset).Detach(), sub.ID); err != nil {
			return err
		}
	}
	if d.Has(MethodInit) {
		return h.caller.CallMethod(d.Methods[MethodInit], p.Detach(), Null)
	}
	return nil
}

// Finalize destroys the object at p: the object itself first, then every
// sub-object in declaration order.
func (h *Heap) Finalize(p Ptr, id AllocID) error {
	if id == NoAllocID {
		return nil
	}
	d := h.descriptor(id)
	if d.Has(MethodFinish) {
		if err := h.caller.CallMethod(d.Methods[MethodFinish], p.Detach(), Null); err != nil {
			return err
		}
	}
	for _, sub := range d.SubObjects {
		if err := h.Finalize(p.Add(sub.Offset).Detach(), sub.ID); err != nil {
			return err
		}
	}
	return nil
}

// Retain adds a reference to the block p points into. Null and detached
// pointers are ignored.
func (h *Heap) Retain(p Ptr) {
	if p.block == nil {
		return
	}
	if p.block.freed {
		errz.Fatalf("retain of freed block %d", p.block.serial)
	}
	p.block.refs++
}

// Release drops a reference to the block p points into. When the count
// reaches zero the object is finalized and the block freed. Null and
// detached pointers are ignored; releasing a freed block is an error of
// kind ErrDoubleRelease.
//
// Blocks whose count reaches zero while another block is being finalized
// are queued and freed by the outermost Release before it returns, so a
// long chain of objects never nests special method calls.
func (h *Heap) Release(p Ptr) error {
	b := p.block
	if b == nil {
		return nil
	}
	if b.freed || b.refs <= 0 {
		return errz.NewStructuredErrorf(errz.ErrDoubleRelease, nil,
			"block %d released after being freed", b.serial)
	}
	b.refs--
	if b.refs > 0 {
		return nil
	}
	h.dying = append(h.dying, b)
	if h.draining {
		return nil
	}
	h.draining = true
	defer func() {
		clear(h.dying)
		h.dying = h.dying[:0]
		h.draining = false
	}()

	var first error
	for i := 0; i < len(h.dying); i++ {
		if err := h.free(h.dying[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *Heap) free(b *Block) error {
	err := h.Finalize(Addr(&b.Memory, 0), b.id)
	b.freed = true
	b.reset()
	h.live--
	h.log.Trace().Uint64("block", b.serial).Msg("free")
	return err
}

// Refs returns the reference count of the block p points into, or 0 for
// detached pointers.
func (h *Heap) Refs(p Ptr) int {
	if p.block == nil {
		return 0
	}
	return p.block.refs
}

// Copy copies the object at src over the object at dst. If the descriptor
// has a copier it does the whole job. Otherwise each sub-object is copied
// recursively and the plain bytes between sub-objects are copied raw.
func (h *Heap) Copy(dst, src Ptr, id AllocID) error {
	if id == NoAllocID {
		n := min(src.Remaining(), dst.Remaining())
		CopyMemory(dst, src, n)
		return nil
	}
	d := h.descriptor(id)
	if d.Has(MethodCopy) {
		return h.caller.CallMethod(d.Methods[MethodCopy], dst.Detach(), src.Detach())
	}
	cursor := 0
	for _, sub := range d.SubObjects {
		if sub.Offset > cursor {
			CopyMemory(dst.Add(cursor), src.Add(cursor), sub.Offset-cursor)
		}
		sd := h.descriptor(sub.ID)
		err := h.Copy(dst.Add(sub.Offset).Detach(), src.Add(sub.Offset).Detach(), sub.ID)
		if err != nil {
			return err
		}
		cursor = max(cursor, sub.Offset+sd.Size)
	}
	if d.Size > cursor {
		CopyMemory(dst.Add(cursor), src.Add(cursor), d.Size-cursor)
	}
	return nil
}

// Relocate moves the object at *src to dst. Relocating an object onto
// itself only clears *src. Any other relocation is a full structural copy;
// the caller still owns *src afterwards.
func (h *Heap) Relocate(dst Ptr, src *Ptr, id AllocID) error {
	if dst.SameLocation(*src) {
		*src = Null
		return nil
	}
	return h.Copy(dst, *src, id)
}
