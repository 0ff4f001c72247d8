package object

import (
	"bytes"

	"github.com/zeebo/xxh3"
)

// Registry holds the object descriptors of one VM, deduplicated so that
// structurally identical descriptors share one allocation ID.
type Registry struct {
	descs  []*Descriptor
	images [][]byte
	names  []string
	byHash map[uint64][]AllocID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byHash: map[uint64][]AllocID{}}
}

// Intern returns the allocation ID of the descriptor. If an identical
// descriptor is already registered its ID is returned together with false,
// and d is left to the caller. Otherwise the registry takes ownership of d,
// assigns it the next ID and returns true. Empty descriptors are not
// installed: they get NoAllocID.
func (r *Registry) Intern(d *Descriptor) (AllocID, bool) {
	if d.IsEmpty() {
		return NoAllocID, false
	}
	img := d.image()
	key := xxh3.Hash(img)
	for _, id := range r.byHash[key] {
		if bytes.Equal(r.images[id-1], img) {
			return id, false
		}
	}
	r.descs = append(r.descs, d)
	r.images = append(r.images, img)
	r.names = append(r.names, "")
	id := AllocID(len(r.descs))
	r.byHash[key] = append(r.byHash[key], id)
	return id, true
}

// Lookup returns the descriptor with the given ID. NoAllocID and unknown IDs
// are not found.
func (r *Registry) Lookup(id AllocID) (*Descriptor, bool) {
	if id == NoAllocID || int(id) > len(r.descs) {
		return nil, false
	}
	return r.descs[id-1], true
}

// SetName associates a debug name with an allocation ID.
func (r *Registry) SetName(id AllocID, name string) {
	if id == NoAllocID || int(id) > len(r.descs) {
		return
	}
	r.names[id-1] = name
}

// Name returns the debug name of an allocation ID.
func (r *Registry) Name(id AllocID) string {
	if id == NoAllocID || int(id) > len(r.descs) {
		return ""
	}
	return r.names[id-1]
}

// Len returns the number of installed descriptors.
func (r *Registry) Len() int {
	return len(r.descs)
}
