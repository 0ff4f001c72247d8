package object

import (
	"encoding/binary"

	"github.com/boxlang/boxvm/op"
)

// AllocID identifies an object descriptor in a Registry. NoAllocID marks
// simple objects which need no special handling.
type AllocID uint32

// NoAllocID is the allocation ID of simple objects.
const NoAllocID AllocID = 0

// Method is one of the special methods an object descriptor can carry.
type Method int

const (
	MethodInit Method = iota
	MethodFinish
	MethodCopy
	MethodMove

	// NumMethods is the number of special methods.
	NumMethods = 4
)

func (m Method) String() string {
	switch m {
	case MethodInit:
		return "init"
	case MethodFinish:
		return "finish"
	case MethodCopy:
		return "copy"
	case MethodMove:
		return "move"
	default:
		return "unknown"
	}
}

// SubObject is a member of an object that needs its own management: the
// descriptor it follows and where it sits inside the enclosing object.
type SubObject struct {
	ID     AllocID
	Offset int
}

// Descriptor describes how to initialize, finalize, copy and move objects
// of one memory layout.
type Descriptor struct {
	Size       int
	Methods    [NumMethods]op.CallNum
	SubObjects []SubObject
}

// Has reports whether the descriptor provides the given special method.
func (d *Descriptor) Has(m Method) bool {
	return d.Methods[m] != op.NoCall
}

// IsEmpty reports whether the descriptor has neither special methods nor
// sub-objects. Empty descriptors are never installed.
func (d *Descriptor) IsEmpty() bool {
	for _, call := range d.Methods {
		if call != op.NoCall {
			return false
		}
	}
	return len(d.SubObjects) == 0
}

// image returns the byte image identifying the descriptor: two descriptors
// with equal images are interchangeable.
func (d *Descriptor) image() []byte {
	b := make([]byte, 0, 8+4*NumMethods+4+12*len(d.SubObjects))
	b = binary.LittleEndian.AppendUint64(b, uint64(d.Size))
	for _, call := range d.Methods {
		b = binary.LittleEndian.AppendUint32(b, uint32(call))
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(d.SubObjects)))
	for _, sub := range d.SubObjects {
		b = binary.LittleEndian.AppendUint32(b, uint32(sub.ID))
		b = binary.LittleEndian.AppendUint64(b, uint64(sub.Offset))
	}
	return b
}
