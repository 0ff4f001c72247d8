// Package object implements the memory model of the Box virtual machine:
// memory regions and pointers into them, the reference-counting heap, and
// the registry of object descriptors.
package object

import (
	"encoding/binary"
	"math"
)

// Slot sizes of the register categories, in bytes.
const (
	CharSize  = 1
	IntSize   = 8
	RealSize  = 8
	PointSize = 16
	PtrSize   = 8
)

// Point is a 2D point, the value of the Point register category.
type Point struct {
	X, Y float64
}

// Add returns p+q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p-q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p*f.
func (p Point) Scale(f float64) Point { return Point{p.X * f, p.Y * f} }

// Memory is a region of raw bytes. Managed pointers stored in the region
// live in a shadow table keyed by byte offset, so that raw copies of a
// region carry its pointers along.
type Memory struct {
	data []byte
	ptrs map[int]Ptr
}

// NewMemory returns a zeroed region of size bytes.
func NewMemory(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Len returns the size of the region in bytes.
func (m *Memory) Len() int {
	return len(m.data)
}

func (m *Memory) reset() {
	m.data = nil
	m.ptrs = nil
}

// Ptr points at a location inside a Memory region. When the region is a
// heap block, block is the owning block and the pointer participates in
// reference counting. A pointer with no block is detached: it aliases memory
// the heap does not own (a register file, a sub-object of another block) and
// is never linked or unlinked.
type Ptr struct {
	mem   *Memory
	off   int
	block *Block
}

// Null is the null pointer.
var Null Ptr

// Addr returns a detached pointer to offset off of m.
func Addr(m *Memory, off int) Ptr {
	return Ptr{mem: m, off: off}
}

// IsNull reports whether the pointer points nowhere.
func (p Ptr) IsNull() bool { return p.mem == nil }

// Detached reports whether the pointer has no owning block.
func (p Ptr) Detached() bool { return p.block == nil }

// Block returns the owning block, or nil for detached pointers.
func (p Ptr) Block() *Block { return p.block }

// Offset returns the byte offset of the pointer inside its region.
func (p Ptr) Offset() int { return p.off }

// Add returns the pointer moved by n bytes, keeping its owner.
func (p Ptr) Add(n int) Ptr {
	if p.mem == nil {
		return p
	}
	p.off += n
	return p
}

// Detach returns a pointer to the same location without an owner.
func (p Ptr) Detach() Ptr {
	p.block = nil
	return p
}

// SameLocation reports whether p and q address the same bytes.
func (p Ptr) SameLocation(q Ptr) bool {
	return p.mem == q.mem && p.off == q.off
}

// Equal reports whether p and q are the same pointer value.
func (p Ptr) Equal(q Ptr) bool {
	return p.SameLocation(q) && p.block == q.block
}

// Valid reports whether n bytes can be accessed at p.
func (p Ptr) Valid(n int) bool {
	return p.mem != nil && p.off >= 0 && p.off+n <= len(p.mem.data)
}

// Remaining returns how many bytes of the region follow p.
func (p Ptr) Remaining() int {
	if p.mem == nil {
		return 0
	}
	return len(p.mem.data) - p.off
}

// Char reads a char at p.
func (p Ptr) Char() byte { return p.mem.data[p.off] }

// SetChar writes a char at p.
func (p Ptr) SetChar(v byte) { p.mem.data[p.off] = v }

// Int reads an int at p.
func (p Ptr) Int() int64 {
	return int64(binary.LittleEndian.Uint64(p.mem.data[p.off:]))
}

// SetInt writes an int at p.
func (p Ptr) SetInt(v int64) {
	binary.LittleEndian.PutUint64(p.mem.data[p.off:], uint64(v))
}

// Real reads a real at p.
func (p Ptr) Real() float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(p.mem.data[p.off:]))
}

// SetReal writes a real at p.
func (p Ptr) SetReal(v float64) {
	binary.LittleEndian.PutUint64(p.mem.data[p.off:], math.Float64bits(v))
}

// Point reads a point at p.
func (p Ptr) Point() Point {
	return Point{X: p.Real(), Y: p.Add(RealSize).Real()}
}

// SetPoint writes a point at p.
func (p Ptr) SetPoint(v Point) {
	p.SetReal(v.X)
	p.Add(RealSize).SetReal(v.Y)
}

// Obj reads the pointer stored at p.
func (p Ptr) Obj() Ptr {
	return p.mem.ptrs[p.off]
}

// SetObj stores a pointer at p. No reference counting happens here.
func (p Ptr) SetObj(v Ptr) {
	if v.IsNull() {
		delete(p.mem.ptrs, p.off)
		return
	}
	if p.mem.ptrs == nil {
		p.mem.ptrs = map[int]Ptr{}
	}
	p.mem.ptrs[p.off] = v
}

// CopyMemory copies n raw bytes, and the pointers stored among them, from
// src to dst. Overlapping ranges are handled.
func CopyMemory(dst, src Ptr, n int) {
	if n <= 0 {
		return
	}
	copy(dst.mem.data[dst.off:dst.off+n], src.mem.data[src.off:src.off+n])
	if len(dst.mem.ptrs) == 0 && len(src.mem.ptrs) == 0 {
		return
	}
	moved := map[int]Ptr{}
	for off, v := range src.mem.ptrs {
		if off >= src.off && off < src.off+n {
			moved[off-src.off+dst.off] = v
		}
	}
	for off := range dst.mem.ptrs {
		if off >= dst.off && off < dst.off+n {
			delete(dst.mem.ptrs, off)
		}
	}
	for off, v := range moved {
		Addr(dst.mem, off).SetObj(v)
	}
}

// ZeroMemory clears n bytes at p, dropping any pointers stored there.
func ZeroMemory(p Ptr, n int) {
	clear(p.mem.data[p.off : p.off+n])
	for off := range p.mem.ptrs {
		if off >= p.off && off < p.off+n {
			delete(p.mem.ptrs, off)
		}
	}
}
