package bytecode

import "fmt"

// Code is the instruction buffer of one procedure ("sheet"). Instructions
// are appended by an Assembler; already emitted words may be patched in
// place by the linker once forward references are resolved.
type Code struct {
	name  string
	words []uint32
}

// NewCode creates an empty instruction buffer.
func NewCode(name string) *Code {
	return &Code{name: name}
}

// Name returns the name of this code block.
func (c *Code) Name() string {
	return c.name
}

// Len returns the size of the code in words.
func (c *Code) Len() int {
	return len(c.words)
}

// Words returns a copy of the instruction words.
func (c *Code) Words() []uint32 {
	words := make([]uint32, len(c.words))
	copy(words, c.words)
	return words
}

// Word returns the word at position pos.
func (c *Code) Word(pos int) uint32 {
	return c.words[pos]
}

// SetWord overwrites the word at position pos. This is how the linker
// patches placeholder operands.
func (c *Code) SetWord(pos int, w uint32) error {
	if pos < 0 || pos >= len(c.words) {
		return fmt.Errorf("word position %d out of range [0, %d)", pos, len(c.words))
	}
	c.words[pos] = w
	return nil
}

func (c *Code) append(ws ...uint32) int {
	pos := len(c.words)
	c.words = append(c.words, ws...)
	return pos
}

func (c *Code) raw() []uint32 {
	return c.words
}
