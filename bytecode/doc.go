// Package bytecode holds the instruction encoding of the Box virtual
// machine.
//
// Code is a growable buffer of 32-bit words. Each instruction is encoded in
// one of two forms: the short form packs the opcode and up to two small
// operands into a single word, while the long form spends a header of three
// words and one or more words per operand. The Assembler picks the short
// form whenever the operands fit and the long form otherwise; EmitLong
// forces it for operands that are patched after emission.
//
// # Key Types
//
//   - [Code]: a named buffer of instruction words
//   - [Assembler]: appends encoded instructions to a Code
//   - [Instruction]: one decoded instruction, as returned by [Decode]
//
// Decode and Disassemble turn words back into instructions; Print writes a
// listing in the text assembly syntax.
package bytecode
