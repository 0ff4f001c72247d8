package bytecode

import (
	"errors"
	"fmt"
	"math"

	"github.com/boxlang/boxvm/op"
)

// Instruction word layout.
//
// Short form, one word:
//
//	bit 0       format (0)
//	bits 1-3    length in words (always 1)
//	bits 4-7    argument kinds, two bits per operand
//	bits 8-15   opcode
//	bits 16-23  first operand, signed
//	bits 24-31  second operand, signed
//
// Long form:
//
//	word 0      format (1) | argument kinds << 4
//	word 1      opcode
//	word 2      total length in words
//	words 3...  operands, one word each except for real (2) and point (4)
//	            immediates
const (
	formatLong      = 1
	longHeaderWords = 3

	// MinShort and MaxShort bound the operand values the short form holds.
	MinShort = math.MinInt8
	MaxShort = math.MaxInt8
)

var (
	// ErrUnknownOpcode is returned when decoding an opcode with no entry in
	// the opcode table.
	ErrUnknownOpcode = errors.New("unknown opcode")

	// ErrTruncated is returned when an instruction extends past the end of
	// the code.
	ErrTruncated = errors.New("truncated instruction")
)

// Operand is a decoded instruction operand: a register index, a pointer
// offset or an immediate value, depending on Kind.
type Operand struct {
	Kind  op.ArgKind
	Type  op.Type
	Index int32     // register index or pointer offset
	Imm   [4]uint32 // raw immediate words
}

// Int returns the operand as an integer: the immediate value for
// immediates, the index or offset otherwise.
func (o Operand) Int() int64 {
	if o.Kind == op.ArgImm {
		return int64(int32(o.Imm[0]))
	}
	return int64(o.Index)
}

// Char returns a char immediate.
func (o Operand) Char() byte {
	return byte(o.Imm[0])
}

// Real returns a real immediate.
func (o Operand) Real() float64 {
	return math.Float64frombits(uint64(o.Imm[0]) | uint64(o.Imm[1])<<32)
}

// Point returns a point immediate.
func (o Operand) Point() (x, y float64) {
	x = math.Float64frombits(uint64(o.Imm[0]) | uint64(o.Imm[1])<<32)
	y = math.Float64frombits(uint64(o.Imm[2]) | uint64(o.Imm[3])<<32)
	return x, y
}

// Instruction is a decoded instruction.
type Instruction struct {
	Op   op.Code
	Pos  int // word position in the code
	Len  int // length in words
	Long bool
	Args [2]Operand
}

// Info returns the opcode table entry of the instruction.
func (i Instruction) Info() op.Info {
	return op.GetInfo(i.Op)
}

// immWords returns how many words a long-form immediate of type t takes.
func immWords(t op.Type) int {
	switch t {
	case op.TypeReal:
		return 2
	case op.TypePoint:
		return 4
	default:
		return 1
	}
}

// argWords returns how many words a long-form operand takes.
func argWords(kind op.ArgKind, t op.Type) int {
	if kind == op.ArgImm {
		return immWords(t)
	}
	return 1
}

func putReal(dst []uint32, f float64) {
	bits := math.Float64bits(f)
	dst[0] = uint32(bits)
	dst[1] = uint32(bits >> 32)
}

// Decode decodes the instruction starting at word pos. It branches on the
// format bit before interpreting anything else.
func Decode(code *Code, pos int) (Instruction, error) {
	words := code.raw()
	if pos < 0 || pos >= len(words) {
		return Instruction{}, fmt.Errorf("%w at word %d", ErrTruncated, pos)
	}
	head := words[pos]
	if head&formatLong == 0 {
		return decodeShort(head, pos)
	}
	return decodeLong(words, pos)
}

func decodeShort(w uint32, pos int) (Instruction, error) {
	opcode := op.Code(w >> 8)
	info := op.GetInfo(opcode)
	if !info.Valid() {
		return Instruction{}, fmt.Errorf("%w %d at word %d", ErrUnknownOpcode, opcode, pos)
	}
	ins := Instruction{
		Op:  opcode,
		Pos: pos,
		Len: int((w >> 1) & 0x7),
	}
	if ins.Len != 1 {
		return Instruction{}, fmt.Errorf("%w at word %d", ErrTruncated, pos)
	}
	kinds := (w >> 4) & 0xf
	values := [2]int32{int32(int8(w >> 16)), int32(int8(w >> 24))}
	for i := 0; i < info.Arity; i++ {
		arg := Operand{
			Kind: op.ArgKind((kinds >> (2 * i)) & 0x3),
			Type: info.Types[i],
		}
		v := values[i]
		if arg.Kind != op.ArgImm {
			arg.Index = v
		} else if arg.Type == op.TypeReal {
			putReal(arg.Imm[:], float64(v))
		} else {
			arg.Imm[0] = uint32(v)
		}
		ins.Args[i] = arg
	}
	return ins, nil
}

func decodeLong(words []uint32, pos int) (Instruction, error) {
	if pos+longHeaderWords > len(words) {
		return Instruction{}, fmt.Errorf("%w at word %d", ErrTruncated, pos)
	}
	opcode := op.Code(words[pos+1])
	info := op.GetInfo(opcode)
	if words[pos+1] > 0xff || !info.Valid() {
		return Instruction{}, fmt.Errorf("%w %d at word %d", ErrUnknownOpcode, words[pos+1], pos)
	}
	ins := Instruction{
		Op:   opcode,
		Pos:  pos,
		Len:  int(words[pos+2]),
		Long: true,
	}
	if pos+ins.Len > len(words) || ins.Len < longHeaderWords {
		return Instruction{}, fmt.Errorf("%w at word %d", ErrTruncated, pos)
	}
	kinds := (words[pos] >> 4) & 0xf
	at := pos + longHeaderWords
	for i := 0; i < info.Arity; i++ {
		arg := Operand{
			Kind: op.ArgKind((kinds >> (2 * i)) & 0x3),
			Type: info.Types[i],
		}
		n := argWords(arg.Kind, arg.Type)
		if at+n > pos+ins.Len {
			return Instruction{}, fmt.Errorf("%w at word %d", ErrTruncated, pos)
		}
		if arg.Kind == op.ArgImm {
			copy(arg.Imm[:n], words[at:at+n])
		} else {
			arg.Index = int32(words[at])
		}
		ins.Args[i] = arg
		at += n
	}
	return ins, nil
}

// ArgWord returns the word position of operand i of the long-form
// instruction at pos. The linker uses it to patch placeholder operands.
func ArgWord(code *Code, pos, i int) (int, error) {
	ins, err := Decode(code, pos)
	if err != nil {
		return 0, err
	}
	if !ins.Long {
		return 0, fmt.Errorf("instruction at word %d is not in long form", pos)
	}
	if i < 0 || i >= ins.Info().Arity {
		return 0, fmt.Errorf("instruction %s has no operand %d", ins.Op, i)
	}
	at := pos + longHeaderWords
	for j := 0; j < i; j++ {
		at += argWords(ins.Args[j].Kind, ins.Args[j].Type)
	}
	return at, nil
}
