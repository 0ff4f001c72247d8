package bytecode

import (
	"fmt"
	"math"

	"github.com/boxlang/boxvm/op"
)

// Arg describes one operand handed to the Assembler.
type Arg struct {
	Kind  op.ArgKind
	Value int64 // register index, pointer offset, or integer immediate
	Real  float64
	X, Y  float64
	float bool
}

// GReg addresses global register i, or global variable -i when i < 0.
func GReg(i int) Arg { return Arg{Kind: op.ArgGlobal, Value: int64(i)} }

// LReg addresses local register i, or local variable -i when i < 0.
func LReg(i int) Arg { return Arg{Kind: op.ArgLocal, Value: int64(i)} }

// PtrAt addresses memory at byte offset off from local pointer register o0.
func PtrAt(off int) Arg { return Arg{Kind: op.ArgPtr, Value: int64(off)} }

// Imm is an integer (or char) immediate.
func Imm(v int64) Arg { return Arg{Kind: op.ArgImm, Value: v} }

// ImmReal is a real immediate.
func ImmReal(f float64) Arg { return Arg{Kind: op.ArgImm, Real: f, float: true} }

// ImmPoint is a point immediate.
func ImmPoint(x, y float64) Arg { return Arg{Kind: op.ArgImm, X: x, Y: y} }

func (a Arg) real() float64 {
	if a.float {
		return a.Real
	}
	return float64(a.Value)
}

// fitsShort reports whether the argument can be stored in one signed byte
// of a short-form instruction.
func (a Arg) fitsShort(t op.Type) bool {
	if a.Kind == op.ArgImm {
		switch t {
		case op.TypePoint:
			return false
		case op.TypeReal:
			f := a.real()
			return f == math.Trunc(f) && f >= MinShort && f <= MaxShort &&
				!(f == 0 && math.Signbit(f))
		}
	}
	return a.Value >= MinShort && a.Value <= MaxShort
}

// Assembler writes instructions into a Code buffer, choosing the shortest
// encoding that can represent the operands.
type Assembler struct {
	code *Code
}

// NewAssembler returns an assembler appending to code.
func NewAssembler(code *Code) *Assembler {
	return &Assembler{code: code}
}

// Code returns the buffer being written.
func (a *Assembler) Code() *Code {
	return a.code
}

// Pos returns the word position the next instruction will be written at.
func (a *Assembler) Pos() int {
	return a.code.Len()
}

// Emit appends an instruction and returns its word position.
func (a *Assembler) Emit(opc op.Code, args ...Arg) (int, error) {
	return a.emit(opc, false, args)
}

// EmitLong appends an instruction in long form regardless of its operand
// values, so that operands can later be patched with arbitrary values.
func (a *Assembler) EmitLong(opc op.Code, args ...Arg) (int, error) {
	return a.emit(opc, true, args)
}

func (a *Assembler) emit(opc op.Code, forceLong bool, args []Arg) (int, error) {
	info := op.GetInfo(opc)
	if !info.Valid() {
		return 0, fmt.Errorf("%w %d", ErrUnknownOpcode, opc)
	}
	if len(args) != info.Arity {
		return 0, fmt.Errorf("%s expects %d operands, got %d", info.Name, info.Arity, len(args))
	}
	var kinds uint32
	short := !forceLong
	for i, arg := range args {
		if err := checkArg(info, i, arg); err != nil {
			return 0, err
		}
		kinds |= uint32(arg.Kind) << (2 * i)
		if !arg.fitsShort(info.Types[i]) {
			short = false
		}
	}
	if short {
		w := uint32(1)<<1 | kinds<<4 | uint32(opc)<<8
		for i, arg := range args {
			v := int8(arg.Value)
			if arg.Kind == op.ArgImm && info.Types[i] == op.TypeReal {
				v = int8(arg.real())
			}
			w |= uint32(uint8(v)) << (16 + 8*i)
		}
		return a.code.append(w), nil
	}

	// Long form: reserve the header, write the operands, then patch the
	// length in.
	pos := a.code.append(formatLong|kinds<<4, uint32(opc), 0)
	for i, arg := range args {
		t := info.Types[i]
		if arg.Kind != op.ArgImm {
			a.code.append(uint32(int32(arg.Value)))
			continue
		}
		var imm [4]uint32
		switch t {
		case op.TypeReal:
			putReal(imm[:2], arg.real())
		case op.TypePoint:
			putReal(imm[:2], arg.X)
			putReal(imm[2:], arg.Y)
		default:
			imm[0] = uint32(int32(arg.Value))
		}
		a.code.append(imm[:immWords(t)]...)
	}
	a.code.words[pos+2] = uint32(a.code.Len() - pos)
	return pos, nil
}

func checkArg(info op.Info, i int, arg Arg) error {
	t := info.Types[i]
	switch {
	case arg.Kind > op.ArgImm:
		return fmt.Errorf("%s operand %d: invalid argument kind %d", info.Name, i, arg.Kind)
	case info.Getter == op.GetImm && arg.Kind != op.ArgImm:
		return fmt.Errorf("%s operand %d must be an immediate", info.Name, i)
	case info.Getter == op.GetOneImm && i == 1 && arg.Kind != op.ArgImm:
		return fmt.Errorf("%s operand %d must be an immediate", info.Name, i)
	case arg.Kind == op.ArgImm && t == op.TypeObj:
		return fmt.Errorf("%s operand %d: Obj operands cannot be immediates", info.Name, i)
	case arg.Kind == op.ArgImm && arg.float && t != op.TypeReal:
		return fmt.Errorf("%s operand %d: real immediate for %s operand", info.Name, i, t.Name())
	case (arg.Kind != op.ArgImm || t == op.TypeInt || t == op.TypeChar) &&
		(arg.Value < math.MinInt32 || arg.Value > math.MaxInt32):
		return fmt.Errorf("%s operand %d: value %d out of range", info.Name, i, arg.Value)
	}
	return nil
}
