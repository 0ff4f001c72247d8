// Package op defines opcodes and operand conventions shared by the Box
// assembler and virtual machine.
package op

// Code is an integer opcode that indicates an operation to execute. Opcodes
// fit in 8 bits so that they can be stored in the short instruction form.
type Code uint8

const (
	Invalid Code = 0

	// Execution
	Nop  Code = 1
	Line Code = 2
	Call Code = 3
	Ret  Code = 4
	Fail Code = 5
	Jmp  Code = 6
	Jc   Code = 7

	// Register allocation
	NewC Code = 10
	NewI Code = 11
	NewR Code = 12
	NewP Code = 13
	NewO Code = 14

	// Moves
	MovC  Code = 20
	MovI  Code = 21
	MovR  Code = 22
	MovP  Code = 23
	MovO  Code = 24
	RefO  Code = 25
	NullO Code = 26

	// Integer arithmetic
	AddI  Code = 30
	SubI  Code = 31
	MulI  Code = 32
	DivI  Code = 33
	RemI  Code = 34
	NegI  Code = 35
	PowI  Code = 36
	IncI  Code = 37
	DecI  Code = 38
	ShlI  Code = 39
	ShrI  Code = 40
	BAndI Code = 41
	BOrI  Code = 42
	BXorI Code = 43
	BNotI Code = 44
	LNotI Code = 45
	LAndI Code = 46
	LOrI  Code = 47

	// Real arithmetic
	AddR Code = 50
	SubR Code = 51
	MulR Code = 52
	DivR Code = 53
	NegR Code = 54
	PowR Code = 55

	// Point arithmetic
	AddP Code = 60
	SubP Code = 61
	NegP Code = 62
	MulP Code = 63
	DivP Code = 64

	// Comparisons, result stored in i0
	EqI Code = 70
	NeI Code = 71
	LtI Code = 72
	LeI Code = 73
	GtI Code = 74
	GeI Code = 75
	EqR Code = 76
	NeR Code = 77
	LtR Code = 78
	LeR Code = 79
	GtR Code = 80
	GeR Code = 81
	EqC Code = 82
	NeC Code = 83
	EqP Code = 84
	NeP Code = 85
	EqO Code = 86
	NeO Code = 87

	// Conversions, result stored in register zero of the target category
	Real  Code = 90
	Int   Code = 91
	CToI  Code = 92
	IToC  Code = 93
	Point Code = 94
	ProjX Code = 95
	ProjY Code = 96

	// Objects
	Malloc Code = 100
	Create Code = 101
	MLn    Code = 102
	MUnln  Code = 103
	MCopy  Code = 104
	Reloc  Code = 105
	Lea    Code = 106
	ShiftO Code = 107
)

// Type is a register category. Every operand has one.
type Type uint8

const (
	TypeChar Type = iota
	TypeInt
	TypeReal
	TypePoint
	TypeObj

	// NumTypes is the number of register categories.
	NumTypes = 5

	// TypeNone marks an operand slot that an instruction does not use.
	TypeNone Type = 0xff
)

// String returns the one-letter register suffix for the category, as used
// in mnemonics and register names ("i" for Int, "o" for Obj...).
func (t Type) String() string {
	switch t {
	case TypeChar:
		return "c"
	case TypeInt:
		return "i"
	case TypeReal:
		return "r"
	case TypePoint:
		return "p"
	case TypeObj:
		return "o"
	default:
		return "?"
	}
}

// Name returns the long name of the category.
func (t Type) Name() string {
	switch t {
	case TypeChar:
		return "Char"
	case TypeInt:
		return "Int"
	case TypeReal:
		return "Real"
	case TypePoint:
		return "Point"
	case TypeObj:
		return "Obj"
	default:
		return "None"
	}
}

// TypeFromLetter returns the category for a register suffix letter.
func TypeFromLetter(c byte) (Type, bool) {
	switch c {
	case 'c':
		return TypeChar, true
	case 'i':
		return TypeInt, true
	case 'r':
		return TypeReal, true
	case 'p':
		return TypePoint, true
	case 'o':
		return TypeObj, true
	}
	return TypeNone, false
}

// ArgKind is the addressing kind of an operand: the GLPI kinds.
type ArgKind uint8

const (
	// ArgGlobal addresses a global register or variable.
	ArgGlobal ArgKind = 0
	// ArgLocal addresses a register or variable of the current frame.
	ArgLocal ArgKind = 1
	// ArgPtr addresses memory at an offset from local pointer register o0.
	ArgPtr ArgKind = 2
	// ArgImm is an immediate value stored in the instruction itself.
	ArgImm ArgKind = 3
)

func (k ArgKind) String() string {
	switch k {
	case ArgGlobal:
		return "global"
	case ArgLocal:
		return "local"
	case ArgPtr:
		return "ptr"
	case ArgImm:
		return "imm"
	default:
		return "unknown"
	}
}

// Getter identifies how the operands of an instruction are resolved into
// addresses before execution.
type Getter uint8

const (
	// GetNone is used by instructions without operands.
	GetNone Getter = iota
	// GetImm is used by instructions whose operands are all immediates.
	GetImm
	// GetOne resolves a single GLPI operand.
	GetOne
	// GetOneImm resolves a GLPI operand followed by an immediate.
	GetOneImm
	// GetTwo resolves two GLPI operands.
	GetTwo
)

// CallNum identifies an installed procedure. NoCall means "no procedure".
type CallNum uint32

// NoCall is the call number used where no procedure is installed.
const NoCall CallNum = 0

// Info contains information about an opcode.
type Info struct {
	Code   Code
	Name   string
	Arity  int
	Types  [2]Type
	Getter Getter
}

// Valid reports whether the opcode is known.
func (i Info) Valid() bool {
	return i.Name != ""
}

var (
	infos  = make([]Info, 256)
	byName = map[string]Code{}
)

func init() {
	type opInfo struct {
		op     Code
		name   string
		getter Getter
		types  []Type
	}
	c, i, r, p, o := TypeChar, TypeInt, TypeReal, TypePoint, TypeObj
	ops := []opInfo{
		{Nop, "nop", GetNone, nil},
		{Line, "line", GetImm, []Type{i}},
		{Call, "call", GetOne, []Type{i}},
		{Ret, "ret", GetNone, nil},
		{Fail, "fail", GetNone, nil},
		{Jmp, "jmp", GetImm, []Type{i}},
		{Jc, "jc", GetImm, []Type{i}},

		{NewC, "new.c", GetImm, []Type{i, i}},
		{NewI, "new.i", GetImm, []Type{i, i}},
		{NewR, "new.r", GetImm, []Type{i, i}},
		{NewP, "new.p", GetImm, []Type{i, i}},
		{NewO, "new.o", GetImm, []Type{i, i}},

		{MovC, "mov.c", GetTwo, []Type{c, c}},
		{MovI, "mov.i", GetTwo, []Type{i, i}},
		{MovR, "mov.r", GetTwo, []Type{r, r}},
		{MovP, "mov.p", GetTwo, []Type{p, p}},
		{MovO, "mov.o", GetTwo, []Type{o, o}},
		{RefO, "ref.o", GetTwo, []Type{o, o}},
		{NullO, "null.o", GetOne, []Type{o}},

		{AddI, "add.i", GetTwo, []Type{i, i}},
		{SubI, "sub.i", GetTwo, []Type{i, i}},
		{MulI, "mul.i", GetTwo, []Type{i, i}},
		{DivI, "div.i", GetTwo, []Type{i, i}},
		{RemI, "rem.i", GetTwo, []Type{i, i}},
		{NegI, "neg.i", GetOne, []Type{i}},
		{PowI, "pow.i", GetTwo, []Type{i, i}},
		{IncI, "inc.i", GetOne, []Type{i}},
		{DecI, "dec.i", GetOne, []Type{i}},
		{ShlI, "shl.i", GetTwo, []Type{i, i}},
		{ShrI, "shr.i", GetTwo, []Type{i, i}},
		{BAndI, "band.i", GetTwo, []Type{i, i}},
		{BOrI, "bor.i", GetTwo, []Type{i, i}},
		{BXorI, "bxor.i", GetTwo, []Type{i, i}},
		{BNotI, "bnot.i", GetOne, []Type{i}},
		{LNotI, "lnot.i", GetOne, []Type{i}},
		{LAndI, "land.i", GetTwo, []Type{i, i}},
		{LOrI, "lor.i", GetTwo, []Type{i, i}},

		{AddR, "add.r", GetTwo, []Type{r, r}},
		{SubR, "sub.r", GetTwo, []Type{r, r}},
		{MulR, "mul.r", GetTwo, []Type{r, r}},
		{DivR, "div.r", GetTwo, []Type{r, r}},
		{NegR, "neg.r", GetOne, []Type{r}},
		{PowR, "pow.r", GetTwo, []Type{r, r}},

		{AddP, "add.p", GetTwo, []Type{p, p}},
		{SubP, "sub.p", GetTwo, []Type{p, p}},
		{NegP, "neg.p", GetOne, []Type{p}},
		{MulP, "mul.p", GetTwo, []Type{p, r}},
		{DivP, "div.p", GetTwo, []Type{p, r}},

		{EqI, "eq.i", GetTwo, []Type{i, i}},
		{NeI, "ne.i", GetTwo, []Type{i, i}},
		{LtI, "lt.i", GetTwo, []Type{i, i}},
		{LeI, "le.i", GetTwo, []Type{i, i}},
		{GtI, "gt.i", GetTwo, []Type{i, i}},
		{GeI, "ge.i", GetTwo, []Type{i, i}},
		{EqR, "eq.r", GetTwo, []Type{r, r}},
		{NeR, "ne.r", GetTwo, []Type{r, r}},
		{LtR, "lt.r", GetTwo, []Type{r, r}},
		{LeR, "le.r", GetTwo, []Type{r, r}},
		{GtR, "gt.r", GetTwo, []Type{r, r}},
		{GeR, "ge.r", GetTwo, []Type{r, r}},
		{EqC, "eq.c", GetTwo, []Type{c, c}},
		{NeC, "ne.c", GetTwo, []Type{c, c}},
		{EqP, "eq.p", GetTwo, []Type{p, p}},
		{NeP, "ne.p", GetTwo, []Type{p, p}},
		{EqO, "eq.o", GetTwo, []Type{o, o}},
		{NeO, "ne.o", GetTwo, []Type{o, o}},

		{Real, "real", GetOne, []Type{i}},
		{Int, "int", GetOne, []Type{r}},
		{CToI, "ctoi", GetOne, []Type{c}},
		{IToC, "itoc", GetOne, []Type{i}},
		{Point, "point", GetTwo, []Type{r, r}},
		{ProjX, "projx", GetOne, []Type{p}},
		{ProjY, "projy", GetOne, []Type{p}},

		{Malloc, "malloc", GetTwo, []Type{i, i}},
		{Create, "create", GetTwo, []Type{i, i}},
		{MLn, "mln", GetOne, []Type{o}},
		{MUnln, "munln", GetOne, []Type{o}},
		{MCopy, "mcopy", GetTwo, []Type{o, o}},
		{Reloc, "reloc", GetTwo, []Type{o, o}},
		{Lea, "lea", GetTwo, []Type{o, i}},
		{ShiftO, "shift.o", GetOneImm, []Type{o, i}},
	}
	for _, o := range ops {
		info := Info{
			Code:   o.op,
			Name:   o.name,
			Arity:  len(o.types),
			Types:  [2]Type{TypeNone, TypeNone},
			Getter: o.getter,
		}
		copy(info.Types[:], o.types)
		infos[o.op] = info
		byName[o.name] = o.op
	}
}

// GetInfo returns information about the given opcode. The returned Info is
// not Valid for unknown opcodes.
func GetInfo(op Code) Info {
	return infos[op]
}

// Lookup returns the opcode with the given mnemonic, e.g. "add.i".
func Lookup(name string) (Code, bool) {
	code, ok := byName[name]
	return code, ok
}

// String returns the mnemonic of the opcode.
func (c Code) String() string {
	if name := infos[c].Name; name != "" {
		return name
	}
	return "invalid"
}
