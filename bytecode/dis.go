package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/boxlang/boxvm/op"
)

// Disassemble decodes every instruction of the code, in order.
func Disassemble(code *Code) ([]Instruction, error) {
	var result []Instruction
	for pos := 0; pos < code.Len(); {
		ins, err := Decode(code, pos)
		if err != nil {
			return nil, err
		}
		result = append(result, ins)
		pos += ins.Len
	}
	return result, nil
}

// Print writes a listing of the instructions to w.
func Print(instructions []Instruction, w io.Writer) {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, ins := range instructions {
		form := "s"
		if ins.Long {
			form = "l"
		}
		fmt.Fprintf(tw, "%04d\t%s\t%s\t%s\n", ins.Pos, form, ins.Op, ins.operands())
	}
	tw.Flush()
}

// String renders the instruction in the text assembly syntax.
func (i Instruction) String() string {
	if ops := i.operands(); ops != "" {
		return i.Op.String() + " " + ops
	}
	return i.Op.String()
}

func (i Instruction) operands() string {
	info := i.Info()
	parts := make([]string, 0, info.Arity)
	for n := 0; n < info.Arity; n++ {
		parts = append(parts, i.Args[n].String())
	}
	return strings.Join(parts, ", ")
}

// String renders the operand in the text assembly syntax: gi1 / gvi1 for
// global registers and variables, ri1 / vi1 for local ones, i[8] for
// pointer-indirect operands, and literals for immediates.
func (o Operand) String() string {
	letter := o.Type.String()
	switch o.Kind {
	case op.ArgGlobal:
		if o.Index < 0 {
			return fmt.Sprintf("gv%s%d", letter, -o.Index)
		}
		return fmt.Sprintf("g%s%d", letter, o.Index)
	case op.ArgLocal:
		if o.Index < 0 {
			return fmt.Sprintf("v%s%d", letter, -o.Index)
		}
		return fmt.Sprintf("r%s%d", letter, o.Index)
	case op.ArgPtr:
		return fmt.Sprintf("%s[%d]", letter, o.Index)
	}
	switch o.Type {
	case op.TypeReal:
		return formatReal(o.Real())
	case op.TypePoint:
		x, y := o.Point()
		return fmt.Sprintf("(%s, %s)", formatReal(x), formatReal(y))
	case op.TypeChar:
		return strconv.QuoteRune(rune(o.Char()))
	}
	return strconv.FormatInt(o.Int(), 10)
}

func formatReal(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnI") {
		s += ".0"
	}
	return s
}
