package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/boxlang/boxvm/object"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/vm"
)

// installNatives installs the output procedures available to programs.
// print.c, print.i, print.r and print.p write global register 0 of their
// category; newline ends the line.
func installNatives(machine *vm.VirtualMachine, w io.Writer) {
	for _, t := range []op.Type{op.TypeChar, op.TypeInt, op.TypeReal, op.TypePoint} {
		machine.InstallNative("print."+t.String(), printer(w, t))
	}
	machine.InstallNative("newline", func(*vm.Call) error {
		_, err := fmt.Fprintln(w)
		return err
	})
}

func printer(w io.Writer, t op.Type) vm.NativeFunc {
	return func(c *vm.Call) error {
		p, err := c.VM().Global(t, 0)
		if err != nil {
			return err
		}
		s, _ := formatValue(t, p, false)
		_, err = io.WriteString(w, s)
		return err
	}
}

// formatValue renders the value of category t stored at p. Quoted chars
// are written as Go literals. It also reports whether the value is non-zero.
func formatValue(t op.Type, p object.Ptr, quoted bool) (string, bool) {
	switch t {
	case op.TypeChar:
		c := p.Char()
		if quoted {
			return strconv.QuoteRune(rune(c)), c != 0
		}
		return string(rune(c)), c != 0
	case op.TypeInt:
		v := p.Int()
		return strconv.FormatInt(v, 10), v != 0
	case op.TypeReal:
		v := p.Real()
		return strconv.FormatFloat(v, 'g', -1, 64), v != 0
	case op.TypePoint:
		v := p.Point()
		return fmt.Sprintf("(%s, %s)", strconv.FormatFloat(v.X, 'g', -1, 64),
			strconv.FormatFloat(v.Y, 'g', -1, 64)), v.X != 0 || v.Y != 0
	}
	return "", false
}
