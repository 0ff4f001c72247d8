package asmtext

import (
	"context"
	"errors"
	"testing"

	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/vm"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, machine *vm.VirtualMachine, input string, options ...LoadOption) map[string]op.CallNum {
	t.Helper()
	prog, err := Parse(context.Background(), input)
	require.Nil(t, err)
	nums, err := Load(machine, prog, options...)
	require.Nil(t, err)
	return nums
}

func loadError(t *testing.T, input string) *Error {
	t.Helper()
	prog, err := Parse(context.Background(), input, WithFilename("bad.box"))
	require.Nil(t, err)
	_, err = Load(vm.New(), prog)
	require.NotNil(t, err)
	var aerr *Error
	require.True(t, errors.As(err, &aerr), "expected *Error, got %T: %v", err, err)
	require.Equal(t, AssemblyError, aerr.Kind)
	return aerr
}

func globalInt(t *testing.T, machine *vm.VirtualMachine, index int) int64 {
	t.Helper()
	p, err := machine.Global(op.TypeInt, index)
	require.Nil(t, err)
	return p.Int()
}

func TestLoadAndRun(t *testing.T) {
	machine := vm.New()
	nums := load(t, machine, `
proc main
    new.i 0, 1
    mov.i ri1, 10
loop:
    add.i gi1, ri1
    dec.i ri1
    gt.i ri1, 0
    jc loop
    call helper
end

proc helper
    mul.i gi1, 2
end
`)
	require.Len(t, nums, 2)
	require.Nil(t, machine.Run(nums["main"]))
	require.Equal(t, int64(110), globalInt(t, machine, 1))

	num, ok := machine.Lookup("helper")
	require.True(t, ok)
	require.Equal(t, nums["helper"], num)
}

func TestLoadForwardJump(t *testing.T) {
	machine := vm.New()
	nums := load(t, machine, `
proc main
    jmp skip
    mov.i gi1, 1
skip:
    mov.i gi2, 2
end
`)
	require.Nil(t, machine.Run(nums["main"]))
	require.Equal(t, int64(0), globalInt(t, machine, 1))
	require.Equal(t, int64(2), globalInt(t, machine, 2))
}

func TestLoadCallsNative(t *testing.T) {
	machine := vm.New()
	machine.InstallNative("bump", func(c *vm.Call) error {
		g, err := c.VM().Global(op.TypeInt, 1)
		if err != nil {
			return err
		}
		g.SetInt(g.Int() + 5)
		return nil
	})
	nums := load(t, machine, "proc main\n  call bump\n  call bump\nend\n")
	require.Nil(t, machine.Run(nums["main"]))
	require.Equal(t, int64(10), globalInt(t, machine, 1))
}

func TestLoadLiterals(t *testing.T) {
	machine := vm.New()
	nums := load(t, machine, `
proc main
    mov.r gr1, 3
    add.r gr1, 0.25
    mov.c gc1, 'q'
    mov.i gi1, 'A'
    mov.p gp1, (1.5, -2)
end
`)
	require.Nil(t, machine.Run(nums["main"]))
	r, err := machine.Global(op.TypeReal, 1)
	require.Nil(t, err)
	require.Equal(t, 3.25, r.Real())
	c, err := machine.Global(op.TypeChar, 1)
	require.Nil(t, err)
	require.Equal(t, byte('q'), c.Char())
	require.Equal(t, int64(65), globalInt(t, machine, 1))
	p, err := machine.Global(op.TypePoint, 1)
	require.Nil(t, err)
	require.Equal(t, 1.5, p.Point().X)
	require.Equal(t, -2.0, p.Point().Y)
}

func TestLoadWithLineNumbers(t *testing.T) {
	machine := vm.New()
	nums := load(t, machine, "proc main\n  mov.i gi1, 1\n  fail\nend\n", WithLineNumbers())
	err := machine.Run(nums["main"])
	var se *errz.StructuredError
	require.True(t, errors.As(err, &se))
	require.Len(t, se.Stack, 1)
	require.Equal(t, "main", se.Stack[0].Procedure)
	require.Equal(t, 3, se.Stack[0].Line)
}

func TestLoadUnresolvedCall(t *testing.T) {
	prog, err := Parse(context.Background(), "proc main\n  call draw\nend\n")
	require.Nil(t, err)
	_, err = Load(vm.New(), prog)
	require.NotNil(t, err)
	var le *errz.LinkError
	require.True(t, errors.As(err, &le), "expected a link error, got %T: %v", err, err)
	require.Equal(t, "draw", le.Symbol)
	require.Equal(t, "main+0", le.Site)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"proc p\n  mov.i gr1, 1\nend", "bad.box:2:3: assembly error: mov.i operand 1 must be of category Int, not Real"},
		{"proc p\n  mov.i gi1, 1.5\nend", "bad.box:2:3: assembly error: mov.i operand 2: real literal for a Int operand"},
		{"proc p\n  mov.p gp1, 1\nend", "bad.box:2:3: assembly error: mov.p operand 2 needs a point literal"},
		{"proc p\n  mov.r gr1, (1, 2)\nend", "bad.box:2:3: assembly error: mov.r operand 2: point literal for a Real operand"},
		{"proc p\n  mov.i gi1, somewhere\nend", "bad.box:2:3: assembly error: mov.i operand 2: unexpected name somewhere"},
		{"proc p\n  jmp nowhere\nend", "bad.box:1:1: assembly error: label nowhere is never placed in proc p"},
		{"proc p\na:\na:\nend", "bad.box:3:1: assembly error: label a placed twice"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			require.Equal(t, tt.expected, loadError(t, tt.input).Error())
		})
	}
}
