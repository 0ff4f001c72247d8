package op

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo(AddI)
	require.Equal(t, "add.i", info.Name)
	require.Equal(t, 2, info.Arity)
	require.Equal(t, AddI, info.Code)
	require.Equal(t, GetTwo, info.Getter)
	require.Equal(t, [2]Type{TypeInt, TypeInt}, info.Types)
}

func TestGetInfoAllOpcodes(t *testing.T) {
	tests := []struct {
		code   Code
		name   string
		arity  int
		getter Getter
	}{
		{Nop, "nop", 0, GetNone},
		{Line, "line", 1, GetImm},
		{Call, "call", 1, GetOne},
		{Ret, "ret", 0, GetNone},
		{Jmp, "jmp", 1, GetImm},
		{Jc, "jc", 1, GetImm},
		{NewI, "new.i", 2, GetImm},
		{NewO, "new.o", 2, GetImm},
		{MovR, "mov.r", 2, GetTwo},
		{NegR, "neg.r", 1, GetOne},
		{Point, "point", 2, GetTwo},
		{ShiftO, "shift.o", 2, GetOneImm},
		{Malloc, "malloc", 2, GetTwo},
		{MUnln, "munln", 1, GetOne},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := GetInfo(tt.code)
			require.True(t, info.Valid())
			require.Equal(t, tt.name, info.Name)
			require.Equal(t, tt.arity, info.Arity)
			require.Equal(t, tt.getter, info.Getter)
		})
	}
}

func TestInvalidOpcode(t *testing.T) {
	require.False(t, GetInfo(Invalid).Valid())
	require.False(t, GetInfo(Code(255)).Valid())
	require.Equal(t, "invalid", Code(255).String())
}

func TestLookup(t *testing.T) {
	code, ok := Lookup("mul.p")
	require.True(t, ok)
	require.Equal(t, MulP, code)
	require.Equal(t, [2]Type{TypePoint, TypeReal}, GetInfo(code).Types)

	_, ok = Lookup("frobnicate")
	require.False(t, ok)
}

func TestTypeLetters(t *testing.T) {
	for _, typ := range []Type{TypeChar, TypeInt, TypeReal, TypePoint, TypeObj} {
		back, ok := TypeFromLetter(typ.String()[0])
		require.True(t, ok)
		require.Equal(t, typ, back)
	}
	_, ok := TypeFromLetter('x')
	require.False(t, ok)
}
