package vm

import (
	"errors"
	"testing"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/op"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
)

func callOperand(t *testing.T, vm *VirtualMachine, sheet SheetID, pos int) int64 {
	t.Helper()
	code, err := vm.Sheet(sheet)
	require.Nil(t, err)
	ins, err := bytecode.Decode(code, pos)
	require.Nil(t, err)
	require.Equal(t, op.Call, ins.Op)
	require.True(t, ins.Long)
	return ins.Args[0].Int()
}

func TestForwardCallPatchedOnLink(t *testing.T) {
	vm := New()
	caller := vm.NewSheet("main")
	sym := vm.NewProcSymbol("draw")
	require.Nil(t, vm.EmitCall(caller, sym))
	require.Equal(t, int64(op.NoCall), callOperand(t, vm, caller, 0))

	require.Nil(t, vm.DefineProcSymbol(sym, 7))
	require.Equal(t, int64(0), callOperand(t, vm, caller, 0))

	require.Nil(t, vm.Link())
	require.Equal(t, int64(7), callOperand(t, vm, caller, 0))
}

func TestCallToDefinedSymbolIsPatchedAtOnce(t *testing.T) {
	vm := New()
	sym := vm.NewProcSymbol("ready")
	require.Nil(t, vm.DefineProcSymbol(sym, 12))
	caller := vm.NewSheet("main")
	require.Nil(t, vm.EmitCall(caller, sym))
	require.Equal(t, int64(12), callOperand(t, vm, caller, 0))
}

func TestLinkedProgram(t *testing.T) {
	vm := New()
	sym := vm.NewProcSymbol("setter")

	main := newProc(t, vm, "main")
	require.Nil(t, vm.EmitCall(main.sheet, sym))
	main.emit(op.AddI, bytecode.GReg(1), bytecode.Imm(1))
	mainNum := main.install()

	setter := newProc(t, vm, "setter").
		emit(op.MovI, bytecode.GReg(1), bytecode.Imm(99))
	require.Nil(t, vm.DefineProcSymbol(sym, setter.install()))

	require.Nil(t, vm.Link())
	require.Nil(t, vm.Run(mainNum))
	require.Equal(t, int64(100), globalInt(t, vm, 1))
}

func TestUnresolvedCalls(t *testing.T) {
	vm := New()
	main := vm.NewSheet("main")
	draw := vm.NewProcSymbol("draw")
	paint := vm.NewProcSymbol("paint")
	require.Nil(t, vm.EmitCall(main, draw))
	require.Nil(t, vm.EmitCall(main, paint))

	err := vm.Link()
	require.NotNil(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	require.Len(t, merr.Errors, 2)

	var linkErr *errz.LinkError
	require.True(t, errors.As(merr.Errors[0], &linkErr))
	require.Equal(t, "draw", linkErr.Symbol)
	require.Equal(t, "main+0", linkErr.Site)
	require.True(t, errors.As(merr.Errors[1], &linkErr))
	require.Equal(t, "paint", linkErr.Symbol)
	require.Equal(t, "main+16", linkErr.Site)
}

func TestLabels(t *testing.T) {
	vm := New()
	p := newProc(t, vm, "labels")
	top := vm.NewLabel()
	done := vm.NewLabel()

	// gi1 = 10 + 9 + ... + 1, then skip the poison store.
	p.emit(op.NewI, bytecode.Imm(0), bytecode.Imm(1)).
		emit(op.MovI, bytecode.LReg(1), bytecode.Imm(10))
	require.Nil(t, vm.PlaceLabel(top, p.sheet))
	p.emit(op.AddI, bytecode.GReg(1), bytecode.LReg(1)).
		emit(op.DecI, bytecode.LReg(1)).
		emit(op.GtI, bytecode.LReg(1), bytecode.Imm(0))
	require.Nil(t, vm.EmitJump(p.sheet, op.Jc, top))
	require.Nil(t, vm.EmitJump(p.sheet, op.Jmp, done))
	p.emit(op.MovI, bytecode.GReg(1), bytecode.Imm(-1))
	require.Nil(t, vm.PlaceLabel(done, p.sheet))
	num := p.install()

	require.Nil(t, vm.Link())
	require.Nil(t, vm.Run(num))
	require.Equal(t, int64(55), globalInt(t, vm, 1))
}

func TestPlaceLabelTwice(t *testing.T) {
	vm := New()
	sheet := vm.NewSheet("twice")
	label := vm.NewLabel()
	require.Nil(t, vm.PlaceLabel(label, sheet))
	require.NotNil(t, vm.PlaceLabel(label, sheet))
}

func TestJumpAcrossSheets(t *testing.T) {
	vm := New()
	a := vm.NewSheet("a")
	b := vm.NewSheet("b")
	label := vm.NewLabel()
	require.Nil(t, vm.PlaceLabel(label, a))

	err := vm.EmitJump(b, op.Jmp, label)
	require.ErrorIs(t, err, errCrossSheetJump)
}

func TestEmitJumpRejectsOtherOpcodes(t *testing.T) {
	vm := New()
	sheet := vm.NewSheet("s")
	require.NotNil(t, vm.EmitJump(sheet, op.Call, vm.NewLabel()))
	require.NotNil(t, vm.EmitJump(SheetID(42), op.Jmp, vm.NewLabel()))
}

func TestSiteName(t *testing.T) {
	vm := New()
	sheet := vm.NewSheet("")
	require.Equal(t, "sheet 1+8", vm.siteName(sheet, 2))
	require.Equal(t, "sheet 9+0", vm.siteName(9, 0))

	b := encodeSite(3, 17)
	s, pos := decodeSite(b)
	require.Equal(t, uint32(3), s)
	require.Equal(t, 17, pos)
}
