package vm

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/symbol"
)

// Blob layouts. A procedure definition is a call number; a label
// definition and every reference are a sheet serial and a word position.
const (
	procDefSize = 4
	siteSize    = 8
)

func encodeSite(serial uint32, pos int) []byte {
	b := make([]byte, siteSize)
	binary.LittleEndian.PutUint32(b, serial)
	binary.LittleEndian.PutUint32(b[4:], uint32(pos))
	return b
}

func decodeSite(b []byte) (uint32, int) {
	return binary.LittleEndian.Uint32(b), int(binary.LittleEndian.Uint32(b[4:]))
}

func (vm *VirtualMachine) siteName(id SheetID, pos int) string {
	name := fmt.Sprintf("sheet %d", id)
	if code, err := vm.Sheet(id); err == nil && code.Name() != "" {
		name = code.Name()
	}
	return fmt.Sprintf("%s+%d", name, pos*4)
}

// patchOperand overwrites the first operand word of the long-form
// instruction at pos of a sheet.
func patchOperand(s *sheet, pos int, value uint32) error {
	at, err := bytecode.ArgWord(s.code, pos, 0)
	if err != nil {
		return err
	}
	return s.code.SetWord(at, value)
}

// addReference records a reference whose site is in sheet s.
func (vm *VirtualMachine) addReference(s *sheet, id SheetID, sym symbol.ID, fn symbol.Resolver, pos int) error {
	if _, err := vm.symbols.Kind(sym); err != nil {
		return err
	}
	s.pending++
	return vm.symbols.AddReference(sym, fn, encodeSite(s.serial, pos), vm.siteName(id, pos), symbol.Immediate)
}

// settled counts one reference of s as resolved.
func settled(s *sheet) {
	if s.pending > 0 {
		s.pending--
	}
}

// NewProcSymbol creates the symbol of a procedure that calls can refer to
// before it exists.
func (vm *VirtualMachine) NewProcSymbol(name string) symbol.ID {
	return vm.symbols.Create(symbol.KindProc, name, procDefSize)
}

// DefineProcSymbol binds a procedure symbol to a call number.
func (vm *VirtualMachine) DefineProcSymbol(sym symbol.ID, num op.CallNum) error {
	def := make([]byte, procDefSize)
	binary.LittleEndian.PutUint32(def, uint32(num))
	return vm.symbols.Define(sym, def)
}

// EmitCall emits a call to the procedure of sym. Until the symbol is
// defined and resolved, the call operand holds the placeholder call number
// op.NoCall.
func (vm *VirtualMachine) EmitCall(id SheetID, sym symbol.ID) error {
	s, err := vm.sheet(id)
	if err != nil {
		return err
	}
	pos, err := s.asm.EmitLong(op.Call, bytecode.Imm(int64(op.NoCall)))
	if err != nil {
		return err
	}
	return vm.addReference(s, id, sym, vm.resolveCall, pos)
}

func (vm *VirtualMachine) resolveCall(def, ref []byte) error {
	serial, pos := decodeSite(ref)
	s, err := vm.sheetBySerial(serial)
	if err != nil {
		return err
	}
	if def != nil {
		if err := patchOperand(s, pos, binary.LittleEndian.Uint32(def)); err != nil {
			return err
		}
	}
	settled(s)
	return nil
}

// NewLabel creates a jump target.
func (vm *VirtualMachine) NewLabel() symbol.ID {
	return vm.symbols.Create(symbol.KindLabel, "", siteSize)
}

// PlaceLabel defines label as the next instruction position of a sheet.
func (vm *VirtualMachine) PlaceLabel(label symbol.ID, id SheetID) error {
	s, err := vm.sheet(id)
	if err != nil {
		return err
	}
	def, err := vm.symbols.Definition(label)
	if err != nil {
		return err
	}
	if vm.symbols.IsDefined(label) {
		// Reports the second definition without touching the first.
		return vm.symbols.Define(label, nil)
	}
	copy(def, encodeSite(s.serial, s.asm.Pos()))
	return vm.symbols.Define(label, nil)
}

// EmitJump emits a jmp or jc to label, patched once the label is placed.
func (vm *VirtualMachine) EmitJump(id SheetID, opc op.Code, label symbol.ID) error {
	if opc != op.Jmp && opc != op.Jc {
		return fmt.Errorf("%s is not a jump", opc)
	}
	s, err := vm.sheet(id)
	if err != nil {
		return err
	}
	pos, err := s.asm.EmitLong(opc, bytecode.Imm(0))
	if err != nil {
		return err
	}
	return vm.addReference(s, id, label, vm.resolveJump, pos)
}

var errCrossSheetJump = errors.New("jump to a label of another sheet")

func (vm *VirtualMachine) resolveJump(def, ref []byte) error {
	serial, pos := decodeSite(ref)
	s, err := vm.sheetBySerial(serial)
	if err != nil {
		return err
	}
	if def != nil {
		labelSerial, target := decodeSite(def)
		if labelSerial != serial {
			return errCrossSheetJump
		}
		if err := patchOperand(s, pos, uint32(int32(target-pos))); err != nil {
			return err
		}
	}
	settled(s)
	return nil
}

// Link resolves every pending reference. Each reference left unresolved is
// reported as an *errz.LinkError.
func (vm *VirtualMachine) Link() error {
	return vm.symbols.Resolve(symbol.All)
}
