package vm

import (
	"errors"
	"fmt"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/errz"
	"github.com/boxlang/boxvm/op"
)

// ErrSheetInUse is returned when removing a sheet that still has
// unresolved references.
var ErrSheetInUse = errors.New("sheet has unresolved references")

// SheetID identifies a sheet: a code buffer a procedure is being assembled
// into. IDs of removed sheets are reused.
type SheetID uint32

// sheet is an open code buffer. serial is never reused, so link blobs
// refer to sheets by serial rather than by SheetID. pending counts the
// unresolved references whose sites are in the sheet.
type sheet struct {
	code      *bytecode.Code
	asm       *bytecode.Assembler
	installed op.CallNum
	serial    uint32
	pending   int
}

// NewSheet opens a sheet for a procedure named name.
func (vm *VirtualMachine) NewSheet(name string) SheetID {
	code := bytecode.NewCode(name)
	vm.sheetSeq++
	s := &sheet{code: code, asm: bytecode.NewAssembler(code), serial: vm.sheetSeq}
	for i, slot := range vm.sheets {
		if slot == nil {
			vm.sheets[i] = s
			return SheetID(i + 1)
		}
	}
	vm.sheets = append(vm.sheets, s)
	return SheetID(len(vm.sheets))
}

func (vm *VirtualMachine) sheet(id SheetID) (*sheet, error) {
	if id == 0 || int(id) > len(vm.sheets) || vm.sheets[id-1] == nil {
		return nil, fmt.Errorf("sheet %d is not open", id)
	}
	return vm.sheets[id-1], nil
}

// sheetBySerial finds the open sheet with the given serial.
func (vm *VirtualMachine) sheetBySerial(serial uint32) (*sheet, error) {
	for _, s := range vm.sheets {
		if s != nil && s.serial == serial {
			return s, nil
		}
	}
	return nil, fmt.Errorf("sheet #%d is not open", serial)
}

// Sheet returns the code of a sheet.
func (vm *VirtualMachine) Sheet(id SheetID) (*bytecode.Code, error) {
	s, err := vm.sheet(id)
	if err != nil {
		return nil, err
	}
	return s.code, nil
}

// Assembler returns the assembler writing into a sheet.
func (vm *VirtualMachine) Assembler(id SheetID) (*bytecode.Assembler, error) {
	s, err := vm.sheet(id)
	if err != nil {
		return nil, err
	}
	return s.asm, nil
}

// InstallSheet installs the code of a sheet as a procedure. Installing the
// same sheet again returns the same call number.
func (vm *VirtualMachine) InstallSheet(id SheetID) (op.CallNum, error) {
	s, err := vm.sheet(id)
	if err != nil {
		return op.NoCall, err
	}
	if s.installed == op.NoCall {
		s.installed = vm.InstallCode(s.code.Name(), s.code)
	}
	return s.installed, nil
}

// RemoveSheet closes a sheet. The code of an installed sheet stays with its
// procedure. Removing a sheet that is not open is an error of kind
// ErrDoubleRelease. A sheet holding references that are not resolved yet
// cannot be removed: Link or ForceResolve them first.
func (vm *VirtualMachine) RemoveSheet(id SheetID) error {
	s, err := vm.sheet(id)
	if err != nil {
		return errz.NewStructuredErrorf(errz.ErrDoubleRelease, nil, "removing sheet %d: %v", id, err)
	}
	if s.pending > 0 {
		return errz.NewStructuredErrorf(errz.ErrLink, nil,
			"removing sheet %d: %d unresolved references", id, s.pending).WithCause(ErrSheetInUse)
	}
	vm.sheets[id-1] = nil
	return nil
}
