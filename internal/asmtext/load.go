package asmtext

import (
	"fmt"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/internal/token"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/symbol"
	"github.com/boxlang/boxvm/vm"
	"github.com/hashicorp/go-multierror"
)

// LoadOption is a configuration function for Load.
type LoadOption func(*loader)

// WithLineNumbers emits a line instruction whenever the source line
// changes, so that backtraces carry assembly line numbers.
func WithLineNumbers() LoadOption {
	return func(l *loader) {
		l.lines = true
	}
}

type loader struct {
	machine *vm.VirtualMachine
	lines   bool
	procs   map[string]symbol.ID
	errs    *multierror.Error
}

// Load assembles every procedure of prog into the machine and links them.
// Calls to names that are neither procedures of prog nor procedures
// already installed in the machine are reported by linking. It returns the
// call numbers of the procedures of prog by name.
func Load(machine *vm.VirtualMachine, prog *Program, options ...LoadOption) (map[string]op.CallNum, error) {
	l := &loader{machine: machine, procs: map[string]symbol.ID{}}
	for _, opt := range options {
		opt(l)
	}
	for _, proc := range prog.Procs {
		l.procs[proc.Name] = machine.NewProcSymbol(proc.Name)
	}

	nums := map[string]op.CallNum{}
	var sheets []vm.SheetID
	for _, proc := range prog.Procs {
		sheet, ok := l.assemble(proc)
		sheets = append(sheets, sheet)
		if !ok {
			continue
		}
		num, err := machine.InstallSheet(sheet)
		if err != nil {
			l.fail(proc.Pos, proc.Source, err)
			continue
		}
		if err := machine.DefineProcSymbol(l.procs[proc.Name], num); err != nil {
			l.fail(proc.Pos, proc.Source, err)
			continue
		}
		nums[proc.Name] = num
	}
	if err := l.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	if err := machine.Link(); err != nil {
		return nil, err
	}
	for _, sheet := range sheets {
		if err := machine.RemoveSheet(sheet); err != nil {
			return nil, err
		}
	}
	log := machine.Logger()
	log.Debug().Int("procs", len(nums)).Msg("assembly loaded")
	return nums, nil
}

func (l *loader) fail(pos token.Position, source string, err error) {
	l.errs = multierror.Append(l.errs, &Error{
		Kind:       AssemblyError,
		Cause:      err,
		Position:   pos,
		SourceCode: source,
	})
}

func (l *loader) assemble(proc *Proc) (vm.SheetID, bool) {
	machine := l.machine
	sheet := machine.NewSheet(proc.Name)
	asm, _ := machine.Assembler(sheet)
	labels := map[string]symbol.ID{}
	label := func(name string) symbol.ID {
		id, ok := labels[name]
		if !ok {
			id = machine.NewLabel()
			labels[name] = id
		}
		return id
	}
	placed := map[string]bool{}

	ok := true
	line := 0
	for _, ins := range proc.Body {
		if ins.Label != "" {
			if placed[ins.Label] {
				l.fail(ins.Pos, ins.Source, fmt.Errorf("label %s placed twice", ins.Label))
				ok = false
			} else if err := machine.PlaceLabel(label(ins.Label), sheet); err != nil {
				l.fail(ins.Pos, ins.Source, err)
				ok = false
			}
			placed[ins.Label] = true
		}
		if ins.Mnemonic == "" {
			continue
		}
		if l.lines && ins.Pos.LineNumber() != line {
			line = ins.Pos.LineNumber()
			if _, err := asm.Emit(op.Line, bytecode.Imm(int64(line))); err != nil {
				l.fail(ins.Pos, ins.Source, err)
			}
		}
		if err := l.emit(sheet, asm, ins, label); err != nil {
			l.fail(ins.Pos, ins.Source, err)
			ok = false
		}
	}
	for name := range labels {
		if !placed[name] {
			l.fail(proc.Pos, proc.Source, fmt.Errorf("label %s is never placed in proc %s", name, proc.Name))
			ok = false
		}
	}
	return sheet, ok
}

func (l *loader) emit(sheet vm.SheetID, asm *bytecode.Assembler, ins Instruction, label func(string) symbol.ID) error {
	info := op.GetInfo(ins.Op)
	if len(ins.Operands) != info.Arity {
		return fmt.Errorf("%s expects %d operands, got %d", info.Name, info.Arity, len(ins.Operands))
	}
	if info.Arity == 1 && ins.Operands[0].Kind == OperandName {
		name := ins.Operands[0].Name
		switch ins.Op {
		case op.Jmp, op.Jc:
			return l.machine.EmitJump(sheet, ins.Op, label(name))
		case op.Call:
			return l.emitCall(sheet, asm, name)
		}
	}
	args := make([]bytecode.Arg, len(ins.Operands))
	for i, operand := range ins.Operands {
		arg, err := convert(info, i, operand)
		if err != nil {
			return err
		}
		args[i] = arg
	}
	_, err := asm.Emit(ins.Op, args...)
	return err
}

// emitCall calls a procedure of the program through its symbol, or an
// installed procedure directly. Other names get a symbol of their own that
// stays undefined, so that linking reports them.
func (l *loader) emitCall(sheet vm.SheetID, asm *bytecode.Assembler, name string) error {
	if sym, ok := l.procs[name]; ok {
		return l.machine.EmitCall(sheet, sym)
	}
	if num, ok := l.machine.Lookup(name); ok {
		_, err := asm.Emit(op.Call, bytecode.Imm(int64(num)))
		return err
	}
	sym := l.machine.NewProcSymbol(name)
	l.procs[name] = sym
	return l.machine.EmitCall(sheet, sym)
}

// convert turns a parsed operand into an assembler argument for operand i
// of an instruction.
func convert(info op.Info, i int, arg Operand) (bytecode.Arg, error) {
	t := info.Types[i]
	switch arg.Kind {
	case OperandRegister, OperandPointer:
		if arg.Type != t {
			return bytecode.Arg{}, fmt.Errorf("%s operand %d must be of category %s, not %s",
				info.Name, i+1, t.Name(), arg.Type.Name())
		}
		if arg.Kind == OperandPointer {
			return bytecode.PtrAt(int(arg.Index)), nil
		}
		if arg.Global {
			return bytecode.GReg(int(arg.Index)), nil
		}
		return bytecode.LReg(int(arg.Index)), nil
	case OperandInt:
		switch t {
		case op.TypeReal:
			return bytecode.ImmReal(float64(arg.Int)), nil
		case op.TypePoint:
			return bytecode.Arg{}, fmt.Errorf("%s operand %d needs a point literal", info.Name, i+1)
		}
		return bytecode.Imm(arg.Int), nil
	case OperandReal:
		if t != op.TypeReal {
			return bytecode.Arg{}, fmt.Errorf("%s operand %d: real literal for a %s operand", info.Name, i+1, t.Name())
		}
		return bytecode.ImmReal(arg.Real), nil
	case OperandChar:
		if t != op.TypeChar && t != op.TypeInt {
			return bytecode.Arg{}, fmt.Errorf("%s operand %d: char literal for a %s operand", info.Name, i+1, t.Name())
		}
		return bytecode.Imm(int64(arg.Char)), nil
	case OperandPoint:
		if t != op.TypePoint {
			return bytecode.Arg{}, fmt.Errorf("%s operand %d: point literal for a %s operand", info.Name, i+1, t.Name())
		}
		return bytecode.ImmPoint(arg.X, arg.Y), nil
	case OperandName:
		return bytecode.Arg{}, fmt.Errorf("%s operand %d: unexpected name %s", info.Name, i+1, arg.Name)
	}
	return bytecode.Arg{}, fmt.Errorf("%s operand %d: invalid operand", info.Name, i+1)
}
