package vm

import (
	"github.com/boxlang/boxvm/op"
)

// StepMode controls when OnStep callbacks are triggered.
type StepMode uint8

const (
	// StepAll calls OnStep for every instruction.
	StepAll StepMode = iota

	// StepNone never calls OnStep.
	StepNone

	// StepSampled calls OnStep every N instructions.
	StepSampled

	// StepOnLine calls OnStep for every "line" instruction, with the new
	// line number.
	StepOnLine
)

// ObserverConfig specifies what events an observer wants to receive.
// Use NewObserverConfig() to create configs with safe defaults.
type ObserverConfig struct {
	// StepMode controls OnStep callback frequency.
	StepMode StepMode

	// SampleInterval is the number of instructions between OnStep calls
	// when StepMode is StepSampled. Values <= 0 are treated as 1.
	SampleInterval int

	// ObserveCalls enables OnCall callbacks.
	ObserveCalls bool

	// ObserveReturns enables OnReturn callbacks.
	ObserveReturns bool
}

// NewObserverConfig creates a config with calls and returns observed.
func NewObserverConfig(mode StepMode) ObserverConfig {
	return ObserverConfig{
		StepMode:       mode,
		SampleInterval: 1000,
		ObserveCalls:   true,
		ObserveReturns: true,
	}
}

// NormalizeConfig validates and clamps config values.
func NormalizeConfig(cfg ObserverConfig) ObserverConfig {
	if cfg.StepMode == StepSampled && cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 1
	}
	return cfg
}

// Observer receives VM execution events. Its methods are called
// synchronously; returning false halts execution.
type Observer interface {
	// Config returns the observer's configuration. It is read once, when
	// the machine is created.
	Config() ObserverConfig

	// OnStep is called before an instruction runs, as selected by the
	// StepMode of the observer's config.
	OnStep(event StepEvent) bool

	// OnCall is called when a procedure is invoked.
	OnCall(event CallEvent) bool

	// OnReturn is called when a procedure returns or fails.
	OnReturn(event ReturnEvent) bool
}

// StepEvent describes the instruction about to run.
type StepEvent struct {
	Procedure string
	CallNum   op.CallNum
	// Offset is the byte offset of the instruction in its procedure.
	Offset     int
	Opcode     op.Code
	OpcodeName string
	// Text is the disassembled instruction.
	Text       string
	Line       int
	FrameDepth int
}

// CallEvent describes a procedure call.
type CallEvent struct {
	Procedure  string
	CallNum    op.CallNum
	Native     bool
	FrameDepth int
}

// ReturnEvent describes a procedure return.
type ReturnEvent struct {
	Procedure  string
	CallNum    op.CallNum
	FrameDepth int
}

// NoOpObserver is an Observer that does nothing. Embed it to implement
// only some of the callbacks.
type NoOpObserver struct{}

func (NoOpObserver) Config() ObserverConfig {
	return NewObserverConfig(StepAll)
}

func (NoOpObserver) OnStep(StepEvent) bool     { return true }
func (NoOpObserver) OnCall(CallEvent) bool     { return true }
func (NoOpObserver) OnReturn(ReturnEvent) bool { return true }

var _ Observer = NoOpObserver{}

func (vm *VirtualMachine) onStep(f *frame) bool {
	if vm.observer == nil {
		return true
	}
	switch vm.obsCfg.StepMode {
	case StepNone:
		return true
	case StepSampled:
		vm.steps++
		if vm.steps%vm.obsCfg.SampleInterval != 0 {
			return true
		}
	case StepOnLine:
		if f.ins.Op != op.Line {
			return true
		}
	}
	line := f.line
	if f.ins.Op == op.Line {
		line = int(f.ins.Args[0].Int())
	}
	return vm.observer.OnStep(StepEvent{
		Procedure:  f.proc.name,
		CallNum:    f.call,
		Offset:     f.pc * 4,
		Opcode:     f.ins.Op,
		OpcodeName: f.ins.Op.String(),
		Text:       f.ins.String(),
		Line:       line,
		FrameDepth: vm.depth,
	})
}

func (vm *VirtualMachine) onCall(num op.CallNum, proc *procedure) bool {
	if vm.observer == nil || !vm.obsCfg.ObserveCalls {
		return true
	}
	return vm.observer.OnCall(CallEvent{
		Procedure:  proc.name,
		CallNum:    num,
		Native:     proc.native != nil,
		FrameDepth: vm.depth + 1,
	})
}

func (vm *VirtualMachine) onReturn(num op.CallNum, proc *procedure) bool {
	if vm.observer == nil || !vm.obsCfg.ObserveReturns {
		return true
	}
	return vm.observer.OnReturn(ReturnEvent{
		Procedure:  proc.name,
		CallNum:    num,
		FrameDepth: vm.depth,
	})
}
