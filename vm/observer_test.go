package vm

import (
	"testing"

	"github.com/boxlang/boxvm/bytecode"
	"github.com/boxlang/boxvm/op"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	cfg       ObserverConfig
	steps     []StepEvent
	calls     []CallEvent
	returns   []ReturnEvent
	stopAfter int
}

func (o *recordingObserver) Config() ObserverConfig { return o.cfg }

func (o *recordingObserver) OnStep(e StepEvent) bool {
	o.steps = append(o.steps, e)
	return o.stopAfter == 0 || len(o.steps) < o.stopAfter
}

func (o *recordingObserver) OnCall(e CallEvent) bool {
	o.calls = append(o.calls, e)
	return true
}

func (o *recordingObserver) OnReturn(e ReturnEvent) bool {
	o.returns = append(o.returns, e)
	return true
}

func observedProgram(t *testing.T, vm *VirtualMachine) op.CallNum {
	native := vm.InstallNative("helper", func(*Call) error { return nil })
	return newProc(t, vm, "main").
		emit(op.Line, bytecode.Imm(1)).
		emit(op.MovI, bytecode.GReg(1), bytecode.Imm(5)).
		emit(op.Line, bytecode.Imm(2)).
		emit(op.Call, bytecode.Imm(int64(native))).
		emit(op.IncI, bytecode.GReg(1)).
		install()
}

func TestObserverStepAll(t *testing.T) {
	obs := &recordingObserver{cfg: NewObserverConfig(StepAll)}
	vm := New(WithObserver(obs))
	num := observedProgram(t, vm)
	require.Nil(t, vm.Run(num))

	require.Len(t, obs.steps, 5)
	require.Equal(t, StepEvent{
		Procedure:  "main",
		CallNum:    num,
		Offset:     4,
		Opcode:     op.MovI,
		OpcodeName: "mov.i",
		Text:       obs.steps[1].Text,
		Line:       1,
		FrameDepth: 1,
	}, obs.steps[1])
	require.Contains(t, obs.steps[1].Text, "mov.i")
	require.Equal(t, 2, obs.steps[2].Line)

	require.Len(t, obs.calls, 2)
	require.Equal(t, "main", obs.calls[0].Procedure)
	require.False(t, obs.calls[0].Native)
	require.Equal(t, 1, obs.calls[0].FrameDepth)
	require.Equal(t, "helper", obs.calls[1].Procedure)
	require.True(t, obs.calls[1].Native)
	require.Equal(t, 2, obs.calls[1].FrameDepth)

	require.Len(t, obs.returns, 2)
	require.Equal(t, "helper", obs.returns[0].Procedure)
	require.Equal(t, "main", obs.returns[1].Procedure)
	require.Equal(t, 0, obs.returns[1].FrameDepth)
}

func TestObserverStepModes(t *testing.T) {
	tests := []struct {
		name string
		cfg  ObserverConfig
		want int
	}{
		{"none", NewObserverConfig(StepNone), 0},
		{"on line", NewObserverConfig(StepOnLine), 2},
		{"sampled", ObserverConfig{StepMode: StepSampled, SampleInterval: 2}, 2},
		{"sampled clamped", ObserverConfig{StepMode: StepSampled}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{cfg: tt.cfg}
			vm := New(WithObserver(obs))
			require.Nil(t, vm.Run(observedProgram(t, vm)))
			require.Len(t, obs.steps, tt.want)
		})
	}
}

func TestObserverHalts(t *testing.T) {
	obs := &recordingObserver{cfg: NewObserverConfig(StepAll), stopAfter: 3}
	vm := New(WithObserver(obs))
	err := vm.Run(observedProgram(t, vm))
	require.ErrorIs(t, err, ErrHalted)
	require.Equal(t, int64(5), globalInt(t, vm, 1))
}

func TestNoOpObserver(t *testing.T) {
	vm := New(WithObserver(NoOpObserver{}))
	require.Nil(t, vm.Run(observedProgram(t, vm)))
	require.Equal(t, int64(6), globalInt(t, vm, 1))
}
