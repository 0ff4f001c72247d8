package vm

import (
	"github.com/boxlang/boxvm/op"
	"github.com/rs/zerolog"
)

// Option is a configuration function for a Virtual Machine.
type Option func(*VirtualMachine)

// WithLogger sets the logger used by the machine, its heap and its symbol
// table. The default logger discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(vm *VirtualMachine) {
		vm.log = log
	}
}

// WithGlobalRegisters sizes the global register file of category t. The
// Obj file always has at least the parent and child registers.
func WithGlobalRegisters(t op.Type, numVars, numRegs int) Option {
	return func(vm *VirtualMachine) {
		if int(t) < len(vm.sizes) {
			vm.sizes[t] = globalSize{numVars, numRegs}
		}
	}
}

// WithMaxDepth limits how deeply procedure calls may nest. Calls are
// interpreted on the Go stack, so the limit also bounds its growth.
// Exceeding it is a recoverable failure.
func WithMaxDepth(depth int) Option {
	return func(vm *VirtualMachine) {
		vm.maxDepth = depth
	}
}

// WithObserver sets an observer for VM execution events.
// The observer receives callbacks for instruction steps, procedure calls,
// and procedure returns. Returning false from any observer method halts
// execution with ErrHalted.
func WithObserver(observer Observer) Option {
	return func(vm *VirtualMachine) {
		vm.observer = observer
	}
}
