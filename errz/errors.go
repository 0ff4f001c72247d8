// Package errz defines the error kinds raised by the Box virtual machine,
// structured failures carrying backtraces, and their formatting.
package errz

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDoubleReleaseSentinel is matched by errors.Is for any error of kind
	// ErrDoubleRelease.
	ErrDoubleReleaseSentinel = errors.New("resource released twice")

	// ErrAlreadyDefined is returned when a symbol is defined a second time.
	ErrAlreadyDefined = errors.New("symbol already defined")

	// ErrUnknownSymbol is returned for symbol ids that were never created.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// StackFrame is one entry of a VM backtrace: the procedure that was running
// and where inside it the failure was observed.
type StackFrame struct {
	CallNum   uint32
	Procedure string
	Offset    int // byte offset of the failing instruction
	Line      int // source line recorded by the last "line" instruction, or 0
}

// String returns a formatted string representation of the stack frame.
func (f StackFrame) String() string {
	name := f.Procedure
	if name == "" {
		name = fmt.Sprintf("call %d", f.CallNum)
	}
	if f.Line > 0 {
		return fmt.Sprintf("at %s (offset %d, line %d)", name, f.Offset, f.Line)
	}
	return fmt.Sprintf("at %s (offset %d)", name, f.Offset)
}

// FormatStackTrace formats stack frames as a human-readable string. Frames
// are recorded innermost first and printed outermost first.
func FormatStackTrace(frames []StackFrame) string {
	if len(frames) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Backtrace:\n")
	for i := len(frames) - 1; i >= 0; i-- {
		b.WriteString("  ")
		b.WriteString(frames[i].String())
		b.WriteString("\n")
	}
	return b.String()
}

// FriendlyError is an interface for errors that have a human friendly message
// in addition to a the lower level default error message.
type FriendlyError interface {
	Error() string
	FriendlyErrorMessage() string
}

// LinkError reports one reference that was still unresolved after the final
// link pass.
type LinkError struct {
	Symbol string
	Site   string
}

func (e *LinkError) Error() string {
	if e.Site == "" {
		return fmt.Sprintf("link error: unresolved reference to %s", e.Symbol)
	}
	return fmt.Sprintf("link error: unresolved reference to %s at %s", e.Symbol, e.Site)
}

// Fatalf reports a violated VM invariant. These indicate a bug in the
// compiler or in the VM itself and terminate the program: Fatalf panics with
// a *StructuredError of kind ErrFatal, which the VM never recovers.
func Fatalf(format string, args ...any) {
	panic(NewStructuredErrorf(ErrFatal, nil, format, args...))
}

// IsFatal reports whether err is a fatal VM error.
func IsFatal(err error) bool {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.IsFatal()
	}
	return false
}

// KindOf returns the kind of a structured error, or ErrRuntime for any
// other non-nil error.
func KindOf(err error) ErrorKind {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ErrRuntime
}
