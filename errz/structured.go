package errz

import (
	"bytes"
	"fmt"

	"github.com/fatih/color"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrRuntime indicates a recoverable failure raised by Box code or by a
	// native procedure. It unwinds frame by frame with a backtrace.
	ErrRuntime ErrorKind = iota
	// ErrBounds indicates a register index outside the frame's range, or a
	// pointer dereference outside its object. Recoverable.
	ErrBounds
	// ErrFatal indicates a broken VM invariant. Never recovered.
	ErrFatal
	// ErrLink indicates references left unresolved after linking.
	ErrLink
	// ErrDoubleRelease indicates an attempt to release something that is not
	// held anymore.
	ErrDoubleRelease
	// ErrDefinition indicates an invalid type or symbol definition.
	ErrDefinition
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrRuntime:
		return "runtime error"
	case ErrBounds:
		return "bounds error"
	case ErrFatal:
		return "fatal error"
	case ErrLink:
		return "link error"
	case ErrDoubleRelease:
		return "double release"
	case ErrDefinition:
		return "definition error"
	default:
		return "error"
	}
}

// StructuredError is a VM error with a kind and, for failures that unwound
// through Box procedures, the backtrace collected along the way.
type StructuredError struct {
	Message string
	Kind    ErrorKind
	Stack   []StackFrame
	Cause   error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is makes double releases match ErrDoubleReleaseSentinel.
func (e *StructuredError) Is(target error) bool {
	return target == ErrDoubleReleaseSentinel && e.Kind == ErrDoubleRelease
}

// IsFatal returns whether the error is considered fatal (unrecoverable).
func (e *StructuredError) IsFatal() bool {
	return e.Kind == ErrFatal
}

// FriendlyErrorMessage returns the message followed by the backtrace,
// outermost frame first. The header is colored when color output is enabled.
func (e *StructuredError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	msg.WriteString(red(e.Kind.String() + ":"))
	msg.WriteString(" ")
	msg.WriteString(e.Message)
	msg.WriteString("\n")
	if len(e.Stack) > 0 {
		msg.WriteString(FormatStackTrace(e.Stack))
	}
	return msg.String()
}

// NewStructuredError creates a new StructuredError with the given parameters.
func NewStructuredError(kind ErrorKind, message string, stack []StackFrame) *StructuredError {
	return &StructuredError{
		Message: message,
		Kind:    kind,
		Stack:   stack,
	}
}

// NewStructuredErrorf creates a new StructuredError with a formatted message.
func NewStructuredErrorf(kind ErrorKind, stack []StackFrame, format string, args ...any) *StructuredError {
	return &StructuredError{
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
		Stack:   stack,
	}
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// GetStack returns the stack frames of the error.
func (e *StructuredError) GetStack() []StackFrame {
	return e.Stack
}
