package asmtext

import (
	"fmt"
	"strings"

	"github.com/boxlang/boxvm/internal/token"
	"github.com/fatih/color"
)

// Error kinds.
const (
	SyntaxError   = "syntax error"
	AssemblyError = "assembly error"
)

// Error is an error located in assembly text.
type Error struct {
	Kind       string
	Message    string
	Cause      error
	Position   token.Position
	SourceCode string
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("%s: %s: %s", e.location(), e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) location() string {
	file := e.Position.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d", file, e.Position.LineNumber(), e.Position.ColumnNumber())
}

// FriendlyErrorMessage shows the error with the offending source line and
// a marker under the column.
func (e *Error) FriendlyErrorMessage() string {
	var b strings.Builder
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	msg := e.Message
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	b.WriteString(red(e.Kind + ":"))
	b.WriteString(" ")
	b.WriteString(msg)
	b.WriteString("\n")
	fmt.Fprintf(&b, " --> %s\n", e.location())
	if e.SourceCode != "" {
		prefix := fmt.Sprintf(" %d | ", e.Position.LineNumber())
		b.WriteString(prefix)
		b.WriteString(e.SourceCode)
		b.WriteString("\n")
		b.WriteString(strings.Repeat(" ", len(prefix)+e.Position.Column))
		b.WriteString("^\n")
	}
	return b.String()
}
