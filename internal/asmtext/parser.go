// Package asmtext reads Box assembly text and loads it into a virtual
// machine.
//
// A program is a sequence of procedures and directives:
//
//	globals i 4 8          ; 4 variables and 8 registers of category Int
//
//	proc main
//	    new.i 0, 1
//	    mov.i ri1, 10
//	loop:
//	    add.i gi1, ri1
//	    dec.i ri1
//	    gt.i ri1, 0
//	    jc loop
//	    call helper
//	end
//
// Operands use the disassembler syntax: gi1 and gvi1 for global registers
// and variables, ri1 and vi1 for local ones, i[8] for a pointer-indirect
// operand relative to local register o0, and literals (42, 1.5, 'a',
// (1, 2)) for immediates. Jumps take a label and calls a procedure name.
package asmtext

import (
	"context"
	"fmt"
	"strconv"

	"github.com/boxlang/boxvm/internal/lexer"
	"github.com/boxlang/boxvm/internal/token"
	"github.com/boxlang/boxvm/op"
	"github.com/boxlang/boxvm/vm"
	"github.com/hashicorp/go-multierror"
)

// OperandKind tells what an operand denotes.
type OperandKind int

const (
	OperandRegister OperandKind = iota
	OperandPointer
	OperandInt
	OperandReal
	OperandChar
	OperandPoint
	OperandName
)

// Operand is one parsed instruction operand.
type Operand struct {
	Kind OperandKind
	// Type is the register category of registers and pointer-indirect
	// operands.
	Type   op.Type
	Global bool
	// Index is the register index, negative for variables, or the offset
	// of a pointer-indirect operand.
	Index int64
	Int   int64
	Real  float64
	X, Y  float64
	Char  byte
	Name  string
	Pos   token.Position
}

// Instruction is one line of a procedure body. Label is set when the line
// starts with "label:"; Mnemonic is empty on label-only lines.
type Instruction struct {
	Label    string
	Mnemonic string
	Op       op.Code
	Operands []Operand
	Pos      token.Position
	Source   string
}

// Proc is a procedure definition.
type Proc struct {
	Name   string
	Body   []Instruction
	Pos    token.Position
	Source string
}

// Globals is a "globals" directive sizing a global register file.
type Globals struct {
	Type       op.Type
	Vars, Regs int
	Pos        token.Position
}

// Program is a parsed assembly file.
type Program struct {
	Globals []Globals
	Procs   []*Proc
}

// Options returns the machine options requested by the program's
// directives.
func (p *Program) Options() []vm.Option {
	var opts []vm.Option
	for _, g := range p.Globals {
		opts = append(opts, vm.WithGlobalRegisters(g.Type, g.Vars, g.Regs))
	}
	return opts
}

// Proc returns the procedure named name.
func (p *Program) Proc(name string) (*Proc, bool) {
	for _, proc := range p.Procs {
		if proc.Name == name {
			return proc, true
		}
	}
	return nil, false
}

// Option is a configuration function for Parse.
type Option func(*parser)

// WithFilename sets the file name reported in error positions.
func WithFilename(filename string) Option {
	return func(p *parser) {
		p.filename = filename
	}
}

type parser struct {
	l        *lexer.Lexer
	filename string
	toks     []token.Token
	pos      int
	errs     *multierror.Error
	prog     *Program
	cur      *Proc
}

// Parse parses assembly text. Every error found is reported, each as an
// *Error, aggregated in a *multierror.Error.
func Parse(ctx context.Context, input string, options ...Option) (*Program, error) {
	p := &parser{prog: &Program{}}
	for _, opt := range options {
		opt(p)
	}
	p.l = lexer.New(input)
	p.l.SetFilename(p.filename)
	p.tokenize()

	for p.peek().Type != token.EOF {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.parseLine()
	}
	if p.cur != nil {
		p.errorf(SyntaxError, p.cur.Pos, "missing end of proc %s", p.cur.Name)
	}
	if err := p.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return p.prog, nil
}

// tokenize lexes the whole input. A line with a lexer error is recorded
// and replaced by a single ILLEGAL token.
func (p *parser) tokenize() {
	lineStart := 0
	for {
		tok, err := p.l.Next()
		if err != nil {
			p.errs = multierror.Append(p.errs, p.newError(SyntaxError, tok, err.Error()))
			p.toks = append(p.toks[:lineStart], tok)
			for tok.Type != token.NEWLINE && tok.Type != token.EOF {
				tok, _ = p.l.Next()
			}
		}
		p.toks = append(p.toks, tok)
		switch tok.Type {
		case token.NEWLINE:
			lineStart = len(p.toks)
		case token.EOF:
			return
		}
	}
}

func (p *parser) peek() token.Token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token.Token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token.Token {
	tok := p.toks[p.pos]
	if tok.Type != token.EOF {
		p.pos++
	}
	return tok
}

func (p *parser) newError(kind string, tok token.Token, msg string) *Error {
	return &Error{
		Kind:       kind,
		Message:    msg,
		Position:   tok.StartPosition,
		SourceCode: p.l.GetLineText(tok),
	}
}

func (p *parser) errorf(kind string, pos token.Position, format string, args ...any) {
	p.errs = multierror.Append(p.errs, &Error{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Position:   pos,
		SourceCode: p.l.GetLineText(token.Token{StartPosition: pos}),
	})
}

// skipLine discards tokens up to and including the next newline.
func (p *parser) skipLine() {
	for {
		tok := p.next()
		if tok.Type == token.NEWLINE || tok.Type == token.EOF {
			return
		}
	}
}

// endLine consumes the newline ending a statement.
func (p *parser) endLine() {
	tok := p.peek()
	if tok.Type == token.NEWLINE || tok.Type == token.EOF {
		p.next()
		return
	}
	p.errorf(SyntaxError, tok.StartPosition, "unexpected %s at end of line", describe(tok))
	p.skipLine()
}

func describe(tok token.Token) string {
	switch tok.Type {
	case token.EOF:
		return "end of file"
	case token.NEWLINE:
		return "newline"
	case token.CHAR:
		return strconv.QuoteRune(rune(tok.Literal[0]))
	}
	if tok.Literal == "" {
		return string(tok.Type)
	}
	return fmt.Sprintf("%q", tok.Literal)
}

func (p *parser) parseLine() {
	tok := p.peek()
	switch tok.Type {
	case token.NEWLINE:
		p.next()
	case token.ILLEGAL:
		// Already reported while lexing.
		p.skipLine()
	case token.PROC:
		p.parseProc()
	case token.END:
		p.next()
		if p.cur == nil {
			p.errorf(SyntaxError, tok.StartPosition, "end outside of a proc")
		}
		p.cur = nil
		p.endLine()
	case token.GLOBALS:
		p.parseGlobals()
	default:
		if p.cur == nil {
			p.errorf(SyntaxError, tok.StartPosition, "instruction %s outside of a proc", describe(tok))
			p.skipLine()
			return
		}
		p.parseInstruction()
	}
}

func (p *parser) parseProc() {
	start := p.next()
	if p.cur != nil {
		p.errorf(SyntaxError, start.StartPosition, "proc inside proc %s", p.cur.Name)
		p.skipLine()
		return
	}
	name := p.next()
	if name.Type != token.IDENT {
		p.errorf(SyntaxError, name.StartPosition, "expected a proc name, got %s", describe(name))
		p.skipLine()
		return
	}
	if _, dup := p.prog.Proc(name.Literal); dup {
		p.errorf(SyntaxError, name.StartPosition, "proc %s defined twice", name.Literal)
	}
	p.cur = &Proc{Name: name.Literal, Pos: start.StartPosition, Source: p.l.GetLineText(start)}
	p.prog.Procs = append(p.prog.Procs, p.cur)
	p.endLine()
}

func (p *parser) parseGlobals() {
	start := p.next()
	if p.cur != nil {
		p.errorf(SyntaxError, start.StartPosition, "globals directive inside proc %s", p.cur.Name)
		p.skipLine()
		return
	}
	letter := p.next()
	t, ok := typeFromLetter(letter.Literal)
	if letter.Type != token.IDENT || !ok {
		p.errorf(SyntaxError, letter.StartPosition, "expected a register category, got %s", describe(letter))
		p.skipLine()
		return
	}
	var counts [2]int
	for i := range counts {
		tok := p.next()
		n, err := strconv.ParseInt(tok.Literal, 0, 32)
		if tok.Type != token.INT || err != nil || n < 0 {
			p.errorf(SyntaxError, tok.StartPosition, "expected a register count, got %s", describe(tok))
			p.skipLine()
			return
		}
		counts[i] = int(n)
	}
	for _, g := range p.prog.Globals {
		if g.Type == t {
			p.errorf(SyntaxError, start.StartPosition, "globals of category %s set twice", t.Name())
		}
	}
	p.prog.Globals = append(p.prog.Globals, Globals{Type: t, Vars: counts[0], Regs: counts[1], Pos: start.StartPosition})
	p.endLine()
}

func (p *parser) parseInstruction() {
	first := p.peek()
	ins := Instruction{Pos: first.StartPosition, Source: p.l.GetLineText(first)}
	if first.Type == token.IDENT && p.peekAt(1).Type == token.COLON {
		ins.Label = first.Literal
		p.next()
		p.next()
		if t := p.peek().Type; t == token.NEWLINE || t == token.EOF {
			p.cur.Body = append(p.cur.Body, ins)
			p.next()
			return
		}
	}

	mnemonic := p.next()
	if mnemonic.Type != token.IDENT {
		p.errorf(SyntaxError, mnemonic.StartPosition, "expected an instruction, got %s", describe(mnemonic))
		p.skipLine()
		return
	}
	code, ok := op.Lookup(mnemonic.Literal)
	if !ok {
		p.errorf(SyntaxError, mnemonic.StartPosition, "unknown instruction %q", mnemonic.Literal)
		p.skipLine()
		return
	}
	ins.Mnemonic = mnemonic.Literal
	ins.Op = code
	ins.Pos = mnemonic.StartPosition

	for p.peek().Type != token.NEWLINE && p.peek().Type != token.EOF {
		if len(ins.Operands) > 0 {
			if comma := p.next(); comma.Type != token.COMMA {
				p.errorf(SyntaxError, comma.StartPosition, "expected a comma, got %s", describe(comma))
				p.skipLine()
				return
			}
		}
		arg, ok := p.parseOperand()
		if !ok {
			p.skipLine()
			return
		}
		ins.Operands = append(ins.Operands, arg)
	}
	if arity := op.GetInfo(code).Arity; len(ins.Operands) != arity {
		p.errorf(SyntaxError, mnemonic.StartPosition, "%s expects %d operands, got %d",
			mnemonic.Literal, arity, len(ins.Operands))
	}
	p.cur.Body = append(p.cur.Body, ins)
	p.next()
}

func (p *parser) parseOperand() (Operand, bool) {
	tok := p.next()
	arg := Operand{Pos: tok.StartPosition}
	switch tok.Type {
	case token.INT:
		v, err := strconv.ParseInt(tok.Literal, 0, 64)
		if err != nil {
			p.errorf(SyntaxError, tok.StartPosition, "invalid integer %s", tok.Literal)
			return arg, false
		}
		arg.Kind, arg.Int = OperandInt, v
	case token.FLOAT:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf(SyntaxError, tok.StartPosition, "invalid real %s", tok.Literal)
			return arg, false
		}
		arg.Kind, arg.Real = OperandReal, v
	case token.CHAR:
		arg.Kind, arg.Char = OperandChar, tok.Literal[0]
	case token.LPAREN:
		x, okX := p.parseReal()
		if comma := p.next(); !okX || comma.Type != token.COMMA {
			p.errorf(SyntaxError, tok.StartPosition, "malformed point literal")
			return arg, false
		}
		y, okY := p.parseReal()
		if rparen := p.next(); !okY || rparen.Type != token.RPAREN {
			p.errorf(SyntaxError, tok.StartPosition, "malformed point literal")
			return arg, false
		}
		arg.Kind, arg.X, arg.Y = OperandPoint, x, y
	case token.IDENT:
		if p.peek().Type == token.LBRACKET {
			return p.parsePointer(tok)
		}
		if t, global, index, ok := parseRegister(tok.Literal); ok {
			arg.Kind, arg.Type, arg.Global, arg.Index = OperandRegister, t, global, index
			return arg, true
		}
		arg.Kind, arg.Name = OperandName, tok.Literal
	default:
		p.errorf(SyntaxError, tok.StartPosition, "expected an operand, got %s", describe(tok))
		return arg, false
	}
	return arg, true
}

func (p *parser) parseReal() (float64, bool) {
	tok := p.next()
	if tok.Type != token.INT && tok.Type != token.FLOAT {
		return 0, false
	}
	if tok.Type == token.INT {
		v, err := strconv.ParseInt(tok.Literal, 0, 64)
		return float64(v), err == nil
	}
	v, err := strconv.ParseFloat(tok.Literal, 64)
	return v, err == nil
}

func (p *parser) parsePointer(letter token.Token) (Operand, bool) {
	arg := Operand{Kind: OperandPointer, Pos: letter.StartPosition}
	t, ok := typeFromLetter(letter.Literal)
	if !ok {
		p.errorf(SyntaxError, letter.StartPosition, "unknown register category %q", letter.Literal)
		return arg, false
	}
	p.next()
	off := p.next()
	v, err := strconv.ParseInt(off.Literal, 0, 32)
	if off.Type != token.INT || err != nil {
		p.errorf(SyntaxError, off.StartPosition, "expected an offset, got %s", describe(off))
		return arg, false
	}
	if rb := p.next(); rb.Type != token.RBRACKET {
		p.errorf(SyntaxError, rb.StartPosition, "expected ], got %s", describe(rb))
		return arg, false
	}
	arg.Type, arg.Index = t, v
	return arg, true
}

func typeFromLetter(s string) (op.Type, bool) {
	if len(s) != 1 {
		return op.TypeNone, false
	}
	for t := op.Type(0); t < op.NumTypes; t++ {
		if t.String() == s {
			return t, true
		}
	}
	return op.TypeNone, false
}

// parseRegister recognizes register names: gi1 and gvi1 for globals, ri1
// and vi1 for locals.
func parseRegister(s string) (t op.Type, global bool, index int64, ok bool) {
	rest := s
	if len(rest) > 0 && rest[0] == 'g' {
		global = true
		rest = rest[1:]
	}
	variable := false
	switch {
	case len(rest) > 0 && rest[0] == 'v':
		variable = true
		rest = rest[1:]
	case !global && len(rest) > 0 && rest[0] == 'r':
		rest = rest[1:]
	case !global:
		return op.TypeNone, false, 0, false
	}
	if len(rest) < 2 {
		return op.TypeNone, false, 0, false
	}
	t, ok = typeFromLetter(rest[:1])
	if !ok {
		return op.TypeNone, false, 0, false
	}
	for _, c := range rest[1:] {
		if c < '0' || c > '9' {
			return op.TypeNone, false, 0, false
		}
	}
	n, err := strconv.ParseInt(rest[1:], 10, 32)
	if err != nil {
		return op.TypeNone, false, 0, false
	}
	if variable {
		if n == 0 {
			return op.TypeNone, false, 0, false
		}
		n = -n
	}
	return t, global, n, true
}
