// Package lexer splits Box assembly text into tokens.
package lexer

import (
	"fmt"

	"github.com/boxlang/boxvm/internal/token"
)

// Lexer holds our object-state.
type Lexer struct {
	input    string
	pos      int // offset of the current character
	line     int
	lineHead int // offset of the start of the current line
	filename string
}

// New returns a Lexer for the given input.
func New(input string) *Lexer {
	return &Lexer{input: input}
}

// SetFilename sets the filename recorded in token positions.
func (l *Lexer) SetFilename(filename string) {
	l.filename = filename
}

// Filename returns the filename recorded in token positions.
func (l *Lexer) Filename() string {
	return l.filename
}

// Input returns the text being lexed.
func (l *Lexer) Input() string {
	return l.input
}

// GetLineText returns the text of the line the token starts on, without
// its line terminator.
func (l *Lexer) GetLineText(tok token.Token) string {
	start := tok.StartPosition.LineStart
	end := start
	for end < len(l.input) && l.input[end] != '\n' {
		end++
	}
	if end > start && l.input[end-1] == '\r' {
		end--
	}
	return l.input[start:end]
}

func (l *Lexer) position(offset int) token.Position {
	return token.Position{
		Char:      offset,
		LineStart: l.lineHead,
		Line:      l.line,
		Column:    offset - l.lineHead,
		File:      l.filename,
	}
}

func (l *Lexer) peek(n int) byte {
	if l.pos+n < len(l.input) {
		return l.input[l.pos+n]
	}
	return 0
}

// token builds a token from the input between start and the current
// position. The end position is that of the last character.
func (l *Lexer) token(typ token.Type, start int) token.Token {
	end := l.pos - 1
	if end < start {
		end = start
	}
	return token.Token{
		Type:          typ,
		Literal:       l.input[start:l.pos],
		StartPosition: l.position(start),
		EndPosition:   l.position(end),
	}
}

// Next returns the next token. At the end of the input it keeps returning
// EOF.
func (l *Lexer) Next() (token.Token, error) {
	l.skipBlanks()
	if l.pos >= len(l.input) {
		p := l.position(l.pos)
		return token.Token{Type: token.EOF, StartPosition: p, EndPosition: p}, nil
	}
	start := l.pos
	c := l.input[l.pos]
	switch {
	case c == '\n':
		l.pos++
		tok := l.token(token.NEWLINE, start)
		l.line++
		l.lineHead = l.pos
		return tok, nil
	case c == ',':
		l.pos++
		return l.token(token.COMMA, start), nil
	case c == ':':
		l.pos++
		return l.token(token.COLON, start), nil
	case c == '[':
		l.pos++
		return l.token(token.LBRACKET, start), nil
	case c == ']':
		l.pos++
		return l.token(token.RBRACKET, start), nil
	case c == '(':
		l.pos++
		return l.token(token.LPAREN, start), nil
	case c == ')':
		l.pos++
		return l.token(token.RPAREN, start), nil
	case c == '\'':
		return l.readChar()
	case isDigit(c) || ((c == '-' || c == '+') && isDigit(l.peek(1))):
		return l.readNumber()
	case isIdentStart(c):
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		tok := l.token(token.IDENT, start)
		tok.Type = token.LookupIdentifier(tok.Literal)
		return tok, nil
	}
	l.pos++
	return l.token(token.ILLEGAL, start), fmt.Errorf("unexpected character: %q", c)
}

// skipBlanks skips spaces, tabs, carriage returns and comments. Comments
// run from ';' to the end of the line.
func (l *Lexer) skipBlanks() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\r':
			l.pos++
		case ';':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *Lexer) readNumber() (token.Token, error) {
	start := l.pos
	if c := l.input[l.pos]; c == '-' || c == '+' {
		l.pos++
	}
	if l.input[l.pos] == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') {
		l.pos += 2
		digits := l.pos
		for l.pos < len(l.input) && isHexDigit(l.input[l.pos]) {
			l.pos++
		}
		if l.pos == digits || (l.pos < len(l.input) && isIdentChar(l.input[l.pos])) {
			return l.invalidNumber(start)
		}
		return l.token(token.INT, start), nil
	}

	typ := token.INT
	for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
		l.pos++
	}
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		typ = token.FLOAT
		l.pos++
		if !isDigit(l.peek(0)) {
			return l.invalidNumber(start)
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		typ = token.FLOAT
		l.pos++
		if c := l.peek(0); c == '-' || c == '+' {
			l.pos++
		}
		if !isDigit(l.peek(0)) {
			return l.invalidNumber(start)
		}
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
		return l.invalidNumber(start)
	}
	return l.token(typ, start), nil
}

func (l *Lexer) invalidNumber(start int) (token.Token, error) {
	if l.pos < len(l.input) {
		l.pos++
	}
	tok := l.token(token.ILLEGAL, start)
	return tok, fmt.Errorf("invalid numeric literal: %s", tok.Literal)
}

var escapes = map[byte]byte{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'0':  0,
	'\\': '\\',
	'\'': '\'',
}

// readChar reads a quoted char literal. The literal of the returned token
// is the decoded character.
func (l *Lexer) readChar() (token.Token, error) {
	start := l.pos
	l.pos++
	var value byte
	switch c := l.peek(0); {
	case c == '\\':
		v, ok := escapes[l.peek(1)]
		if !ok {
			l.pos += 2
			return l.token(token.ILLEGAL, start), fmt.Errorf("invalid escape sequence in char literal")
		}
		value = v
		l.pos += 2
	case c == '\'' || c == '\n' || c == 0:
		return l.token(token.ILLEGAL, start), fmt.Errorf("empty char literal")
	default:
		value = c
		l.pos++
	}
	if l.peek(0) != '\'' {
		return l.token(token.ILLEGAL, start), fmt.Errorf("unterminated char literal")
	}
	l.pos++
	tok := l.token(token.CHAR, start)
	tok.Literal = string([]byte{value})
	return tok, nil
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isIdentStart(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c == '_'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '.'
}
