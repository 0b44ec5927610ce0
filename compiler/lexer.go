package compiler

import (
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: splits a template into raw text and tags
// ---------------------------------------------------------------------------

// Lexer tokenizes template source.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
	started bool

	// isBlock reports whether a name is a known block. A bare #name that
	// is not a block stays raw text.
	isBlock func(name string) bool
}

// NewLexer creates a lexer for input. isBlock may be nil, in which case
// only tags with a parameter list are recognised.
func NewLexer(input string, isBlock func(string) bool) *Lexer {
	if isBlock == nil {
		isBlock = func(string) bool { return false }
	}
	l := &Lexer{input: input, line: 1, col: 1, isBlock: isBlock}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.started {
		if l.ch == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
	l.started = true
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) atEOF() bool { return l.pos >= len(l.input) }

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	pos := l.position()
	switch {
	case l.atEOF():
		return Token{Type: TokenEOF, Pos: pos}
	case l.ch == '#':
		return l.readTag(pos)
	}
	return l.readRaw(pos)
}

// Tokens scans the whole input. The last token is TokenEOF or TokenError.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return toks
		}
	}
}

// readRaw reads text up to the next unescaped '#'. "\#" yields '#'.
func (l *Lexer) readRaw(pos Position) Token {
	var b strings.Builder
	for !l.atEOF() && l.ch != '#' {
		if l.ch == '\\' && l.peekChar() == '#' {
			l.readChar()
			b.WriteByte('#')
			l.readChar()
			continue
		}
		b.WriteRune(l.ch)
		l.readChar()
	}
	return Token{Type: TokenRaw, Literal: b.String(), Pos: pos}
}

// readTag reads a tag starting at '#'. A '#' that does not start a tag is
// returned as raw text.
func (l *Lexer) readTag(pos Position) Token {
	name := l.identifierAt(l.readPos)
	next := byte(0)
	if end := l.readPos + len(name); end < len(l.input) {
		next = l.input[end]
	}

	switch {
	case name == "" && next == '(':
		l.readChar() // '#'
		return l.readParams(Token{Type: TokenPassthrough, Pos: pos})

	case name == "":
		l.readChar()
		return Token{Type: TokenRaw, Literal: "#", Pos: pos}

	case strings.HasPrefix(name, "end") && l.isBlock(name[3:]) && !l.isBlock(name):
		l.skip(1 + len(name))
		return Token{Type: TokenEnd, Name: name[3:], Pos: pos}

	case next != '(' && !l.isBlock(name):
		l.readChar()
		return Token{Type: TokenRaw, Literal: "#", Pos: pos}
	}

	l.skip(1 + len(name))
	tok := Token{Type: TokenTag, Name: name, Pos: pos}
	if l.ch == '(' {
		tok = l.readParams(tok)
		if tok.Type == TokenError {
			return tok
		}
	}
	if l.ch == ':' {
		tok.Opens = true
		l.readChar()
	}
	return tok
}

// readParams reads a parenthesised parameter list at l.ch == '(' into tok,
// honouring nesting and string literals.
func (l *Lexer) readParams(tok Token) Token {
	l.readChar() // '('
	tok.ParamPos = l.position()
	start := l.pos
	depth := 1
	for !l.atEOF() {
		switch l.ch {
		case '"':
			if !l.skipString() {
				return Token{Type: TokenError, Literal: "unterminated string literal", Pos: tok.ParamPos}
			}
			continue
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				tok.Params = l.input[start:l.pos]
				tok.HasParams = true
				l.readChar()
				return tok
			}
		}
		l.readChar()
	}
	return Token{Type: TokenError, Literal: "unterminated parameter list", Pos: tok.Pos}
}

// skipString consumes a double-quoted literal at l.ch == '"'.
func (l *Lexer) skipString() bool {
	l.readChar()
	for !l.atEOF() {
		switch l.ch {
		case '\\':
			l.readChar()
		case '"':
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

func (l *Lexer) skip(n int) {
	for i := 0; i < n; i++ {
		l.readChar()
	}
}

// identifierAt returns the ASCII identifier starting at byte offset i.
func (l *Lexer) identifierAt(i int) string {
	j := i
	for j < len(l.input) {
		c := l.input[j]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (j > i && c >= '0' && c <= '9') {
			j++
			continue
		}
		break
	}
	return l.input[i:j]
}
