package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the template scanner
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError

	TokenRaw         // literal template text
	TokenPassthrough // #(expression)
	TokenTag         // #name, #name(params), optionally followed by ':'
	TokenEnd         // #endname
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenRaw:         "RAW",
	TokenPassthrough: "PASSTHROUGH",
	TokenTag:         "TAG",
	TokenEnd:         "END",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a location in template source.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

// Token represents a lexical token of a template.
type Token struct {
	Type    TokenType
	Literal string   // raw text, or the error message for TokenError
	Pos     Position // start position

	// Tags and passthroughs.
	Name      string
	Params    string   // text between the parentheses
	ParamPos  Position // position of the first byte of Params
	HasParams bool
	Opens     bool // tag ends with ':' and opens a body
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	case TokenPassthrough:
		return fmt.Sprintf("#(%s)", t.Params)
	case TokenTag:
		s := "#" + t.Name
		if t.HasParams {
			s += "(" + t.Params + ")"
		}
		if t.Opens {
			s += ":"
		}
		return s
	case TokenEnd:
		return "#end" + t.Name
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}
