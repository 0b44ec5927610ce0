package compiler

import (
	"errors"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// ---------------------------------------------------------------------------
// Parameter grammar: the text between a tag's parentheses
// ---------------------------------------------------------------------------

// The grammar produces flat groups: a comma separated list of optionally
// labeled atom sequences. Operator precedence is applied afterwards by the
// expression builder, so the grammar stays free of left recursion.

var paramLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `\d+(\.\d+)?([eE][-+]?\d+)?`},
	{Name: "Scope", Pattern: `\$([A-Za-z_]\w*)?:?`},
	{Name: "Ident", Pattern: `[A-Za-z_]\w*`},
	{Name: "Operator", Pattern: `\?\?|==|!=|>=|<=|&&|\|\||\^\^|\+=|-=|\*=|/=|%=|[-+*/%=!<>?:]`},
	{Name: "Punct", Pattern: `[(),.\[\]]`},
})

var paramParser = participle.MustBuild[grammarParams](
	participle.Lexer(paramLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(3),
)

type grammarParams struct {
	Groups []*grammarGroup `( @@ ( "," @@ )* )?`
}

// grammarGroup is one parameter: an optional label and a flat run of
// atoms.
type grammarGroup struct {
	Pos   lexer.Position
	Label *string        `( @( Ident | String ) ":" )?`
	Atoms []*grammarAtom `@@+`
}

type grammarAtom struct {
	Pos    lexer.Position
	Op     *string            `  @Operator`
	Number *string            `| @Number`
	String *string            `| @String`
	Scoped *grammarScoped     `| @@`
	Path   *grammarPath       `| @@`
	Group  *grammarArgs       `| @@`
	List   *grammarCollection `| @@`
}

// grammarScoped is $scope:member.path, $:member or a bare $scope.
type grammarScoped struct {
	Scope string       `@Scope`
	Path  *grammarPath `( @@ )?`
}

// grammarPath is a dotted chain whose segments may be calls:
// a.b, count(x), list.join(separator: ", ").
type grammarPath struct {
	Segments []*grammarSegment `@@ ( "." @@ )*`
}

type grammarSegment struct {
	Pos  lexer.Position
	Name string       `@Ident`
	Call *grammarArgs `( @@ )?`
}

// grammarArgs is a parenthesised group list: call arguments, a nested
// expression or a tuple.
type grammarArgs struct {
	Pos    lexer.Position
	Groups []*grammarGroup `"(" ( @@ ( "," @@ )* )? ")"`
}

// grammarCollection is an array or dictionary literal; "[:]" is the empty
// dictionary.
type grammarCollection struct {
	Pos    lexer.Position
	Open   bool            `@"["`
	Empty  bool            `( @":" )?`
	Groups []*grammarGroup `( @@ ( "," @@ )* )?`
	Close  bool            `@"]"`
}

// parseGroups parses parameter text. base locates the text in the
// template for error positions.
func parseGroups(src string, base Position) ([]*grammarGroup, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	params, err := paramParser.ParseString("", src)
	if err != nil {
		var perr participle.Error
		if errors.As(err, &perr) {
			return nil, &SyntaxError{Pos: relocate(base, perr.Position()), Message: perr.Message()}
		}
		return nil, &SyntaxError{Pos: base, Message: err.Error()}
	}
	return params.Groups, nil
}

// relocate maps a position inside parameter text onto the template.
func relocate(base Position, p lexer.Position) Position {
	out := Position{Offset: base.Offset + p.Offset, Line: base.Line + p.Line - 1, Column: p.Column}
	if p.Line <= 1 {
		out.Column = base.Column + p.Column - 1
	}
	return out
}
