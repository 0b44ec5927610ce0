package vm

import (
	"testing"
)

// ---------------------------------------------------------------------------
// Fixture helpers shared by the vm tests
// ---------------------------------------------------------------------------

func ref(token string) Parameter {
	v, err := ParseVariable(token)
	if err != nil {
		panic(err)
	}
	return VariableParam(v)
}

func lit(d Data) Parameter { return ValueParam(d) }

func op(o Operator) Parameter { return OperatorParam(o) }

func kw(k Keyword) Parameter { return KeywordParam(k) }

func expr(params ...Parameter) Parameter { return ExpressionParam(MustExpression(params...)) }

func blockSyntax(name string, params ...Parameter) *BlockSyntax {
	k, ok := DefaultRegistry().Block(name)
	if !ok {
		panic("no block " + name)
	}
	t := NewTuple(params...)
	if err := k.Validate(t); err != nil {
		panic(err)
	}
	return &BlockSyntax{Name: name, Kind: k, Params: t}
}

// builder wraps ASTBuilder with chainable helpers for tests.
type builder struct {
	*ASTBuilder
}

func newBuilder() builder { return builder{NewASTBuilder("test")} }

func (b builder) raw(table int, s string) builder {
	b.Raw(table, []byte(s))
	return b
}

func (b builder) out(table int, p Parameter) builder {
	b.Passthrough(table, p)
	return b
}

// open appends a block with a fresh body table and returns that table.
func (b builder) open(table int, name string, params ...Parameter) int {
	b.Block(table, blockSyntax(name, params...))
	body := b.NewTable()
	b.Body(table, body)
	return body
}

func (b builder) build(t *testing.T) *AST {
	t.Helper()
	ast, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return ast
}

func contextOf(t *testing.T, values map[string]any) *Context {
	t.Helper()
	ctx, err := ContextFrom(values)
	if err != nil {
		t.Fatalf("ContextFrom: %v", err)
	}
	return ctx
}

func render(t *testing.T, ast *AST, ctx *Context) string {
	t.Helper()
	buf, err := NewSerializer(DefaultOptions()).Serialize(ast, ctx)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	return string(buf.Bytes())
}

// eval evaluates p against a fresh stack over ctx.
func eval(ctx *Context, p Parameter) Data {
	return p.Evaluate(NewScopeStack(ctx))
}
