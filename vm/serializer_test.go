package vm

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestSerialize_RawAndPassthrough(t *testing.T) {
	b := newBuilder().raw(0, "Hello, ").out(0, ref("name")).raw(0, "!")
	got := render(t, b.build(t), contextOf(t, map[string]any{"name": "World"}))
	if got != "Hello, World!" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_ForFlags(t *testing.T) {
	tests := []struct {
		items []any
		want  string
	}{
		{[]any{1, 2, 3}, "0:true,false;1:false,false;2:false,true;"},
		{[]any{"only"}, "0:true,true;"},
		{[]any{}, ""},
	}
	for _, tt := range tests {
		b := newBuilder()
		body := b.open(0, "for", expr(ref("x"), kw(KwIn), ref("items")))
		b.out(body, ref("index")).raw(body, ":").
			out(body, ref("isFirst")).raw(body, ",").
			out(body, ref("isLast")).raw(body, ";")
		got := render(t, b.build(t), contextOf(t, map[string]any{"items": tt.items}))
		if got != tt.want {
			t.Errorf("for over %v = %q, want %q", tt.items, got, tt.want)
		}
	}
}

func TestSerialize_ForSources(t *testing.T) {
	pair := TupleParam(NewTuple(ref("k"), ref("v")))
	tests := []struct {
		name string
		loop Parameter
		body func(b builder, table int)
		want string
	}{
		{
			name: "dictionary pairs in key order",
			loop: expr(pair, kw(KwIn), ref("dict")),
			body: func(b builder, table int) { b.out(table, ref("k")).raw(table, "=").out(table, ref("v")).raw(table, ";") },
			want: "a=1;b=2;",
		},
		{
			name: "int range",
			loop: expr(ref("i"), kw(KwIn), lit(Int(3))),
			body: func(b builder, table int) { b.out(table, ref("i")) },
			want: "012",
		},
		{
			name: "string runes",
			loop: expr(ref("c"), kw(KwIn), lit(String("hé!"))),
			body: func(b builder, table int) { b.raw(table, "[").out(table, ref("c")).raw(table, "]") },
			want: "[h][é][!]",
		},
		{
			name: "discarded binding only counts",
			loop: expr(kw(KwDiscard), kw(KwIn), lit(Int(2))),
			body: func(b builder, table int) { b.raw(table, "x") },
			want: "xx",
		},
	}
	ctx := contextOf(t, map[string]any{"dict": map[string]any{"b": 2, "a": 1}})
	for _, tt := range tests {
		b := newBuilder()
		body := b.open(0, "for", tt.loop)
		tt.body(b, body)
		if got := render(t, b.build(t), ctx); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSerialize_NestedLoops(t *testing.T) {
	b := newBuilder()
	outer := b.open(0, "for", expr(ref("row"), kw(KwIn), ref("rows")))
	inner := b.open(outer, "for", expr(ref("cell"), kw(KwIn), ref("row")))
	b.out(inner, ref("cell"))
	b.raw(outer, "|")
	ctx := contextOf(t, map[string]any{"rows": []any{[]any{1, 2}, []any{}, []any{3}}})
	if got := render(t, b.build(t), ctx); got != "12||3|" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_LoopDeclarationsResetPerPass(t *testing.T) {
	b := newBuilder()
	body := b.open(0, "for", expr(ref("x"), kw(KwIn), lit(Int(3))))
	b.out(body, expr(kw(KwVar), ref("n"), op(OpAssign), ref("x")))
	b.out(body, ref("n"))
	if got := render(t, b.build(t), nil); got != "012" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_AssignmentWritesNothing(t *testing.T) {
	b := newBuilder().
		out(0, expr(kw(KwVar), ref("x"), op(OpAssign), lit(Int(1)))).
		out(0, expr(ref("x"), op(OpAssign), lit(Int(2)))).
		out(0, ref("x"))
	if got := render(t, b.build(t), nil); got != "2" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_AssignmentToConstantFails(t *testing.T) {
	b := newBuilder().
		out(0, expr(kw(KwLet), ref("x"), op(OpAssign), lit(Int(1)))).
		out(0, expr(ref("x"), op(OpAssign), lit(Int(2))))
	_, err := NewSerializer(DefaultOptions()).Serialize(b.build(t), nil)
	if !errors.Is(err, ErrConstant) {
		t.Errorf("got %v, want ErrConstant", err)
	}
}

func TestSerialize_While(t *testing.T) {
	b := newBuilder().out(0, expr(kw(KwVar), ref("i"), op(OpAssign), lit(Int(0))))
	body := b.open(0, "while", expr(ref("i"), op(OpLesser), lit(Int(3))))
	b.out(body, ref("i")).out(body, expr(ref("i"), op(OpPlusAssign), lit(Int(1))))
	b.raw(0, ".")
	if got := render(t, b.build(t), nil); got != "012." {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_RepeatRunsBodyFirst(t *testing.T) {
	tests := []struct {
		start int64
		want  string
	}{
		{0, "012"},
		{5, "5"},
	}
	for _, tt := range tests {
		b := newBuilder().out(0, expr(kw(KwVar), ref("i"), op(OpAssign), lit(Int(tt.start))))
		body := b.open(0, "repeat", expr(ref("i"), op(OpLesser), lit(Int(3))))
		b.out(body, ref("i")).out(body, expr(ref("i"), op(OpPlusAssign), lit(Int(1))))
		if got := render(t, b.build(t), nil); got != tt.want {
			t.Errorf("repeat from %d = %q, want %q", tt.start, got, tt.want)
		}
	}
}

func TestSerialize_Timeout(t *testing.T) {
	b := newBuilder()
	body := b.open(0, "while", kw(KwTrue))
	b.raw(body, "x")

	opts := DefaultOptions()
	opts.Timeout = time.Millisecond
	start := time.Now()
	buf, err := NewSerializer(opts).Serialize(b.build(t), nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if buf != nil {
		t.Error("a failed render should return no buffer")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestOptions_TimeoutFloor(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = time.Microsecond
	if got := NewSerializer(opts).Options().Timeout; got != MinimumTimeout {
		t.Errorf("Timeout = %s, want %s", got, MinimumTimeout)
	}
	if got := NewSerializer(Options{}).Options().Timeout; got != DefaultTimeout {
		t.Errorf("zero Timeout = %s, want %s", got, DefaultTimeout)
	}
}

// chain builds #if(a):A #elseif(b):B #else:C.
func chain(t *testing.T, a, b Parameter) *AST {
	bld := newBuilder()
	bld.raw(bld.open(0, "if", a), "A")
	bld.raw(bld.open(0, "elseif", b), "B")
	bld.raw(bld.open(0, "else"), "C")
	bld.raw(0, ".")
	return bld.build(t)
}

func TestSerialize_ConditionalChain(t *testing.T) {
	divByZero := expr(lit(Int(1)), op(OpDivide), lit(Int(0)))
	tests := []struct {
		name string
		a, b Parameter
		want string
	}{
		{"first link", kw(KwTrue), divByZero, "A."},
		{"second link", kw(KwFalse), kw(KwTrue), "B."},
		{"else", kw(KwFalse), kw(KwFalse), "C."},
	}
	for _, tt := range tests {
		if got := render(t, chain(t, tt.a, tt.b), nil); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}

	_, err := NewSerializer(DefaultOptions()).Serialize(chain(t, kw(KwFalse), divByZero), nil)
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("evaluated failing condition: got %v, want ErrDivisionByZero", err)
	}
}

func TestSerialize_ConsecutiveChains(t *testing.T) {
	b := newBuilder()
	b.raw(b.open(0, "if", kw(KwTrue)), "1")
	b.raw(b.open(0, "if", kw(KwTrue)), "2")
	b.raw(b.open(0, "else"), "3")
	if got := render(t, b.build(t), nil); got != "12" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_AtomicBody(t *testing.T) {
	b := newBuilder()
	b.Block(0, blockSyntax("if", kw(KwFalse)))
	b.AtomicBody(0)
	b.raw(0, "hidden")
	b.Block(0, blockSyntax("if", kw(KwTrue)))
	b.AtomicBody(0)
	b.out(0, lit(String("shown")))
	b.raw(0, ".")
	if got := render(t, b.build(t), nil); got != "shown." {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_DefineEvaluate(t *testing.T) {
	b := newBuilder()
	def := b.open(0, "define", ref("greeting"))
	b.raw(def, "Hi ").out(def, ref("name"))
	b.Block(0, blockSyntax("define", ref("answer"), lit(Int(42))))
	b.EmptyBody(0)

	b.Block(0, blockSyntax("evaluate", ref("greeting")))
	b.EmptyBody(0)
	b.raw(0, ";")
	b.Block(0, blockSyntax("evaluate", ref("answer")))
	b.EmptyBody(0)
	b.raw(0, ";")
	b.Block(0, blockSyntax("evaluate", expr(ref("absent"), op(OpNilCoalesce), lit(String("default")))))
	b.EmptyBody(0)

	got := render(t, b.build(t), contextOf(t, map[string]any{"name": "Ann"}))
	if got != "Hi Ann;42;default" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_DefinitionsAreScoped(t *testing.T) {
	b := newBuilder()
	body := b.open(0, "if", kw(KwTrue))
	b.Block(body, blockSyntax("define", ref("inner"), lit(Int(1))))
	b.EmptyBody(body)
	b.Block(0, blockSyntax("evaluate", ref("inner")))
	b.EmptyBody(0)

	_, err := NewSerializer(DefaultOptions()).Serialize(b.build(t), nil)
	if !errors.Is(err, ErrMissingDefinition) {
		t.Errorf("got %v, want ErrMissingDefinition", err)
	}
}

func TestSerialize_RawSwitch(t *testing.T) {
	b := newBuilder().out(0, ref("s"))
	body := b.open(0, "rawswitch", ref("html"))
	b.raw(body, "<i>").out(body, ref("s")).raw(body, "</i>")
	b.out(0, ref("s"))

	got := render(t, b.build(t), contextOf(t, map[string]any{"s": "<b>"}))
	if want := "<b><i>&lt;b&gt;</i><b>"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSerialize_MissingVariablePolicy(t *testing.T) {
	ast := newBuilder().raw(0, "[").out(0, ref("missing")).raw(0, "]").build(t)

	_, err := NewSerializer(DefaultOptions()).Serialize(ast, nil)
	if !errors.Is(err, ErrMissingVariable) {
		t.Errorf("throwing policy: got %v, want ErrMissingVariable", err)
	}

	opts := DefaultOptions()
	opts.MissingVariableThrows = false
	buf, err := NewSerializer(opts).Serialize(ast, nil)
	if err != nil {
		t.Fatalf("decaying policy: %v", err)
	}
	if got := string(buf.Bytes()); got != "[]" {
		t.Errorf("decaying policy: got %q", got)
	}
}

func TestSerialize_MissingVariableInCondition(t *testing.T) {
	b := newBuilder()
	b.raw(b.open(0, "if", ref("flag")), "yes")
	b.raw(b.open(0, "else"), "no")
	ast := b.build(t)

	opts := DefaultOptions()
	opts.MissingVariableThrows = false
	buf, err := NewSerializer(opts).Serialize(ast, nil)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if got := string(buf.Bytes()); got != "no" {
		t.Errorf("got %q", got)
	}
}

func inlineSyntax(file string, raw bool) *BlockSyntax {
	params := NewTuple(lit(String(file)))
	if raw {
		params = NewTuple(lit(String(file)), ref("raw"))
		params.Labels = map[string]int{"as": 1}
	}
	return &BlockSyntax{Name: "inline", Kind: inlineKind, Params: params}
}

func TestSerialize_Inline(t *testing.T) {
	part := newBuilder().raw(0, "x=").out(0, ref("x")).build(t)

	b := newBuilder().raw(0, "[")
	b.Block(0, inlineSyntax("part", false))
	b.EmptyBody(0)
	b.raw(0, "|")
	b.Block(0, inlineSyntax("notes.txt", true))
	b.EmptyBody(0)
	b.raw(0, "]")
	main := b.build(t)

	if names := main.Unresolved(); len(names) != 2 {
		t.Fatalf("Unresolved() = %v", names)
	}
	_, err := NewSerializer(DefaultOptions()).Serialize(main, nil)
	if !errors.Is(err, ErrUnresolvedInline) {
		t.Errorf("unresolved: got %v, want ErrUnresolvedInline", err)
	}

	resolved := main.Resolve(map[string]*AST{"part": part}, map[string][]byte{"notes.txt": []byte("#(x)")})
	if names := resolved.Unresolved(); len(names) != 0 {
		t.Fatalf("still unresolved: %v", names)
	}
	if err := resolved.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := render(t, resolved, contextOf(t, map[string]any{"x": 1}))
	if want := "[x=1|#(x)]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if len(main.Unresolved()) != 2 {
		t.Error("Resolve modified its receiver")
	}
}

func TestSerialize_PartialResolve(t *testing.T) {
	b := newBuilder()
	b.Block(0, inlineSyntax("a", false))
	b.EmptyBody(0)
	b.Block(0, inlineSyntax("b", false))
	b.EmptyBody(0)
	main := b.build(t)

	nested := newBuilder()
	nested.Block(0, inlineSyntax("b", false))
	nested.EmptyBody(0)

	resolved := main.Resolve(map[string]*AST{"a": nested.build(t)}, nil)
	names := resolved.Unresolved()
	if len(names) != 1 || names[0] != "b" {
		t.Errorf("Unresolved() = %v, want [b]", names)
	}
	leaf := newBuilder().raw(0, "B").build(t)
	full := resolved.Resolve(map[string]*AST{"b": leaf}, nil)
	if got := render(t, full, nil); got != "BB" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_Calls(t *testing.T) {
	r := DefaultRegistry()
	call := func(name string, args ...Parameter) Parameter {
		c, err := NewCall(r, name, NewTuple(args...))
		if err != nil {
			t.Fatalf("NewCall(%s): %v", name, err)
		}
		return CallParam(c)
	}
	method := func(recv Parameter, name string) Parameter {
		c, err := NewMethodCall(r, name, recv, NewTuple())
		if err != nil {
			t.Fatalf("NewMethodCall(%s): %v", name, err)
		}
		return CallParam(c)
	}
	b := newBuilder().
		out(0, call("count", ref("list"))).raw(0, " ").
		out(0, method(ref("name"), "uppercased")).raw(0, " ").
		out(0, call("contains", ref("list"), lit(Int(2)))).raw(0, " ").
		out(0, call("Int", lit(String("12"))))
	ctx := contextOf(t, map[string]any{"list": []int{1, 2, 3}, "name": "leaf"})
	if got := render(t, b.build(t), ctx); got != "3 LEAF true 12" {
		t.Errorf("got %q", got)
	}
}

func TestSerialize_ConcurrentRenders(t *testing.T) {
	b := newBuilder()
	body := b.open(0, "for", expr(ref("x"), kw(KwIn), ref("n")))
	b.out(body, expr(kw(KwVar), ref("sq"), op(OpAssign), expr(ref("x"), op(OpMultiply), ref("x"))))
	b.out(body, ref("sq")).raw(body, ",")
	ast := b.build(t)
	s := NewSerializer(DefaultOptions())

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ctx, _ := ContextFrom(map[string]any{"n": n})
			buf, err := s.Serialize(ast, ctx)
			if err != nil {
				errs <- err
				return
			}
			want := ""
			for x := 0; x < n; x++ {
				want += fmt.Sprintf("%d,", x*x)
			}
			if got := string(buf.Bytes()); got != want {
				errs <- fmt.Errorf("n=%d: got %q, want %q", n, got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
