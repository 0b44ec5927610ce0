package vm

import (
	"errors"
	"math"
	"testing"
)

func TestInfix_Arithmetic(t *testing.T) {
	tests := []struct {
		name string
		l    Data
		o    Operator
		r    Data
		want Data
	}{
		{"int sum", Int(2), OpPlus, Int(3), Int(5)},
		{"mixed promotes", Int(1), OpPlus, Double(0.5), Double(1.5)},
		{"int division truncates", Int(7), OpDivide, Int(2), Int(3)},
		{"modulo", Int(7), OpModulo, Int(4), Int(3)},
		{"double modulo", Double(7.5), OpModulo, Int(2), Double(1.5)},
		{"string concat", String("a"), OpPlus, Int(1), String("a1")},
		{"array concat", Array(Int(1)), OpPlus, Array(Int(2)), Array(Int(1), Int(2))},
		{"bytes concat", Bytes([]byte("ab")), OpPlus, Bytes([]byte("c")), Bytes([]byte("abc"))},
		{"type mismatch", Int(1), OpMinus, String("x"), Void},
		{"min int modulo -1", Int(math.MinInt64), OpModulo, Int(-1), Int(0)},
	}
	for _, tt := range tests {
		if got := infix(tt.o, tt.l, tt.r); !got.Equal(tt.want) {
			t.Errorf("%s: %s %s %s = %v, want %v", tt.name, tt.l, tt.o, tt.r, got, tt.want)
		}
	}
}

func TestInfix_ArithmeticErrors(t *testing.T) {
	tests := []struct {
		l    Data
		o    Operator
		r    Data
		want error
	}{
		{Int(math.MaxInt64), OpPlus, Int(1), ErrOverflow},
		{Int(math.MinInt64), OpMinus, Int(1), ErrOverflow},
		{Int(math.MaxInt64), OpMultiply, Int(2), ErrOverflow},
		{Int(math.MinInt64), OpDivide, Int(-1), ErrOverflow},
		{Int(1), OpDivide, Int(0), ErrDivisionByZero},
		{Int(1), OpModulo, Int(0), ErrDivisionByZero},
	}
	for _, tt := range tests {
		got := infix(tt.o, tt.l, tt.r)
		if !got.Errored() || !errors.Is(got.Err(), tt.want) {
			t.Errorf("%s %s %s = %v, want %v", tt.l, tt.o, tt.r, got, tt.want)
		}
	}
}

func TestInfix_DictionaryMerge(t *testing.T) {
	a := Dictionary(map[string]Data{"a": Int(1)})
	b := Dictionary(map[string]Data{"b": Int(2)})
	merged := infix(OpPlus, a, b)
	if !merged.Equal(Dictionary(map[string]Data{"a": Int(1), "b": Int(2)})) {
		t.Errorf("disjoint merge = %v", merged)
	}
	clash := Dictionary(map[string]Data{"a": Int(9)})
	if got := infix(OpPlus, a, clash); !got.IsNil() {
		t.Errorf("overlapping merge = %v, want void", got)
	}
}

func TestInfix_Comparisons(t *testing.T) {
	tests := []struct {
		l    Data
		o    Operator
		r    Data
		want Data
	}{
		{Int(1), OpLesser, Int(2), Bool(true)},
		{Int(2), OpGreater, Double(1.5), Bool(true)},
		{Int(2), OpGreaterOrEqual, Int(2), Bool(true)},
		{Int(3), OpLesserOrEqual, Int(2), Bool(false)},
		{String("a"), OpLesser, String("b"), Bool(true)},
		{Int(1), OpLesser, String("2"), Void},
		{Array(), OpLesser, Array(), Void},
		{Void, OpGreater, Int(0), Void},
		{Int(1), OpEqual, Double(1), Bool(true)},
		{String("1"), OpEqual, Int(1), Bool(false)},
		{Array(Int(1)), OpUnequal, Array(Int(1)), Bool(false)},
	}
	for _, tt := range tests {
		if got := infix(tt.o, tt.l, tt.r); !got.Equal(tt.want) {
			t.Errorf("%s %s %s = %v, want %v", tt.l, tt.o, tt.r, got, tt.want)
		}
	}
}

func TestInfix_NilCoalesce(t *testing.T) {
	if got := infix(OpNilCoalesce, Void, Int(5)); !got.Equal(Int(5)) {
		t.Errorf("nil ?? 5 = %v", got)
	}
	if got := infix(OpNilCoalesce, Int(3), Int(5)); !got.Equal(Int(3)) {
		t.Errorf("3 ?? 5 = %v", got)
	}
	missing := Errored(evalError(KindMissingVariable, "test", "x"))
	if got := infix(OpNilCoalesce, missing, Int(5)); !got.Equal(Int(5)) {
		t.Errorf("missing ?? 5 = %v", got)
	}
	if got := infix(OpPlus, missing, Int(5)); !got.Errored() {
		t.Errorf("missing + 5 = %v, want errored", got)
	}
}

func TestExpression_VariablesAndUnary(t *testing.T) {
	ctx := contextOf(t, map[string]any{"n": 4, "flag": false, "list": []int{1}})
	tests := []struct {
		name string
		p    Parameter
		want Data
	}{
		{"negate", expr(op(OpMinus), ref("n")), Int(-4)},
		{"not", expr(op(OpNot), ref("flag")), Bool(true)},
		{"exists", expr(ref("n"), op(OpQuestion)), Bool(true)},
		{"missing exists", expr(ref("nope"), op(OpQuestion)), Bool(false)},
		{"missing coalesced", expr(ref("nope"), op(OpNilCoalesce), lit(Int(1))), Int(1)},
		{"nested", expr(expr(ref("n"), op(OpMultiply), lit(Int(2))), op(OpEqual), lit(Int(8))), Bool(true)},
		{"self", expr(kw(KwSelf), op(OpQuestion)), Bool(true)},
	}
	for _, tt := range tests {
		if got := eval(ctx, tt.p); !got.Equal(tt.want) {
			t.Errorf("%s: %s = %v, want %v", tt.name, tt.p, got, tt.want)
		}
	}
	if got := eval(ctx, ref("nope")); !errors.Is(got.Err(), ErrMissingVariable) {
		t.Errorf("missing variable = %v", got)
	}
}

func TestExpression_ShortCircuit(t *testing.T) {
	ctx := contextOf(t, map[string]any{"t": true, "f": false})
	// The right operands are undefined; they must not be reached.
	if got := eval(ctx, expr(ref("f"), op(OpAnd), ref("undefined"))); !got.Equal(Bool(false)) {
		t.Errorf("false && undefined = %v", got)
	}
	if got := eval(ctx, expr(ref("t"), op(OpOr), ref("undefined"))); !got.Equal(Bool(true)) {
		t.Errorf("true || undefined = %v", got)
	}
	if got := eval(ctx, expr(ref("t"), op(OpAnd), ref("undefined"))); !got.Errored() {
		t.Errorf("true && undefined = %v, want errored", got)
	}
}

func TestExpression_Ternary(t *testing.T) {
	ctx := contextOf(t, map[string]any{"ok": true})
	e, err := NewTernary(ref("ok"), lit(String("yes")), ref("undefined"))
	if err != nil {
		t.Fatalf("NewTernary: %v", err)
	}
	if got := eval(ctx, ExpressionParam(e)); !got.Equal(String("yes")) {
		t.Errorf("ternary = %v", got)
	}
}

func TestExpression_DeclarationAndAssignment(t *testing.T) {
	s := NewScopeStack(nil)
	steps := []Parameter{
		expr(kw(KwVar), ref("x"), op(OpAssign), lit(Int(10))),
		expr(ref("x"), op(OpPlusAssign), lit(Int(5))),
		expr(ref("x"), op(OpMultiplyAssign), lit(Int(2))),
		expr(ref("x"), op(OpModuloAssign), lit(Int(7))),
	}
	for _, p := range steps {
		if got := p.Evaluate(s); !got.IsNil() || got.Errored() {
			t.Fatalf("%s = %v, want void", p, got)
		}
	}
	if v, _ := s.Match(MustVariable("", "x")); !v.Equal(Int(2)) {
		t.Errorf("x = %v, want 2", v)
	}

	let := expr(kw(KwLet), ref("k"), lit(String("c")))
	_ = let.Evaluate(s)
	got := expr(ref("k"), op(OpAssign), lit(String("d"))).Evaluate(s)
	if !errors.Is(got.Err(), ErrConstant) {
		t.Errorf("assign to let = %v, want ErrConstant", got)
	}

	got = expr(ref("y"), op(OpPlusAssign), lit(Int(1))).Evaluate(s)
	if !errors.Is(got.Err(), ErrUndeclared) {
		t.Errorf("compound assign to undeclared = %v, want ErrUndeclared", got)
	}

	got = expr(kw(KwVar), ref("z")).Evaluate(s)
	if got.Errored() {
		t.Fatalf("var z = %v", got)
	}
	if v, ok := s.Match(MustVariable("", "z")); !ok || !v.IsNil() {
		t.Errorf("z = %v, %v, want void", v, ok)
	}
}

func TestNewExpression_Invalid(t *testing.T) {
	tests := [][]Parameter{
		{lit(Int(1)), op(OpAssign), lit(Int(2))},
		{kw(KwVar), ref("a.b"), lit(Int(1))},
		{kw(KwVar), ref("$x:a"), lit(Int(1))},
		{lit(Int(1)), op(OpPlus), op(OpMinus)},
		{op(OpNot), op(OpNot)},
		{lit(Int(1))},
		{lit(Int(1)), lit(Int(2)), lit(Int(3))},
	}
	for _, params := range tests {
		if _, err := NewExpression(params); err == nil {
			t.Errorf("NewExpression(%s) should fail", paramList(params))
		}
	}
}

func TestExpression_CustomIsNotEvaluable(t *testing.T) {
	e := MustExpression(ref("x"), kw(KwIn), ref("xs"))
	if e.IsEvaluable() {
		t.Error("x in xs should not be evaluable")
	}
	if got := e.Evaluate(NewScopeStack(nil)); !errors.Is(got.Err(), ErrNotEvaluable) {
		t.Errorf("Evaluate = %v", got)
	}
}

func TestTuple_Evaluate(t *testing.T) {
	ctx := contextOf(t, map[string]any{"n": 1})
	arr := NewTuple(ref("n"), lit(String("a")))
	if got := eval(ctx, TupleParam(arr)); !got.Equal(Array(Int(1), String("a"))) {
		t.Errorf("array tuple = %v", got)
	}

	dict := NewTuple(ref("n"), lit(Int(2)))
	dict.Labels = map[string]int{"x": 0, "y": 1}
	if got := eval(ctx, TupleParam(dict)); !got.Equal(Dictionary(map[string]Data{"x": Int(1), "y": Int(2)})) {
		t.Errorf("dictionary tuple = %v", got)
	}

	empty := NewTuple()
	empty.Labels = map[string]int{}
	if got := eval(ctx, TupleParam(empty)); got.BaseType() != TypeDictionary {
		t.Errorf("[:] = %v (%s)", got, got.BaseType())
	}

	bad := NewTuple(lit(Int(1)), ref("missing"))
	if got := eval(ctx, TupleParam(bad)); !got.Errored() {
		t.Errorf("tuple with missing element = %v, want errored", got)
	}
}
