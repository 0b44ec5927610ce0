package vm

import (
	"errors"
	"testing"
)

func TestRegistry_Builtins(t *testing.T) {
	r := DefaultRegistry()
	want := []string{"define", "else", "elseif", "evaluate", "for", "if", "inline", "rawswitch", "repeat", "while"}
	got := r.BlockNames()
	if len(got) != len(want) {
		t.Fatalf("BlockNames() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BlockNames()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	for _, kind := range []string{TextBufferKind, HTMLBufferKind} {
		if _, ok := r.Buffer(kind); !ok {
			t.Errorf("buffer kind %s not registered", kind)
		}
	}
	if len(r.Functions("contains")) != 2 {
		t.Errorf("contains has %d overloads, want 2", len(r.Functions("contains")))
	}
	if len(r.Methods("Int")) != 0 {
		t.Error("conversion functions should not be methods")
	}

	names := r.FunctionNames()
	seen := make(map[string]int)
	for _, n := range names {
		seen[n]++
	}
	for _, n := range []string{"count", "join", "Int", "uppercased"} {
		if seen[n] != 1 {
			t.Errorf("FunctionNames() lists %s %d times, want once", n, seen[n])
		}
	}
}

func TestRegistry_AmbiguousOverload(t *testing.T) {
	r := NewRegistry()
	noop := func([]Data) Data { return Void }
	if err := r.RegisterFunction("f", NewFunction(Signature{param(TypeInt, TypeString)}, TypeVoid, noop)); err != nil {
		t.Fatalf("first overload: %v", err)
	}
	err := r.RegisterFunction("f", NewFunction(Signature{param(TypeString)}, TypeVoid, noop))
	if !errors.Is(err, ErrAmbiguousOverload) {
		t.Errorf("shared type: got %v, want ErrAmbiguousOverload", err)
	}
	err = r.RegisterFunction("f", NewFunction(Signature{param()}, TypeVoid, noop))
	if !errors.Is(err, ErrAmbiguousOverload) {
		t.Errorf("any type: got %v, want ErrAmbiguousOverload", err)
	}
	if err := r.RegisterFunction("f", NewFunction(Signature{param(TypeArray)}, TypeVoid, noop)); err != nil {
		t.Errorf("disjoint types: %v", err)
	}
	if err := r.RegisterFunction("f", NewFunction(Signature{param(TypeInt), param(TypeInt)}, TypeVoid, noop)); err != nil {
		t.Errorf("different arity: %v", err)
	}
	if err := r.RegisterMethod("m", NewFunction(Signature{}, TypeVoid, noop)); err == nil {
		t.Error("method without receiver parameter should be rejected")
	}
	if err := r.RegisterBlock(ifKind{}); err != nil {
		t.Fatalf("RegisterBlock: %v", err)
	}
	if err := r.RegisterBlock(ifKind{}); err == nil {
		t.Error("duplicate block should be rejected")
	}
}

func TestCall_OverloadResolution(t *testing.T) {
	r := NewRegistry()
	tag := func(s string) func([]Data) Data { return func([]Data) Data { return String(s) } }
	_ = r.RegisterFunction("f", NewFunction(Signature{param(TypeInt)}, TypeString, tag("int")))
	_ = r.RegisterFunction("f", NewFunction(Signature{param(TypeBool)}, TypeString, tag("bool")))
	_ = r.RegisterFunction("g", NewFunction(Signature{param(TypeInt), labeled("by", Int(1), TypeInt)}, TypeInt,
		func(args []Data) Data { return infix(OpMultiply, args[0], args[1]) }))

	tests := []struct {
		name string
		args *Tuple
		fn   string
		want Data
	}{
		{"exact int", NewTuple(lit(Int(3))), "f", String("int")},
		{"exact bool", NewTuple(lit(Bool(true))), "f", String("bool")},
		{"cast string to int", NewTuple(lit(String("3"))), "f", String("int")},
		{"default", NewTuple(lit(Int(4))), "g", Int(4)},
	}
	for _, tt := range tests {
		c, err := NewCall(r, tt.fn, tt.args)
		if err != nil {
			t.Fatalf("%s: NewCall: %v", tt.name, err)
		}
		if got := c.Evaluate(NewScopeStack(nil)); !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	labeledArgs := NewTuple(lit(Int(4)), lit(Int(5)))
	labeledArgs.Labels = map[string]int{"by": 1}
	c, _ := NewCall(r, "g", labeledArgs)
	if got := c.Evaluate(NewScopeStack(nil)); !got.Equal(Int(20)) {
		t.Errorf("labeled: got %v", got)
	}

	c, _ = NewCall(r, "f", NewTuple(lit(Array())))
	if got := c.Evaluate(NewScopeStack(nil)); !errors.Is(got.Err(), ErrNoOverload) {
		t.Errorf("no overload: got %v", got)
	}
	if _, err := NewCall(r, "missing", NewTuple()); err == nil {
		t.Error("unknown function should fail to resolve")
	}
}

func TestBuiltinFunctions(t *testing.T) {
	r := DefaultRegistry()
	ctx := contextOf(t, map[string]any{
		"words": []string{"b", "a"},
		"dict":  map[string]any{"y": 2, "x": 1},
	})
	call := func(name string, args ...Parameter) Data {
		c, err := NewCall(r, name, NewTuple(args...))
		if err != nil {
			t.Fatalf("NewCall(%s): %v", name, err)
		}
		return eval(ctx, CallParam(c))
	}
	sep := NewTuple(ref("words"), lit(String("-")))
	sep.Labels = map[string]int{"separator": 1}
	joinCall, _ := NewCall(r, "join", sep)

	tests := []struct {
		name string
		got  Data
		want Data
	}{
		{"count string runes", call("count", lit(String("héllo"))), Int(5)},
		{"isEmpty", call("isEmpty", lit(Array())), Bool(true)},
		{"capitalized", call("capitalized", lit(String("hello world"))), String("Hello World")},
		{"contains substring", call("contains", lit(String("leafkit")), lit(String("kit"))), Bool(true)},
		{"hasPrefix", call("hasPrefix", lit(String("leafkit")), lit(String("leaf"))), Bool(true)},
		{"keys", call("keys", ref("dict")), Array(String("x"), String("y"))},
		{"values", call("values", ref("dict")), Array(Int(1), Int(2))},
		{"join default", call("join", ref("words")), String("ba")},
		{"join separator", eval(ctx, CallParam(joinCall)), String("b-a")},
		{"type", call("type", lit(Double(1))), String("double")},
		{"Bool coerce", call("Bool", lit(Array(Int(1)))), Bool(true)},
	}
	for _, tt := range tests {
		if !tt.got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
