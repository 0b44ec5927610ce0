package vm

import (
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// Conversion lattice
// ---------------------------------------------------------------------------

func TestConversionTable_Totality(t *testing.T) {
	for _, from := range ConcreteTypes {
		for _, to := range ConcreteTypes {
			level, ok := ConversionFor(from, to)
			if !ok {
				t.Errorf("%s -> %s: no conversion entry", from, to)
			}
			if (level == Identity) != (from == to) {
				t.Errorf("%s -> %s: level %s, identity must be exactly the diagonal", from, to, level)
			}
		}
	}
}

func TestConversion_CastableImpliesCoercible(t *testing.T) {
	samples := []Data{
		Bool(true), Bool(false), String("1"), String("yes"), String("text"),
		Int(0), Int(1), Int(7), Double(0), Double(2.5),
		Bytes([]byte("abc")), Array(Int(1)), Array(), Dictionary(map[string]Data{"a": Int(1)}),
	}
	for _, d := range samples {
		for _, to := range ConcreteTypes {
			if d.IsCastable(to) && !d.IsCoercible(to) {
				t.Errorf("%s (%s) castable to %s but not coercible", d, d.BaseType(), to)
			}
		}
	}
}

func TestConversion_BoolBoundary(t *testing.T) {
	tests := []struct {
		in     Data
		want   bool
		castOK bool
	}{
		{Int(0), false, true},
		{Int(1), true, true},
		{Int(2), false, false},
		{Int(-1), false, false},
		{Double(0), false, true},
		{Double(1), true, true},
		{Double(2), false, false},
		{Double(0.5), false, false},
	}
	for _, tt := range tests {
		got := tt.in.Cast(TypeBool)
		b, ok := got.BoolValue()
		if ok != tt.castOK {
			t.Errorf("%s.Cast(bool): castable = %v, want %v", tt.in, ok, tt.castOK)
			continue
		}
		if ok && b != tt.want {
			t.Errorf("%s.Cast(bool) = %v, want %v", tt.in, b, tt.want)
		}
	}
}

func TestConversion_StringKeywords(t *testing.T) {
	for in, want := range map[string]bool{"true": true, "YES": true, "1": true, "false": false, "No": false, "0": false} {
		b, ok := String(in).Cast(TypeBool).BoolValue()
		if !ok || b != want {
			t.Errorf("%q.Cast(bool) = %v (%v), want %v", in, b, ok, want)
		}
	}
	if !String("maybe").Cast(TypeBool).IsNil() {
		t.Error(`"maybe".Cast(bool) should fail`)
	}
	if i, ok := String("42").Cast(TypeInt).IntValue(); !ok || i != 42 {
		t.Errorf(`"42".Cast(int) = %d, %v`, i, ok)
	}
	if f, ok := String("2.5").Cast(TypeDouble).DoubleValue(); !ok || f != 2.5 {
		t.Errorf(`"2.5".Cast(double) = %v, %v`, f, ok)
	}
}

func TestConversion_AmbiguousNeedsCoerce(t *testing.T) {
	arr := Array(Int(1), Int(2))
	if !arr.Cast(TypeString).IsNil() {
		t.Error("array -> string must not be castable")
	}
	s, ok := arr.Coerce(TypeString).StringValue()
	if !ok || s != "[1, 2]" {
		t.Errorf("array.Coerce(string) = %q, want [1, 2]", s)
	}
	m, ok := arr.Coerce(TypeDictionary).DictionaryValue()
	if !ok || len(m) != 2 || !m["0"].Equal(Int(1)) {
		t.Errorf("array.Coerce(dictionary) = %v", m)
	}
	if !Int(3).Coerce(TypeArray).IsNil() {
		t.Error("int -> array must always fail")
	}
}

func TestConversion_CollectionEmptinessToBool(t *testing.T) {
	if b, _ := Array().Convert(TypeBool, Coercible).BoolValue(); b {
		t.Error("empty array should convert to false")
	}
	if b, _ := Dictionary(map[string]Data{"a": Void}).Convert(TypeBool, Coercible).BoolValue(); !b {
		t.Error("non-empty dictionary should convert to true")
	}
}

func TestConversion_UnwrapsOptionalAndLazy(t *testing.T) {
	one := Int(1)
	if b, ok := Optional(&one, TypeInt).Cast(TypeBool).BoolValue(); !ok || !b {
		t.Error("optional(1).Cast(bool) should be true")
	}
	l := Lazy(func() Data { return String("7") }, TypeString, true)
	if i, ok := l.Cast(TypeInt).IntValue(); !ok || i != 7 {
		t.Errorf("lazy(\"7\").Cast(int) = %d, %v", i, ok)
	}
	if !None(TypeInt).Cast(TypeString).IsNil() {
		t.Error("none.Cast should be nil")
	}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

func TestData_EqualOptionalNone(t *testing.T) {
	if !None(TypeInt).Equal(None(TypeString)) {
		t.Error("none values of differing declared types should be equal")
	}
	if None(TypeInt).Equal(Int(0)) {
		t.Error("none should never equal a concrete value")
	}
	if !None(TypeBool).Equal(Void) {
		t.Error("none should equal void")
	}
}

func TestData_EqualLazyPurity(t *testing.T) {
	calls := 0
	impure := Lazy(func() Data { calls++; return Int(1) }, TypeInt, false)
	if impure.Equal(Int(1)) {
		t.Error("impure lazy value should not compare equal")
	}
	if calls != 0 {
		t.Errorf("impure lazy value forced %d times during equality", calls)
	}
	pure := Lazy(func() Data { return Int(1) }, TypeInt, true)
	if !pure.Equal(Int(1)) {
		t.Error("pure lazy value should compare by result")
	}
}

func TestData_EqualStructural(t *testing.T) {
	a := Dictionary(map[string]Data{"x": Array(Int(1), String("s"))})
	b := Dictionary(map[string]Data{"x": Array(Int(1), String("s"))})
	if !a.Equal(b) {
		t.Error("structurally equal dictionaries should be equal")
	}
	if a.Equal(Dictionary(map[string]Data{"x": Array(Int(1))})) {
		t.Error("different arrays should not be equal")
	}
}

func TestData_BaseTypeOfWrappers(t *testing.T) {
	if got := None(TypeDouble).BaseType(); got != TypeDouble {
		t.Errorf("none(double).BaseType() = %s", got)
	}
	if got := Lazy(func() Data { return Void }, TypeArray, true).BaseType(); got != TypeArray {
		t.Errorf("lazy(array).BaseType() = %s", got)
	}
}

func TestWrap(t *testing.T) {
	d, err := Wrap(map[string]any{
		"n":    3,
		"f":    1.5,
		"list": []string{"a", "b"},
		"nil":  nil,
	})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	m, _ := d.DictionaryValue()
	if i, _ := m["n"].IntValue(); i != 3 {
		t.Errorf("n = %v", m["n"])
	}
	if f, _ := m["f"].DoubleValue(); f != 1.5 {
		t.Errorf("f = %v", m["f"])
	}
	if arr, _ := m["list"].ArrayValue(); len(arr) != 2 {
		t.Errorf("list = %v", m["list"])
	}
	if !m["nil"].IsNil() {
		t.Errorf("nil = %v", m["nil"])
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   Data
		want string
	}{
		{Void, ""},
		{Int(-3), "-3"},
		{Double(2.5), "2.5"},
		{Double(math.Inf(1)), "+Inf"},
		{Array(Int(1), String("a")), `[1, "a"]`},
		{Dictionary(map[string]Data{"b": Int(2), "a": Int(1)}), `["a": 1, "b": 2]`},
		{Dictionary(nil), "[:]"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("Format(%#v) = %q, want %q", tt.in.BaseType(), got, tt.want)
		}
	}
}
