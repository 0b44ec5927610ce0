package vm

import (
	"errors"
	"testing"
)

func TestScopeStack_DeclareAndUpdate(t *testing.T) {
	s := NewScopeStack(nil)
	x := MustVariable("", "x")
	if err := s.Declare(x, Int(1), false); err != nil {
		t.Fatalf("Declare: %v", err)
	}
	if err := s.Update(x, Int(2)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v, _ := s.Match(x); !v.Equal(Int(2)) {
		t.Errorf("x = %v, want 2", v)
	}
	if err := s.Declare(x, Int(3), false); !errors.Is(err, ErrRedeclared) {
		t.Errorf("redeclare: got %v, want ErrRedeclared", err)
	}
}

func TestScopeStack_DeclareRejectsScopedAndPathed(t *testing.T) {
	s := NewScopeStack(nil)
	for _, key := range []Variable{MustVariable("ctx", "x"), MustVariable("", "x", "y")} {
		if err := s.Declare(key, Int(1), false); !errors.Is(err, ErrInvalidDeclare) {
			t.Errorf("Declare(%s): got %v, want ErrInvalidDeclare", key, err)
		}
	}
}

func TestScopeStack_UpdatePreconditions(t *testing.T) {
	s := NewScopeStack(nil)
	c := MustVariable("", "c")
	n := MustVariable("", "n")
	d := MustVariable("", "d")
	_ = s.Declare(c, Int(1), true)
	_ = s.Declare(n, Int(5), false)
	_ = s.Declare(d, Dictionary(map[string]Data{"a": Int(1)}), false)

	tests := []struct {
		key  Variable
		want error
	}{
		{MustVariable("", "missing"), ErrUndeclared},
		{c, ErrConstant},
		{MustVariable("", "d", "x", "y"), ErrParentMissing},
		{MustVariable("", "n", "a"), ErrStructural},
		{MustVariable("", "undeclared", "a"), ErrParentMissing},
	}
	for _, tt := range tests {
		if err := s.Update(tt.key, Int(9)); !errors.Is(err, tt.want) {
			t.Errorf("Update(%s): got %v, want %v", tt.key, err, tt.want)
		}
	}

	// Nothing changed.
	if v, _ := s.Match(c); !v.Equal(Int(1)) {
		t.Errorf("c = %v", v)
	}
	if v, _ := s.Match(n); !v.Equal(Int(5)) {
		t.Errorf("n = %v", v)
	}
	if v, _ := s.Match(d); !v.Equal(Dictionary(map[string]Data{"a": Int(1)})) {
		t.Errorf("d = %v", v)
	}
}

func TestScopeStack_PathedUpdate(t *testing.T) {
	s := NewScopeStack(nil)
	d := MustVariable("", "d")
	da := MustVariable("", "d", "a")
	_ = s.Declare(d, Dictionary(map[string]Data{"a": Int(1)}), false)

	// Prime the expansion cache so the update has to purge it.
	if v, _ := s.Match(da); !v.Equal(Int(1)) {
		t.Fatalf("d.a = %v", v)
	}
	if err := s.Update(da, Int(2)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v, _ := s.Match(da); !v.Equal(Int(2)) {
		t.Errorf("d.a = %v, want 2", v)
	}
	if err := s.Update(MustVariable("", "d", "b"), String("new")); err != nil {
		t.Fatalf("Update new member: %v", err)
	}
	if v, _ := s.Match(MustVariable("", "d", "b")); !v.Equal(String("new")) {
		t.Errorf("d.b = %v", v)
	}
}

func TestScopeStack_UpdateReachesDeclaringFrame(t *testing.T) {
	s := NewScopeStack(nil)
	x := MustVariable("", "x")
	_ = s.Declare(x, Int(1), false)
	s.Push(nil)
	if err := s.Update(x, Int(7)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	s.Pop()
	if v, _ := s.Match(x); !v.Equal(Int(7)) {
		t.Errorf("x after pop = %v, want 7", v)
	}
}

func TestScopeStack_LocalsShadowContext(t *testing.T) {
	ctx := contextOf(t, map[string]any{
		"user": map[string]any{"name": "ctx"},
		"site": "example",
	})
	s := NewScopeStack(ctx)
	s.Push(ScopeVars{"user": Int(1)})

	if v, ok := s.Match(MustVariable("", "user", "name")); ok && !v.Errored() {
		t.Errorf("user.name = %v, should not show through a non-dictionary local", v)
	}
	if v, _ := s.Match(MustVariable("", "site")); !v.Equal(String("example")) {
		t.Errorf("site = %v", v)
	}
	if v, _ := s.Match(MustVariable(DefaultScope, "user", "name")); !v.Equal(String("ctx")) {
		t.Errorf("$:user.name = %v", v)
	}
	s.Pop()
	if v, _ := s.Match(MustVariable("", "user", "name")); !v.Equal(String("ctx")) {
		t.Errorf("user.name after pop = %v", v)
	}
}

func TestScopeStack_ScopeVarsAreReadOnly(t *testing.T) {
	s := NewScopeStack(nil)
	s.Push(ScopeVars{"index": Int(0)})
	if err := s.Update(MustVariable("", "index"), Int(3)); !errors.Is(err, ErrConstant) {
		t.Errorf("Update(index): got %v, want ErrConstant", err)
	}
}

func TestScopeStack_PopBaseFramePanics(t *testing.T) {
	defer func() {
		r := recover()
		if _, ok := r.(InvariantViolation); !ok {
			t.Errorf("recovered %v, want InvariantViolation", r)
		}
	}()
	NewScopeStack(nil).Pop()
}

func TestContext_LiteralOverride(t *testing.T) {
	c := NewContext()
	if err := c.RegisterLiteral("site", map[string]Data{"name": String("a")}); err != nil {
		t.Fatalf("RegisterLiteral: %v", err)
	}
	err := c.Register("site", map[string]Data{"name": String("b"), "other": Int(1)})
	if !errors.Is(err, ErrLiteralOverride) {
		t.Fatalf("Register: got %v, want ErrLiteralOverride", err)
	}
	if v, _ := c.Value("site", "name"); !v.Equal(String("a")) {
		t.Errorf("name = %v", v)
	}
	if _, ok := c.Value("site", "other"); ok {
		t.Error("failed overlay should not add keys")
	}
	if err := c.Register("site", map[string]Data{"other": Int(1)}); err != nil {
		t.Errorf("Register new key: %v", err)
	}
	if !c.IsLiteral("site", "name") || c.IsLiteral("site", "other") {
		t.Error("literal flags wrong")
	}
}

func TestContext_ScopeRoot(t *testing.T) {
	c := NewContext()
	_ = c.Register("site", map[string]Data{"a": Int(1), "b": Int(2)})
	s := NewScopeStack(c)
	v, ok := s.Match(MustVariable("site", ""))
	if !ok {
		t.Fatal("$site not found")
	}
	if m, _ := v.DictionaryValue(); len(m) != 2 {
		t.Errorf("$site = %v", v)
	}
}
