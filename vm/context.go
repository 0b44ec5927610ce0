package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Context: layered named scopes supplied by the caller
// ---------------------------------------------------------------------------

// Context holds the caller's values, grouped into named scopes. The
// default scope is DefaultScope. A Context is configured before rendering
// and only read afterwards, so one Context can serve concurrent renders.
type Context struct {
	scopes map[string]*contextScope
}

type contextScope struct {
	values  map[string]Data
	literal map[string]bool
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{scopes: make(map[string]*contextScope)}
}

// ContextFrom wraps a host dictionary into the default scope.
func ContextFrom(values map[string]any) (*Context, error) {
	c := NewContext()
	wrapped := make(map[string]Data, len(values))
	for k, v := range values {
		d, err := Wrap(v)
		if err != nil {
			return nil, fmt.Errorf("vm: context key %q: %w", k, err)
		}
		wrapped[k] = d
	}
	if err := c.Register(DefaultScope, wrapped); err != nil {
		return nil, err
	}
	return c, nil
}

// Register overlays values onto scope. New keys are added and existing
// non-literal keys replaced; replacing a literal fails with
// ErrLiteralOverride and leaves the scope unchanged.
func (c *Context) Register(scope string, values map[string]Data) error {
	return c.overlay(scope, values, false)
}

// RegisterLiteral overlays values and marks them fixed.
func (c *Context) RegisterLiteral(scope string, values map[string]Data) error {
	return c.overlay(scope, values, true)
}

func (c *Context) overlay(scope string, values map[string]Data, literal bool) error {
	if !validIdentifier(scope) {
		return fmt.Errorf("vm: invalid scope name %q", scope)
	}
	s, ok := c.scopes[scope]
	if !ok {
		s = &contextScope{values: make(map[string]Data), literal: make(map[string]bool)}
		c.scopes[scope] = s
	}
	for k := range values {
		if !validIdentifier(k) {
			return fmt.Errorf("vm: invalid context key %q in scope %q", k, scope)
		}
		if s.literal[k] {
			return fmt.Errorf("%w: $%s:%s", ErrLiteralOverride, scope, k)
		}
	}
	for k, v := range values {
		s.values[k] = v
		if literal {
			s.literal[k] = true
		}
	}
	return nil
}

// Scopes returns the registered scope names in order.
func (c *Context) Scopes() []string {
	names := make([]string, 0, len(c.scopes))
	for n := range c.scopes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Value returns a registered top-level value.
func (c *Context) Value(scope, key string) (Data, bool) {
	s, ok := c.scopes[scope]
	if !ok {
		return Void, false
	}
	v, ok := s.values[key]
	return v, ok
}

// IsLiteral reports whether scope/key was registered as literal.
func (c *Context) IsLiteral(scope, key string) bool {
	s, ok := c.scopes[scope]
	return ok && s.literal[key]
}

// tables builds per-render lookup tables. Each scope gets its members as
// atomic scoped keys plus the scope root as a dictionary.
func (c *Context) tables() map[string]VarTable {
	if c == nil {
		return map[string]VarTable{}
	}
	out := make(map[string]VarTable, len(c.scopes))
	for name, s := range c.scopes {
		t := make(VarTable, len(s.values)+1)
		root := makeVariable("$" + name)
		all := make(map[string]Data, len(s.values))
		for k, v := range s.values {
			t[root.Extend(k)] = v
			all[k] = v
		}
		t[root] = Dictionary(all)
		out[name] = t
	}
	return out
}
