package vm

import (
	"fmt"
	"strings"
)

// DefaultScope is the implicit top-level scope unscoped variables are
// contextualized onto.
const DefaultScope = "context"

// ---------------------------------------------------------------------------
// Variable: flattened, comparable identifier
// ---------------------------------------------------------------------------

// Variable addresses a value as scope + member + optional path, flattened
// into one token:
//
//	$scope            scope root
//	$scope:member     scoped, atomic
//	$scope:member.a.b scoped, pathed
//	member.a          unscoped, pathed
//
// All fields are derived from flat, so two Variables are == exactly when
// their flattened tokens match. The zero Variable is invalid.
type Variable struct {
	flat     string
	scopeEnd int // index of ':' (or len(flat) for a scope root); 0 when unscoped
	pathAt   int // index of the first path '.', or len(flat)
}

// NewVariable builds a key. scope may be empty (unscoped); member may be
// empty only for a scope root.
func NewVariable(scope, member string, path ...string) (Variable, error) {
	if scope != "" && !validIdentifier(scope) {
		return Variable{}, fmt.Errorf("vm: invalid scope name %q", scope)
	}
	if member == "" {
		if scope == "" || len(path) > 0 {
			return Variable{}, fmt.Errorf("vm: variable needs a member")
		}
		return makeVariable("$" + scope), nil
	}
	if !validIdentifier(member) {
		return Variable{}, fmt.Errorf("vm: invalid member name %q", member)
	}
	var b strings.Builder
	if scope != "" {
		b.WriteByte('$')
		b.WriteString(scope)
		b.WriteByte(':')
	}
	b.WriteString(member)
	for _, p := range path {
		if !validIdentifier(p) {
			return Variable{}, fmt.Errorf("vm: invalid path component %q", p)
		}
		b.WriteByte('.')
		b.WriteString(p)
	}
	return makeVariable(b.String()), nil
}

// MustVariable is NewVariable that panics on error, for literals in code.
func MustVariable(scope, member string, path ...string) Variable {
	v, err := NewVariable(scope, member, path...)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseVariable parses a flattened token such as "$context:user.name",
// "user.name" or "$site".
func ParseVariable(token string) (Variable, error) {
	var scope, rest string
	if strings.HasPrefix(token, "$") {
		body := token[1:]
		if i := strings.IndexByte(body, ':'); i >= 0 {
			scope, rest = body[:i], body[i+1:]
			if scope == "" {
				scope = DefaultScope
			}
		} else {
			return NewVariable(body, "")
		}
	} else {
		rest = token
	}
	parts := strings.Split(rest, ".")
	return NewVariable(scope, parts[0], parts[1:]...)
}

// makeVariable computes offsets for an already valid flat token.
func makeVariable(flat string) Variable {
	v := Variable{flat: flat, pathAt: len(flat)}
	start := 0
	if strings.HasPrefix(flat, "$") {
		v.scopeEnd = len(flat)
		if i := strings.IndexByte(flat, ':'); i >= 0 {
			v.scopeEnd = i
			start = i + 1
		} else {
			return v
		}
	}
	if i := strings.IndexByte(flat[start:], '.'); i >= 0 {
		v.pathAt = start + i
	}
	return v
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (v Variable) String() string { return v.flat }

// IsValid reports whether v is not the zero Variable.
func (v Variable) IsValid() bool { return v.flat != "" }

// IsScoped reports whether v names an explicit scope.
func (v Variable) IsScoped() bool { return strings.HasPrefix(v.flat, "$") }

// IsScopeRoot reports whether v names a whole scope.
func (v Variable) IsScopeRoot() bool { return v.IsScoped() && v.scopeEnd == len(v.flat) }

// IsAtomic reports whether v has no path.
func (v Variable) IsAtomic() bool { return v.pathAt == len(v.flat) }

// IsPathed reports whether v has a path.
func (v Variable) IsPathed() bool { return v.IsValid() && !v.IsAtomic() }

// Scope returns the scope name, or "" when unscoped.
func (v Variable) Scope() string {
	if !v.IsScoped() {
		return ""
	}
	return v.flat[1:v.scopeEnd]
}

// Member returns the root member name.
func (v Variable) Member() string {
	if v.IsScopeRoot() {
		return ""
	}
	start := 0
	if v.IsScoped() {
		start = v.scopeEnd + 1
	}
	return v.flat[start:v.pathAt]
}

// Path returns the path components after the member.
func (v Variable) Path() []string {
	if v.IsAtomic() {
		return nil
	}
	return strings.Split(v.flat[v.pathAt+1:], ".")
}

// Last returns the final component: last path element, else member, else
// scope name.
func (v Variable) Last() string {
	if v.IsPathed() {
		return v.flat[strings.LastIndexByte(v.flat, '.')+1:]
	}
	if v.IsScopeRoot() {
		return v.Scope()
	}
	return v.Member()
}

// ---------------------------------------------------------------------------
// Structural operations
// ---------------------------------------------------------------------------

// Parent strips the last path component; an atomic scoped key becomes its
// scope root. Unscoped atomic keys and scope roots have no parent and
// return the zero Variable.
func (v Variable) Parent() Variable {
	switch {
	case v.IsPathed():
		return makeVariable(v.flat[:strings.LastIndexByte(v.flat, '.')])
	case v.IsScoped() && !v.IsScopeRoot():
		return makeVariable(v.flat[:v.scopeEnd])
	}
	return Variable{}
}

// Ancestor strips the whole path, leaving the atomic root.
func (v Variable) Ancestor() Variable {
	if v.IsAtomic() {
		return v
	}
	return makeVariable(v.flat[:v.pathAt])
}

// Extend appends name as the member of a scope root or as a path
// component otherwise.
func (v Variable) Extend(name string) Variable {
	if v.IsScopeRoot() {
		return makeVariable(v.flat + ":" + name)
	}
	return makeVariable(v.flat + "." + name)
}

// Contextualized rewrites an unscoped key onto DefaultScope.
func (v Variable) Contextualized() Variable {
	if !v.IsValid() || v.IsScoped() {
		return v
	}
	return makeVariable("$" + DefaultScope + ":" + v.flat)
}
