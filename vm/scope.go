package vm

// ---------------------------------------------------------------------------
// ScopeStack: layered variable tables for one render
// ---------------------------------------------------------------------------

type scopeFrame struct {
	declared map[Variable]bool // true for constants
	table    VarTable
}

// ScopeStack is the variable environment of one render: frames of
// declared identifiers and their tables, outermost first, over the
// per-render copy of the Context's scopes.
type ScopeStack struct {
	frames  []scopeFrame
	context map[string]VarTable

	// onDeclare runs before a declaration lands in the innermost frame,
	// letting the serializer allocate a frame lazily.
	onDeclare func()
}

// NewScopeStack returns a stack with one base frame over ctx (may be nil).
func NewScopeStack(ctx *Context) *ScopeStack {
	s := &ScopeStack{context: ctx.tables()}
	s.Push(nil)
	return s
}

// Push adds a frame binding vars as read-only locals.
func (s *ScopeStack) Push(vars ScopeVars) {
	s.frames = append(s.frames, newScopeFrame(vars))
}

// Pop removes the innermost frame. The base frame is never removed.
func (s *ScopeStack) Pop() {
	if len(s.frames) <= 1 {
		invariant("ScopeStack.Pop", "popping base frame")
	}
	s.frames[len(s.frames)-1] = scopeFrame{}
	s.frames = s.frames[:len(s.frames)-1]
}

// Rebind replaces the innermost frame with a fresh one binding vars.
// Loops use it between passes so body declarations start over.
func (s *ScopeStack) Rebind(vars ScopeVars) {
	s.frames[len(s.frames)-1] = newScopeFrame(vars)
}

// Depth returns the number of frames.
func (s *ScopeStack) Depth() int { return len(s.frames) }

func newScopeFrame(vars ScopeVars) scopeFrame {
	f := scopeFrame{
		declared: make(map[Variable]bool, len(vars)),
		table:    make(VarTable, len(vars)),
	}
	for name, v := range vars {
		key := makeVariable(name)
		f.declared[key] = true
		f.table[key] = v
	}
	return f
}

// Match resolves key innermost-first. A frame that holds the key's
// ancestor but cannot produce the key ends the search, so a local never
// lets an outer or context value show through. Unscoped keys not found in
// any frame are retried contextualized.
func (s *ScopeStack) Match(key Variable) (Data, bool) {
	if !key.IsValid() {
		return Void, false
	}
	if !key.IsScoped() {
		for i := len(s.frames) - 1; i >= 0; i-- {
			t := s.frames[i].table
			if v, ok := t.Match(key); ok {
				return v, true
			}
			if key.IsPathed() && t.Has(key.Ancestor()) {
				return Void, false
			}
		}
		key = key.Contextualized()
	}
	t, ok := s.context[key.Scope()]
	if !ok {
		return Void, false
	}
	return t.Match(key)
}

// declaringFrame returns the innermost frame index that declared key.
func (s *ScopeStack) declaringFrame(key Variable) int {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if _, ok := s.frames[i].declared[key]; ok {
			return i
		}
	}
	return -1
}

// IsDeclared reports whether key is declared in any frame.
func (s *ScopeStack) IsDeclared(key Variable) bool {
	return s.declaringFrame(key) >= 0
}

// Declare creates an unscoped atomic local in the innermost frame.
func (s *ScopeStack) Declare(key Variable, value Data, constant bool) error {
	if !key.IsValid() || key.IsScoped() || key.IsPathed() {
		return evalError(KindInvalidDeclare, "ScopeStack.Declare", "cannot declare %s", key)
	}
	if s.onDeclare != nil {
		s.onDeclare()
	}
	f := &s.frames[len(s.frames)-1]
	if _, ok := f.declared[key]; ok {
		return evalError(KindRedeclared, "ScopeStack.Declare", "%s is already declared", key)
	}
	f.declared[key] = constant
	f.table[key] = value
	return nil
}

// Update assigns to an existing variable in the frame that declared it.
// An unpathed key must have been declared; a pathed key needs a resolving
// dictionary parent and a declared, non-constant root. On failure nothing
// is modified.
func (s *ScopeStack) Update(key Variable, value Data) error {
	const origin = "ScopeStack.Update"
	if !key.IsValid() {
		return evalError(KindUndeclared, origin, "invalid assignment target")
	}
	root := key.Ancestor()
	if key.IsPathed() {
		pv, ok := s.Match(key.Parent())
		if !ok || pv.IsNil() {
			return evalError(KindParentMissing, origin, "%s does not resolve", key.Parent())
		}
		if pv.Errored() {
			return pv.Err()
		}
		if _, ok := pv.Force().DictionaryValue(); !ok {
			return evalError(KindStructural, origin, "%s is %s, not a dictionary",
				key.Parent(), pv.BaseType())
		}
	}
	fi := s.declaringFrame(root)
	if fi < 0 {
		return evalError(KindUndeclared, origin, "%s is not declared", root)
	}
	f := &s.frames[fi]
	if f.declared[root] {
		return evalError(KindConstant, origin, "%s is a constant", root)
	}
	if key.IsPathed() {
		value = setPath(f.table[root], key.Path(), value)
	}
	f.table[root] = value
	f.table.purge(root)
	return nil
}

// setPath returns a copy of base with value stored at path.
func setPath(base Data, path []string, value Data) Data {
	if len(path) == 0 {
		return value
	}
	src, _ := base.Force().DictionaryValue()
	dst := make(map[string]Data, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	dst[path[0]] = setPath(src[path[0]], path[1:], value)
	return Dictionary(dst)
}

// Evaluate implements Evaluator against this stack.
func (s *ScopeStack) Evaluate(p Parameter) Data {
	return p.Evaluate(s)
}
