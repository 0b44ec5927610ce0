package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Function signatures
// ---------------------------------------------------------------------------

// CallParameter describes one formal parameter. Types empty means any
// type; Label empty means positional.
type CallParameter struct {
	Label    string
	Types    []DataType
	Optional bool
	Default  Data
}

// Accepts reports whether t is one of the declared types.
func (p CallParameter) Accepts(t DataType) bool {
	if len(p.Types) == 0 {
		return true
	}
	for _, want := range p.Types {
		if want == t {
			return true
		}
	}
	return false
}

func (p CallParameter) String() string {
	var b strings.Builder
	if p.Label != "" {
		b.WriteString(p.Label)
		b.WriteString(": ")
	}
	if len(p.Types) == 0 {
		b.WriteString("Any")
	} else {
		for i, t := range p.Types {
			if i > 0 {
				b.WriteByte('|')
			}
			b.WriteString(t.String())
		}
	}
	if p.Optional {
		b.WriteByte('?')
	}
	return b.String()
}

// Signature is an ordered list of formal parameters.
type Signature []CallParameter

// required counts the parameters without defaults.
func (s Signature) required() int {
	n := 0
	for _, p := range s {
		if !p.Optional {
			n++
		}
	}
	return n
}

func (s Signature) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = p.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// overlaps reports whether some argument list could match both.
func (s Signature) overlaps(o Signature) bool {
	if s.required() > len(o) || o.required() > len(s) {
		return false
	}
	n := len(s)
	if len(o) < n {
		n = len(o)
	}
	for i := 0; i < n; i++ {
		a, b := s[i], o[i]
		if a.Label != b.Label {
			return false
		}
		if len(a.Types) == 0 || len(b.Types) == 0 {
			continue
		}
		shared := false
		for _, t := range a.Types {
			if b.Accepts(t) {
				shared = true
				break
			}
		}
		if !shared {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// Function is a registrable built-in. Call receives arguments already
// matched against Signature, with defaults filled in.
type Function interface {
	Signature() Signature
	Returns() DataType
	// Invariant reports whether equal arguments always give equal results.
	Invariant() bool
	Call(args []Data) Data
}

type builtin struct {
	sig       Signature
	returns   DataType
	invariant bool
	fn        func(args []Data) Data
}

// NewFunction wraps fn as an invariant Function.
func NewFunction(sig Signature, returns DataType, fn func(args []Data) Data) Function {
	return &builtin{sig: sig, returns: returns, invariant: true, fn: fn}
}

func (b *builtin) Signature() Signature  { return b.sig }
func (b *builtin) Returns() DataType     { return b.returns }
func (b *builtin) Invariant() bool       { return b.invariant }
func (b *builtin) Call(args []Data) Data { return b.fn(args) }

// match binds evaluated arguments to sig. Exact type matches score higher
// than castable ones. ok is false when the arguments cannot bind.
func match(sig Signature, args []Data, labels []string) (bound []Data, score int, ok bool) {
	if len(args) > len(sig) || len(args) < sig.required() {
		return nil, 0, false
	}
	bound = make([]Data, len(sig))
	for i, p := range sig {
		if i >= len(args) {
			bound[i] = p.Default
			continue
		}
		if labels[i] != p.Label {
			return nil, 0, false
		}
		v := args[i].Force()
		t := v.BaseType()
		switch {
		case p.Accepts(t):
			score += 2
		case v.IsNil():
			if !p.Optional {
				return nil, 0, false
			}
		default:
			cast := Void
			for _, want := range p.Types {
				if c := v.Cast(want); !c.IsNil() {
					cast = c
					break
				}
			}
			if cast.IsNil() {
				return nil, 0, false
			}
			v = cast
			score++
		}
		bound[i] = v
	}
	return bound, score, true
}

// ---------------------------------------------------------------------------
// Call: a resolved function or method invocation site
// ---------------------------------------------------------------------------

// Call invokes one of a set of overloads, picked at evaluation time by
// the argument types. A method call passes the receiver as the first
// argument.
type Call struct {
	Name      string
	Receiver  *Parameter
	Args      *Tuple
	overloads []Function
}

// NewCall resolves name among r's functions.
func NewCall(r *Registry, name string, args *Tuple) (*Call, error) {
	fns := r.Functions(name)
	if len(fns) == 0 {
		return nil, fmt.Errorf("vm: no function named %s", name)
	}
	return &Call{Name: name, Args: args, overloads: fns}, nil
}

// NewMethodCall resolves name among r's methods, bound to receiver.
func NewMethodCall(r *Registry, name string, receiver Parameter, args *Tuple) (*Call, error) {
	fns := r.Methods(name)
	if len(fns) == 0 {
		return nil, fmt.Errorf("vm: no method named %s", name)
	}
	return &Call{Name: name, Receiver: &receiver, Args: args, overloads: fns}, nil
}

// IsMethod reports whether the call has a receiver.
func (c *Call) IsMethod() bool { return c.Receiver != nil }

// Evaluate evaluates the arguments, picks the best-scoring overload and
// calls it. Errored arguments propagate.
func (c *Call) Evaluate(s *ScopeStack) Data {
	n := c.Args.Len()
	args := make([]Data, 0, n+1)
	labels := make([]string, 0, n+1)
	if c.Receiver != nil {
		v := c.Receiver.Evaluate(s)
		if v.Errored() {
			return v
		}
		args = append(args, v)
		labels = append(labels, "")
	}
	for i := 0; i < n; i++ {
		v := c.Args.At(i).Evaluate(s)
		if v.Errored() {
			return v
		}
		args = append(args, v)
		labels = append(labels, c.Args.Label(i))
	}

	var best Function
	var bestArgs []Data
	bestScore := -1
	for _, f := range c.overloads {
		bound, score, ok := match(f.Signature(), args, labels)
		if ok && score > bestScore {
			best, bestArgs, bestScore = f, bound, score
		}
	}
	if best == nil {
		types := make([]string, len(args))
		for i, a := range args {
			types[i] = a.BaseType().String()
		}
		return Errored(evalError(KindNoOverload, "Call.Evaluate", "no overload of %s accepts (%s)",
			c.Name, strings.Join(types, ", ")))
	}
	return best.Call(bestArgs)
}

func (c *Call) String() string {
	if c.Receiver != nil {
		return c.Receiver.String() + "." + c.Name + c.Args.String()
	}
	return c.Name + c.Args.String()
}
