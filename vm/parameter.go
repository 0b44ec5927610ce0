package vm

import (
	"sort"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Keywords
// ---------------------------------------------------------------------------

// Keyword is a reserved word usable as a parameter.
type Keyword uint8

const (
	KwTrue Keyword = iota + 1
	KwFalse
	KwNil
	KwSelf
	KwVar
	KwLet
	KwIn
	KwYes
	KwNo
	KwDiscard // _
)

var keywordNames = map[Keyword]string{
	KwTrue: "true", KwFalse: "false", KwNil: "nil", KwSelf: "self", KwVar: "var",
	KwLet: "let", KwIn: "in", KwYes: "yes", KwNo: "no", KwDiscard: "_",
}

var namedKeywords = func() map[string]Keyword {
	m := make(map[string]Keyword, len(keywordNames))
	for k, n := range keywordNames {
		m[n] = k
	}
	return m
}()

// ParseKeyword maps a word to its keyword.
func ParseKeyword(word string) (Keyword, bool) {
	k, ok := namedKeywords[word]
	return k, ok
}

func (k Keyword) String() string { return keywordNames[k] }

// IsValued reports whether k evaluates to a value on its own.
func (k Keyword) IsValued() bool {
	switch k {
	case KwTrue, KwFalse, KwYes, KwNo, KwNil, KwSelf:
		return true
	}
	return false
}

// IsDeclaration reports whether k introduces a local.
func (k Keyword) IsDeclaration() bool { return k == KwVar || k == KwLet }

// ---------------------------------------------------------------------------
// Parameter: one slot of an expression or call
// ---------------------------------------------------------------------------

// ParamKind discriminates Parameter.
type ParamKind uint8

const (
	ParamValue ParamKind = iota
	ParamVariable
	ParamOperator
	ParamKeyword
	ParamExpression
	ParamTuple
	ParamCall
)

// Parameter is a literal, variable, operator, keyword, expression, tuple
// or function call. Parameters are built by the compiler and read-only
// afterwards.
type Parameter struct {
	kind     ParamKind
	value    Data
	variable Variable
	op       Operator
	kw       Keyword
	expr     *Expression
	tuple    *Tuple
	call     *Call
}

func ValueParam(d Data) Parameter             { return Parameter{kind: ParamValue, value: d} }
func VariableParam(v Variable) Parameter      { return Parameter{kind: ParamVariable, variable: v} }
func OperatorParam(op Operator) Parameter     { return Parameter{kind: ParamOperator, op: op} }
func KeywordParam(k Keyword) Parameter        { return Parameter{kind: ParamKeyword, kw: k} }
func ExpressionParam(e *Expression) Parameter { return Parameter{kind: ParamExpression, expr: e} }
func TupleParam(t *Tuple) Parameter           { return Parameter{kind: ParamTuple, tuple: t} }
func CallParam(c *Call) Parameter             { return Parameter{kind: ParamCall, call: c} }

func (p Parameter) Kind() ParamKind         { return p.kind }
func (p Parameter) Value() Data             { return p.value }
func (p Parameter) Variable() Variable      { return p.variable }
func (p Parameter) Operator() Operator      { return p.op }
func (p Parameter) Keyword() Keyword        { return p.kw }
func (p Parameter) Expression() *Expression { return p.expr }
func (p Parameter) Tuple() *Tuple           { return p.tuple }
func (p Parameter) Call() *Call             { return p.call }

// IsValued reports whether p produces a value when evaluated.
func (p Parameter) IsValued() bool {
	switch p.kind {
	case ParamValue, ParamVariable, ParamTuple, ParamCall:
		return true
	case ParamKeyword:
		return p.kw.IsValued()
	case ParamExpression:
		return p.expr.IsEvaluable()
	}
	return false
}

// IsLiteral reports whether p is a constant value.
func (p Parameter) IsLiteral() bool {
	return p.kind == ParamValue || (p.kind == ParamKeyword && p.kw.IsValued() && p.kw != KwSelf)
}

// IsBareIdentifier reports whether p is an unscoped, unpathed variable.
func (p Parameter) IsBareIdentifier() bool {
	return p.kind == ParamVariable && !p.variable.IsScoped() && p.variable.IsAtomic()
}

// Evaluate resolves p against s. Missing variables evaluate to an errored
// value of KindMissingVariable; the caller decides whether that is fatal.
func (p Parameter) Evaluate(s *ScopeStack) Data {
	switch p.kind {
	case ParamValue:
		return p.value
	case ParamVariable:
		if v, ok := s.Match(p.variable); ok {
			return v
		}
		return Errored(evalError(KindMissingVariable, "Parameter.Evaluate", "%s is not defined", p.variable))
	case ParamKeyword:
		switch p.kw {
		case KwTrue, KwYes:
			return Bool(true)
		case KwFalse, KwNo:
			return Bool(false)
		case KwNil:
			return Void
		case KwSelf:
			v, _ := s.Match(makeVariable("$" + DefaultScope))
			return v
		}
	case ParamExpression:
		return p.expr.Evaluate(s)
	case ParamTuple:
		return p.tuple.Evaluate(s)
	case ParamCall:
		return p.call.Evaluate(s)
	}
	return Errored(evalError(KindNotEvaluable, "Parameter.Evaluate", "%s is not a value", p))
}

func (p Parameter) String() string {
	switch p.kind {
	case ParamValue:
		if s, ok := p.value.StringValue(); ok {
			return strconv.Quote(s)
		}
		return p.value.String()
	case ParamVariable:
		return p.variable.String()
	case ParamOperator:
		return p.op.String()
	case ParamKeyword:
		return p.kw.String()
	case ParamExpression:
		return p.expr.String()
	case ParamTuple:
		return p.tuple.String()
	case ParamCall:
		return p.call.String()
	}
	return "?"
}

// ---------------------------------------------------------------------------
// Tuple
// ---------------------------------------------------------------------------

// Tuple is an ordered parameter list with optional labels. Call arguments
// and block parameters are tuples; with Collection set it is an array or
// dictionary literal.
type Tuple struct {
	Values     []Parameter
	Labels     map[string]int
	Collection bool
}

// NewTuple returns an unlabeled tuple.
func NewTuple(values ...Parameter) *Tuple {
	return &Tuple{Values: values}
}

// Len returns the number of values; a nil tuple is empty.
func (t *Tuple) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Values)
}

// At returns the i'th value.
func (t *Tuple) At(i int) Parameter { return t.Values[i] }

// Label returns the label of the i'th value, or "".
func (t *Tuple) Label(i int) string {
	for l, at := range t.Labels {
		if at == i {
			return l
		}
	}
	return ""
}

// Labeled returns the value with label l.
func (t *Tuple) Labeled(l string) (Parameter, bool) {
	if t == nil {
		return Parameter{}, false
	}
	i, ok := t.Labels[l]
	if !ok {
		return Parameter{}, false
	}
	return t.Values[i], true
}

// IsDictionary reports whether every value is labeled. An empty tuple
// with a non-nil label map is the empty dictionary literal.
func (t *Tuple) IsDictionary() bool {
	if t == nil || len(t.Labels) != len(t.Values) {
		return false
	}
	return len(t.Values) > 0 || t.Labels != nil
}

// Evaluate builds an array, or a dictionary when every value is labeled.
// The first errored element is returned in place of the collection.
func (t *Tuple) Evaluate(s *ScopeStack) Data {
	if t.IsDictionary() {
		m := make(map[string]Data, len(t.Values))
		for _, l := range t.labelNames() {
			v := t.Values[t.Labels[l]].Evaluate(s)
			if v.Errored() {
				return v
			}
			m[l] = v
		}
		return Dictionary(m)
	}
	out := make([]Data, len(t.Values))
	for i, p := range t.Values {
		v := p.Evaluate(s)
		if v.Errored() {
			return v
		}
		out[i] = v
	}
	return Array(out...)
}

func (t *Tuple) String() string {
	if t == nil {
		return "()"
	}
	open, close := "(", ")"
	if t.Collection {
		open, close = "[", "]"
	}
	if t.Collection && len(t.Values) == 0 && t.Labels != nil {
		return "[:]"
	}
	labels := make([]string, len(t.Values))
	for l, i := range t.Labels {
		labels[i] = l
	}
	parts := make([]string, len(t.Values))
	for i, p := range t.Values {
		if labels[i] != "" {
			parts[i] = labels[i] + ": " + p.String()
		} else {
			parts[i] = p.String()
		}
	}
	return open + strings.Join(parts, ", ") + close
}

// labelNames returns the labels in positional order.
func (t *Tuple) labelNames() []string {
	names := make([]string, 0, len(t.Labels))
	for l := range t.Labels {
		names = append(names, l)
	}
	sort.Slice(names, func(i, j int) bool { return t.Labels[names[i]] < t.Labels[names[j]] })
	return names
}
