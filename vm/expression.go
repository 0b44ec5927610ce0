package vm

import (
	"errors"
	"fmt"
)

// ExpressionForm is the combining shape of an Expression.
type ExpressionForm uint8

const (
	FormInfix ExpressionForm = iota
	FormUnaryPrefix
	FormUnaryPostfix
	FormTernary
	FormAssignment
	FormDeclaration
	FormCustom
)

func (f ExpressionForm) String() string {
	switch f {
	case FormInfix:
		return "infix"
	case FormUnaryPrefix:
		return "prefix"
	case FormUnaryPostfix:
		return "postfix"
	case FormTernary:
		return "ternary"
	case FormAssignment:
		return "assignment"
	case FormDeclaration:
		return "declaration"
	case FormCustom:
		return "custom"
	}
	return "unknown"
}

// Mutates reports whether the form changes the scope instead of producing
// output.
func (f ExpressionForm) Mutates() bool { return f == FormAssignment || f == FormDeclaration }

// Expression combines two or three parameters. Built by NewExpression or
// NewTernary; immutable afterwards.
type Expression struct {
	form  ExpressionForm
	op    Operator
	kw    Keyword
	slots [3]Parameter
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// NewExpression classifies a flat parameter list. Infix is tried first,
// then declaration and custom forms, then unary forms. A unary minus is
// rewritten to multiplication by -1.
//
// Recognised shapes:
//
//	a op b          infix (op mathematical, logical or ??)
//	x = v, x += v   assignment
//	var x, let x = v  declaration ("=" optional)
//	x in xs         custom
//	!a, -a          unary prefix
//	a?              unary postfix existence check
func NewExpression(params []Parameter) (*Expression, error) {
	switch len(params) {
	case 2:
		return newBinaryShape(params[0], params[1])
	case 3:
		a, b, c := params[0], params[1], params[2]
		if b.kind == ParamOperator && b.op.IsInfix() {
			return newInfix(a, b.op, c)
		}
		if a.kind == ParamKeyword && a.kw.IsDeclaration() {
			return newDeclaration(a.kw, b, c)
		}
		if b.kind == ParamKeyword && b.kw == KwIn {
			return newCustom(a, c)
		}
	case 4:
		if params[0].kind == ParamKeyword && params[0].kw.IsDeclaration() &&
			params[2].kind == ParamOperator && params[2].op == OpAssign {
			return newDeclaration(params[0].kw, params[1], params[3])
		}
	}
	return nil, fmt.Errorf("vm: cannot form an expression from %s", paramList(params))
}

func newBinaryShape(a, b Parameter) (*Expression, error) {
	switch {
	case a.kind == ParamKeyword && a.kw.IsDeclaration():
		return newDeclaration(a.kw, b, KeywordParam(KwNil))
	case a.kind == ParamOperator && a.op.IsUnaryPrefix():
		if !b.IsValued() {
			return nil, fmt.Errorf("vm: %s needs a value operand, got %s", a.op, b)
		}
		if a.op == OpMinus {
			return &Expression{form: FormInfix, op: OpMultiply, slots: [3]Parameter{b, ValueParam(Int(-1))}}, nil
		}
		return &Expression{form: FormUnaryPrefix, op: a.op, slots: [3]Parameter{b}}, nil
	case b.kind == ParamOperator && b.op.IsUnaryPostfix():
		if !a.IsValued() {
			return nil, fmt.Errorf("vm: %s needs a value operand, got %s", b.op, a)
		}
		return &Expression{form: FormUnaryPostfix, op: b.op, slots: [3]Parameter{a}}, nil
	}
	return nil, fmt.Errorf("vm: cannot form an expression from %s %s", a, b)
}

func newInfix(lhs Parameter, op Operator, rhs Parameter) (*Expression, error) {
	if !rhs.IsValued() {
		return nil, fmt.Errorf("vm: right operand of %s is not a value: %s", op, rhs)
	}
	if op.IsAssignment() {
		if lhs.kind != ParamVariable {
			return nil, fmt.Errorf("vm: cannot assign to %s", lhs)
		}
		return &Expression{form: FormAssignment, op: op, slots: [3]Parameter{lhs, rhs}}, nil
	}
	if !lhs.IsValued() {
		return nil, fmt.Errorf("vm: left operand of %s is not a value: %s", op, lhs)
	}
	return &Expression{form: FormInfix, op: op, slots: [3]Parameter{lhs, rhs}}, nil
}

func newDeclaration(kw Keyword, target, value Parameter) (*Expression, error) {
	if !target.IsBareIdentifier() {
		return nil, fmt.Errorf("vm: %s needs a plain identifier, got %s", kw, target)
	}
	if !value.IsValued() {
		return nil, fmt.Errorf("vm: initial value of %s is not a value: %s", target, value)
	}
	return &Expression{form: FormDeclaration, kw: kw, slots: [3]Parameter{target, value}}, nil
}

func newCustom(lhs, rhs Parameter) (*Expression, error) {
	if !rhs.IsValued() {
		return nil, fmt.Errorf("vm: right side of in is not a value: %s", rhs)
	}
	return &Expression{form: FormCustom, kw: KwIn, slots: [3]Parameter{lhs, rhs}}, nil
}

// NewTernary builds cond ? a : b.
func NewTernary(cond, a, b Parameter) (*Expression, error) {
	for _, p := range []Parameter{cond, a, b} {
		if !p.IsValued() {
			return nil, fmt.Errorf("vm: ternary operand is not a value: %s", p)
		}
	}
	return &Expression{form: FormTernary, op: OpQuestion, slots: [3]Parameter{cond, a, b}}, nil
}

// MustExpression is NewExpression that panics, for fixtures.
func MustExpression(params ...Parameter) *Expression {
	e, err := NewExpression(params)
	if err != nil {
		panic(err)
	}
	return e
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

func (e *Expression) Form() ExpressionForm { return e.form }
func (e *Expression) Operator() Operator   { return e.op }
func (e *Expression) Keyword() Keyword     { return e.kw }

// Operands returns the parameter slots; unused slots are zero.
func (e *Expression) Operands() (Parameter, Parameter, Parameter) {
	return e.slots[0], e.slots[1], e.slots[2]
}

// IsEvaluable reports whether the expression produces a value by itself.
func (e *Expression) IsEvaluable() bool { return e.form != FormCustom }

func (e *Expression) String() string {
	a, b, c := e.slots[0], e.slots[1], e.slots[2]
	switch e.form {
	case FormInfix, FormAssignment:
		return fmt.Sprintf("(%s %s %s)", a, e.op, b)
	case FormUnaryPrefix:
		return fmt.Sprintf("%s%s", e.op, a)
	case FormUnaryPostfix:
		return fmt.Sprintf("%s%s", a, e.op)
	case FormTernary:
		return fmt.Sprintf("(%s ? %s : %s)", a, b, c)
	case FormDeclaration:
		return fmt.Sprintf("%s %s = %s", e.kw, a, b)
	case FormCustom:
		return fmt.Sprintf("%s %s %s", a, e.kw, b)
	}
	return "?"
}

func paramList(params []Parameter) string {
	s := "["
	for i, p := range params {
		if i > 0 {
			s += " "
		}
		s += p.String()
	}
	return s + "]"
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// Evaluate computes the expression against s. Assignments and declarations
// mutate s and return Void; failures come back as errored values.
func (e *Expression) Evaluate(s *ScopeStack) Data {
	a, b, c := e.slots[0], e.slots[1], e.slots[2]
	switch e.form {
	case FormInfix:
		switch e.op {
		case OpAnd, OpOr:
			l := a.Evaluate(s).Force()
			if l.Errored() {
				return l
			}
			if l.Truthy() == (e.op == OpOr) {
				return Bool(e.op == OpOr)
			}
			r := b.Evaluate(s).Force()
			if r.Errored() {
				return r
			}
			return Bool(r.Truthy())
		}
		return infix(e.op, a.Evaluate(s), b.Evaluate(s))

	case FormUnaryPrefix:
		v := a.Evaluate(s).Force()
		if v.Errored() {
			return v
		}
		return Bool(!v.Truthy())

	case FormUnaryPostfix:
		v := a.Evaluate(s).Force()
		return Bool(!v.Errored() && !v.IsNil())

	case FormTernary:
		cond := a.Evaluate(s).Force()
		if cond.Errored() {
			return cond
		}
		if cond.Truthy() {
			return b.Evaluate(s)
		}
		return c.Evaluate(s)

	case FormAssignment:
		v := b.Evaluate(s).Force()
		if v.Errored() {
			return v
		}
		if op, ok := e.op.Compound(); ok {
			cur, found := s.Match(a.variable)
			if !found {
				return Errored(evalError(KindUndeclared, "Expression.Evaluate", "%s is not declared", a.variable))
			}
			if v = infix(op, cur, v); v.Errored() {
				return v
			}
		}
		return erroredOrVoid(s.Update(a.variable, v))

	case FormDeclaration:
		v := b.Evaluate(s).Force()
		if v.Errored() {
			return v
		}
		return erroredOrVoid(s.Declare(a.variable, v, e.kw == KwLet))
	}
	return Errored(evalError(KindNotEvaluable, "Expression.Evaluate", "%s expression %s cannot be evaluated", e.form, e))
}

func erroredOrVoid(err error) Data {
	if err == nil {
		return Void
	}
	var ee *EvalError
	if errors.As(err, &ee) {
		return Errored(ee)
	}
	return Errored(&EvalError{Reason: err.Error()})
}
