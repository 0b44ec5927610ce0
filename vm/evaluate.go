package vm

import "math"

// ---------------------------------------------------------------------------
// Infix operator semantics
// ---------------------------------------------------------------------------

// infix applies a binary operator to two already evaluated operands.
// Errored operands propagate, except on the left of ??, which treats them
// as nil. Type mismatches produce Void.
func infix(op Operator, l, r Data) Data {
	l, r = l.Force(), r.Force()
	if op == OpNilCoalesce {
		if l.Errored() || l.IsNil() {
			return r
		}
		return l
	}
	if l.Errored() {
		return l
	}
	if r.Errored() {
		return r
	}

	switch op {
	case OpEqual:
		return Bool(equalOperands(l, r))
	case OpUnequal:
		return Bool(!equalOperands(l, r))
	case OpLesser:
		return compare(l, r, false)
	case OpGreater:
		return compare(r, l, false)
	case OpGreaterOrEqual:
		return compare(l, r, true)
	case OpLesserOrEqual:
		return compare(r, l, true)
	case OpAnd:
		return Bool(l.Truthy() && r.Truthy())
	case OpOr:
		return Bool(l.Truthy() || r.Truthy())
	case OpXor:
		return Bool(l.Truthy() != r.Truthy())
	case OpPlus:
		return add(l, r)
	case OpMinus, OpMultiply, OpDivide, OpModulo:
		return arithmetic(op, l, r)
	}
	return Void
}

// equalOperands is Equal with int and double compared numerically.
func equalOperands(l, r Data) bool {
	if l.kind != r.kind && l.IsNumeric() && r.IsNumeric() {
		a, _ := l.number()
		b, _ := r.number()
		return a == b
	}
	return l.Equal(r)
}

// lesser is the strict ordering shared by every comparison. Both operands
// must be present scalars, and either both numeric or both convertible to
// string.
func lesser(l, r Data) (bool, bool) {
	if l.IsNil() || r.IsNil() || l.IsCollection() || r.IsCollection() {
		return false, false
	}
	if l.IsNumeric() && r.IsNumeric() {
		if a, ok := l.IntValue(); ok {
			if b, ok := r.IntValue(); ok {
				return a < b, true
			}
		}
		a, _ := l.number()
		b, _ := r.number()
		return a < b, true
	}
	if l.IsNumeric() || r.IsNumeric() {
		return false, false
	}
	a, aok := l.Cast(TypeString).StringValue()
	b, bok := r.Cast(TypeString).StringValue()
	if !aok || !bok {
		return false, false
	}
	return a < b, true
}

// compare returns l < r, or !(l < r) when negate is set. >= and <= are
// the negations of < with swapped operands.
func compare(l, r Data, negate bool) Data {
	lt, ok := lesser(l, r)
	if !ok {
		return Void
	}
	return Bool(lt != negate)
}

// add is type directed: numeric sum (int overflow is an error, mixed
// promotes to double), string, bytes and array concatenation, and merge of
// dictionaries with disjoint keys.
func add(l, r Data) Data {
	if l.IsNumeric() && r.IsNumeric() {
		return arithmetic(OpPlus, l, r)
	}
	switch l.BaseType() {
	case TypeString:
		a, _ := l.StringValue()
		if b, ok := r.Cast(TypeString).StringValue(); ok {
			return String(a + b)
		}
	case TypeBytes:
		a, _ := l.BytesValue()
		if b, ok := r.BytesValue(); ok {
			out := make([]byte, 0, len(a)+len(b))
			return Bytes(append(append(out, a...), b...))
		}
	case TypeArray:
		a, _ := l.ArrayValue()
		if b, ok := r.ArrayValue(); ok {
			out := make([]Data, 0, len(a)+len(b))
			return Array(append(append(out, a...), b...)...)
		}
	case TypeDictionary:
		a, _ := l.DictionaryValue()
		b, ok := r.DictionaryValue()
		if !ok {
			break
		}
		out := make(map[string]Data, len(a)+len(b))
		for k, v := range a {
			out[k] = v
		}
		for k, v := range b {
			if _, dup := out[k]; dup {
				return Void
			}
			out[k] = v
		}
		return Dictionary(out)
	}
	return Void
}

// arithmetic applies a numeric operator. int op int stays int; any double
// operand makes the result double.
func arithmetic(op Operator, l, r Data) Data {
	if !l.IsNumeric() || !r.IsNumeric() {
		return Void
	}
	a, aInt := l.IntValue()
	b, bInt := r.IntValue()
	if aInt && bInt {
		return intArithmetic(op, a, b)
	}
	x, _ := l.number()
	y, _ := r.number()
	switch op {
	case OpPlus:
		return Double(x + y)
	case OpMinus:
		return Double(x - y)
	case OpMultiply:
		return Double(x * y)
	case OpDivide:
		return Double(x / y)
	case OpModulo:
		return Double(math.Mod(x, y))
	}
	return Void
}

func intArithmetic(op Operator, a, b int64) Data {
	const origin = "arithmetic"
	overflow := func() Data {
		return Errored(evalError(KindOverflow, origin, "%d %s %d overflows int", a, op, b))
	}
	switch op {
	case OpPlus:
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return overflow()
		}
		return Int(a + b)
	case OpMinus:
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return overflow()
		}
		return Int(a - b)
	case OpMultiply:
		if a == 0 || b == 0 {
			return Int(0)
		}
		p := a * b
		if p/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
			return overflow()
		}
		return Int(p)
	case OpDivide, OpModulo:
		if b == 0 {
			return Errored(evalError(KindDivisionByZero, origin, "%d %s 0", a, op))
		}
		if a == math.MinInt64 && b == -1 {
			if op == OpModulo {
				return Int(0)
			}
			return overflow()
		}
		if op == OpDivide {
			return Int(a / b)
		}
		return Int(a % b)
	}
	return Void
}
