package vm

// Operator is an infix, prefix or postfix operator token.
type Operator uint8

const (
	OpNone Operator = iota

	// logical
	OpNot
	OpEqual
	OpUnequal
	OpGreater
	OpGreaterOrEqual
	OpLesser
	OpLesserOrEqual
	OpAnd
	OpOr
	OpXor

	// mathematical
	OpPlus
	OpMinus
	OpMultiply
	OpDivide
	OpModulo

	// assignment
	OpAssign
	OpPlusAssign
	OpMinusAssign
	OpMultiplyAssign
	OpDivideAssign
	OpModuloAssign

	// other
	OpNilCoalesce
	OpQuestion // ternary condition, or postfix existence check
	OpColon    // ternary separator
)

var operatorTokens = map[Operator]string{
	OpNot: "!", OpEqual: "==", OpUnequal: "!=", OpGreater: ">", OpGreaterOrEqual: ">=",
	OpLesser: "<", OpLesserOrEqual: "<=", OpAnd: "&&", OpOr: "||", OpXor: "^^",
	OpPlus: "+", OpMinus: "-", OpMultiply: "*", OpDivide: "/", OpModulo: "%",
	OpAssign: "=", OpPlusAssign: "+=", OpMinusAssign: "-=", OpMultiplyAssign: "*=",
	OpDivideAssign: "/=", OpModuloAssign: "%=",
	OpNilCoalesce: "??", OpQuestion: "?", OpColon: ":",
}

var tokenOperators = func() map[string]Operator {
	m := make(map[string]Operator, len(operatorTokens))
	for op, tok := range operatorTokens {
		m[tok] = op
	}
	return m
}()

// ParseOperator maps a token to its operator.
func ParseOperator(token string) (Operator, bool) {
	op, ok := tokenOperators[token]
	return op, ok
}

func (o Operator) String() string {
	if s, ok := operatorTokens[o]; ok {
		return s
	}
	return "<none>"
}

// IsLogical reports membership in the logical set.
func (o Operator) IsLogical() bool { return o >= OpNot && o <= OpXor }

// IsMathematical reports membership in the mathematical set.
func (o Operator) IsMathematical() bool { return o >= OpPlus && o <= OpModulo }

// IsAssignment reports whether o is = or a compound assignment.
func (o Operator) IsAssignment() bool { return o >= OpAssign && o <= OpModuloAssign }

// IsInfix reports whether o may appear between two operands.
func (o Operator) IsInfix() bool {
	return (o.IsLogical() && o != OpNot) || o.IsMathematical() || o.IsAssignment() || o == OpNilCoalesce
}

// IsUnaryPrefix reports whether o may precede a single operand.
func (o Operator) IsUnaryPrefix() bool { return o == OpNot || o == OpMinus }

// IsUnaryPostfix reports whether o may follow a single operand.
func (o Operator) IsUnaryPostfix() bool { return o == OpQuestion }

// Compound returns the arithmetic operator of a compound assignment.
func (o Operator) Compound() (Operator, bool) {
	switch o {
	case OpPlusAssign:
		return OpPlus, true
	case OpMinusAssign:
		return OpMinus, true
	case OpMultiplyAssign:
		return OpMultiply, true
	case OpDivideAssign:
		return OpDivide, true
	case OpModuloAssign:
		return OpModulo, true
	}
	return OpNone, false
}

// Precedence returns the binding strength for infix use; higher binds
// tighter. Non-infix operators return 0.
func (o Operator) Precedence() int {
	switch o {
	case OpMultiply, OpDivide, OpModulo:
		return 7
	case OpPlus, OpMinus:
		return 6
	case OpNilCoalesce:
		return 5
	case OpGreater, OpGreaterOrEqual, OpLesser, OpLesserOrEqual:
		return 4
	case OpEqual, OpUnequal:
		return 3
	case OpAnd:
		return 2
	case OpOr, OpXor:
		return 1
	}
	return 0
}
