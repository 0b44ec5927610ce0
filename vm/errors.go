package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Error categories
// ---------------------------------------------------------------------------

// Sentinels for errors.Is. An *EvalError matches the sentinel of its Kind.
var (
	ErrTimeout           = errors.New("vm: serialize exceeded execution time budget")
	ErrMissingVariable   = errors.New("vm: missing variable")
	ErrUndeclared        = errors.New("vm: assignment to undeclared variable")
	ErrParentMissing     = errors.New("vm: assignment target parent does not resolve")
	ErrConstant          = errors.New("vm: assignment to constant")
	ErrRedeclared        = errors.New("vm: variable already declared in scope")
	ErrInvalidDeclare    = errors.New("vm: invalid declaration target")
	ErrStructural        = errors.New("vm: path does not traverse a dictionary")
	ErrOverflow          = errors.New("vm: integer overflow")
	ErrDivisionByZero    = errors.New("vm: division by zero")
	ErrNoOverload        = errors.New("vm: no matching function overload")
	ErrMissingDefinition = errors.New("vm: missing definition")
	ErrUnresolvedInline  = errors.New("vm: unresolved inline")
	ErrNotEvaluable      = errors.New("vm: expression is not evaluable")
	ErrLiteralOverride   = errors.New("vm: cannot override literal context value")
)

// ErrorKind classifies an EvalError.
type ErrorKind uint8

const (
	KindGeneric ErrorKind = iota
	KindMissingVariable
	KindUndeclared
	KindParentMissing
	KindConstant
	KindRedeclared
	KindInvalidDeclare
	KindStructural
	KindOverflow
	KindDivisionByZero
	KindNoOverload
	KindMissingDefinition
	KindUnresolvedInline
	KindNotEvaluable
)

var kindSentinels = map[ErrorKind]error{
	KindMissingVariable:   ErrMissingVariable,
	KindUndeclared:        ErrUndeclared,
	KindParentMissing:     ErrParentMissing,
	KindConstant:          ErrConstant,
	KindRedeclared:        ErrRedeclared,
	KindInvalidDeclare:    ErrInvalidDeclare,
	KindStructural:        ErrStructural,
	KindOverflow:          ErrOverflow,
	KindDivisionByZero:    ErrDivisionByZero,
	KindNoOverload:        ErrNoOverload,
	KindMissingDefinition: ErrMissingDefinition,
	KindUnresolvedInline:  ErrUnresolvedInline,
	KindNotEvaluable:      ErrNotEvaluable,
}

// EvalError is an evaluation failure. It can travel inside a Data value
// (see Errored) or be returned from Serialize.
type EvalError struct {
	Kind   ErrorKind
	Reason string
	Origin string // function that produced the error
}

func (e *EvalError) Error() string {
	if e.Origin == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Origin, e.Reason)
}

// Is matches the sentinel registered for the error's kind.
func (e *EvalError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func evalError(kind ErrorKind, origin, format string, args ...any) *EvalError {
	return &EvalError{Kind: kind, Reason: fmt.Sprintf(format, args...), Origin: origin}
}

// ---------------------------------------------------------------------------
// Invariant violations
// ---------------------------------------------------------------------------

// InvariantViolation is panicked when the interpreter finds a state a
// correctly compiled AST can never produce. It is not recovered.
type InvariantViolation struct {
	Where string
	What  string
}

func (v InvariantViolation) Error() string {
	return fmt.Sprintf("vm: invariant violated in %s: %s", v.Where, v.What)
}

func invariant(where, format string, args ...any) {
	panic(InvariantViolation{Where: where, What: fmt.Sprintf(format, args...)})
}
