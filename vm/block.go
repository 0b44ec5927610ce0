package vm

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// RepeatCount
// ---------------------------------------------------------------------------

// RepeatCount tells the serializer how many more passes a block's body
// needs. Positive values are exact pass counts.
type RepeatCount int

const (
	Discard    RepeatCount = 0
	Once       RepeatCount = 1
	Indefinite RepeatCount = -1
)

// Repeating returns a count of n passes; n <= 0 is Discard.
func Repeating(n int) RepeatCount {
	if n <= 0 {
		return Discard
	}
	return RepeatCount(n)
}

func (c RepeatCount) String() string {
	switch {
	case c == Discard:
		return "discard"
	case c == Once:
		return "once"
	case c == Indefinite:
		return "indefinite"
	case c > 1:
		return "repeating(" + strconv.Itoa(int(c)) + ")"
	}
	return "invalid(" + strconv.Itoa(int(c)) + ")"
}

// ---------------------------------------------------------------------------
// Block interfaces
// ---------------------------------------------------------------------------

// ScopeVars receives the variables a block binds for its body.
type ScopeVars map[string]Data

// Evaluator evaluates block parameters in the current scope.
type Evaluator interface {
	Evaluate(p Parameter) Data
}

// BlockKind is a registrable block type. Instantiate is called once per
// execution of the block, so Block values may keep iteration state.
type BlockKind interface {
	Name() string
	// Signature is a human-readable call form for diagnostics.
	Signature() string
	// Validate checks call parameters at compile time.
	Validate(params *Tuple) error
	Instantiate(params *Tuple) Block
}

// Block is the running state of one block execution.
type Block interface {
	// ScopeVariables names the variables the block binds; empty means the
	// body shares its parent's scope frame.
	ScopeVariables() []string
	// OpenScope is called before the first pass.
	OpenScope(ev Evaluator, vars ScopeVars) RepeatCount
	// ContinueScope is called between passes while passes remain.
	ContinueScope(ev Evaluator, vars ScopeVars) RepeatCount
}

// ChainedKind is a block that forms a construct with its neighbours.
type ChainedKind interface {
	BlockKind
	// ChainsTo lists the kinds this link may follow; empty for a chain
	// head.
	ChainsTo() []string
	// ChainAccepts lists the kinds that may follow this link.
	ChainAccepts() []string
}

// IsChainLink reports whether k continues a chain rather than starting one.
func IsChainLink(k BlockKind) bool {
	c, ok := k.(ChainedKind)
	return ok && len(c.ChainsTo()) > 0
}

// reentrant blocks are re-opened from their parent after each completed
// pass instead of being continued.
type reentrant interface {
	reenters() bool
}

// MetaKind identifies blocks the serializer handles itself.
type MetaKind uint8

const (
	MetaNone MetaKind = iota
	MetaDefine
	MetaEvaluate
	MetaInline
	MetaRawSwitch
)

// MetaBlockKind is implemented by define, evaluate, inline and rawswitch.
type MetaBlockKind interface {
	BlockKind
	Meta() MetaKind
}

// MetaOf returns k's meta kind, or MetaNone.
func MetaOf(k BlockKind) MetaKind {
	if m, ok := k.(MetaBlockKind); ok {
		return m.Meta()
	}
	return MetaNone
}

// ---------------------------------------------------------------------------
// Validation helpers
// ---------------------------------------------------------------------------

func checkArity(name string, params *Tuple, min, max int) error {
	n := params.Len()
	if n < min || n > max {
		if min == max {
			return fmt.Errorf("vm: %s takes %d parameter(s), got %d", name, min, n)
		}
		return fmt.Errorf("vm: %s takes %d to %d parameters, got %d", name, min, max, n)
	}
	return nil
}

func checkValued(name string, p Parameter) error {
	if !p.IsValued() {
		return fmt.Errorf("vm: %s parameter %s is not a value", name, p)
	}
	return nil
}

func builtinBlocks() []BlockKind {
	return []BlockKind{
		forKind{}, whileKind{}, repeatKind{},
		ifKind{}, elseifKind{}, elseKind{},
		defineKind, evaluateKind, inlineKind, rawSwitchKind,
	}
}
