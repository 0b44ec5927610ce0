package vm

import "fmt"

// ---------------------------------------------------------------------------
// Meta blocks: define, evaluate, inline, rawswitch
// ---------------------------------------------------------------------------

// metaKind is a block the serializer resolves itself in a single pass.
type metaKind struct {
	name      string
	signature string
	meta      MetaKind
	validate  func(params *Tuple) error
}

var (
	defineKind = metaKind{
		name:      "define",
		signature: "define(name) | define(name, value)",
		meta:      MetaDefine,
		validate:  validateDefine,
	}
	evaluateKind = metaKind{
		name:      "evaluate",
		signature: "evaluate(name) | evaluate(name ?? default)",
		meta:      MetaEvaluate,
		validate: func(params *Tuple) error {
			if err := checkArity("evaluate", params, 1, 1); err != nil {
				return err
			}
			if _, _, ok := EvaluateTarget(params); !ok {
				return fmt.Errorf("vm: evaluate needs a name or `name ?? default`, got %s", params.At(0))
			}
			return nil
		},
	}
	inlineKind = metaKind{
		name:      "inline",
		signature: `inline("file") | inline("file", as: raw)`,
		meta:      MetaInline,
		validate: func(params *Tuple) error {
			if err := checkArity("inline", params, 1, 2); err != nil {
				return err
			}
			if _, _, ok := InlineTarget(params); !ok {
				return fmt.Errorf("vm: inline needs a file name and optionally `as: raw`, got %s", params)
			}
			return nil
		},
	}
	rawSwitchKind = metaKind{
		name:      "rawswitch",
		signature: "rawswitch(kind)",
		meta:      MetaRawSwitch,
		validate: func(params *Tuple) error {
			if err := checkArity("rawswitch", params, 1, 1); err != nil {
				return err
			}
			if _, ok := RawSwitchTarget(params); !ok {
				return fmt.Errorf("vm: rawswitch needs a buffer kind name, got %s", params.At(0))
			}
			return nil
		},
	}
)

func (k metaKind) Name() string                 { return k.name }
func (k metaKind) Signature() string            { return k.signature }
func (k metaKind) Meta() MetaKind               { return k.meta }
func (k metaKind) Validate(params *Tuple) error { return k.validate(params) }
func (k metaKind) Instantiate(*Tuple) Block     { return metaBlock{} }

func validateDefine(params *Tuple) error {
	if err := checkArity("define", params, 1, 2); err != nil {
		return err
	}
	if !params.At(0).IsBareIdentifier() {
		return fmt.Errorf("vm: define needs a plain name, got %s", params.At(0))
	}
	if params.Len() == 2 {
		return checkValued("define", params.At(1))
	}
	return nil
}

// metaBlock gives meta blocks the Block shape; the serializer never
// continues one.
type metaBlock struct{}

func (metaBlock) ScopeVariables() []string                   { return nil }
func (metaBlock) OpenScope(Evaluator, ScopeVars) RepeatCount { return Once }

func (metaBlock) ContinueScope(Evaluator, ScopeVars) RepeatCount {
	invariant("metaBlock.ContinueScope", "meta blocks resolve in one pass")
	return Discard
}

// ---------------------------------------------------------------------------
// Parameter accessors shared with the compiler
// ---------------------------------------------------------------------------

// DefineTarget returns the defined name and, for the value form, the value.
func DefineTarget(params *Tuple) (name string, value *Parameter) {
	name = params.At(0).variable.Member()
	if params.Len() == 2 {
		v := params.At(1)
		value = &v
	}
	return name, value
}

// EvaluateTarget returns the evaluated name and an optional default.
func EvaluateTarget(params *Tuple) (name string, def *Parameter, ok bool) {
	p := params.At(0)
	if p.IsBareIdentifier() {
		return p.variable.Member(), nil, true
	}
	if p.kind == ParamExpression && p.expr.form == FormInfix && p.expr.op == OpNilCoalesce &&
		p.expr.slots[0].IsBareIdentifier() {
		d := p.expr.slots[1]
		return p.expr.slots[0].variable.Member(), &d, true
	}
	return "", nil, false
}

// InlineTarget returns the inlined file name and whether it is included
// as raw bytes.
func InlineTarget(params *Tuple) (file string, raw bool, ok bool) {
	file, ok = params.At(0).value.StringValue()
	if params.At(0).kind != ParamValue || !ok || params.Label(0) != "" {
		return "", false, false
	}
	if params.Len() == 1 {
		return file, false, true
	}
	as, labeled := params.Labeled("as")
	if !labeled || !as.IsBareIdentifier() {
		return "", false, false
	}
	switch as.variable.Member() {
	case "raw":
		return file, true, true
	case "leaf", "template":
		return file, false, true
	}
	return "", false, false
}

// RawSwitchTarget returns the buffer kind a rawswitch selects.
func RawSwitchTarget(params *Tuple) (string, bool) {
	p := params.At(0)
	if p.IsBareIdentifier() {
		return p.variable.Member(), true
	}
	if s, ok := p.value.StringValue(); ok && p.kind == ParamValue {
		return s, true
	}
	return "", false
}
