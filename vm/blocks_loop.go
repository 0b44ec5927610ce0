package vm

import "fmt"

// ---------------------------------------------------------------------------
// for
// ---------------------------------------------------------------------------

type forKind struct{}

func (forKind) Name() string      { return "for" }
func (forKind) Signature() string { return "for(item in collection) | for((key, item) in collection)" }

func (forKind) Validate(params *Tuple) error {
	if err := checkArity("for", params, 1, 1); err != nil {
		return err
	}
	p := params.At(0)
	if p.kind != ParamExpression || p.expr.form != FormCustom {
		return fmt.Errorf("vm: for needs `item in collection`, got %s", p)
	}
	_, _, err := forBindings(p.expr.slots[0])
	return err
}

// forBindings splits the loop target into key and value names; "" means
// unbound.
func forBindings(target Parameter) (key, value string, err error) {
	name := func(p Parameter) (string, error) {
		switch {
		case p.IsBareIdentifier():
			return p.variable.Member(), nil
		case p.kind == ParamKeyword && p.kw == KwDiscard:
			return "", nil
		}
		return "", fmt.Errorf("vm: for cannot bind %s", p)
	}
	if target.kind == ParamTuple && !target.tuple.Collection {
		if target.tuple.Len() != 2 || len(target.tuple.Labels) > 0 {
			return "", "", fmt.Errorf("vm: for binds one value or a (key, value) pair, got %s", target)
		}
		if key, err = name(target.tuple.At(0)); err != nil {
			return "", "", err
		}
		value, err = name(target.tuple.At(1))
		if err == nil && key != "" && key == value {
			err = fmt.Errorf("vm: for binds %s twice", key)
		}
		return key, value, err
	}
	value, err = name(target)
	return "", value, err
}

func (forKind) Instantiate(params *Tuple) Block {
	e := params.At(0).expr
	key, value, _ := forBindings(e.slots[0])
	return &forBlock{keyName: key, valueName: value, source: e.slots[1]}
}

type forPair struct {
	key, value Data
}

// forBlock snapshots its source on open so the body cannot disturb the
// iteration.
type forBlock struct {
	keyName   string
	valueName string
	source    Parameter

	pairs []forPair
	count int
	pos   int
}

func (b *forBlock) binds() bool { return b.keyName != "" || b.valueName != "" }

func (b *forBlock) ScopeVariables() []string {
	if !b.binds() {
		return nil
	}
	names := []string{"isFirst", "isLast", "index"}
	if b.valueName != "" {
		names = append(names, b.valueName)
	}
	if b.keyName != "" {
		names = append(names, b.keyName)
	}
	return names
}

func (b *forBlock) OpenScope(ev Evaluator, vars ScopeVars) RepeatCount {
	src := ev.Evaluate(b.source).Force()
	if src.Errored() {
		return Discard
	}
	b.snapshot(src)
	if b.count == 0 {
		return Discard
	}
	b.bind(vars)
	return Repeating(b.count)
}

func (b *forBlock) snapshot(src Data) {
	counting := !b.binds()
	switch src.BaseType() {
	case TypeArray:
		arr, _ := src.ArrayValue()
		b.count = len(arr)
		if !counting {
			b.pairs = make([]forPair, len(arr))
			for i, v := range arr {
				b.pairs[i] = forPair{Int(int64(i)), v}
			}
		}
	case TypeDictionary:
		m, _ := src.DictionaryValue()
		b.count = len(m)
		if !counting {
			b.pairs = make([]forPair, 0, len(m))
			for _, k := range sortedKeys(m) {
				b.pairs = append(b.pairs, forPair{String(k), m[k]})
			}
		}
	case TypeInt:
		n, _ := src.IntValue()
		if n > 0 {
			b.count = int(n)
		}
		if !counting {
			b.pairs = make([]forPair, b.count)
			for i := range b.pairs {
				b.pairs[i] = forPair{Int(int64(i)), Int(int64(i))}
			}
		}
	case TypeString:
		s, _ := src.StringValue()
		for _, r := range s {
			if !counting {
				b.pairs = append(b.pairs, forPair{Int(int64(b.count)), String(string(r))})
			}
			b.count++
		}
	}
}

func (b *forBlock) bind(vars ScopeVars) {
	if !b.binds() {
		return
	}
	p := b.pairs[b.pos]
	vars["isFirst"] = Bool(b.pos == 0)
	vars["isLast"] = Bool(b.pos == b.count-1)
	vars["index"] = Int(int64(b.pos))
	if b.valueName != "" {
		vars[b.valueName] = p.value
	}
	if b.keyName != "" {
		vars[b.keyName] = p.key
	}
}

func (b *forBlock) ContinueScope(ev Evaluator, vars ScopeVars) RepeatCount {
	b.pos++
	if b.pos >= b.count {
		return Discard
	}
	b.bind(vars)
	return Repeating(b.count - b.pos)
}

// ---------------------------------------------------------------------------
// while
// ---------------------------------------------------------------------------

type whileKind struct{}

func (whileKind) Name() string      { return "while" }
func (whileKind) Signature() string { return "while(condition)" }

func (whileKind) Validate(params *Tuple) error {
	if err := checkArity("while", params, 1, 1); err != nil {
		return err
	}
	return checkValued("while", params.At(0))
}

func (whileKind) Instantiate(params *Tuple) Block {
	return &whileBlock{cond: params.At(0)}
}

// whileBlock checks its guard once per entry. The serializer re-enters
// it after every completed pass.
type whileBlock struct {
	cond Parameter
}

func (b *whileBlock) ScopeVariables() []string { return nil }
func (b *whileBlock) reenters() bool           { return true }

func (b *whileBlock) OpenScope(ev Evaluator, vars ScopeVars) RepeatCount {
	if ev.Evaluate(b.cond).Truthy() {
		return Once
	}
	return Discard
}

func (b *whileBlock) ContinueScope(Evaluator, ScopeVars) RepeatCount {
	invariant("whileBlock.ContinueScope", "while blocks are re-entered, never continued")
	return Discard
}

// ---------------------------------------------------------------------------
// repeat (do-while)
// ---------------------------------------------------------------------------

type repeatKind struct{}

func (repeatKind) Name() string      { return "repeat" }
func (repeatKind) Signature() string { return "repeat(while: condition)" }

func (repeatKind) Validate(params *Tuple) error {
	if err := checkArity("repeat", params, 1, 1); err != nil {
		return err
	}
	if l := params.Label(0); l != "" && l != "while" {
		return fmt.Errorf("vm: repeat does not take label %s", l)
	}
	return checkValued("repeat", params.At(0))
}

func (repeatKind) Instantiate(params *Tuple) Block {
	return &repeatBlock{cond: params.At(0)}
}

// repeatBlock runs its body before the first guard check. A failed check
// is cached.
type repeatBlock struct {
	cond   Parameter
	failed bool
}

func (b *repeatBlock) ScopeVariables() []string { return nil }

func (b *repeatBlock) OpenScope(Evaluator, ScopeVars) RepeatCount { return Indefinite }

func (b *repeatBlock) ContinueScope(ev Evaluator, vars ScopeVars) RepeatCount {
	if b.failed {
		return Discard
	}
	if !ev.Evaluate(b.cond).Truthy() {
		b.failed = true
		return Discard
	}
	return Indefinite
}
