package vm

// ---------------------------------------------------------------------------
// if / elseif / else
// ---------------------------------------------------------------------------

type ifKind struct{}

func (ifKind) Name() string               { return "if" }
func (ifKind) Signature() string          { return "if(condition)" }
func (ifKind) ChainsTo() []string         { return nil }
func (ifKind) ChainAccepts() []string     { return []string{"elseif", "else"} }
func (ifKind) Instantiate(p *Tuple) Block { return &condBlock{cond: p.At(0), guarded: true} }

func (ifKind) Validate(params *Tuple) error {
	if err := checkArity("if", params, 1, 1); err != nil {
		return err
	}
	return checkValued("if", params.At(0))
}

type elseifKind struct{}

func (elseifKind) Name() string               { return "elseif" }
func (elseifKind) Signature() string          { return "elseif(condition)" }
func (elseifKind) ChainsTo() []string         { return []string{"if", "elseif"} }
func (elseifKind) ChainAccepts() []string     { return []string{"elseif", "else"} }
func (elseifKind) Instantiate(p *Tuple) Block { return &condBlock{cond: p.At(0), guarded: true} }

func (elseifKind) Validate(params *Tuple) error {
	if err := checkArity("elseif", params, 1, 1); err != nil {
		return err
	}
	return checkValued("elseif", params.At(0))
}

type elseKind struct{}

func (elseKind) Name() string                 { return "else" }
func (elseKind) Signature() string            { return "else" }
func (elseKind) ChainsTo() []string           { return []string{"if", "elseif"} }
func (elseKind) ChainAccepts() []string       { return nil }
func (elseKind) Instantiate(*Tuple) Block     { return &condBlock{} }
func (elseKind) Validate(params *Tuple) error { return checkArity("else", params, 0, 0) }

// condBlock is one link of a conditional chain. It runs at most once.
type condBlock struct {
	cond    Parameter
	guarded bool
}

func (b *condBlock) ScopeVariables() []string { return nil }

func (b *condBlock) OpenScope(ev Evaluator, vars ScopeVars) RepeatCount {
	if !b.guarded || ev.Evaluate(b.cond).Truthy() {
		return Once
	}
	return Discard
}

func (b *condBlock) ContinueScope(Evaluator, ScopeVars) RepeatCount {
	invariant("condBlock.ContinueScope", "conditional block continued after its single pass")
	return Discard
}
