package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/leafkit/vm"
)

// ---------------------------------------------------------------------------
// Expression building: grammar groups to vm parameters
// ---------------------------------------------------------------------------

// item is one flat element of a group: a value, an operator or a keyword.
type item struct {
	pos Position
	p   vm.Parameter
}

func (it item) isOp(o vm.Operator) bool {
	return it.p.Kind() == vm.ParamOperator && it.p.Operator() == o
}

func (it item) isKeyword(k vm.Keyword) bool {
	return it.p.Kind() == vm.ParamKeyword && it.p.Keyword() == k
}

// paramBuilder converts parsed groups, resolving calls against a registry.
type paramBuilder struct {
	reg  *vm.Registry
	base Position
}

// parseTuple parses parameter text into a tuple.
func (b *paramBuilder) parseTuple(src string) (*vm.Tuple, error) {
	groups, err := parseGroups(src, b.base)
	if err != nil {
		return nil, err
	}
	return b.tuple(groups, false)
}

func (b *paramBuilder) tuple(groups []*grammarGroup, collection bool) (*vm.Tuple, error) {
	t := &vm.Tuple{Collection: collection}
	for i, g := range groups {
		p, err := b.group(g)
		if err != nil {
			return nil, err
		}
		t.Values = append(t.Values, p)
		if g.Label == nil {
			continue
		}
		if t.Labels == nil {
			t.Labels = make(map[string]int)
		}
		if _, dup := t.Labels[*g.Label]; dup {
			return nil, syntaxErrorf(relocate(b.base, g.Pos), "duplicate label %s", *g.Label)
		}
		t.Labels[*g.Label] = i
	}
	return t, nil
}

func (b *paramBuilder) group(g *grammarGroup) (vm.Parameter, error) {
	items := make([]item, 0, len(g.Atoms))
	for _, a := range g.Atoms {
		it, err := b.atom(a)
		if err != nil {
			return vm.Parameter{}, err
		}
		items = append(items, it)
	}
	return b.expression(items)
}

func (b *paramBuilder) atom(a *grammarAtom) (item, error) {
	pos := relocate(b.base, a.Pos)
	var p vm.Parameter
	var err error
	switch {
	case a.Op != nil:
		op, ok := vm.ParseOperator(*a.Op)
		if !ok {
			return item{}, syntaxErrorf(pos, "unknown operator %s", *a.Op)
		}
		p = vm.OperatorParam(op)
	case a.Number != nil:
		p, err = number(*a.Number, pos)
	case a.String != nil:
		p = vm.ValueParam(vm.String(*a.String))
	case a.Scoped != nil:
		p, err = b.scoped(a.Scoped, pos)
	case a.Path != nil:
		p, err = b.path("", a.Path, pos)
	case a.Group != nil:
		p, err = b.parenthesised(a.Group)
	case a.List != nil:
		p, err = b.collection(a.List, pos)
	}
	return item{pos: pos, p: p}, err
}

func number(s string, pos Position) (vm.Parameter, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return vm.Parameter{}, syntaxErrorf(pos, "bad number %s", s)
		}
		return vm.ValueParam(vm.Double(f)), nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return vm.Parameter{}, syntaxErrorf(pos, "integer %s out of range", s)
	}
	return vm.ValueParam(vm.Int(i)), nil
}

func (b *paramBuilder) scoped(s *grammarScoped, pos Position) (vm.Parameter, error) {
	scope := strings.TrimPrefix(s.Scope, "$")
	member := strings.HasSuffix(scope, ":")
	scope = strings.TrimSuffix(scope, ":")
	switch {
	case scope == "" && !member:
		return vm.Parameter{}, syntaxErrorf(pos, "$ needs a scope name")
	case scope == "":
		scope = vm.DefaultScope
	}
	if s.Path == nil {
		if member {
			return vm.Parameter{}, syntaxErrorf(pos, "missing member after %s", s.Scope)
		}
		v, err := vm.NewVariable(scope, "")
		if err != nil {
			return vm.Parameter{}, syntaxErrorf(pos, "%v", err)
		}
		return vm.VariableParam(v), nil
	}
	return b.path(scope, s.Path, pos)
}

// path builds a variable, keyword, or call chain from dotted segments.
func (b *paramBuilder) path(scope string, p *grammarPath, pos Position) (vm.Parameter, error) {
	var recv *vm.Parameter
	var names []string
	for _, seg := range p.Segments {
		segPos := relocate(b.base, seg.Pos)
		if seg.Call == nil {
			if recv != nil {
				return vm.Parameter{}, syntaxErrorf(segPos, "cannot read %s of a call result", seg.Name)
			}
			names = append(names, seg.Name)
			continue
		}
		args, err := b.tuple(seg.Call.Groups, false)
		if err != nil {
			return vm.Parameter{}, err
		}
		var call *vm.Call
		if recv == nil && len(names) == 0 && scope == "" {
			call, err = vm.NewCall(b.reg, seg.Name, args)
		} else {
			receiver := recv
			if receiver == nil {
				v, verr := variable(scope, names, segPos)
				if verr != nil {
					return vm.Parameter{}, verr
				}
				receiver = &v
			}
			call, err = vm.NewMethodCall(b.reg, seg.Name, *receiver, args)
		}
		if err != nil {
			return vm.Parameter{}, syntaxErrorf(segPos, "%v", err)
		}
		cp := vm.CallParam(call)
		recv, names = &cp, nil
	}
	if recv != nil {
		return *recv, nil
	}
	if scope == "" && len(names) == 1 {
		if kw, ok := vm.ParseKeyword(names[0]); ok {
			return vm.KeywordParam(kw), nil
		}
	}
	return variable(scope, names, pos)
}

func variable(scope string, names []string, pos Position) (vm.Parameter, error) {
	var v vm.Variable
	var err error
	if len(names) == 0 {
		v, err = vm.NewVariable(scope, "")
	} else {
		v, err = vm.NewVariable(scope, names[0], names[1:]...)
	}
	if err != nil {
		return vm.Parameter{}, syntaxErrorf(pos, "%v", err)
	}
	return vm.VariableParam(v), nil
}

// parenthesised is a nested expression, or a tuple when it holds several
// or labeled groups.
func (b *paramBuilder) parenthesised(a *grammarArgs) (vm.Parameter, error) {
	if len(a.Groups) == 1 && a.Groups[0].Label == nil {
		return b.group(a.Groups[0])
	}
	t, err := b.tuple(a.Groups, false)
	if err != nil {
		return vm.Parameter{}, err
	}
	return vm.TupleParam(t), nil
}

func (b *paramBuilder) collection(c *grammarCollection, pos Position) (vm.Parameter, error) {
	if c.Empty {
		if len(c.Groups) > 0 {
			return vm.Parameter{}, syntaxErrorf(pos, "[: starts an empty dictionary")
		}
		return vm.TupleParam(&vm.Tuple{Labels: map[string]int{}, Collection: true}), nil
	}
	t, err := b.tuple(c.Groups, true)
	if err != nil {
		return vm.Parameter{}, err
	}
	if t.Labels != nil && len(t.Labels) != len(t.Values) {
		return vm.Parameter{}, syntaxErrorf(pos, "collection mixes labeled and unlabeled values")
	}
	return vm.TupleParam(t), nil
}

// ---------------------------------------------------------------------------
// Flat item sequences to expressions
// ---------------------------------------------------------------------------

// expression combines a flat item run. Declarations, `in` forms and
// assignments are recognised by shape first; then ternaries are split;
// the rest is precedence climbing.
func (b *paramBuilder) expression(items []item) (vm.Parameter, error) {
	if len(items) == 0 {
		return vm.Parameter{}, syntaxErrorf(b.base, "empty parameter")
	}
	first := items[0]

	if first.isKeyword(vm.KwVar) || first.isKeyword(vm.KwLet) {
		switch {
		case len(items) == 2:
			return b.make(first.pos, first.p, items[1].p)
		case len(items) >= 4 && items[2].isOp(vm.OpAssign):
			v, err := b.expression(items[3:])
			if err != nil {
				return vm.Parameter{}, err
			}
			return b.make(first.pos, first.p, items[1].p, items[2].p, v)
		}
		return vm.Parameter{}, syntaxErrorf(first.pos, "malformed %s declaration", first.p)
	}

	if len(items) >= 3 && items[1].isKeyword(vm.KwIn) {
		rhs, err := b.expression(items[2:])
		if err != nil {
			return vm.Parameter{}, err
		}
		return b.make(items[1].pos, first.p, items[1].p, rhs)
	}

	if len(items) >= 3 && items[1].p.Kind() == vm.ParamOperator && items[1].p.Operator().IsAssignment() {
		rhs, err := b.expression(items[2:])
		if err != nil {
			return vm.Parameter{}, err
		}
		return b.make(items[1].pos, first.p, items[1].p, rhs)
	}

	if q, c, ok := ternarySplit(items); ok {
		var parts [3]vm.Parameter
		for i, run := range [][]item{items[:q], items[q+1 : c], items[c+1:]} {
			p, err := b.expression(run)
			if err != nil {
				return vm.Parameter{}, err
			}
			parts[i] = p
		}
		e, err := vm.NewTernary(parts[0], parts[1], parts[2])
		if err != nil {
			return vm.Parameter{}, syntaxErrorf(items[q].pos, "%v", err)
		}
		return vm.ExpressionParam(e), nil
	}

	cl := &climber{b: b, items: items}
	p, err := cl.binary(1)
	if err != nil {
		return vm.Parameter{}, err
	}
	if cl.i < len(items) {
		return vm.Parameter{}, syntaxErrorf(items[cl.i].pos, "unexpected %s", items[cl.i].p)
	}
	return p, nil
}

func (b *paramBuilder) make(pos Position, params ...vm.Parameter) (vm.Parameter, error) {
	e, err := vm.NewExpression(params)
	if err != nil {
		return vm.Parameter{}, syntaxErrorf(pos, "%v", err)
	}
	return vm.ExpressionParam(e), nil
}

// ternarySplit finds the `?` and `:` of an outermost ternary. A `?` with
// no matching `:` is a postfix existence check.
func ternarySplit(items []item) (q, c int, ok bool) {
	for q = 1; q < len(items)-1; q++ {
		if !items[q].isOp(vm.OpQuestion) {
			continue
		}
		depth := 0
		for c = q + 1; c < len(items); c++ {
			switch {
			case items[c].isOp(vm.OpQuestion) && c < len(items)-1:
				depth++
			case items[c].isOp(vm.OpColon):
				if depth == 0 {
					return q, c, true
				}
				depth--
			}
		}
	}
	return 0, 0, false
}

// climber applies operator precedence over a flat item run.
type climber struct {
	b     *paramBuilder
	items []item
	i     int
}

func (c *climber) binary(min int) (vm.Parameter, error) {
	lhs, err := c.unary()
	if err != nil {
		return vm.Parameter{}, err
	}
	for c.i < len(c.items) {
		it := c.items[c.i]
		if it.p.Kind() != vm.ParamOperator {
			break
		}
		prec := it.p.Operator().Precedence()
		if prec == 0 || prec < min {
			break
		}
		c.i++
		rhs, err := c.binary(prec + 1)
		if err != nil {
			return vm.Parameter{}, err
		}
		if lhs, err = c.b.make(it.pos, lhs, it.p, rhs); err != nil {
			return vm.Parameter{}, err
		}
	}
	return lhs, nil
}

func (c *climber) unary() (vm.Parameter, error) {
	if c.i >= len(c.items) {
		last := c.items[len(c.items)-1]
		return vm.Parameter{}, syntaxErrorf(last.pos, "expected a value after %s", last.p)
	}
	it := c.items[c.i]
	if it.p.Kind() == vm.ParamOperator && it.p.Operator().IsUnaryPrefix() {
		c.i++
		operand, err := c.unary()
		if err != nil {
			return vm.Parameter{}, err
		}
		if it.p.Operator() == vm.OpMinus {
			if folded, ok := negate(operand); ok {
				return folded, nil
			}
		}
		return c.b.make(it.pos, it.p, operand)
	}
	if !it.p.IsValued() {
		return vm.Parameter{}, syntaxErrorf(it.pos, "unexpected %s", it.p)
	}
	c.i++
	v := it.p
	for c.i < len(c.items) && c.items[c.i].isOp(vm.OpQuestion) {
		var err error
		if v, err = c.b.make(c.items[c.i].pos, v, c.items[c.i].p); err != nil {
			return vm.Parameter{}, err
		}
		c.i++
	}
	return v, nil
}

// negate folds unary minus on a numeric literal.
func negate(p vm.Parameter) (vm.Parameter, bool) {
	if p.Kind() != vm.ParamValue {
		return p, false
	}
	if i, ok := p.Value().IntValue(); ok {
		return vm.ValueParam(vm.Int(-i)), true
	}
	if f, ok := p.Value().DoubleValue(); ok {
		return vm.ValueParam(vm.Double(-f)), true
	}
	return p, false
}
