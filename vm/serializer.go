package vm

import (
	"errors"
	"fmt"
	"time"
)

// cutoffMask sets how often the interpreter loop reads the clock: once
// every cutoffMask+1 steps.
const cutoffMask = 0xff

// ---------------------------------------------------------------------------
// Frame: execution state of one scope body
// ---------------------------------------------------------------------------

// definition is a #define target: a body range or a value.
type definition struct {
	table, start, end int
	value             *Parameter
}

type frame struct {
	table  int
	start  int
	end    int
	offset int
	origin int // offset of the opening block node in the parent table

	block Block
	count RepeatCount
	vars  ScopeVars

	defines     map[string]definition
	ownsDefines bool

	buffer  Buffer
	spawned bool // buffer belongs to this frame and is merged on pop

	allocated bool // pushed a ScopeStack frame
	chained   bool // a link of the current conditional chain ran
	reenter   bool // re-open the block from the parent after the pass
}

// ---------------------------------------------------------------------------
// Serializer
// ---------------------------------------------------------------------------

// Serializer renders ASTs. It holds only immutable options, so one
// Serializer may run any number of concurrent Serialize calls.
type Serializer struct {
	opts Options
}

// NewSerializer returns a serializer using opts, with zero fields
// defaulted and the timeout floor applied.
func NewSerializer(opts Options) *Serializer {
	return &Serializer{opts: opts.normalized()}
}

// Options returns the effective options.
func (s *Serializer) Options() Options { return s.opts }

// Serialize interprets ast against ctx and returns the filled buffer. On
// any error no buffer is returned.
func (s *Serializer) Serialize(ast *AST, ctx *Context) (Buffer, error) {
	factory, ok := s.opts.Registry.Buffer(s.opts.Buffer)
	if !ok {
		return nil, fmt.Errorf("vm: unknown buffer kind %q", s.opts.Buffer)
	}
	if len(ast.Scopes) == 0 {
		return nil, fmt.Errorf("vm: %s: AST has no root table", ast.Name)
	}
	buf := factory(s.opts.Encoding, s.opts.Formatters)

	r := &run{
		opts:     &s.opts,
		ast:      ast,
		scopes:   NewScopeStack(ctx),
		frames:   make([]*frame, 0, 16),
		fp:       -1,
		deadline: time.Now().Add(s.opts.Timeout),
	}
	r.ev.r = r
	r.scopes.onDeclare = r.allocate

	root := r.push(nil, 0, 0, len(ast.Scopes[0]), buf)
	root.allocated = true
	root.count = Once

	if err := r.execute(); err != nil {
		return nil, err
	}
	return buf, nil
}

// ---------------------------------------------------------------------------
// run: state of one Serialize call
// ---------------------------------------------------------------------------

type run struct {
	opts   *Options
	ast    *AST
	scopes *ScopeStack
	ev     blockEvaluator

	frames []*frame
	fp     int

	ticks    uint
	deadline time.Time
	err      error
}

func (r *run) execute() error {
	for r.fp >= 0 {
		r.ticks++
		if r.ticks&cutoffMask == 0 && time.Now().After(r.deadline) {
			return fmt.Errorf("%w (%s)", ErrTimeout, r.opts.Timeout)
		}
		f := r.frames[r.fp]
		if f.offset >= f.end {
			if !r.repeat(f) {
				r.pop()
			}
		} else {
			r.step(f)
		}
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

// step executes the node at f.offset.
func (r *run) step(f *frame) {
	node := &r.ast.Scopes[f.table][f.offset]
	switch node.Kind {
	case SyntaxRaw:
		f.chained = false
		r.check(f.buffer.WriteRaw(node.Raw))
		f.offset++
	case SyntaxPassthrough:
		f.chained = false
		r.passthrough(f, node.Param)
		f.offset++
	case SyntaxBlock:
		r.enter(f, node.Block)
	default:
		invariant("run.step", "scope reference at %d:%d without a block", f.table, f.offset)
	}
}

// ---------------------------------------------------------------------------
// Frame stack management
// ---------------------------------------------------------------------------

func (r *run) push(parent *frame, table, start, end int, buf Buffer) *frame {
	r.fp++
	if r.fp == len(r.frames) {
		r.frames = append(r.frames, &frame{})
	}
	f := r.frames[r.fp]
	*f = frame{table: table, start: start, end: end, offset: start, buffer: buf, count: Once}
	if parent != nil {
		f.defines = parent.defines
	}
	return f
}

func (r *run) pop() {
	f := r.frames[r.fp]
	if f.allocated && r.fp > 0 {
		r.scopes.Pop()
	}
	r.fp--
	if r.fp >= 0 {
		parent := r.frames[r.fp]
		if f.spawned {
			r.check(parent.buffer.Append(f.buffer))
		}
		if f.reenter {
			parent.offset = f.origin
		}
	}
	*f = frame{}
}

// allocate gives the current frame its own variable table the first time
// something is declared in it.
func (r *run) allocate() {
	f := r.frames[r.fp]
	if !f.allocated {
		r.scopes.Push(nil)
		f.allocated = true
	}
}

// repeat prepares another pass over f's body, or reports that f is done.
func (r *run) repeat(f *frame) bool {
	if f.block == nil {
		return false
	}
	vars := f.vars
	if vars == nil {
		vars = ScopeVars{}
	}
	if f.count != Indefinite {
		f.count--
		if f.count <= 0 {
			return false
		}
	}
	r.ev.err = nil
	c := f.block.ContinueScope(&r.ev, vars)
	if r.ev.err != nil {
		r.err = r.ev.err
		return false
	}
	if c == Discard {
		return false
	}
	if f.count == Indefinite && c != Indefinite {
		f.count = c
	}
	f.offset = f.start
	if f.allocated {
		r.scopes.Rebind(f.vars)
	}
	return true
}

// ---------------------------------------------------------------------------
// Blocks
// ---------------------------------------------------------------------------

// enter handles the block node at f.offset: it either pushes a frame for
// the body or resolves the block in place. f.offset moves past the body
// either way.
func (r *run) enter(f *frame, bs *BlockSyntax) {
	at := f.offset
	table, start, end := r.ast.body(f.table, at)
	f.offset = r.ast.after(f.table, at)

	if IsChainLink(bs.Kind) {
		if f.chained {
			return
		}
	} else {
		f.chained = false
	}

	switch bs.Meta {
	case MetaDefine:
		name, value := DefineTarget(bs.Params)
		if !f.ownsDefines {
			own := make(map[string]definition, len(f.defines)+1)
			for k, d := range f.defines {
				own[k] = d
			}
			f.defines, f.ownsDefines = own, true
		}
		f.defines[name] = definition{table: table, start: start, end: end, value: value}
		return

	case MetaEvaluate:
		r.evaluate(f, bs)
		return

	case MetaInline:
		if !bs.Resolved {
			name, _, _ := InlineTarget(bs.Params)
			r.err = evalError(KindUnresolvedInline, "inline", "%s was not resolved before serializing", name)
			return
		}
		r.push(f, table, start, end, f.buffer)
		return

	case MetaRawSwitch:
		kind, _ := RawSwitchTarget(bs.Params)
		var buf Buffer
		if kind == f.buffer.Kind() {
			buf = f.buffer.Spawn()
		} else {
			factory, ok := r.opts.Registry.Buffer(kind)
			if !ok {
				r.err = fmt.Errorf("vm: rawswitch: unknown buffer kind %q", kind)
				return
			}
			buf = factory(f.buffer.Encoding(), r.opts.Formatters)
		}
		child := r.push(f, table, start, end, buf)
		child.spawned = true
		return
	}

	blk := bs.Kind.Instantiate(bs.Params)
	vars := ScopeVars{}
	r.ev.err = nil
	count := blk.OpenScope(&r.ev, vars)
	if r.ev.err != nil {
		r.err = r.ev.err
		return
	}
	if _, ok := bs.Kind.(ChainedKind); ok {
		if count != Once && count != Discard {
			invariant("run.enter", "chained block %s opened with %s", bs.Name, count)
		}
		f.chained = count == Once
	}
	if count == Discard {
		return
	}
	if count < Indefinite {
		invariant("run.enter", "block %s opened with %s", bs.Name, count)
	}

	child := r.push(f, table, start, end, f.buffer)
	child.block = blk
	child.count = count
	child.origin = at
	if re, ok := blk.(reentrant); ok && re.reenters() {
		child.reenter = true
	}
	if len(blk.ScopeVariables()) > 0 {
		child.vars = vars
		r.scopes.Push(vars)
		child.allocated = true
	}
}

// evaluate resolves #evaluate against the frame's definitions.
func (r *run) evaluate(f *frame, bs *BlockSyntax) {
	name, def, _ := EvaluateTarget(bs.Params)
	if d, ok := f.defines[name]; ok {
		if d.value != nil {
			r.emit(f, d.value.Evaluate(r.scopes))
			return
		}
		r.push(f, d.table, d.start, d.end, f.buffer)
		return
	}
	if def != nil {
		r.emit(f, def.Evaluate(r.scopes))
		return
	}
	r.err = evalError(KindMissingDefinition, "evaluate", "%s is not defined", name)
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// passthrough writes the value of p, or applies it when it is an
// assignment or declaration.
func (r *run) passthrough(f *frame, p Parameter) {
	if p.kind == ParamExpression && p.expr.form.Mutates() {
		if v := p.expr.Evaluate(r.scopes); v.Errored() {
			r.err = v.Err()
		}
		return
	}
	r.emit(f, p.Evaluate(r.scopes))
}

// emit writes v, applying the missing-variable policy to errored values.
func (r *run) emit(f *frame, v Data) {
	v = v.Force()
	if v.Errored() {
		if r.opts.MissingVariableThrows || !errors.Is(v.Err(), ErrMissingVariable) {
			r.err = v.Err()
			return
		}
		v = Void
	}
	r.check(f.buffer.WriteData(v))
}

func (r *run) check(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// blockEvaluator evaluates block parameters and records the first error
// for the serializer to pick up after OpenScope or ContinueScope.
type blockEvaluator struct {
	r   *run
	err error
}

func (e *blockEvaluator) Evaluate(p Parameter) Data {
	v := p.Evaluate(e.r.scopes).Force()
	if !v.Errored() {
		return v
	}
	if !e.r.opts.MissingVariableThrows && errors.Is(v.Err(), ErrMissingVariable) {
		return Void
	}
	if e.err == nil {
		e.err = v.Err()
	}
	return v
}
