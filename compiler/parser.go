package compiler

import (
	"slices"

	"github.com/chazu/leafkit/vm"
)

// ---------------------------------------------------------------------------
// Tree building: tokens to a nested node tree
// ---------------------------------------------------------------------------

type nodeKind uint8

const (
	nodeRaw nodeKind = iota
	nodeOutput
	nodeBlock
)

// node is one element of the template tree. Block nodes own their body.
type node struct {
	kind  nodeKind
	pos   Position
	raw   []byte
	param vm.Parameter
	block *vm.BlockSyntax

	body    []*node
	hasBody bool
	// chainHead names the block that started the chain this block belongs
	// to, so #endif closes an #else.
	chainHead string
}

// parser assembles tokens into a tree, checking block structure.
type parser struct {
	reg    *vm.Registry
	tokens []Token
	root   []*node
	open   []*node
}

func newParser(reg *vm.Registry, src string) *parser {
	isBlock := func(name string) bool {
		_, ok := reg.Block(name)
		return ok
	}
	return &parser{reg: reg, tokens: NewLexer(src, isBlock).Tokens()}
}

func (p *parser) parse() ([]*node, error) {
	for _, tok := range p.tokens {
		var err error
		switch tok.Type {
		case TokenEOF:
			if n := len(p.open); n > 0 {
				top := p.open[n-1]
				return nil, syntaxErrorf(top.pos, "unterminated #%s", top.block.Name)
			}
			return p.root, nil
		case TokenError:
			err = syntaxErrorf(tok.Pos, "%s", tok.Literal)
		case TokenRaw:
			p.raw(tok)
		case TokenPassthrough:
			err = p.passthrough(tok)
		case TokenTag:
			err = p.tag(tok)
		case TokenEnd:
			err = p.end(tok)
		}
		if err != nil {
			return nil, err
		}
	}
	return p.root, nil
}

// children returns the node list new nodes are appended to.
func (p *parser) children() *[]*node {
	if n := len(p.open); n > 0 {
		return &p.open[n-1].body
	}
	return &p.root
}

func (p *parser) raw(tok Token) {
	list := p.children()
	if n := len(*list); n > 0 && (*list)[n-1].kind == nodeRaw {
		(*list)[n-1].raw = append((*list)[n-1].raw, tok.Literal...)
		return
	}
	*list = append(*list, &node{kind: nodeRaw, pos: tok.Pos, raw: []byte(tok.Literal)})
}

func (p *parser) passthrough(tok Token) error {
	b := paramBuilder{reg: p.reg, base: tok.ParamPos}
	t, err := b.parseTuple(tok.Params)
	if err != nil {
		return err
	}
	if t.Len() != 1 || t.Label(0) != "" {
		return syntaxErrorf(tok.Pos, "#() takes exactly one unlabeled value")
	}
	if !t.At(0).IsValued() {
		return syntaxErrorf(tok.ParamPos, "%s is not a value", t.At(0))
	}
	list := p.children()
	*list = append(*list, &node{kind: nodeOutput, pos: tok.Pos, param: t.At(0)})
	return nil
}

func (p *parser) tag(tok Token) error {
	kind, ok := p.reg.Block(tok.Name)
	if !ok {
		return syntaxErrorf(tok.Pos, "unknown block #%s", tok.Name)
	}
	params := vm.NewTuple()
	if tok.HasParams {
		b := paramBuilder{reg: p.reg, base: tok.ParamPos}
		var err error
		if params, err = b.parseTuple(tok.Params); err != nil {
			return err
		}
	}
	if err := kind.Validate(params); err != nil {
		return syntaxErrorf(tok.Pos, "%v", err)
	}

	n := &node{
		kind:  nodeBlock,
		pos:   tok.Pos,
		block: &vm.BlockSyntax{Name: tok.Name, Kind: kind, Params: params},
	}
	n.chainHead = tok.Name

	if vm.IsChainLink(kind) {
		top := p.top()
		if top == nil || !accepts(top.block.Kind, tok.Name) {
			return syntaxErrorf(tok.Pos, "#%s must follow one of %v",
				tok.Name, kind.(vm.ChainedKind).ChainsTo())
		}
		p.open = p.open[:len(p.open)-1]
		n.chainHead = top.chainHead
	}

	switch needs := takesBody(kind, params); {
	case needs && !tok.Opens:
		return syntaxErrorf(tok.Pos, "#%s needs a body: end the tag with ':'", tok.Name)
	case !needs && tok.Opens:
		return syntaxErrorf(tok.Pos, "#%s takes no body", tok.Name)
	}

	list := p.children()
	*list = append(*list, n)
	if tok.Opens {
		n.hasBody = true
		p.open = append(p.open, n)
	}
	return nil
}

func (p *parser) end(tok Token) error {
	top := p.top()
	if top == nil {
		return syntaxErrorf(tok.Pos, "#end%s closes nothing", tok.Name)
	}
	if tok.Name != top.block.Name && tok.Name != top.chainHead {
		return syntaxErrorf(tok.Pos, "#end%s cannot close #%s opened at %s", tok.Name, top.block.Name, top.pos)
	}
	p.open = p.open[:len(p.open)-1]
	return nil
}

func (p *parser) top() *node {
	if n := len(p.open); n > 0 {
		return p.open[n-1]
	}
	return nil
}

func accepts(k vm.BlockKind, link string) bool {
	c, ok := k.(vm.ChainedKind)
	return ok && slices.Contains(c.ChainAccepts(), link)
}

// takesBody reports whether a block opens a body. A define with a value,
// evaluate and inline are complete tags.
func takesBody(k vm.BlockKind, params *vm.Tuple) bool {
	switch vm.MetaOf(k) {
	case vm.MetaDefine:
		return params.Len() == 1
	case vm.MetaEvaluate, vm.MetaInline:
		return false
	}
	return true
}
