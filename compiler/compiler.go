// Package compiler turns template source into scope-table ASTs.
//
// Templates are raw text interleaved with tags. #(expr) writes a value;
// #name(params) invokes a registered block, and a trailing ':' opens a
// body closed by #endname. Chained blocks such as #if, #elseif and #else
// close each other and share the head's end tag.
package compiler

import (
	"errors"

	"github.com/tliron/commonlog"

	"github.com/chazu/leafkit/vm"
)

// Compiler compiles templates against a registry of blocks and functions.
// A Compiler is safe for concurrent use.
type Compiler struct {
	registry *vm.Registry
	log      commonlog.Logger
}

// New creates a compiler. A nil registry uses vm.DefaultRegistry.
func New(r *vm.Registry) *Compiler {
	if r == nil {
		r = vm.DefaultRegistry()
	}
	return &Compiler{registry: r, log: commonlog.GetLogger("leafkit.compiler")}
}

// Registry returns the registry templates are compiled against.
func (c *Compiler) Registry() *vm.Registry { return c.registry }

// Compile parses src and builds its AST. Syntax errors are returned as
// *SyntaxError carrying name.
func (c *Compiler) Compile(name, src string) (*vm.AST, error) {
	nodes, err := newParser(c.registry, src).parse()
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) {
			se.Name = name
		}
		c.log.Debugf("compile %s failed: %v", name, err)
		return nil, err
	}
	b := vm.NewASTBuilder(name)
	emit(b, 0, nodes)
	ast, err := b.Build()
	if err != nil {
		return nil, err
	}
	c.log.Debugf("compiled %s: %d tables, %d unresolved inlines", name, len(ast.Scopes), len(ast.Inlines))
	return ast, nil
}

// Compile compiles src with the default registry.
func Compile(name, src string) (*vm.AST, error) {
	return New(nil).Compile(name, src)
}
