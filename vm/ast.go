package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Syntax nodes
// ---------------------------------------------------------------------------

// SyntaxKind discriminates Syntax.
type SyntaxKind uint8

const (
	SyntaxRaw SyntaxKind = iota
	SyntaxPassthrough
	SyntaxBlock
	SyntaxScope
)

func (k SyntaxKind) String() string {
	switch k {
	case SyntaxRaw:
		return "raw"
	case SyntaxPassthrough:
		return "passthrough"
	case SyntaxBlock:
		return "block"
	case SyntaxScope:
		return "scope"
	}
	return "unknown"
}

// Syntax is one node of a scope table. A block node is always followed
// by a scope node. The scope node holds the body's table index, or for a
// body of exactly one node, AtomicRef of its own table: the body is then
// the node right after the scope node.
type Syntax struct {
	Kind  SyntaxKind
	Raw   []byte
	Param Parameter
	Block *BlockSyntax
	Scope int
}

// BlockSyntax is a block opener.
type BlockSyntax struct {
	Name   string
	Kind   BlockKind
	Params *Tuple
	Meta   MetaKind
	// Resolved marks an inline whose body has been spliced in.
	Resolved bool
}

// AtomicRef encodes a self reference to table for an atomic body.
func AtomicRef(table int) int { return -table - 1 }

// IsAtomic reports whether a scope node marks an atomic body.
func (s Syntax) IsAtomic() bool { return s.Kind == SyntaxScope && s.Scope < 0 }

// InlineRef locates an #inline block awaiting resolution.
type InlineRef struct {
	Name   string
	Raw    bool
	Table  int
	Offset int // index of the block node
}

// AST is a compiled template: scope tables indexed from the root, table 0.
// An AST is read-only once built; Resolve returns a modified copy.
type AST struct {
	Name    string
	Scopes  [][]Syntax
	Inlines []InlineRef
}

// body returns the table and node range of the block node at table/at.
func (a *AST) body(table, at int) (t, start, end int) {
	nodes := a.Scopes[table]
	if at+1 >= len(nodes) || nodes[at+1].Kind != SyntaxScope {
		invariant("AST.body", "block at %d:%d has no scope reference", table, at)
	}
	ref := nodes[at+1]
	if ref.IsAtomic() {
		if -ref.Scope-1 != table || at+2 >= len(nodes) {
			invariant("AST.body", "bad atomic body at %d:%d", table, at)
		}
		return table, at + 2, at + 3
	}
	if ref.Scope >= len(a.Scopes) {
		invariant("AST.body", "scope reference %d out of range at %d:%d", ref.Scope, table, at)
	}
	return ref.Scope, 0, len(a.Scopes[ref.Scope])
}

// after returns the index of the node following the block at table/at
// and its body.
func (a *AST) after(table, at int) int {
	if a.Scopes[table][at+1].IsAtomic() {
		return at + 3
	}
	return at + 2
}

// Validate checks the structural invariants of the tables.
func (a *AST) Validate() error {
	if len(a.Scopes) == 0 {
		return fmt.Errorf("vm: %s: AST has no root table", a.Name)
	}
	for t, nodes := range a.Scopes {
		for i := 0; i < len(nodes); i++ {
			switch nodes[i].Kind {
			case SyntaxScope:
				return fmt.Errorf("vm: %s: stray scope reference at %d:%d", a.Name, t, i)
			case SyntaxBlock:
				if nodes[i].Block == nil || nodes[i].Block.Kind == nil {
					return fmt.Errorf("vm: %s: block at %d:%d has no kind", a.Name, t, i)
				}
				if i+1 >= len(nodes) || nodes[i+1].Kind != SyntaxScope {
					return fmt.Errorf("vm: %s: block at %d:%d has no scope reference", a.Name, t, i)
				}
				ref := nodes[i+1]
				switch {
				case ref.IsAtomic():
					if -ref.Scope-1 != t || i+2 >= len(nodes) || nodes[i+2].Kind == SyntaxScope {
						return fmt.Errorf("vm: %s: bad atomic body at %d:%d", a.Name, t, i)
					}
					if nodes[i+2].Kind == SyntaxBlock {
						return fmt.Errorf("vm: %s: atomic body at %d:%d is a block", a.Name, t, i)
					}
					i += 2
				case ref.Scope == 0 || ref.Scope >= len(a.Scopes):
					return fmt.Errorf("vm: %s: scope reference %d out of range at %d:%d", a.Name, ref.Scope, t, i)
				default:
					i++
				}
			}
		}
	}
	return nil
}

// Unresolved returns the names of inlines not yet spliced in.
func (a *AST) Unresolved() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ref := range a.Inlines {
		if !seen[ref.Name] {
			seen[ref.Name] = true
			names = append(names, ref.Name)
		}
	}
	return names
}

// ---------------------------------------------------------------------------
// Inline resolution
// ---------------------------------------------------------------------------

// Resolve returns a copy of a with inlines spliced in: template inlines
// from templates (appended as re-indexed tables), raw inlines from raws.
// Names found in neither stay unresolved. a is not modified, and
// resolving an already resolved AST returns an equivalent copy.
func (a *AST) Resolve(templates map[string]*AST, raws map[string][]byte) *AST {
	out := &AST{Name: a.Name, Scopes: make([][]Syntax, len(a.Scopes))}
	for i, nodes := range a.Scopes {
		out.Scopes[i] = append([]Syntax(nil), nodes...)
	}
	for _, ref := range a.Inlines {
		var target int
		if ref.Raw {
			p, ok := raws[ref.Name]
			if !ok {
				out.Inlines = append(out.Inlines, ref)
				continue
			}
			target = len(out.Scopes)
			out.Scopes = append(out.Scopes, []Syntax{{Kind: SyntaxRaw, Raw: p}})
		} else {
			dep, ok := templates[ref.Name]
			if !ok {
				out.Inlines = append(out.Inlines, ref)
				continue
			}
			target = out.splice(dep)
		}
		bs := *out.Scopes[ref.Table][ref.Offset].Block
		bs.Resolved = true
		out.Scopes[ref.Table][ref.Offset].Block = &bs
		out.Scopes[ref.Table][ref.Offset+1].Scope = target
	}
	return out
}

// splice appends dep's tables re-indexed and returns the index of its
// root. dep's own unresolved inlines carry over.
func (a *AST) splice(dep *AST) int {
	base := len(a.Scopes)
	for _, nodes := range dep.Scopes {
		copied := append([]Syntax(nil), nodes...)
		for i := range copied {
			if copied[i].Kind != SyntaxScope {
				continue
			}
			if copied[i].Scope < 0 {
				copied[i].Scope = AtomicRef(-copied[i].Scope - 1 + base)
			} else {
				copied[i].Scope += base
			}
		}
		a.Scopes = append(a.Scopes, copied)
	}
	for _, ref := range dep.Inlines {
		ref.Table += base
		a.Inlines = append(a.Inlines, ref)
	}
	return base
}

// String renders the tables for debugging.
func (a *AST) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ast %s\n", a.Name)
	for t, nodes := range a.Scopes {
		fmt.Fprintf(&b, "  table %d\n", t)
		for i, n := range nodes {
			switch n.Kind {
			case SyntaxRaw:
				fmt.Fprintf(&b, "    %3d raw %q\n", i, n.Raw)
			case SyntaxPassthrough:
				fmt.Fprintf(&b, "    %3d #(%s)\n", i, n.Param)
			case SyntaxBlock:
				fmt.Fprintf(&b, "    %3d #%s%s\n", i, n.Block.Name, n.Block.Params)
			case SyntaxScope:
				if n.IsAtomic() {
					fmt.Fprintf(&b, "    %3d -> atomic\n", i)
				} else {
					fmt.Fprintf(&b, "    %3d -> table %d\n", i, n.Scope)
				}
			}
		}
	}
	for _, ref := range a.Inlines {
		fmt.Fprintf(&b, "  unresolved inline %q at %d:%d\n", ref.Name, ref.Table, ref.Offset)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// ASTBuilder
// ---------------------------------------------------------------------------

// ASTBuilder appends nodes to scope tables. Table 0 exists from the start.
type ASTBuilder struct {
	ast   *AST
	empty int
}

// NewASTBuilder starts an AST with an empty root table.
func NewASTBuilder(name string) *ASTBuilder {
	return &ASTBuilder{ast: &AST{Name: name, Scopes: [][]Syntax{{}}}, empty: -1}
}

// NewTable adds an empty table and returns its index.
func (b *ASTBuilder) NewTable() int {
	b.ast.Scopes = append(b.ast.Scopes, []Syntax{})
	return len(b.ast.Scopes) - 1
}

func (b *ASTBuilder) add(table int, n Syntax) {
	b.ast.Scopes[table] = append(b.ast.Scopes[table], n)
}

// Raw appends raw bytes, merging with a preceding raw node unless that
// node is an atomic body.
func (b *ASTBuilder) Raw(table int, p []byte) {
	if len(p) == 0 {
		return
	}
	nodes := b.ast.Scopes[table]
	if n := len(nodes); n > 0 && nodes[n-1].Kind == SyntaxRaw && !(n >= 2 && nodes[n-2].IsAtomic()) {
		merged := make([]byte, 0, len(nodes[n-1].Raw)+len(p))
		nodes[n-1].Raw = append(append(merged, nodes[n-1].Raw...), p...)
		return
	}
	b.add(table, Syntax{Kind: SyntaxRaw, Raw: append([]byte(nil), p...)})
}

// Passthrough appends an expression whose value is written out.
func (b *ASTBuilder) Passthrough(table int, p Parameter) {
	b.add(table, Syntax{Kind: SyntaxPassthrough, Param: p})
}

// Block appends a block opener. One of Body, EmptyBody or AtomicBody
// must follow.
func (b *ASTBuilder) Block(table int, bs *BlockSyntax) {
	if bs.Meta == MetaNone && bs.Kind != nil {
		bs.Meta = MetaOf(bs.Kind)
	}
	if bs.Meta == MetaInline {
		if name, raw, ok := InlineTarget(bs.Params); ok {
			b.ast.Inlines = append(b.ast.Inlines, InlineRef{
				Name: name, Raw: raw, Table: table, Offset: len(b.ast.Scopes[table]),
			})
		}
	}
	b.add(table, Syntax{Kind: SyntaxBlock, Block: bs})
}

// Body references body as the preceding block's scope.
func (b *ASTBuilder) Body(table, body int) {
	b.add(table, Syntax{Kind: SyntaxScope, Scope: body})
}

// EmptyBody references the shared empty table.
func (b *ASTBuilder) EmptyBody(table int) {
	if b.empty < 0 {
		b.empty = b.NewTable()
	}
	b.Body(table, b.empty)
}

// AtomicBody marks the next node appended to table as the whole body.
func (b *ASTBuilder) AtomicBody(table int) {
	b.add(table, Syntax{Kind: SyntaxScope, Scope: AtomicRef(table)})
}

// Len returns the node count of table.
func (b *ASTBuilder) Len(table int) int { return len(b.ast.Scopes[table]) }

// Build validates and returns the AST.
func (b *ASTBuilder) Build() (*AST, error) {
	if err := b.ast.Validate(); err != nil {
		return nil, err
	}
	return b.ast, nil
}
