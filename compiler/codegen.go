package compiler

import "github.com/chazu/leafkit/vm"

// ---------------------------------------------------------------------------
// Codegen: node tree to scope tables
// ---------------------------------------------------------------------------

// emit appends nodes to table. A body of one non-block node is stored
// atomically after its opener; longer bodies get their own table.
func emit(b *vm.ASTBuilder, table int, nodes []*node) {
	for _, n := range nodes {
		switch n.kind {
		case nodeRaw:
			b.Raw(table, n.raw)
		case nodeOutput:
			b.Passthrough(table, n.param)
		case nodeBlock:
			b.Block(table, n.block)
			switch {
			case !n.hasBody || len(n.body) == 0:
				b.EmptyBody(table)
			case len(n.body) == 1 && n.body[0].kind != nodeBlock:
				b.AtomicBody(table)
				emit(b, table, n.body)
			default:
				body := b.NewTable()
				b.Body(table, body)
				emit(b, body, n.body)
			}
		}
	}
}
