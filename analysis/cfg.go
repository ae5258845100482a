// Package analysis computes control flow facts about ir functions: the
// control flow graph, the dominator tree, back edges and reachability.
package analysis

import "github.com/mirahmed753/cretonne/ir"

// BlockPredecessor is an incoming edge: the predecessor block and the
// branch instruction that transfers control.
type BlockPredecessor struct {
	Block ir.Block
	Inst  ir.Inst
}

// CFG holds the successors and predecessors of every block in the layout.
// It must be recomputed after branches are added or removed.
type CFG struct {
	succs [][]ir.Block
	preds [][]BlockPredecessor
}

// NewCFG computes the control flow graph of fn.
func NewCFG(fn *ir.Function) *CFG {
	c := &CFG{
		succs: make([][]ir.Block, fn.NumBlocks()),
		preds: make([][]BlockPredecessor, fn.NumBlocks()),
	}
	for _, b := range fn.Layout.Blocks() {
		for _, i := range fn.Layout.BlockInsts(b) {
			for _, dest := range fn.Inst(i).Dests {
				c.addEdge(b, i, dest.Block)
			}
		}
	}
	return c
}

func (c *CFG) addEdge(from ir.Block, inst ir.Inst, to ir.Block) {
	if !containsBlock(c.succs[from], to) {
		c.succs[from] = append(c.succs[from], to)
	}
	for _, p := range c.preds[to] {
		if p.Block == from && p.Inst == inst {
			return
		}
	}
	c.preds[to] = append(c.preds[to], BlockPredecessor{Block: from, Inst: inst})
}

// Succs returns the distinct successors of b in branch order.
func (c *CFG) Succs(b ir.Block) []ir.Block {
	if int(b) >= len(c.succs) {
		return nil
	}
	return c.succs[b]
}

// Preds returns the incoming edges of b.
func (c *CFG) Preds(b ir.Block) []BlockPredecessor {
	if int(b) >= len(c.preds) {
		return nil
	}
	return c.preds[b]
}

func containsBlock(bs []ir.Block, b ir.Block) bool {
	for _, x := range bs {
		if x == b {
			return true
		}
	}
	return false
}

type blockAndIndex struct {
	b     ir.Block
	index int // number of successor edges of b already explored
}

// Postorder returns a depth-first postorder of the blocks reachable from
// the entry. Unreachable blocks do not appear.
func Postorder(fn *ir.Function, cfg *CFG) []ir.Block {
	entry := fn.Layout.EntryBlock()
	if entry == ir.NoBlock {
		return nil
	}
	seen := make([]bool, fn.NumBlocks())
	order := make([]ir.Block, 0, fn.NumBlocks())

	s := make([]blockAndIndex, 0, 32)
	s = append(s, blockAndIndex{b: entry})
	seen[entry] = true
	for len(s) > 0 {
		tos := len(s) - 1
		x := s[tos]
		succs := cfg.Succs(x.b)
		if i := x.index; i < len(succs) {
			s[tos].index++
			bb := succs[i]
			if !seen[bb] {
				seen[bb] = true
				s = append(s, blockAndIndex{b: bb})
			}
			continue
		}
		s = s[:tos]
		order = append(order, x.b)
	}
	return order
}
