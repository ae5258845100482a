package analysis

import (
	"slices"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// Edge is a control flow edge together with the branch that takes it.
type Edge struct {
	From ir.Block
	To   ir.Block
	Inst ir.Inst
}

// DomTree is the dominator tree of the reachable blocks of a function.
//
// Immediate dominators are computed with the iterative algorithm of
// Cooper, Harvey and Kennedy over a reverse postorder.
type DomTree struct {
	fn  *ir.Function
	cfg *CFG

	postorder []ir.Block
	ponum     []int // postorder number, -1 if unreachable
	idom      []ir.Block
	children  [][]ir.Block

	// Preorder entry and exit numbers of the tree walk, for O(1) dominance.
	pre, post []int
	preorder  []ir.Block
}

// NewDomTree computes the dominator tree of fn.
func NewDomTree(fn *ir.Function, cfg *CFG) *DomTree {
	n := fn.NumBlocks()
	dt := &DomTree{
		fn:        fn,
		cfg:       cfg,
		postorder: Postorder(fn, cfg),
		ponum:     make([]int, n),
		idom:      make([]ir.Block, n),
		children:  make([][]ir.Block, n),
		pre:       make([]int, n),
		post:      make([]int, n),
	}
	for b := range dt.ponum {
		dt.ponum[b] = -1
		dt.idom[b] = ir.NoBlock
	}
	if len(dt.postorder) == 0 {
		return dt
	}
	for i, b := range dt.postorder {
		dt.ponum[b] = i
	}
	dt.computeIdoms()
	dt.computeTree()
	return dt
}

func (dt *DomTree) computeIdoms() {
	po := dt.postorder
	entry := po[len(po)-1]
	dt.idom[entry] = entry

	for changed := true; changed; {
		changed = false
		for i := len(po) - 2; i >= 0; i-- {
			b := po[i]
			newIdom := ir.NoBlock
			for _, p := range dt.cfg.Preds(b) {
				if dt.ponum[p.Block] < 0 || dt.idom[p.Block] == ir.NoBlock {
					continue
				}
				if newIdom == ir.NoBlock {
					newIdom = p.Block
					continue
				}
				newIdom = dt.intersect(p.Block, newIdom)
			}
			if dt.idom[b] != newIdom {
				dt.idom[b] = newIdom
				changed = true
			}
		}
	}
}

// intersect finds the closest common dominator of a and b.
func (dt *DomTree) intersect(a, b ir.Block) ir.Block {
	for a != b {
		if dt.ponum[a] < dt.ponum[b] {
			a = dt.idom[a]
		} else {
			b = dt.idom[b]
		}
	}
	return a
}

func (dt *DomTree) computeTree() {
	po := dt.postorder
	entry := po[len(po)-1]
	// Children in reverse postorder keep the walk deterministic.
	for i := len(po) - 2; i >= 0; i-- {
		b := po[i]
		p := dt.idom[b]
		dt.children[p] = append(dt.children[p], b)
	}

	type frame struct {
		b    ir.Block
		next int
	}
	counter := 0
	stack := []frame{{b: entry}}
	dt.pre[entry] = counter
	dt.preorder = append(dt.preorder, entry)
	counter++
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := dt.children[top.b]
		if top.next < len(kids) {
			c := kids[top.next]
			top.next++
			dt.pre[c] = counter
			counter++
			dt.preorder = append(dt.preorder, c)
			stack = append(stack, frame{b: c})
			continue
		}
		dt.post[top.b] = counter
		counter++
		stack = stack[:len(stack)-1]
	}
}

// Func returns the function the tree describes.
func (dt *DomTree) Func() *ir.Function { return dt.fn }

// CFG returns the control flow graph the tree was built from.
func (dt *DomTree) CFG() *CFG { return dt.cfg }

// IsReachable reports whether b can be reached from the entry block.
func (dt *DomTree) IsReachable(b ir.Block) bool {
	return int(b) < len(dt.ponum) && dt.ponum[b] >= 0
}

// Idom returns the immediate dominator of b, or NoBlock for the entry
// block and unreachable blocks.
func (dt *DomTree) Idom(b ir.Block) ir.Block {
	if !dt.IsReachable(b) || dt.idom[b] == b {
		return ir.NoBlock
	}
	return dt.idom[b]
}

// Children returns the blocks immediately dominated by b.
func (dt *DomTree) Children(b ir.Block) []ir.Block {
	if int(b) >= len(dt.children) {
		return nil
	}
	return dt.children[b]
}

// Preorder returns the reachable blocks in dominator tree preorder:
// every block appears after its immediate dominator.
func (dt *DomTree) Preorder() []ir.Block { return dt.preorder }

// ReversePostorder returns the reachable blocks in CFG reverse postorder.
func (dt *DomTree) ReversePostorder() []ir.Block {
	rpo := slices.Clone(dt.postorder)
	slices.Reverse(rpo)
	return rpo
}

// Dominates reports whether a dominates b. Every block dominates itself.
// Querying an unreachable block is an error.
func (dt *DomTree) Dominates(a, b ir.Block) (bool, error) {
	for _, x := range [...]ir.Block{a, b} {
		if !dt.IsReachable(x) {
			return false, errors.UnreachableBlockQueried(dt.fn.Name, x.String())
		}
	}
	return dt.dominates(a, b), nil
}

func (dt *DomTree) dominates(a, b ir.Block) bool {
	return dt.pre[a] <= dt.pre[b] && dt.post[b] <= dt.post[a]
}

// InstDominates reports whether instruction a dominates instruction b:
// a precedes b in the same block, or a's block strictly dominates b's.
// An instruction dominates itself.
func (dt *DomTree) InstDominates(a, b ir.Inst) (bool, error) {
	l := &dt.fn.Layout
	ba, bb := l.InstBlock(a), l.InstBlock(b)
	if ba == ir.NoBlock || bb == ir.NoBlock {
		return false, errors.InvalidInsertionPosition(dt.fn.Name, a.String(), "instruction is not in the layout")
	}
	if ba == bb {
		return a == b || l.Before(a, b), nil
	}
	return dt.Dominates(ba, bb)
}

// BackEdges returns the edges whose target dominates their source, in
// reverse postorder of the source block.
func (dt *DomTree) BackEdges() []Edge {
	var edges []Edge
	for _, from := range dt.ReversePostorder() {
		for _, to := range dt.cfg.Succs(from) {
			if !dt.dominates(to, from) {
				continue
			}
			for _, p := range dt.cfg.Preds(to) {
				if p.Block == from {
					edges = append(edges, Edge{From: from, To: to, Inst: p.Inst})
				}
			}
		}
	}
	return edges
}

// LoopHeaders returns the distinct targets of back edges in reverse postorder.
func (dt *DomTree) LoopHeaders() []ir.Block {
	seen := make(map[ir.Block]bool)
	var headers []ir.Block
	for _, e := range dt.BackEdges() {
		if !seen[e.To] {
			seen[e.To] = true
			headers = append(headers, e.To)
		}
	}
	slices.SortFunc(headers, func(a, b ir.Block) int {
		return dt.ponum[b] - dt.ponum[a]
	})
	return headers
}
