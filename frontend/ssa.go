package frontend

import (
	"slices"

	"github.com/mirahmed753/cretonne/ir"
)

// Variable is a mutable local slot resolved to SSA values on use.
type Variable uint32

type predEdge struct {
	block ir.Block
	inst  ir.Inst
	dest  int
}

type pendingParam struct {
	v     Variable
	param ir.Value
}

// ssaBuilder resolves variable uses to SSA values across blocks.
//
// A block is sealed once all of its predecessors are known. Reading a
// variable in a sealed block with several predecessors adds a block
// parameter and passes the reaching value on every incoming edge; in an
// unsealed block the parameter is created now and its arguments are filled
// in when the block is sealed.
type ssaBuilder struct {
	b      *ir.Builder
	types  []ir.Type
	defs   map[ir.Block]map[Variable]ir.Value
	preds  map[ir.Block][]predEdge
	sealed map[ir.Block]bool
	// incomplete holds parameters of unsealed blocks awaiting arguments.
	incomplete map[ir.Block][]pendingParam
}

func newSSABuilder(b *ir.Builder) *ssaBuilder {
	return &ssaBuilder{
		b:          b,
		defs:       make(map[ir.Block]map[Variable]ir.Value),
		preds:      make(map[ir.Block][]predEdge),
		sealed:     make(map[ir.Block]bool),
		incomplete: make(map[ir.Block][]pendingParam),
	}
}

// declare adds a variable of type t.
func (s *ssaBuilder) declare(t ir.Type) Variable {
	s.types = append(s.types, t)
	return Variable(len(s.types) - 1)
}

// def records val as the current value of v in the insertion block.
func (s *ssaBuilder) def(v Variable, val ir.Value) {
	s.setDef(s.b.CurrentBlock(), v, val)
}

// use returns the value of v at the insertion point.
func (s *ssaBuilder) use(v Variable) ir.Value {
	return s.useIn(v, s.b.CurrentBlock())
}

func (s *ssaBuilder) useIn(v Variable, blk ir.Block) ir.Value {
	if val, ok := s.defs[blk][v]; ok {
		return val
	}
	fn := s.b.Func()
	preds := s.preds[blk]

	switch {
	case !s.sealed[blk]:
		p := fn.AppendBlockParam(blk, s.types[v])
		s.incomplete[blk] = append(s.incomplete[blk], pendingParam{v: v, param: p})
		s.setDef(blk, v, p)
		return p
	case len(preds) == 1:
		val := s.useIn(v, preds[0].block)
		s.setDef(blk, v, val)
		return val
	case len(preds) == 0:
		val := s.zeroAtTop(blk, s.types[v])
		s.setDef(blk, v, val)
		return val
	}

	p := fn.AppendBlockParam(blk, s.types[v])
	s.setDef(blk, v, p)
	s.addEdgeArgs(blk, v)
	return p
}

func (s *ssaBuilder) setDef(blk ir.Block, v Variable, val ir.Value) {
	m := s.defs[blk]
	if m == nil {
		m = make(map[Variable]ir.Value)
		s.defs[blk] = m
	}
	m[v] = val
}

// addEdgeArgs appends the value of v reaching each predecessor edge of blk.
func (s *ssaBuilder) addEdgeArgs(blk ir.Block, v Variable) {
	fn := s.b.Func()
	for _, e := range s.preds[blk] {
		fn.AppendBranchArg(e.inst, e.dest, s.useIn(v, e.block))
	}
}

// zeroAtTop materializes the default value of t at the start of blk.
// Only a block without predecessors reads a variable it never defined.
func (s *ssaBuilder) zeroAtTop(blk ir.Block, t ir.Type) ir.Value {
	data := ir.InstData{Opcode: ir.OpIconst, Type: t}
	if t.IsRef() {
		data.Opcode = ir.OpNull
	}
	cur := ir.NewCursor(s.b.Func())
	cur.GotoTop(blk)
	i, err := cur.InsertInst(data)
	if err != nil {
		panic("frontend: " + err.Error())
	}
	return s.b.Func().InstResults(i)[0]
}

// addPred records that inst in the insertion block branches to dest
// through destination slot n.
func (s *ssaBuilder) addPred(dest ir.Block, inst ir.Inst, n int) {
	s.preds[dest] = append(s.preds[dest], predEdge{block: s.b.CurrentBlock(), inst: inst, dest: n})
}

// hasPreds reports whether anything branches to blk.
func (s *ssaBuilder) hasPreds(blk ir.Block) bool { return len(s.preds[blk]) > 0 }

// seal declares that blk has no further predecessors and completes its
// pending parameters.
func (s *ssaBuilder) seal(blk ir.Block) {
	if s.sealed[blk] {
		return
	}
	s.sealed[blk] = true
	pending := s.incomplete[blk]
	delete(s.incomplete, blk)
	for _, p := range pending {
		s.addEdgeArgs(blk, p.v)
	}
}

// jump ends the insertion block with a branch to dest. Arguments are
// copied since variable arguments may be appended to them later.
func (s *ssaBuilder) jump(dest ir.Block, args ...ir.Value) {
	i := s.b.Jump(dest, slices.Clone(args)...)
	s.addPred(dest, i, 0)
}

// brif ends the insertion block with a two-way branch.
func (s *ssaBuilder) brif(cond ir.Value, then ir.Block, thenArgs []ir.Value, els ir.Block, elsArgs []ir.Value) {
	i := s.b.Brif(cond, then, slices.Clone(thenArgs), els, slices.Clone(elsArgs))
	s.addPred(then, i, 0)
	s.addPred(els, i, 1)
}
