// Package liveness computes where SSA values hold contents that are still needed.
//
// A value is LIVE at a program point if some path from that point reaches a
// use of the value. Definitions are unique in SSA, so no path kills a value
// before its uses.
//
// Algorithm (backward dataflow over the reachable blocks):
//
//	in(b)  = use(b) ∪ (out(b) − def(b))
//	out(b) = ∪ in(s) for every successor s
//
// iterated in postorder until nothing changes. Branch arguments are uses at
// the branch; block parameters are defined at the top of their block.
//
// Marker operands (stackmap and safepoint) and diversion operands only
// describe values. They are not uses, so inserting markers never changes
// the liveness of anything.
package liveness

import (
	"github.com/mirahmed753/cretonne/analysis"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/internal/bitset"
	"github.com/mirahmed753/cretonne/ir"
)

// Uses returns the values read by inst, branch arguments included.
func Uses(fn *ir.Function, inst ir.Inst) []ir.Value {
	d := fn.Inst(inst)
	if d.Opcode.IsStackmap() || d.Opcode.IsSafepointMarker() || d.Opcode.IsDiversion() {
		return nil
	}
	if len(d.Dests) == 0 {
		return d.Args
	}
	uses := append([]ir.Value(nil), d.Args...)
	for _, dest := range d.Dests {
		uses = append(uses, dest.Args...)
	}
	return uses
}

// Liveness holds the live ranges of every value defined in a reachable block.
type Liveness struct {
	fn      *ir.Function
	ranges  []*LiveRange
	liveIn  []*bitset.BitSet
	liveOut []*bitset.BitSet
}

// Compute runs liveness analysis on the reachable blocks of fn.
//
// Only entry block parameters may be live into the entry block; anything
// else is a use without a dominating definition and is reported as a
// malformed function.
func Compute(fn *ir.Function, cfg *analysis.CFG, dt *analysis.DomTree) (*Liveness, error) {
	nv, nb := fn.NumValues(), fn.NumBlocks()
	l := &Liveness{
		fn:      fn,
		ranges:  make([]*LiveRange, nv),
		liveIn:  make([]*bitset.BitSet, nb),
		liveOut: make([]*bitset.BitSet, nb),
	}

	rpo := dt.ReversePostorder()
	if len(rpo) == 0 {
		return l, nil
	}
	use := make([]*bitset.BitSet, nb)
	def := make([]*bitset.BitSet, nb)
	for _, b := range rpo {
		use[b], def[b] = l.localSets(b)
		l.liveIn[b] = bitset.New(nv)
		l.liveOut[b] = bitset.New(nv)
	}

	// Walk in postorder so successors are mostly visited first.
	tmp := bitset.New(nv)
	for changed := true; changed; {
		changed = false
		for i := len(rpo) - 1; i >= 0; i-- {
			b := rpo[i]
			out := l.liveOut[b]
			for _, s := range cfg.Succs(b) {
				if l.liveIn[s] != nil {
					out.Union(l.liveIn[s])
				}
			}
			tmp.Copy(out)
			tmp.AndNot(def[b])
			tmp.Union(use[b])
			if !tmp.Equal(l.liveIn[b]) {
				l.liveIn[b].Copy(tmp)
				changed = true
			}
		}
	}

	entry := rpo[0]
	params := bitset.New(nv)
	for _, p := range fn.BlockParams(entry) {
		params.Set(uint32(p))
	}
	var stray ir.Value = ir.NoValue
	l.liveIn[entry].ForEach(func(v uint32) {
		if stray == ir.NoValue && !params.Has(v) {
			stray = ir.Value(v)
		}
	})
	if stray != ir.NoValue {
		return nil, errors.New(errors.PhaseLiveness, errors.KindMalformed).
			Func(fn.Name).
			Block(entry.String()).
			Value(stray.String()).
			Detail("%s is live into the entry block without a definition", stray).
			Build()
	}

	l.buildRanges(rpo)
	return l, nil
}

// localSets returns the upward-exposed uses and the definitions of b.
func (l *Liveness) localSets(b ir.Block) (use, def *bitset.BitSet) {
	fn := l.fn
	use = bitset.New(fn.NumValues())
	def = bitset.New(fn.NumValues())
	for _, p := range fn.BlockParams(b) {
		def.Set(uint32(p))
	}
	for _, i := range fn.Layout.BlockInsts(b) {
		for _, v := range Uses(fn, i) {
			if !def.Has(uint32(v)) {
				use.Set(uint32(v))
			}
		}
		for _, r := range fn.InstResults(i) {
			def.Set(uint32(r))
		}
	}
	return use, def
}

// buildRanges turns the block sets into per-value ranges with local ends.
func (l *Liveness) buildRanges(rpo []ir.Block) {
	fn := l.fn
	lastUse := make([]ir.Inst, fn.NumValues())
	for v := range lastUse {
		lastUse[v] = ir.NoInst
	}
	var touched []ir.Value

	rangeOf := func(v ir.Value, defBlock ir.Block) *LiveRange {
		r := l.ranges[v]
		if r == nil {
			r = &LiveRange{
				value:    v,
				def:      fn.ValueDef(v),
				defBlock: defBlock,
				defEnd:   ir.NoInst,
				layout:   &fn.Layout,
				in:       make(map[ir.Block]ir.Inst),
			}
			l.ranges[v] = r
		}
		return r
	}

	for _, b := range rpo {
		for _, i := range fn.Layout.BlockInsts(b) {
			for _, v := range Uses(fn, i) {
				if lastUse[v] == ir.NoInst {
					touched = append(touched, v)
				}
				lastUse[v] = i
			}
		}
		out := l.liveOut[b]
		localEnd := func(v ir.Value) ir.Inst {
			if out.Has(uint32(v)) {
				return ir.NoInst
			}
			return lastUse[v]
		}

		for _, p := range fn.BlockParams(b) {
			r := rangeOf(p, b)
			r.defEnd = localEnd(p)
			r.liveOut = out.Has(uint32(p))
		}
		for _, i := range fn.Layout.BlockInsts(b) {
			for _, v := range fn.InstResults(i) {
				r := rangeOf(v, b)
				r.defEnd = localEnd(v)
				r.liveOut = out.Has(uint32(v))
			}
		}
		l.liveIn[b].ForEach(func(v uint32) {
			def := fn.ValueDef(ir.Value(v))
			defBlock := def.Block
			if def.Kind == ir.DefResult {
				defBlock = fn.Layout.InstBlock(def.Inst)
			}
			rangeOf(ir.Value(v), defBlock).in[b] = localEnd(ir.Value(v))
		})

		for _, v := range touched {
			lastUse[v] = ir.NoInst
		}
		touched = touched[:0]
	}
}

// Func returns the analyzed function.
func (l *Liveness) Func() *ir.Function { return l.fn }

// Range returns the live range of v. Values that are never defined in a
// reachable block have none.
func (l *Liveness) Range(v ir.Value) (*LiveRange, bool) {
	if int(v) >= len(l.ranges) || l.ranges[v] == nil {
		return nil, false
	}
	return l.ranges[v], true
}

// IsLastUse reports whether inst is the last use of v on its path: v is used
// by inst and is dead afterwards.
func (l *Liveness) IsLastUse(v ir.Value, inst ir.Inst) bool {
	r, ok := l.Range(v)
	return ok && r.EndsAt(inst)
}

// LiveIns returns the values live on entry to b, sorted by value number.
func (l *Liveness) LiveIns(b ir.Block) []ir.Value {
	return toValues(l.liveInSet(b))
}

// LiveOuts returns the values live on exit from b, sorted by value number.
func (l *Liveness) LiveOuts(b ir.Block) []ir.Value {
	if int(b) >= len(l.liveOut) {
		return nil
	}
	return toValues(l.liveOut[b])
}

func (l *Liveness) liveInSet(b ir.Block) *bitset.BitSet {
	if int(b) >= len(l.liveIn) {
		return nil
	}
	return l.liveIn[b]
}

func toValues(s *bitset.BitSet) []ir.Value {
	if s == nil {
		return nil
	}
	ids := s.ToSlice()
	vals := make([]ir.Value, len(ids))
	for i, id := range ids {
		vals[i] = ir.Value(id)
	}
	return vals
}
