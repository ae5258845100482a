package liveness

import (
	"slices"

	"github.com/mirahmed753/cretonne/ir"
)

// LiveRange is the set of program points where one value is live.
//
// It consists of a local interval in the defining block, from the
// definition to the last use or to the end of the block when the value is
// live out, plus one interval per block the value is live into, from the
// block top to the last use or through the whole block.
type LiveRange struct {
	value    ir.Value
	def      ir.ValueDef
	defBlock ir.Block
	defEnd   ir.Inst // last use in defBlock; NoInst if dead at def or live out
	liveOut  bool    // live out of defBlock
	layout   *ir.Layout

	// Live-in blocks mapped to the last use in that block, or NoInst when
	// the value is live through the block.
	in map[ir.Block]ir.Inst
}

// Value returns the value the range describes.
func (r *LiveRange) Value() ir.Value { return r.value }

// Def returns the definition of the value.
func (r *LiveRange) Def() ir.ValueDef { return r.def }

// DefBlock returns the block containing the definition.
func (r *LiveRange) DefBlock() ir.Block { return r.defBlock }

// DeadAtDef reports whether the value is never used.
func (r *LiveRange) DeadAtDef() bool {
	return !r.liveOut && r.defEnd == ir.NoInst
}

// LiveIn reports whether the value is live on entry to b.
func (r *LiveRange) LiveIn(b ir.Block) bool {
	_, ok := r.in[b]
	return ok
}

// LiveInBlocks returns the blocks the value is live into, in block number order.
func (r *LiveRange) LiveInBlocks() []ir.Block {
	blocks := make([]ir.Block, 0, len(r.in))
	for b := range r.in {
		blocks = append(blocks, b)
	}
	slices.Sort(blocks)
	return blocks
}

// EndsAt reports whether inst is the last use of the value in its block and
// the value is not live out of that block.
func (r *LiveRange) EndsAt(inst ir.Inst) bool {
	if inst == ir.NoInst {
		return false
	}
	b := r.layout.InstBlock(inst)
	if b == r.defBlock {
		return r.defEnd == inst
	}
	end, ok := r.in[b]
	return ok && end == inst
}

// Covers reports whether the value is live when inst begins to execute.
// An instruction that uses the value last is still covered.
func (r *LiveRange) Covers(inst ir.Inst) bool {
	b := r.layout.InstBlock(inst)
	if b == ir.NoBlock {
		return false
	}
	if b == r.defBlock {
		if r.def.Kind == ir.DefResult {
			if r.def.Inst == inst || r.layout.Before(inst, r.def.Inst) {
				return false
			}
		}
		if r.liveOut {
			return true
		}
		return r.defEnd != ir.NoInst && !r.layout.Before(r.defEnd, inst)
	}
	end, ok := r.in[b]
	if !ok {
		return false
	}
	return end == ir.NoInst || !r.layout.Before(end, inst)
}
