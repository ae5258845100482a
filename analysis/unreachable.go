package analysis

import (
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// EliminateUnreachable removes blocks that cannot be reached from the entry
// and returns how many were removed. The CFG and dominator tree must be
// recomputed afterwards if any were.
func EliminateUnreachable(fn *ir.Function, dt *DomTree) int {
	removed := 0
	for _, b := range fn.Layout.Blocks() {
		if !dt.IsReachable(b) {
			fn.Layout.RemoveBlock(b)
			removed++
		}
	}
	return removed
}

// VerifyDominance checks that every operand of every reachable instruction
// is defined at a point that dominates the use.
func VerifyDominance(fn *ir.Function, dt *DomTree) error {
	for _, b := range dt.Preorder() {
		for _, i := range fn.Layout.BlockInsts(b) {
			d := fn.Inst(i)
			for _, v := range d.Args {
				if err := dt.checkUse(i, v); err != nil {
					return err
				}
			}
			for _, dest := range d.Dests {
				for _, v := range dest.Args {
					if err := dt.checkUse(i, v); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func (dt *DomTree) checkUse(use ir.Inst, v ir.Value) error {
	fn := dt.fn
	def := fn.ValueDef(v)
	var ok bool
	var err error
	switch def.Kind {
	case ir.DefParam:
		if dt.IsReachable(def.Block) {
			ok = dt.dominates(def.Block, fn.Layout.InstBlock(use))
		}
	case ir.DefResult:
		// An instruction never dominates its own operands.
		if def.Inst != use && fn.Layout.IsInstInserted(def.Inst) {
			ok, err = dt.InstDominates(def.Inst, use)
		}
	}
	if err != nil && !errors.Is(err, errors.ErrUnreachableBlockQueried) {
		return err
	}
	if !ok {
		return errors.New(errors.PhaseVerify, errors.KindMalformed).
			Func(fn.Name).
			Inst(use.String()).
			Value(v.String()).
			Detail("use of %s is not dominated by its definition", v).
			Build()
	}
	return nil
}
