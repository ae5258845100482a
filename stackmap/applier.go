package stackmap

import (
	"slices"

	"go.uber.org/zap"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// ApplyOptions controls marker insertion.
type ApplyOptions struct {
	// ReplaceExplicit removes an explicit safepoint instruction once its
	// marker is in place. Other safepoints are always kept.
	ReplaceExplicit bool
}

// Apply inserts a stackmap marker immediately before each recorded
// safepoint and returns the markers in record order.
//
// All targets are checked before anything is inserted: if any record
// names an instruction that is no longer in the layout, Apply fails with
// an invalid insertion position error and fn is left untouched.
func Apply(fn *ir.Function, records []Record, opts ApplyOptions) ([]ir.Inst, error) {
	seen := make(map[ir.Inst]bool, len(records))
	for _, r := range records {
		if !fn.ValidInst(r.Inst) || !fn.Layout.IsInstInserted(r.Inst) {
			return nil, errors.InvalidInsertionPosition(fn.Name, r.Inst.String(), "safepoint is not in the layout")
		}
		if fn.Opcode(r.Inst).IsStackmap() {
			return nil, errors.InvalidInsertionPosition(fn.Name, r.Inst.String(), "safepoint is itself a stackmap marker")
		}
		if seen[r.Inst] {
			return nil, errors.InvalidInsertionPosition(fn.Name, r.Inst.String(), "safepoint recorded twice")
		}
		seen[r.Inst] = true
		for _, v := range r.Values {
			if !fn.ValidValue(v) {
				return nil, errors.InvalidInsertionPosition(fn.Name, r.Inst.String(), "record holds undefined value "+v.String())
			}
		}
	}

	markers := make([]ir.Inst, 0, len(records))
	cur := ir.NewCursor(fn)
	replaced := 0
	for _, r := range records {
		cur.GotoInst(r.Inst)
		m, err := cur.InsertInst(ir.InstData{Opcode: ir.OpStackmap, Args: slices.Clone(r.Values)})
		if err != nil {
			// Stackmap construction cannot fail for defined values.
			return nil, errors.Wrap(errors.PhaseApply, errors.KindInvalidInsertion, err, "building marker")
		}
		markers = append(markers, m)
		if opts.ReplaceExplicit && fn.Opcode(r.Inst).IsSafepointMarker() {
			cur.RemoveInst()
			replaced++
		}
	}

	Logger().Debug("applied stackmaps",
		zap.String("func", fn.Name),
		zap.Int("markers", len(markers)),
		zap.Int("replaced", replaced))
	return markers, nil
}
