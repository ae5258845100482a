// Package stackmap computes which reference values are live at each
// safepoint of a function and turns the result into stackmap markers and
// runtime tables.
//
// The work happens in two phases. Compute scans the function without
// modifying it and returns one Record per safepoint. Apply then inserts a
// stackmap marker before each recorded safepoint. After encoding,
// MaterializeTable resolves every recorded value to its storage location
// at the safepoint's code offset.
package stackmap

import (
	"slices"

	"go.uber.org/zap"

	"github.com/mirahmed753/cretonne/analysis"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/liveness"
)

// Record lists the live reference values at one safepoint, in value order.
type Record struct {
	Inst   ir.Inst
	Values []ir.Value
}

// Config controls stackmap computation.
type Config struct {
	Policy Policy
	// IsRef selects the value types the collector traces. Nil means r32 and r64.
	IsRef func(ir.Type) bool
}

func (c Config) withDefaults() Config {
	if c.IsRef == nil {
		c.IsRef = ir.Type.IsRef
	}
	return c
}

// Compute scans fn and returns a record for every safepoint, in layout
// order. It does not modify fn.
//
// Blocks are visited in dominator tree preorder and each block starts from
// the frozen working set of its immediate dominator, so a value defined
// anywhere above a block in the tree is known when the block is reached.
// A safepoint's record is taken before the safepoint defines its results.
func Compute(fn *ir.Function, dt *analysis.DomTree, live *liveness.Liveness, cfg Config) ([]Record, error) {
	cfg = cfg.withDefaults()
	sel := NewSelector(fn, dt, cfg.Policy)

	for _, b := range fn.Layout.Blocks() {
		if dt.IsReachable(b) {
			continue
		}
		for _, i := range fn.Layout.BlockInsts(b) {
			if sel.IsSafepoint(i) {
				err := errors.UnreachableBlockQueried(fn.Name, b.String())
				err.Inst = i.String()
				return nil, err
			}
		}
	}

	entry := fn.Layout.EntryBlock()
	if entry == ir.NoBlock {
		return nil, nil
	}

	byInst := make(map[ir.Inst]Record)
	tr := NewTracker(fn, live)

	type item struct {
		block  ir.Block
		parent *Frame
	}
	stack := []item{{block: entry}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := tr.EnterBlock(it.block, it.parent); err != nil {
			return nil, err
		}
		for _, i := range fn.Layout.BlockInsts(it.block) {
			if sel.IsSafepoint(i) {
				byInst[i] = Record{Inst: i, Values: refsOnly(fn, tr.Snapshot(), cfg.IsRef)}
			}
			if err := tr.Process(i); err != nil {
				return nil, err
			}
			if err := tr.Retire(i); err != nil {
				return nil, err
			}
		}

		frame := tr.Freeze()
		kids := dt.Children(it.block)
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, item{block: kids[k], parent: frame})
		}
	}

	records := make([]Record, 0, len(byInst))
	for _, b := range fn.Layout.Blocks() {
		for _, i := range fn.Layout.BlockInsts(b) {
			if r, ok := byInst[i]; ok {
				records = append(records, r)
			}
		}
	}

	Logger().Debug("computed stackmaps",
		zap.String("func", fn.Name),
		zap.Stringer("policy", sel.Policy()),
		zap.Int("records", len(records)))
	return records, nil
}

func refsOnly(fn *ir.Function, vals []ir.Value, isRef func(ir.Type) bool) []ir.Value {
	return slices.DeleteFunc(vals, func(v ir.Value) bool {
		return !isRef(fn.ValueType(v))
	})
}

// ComputeStackmaps runs the analyses Compute needs and computes the
// records of fn under policy. fn is not modified; blocks that cannot be
// reached must not contain safepoints.
func ComputeStackmaps(fn *ir.Function, policy Policy) ([]Record, error) {
	cfg := analysis.NewCFG(fn)
	dt := analysis.NewDomTree(fn, cfg)
	live, err := liveness.Compute(fn, cfg, dt)
	if err != nil {
		return nil, err
	}
	return Compute(fn, dt, live, Config{Policy: policy})
}
