package stackmap

import (
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/internal/bitset"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/liveness"
)

// Frame is the frozen working set at the end of a block. Frames are never
// modified after creation, so every block immediately dominated by the
// frame's block can be seeded from the same frame.
type Frame struct {
	block ir.Block
	live  *bitset.BitSet
}

// Block returns the block whose live-out set the frame holds.
func (f *Frame) Block() ir.Block { return f.block }

// Has reports whether v was live at the end of the frame's block.
func (f *Frame) Has(v ir.Value) bool { return f.live.Has(uint32(v)) }

// Values returns the frame contents in value order.
func (f *Frame) Values() []ir.Value { return toValues(f.live) }

// Tracker maintains the set of live values while scanning one block.
//
// The working set at an instruction is the block's live-in values and
// parameters plus the values defined so far in the block, minus everything
// whose live range has ended.
type Tracker struct {
	fn    *ir.Function
	live  *liveness.Liveness
	block ir.Block
	set   *bitset.BitSet
}

// NewTracker returns a tracker for fn using the given liveness results.
func NewTracker(fn *ir.Function, live *liveness.Liveness) *Tracker {
	return &Tracker{
		fn:    fn,
		live:  live,
		block: ir.NoBlock,
		set:   bitset.New(fn.NumValues()),
	}
}

func (t *Tracker) rangeOf(v ir.Value, at string) (*liveness.LiveRange, error) {
	r, ok := t.live.Range(v)
	if !ok {
		return nil, t.missing(v, at)
	}
	return r, nil
}

// missing reports v as lacking liveness information at the instruction at
// of the current block.
func (t *Tracker) missing(v ir.Value, at string) error {
	err := errors.MissingLivenessInfo(errors.PhaseStackmap, t.fn.Name, at, v.String())
	if t.block != ir.NoBlock {
		err.Block = t.block.String()
	}
	return err
}

// EnterBlock resets the working set for b. It keeps the values of parent,
// the frame of b's immediate dominator, that are live into b, then adds
// b's parameters that are used at all. parent is nil for the entry block.
//
// Every value live into b must be present in parent; a missing one means
// the liveness results do not match the function.
func (t *Tracker) EnterBlock(b ir.Block, parent *Frame) error {
	t.block = b
	t.set.Reset()
	// Failures on entry are reported at the block's first instruction.
	at := t.fn.Layout.FirstInst(b).String()

	if parent != nil {
		var err error
		parent.live.ForEach(func(id uint32) {
			if err != nil {
				return
			}
			v := ir.Value(id)
			r, rerr := t.rangeOf(v, at)
			if rerr != nil {
				err = rerr
				return
			}
			if r.LiveIn(b) {
				t.set.Set(id)
			}
		})
		if err != nil {
			return err
		}
	}
	for _, v := range t.live.LiveIns(b) {
		if !t.Has(v) {
			return t.missing(v, at)
		}
	}

	for _, p := range t.fn.BlockParams(b) {
		r, err := t.rangeOf(p, at)
		if err != nil {
			return err
		}
		if !r.DeadAtDef() {
			t.set.Set(uint32(p))
		}
	}
	return nil
}

// Process adds the results of inst to the working set.
func (t *Tracker) Process(inst ir.Inst) error {
	for _, v := range t.fn.InstResults(inst) {
		if _, err := t.rangeOf(v, inst.String()); err != nil {
			return err
		}
		t.set.Set(uint32(v))
	}
	return nil
}

// Retire removes every value whose live range ends at inst: operands used
// for the last time and results that are never used.
func (t *Tracker) Retire(inst ir.Inst) error {
	for _, v := range liveness.Uses(t.fn, inst) {
		r, err := t.rangeOf(v, inst.String())
		if err != nil {
			return err
		}
		if r.EndsAt(inst) {
			t.set.Clear(uint32(v))
		}
	}
	for _, v := range t.fn.InstResults(inst) {
		r, err := t.rangeOf(v, inst.String())
		if err != nil {
			return err
		}
		if r.DeadAtDef() {
			t.set.Clear(uint32(v))
		}
	}
	return nil
}

// Snapshot returns the working set in value order.
func (t *Tracker) Snapshot() []ir.Value { return toValues(t.set) }

// Has reports whether v is in the working set.
func (t *Tracker) Has(v ir.Value) bool { return t.set.Has(uint32(v)) }

// Freeze captures the working set as the frame of the current block.
func (t *Tracker) Freeze() *Frame {
	return &Frame{block: t.block, live: t.set.Clone()}
}

func toValues(s *bitset.BitSet) []ir.Value {
	ids := s.ToSlice()
	vals := make([]ir.Value, len(ids))
	for i, id := range ids {
		vals[i] = ir.Value(id)
	}
	return vals
}
