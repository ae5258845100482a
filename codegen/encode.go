package codegen

import (
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// EncodedFunc is a function with final code offsets.
type EncodedFunc struct {
	Func      *ir.Function
	Target    *Target
	Locations Locations

	// Offsets holds the code offset of every instruction in the layout,
	// indexed by instruction number.
	Offsets []uint32
	Size    uint32
}

// Offset returns the code offset of inst.
func (e *EncodedFunc) Offset(inst ir.Inst) uint32 {
	if int(inst) >= len(e.Offsets) {
		return 0
	}
	return e.Offsets[inst]
}

// Encode lays out fn's instructions in layout order and assigns code
// offsets. Diversions are replayed to reject a regmove whose source is not
// where the value currently lives.
func Encode(fn *ir.Function, t *Target, locs Locations) (*EncodedFunc, error) {
	if fn.Layout.EntryBlock() == ir.NoBlock {
		return nil, errors.New(errors.PhaseEmit, errors.KindInvalidInput).
			Func(fn.Name).
			Detail("function has no blocks").
			Build()
	}
	enc := &EncodedFunc{
		Func:      fn,
		Target:    t,
		Locations: locs,
		Offsets:   make([]uint32, fn.NumInsts()),
	}
	divs := NewDiversions()
	var offset uint32
	for _, b := range fn.Layout.Blocks() {
		divs.Clear()
		for _, i := range fn.Layout.BlockInsts(b) {
			if err := divs.Apply(fn, i, locs); err != nil {
				return nil, err
			}
			enc.Offsets[i] = offset
			offset += uint32(t.InstSize(fn.Opcode(i)))
		}
	}
	enc.Size = offset
	return enc, nil
}
