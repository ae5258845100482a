package stackmap

import (
	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// Slot is one live reference at a safepoint: where it is stored and its type.
type Slot struct {
	Value ir.Value
	Loc   ir.ValueLoc
	Type  ir.Type
}

// TableEntry is the runtime view of one stackmap marker.
type TableEntry struct {
	// Offset is the code offset of the safepoint. Markers have no encoding,
	// so it is also the marker's own offset.
	Offset    uint32
	Marker    ir.Inst
	Safepoint ir.Inst
	Slots     []Slot
}

// MaterializeTable walks the encoded function in final layout order and
// resolves the values of every stackmap marker to their locations at that
// point, following any diversions made earlier in the same block.
func MaterializeTable(enc *codegen.EncodedFunc) ([]TableEntry, error) {
	fn := enc.Func
	divs := codegen.NewDiversions()
	var table []TableEntry

	for _, b := range fn.Layout.Blocks() {
		divs.Clear()
		for _, i := range fn.Layout.BlockInsts(b) {
			d := fn.Inst(i)
			if d.Opcode.IsStackmap() {
				entry := TableEntry{
					Offset:    enc.Offset(i),
					Marker:    i,
					Safepoint: nextNonMarker(fn, i),
					Slots:     make([]Slot, 0, len(d.Args)),
				}
				for _, v := range d.Args {
					home := enc.Locations.Get(v)
					if !home.IsAssigned() {
						return nil, errors.MissingLocation(fn.Name, i.String(), v.String())
					}
					entry.Slots = append(entry.Slots, Slot{
						Value: v,
						Loc:   divs.Location(v, home),
						Type:  fn.ValueType(v),
					})
				}
				table = append(table, entry)
				continue
			}
			if err := divs.Apply(fn, i, enc.Locations); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}

func nextNonMarker(fn *ir.Function, i ir.Inst) ir.Inst {
	for n := fn.Layout.NextInst(i); n != ir.NoInst; n = fn.Layout.NextInst(n) {
		if !fn.Opcode(n).IsStackmap() {
			return n
		}
	}
	return ir.NoInst
}
