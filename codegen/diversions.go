package codegen

import (
	"slices"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// Diversion records that a value has moved away from its home location.
type Diversion struct {
	From ir.ValueLoc // home location
	To   ir.ValueLoc // current location
}

// Diversions tracks values temporarily moved by regmove, regspill and
// regfill inside one block. Diversions never survive a block boundary, so
// the tracker is cleared at every block entry.
type Diversions struct {
	current map[ir.Value]Diversion
}

// NewDiversions returns an empty diversion tracker.
func NewDiversions() *Diversions {
	return &Diversions{current: make(map[ir.Value]Diversion)}
}

// Clear forgets all diversions.
func (d *Diversions) Clear() {
	clear(d.current)
}

// Len returns the number of diverted values.
func (d *Diversions) Len() int { return len(d.current) }

// Location returns where v currently lives, given its home location.
func (d *Diversions) Location(v ir.Value, home ir.ValueLoc) ir.ValueLoc {
	if div, ok := d.current[v]; ok {
		return div.To
	}
	return home
}

// Divert moves v from one location to another. from must be where v is
// right now. Moving a value back home removes the diversion.
func (d *Diversions) Divert(v ir.Value, home, from, to ir.ValueLoc) error {
	if cur := d.Location(v, home); cur != from {
		return errors.New(errors.PhaseEmit, errors.KindMalformed).
			Value(v.String()).
			Detail("diversion of %s from %s, but it lives in %s", v, from, cur).
			Build()
	}
	if to == home {
		delete(d.current, v)
		return nil
	}
	d.current[v] = Diversion{From: home, To: to}
	return nil
}

// Apply updates the tracker for a diversion instruction. Other
// instructions leave it unchanged.
func (d *Diversions) Apply(fn *ir.Function, inst ir.Inst, locs Locations) error {
	data := fn.Inst(inst)
	if !data.Opcode.IsDiversion() {
		return nil
	}
	v := data.Args[0]
	if err := d.Divert(v, locs.Get(v), data.Src, data.Dst); err != nil {
		return errors.WithFunc(annotate(err, inst), fn.Name)
	}
	return nil
}

// Diverted returns the diverted values in value order.
func (d *Diversions) Diverted() []ir.Value {
	vals := make([]ir.Value, 0, len(d.current))
	for v := range d.current {
		vals = append(vals, v)
	}
	slices.Sort(vals)
	return vals
}

func annotate(err error, inst ir.Inst) error {
	var e *errors.Error
	if errors.As(err, &e) && e.Inst == "" {
		e.Inst = inst.String()
	}
	return err
}
