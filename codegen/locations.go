package codegen

import "github.com/mirahmed753/cretonne/ir"

// Locations maps each value to its home location, indexed by value number.
// Diversions may move a value away from its home temporarily.
type Locations []ir.ValueLoc

// Get returns the home location of v, unassigned if it has none.
func (l Locations) Get(v ir.Value) ir.ValueLoc {
	if int(v) >= len(l) {
		return ir.ValueLoc{}
	}
	return l[v]
}

// AssignLocations gives every value defined in the layout a home location.
//
// Entry parameters go to the argument registers, then the remaining values
// take callee-saved registers in definition order, then fresh stack slots.
// The assignment never reuses storage, so no two values conflict.
func AssignLocations(fn *ir.Function, t *Target) Locations {
	locs := make(Locations, fn.NumValues())
	entry := fn.Layout.EntryBlock()
	if entry == ir.NoBlock {
		return locs
	}

	var slot uint32
	callee := 0
	next := func() ir.ValueLoc {
		if callee < len(t.CalleeSaved) {
			callee++
			return ir.RegLoc(t.CalleeSaved[callee-1])
		}
		slot++
		return ir.StackLoc(slot - 1)
	}

	for n, p := range fn.BlockParams(entry) {
		if n < len(t.ArgRegs) {
			locs[p] = ir.RegLoc(t.ArgRegs[n])
		} else {
			locs[p] = next()
		}
	}
	for _, b := range fn.Layout.Blocks() {
		if b != entry {
			for _, p := range fn.BlockParams(b) {
				locs[p] = next()
			}
		}
		for _, i := range fn.Layout.BlockInsts(b) {
			for _, r := range fn.InstResults(i) {
				locs[r] = next()
			}
		}
	}
	return locs
}
