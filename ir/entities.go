package ir

import "strconv"

// Value is an SSA value defined exactly once, by an instruction result or a block parameter.
type Value uint32

// Inst is an instruction handle.
type Inst uint32

// Block is a basic block handle.
type Block uint32

// FuncRef indexes a callee declared in the function preamble.
type FuncRef uint32

// Sentinels for "no entity".
const (
	NoValue   Value   = ^Value(0)
	NoInst    Inst    = ^Inst(0)
	NoBlock   Block   = ^Block(0)
	NoFuncRef FuncRef = ^FuncRef(0)
)

func (v Value) String() string {
	if v == NoValue {
		return "v-"
	}
	return "v" + strconv.FormatUint(uint64(v), 10)
}

func (i Inst) String() string {
	if i == NoInst {
		return "inst-"
	}
	return "inst" + strconv.FormatUint(uint64(i), 10)
}

func (b Block) String() string {
	if b == NoBlock {
		return "block-"
	}
	return "block" + strconv.FormatUint(uint64(b), 10)
}

func (f FuncRef) String() string {
	return "fn" + strconv.FormatUint(uint64(f), 10)
}

// LocKind classifies a value location.
type LocKind uint8

const (
	LocUnassigned LocKind = iota
	LocReg
	LocStack
)

// ValueLoc is the storage of a value after location assignment: a register
// unit or a stack slot. Register names are target specific; the IR only
// records the unit number.
type ValueLoc struct {
	Kind LocKind
	Num  uint32
}

// RegLoc returns a register location.
func RegLoc(unit uint32) ValueLoc { return ValueLoc{Kind: LocReg, Num: unit} }

// StackLoc returns a stack slot location.
func StackLoc(slot uint32) ValueLoc { return ValueLoc{Kind: LocStack, Num: slot} }

// IsAssigned reports whether the location refers to real storage.
func (l ValueLoc) IsAssigned() bool { return l.Kind != LocUnassigned }

func (l ValueLoc) String() string {
	switch l.Kind {
	case LocReg:
		return "%" + strconv.FormatUint(uint64(l.Num), 10)
	case LocStack:
		return "ss" + strconv.FormatUint(uint64(l.Num), 10)
	}
	return "-"
}
