package ir

import "fmt"

// Builder appends instructions to a function block by block.
//
// Builder methods panic on malformed operands: they are meant for
// frontends and tests that construct IR they control. Parsed or
// translated input goes through MakeInst, which returns errors.
type Builder struct {
	fn  *Function
	cur Block
}

// NewBuilder returns a builder for fn with no current block.
func NewBuilder(fn *Function) *Builder {
	return &Builder{fn: fn, cur: NoBlock}
}

// Func returns the function under construction.
func (b *Builder) Func() *Function { return b.fn }

// CreateBlock allocates a block without inserting it into the layout.
func (b *Builder) CreateBlock() Block { return b.fn.NewBlock() }

// AppendBlockParam adds a parameter to blk.
func (b *Builder) AppendBlockParam(blk Block, t Type) Value {
	return b.fn.AppendBlockParam(blk, t)
}

// SwitchToBlock makes blk the insertion block, appending it to the layout
// if it is not there yet.
func (b *Builder) SwitchToBlock(blk Block) {
	if !b.fn.Layout.IsBlockInserted(blk) {
		b.fn.Layout.AppendBlock(blk)
	}
	b.cur = blk
}

// CurrentBlock returns the insertion block.
func (b *Builder) CurrentBlock() Block { return b.cur }

// IsFilled reports whether the current block already ends in a terminator.
func (b *Builder) IsFilled() bool {
	last := b.fn.Layout.LastInst(b.cur)
	return last != NoInst && b.fn.Opcode(last).IsTerminator()
}

// Ins appends an arbitrary instruction to the current block.
func (b *Builder) Ins(data InstData) Inst {
	if b.cur == NoBlock {
		panic("ir: builder has no current block")
	}
	i, err := b.fn.MakeInst(data)
	if err != nil {
		panic(fmt.Sprintf("ir: %v", err))
	}
	b.fn.Layout.AppendInst(i, b.cur)
	return i
}

func (b *Builder) single(data InstData) Value {
	return b.fn.InstResults(b.Ins(data))[0]
}

// Iconst appends an integer constant.
func (b *Builder) Iconst(t Type, imm int64) Value {
	return b.single(InstData{Opcode: OpIconst, Type: t, Imm: imm})
}

// Null appends a null reference of type t.
func (b *Builder) Null(t Type) Value {
	return b.single(InstData{Opcode: OpNull, Type: t})
}

// Binary appends a two-operand arithmetic or comparison instruction.
func (b *Builder) Binary(op Opcode, x, y Value) Value {
	return b.single(InstData{Opcode: op, Args: []Value{x, y}})
}

// IsNull appends a null test of reference x.
func (b *Builder) IsNull(x Value) Value {
	return b.single(InstData{Opcode: OpIsNull, Args: []Value{x}})
}

// Copy appends a value copy.
func (b *Builder) Copy(x Value) Value {
	return b.single(InstData{Opcode: OpCopy, Args: []Value{x}})
}

// Select appends cond ? x : y.
func (b *Builder) Select(cond, x, y Value) Value {
	return b.single(InstData{Opcode: OpSelect, Args: []Value{cond, x, y}})
}

// FuncAddr appends a reference to a declared function.
func (b *Builder) FuncAddr(t Type, callee FuncRef) Value {
	return b.single(InstData{Opcode: OpFuncAddr, Type: t, Callee: callee})
}

// Call appends a call; the results are available through InstResults.
func (b *Builder) Call(callee FuncRef, args ...Value) Inst {
	return b.Ins(InstData{Opcode: OpCall, Callee: callee, Args: args})
}

// Jump appends an unconditional branch.
func (b *Builder) Jump(dest Block, args ...Value) Inst {
	return b.Ins(InstData{Opcode: OpJump, Dests: []BlockCall{{Block: dest, Args: args}}})
}

// Brif appends a two-way branch on cond (non-zero takes then).
func (b *Builder) Brif(cond Value, then Block, thenArgs []Value, els Block, elsArgs []Value) Inst {
	return b.Ins(InstData{
		Opcode: OpBrif,
		Args:   []Value{cond},
		Dests:  []BlockCall{{Block: then, Args: thenArgs}, {Block: els, Args: elsArgs}},
	})
}

// Return appends a return.
func (b *Builder) Return(args ...Value) Inst {
	return b.Ins(InstData{Opcode: OpReturn, Args: args})
}

// Trap appends an unconditional trap.
func (b *Builder) Trap() Inst {
	return b.Ins(InstData{Opcode: OpTrap})
}

// Safepoint appends an explicit safepoint marker.
func (b *Builder) Safepoint(args ...Value) Inst {
	return b.Ins(InstData{Opcode: OpSafepoint, Args: args})
}

// Divert appends a regmove, regspill or regfill of v.
func (b *Builder) Divert(op Opcode, v Value, src, dst ValueLoc) Inst {
	return b.Ins(InstData{Opcode: op, Args: []Value{v}, Src: src, Dst: dst})
}
