package ir

// Cursor is a saved position in a function's layout.
//
// A cursor points at an instruction, or at the top of a block before its
// first instruction. Inserting through one cursor never moves another.
type Cursor struct {
	fn    *Function
	block Block
	inst  Inst
}

// NewCursor returns a cursor that points nowhere.
func NewCursor(fn *Function) *Cursor {
	return &Cursor{fn: fn, block: NoBlock, inst: NoInst}
}

// Func returns the function the cursor walks.
func (c *Cursor) Func() *Function { return c.fn }

// Block returns the current block.
func (c *Cursor) Block() Block { return c.block }

// Current returns the current instruction, or NoInst at a block top.
func (c *Cursor) Current() Inst { return c.inst }

// GotoInst moves to an inserted instruction. It reports false if i is not in the layout.
func (c *Cursor) GotoInst(i Inst) bool {
	b := c.fn.Layout.InstBlock(i)
	if b == NoBlock {
		return false
	}
	c.block, c.inst = b, i
	return true
}

// GotoTop moves before the first instruction of b.
func (c *Cursor) GotoTop(b Block) {
	c.block, c.inst = b, NoInst
}

// NextInst advances to the next instruction of the current block.
// From a block top it moves to the first instruction.
func (c *Cursor) NextInst() (Inst, bool) {
	if c.block == NoBlock {
		return NoInst, false
	}
	if c.inst == NoInst {
		c.inst = c.fn.Layout.FirstInst(c.block)
	} else {
		c.inst = c.fn.Layout.NextInst(c.inst)
	}
	return c.inst, c.inst != NoInst
}

// NextBlock moves to the top of the next block in layout order.
// From nowhere it moves to the entry block.
func (c *Cursor) NextBlock() (Block, bool) {
	if c.block == NoBlock {
		c.block = c.fn.Layout.EntryBlock()
	} else {
		c.block = c.fn.Layout.NextBlock(c.block)
	}
	c.inst = NoInst
	return c.block, c.block != NoBlock
}

// InsertInst creates an instruction and inserts it before the current one.
// The cursor keeps pointing at the same instruction. At a block top the new
// instruction becomes the first of the block.
func (c *Cursor) InsertInst(data InstData) (Inst, error) {
	i, err := c.fn.MakeInst(data)
	if err != nil {
		return NoInst, err
	}
	switch {
	case c.inst != NoInst:
		c.fn.Layout.InsertInstBefore(i, c.inst)
	case c.fn.Layout.FirstInst(c.block) != NoInst:
		c.fn.Layout.InsertInstBefore(i, c.fn.Layout.FirstInst(c.block))
	default:
		c.fn.Layout.AppendInst(i, c.block)
	}
	return i, nil
}

// RemoveInst unlinks the current instruction and moves to the one before
// it, so that a following NextInst continues with the instruction after.
func (c *Cursor) RemoveInst() Inst {
	i := c.inst
	if i == NoInst {
		return NoInst
	}
	c.inst = c.fn.Layout.PrevInst(i)
	c.fn.Layout.RemoveInst(i)
	return i
}
