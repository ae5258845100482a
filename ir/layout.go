package ir

// seqStride is the gap left between instruction sequence numbers so that
// most insertions do not need a renumbering pass.
const seqStride = 10

type blockNode struct {
	prev, next  Block
	first, last Inst
	inserted    bool
}

type instNode struct {
	block      Block
	prev, next Inst
	seq        uint32
}

// Layout is the program order of blocks and instructions.
//
// Blocks form one doubly linked list and the instructions of each block
// another. Each instruction carries a sequence number that is increasing
// within its block, so two instructions of a block can be ordered in O(1).
type Layout struct {
	blocks      []blockNode
	insts       []instNode
	first, last Block
}

func (l *Layout) bnode(b Block) *blockNode {
	if l.blocks == nil {
		l.first, l.last = NoBlock, NoBlock
	}
	for int(b) >= len(l.blocks) {
		l.blocks = append(l.blocks, blockNode{prev: NoBlock, next: NoBlock, first: NoInst, last: NoInst})
	}
	return &l.blocks[b]
}

func (l *Layout) inode(i Inst) *instNode {
	for int(i) >= len(l.insts) {
		l.insts = append(l.insts, instNode{block: NoBlock, prev: NoInst, next: NoInst})
	}
	return &l.insts[i]
}

// EntryBlock returns the first block, or NoBlock for an empty layout.
func (l *Layout) EntryBlock() Block {
	if l.blocks == nil {
		return NoBlock
	}
	return l.first
}

// IsBlockInserted reports whether b is part of the layout.
func (l *Layout) IsBlockInserted(b Block) bool {
	return int(b) < len(l.blocks) && l.blocks[b].inserted
}

// AppendBlock adds b at the end of the layout.
func (l *Layout) AppendBlock(b Block) {
	n := l.bnode(b)
	if n.inserted {
		return
	}
	n.inserted = true
	n.prev = l.last
	n.next = NoBlock
	if l.last == NoBlock {
		l.first = b
	} else {
		l.blocks[l.last].next = b
	}
	l.last = b
}

// RemoveBlock unlinks b and all of its instructions from the layout.
func (l *Layout) RemoveBlock(b Block) {
	if !l.IsBlockInserted(b) {
		return
	}
	for i := l.blocks[b].first; i != NoInst; {
		next := l.insts[i].next
		l.insts[i] = instNode{block: NoBlock, prev: NoInst, next: NoInst}
		i = next
	}
	n := &l.blocks[b]
	if n.prev == NoBlock {
		l.first = n.next
	} else {
		l.blocks[n.prev].next = n.next
	}
	if n.next == NoBlock {
		l.last = n.prev
	} else {
		l.blocks[n.next].prev = n.prev
	}
	*n = blockNode{prev: NoBlock, next: NoBlock, first: NoInst, last: NoInst}
}

// NextBlock returns the block after b in layout order.
func (l *Layout) NextBlock(b Block) Block {
	if !l.IsBlockInserted(b) {
		return NoBlock
	}
	return l.blocks[b].next
}

// Blocks returns the blocks in layout order.
func (l *Layout) Blocks() []Block {
	var out []Block
	for b := l.EntryBlock(); b != NoBlock; b = l.blocks[b].next {
		out = append(out, b)
	}
	return out
}

// FirstInst returns the first instruction of b.
func (l *Layout) FirstInst(b Block) Inst {
	if !l.IsBlockInserted(b) {
		return NoInst
	}
	return l.blocks[b].first
}

// LastInst returns the last instruction of b, normally its terminator.
func (l *Layout) LastInst(b Block) Inst {
	if !l.IsBlockInserted(b) {
		return NoInst
	}
	return l.blocks[b].last
}

// NextInst returns the instruction after i in the same block.
func (l *Layout) NextInst(i Inst) Inst {
	if int(i) >= len(l.insts) {
		return NoInst
	}
	return l.insts[i].next
}

// PrevInst returns the instruction before i in the same block.
func (l *Layout) PrevInst(i Inst) Inst {
	if int(i) >= len(l.insts) {
		return NoInst
	}
	return l.insts[i].prev
}

// BlockInsts returns the instructions of b in order.
func (l *Layout) BlockInsts(b Block) []Inst {
	var out []Inst
	for i := l.FirstInst(b); i != NoInst; i = l.insts[i].next {
		out = append(out, i)
	}
	return out
}

// InstBlock returns the block containing i, or NoBlock if i is not inserted.
func (l *Layout) InstBlock(i Inst) Block {
	if int(i) >= len(l.insts) {
		return NoBlock
	}
	return l.insts[i].block
}

// IsInstInserted reports whether i is part of the layout.
func (l *Layout) IsInstInserted(i Inst) bool {
	return l.InstBlock(i) != NoBlock
}

// AppendInst adds i at the end of block b.
func (l *Layout) AppendInst(i Inst, b Block) {
	bn := l.bnode(b)
	n := l.inode(i)
	n.block = b
	n.prev = bn.last
	n.next = NoInst
	if bn.last == NoInst {
		bn.first = i
		n.seq = seqStride
	} else {
		l.insts[bn.last].next = i
		n.seq = l.insts[bn.last].seq + seqStride
	}
	bn.last = i
}

// InsertInstBefore inserts i immediately before the inserted instruction before.
// Other instruction handles and their relative order are unaffected.
func (l *Layout) InsertInstBefore(i, before Inst) {
	b := l.InstBlock(before)
	n := l.inode(i)
	bn := &l.blocks[b]
	prev := l.insts[before].prev

	n.block = b
	n.prev = prev
	n.next = before
	l.insts[before].prev = i
	if prev == NoInst {
		bn.first = i
	} else {
		l.insts[prev].next = i
	}

	lo := uint32(0)
	if prev != NoInst {
		lo = l.insts[prev].seq
	}
	hi := l.insts[before].seq
	if hi-lo >= 2 {
		l.insts[i].seq = lo + (hi-lo)/2
		return
	}
	l.renumber(b)
}

// RemoveInst unlinks i from its block.
func (l *Layout) RemoveInst(i Inst) {
	b := l.InstBlock(i)
	if b == NoBlock {
		return
	}
	n := l.insts[i]
	bn := &l.blocks[b]
	if n.prev == NoInst {
		bn.first = n.next
	} else {
		l.insts[n.prev].next = n.next
	}
	if n.next == NoInst {
		bn.last = n.prev
	} else {
		l.insts[n.next].prev = n.prev
	}
	l.insts[i] = instNode{block: NoBlock, prev: NoInst, next: NoInst}
}

// Seq returns the sequence number of an inserted instruction.
// Sequence numbers only compare instructions of the same block.
func (l *Layout) Seq(i Inst) uint32 {
	return l.insts[i].seq
}

// Before reports whether a comes strictly before b. Both must be in the same block.
func (l *Layout) Before(a, b Inst) bool {
	return l.insts[a].seq < l.insts[b].seq
}

func (l *Layout) renumber(b Block) {
	seq := uint32(seqStride)
	for i := l.blocks[b].first; i != NoInst; i = l.insts[i].next {
		l.insts[i].seq = seq
		seq += seqStride
	}
}
