// Package ir implements the SSA intermediate representation consumed by the
// stackmap pass.
//
// A Function owns three dense entity tables (values, instructions, blocks)
// and a Layout that orders blocks and instructions. Entities are plain
// uint32 handles and never reused within a function.
//
// # Layout
//
// Blocks and instructions are kept in doubly linked lists. Inserting an
// instruction never invalidates another saved position (an Inst handle or a
// Cursor), which is what lets the stackmap applier insert markers after a
// read-only scan.
//
// # Text format
//
// Functions print and parse in a small textual format:
//
//	function %scan(r64) -> r64 {
//	    fn0 = %alloc(r64) -> r64
//
//	block0(v0: r64):
//	    v1 = null.r64
//	    v2 = call fn0(v1)
//	    brif v0, block1(v2), block2
//
//	block1(v3: r64):
//	    return v3
//
//	block2:
//	    return v0
//	}
//
// Value and block numbers written in the text are preserved by Parse.
package ir
