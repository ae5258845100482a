// Package codegen holds the pieces of the back end that the stackmap pass
// consumes: target descriptions, value locations, register diversions and
// code offsets.
//
// Register allocation and instruction selection are out of scope. Locations
// come from a deterministic assignment and instruction sizes from a fixed
// per-opcode table, which is enough to produce offsets and tables that
// behave like the real thing.
package codegen

import (
	"slices"
	"strconv"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

// Target describes an instruction set. Targets are immutable and shared.
type Target struct {
	Name         string
	PointerBytes int

	// Regs names the register units; a register location's number indexes it.
	Regs []string
	// ArgRegs receive the entry block parameters in order.
	ArgRegs []uint32
	// CalleeSaved are handed out to other values before falling back to stack slots.
	CalleeSaved []uint32

	sizes       map[ir.Opcode]int
	defaultSize int
}

// InstSize returns the encoded size of an instruction with opcode op.
// Markers have no encoding.
func (t *Target) InstSize(op ir.Opcode) int {
	if op.IsStackmap() || op.IsSafepointMarker() {
		return 0
	}
	if n, ok := t.sizes[op]; ok {
		return n
	}
	return t.defaultSize
}

// RegName returns the assembler name of a register unit.
func (t *Target) RegName(unit uint32) string {
	if int(unit) < len(t.Regs) {
		return t.Regs[unit]
	}
	return "r" + strconv.FormatUint(uint64(unit), 10)
}

// FormatLoc renders a location with target register names: %rdi or ss3.
func (t *Target) FormatLoc(loc ir.ValueLoc) string {
	if loc.Kind == ir.LocReg {
		return "%" + t.RegName(loc.Num)
	}
	return loc.String()
}

// RefType returns the reference type matching the pointer width.
func (t *Target) RefType() ir.Type {
	if t.PointerBytes == 4 {
		return ir.R32
	}
	return ir.R64
}

func (t *Target) String() string { return t.Name }

var x86_64 = &Target{
	Name:         "x86_64",
	PointerBytes: 8,
	Regs: []string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	},
	ArgRegs:     []uint32{7, 6, 2, 1, 8, 9},
	CalleeSaved: []uint32{3, 12, 13, 14, 15},
	sizes: map[ir.Opcode]int{
		ir.OpIconst:   10, // movabs
		ir.OpNull:     3,  // xor
		ir.OpIadd:     3,
		ir.OpIsub:     3,
		ir.OpImul:     4,
		ir.OpIcmpEq:   7, // cmp + sete + movzx
		ir.OpIcmpSlt:  7,
		ir.OpIsNull:   7,
		ir.OpSelect:   8, // test + cmov
		ir.OpCopy:     3,
		ir.OpFuncAddr: 7, // lea rip-relative
		ir.OpCall:     5,
		ir.OpJump:     5,
		ir.OpBrif:     11, // test + jcc + jmp
		ir.OpReturn:   1,
		ir.OpTrap:     2, // ud2
		ir.OpRegmove:  3,
		ir.OpRegspill: 5,
		ir.OpRegfill:  5,
	},
	defaultSize: 4,
}

var riscv64 = &Target{
	Name:         "riscv64",
	PointerBytes: 8,
	Regs: []string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	},
	ArgRegs:     []uint32{10, 11, 12, 13, 14, 15, 16, 17},
	CalleeSaved: []uint32{9, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27},
	sizes: map[ir.Opcode]int{
		ir.OpIconst:   8, // lui + addi
		ir.OpFuncAddr: 8, // auipc + addi
		ir.OpCall:     8, // auipc + jalr
		ir.OpBrif:     8, // bnez + j
		ir.OpSelect:   12,
		ir.OpIcmpEq:   8, // sub + seqz
	},
	defaultSize: 4,
}

var arm64 = &Target{
	Name:         "arm64",
	PointerBytes: 8,
	Regs: []string{
		"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7",
		"x8", "x9", "x10", "x11", "x12", "x13", "x14", "x15",
		"x16", "x17", "x18", "x19", "x20", "x21", "x22", "x23",
		"x24", "x25", "x26", "x27", "x28", "fp", "lr", "sp",
	},
	ArgRegs:     []uint32{0, 1, 2, 3, 4, 5, 6, 7},
	CalleeSaved: []uint32{19, 20, 21, 22, 23, 24, 25, 26, 27, 28},
	sizes: map[ir.Opcode]int{
		ir.OpIconst:   8, // movz + movk
		ir.OpFuncAddr: 8, // adrp + add
		ir.OpBrif:     8, // cbnz + b
		ir.OpSelect:   8, // cmp + csel
		ir.OpIcmpEq:   8, // cmp + cset
		ir.OpIcmpSlt:  8,
		ir.OpIsNull:   8,
	},
	defaultSize: 4,
}

var targets = map[string]*Target{
	x86_64.Name:  x86_64,
	riscv64.Name: riscv64,
	arm64.Name:   arm64,
	"amd64":      x86_64,
	"aarch64":    arm64,
}

// DefaultTarget is used when no target is configured.
const DefaultTarget = "x86_64"

// LookupTarget finds a built-in target by name.
func LookupTarget(name string) (*Target, error) {
	if t, ok := targets[name]; ok {
		return t, nil
	}
	return nil, errors.New(errors.PhaseCompile, errors.KindNotFound).
		Detail("unknown target %q (known: %v)", name, TargetNames()).
		Build()
}

// TargetNames lists the canonical names of the built-in targets.
func TargetNames() []string {
	return []string{arm64.Name, riscv64.Name, x86_64.Name}
}

// HasReg reports whether unit names a register of t.
func (t *Target) HasReg(unit uint32) bool {
	return int(unit) < len(t.Regs)
}

// IsArgReg reports whether unit receives an entry parameter.
func (t *Target) IsArgReg(unit uint32) bool {
	return slices.Contains(t.ArgRegs, unit)
}
