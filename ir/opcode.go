package ir

// Opcode identifies an instruction.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpIconst
	OpNull
	OpIadd
	OpIsub
	OpImul
	OpIcmpEq
	OpIcmpSlt
	OpIsNull
	OpSelect
	OpCopy
	OpFuncAddr
	OpCall
	OpJump
	OpBrif
	OpReturn
	OpTrap
	OpSafepoint
	OpStackmap
	OpRegmove
	OpRegspill
	OpRegfill
	numOpcodes
)

// Format describes the operand shape of an instruction, shared by the printer and parser.
type Format uint8

const (
	FormatNullary      Format = iota // trap
	FormatNullaryTyped               // null.r64
	FormatUnaryImm                   // iconst.i32 5
	FormatUnary                      // is_null v1
	FormatBinary                     // iadd v1, v2
	FormatTernary                    // select v1, v2, v3
	FormatFuncAddr                   // func_addr.r64 fn0
	FormatCall                       // call fn0(v1, v2)
	FormatJump                       // jump block1(v1)
	FormatBrif                       // brif v0, block1(v1), block2
	FormatMultiAry                   // return v1, v2
	FormatRegMove                    // regmove v1, %0 -> ss2
)

type opFlags uint8

const (
	flagBranch opFlags = 1 << iota
	flagTerminator
	flagCall
	flagSafepointMarker
	flagStackmap
	flagDiversion
)

type opInfo struct {
	name   string
	format Format
	flags  opFlags
}

var opcodeInfo = [numOpcodes]opInfo{
	OpInvalid:   {"invalid", FormatNullary, 0},
	OpIconst:    {"iconst", FormatUnaryImm, 0},
	OpNull:      {"null", FormatNullaryTyped, 0},
	OpIadd:      {"iadd", FormatBinary, 0},
	OpIsub:      {"isub", FormatBinary, 0},
	OpImul:      {"imul", FormatBinary, 0},
	OpIcmpEq:    {"icmp_eq", FormatBinary, 0},
	OpIcmpSlt:   {"icmp_slt", FormatBinary, 0},
	OpIsNull:    {"is_null", FormatUnary, 0},
	OpSelect:    {"select", FormatTernary, 0},
	OpCopy:      {"copy", FormatUnary, 0},
	OpFuncAddr:  {"func_addr", FormatFuncAddr, 0},
	OpCall:      {"call", FormatCall, flagCall},
	OpJump:      {"jump", FormatJump, flagBranch | flagTerminator},
	OpBrif:      {"brif", FormatBrif, flagBranch | flagTerminator},
	OpReturn:    {"return", FormatMultiAry, flagTerminator},
	OpTrap:      {"trap", FormatNullary, flagTerminator},
	OpSafepoint: {"safepoint", FormatMultiAry, flagSafepointMarker},
	OpStackmap:  {"stackmap", FormatMultiAry, flagStackmap},
	OpRegmove:   {"regmove", FormatRegMove, flagDiversion},
	OpRegspill:  {"regspill", FormatRegMove, flagDiversion},
	OpRegfill:   {"regfill", FormatRegMove, flagDiversion},
}

var opcodeByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := OpIconst; op < numOpcodes; op++ {
		m[opcodeInfo[op].name] = op
	}
	return m
}()

// LookupOpcode finds an opcode by its text name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodeByName[name]
	return op, ok
}

func (op Opcode) info() opInfo {
	if op >= numOpcodes {
		return opcodeInfo[OpInvalid]
	}
	return opcodeInfo[op]
}

func (op Opcode) String() string { return op.info().name }

// Format returns the operand shape of the opcode.
func (op Opcode) Format() Format { return op.info().format }

// IsBranch reports whether the instruction transfers control to destination blocks.
func (op Opcode) IsBranch() bool { return op.info().flags&flagBranch != 0 }

// IsTerminator reports whether the instruction must end its block.
func (op Opcode) IsTerminator() bool { return op.info().flags&flagTerminator != 0 }

// IsCall reports whether the instruction calls another function.
func (op Opcode) IsCall() bool { return op.info().flags&flagCall != 0 }

// IsSafepointMarker reports whether the frontend tagged this point as a safepoint.
func (op Opcode) IsSafepointMarker() bool { return op.info().flags&flagSafepointMarker != 0 }

// IsStackmap reports whether the instruction is an inserted stackmap marker.
func (op Opcode) IsStackmap() bool { return op.info().flags&flagStackmap != 0 }

// IsDiversion reports whether the instruction temporarily moves a value to another location.
func (op Opcode) IsDiversion() bool { return op.info().flags&flagDiversion != 0 }
