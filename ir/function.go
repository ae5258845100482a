package ir

import "fmt"

// BlockCall is a branch destination with its block arguments.
type BlockCall struct {
	Block Block
	Args  []Value
}

// InstData holds the operands of one instruction.
//
// Type is the controlling type for opcodes that produce a typed value from
// nothing (iconst, null, func_addr). Src and Dst are only used by diversions.
type InstData struct {
	Opcode  Opcode
	Type    Type
	Imm     int64
	Callee  FuncRef
	Args    []Value
	Dests   []BlockCall
	Results []Value
	Src     ValueLoc
	Dst     ValueLoc
}

// ValueDefKind tells where a value is defined.
type ValueDefKind uint8

const (
	DefNone ValueDefKind = iota
	DefResult
	DefParam
)

// ValueDef describes the definition of a value.
type ValueDef struct {
	Kind  ValueDefKind
	Inst  Inst
	Block Block
	Num   int
}

type valueData struct {
	typ Type
	def ValueDef
}

type blockData struct {
	params []Value
}

// Function is a single function in SSA form.
type Function struct {
	Name    string
	Sig     Signature
	Callees []ExtFunc
	Layout  Layout

	values []valueData
	insts  []InstData
	blocks []blockData
}

// NewFunction creates an empty function.
func NewFunction(name string, sig Signature) *Function {
	return &Function{Name: name, Sig: sig}
}

// NumValues returns the size of the value table.
func (f *Function) NumValues() int { return len(f.values) }

// NumInsts returns the size of the instruction table.
func (f *Function) NumInsts() int { return len(f.insts) }

// NumBlocks returns the size of the block table.
func (f *Function) NumBlocks() int { return len(f.blocks) }

// DeclareCallee adds a callee to the preamble, reusing an existing declaration with the same name.
func (f *Function) DeclareCallee(name string, sig Signature) FuncRef {
	for i, c := range f.Callees {
		if c.Name == name {
			return FuncRef(i)
		}
	}
	f.Callees = append(f.Callees, ExtFunc{Name: name, Sig: sig})
	return FuncRef(len(f.Callees) - 1)
}

// Callee returns a declared callee.
func (f *Function) Callee(ref FuncRef) (ExtFunc, bool) {
	if int(ref) >= len(f.Callees) {
		return ExtFunc{}, false
	}
	return f.Callees[ref], true
}

// NewBlock allocates a block. It is not part of the layout until inserted.
func (f *Function) NewBlock() Block {
	f.blocks = append(f.blocks, blockData{})
	return Block(len(f.blocks) - 1)
}

// AppendBlockParam adds a parameter of type t to block b.
func (f *Function) AppendBlockParam(b Block, t Type) Value {
	v := f.newValue(t, ValueDef{Kind: DefParam, Block: b, Num: len(f.blocks[b].params)})
	f.blocks[b].params = append(f.blocks[b].params, v)
	return v
}

// BlockParams returns the parameters of b. The slice must not be modified.
func (f *Function) BlockParams(b Block) []Value {
	if int(b) >= len(f.blocks) {
		return nil
	}
	return f.blocks[b].params
}

// ValidValue reports whether v is a defined value of this function.
func (f *Function) ValidValue(v Value) bool {
	return int(v) < len(f.values) && f.values[v].def.Kind != DefNone
}

// ValidBlock reports whether b is allocated in this function.
func (f *Function) ValidBlock(b Block) bool { return int(b) < len(f.blocks) }

// ValidInst reports whether i is allocated in this function.
func (f *Function) ValidInst(i Inst) bool { return int(i) < len(f.insts) }

// ValueType returns the type of v.
func (f *Function) ValueType(v Value) Type {
	if int(v) >= len(f.values) {
		return TypeInvalid
	}
	return f.values[v].typ
}

// ValueDef returns the definition of v.
func (f *Function) ValueDef(v Value) ValueDef {
	if int(v) >= len(f.values) {
		return ValueDef{}
	}
	return f.values[v].def
}

// Inst returns the instruction data of i. Callers may modify operands in place.
func (f *Function) Inst(i Inst) *InstData {
	return &f.insts[i]
}

// Opcode returns the opcode of i.
func (f *Function) Opcode(i Inst) Opcode { return f.insts[i].Opcode }

// InstResults returns the result values of i.
func (f *Function) InstResults(i Inst) []Value { return f.insts[i].Results }

// InstArgs returns the fixed operands of i, not including branch arguments.
func (f *Function) InstArgs(i Inst) []Value { return f.insts[i].Args }

// CtrlType returns the controlling type of i: its explicit type if it has
// one, otherwise the type of its first result, otherwise of its first operand.
func (f *Function) CtrlType(i Inst) Type {
	d := &f.insts[i]
	if d.Type != TypeInvalid {
		return d.Type
	}
	if len(d.Results) > 0 {
		return f.ValueType(d.Results[0])
	}
	if len(d.Args) > 0 {
		return f.ValueType(d.Args[0])
	}
	return TypeInvalid
}

// MakeInst adds an instruction to the instruction table and creates its
// result values. The instruction is not part of the layout until inserted.
func (f *Function) MakeInst(data InstData) (Inst, error) {
	types, err := f.resultTypes(&data)
	if err != nil {
		return NoInst, err
	}
	inst := Inst(len(f.insts))
	data.Results = make([]Value, len(types))
	for n, t := range types {
		data.Results[n] = f.newValue(t, ValueDef{Kind: DefResult, Inst: inst, Num: n})
	}
	f.insts = append(f.insts, data)
	return inst, nil
}

// AppendBranchArg appends v to the arguments passed to destination dest of branch inst.
func (f *Function) AppendBranchArg(inst Inst, dest int, v Value) {
	d := &f.insts[inst]
	d.Dests[dest].Args = append(d.Dests[dest].Args, v)
}

// resultTypes infers the result types of an instruction.
func (f *Function) resultTypes(d *InstData) ([]Type, error) {
	switch d.Opcode {
	case OpIconst:
		if !d.Type.IsInt() {
			return nil, fmt.Errorf("iconst needs an integer type, got %s", d.Type)
		}
		return []Type{d.Type}, nil
	case OpNull, OpFuncAddr:
		if !d.Type.IsRef() {
			return nil, fmt.Errorf("%s needs a reference type, got %s", d.Opcode, d.Type)
		}
		return []Type{d.Type}, nil
	case OpIadd, OpIsub, OpImul:
		if err := f.checkArgs(d, 2); err != nil {
			return nil, err
		}
		return []Type{f.ValueType(d.Args[0])}, nil
	case OpIcmpEq, OpIcmpSlt:
		if err := f.checkArgs(d, 2); err != nil {
			return nil, err
		}
		return []Type{I32}, nil
	case OpIsNull:
		if err := f.checkArgs(d, 1); err != nil {
			return nil, err
		}
		return []Type{I32}, nil
	case OpCopy:
		if err := f.checkArgs(d, 1); err != nil {
			return nil, err
		}
		return []Type{f.ValueType(d.Args[0])}, nil
	case OpSelect:
		if err := f.checkArgs(d, 3); err != nil {
			return nil, err
		}
		return []Type{f.ValueType(d.Args[1])}, nil
	case OpCall:
		callee, ok := f.Callee(d.Callee)
		if !ok {
			return nil, fmt.Errorf("call to undeclared %s", d.Callee)
		}
		return callee.Sig.Returns, nil
	case OpJump:
		if len(d.Dests) != 1 {
			return nil, fmt.Errorf("jump needs one destination")
		}
	case OpBrif:
		if err := f.checkArgs(d, 1); err != nil {
			return nil, err
		}
		if len(d.Dests) != 2 {
			return nil, fmt.Errorf("brif needs two destinations")
		}
	case OpRegmove, OpRegspill, OpRegfill:
		if err := f.checkArgs(d, 1); err != nil {
			return nil, err
		}
	case OpReturn, OpTrap, OpSafepoint, OpStackmap:
	default:
		return nil, fmt.Errorf("invalid opcode %d", d.Opcode)
	}
	return nil, nil
}

func (f *Function) checkArgs(d *InstData, n int) error {
	if len(d.Args) != n {
		return fmt.Errorf("%s takes %d operands, got %d", d.Opcode, n, len(d.Args))
	}
	return nil
}

func (f *Function) newValue(t Type, def ValueDef) Value {
	f.values = append(f.values, valueData{typ: t, def: def})
	return Value(len(f.values) - 1)
}

// reserveValues grows the value table to n undefined entries so that text
// value numbers can be preserved.
func (f *Function) reserveValues(n int) {
	for len(f.values) < n {
		f.values = append(f.values, valueData{})
	}
}

// reserveBlocks grows the block table to n entries.
func (f *Function) reserveBlocks(n int) {
	for len(f.blocks) < n {
		f.blocks = append(f.blocks, blockData{})
	}
}

// defineValue binds a reserved value number to a definition.
func (f *Function) defineValue(v Value, t Type, def ValueDef) error {
	if int(v) >= len(f.values) {
		f.reserveValues(int(v) + 1)
	}
	if f.values[v].def.Kind != DefNone {
		return fmt.Errorf("value %s defined twice", v)
	}
	f.values[v] = valueData{typ: t, def: def}
	return nil
}

// makeInstAs is MakeInst with caller-chosen result value numbers.
func (f *Function) makeInstAs(data InstData, results []Value) (Inst, error) {
	types, err := f.resultTypes(&data)
	if err != nil {
		return NoInst, err
	}
	if len(types) != len(results) {
		return NoInst, fmt.Errorf("%s produces %d results, %d named", data.Opcode, len(types), len(results))
	}
	inst := Inst(len(f.insts))
	for n, v := range results {
		if err := f.defineValue(v, types[n], ValueDef{Kind: DefResult, Inst: inst, Num: n}); err != nil {
			return NoInst, err
		}
	}
	data.Results = results
	f.insts = append(f.insts, data)
	return inst, nil
}

// appendBlockParamAs is AppendBlockParam with a caller-chosen value number.
func (f *Function) appendBlockParamAs(b Block, v Value, t Type) error {
	if err := f.defineValue(v, t, ValueDef{Kind: DefParam, Block: b, Num: len(f.blocks[b].params)}); err != nil {
		return err
	}
	f.blocks[b].params = append(f.blocks[b].params, v)
	return nil
}

// inferPendingTypes resolves result types that depended on operands defined
// later in the text. It reports whether every result has a type.
func (f *Function) inferPendingTypes() bool {
	for changed := true; changed; {
		changed = false
		for i := range f.insts {
			d := &f.insts[i]
			for n, r := range d.Results {
				if f.values[r].typ != TypeInvalid {
					continue
				}
				types, err := f.resultTypes(d)
				if err != nil || n >= len(types) || types[n] == TypeInvalid {
					continue
				}
				f.values[r].typ = types[n]
				changed = true
			}
		}
	}
	for _, v := range f.values {
		if v.def.Kind != DefNone && v.typ == TypeInvalid {
			return false
		}
	}
	return true
}
