package frontend

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/frontend/internal/binary"
	"github.com/mirahmed753/cretonne/ir"
)

// Opcodes the translator understands.
const (
	opUnreachable byte = 0x00
	opNop         byte = 0x01
	opBlock       byte = 0x02
	opLoop        byte = 0x03
	opIf          byte = 0x04
	opElse        byte = 0x05
	opEnd         byte = 0x0B
	opBr          byte = 0x0C
	opBrIf        byte = 0x0D
	opReturn      byte = 0x0F
	opCall        byte = 0x10
	opDrop        byte = 0x1A
	opSelect      byte = 0x1B
	opSelectT     byte = 0x1C
	opLocalGet    byte = 0x20
	opLocalSet    byte = 0x21
	opLocalTee    byte = 0x22
	opI32Const    byte = 0x41
	opI64Const    byte = 0x42
	opI32Eqz      byte = 0x45
	opI32Eq       byte = 0x46
	opI32LtS      byte = 0x48
	opI64Eqz      byte = 0x50
	opI64Eq       byte = 0x51
	opI64LtS      byte = 0x53
	opI32Add      byte = 0x6A
	opI32Sub      byte = 0x6B
	opI32Mul      byte = 0x6C
	opI64Add      byte = 0x7C
	opI64Sub      byte = 0x7D
	opI64Mul      byte = 0x7E
	opRefNull     byte = 0xD0
	opRefIsNull   byte = 0xD1
	opRefFunc     byte = 0xD2
)

// Options controls translation.
type Options struct {
	// RefType is the IR type of externref and funcref values. Zero means r64.
	RefType ir.Type
}

func (o Options) withDefaults() Options {
	if o.RefType == ir.TypeInvalid {
		o.RefType = ir.R64
	}
	return o
}

// Translate converts every defined function of m to IR, in index order.
// Function names are made unique and restricted to the characters the text
// format accepts.
func Translate(m *Module, opts Options) ([]*ir.Function, error) {
	funcs := make([]*ir.Function, 0, len(m.Funcs))
	seen := make(map[string]bool, len(m.Funcs))
	imported := m.NumImportedFuncs()
	for d := range m.Funcs {
		fn, err := TranslateFunc(m, d, opts)
		if err != nil {
			return nil, err
		}
		if seen[fn.Name] {
			fn.Name += "_" + strconv.Itoa(imported+d)
		}
		seen[fn.Name] = true
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

// TranslateFunc converts the defined function with position d in the
// function section.
func TranslateFunc(m *Module, d int, opts Options) (*ir.Function, error) {
	if d < 0 || d >= len(m.Funcs) || d >= len(m.Code) {
		return nil, errors.InvalidInput(errors.PhaseTranslate, fmt.Sprintf("no defined function %d", d))
	}
	opts = opts.withDefaults()
	idx := uint32(m.NumImportedFuncs() + d)
	name := sanitizeName(m.FuncName(idx))

	ft, ok := m.FuncType(idx)
	if !ok {
		return nil, errors.New(errors.PhaseTranslate, errors.KindMalformed).
			Func(name).
			Detail("function %d has no valid type", idx).
			Build()
	}
	t := &translator{
		m:       m,
		opts:    opts,
		body:    m.Code[d],
		callees: make(map[uint32]ir.FuncRef),
	}
	sig, err := t.signature(ft)
	if err != nil {
		return nil, errors.WithFunc(err, name)
	}
	t.fn = ir.NewFunction(name, sig)
	t.b = ir.NewBuilder(t.fn)
	t.ssa = newSSABuilder(t.b)

	if err := t.run(); err != nil {
		return nil, errors.WithFunc(err, name)
	}
	Logger().Debug("translated function",
		zap.String("func", name),
		zap.Uint32("index", idx),
		zap.Int("blocks", len(t.fn.Layout.Blocks())),
		zap.Int("insts", t.fn.NumInsts()))
	return t.fn, nil
}

// TranslateBytes decodes a binary module and translates all of its functions.
func TranslateBytes(data []byte, opts Options) ([]*ir.Function, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Translate(m, opts)
}

func sanitizeName(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, s)
}

type frameKind uint8

const (
	frameBlock frameKind = iota
	frameLoop
	frameIf
)

// frame is an open structured control construct.
type frame struct {
	kind     frameKind
	header   ir.Block // loop entry, the target of branches to a loop
	end      ir.Block // continuation, with one parameter per result
	els      ir.Block // else arm of an if
	elseSeen bool
	results  []ir.Type
	height   int
}

// target returns the block a branch to this frame jumps to and how many
// stack values it carries.
func (f *frame) target() (ir.Block, int) {
	if f.kind == frameLoop {
		return f.header, 0
	}
	return f.end, len(f.results)
}

type blockType struct {
	params  []ValType
	results []ValType
}

// instr is one decoded instruction with its immediates.
type instr struct {
	op     byte
	offset int
	index  uint32
	imm    int64
	bt     blockType
}

type translator struct {
	m    *Module
	opts Options
	body FuncBody

	fn      *ir.Function
	b       *ir.Builder
	ssa     *ssaBuilder
	r       *binary.Reader
	callees map[uint32]ir.FuncRef

	locals    []Variable
	stack     []ir.Value
	frames    []*frame
	reachable bool
	// deadDepth counts constructs opened inside unreachable code.
	deadDepth int
}

func (t *translator) irType(v ValType) (ir.Type, error) {
	switch v {
	case ValI32:
		return ir.I32, nil
	case ValI64:
		return ir.I64, nil
	case ValFuncRef, ValExtern:
		return t.opts.RefType, nil
	}
	return ir.TypeInvalid, errors.Unsupported(errors.PhaseTranslate, "value type "+v.String())
}

func (t *translator) irTypes(vs []ValType) ([]ir.Type, error) {
	types := make([]ir.Type, len(vs))
	for i, v := range vs {
		ty, err := t.irType(v)
		if err != nil {
			return nil, err
		}
		types[i] = ty
	}
	return types, nil
}

func (t *translator) signature(ft FuncType) (ir.Signature, error) {
	params, err := t.irTypes(ft.Params)
	if err != nil {
		return ir.Signature{}, err
	}
	results, err := t.irTypes(ft.Results)
	if err != nil {
		return ir.Signature{}, err
	}
	return ir.Signature{Params: params, Returns: results}, nil
}

func (t *translator) malformed(offset int, format string, args ...any) error {
	return errors.New(errors.PhaseTranslate, errors.KindMalformed).
		Func(t.fn.Name).
		Detail("at offset %#x: %s", offset, fmt.Sprintf(format, args...)).
		Build()
}

func (t *translator) unsupported(in instr) error {
	return errors.New(errors.PhaseTranslate, errors.KindUnsupported).
		Func(t.fn.Name).
		Detail("opcode 0x%02x at offset %#x", in.op, in.offset).
		Build()
}

func (t *translator) run() error {
	entry := t.b.CreateBlock()
	t.b.SwitchToBlock(entry)
	t.ssa.seal(entry)

	for _, ty := range t.fn.Sig.Params {
		p := t.b.AppendBlockParam(entry, ty)
		v := t.ssa.declare(ty)
		t.ssa.def(v, p)
		t.locals = append(t.locals, v)
	}
	for _, group := range t.body.Locals {
		ty, err := t.irType(group.Type)
		if err != nil {
			return err
		}
		for i := uint32(0); i < group.Count; i++ {
			v := t.ssa.declare(ty)
			t.ssa.def(v, t.zero(ty))
			t.locals = append(t.locals, v)
		}
	}

	t.frames = []*frame{{
		kind:    frameBlock,
		end:     t.endBlock(t.fn.Sig.Returns),
		results: t.fn.Sig.Returns,
	}}
	t.reachable = true
	t.r = binary.NewReader(t.body.Code)

	for len(t.frames) > 0 {
		in, err := t.decode()
		if err != nil {
			return err
		}
		if err := t.step(in); err != nil {
			return err
		}
	}
	if t.r.Len() > 0 {
		return t.malformed(t.pos(), "%d bytes after the final end", t.r.Len())
	}
	return nil
}

func (t *translator) pos() int { return t.body.Offset + t.r.Position() }

func (t *translator) zero(ty ir.Type) ir.Value {
	if ty.IsRef() {
		return t.b.Null(ty)
	}
	return t.b.Iconst(ty, 0)
}

func (t *translator) endBlock(results []ir.Type) ir.Block {
	blk := t.b.CreateBlock()
	for _, ty := range results {
		t.b.AppendBlockParam(blk, ty)
	}
	return blk
}

// decode reads the next instruction and its immediates.
func (t *translator) decode() (instr, error) {
	in := instr{offset: t.pos()}
	op, err := t.r.ReadByte()
	if err != nil {
		return in, t.malformed(in.offset, "unexpected end of code")
	}
	in.op = op

	switch op {
	case opBlock, opLoop, opIf:
		in.bt, err = t.readBlockType()
	case opBr, opBrIf, opCall, opLocalGet, opLocalSet, opLocalTee, opRefFunc:
		in.index, err = t.r.ReadU32()
	case opI32Const:
		var v int32
		v, err = t.r.ReadS32()
		in.imm = int64(v)
	case opI64Const:
		in.imm, err = t.r.ReadS64()
	case opRefNull:
		var b byte
		b, err = t.r.ReadByte()
		in.imm = int64(b)
	case opSelectT:
		_, err = readValTypes(t.r)
	}
	if err != nil {
		return in, t.malformed(in.offset, "bad immediate for opcode 0x%02x: %v", op, err)
	}
	return in, nil
}

func (t *translator) readBlockType() (blockType, error) {
	v, err := t.r.ReadS33()
	if err != nil {
		return blockType{}, err
	}
	switch {
	case v == -64:
		return blockType{}, nil
	case v < 0:
		return blockType{results: []ValType{ValType(byte(v) & 0x7f)}}, nil
	case int(v) < len(t.m.Types):
		ft := t.m.Types[v]
		return blockType{params: ft.Params, results: ft.Results}, nil
	}
	return blockType{}, fmt.Errorf("block type index %d out of range", v)
}

func (t *translator) step(in instr) error {
	if !t.reachable {
		switch in.op {
		case opBlock, opLoop, opIf:
			t.deadDepth++
			return nil
		case opElse:
			if t.deadDepth > 0 {
				return nil
			}
		case opEnd:
			if t.deadDepth > 0 {
				t.deadDepth--
				return nil
			}
		default:
			return nil
		}
	}

	switch in.op {
	case opUnreachable:
		t.b.Trap()
		t.reachable = false
	case opNop:
	case opBlock, opLoop, opIf:
		return t.open(in)
	case opElse:
		return t.elseArm(in)
	case opEnd:
		return t.close(in)
	case opBr:
		return t.br(in)
	case opBrIf:
		return t.brIf(in)
	case opReturn:
		vals, err := t.top(in, t.fn.Sig.Returns)
		if err != nil {
			return err
		}
		t.b.Return(vals...)
		t.reachable = false
	case opCall:
		return t.call(in)
	case opDrop:
		_, err := t.pop(in)
		return err
	case opSelect, opSelectT:
		return t.selectOp(in)
	case opLocalGet:
		v, err := t.local(in)
		if err != nil {
			return err
		}
		t.push(t.ssa.use(v))
	case opLocalSet, opLocalTee:
		v, err := t.local(in)
		if err != nil {
			return err
		}
		val, err := t.popTyped(in, t.ssa.types[v])
		if err != nil {
			return err
		}
		t.ssa.def(v, val)
		if in.op == opLocalTee {
			t.push(val)
		}
	case opI32Const:
		t.push(t.b.Iconst(ir.I32, in.imm))
	case opI64Const:
		t.push(t.b.Iconst(ir.I64, in.imm))
	case opI32Eqz:
		return t.eqz(in, ir.I32)
	case opI64Eqz:
		return t.eqz(in, ir.I64)
	case opI32Eq:
		return t.binary(in, ir.OpIcmpEq, ir.I32)
	case opI32LtS:
		return t.binary(in, ir.OpIcmpSlt, ir.I32)
	case opI64Eq:
		return t.binary(in, ir.OpIcmpEq, ir.I64)
	case opI64LtS:
		return t.binary(in, ir.OpIcmpSlt, ir.I64)
	case opI32Add:
		return t.binary(in, ir.OpIadd, ir.I32)
	case opI32Sub:
		return t.binary(in, ir.OpIsub, ir.I32)
	case opI32Mul:
		return t.binary(in, ir.OpImul, ir.I32)
	case opI64Add:
		return t.binary(in, ir.OpIadd, ir.I64)
	case opI64Sub:
		return t.binary(in, ir.OpIsub, ir.I64)
	case opI64Mul:
		return t.binary(in, ir.OpImul, ir.I64)
	case opRefNull:
		if !ValType(in.imm).IsRef() {
			return t.malformed(in.offset, "ref.null of %s", ValType(in.imm))
		}
		t.push(t.b.Null(t.opts.RefType))
	case opRefIsNull:
		x, err := t.pop(in)
		if err != nil {
			return err
		}
		if !t.fn.ValueType(x).IsRef() {
			return t.malformed(in.offset, "ref.is_null of %s", t.fn.ValueType(x))
		}
		t.push(t.b.IsNull(x))
	case opRefFunc:
		ref, err := t.callee(in)
		if err != nil {
			return err
		}
		t.push(t.b.FuncAddr(t.opts.RefType, ref))
	default:
		return t.unsupported(in)
	}
	return nil
}

func (t *translator) push(v ir.Value) { t.stack = append(t.stack, v) }

func (t *translator) floor() int {
	return t.frames[len(t.frames)-1].height
}

func (t *translator) pop(in instr) (ir.Value, error) {
	if len(t.stack) <= t.floor() {
		return ir.NoValue, t.malformed(in.offset, "operand stack underflow")
	}
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v, nil
}

func (t *translator) popTyped(in instr, want ir.Type) (ir.Value, error) {
	v, err := t.pop(in)
	if err != nil {
		return v, err
	}
	if got := t.fn.ValueType(v); got != want {
		return v, t.malformed(in.offset, "expected %s operand, found %s", want, got)
	}
	return v, nil
}

// top returns the values at the top of the stack, checking their types,
// without popping them.
func (t *translator) top(in instr, types []ir.Type) ([]ir.Value, error) {
	n := len(types)
	if len(t.stack)-n < t.floor() {
		return nil, t.malformed(in.offset, "operand stack underflow")
	}
	vals := t.stack[len(t.stack)-n:]
	for i, v := range vals {
		if got := t.fn.ValueType(v); got != types[i] {
			return nil, t.malformed(in.offset, "expected %s operand, found %s", types[i], got)
		}
	}
	return vals, nil
}

func (t *translator) local(in instr) (Variable, error) {
	if int(in.index) >= len(t.locals) {
		return 0, t.malformed(in.offset, "local %d out of range", in.index)
	}
	return t.locals[in.index], nil
}

func (t *translator) label(in instr) (*frame, error) {
	if int(in.index) >= len(t.frames) {
		return nil, t.malformed(in.offset, "branch depth %d out of range", in.index)
	}
	return t.frames[len(t.frames)-1-int(in.index)], nil
}

func (t *translator) open(in instr) error {
	if len(in.bt.params) > 0 {
		return errors.New(errors.PhaseTranslate, errors.KindUnsupported).
			Func(t.fn.Name).
			Detail("block parameters at offset %#x", in.offset).
			Build()
	}
	results, err := t.irTypes(in.bt.results)
	if err != nil {
		return err
	}
	f := &frame{kind: frameBlock, results: results, end: t.endBlock(results)}

	switch in.op {
	case opLoop:
		f.kind = frameLoop
		f.header = t.b.CreateBlock()
		t.ssa.jump(f.header)
		t.b.SwitchToBlock(f.header)
	case opIf:
		cond, err := t.popTyped(in, ir.I32)
		if err != nil {
			return err
		}
		f.kind = frameIf
		then := t.b.CreateBlock()
		f.els = t.b.CreateBlock()
		t.ssa.brif(cond, then, nil, f.els, nil)
		t.ssa.seal(then)
		t.ssa.seal(f.els)
		t.b.SwitchToBlock(then)
	}
	f.height = len(t.stack)
	t.frames = append(t.frames, f)
	return nil
}

// exitArm jumps from the end of a reachable arm to the frame's end
// block with the frame's results.
func (t *translator) exitArm(in instr, f *frame) error {
	if !t.reachable {
		return nil
	}
	vals, err := t.top(in, f.results)
	if err != nil {
		return err
	}
	if len(t.stack)-len(vals) != f.height {
		return t.malformed(in.offset, "%d values left on the stack", len(t.stack)-len(vals)-f.height)
	}
	t.ssa.jump(f.end, vals...)
	return nil
}

func (t *translator) elseArm(in instr) error {
	f := t.frames[len(t.frames)-1]
	if f.kind != frameIf || f.elseSeen {
		return t.malformed(in.offset, "else without if")
	}
	if err := t.exitArm(in, f); err != nil {
		return err
	}
	t.stack = t.stack[:f.height]
	f.elseSeen = true
	t.b.SwitchToBlock(f.els)
	t.reachable = true
	return nil
}

func (t *translator) close(in instr) error {
	f := t.frames[len(t.frames)-1]
	if err := t.exitArm(in, f); err != nil {
		return err
	}
	if f.kind == frameIf && !f.elseSeen {
		if len(f.results) > 0 {
			return t.malformed(in.offset, "if with results has no else")
		}
		t.b.SwitchToBlock(f.els)
		t.ssa.jump(f.end)
	}
	if f.kind == frameLoop {
		t.ssa.seal(f.header)
	}
	t.stack = t.stack[:f.height]
	t.frames = t.frames[:len(t.frames)-1]

	t.ssa.seal(f.end)
	if !t.ssa.hasPreds(f.end) {
		t.reachable = false
		return nil
	}
	t.b.SwitchToBlock(f.end)
	t.stack = append(t.stack, t.fn.BlockParams(f.end)[:len(f.results)]...)
	t.reachable = true

	if len(t.frames) == 0 {
		t.b.Return(t.stack...)
		t.stack = nil
		t.reachable = false
	}
	return nil
}

func (t *translator) br(in instr) error {
	f, err := t.label(in)
	if err != nil {
		return err
	}
	dest, arity := f.target()
	vals, err := t.top(in, f.results[:arity])
	if err != nil {
		return err
	}
	t.ssa.jump(dest, vals...)
	t.reachable = false
	return nil
}

func (t *translator) brIf(in instr) error {
	cond, err := t.popTyped(in, ir.I32)
	if err != nil {
		return err
	}
	f, err := t.label(in)
	if err != nil {
		return err
	}
	dest, arity := f.target()
	vals, err := t.top(in, f.results[:arity])
	if err != nil {
		return err
	}
	cont := t.b.CreateBlock()
	t.ssa.brif(cond, dest, vals, cont, nil)
	t.ssa.seal(cont)
	t.b.SwitchToBlock(cont)
	return nil
}

func (t *translator) callee(in instr) (ir.FuncRef, error) {
	if ref, ok := t.callees[in.index]; ok {
		return ref, nil
	}
	ft, ok := t.m.FuncType(in.index)
	if !ok {
		return ir.NoFuncRef, t.malformed(in.offset, "function %d out of range", in.index)
	}
	sig, err := t.signature(ft)
	if err != nil {
		return ir.NoFuncRef, err
	}
	ref := t.fn.DeclareCallee(sanitizeName(t.m.FuncName(in.index)), sig)
	t.callees[in.index] = ref
	return ref, nil
}

func (t *translator) call(in instr) error {
	ref, err := t.callee(in)
	if err != nil {
		return err
	}
	sig := t.fn.Callees[ref].Sig
	args, err := t.top(in, sig.Params)
	if err != nil {
		return err
	}
	args = append([]ir.Value(nil), args...)
	t.stack = t.stack[:len(t.stack)-len(args)]
	call := t.b.Call(ref, args...)
	t.stack = append(t.stack, t.fn.InstResults(call)...)
	return nil
}

func (t *translator) selectOp(in instr) error {
	cond, err := t.popTyped(in, ir.I32)
	if err != nil {
		return err
	}
	y, err := t.pop(in)
	if err != nil {
		return err
	}
	x, err := t.popTyped(in, t.fn.ValueType(y))
	if err != nil {
		return err
	}
	t.push(t.b.Select(cond, x, y))
	return nil
}

func (t *translator) eqz(in instr, ty ir.Type) error {
	x, err := t.popTyped(in, ty)
	if err != nil {
		return err
	}
	t.push(t.b.Binary(ir.OpIcmpEq, x, t.b.Iconst(ty, 0)))
	return nil
}

func (t *translator) binary(in instr, op ir.Opcode, ty ir.Type) error {
	y, err := t.popTyped(in, ty)
	if err != nil {
		return err
	}
	x, err := t.popTyped(in, ty)
	if err != nil {
		return err
	}
	t.push(t.b.Binary(op, x, y))
	return nil
}
