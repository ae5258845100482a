package frontend

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/frontend/internal/binary"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/stackmap"
)

type testFunc struct {
	typeIdx uint32
	locals  []LocalEntry
	code    []byte // body without the final end
	export  string
}

type testModule struct {
	types   []FuncType
	imports []Import
	funcs   []testFunc
	names   map[uint32]string
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func (tm testModule) bytes() []byte {
	w := binary.NewWriter()
	w.Byte(0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	s := binary.NewWriter()
	s.WriteU32(uint32(len(tm.types)))
	for _, ft := range tm.types {
		s.Byte(0x60)
		writeValTypes(s, ft.Params)
		writeValTypes(s, ft.Results)
	}
	w.Section(SectionType, s.Bytes())

	if len(tm.imports) > 0 {
		s = binary.NewWriter()
		s.WriteU32(uint32(len(tm.imports)))
		for _, imp := range tm.imports {
			s.WriteName(imp.Module)
			s.WriteName(imp.Name)
			s.Byte(KindFunc)
			s.WriteU32(imp.TypeIdx)
		}
		w.Section(SectionImport, s.Bytes())
	}

	s = binary.NewWriter()
	s.WriteU32(uint32(len(tm.funcs)))
	for _, f := range tm.funcs {
		s.WriteU32(f.typeIdx)
	}
	w.Section(SectionFunction, s.Bytes())

	s = binary.NewWriter()
	var exports int
	e := binary.NewWriter()
	for i, f := range tm.funcs {
		if f.export == "" {
			continue
		}
		exports++
		e.WriteName(f.export)
		e.Byte(KindFunc)
		e.WriteU32(uint32(len(tm.imports) + i))
	}
	s.WriteU32(uint32(exports))
	s.WriteBytes(e.Bytes())
	w.Section(SectionExport, s.Bytes())

	s = binary.NewWriter()
	s.WriteU32(uint32(len(tm.funcs)))
	for _, f := range tm.funcs {
		body := binary.NewWriter()
		body.WriteU32(uint32(len(f.locals)))
		for _, l := range f.locals {
			body.WriteU32(l.Count)
			body.Byte(byte(l.Type))
		}
		body.WriteBytes(f.code)
		body.Byte(opEnd)
		s.WriteU32(uint32(body.Len()))
		s.WriteBytes(body.Bytes())
	}
	w.Section(SectionCode, s.Bytes())

	if len(tm.names) > 0 {
		sub := binary.NewWriter()
		sub.WriteU32(uint32(len(tm.names)))
		for idx, n := uint32(0), uint32(len(tm.imports)+len(tm.funcs)); idx < n; idx++ {
			if name, ok := tm.names[idx]; ok {
				sub.WriteU32(idx)
				sub.WriteName(name)
			}
		}
		s = binary.NewWriter()
		s.WriteName("name")
		s.Byte(1)
		s.WriteU32(uint32(sub.Len()))
		s.WriteBytes(sub.Bytes())
		w.Section(SectionCustom, s.Bytes())
	}
	return w.Bytes()
}

var (
	typeVoid    = FuncType{}
	typeAlloc   = FuncType{Results: []ValType{ValExtern}}
	typeRefRef  = FuncType{Params: []ValType{ValExtern}, Results: []ValType{ValExtern}}
	typeCounter = FuncType{Params: []ValType{ValI32}, Results: []ValType{ValExtern}}
	typeChoose  = FuncType{Params: []ValType{ValI32, ValExtern, ValExtern}, Results: []ValType{ValExtern}}
)

// gcImports are env.gc (function 0) and env.alloc (function 1).
var gcImports = []Import{
	{Module: "env", Name: "gc", Kind: KindFunc, TypeIdx: 0},
	{Module: "env", Name: "alloc", Kind: KindFunc, TypeIdx: 1},
}

func translateOne(t *testing.T, tm testModule) *ir.Function {
	t.Helper()
	funcs, err := TranslateBytes(tm.bytes(), Options{})
	if err != nil {
		t.Fatalf("TranslateBytes: %v", err)
	}
	if len(funcs) != 1 {
		t.Fatalf("got %d functions, want 1", len(funcs))
	}
	if err := ir.Verify(funcs[0]); err != nil {
		t.Fatalf("translated function does not verify: %v\n%s", err, funcs[0])
	}
	return funcs[0]
}

func TestDecode(t *testing.T) {
	tm := testModule{
		types:   []FuncType{typeVoid, typeAlloc, typeRefRef},
		imports: gcImports,
		funcs: []testFunc{
			{typeIdx: 2, locals: []LocalEntry{{Count: 2, Type: ValI32}}, code: []byte{opLocalGet, 0}, export: "run"},
		},
		names: map[uint32]string{2: "run_impl"},
	}
	m, err := Decode(tm.bytes())
	if err != nil {
		t.Fatal(err)
	}
	// Decoded signatures always carry non-nil lists.
	if diff := cmp.Diff(tm.types, m.Types, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("types (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(gcImports, m.Imports); diff != "" {
		t.Errorf("imports (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Export{{Name: "run", Kind: KindFunc, Index: 2}}, m.Exports); diff != "" {
		t.Errorf("exports (-want +got):\n%s", diff)
	}
	if len(m.Code) != 1 || !cmp.Equal(m.Code[0].Code, []byte{opLocalGet, 0, opEnd}) {
		t.Errorf("code = %+v", m.Code)
	}
	if diff := cmp.Diff([]LocalEntry{{Count: 2, Type: ValI32}}, m.Code[0].Locals); diff != "" {
		t.Errorf("locals (-want +got):\n%s", diff)
	}

	names := []struct {
		idx  uint32
		want string
	}{
		{0, "env.gc"},
		{1, "env.alloc"},
		{2, "run_impl"},
		{7, "f7"},
	}
	for _, n := range names {
		if got := m.FuncName(n.idx); got != n.want {
			t.Errorf("FuncName(%d) = %q, want %q", n.idx, got, n.want)
		}
	}
	if ft, ok := m.FuncType(2); !ok || !cmp.Equal(ft, typeRefRef) {
		t.Errorf("FuncType(2) = %+v, %v", ft, ok)
	}
}

func TestDecode_Errors(t *testing.T) {
	valid := testModule{
		types: []FuncType{typeVoid},
		funcs: []testFunc{{typeIdx: 0}},
	}.bytes()

	tests := []struct {
		name    string
		data    []byte
		target  error
		section string
	}{
		{"bad magic", []byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0x00, 0x00, 0x00}, ErrInvalidMagic, "header"},
		{"bad version", []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}, ErrInvalidVersion, "header"},
		{"truncated", valid[:len(valid)-3], nil, "section data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Decode = %v, want ParseError", err)
			}
			if pe.Section != tt.section {
				t.Errorf("section = %q, want %q", pe.Section, tt.section)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("Decode = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestTranslate_Call(t *testing.T) {
	fn := translateOne(t, testModule{
		types:   []FuncType{typeVoid, typeAlloc, typeRefRef},
		imports: gcImports,
		funcs: []testFunc{{
			typeIdx: 2,
			code:    []byte{opCall, 0, opLocalGet, 0},
			export:  "run",
		}},
	})
	want := `function %run(r64) -> r64 {
    fn0 = %env_gc()

block0(v0: r64):
    call fn0()
    jump block1(v0)

block1(v1: r64):
    return v1
}
`
	if diff := cmp.Diff(want, fn.String()); diff != "" {
		t.Errorf("IR (-want +got):\n%s", diff)
	}

	records, err := stackmap.ComputeStackmaps(fn, stackmap.CallSites)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || !cmp.Equal(records[0].Values, []ir.Value{0}) {
		t.Errorf("records = %v, want v0 live at the call", records)
	}
}

func TestTranslate_Loop(t *testing.T) {
	// loop
	//   call $alloc
	//   local.set 1
	//   local.get 0
	//   i32.const -1
	//   i32.add
	//   local.tee 0
	//   br_if 0
	// end
	// local.get 1
	fn := translateOne(t, testModule{
		types:   []FuncType{typeVoid, typeAlloc, typeCounter},
		imports: gcImports,
		funcs: []testFunc{{
			typeIdx: 2,
			locals:  []LocalEntry{{Count: 1, Type: ValExtern}},
			code: []byte{
				opLoop, 0x40,
				opCall, 1,
				opLocalSet, 1,
				opLocalGet, 0,
				opI32Const, 0x7f,
				opI32Add,
				opLocalTee, 0,
				opBrIf, 0,
				opEnd,
				opLocalGet, 1,
			},
		}},
	})

	var call ir.Inst
	for _, policy := range []stackmap.Policy{stackmap.CallSites, stackmap.LoopHeaders} {
		records, err := stackmap.ComputeStackmaps(fn, policy)
		if err != nil {
			t.Fatal(err)
		}
		// The reference from the previous iteration is dead at the call.
		if len(records) != 1 || len(records[0].Values) != 0 {
			t.Fatalf("%s: records = %v, want one empty record", policy, records)
		}
		call = records[0].Inst
		if fn.Opcode(call) != ir.OpCall {
			t.Errorf("%s: record at %s, want the call", policy, fn.DisplayInst(call))
		}
	}

	header := fn.Layout.InstBlock(call)
	if n := len(fn.BlockParams(header)); n != 1 {
		t.Errorf("loop header has %d parameters, want 1 for the counter", n)
	}
}

func TestTranslate_IfElse(t *testing.T) {
	// local.get 0
	// if (result externref)
	//   local.get 1
	// else
	//   call $gc
	//   local.get 2
	// end
	fn := translateOne(t, testModule{
		types:   []FuncType{typeVoid, typeAlloc, typeChoose},
		imports: gcImports,
		funcs: []testFunc{{
			typeIdx: 2,
			code: []byte{
				opLocalGet, 0,
				opIf, byte(ValExtern),
				opLocalGet, 1,
				opElse,
				opCall, 0,
				opLocalGet, 2,
				opEnd,
			},
		}},
	})

	records, err := stackmap.ComputeStackmaps(fn, stackmap.CallSites)
	if err != nil {
		t.Fatal(err)
	}
	want := []stackmap.Record{{Inst: records[0].Inst, Values: []ir.Value{2}}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
}

func TestTranslate_DeadCode(t *testing.T) {
	// block
	//   br 0
	//   call $gc
	//   block
	//     call $gc
	//   end
	// end
	// ref.null extern
	fn := translateOne(t, testModule{
		types:   []FuncType{typeVoid, typeAlloc},
		imports: gcImports,
		funcs: []testFunc{{
			typeIdx: 1,
			code: []byte{
				opBlock, 0x40,
				opBr, 0,
				opCall, 0,
				opBlock, 0x40,
				opCall, 0,
				opEnd,
				opEnd,
				opRefNull, byte(ValExtern),
			},
		}},
	})
	for _, b := range fn.Layout.Blocks() {
		for _, i := range fn.Layout.BlockInsts(b) {
			if fn.Opcode(i) == ir.OpCall {
				t.Errorf("unreachable call translated: %s", fn.DisplayInst(i))
			}
		}
	}
}

func TestTranslate_Refs(t *testing.T) {
	// ref.func 2
	// local.get 0
	// local.get 0
	// ref.is_null
	// select
	fn := translateOne(t, testModule{
		types:   []FuncType{typeVoid, typeAlloc, typeRefRef},
		imports: gcImports,
		funcs: []testFunc{{
			typeIdx: 2,
			code: []byte{
				opRefFunc, 2,
				opLocalGet, 0,
				opLocalGet, 0,
				opRefIsNull,
				opSelect,
			},
		}},
	})
	var ops []ir.Opcode
	for _, i := range fn.Layout.BlockInsts(fn.Layout.EntryBlock()) {
		ops = append(ops, fn.Opcode(i))
	}
	want := []ir.Opcode{ir.OpFuncAddr, ir.OpIsNull, ir.OpSelect, ir.OpJump}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("opcodes (-want +got):\n%s", diff)
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name string
		tm   testModule
		kind errors.Kind
	}{
		{
			name: "unsupported opcode",
			tm: testModule{
				types: []FuncType{typeVoid},
				funcs: []testFunc{{code: []byte{0x43, 0, 0, 0x80, 0x3f, opDrop}}},
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "float parameter",
			tm: testModule{
				types: []FuncType{{Params: []ValType{ValF64}}},
				funcs: []testFunc{{}},
			},
			kind: errors.KindUnsupported,
		},
		{
			name: "stack underflow",
			tm: testModule{
				types: []FuncType{typeVoid},
				funcs: []testFunc{{code: []byte{opI32Add, opDrop}}},
			},
			kind: errors.KindMalformed,
		},
		{
			name: "type mismatch",
			tm: testModule{
				types: []FuncType{typeVoid},
				funcs: []testFunc{{code: []byte{opI64Const, 1, opI32Const, 1, opI32Add, opDrop}}},
			},
			kind: errors.KindMalformed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TranslateBytes(tt.tm.bytes(), Options{})
			var e *errors.Error
			if !errors.As(err, &e) {
				t.Fatalf("TranslateBytes = %v, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseTranslate || e.Kind != tt.kind || e.Func != "f0" {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestTranslate_RefType(t *testing.T) {
	funcs, err := TranslateBytes(testModule{
		types: []FuncType{typeRefRef},
		funcs: []testFunc{{code: []byte{opLocalGet, 0}}},
	}.bytes(), Options{RefType: ir.R32})
	if err != nil {
		t.Fatal(err)
	}
	if got := funcs[0].Sig.Params[0]; got != ir.R32 {
		t.Errorf("externref translated to %s, want r32", got)
	}
}

func TestValidate(t *testing.T) {
	valid := testModule{
		types:   []FuncType{typeVoid, typeAlloc, typeChoose},
		imports: gcImports,
		funcs: []testFunc{{
			typeIdx: 2,
			code: []byte{
				opLocalGet, 0,
				opIf, byte(ValExtern),
				opLocalGet, 1,
				opElse,
				opCall, 0,
				opLocalGet, 2,
				opEnd,
			},
		}},
	}
	if err := Validate(context.Background(), valid.bytes()); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}

	invalid := testModule{
		types: []FuncType{typeVoid},
		funcs: []testFunc{{code: []byte{opI32Add}}},
	}
	err := Validate(context.Background(), invalid.bytes())
	var e *errors.Error
	if !errors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Errorf("Validate(invalid) = %v, want invalid input", err)
	}
}
