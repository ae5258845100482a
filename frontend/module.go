package frontend

import (
	"errors"
	"fmt"
	"io"

	"github.com/mirahmed753/cretonne/frontend/internal/binary"
)

// Binary format header.
const (
	Magic   uint32 = 0x6D736100 // "\0asm"
	Version uint32 = 0x01
)

// Section IDs.
const (
	SectionCustom    byte = 0
	SectionType      byte = 1
	SectionImport    byte = 2
	SectionFunction  byte = 3
	SectionTable     byte = 4
	SectionMemory    byte = 5
	SectionGlobal    byte = 6
	SectionExport    byte = 7
	SectionStart     byte = 8
	SectionElement   byte = 9
	SectionCode      byte = 10
	SectionData      byte = 11
	SectionDataCount byte = 12
)

// Import and export kinds.
const (
	KindFunc   byte = 0
	KindTable  byte = 1
	KindMemory byte = 2
	KindGlobal byte = 3
)

// ValType is a value type encoding.
type ValType byte

const (
	ValI32     ValType = 0x7F
	ValI64     ValType = 0x7E
	ValF32     ValType = 0x7D
	ValF64     ValType = 0x7C
	ValV128    ValType = 0x7B
	ValFuncRef ValType = 0x70
	ValExtern  ValType = 0x6F
)

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	}
	return fmt.Sprintf("valtype(0x%02x)", byte(v))
}

// IsRef reports whether v is a reference type.
func (v ValType) IsRef() bool { return v == ValFuncRef || v == ValExtern }

// ParseError is a decoding failure with the section and file offset it
// occurred at.
type ParseError = binary.ParseError

// Decoding errors.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Import is an imported item. Only function imports carry a type index.
type Import struct {
	Module  string
	Name    string
	Kind    byte
	TypeIdx uint32
}

// Export is an exported item.
type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// LocalEntry declares Count locals of one type.
type LocalEntry struct {
	Count uint32
	Type  ValType
}

// FuncBody is the code of one defined function.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
	// Offset is the file offset of Code, used in error messages.
	Offset int
}

// Module holds the parts of a module the translator needs. Other sections
// are skipped.
type Module struct {
	Types   []FuncType
	Imports []Import
	// Funcs holds the type index of every defined function.
	Funcs   []uint32
	Exports []Export
	Code    []FuncBody
	// Names maps function indices to names from the "name" custom section.
	Names map[uint32]string
}

// NumImportedFuncs counts function imports. Defined functions are
// numbered after them.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

// FuncType returns the signature of function index idx, imported or defined.
func (m *Module) FuncType(idx uint32) (FuncType, bool) {
	var typeIdx uint32
	n := uint32(0)
	found := false
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if n == idx {
			typeIdx, found = imp.TypeIdx, true
			break
		}
		n++
	}
	if !found {
		d := int(idx) - m.NumImportedFuncs()
		if d < 0 || d >= len(m.Funcs) {
			return FuncType{}, false
		}
		typeIdx = m.Funcs[d]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, false
	}
	return m.Types[typeIdx], true
}

// FuncName returns a display name for function index idx: the name
// section entry, the export name, "module.field" for imports, or "fN".
func (m *Module) FuncName(idx uint32) string {
	if name, ok := m.Names[idx]; ok {
		return name
	}
	for _, e := range m.Exports {
		if e.Kind == KindFunc && e.Index == idx {
			return e.Name
		}
	}
	n := uint32(0)
	for _, imp := range m.Imports {
		if imp.Kind != KindFunc {
			continue
		}
		if n == idx {
			return imp.Module + "." + imp.Name
		}
		n++
	}
	return fmt.Sprintf("f%d", idx)
}

// Decode parses a binary module.
func Decode(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, r.WrapError("header", ErrInvalidMagic)
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, r.WrapError("header", ErrInvalidVersion)
	}

	m := &Module{}
	var last byte
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		if id != SectionCustom && id != SectionDataCount {
			if id <= last {
				return nil, r.WrapError("section header", fmt.Errorf("section %d out of order", id))
			}
			last = id
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sr, err := r.Sub(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		name := sectionName(id)
		switch id {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionTable, SectionMemory, SectionGlobal, SectionStart,
			SectionElement, SectionData, SectionDataCount:
			// Not needed for translation.
		default:
			err = fmt.Errorf("unknown section id 0x%02x", id)
		}
		if err != nil {
			return nil, sr.WrapError(name, err)
		}
	}

	if len(m.Code) != len(m.Funcs) {
		return nil, &ParseError{
			Section:  "code section",
			Position: r.Position(),
			Err:      fmt.Errorf("%d function bodies for %d declared functions", len(m.Code), len(m.Funcs)),
		}
	}
	return m, nil
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom section"
	case SectionType:
		return "type section"
	case SectionImport:
		return "import section"
	case SectionFunction:
		return "function section"
	case SectionTable:
		return "table section"
	case SectionMemory:
		return "memory section"
	case SectionGlobal:
		return "global section"
	case SectionExport:
		return "export section"
	case SectionStart:
		return "start section"
	case SectionElement:
		return "element section"
	case SectionCode:
		return "code section"
	case SectionData:
		return "data section"
	case SectionDataCount:
		return "data count section"
	}
	return fmt.Sprintf("section %d", id)
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	types := make([]ValType, n)
	for i := range types {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		types[i] = ValType(b)
	}
	return types, nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != 0x60 {
			return fmt.Errorf("unsupported type form 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func skipLimits(r *binary.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if flags&0x04 != 0 {
		return fmt.Errorf("64-bit limits not supported")
	}
	if _, err := r.ReadU32(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		if _, err := r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp := Import{Module: module, Name: name, Kind: kind}
		switch kind {
		case KindFunc:
			if imp.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			if _, err := r.ReadByte(); err != nil {
				return err
			}
			if err := skipLimits(r); err != nil {
				return err
			}
		case KindMemory:
			if err := skipLimits(r); err != nil {
				return err
			}
		case KindGlobal:
			if _, err := r.ReadBytes(2); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown import kind %d", kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, idx)
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports = append(m.Exports, Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		br, err := r.Sub(int(size))
		if err != nil {
			return err
		}
		body, err := parseBody(br)
		if err != nil {
			return br.WrapError("code section", err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseBody(r *binary.Reader) (FuncBody, error) {
	groups, err := r.ReadU32()
	if err != nil {
		return FuncBody{}, err
	}
	var body FuncBody
	total := uint64(0)
	for i := uint32(0); i < groups; i++ {
		n, err := r.ReadU32()
		if err != nil {
			return FuncBody{}, err
		}
		t, err := r.ReadByte()
		if err != nil {
			return FuncBody{}, err
		}
		total += uint64(n)
		if total > 50000 {
			return FuncBody{}, fmt.Errorf("too many locals")
		}
		body.Locals = append(body.Locals, LocalEntry{Count: n, Type: ValType(t)})
	}
	body.Offset = r.Position()
	body.Code, err = r.ReadBytes(r.Len())
	return body, err
}

// parseCustomSection reads function names from the "name" section and
// ignores every other custom section.
func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	if name != "name" {
		return nil
	}
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return err
		}
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		sub, err := r.Sub(int(size))
		if err != nil {
			return err
		}
		if id != 1 {
			continue
		}
		count, err := sub.ReadU32()
		if err != nil {
			return err
		}
		if m.Names == nil {
			m.Names = make(map[uint32]string, count)
		}
		for i := uint32(0); i < count; i++ {
			idx, err := sub.ReadU32()
			if err != nil {
				return err
			}
			fname, err := sub.ReadName()
			if err != nil {
				return err
			}
			m.Names[idx] = fname
		}
	}
	return nil
}
