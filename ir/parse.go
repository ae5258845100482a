package ir

import (
	"strconv"
	"strings"

	"github.com/mirahmed753/cretonne/errors"
)

// maxEntity bounds entity numbers in text so a typo cannot allocate gigabytes.
const maxEntity = 1 << 24

// Parse reads every function in src. Value and block numbers in the text
// are preserved, so printing a parsed function reproduces the same names.
func Parse(src string) ([]*Function, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var funcs []*Function
	for p.peek().Type != tokEOF {
		fn, err := p.function()
		if err != nil {
			return nil, err
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

// ParseFunction reads src, which must hold exactly one function.
func ParseFunction(src string) (*Function, error) {
	funcs, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if len(funcs) != 1 {
		return nil, errors.InvalidInput(errors.PhaseParse, "expected exactly one function, found "+strconv.Itoa(len(funcs)))
	}
	return funcs[0], nil
}

type parser struct {
	tokens []token
	pos    int

	fn      *Function
	defined map[Block]int // block -> line of its header
	used    map[Block]int // block -> first line it was referenced
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.Type != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	err := errors.Syntax(t.Line, format, args...)
	if p.fn != nil {
		err.Func = p.fn.Name
	}
	return err
}

func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.Type == tokPunct && t.Value == s
}

func (p *parser) expectPunct(s string) error {
	t := p.next()
	if t.Type != tokPunct || t.Value != s {
		return p.errorf(t, "expected '%s', found %s", s, describe(t))
	}
	return nil
}

func (p *parser) expect(typ tokenType) (token, error) {
	t := p.next()
	if t.Type != typ {
		return t, p.errorf(t, "expected %s, found %s", typ, describe(t))
	}
	return t, nil
}

func describe(t token) string {
	if t.Type == tokEOF {
		return t.Type.String()
	}
	return "'" + t.Value + "'"
}

func (p *parser) function() (*Function, error) {
	kw := p.next()
	if kw.Type != tokIdent || kw.Value != "function" {
		return nil, p.errorf(kw, "expected 'function', found %s", describe(kw))
	}
	name, err := p.expect(tokName)
	if err != nil {
		return nil, err
	}
	sig, err := p.signature()
	if err != nil {
		return nil, err
	}
	p.fn = NewFunction(name.Value, sig)
	p.defined = make(map[Block]int)
	p.used = make(map[Block]int)
	defer func() { p.fn = nil }()

	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for p.isCalleeDecl() {
		if err := p.calleeDecl(); err != nil {
			return nil, err
		}
	}
	for !p.isPunct("}") {
		if p.peek().Type == tokEOF {
			return nil, p.errorf(p.peek(), "unterminated function body")
		}
		if err := p.block(); err != nil {
			return nil, err
		}
	}
	closing := p.next()

	fn := p.fn
	for b, line := range p.used {
		if _, ok := p.defined[b]; !ok {
			return nil, p.errorf(token{Line: line}, "undefined block %s", b)
		}
	}
	if err := p.checkValues(closing); err != nil {
		return nil, err
	}
	if !fn.inferPendingTypes() {
		return nil, p.errorf(closing, "cannot infer the types of all values")
	}
	return fn, nil
}

func (p *parser) signature() (Signature, error) {
	var sig Signature
	if err := p.expectPunct("("); err != nil {
		return sig, err
	}
	if !p.isPunct(")") {
		types, err := p.typeList()
		if err != nil {
			return sig, err
		}
		sig.Params = types
	}
	if err := p.expectPunct(")"); err != nil {
		return sig, err
	}
	if p.peek().Type == tokArrow {
		p.next()
		types, err := p.typeList()
		if err != nil {
			return sig, err
		}
		sig.Returns = types
	}
	return sig, nil
}

func (p *parser) typeList() ([]Type, error) {
	var types []Type
	for {
		t, err := p.typ()
		if err != nil {
			return nil, err
		}
		types = append(types, t)
		if !p.isPunct(",") {
			return types, nil
		}
		p.next()
	}
}

func (p *parser) typ() (Type, error) {
	t := p.next()
	if t.Type == tokIdent {
		if typ, ok := ParseType(t.Value); ok {
			return typ, nil
		}
	}
	return TypeInvalid, p.errorf(t, "expected a type, found %s", describe(t))
}

func (p *parser) isCalleeDecl() bool {
	t := p.peek()
	_, ok := entityNum(t.Value, "fn")
	return t.Type == tokIdent && ok && p.peekAt(1).Value == "="
}

func (p *parser) calleeDecl() error {
	ref := p.next()
	n, _ := entityNum(ref.Value, "fn")
	if int(n) != len(p.fn.Callees) {
		return p.errorf(ref, "callee %s declared out of order", ref.Value)
	}
	if err := p.expectPunct("="); err != nil {
		return err
	}
	name, err := p.expect(tokName)
	if err != nil {
		return err
	}
	sig, err := p.signature()
	if err != nil {
		return err
	}
	p.fn.Callees = append(p.fn.Callees, ExtFunc{Name: name.Value, Sig: sig})
	return nil
}

func (p *parser) block() error {
	t := p.next()
	blk, err := p.blockRef(t)
	if err != nil {
		return err
	}
	if line, dup := p.defined[blk]; dup {
		return p.errorf(t, "%s already defined on line %d", blk, line)
	}
	p.defined[blk] = t.Line
	p.fn.Layout.AppendBlock(blk)

	if p.isPunct("(") {
		p.next()
		for {
			vt := p.next()
			v, err := p.valueRef(vt)
			if err != nil {
				return err
			}
			if err := p.expectPunct(":"); err != nil {
				return err
			}
			typ, err := p.typ()
			if err != nil {
				return err
			}
			if err := p.fn.appendBlockParamAs(blk, v, typ); err != nil {
				return p.errorf(vt, "%v", err)
			}
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
		if err := p.expectPunct(")"); err != nil {
			return err
		}
	}
	if err := p.expectPunct(":"); err != nil {
		return err
	}

	for !p.isBlockEnd() {
		if err := p.inst(blk); err != nil {
			return err
		}
	}
	return nil
}

func (p *parser) isBlockEnd() bool {
	t := p.peek()
	if t.Type == tokEOF || p.isPunct("}") {
		return true
	}
	if _, ok := entityNum(t.Value, "block"); ok && t.Type == tokIdent {
		next := p.peekAt(1)
		return next.Type == tokPunct && (next.Value == ":" || next.Value == "(")
	}
	return false
}

func (p *parser) inst(blk Block) error {
	var results []Value
	if _, ok := entityNum(p.peek().Value, "v"); ok && p.peek().Type == tokIdent {
		for {
			v, err := p.valueRef(p.next())
			if err != nil {
				return err
			}
			results = append(results, v)
			if !p.isPunct(",") {
				break
			}
			p.next()
		}
		if err := p.expectPunct("="); err != nil {
			return err
		}
	}

	opTok := p.next()
	if opTok.Type != tokIdent {
		return p.errorf(opTok, "expected an opcode, found %s", describe(opTok))
	}
	opName, suffix, hasSuffix := strings.Cut(opTok.Value, ".")
	op, ok := LookupOpcode(opName)
	if !ok {
		return p.errorf(opTok, "unknown opcode %q", opName)
	}
	data := InstData{Opcode: op, Callee: NoFuncRef}
	if hasSuffix {
		typ, ok := ParseType(suffix)
		if !ok {
			return p.errorf(opTok, "unknown type %q", suffix)
		}
		data.Type = typ
	}

	if err := p.operands(opTok, &data); err != nil {
		return err
	}

	inst, err := p.fn.makeInstAs(data, results)
	if err != nil {
		return p.errorf(opTok, "%v", err)
	}
	p.fn.Layout.AppendInst(inst, blk)
	return nil
}

func (p *parser) operands(opTok token, data *InstData) error {
	needType := func() error {
		if data.Type == TypeInvalid {
			return p.errorf(opTok, "%s needs a type suffix", data.Opcode)
		}
		return nil
	}

	switch data.Opcode.Format() {
	case FormatNullary:
	case FormatNullaryTyped:
		return needType()
	case FormatUnaryImm:
		if err := needType(); err != nil {
			return err
		}
		t, err := p.expect(tokNumber)
		if err != nil {
			return err
		}
		imm, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return p.errorf(t, "bad immediate %s", t.Value)
		}
		data.Imm = imm
	case FormatUnary:
		return p.valueArgs(data, 1)
	case FormatBinary:
		return p.valueArgs(data, 2)
	case FormatTernary:
		return p.valueArgs(data, 3)
	case FormatFuncAddr:
		if err := needType(); err != nil {
			return err
		}
		ref, err := p.funcRef()
		if err != nil {
			return err
		}
		data.Callee = ref
	case FormatCall:
		ref, err := p.funcRef()
		if err != nil {
			return err
		}
		data.Callee = ref
		if err := p.expectPunct("("); err != nil {
			return err
		}
		if !p.isPunct(")") {
			if err := p.valueList(&data.Args); err != nil {
				return err
			}
		}
		return p.expectPunct(")")
	case FormatJump:
		bc, err := p.blockCall()
		if err != nil {
			return err
		}
		data.Dests = []BlockCall{bc}
	case FormatBrif:
		if err := p.valueArgs(data, 1); err != nil {
			return err
		}
		for i := 0; i < 2; i++ {
			if err := p.expectPunct(","); err != nil {
				return err
			}
			bc, err := p.blockCall()
			if err != nil {
				return err
			}
			data.Dests = append(data.Dests, bc)
		}
	case FormatMultiAry:
		// Operands must share the opcode's line; the next line may start
		// with a result list.
		if t := p.peek(); t.Type == tokIdent && t.Line == opTok.Line {
			return p.valueList(&data.Args)
		}
	case FormatRegMove:
		if err := p.valueArgs(data, 1); err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		src, err := p.location()
		if err != nil {
			return err
		}
		if _, err := p.expect(tokArrow); err != nil {
			return err
		}
		dst, err := p.location()
		if err != nil {
			return err
		}
		data.Src, data.Dst = src, dst
	}
	return nil
}

func (p *parser) valueArgs(data *InstData, n int) error {
	for k := 0; k < n; k++ {
		if k > 0 {
			if err := p.expectPunct(","); err != nil {
				return err
			}
		}
		v, err := p.valueRef(p.next())
		if err != nil {
			return err
		}
		data.Args = append(data.Args, v)
	}
	return nil
}

func (p *parser) valueList(out *[]Value) error {
	for {
		v, err := p.valueRef(p.next())
		if err != nil {
			return err
		}
		*out = append(*out, v)
		if !p.isPunct(",") {
			return nil
		}
		p.next()
	}
}

func (p *parser) blockCall() (BlockCall, error) {
	t := p.next()
	blk, err := p.blockRef(t)
	if err != nil {
		return BlockCall{}, err
	}
	if _, seen := p.used[blk]; !seen {
		p.used[blk] = t.Line
	}
	bc := BlockCall{Block: blk}
	if p.isPunct("(") {
		p.next()
		if !p.isPunct(")") {
			if err := p.valueList(&bc.Args); err != nil {
				return bc, err
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return bc, err
		}
	}
	return bc, nil
}

func (p *parser) funcRef() (FuncRef, error) {
	t := p.next()
	n, ok := entityNum(t.Value, "fn")
	if t.Type != tokIdent || !ok {
		return NoFuncRef, p.errorf(t, "expected a callee reference, found %s", describe(t))
	}
	if int(n) >= len(p.fn.Callees) {
		return NoFuncRef, p.errorf(t, "undeclared callee %s", t.Value)
	}
	return FuncRef(n), nil
}

func (p *parser) location() (ValueLoc, error) {
	t := p.next()
	switch t.Type {
	case tokName:
		if n, err := strconv.ParseUint(t.Value, 10, 32); err == nil {
			return RegLoc(uint32(n)), nil
		}
	case tokIdent:
		if n, ok := entityNum(t.Value, "ss"); ok {
			return StackLoc(n), nil
		}
	}
	return ValueLoc{}, p.errorf(t, "expected a register or stack slot, found %s", describe(t))
}

func (p *parser) valueRef(t token) (Value, error) {
	n, ok := entityNum(t.Value, "v")
	if t.Type != tokIdent || !ok {
		return NoValue, p.errorf(t, "expected a value, found %s", describe(t))
	}
	if n >= maxEntity {
		return NoValue, p.errorf(t, "value number %d too large", n)
	}
	p.fn.reserveValues(int(n) + 1)
	return Value(n), nil
}

func (p *parser) blockRef(t token) (Block, error) {
	n, ok := entityNum(t.Value, "block")
	if t.Type != tokIdent || !ok {
		return NoBlock, p.errorf(t, "expected a block, found %s", describe(t))
	}
	if n >= maxEntity {
		return NoBlock, p.errorf(t, "block number %d too large", n)
	}
	p.fn.reserveBlocks(int(n) + 1)
	return Block(n), nil
}

// checkValues rejects references to values that were never defined.
func (p *parser) checkValues(at token) error {
	fn := p.fn
	check := func(i Inst, v Value) error {
		if !fn.ValidValue(v) {
			return p.errorf(at, "%s uses undefined value %s", i, v)
		}
		return nil
	}
	for _, blk := range fn.Layout.Blocks() {
		for _, i := range fn.Layout.BlockInsts(blk) {
			d := fn.Inst(i)
			for _, v := range d.Args {
				if err := check(i, v); err != nil {
					return err
				}
			}
			for _, dest := range d.Dests {
				for _, v := range dest.Args {
					if err := check(i, v); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// entityNum parses names like v12 or block3.
func entityNum(s, prefix string) (uint32, bool) {
	rest, ok := strings.CutPrefix(s, prefix)
	if !ok || rest == "" || rest[0] < '0' || rest[0] > '9' {
		return 0, false
	}
	n, err := strconv.ParseUint(rest, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
