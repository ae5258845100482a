package ir

import (
	"fmt"

	"github.com/mirahmed753/cretonne/errors"
)

// Verify checks the structural invariants of fn: every block ends in exactly
// one terminator, operands refer to defined values, and branch, call and
// return operands agree with the signatures they target.
//
// Dominance of definitions over uses needs a dominator tree and is checked
// separately by the analysis package.
func Verify(fn *Function) error {
	v := verifier{fn: fn}
	return v.run()
}

type verifier struct {
	fn *Function
}

func (v *verifier) blockErr(b Block, format string, args ...any) error {
	return errors.New(errors.PhaseVerify, errors.KindMalformed).
		Func(v.fn.Name).
		Block(b.String()).
		Detail(format, args...).
		Build()
}

func (v *verifier) instErr(i Inst, format string, args ...any) error {
	return errors.Malformed(v.fn.Name, i.String(), fmt.Sprintf(format, args...))
}

func (v *verifier) run() error {
	fn := v.fn
	entry := fn.Layout.EntryBlock()
	if entry == NoBlock {
		return errors.Malformed(fn.Name, "", "function has no blocks")
	}
	if err := v.typesMatch(fn.BlockParams(entry), fn.Sig.Params); err != nil {
		return v.blockErr(entry, "entry parameters: %v", err)
	}

	seen := make(map[Inst]bool)
	for _, b := range fn.Layout.Blocks() {
		insts := fn.Layout.BlockInsts(b)
		if len(insts) == 0 {
			return v.blockErr(b, "block is empty")
		}
		for n, i := range insts {
			if seen[i] {
				return v.instErr(i, "instruction appears twice in the layout")
			}
			seen[i] = true
			last := n == len(insts)-1
			op := fn.Opcode(i)
			if op.IsTerminator() != last {
				if last {
					return v.instErr(i, "block %s does not end in a terminator", b)
				}
				return v.instErr(i, "terminator %s in the middle of %s", op, b)
			}
			if err := v.inst(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v *verifier) inst(i Inst) error {
	fn := v.fn
	d := fn.Inst(i)
	for _, a := range d.Args {
		if !fn.ValidValue(a) {
			return v.instErr(i, "operand %s is not defined", a)
		}
	}
	for _, r := range d.Results {
		if def := fn.ValueDef(r); def.Kind != DefResult || def.Inst != i {
			return v.instErr(i, "result %s is not defined by this instruction", r)
		}
	}

	switch d.Opcode {
	case OpIadd, OpIsub, OpImul, OpIcmpEq, OpIcmpSlt:
		x, y := fn.ValueType(d.Args[0]), fn.ValueType(d.Args[1])
		if !x.IsInt() || x != y {
			return v.instErr(i, "%s needs two operands of one integer type, got %s and %s", d.Opcode, x, y)
		}
	case OpIsNull:
		if t := fn.ValueType(d.Args[0]); !t.IsRef() {
			return v.instErr(i, "is_null on non-reference %s", t)
		}
	case OpSelect:
		if c := fn.ValueType(d.Args[0]); !c.IsInt() {
			return v.instErr(i, "select condition has type %s", c)
		}
		if x, y := fn.ValueType(d.Args[1]), fn.ValueType(d.Args[2]); x != y {
			return v.instErr(i, "select arms differ: %s and %s", x, y)
		}
	case OpFuncAddr:
		if _, ok := fn.Callee(d.Callee); !ok {
			return v.instErr(i, "reference to undeclared %s", d.Callee)
		}
	case OpCall:
		callee, ok := fn.Callee(d.Callee)
		if !ok {
			return v.instErr(i, "call to undeclared %s", d.Callee)
		}
		if err := v.typesMatch(d.Args, callee.Sig.Params); err != nil {
			return v.instErr(i, "call arguments: %v", err)
		}
	case OpBrif:
		if c := fn.ValueType(d.Args[0]); !c.IsInt() {
			return v.instErr(i, "branch condition has type %s", c)
		}
	case OpReturn:
		if err := v.typesMatch(d.Args, fn.Sig.Returns); err != nil {
			return v.instErr(i, "return values: %v", err)
		}
	case OpRegmove, OpRegspill, OpRegfill:
		if !d.Src.IsAssigned() || !d.Dst.IsAssigned() {
			return v.instErr(i, "%s needs assigned source and destination", d.Opcode)
		}
	}

	for _, dest := range d.Dests {
		if !fn.Layout.IsBlockInserted(dest.Block) {
			return v.instErr(i, "branch to %s which is not in the layout", dest.Block)
		}
		for _, a := range dest.Args {
			if !fn.ValidValue(a) {
				return v.instErr(i, "branch argument %s is not defined", a)
			}
		}
		if err := v.typesMatch(dest.Args, v.paramTypes(dest.Block)); err != nil {
			return v.instErr(i, "arguments to %s: %v", dest.Block, err)
		}
	}
	return nil
}

func (v *verifier) paramTypes(b Block) []Type {
	params := v.fn.BlockParams(b)
	types := make([]Type, len(params))
	for n, p := range params {
		types[n] = v.fn.ValueType(p)
	}
	return types
}

func (v *verifier) typesMatch(vals []Value, want []Type) error {
	if len(vals) != len(want) {
		return fmt.Errorf("got %d values, want %d", len(vals), len(want))
	}
	for n, val := range vals {
		if got := v.fn.ValueType(val); got != want[n] {
			return fmt.Errorf("%s has type %s, want %s", val, got, want[n])
		}
	}
	return nil
}
