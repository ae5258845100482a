package ir

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// String renders the function in the text format accepted by Parse.
func (f *Function) String() string {
	var b strings.Builder
	_ = Fprint(&b, f)
	return b.String()
}

// Fprint writes the function in text form.
func Fprint(w io.Writer, f *Function) error {
	bw := bufio.NewWriter(w)

	bw.WriteString("function %")
	bw.WriteString(f.Name)
	writeSig(bw, f.Sig)
	bw.WriteString(" {\n")
	for n, c := range f.Callees {
		bw.WriteString("    ")
		bw.WriteString(FuncRef(n).String())
		bw.WriteString(" = %")
		bw.WriteString(c.Name)
		writeSig(bw, c.Sig)
		bw.WriteByte('\n')
	}

	for bn, blk := range f.Layout.Blocks() {
		if bn > 0 || len(f.Callees) > 0 {
			bw.WriteByte('\n')
		}
		bw.WriteString(blk.String())
		if params := f.BlockParams(blk); len(params) > 0 {
			bw.WriteByte('(')
			for n, p := range params {
				if n > 0 {
					bw.WriteString(", ")
				}
				bw.WriteString(p.String())
				bw.WriteString(": ")
				bw.WriteString(f.ValueType(p).String())
			}
			bw.WriteByte(')')
		}
		bw.WriteString(":\n")
		for _, i := range f.Layout.BlockInsts(blk) {
			bw.WriteString("    ")
			bw.WriteString(f.DisplayInst(i))
			bw.WriteByte('\n')
		}
	}
	bw.WriteString("}\n")
	return bw.Flush()
}

func writeSig(w *bufio.Writer, sig Signature) {
	w.WriteByte('(')
	writeTypes(w, sig.Params)
	w.WriteByte(')')
	if len(sig.Returns) > 0 {
		w.WriteString(" -> ")
		writeTypes(w, sig.Returns)
	}
}

func writeTypes(w *bufio.Writer, types []Type) {
	for n, t := range types {
		if n > 0 {
			w.WriteString(", ")
		}
		w.WriteString(t.String())
	}
}

// DisplayInst renders a single instruction, including its results.
func (f *Function) DisplayInst(i Inst) string {
	d := f.Inst(i)
	var b strings.Builder
	if len(d.Results) > 0 {
		writeValues(&b, d.Results)
		b.WriteString(" = ")
	}
	b.WriteString(d.Opcode.String())

	switch d.Opcode.Format() {
	case FormatNullary:
	case FormatNullaryTyped:
		b.WriteByte('.')
		b.WriteString(d.Type.String())
	case FormatUnaryImm:
		b.WriteByte('.')
		b.WriteString(d.Type.String())
		b.WriteByte(' ')
		b.WriteString(strconv.FormatInt(d.Imm, 10))
	case FormatFuncAddr:
		b.WriteByte('.')
		b.WriteString(d.Type.String())
		b.WriteByte(' ')
		b.WriteString(d.Callee.String())
	case FormatCall:
		b.WriteByte(' ')
		b.WriteString(d.Callee.String())
		b.WriteByte('(')
		writeValues(&b, d.Args)
		b.WriteByte(')')
	case FormatJump:
		b.WriteByte(' ')
		writeBlockCall(&b, d.Dests[0])
	case FormatBrif:
		b.WriteByte(' ')
		b.WriteString(d.Args[0].String())
		for _, dest := range d.Dests {
			b.WriteString(", ")
			writeBlockCall(&b, dest)
		}
	case FormatRegMove:
		b.WriteByte(' ')
		b.WriteString(d.Args[0].String())
		b.WriteString(", ")
		b.WriteString(d.Src.String())
		b.WriteString(" -> ")
		b.WriteString(d.Dst.String())
	default:
		if len(d.Args) > 0 {
			b.WriteByte(' ')
			writeValues(&b, d.Args)
		}
	}
	return b.String()
}

func writeValues(b *strings.Builder, vs []Value) {
	for n, v := range vs {
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
}

func writeBlockCall(b *strings.Builder, bc BlockCall) {
	b.WriteString(bc.Block.String())
	if len(bc.Args) > 0 {
		b.WriteByte('(')
		writeValues(b, bc.Args)
		b.WriteByte(')')
	}
}
