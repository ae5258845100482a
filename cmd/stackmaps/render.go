package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/compile"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/stackmap"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// renderer writes the tool's report, styled when the output is a terminal.
type renderer struct {
	w     io.Writer
	color bool
}

func newRenderer(f *os.File) *renderer {
	return &renderer{w: f, color: term.IsTerminal(int(f.Fd()))}
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func (r *renderer) header(path string) {
	if r.color {
		fmt.Fprintln(r.w, titleStyle.Render(path))
		return
	}
	fmt.Fprintf(r.w, "==> %s <==\n", path)
}

func (r *renderer) fileError(path string, err error) {
	fmt.Fprintln(r.w, r.style(errorStyle, fmt.Sprintf("%s: %v", path, err)))
}

func (r *renderer) funcError(name string, err error) {
	fmt.Fprintf(r.w, "function %s: %s\n",
		r.style(funcStyle, "%"+name), r.style(errorStyle, err.Error()))
}

// funcTable prints the stackmap table of one compiled function.
func (r *renderer) funcTable(t *codegen.Target, fr compile.FuncResult) {
	fmt.Fprintf(r.w, "function %s: %d stackmaps\n",
		r.style(funcStyle, "%"+fr.Func.Name), len(fr.Result.Table))
	for _, e := range fr.Result.Table {
		fmt.Fprintf(r.w, "    0x%04x: %s\n", e.Offset, r.style(typeStyle, stackmap.FormatSlots(t, e.Slots)))
	}
}

func (r *renderer) printIR(fn *ir.Function) {
	if err := ir.Fprint(r.w, fn); err != nil {
		return
	}
	fmt.Fprintln(r.w)
}

func (r *renderer) size(name string, size uint32) {
	fmt.Fprintf(r.w, "Function %s code size: %d bytes\n", r.style(funcStyle, "%"+name), size)
}

func (r *renderer) totalSize(size uint32) {
	fmt.Fprintf(r.w, "Total module code size: %d bytes\n", size)
}

// describeRecords lists each recorded value with the instruction that
// defines it.
func describeRecords(fn *ir.Function, records []stackmap.Record) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(fmt.Sprintf("%s %s\n", rec.Inst, fn.DisplayInst(rec.Inst)))
		if len(rec.Values) == 0 {
			b.WriteString("    (no live references)\n")
		}
		for _, v := range rec.Values {
			def := fn.ValueDef(v)
			if def.Kind == ir.DefParam {
				b.WriteString(fmt.Sprintf("    %s: %s param of %s\n", v, fn.ValueType(v), def.Block))
				continue
			}
			b.WriteString(fmt.Sprintf("    %s: %s from %s\n", v, fn.CtrlType(def.Inst), fn.DisplayInst(def.Inst)))
		}
	}
	return b.String()
}
