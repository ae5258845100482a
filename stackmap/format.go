package stackmap

import (
	"fmt"
	"io"
	"strings"

	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/ir"
)

// Format writes one line per record:
//
//	inst4 v5 = call fn0(v1): [v1, v3]
func Format(w io.Writer, fn *ir.Function, records []Record) error {
	for _, r := range records {
		if _, err := fmt.Fprintf(w, "%s %s: [%s]\n", r.Inst, fn.DisplayInst(r.Inst), joinValues(r.Values)); err != nil {
			return err
		}
	}
	return nil
}

// FormatTable writes one line per table entry:
//
//	0x0005: %rdi r64, ss3 r64
func FormatTable(w io.Writer, t *codegen.Target, table []TableEntry) error {
	for _, e := range table {
		if _, err := fmt.Fprintf(w, "0x%04x: %s\n", e.Offset, FormatSlots(t, e.Slots)); err != nil {
			return err
		}
	}
	return nil
}

// FormatSlots renders slots as "loc type" pairs; "-" for an empty entry.
func FormatSlots(t *codegen.Target, slots []Slot) string {
	if len(slots) == 0 {
		return "-"
	}
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = t.FormatLoc(s.Loc) + " " + s.Type.String()
	}
	return strings.Join(parts, ", ")
}

func joinValues(vals []ir.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
