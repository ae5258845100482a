package codegen

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
)

func mustParse(t *testing.T, src string) *ir.Function {
	t.Helper()
	fn, err := ir.ParseFunction(src)
	if err != nil {
		t.Fatalf("ParseFunction: %v", err)
	}
	return fn
}

func TestLookupTarget(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"x86_64", "x86_64", false},
		{"amd64", "x86_64", false},
		{"riscv64", "riscv64", false},
		{"aarch64", "arm64", false},
		{"arm64", "arm64", false},
		{"vax", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tgt, err := LookupTarget(tt.name)
			if tt.wantErr {
				if !errors.Is(err, &errors.Error{Kind: errors.KindNotFound}) {
					t.Fatalf("err = %v, want not_found", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if tgt.Name != tt.want {
				t.Errorf("Name = %s, want %s", tgt.Name, tt.want)
			}
		})
	}
}

func TestTarget_InstSize(t *testing.T) {
	for _, name := range TargetNames() {
		tgt, _ := LookupTarget(name)
		for _, op := range []ir.Opcode{ir.OpStackmap, ir.OpSafepoint} {
			if n := tgt.InstSize(op); n != 0 {
				t.Errorf("%s: %s has size %d, want 0", name, op, n)
			}
		}
		if n := tgt.InstSize(ir.OpCall); n == 0 {
			t.Errorf("%s: call has no size", name)
		}
	}
}

func TestTarget_FormatLoc(t *testing.T) {
	tgt, _ := LookupTarget("x86_64")
	tests := []struct {
		loc  ir.ValueLoc
		want string
	}{
		{ir.RegLoc(7), "%rdi"},
		{ir.StackLoc(3), "ss3"},
		{ir.ValueLoc{}, "-"},
	}
	for _, tt := range tests {
		if got := tgt.FormatLoc(tt.loc); got != tt.want {
			t.Errorf("FormatLoc(%v) = %q, want %q", tt.loc, got, tt.want)
		}
	}
}

func TestAssignLocations(t *testing.T) {
	fn := mustParse(t, `function %f(r64, i32) -> r64 {
block0(v0: r64, v1: i32):
    v2 = null.r64
    jump block1(v2)

block1(v3: r64):
    return v3
}`)
	tgt := &Target{
		Name:        "tiny",
		Regs:        []string{"a", "b", "c"},
		ArgRegs:     []uint32{0, 1},
		CalleeSaved: []uint32{2},
	}
	locs := AssignLocations(fn, tgt)
	want := Locations{ir.RegLoc(0), ir.RegLoc(1), ir.RegLoc(2), ir.StackLoc(0)}
	if diff := cmp.Diff(want, locs); diff != "" {
		t.Errorf("locations (-want +got):\n%s", diff)
	}
}

func TestDiversions(t *testing.T) {
	home := ir.RegLoc(1)
	d := NewDiversions()
	v := ir.Value(4)

	if err := d.Divert(v, home, home, ir.StackLoc(2)); err != nil {
		t.Fatal(err)
	}
	if got := d.Location(v, home); got != ir.StackLoc(2) {
		t.Errorf("Location = %v, want ss2", got)
	}
	if err := d.Divert(v, home, home, ir.RegLoc(3)); err == nil {
		t.Error("diversion from a stale location accepted")
	}
	if err := d.Divert(v, home, ir.StackLoc(2), home); err != nil {
		t.Fatal(err)
	}
	if d.Len() != 0 {
		t.Errorf("moving home left %d diversions", d.Len())
	}

	if err := d.Divert(v, home, home, ir.RegLoc(5)); err != nil {
		t.Fatal(err)
	}
	d.Clear()
	if got := d.Location(v, home); got != home {
		t.Errorf("after Clear, Location = %v, want home", got)
	}
}

func TestEncode(t *testing.T) {
	fn := mustParse(t, `function %f(r64) -> r64 {
    fn0 = %g(r64) -> r64

block0(v0: r64):
    stackmap v0
    v1 = call fn0(v0)
    jump block1

block1:
    return v1
}`)
	tgt, _ := LookupTarget("x86_64")
	enc, err := Encode(fn, tgt, AssignLocations(fn, tgt))
	if err != nil {
		t.Fatal(err)
	}
	insts := append(fn.Layout.BlockInsts(0), fn.Layout.BlockInsts(1)...)
	var got []uint32
	for _, i := range insts {
		got = append(got, enc.Offset(i))
	}
	// stackmap (0) call (5) jump (5) return (1)
	if diff := cmp.Diff([]uint32{0, 0, 5, 10}, got); diff != "" {
		t.Errorf("offsets (-want +got):\n%s", diff)
	}
	if enc.Size != 11 {
		t.Errorf("Size = %d, want 11", enc.Size)
	}
}

func TestEncode_BadDiversion(t *testing.T) {
	fn := mustParse(t, `function %f(r64) {
block0(v0: r64):
    regmove v0, %3 -> ss0
    return
}`)
	tgt, _ := LookupTarget("x86_64")
	_, err := Encode(fn, tgt, AssignLocations(fn, tgt))
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want *errors.Error", err)
	}
	if e.Phase != errors.PhaseEmit || e.Func != "f" || e.Inst == "" {
		t.Errorf("unexpected error %+v", e)
	}
}

func TestEncode_DiversionsResetPerBlock(t *testing.T) {
	// v0 lives in %rdi; block1 must see it at home again.
	fn := mustParse(t, `function %f(r64) {
block0(v0: r64):
    regspill v0, %7 -> ss5
    jump block1

block1:
    regspill v0, %7 -> ss6
    return
}`)
	tgt, _ := LookupTarget("x86_64")
	if _, err := Encode(fn, tgt, AssignLocations(fn, tgt)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
}
