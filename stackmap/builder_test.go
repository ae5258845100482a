package stackmap

import (
	"bytes"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mirahmed753/cretonne/analysis"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/internal/bitset"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/liveness"
)

type fixture struct {
	fn   *ir.Function
	cfg  *analysis.CFG
	dt   *analysis.DomTree
	live *liveness.Liveness
}

func prepare(t *testing.T, src string) *fixture {
	t.Helper()
	fn, err := ir.ParseFunction(src)
	if err != nil {
		t.Fatalf("ParseFunction: %v", err)
	}
	if err := ir.Verify(fn); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	cfg := analysis.NewCFG(fn)
	dt := analysis.NewDomTree(fn, cfg)
	if err := analysis.VerifyDominance(fn, dt); err != nil {
		t.Fatalf("VerifyDominance: %v", err)
	}
	live, err := liveness.Compute(fn, cfg, dt)
	if err != nil {
		t.Fatalf("liveness.Compute: %v", err)
	}
	return &fixture{fn: fn, cfg: cfg, dt: dt, live: live}
}

func (f *fixture) compute(t *testing.T, policy Policy) []Record {
	t.Helper()
	records, err := Compute(f.fn, f.dt, f.live, Config{Policy: policy})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	return records
}

const scenarioA = `function %a() -> r64 {
    fn0 = %f(r64) -> r64

block0:
    v1 = null.r64
    v2 = call fn0(v1)
    return v2
}`

const scenarioB = `function %b(i32) {
    fn0 = %use(r64)

block0(v0: i32):
    v1 = null.r64
    v2 = null.r64
    brif v0, block1, block2

block1:
    call fn0(v1)
    return

block2:
    call fn0(v2)
    return
}`

const scenarioC = `function %c(r64, i32) {
    fn0 = %g(r64)

block0(v0: r64, v1: i32):
    jump block1

block1:
    brif v1, block2, block3

block2:
    call fn0(v0)
    call fn0(v0)
    call fn0(v0)
    jump block1

block3:
    return
}`

const diamondSrc = `function %d(i32) {
    fn0 = %g(r64)

block0(v0: i32):
    v1 = null.r64
    brif v0, block1, block2

block1:
    jump block3

block2:
    jump block3

block3:
    call fn0(v1)
    return
}`

// mixedSrc combines a loop, a diamond inside the loop, block parameters
// and values that die at different points.
const mixedSrc = `function %mix(r64, r64, i32) -> r64 {
    fn0 = %alloc() -> r64
    fn1 = %use(r64, r64)
    fn2 = %peek(r64) -> i32

block0(v0: r64, v1: r64, v2: i32):
    v3 = call fn0()
    v4 = iconst.i32 0
    jump block1(v3, v4)

block1(v5: r64, v6: i32):
    v7 = call fn2(v5)
    v8 = icmp_slt v6, v2
    brif v8, block2, block4

block2:
    v9 = is_null v0
    brif v9, block3, block5

block3:
    v10 = call fn0()
    call fn1(v10, v1)
    v11 = iconst.i32 1
    v12 = iadd v6, v11
    jump block1(v10, v12)

block5:
    call fn1(v5, v5)
    v13 = iconst.i32 2
    v14 = iadd v6, v13
    jump block1(v5, v14)

block4:
    v15 = select v7, v5, v1
    return v15
}`

func TestCompute_CallRecordsOperandsNotResults(t *testing.T) {
	f := prepare(t, scenarioA)
	records := f.compute(t, CallSites)
	call := f.fn.ValueDef(2).Inst
	want := []Record{{Inst: call, Values: []ir.Value{1}}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
}

func TestTracker_SuccessorsGetDisjointLiveIns(t *testing.T) {
	f := prepare(t, scenarioB)
	tr := NewTracker(f.fn, f.live)

	if err := tr.EnterBlock(0, nil); err != nil {
		t.Fatal(err)
	}
	for _, i := range f.fn.Layout.BlockInsts(0) {
		if err := tr.Process(i); err != nil {
			t.Fatal(err)
		}
		if err := tr.Retire(i); err != nil {
			t.Fatal(err)
		}
	}
	frame := tr.Freeze()
	if diff := cmp.Diff([]ir.Value{1, 2}, frame.Values()); diff != "" {
		t.Fatalf("block0 live-out (-want +got):\n%s", diff)
	}

	tests := []struct {
		block ir.Block
		want  []ir.Value
	}{
		{1, []ir.Value{1}},
		{2, []ir.Value{2}},
	}
	for _, tt := range tests {
		if err := tr.EnterBlock(tt.block, frame); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tt.want, tr.Snapshot()); diff != "" {
			t.Errorf("live into %s (-want +got):\n%s", tt.block, diff)
		}
		for _, v := range []ir.Value{1, 2} {
			if got, want := tr.Has(v), slices.Contains(tt.want, v); got != want {
				t.Errorf("Has(%s) in %s = %v, want %v", v, tt.block, got, want)
			}
		}
	}
	if diff := cmp.Diff([]ir.Value{1, 2}, frame.Values()); diff != "" {
		t.Errorf("entering successors changed the frame (-want +got):\n%s", diff)
	}
}

func TestTracker_MissingLiveIn(t *testing.T) {
	f := prepare(t, diamondSrc)
	tr := NewTracker(f.fn, f.live)
	// Seeding block3 from nothing loses v1, which liveness says is live in.
	err := tr.EnterBlock(3, nil)
	if !errors.Is(err, errors.ErrMissingLivenessInfo) {
		t.Fatalf("EnterBlock = %v, want missing liveness info", err)
	}
	var e *errors.Error
	if !errors.As(err, &e) {
		t.Fatalf("error is %T, want *errors.Error", err)
	}
	want := errors.Error{
		Phase:  errors.PhaseStackmap,
		Kind:   errors.KindMissingLiveness,
		Func:   f.fn.Name,
		Block:  "block3",
		Inst:   f.fn.Layout.FirstInst(3).String(),
		Value:  "v1",
		Detail: e.Detail,
	}
	if diff := cmp.Diff(want, *e); diff != "" {
		t.Errorf("error fields (-want +got):\n%s", diff)
	}
}

func TestCompute_LoopHeaderSingleRecord(t *testing.T) {
	f := prepare(t, scenarioC)

	if got := NewSelector(f.fn, f.dt, LoopHeaders).Policy(); got != LoopHeaders {
		t.Errorf("selector policy = %s, want loop-headers", got)
	}
	records := f.compute(t, LoopHeaders)
	header := f.fn.Layout.FirstInst(1)
	want := []Record{{Inst: header, Values: []ir.Value{0}}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("loop-headers records (-want +got):\n%s", diff)
	}

	if n := len(f.compute(t, CallSites)); n != 3 {
		t.Errorf("call-sites produced %d records, want 3", n)
	}
}

// naiveRecords seeds each block only from predecessors already visited
// in CFG postorder, the way a scan that ignores dominance would.
func naiveRecords(f *fixture) []Record {
	fn := f.fn
	exits := make(map[ir.Block]*bitset.BitSet)
	var records []Record
	for _, b := range analysis.Postorder(fn, f.cfg) {
		set := bitset.New(fn.NumValues())
		for _, p := range f.cfg.Preds(b) {
			if out, ok := exits[p.Block]; ok {
				set.Union(out)
			}
		}
		for _, p := range fn.BlockParams(b) {
			set.Set(uint32(p))
		}
		for _, i := range fn.Layout.BlockInsts(b) {
			if fn.Opcode(i).IsCall() {
				var vals []ir.Value
				set.ForEach(func(v uint32) {
					if fn.ValueType(ir.Value(v)).IsRef() {
						vals = append(vals, ir.Value(v))
					}
				})
				records = append(records, Record{Inst: i, Values: vals})
			}
			for _, r := range fn.InstResults(i) {
				set.Set(uint32(r))
			}
		}
		exits[b] = set
	}
	return records
}

func TestCompute_DominanceConsistency(t *testing.T) {
	f := prepare(t, diamondSrc)
	call := f.fn.Layout.FirstInst(3)

	records := f.compute(t, CallSites)
	want := []Record{{Inst: call, Values: []ir.Value{1}}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}

	naive := naiveRecords(f)
	if len(naive) != 1 || len(naive[0].Values) != 0 {
		t.Fatalf("expected predecessor-only propagation to miss v1, got %v", naive)
	}
}

// expectedAt lists every reference value whose live range covers inst.
func expectedAt(f *fixture, inst ir.Inst) []ir.Value {
	var vals []ir.Value
	for v, n := 0, f.fn.NumValues(); v < n; v++ {
		val := ir.Value(v)
		r, ok := f.live.Range(val)
		if ok && f.fn.ValueType(val).IsRef() && r.Covers(inst) {
			vals = append(vals, val)
		}
	}
	return vals
}

func TestCompute_SoundAndPrecise(t *testing.T) {
	fixtures := []struct {
		name string
		src  string
	}{
		{"scenarioA", scenarioA},
		{"scenarioB", scenarioB},
		{"scenarioC", scenarioC},
		{"diamond", diamondSrc},
		{"mixed", mixedSrc},
	}
	for _, fx := range fixtures {
		for _, policy := range []Policy{CallSites, LoopHeaders} {
			t.Run(fx.name+"/"+policy.String(), func(t *testing.T) {
				f := prepare(t, fx.src)
				for _, r := range f.compute(t, policy) {
					want := expectedAt(f, r.Inst)
					if diff := cmp.Diff(want, r.Values); diff != "" {
						t.Errorf("record at %s (-covering +recorded):\n%s", f.fn.DisplayInst(r.Inst), diff)
					}
				}
			})
		}
	}
}

func TestCompute_Mixed(t *testing.T) {
	f := prepare(t, mixedSrc)
	records := f.compute(t, CallSites)

	byResult := func(v ir.Value) ir.Inst { return f.fn.ValueDef(v).Inst }
	want := []Record{
		{Inst: byResult(3), Values: []ir.Value{0, 1}},
		{Inst: byResult(7), Values: []ir.Value{0, 1, 5}},
		{Inst: byResult(10), Values: []ir.Value{0, 1}},
		{Inst: f.fn.Layout.NextInst(byResult(10)), Values: []ir.Value{0, 1, 10}},
		{Inst: f.fn.Layout.FirstInst(5), Values: []ir.Value{0, 1, 5}},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}

	loops := f.compute(t, LoopHeaders)
	if diff := cmp.Diff([]Record{{Inst: byResult(7), Values: []ir.Value{0, 1, 5}}}, loops); diff != "" {
		t.Errorf("loop-headers records (-want +got):\n%s", diff)
	}
}

func TestCompute_EmptyRecord(t *testing.T) {
	f := prepare(t, `function %e() {
    fn0 = %g()

block0:
    call fn0()
    return
}`)
	records := f.compute(t, CallSites)
	if len(records) != 1 || len(records[0].Values) != 0 {
		t.Fatalf("want one empty record, got %v", records)
	}
}

func TestCompute_ExplicitMarkers(t *testing.T) {
	f := prepare(t, `function %e(r64) -> r64 {
    fn0 = %g()

block0(v0: r64):
    v1 = null.r64
    call fn0()
    safepoint
    v2 = copy v1
    return v0
}`)
	records := f.compute(t, ExplicitMarkers)
	if len(records) != 1 || f.fn.Opcode(records[0].Inst) != ir.OpSafepoint {
		t.Fatalf("want one record at the safepoint, got %v", records)
	}
	if diff := cmp.Diff([]ir.Value{0, 1}, records[0].Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestCompute_CustomRefTypes(t *testing.T) {
	f := prepare(t, scenarioA)
	records, err := Compute(f.fn, f.dt, f.live, Config{
		Policy: CallSites,
		IsRef:  func(ir.Type) bool { return false },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || len(records[0].Values) != 0 {
		t.Errorf("records = %v, want one empty record", records)
	}
}

func TestCompute_Deterministic(t *testing.T) {
	render := func() []byte {
		f := prepare(t, mixedSrc)
		var buf bytes.Buffer
		if err := Format(&buf, f.fn, f.compute(t, CallSites)); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}
	first := render()
	for i := 0; i < 5; i++ {
		if got := render(); !bytes.Equal(first, got) {
			t.Fatalf("output differs between runs:\n%s\n---\n%s", first, got)
		}
	}
}

func TestCompute_Idempotent(t *testing.T) {
	for _, policy := range []Policy{CallSites, LoopHeaders} {
		t.Run(policy.String(), func(t *testing.T) {
			f := prepare(t, mixedSrc)
			before := f.compute(t, policy)
			if _, err := Apply(f.fn, before, ApplyOptions{}); err != nil {
				t.Fatal(err)
			}

			after, err := ComputeStackmaps(f.fn, policy)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(before, after); diff != "" {
				t.Errorf("records changed after applying markers (-before +after):\n%s", diff)
			}
		})
	}
}

func TestCompute_UnreachableSafepoint(t *testing.T) {
	fn, err := ir.ParseFunction(`function %u() {
    fn0 = %g()

block0:
    return

block1:
    call fn0()
    return
}`)
	if err != nil {
		t.Fatal(err)
	}
	_, err = ComputeStackmaps(fn, CallSites)
	if !errors.Is(err, errors.ErrUnreachableBlockQueried) {
		t.Fatalf("ComputeStackmaps = %v, want unreachable block error", err)
	}
	var e *errors.Error
	if errors.As(err, &e) && (e.Func != "u" || e.Inst == "") {
		t.Errorf("error does not name the function and safepoint: %v", err)
	}
}

func TestFormat(t *testing.T) {
	f := prepare(t, scenarioA)
	var buf bytes.Buffer
	if err := Format(&buf, f.fn, f.compute(t, CallSites)); err != nil {
		t.Fatal(err)
	}
	want := "inst1 v2 = call fn0(v1): [v1]\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("Format (-want +got):\n%s", diff)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", CallSites, false},
		{"call-sites", CallSites, false},
		{"loop-headers", LoopHeaders, false},
		{"explicit-markers", ExplicitMarkers, false},
		{"everywhere", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParsePolicy(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}

	var p Policy
	if err := p.UnmarshalText([]byte("loop-headers")); err != nil || p != LoopHeaders {
		t.Errorf("UnmarshalText = %s, %v", p, err)
	}
	text, err := ExplicitMarkers.MarshalText()
	if err != nil || string(text) != "explicit-markers" {
		t.Errorf("MarshalText = %q, %v", text, err)
	}
}
