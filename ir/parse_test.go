package ir

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mirahmed753/cretonne/errors"
)

const roundTripSrc = `function %f(r64, i32) -> r64 {
    fn0 = %g(r64) -> r64
    fn1 = %h()

block0(v0: r64, v1: i32):
    v2 = iconst.i32 -7
    v3 = iadd v1, v2
    brif v3, block1, block2(v0)

block1:
    v4 = call fn0(v0)
    safepoint v4
    call fn1()
    jump block2(v4)

block2(v5: r64):
    v6 = null.r64
    v7 = is_null v5
    v8 = select v7, v6, v5
    stackmap v8
    regmove v8, %0 -> ss3
    return v8
}
`

func TestParse_RoundTrip(t *testing.T) {
	fn, err := ParseFunction(roundTripSrc)
	if err != nil {
		t.Fatalf("ParseFunction: %v", err)
	}
	if diff := cmp.Diff(roundTripSrc, fn.String()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if err := Verify(fn); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestParse_PreservesNumbers(t *testing.T) {
	src := `function %sparse() -> i64 {
block4:
    v10 = iconst.i64 3
    jump block9(v10)

block9(v20: i64):
    return v20
}
`
	fn, err := ParseFunction(src)
	if err != nil {
		t.Fatal(err)
	}
	if got := fn.Layout.EntryBlock(); got != 4 {
		t.Errorf("entry = %s, want block4", got)
	}
	if got := fn.ValueType(20); got != I64 {
		t.Errorf("type of v20 = %s, want i64", got)
	}
	if fn.ValidValue(11) {
		t.Error("v11 should not be defined")
	}
	if diff := cmp.Diff(src, fn.String()); diff != "" {
		t.Errorf("print mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_ForwardReference(t *testing.T) {
	// v3 is used by a block that precedes its definition in the text.
	src := `function %fwd(i32) {
block0(v0: i32):
    jump block2

block1:
    v4 = iadd v3, v3
    return

block2:
    v3 = copy v0
    jump block1
}
`
	fn, err := ParseFunction(src)
	if err != nil {
		t.Fatal(err)
	}
	if got := fn.ValueType(4); got != I32 {
		t.Errorf("type of v4 = %s, want i32", got)
	}
}

func TestParse_Comments(t *testing.T) {
	src := `; leading comment
function %c() {
block0: ; the entry
    trap
}`
	funcs, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	if len(funcs) != 1 || funcs[0].Name != "c" {
		t.Fatalf("got %d functions", len(funcs))
	}
}

func TestParse_MultipleFunctions(t *testing.T) {
	src := `function %a() {
block0:
    return
}
function %b() {
block0:
    trap
}`
	funcs, err := Parse(src)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range funcs {
		names = append(names, f.Name)
	}
	if diff := cmp.Diff([]string{"a", "b"}, names); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if _, err := ParseFunction(src); err == nil {
		t.Error("ParseFunction accepted two functions")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		contains string
		line     int
	}{
		{
			name:     "unknown opcode",
			src:      "function %f() {\nblock0:\n    frobnicate\n}",
			contains: "unknown opcode",
			line:     3,
		},
		{
			name:     "undefined value",
			src:      "function %f() -> i32 {\nblock0:\n    return v9\n}",
			contains: "undefined value v9",
			line:     4,
		},
		{
			name:     "undefined block",
			src:      "function %f() {\nblock0:\n    jump block3\n}",
			contains: "undefined block block3",
			line:     3,
		},
		{
			name:     "value defined twice",
			src:      "function %f() {\nblock0:\n    v0 = iconst.i32 1\n    v0 = iconst.i32 2\n    return\n}",
			contains: "defined twice",
			line:     4,
		},
		{
			name:     "missing type suffix",
			src:      "function %f() {\nblock0:\n    v0 = null\n    return\n}",
			contains: "needs a type suffix",
			line:     3,
		},
		{
			name:     "undeclared callee",
			src:      "function %f() {\nblock0:\n    call fn2()\n    return\n}",
			contains: "undeclared callee",
			line:     3,
		},
		{
			name:     "unterminated",
			src:      "function %f() {\nblock0:\n    return\n",
			contains: "unterminated",
			line:     4,
		},
		{
			name:     "empty name",
			src:      "function % () {\nblock0:\n    return\n}",
			contains: "empty name after '%'",
			line:     1,
		},
		{
			name:     "bad character",
			src:      "function %f() {\n  @\n}",
			contains: "unexpected character",
			line:     2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.src)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err, tt.contains)
			}
			var e *errors.Error
			if !errors.As(err, &e) {
				t.Fatalf("error is %T, want *errors.Error", err)
			}
			if e.Kind != errors.KindSyntax {
				t.Errorf("kind = %s, want %s", e.Kind, errors.KindSyntax)
			}
			if e.Line != tt.line {
				t.Errorf("line = %d, want %d", e.Line, tt.line)
			}
		})
	}
}
