package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/mirahmed753/cretonne/stackmap"
)

const clifSrc = `function %alloc_pair(r64) -> r64 {
    fn0 = %alloc() -> r64
    fn1 = %link(r64, r64)

block0(v0: r64):
    v1 = call fn0()
    call fn1(v0, v1)
    return v1
}

function %bad(r64) -> i32 {
block0(v0: r64):
    return v0
}
`

// emptyWasm is a module with one function of type [] -> [] and an empty body.
var emptyWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	0x03, 0x02, 0x01, 0x00,
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseArgs(t *testing.T) {
	cfgPath := writeFile(t, "stackmaps.toml", []byte(`
policy = "loop-headers"
target = "x86_64"
print_size = true
workers = 3
`))

	tests := []struct {
		name  string
		args  []string
		want  Config
		files []string
	}{
		{
			name:  "defaults",
			args:  []string{"a.clif"},
			want:  defaultConfig(),
			files: []string{"a.clif"},
		},
		{
			name: "flags",
			args: []string{"-policy", "explicit-markers", "-print", "-check", "-replace-explicit", "-i", "a.wasm", "b.clif"},
			want: Config{
				Policy:          stackmap.ExplicitMarkers,
				Target:          defaultConfig().Target,
				Print:           true,
				Check:           true,
				ReplaceExplicit: true,
				Interactive:     true,
			},
			files: []string{"a.wasm", "b.clif"},
		},
		{
			name: "config file",
			args: []string{"-config", cfgPath, "a.clif"},
			want: Config{
				Policy:    stackmap.LoopHeaders,
				Target:    "x86_64",
				PrintSize: true,
				Workers:   3,
			},
			files: []string{"a.clif"},
		},
		{
			name: "flags override config file",
			args: []string{"-config", cfgPath, "-policy", "call-sites", "-workers", "1", "a.clif"},
			want: Config{
				Policy:    stackmap.CallSites,
				Target:    "x86_64",
				PrintSize: true,
				Workers:   1,
			},
			files: []string{"a.clif"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, files, err := parseArgs(tt.args, io.Discard)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, cfg); diff != "" {
				t.Errorf("config (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.files, files); diff != "" {
				t.Errorf("files (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseArgs_Errors(t *testing.T) {
	badCfg := writeFile(t, "bad.toml", []byte("colour = true\n"))
	tests := []struct {
		name string
		args []string
	}{
		{"no files", nil},
		{"bad policy", []string{"-policy", "everywhere", "a.clif"}},
		{"unknown config key", []string{"-config", badCfg, "a.clif"}},
		{"missing config", []string{"-config", filepath.Join(t.TempDir(), "none.toml"), "a.clif"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := parseArgs(tt.args, io.Discard); err == nil {
				t.Error("parseArgs succeeded")
			}
		})
	}
}

func runTool(t *testing.T, cfg Config, files ...string) (*report, string) {
	t.Helper()
	var out bytes.Buffer
	rep, err := run(context.Background(), cfg, files, &renderer{w: &out})
	if err != nil {
		t.Fatal(err)
	}
	return rep, out.String()
}

func TestRun(t *testing.T) {
	clif := writeFile(t, "pair.clif", []byte(clifSrc))
	wasm := writeFile(t, "empty.wasm", emptyWasm)

	cfg := defaultConfig()
	cfg.Check = true
	cfg.PrintSize = true
	rep, out := runTool(t, cfg, clif, wasm)

	if rep.failed != 1 {
		t.Errorf("failed = %d, want 1", rep.failed)
	}
	for _, want := range []string{
		"==> " + clif + " <==\n",
		"function %alloc_pair: 2 stackmaps\n",
		"function %bad: ",
		"Function %alloc_pair code size: ",
		"==> " + wasm + " <==\n",
		"function %f0: 0 stackmaps\n",
		"Total module code size: ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "%bad") > strings.Index(out, wasm+" <==") {
		t.Errorf("functions reported out of order:\n%s", out)
	}
}

func TestRun_JustDecode(t *testing.T) {
	clif := writeFile(t, "pair.clif", []byte(clifSrc))
	cfg := defaultConfig()
	cfg.JustDecode = true
	cfg.Print = true
	rep, out := runTool(t, cfg, clif)

	if rep.failed != 0 {
		t.Errorf("failed = %d, want 0", rep.failed)
	}
	if !strings.Contains(out, "function %bad(r64) -> i32 {") {
		t.Errorf("IR not printed:\n%s", out)
	}
	if strings.Contains(out, "stackmaps") || strings.Contains(out, "stackmap ") {
		t.Errorf("pass ran in decode-only mode:\n%s", out)
	}
}

func TestRun_BadFiles(t *testing.T) {
	unknown := writeFile(t, "notes.txt", []byte("hello"))
	corrupt := writeFile(t, "corrupt.wasm", emptyWasm[:len(emptyWasm)-2])
	missing := filepath.Join(t.TempDir(), "missing.clif")

	rep, out := runTool(t, defaultConfig(), unknown, corrupt, missing)
	if rep.failed != 3 || len(rep.files) != 0 {
		t.Errorf("failed = %d, files = %d, want 3 and 0", rep.failed, len(rep.files))
	}
	for _, path := range []string{unknown, corrupt, missing} {
		if !strings.Contains(out, path+": ") {
			t.Errorf("no error reported for %s:\n%s", path, out)
		}
	}
}

func TestBrowserModel(t *testing.T) {
	clif := writeFile(t, "pair.clif", []byte(clifSrc))
	rep, _ := runTool(t, defaultConfig(), clif)
	m := newBrowserModel(rep)

	if len(m.visible) != 2 {
		t.Fatalf("visible = %v, want both functions", m.visible)
	}
	if e, _ := m.current(); e.name() != "alloc_pair" {
		t.Errorf("selected %s, want alloc_pair", e.name())
	}
	if d := m.describe(m.entries[0]); !strings.Contains(d, "Safepoints:") || !strings.Contains(d, "v1: r64 from v1 = call fn0()") {
		t.Errorf("detail pane:\n%s", d)
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if e, _ := m.current(); e.name() != "bad" {
		t.Errorf("after down selected %s, want bad", e.name())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("pair")})
	if len(m.visible) != 1 || m.selected != 0 {
		t.Fatalf("after filter visible = %v, selected = %d", m.visible, m.selected)
	}
	if e, _ := m.current(); e.name() != "alloc_pair" {
		t.Errorf("filtered selection %s, want alloc_pair", e.name())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("zzz")})
	if _, ok := m.current(); ok {
		t.Error("filter matching nothing still has a selection")
	}
	if !strings.Contains(m.View(), "no matching functions") {
		t.Errorf("view:\n%s", m.View())
	}
}
