package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/compile"
	"github.com/mirahmed753/cretonne/stackmap"
)

// Config holds the tool settings. It is read from an optional TOML file;
// command line flags override it.
type Config struct {
	Policy          stackmap.Policy `toml:"policy"`
	Target          string          `toml:"target"`
	Print           bool            `toml:"print"`
	PrintSize       bool            `toml:"print_size"`
	JustDecode      bool            `toml:"just_decode"`
	Check           bool            `toml:"check"`
	ReplaceExplicit bool            `toml:"replace_explicit"`
	Verbose         bool            `toml:"verbose"`
	Workers         int             `toml:"workers"`

	Interactive bool `toml:"-"`
}

func defaultConfig() Config {
	opts := compile.DefaultOptions()
	return Config{
		Policy: opts.Policy,
		Target: opts.Target,
	}
}

// loadConfig reads a TOML settings file over the defaults. Unknown keys are
// rejected.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) compileOptions() compile.Options {
	opts := compile.DefaultOptions()
	opts.Policy = c.Policy
	opts.Target = c.Target
	opts.ReplaceExplicit = c.ReplaceExplicit
	return opts
}

// parseArgs reads flags and the optional config file. It returns the
// merged settings and the input files.
func parseArgs(args []string, stderr io.Writer) (Config, []string, error) {
	fs := flag.NewFlagSet("stackmaps", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: stackmaps [flags] <file.wasm|file.clif>...")
		fs.PrintDefaults()
	}

	flags := defaultConfig()
	configPath := fs.String("config", "", "TOML settings file")
	fs.TextVar(&flags.Policy, "policy", flags.Policy, "safepoint policy: call-sites, loop-headers or explicit-markers")
	fs.StringVar(&flags.Target, "target", flags.Target, fmt.Sprintf("target instruction set %v", codegen.TargetNames()))
	fs.BoolVar(&flags.Print, "print", false, "print the IR after inserting stackmaps")
	fs.BoolVar(&flags.PrintSize, "print-size", false, "print per-function and total code sizes")
	fs.BoolVar(&flags.JustDecode, "just-decode", false, "translate only, without running the pass")
	fs.BoolVar(&flags.Check, "check", false, "validate wasm modules before translating")
	fs.BoolVar(&flags.ReplaceExplicit, "replace-explicit", false, "remove explicit safepoints once marked")
	fs.BoolVar(&flags.Verbose, "v", false, "verbose logging")
	fs.IntVar(&flags.Workers, "workers", 0, "parallel compilations per module (0 = GOMAXPROCS)")
	fs.BoolVar(&flags.Interactive, "i", false, "browse the results interactively")

	if err := fs.Parse(args); err != nil {
		return Config{}, nil, err
	}

	cfg := defaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = loadConfig(*configPath); err != nil {
			return Config{}, nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "policy":
			cfg.Policy = flags.Policy
		case "target":
			cfg.Target = flags.Target
		case "print":
			cfg.Print = flags.Print
		case "print-size":
			cfg.PrintSize = flags.PrintSize
		case "just-decode":
			cfg.JustDecode = flags.JustDecode
		case "check":
			cfg.Check = flags.Check
		case "replace-explicit":
			cfg.ReplaceExplicit = flags.ReplaceExplicit
		case "v":
			cfg.Verbose = flags.Verbose
		case "workers":
			cfg.Workers = flags.Workers
		case "i":
			cfg.Interactive = flags.Interactive
		}
	})

	if fs.NArg() == 0 {
		fs.Usage()
		return Config{}, nil, fmt.Errorf("no input files")
	}
	return cfg, fs.Args(), nil
}
