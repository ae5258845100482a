// Command stackmaps translates WebAssembly modules or text IR files,
// computes stackmaps for every function and prints the resulting tables.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/compile"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/frontend"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/stackmap"
)

func main() {
	cfg, files, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if cfg.Verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		compile.SetLogger(logger)
		stackmap.SetLogger(logger)
		frontend.SetLogger(logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := run(ctx, cfg, files, newRenderer(os.Stdout))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Interactive {
		if err := runInteractive(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if report.failed > 0 {
		os.Exit(1)
	}
}

// fileResult holds the outcome of one input file.
type fileResult struct {
	path  string
	funcs []compile.FuncResult
}

type report struct {
	target *codegen.Target
	files  []fileResult
	// failed counts failed functions and unreadable files.
	failed int
}

// run processes every file in order. A file or function that fails is
// reported and counted; the remaining inputs are still processed.
func run(ctx context.Context, cfg Config, files []string, r *renderer) (*report, error) {
	c, err := compile.NewContext(cfg.compileOptions())
	if err != nil {
		return nil, err
	}
	rep := &report{target: c.Target()}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		r.header(path)
		fr, err := processFile(ctx, cfg, c.Target(), path, r)
		if err != nil {
			r.fileError(path, err)
			rep.failed++
			continue
		}
		rep.files = append(rep.files, fr)
		for _, f := range fr.funcs {
			if f.Err != nil {
				rep.failed++
			}
		}
	}
	return rep, nil
}

func processFile(ctx context.Context, cfg Config, t *codegen.Target, path string, r *renderer) (fileResult, error) {
	funcs, err := loadFuncs(ctx, cfg, t, path)
	if err != nil {
		return fileResult{}, err
	}
	fr := fileResult{path: path}

	if cfg.JustDecode {
		for _, fn := range funcs {
			fr.funcs = append(fr.funcs, compile.FuncResult{Func: fn})
			if cfg.Print {
				r.printIR(fn)
			}
		}
		return fr, nil
	}

	fr.funcs, err = compile.CompileModule(ctx, funcs, cfg.compileOptions(), cfg.Workers)
	if err != nil {
		return fileResult{}, err
	}

	var total uint32
	for _, res := range fr.funcs {
		if res.Err != nil {
			r.funcError(res.Func.Name, res.Err)
			continue
		}
		r.funcTable(t, res)
		if cfg.Print {
			r.printIR(res.Func)
		}
		if cfg.PrintSize {
			r.size(res.Func.Name, res.Result.Size)
			total += res.Result.Size
		}
	}
	if cfg.PrintSize {
		r.totalSize(total)
	}
	return fr, nil
}

// loadFuncs reads the functions of a .wasm module or a .clif text file.
func loadFuncs(ctx context.Context, cfg Config, t *codegen.Target, path string) ([]*ir.Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".wasm":
		if cfg.Check {
			if err := frontend.Validate(ctx, data); err != nil {
				return nil, err
			}
		}
		return frontend.TranslateBytes(data, frontend.Options{RefType: t.RefType()})
	case ".clif":
		return ir.Parse(string(data))
	}
	return nil, errors.InvalidInput(errors.PhaseParse, "unknown file type "+filepath.Ext(path))
}
