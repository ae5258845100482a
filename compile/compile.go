// Package compile drives the stackmap pass over single functions and whole
// modules.
//
// A Context holds the immutable settings of one compilation: the safepoint
// policy and the target. Compile runs the full per-function pipeline, and
// CompileModule runs it over independent functions in parallel, isolating
// each function's failure from the rest.
package compile

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mirahmed753/cretonne/analysis"
	"github.com/mirahmed753/cretonne/codegen"
	"github.com/mirahmed753/cretonne/errors"
	"github.com/mirahmed753/cretonne/ir"
	"github.com/mirahmed753/cretonne/liveness"
	"github.com/mirahmed753/cretonne/stackmap"
)

// Options holds the settings of a compilation.
type Options struct {
	// Policy selects the safepoints. The zero value is call-sites.
	Policy stackmap.Policy
	// Target names the instruction set. Empty means codegen.DefaultTarget.
	Target string
	// ReplaceExplicit removes explicit safepoint instructions once their
	// marker is inserted.
	ReplaceExplicit bool
	// Verify runs the IR and dominance verifiers before the pass.
	Verify bool
}

// DefaultOptions returns the settings used by the command line tool.
func DefaultOptions() Options {
	return Options{
		Policy: stackmap.CallSites,
		Target: codegen.DefaultTarget,
		Verify: true,
	}
}

// Validate checks that the options name a known policy and target.
func (o Options) Validate() error {
	if _, err := o.Policy.MarshalText(); err != nil {
		return errors.InvalidInput(errors.PhaseCompile, err.Error())
	}
	if o.Target != "" {
		if _, err := codegen.LookupTarget(o.Target); err != nil {
			return err
		}
	}
	return nil
}

// Result is the output of compiling one function.
type Result struct {
	Records []stackmap.Record
	Markers []ir.Inst
	Table   []stackmap.TableEntry
	Encoded *codegen.EncodedFunc
	// Size is the encoded size of the function in bytes.
	Size uint32
	// Removed counts the unreachable blocks deleted before the pass.
	Removed int
}

// Context compiles functions with fixed options. It is safe for concurrent
// use: functions never share mutable state.
type Context struct {
	opts   Options
	target *codegen.Target
}

// NewContext validates opts and resolves the target.
func NewContext(opts Options) (*Context, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	name := opts.Target
	if name == "" {
		name = codegen.DefaultTarget
	}
	t, err := codegen.LookupTarget(name)
	if err != nil {
		return nil, err
	}
	return &Context{opts: opts, target: t}, nil
}

// Options returns the context's options.
func (c *Context) Options() Options { return c.opts }

// Target returns the resolved target.
func (c *Context) Target() *codegen.Target { return c.target }

// Compile runs the stackmap pipeline on fn, which is modified in place:
// unreachable blocks are removed and stackmap markers inserted.
//
// Either every step succeeds and a complete Result is returned, or the
// error names fn and nothing is returned.
func (c *Context) Compile(fn *ir.Function) (*Result, error) {
	res, err := c.compile(fn)
	if err != nil {
		err = errors.WithFunc(err, fn.Name)
		Logger().Debug("compile failed", zap.String("func", fn.Name), zap.Error(err))
		return nil, err
	}
	Logger().Debug("compiled function",
		zap.String("func", fn.Name),
		zap.Stringer("target", c.target),
		zap.Int("records", len(res.Records)),
		zap.Uint32("size", res.Size))
	return res, nil
}

func (c *Context) compile(fn *ir.Function) (*Result, error) {
	if c.opts.Verify {
		if err := ir.Verify(fn); err != nil {
			return nil, err
		}
	}

	cfg := analysis.NewCFG(fn)
	dt := analysis.NewDomTree(fn, cfg)
	removed := analysis.EliminateUnreachable(fn, dt)
	if removed > 0 {
		cfg = analysis.NewCFG(fn)
		dt = analysis.NewDomTree(fn, cfg)
	}
	if c.opts.Verify {
		if err := analysis.VerifyDominance(fn, dt); err != nil {
			return nil, err
		}
	}

	live, err := liveness.Compute(fn, cfg, dt)
	if err != nil {
		return nil, err
	}
	records, err := stackmap.Compute(fn, dt, live, stackmap.Config{Policy: c.opts.Policy})
	if err != nil {
		return nil, err
	}
	markers, err := stackmap.Apply(fn, records, stackmap.ApplyOptions{ReplaceExplicit: c.opts.ReplaceExplicit})
	if err != nil {
		return nil, err
	}

	enc, err := codegen.Encode(fn, c.target, codegen.AssignLocations(fn, c.target))
	if err != nil {
		return nil, err
	}
	table, err := stackmap.MaterializeTable(enc)
	if err != nil {
		return nil, err
	}

	return &Result{
		Records: records,
		Markers: markers,
		Table:   table,
		Encoded: enc,
		Size:    enc.Size,
		Removed: removed,
	}, nil
}

// FuncResult is the outcome for one function of a module.
type FuncResult struct {
	Func   *ir.Function
	Result *Result
	Err    error
}

// CompileModule compiles funcs on up to workers goroutines. workers <= 0
// uses GOMAXPROCS. Results come back in input order with each function's
// error kept in its own entry.
//
// Cancelling ctx skips functions that have not started; a function that is
// already compiling runs to completion.
func CompileModule(ctx context.Context, funcs []*ir.Function, opts Options, workers int) ([]FuncResult, error) {
	c, err := NewContext(opts)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]FuncResult, len(funcs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, fn := range funcs {
		i, fn := i, fn
		results[i].Func = fn
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Result, results[i].Err = c.Compile(fn)
			return nil
		})
	}
	_ = g.Wait()

	Logger().Debug("compiled module",
		zap.Int("functions", len(funcs)),
		zap.Int("workers", workers),
		zap.Int("failed", countFailed(results)))
	return results, nil
}

func countFailed(results []FuncResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Failed collects the failed functions of a module, or returns nil when
// every function compiled.
func Failed(results []FuncResult) error {
	var failures []errors.FuncFailure
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, errors.FuncFailure{Func: r.Func.Name, Err: r.Err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	return &errors.FailedFunctionsError{Failures: failures}
}
