// Package cretonne computes GC stackmaps for an SSA intermediate
// representation.
//
// At every safepoint of a function the pass records which reference-typed
// values are live, inserts a stackmap marker in front of the safepoint, and
// after encoding turns the markers into a table of code offsets and value
// locations that a garbage collector reads while walking the stack.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	cretonne/
//	├── ir/          SSA functions, layout, cursor, builder, text format, verifier
//	├── analysis/    CFG, dominator tree, loop headers, unreachable block removal
//	├── liveness/    Live ranges and block live-in / live-out sets
//	├── stackmap/    Live value tracker, safepoint selection, records, markers, tables
//	├── codegen/     Targets, value locations, register diversions, offsets
//	├── compile/     Per-function pipeline and parallel module driver
//	├── frontend/    WebAssembly decoding, validation and translation to IR
//	├── errors/      Structured error types for debugging
//	└── cmd/stackmaps  Command line driver and interactive browser
//
// # Quick Start
//
// Compile the functions of a text IR file:
//
//	funcs, err := ir.Parse(src)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := compile.NewContext(compile.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, fn := range funcs {
//	    res, err := c.Compile(fn)
//	    if err != nil {
//	        log.Printf("%s: %v", fn.Name, err)
//	        continue
//	    }
//	    stackmap.FormatTable(os.Stdout, c.Target(), res.Table)
//	}
//
// # Safepoint Policies
//
// The safepoints of a function are chosen by a stackmap.Policy:
//
//   - call-sites: every call (the default)
//   - loop-headers: the first instruction of every back edge target
//   - explicit-markers: only safepoint instructions placed by the frontend
//
// # Thread Safety
//
// A compile.Context is safe for concurrent use. Functions are compiled
// independently and a Function must not be shared between goroutines
// while it is being compiled.
package cretonne
