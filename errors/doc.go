// Package errors provides structured error types for the stackmap compiler.
//
// Errors are categorized by Phase (which pass failed) and Kind (error category).
// The Error type carries the function being compiled and the offending
// instruction, block or value, so a failure can be traced back to the IR.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseStackmap, errors.KindMissingLiveness).
//		Func("%f").
//		Inst("inst4").
//		Value("v3").
//		Detail("value has no live range").
//		Build()
//
// Or use convenience constructors for the failure kinds of the pass:
//
//	err := errors.MissingLivenessInfo(errors.PhaseStackmap, "%f", "inst4", "v3")
//	err := errors.UnreachableBlockQueried("%f", "block7")
//	err := errors.InvalidInsertionPosition("%f", "inst9")
//
// All errors implement the standard error interface and support errors.Is/As.
// The Err* sentinels match an error of their kind regardless of phase.
package errors
