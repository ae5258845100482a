package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates which pass produced the error
type Phase string

const (
	PhaseParse     Phase = "parse"     // text IR parsing
	PhaseTranslate Phase = "translate" // wasm to IR
	PhaseVerify    Phase = "verify"    // structural IR checks
	PhaseDominance Phase = "dominance" // dominator tree queries
	PhaseLiveness  Phase = "liveness"  // live range computation
	PhaseStackmap  Phase = "stackmap"  // safepoint scan and record building
	PhaseApply     Phase = "apply"     // marker insertion
	PhaseEmit      Phase = "emit"      // encoding and table materialization
	PhaseCompile   Phase = "compile"   // per-function pipeline
)

// Kind categorizes the error
type Kind string

const (
	KindMissingLiveness  Kind = "missing_liveness"
	KindUnreachableBlock Kind = "unreachable_block"
	KindInvalidInsertion Kind = "invalid_insertion"
	KindMissingLocation  Kind = "missing_location"
	KindInvalidInput     Kind = "invalid_input"
	KindMalformed        Kind = "malformed"
	KindSyntax           Kind = "syntax"
	KindUnsupported      Kind = "unsupported"
	KindNotFound         Kind = "not_found"
)

// Sentinels for errors.Is checks that do not care about the phase.
var (
	ErrMissingLivenessInfo      = &Error{Kind: KindMissingLiveness}
	ErrUnreachableBlockQueried  = &Error{Kind: KindUnreachableBlock}
	ErrInvalidInsertionPosition = &Error{Kind: KindInvalidInsertion}
	ErrMissingLocation          = &Error{Kind: KindMissingLocation}
)

// Error is the structured error type used throughout the compiler
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Func   string
	Block  string
	Inst   string
	Value  string
	Detail string
	Line   int
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Func != "" {
		b.WriteString(" in ")
		b.WriteString(e.Func)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}

	var where []string
	if e.Block != "" {
		where = append(where, e.Block)
	}
	if e.Inst != "" {
		where = append(where, e.Inst)
	}
	if e.Value != "" {
		where = append(where, e.Value)
	}
	if len(where) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(where, ", "))
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Func sets the function name
func (b *Builder) Func(name string) *Builder {
	b.err.Func = name
	return b
}

// Block sets the offending block
func (b *Builder) Block(name string) *Builder {
	b.err.Block = name
	return b
}

// Inst sets the offending instruction
func (b *Builder) Inst(name string) *Builder {
	b.err.Inst = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(name string) *Builder {
	b.err.Value = name
	return b
}

// Line sets the source line for parse errors
func (b *Builder) Line(line int) *Builder {
	b.err.Line = line
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// MissingLivenessInfo reports a value that appears live but has no live range.
// This always points at a defect in an earlier pass.
func MissingLivenessInfo(phase Phase, fn, inst, value string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingLiveness,
		Func:   fn,
		Inst:   inst,
		Value:  value,
		Detail: "value has no live range",
	}
}

// UnreachableBlockQueried reports a dominance query on a block with no path from the entry
func UnreachableBlockQueried(fn, block string) *Error {
	return &Error{
		Phase:  PhaseDominance,
		Kind:   KindUnreachableBlock,
		Func:   fn,
		Block:  block,
		Detail: "block is not reachable from the function entry",
	}
}

// InvalidInsertionPosition reports a marker target that is no longer in the layout
func InvalidInsertionPosition(fn, inst, detail string) *Error {
	return &Error{
		Phase:  PhaseApply,
		Kind:   KindInvalidInsertion,
		Func:   fn,
		Inst:   inst,
		Detail: detail,
	}
}

// MissingLocation reports a recorded value without an assigned storage location
func MissingLocation(fn, inst, value string) *Error {
	return &Error{
		Phase:  PhaseEmit,
		Kind:   KindMissingLocation,
		Func:   fn,
		Inst:   inst,
		Value:  value,
		Detail: "value has no assigned location",
	}
}

// Malformed creates a structural IR error
func Malformed(fn, where, detail string) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindMalformed,
		Func:   fn,
		Inst:   where,
		Detail: detail,
	}
}

// Syntax creates a text parse error
func Syntax(line int, detail string, args ...any) *Error {
	return New(PhaseParse, KindSyntax).Line(line).Detail(detail, args...).Build()
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithFunc fills in the function name on a structured error that lacks one.
// Other errors are wrapped in a compile-phase error naming the function.
func WithFunc(err error, fn string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Func == "" {
			e.Func = fn
		}
		return err
	}
	return &Error{
		Phase: PhaseCompile,
		Kind:  KindInvalidInput,
		Func:  fn,
		Cause: err,
	}
}

// FuncFailure is a single failed function inside a module compilation
type FuncFailure struct {
	Err  error
	Func string
}

// FailedFunctionsError is returned when one or more functions of a module failed.
// The remaining functions compiled normally.
type FailedFunctionsError struct {
	Failures []FuncFailure
}

// Error implements the error interface
func (e *FailedFunctionsError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("function %s failed: %v", e.Failures[0].Func, e.Failures[0].Err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d functions failed:", len(e.Failures))
	for _, f := range e.Failures {
		b.WriteString("\n  ")
		b.WriteString(f.Func)
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the individual failures to errors.Is/As
func (e *FailedFunctionsError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Is forwards to the standard library so callers need a single errors import.
func Is(err, target error) bool { return errors.Is(err, target) }

// As forwards to the standard library so callers need a single errors import.
func As(err error, target any) bool { return errors.As(err, target) }
