package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the link pipeline the error occurred
type Phase string

const (
	PhaseParse   Phase = "parse"   // object decoding
	PhasePrune   Phase = "prune"   // dead-code elimination
	PhaseLayout  Phase = "layout"  // address assignment
	PhaseFixup   Phase = "fixup"   // relocation application
	PhaseEmit    Phase = "emit"    // image encoding
	PhaseLoad    Phase = "load"    // engine compilation/instantiation
	PhaseLinking Phase = "linking" // layer orchestration, plugin callbacks
	PhaseRuntime Phase = "runtime" // symbol lookup and invocation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindUnresolvedSymbol Kind = "unresolved_symbol"
	KindDuplicateSymbol  Kind = "duplicate_symbol"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindNotFound         Kind = "not_found"
	KindNotInitialized   Kind = "not_initialized"
	KindInstantiation    Kind = "instantiation"
	KindPassFailed       Kind = "pass_failed"
	KindPluginFailed     Kind = "plugin_failed"
)

// Error is the structured error type used throughout the module
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Object string
	Symbol string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Object != "" {
		b.WriteString(" in ")
		b.WriteString(e.Object)
	}
	if e.Symbol != "" {
		b.WriteString(" at ")
		b.WriteString(e.Symbol)
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

// Is reports whether target matches this error's phase and kind
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
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

// Object sets the object (unit) name
func (b *Builder) Object(name string) *Builder {
	b.err.Object = name
	return b
}

// Symbol sets the symbol name
func (b *Builder) Symbol(name string) *Builder {
	b.err.Symbol = name
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

// Convenience constructors for common error patterns

// ParseFailed creates an object decoding error
func ParseFailed(object string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Object: object,
		Cause:  cause,
	}
}

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// UnresolvedSymbol creates a fixup error for a missing relocation target
func UnresolvedSymbol(object, symbol string) *Error {
	return &Error{
		Phase:  PhaseFixup,
		Kind:   KindUnresolvedSymbol,
		Object: object,
		Symbol: symbol,
		Detail: "relocation target not defined by any surviving block",
	}
}

// DuplicateSymbol creates a layout error for a doubly-defined symbol
func DuplicateSymbol(object, symbol string) *Error {
	return &Error{
		Phase:  PhaseLayout,
		Kind:   KindDuplicateSymbol,
		Object: object,
		Symbol: symbol,
	}
}

// OutOfBounds creates a fixup error for a slot outside its block
func OutOfBounds(object string, offset, size uint64) *Error {
	return &Error{
		Phase:  PhaseFixup,
		Kind:   KindOutOfBounds,
		Object: object,
		Detail: fmt.Sprintf("relocation slot at offset %d exceeds block size %d", offset, size),
	}
}

// PassFailed wraps an error returned by a registered graph pass
func PassFailed(phase Phase, object string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPassFailed,
		Object: object,
		Cause:  cause,
	}
}

// PluginFailed wraps an error returned by a plugin lifecycle callback
func PluginFailed(object, callback string, cause error) *Error {
	return &Error{
		Phase:  PhaseLinking,
		Kind:   KindPluginFailed,
		Object: object,
		Detail: callback,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Instantiation creates an engine instantiation error
func Instantiation(object string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Object: object,
		Cause:  cause,
	}
}

// Load creates an engine loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}
