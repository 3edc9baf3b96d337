// Package errors provides structured error types for the link pipeline.
//
// Every error carries the pipeline phase it occurred in and a kind that
// categorizes it, so callers can match on either without string
// comparison:
//
//	if stderrors.Is(err, &errors.Error{Phase: errors.PhaseFixup, Kind: errors.KindUnresolvedSymbol}) {
//	    ...
//	}
//
// Errors are propagated upward to the runtime, never swallowed or
// retried at the layer that produced them.
package errors
