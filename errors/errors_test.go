package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(PhaseFixup, KindUnresolvedSymbol).
		Object("demo").
		Symbol("callee").
		Detail("no such target").
		Build()

	got := err.Error()
	for _, want := range []string{"[fixup]", "unresolved_symbol", "in demo", "at callee", "no such target"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestErrorIsMatchesPhaseAndKind(t *testing.T) {
	err := UnresolvedSymbol("demo", "callee")

	if !stderrors.Is(err, &Error{Phase: PhaseFixup, Kind: KindUnresolvedSymbol}) {
		t.Error("expected Is to match on phase+kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseParse, Kind: KindUnresolvedSymbol}) {
		t.Error("expected Is to reject mismatched phase")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := PassFailed(PhasePrune, "demo", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	if !strings.Contains(err.Error(), "caused by: boom") {
		t.Errorf("Error() = %q, missing cause", err.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{ParseFailed("demo", fmt.Errorf("x")), PhaseParse, KindInvalidData},
		{DuplicateSymbol("demo", "f"), PhaseLayout, KindDuplicateSymbol},
		{OutOfBounds("demo", 100, 10), PhaseFixup, KindOutOfBounds},
		{PluginFailed("demo", "NotifyEmitted", fmt.Errorf("x")), PhaseLinking, KindPluginFailed},
		{NotFound(PhaseRuntime, "symbol", "entry"), PhaseRuntime, KindNotFound},
		{NotInitialized(PhaseRuntime, "engine"), PhaseRuntime, KindNotInitialized},
		{Instantiation("demo", fmt.Errorf("x")), PhaseLoad, KindInstantiation},
	}
	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Errorf("%v: got phase=%s kind=%s, want %s/%s", tt.err, tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
	}
}
