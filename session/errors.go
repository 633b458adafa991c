package session

import "github.com/pkg/errors"

// Errors raised by the facade itself, before any native call is made.
// Anything else returned from facade methods originated in the native
// engine and is propagated unchanged, never wrapped or retried.
var (
	// ErrTypeMismatch reports a model source that is not one of the
	// recognized variants.
	ErrTypeMismatch = errors.New("unsupported model source")

	// ErrInvalidArgument reports an argument rejected by a local
	// precondition check: a provider list that is not a subset of the
	// available providers, or an input feed smaller than the model's
	// required input count.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotLoaded reports a call against a facade whose engine handle is
	// absent: after Close, or after a failed provider rebind left the
	// session in its terminal failed state.
	ErrNotLoaded = errors.New("session is not loaded")
)
