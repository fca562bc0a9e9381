// Package inject defines the text delivery contract.
//
// An Injector places the final transcript into the user's focused input
// field. Injection is best-effort: a failure after a successful pipeline run
// is logged as a warning, not treated as a session failure, because the text
// still exists and can be recovered from history.
package inject

import "context"

// Injector delivers text to the active application.
//
// Implementations must be safe for concurrent use, though the session layer
// injects at most one transcript at a time.
type Injector interface {
	// Name returns the stable injector identifier used in logs.
	Name() string

	// Inject types or pastes text into the focused field. Empty text is a
	// no-op and must return nil.
	Inject(ctx context.Context, text string) error
}
