// Package llm defines the Provider interface for text-generation backends used
// to post-process raw dictation transcripts.
//
// A provider wraps either a same-machine inference daemon (Ollama) or a hosted
// chat-completion API (Groq, OpenRouter) and exposes a uniform
// availability-plus-generate contract so the post-processing selector can try
// backends in priority order without coupling to any wire protocol.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly: when ctx is cancelled, Generate must return as quickly
// as possible.
package llm

import "context"

// Default generation parameters. Low temperature favours deterministic cleanup
// of transcripts over creative rewriting.
const (
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 512
)

// Options carries generation parameters. Use [DefaultOptions] and override
// fields as needed. Options are passed opaquely to whichever provider runs.
type Options struct {
	// Temperature controls output randomness in the range [0.0, 1.0].
	Temperature float64

	// MaxTokens caps the number of tokens the model may generate.
	MaxTokens int

	// Model overrides the provider's configured default model. Model identifier
	// syntax is provider-specific; see the individual provider packages.
	Model string
}

// DefaultOptions returns the baseline generation parameters used when a
// dictation mode does not override them.
func DefaultOptions() Options {
	return Options{
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// KeySource supplies a cloud provider's API credential on demand. Credentials
// are stored encrypted at rest and decrypted just-in-time before each call, so
// cloud providers hold a KeySource rather than a plaintext key. A KeySource
// must be safe for concurrent use. An error (including a decryption failure)
// is treated exactly like a missing credential.
type KeySource func() (string, error)

// StaticKey returns a KeySource that always yields key. Intended for tests and
// for configurations that store the key in plaintext.
func StaticKey(key string) KeySource {
	return func() (string, error) { return key, nil }
}

// Provider is the abstraction over any text-generation backend.
//
// Implementations hold no per-session state and are constructed once per
// process; the selector reuses them across dictation sessions.
type Provider interface {
	// Name returns the stable provider identifier used in logs, metrics, and
	// the preferred-provider configuration (e.g. "ollama", "groq").
	Name() string

	// IsAvailable reports whether the backend is worth attempting. The check
	// must complete in bounded time: local daemons are probed with a
	// sub-second network ping, cloud providers only verify that a credential
	// is configured and never touch the network. A probe timeout means "not
	// available", not an error.
	IsAvailable(ctx context.Context) bool

	// Generate sends prompt to the backend and returns the generated text.
	// Failures are reported as a [*Error] carrying one of the [ErrorKind]
	// classifications so callers can decide whether to fall back.
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}
