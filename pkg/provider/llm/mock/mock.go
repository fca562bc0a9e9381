// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify which prompts and options the
// post-processing selector sends and to feed controlled responses without a
// live backend. All fields are safe to set before calling any method;
// mutating them during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    NameValue:        "ollama",
//	    Available:        true,
//	    GenerateResponse: "cleaned text",
//	}
//	out, err := p.Generate(ctx, prompt, llm.DefaultOptions())
package mock

import (
	"context"
	"sync"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Prompt is the prompt passed to Generate.
	Prompt string
	// Opts is the options value passed to Generate.
	Opts llm.Options
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause methods to return zero values and nil errors.
// Set GenerateErr to inject failures.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// NameValue is returned by Name. Defaults to "mock" when empty.
	NameValue string

	// Available is returned by IsAvailable.
	Available bool

	// GenerateResponse is returned by Generate when GenerateErr is nil.
	GenerateResponse string

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// GenerateFunc, if non-nil, is called instead of returning
	// GenerateResponse/GenerateErr. Use it for per-call behaviour such as
	// blocking until the context is cancelled.
	GenerateFunc func(ctx context.Context, prompt string, opts llm.Options) (string, error)

	// --- Call records (read after test) ---

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall

	// AvailabilityCallCount is the number of times IsAvailable was called.
	AvailabilityCallCount int
}

// Name returns NameValue, or "mock" when unset.
func (p *Provider) Name() string {
	if p.NameValue == "" {
		return "mock"
	}
	return p.NameValue
}

// IsAvailable records the call and returns Available.
func (p *Provider) IsAvailable(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.AvailabilityCallCount++
	return p.Available
}

// Generate records the call and returns the configured response or error.
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	p.mu.Lock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Prompt: prompt, Opts: opts})
	fn := p.GenerateFunc
	resp, err := p.GenerateResponse, p.GenerateErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, opts)
	}
	return resp, err
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
	p.AvailabilityCallCount = 0
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
