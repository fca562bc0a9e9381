// Package postprocess runs transcript cleanup through a chain of LLM
// providers with availability filtering and ordered fallback.
//
// The selector owns the provider descriptors for the life of the process and
// is reused across dictation sessions; it holds no per-session state. Under
// the "auto" policy the fixed priority order is local first (latency and
// privacy), then the cloud providers by historical reliability.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voicekey/voicekey/internal/mode"
	"github.com/voicekey/voicekey/internal/observe"
	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// ErrAllProvidersFailed is returned when every candidate was either
// unavailable or failed to generate. The session layer recovers by injecting
// the raw transcript unchanged.
var ErrAllProvidersFailed = errors.New("postprocess: all providers failed")

// ErrNoSuchProvider is returned when a pinned provider name matches none of
// the registered backends.
var ErrNoSuchProvider = errors.New("postprocess: no such provider")

// probeTimeout bounds the concurrent availability sweep under the auto
// policy. Local daemon probes bound themselves at one second; this is the
// outer safety net.
const probeTimeout = 2 * time.Second

// Selector picks a provider for each post-processing request and falls back
// across the chain on transient failures. Safe for concurrent use.
type Selector struct {
	// chain holds the providers in auto-policy priority order.
	chain   []llm.Provider
	metrics *observe.Metrics
}

// NewSelector builds a selector over providers in the given priority order.
// Under the auto policy candidates are tried front to back.
func NewSelector(metrics *observe.Metrics, providers ...llm.Provider) (*Selector, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("postprocess: at least one provider is required")
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Selector{chain: providers, metrics: metrics}, nil
}

// Providers returns the names of the registered chain in priority order.
func (s *Selector) Providers() []string {
	names := make([]string, len(s.chain))
	for i, p := range s.chain {
		names[i] = p.Name()
	}
	return names
}

// Result is a successful post-processing outcome: the rewritten text and the
// provider that produced it.
type Result struct {
	// Text is the generated replacement for the raw transcript.
	Text string

	// Provider is the name of the backend that served the request.
	Provider string
}

// Process resolves the candidate list for req and tries each candidate in
// order until one succeeds. The first success wins; later candidates are
// never invoked.
//
// Failure policy: unreachable, auth, and rate-limit failures advance to the
// next candidate. An invalid-request failure with an explicitly pinned model
// is surfaced immediately, because the model identifier is provider-specific
// and silently substituting another provider's output would hide the
// misconfiguration. Context cancellation aborts the iteration at once.
//
// When every candidate is exhausted the result is [ErrAllProvidersFailed]
// wrapping the individual attempt errors.
func (s *Selector) Process(ctx context.Context, req mode.Request) (Result, error) {
	candidates, err := s.candidates(ctx, req.Provider)
	if err != nil {
		return Result{}, err
	}

	log := observe.Logger(ctx)
	var attemptErrs []error

	for _, p := range candidates {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		out, genErr := p.Generate(ctx, req.Prompt, req.Options)
		if genErr == nil {
			s.metrics.RecordProviderRequest(ctx, p.Name(), "success")
			return Result{Text: out, Provider: p.Name()}, nil
		}
		if llm.IsCancelled(genErr) {
			return Result{}, genErr
		}

		kind := llm.KindOf(genErr)
		s.metrics.RecordProviderRequest(ctx, p.Name(), "error")
		s.metrics.RecordProviderError(ctx, p.Name(), kind.String())

		if kind == llm.KindInvalidRequest && req.Options.Model != "" {
			// The pinned model identifier is wrong for this provider. Retrying
			// it elsewhere cannot fix the configuration.
			return Result{}, genErr
		}

		log.Warn("provider failed, trying next",
			"provider", p.Name(), "kind", kind.String(), "error", genErr)
		attemptErrs = append(attemptErrs, genErr)
	}

	return Result{}, fmt.Errorf("%w: %w", ErrAllProvidersFailed, errors.Join(attemptErrs...))
}

// candidates resolves the provider policy to an ordered, availability-filtered
// list. A pinned policy yields at most one candidate; auto probes the whole
// chain concurrently but preserves the registration order.
func (s *Selector) candidates(ctx context.Context, policy mode.PreferredProvider) ([]llm.Provider, error) {
	if policy != mode.ProviderAuto && policy != "" {
		p := s.byName(string(policy))
		if p == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchProvider, policy)
		}
		if !p.IsAvailable(ctx) {
			return nil, fmt.Errorf("%w: %s is not available", ErrAllProvidersFailed, p.Name())
		}
		return []llm.Provider{p}, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	available := make([]bool, len(s.chain))
	g, gctx := errgroup.WithContext(probeCtx)
	for i, p := range s.chain {
		g.Go(func() error {
			available[i] = p.IsAvailable(gctx)
			return nil
		})
	}
	_ = g.Wait() // probes report false instead of erroring

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var out []llm.Provider
	for i, p := range s.chain {
		if available[i] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no provider is available", ErrAllProvidersFailed)
	}
	return out, nil
}

func (s *Selector) byName(name string) llm.Provider {
	for _, p := range s.chain {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
