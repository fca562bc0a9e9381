// Package ollama provides the local llm.Provider backed by a same-machine
// Ollama daemon.
//
// Generation uses the daemon's /api/generate endpoint with streaming disabled.
// Availability is a bounded ping against /api/tags: a hung or stopped daemon
// reports "not available" within about a second instead of stalling the
// auto-fallback path.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// ProviderName is the identifier reported by [Provider.Name].
const ProviderName = "ollama"

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2"

	// pingTimeout bounds the availability probe so a hung daemon cannot stall
	// provider selection.
	pingTimeout = time.Second

	defaultGenerateTimeout = 60 * time.Second
)

// Option is a functional option for [Provider].
type Option func(*Provider)

// WithBaseURL overrides the default daemon address (http://localhost:11434).
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// WithModel sets the model used when a request does not specify one.
// Default: "llama3.2".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithTimeout sets the per-generation HTTP timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.client.Timeout = d
	}
}

// Provider implements llm.Provider against a local Ollama daemon.
// Safe for concurrent use.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New constructs a local Ollama provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		client:  &http.Client{Timeout: defaultGenerateTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable implements llm.Provider. It pings the daemon's /api/tags
// endpoint with a one-second deadline; any failure, including a timeout, means
// the daemon is treated as down.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// generateRequest is the /api/generate request body.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// generateOptions carries Ollama's generation knobs. num_predict is Ollama's
// name for the completion token cap.
type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

// generateResponse is the non-streaming /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}

	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
		},
	})
	if err != nil {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Session cancellation, not a daemon fault.
			return "", ctx.Err()
		}
		return "", llm.NewError(ProviderName, llm.KindUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", llm.NewError(ProviderName, llm.KindFromStatus(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("decode response: %w", err))
	}
	return out.Response, nil
}
