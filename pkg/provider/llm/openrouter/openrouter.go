// Package openrouter provides a cloud llm.Provider backed by OpenRouter's
// chat-completions API.
//
// OpenRouter routes to many upstream vendors, so model identifiers must carry
// a vendor prefix ("google/gemini-1.5-flash", "meta-llama/llama-3.1-8b").
// A bare identifier is rejected locally as an invalid request before any
// network traffic happens.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// ProviderName is the identifier reported by [Provider.Name].
const ProviderName = "openrouter"

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultModel   = "google/gemini-1.5-flash"
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for [Provider].
type Option func(*Provider)

// WithBaseURL overrides the default OpenRouter API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithModel sets the vendor-prefixed model used when a request does not
// specify one. Default: "google/gemini-1.5-flash".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.client.Timeout = d }
}

// Provider implements llm.Provider against the OpenRouter API.
// Safe for concurrent use.
type Provider struct {
	baseURL string
	model   string
	key     llm.KeySource
	client  *http.Client
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New constructs an OpenRouter provider. key supplies the bearer token
// just-in-time; it must not be nil.
func New(key llm.KeySource, opts ...Option) (*Provider, error) {
	if key == nil {
		return nil, fmt.Errorf("openrouter: key source must not be nil")
	}

	p := &Provider{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		key:     key,
		client:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable implements llm.Provider. Only the credential is checked; no
// network call is made.
func (p *Provider) IsAvailable(_ context.Context) bool {
	key, err := p.key()
	return err == nil && key != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate implements llm.Provider. Model identifiers without a vendor prefix
// fail immediately with an invalid-request error; OpenRouter cannot route a
// bare model name, and failing locally keeps the misconfiguration obvious.
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	model := opts.Model
	if model == "" {
		model = p.model
	}
	if !strings.Contains(model, "/") {
		return "", llm.NewError(ProviderName, llm.KindInvalidRequest,
			fmt.Errorf("model %q lacks the required vendor prefix (want vendor/model)", model))
	}

	key, err := p.key()
	if err != nil || key == "" {
		return "", llm.NewError(ProviderName, llm.KindAuthFailure, err)
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
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

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Choices) == 0 {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("empty choices in response"))
	}
	return out.Choices[0].Message.Content, nil
}
