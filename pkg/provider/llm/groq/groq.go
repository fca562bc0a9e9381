// Package groq provides a cloud llm.Provider backed by Groq's
// OpenAI-compatible chat-completions API.
//
// Availability is purely a credential check with no network round-trip, so the
// probe is effectively instant. The API key is resolved through an
// [llm.KeySource] immediately before each request; it is never cached in
// plaintext.
package groq

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// ProviderName is the identifier reported by [Provider.Name].
const ProviderName = "groq"

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.1-8b-instant"
	defaultTimeout = 30 * time.Second
)

// Option is a functional option for [Provider].
type Option func(*config)

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// WithBaseURL overrides the default Groq API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel sets the model used when a request does not specify one.
// Default: "llama-3.1-8b-instant".
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout sets the per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Provider implements llm.Provider against the Groq API.
// Safe for concurrent use.
type Provider struct {
	client oai.Client
	key    llm.KeySource
	model  string
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// New constructs a Groq provider. key supplies the bearer token just-in-time;
// it must not be nil.
func New(key llm.KeySource, opts ...Option) (*Provider, error) {
	if key == nil {
		return nil, fmt.Errorf("groq: key source must not be nil")
	}

	cfg := &config{
		baseURL: defaultBaseURL,
		model:   defaultModel,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}

	client := oai.NewClient(
		option.WithBaseURL(cfg.baseURL),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
	)
	return &Provider{client: client, key: key, model: cfg.model}, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return ProviderName }

// IsAvailable implements llm.Provider. For a cloud backend this is only
// "a credential resolves to a non-empty key"; it never makes a network call.
func (p *Provider) IsAvailable(_ context.Context) bool {
	key, err := p.key()
	return err == nil && key != ""
}

// Generate implements llm.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	key, err := p.key()
	if err != nil || key == "" {
		return "", llm.NewError(ProviderName, llm.KindAuthFailure, err)
	}

	model := opts.Model
	if model == "" {
		model = p.model
	}

	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
		Temperature: param.NewOpt(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(opts.MaxTokens))
	}

	resp, err := p.client.Chat.Completions.New(ctx, params, option.WithAPIKey(key))
	if err != nil {
		return "", classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewError(ProviderName, llm.KindUnknown, fmt.Errorf("empty choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// classify maps an SDK error onto the provider error taxonomy. API errors
// carry an HTTP status; anything without one is a transport fault.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return llm.NewError(ProviderName, llm.KindFromStatus(apiErr.StatusCode), err)
	}
	return llm.NewError(ProviderName, llm.KindUnreachable, err)
}
