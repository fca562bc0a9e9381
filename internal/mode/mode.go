// Package mode maps the active dictation mode onto recognition flags and a
// fully resolved post-processing request.
//
// Modes are immutable snapshots: the session layer resolves the active mode
// once at session start, so an edit made mid-session applies to the next
// session only. A missing or unknown mode identifier falls back to a built-in
// default instead of blocking the pipeline.
package mode

import (
	"fmt"
	"strings"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

// PromptPlaceholder is the substitution marker inside a prompt template that
// receives the raw transcript. It is the only substitution variable.
const PromptPlaceholder = "{{text}}"

// PreferredProvider names the provider-selection policy of a post-processing
// profile.
type PreferredProvider string

const (
	// ProviderAuto tries ollama, groq, then openrouter, restricted to the
	// currently available ones.
	ProviderAuto PreferredProvider = "auto"

	// ProviderOllama pins post-processing to the local daemon.
	ProviderOllama PreferredProvider = "ollama"

	// ProviderGroq pins post-processing to Groq.
	ProviderGroq PreferredProvider = "groq"

	// ProviderOpenRouter pins post-processing to OpenRouter.
	ProviderOpenRouter PreferredProvider = "openrouter"
)

// Valid reports whether p is a known policy value.
func (p PreferredProvider) Valid() bool {
	switch p {
	case ProviderAuto, ProviderOllama, ProviderGroq, ProviderOpenRouter:
		return true
	}
	return false
}

// PostProcessProfile describes how a transcript is rewritten by a language
// model after recognition.
type PostProcessProfile struct {
	// Template is the prompt with a [PromptPlaceholder] occurrence that
	// receives the raw transcript.
	Template string `yaml:"template"`

	// Provider selects the backend policy. Empty means [ProviderAuto].
	Provider PreferredProvider `yaml:"provider"`

	// Model optionally pins a specific model within the selected provider.
	// Identifier syntax is provider-specific.
	Model string `yaml:"model"`

	// Temperature overrides the default generation temperature when non-nil.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens overrides the default completion cap when positive.
	MaxTokens int `yaml:"max_tokens"`
}

// Mode is a named bundle of recognition and post-processing settings.
type Mode struct {
	// ID is the stable identifier referenced by the active-mode setting.
	ID string `yaml:"id"`

	// Name is the human-readable label shown in the mode list.
	Name string `yaml:"name"`

	// Description explains what the mode is for.
	Description string `yaml:"description"`

	// AutoPunctuation asks the recognizer to punctuate.
	AutoPunctuation bool `yaml:"auto_punctuation"`

	// SmartFormatting asks the recognizer to format numbers and entities.
	SmartFormatting bool `yaml:"smart_formatting"`

	// EnablePostProcessing routes the transcript through a language model.
	// Requires PostProcess to be set.
	EnablePostProcessing bool `yaml:"enable_post_processing"`

	// PostProcess configures the rewrite. Must be non-nil when
	// EnablePostProcessing is true.
	PostProcess *PostProcessProfile `yaml:"post_process"`

	// Default marks the built-in fallback mode.
	Default bool `yaml:"default"`
}

// Validate checks the internal consistency of a mode.
func (m Mode) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mode: id must not be empty")
	}
	if m.EnablePostProcessing && m.PostProcess == nil {
		return fmt.Errorf("mode %q: post-processing enabled without a profile", m.ID)
	}
	if m.PostProcess != nil {
		if m.EnablePostProcessing && !strings.Contains(m.PostProcess.Template, PromptPlaceholder) {
			return fmt.Errorf("mode %q: template lacks the %s placeholder", m.ID, PromptPlaceholder)
		}
		if p := m.PostProcess.Provider; p != "" && !p.Valid() {
			return fmt.Errorf("mode %q: unknown provider %q", m.ID, p)
		}
		if t := m.PostProcess.Temperature; t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("mode %q: temperature %v outside [0, 1]", m.ID, *t)
		}
	}
	return nil
}

// Request is a fully resolved post-processing request: the final prompt plus
// the provider policy and generation parameters for the selector.
type Request struct {
	// Prompt is the template with the transcript substituted in.
	Prompt string

	// Provider is the selection policy.
	Provider PreferredProvider

	// Options carries the generation parameters, including any pinned model.
	Options llm.Options
}

// DefaultMode is the built-in fallback used when the configured active mode
// is absent or unknown. It injects the raw transcript untouched.
func DefaultMode() Mode {
	return Mode{
		ID:              "plain",
		Name:            "Plain dictation",
		Description:     "Inject the transcript exactly as recognised.",
		AutoPunctuation: true,
		Default:         true,
	}
}

// Resolver resolves mode identifiers against a fixed mode set. Construct one
// per configuration load; it holds no mutable state.
type Resolver struct {
	modes    map[string]Mode
	fallback Mode
}

// NewResolver builds a resolver over modes. The first mode flagged Default
// becomes the fallback; without one, [DefaultMode] is used.
func NewResolver(modes []Mode) (*Resolver, error) {
	r := &Resolver{
		modes:    make(map[string]Mode, len(modes)),
		fallback: DefaultMode(),
	}
	fallbackSet := false
	for _, m := range modes {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.modes[m.ID]; dup {
			return nil, fmt.Errorf("mode: duplicate id %q", m.ID)
		}
		r.modes[m.ID] = m
		if m.Default && !fallbackSet {
			r.fallback = m
			fallbackSet = true
		}
	}
	return r, nil
}

// Resolve returns the mode for id, or the fallback mode when id is empty or
// unknown.
func (r *Resolver) Resolve(id string) Mode {
	if m, ok := r.modes[id]; ok {
		return m
	}
	return r.fallback
}

// Modes returns all configured modes plus the fallback if it is not among
// them. Order is unspecified.
func (r *Resolver) Modes() []Mode {
	out := make([]Mode, 0, len(r.modes)+1)
	seenFallback := false
	for _, m := range r.modes {
		if m.ID == r.fallback.ID {
			seenFallback = true
		}
		out = append(out, m)
	}
	if !seenFallback {
		out = append(out, r.fallback)
	}
	return out
}

// ResolveRequest produces the post-processing request for transcript under m.
// It reports ok=false when the mode has post-processing disabled, in which
// case the transcript is injected as-is. Pure function of its inputs.
func ResolveRequest(m Mode, transcript string) (Request, bool) {
	if !m.EnablePostProcessing || m.PostProcess == nil {
		return Request{}, false
	}

	p := m.PostProcess
	opts := llm.DefaultOptions()
	if p.Temperature != nil {
		opts.Temperature = *p.Temperature
	}
	if p.MaxTokens > 0 {
		opts.MaxTokens = p.MaxTokens
	}
	opts.Model = p.Model

	provider := p.Provider
	if provider == "" {
		provider = ProviderAuto
	}

	return Request{
		Prompt:   strings.ReplaceAll(p.Template, PromptPlaceholder, transcript),
		Provider: provider,
		Options:  opts,
	}, true
}
