// Package config defines the daemon's YAML configuration schema, its
// defaults, and validation.
//
// The configuration file is the single source of the mode list, the active
// mode, encrypted cloud credentials, and provider endpoints. The daemon never
// writes the file back; edits take effect on reload.
package config

import (
	"log/slog"
	"time"

	"github.com/voicekey/voicekey/internal/mode"
)

// LogLevel is the configured slog level name.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l names a known level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// Level converts l to a [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ServerConfig configures the localhost control surface.
type ServerConfig struct {
	// Addr is the listen address. Defaults to "127.0.0.1:7865"; binding
	// beyond loopback is a validation error since the API is unauthenticated.
	Addr string `yaml:"addr"`

	// LogLevel sets the slog level. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat is "json" or "text". Default: text.
	LogFormat string `yaml:"log_format"`
}

// AudioConfig configures capture.
type AudioConfig struct {
	// MaxDuration caps a single capture. Default: 2m.
	MaxDuration time.Duration `yaml:"max_duration"`
}

// ASRConfig configures the sherpa-onnx recognizer sidecar.
type ASRConfig struct {
	// Binary locates the sherpa-onnx executable.
	Binary string `yaml:"binary"`

	// ModelType is "sense-voice", "transducer", or "whisper".
	ModelType string `yaml:"model_type"`

	// Tokens locates tokens.txt.
	Tokens string `yaml:"tokens"`

	// Model is the single model file (sense-voice).
	Model string `yaml:"model"`

	// Encoder, Decoder, Joiner are the model parts for transducer and
	// whisper (whisper has no joiner).
	Encoder string `yaml:"encoder"`
	Decoder string `yaml:"decoder"`
	Joiner  string `yaml:"joiner"`
}

// OllamaConfig configures the local provider.
type OllamaConfig struct {
	// BaseURL of the daemon. Default: http://localhost:11434.
	BaseURL string `yaml:"base_url"`

	// Model used when a mode does not pin one. Default: llama3.2.
	Model string `yaml:"model"`

	// Timeout per generation. Default: 60s.
	Timeout time.Duration `yaml:"timeout"`
}

// CloudProviderConfig configures a hosted provider.
type CloudProviderConfig struct {
	// APIKeyEncrypted is the vault-sealed credential, produced with the
	// -encrypt-secret flag. Empty means the provider is not configured.
	APIKeyEncrypted string `yaml:"api_key_encrypted"`

	// Model used when a mode does not pin one.
	Model string `yaml:"model"`

	// BaseURL overrides the provider endpoint. Mostly for tests.
	BaseURL string `yaml:"base_url"`
}

// ProvidersConfig groups the LLM backends in fallback priority order.
type ProvidersConfig struct {
	Ollama     OllamaConfig        `yaml:"ollama"`
	Groq       CloudProviderConfig `yaml:"groq"`
	OpenRouter CloudProviderConfig `yaml:"openrouter"`
}

// InjectConfig configures text delivery.
type InjectConfig struct {
	// Command is the argv of the typing tool; the text arrives on stdin.
	// Default: ["wtype", "-"].
	Command []string `yaml:"command"`
}

// Config is the root configuration document.
type Config struct {
	// DataDir holds the history database, the secret key file, and the
	// hotwords file. Default: ~/.local/share/voicekey (os.UserConfigDir
	// based).
	DataDir string `yaml:"data_dir"`

	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	ASR       ASRConfig       `yaml:"asr"`
	Providers ProvidersConfig `yaml:"providers"`
	Inject    InjectConfig    `yaml:"inject"`

	// VocabularyFile lists user terms, one per line.
	VocabularyFile string `yaml:"vocabulary_file"`

	// ActiveMode is the id of the mode used for new sessions.
	ActiveMode string `yaml:"active_mode"`

	// Modes is the user's mode list. The built-in plain mode is always
	// available as a fallback.
	Modes []mode.Mode `yaml:"modes"`
}

// applyDefaults fills unset fields in place.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:7865"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogLevelInfo
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}
	if c.Audio.MaxDuration == 0 {
		c.Audio.MaxDuration = 2 * time.Minute
	}
}
