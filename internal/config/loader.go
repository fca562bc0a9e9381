package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Unknown YAML fields are rejected so typos fail loud.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if f := cfg.Server.LogFormat; f != "" && f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: json, text", f))
	}
	if err := validateLoopback(cfg.Server.Addr); err != nil {
		errs = append(errs, err)
	}

	if cfg.Audio.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.max_duration must not be negative"))
	}

	if cfg.ASR.Binary != "" {
		switch cfg.ASR.ModelType {
		case "sense-voice", "transducer", "whisper":
		case "":
			errs = append(errs, fmt.Errorf("asr.model_type is required when asr.binary is set"))
		default:
			errs = append(errs, fmt.Errorf("asr.model_type %q is invalid; valid values: sense-voice, transducer, whisper", cfg.ASR.ModelType))
		}
		if cfg.ASR.Tokens == "" {
			errs = append(errs, fmt.Errorf("asr.tokens is required when asr.binary is set"))
		}
	}

	seen := make(map[string]int, len(cfg.Modes))
	for i, m := range cfg.Modes {
		prefix := fmt.Sprintf("modes[%d]", i)
		if err := m.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			continue
		}
		if prev, dup := seen[m.ID]; dup {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of modes[%d]", prefix, m.ID, prev))
		}
		seen[m.ID] = i
	}

	return errors.Join(errs...)
}

// validateLoopback rejects listen addresses that reach beyond the local
// machine. The control API is unauthenticated and can inject keystrokes.
func validateLoopback(addr string) error {
	if addr == "" {
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("server.addr %q is not host:port: %w", addr, err)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if ip == nil || !ip.IsLoopback() {
		return fmt.Errorf("server.addr %q must bind a loopback address", addr)
	}
	return nil
}
