// Command voicekey is the dictation daemon: it captures speech, transcribes
// it, optionally cleans it up with a language model, and types the result
// into the focused application. A localhost HTTP API drives sessions and
// serves history, stats, and metrics.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/voicekey/voicekey/internal/config"
	"github.com/voicekey/voicekey/internal/history"
	"github.com/voicekey/voicekey/internal/mode"
	"github.com/voicekey/voicekey/internal/observe"
	"github.com/voicekey/voicekey/internal/postprocess"
	"github.com/voicekey/voicekey/internal/secret"
	"github.com/voicekey/voicekey/internal/server"
	"github.com/voicekey/voicekey/internal/session"
	"github.com/voicekey/voicekey/internal/vocab"
	malgocap "github.com/voicekey/voicekey/pkg/audio/malgo"
	"github.com/voicekey/voicekey/pkg/inject/cmdinject"
	"github.com/voicekey/voicekey/pkg/provider/asr"
	"github.com/voicekey/voicekey/pkg/provider/asr/sherpa"
	"github.com/voicekey/voicekey/pkg/provider/llm"
	"github.com/voicekey/voicekey/pkg/provider/llm/groq"
	"github.com/voicekey/voicekey/pkg/provider/llm/ollama"
	"github.com/voicekey/voicekey/pkg/provider/llm/openrouter"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	encryptSecret := flag.Bool("encrypt-secret", false,
		"read a secret from stdin, print its encrypted form for the config file, and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicekey: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicekey: %v\n", err)
		}
		return 1
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "voicekey: resolve home directory: %v\n", err)
			return 1
		}
		dataDir = filepath.Join(home, ".local", "share", "voicekey")
	}

	// ── Secret vault ──────────────────────────────────────────────────────────
	vault, err := secret.Open(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicekey: %v\n", err)
		return 1
	}

	if *encryptSecret {
		return runEncryptSecret(vault)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Server))

	slog.Info("voicekey starting",
		"config", *configPath,
		"listen_addr", cfg.Server.Addr,
		"data_dir", dataDir,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "voicekey",
	})
	if err != nil {
		slog.Error("init telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Vocabulary ────────────────────────────────────────────────────────────
	var corrector *vocab.Corrector
	if cfg.VocabularyFile != "" {
		corrector, err = vocab.LoadFile(cfg.VocabularyFile)
		if err != nil {
			slog.Error("load vocabulary", "err", err)
			return 1
		}
		slog.Info("vocabulary loaded", "terms", len(corrector.Terms()))
	} else {
		corrector = vocab.New(nil)
	}
	hotwordsPath := filepath.Join(dataDir, "hotwords.txt")
	if err := corrector.WriteHotwords(hotwordsPath); err != nil {
		slog.Warn("write hotwords", "err", err)
		hotwordsPath = ""
	}

	// ── Speech recognizer ─────────────────────────────────────────────────────
	transcriber, err := buildTranscriber(cfg.ASR, hotwordsPath)
	if err != nil {
		slog.Error("init recognizer", "err", err)
		return 1
	}

	// ── LLM providers, fixed fallback order ───────────────────────────────────
	local, cloud, err := buildProviders(cfg.Providers, vault)
	if err != nil {
		slog.Error("init providers", "err", err)
		return 1
	}
	selector, err := postprocess.NewSelector(metrics, append([]llm.Provider{local}, cloud...)...)
	if err != nil {
		slog.Error("init selector", "err", err)
		return 1
	}
	slog.Info("provider chain ready", "order", selector.Providers())

	// ── Audio capture ─────────────────────────────────────────────────────────
	capturer, err := malgocap.New(malgocap.WithMaxDuration(cfg.Audio.MaxDuration))
	if err != nil {
		slog.Error("init audio capture", "err", err)
		return 1
	}
	defer capturer.Close()

	// ── Text injection ────────────────────────────────────────────────────────
	var injectOpts []cmdinject.Option
	if len(cfg.Inject.Command) > 0 {
		injectOpts = append(injectOpts, cmdinject.WithCommand(cfg.Inject.Command...))
	}
	injector, err := cmdinject.New(injectOpts...)
	if err != nil {
		slog.Error("init injector", "err", err)
		return 1
	}

	// ── History ───────────────────────────────────────────────────────────────
	store, err := history.Open(dataDir)
	if err != nil {
		slog.Error("open history", "err", err)
		return 1
	}
	defer store.Close()

	// ── Mode resolver and session machine ─────────────────────────────────────
	resolver, err := mode.NewResolver(cfg.Modes)
	if err != nil {
		slog.Error("init modes", "err", err)
		return 1
	}
	machine, err := session.NewMachine(capturer, transcriber, selector, injector, resolver,
		session.WithHistory(history.NewRecorder(store)),
		session.WithCorrector(corrector),
		session.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("init session machine", "err", err)
		return 1
	}
	machine.SetActiveMode(cfg.ActiveMode)

	// ── Control surface ───────────────────────────────────────────────────────
	srv := server.New(cfg.Server.Addr, machine,
		server.WithHistoryStore(store),
		server.WithVocabulary(corrector),
		server.WithMetrics(metrics),
		server.WithChecker(server.Checker{Name: "history", Check: store.Ping}),
		server.WithChecker(server.Checker{
			Name: "providers",
			Check: func(ctx context.Context) error {
				for _, p := range append([]llm.Provider{local}, cloud...) {
					if p.IsAvailable(ctx) {
						return nil
					}
				}
				return errors.New("no post-processing provider is available")
			},
		}),
	)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	slog.Info("ready", "addr", cfg.Server.Addr)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping")
	case err := <-serveErr:
		if err != nil {
			slog.Error("serve error", "err", err)
			return 1
		}
		return 0
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := machine.Cancel(); err != nil && !errors.Is(err, session.ErrNoActiveSession) {
		slog.Warn("cancel active session", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runEncryptSecret reads one secret from stdin and prints the sealed form to
// paste into the config file. Reading from stdin keeps the plaintext out of
// shell history.
func runEncryptSecret(vault *secret.Vault) int {
	fmt.Fprintln(os.Stderr, "enter secret, then newline:")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "voicekey: read secret: %v\n", err)
		return 1
	}
	plaintext := strings.TrimRight(line, "\r\n")
	if plaintext == "" {
		fmt.Fprintln(os.Stderr, "voicekey: secret must not be empty")
		return 1
	}
	sealed, err := vault.Seal(plaintext)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicekey: %v\n", err)
		return 1
	}
	fmt.Println(sealed)
	return 0
}

// newLogger builds the process logger from the server config.
func newLogger(cfg config.ServerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel.Level()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// buildTranscriber constructs the sherpa sidecar transcriber from config.
func buildTranscriber(cfg config.ASRConfig, hotwordsPath string) (asr.Transcriber, error) {
	if cfg.Binary == "" {
		return nil, errors.New("asr.binary is not configured")
	}
	return sherpa.New(sherpa.Config{
		BinaryPath:   cfg.Binary,
		ModelType:    sherpa.ModelType(cfg.ModelType),
		TokensPath:   cfg.Tokens,
		ModelPath:    cfg.Model,
		EncoderPath:  cfg.Encoder,
		DecoderPath:  cfg.Decoder,
		JoinerPath:   cfg.Joiner,
		HotwordsPath: hotwordsPath,
	})
}

// buildProviders constructs the LLM chain: the local daemon first, then the
// cloud providers in reliability order. Cloud credentials stay sealed until
// the moment of use.
func buildProviders(cfg config.ProvidersConfig, vault *secret.Vault) (llm.Provider, []llm.Provider, error) {
	var ollamaOpts []ollama.Option
	if cfg.Ollama.BaseURL != "" {
		ollamaOpts = append(ollamaOpts, ollama.WithBaseURL(cfg.Ollama.BaseURL))
	}
	if cfg.Ollama.Model != "" {
		ollamaOpts = append(ollamaOpts, ollama.WithModel(cfg.Ollama.Model))
	}
	if cfg.Ollama.Timeout > 0 {
		ollamaOpts = append(ollamaOpts, ollama.WithTimeout(cfg.Ollama.Timeout))
	}
	local := ollama.New(ollamaOpts...)

	var groqOpts []groq.Option
	if cfg.Groq.BaseURL != "" {
		groqOpts = append(groqOpts, groq.WithBaseURL(cfg.Groq.BaseURL))
	}
	if cfg.Groq.Model != "" {
		groqOpts = append(groqOpts, groq.WithModel(cfg.Groq.Model))
	}
	groqProvider, err := groq.New(vault.KeySource(cfg.Groq.APIKeyEncrypted), groqOpts...)
	if err != nil {
		return nil, nil, err
	}

	var orOpts []openrouter.Option
	if cfg.OpenRouter.BaseURL != "" {
		orOpts = append(orOpts, openrouter.WithBaseURL(cfg.OpenRouter.BaseURL))
	}
	if cfg.OpenRouter.Model != "" {
		orOpts = append(orOpts, openrouter.WithModel(cfg.OpenRouter.Model))
	}
	orProvider, err := openrouter.New(vault.KeySource(cfg.OpenRouter.APIKeyEncrypted), orOpts...)
	if err != nil {
		return nil, nil, err
	}

	return local, []llm.Provider{groqProvider, orProvider}, nil
}
