// Package sherpa implements asr.Transcriber by shelling out to a sherpa-onnx
// offline recognizer binary.
//
// The segment is written to a temporary WAV file, the recognizer runs once per
// segment, and the result is parsed from the JSON line the binary prints
// (depending on the build it lands on stderr or stdout). Three model families
// are supported: sense-voice, transducer, and whisper.
package sherpa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/voicekey/voicekey/pkg/audio"
	"github.com/voicekey/voicekey/pkg/provider/asr"
)

// ProviderName is the identifier reported by [Transcriber.Name].
const ProviderName = "sherpa"

// ModelType selects the sherpa-onnx model family and with it the CLI flags
// passed to the binary.
type ModelType string

const (
	// ModelSenseVoice is a single-file multilingual model.
	ModelSenseVoice ModelType = "sense-voice"

	// ModelTransducer is an encoder/decoder/joiner triple. The only family
	// that supports hotword biasing.
	ModelTransducer ModelType = "transducer"

	// ModelWhisper is an encoder/decoder pair.
	ModelWhisper ModelType = "whisper"
)

// Config describes the recognizer binary and model files.
type Config struct {
	// BinaryPath locates the sherpa-onnx executable.
	BinaryPath string

	// ModelType selects the model family.
	ModelType ModelType

	// TokensPath locates the tokens.txt shared by all families.
	TokensPath string

	// ModelPath is the single model file (sense-voice only).
	ModelPath string

	// EncoderPath, DecoderPath, JoinerPath are the model parts for the
	// transducer and whisper families. Whisper has no joiner.
	EncoderPath string
	DecoderPath string
	JoinerPath  string

	// HotwordsPath, when non-empty and existing, biases transducer decoding
	// toward the listed vocabulary using modified beam search.
	HotwordsPath string

	// HotwordsScore is the biasing weight. Defaults to 2.0.
	HotwordsScore float64

	// NumThreads for inference. Defaults to 4.
	NumThreads int
}

// Transcriber implements asr.Transcriber by executing a sherpa-onnx binary
// per segment. Safe for concurrent use; each call runs its own process.
type Transcriber struct {
	cfg Config
}

// Compile-time interface assertion.
var _ asr.Transcriber = (*Transcriber)(nil)

// New validates cfg and constructs the Transcriber.
func New(cfg Config) (*Transcriber, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("sherpa: binary path must not be empty")
	}
	if cfg.TokensPath == "" {
		return nil, fmt.Errorf("sherpa: tokens path must not be empty")
	}
	switch cfg.ModelType {
	case ModelSenseVoice:
		if cfg.ModelPath == "" {
			return nil, fmt.Errorf("sherpa: sense-voice requires a model path")
		}
	case ModelTransducer:
		if cfg.EncoderPath == "" || cfg.DecoderPath == "" || cfg.JoinerPath == "" {
			return nil, fmt.Errorf("sherpa: transducer requires encoder, decoder, and joiner paths")
		}
	case ModelWhisper:
		if cfg.EncoderPath == "" || cfg.DecoderPath == "" {
			return nil, fmt.Errorf("sherpa: whisper requires encoder and decoder paths")
		}
	default:
		return nil, fmt.Errorf("sherpa: unknown model type %q", cfg.ModelType)
	}

	if cfg.HotwordsScore == 0 {
		cfg.HotwordsScore = 2.0
	}
	if cfg.NumThreads == 0 {
		cfg.NumThreads = 4
	}
	return &Transcriber{cfg: cfg}, nil
}

// Name implements asr.Transcriber.
func (t *Transcriber) Name() string { return ProviderName }

// Transcribe implements asr.Transcriber.
func (t *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	if seg.Empty() {
		return "", nil
	}

	wavPath, err := writeTempWAV(seg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", asr.ErrTranscriptionFailed, err)
	}
	defer os.Remove(wavPath)

	args := t.args(wavPath)

	cmd := exec.CommandContext(ctx, t.cfg.BinaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: recognizer: %v: %s", asr.ErrTranscriptionFailed, err,
			strings.TrimSpace(stderr.String()))
	}

	// The JSON result line lands on stderr in most builds; check it first.
	if text, ok := extractText(stderr.String()); ok {
		return asr.CleanTranscript(text), nil
	}
	if text, ok := extractText(stdout.String()); ok {
		return asr.CleanTranscript(text), nil
	}
	return asr.CleanTranscript(stdout.String()), nil
}

// args builds the recognizer CLI invocation for the configured model family.
func (t *Transcriber) args(wavPath string) []string {
	args := []string{"--tokens=" + t.cfg.TokensPath}

	switch t.cfg.ModelType {
	case ModelSenseVoice:
		args = append(args,
			"--sense-voice-model="+t.cfg.ModelPath,
			"--model-type=sense-voice",
		)
	case ModelTransducer:
		args = append(args,
			"--encoder="+t.cfg.EncoderPath,
			"--decoder="+t.cfg.DecoderPath,
			"--joiner="+t.cfg.JoinerPath,
		)
		if t.cfg.HotwordsPath != "" {
			if _, err := os.Stat(t.cfg.HotwordsPath); err == nil {
				args = append(args,
					"--hotwords-file="+t.cfg.HotwordsPath,
					fmt.Sprintf("--hotwords-score=%.1f", t.cfg.HotwordsScore),
					"--decoding-method=modified_beam_search",
				)
			} else {
				args = append(args, "--decoding-method=greedy_search")
			}
		} else {
			args = append(args, "--decoding-method=greedy_search")
		}
	case ModelWhisper:
		args = append(args,
			"--whisper-encoder="+t.cfg.EncoderPath,
			"--whisper-decoder="+t.cfg.DecoderPath,
			"--whisper-language=en",
			"--whisper-task=transcribe",
			"--model-type=whisper",
		)
	}

	args = append(args, fmt.Sprintf("--num-threads=%d", t.cfg.NumThreads))
	return append(args, wavPath)
}

// extractText scans output line by line for a JSON object with a "text" field.
func extractText(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var v struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal([]byte(line), &v); err == nil && v.Text != nil {
			return *v.Text, true
		}
	}
	return "", false
}

func writeTempWAV(seg audio.Segment) (string, error) {
	f, err := os.CreateTemp("", "dictation-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(seg.WAV()); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write temp wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close temp wav: %w", err)
	}
	return filepath.Clean(path), nil
}
