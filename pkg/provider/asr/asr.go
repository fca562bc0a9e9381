// Package asr defines the speech-to-text contract.
//
// A Transcriber turns a finished audio segment into a raw transcript string.
// Implementations live in subpackages: sherpa wraps a sherpa-onnx sidecar
// process, mock serves tests.
package asr

import (
	"context"
	"errors"
	"strings"

	"github.com/voicekey/voicekey/pkg/audio"
)

// ErrTranscriptionFailed wraps any recognizer fault. A session that hits it
// ends in a failed state; there is no fallback recognizer.
var ErrTranscriptionFailed = errors.New("asr: transcription failed")

// Transcriber is the abstraction over a speech recognizer.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation, killing any spawned recognizer process when ctx is cancelled.
type Transcriber interface {
	// Name returns the stable recognizer identifier used in logs and metrics.
	Name() string

	// Transcribe converts the segment to text. An empty string with a nil
	// error is a valid result and means no speech was recognised.
	Transcribe(ctx context.Context, seg audio.Segment) (string, error)
}

// hallucinations are artifacts that speech models emit for silence or music.
// They are stripped rather than surfaced as dictated text.
var hallucinations = []string{
	"[BLANK_AUDIO]",
	"[silence]",
	"(music)",
	"[MUSIC]",
	"(silence)",
}

// CleanTranscript strips recogniser hallucination markers and surrounding
// whitespace. Shared by all Transcriber implementations.
func CleanTranscript(text string) string {
	for _, h := range hallucinations {
		text = strings.ReplaceAll(text, h, "")
	}
	return strings.TrimSpace(text)
}
