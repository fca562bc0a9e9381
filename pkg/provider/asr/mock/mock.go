// Package mock provides a test double for the asr.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/voicekey/voicekey/pkg/audio"
	"github.com/voicekey/voicekey/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Segment is the audio passed to Transcribe.
	Segment audio.Segment
}

// Transcriber is a mock implementation of asr.Transcriber.
// Zero values return an empty transcript and nil error.
type Transcriber struct {
	mu sync.Mutex

	// NameValue is returned by Name. Defaults to "mock" when empty.
	NameValue string

	// Transcript is returned by Transcribe when Err is nil.
	Transcript string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// TranscribeFunc, if non-nil, is called instead of returning
	// Transcript/Err.
	TranscribeFunc func(ctx context.Context, seg audio.Segment) (string, error)

	// TranscribeCalls records every invocation of Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Name returns NameValue, or "mock" when unset.
func (t *Transcriber) Name() string {
	if t.NameValue == "" {
		return "mock"
	}
	return t.NameValue
}

// Transcribe records the call and returns the configured transcript or error.
func (t *Transcriber) Transcribe(ctx context.Context, seg audio.Segment) (string, error) {
	t.mu.Lock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Ctx: ctx, Segment: seg})
	fn := t.TranscribeFunc
	transcript, err := t.Transcript, t.Err
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, seg)
	}
	return transcript, err
}

// Ensure Transcriber implements asr.Transcriber at compile time.
var _ asr.Transcriber = (*Transcriber)(nil)
