// Package session orchestrates one dictation act end to end: capture,
// transcription, optional post-processing, and injection.
//
// The Machine enforces the single-active-session rule: a start request while
// a session is live is rejected synchronously, never queued, so a stale
// dictation can never inject into the wrong window later. One cancellation
// signal covers the whole session; cancelling it interrupts capture, kills an
// in-flight recognizer process, and aborts provider HTTP calls.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicekey/voicekey/internal/mode"
	"github.com/voicekey/voicekey/internal/observe"
	"github.com/voicekey/voicekey/internal/postprocess"
	"github.com/voicekey/voicekey/pkg/audio"
	"github.com/voicekey/voicekey/pkg/inject"
	"github.com/voicekey/voicekey/pkg/provider/asr"
)

// State is the machine's current position in the pipeline.
type State string

const (
	StateIdle           State = "idle"
	StateCapturing      State = "capturing"
	StateTranscribing   State = "transcribing"
	StatePostProcessing State = "post_processing"
	StateInjecting      State = "injecting"
)

// Status is a session's terminal outcome.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrSessionRejected is returned by Start while another session is active.
// The active session is left untouched.
var ErrSessionRejected = errors.New("session: another session is active")

// ErrNoActiveSession is returned by Finish and Cancel when no session is
// running.
var ErrNoActiveSession = errors.New("session: no active session")

// ErrNotCapturing is returned by Finish when the active session has already
// left the capturing state.
var ErrNotCapturing = errors.New("session: not capturing")

// Result is the write-once outcome of a finished session.
type Result struct {
	// ID identifies the session in logs and history.
	ID string

	// Status is the terminal outcome.
	Status Status

	// ModeID is the mode snapshot the session ran under.
	ModeID string

	// RawTranscript is the recognizer output before any rewriting.
	RawTranscript string

	// FinalText is what was handed to the injector. Equals RawTranscript
	// byte for byte when post-processing was disabled or failed entirely.
	FinalText string

	// Provider names the backend that rewrote the transcript. Empty when no
	// post-processing ran or when it degraded to the raw transcript.
	Provider string

	// Duration is the wall-clock session length.
	Duration time.Duration

	// WordCount counts whitespace-separated words in FinalText.
	WordCount int

	// Warning carries a non-fatal fault: a failed injection or a surfaced
	// provider misconfiguration. The session still completed.
	Warning error
}

// Recorder receives completed sessions for the dictation history. Cancelled
// and failed sessions are never recorded.
type Recorder interface {
	Record(ctx context.Context, res Result) error
}

// Corrector rewrites a transcript using the user vocabulary. Applied between
// recognition and post-processing.
type Corrector interface {
	Apply(text string) string
}

// Processor runs transcript post-processing. Implemented by
// [postprocess.Selector].
type Processor interface {
	Process(ctx context.Context, req mode.Request) (postprocess.Result, error)
}

// Machine drives dictation sessions. All methods are safe for concurrent
// use; at most one session is active at a time.
type Machine struct {
	capturer    audio.Capturer
	transcriber asr.Transcriber
	processor   Processor
	injector    inject.Injector
	resolver    *mode.Resolver
	metrics     *observe.Metrics

	// history and corrector are optional.
	history   Recorder
	corrector Corrector

	mu     sync.Mutex
	state  State
	active *activeSession
	modeID string
}

// activeSession is the mutable in-flight session bookkeeping.
type activeSession struct {
	id      string
	mode    mode.Mode
	started time.Time
	ctx     context.Context
	cancel  context.CancelFunc
}

// Option is a functional option for [Machine].
type Option func(*Machine)

// WithHistory wires a history recorder for completed sessions.
func WithHistory(r Recorder) Option {
	return func(m *Machine) { m.history = r }
}

// WithCorrector wires a vocabulary corrector applied to raw transcripts.
func WithCorrector(c Corrector) Option {
	return func(m *Machine) { m.corrector = c }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(met *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = met }
}

// NewMachine wires the pipeline collaborators. capturer, transcriber,
// processor, injector, and resolver are required.
func NewMachine(
	capturer audio.Capturer,
	transcriber asr.Transcriber,
	processor Processor,
	injector inject.Injector,
	resolver *mode.Resolver,
	opts ...Option,
) (*Machine, error) {
	if capturer == nil || transcriber == nil || processor == nil || injector == nil || resolver == nil {
		return nil, fmt.Errorf("session: all collaborators must be non-nil")
	}
	m := &Machine{
		capturer:    capturer,
		transcriber: transcriber,
		processor:   processor,
		injector:    injector,
		resolver:    resolver,
		state:       StateIdle,
	}
	for _, o := range opts {
		o(m)
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m, nil
}

// State returns the machine's current pipeline state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetActiveMode changes the mode used by subsequent sessions. The session
// currently in flight keeps its snapshot.
func (m *Machine) SetActiveMode(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modeID = id
}

// ActiveMode returns the mode the next session will resolve.
func (m *Machine) ActiveMode() mode.Mode {
	m.mu.Lock()
	id := m.modeID
	m.mu.Unlock()
	return m.resolver.Resolve(id)
}

// Modes returns the configured mode list.
func (m *Machine) Modes() []mode.Mode {
	return m.resolver.Modes()
}

// Start begins a new dictation session and starts audio capture. While a
// session is active it returns [ErrSessionRejected] without touching the
// active session. The session runs under its own context, detached from the
// caller's, so a control-surface request timeout cannot kill a dictation.
func (m *Machine) Start(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return "", ErrSessionRejected
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &activeSession{
		id:      uuid.NewString(),
		mode:    m.resolver.Resolve(m.modeID),
		started: time.Now(),
		ctx:     sessCtx,
		cancel:  cancel,
	}

	if err := m.capturer.Start(sessCtx); err != nil {
		cancel()
		return "", fmt.Errorf("session: start capture: %w", err)
	}

	m.state = StateCapturing
	m.active = sess
	m.metrics.ActiveSessions.Add(sessCtx, 1)

	observe.Logger(sessCtx).Info("session started",
		"session_id", sess.id, "mode", sess.mode.ID)
	return sess.id, nil
}

// Cancel aborts the active session. During capture it discards the buffered
// audio and returns the machine to idle directly; later in the pipeline it
// cancels the session context and lets the in-flight Finish observe the
// cancellation and finalise.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return ErrNoActiveSession
	}

	m.active.cancel()
	if m.state != StateCapturing {
		// Finish is running the pipeline; it finalises on the cancelled
		// context.
		return nil
	}

	if err := m.capturer.Abort(); err != nil && !errors.Is(err, audio.ErrNotCapturing) {
		observe.Logger(m.active.ctx).Warn("abort capture", "error", err)
	}
	m.finalizeLocked(Result{
		ID:     m.active.id,
		Status: StatusCancelled,
		ModeID: m.active.mode.ID,
	})
	return nil
}

// Finish stops capture and runs the rest of the pipeline to a terminal
// state: transcription, optional post-processing, injection, history. It
// blocks until the session is done and returns the write-once result.
func (m *Machine) Finish() (Result, error) {
	m.mu.Lock()
	if m.active == nil {
		m.mu.Unlock()
		return Result{}, ErrNoActiveSession
	}
	if m.state != StateCapturing {
		m.mu.Unlock()
		return Result{}, ErrNotCapturing
	}
	sess := m.active
	m.state = StateTranscribing
	m.mu.Unlock()

	res := m.runPipeline(sess)
	res.Duration = time.Since(sess.started)
	res.WordCount = countWords(res.FinalText)

	m.mu.Lock()
	m.finalizeLocked(res)
	m.mu.Unlock()

	if res.Status == StatusCompleted && m.history != nil && res.FinalText != "" {
		if err := m.history.Record(context.WithoutCancel(sess.ctx), res); err != nil {
			observe.Logger(sess.ctx).Warn("record history", "error", err)
		}
	}
	return res, nil
}

// runPipeline executes transcription through injection on the session
// context. It owns no machine state beyond what it is handed.
func (m *Machine) runPipeline(sess *activeSession) Result {
	ctx := sess.ctx
	log := observe.Logger(ctx).With("session_id", sess.id)
	res := Result{ID: sess.id, ModeID: sess.mode.ID}

	ctx, span := observe.StartSpan(ctx, "session.pipeline")
	defer span.End()

	seg, err := m.capturer.Stop()
	if err != nil {
		log.Error("stop capture", "error", err)
		res.Status = StatusFailed
		return res
	}
	m.metrics.CaptureDuration.Record(ctx, seg.Duration.Seconds())

	if ctx.Err() != nil {
		res.Status = StatusCancelled
		return res
	}

	transcribeStart := time.Now()
	raw, err := m.transcriber.Transcribe(ctx, seg)
	m.metrics.TranscribeDuration.Record(ctx, time.Since(transcribeStart).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			return res
		}
		log.Error("transcription failed", "error", err)
		res.Status = StatusFailed
		return res
	}

	if m.corrector != nil {
		raw = m.corrector.Apply(raw)
	}
	res.RawTranscript = raw
	res.FinalText = raw

	if raw == "" {
		// Nothing was recognised. Not a failure, just nothing to inject.
		log.Info("empty transcript, nothing to inject")
		res.Status = StatusCompleted
		return res
	}

	if req, ok := mode.ResolveRequest(sess.mode, raw); ok {
		m.setState(StatePostProcessing)
		ppStart := time.Now()
		out, ppErr := m.processor.Process(ctx, req)
		m.metrics.PostProcessDuration.Record(ctx, time.Since(ppStart).Seconds())

		switch {
		case ppErr == nil:
			res.FinalText = out.Text
			res.Provider = out.Provider
		case ctx.Err() != nil:
			res.Status = StatusCancelled
			return res
		case errors.Is(ppErr, postprocess.ErrAllProvidersFailed),
			errors.Is(ppErr, postprocess.ErrNoSuchProvider):
			// Best-effort enhancement: degrade to the untouched transcript.
			log.Warn("post-processing unavailable, using raw transcript", "error", ppErr)
			m.metrics.PostProcessFallbacks.Add(ctx, 1)
		default:
			// A surfaced misconfiguration (bad pinned model). The dictation
			// still delivers the raw transcript; the warning reaches the user.
			log.Warn("post-processing rejected request, using raw transcript", "error", ppErr)
			res.Warning = ppErr
		}
	}

	if ctx.Err() != nil {
		res.Status = StatusCancelled
		return res
	}

	m.setState(StateInjecting)
	injectStart := time.Now()
	if err := m.injector.Inject(ctx, res.FinalText); err != nil {
		if ctx.Err() != nil {
			res.Status = StatusCancelled
			return res
		}
		// The text exists and lands in history; delivery is best-effort.
		log.Warn("injection failed", "error", err)
		res.Warning = errors.Join(res.Warning, err)
	}
	m.metrics.InjectDuration.Record(ctx, time.Since(injectStart).Seconds())

	res.Status = StatusCompleted
	return res
}

// finalizeLocked records the terminal outcome and resets the machine. Caller
// holds mu.
func (m *Machine) finalizeLocked(res Result) {
	if m.active == nil {
		return
	}
	sess := m.active
	sess.cancel()

	duration := time.Since(sess.started)
	ctx := context.WithoutCancel(sess.ctx)
	m.metrics.ActiveSessions.Add(ctx, -1)
	m.metrics.RecordSession(ctx, string(res.Status), duration)

	observe.Logger(ctx).Info("session finished",
		"session_id", sess.id,
		"status", string(res.Status),
		"duration", duration,
		"words", countWords(res.FinalText))

	m.active = nil
	m.state = StateIdle
}

func (m *Machine) setState(s State) {
	m.mu.Lock()
	// Cancellation may have reset the machine already; do not resurrect it.
	if m.active != nil {
		m.state = s
	}
	m.mu.Unlock()
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
