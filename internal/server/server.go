// Package server exposes the daemon's localhost control surface: session
// control, history and stats queries, mode management, health probes, and
// the Prometheus metrics endpoint.
//
// The API is unauthenticated and must only ever bind a loopback address;
// configuration validation enforces that. Hotkey daemons and the tray UI are
// the intended clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voicekey/voicekey/internal/history"
	"github.com/voicekey/voicekey/internal/mode"
	"github.com/voicekey/voicekey/internal/observe"
	"github.com/voicekey/voicekey/internal/session"
)

// Server is the control-surface HTTP server.
type Server struct {
	machine  *session.Machine
	store    *history.Store
	vocab    VocabularySource
	checkers []Checker
	metrics  *observe.Metrics

	httpServer *http.Server
}

// VocabularySource serves the user vocabulary endpoint. Implemented by
// vocab.Corrector.
type VocabularySource interface {
	Terms() []string
}

// Option is a functional option for [Server].
type Option func(*Server)

// WithHistoryStore wires the history and stats endpoints. Without it they
// return 404.
func WithHistoryStore(store *history.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithVocabulary wires the vocabulary endpoint.
func WithVocabulary(v VocabularySource) Option {
	return func(s *Server) { s.vocab = v }
}

// WithChecker registers a readiness check.
func WithChecker(c Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, c) }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the server around the session machine.
func New(addr string, machine *session.Machine, opts ...Option) *Server {
	s := &Server{machine: machine}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route tree. Used directly by httptest in tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving the API until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /readyz", s.readyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/session/start", s.handleSessionStart)
	mux.HandleFunc("POST /api/session/finish", s.handleSessionFinish)
	mux.HandleFunc("POST /api/session/cancel", s.handleSessionCancel)
	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/modes", s.handleModes)
	mux.HandleFunc("PUT /api/modes/active", s.handleSetActiveMode)

	if s.store != nil {
		mux.HandleFunc("GET /api/history", s.handleHistory)
		mux.HandleFunc("DELETE /api/history/{id}", s.handleHistoryDelete)
		mux.HandleFunc("GET /api/stats", s.handleStats)
	}
	if s.vocab != nil {
		mux.HandleFunc("GET /api/vocabulary", s.handleVocabulary)
	}

	return s.instrument(mux)
}

// instrument records request latency per method and path pattern.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		pattern := r.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", pattern),
			))
	})
}

type errorBody struct {
	Error string `json:"error"`
}

type sessionStartedBody struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	id, err := s.machine.Start(r.Context())
	switch {
	case errors.Is(err, session.ErrSessionRejected):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, sessionStartedBody{
			SessionID: id,
			State:     string(s.machine.State()),
		})
	}
}

type sessionResultBody struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Text      string `json:"text"`
	Provider  string `json:"provider,omitempty"`
	WordCount int    `json:"word_count"`
	Warning   string `json:"warning,omitempty"`
}

func (s *Server) handleSessionFinish(w http.ResponseWriter, _ *http.Request) {
	res, err := s.machine.Finish()
	switch {
	case errors.Is(err, session.ErrNoActiveSession), errors.Is(err, session.ErrNotCapturing):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	body := sessionResultBody{
		SessionID: res.ID,
		Status:    string(res.Status),
		Text:      res.FinalText,
		Provider:  res.Provider,
		WordCount: res.WordCount,
	}
	if res.Warning != nil {
		body.Warning = res.Warning.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, _ *http.Request) {
	err := s.machine.Cancel()
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"state": string(s.machine.State())})
	}
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"state":       string(s.machine.State()),
		"active_mode": s.machine.ActiveMode().ID,
	})
}

func (s *Server) handleModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Active string      `json:"active"`
		Modes  []mode.Mode `json:"modes"`
	}{
		Active: s.machine.ActiveMode().ID,
		Modes:  s.machine.Modes(),
	})
}

func (s *Server) handleSetActiveMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "body must be {\"id\": \"<mode-id>\"}"})
		return
	}
	s.machine.SetActiveMode(body.ID)
	writeJSON(w, http.StatusOK, map[string]string{
		"active_mode": s.machine.ActiveMode().ID,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, err := s.store.List(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id must be an integer"})
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleVocabulary(w http.ResponseWriter, _ *http.Request) {
	terms := s.vocab.Terms()
	if terms == nil {
		terms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"terms": terms})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
