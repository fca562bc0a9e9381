package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/voicekey/voicekey/internal/history"
	"github.com/voicekey/voicekey/internal/mode"
	"github.com/voicekey/voicekey/internal/postprocess"
	"github.com/voicekey/voicekey/internal/session"
	"github.com/voicekey/voicekey/pkg/audio"
	audiomock "github.com/voicekey/voicekey/pkg/audio/mock"
	injectmock "github.com/voicekey/voicekey/pkg/inject/mock"
	asrmock "github.com/voicekey/voicekey/pkg/provider/asr/mock"
)

type noopProcessor struct{}

func (noopProcessor) Process(context.Context, mode.Request) (postprocess.Result, error) {
	return postprocess.Result{}, postprocess.ErrAllProvidersFailed
}

type staticVocab []string

func (v staticVocab) Terms() []string { return v }

func newTestServer(t *testing.T, opts ...Option) (*Server, *injectmock.Injector) {
	t.Helper()
	resolver, err := mode.NewResolver([]mode.Mode{
		{ID: "plain", Default: true},
		{ID: "email", Name: "Email"},
	})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	injector := &injectmock.Injector{}
	machine, err := session.NewMachine(
		&audiomock.Capturer{Segment: audio.Segment{PCM: []byte{1, 0}}},
		&asrmock.Transcriber{Transcript: "hello world"},
		noopProcessor{},
		injector,
		resolver,
	)
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	machine.SetActiveMode("plain")
	return New("127.0.0.1:0", machine, opts...), injector
}

func newHistoryStore(t *testing.T) *history.Store {
	t.Helper()
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenPath() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func do(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func TestSessionLifecycle(t *testing.T) {
	srv, injector := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/session/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	started := decode[map[string]string](t, rec)
	if started["session_id"] == "" || started["state"] != "capturing" {
		t.Errorf("start body = %v", started)
	}

	// A second start while capturing is rejected synchronously.
	rec = do(t, h, http.MethodPost, "/api/session/start", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("concurrent start status = %d, want 409", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/session/finish", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("finish status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	finished := decode[map[string]any](t, rec)
	if finished["status"] != "completed" || finished["text"] != "hello world" {
		t.Errorf("finish body = %v", finished)
	}
	if finished["word_count"] != float64(2) {
		t.Errorf("word_count = %v, want 2", finished["word_count"])
	}
	if len(injector.Injected) != 1 {
		t.Errorf("injections = %d, want 1", len(injector.Injected))
	}

	// The machine is idle again; finish with nothing running conflicts.
	rec = do(t, h, http.MethodPost, "/api/session/finish", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("finish without session status = %d, want 409", rec.Code)
	}
}

func TestSessionCancel(t *testing.T) {
	srv, injector := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/session/cancel", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel without session status = %d, want 409", rec.Code)
	}

	do(t, h, http.MethodPost, "/api/session/start", "")
	rec = do(t, h, http.MethodPost, "/api/session/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["state"]; got != "idle" {
		t.Errorf("state after cancel = %q, want idle", got)
	}
	if len(injector.Injected) != 0 {
		t.Error("cancelled session injected text")
	}
}

func TestStateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d, want 200", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["state"] != "idle" || body["active_mode"] != "plain" {
		t.Errorf("state body = %v", body)
	}
}

func TestModesEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/modes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("modes status = %d, want 200", rec.Code)
	}
	body := decode[struct {
		Active string      `json:"active"`
		Modes  []mode.Mode `json:"modes"`
	}](t, rec)
	if body.Active != "plain" || len(body.Modes) != 2 {
		t.Errorf("modes body = %+v", body)
	}

	rec = do(t, h, http.MethodPut, "/api/modes/active", `{"id": "email"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set active status = %d, want 200", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["active_mode"]; got != "email" {
		t.Errorf("active_mode = %q, want email", got)
	}

	rec = do(t, h, http.MethodPut, "/api/modes/active", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("set active without id status = %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	store := newHistoryStore(t)
	e := &history.Entry{
		SessionID: "s1", ModeID: "plain",
		RawText: "hello world", FinalText: "hello world",
		WordCount: 2, DurationMs: 3000,
		Timestamp: time.Now().UTC(),
	}
	if err := store.Save(context.Background(), e); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	srv, _ := newTestServer(t, WithHistoryStore(store))
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d, want 200", rec.Code)
	}
	entries := decode[[]history.Entry](t, rec)
	if len(entries) != 1 || entries[0].SessionID != "s1" {
		t.Errorf("history = %+v", entries)
	}

	rec = do(t, h, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, want 200", rec.Code)
	}
	stats := decode[history.Stats](t, rec)
	if stats.TotalDictations != 1 || stats.TotalWords != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rec = do(t, h, http.MethodDelete, "/api/history/abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete non-integer id status = %d, want 400", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/history/999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing id status = %d, want 404", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/history/1", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
}

func TestHistoryDisabledWithoutStore(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("history without store status = %d, want 404", rec.Code)
	}
}

func TestVocabularyEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, WithVocabulary(staticVocab{"Grafana", "Sarah"}))
	rec := do(t, srv.Handler(), http.MethodGet, "/api/vocabulary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("vocabulary status = %d, want 200", rec.Code)
	}
	body := decode[map[string][]string](t, rec)
	if len(body["terms"]) != 2 {
		t.Errorf("terms = %v, want two entries", body["terms"])
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t,
		WithChecker(Checker{Name: "ok", Check: func(context.Context) error { return nil }}),
	)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d, want 200", rec.Code)
	}

	failing, _ := newTestServer(t,
		WithChecker(Checker{Name: "db", Check: func(context.Context) error { return errors.New("locked") }}),
	)
	rec = do(t, failing.Handler(), http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rec.Code)
	}
	body := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rec)
	if body.Status != "fail" || !strings.HasPrefix(body.Checks["db"], "fail:") {
		t.Errorf("readyz body = %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", rec.Code)
	}
}
