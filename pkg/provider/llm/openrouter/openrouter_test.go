package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

func TestBareModelIDRejectedBeforeNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("a bare model id must never reach the backend")
	}))
	defer srv.Close()

	p, err := New(llm.StaticKey("sk-or-test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Generate(context.Background(), "hi", llm.Options{Model: "gemini-1.5-flash"})
	if err == nil {
		t.Fatal("expected error for model id without vendor prefix")
	}
	if got := llm.KindOf(err); got != llm.KindInvalidRequest {
		t.Errorf("kind = %v, want KindInvalidRequest", got)
	}
}

func TestGenerateSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Hello, World."}},
			},
		})
	}))
	defer srv.Close()

	p, err := New(llm.StaticKey("sk-or-test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := p.Generate(context.Background(), "Fix grammar: hello world", llm.Options{
		Temperature: 0.2,
		MaxTokens:   512,
		Model:       "google/gemini-1.5-flash",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Hello, World." {
		t.Errorf("Generate() = %q, want %q", out, "Hello, World.")
	}
	if gotAuth != "Bearer sk-or-test" {
		t.Errorf("Authorization = %q, want Bearer sk-or-test", gotAuth)
	}
	if gotBody["model"] != "google/gemini-1.5-flash" {
		t.Errorf("model = %v, want google/gemini-1.5-flash", gotBody["model"])
	}
}

func TestGenerateStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   llm.ErrorKind
	}{
		{http.StatusTooManyRequests, llm.KindRateLimited},
		{http.StatusUnauthorized, llm.KindAuthFailure},
		{http.StatusBadRequest, llm.KindInvalidRequest},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		p, err := New(llm.StaticKey("sk-or-test"), WithBaseURL(srv.URL))
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, err = p.Generate(context.Background(), "hi", llm.DefaultOptions())
		srv.Close()

		if got := llm.KindOf(err); got != tt.want {
			t.Errorf("status %d: kind = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsAvailableIsCredentialOnly(t *testing.T) {
	p, err := New(llm.StaticKey("sk-or-test"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !p.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false with key, want true")
	}

	empty, err := New(llm.StaticKey(""))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if empty.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true without key, want false")
	}

	failing, err := New(func() (string, error) { return "", context.DeadlineExceeded })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if failing.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true with failing key source, want false")
	}
}
