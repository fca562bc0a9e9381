package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voicekey/voicekey/pkg/provider/llm"
)

func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   "llama-3.1-8b-instant",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
			},
		},
	}
}

func TestIsAvailableIsCredentialOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("availability check must not touch the network")
	}))
	defer srv.Close()

	withKey, err := New(llm.StaticKey("gsk_test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !withKey.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = false with key configured, want true")
	}

	withoutKey, err := New(llm.StaticKey(""), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if withoutKey.IsAvailable(context.Background()) {
		t.Error("IsAvailable() = true without key, want false")
	}
}

func TestGenerateSendsBearerAndParams(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse("Hello, World."))
	}))
	defer srv.Close()

	p, err := New(llm.StaticKey("gsk_test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	out, err := p.Generate(context.Background(), "Fix grammar: hello world", llm.DefaultOptions())
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out != "Hello, World." {
		t.Errorf("Generate() = %q, want %q", out, "Hello, World.")
	}

	if gotAuth != "Bearer gsk_test" {
		t.Errorf("Authorization = %q, want Bearer gsk_test", gotAuth)
	}
	msgs, ok := gotBody["messages"].([]any)
	if !ok || len(msgs) != 1 {
		t.Fatalf("messages = %v, want one entry", gotBody["messages"])
	}
	msg := msgs[0].(map[string]any)
	if msg["role"] != "user" || msg["content"] != "Fix grammar: hello world" {
		t.Errorf("message = %v", msg)
	}
	if gotBody["temperature"] != 0.2 {
		t.Errorf("temperature = %v, want 0.2", gotBody["temperature"])
	}
	if gotBody["max_tokens"] != float64(512) {
		t.Errorf("max_tokens = %v, want 512", gotBody["max_tokens"])
	}
}

func TestGenerateMissingKeyIsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected without a credential")
	}))
	defer srv.Close()

	p, err := New(llm.StaticKey(""), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Generate(context.Background(), "hi", llm.DefaultOptions())
	if got := llm.KindOf(err); got != llm.KindAuthFailure {
		t.Errorf("kind = %v, want KindAuthFailure", got)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Keep the SDK's automatic retries fast.
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "tokens"},
		})
	}))
	defer srv.Close()

	p, err := New(llm.StaticKey("gsk_test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Generate(context.Background(), "hi", llm.DefaultOptions())
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if got := llm.KindOf(err); got != llm.KindRateLimited {
		t.Errorf("kind = %v, want KindRateLimited", got)
	}
}

func TestGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	p, err := New(llm.StaticKey("gsk_test"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_, err = p.Generate(context.Background(), "hi", llm.DefaultOptions())
	if got := llm.KindOf(err); got != llm.KindUnreachable {
		t.Errorf("kind = %v, want KindUnreachable", got)
	}
}
