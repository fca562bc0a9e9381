package postprocess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voicekey/voicekey/internal/mode"
	"github.com/voicekey/voicekey/pkg/provider/llm"
	llmmock "github.com/voicekey/voicekey/pkg/provider/llm/mock"
)

func newChain(t *testing.T) (*Selector, *llmmock.Provider, *llmmock.Provider, *llmmock.Provider) {
	t.Helper()
	local := &llmmock.Provider{NameValue: "ollama", Available: true}
	cloudA := &llmmock.Provider{NameValue: "groq", Available: true}
	cloudB := &llmmock.Provider{NameValue: "openrouter", Available: true}
	s, err := NewSelector(nil, local, cloudA, cloudB)
	if err != nil {
		t.Fatalf("NewSelector() error = %v", err)
	}
	return s, local, cloudA, cloudB
}

func autoRequest() mode.Request {
	return mode.Request{
		Prompt:   "Fix grammar: hello world",
		Provider: mode.ProviderAuto,
		Options:  llm.DefaultOptions(),
	}
}

func TestFirstSuccessShortCircuits(t *testing.T) {
	s, local, cloudA, cloudB := newChain(t)
	local.GenerateResponse = "from local"

	res, err := s.Process(context.Background(), autoRequest())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Text != "from local" || res.Provider != "ollama" {
		t.Errorf("Process() = %+v, want from local/ollama", res)
	}
	if len(cloudA.GenerateCalls) != 0 || len(cloudB.GenerateCalls) != 0 {
		t.Error("later candidates were invoked after an earlier success")
	}
}

func TestUnavailableProviderNeverAttempted(t *testing.T) {
	s, local, cloudA, _ := newChain(t)
	local.Available = false
	cloudA.GenerateResponse = "from groq"

	res, err := s.Process(context.Background(), autoRequest())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Provider != "groq" {
		t.Errorf("Provider = %q, want groq", res.Provider)
	}
	if len(local.GenerateCalls) != 0 {
		t.Error("unavailable provider was attempted")
	}
}

func TestAutoOrderIsFixed(t *testing.T) {
	s, local, cloudA, cloudB := newChain(t)
	var order []string
	fail := func(name string) func(context.Context, string, llm.Options) (string, error) {
		return func(context.Context, string, llm.Options) (string, error) {
			order = append(order, name)
			return "", llm.NewError(name, llm.KindUnreachable, errors.New("down"))
		}
	}
	local.GenerateFunc = fail("ollama")
	cloudA.GenerateFunc = fail("groq")
	cloudB.GenerateFunc = fail("openrouter")

	_, err := s.Process(context.Background(), autoRequest())
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Process() error = %v, want ErrAllProvidersFailed", err)
	}
	want := []string{"ollama", "groq", "openrouter"}
	if len(order) != len(want) {
		t.Fatalf("attempt order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("attempt order = %v, want %v", order, want)
		}
	}
}

func TestFallbackScenario(t *testing.T) {
	// Local unreachable, Cloud-A rate limited, Cloud-B succeeds.
	s, local, cloudA, cloudB := newChain(t)
	local.GenerateErr = llm.NewError("ollama", llm.KindUnreachable, errors.New("connection refused"))
	cloudA.GenerateErr = llm.NewError("groq", llm.KindRateLimited, errors.New("429"))
	cloudB.GenerateResponse = "Hello, World."

	res, err := s.Process(context.Background(), autoRequest())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Text != "Hello, World." {
		t.Errorf("Text = %q, want %q", res.Text, "Hello, World.")
	}
	if res.Provider != "openrouter" {
		t.Errorf("Provider = %q, want openrouter", res.Provider)
	}
}

func TestAllProvidersFailed(t *testing.T) {
	s, local, cloudA, cloudB := newChain(t)
	local.GenerateErr = llm.NewError("ollama", llm.KindUnreachable, errors.New("down"))
	cloudA.GenerateErr = llm.NewError("groq", llm.KindAuthFailure, errors.New("401"))
	cloudB.GenerateErr = llm.NewError("openrouter", llm.KindRateLimited, errors.New("429"))

	_, err := s.Process(context.Background(), autoRequest())
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Process() error = %v, want ErrAllProvidersFailed", err)
	}
}

func TestNoAvailableProviders(t *testing.T) {
	s, local, cloudA, cloudB := newChain(t)
	local.Available = false
	cloudA.Available = false
	cloudB.Available = false

	_, err := s.Process(context.Background(), autoRequest())
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Process() error = %v, want ErrAllProvidersFailed", err)
	}
	if len(local.GenerateCalls)+len(cloudA.GenerateCalls)+len(cloudB.GenerateCalls) != 0 {
		t.Error("generation was attempted with no available provider")
	}
}

func TestInvalidRequestWithPinnedModelSurfaces(t *testing.T) {
	s, local, cloudA, _ := newChain(t)
	local.Available = false
	badModel := llm.NewError("groq", llm.KindInvalidRequest, errors.New("unknown model"))
	cloudA.GenerateErr = badModel

	req := autoRequest()
	req.Options.Model = "not-a-real-model"
	_, err := s.Process(context.Background(), req)
	if errors.Is(err, ErrAllProvidersFailed) {
		t.Fatal("invalid request with pinned model was swallowed by fallback")
	}
	if got := llm.KindOf(err); got != llm.KindInvalidRequest {
		t.Fatalf("kind = %v, want KindInvalidRequest", got)
	}
}

func TestInvalidRequestWithoutPinnedModelAdvances(t *testing.T) {
	s, local, cloudA, _ := newChain(t)
	local.GenerateErr = llm.NewError("ollama", llm.KindInvalidRequest, errors.New("bad default"))
	cloudA.GenerateResponse = "ok"

	res, err := s.Process(context.Background(), autoRequest())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Provider != "groq" {
		t.Errorf("Provider = %q, want groq", res.Provider)
	}
}

func TestPinnedProvider(t *testing.T) {
	s, local, cloudA, _ := newChain(t)
	cloudA.GenerateResponse = "from groq"

	req := autoRequest()
	req.Provider = mode.ProviderGroq
	res, err := s.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.Provider != "groq" {
		t.Errorf("Provider = %q, want groq", res.Provider)
	}
	if len(local.GenerateCalls) != 0 {
		t.Error("pinned policy attempted a different provider")
	}
}

func TestPinnedProviderUnavailable(t *testing.T) {
	s, _, cloudA, _ := newChain(t)
	cloudA.Available = false

	req := autoRequest()
	req.Provider = mode.ProviderGroq
	_, err := s.Process(context.Background(), req)
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("Process() error = %v, want ErrAllProvidersFailed", err)
	}
}

func TestUnknownPinnedProvider(t *testing.T) {
	s, _, _, _ := newChain(t)
	req := autoRequest()
	req.Provider = mode.PreferredProvider("mistral")
	_, err := s.Process(context.Background(), req)
	if !errors.Is(err, ErrNoSuchProvider) {
		t.Fatalf("Process() error = %v, want ErrNoSuchProvider", err)
	}
}

func TestCancellationStopsIteration(t *testing.T) {
	s, local, cloudA, cloudB := newChain(t)
	ctx, cancel := context.WithCancel(context.Background())

	local.GenerateFunc = func(ctx context.Context, _ string, _ llm.Options) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Process(ctx, autoRequest())
		done <- err
	}()

	select {
	case err := <-done:
		if !llm.IsCancelled(err) {
			t.Fatalf("Process() error = %v, want a cancellation error", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Process() did not return promptly after cancellation")
	}
	if len(cloudA.GenerateCalls) != 0 || len(cloudB.GenerateCalls) != 0 {
		t.Error("fallback continued after cancellation")
	}
}
