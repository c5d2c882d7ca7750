package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/intent"
	"SeiFlow/internal/knowledge"
	"SeiFlow/internal/llm"
	"SeiFlow/internal/llm/mock"
)

type stubLLM struct {
	content string
	err     error
	wait    time.Duration
	last    llm.Request
}

func (s *stubLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.last = req
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

func TestParseSuccess(t *testing.T) {
	stub := &stubLLM{content: mock.BridgeResponse}
	p := NewParser(stub)

	res, err := p.Parse(context.Background(), "Bridge 100 USDC from Ethereum to Sei")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Intent.Type != intent.TypeBridge || res.Intent.Status != intent.StatusReady {
		t.Fatalf("unexpected intent: %+v", res.Intent)
	}
	if res.ExecutionPlan.EstimatedCost != "15" || res.ExecutionPlan.EstimatedTime != 300 {
		t.Fatalf("unexpected plan: %+v", res.ExecutionPlan)
	}
	if !stub.last.JSONMode || stub.last.Temperature != 0.1 || stub.last.MaxTokens != 2000 {
		t.Fatalf("unexpected request: %+v", stub.last)
	}
	if !strings.Contains(stub.last.User, `Parse this user request: "Bridge 100 USDC from Ethereum to Sei"`) {
		t.Fatalf("unexpected user prompt: %s", stub.last.User)
	}
	if !strings.Contains(stub.last.System, "SUPPORTED OPERATIONS") {
		t.Fatalf("system prompt missing")
	}
}

func TestParseAddsKnowledgeHints(t *testing.T) {
	stub := &stubLLM{content: mock.TransferResponse}
	kb := knowledge.NewStaticProvider([]knowledge.Snippet{
		{Title: "Wormhole", Content: "Use Wormhole for USDC", Keywords: []string{"usdc"}},
	}, 3)
	p := NewParser(stub, WithKnowledgeProvider(kb))

	if _, err := p.Parse(context.Background(), "move usdc"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stub.last.User, "Relevant notes:\n- Wormhole: Use Wormhole for USDC") {
		t.Fatalf("hints missing: %s", stub.last.User)
	}
}

func TestParseEmptyInput(t *testing.T) {
	_, err := NewParser(&stubLLM{}).Parse(context.Background(), "   ")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestParseTimeout(t *testing.T) {
	p := NewParser(&stubLLM{wait: 50 * time.Millisecond}, WithLLMTimeout(10*time.Millisecond))

	_, err := p.Parse(context.Background(), "send 1 sei")
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout code, got %s", xerrors.CodeOf(err))
	}
}

func TestParseFailuresAreWrapped(t *testing.T) {
	_, err := NewParser(&stubLLM{err: errors.New("boom")}).Parse(context.Background(), "x")
	if xerrors.CodeOf(err) != CodeLLMUnavailable || !strings.Contains(err.Error(), "intent parsing failed") {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = NewParser(&stubLLM{content: "not json"}).Parse(context.Background(), "x")
	if xerrors.CodeOf(err) != CodeIntentParseFailed || !strings.Contains(err.Error(), "failed to parse AI response") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewWithoutKeyUsesMock(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Provider() != llm.ProviderGroq {
		t.Fatalf("default provider should be groq, got %s", p.Provider())
	}
	res, err := p.Parse(context.Background(), "send 1 sei")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reasoning != "Fallback response due to API error" || res.Confidence != 0.7 {
		t.Fatalf("expected fallback result, got %+v", res)
	}

	t.Setenv("OPENAI_API_KEY", "")
	p, _ = New(Config{Provider: llm.ProviderOpenAI})
	res, _ = p.Parse(context.Background(), "bridge")
	if res.Intent.Type != intent.TypeBridge || res.Intent.Amount != "100" {
		t.Fatalf("expected openai sample, got %+v", res.Intent)
	}
}

func TestNewUnsupportedProvider(t *testing.T) {
	_, err := New(Config{Provider: "cohere"})
	if err == nil || !strings.Contains(err.Error(), "unsupported AI provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGroqFallsBackOnAPIFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := New(Config{Provider: llm.ProviderGroq, APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := p.Parse(context.Background(), "send 1 sei")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reasoning != "Fallback response due to API error" {
		t.Fatalf("expected fallback, got %q", res.Reasoning)
	}

	p, _ = New(Config{Provider: llm.ProviderOpenAI, APIKey: "k", BaseURL: srv.URL})
	if _, err := p.Parse(context.Background(), "send 1 sei"); err == nil {
		t.Fatalf("openai without FallbackOnError should fail")
	}
}
