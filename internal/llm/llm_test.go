package llm_test

import (
	"context"
	"errors"
	"testing"

	"SeiFlow/internal/llm"
	"SeiFlow/internal/llm/mock"
)

func TestWithFallbackUsesFallbackOnError(t *testing.T) {
	primary := llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, errors.New("rate limited")
	})
	client := llm.WithFallback(primary, mock.Fallback())

	resp, err := client.Complete(context.Background(), llm.Request{User: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != mock.FallbackResponse {
		t.Fatalf("expected fallback content, got %q", resp.Content)
	}
}

func TestWithFallbackPrefersPrimary(t *testing.T) {
	primary := llm.ClientFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "{}", Provider: llm.ProviderGroq}, nil
	})
	resp, err := llm.WithFallback(primary, mock.Fallback()).Complete(context.Background(), llm.Request{})
	if err != nil || resp.Provider != llm.ProviderGroq {
		t.Fatalf("unexpected result: %+v %v", resp, err)
	}
}

func TestWithFallbackNil(t *testing.T) {
	primary := mock.New("x")
	if llm.WithFallback(primary, nil) != llm.Client(primary) {
		t.Fatalf("nil fallback should return primary")
	}
}

func TestMockForProvider(t *testing.T) {
	resp, _ := mock.ForProvider(llm.ProviderOpenAI).Complete(context.Background(), llm.Request{})
	if resp.Content != mock.BridgeResponse {
		t.Fatalf("openai mock should return the bridge sample")
	}
	resp, _ = mock.ForProvider(llm.ProviderAnthropic).Complete(context.Background(), llm.Request{})
	if resp.Content != mock.TransferResponse {
		t.Fatalf("anthropic mock should return the transfer sample")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mock.New("x").Complete(ctx, llm.Request{}); err == nil {
		t.Fatalf("expected context error")
	}
}
