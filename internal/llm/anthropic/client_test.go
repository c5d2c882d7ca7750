package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SeiFlow/internal/llm"
)

func TestNewClientDefaults(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
	c, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model() != "claude-3-sonnet-20240229" || c.maxTokens != 4000 {
		t.Fatalf("unexpected defaults: %s %d", c.model, c.maxTokens)
	}
}

func TestComplete(t *testing.T) {
	var got messageRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		if r.URL.Path != "/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"model":"claude-3-sonnet-20240229","content":[{"type":"text","text":"{\"type\":"},{"type":"text","text":"\"stake\"}"}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{APIKey: "secret", BaseURL: srv.URL})
	resp, err := c.Complete(context.Background(), llm.Request{System: "sys", User: "hi", JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"type":"stake"}` || resp.Provider != llm.ProviderAnthropic {
		t.Fatalf("unexpected response %+v", resp)
	}
	if headers.Get("x-api-key") != "secret" || headers.Get("anthropic-version") == "" {
		t.Fatalf("missing headers: %v", headers)
	}
	if got.System != "sys" || got.MaxTokens != 4000 || !strings.HasPrefix(got.Messages[0].Content, "hi") {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestCompleteAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), llm.Request{User: "x"})
	if err == nil || !strings.Contains(err.Error(), "slow down") {
		t.Fatalf("unexpected error %v", err)
	}
}
