package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SeiFlow/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
	if _, err := NewClient(Config{APIKey: "k", Provider: llm.ProviderAnthropic}); err == nil {
		t.Fatalf("expected error for non openai-compatible provider")
	}
}

func TestGroqDefaults(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k", Provider: llm.ProviderGroq})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.baseURL != GroqBaseURL || client.Model() != GroqDefaultModel {
		t.Fatalf("unexpected groq defaults: %s %s", client.baseURL, client.Model())
	}
}

func TestCompleteSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Path          string
		Body          map[string]any
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		captured.Path = r.URL.Path
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "llama3-8b-8192",
			"choices": []map[string]any{
				{"message": map[string]any{"content": ` {"type":"transfer"} `}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{Provider: llm.ProviderGroq, APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	resp, err := client.Complete(context.Background(), llm.Request{
		System:      "sys",
		User:        "hello",
		Temperature: 0.1,
		MaxTokens:   2000,
		JSONMode:    true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != `{"type":"transfer"}` || resp.Provider != llm.ProviderGroq {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Path != "/chat/completions" {
		t.Fatalf("unexpected path %q", captured.Path)
	}
	if captured.Body["max_tokens"] != float64(2000) {
		t.Fatalf("max_tokens missing: %v", captured.Body["max_tokens"])
	}
	format, _ := captured.Body["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("response_format missing: %v", captured.Body)
	}
	messages, _ := captured.Body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %d", len(messages))
	}
}

func TestCompleteHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Complete(context.Background(), llm.Request{User: "test"}); err == nil {
		t.Fatalf("expected error when http status is not success")
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	client, _ := NewClient(Config{APIKey: "test", BaseURL: srv.URL})
	if _, err := client.Complete(context.Background(), llm.Request{User: "x"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
