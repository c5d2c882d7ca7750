package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tmaxmax/go-sse"
)

// newSSEServer serves a single-session MCP SSE endpoint that answers every
// request with {"echo": method}.
func newSSEServer(t *testing.T) *httptest.Server {
	t.Helper()
	responses := make(chan []byte, 16)
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", func(w http.ResponseWriter, r *http.Request) {
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		endpoint := &sse.Message{Type: sse.Type("endpoint")}
		endpoint.AppendData("/message?sessionID=test")
		if err := sess.Send(endpoint); err != nil {
			return
		}
		if err := sess.Flush(); err != nil {
			return
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case payload := <-responses:
				msg := &sse.Message{Type: sse.Type("message")}
				msg.AppendData(string(payload))
				if err := sess.Send(msg); err != nil {
					return
				}
				if err := sess.Flush(); err != nil {
					return
				}
			}
		}
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sessionID") != "test" {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		payload, _ := json.Marshal(map[string]any{
			"jsonrpc": JSONRPCVersion,
			"id":      req.ID,
			"result":  map[string]any{"echo": req.Method},
		})
		responses <- payload
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSSETransportRoundTrip(t *testing.T) {
	srv := newSSEServer(t)
	transport := NewSSETransport(srv.URL + "/sse")
	t.Cleanup(func() { _ = transport.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := NewClient(transport, ModeDirect)
	for _, method := range []string{ToolGetChainInfo, ToolGetBalance} {
		var out struct {
			Echo string `json:"echo"`
		}
		if err := client.Call(ctx, method, map[string]any{"network": "sei"}, &out); err != nil {
			t.Fatalf("%s: %v", method, err)
		}
		if out.Echo != method {
			t.Fatalf("expected echo %q, got %q", method, out.Echo)
		}
	}
}

func TestSSETransportConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	transport := NewSSETransport(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := transport.Start(ctx); err == nil {
		t.Fatalf("expected connect error")
	}
}
