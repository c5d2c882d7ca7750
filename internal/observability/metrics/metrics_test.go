package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInstrumentAndHandler(t *testing.T) {
	h := Instrument("test_handler", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	ObserveIntentParse("mock", "success", 20*time.Millisecond)
	ObserveMCPCall("get-chain-info", "error")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`seiflow_http_requests_total{code="502",handler="test_handler",method="GET"} 1`,
		`seiflow_http_request_errors_total{handler="test_handler",method="GET"} 1`,
		`seiflow_intent_parses_total{outcome="success",provider="mock"} 1`,
		`seiflow_mcp_calls_total{method="get-chain-info",outcome="error"} 1`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q\n%s", want, text)
		}
	}
}
