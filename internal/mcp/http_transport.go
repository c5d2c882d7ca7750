package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	xerrors "SeiFlow/internal/errors"
)

// Transport delivers one request and returns the matching response.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// HTTPTransport posts each request to a single URL and reads the response
// from the HTTP body. Transport errors, 429 and 5xx are retried with backoff.
// Requests marked with withoutReplay are only retried when the server cannot
// have seen them: a failed dial or a 429.
type HTTPTransport struct {
	url        string
	httpClient *http.Client
	retries    int
	userAgent  string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) HTTPOption {
	return func(t *HTTPTransport) {
		if n >= 0 {
			t.retries = n
		}
	}
}

// NewHTTPTransport returns a transport posting to url.
func NewHTTPTransport(url string, timeout time.Duration, opts ...HTTPOption) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	t := &HTTPTransport{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
		retries:    2,
		userAgent:  "seiflow/1.0",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

type replayKey struct{}

// withoutReplay marks requests that must not reach the server twice.
func withoutReplay(ctx context.Context) context.Context {
	return context.WithValue(ctx, replayKey{}, true)
}

func replayForbidden(ctx context.Context) bool {
	v, _ := ctx.Value(replayKey{}).(bool)
	return v
}

// RoundTrip implements Transport.
func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode json-rpc request")
	}
	once := replayForbidden(ctx)

	var lastErr error
	for attempt := 0; attempt <= t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, xerrors.Wrap(CodeUnavailable, ctx.Err(), "request cancelled")
			case <-time.After(backoff(attempt)):
			}
		}

		resp, retry, err := t.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if once && !neverDelivered(err) {
			retry = false
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (t *HTTPTransport) do(ctx context.Context, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, false, xerrors.Wrap(CodeUnavailable, err, "build mcp request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", t.userAgent)

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, mapNetError(err)
	}
	buf, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, true, xerrors.Wrap(CodeUnavailable, readErr, "read mcp response")
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, xerrors.New(CodeUnavailable, "mcp server rate limited request",
			xerrors.WithMetadata("delivery", "rejected"))
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, xerrors.New(CodeUnavailable, fmt.Sprintf("mcp server unavailable (status %d)", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, false, xerrors.New(CodeUnavailable, fmt.Sprintf("mcp server returned unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(buf))), xerrors.WithRetryable(false))
	}

	if len(bytes.TrimSpace(buf)) == 0 {
		return nil, false, xerrors.New(CodeUnavailable, "mcp server returned empty response")
	}
	var decoded Response
	if err := json.Unmarshal(buf, &decoded); err != nil {
		return nil, false, xerrors.Wrap(CodeUnavailable, err, "decode mcp response")
	}
	return &decoded, false, nil
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// neverDelivered reports whether err proves the request body never reached
// the server.
func neverDelivered(err error) bool {
	if e, ok := xerrors.From(err); ok && e.Metadata()["delivery"] == "rejected" {
		return true
	}
	var opErr *net.OpError
	return stdErrors.As(err, &opErr) && opErr.Op == "dial"
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return xerrors.Wrap(CodeUnavailable, err, "mcp server timeout")
	}
	return xerrors.Wrap(CodeUnavailable, err, "mcp server request failed")
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}
