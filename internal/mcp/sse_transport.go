package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/tmaxmax/go-sse"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/pkg/logger"
)

var errTransportClosed = errors.New("sse transport closed")

// SSETransport implements the MCP SSE transport: a long-lived GET stream that
// first announces the POST endpoint in an "endpoint" event and then carries
// responses as "message" events.
type SSETransport struct {
	connectURL     string
	httpClient     *http.Client
	maxPayloadSize int
	log            *slog.Logger

	connectMu sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}

	mu         sync.Mutex
	messageURL string
	pending    map[string]chan *Response
	err        error
}

// SSEOption configures an SSETransport.
type SSEOption func(*SSETransport)

// WithSSEHTTPClient replaces the http.Client used for the stream and POSTs.
// The client must not set a Timeout, or the stream is cut after it elapses.
func WithSSEHTTPClient(c *http.Client) SSEOption {
	return func(t *SSETransport) {
		if c != nil {
			t.httpClient = c
		}
	}
}

// WithSSEMaxPayloadSize bounds the size of a single event.
func WithSSEMaxPayloadSize(size int) SSEOption {
	return func(t *SSETransport) {
		t.maxPayloadSize = size
	}
}

// NewSSETransport returns a transport for the stream at connectURL. The
// stream is opened on Start or on the first RoundTrip.
func NewSSETransport(connectURL string, opts ...SSEOption) *SSETransport {
	t := &SSETransport{
		connectURL: connectURL,
		httpClient: &http.Client{},
		log:        logger.Named("mcp.sse"),
		pending:    make(map[string]chan *Response),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Start opens the stream and blocks until the endpoint event arrives or ctx
// ends. ctx only bounds the handshake; the stream lives until Close.
func (t *SSETransport) Start(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()
	if t.endpoint() != "" && t.alive() {
		return nil
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.connectURL, nil)
	if err != nil {
		cancel()
		return xerrors.Wrap(CodeUnavailable, err, "build sse request")
	}
	req.Header.Set("Accept", "text/event-stream")

	type dialResult struct {
		resp *http.Response
		err  error
	}
	dialed := make(chan dialResult, 1)
	go func() {
		resp, err := t.httpClient.Do(req)
		dialed <- dialResult{resp, err}
	}()

	var resp *http.Response
	select {
	case <-ctx.Done():
		cancel()
		return xerrors.Wrap(CodeUnavailable, ctx.Err(), "connect to sse stream")
	case res := <-dialed:
		if res.err != nil {
			cancel()
			return xerrors.Wrap(CodeUnavailable, res.err, "connect to sse stream")
		}
		resp = res.resp
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return xerrors.New(CodeUnavailable, fmt.Sprintf("sse stream returned status %d", resp.StatusCode))
	}

	ready := make(chan error, 1)
	done := make(chan struct{})
	t.mu.Lock()
	t.err = nil
	t.mu.Unlock()
	go t.listen(resp.Body, ready, done)

	select {
	case <-ctx.Done():
		cancel()
		return xerrors.Wrap(CodeUnavailable, ctx.Err(), "wait for sse endpoint")
	case err := <-ready:
		if err != nil {
			cancel()
			return xerrors.Wrap(CodeUnavailable, err, "wait for sse endpoint")
		}
	}
	t.cancel = cancel
	t.done = done
	return nil
}

func (t *SSETransport) endpoint() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messageURL
}

func (t *SSETransport) alive() bool {
	if t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *SSETransport) listen(body io.ReadCloser, ready chan<- error, done chan struct{}) {
	announced := false
	var streamErr error
	defer func() {
		body.Close()
		if !announced {
			if streamErr == nil {
				streamErr = errors.New("stream ended before endpoint event")
			}
			ready <- streamErr
		}
		t.failPending(streamErr)
		close(done)
	}()

	var cfg *sse.ReadConfig
	if t.maxPayloadSize > 0 {
		cfg = &sse.ReadConfig{MaxEventSize: t.maxPayloadSize}
	}

	for ev, err := range sse.Read(body, cfg) {
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				t.log.Warn("failed to read sse event", slog.Any("error", err))
			}
			streamErr = err
			return
		}

		switch ev.Type {
		case "endpoint":
			endpoint, err := t.resolveEndpoint(ev.Data)
			if err != nil {
				streamErr = err
				return
			}
			t.mu.Lock()
			t.messageURL = endpoint
			t.mu.Unlock()
			if !announced {
				announced = true
				ready <- nil
			}
		case "message", "":
			if !announced {
				t.log.Warn("received message before endpoint event")
				continue
			}
			var resp Response
			if err := json.Unmarshal([]byte(ev.Data), &resp); err != nil {
				t.log.Warn("failed to decode sse message", slog.Any("error", err))
				continue
			}
			t.deliver(&resp)
		default:
			t.log.Debug("ignoring sse event", slog.String("type", ev.Type))
		}
	}
}

func (t *SSETransport) resolveEndpoint(data string) (string, error) {
	ref, err := url.Parse(data)
	if err != nil {
		return "", fmt.Errorf("parse endpoint URL: %w", err)
	}
	if ref.String() == "" {
		return "", errors.New("empty endpoint URL")
	}
	base, err := url.Parse(t.connectURL)
	if err != nil {
		return "", fmt.Errorf("parse connect URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (t *SSETransport) deliver(resp *Response) {
	key := idKey(resp.ID)
	t.mu.Lock()
	ch, ok := t.pending[key]
	if ok {
		delete(t.pending, key)
	}
	t.mu.Unlock()
	if !ok {
		t.log.Debug("dropping response with unknown id", slog.String("id", key))
		return
	}
	ch <- resp
}

func (t *SSETransport) failPending(err error) {
	if err == nil {
		err = errTransportClosed
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	for key, ch := range t.pending {
		delete(t.pending, key)
		close(ch)
	}
}

// RoundTrip implements Transport.
func (t *SSETransport) RoundTrip(ctx context.Context, req *Request) (*Response, error) {
	if err := t.Start(ctx); err != nil {
		return nil, err
	}

	key := strconv.FormatInt(req.ID, 10)
	ch := make(chan *Response, 1)
	t.mu.Lock()
	t.pending[key] = ch
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.pending, key)
		t.mu.Unlock()
	}()

	if err := t.post(ctx, req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, xerrors.Wrap(CodeUnavailable, ctx.Err(), "wait for mcp response")
	case resp, ok := <-ch:
		if !ok {
			t.mu.Lock()
			err := t.err
			t.mu.Unlock()
			return nil, xerrors.Wrap(CodeUnavailable, err, "sse stream closed")
		}
		return resp, nil
	}
}

func (t *SSETransport) post(ctx context.Context, req *Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "encode json-rpc request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(), bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(CodeUnavailable, err, "build mcp message request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return mapNetError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return xerrors.New(CodeUnavailable, fmt.Sprintf("mcp message endpoint returned status %d", resp.StatusCode))
	}
	return nil
}

// Close tears down the stream and fails pending requests.
func (t *SSETransport) Close() error {
	t.connectMu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.connectMu.Unlock()

	t.mu.Lock()
	t.messageURL = ""
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}
