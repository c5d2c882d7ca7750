package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/observability/metrics"
)

// Mode selects how tool names are put on the wire.
type Mode string

const (
	// ModeDirect uses the tool name as the JSON-RPC method.
	ModeDirect Mode = "direct"
	// ModeTools wraps calls in MCP tools/call.
	ModeTools Mode = "tools"
)

// ParseMode validates a mode name; empty selects ModeDirect.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeDirect, nil
	case ModeDirect, ModeTools:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mcp mode %q (want direct or tools)", raw)
	}
}

// Client issues JSON-RPC calls over a Transport.
type Client struct {
	transport Transport
	mode      Mode
	nextID    atomic.Int64
}

// NewClient returns a client using transport in the given mode.
func NewClient(transport Transport, mode Mode) *Client {
	if mode == "" {
		mode = ModeDirect
	}
	return &Client{transport: transport, mode: mode}
}

// Mode returns the call mode.
func (c *Client) Mode() Mode { return c.mode }

type toolCallParams struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// Call invokes tool with params and decodes the result into out (which may
// be nil).
func (c *Client) Call(ctx context.Context, tool string, params any, out any) error {
	err := c.call(ctx, tool, params, out)
	outcome := "success"
	if err != nil {
		outcome = strings.ToLower(string(xerrors.CodeOf(err)))
	}
	metrics.ObserveMCPCall(tool, outcome)
	return err
}

// writeTools change chain state; their requests are never replayed.
var writeTools = map[string]bool{
	ToolTransferSei:   true,
	ToolTransferToken: true,
	ToolApproveToken:  true,
	ToolWriteContract: true,
}

func (c *Client) call(ctx context.Context, tool string, params any, out any) error {
	if writeTools[tool] {
		ctx = withoutReplay(ctx)
	}
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      c.nextID.Add(1),
		Method:  tool,
		Params:  params,
	}
	if c.mode == ModeTools {
		req.Method = "tools/call"
		req.Params = toolCallParams{Name: tool, Arguments: params}
	}

	resp, err := c.transport.RoundTrip(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return xerrors.Wrap(CodeRPCError, resp.Error, fmt.Sprintf("%s failed", tool),
			xerrors.WithMetadata("rpc_code", fmt.Sprint(resp.Error.Code)))
	}

	result := resp.Result
	if c.mode == ModeTools {
		result, err = unwrapToolResult(tool, resp.Result)
		if err != nil {
			return err
		}
	}
	if out == nil || len(result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result, out); err != nil {
		return xerrors.Wrap(CodeRPCError, err, fmt.Sprintf("decode %s result", tool))
	}
	return nil
}

func unwrapToolResult(tool string, raw json.RawMessage) (json.RawMessage, error) {
	var res toolCallResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, xerrors.Wrap(CodeRPCError, err, fmt.Sprintf("decode %s tool result", tool))
	}
	text := ""
	for _, item := range res.Content {
		if item.Type == "text" || item.Type == "" {
			text = item.Text
			break
		}
	}
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, xerrors.New(CodeRPCError, fmt.Sprintf("%s failed: %s", tool, text))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if !json.Valid([]byte(text)) {
		quoted, _ := json.Marshal(text)
		return quoted, nil
	}
	return json.RawMessage(text), nil
}

// Close releases the transport.
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	return c.transport.Close()
}
