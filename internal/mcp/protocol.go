// Package mcp is a JSON-RPC 2.0 client for Sei MCP servers. It speaks either
// plain JSON-RPC over HTTP POST or the MCP SSE transport, and can address the
// server's tools directly by method name or through MCP tools/call.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	xerrors "SeiFlow/internal/errors"
)

// JSONRPCVersion is the only protocol version the client speaks.
const JSONRPCVersion = "2.0"

// Error codes registered by this package.
const (
	CodeRPCError           xerrors.Code = "MCP_RPC_ERROR"
	CodeUnavailable        xerrors.Code = "MCP_UNAVAILABLE"
	CodePrivateKeyRequired xerrors.Code = "PRIVATE_KEY_REQUIRED"
)

func init() {
	xerrors.Register(CodeRPCError, xerrors.Attributes{
		Message:    "mcp server returned an error",
		Severity:   xerrors.SeverityWarning,
		HTTPStatus: http.StatusBadGateway,
	})
	xerrors.Register(CodeUnavailable, xerrors.Attributes{
		Message:    "mcp server unavailable",
		Severity:   xerrors.SeverityCritical,
		Retryable:  true,
		Alert:      true,
		HTTPStatus: http.StatusBadGateway,
	})
	xerrors.Register(CodePrivateKeyRequired, xerrors.Attributes{
		Message:    "private key required",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: http.StatusForbidden,
	})
}

// Request is a JSON-RPC request. IDs are numeric and assigned by Client.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC response. ID is kept raw because servers may echo it
// back as a string.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

// idKey normalizes a raw id so 7 and "7" match.
func idKey(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	return strings.Trim(s, `"`)
}

// Quantity decodes a non-negative integer given as a JSON number, a decimal
// string or a 0x-prefixed hex string.
type Quantity uint64

// UnmarshalJSON implements json.Unmarshaler.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if raw == "" {
		*q = 0
		return nil
	}
	var (
		v   uint64
		err error
	)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, err = strconv.ParseUint(raw[2:], 16, 64)
	} else {
		v, err = strconv.ParseUint(raw, 10, 64)
	}
	if err != nil {
		return fmt.Errorf("invalid quantity %s", data)
	}
	*q = Quantity(v)
	return nil
}

// Amount is a decimal integer string that also accepts JSON numbers and hex.
type Amount string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		n, ok := new(big.Int).SetString(raw[2:], 16)
		if !ok {
			return fmt.Errorf("invalid amount %s", data)
		}
		raw = n.String()
	}
	*a = Amount(raw)
	return nil
}
