package mcp

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
)

const testAddress = "0x742d35Cc6634C0532925a3b8D4C4d4b4f1F7c7f7"

// rpcServer answers each request with handler(method, params).
func rpcServer(t *testing.T, handler func(req Request, params map[string]any) (any, *RPCError)) (*httptest.Server, *[]Request) {
	t.Helper()
	var seen []Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw struct {
			Request
			Params map[string]any `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		req := raw.Request
		req.Params = raw.Params
		seen = append(seen, req)
		result, rpcErr := handler(req, raw.Params)
		resp := map[string]any{"jsonrpc": JSONRPCVersion, "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestDirectModeCalls(t *testing.T) {
	srv, seen := rpcServer(t, func(req Request, params map[string]any) (any, *RPCError) {
		switch req.Method {
		case ToolGetChainInfo:
			return map[string]any{"network": params["network"], "chainId": 1328, "blockNumber": "0x10"}, nil
		case ToolGetBalance:
			return map[string]any{"address": params["address"], "network": params["network"], "balance": "1500000000000000000", "formatted": "1.5"}, nil
		case ToolIsContract:
			return map[string]any{}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "method not found"}
	})

	client := NewSeiClientWithTransport(SeiConfig{Network: chain.NetworkTestnet}, NewHTTPTransport(srv.URL, time.Second))
	ctx := context.Background()

	info, err := client.GetChainInfo(ctx)
	if err != nil {
		t.Fatalf("chain info: %v", err)
	}
	if info.ChainID != 1328 || info.BlockNumber != 16 || info.Network != "sei-testnet" {
		t.Fatalf("unexpected chain info %+v", info)
	}

	bal, err := client.GetBalance(ctx, testAddress)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Balance != "1500000000000000000" || bal.Formatted != "1.5" {
		t.Fatalf("unexpected balance %+v", bal)
	}

	isContract, err := client.IsContract(ctx, testAddress)
	if err != nil || isContract {
		t.Fatalf("missing isContract should read false: %v %v", isContract, err)
	}

	if !client.HealthCheck(ctx) {
		t.Fatalf("health check should pass")
	}

	if len(*seen) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(*seen))
	}
	for i, req := range *seen {
		if req.ID != int64(i+1) || req.JSONRPC != "2.0" {
			t.Fatalf("request %d has id %d", i, req.ID)
		}
		params := req.Params.(map[string]any)
		if params["network"] != "sei-testnet" {
			t.Fatalf("network missing from %s", req.Method)
		}
		if _, leaked := params["privateKey"]; leaked {
			t.Fatalf("private key must never be sent")
		}
	}
}

func TestRPCErrorIsCoded(t *testing.T) {
	srv, _ := rpcServer(t, func(Request, map[string]any) (any, *RPCError) {
		return nil, &RPCError{Code: -32000, Message: "node down"}
	})
	client := NewSeiClientWithTransport(SeiConfig{}, NewHTTPTransport(srv.URL, time.Second))

	_, err := client.GetTokenInfo(context.Background(), testAddress)
	if xerrors.CodeOf(err) != CodeRPCError {
		t.Fatalf("expected rpc error code, got %v", err)
	}
	if !strings.Contains(err.Error(), "Sei MCP server connection required for token info queries") {
		t.Fatalf("unexpected message %q", err)
	}
	if client.HealthCheck(context.Background()) {
		t.Fatalf("health check should fail")
	}
}

func TestWritesRequirePrivateKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := NewSeiClientWithTransport(SeiConfig{}, NewHTTPTransport(srv.URL, time.Second))
	ctx := context.Background()
	checks := []func() error{
		func() error { _, err := client.TransferSei(ctx, testAddress, "1"); return err },
		func() error { _, err := client.TransferToken(ctx, testAddress, testAddress, "1"); return err },
		func() error { _, err := client.ApproveToken(ctx, testAddress, testAddress, "1"); return err },
		func() error { _, err := client.WriteContract(ctx, testAddress, json.RawMessage(`[]`), "f", nil); return err },
	}
	for i, check := range checks {
		err := check()
		if xerrors.CodeOf(err) != CodePrivateKeyRequired || !strings.Contains(err.Error(), "private key required") {
			t.Fatalf("check %d: unexpected error %v", i, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("no request should reach the server")
	}
}

func TestTransferForwardedWithKey(t *testing.T) {
	srv, seen := rpcServer(t, func(req Request, params map[string]any) (any, *RPCError) {
		return map[string]any{
			"hash": "0xabc", "from": testAddress, "to": params["to"], "value": "1000000000000000000",
			"gasUsed": 21000, "gasPrice": "0x3b9aca00", "status": "success", "blockNumber": 42,
		}, nil
	})
	client := NewSeiClientWithTransport(SeiConfig{PrivateKey: "0xkey"}, NewHTTPTransport(srv.URL, time.Second))

	tx, err := client.TransferSei(context.Background(), testAddress, "1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tx.Status != "success" || tx.GasUsed != "21000" || tx.GasPrice != "1000000000" || tx.BlockNumber == nil || *tx.BlockNumber != 42 {
		t.Fatalf("unexpected tx %+v", tx)
	}
	params := (*seen)[0].Params.(map[string]any)
	if params["amount"] != "1" || params["to"] != testAddress {
		t.Fatalf("unexpected params %v", params)
	}
	for _, v := range params {
		if v == "0xkey" {
			t.Fatalf("private key leaked into params")
		}
	}
}

func TestToolsMode(t *testing.T) {
	srv, seen := rpcServer(t, func(req Request, params map[string]any) (any, *RPCError) {
		args := params["arguments"].(map[string]any)
		switch params["name"] {
		case ToolIsContract:
			return map[string]any{"content": []map[string]any{{"type": "text", "text": `{"isContract":true}`}}}, nil
		case ToolGetBalance:
			return map[string]any{"content": []map[string]any{{"type": "text", "text": "address not found: " + args["address"].(string)}}, "isError": true}, nil
		}
		return nil, &RPCError{Code: -32601, Message: "unknown tool"}
	})
	client := NewSeiClientWithTransport(SeiConfig{Mode: ModeTools}, NewHTTPTransport(srv.URL, time.Second))

	ok, err := client.IsContract(context.Background(), testAddress)
	if err != nil || !ok {
		t.Fatalf("is contract: %v %v", ok, err)
	}
	if (*seen)[0].Method != "tools/call" {
		t.Fatalf("expected tools/call, got %s", (*seen)[0].Method)
	}

	_, err = client.GetBalance(context.Background(), testAddress)
	if xerrors.CodeOf(err) != CodeRPCError || !strings.Contains(err.Error(), "address not found") {
		t.Fatalf("isError should surface as rpc error, got %v", err)
	}
}

func TestHTTPTransportRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"ok":true}}`))
	}))
	defer srv.Close()

	client := NewClient(NewHTTPTransport(srv.URL, time.Second, WithRetries(2)), ModeDirect)
	var out struct{ OK bool }
	if err := client.Call(context.Background(), "ping", nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.OK || attempts.Load() != 3 {
		t.Fatalf("expected success after 3 attempts, got %d", attempts.Load())
	}
}

func TestWritesAreNotReplayedAfterServerError(t *testing.T) {
	var transfers atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transfers.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewSeiClientWithTransport(SeiConfig{PrivateKey: "0xkey"}, NewHTTPTransport(srv.URL, time.Second, WithRetries(2)))
	_, err := client.TransferSei(context.Background(), testAddress, "1")
	if xerrors.CodeOf(err) != CodeUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if transfers.Load() != 1 {
		t.Fatalf("transfer sent %d times", transfers.Load())
	}
}

func TestWritesRetryWhenRateLimited(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"hash":"0xabc","status":"success"}}`))
	}))
	defer srv.Close()

	client := NewSeiClientWithTransport(SeiConfig{PrivateKey: "0xkey"}, NewHTTPTransport(srv.URL, time.Second, WithRetries(2)))
	tx, err := client.TransferToken(context.Background(), testAddress, testAddress, "1")
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if tx.Hash != "0xabc" || attempts.Load() != 2 {
		t.Fatalf("unexpected result %+v after %d attempts", tx, attempts.Load())
	}
}

func TestNeverDelivered(t *testing.T) {
	dialErr := mapNetError(&net.OpError{Op: "dial", Net: "tcp", Err: stdErrors.New("connection refused")})
	if !neverDelivered(dialErr) {
		t.Fatalf("dial failure should count as undelivered")
	}
	readErr := mapNetError(&net.OpError{Op: "read", Net: "tcp", Err: stdErrors.New("connection reset")})
	if neverDelivered(readErr) {
		t.Fatalf("read failure may follow delivery")
	}
}

func TestHTTPTransportDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient(NewHTTPTransport(srv.URL, time.Second, WithRetries(3)), ModeDirect).Call(context.Background(), "ping", nil, nil)
	if xerrors.CodeOf(err) != CodeUnavailable || attempts.Load() != 1 {
		t.Fatalf("unexpected result: %v after %d attempts", err, attempts.Load())
	}
}

func TestInputValidation(t *testing.T) {
	client := NewSeiClientWithTransport(SeiConfig{PrivateKey: "k"}, NewHTTPTransport("http://127.0.0.1:0", time.Second))
	if _, err := client.GetBalance(context.Background(), "0x123"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := client.GetTransaction(context.Background(), "0xabc"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestDefaultSeiConfig(t *testing.T) {
	t.Setenv("SEI_MCP_SERVER_URL", "")
	t.Setenv("SEI_PRIVATE_KEY", "pk")
	cfg := DefaultSeiConfig()
	if cfg.ServerURL != DefaultServerURL || cfg.Network != chain.NetworkTestnet || cfg.PrivateKey != "pk" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := NewSeiClient(SeiConfig{Transport: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error for unknown transport")
	}
}
