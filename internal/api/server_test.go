package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/intent"
	"SeiFlow/internal/mcp"
	"SeiFlow/internal/sei"
	"SeiFlow/internal/task"
)

type stubParser struct {
	err error
}

func (p stubParser) Parse(_ context.Context, input string) (*intent.ParsedIntentResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &intent.ParsedIntentResult{
		Intent:     intent.Intent{UserInput: input, Type: intent.TypeTransfer, Status: intent.StatusReady},
		Confidence: 0.8,
	}, nil
}

const contractAddr = "0x2222222222222222222222222222222222222222"

type stubSei struct {
	healthy   bool
	hasKey    bool
	transfers []string
	calls     []sei.ContractCall
}

func (s *stubSei) GetChainInfo(context.Context) (*sei.ChainInfo, error) {
	return &sei.ChainInfo{ChainID: 1328, BlockNumber: 42, Network: "sei-testnet"}, nil
}

func (s *stubSei) GetBalance(_ context.Context, address string) (string, error) {
	if !strings.HasPrefix(address, "0x") {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "invalid address")
	}
	return "1000000000000000000", nil
}

func (s *stubSei) GetTokenInfo(_ context.Context, token string) (*sei.TokenInfo, error) {
	return &sei.TokenInfo{Address: token, Symbol: "USDC", Decimals: 6}, nil
}

func (s *stubSei) GetTokenBalance(_ context.Context, token, owner string) (*sei.TokenBalance, error) {
	return &sei.TokenBalance{TokenAddress: token, Owner: owner, Raw: "2500000", Formatted: "2.5", Decimals: 6}, nil
}

func (s *stubSei) GetTransaction(_ context.Context, hash string) (*sei.TransactionResult, error) {
	return nil, xerrors.New(xerrors.CodeNotFound, "transaction "+hash+" not found")
}

func (s *stubSei) TransferSei(_ context.Context, to, amount string) (*sei.TransactionResult, error) {
	return s.transfer("SEI", to, amount)
}

func (s *stubSei) TransferToken(_ context.Context, token, to, amount string) (*sei.TransactionResult, error) {
	return s.transfer(token, to, amount)
}

func (s *stubSei) transfer(asset, to, amount string) (*sei.TransactionResult, error) {
	if !s.hasKey {
		return nil, xerrors.New(mcp.CodePrivateKeyRequired, "private key required for transfers")
	}
	s.transfers = append(s.transfers, asset+":"+amount)
	return &sei.TransactionResult{Hash: "0xabc", To: to, Value: amount, Status: "pending"}, nil
}

func (s *stubSei) ApproveToken(_ context.Context, token, spender, amount string) (*sei.TransactionResult, error) {
	return s.transfer("approve:"+token, spender, amount)
}

func (s *stubSei) IsContract(_ context.Context, address string) (bool, error) {
	if !strings.HasPrefix(address, "0x") {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "invalid address")
	}
	return address == contractAddr, nil
}

func (s *stubSei) ReadContract(_ context.Context, call sei.ContractCall) (json.RawMessage, error) {
	s.calls = append(s.calls, call)
	return json.RawMessage(`"42"`), nil
}

func (s *stubSei) WriteContract(_ context.Context, call sei.ContractCall) (*sei.TransactionResult, error) {
	s.calls = append(s.calls, call)
	return s.transfer("write:"+call.Function, call.Contract, "0")
}

func (s *stubSei) HealthCheck(context.Context) bool { return s.healthy }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func TestParseIntent(t *testing.T) {
	h := NewServer(":0", WithParser(stubParser{})).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/intents", `{"input":"send 10 USDC to sei"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var got intent.ParsedIntentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Intent.UserInput != "send 10 USDC to sei" || got.Intent.Type != intent.TypeTransfer {
		t.Fatalf("unexpected result %+v", got.Intent)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/intents", `{"input":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty input: got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/intents", `{"prompt":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: got %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/intents", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("wrong method: got %d", rec.Code)
	}
}

func TestParseIntentErrorStatus(t *testing.T) {
	h := NewServer(":0", WithParser(stubParser{err: xerrors.New(xerrors.CodeTimeout, "llm timed out")})).Handler()
	rec := do(t, h, http.MethodPost, "/api/v1/intents", `{"input":"bridge ETH"}`)
	if rec.Code != http.StatusGatewayTimeout || errorCode(t, rec) != string(xerrors.CodeTimeout) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestServicesNotConfigured(t *testing.T) {
	h := NewServer(":0").Handler()
	for _, path := range []string{"/api/v1/jobs/abc", "/api/v1/sei/chain-info"} {
		rec := do(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
	rec := do(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health %d %s", rec.Code, rec.Body.String())
	}
}

func TestJobsEndpoints(t *testing.T) {
	store := task.NewMemoryStore(0)
	svc := task.NewService(store, task.NewMemoryQueue(8), 3)
	h := NewServer(":0", WithTaskService(svc)).Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/jobs", `{"id":"job-1","input":"swap 1 ETH for USDC"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	done := &task.Job{ID: "job-2", Input: "stake SEI", Status: task.StatusPending, MaxRetries: 3}
	if err := store.Create(context.Background(), done); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.MarkSucceeded(context.Background(), "job-2", intent.ParsedIntentResult{Confidence: 1}, false); err != nil {
		t.Fatalf("succeed: %v", err)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/job-2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: %d", rec.Code)
	}
	var job task.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != task.StatusSucceeded || job.Result == nil {
		t.Fatalf("unexpected job %+v", job)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/missing", "")
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != string(task.CodeJobNotFound) {
		t.Fatalf("missing: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs?status=pending", "")
	var jobs []task.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Fatalf("unexpected list %+v", jobs)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/jobs?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/jobs?limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/jobs/stats", "")
	var stats task.JobStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/jobs", `{"input":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty job input: %d", rec.Code)
	}
}

func TestSeiEndpoints(t *testing.T) {
	backend := &stubSei{healthy: true}
	h := NewServer(":0", WithSei(backend)).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/sei/chain-info", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"chainId":1328`) {
		t.Fatalf("chain info: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/api/v1/sei/balances/0x1111111111111111111111111111111111111111", "")
	var bal balanceResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &bal)
	if bal.Balance != "1000000000000000000" {
		t.Fatalf("balance: %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/sei/balances/nothex", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid address: %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/sei/tokens/0xaaa/balances/0xbbb", "")
	var tb sei.TokenBalance
	_ = json.Unmarshal(rec.Body.Bytes(), &tb)
	if tb.TokenAddress != "0xaaa" || tb.Owner != "0xbbb" || tb.Formatted != "2.5" {
		t.Fatalf("token balance: %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/sei/tokens/0xaaa", ""); !strings.Contains(rec.Body.String(), "USDC") {
		t.Fatalf("token info: %s", rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/sei/transactions/0xdead", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("transaction: %d", rec.Code)
	}
}

func TestTransfers(t *testing.T) {
	backend := &stubSei{}
	h := NewServer(":0", WithSei(backend)).Handler()
	body := `{"to":"0x1111111111111111111111111111111111111111","amount":"1.5"}`

	rec := do(t, h, http.MethodPost, "/api/v1/sei/transfers", body)
	if rec.Code != http.StatusForbidden || errorCode(t, rec) != string(mcp.CodePrivateKeyRequired) {
		t.Fatalf("expected 403, got %d %s", rec.Code, rec.Body.String())
	}

	backend.hasKey = true
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/transfers", body); rec.Code != http.StatusOK {
		t.Fatalf("native transfer: %d %s", rec.Code, rec.Body.String())
	}
	tokenBody := `{"to":"0x1111111111111111111111111111111111111111","amount":"3","token":"0xtoken"}`
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/transfers", tokenBody); rec.Code != http.StatusOK {
		t.Fatalf("token transfer: %d", rec.Code)
	}
	if len(backend.transfers) != 2 || backend.transfers[0] != "SEI:1.5" || backend.transfers[1] != "0xtoken:3" {
		t.Fatalf("unexpected transfers %v", backend.transfers)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/transfers", `{"to":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing fields: %d", rec.Code)
	}
}

func TestApprovalAndContractEndpoints(t *testing.T) {
	backend := &stubSei{}
	h := NewServer(":0", WithSei(backend)).Handler()

	approve := `{"token":"0xtoken","spender":"0x1111111111111111111111111111111111111111","amount":"5"}`
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/approvals", approve); rec.Code != http.StatusForbidden {
		t.Fatalf("approval without key: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/approvals", `{"token":"0xtoken"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("approval missing fields: %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/sei/contracts/"+contractAddr, "")
	var check contractCheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &check); err != nil || !check.IsContract || check.Address != contractAddr {
		t.Fatalf("is contract: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/sei/contracts/nothex", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid contract address: %d", rec.Code)
	}

	call := `{"abi":[{"type":"function","name":"count"}],"function":"count","args":[1]}`
	rec = do(t, h, http.MethodPost, "/api/v1/sei/contracts/"+contractAddr+"/read", call)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"result":"42"}` {
		t.Fatalf("read contract: %d %s", rec.Code, rec.Body.String())
	}
	if len(backend.calls) != 1 || backend.calls[0].Contract != contractAddr || backend.calls[0].Function != "count" {
		t.Fatalf("unexpected call %+v", backend.calls)
	}

	backend.hasKey = true
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/approvals", approve); rec.Code != http.StatusOK {
		t.Fatalf("approval: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/sei/contracts/"+contractAddr+"/write", call); rec.Code != http.StatusOK {
		t.Fatalf("write contract: %d %s", rec.Code, rec.Body.String())
	}
	if len(backend.transfers) != 2 || backend.transfers[0] != "approve:0xtoken:5" || backend.transfers[1] != "write:count:0" {
		t.Fatalf("unexpected forwards %v", backend.transfers)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := NewServer(":0", WithSei(&stubSei{healthy: false})).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if health.Status != "degraded" || health.MCP == nil || *health.MCP {
		t.Fatalf("unexpected health %+v", health)
	}

	do(t, h, http.MethodGet, "/api/v1/chains", "")
	rec = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "seiflow_") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestListChains(t *testing.T) {
	rec := do(t, NewServer(":0").Handler(), http.MethodGet, "/api/v1/chains", "")
	if !strings.Contains(rec.Body.String(), `"id":1329`) {
		t.Fatalf("expected sei mainnet in %s", rec.Body.String())
	}
}
