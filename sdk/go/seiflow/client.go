// Package seiflow is a Go client for the SeiFlow REST API.
package seiflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 30 * time.Second

// Client wraps the HTTP interactions with the SeiFlow REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Intent is the structured form of a natural-language request.
type Intent struct {
	ID            string `json:"id"`
	UserInput     string `json:"user_input"`
	Type          string `json:"type"`
	FromChain     *int64 `json:"from_chain,omitempty"`
	ToChain       *int64 `json:"to_chain,omitempty"`
	Amount        string `json:"amount,omitempty"`
	Token         *Token `json:"token,omitempty"`
	TargetAddress string `json:"target_address,omitempty"`
	Status        string `json:"status"`
}

// Token is an asset on a specific chain.
type Token struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	ChainID  int64  `json:"chain_id"`
}

// ExecutionStep is a single step of an execution plan.
type ExecutionStep struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Description  string `json:"description"`
	Cost         string `json:"cost"`
	TimeEstimate int64  `json:"time_estimate"`
	Status       string `json:"status"`
}

// ExecutionPlan groups the steps with their estimated cost, time and risk.
type ExecutionPlan struct {
	ID            string          `json:"id"`
	Steps         []ExecutionStep `json:"steps"`
	EstimatedCost string          `json:"estimated_cost"`
	EstimatedTime int64           `json:"estimated_time"`
	RiskScore     int             `json:"risk_score"`
}

// ParsedIntent is the result of parsing one request.
type ParsedIntent struct {
	Intent        Intent        `json:"intent"`
	Confidence    float64       `json:"confidence"`
	ExecutionPlan ExecutionPlan `json:"execution_plan"`
	Reasoning     string        `json:"reasoning"`
}

// JobSubmission queues an asynchronous parse. A non-empty ID makes the
// submission idempotent.
type JobSubmission struct {
	ID       string            `json:"id,omitempty"`
	Input    string            `json:"input"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Job is the state of an asynchronous parse.
type Job struct {
	ID         string            `json:"id"`
	Input      string            `json:"input"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *ParsedIntent     `json:"result,omitempty"`
	Degraded   bool              `json:"degraded,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == "succeeded" || j.Status == "failed"
}

// ListJobsOptions filters ListJobs. Zero values are omitted.
type ListJobsOptions struct {
	Limit     int
	Offset    int
	Statuses  []string
	Query     string
	Ascending bool
}

// ChainInfo describes the Sei network the server is connected to.
type ChainInfo struct {
	ChainID     uint64 `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
	RPCURL      string `json:"rpcUrl"`
	Network     string `json:"network"`
}

// Balance is a native balance in wei.
type Balance struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// TokenInfo is ERC-20 metadata.
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// TokenBalance is an ERC-20 balance.
type TokenBalance struct {
	TokenAddress string `json:"tokenAddress"`
	Owner        string `json:"owner"`
	Network      string `json:"network"`
	Raw          string `json:"raw"`
	Formatted    string `json:"formatted"`
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
}

// Transaction describes a transaction and its receipt.
type Transaction struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	GasUsed     string  `json:"gasUsed"`
	GasPrice    string  `json:"gasPrice,omitempty"`
	Status      string  `json:"status"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
}

// Transfer is forwarded to the Sei MCP server. Token selects an ERC-20;
// empty means native SEI.
type Transfer struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// Health is the /healthz response.
type Health struct {
	Status string `json:"status"`
	MCP    *bool  `json:"mcp,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("seiflow api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("seiflow api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the SeiFlow API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// ParseIntent parses input synchronously.
func (c *Client) ParseIntent(ctx context.Context, input string) (ParsedIntent, error) {
	var out ParsedIntent
	err := c.post(ctx, "/api/v1/intents", map[string]string{"input": input}, &out)
	return out, err
}

// SubmitJob queues an asynchronous parse.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	err := c.post(ctx, "/api/v1/jobs", submission, &job)
	return job, err
}

// GetJob fetches a job by identifier.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), nil, &job)
	return job, err
}

// ListJobs lists jobs, newest first unless opts.Ascending is set.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOptions) ([]Job, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	if len(opts.Statuses) > 0 {
		q.Set("status", strings.Join(opts.Statuses, ","))
	}
	if opts.Query != "" {
		q.Set("q", opts.Query)
	}
	if opts.Ascending {
		q.Set("order", "asc")
	}
	var jobs []Job
	err := c.get(ctx, "/api/v1/jobs", q, &jobs)
	return jobs, err
}

// WaitForJob polls until the job is done or ctx ends.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Done() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ChainInfo returns the server's Sei network summary.
func (c *Client) ChainInfo(ctx context.Context) (ChainInfo, error) {
	var info ChainInfo
	err := c.get(ctx, "/api/v1/sei/chain-info", nil, &info)
	return info, err
}

// Balance returns the native balance of address in wei.
func (c *Client) Balance(ctx context.Context, address string) (Balance, error) {
	var bal Balance
	err := c.get(ctx, "/api/v1/sei/balances/"+url.PathEscape(address), nil, &bal)
	return bal, err
}

// TokenInfo returns ERC-20 metadata.
func (c *Client) TokenInfo(ctx context.Context, token string) (TokenInfo, error) {
	var info TokenInfo
	err := c.get(ctx, "/api/v1/sei/tokens/"+url.PathEscape(token), nil, &info)
	return info, err
}

// TokenBalance returns the ERC-20 balance of owner.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (TokenBalance, error) {
	var bal TokenBalance
	endpoint := "/api/v1/sei/tokens/" + url.PathEscape(token) + "/balances/" + url.PathEscape(owner)
	err := c.get(ctx, endpoint, nil, &bal)
	return bal, err
}

// Transaction returns a transaction by hash.
func (c *Client) Transaction(ctx context.Context, hash string) (Transaction, error) {
	var tx Transaction
	err := c.get(ctx, "/api/v1/sei/transactions/"+url.PathEscape(hash), nil, &tx)
	return tx, err
}

// Transfer forwards a transfer through the server.
func (c *Client) Transfer(ctx context.Context, transfer Transfer) (Transaction, error) {
	var tx Transaction
	err := c.post(ctx, "/api/v1/sei/transfers", transfer, &tx)
	return tx, err
}

// Health returns the server health.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.get(ctx, "/healthz", nil, &h)
	return h, err
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			envelope := struct {
				Error *APIError `json:"error"`
			}{Error: apiErr}
			if err := json.Unmarshal(data, &envelope); err != nil {
				_ = json.Unmarshal(data, apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
