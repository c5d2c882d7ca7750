package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/web3"
)

// DefaultServerURL is used when neither config nor SEI_MCP_SERVER_URL set one.
const DefaultServerURL = "http://localhost:3001"

// Tool names exposed by the Sei MCP server.
const (
	ToolGetChainInfo   = "get-chain-info"
	ToolGetBalance     = "get-balance"
	ToolGetTokenBal    = "get-token-balance"
	ToolGetTokenInfo   = "get-token-info"
	ToolTransferSei    = "transfer-sei"
	ToolTransferToken  = "transfer-token"
	ToolApproveToken   = "approve-token-spending"
	ToolGetTransaction = "get-transaction"
	ToolIsContract     = "is-contract"
	ToolReadContract   = "read-contract"
	ToolWriteContract  = "write-contract"
)

// SeiConfig configures a SeiClient.
type SeiConfig struct {
	ServerURL  string
	Network    chain.Network
	PrivateKey string
	Mode       Mode
	// Transport is "http" (default) or "sse".
	Transport string
	Timeout   time.Duration
	Retries   int
}

// DefaultSeiConfig fills ServerURL and PrivateKey from the environment.
func DefaultSeiConfig() SeiConfig {
	serverURL := strings.TrimSpace(os.Getenv("SEI_MCP_SERVER_URL"))
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	return SeiConfig{
		ServerURL:  serverURL,
		Network:    chain.NetworkTestnet,
		PrivateKey: os.Getenv("SEI_PRIVATE_KEY"),
		Mode:       ModeDirect,
		Transport:  "http",
		Timeout:    30 * time.Second,
		Retries:    2,
	}
}

// ChainInfo is the get-chain-info result.
type ChainInfo struct {
	Network     string   `json:"network"`
	ChainID     Quantity `json:"chainId"`
	BlockNumber Quantity `json:"blockNumber"`
	RPCURL      string   `json:"rpcUrl"`
}

// Balance is the get-balance result.
type Balance struct {
	Address   string `json:"address"`
	Network   string `json:"network"`
	Balance   Amount `json:"balance"`
	Formatted string `json:"formatted"`
}

// TokenBalance is the get-token-balance result.
type TokenBalance struct {
	TokenAddress string `json:"tokenAddress"`
	Owner        string `json:"owner"`
	Network      string `json:"network"`
	Raw          Amount `json:"raw"`
	Formatted    string `json:"formatted"`
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
}

// TokenInfo is the get-token-info result.
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply Amount `json:"totalSupply"`
}

// TransactionResult is returned by write tools and get-transaction.
type TransactionResult struct {
	Hash        string    `json:"hash"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Value       Amount    `json:"value"`
	GasUsed     Amount    `json:"gasUsed"`
	GasPrice    Amount    `json:"gasPrice"`
	Status      string    `json:"status"`
	BlockNumber *Quantity `json:"blockNumber,omitempty"`
}

// SeiClient wraps Client with the Sei MCP server's tools. Every call carries
// the configured network. The private key only gates write calls locally; it
// is never sent to the server.
type SeiClient struct {
	rpc        *Client
	network    chain.Network
	privateKey string
}

// NewSeiClient builds the transport described by cfg.
func NewSeiClient(cfg SeiConfig) (*SeiClient, error) {
	serverURL := strings.TrimSpace(cfg.ServerURL)
	if serverURL == "" {
		serverURL = DefaultServerURL
	}
	var transport Transport
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "", "http":
		transport = NewHTTPTransport(serverURL, cfg.Timeout, WithRetries(cfg.Retries))
	case "sse":
		transport = NewSSETransport(serverURL)
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unknown mcp transport %q", cfg.Transport))
	}
	return NewSeiClientWithTransport(cfg, transport), nil
}

// NewSeiClientWithTransport uses an existing transport.
func NewSeiClientWithTransport(cfg SeiConfig, transport Transport) *SeiClient {
	network := cfg.Network
	if network == "" {
		network = chain.NetworkTestnet
	}
	return &SeiClient{
		rpc:        NewClient(transport, cfg.Mode),
		network:    network,
		privateKey: strings.TrimSpace(cfg.PrivateKey),
	}
}

// Network returns the network sent with every call.
func (c *SeiClient) Network() chain.Network { return c.network }

// HasPrivateKey reports whether write calls are allowed.
func (c *SeiClient) HasPrivateKey() bool { return c.privateKey != "" }

func (c *SeiClient) params(kv ...any) map[string]any {
	p := map[string]any{"network": string(c.network)}
	for i := 0; i+1 < len(kv); i += 2 {
		p[kv[i].(string)] = kv[i+1]
	}
	return p
}

func (c *SeiClient) read(ctx context.Context, tool, what string, params map[string]any, out any) error {
	if err := c.rpc.Call(ctx, tool, params, out); err != nil {
		code := CodeUnavailable
		if xerrors.CodeOf(err) == CodeRPCError {
			code = CodeRPCError
		}
		return xerrors.Wrap(code, err, "Sei MCP server connection required for "+what)
	}
	return nil
}

func (c *SeiClient) requireKey(action string) error {
	if c.privateKey == "" {
		return xerrors.New(CodePrivateKeyRequired, "private key required for "+action)
	}
	return nil
}

// GetChainInfo calls get-chain-info.
func (c *SeiClient) GetChainInfo(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.read(ctx, ToolGetChainInfo, "chain info queries", c.params(), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBalance calls get-balance.
func (c *SeiClient) GetBalance(ctx context.Context, address string) (*Balance, error) {
	if err := validateAddress("address", address); err != nil {
		return nil, err
	}
	var bal Balance
	if err := c.read(ctx, ToolGetBalance, "balance queries", c.params("address", address), &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// GetTokenBalance calls get-token-balance.
func (c *SeiClient) GetTokenBalance(ctx context.Context, token, owner string) (*TokenBalance, error) {
	if err := validateAddress("token address", token); err != nil {
		return nil, err
	}
	if err := validateAddress("owner address", owner); err != nil {
		return nil, err
	}
	var bal TokenBalance
	params := c.params("tokenAddress", token, "ownerAddress", owner)
	if err := c.read(ctx, ToolGetTokenBal, "token balance queries", params, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// GetTokenInfo calls get-token-info.
func (c *SeiClient) GetTokenInfo(ctx context.Context, token string) (*TokenInfo, error) {
	if err := validateAddress("token address", token); err != nil {
		return nil, err
	}
	var info TokenInfo
	if err := c.read(ctx, ToolGetTokenInfo, "token info queries", c.params("tokenAddress", token), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetTransaction calls get-transaction.
func (c *SeiClient) GetTransaction(ctx context.Context, hash string) (*TransactionResult, error) {
	if err := validateHash(hash); err != nil {
		return nil, err
	}
	var tx TransactionResult
	if err := c.read(ctx, ToolGetTransaction, "transaction queries", c.params("txHash", hash), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// IsContract calls is-contract. A missing isContract field reads as false.
func (c *SeiClient) IsContract(ctx context.Context, address string) (bool, error) {
	if err := validateAddress("address", address); err != nil {
		return false, err
	}
	var res struct {
		IsContract bool `json:"isContract"`
	}
	if err := c.read(ctx, ToolIsContract, "contract verification", c.params("address", address), &res); err != nil {
		return false, err
	}
	return res.IsContract, nil
}

// ReadContract calls read-contract and returns the raw result.
func (c *SeiClient) ReadContract(ctx context.Context, contract string, abi json.RawMessage, function string, args []any) (json.RawMessage, error) {
	if err := validateAddress("contract address", contract); err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	var out json.RawMessage
	params := c.params("contractAddress", contract, "abi", abi, "functionName", function, "args", args)
	if err := c.rpc.Call(ctx, ToolReadContract, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TransferSei forwards a native transfer to the server.
func (c *SeiClient) TransferSei(ctx context.Context, to, amount string) (*TransactionResult, error) {
	if err := c.requireKey("transfers"); err != nil {
		return nil, err
	}
	if err := validateAddress("recipient address", to); err != nil {
		return nil, err
	}
	var tx TransactionResult
	if err := c.rpc.Call(ctx, ToolTransferSei, c.params("to", to, "amount", amount), &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// TransferToken forwards an ERC-20 transfer to the server.
func (c *SeiClient) TransferToken(ctx context.Context, token, to, amount string) (*TransactionResult, error) {
	if err := c.requireKey("transfers"); err != nil {
		return nil, err
	}
	if err := validateAddress("token address", token); err != nil {
		return nil, err
	}
	if err := validateAddress("recipient address", to); err != nil {
		return nil, err
	}
	var tx TransactionResult
	params := c.params("tokenAddress", token, "to", to, "amount", amount)
	if err := c.rpc.Call(ctx, ToolTransferToken, params, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// ApproveToken forwards an ERC-20 approval to the server.
func (c *SeiClient) ApproveToken(ctx context.Context, token, spender, amount string) (*TransactionResult, error) {
	if err := c.requireKey("approvals"); err != nil {
		return nil, err
	}
	if err := validateAddress("token address", token); err != nil {
		return nil, err
	}
	if err := validateAddress("spender address", spender); err != nil {
		return nil, err
	}
	var tx TransactionResult
	params := c.params("tokenAddress", token, "spenderAddress", spender, "amount", amount)
	if err := c.rpc.Call(ctx, ToolApproveToken, params, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// WriteContract forwards a contract write to the server.
func (c *SeiClient) WriteContract(ctx context.Context, contract string, abi json.RawMessage, function string, args []any) (*TransactionResult, error) {
	if err := c.requireKey("contract writes"); err != nil {
		return nil, err
	}
	if err := validateAddress("contract address", contract); err != nil {
		return nil, err
	}
	if args == nil {
		args = []any{}
	}
	var tx TransactionResult
	params := c.params("contractAddress", contract, "abi", abi, "functionName", function, "args", args)
	if err := c.rpc.Call(ctx, ToolWriteContract, params, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// HealthCheck reports whether get-chain-info succeeds.
func (c *SeiClient) HealthCheck(ctx context.Context) bool {
	return c.rpc.Call(ctx, ToolGetChainInfo, c.params(), nil) == nil
}

// Close releases the transport.
func (c *SeiClient) Close() error { return c.rpc.Close() }

func validateAddress(field, value string) error {
	_, err := web3.ParseAddress(field, value)
	return err
}

func validateHash(value string) error {
	_, err := web3.ParseTxHash(value)
	return err
}
