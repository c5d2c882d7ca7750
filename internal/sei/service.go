// Package sei 提供 Sei 网络服务：读操作优先走 EVM RPC，失败时回退到 Sei MCP
// 服务器；转账等写操作只转发给 MCP 服务器，由其负责签名。
package sei

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"SeiFlow/internal/cache"
	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/mcp"
	"SeiFlow/internal/units"
	"SeiFlow/internal/web3"
	"SeiFlow/internal/web3/provider"
	"SeiFlow/pkg/logger"
)

// DefaultCacheTTL 是代币信息与链 ID 的默认缓存时间。
const DefaultCacheTTL = 10 * time.Minute

// Config 描述 Sei 服务。
type Config struct {
	Network    chain.Network
	PrivateKey string
	// RPCURL 非空时读操作优先直连该 EVM RPC。
	RPCURL   string
	MCP      mcp.SeiConfig
	CacheTTL time.Duration
}

// DefaultConfig 返回测试网配置，私钥读取 SEI_PRIVATE_KEY。
func DefaultConfig() Config {
	return Config{
		Network:    chain.NetworkTestnet,
		PrivateKey: os.Getenv("SEI_PRIVATE_KEY"),
		MCP:        mcp.DefaultSeiConfig(),
		CacheTTL:   DefaultCacheTTL,
	}
}

// MCPClient 是服务依赖的 MCP 能力，*mcp.SeiClient 满足该接口。
type MCPClient interface {
	GetChainInfo(ctx context.Context) (*mcp.ChainInfo, error)
	GetBalance(ctx context.Context, address string) (*mcp.Balance, error)
	GetTokenInfo(ctx context.Context, token string) (*mcp.TokenInfo, error)
	GetTokenBalance(ctx context.Context, token, owner string) (*mcp.TokenBalance, error)
	GetTransaction(ctx context.Context, hash string) (*mcp.TransactionResult, error)
	TransferSei(ctx context.Context, to, amount string) (*mcp.TransactionResult, error)
	TransferToken(ctx context.Context, token, to, amount string) (*mcp.TransactionResult, error)
	ApproveToken(ctx context.Context, token, spender, amount string) (*mcp.TransactionResult, error)
	IsContract(ctx context.Context, address string) (bool, error)
	ReadContract(ctx context.Context, contract string, abi json.RawMessage, function string, args []any) (json.RawMessage, error)
	WriteContract(ctx context.Context, contract string, abi json.RawMessage, function string, args []any) (*mcp.TransactionResult, error)
	HealthCheck(ctx context.Context) bool
	Close() error
}

// ReaderSource 按链 ID 提供 EVM 读客户端，*provider.Registry 满足该接口。
type ReaderSource interface {
	Reader(ctx context.Context, id chain.ID) (web3.Reader, error)
}

// ChainInfo 是网络概况。
type ChainInfo struct {
	ChainID     uint64 `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber"`
	RPCURL      string `json:"rpcUrl"`
	Network     string `json:"network"`
}

// TokenInfo 是 ERC-20 元数据。
type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
}

// TokenBalance 是某地址持有的代币余额。
type TokenBalance struct {
	TokenAddress string `json:"tokenAddress"`
	Owner        string `json:"owner"`
	Network      string `json:"network"`
	Raw          string `json:"raw"`
	Formatted    string `json:"formatted"`
	Symbol       string `json:"symbol"`
	Decimals     int    `json:"decimals"`
}

// TransactionResult 描述交易及其回执。
type TransactionResult struct {
	Hash        string  `json:"hash"`
	From        string  `json:"from"`
	To          string  `json:"to"`
	Value       string  `json:"value"`
	GasUsed     string  `json:"gasUsed"`
	GasPrice    string  `json:"gasPrice,omitempty"`
	Status      string  `json:"status"`
	BlockNumber *uint64 `json:"blockNumber,omitempty"`
}

// Option 定义服务可选项。
type Option func(*Service)

// WithMCPClient 替换默认的 MCP 客户端。
func WithMCPClient(c MCPClient) Option {
	return func(s *Service) { s.mcp = c }
}

// WithReaderSource 指定 EVM 读客户端来源。
func WithReaderSource(src ReaderSource) Option {
	return func(s *Service) { s.readers = src }
}

// WithCache 指定缓存实现。
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithChainRegistry 指定链注册表，默认使用内置注册表。
func WithChainRegistry(reg *chain.Registry) Option {
	return func(s *Service) { s.chains = reg }
}

// Service 实现 Sei 网络的读写操作。
type Service struct {
	cfg     Config
	network chain.Network
	netCfg  chain.NetworkConfig
	chains  *chain.Registry
	mcp     MCPClient
	readers ReaderSource
	owned   *provider.Registry
	cache   cache.Cache
	log     *slog.Logger
}

// NewService 创建服务。未注入 MCP 客户端时按 cfg.MCP 构建；cfg.RPCURL 非空
// 且未注入读客户端时，为当前网络建立按需拨号的 RPC 读客户端。
func NewService(cfg Config, opts ...Option) (*Service, error) {
	network, err := chain.ParseNetwork(string(cfg.Network))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "Sei 网络配置无效")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	s := &Service{cfg: cfg, network: network, log: logger.Named("sei")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.chains == nil {
		s.chains = chain.Default()
	}
	s.netCfg, err = s.chains.NetworkConfig(network)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 Sei 网络失败")
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}

	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if s.readers == nil && rpcURL != "" {
		base := s.chains.MustChain(s.netCfg.ChainID)
		base.RPCURL = rpcURL
		s.owned = provider.NewRegistry(chain.NewRegistry([]chain.Chain{base}, nil, nil), nil)
		s.readers = s.owned
	}
	if rpcURL != "" {
		s.netCfg.RPCURL = rpcURL
	}

	if s.mcp == nil {
		mcpCfg := cfg.MCP
		mcpCfg.Network = network
		mcpCfg.PrivateKey = cfg.PrivateKey
		client, err := mcp.NewSeiClient(mcpCfg)
		if err != nil {
			return nil, err
		}
		s.mcp = client
	}
	return s, nil
}

// Network 返回服务所在网络。
func (s *Service) Network() chain.Network { return s.network }

// HasPrivateKey 报告是否允许转账。
func (s *Service) HasPrivateKey() bool { return strings.TrimSpace(s.cfg.PrivateKey) != "" }

func (s *Service) reader(ctx context.Context) web3.Reader {
	if s.readers == nil {
		return nil
	}
	r, err := s.readers.Reader(ctx, s.netCfg.ChainID)
	if err != nil {
		s.log.Warn("RPC 读客户端不可用", slog.Any("error", err))
		return nil
	}
	return r
}

func (s *Service) fallback(op string, err error) {
	s.log.Warn("RPC 读取失败，回退到 MCP", slog.String("operation", op), slog.Any("error", err))
}

// failed 保留原错误码，将错误包装为 "failed to <op>"。
func failed(op string, err error) error {
	code := xerrors.CodeOf(err)
	if code == xerrors.CodeUnknown {
		code = web3.CodeChainReadFailed
	}
	return xerrors.Wrap(code, err, "failed to "+op)
}

func (s *Service) cacheKey(parts ...string) string {
	return "sei:" + string(s.network) + ":" + strings.Join(parts, ":")
}

// GetChainInfo 返回链 ID 与最新区块。区块号依次取自 RPC、MCP，均不可用时为 0。
func (s *Service) GetChainInfo(ctx context.Context) (*ChainInfo, error) {
	info := &ChainInfo{
		ChainID: uint64(s.netCfg.ChainID),
		RPCURL:  s.netCfg.RPCURL,
		Network: string(s.network),
	}
	key := s.cacheKey("chain-id")
	if cached, ok, err := cache.GetJSON[uint64](ctx, s.cache, key); err == nil && ok {
		info.ChainID = cached
	}

	if r := s.reader(ctx); r != nil {
		head, err := r.ChainInfo(ctx)
		if err == nil {
			s.rememberChainID(ctx, key, head.ChainID)
			info.ChainID = head.ChainID
			info.BlockNumber = head.BlockNumber
			return info, nil
		}
		s.fallback("get chain info", err)
	}

	remote, err := s.mcp.GetChainInfo(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, failed("get chain info", ctx.Err())
		}
		s.log.Warn("无法获取最新区块", slog.Any("error", err))
		return info, nil
	}
	if remote.ChainID != 0 {
		s.rememberChainID(ctx, key, uint64(remote.ChainID))
		info.ChainID = uint64(remote.ChainID)
	}
	info.BlockNumber = uint64(remote.BlockNumber)
	return info, nil
}

func (s *Service) rememberChainID(ctx context.Context, key string, id uint64) {
	if id != uint64(s.netCfg.ChainID) {
		s.log.Warn("RPC 返回的链 ID 与网络不符",
			slog.Uint64("expected", uint64(s.netCfg.ChainID)), slog.Uint64("actual", id))
	}
	if err := cache.SetJSON(ctx, s.cache, key, id, s.cfg.CacheTTL); err != nil {
		s.log.Debug("写入缓存失败", slog.Any("error", err))
	}
}

// GetBalance 返回原生 SEI 余额（wei）。
func (s *Service) GetBalance(ctx context.Context, address string) (string, error) {
	if _, err := web3.ParseAddress("address", address); err != nil {
		return "", failed("get balance", err)
	}
	if r := s.reader(ctx); r != nil {
		bal, err := r.Balance(ctx, address)
		if err == nil {
			return bal.String(), nil
		}
		s.fallback("get balance", err)
	}
	bal, err := s.mcp.GetBalance(ctx, address)
	if err != nil {
		return "", failed("get balance", err)
	}
	return string(bal.Balance), nil
}

// GetTokenInfo 返回代币元数据，结果按 CacheTTL 缓存。
func (s *Service) GetTokenInfo(ctx context.Context, token string) (*TokenInfo, error) {
	addr, err := web3.ParseAddress("token address", token)
	if err != nil {
		return nil, failed("get token info", err)
	}
	key := s.cacheKey("token", strings.ToLower(addr.Hex()))
	if cached, ok, err := cache.GetJSON[TokenInfo](ctx, s.cache, key); err == nil && ok {
		return &cached, nil
	}

	info, err := s.fetchTokenInfo(ctx, token)
	if err != nil {
		return nil, failed("get token info", err)
	}
	if err := cache.SetJSON(ctx, s.cache, key, info, s.cfg.CacheTTL); err != nil {
		s.log.Debug("写入缓存失败", slog.Any("error", err))
	}
	return info, nil
}

func (s *Service) fetchTokenInfo(ctx context.Context, token string) (*TokenInfo, error) {
	if r := s.reader(ctx); r != nil {
		meta, err := r.TokenInfo(ctx, token)
		if err == nil {
			return &TokenInfo{
				Address:     meta.Address,
				Name:        meta.Name,
				Symbol:      meta.Symbol,
				Decimals:    int(meta.Decimals),
				TotalSupply: bigString(meta.TotalSupply),
			}, nil
		}
		s.fallback("get token info", err)
	}
	meta, err := s.mcp.GetTokenInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	return &TokenInfo{
		Address:     firstNonEmpty(meta.Address, token),
		Name:        meta.Name,
		Symbol:      meta.Symbol,
		Decimals:    meta.Decimals,
		TotalSupply: string(meta.TotalSupply),
	}, nil
}

// GetTokenBalance 返回 owner 持有的代币余额。
func (s *Service) GetTokenBalance(ctx context.Context, token, owner string) (*TokenBalance, error) {
	if _, err := web3.ParseAddress("token address", token); err != nil {
		return nil, failed("get token balance", err)
	}
	if _, err := web3.ParseAddress("owner address", owner); err != nil {
		return nil, failed("get token balance", err)
	}

	if r := s.reader(ctx); r != nil {
		raw, err := r.TokenBalance(ctx, token, owner)
		if err == nil {
			info, infoErr := s.GetTokenInfo(ctx, token)
			if infoErr == nil {
				formatted, _ := units.FromBaseUnits(raw.String(), info.Decimals)
				return &TokenBalance{
					TokenAddress: token,
					Owner:        owner,
					Network:      string(s.network),
					Raw:          raw.String(),
					Formatted:    formatted,
					Symbol:       info.Symbol,
					Decimals:     info.Decimals,
				}, nil
			}
			err = infoErr
		}
		s.fallback("get token balance", err)
	}

	bal, err := s.mcp.GetTokenBalance(ctx, token, owner)
	if err != nil {
		return nil, failed("get token balance", err)
	}
	out := &TokenBalance{
		TokenAddress: firstNonEmpty(bal.TokenAddress, token),
		Owner:        firstNonEmpty(bal.Owner, owner),
		Network:      firstNonEmpty(bal.Network, string(s.network)),
		Raw:          string(bal.Raw),
		Formatted:    bal.Formatted,
		Symbol:       bal.Symbol,
		Decimals:     bal.Decimals,
	}
	if out.Formatted == "" && out.Raw != "" {
		out.Formatted, _ = units.FromBaseUnits(out.Raw, out.Decimals)
	}
	return out, nil
}

// GetTransaction 查询交易详情。
func (s *Service) GetTransaction(ctx context.Context, hash string) (*TransactionResult, error) {
	if _, err := web3.ParseTxHash(hash); err != nil {
		return nil, failed("get transaction", err)
	}
	if r := s.reader(ctx); r != nil {
		tx, err := r.Transaction(ctx, hash)
		if err == nil {
			return &TransactionResult{
				Hash:        tx.Hash,
				From:        tx.From,
				To:          tx.To,
				Value:       bigString(tx.Value),
				GasUsed:     strconv.FormatUint(tx.GasUsed, 10),
				GasPrice:    bigString(tx.GasPrice),
				Status:      tx.Status,
				BlockNumber: tx.BlockNumber,
			}, nil
		}
		s.fallback("get transaction", err)
	}
	tx, err := s.mcp.GetTransaction(ctx, hash)
	if err != nil {
		return nil, failed("get transaction", err)
	}
	return fromMCP(tx), nil
}

// TransferSei 将原生 SEI 转账转发给 MCP 服务器。amount 以 SEI 为单位。
func (s *Service) TransferSei(ctx context.Context, to, amount string) (*TransactionResult, error) {
	if err := s.checkTransfer(to, amount); err != nil {
		return nil, failed("transfer SEI", err)
	}
	tx, err := s.mcp.TransferSei(ctx, to, amount)
	if err != nil {
		return nil, failed("transfer SEI", err)
	}
	s.auditTransfer("", to, amount, tx)
	return fromMCP(tx), nil
}

// TransferToken 将 ERC-20 转账转发给 MCP 服务器。
func (s *Service) TransferToken(ctx context.Context, token, to, amount string) (*TransactionResult, error) {
	if _, err := web3.ParseAddress("token address", token); err != nil {
		return nil, failed("transfer token", err)
	}
	if err := s.checkTransfer(to, amount); err != nil {
		return nil, failed("transfer token", err)
	}
	tx, err := s.mcp.TransferToken(ctx, token, to, amount)
	if err != nil {
		return nil, failed("transfer token", err)
	}
	s.auditTransfer(token, to, amount, tx)
	return fromMCP(tx), nil
}

// ApproveToken 将 ERC-20 授权转发给 MCP 服务器。amount 为 0 表示撤销授权。
func (s *Service) ApproveToken(ctx context.Context, token, spender, amount string) (*TransactionResult, error) {
	if err := s.checkApproval(token, spender, amount); err != nil {
		return nil, failed("approve token", err)
	}
	tx, err := s.mcp.ApproveToken(ctx, token, spender, amount)
	if err != nil {
		return nil, failed("approve token", err)
	}
	logger.Audit().Info("approval forwarded",
		slog.String("network", string(s.network)),
		slog.String("token", token),
		slog.String("spender", spender),
		slog.String("amount", amount),
		slog.String("tx_hash", tx.Hash),
	)
	return fromMCP(tx), nil
}

func (s *Service) checkApproval(token, spender, amount string) error {
	if !s.HasPrivateKey() {
		return xerrors.New(mcp.CodePrivateKeyRequired, "private key required for approvals")
	}
	if _, err := web3.ParseAddress("token address", token); err != nil {
		return err
	}
	if _, err := web3.ParseAddress("spender address", spender); err != nil {
		return err
	}
	n, err := units.ToBaseUnitsBig(amount, units.DefaultDecimals)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid amount")
	}
	if n.Sign() < 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("amount must not be negative, got %q", amount))
	}
	return nil
}

// IsContract 判断地址上是否部署了合约，优先走 RPC。
func (s *Service) IsContract(ctx context.Context, address string) (bool, error) {
	if _, err := web3.ParseAddress("address", address); err != nil {
		return false, failed("check contract", err)
	}
	if r := s.reader(ctx); r != nil {
		ok, err := r.IsContract(ctx, address)
		if err == nil {
			return ok, nil
		}
		s.fallback("check contract", err)
	}
	ok, err := s.mcp.IsContract(ctx, address)
	if err != nil {
		return false, failed("check contract", err)
	}
	return ok, nil
}

// ContractCall 描述一次合约调用。
type ContractCall struct {
	Contract string          `json:"contract"`
	ABI      json.RawMessage `json:"abi"`
	Function string          `json:"function"`
	Args     []any           `json:"args,omitempty"`
}

func (c ContractCall) validate() error {
	if _, err := web3.ParseAddress("contract address", c.Contract); err != nil {
		return err
	}
	if strings.TrimSpace(c.Function) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "function name is required")
	}
	if len(c.ABI) == 0 || !json.Valid(c.ABI) {
		return xerrors.New(xerrors.CodeInvalidArgument, "abi must be valid JSON")
	}
	return nil
}

// ReadContract 通过 MCP 服务器执行只读合约调用，返回原始结果。
func (s *Service) ReadContract(ctx context.Context, call ContractCall) (json.RawMessage, error) {
	if err := call.validate(); err != nil {
		return nil, failed("read contract", err)
	}
	out, err := s.mcp.ReadContract(ctx, call.Contract, call.ABI, call.Function, call.Args)
	if err != nil {
		return nil, failed("read contract", err)
	}
	return out, nil
}

// WriteContract 将合约写操作转发给 MCP 服务器。
func (s *Service) WriteContract(ctx context.Context, call ContractCall) (*TransactionResult, error) {
	if !s.HasPrivateKey() {
		return nil, failed("write contract", xerrors.New(mcp.CodePrivateKeyRequired, "private key required for contract writes"))
	}
	if err := call.validate(); err != nil {
		return nil, failed("write contract", err)
	}
	tx, err := s.mcp.WriteContract(ctx, call.Contract, call.ABI, call.Function, call.Args)
	if err != nil {
		return nil, failed("write contract", err)
	}
	logger.Audit().Info("contract write forwarded",
		slog.String("network", string(s.network)),
		slog.String("contract", call.Contract),
		slog.String("function", call.Function),
		slog.String("tx_hash", tx.Hash),
	)
	return fromMCP(tx), nil
}

func (s *Service) checkTransfer(to, amount string) error {
	if !s.HasPrivateKey() {
		return xerrors.New(mcp.CodePrivateKeyRequired, "private key required for transfers")
	}
	if _, err := web3.ParseAddress("recipient address", to); err != nil {
		return err
	}
	n, err := units.ToBaseUnitsBig(amount, units.DefaultDecimals)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid amount")
	}
	if n.Sign() <= 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("amount must be positive, got %q", amount))
	}
	return nil
}

func (s *Service) auditTransfer(token, to, amount string, tx *mcp.TransactionResult) {
	asset := "SEI"
	if token != "" {
		asset = token
	}
	logger.Audit().Info("transfer forwarded",
		slog.String("network", string(s.network)),
		slog.String("asset", asset),
		slog.String("to", to),
		slog.String("amount", amount),
		slog.String("tx_hash", tx.Hash),
		slog.String("status", tx.Status),
	)
}

// HealthCheck 报告 MCP 服务器是否可用。
func (s *Service) HealthCheck(ctx context.Context) bool {
	return s.mcp.HealthCheck(ctx)
}

// FormatFromWei 将 wei 转换为十进制字符串。
func (s *Service) FormatFromWei(wei string, decimals int) (string, error) {
	return FormatFromWei(wei, decimals)
}

// FormatToWei 将十进制字符串转换为 wei。
func (s *Service) FormatToWei(amount string, decimals int) (string, error) {
	return FormatToWei(amount, decimals)
}

// Close 释放 MCP 连接与自建的 RPC 客户端。
func (s *Service) Close() error {
	if s.owned != nil {
		s.owned.Close()
	}
	return s.mcp.Close()
}

// FormatFromWei 精确换算，去掉小数部分末尾的 0。
func FormatFromWei(wei string, decimals int) (string, error) {
	out, err := units.FromBaseUnits(wei, decimals)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "failed to format from wei")
	}
	return out, nil
}

// FormatToWei 精确换算，超出精度的小数位被截断。
func FormatToWei(amount string, decimals int) (string, error) {
	out, err := units.ToBaseUnits(amount, decimals)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "failed to format to wei")
	}
	return out, nil
}

func fromMCP(tx *mcp.TransactionResult) *TransactionResult {
	out := &TransactionResult{
		Hash:     tx.Hash,
		From:     tx.From,
		To:       tx.To,
		Value:    string(tx.Value),
		GasUsed:  string(tx.GasUsed),
		GasPrice: string(tx.GasPrice),
		Status:   tx.Status,
	}
	if tx.BlockNumber != nil {
		n := uint64(*tx.BlockNumber)
		out.BlockNumber = &n
	}
	return out
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
