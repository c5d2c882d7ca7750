package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
}

// Backend is the subset of ethclient.Client the reader needs. The simulated
// backend's client satisfies it as well.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CallContract(ctx context.Context, call gethcore.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error)
}

// Client implements web3.Reader for EVM compatible chains.
type Client struct {
	name    string
	backend Backend
	closer  func()

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 EVM RPC 地址")
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(web3.CodeChainReadFailed, err, fmt.Sprintf("连接节点 %s 失败", rpcURL))
	}
	return &Client{name: cfg.Name, backend: eth, closer: eth.Close}, nil
}

// NewWithBackend wraps an existing backend, for example a simulated chain.
func NewWithBackend(name string, backend Backend) *Client {
	return &Client{name: name, backend: backend}
}

// Name returns the chain name the client was created for.
func (c *Client) Name() string { return c.name }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closer != nil {
		c.closer()
		c.closer = nil
	}
}

func (c *Client) chainIDLocked(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, readErr(err, "获取链 ID 失败")
	}
	c.chainID = id
	return id, nil
}

// ChainInfo returns the chain id and latest block number.
func (c *Client) ChainInfo(ctx context.Context) (web3.ChainInfo, error) {
	id, err := c.chainIDLocked(ctx)
	if err != nil {
		return web3.ChainInfo{}, err
	}
	block, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainInfo{}, readErr(err, "获取最新区块高度失败")
	}
	return web3.ChainInfo{ChainID: id.Uint64(), BlockNumber: block}, nil
}

// Balance returns the native balance in wei.
func (c *Client) Balance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := web3.ParseAddress("address", address)
	if err != nil {
		return nil, err
	}
	balance, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, readErr(err, "查询余额失败")
	}
	return balance, nil
}

// TokenInfo reads ERC-20 name, symbol, decimals and total supply.
func (c *Client) TokenInfo(ctx context.Context, token string) (web3.TokenInfo, error) {
	addr, err := web3.ParseAddress("token address", token)
	if err != nil {
		return web3.TokenInfo{}, err
	}
	info := web3.TokenInfo{Address: addr.Hex()}

	name, err := c.call(ctx, addr, "name")
	if err != nil {
		return web3.TokenInfo{}, err
	}
	symbol, err := c.call(ctx, addr, "symbol")
	if err != nil {
		return web3.TokenInfo{}, err
	}
	decimals, err := c.call(ctx, addr, "decimals")
	if err != nil {
		return web3.TokenInfo{}, err
	}
	supply, err := c.call(ctx, addr, "totalSupply")
	if err != nil {
		return web3.TokenInfo{}, err
	}

	var ok bool
	if info.Name, ok = name.(string); !ok {
		return web3.TokenInfo{}, unexpectedOutput("name", name)
	}
	if info.Symbol, ok = symbol.(string); !ok {
		return web3.TokenInfo{}, unexpectedOutput("symbol", symbol)
	}
	if info.Decimals, ok = decimals.(uint8); !ok {
		return web3.TokenInfo{}, unexpectedOutput("decimals", decimals)
	}
	if info.TotalSupply, ok = supply.(*big.Int); !ok {
		return web3.TokenInfo{}, unexpectedOutput("totalSupply", supply)
	}
	return info, nil
}

// TokenBalance returns balanceOf(owner) in base units.
func (c *Client) TokenBalance(ctx context.Context, token, owner string) (*big.Int, error) {
	tokenAddr, err := web3.ParseAddress("token address", token)
	if err != nil {
		return nil, err
	}
	ownerAddr, err := web3.ParseAddress("owner address", owner)
	if err != nil {
		return nil, err
	}
	out, err := c.call(ctx, tokenAddr, "balanceOf", ownerAddr)
	if err != nil {
		return nil, err
	}
	balance, ok := out.(*big.Int)
	if !ok {
		return nil, unexpectedOutput("balanceOf", out)
	}
	return balance, nil
}

// Transaction looks up a transaction and, when mined, its receipt.
func (c *Client) Transaction(ctx context.Context, hash string) (web3.Transaction, error) {
	h, err := web3.ParseTxHash(hash)
	if err != nil {
		return web3.Transaction{}, err
	}
	tx, pending, err := c.backend.TransactionByHash(ctx, h)
	if err != nil {
		if errors.Is(err, gethcore.NotFound) {
			return web3.Transaction{}, xerrors.Wrap(xerrors.CodeNotFound, err, fmt.Sprintf("交易 %s 不存在", h.Hex()))
		}
		if indexing(err) {
			// 节点仍在建立交易索引，此时无法区分"不存在"与"尚未索引"。
			return web3.Transaction{}, xerrors.Wrap(web3.CodeChainReadFailed, err, "节点交易索引尚未完成",
				xerrors.WithRetryable(true), xerrors.WithMetadata("reason", "indexing"))
		}
		return web3.Transaction{}, readErr(err, "查询交易失败")
	}

	out := web3.Transaction{
		Hash:     tx.Hash().Hex(),
		Value:    tx.Value(),
		GasPrice: tx.GasPrice(),
		Status:   web3.StatusPending,
	}
	if to := tx.To(); to != nil {
		out.To = to.Hex()
	}
	signerID := tx.ChainId()
	if id, err := c.chainIDLocked(ctx); err == nil {
		signerID = id
	}
	if from, err := coretypes.Sender(coretypes.LatestSignerForChainID(signerID), tx); err == nil {
		out.From = from.Hex()
	}
	if pending {
		return out, nil
	}

	receipt, err := c.backend.TransactionReceipt(ctx, h)
	if err != nil {
		if errors.Is(err, gethcore.NotFound) {
			return out, nil
		}
		return web3.Transaction{}, readErr(err, "查询交易回执失败")
	}
	out.GasUsed = receipt.GasUsed
	if receipt.EffectiveGasPrice != nil {
		out.GasPrice = receipt.EffectiveGasPrice
	}
	if receipt.BlockNumber != nil {
		block := receipt.BlockNumber.Uint64()
		out.BlockNumber = &block
	}
	if receipt.Status == coretypes.ReceiptStatusSuccessful {
		out.Status = web3.StatusSuccess
	} else {
		out.Status = web3.StatusFailed
	}
	return out, nil
}

// IsContract reports whether code is deployed at address.
func (c *Client) IsContract(ctx context.Context, address string) (bool, error) {
	addr, err := web3.ParseAddress("address", address)
	if err != nil {
		return false, err
	}
	code, err := c.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, readErr(err, "查询合约代码失败")
	}
	return len(code) > 0, nil
}

func (c *Client) call(ctx context.Context, to common.Address, method string, args ...any) (any, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码 "+method+" 调用失败")
	}
	raw, err := c.backend.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, readErr(err, "调用 "+method+" 失败")
	}
	if len(raw) == 0 {
		return nil, xerrors.New(web3.CodeChainReadFailed, fmt.Sprintf("%s 不是 ERC-20 合约（%s 无返回）", to.Hex(), method),
			xerrors.WithRetryable(false))
	}
	values, err := erc20ABI.Unpack(method, raw)
	if err != nil {
		return nil, xerrors.Wrap(web3.CodeChainReadFailed, err, "解码 "+method+" 返回值失败", xerrors.WithRetryable(false))
	}
	if len(values) != 1 {
		return nil, unexpectedOutput(method, values)
	}
	return values[0], nil
}

func indexing(err error) bool {
	return strings.Contains(err.Error(), "transaction indexing is in progress")
}

func readErr(err error, message string) error {
	return xerrors.Wrap(web3.CodeChainReadFailed, err, message)
}

func unexpectedOutput(method string, v any) error {
	return xerrors.New(web3.CodeChainReadFailed, fmt.Sprintf("%s 返回了意外的类型 %T", method, v), xerrors.WithRetryable(false))
}

var _ web3.Reader = (*Client)(nil)
