package web3

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "SeiFlow/internal/errors"
)

// CodeChainReadFailed marks errors returned by an RPC node.
const CodeChainReadFailed xerrors.Code = "CHAIN_READ_FAILED"

func init() {
	xerrors.Register(CodeChainReadFailed, xerrors.Attributes{
		Message:   "chain read failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// Transaction statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusPending = "pending"
)

// ChainInfo is the chain id and head block of an RPC endpoint.
type ChainInfo struct {
	ChainID     uint64
	BlockNumber uint64
}

// TokenInfo is ERC-20 metadata.
type TokenInfo struct {
	Address     string
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply *big.Int
}

// Transaction joins a transaction with its receipt when one exists.
type Transaction struct {
	Hash        string
	From        string
	To          string
	Value       *big.Int
	GasUsed     uint64
	GasPrice    *big.Int
	Status      string
	BlockNumber *uint64
}

// Reader is the read surface every chain client provides.
type Reader interface {
	ChainInfo(ctx context.Context) (ChainInfo, error)
	Balance(ctx context.Context, address string) (*big.Int, error)
	TokenInfo(ctx context.Context, token string) (TokenInfo, error)
	TokenBalance(ctx context.Context, token, owner string) (*big.Int, error)
	Transaction(ctx context.Context, hash string) (Transaction, error)
	IsContract(ctx context.Context, address string) (bool, error)
	Close()
}

// ParseAddress validates a 0x-prefixed 20-byte hex address.
func ParseAddress(field, value string) (common.Address, error) {
	value = strings.TrimSpace(value)
	if !common.IsHexAddress(value) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid %s %q", field, value))
	}
	return common.HexToAddress(value), nil
}

// ParseTxHash validates a 0x-prefixed 32-byte hex hash.
func ParseTxHash(value string) (common.Hash, error) {
	v := strings.TrimSpace(value)
	if len(v) != 2+2*common.HashLength || !strings.HasPrefix(strings.ToLower(v), "0x") {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid transaction hash %q", value))
	}
	if _, err := hex.DecodeString(v[2:]); err != nil {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("invalid transaction hash %q", value))
	}
	return common.HexToHash(v), nil
}
