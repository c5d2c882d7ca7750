package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"SeiFlow/internal/chain"
	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/web3"
	"SeiFlow/internal/web3/ethereum"
)

// Dialer creates a reader for a chain.
type Dialer func(ctx context.Context, c chain.Chain) (web3.Reader, error)

// DialEVM is the default Dialer.
func DialEVM(ctx context.Context, c chain.Chain) (web3.Reader, error) {
	return ethereum.NewClient(ctx, ethereum.Config{Name: c.Name, RPCURL: c.RPCURL})
}

// Registry manages one reader per chain, dialed on first use.
type Registry struct {
	chains *chain.Registry
	dial   Dialer

	mu      sync.Mutex
	readers map[chain.ID]web3.Reader
}

// NewRegistry returns a registry over the chains in reg. A nil dialer selects DialEVM.
func NewRegistry(reg *chain.Registry, dial Dialer) *Registry {
	if reg == nil {
		reg = chain.Default()
	}
	if dial == nil {
		dial = DialEVM
	}
	return &Registry{chains: reg, dial: dial, readers: make(map[chain.ID]web3.Reader)}
}

// Reader returns the reader for chain id, dialing it if needed.
func (r *Registry) Reader(ctx context.Context, id chain.ID) (web3.Reader, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reader, ok := r.readers[id]; ok {
		return reader, nil
	}
	c, ok := r.chains.ChainByID(id)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("链 %d 未注册", id))
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("链 %s 未配置 RPC 地址", c.Name))
	}
	reader, err := r.dial(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("初始化链 %s 失败: %w", c.Name, err)
	}
	r.readers[id] = reader
	return reader, nil
}

// ReaderByName resolves a chain name or alias and returns its reader.
func (r *Registry) ReaderByName(ctx context.Context, name string) (web3.Reader, error) {
	id, ok := r.chains.ResolveChainID(name)
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("未知的链 %q", name))
	}
	return r.Reader(ctx, id)
}

// Connected returns the ids of chains with an open reader.
func (r *Registry) Connected() []chain.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]chain.ID, 0, len(r.readers))
	for id := range r.readers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close releases all readers managed by the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, reader := range r.readers {
		if reader != nil {
			reader.Close()
		}
		delete(r.readers, id)
	}
}
