// Package chain holds the static tables of supported chains, tokens, bridges
// and Sei networks, plus lookups from user-facing names to chain ids.
package chain

import (
	"fmt"
	"sort"
	"strings"
)

// ID is an EVM chain id.
type ID uint64

const (
	EthereumID   ID = 1
	BSCID        ID = 56
	PolygonID    ID = 137
	SeiMainnetID ID = 1329
	SeiTestnetID ID = 1328
	SeiDevnetID  ID = 713715
)

// NativeTokenAddress marks the chain's native asset in token tables.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// Chain describes an EVM network SeiFlow knows how to talk about.
type Chain struct {
	ID             ID       `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Symbol         string   `json:"symbol" yaml:"symbol"`
	RPCURL         string   `json:"rpc_url" yaml:"rpc_url"`
	Explorer       string   `json:"explorer" yaml:"explorer"`
	Aliases        []string `json:"aliases,omitempty" yaml:"aliases"`
	Testnet        bool     `json:"testnet" yaml:"testnet"`
	NativeDecimals int      `json:"native_decimals" yaml:"native_decimals"`
}

// Token is an asset on a specific chain.
type Token struct {
	Address  string `json:"address" yaml:"address"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Name     string `json:"name" yaml:"name"`
	Decimals int    `json:"decimals" yaml:"decimals"`
	ChainID  ID     `json:"chain_id" yaml:"chain_id"`
}

// IsNative reports whether the token is the chain's gas asset.
func (t Token) IsNative() bool {
	return strings.EqualFold(t.Address, NativeTokenAddress)
}

// Bridge is a cross-chain messaging provider referenced in execution plans.
type Bridge struct {
	Name    string   `json:"name" yaml:"name"`
	BaseURL string   `json:"base_url" yaml:"base_url"`
	Chains  []string `json:"chains" yaml:"chains"`
}

// Registry indexes chains and tokens. It is read-only after construction.
type Registry struct {
	chains  map[ID]Chain
	aliases map[string]ID
	tokens  map[ID]map[string]Token
	bridges []Bridge
}

// NewRegistry builds a registry from explicit tables.
func NewRegistry(chains []Chain, tokens []Token, bridges []Bridge) *Registry {
	r := &Registry{
		chains:  make(map[ID]Chain, len(chains)),
		aliases: make(map[string]ID),
		tokens:  make(map[ID]map[string]Token),
	}
	for _, c := range chains {
		r.addChain(c)
	}
	for _, t := range tokens {
		r.addToken(t)
	}
	r.bridges = append(r.bridges, bridges...)
	return r
}

func (r *Registry) addChain(c Chain) {
	if c.NativeDecimals == 0 {
		c.NativeDecimals = 18
	}
	if prev, ok := r.chains[c.ID]; ok {
		c = mergeChain(prev, c)
	}
	r.chains[c.ID] = c
	for _, alias := range c.Aliases {
		key := normalize(alias)
		if key != "" {
			r.aliases[key] = c.ID
		}
	}
}

func (r *Registry) addToken(t Token) {
	symbols, ok := r.tokens[t.ChainID]
	if !ok {
		symbols = make(map[string]Token)
		r.tokens[t.ChainID] = symbols
	}
	symbols[strings.ToUpper(strings.TrimSpace(t.Symbol))] = t
}

func mergeChain(base, overlay Chain) Chain {
	if overlay.Name != "" {
		base.Name = overlay.Name
	}
	if overlay.Symbol != "" {
		base.Symbol = overlay.Symbol
	}
	if overlay.RPCURL != "" {
		base.RPCURL = overlay.RPCURL
	}
	if overlay.Explorer != "" {
		base.Explorer = overlay.Explorer
	}
	if overlay.Testnet {
		base.Testnet = true
	}
	if overlay.NativeDecimals != 0 {
		base.NativeDecimals = overlay.NativeDecimals
	}
	base.Aliases = append(base.Aliases, overlay.Aliases...)
	return base
}

// ChainByID returns the chain with the given id.
func (r *Registry) ChainByID(id ID) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

// ResolveChainID maps a user-facing chain name to its id. Matching is
// case-insensitive; an empty or unknown name yields false.
func (r *Registry) ResolveChainID(name string) (ID, bool) {
	key := normalize(name)
	if key == "" {
		return 0, false
	}
	id, ok := r.aliases[key]
	return id, ok
}

// Chains lists all chains ordered by id.
func (r *Registry) Chains() []Chain {
	out := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TokenBySymbol finds a token on a chain by symbol, case-insensitively.
func (r *Registry) TokenBySymbol(id ID, symbol string) (Token, bool) {
	t, ok := r.tokens[id][strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// Tokens lists the tokens known on a chain ordered by symbol.
func (r *Registry) Tokens(id ID) []Token {
	out := make([]Token, 0, len(r.tokens[id]))
	for _, t := range r.tokens[id] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Bridges returns the configured bridge providers.
func (r *Registry) Bridges() []Bridge {
	return append([]Bridge(nil), r.bridges...)
}

// MustChain is ChainByID for ids that are part of the built-in tables.
func (r *Registry) MustChain(id ID) Chain {
	c, ok := r.chains[id]
	if !ok {
		panic(fmt.Sprintf("chain %d not registered", id))
	}
	return c
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
