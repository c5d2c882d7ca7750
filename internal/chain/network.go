package chain

import (
	"fmt"
	"strings"
)

// Network names a Sei deployment.
type Network string

const (
	NetworkMainnet Network = "sei"
	NetworkTestnet Network = "sei-testnet"
	NetworkDevnet  Network = "sei-devnet"
)

// NetworkConfig is the chain id and EVM RPC endpoint of a Sei network.
type NetworkConfig struct {
	ChainID ID
	RPCURL  string
}

var networkChains = map[Network]ID{
	NetworkMainnet: SeiMainnetID,
	NetworkTestnet: SeiTestnetID,
	NetworkDevnet:  SeiDevnetID,
}

// ParseNetwork validates a network name. Empty input selects the testnet.
func ParseNetwork(raw string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(raw)))
	if n == "" {
		return NetworkTestnet, nil
	}
	if _, ok := networkChains[n]; !ok {
		return "", fmt.Errorf("unknown sei network %q (want sei, sei-testnet or sei-devnet)", raw)
	}
	return n, nil
}

// NetworkConfig resolves the chain id and RPC URL for the network from the registry.
func (r *Registry) NetworkConfig(n Network) (NetworkConfig, error) {
	id, ok := networkChains[n]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unknown sei network %q", n)
	}
	c, ok := r.chains[id]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("sei network %q (chain %d) missing from registry", n, id)
	}
	return NetworkConfig{ChainID: id, RPCURL: c.RPCURL}, nil
}
