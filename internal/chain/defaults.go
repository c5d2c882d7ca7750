package chain

var defaultChains = []Chain{
	{
		ID:       EthereumID,
		Name:     "Ethereum",
		Symbol:   "ETH",
		RPCURL:   "https://rpc.ankr.com/eth",
		Explorer: "https://etherscan.io",
		Aliases:  []string{"ethereum", "eth"},
	},
	{
		ID:       BSCID,
		Name:     "BNB Smart Chain",
		Symbol:   "BNB",
		RPCURL:   "https://rpc.ankr.com/bsc",
		Explorer: "https://bscscan.com",
		Aliases:  []string{"bsc", "binance"},
	},
	{
		ID:       PolygonID,
		Name:     "Polygon",
		Symbol:   "MATIC",
		RPCURL:   "https://rpc.ankr.com/polygon",
		Explorer: "https://polygonscan.com",
		Aliases:  []string{"polygon", "poly", "matic"},
	},
	{
		ID:       SeiMainnetID,
		Name:     "Sei Network",
		Symbol:   "SEI",
		RPCURL:   "https://evm-rpc.sei-apis.com",
		Explorer: "https://seitrace.com",
		Aliases:  []string{"sei"},
	},
	{
		ID:       SeiTestnetID,
		Name:     "Sei Atlantic-2",
		Symbol:   "SEI",
		RPCURL:   "https://evm-rpc-testnet.sei-apis.com",
		Explorer: "https://seitrace.com/?chain=atlantic-2",
		Aliases:  []string{"sei-testnet", "atlantic-2"},
		Testnet:  true,
	},
	{
		ID:       SeiDevnetID,
		Name:     "Sei Arctic-1",
		Symbol:   "SEI",
		RPCURL:   "https://evm-rpc-arctic-1.sei-apis.com",
		Explorer: "https://seitrace.com/?chain=arctic-1",
		Aliases:  []string{"sei-devnet", "arctic-1"},
		Testnet:  true,
	},
}

var defaultTokens = []Token{
	{Address: NativeTokenAddress, Symbol: "ETH", Name: "Ether", Decimals: 18, ChainID: EthereumID},
	{Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: EthereumID},
	{Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Symbol: "USDT", Name: "Tether USD", Decimals: 6, ChainID: EthereumID},
	{Address: NativeTokenAddress, Symbol: "BNB", Name: "BNB", Decimals: 18, ChainID: BSCID},
	{Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Symbol: "USDC", Name: "USD Coin", Decimals: 18, ChainID: BSCID},
	{Address: "0x55d398326f99059fF775485246999027B3197955", Symbol: "USDT", Name: "Tether USD", Decimals: 18, ChainID: BSCID},
	{Address: NativeTokenAddress, Symbol: "MATIC", Name: "Polygon", Decimals: 18, ChainID: PolygonID},
	{Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: PolygonID},
	{Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Symbol: "USDT", Name: "Tether USD", Decimals: 6, ChainID: PolygonID},
	{Address: NativeTokenAddress, Symbol: "SEI", Name: "Sei", Decimals: 18, ChainID: SeiMainnetID},
	{Address: "0x3894085Ef7Ff0f0aeDf52E2A2704928d1Ec074F1", Symbol: "USDC", Name: "USD Coin", Decimals: 6, ChainID: SeiMainnetID},
	{Address: NativeTokenAddress, Symbol: "SEI", Name: "Sei", Decimals: 18, ChainID: SeiTestnetID},
	{Address: NativeTokenAddress, Symbol: "SEI", Name: "Sei", Decimals: 18, ChainID: SeiDevnetID},
}

var defaultBridges = []Bridge{
	{Name: "Wormhole", BaseURL: "https://api.wormhole.com", Chains: []string{"ethereum", "bsc", "polygon", "sei"}},
	{Name: "Axelar", BaseURL: "https://api.axelar.network", Chains: []string{"ethereum", "bsc", "polygon", "sei"}},
}

// Default returns a registry populated with the built-in tables.
func Default() *Registry {
	return NewRegistry(defaultChains, defaultTokens, defaultBridges)
}
