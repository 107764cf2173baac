package registry

// Built-in network table. RPC URLs are overridable per network through the
// environment; confirmation depths are fixed per chain.
var defaultNetworks = []NetworkRecord{
	{
		Slug:                  "base-sepolia",
		ChainID:               84532,
		Name:                  "Base Sepolia",
		RPCURL:                "https://sepolia.base.org",
		RequiredConfirmations: 1,
		DefaultToken:          "usdc",
	},
	{
		Slug:                  "ethereum-sepolia",
		ChainID:               11155111,
		Name:                  "Ethereum Sepolia",
		RPCURL:                "https://ethereum-sepolia-rpc.publicnode.com",
		RequiredConfirmations: 1,
		DefaultToken:          "usdc",
	},
	{
		Slug:                  "base",
		ChainID:               8453,
		Name:                  "Base",
		RPCURL:                "https://mainnet.base.org",
		RequiredConfirmations: 2,
		DefaultToken:          "usdc",
	},
	{
		Slug:                  "ethereum",
		ChainID:               1,
		Name:                  "Ethereum",
		RPCURL:                "https://ethereum-rpc.publicnode.com",
		RequiredConfirmations: 3,
		DefaultToken:          "usdc",
	},
	{
		Slug:                  "0g-mainnet",
		ChainID:               16661,
		Name:                  "0G Mainnet",
		RPCURL:                "https://evmrpc.0g.ai",
		RequiredConfirmations: 2,
		DefaultToken:          "w0g",
	},
	{
		Slug:                  "0g-testnet",
		ChainID:               16601,
		Name:                  "0G Galileo Testnet",
		RPCURL:                "https://evmrpc-testnet.0g.ai",
		RequiredConfirmations: 1,
		DefaultToken:          "w0g",
	},
	{
		Slug:                  "skale-base-sepolia",
		ChainID:               1444673419,
		Name:                  "SKALE Europa Testnet",
		RPCURL:                "https://testnet.skalenodes.com/v1/juicy-low-small-testnet",
		RequiredConfirmations: 1,
		DefaultToken:          "usdc",
	},
}

// Built-in token table. EIP-712 domain names follow the deployed
// contracts: testnet USDC self-identifies as "USDC", mainnet deployments
// as "USD Coin".
var defaultTokens = []TokenRecord{
	{
		Symbol:          "usdc",
		Decimals:        6,
		SupportsEIP3009: true,
		Deployments: map[string]TokenDeployment{
			"base-sepolia": {
				Address:       "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
				EIP712Name:    "USDC",
				EIP712Version: "2",
			},
			"ethereum-sepolia": {
				Address:       "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
				EIP712Name:    "USDC",
				EIP712Version: "2",
			},
			"base": {
				Address:       "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				EIP712Name:    "USD Coin",
				EIP712Version: "2",
			},
			"ethereum": {
				Address:       "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
				EIP712Name:    "USD Coin",
				EIP712Version: "2",
			},
			"skale-base-sepolia": {
				Address:       "0x5eD8BD53B0c3fa3dEaBd345430B1A3a6A4e8BD7C",
				EIP712Name:    "USDC",
				EIP712Version: "2",
			},
		},
	},
	{
		Symbol:          "w0g",
		Decimals:        18,
		SupportsEIP3009: false,
		Deployments: map[string]TokenDeployment{
			"0g-mainnet": {
				Address:       "0x1Cd0690fF9a693f5EF2dD976660a8dAFc81A109c",
				EIP712Name:    "Wrapped 0G",
				EIP712Version: "1",
			},
			"0g-testnet": {
				Address:       "0x9A87C2412d500343c073E5Ae5394E3bE3874F76b",
				EIP712Name:    "Wrapped 0G",
				EIP712Version: "1",
			},
		},
	},
}
