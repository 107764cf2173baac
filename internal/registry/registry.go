// Package registry is the read-only chain and token registry built at
// process start. It also vends the per-network client handles every other
// component uses to touch a chain.
package registry

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/zerog-labs/x402-facilitator/internal/config"
	"github.com/zerog-labs/x402-facilitator/internal/evm"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
)

// NetworkRecord describes one supported network.
type NetworkRecord struct {
	Slug                  string
	ChainID               uint64
	Name                  string
	RPCURL                string
	RequiredConfirmations uint64
	DefaultToken          string
}

// TokenDeployment is one token contract on one network, with the EIP-712
// domain identity the contract signs under.
type TokenDeployment struct {
	Address       string
	EIP712Name    string
	EIP712Version string
}

// TokenRecord describes one supported token across networks.
type TokenRecord struct {
	Symbol          string
	Decimals        uint8
	SupportsEIP3009 bool
	Deployments     map[string]TokenDeployment // network slug -> deployment
}

// Registry holds the immutable network/token tables and the lazily built
// chain clients.
type Registry struct {
	networks     map[string]NetworkRecord
	tokens       map[string]TokenRecord
	networkOrder []string
	tokenOrder   []string

	privateKey    string
	walletAddress string

	mu      sync.Mutex
	readers map[string]evm.ChainReader
	writers map[string]evm.ChainWriter
}

// New builds the registry from the built-in tables and the environment
// overrides in cfg. Construction fails on malformed entries; runtime
// lookups surface typed NOT_SUPPORTED errors instead.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		networks:   make(map[string]NetworkRecord, len(defaultNetworks)),
		tokens:     make(map[string]TokenRecord, len(defaultTokens)),
		privateKey: cfg.PrivateKey,
		readers:    make(map[string]evm.ChainReader),
		writers:    make(map[string]evm.ChainWriter),
	}

	for _, token := range defaultTokens {
		r.tokens[token.Symbol] = token
		r.tokenOrder = append(r.tokenOrder, token.Symbol)
	}

	for _, network := range defaultNetworks {
		if url, ok := cfg.RPCURLs[network.Slug]; ok {
			network.RPCURL = url
		}
		if network.RPCURL == "" {
			return nil, fmt.Errorf("network %s: missing RPC URL", network.Slug)
		}
		if network.RequiredConfirmations < 1 {
			return nil, fmt.Errorf("network %s: required confirmations must be at least 1", network.Slug)
		}

		token, ok := r.tokens[network.DefaultToken]
		if !ok {
			return nil, fmt.Errorf("network %s: unknown default token %q", network.Slug, network.DefaultToken)
		}
		if _, ok := token.Deployments[network.Slug]; !ok {
			return nil, fmt.Errorf("network %s: default token %q has no deployment on it", network.Slug, network.DefaultToken)
		}

		r.networks[network.Slug] = network
		r.networkOrder = append(r.networkOrder, network.Slug)
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid facilitator private key: %w", err)
		}
		r.walletAddress = crypto.PubkeyToAddress(key.PublicKey).Hex()
	}

	return r, nil
}

// ChainOf resolves a network slug.
func (r *Registry) ChainOf(network string) (NetworkRecord, error) {
	record, ok := r.networks[network]
	if !ok {
		return NetworkRecord{}, protocol.NotSupportedf("Unsupported network: %s", network)
	}
	return record, nil
}

// TokenOf resolves a token symbol.
func (r *Registry) TokenOf(symbol string) (TokenRecord, error) {
	record, ok := r.tokens[strings.ToLower(symbol)]
	if !ok {
		return TokenRecord{}, protocol.NotSupportedf("Unsupported asset: %s", symbol)
	}
	return record, nil
}

// AddressOf returns the contract address of a token on a network.
func (r *Registry) AddressOf(network, symbol string) (string, error) {
	if _, err := r.ChainOf(network); err != nil {
		return "", err
	}
	token, err := r.TokenOf(symbol)
	if err != nil {
		return "", err
	}
	deployment, ok := token.Deployments[network]
	if !ok {
		return "", protocol.NotSupportedf("Asset %s is not supported on network %s", symbol, network)
	}
	return deployment.Address, nil
}

// ConfirmationsOf returns the confirmation depth required on a network.
func (r *Registry) ConfirmationsOf(network string) (uint64, error) {
	record, err := r.ChainOf(network)
	if err != nil {
		return 0, err
	}
	return record.RequiredConfirmations, nil
}

// ChainIDOf returns the numeric chain id of a network.
func (r *Registry) ChainIDOf(network string) (uint64, error) {
	record, err := r.ChainOf(network)
	if err != nil {
		return 0, err
	}
	return record.ChainID, nil
}

// WalletAddress returns the address derived from the facilitator key, or an
// empty string when the facilitator runs without one (verify-only).
func (r *Registry) WalletAddress() string {
	return r.walletAddress
}

// SupportedNetworks lists network slugs in registration order.
func (r *Registry) SupportedNetworks() []string {
	out := make([]string, len(r.networkOrder))
	copy(out, r.networkOrder)
	return out
}

// SupportedAssets lists the token symbols deployed on a network, in
// registration order.
func (r *Registry) SupportedAssets(network string) []string {
	var out []string
	for _, symbol := range r.tokenOrder {
		if _, ok := r.tokens[symbol].Deployments[network]; ok {
			out = append(out, symbol)
		}
	}
	return out
}

// IsNative reports whether an asset is the network's native token,
// deployed at the zero address. Native balances are read with
// eth_getBalance instead of balanceOf.
func (r *Registry) IsNative(network, asset string) bool {
	token, _, err := r.ResolveAsset(network, asset)
	if err != nil {
		return false
	}
	deployment := token.Deployments[network]
	return strings.EqualFold(deployment.Address, evm.ZeroAddress)
}

// ResolveAsset resolves the asset field of payment requirements, which may
// carry a token symbol or a contract address. An empty asset selects the
// network's default token. Returns the token record and its deployment on
// the network.
func (r *Registry) ResolveAsset(network, asset string) (TokenRecord, TokenDeployment, error) {
	chain, err := r.ChainOf(network)
	if err != nil {
		return TokenRecord{}, TokenDeployment{}, err
	}

	if asset == "" {
		asset = chain.DefaultToken
	}

	if strings.HasPrefix(asset, "0x") || strings.HasPrefix(asset, "0X") {
		for _, symbol := range r.tokenOrder {
			token := r.tokens[symbol]
			if deployment, ok := token.Deployments[network]; ok && strings.EqualFold(deployment.Address, asset) {
				return token, deployment, nil
			}
		}
		return TokenRecord{}, TokenDeployment{}, protocol.NotSupportedf("Unsupported asset: %s", asset)
	}

	token, err := r.TokenOf(asset)
	if err != nil {
		return TokenRecord{}, TokenDeployment{}, err
	}
	deployment, ok := token.Deployments[network]
	if !ok {
		return TokenRecord{}, TokenDeployment{}, protocol.NotSupportedf("Asset %s is not supported on network %s", asset, network)
	}
	return token, deployment, nil
}

// EIP712Domain builds the typed-data domain for a token deployment.
func (r *Registry) EIP712Domain(network string, deployment TokenDeployment) (evm.TypedDataDomain, error) {
	chain, err := r.ChainOf(network)
	if err != nil {
		return evm.TypedDataDomain{}, err
	}
	return evm.TypedDataDomain{
		Name:              deployment.EIP712Name,
		Version:           deployment.EIP712Version,
		ChainID:           new(big.Int).SetUint64(chain.ChainID),
		VerifyingContract: deployment.Address,
	}, nil
}

// Reader returns the read-only client for a network, dialing on first use.
func (r *Registry) Reader(network string) (evm.ChainReader, error) {
	record, err := r.ChainOf(network)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if reader, ok := r.readers[network]; ok {
		return reader, nil
	}

	client, err := evm.DialPublic(network, record.RPCURL)
	if err != nil {
		return nil, protocol.RPCErrorf("failed to connect to %s: %v", network, err)
	}
	r.readers[network] = client
	return client, nil
}

// Writer returns the wallet client for a network, bound to the
// facilitator's signing key. Fails when no key is configured.
func (r *Registry) Writer(network string) (evm.ChainWriter, error) {
	record, err := r.ChainOf(network)
	if err != nil {
		return nil, err
	}
	if r.privateKey == "" {
		return nil, protocol.SettlementErrorf("facilitator signing key is not configured")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if writer, ok := r.writers[network]; ok {
		return writer, nil
	}

	public, err := evm.DialPublic(network, record.RPCURL)
	if err != nil {
		return nil, protocol.RPCErrorf("failed to connect to %s: %v", network, err)
	}
	wallet, err := evm.NewWallet(public, r.privateKey, new(big.Int).SetUint64(record.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet client for %s: %w", network, err)
	}
	r.writers[network] = wallet
	return wallet, nil
}

// SetReader injects a reader handle, replacing the dialed client.
// Test seam.
func (r *Registry) SetReader(network string, reader evm.ChainReader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readers[network] = reader
}

// SetWriter injects a writer handle, replacing the dialed client.
// Test seam.
func (r *Registry) SetWriter(network string, writer evm.ChainWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writers[network] = writer
}
