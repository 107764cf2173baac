package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// PublicClient is the read-only handle to one network.
type PublicClient struct {
	network string
	client  *ethclient.Client
}

// DialPublic connects a read-only client to an RPC endpoint.
func DialPublic(network, rpcURL string) (*PublicClient, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", network, err)
	}
	return &PublicClient{network: network, client: client}, nil
}

// Network returns the network slug this client serves.
func (c *PublicClient) Network() string {
	return c.network
}

// Close releases the underlying RPC connection.
func (c *PublicClient) Close() {
	c.client.Close()
}

// BlockNumber returns the current head block number.
func (c *PublicClient) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return n, nil
}

// TransactionReceipt fetches the receipt of a mined transaction.
// Returns ethereum.NotFound (see IsNotFound) while the transaction is
// still pending.
func (c *PublicClient) TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	receipt, err := c.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, err
	}
	return &Receipt{
		TxHash:      receipt.TxHash.Hex(),
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Uint64(),
	}, nil
}

// IsNotFound reports whether an error means the transaction is not mined yet.
func IsNotFound(err error) bool {
	return err == ethereum.NotFound
}

// ReadContract performs an eth_call and unpacks the result. Single-output
// functions return the bare value.
func (c *PublicClient) ReadContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	method string,
	args ...interface{},
) (interface{}, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack method call: %w", err)
	}

	addr := common.HexToAddress(contractAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}

	outputs, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack result: %w", err)
	}

	if len(outputs) == 0 {
		return nil, nil
	}
	if len(outputs) == 1 {
		return outputs[0], nil
	}
	return outputs, nil
}

// GetBalance returns the ERC-20 balance of an address, or the native
// balance when tokenAddress is empty or the zero address.
func (c *PublicClient) GetBalance(ctx context.Context, address, tokenAddress string) (*big.Int, error) {
	if tokenAddress == "" || strings.EqualFold(tokenAddress, ZeroAddress) {
		balance, err := c.client.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get balance: %w", err)
		}
		return balance, nil
	}

	result, err := c.ReadContract(ctx, tokenAddress, ERC20BalanceOfABI, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	balance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", result)
	}
	return balance, nil
}

// Allowance reads how much the spender may move on the owner's behalf.
func Allowance(ctx context.Context, r ChainReader, token, owner, spender string) (*big.Int, error) {
	result, err := r.ReadContract(ctx, token, ERC20AllowanceABI, "allowance",
		common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, err
	}
	allowance, ok := result.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected allowance result type %T", result)
	}
	return allowance, nil
}

// AuthorizationState reports whether an EIP-3009 nonce is already consumed.
func AuthorizationState(ctx context.Context, r ChainReader, token, authorizer, nonce string) (bool, error) {
	nonce32, err := HexTo32(nonce)
	if err != nil {
		return false, fmt.Errorf("invalid nonce: %w", err)
	}

	result, err := r.ReadContract(ctx, token, AuthorizationStateABI, "authorizationState",
		common.HexToAddress(authorizer), nonce32)
	if err != nil {
		return false, err
	}
	used, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type %T", result)
	}
	return used, nil
}

// TokenDecimals reads decimals() from a token contract.
func TokenDecimals(ctx context.Context, r ChainReader, token string) (uint8, error) {
	result, err := r.ReadContract(ctx, token, ERC20DecimalsABI, "decimals")
	if err != nil {
		return 0, err
	}
	decimals, ok := result.(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals result type %T", result)
	}
	return decimals, nil
}
