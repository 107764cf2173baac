// Package evm wraps go-ethereum behind the two capability surfaces the
// facilitator needs: a read-only public client and a key-bound wallet
// client. Components depend on the ChainReader/ChainWriter interfaces so
// tests can substitute an in-memory gateway.
package evm

import (
	"context"
	"math/big"
)

// ZeroAddress marks native assets in token configuration.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Transaction receipt status values.
const (
	TxStatusSuccess = 1
	TxStatusFailed  = 0
)

// DefaultGasLimit bounds facilitator-submitted transactions.
const DefaultGasLimit = 300000

// Receipt is the subset of a transaction receipt the facilitator tracks.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber uint64
}

// Success reports whether the transaction executed without reverting.
func (r *Receipt) Success() bool {
	return r != nil && r.Status == TxStatusSuccess
}

// ChainReader is the read-only surface of a network.
type ChainReader interface {
	// BlockNumber returns the current head block.
	BlockNumber(ctx context.Context) (uint64, error)
	// TransactionReceipt returns the receipt for a mined transaction, or
	// an error when it is not yet available.
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
	// ReadContract performs an eth_call against a contract function.
	ReadContract(ctx context.Context, contractAddress string, abiJSON []byte, method string, args ...interface{}) (interface{}, error)
	// GetBalance returns the token balance of an address, or the native
	// balance when tokenAddress is empty or the zero address.
	GetBalance(ctx context.Context, address, tokenAddress string) (*big.Int, error)
}

// ChainWriter is the signing surface of a network, bound to the
// facilitator's key.
type ChainWriter interface {
	// Address returns the facilitator's address on this network.
	Address() string
	// WriteContract submits a state-changing contract call and returns
	// the transaction hash.
	WriteContract(ctx context.Context, contractAddress string, abiJSON []byte, method string, args ...interface{}) (string, error)
	// WaitForReceipt polls until the transaction has the given number of
	// confirmations. It returns the last observed receipt and
	// confirmation count together with ctx.Err() when the deadline
	// expires first.
	WaitForReceipt(ctx context.Context, txHash string, confirmations uint64) (*Receipt, uint64, error)
}
