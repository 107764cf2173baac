package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// receiptPollInterval is how often WaitForReceipt polls the chain.
const receiptPollInterval = 2 * time.Second

// WalletClient extends a PublicClient with the facilitator's signing key.
// One instance per network; safe for concurrent use. Submission is
// serialized so concurrent writes get distinct account nonces.
type WalletClient struct {
	*PublicClient
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int

	sendMu sync.Mutex
}

// NewWallet binds a hex-encoded private key (with or without 0x prefix) to
// a public client. The chain id comes from registry configuration so
// construction needs no RPC round-trip.
func NewWallet(pub *PublicClient, privateKeyHex string, chainID *big.Int) (*WalletClient, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &WalletClient{
		PublicClient: pub,
		privateKey:   privateKey,
		address:      crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:      new(big.Int).Set(chainID),
	}, nil
}

// Address returns the facilitator's address on this network.
func (w *WalletClient) Address() string {
	return w.address.Hex()
}

// ChainID returns the chain id reported by the RPC endpoint.
func (w *WalletClient) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// WriteContract packs a contract call, signs it and submits it, retrying
// transient submission failures. Returns the transaction hash.
func (w *WalletClient) WriteContract(
	ctx context.Context,
	contractAddress string,
	abiJSON []byte,
	method string,
	args ...interface{},
) (string, error) {
	contractABI, err := abi.JSON(strings.NewReader(string(abiJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack method call: %w", err)
	}

	to := common.HexToAddress(contractAddress)
	return withRetry(ctx, WriteRetryConfig, func() (string, error) {
		return w.submit(ctx, to, data)
	})
}

// submit assigns the account nonce, signs and broadcasts one transaction.
// The lock spans nonce assignment through broadcast so two concurrent
// writes cannot reuse a nonce.
func (w *WalletClient) submit(ctx context.Context, to common.Address, data []byte) (string, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), DefaultGasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	return signedTx.Hash().Hex(), nil
}

// WaitForReceipt polls until the transaction reaches the requested
// confirmation depth, where confirmations = currentBlock - receiptBlock.
// On context expiry it returns the last observed receipt and depth
// alongside ctx.Err() so callers can classify the transaction as pending.
func (w *WalletClient) WaitForReceipt(ctx context.Context, txHash string, confirmations uint64) (*Receipt, uint64, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	var (
		lastReceipt *Receipt
		lastDepth   uint64
	)
	for {
		select {
		case <-ctx.Done():
			return lastReceipt, lastDepth, ctx.Err()
		case <-ticker.C:
			receipt, err := w.TransactionReceipt(ctx, txHash)
			if err != nil {
				// Not mined yet, or a transient RPC failure; keep polling.
				continue
			}
			lastReceipt = receipt

			current, err := w.BlockNumber(ctx)
			if err != nil {
				continue
			}
			if current >= receipt.BlockNumber {
				lastDepth = current - receipt.BlockNumber
			}
			if lastDepth >= confirmations {
				return receipt, lastDepth, nil
			}
		}
	}
}
