package settle

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zerog-labs/x402-facilitator/internal/evm"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/store"
)

// defaultValidityWindow caps authorizations that omit validBefore.
const defaultValidityWindow = time.Hour

// settleEIP3009 submits transferWithAuthorization with the payer's own
// signature. The transferred value is the exact signed amount; rewriting
// it to the net amount would invalidate the signature, so the fee is
// tracked off-chain and no treasury leg exists.
func (s *Settler) settleEIP3009(
	ctx context.Context,
	writer evm.ChainWriter,
	network, tokenAddress string,
	auth *protocol.Authorization,
	req *protocol.SettleRequest,
	required uint64,
) (*Outcome, error) {
	value, ok := new(big.Int).SetString(auth.Value, 10)
	if !ok {
		return nil, protocol.SettlementErrorf("invalid authorization value: %q", auth.Value)
	}

	validAfter := big.NewInt(0)
	if auth.ValidAfter != "" {
		if validAfter, ok = new(big.Int).SetString(auth.ValidAfter, 10); !ok {
			return nil, protocol.SettlementErrorf("invalid validAfter: %q", auth.ValidAfter)
		}
	}
	validBefore := big.NewInt(time.Now().Add(defaultValidityWindow).Unix())
	if auth.ValidBefore != "" {
		if validBefore, ok = new(big.Int).SetString(auth.ValidBefore, 10); !ok {
			return nil, protocol.SettlementErrorf("invalid validBefore: %q", auth.ValidBefore)
		}
	}

	nonce, err := evm.HexTo32(auth.Nonce)
	if err != nil {
		return nil, protocol.SettlementErrorf("invalid nonce: %v", err)
	}
	r, err := evm.HexTo32(auth.R)
	if err != nil {
		return nil, protocol.SettlementErrorf("invalid signature r: %v", err)
	}
	sigS, err := evm.HexTo32(auth.S)
	if err != nil {
		return nil, protocol.SettlementErrorf("invalid signature s: %v", err)
	}

	to := auth.To
	if to == "" {
		to = req.PaymentRequirements.PayTo
	}

	txHash, err := writer.WriteContract(ctx, tokenAddress, evm.TransferWithAuthorizationABI, "transferWithAuthorization",
		common.HexToAddress(auth.From),
		common.HexToAddress(to),
		value,
		validAfter,
		validBefore,
		nonce,
		auth.V,
		r,
		sigS,
	)
	if err != nil {
		return nil, protocol.SettlementErrorf("transaction failed: %v", err)
	}

	record := s.track(ctx, network, txHash, "")

	receipt, depth, waitErr := writer.WaitForReceipt(ctx, txHash, required)
	outcome := &Outcome{TxHash: txHash, Confirmations: depth}
	switch {
	case waitErr == nil && receipt.Success():
		outcome.Status = store.StatusConfirmed
	case waitErr == nil:
		outcome.Status = store.StatusFailed
	default:
		// Still below the required depth; the confirmer takes over.
		outcome.Status = store.StatusPending
	}

	s.updateRecord(ctx, record, outcome.Status, outcome.Confirmations)

	if outcome.Status == store.StatusConfirmed {
		s.anchorAgent(ctx, req, outcome, value.String())
	}
	return outcome, nil
}
