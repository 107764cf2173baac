package settle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zerog-labs/x402-facilitator/internal/evm"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/store"
)

// leg is one transferFrom of a relayer settlement.
type leg struct {
	txHash  string
	receipt *evm.Receipt
	depth   uint64
	err     error
}

func (l *leg) submit(ctx context.Context, writer evm.ChainWriter, token string, from, to common.Address, amount *big.Int) {
	l.txHash, l.err = writer.WriteContract(ctx, token, evm.ERC20TransferFromABI, "transferFrom", from, to, amount)
}

func (l *leg) await(ctx context.Context, writer evm.ChainWriter, required uint64) {
	if l.txHash == "" {
		return
	}
	l.receipt, l.depth, l.err = writer.WaitForReceipt(ctx, l.txHash, required)
}

// succeeded: mined, required depth reached, not reverted.
func (l *leg) succeeded() bool {
	return l.txHash != "" && l.err == nil && l.receipt.Success()
}

// inflight: submitted but still below the required depth.
func (l *leg) inflight() bool {
	return l.txHash != "" && l.err != nil
}

// settleRelayer settles tokens without EIP-3009 support: the facilitator
// spends its pre-approved allowance with two concurrent transferFrom
// calls, one to the merchant for the net amount and one to the treasury
// for the fee. The two legs are not atomic; a split outcome is reported
// as partial_settlement with both hashes so operators can reconcile.
func (s *Settler) settleRelayer(
	ctx context.Context,
	writer evm.ChainWriter,
	network, tokenAddress string,
	auth *protocol.Authorization,
	req *protocol.SettleRequest,
	feeAmount, netAmount *big.Int,
	required uint64,
) (*Outcome, error) {
	if s.treasury == "" {
		return nil, protocol.SettlementErrorf("TREASURY_ADDRESS is required for relayer settlement")
	}

	from := common.HexToAddress(auth.From)
	merchant := common.HexToAddress(req.PaymentRequirements.PayTo)
	treasury := common.HexToAddress(s.treasury)

	// Both legs ride the same wallet client, which serializes nonce
	// assignment internally.
	var (
		wg          sync.WaitGroup
		merchantLeg leg
		feeLeg      leg
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		merchantLeg.submit(ctx, writer, tokenAddress, from, merchant, netAmount)
	}()
	go func() {
		defer wg.Done()
		feeLeg.submit(ctx, writer, tokenAddress, from, treasury, feeAmount)
	}()
	wg.Wait()

	if merchantLeg.txHash == "" && feeLeg.txHash == "" {
		return nil, protocol.SettlementErrorf("settlement transfers failed: merchant: %v, fee: %v", merchantLeg.err, feeLeg.err)
	}

	record := s.track(ctx, network, merchantLeg.txHash, feeLeg.txHash)

	wg.Add(2)
	go func() {
		defer wg.Done()
		merchantLeg.await(ctx, writer, required)
	}()
	go func() {
		defer wg.Done()
		feeLeg.await(ctx, writer, required)
	}()
	wg.Wait()

	outcome := &Outcome{
		TxHash:        merchantLeg.txHash,
		TxHashFee:     feeLeg.txHash,
		Status:        relayerStatus(merchantLeg, feeLeg),
		Confirmations: minDepth(merchantLeg, feeLeg),
	}
	s.updateRecord(ctx, record, outcome.Status, outcome.Confirmations)
	return outcome, nil
}

func relayerStatus(merchant, fee leg) store.Status {
	switch {
	case merchant.succeeded() && fee.succeeded():
		return store.StatusConfirmed
	case merchant.inflight() || fee.inflight():
		return store.StatusPending
	case merchant.succeeded() || fee.succeeded():
		return store.StatusPartialSettlement
	default:
		return store.StatusFailed
	}
}

func minDepth(merchant, fee leg) uint64 {
	if merchant.txHash == "" {
		return fee.depth
	}
	if fee.txHash == "" {
		return merchant.depth
	}
	if fee.depth < merchant.depth {
		return fee.depth
	}
	return merchant.depth
}
