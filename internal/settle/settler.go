// Package settle submits verified payment authorizations on-chain and
// classifies the outcome. Two strategies exist: EIP-3009 tokens settle
// with a single transferWithAuthorization carrying the payer's
// signature; other tokens settle through two facilitator-initiated
// transferFrom calls (merchant and treasury legs).
package settle

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/zerog-labs/x402-facilitator/internal/identity"
	"github.com/zerog-labs/x402-facilitator/internal/protocol"
	"github.com/zerog-labs/x402-facilitator/internal/registry"
	"github.com/zerog-labs/x402-facilitator/internal/store"
)

// Outcome is the result of a settlement attempt. Pending outcomes carry
// the hashes of in-flight transactions; the finality confirmer resolves
// them later from the persisted record.
type Outcome struct {
	TxHash        string
	TxHashFee     string
	Status        store.Status
	Confirmations uint64
	NetworkID     uint64
	Payer         string
	EvidenceHash  string
	ProofOfAgency string
}

// Anchorer records settlement evidence for an agent. Satisfied by
// identity.Client.
type Anchorer interface {
	Anchor(ctx context.Context, anchor identity.AnchorRequest) (*identity.AnchorResult, error)
}

// Settler executes settlements through the registry's wallet clients.
type Settler struct {
	registry *registry.Registry
	store    store.Store // nil disables persistence
	treasury string
	anchor   Anchorer // nil disables agent anchoring
	log      *slog.Logger
}

// New creates a settler. Store and anchor may be nil.
func New(reg *registry.Registry, st store.Store, treasury string, anchor Anchorer, log *slog.Logger) *Settler {
	return &Settler{
		registry: reg,
		store:    st,
		treasury: treasury,
		anchor:   anchor,
		log:      log,
	}
}

// Settle normalizes the payment header, dispatches to the token's
// settlement strategy and persists the resulting transaction record.
// The caller precomputes the fee split from maxAmountRequired.
func (s *Settler) Settle(ctx context.Context, req *protocol.SettleRequest, feeAmount, netAmount *big.Int) (*Outcome, error) {
	requirements := req.PaymentRequirements

	token, deployment, err := s.registry.ResolveAsset(requirements.Network, requirements.Asset)
	if err != nil {
		return nil, err
	}
	auth, err := protocol.Normalize(req.PaymentHeader)
	if err != nil {
		return nil, err
	}
	writer, err := s.registry.Writer(requirements.Network)
	if err != nil {
		return nil, err
	}
	required, err := s.registry.ConfirmationsOf(requirements.Network)
	if err != nil {
		return nil, err
	}
	chainID, err := s.registry.ChainIDOf(requirements.Network)
	if err != nil {
		return nil, err
	}

	var outcome *Outcome
	if token.SupportsEIP3009 {
		outcome, err = s.settleEIP3009(ctx, writer, requirements.Network, deployment.Address, auth, req, required)
	} else {
		outcome, err = s.settleRelayer(ctx, writer, requirements.Network, deployment.Address, auth, req, feeAmount, netAmount, required)
	}
	if err != nil {
		return nil, err
	}
	outcome.NetworkID = chainID
	outcome.Payer = auth.From

	s.log.Info("settlement dispatched",
		"network", requirements.Network,
		"token", token.Symbol,
		"status", outcome.Status,
		"tx_hash", outcome.TxHash,
		"confirmations", outcome.Confirmations)
	return outcome, nil
}

// track persists a pending record right after broadcast. Persistence
// failures are logged and tolerated: the chain state is already final
// and the response must still reach the client.
func (s *Settler) track(ctx context.Context, chain, txHash, txHashFee string) *store.TransactionRecord {
	if s.store == nil {
		return nil
	}
	record := store.NewRecord(chain, txHash, txHashFee)
	if err := s.store.Insert(ctx, record); err != nil {
		s.log.Error("failed to persist transaction record", "tx_hash", txHash, "error", err)
		return nil
	}
	return record
}

// updateRecord moves a tracked record to the settled-upon status.
func (s *Settler) updateRecord(ctx context.Context, record *store.TransactionRecord, status store.Status, confirmations uint64) {
	if record == nil {
		return
	}
	record.Status = status
	record.Confirmations = confirmations
	if status.Terminal() {
		now := time.Now().UTC()
		record.ConfirmedAt = &now
	}
	if err := s.store.Update(ctx, record); err != nil {
		s.log.Error("failed to update transaction record", "id", record.ID, "error", err)
	}
}

// anchorAgent best-effort reports a confirmed settlement to the agent
// registry. Failures log and leave the proof fields empty.
func (s *Settler) anchorAgent(ctx context.Context, req *protocol.SettleRequest, outcome *Outcome, amount string) {
	if s.anchor == nil || req.AgentID == "" {
		return
	}
	result, err := s.anchor.Anchor(ctx, identity.AnchorRequest{
		AgentID: req.AgentID,
		TxHash:  outcome.TxHash,
		Chain:   req.PaymentRequirements.Network,
		Amount:  amount,
	})
	if err != nil {
		s.log.Warn("agent anchoring failed", "agent_id", req.AgentID, "error", err)
		return
	}
	outcome.EvidenceHash = result.EvidenceHash
	outcome.ProofOfAgency = result.ProofOfAgency
}
