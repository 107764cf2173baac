// Package confirm drives persisted transaction records to finality. A
// single background loop sweeps non-terminal records on a fixed
// interval, recomputing confirmation depth from the chain head and
// flipping records to confirmed or failed once the required depth is
// reached.
package confirm

import (
	"context"
	"log/slog"
	"time"

	"github.com/zerog-labs/x402-facilitator/internal/evm"
	"github.com/zerog-labs/x402-facilitator/internal/registry"
	"github.com/zerog-labs/x402-facilitator/internal/store"
)

// SweepInterval is the fixed cadence between sweeps. Missed ticks are
// dropped, never queued.
const SweepInterval = 30 * time.Second

// sweepBatchSize bounds one sweep; remaining records wait for the next
// tick.
const sweepBatchSize = 50

// Confirmer is the background finality loop.
type Confirmer struct {
	registry *registry.Registry
	store    store.Store
	log      *slog.Logger

	interval time.Duration
}

// New creates a confirmer. A nil store turns Run into a no-op.
func New(reg *registry.Registry, st store.Store, log *slog.Logger) *Confirmer {
	return &Confirmer{
		registry: reg,
		store:    st,
		log:      log,
		interval: SweepInterval,
	}
}

// Run sweeps once immediately, then on every tick until ctx is done.
func (c *Confirmer) Run(ctx context.Context) {
	if c.store == nil {
		return
	}

	c.Sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of non-terminal records. Failures are
// per-record: a bad record is logged and the sweep moves on.
func (c *Confirmer) Sweep(ctx context.Context) {
	records, err := c.store.ListUnconfirmed(ctx, sweepBatchSize)
	if err != nil {
		c.log.Error("failed to list pending transactions", "error", err)
		return
	}

	for _, record := range records {
		if err := c.confirmRecord(ctx, record); err != nil {
			c.log.Warn("confirmation check failed",
				"id", record.ID, "tx_hash", record.TxHash, "chain", record.Chain, "error", err)
		}
	}
}

func (c *Confirmer) confirmRecord(ctx context.Context, record *store.TransactionRecord) error {
	required, err := c.registry.ConfirmationsOf(record.Chain)
	if err != nil {
		return err
	}
	reader, err := c.registry.Reader(record.Chain)
	if err != nil {
		return err
	}

	receipt, err := reader.TransactionReceipt(ctx, record.TxHash)
	if err != nil {
		if evm.IsNotFound(err) {
			// Not mined yet; check again next sweep.
			return nil
		}
		return err
	}
	head, err := reader.BlockNumber(ctx)
	if err != nil {
		return err
	}

	var confirmations uint64
	if head >= receipt.BlockNumber {
		confirmations = head - receipt.BlockNumber
	}
	record.Confirmations = confirmations

	if confirmations >= required {
		if receipt.Success() {
			record.Status = store.StatusConfirmed
		} else {
			record.Status = store.StatusFailed
		}
		now := time.Now().UTC()
		record.ConfirmedAt = &now
		c.log.Info("transaction finalized",
			"id", record.ID, "tx_hash", record.TxHash, "status", record.Status, "confirmations", confirmations)
	}

	return c.store.Update(ctx, record)
}
