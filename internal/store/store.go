// Package store persists transaction records between settlement and
// finality confirmation. Two implementations exist: an in-memory store
// for tests and verify-only deployments, and a sqlite store for
// facilitators that must survive restarts with settlements in flight.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the settlement lifecycle state of a transaction record.
type Status string

const (
	// StatusPending means the transaction is broadcast but below the
	// network's required confirmation depth.
	StatusPending Status = "pending"
	// StatusPartialSettlement means the merchant transfer confirmed but
	// the fee transfer did not.
	StatusPartialSettlement Status = "partial_settlement"
	// StatusConfirmed means the transaction reached the required depth
	// and succeeded.
	StatusConfirmed Status = "confirmed"
	// StatusFailed means the transaction reverted or could not confirm.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status will never change again.
// Terminal records are skipped by the confirmation sweep.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// TransactionRecord tracks one settlement from broadcast to finality.
// TxHashFee is set only for relayer settlements that split the payment
// into merchant and treasury legs.
type TransactionRecord struct {
	ID            string     `json:"id"`
	TxHash        string     `json:"txHash"`
	TxHashFee     string     `json:"txHashFee,omitempty"`
	Chain         string     `json:"chain"`
	Status        Status     `json:"status"`
	Confirmations uint64     `json:"confirmations"`
	CreatedAt     time.Time  `json:"createdAt"`
	ConfirmedAt   *time.Time `json:"confirmedAt,omitempty"`
}

// NewRecord builds a pending record for a freshly broadcast transaction.
func NewRecord(chain, txHash, txHashFee string) *TransactionRecord {
	return &TransactionRecord{
		ID:        uuid.NewString(),
		TxHash:    txHash,
		TxHashFee: txHashFee,
		Chain:     chain,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

// Store is the persistence surface shared by the settler (insert) and
// the confirmer (list, update).
type Store interface {
	// Insert persists a new record.
	Insert(ctx context.Context, record *TransactionRecord) error
	// Update overwrites the stored record with the same ID.
	Update(ctx context.Context, record *TransactionRecord) error
	// Get returns the record with the given ID, or an error when absent.
	Get(ctx context.Context, id string) (*TransactionRecord, error)
	// ListUnconfirmed returns up to limit non-terminal records, oldest
	// first.
	ListUnconfirmed(ctx context.Context, limit int) ([]*TransactionRecord, error)
	// Close releases the underlying resources.
	Close() error
}
