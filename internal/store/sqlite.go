package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id            TEXT PRIMARY KEY,
	tx_hash       TEXT NOT NULL,
	tx_hash_fee   TEXT NOT NULL DEFAULT '',
	chain         TEXT NOT NULL,
	status        TEXT NOT NULL,
	confirmations INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	confirmed_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status);
`

// SQLiteStore persists records in a single-file sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at path, creating it and the schema when
// absent.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transaction store: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent settles;
	// the driver serializes writes anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize transaction store: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, record *TransactionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transactions (id, tx_hash, tx_hash_fee, chain, status, confirmations, created_at, confirmed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.TxHash, record.TxHashFee, record.Chain, string(record.Status),
		record.Confirmations, record.CreatedAt.Unix(), unixOrNull(record.ConfirmedAt))
	return err
}

func (s *SQLiteStore) Update(ctx context.Context, record *TransactionRecord) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE transactions
		 SET tx_hash = ?, tx_hash_fee = ?, chain = ?, status = ?, confirmations = ?, confirmed_at = ?
		 WHERE id = ?`,
		record.TxHash, record.TxHashFee, record.Chain, string(record.Status),
		record.Confirmations, unixOrNull(record.ConfirmedAt), record.ID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("record %s not found", record.ID)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, tx_hash, tx_hash_fee, chain, status, confirmations, created_at, confirmed_at
		 FROM transactions WHERE id = ?`, id)
	record, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s not found", id)
	}
	return record, err
}

func (s *SQLiteStore) ListUnconfirmed(ctx context.Context, limit int) ([]*TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tx_hash, tx_hash_fee, chain, status, confirmations, created_at, confirmed_at
		 FROM transactions WHERE status IN (?, ?) ORDER BY created_at ASC LIMIT ?`,
		string(StatusPending), string(StatusPartialSettlement), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TransactionRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*TransactionRecord, error) {
	var (
		record      TransactionRecord
		status      string
		createdAt   int64
		confirmedAt sql.NullInt64
	)
	err := row.Scan(&record.ID, &record.TxHash, &record.TxHashFee, &record.Chain,
		&status, &record.Confirmations, &createdAt, &confirmedAt)
	if err != nil {
		return nil, err
	}
	record.Status = Status(status)
	record.CreatedAt = time.Unix(createdAt, 0).UTC()
	if confirmedAt.Valid {
		t := time.Unix(confirmedAt.Int64, 0).UTC()
		record.ConfirmedAt = &t
	}
	return &record, nil
}

func unixOrNull(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}
