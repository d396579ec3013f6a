package repository

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type BatchRepository struct {
	db *DB
}

func NewBatchRepository(db *DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Register reserves a batch id. It returns domain.ErrBatchExists when the id
// was issued before, so ids are never reused.
func (r *BatchRepository) Register(ctx context.Context, batchID, source string) error {
	res, err := r.db.pool.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO import_batches (batch_id, source) VALUES (?, ?)
		ON CONFLICT (batch_id) DO NOTHING`),
		batchID, source,
	)
	if err != nil {
		return fmt.Errorf("Register: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Register: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("Register: %s: %w", batchID, domain.ErrBatchExists)
	}
	return nil
}

func (r *BatchRepository) Exists(ctx context.Context, batchID string) (bool, error) {
	var n int
	err := r.db.pool.QueryRowContext(ctx, r.db.Rebind(
		`SELECT COUNT(*) FROM import_batches WHERE batch_id = ?`), batchID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("Exists: %w", err)
	}
	return n > 0, nil
}
