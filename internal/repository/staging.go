package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

const stagingColumns = `id, external_id, account_external_id, isin, symbol, date, type,
	quantity, price, amount, currency, amount_local, exchange_rate, fee, fee_currency,
	fee_local, parent_external_id, description, source_file, batch_id, hash`

// StagingRepository holds imported rows until the operator commits or
// clears them. It never rejects a row; dedup happens before Stage.
type StagingRepository struct {
	db *DB
}

func NewStagingRepository(db *DB) *StagingRepository {
	return &StagingRepository{db: db}
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *StagingRepository) Stage(ctx context.Context, st *domain.StagedTransaction) error {
	if err := r.stage(ctx, r.db.pool, st); err != nil {
		return fmt.Errorf("Stage: %w", err)
	}
	return nil
}

// StageBatch stages rows in one transaction: either all of them are
// staged or none are.
func (r *StagingRepository) StageBatch(ctx context.Context, rows []domain.StagedTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("StageBatch: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		if err := r.stage(ctx, tx, &rows[i]); err != nil {
			return fmt.Errorf("StageBatch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("StageBatch: commit: %w", err)
	}
	return nil
}

func (r *StagingRepository) stage(ctx context.Context, q queryRower, st *domain.StagedTransaction) error {
	err := q.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO transactions_staging (
			external_id, account_external_id, isin, symbol, date, type, quantity,
			price, amount, currency, amount_local, exchange_rate, fee, fee_currency,
			fee_local, parent_external_id, description, source_file, batch_id, hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		st.ExternalID, st.AccountExternalID, st.ISIN, st.Symbol, domain.FormatDate(st.Date),
		string(st.Type), st.Quantity, st.Price, st.Amount, st.Currency, st.AmountLocal,
		st.ExchangeRate, st.Fee, st.FeeCurrency, st.FeeLocal, st.ParentExternalID,
		st.Description, st.SourceFile, st.BatchID, st.Fingerprint,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("external_id=%s: %w", st.ExternalID, err)
	}
	return nil
}

// ListPending returns every staged row in insertion order.
func (r *StagingRepository) ListPending(ctx context.Context) ([]domain.StagedTransaction, error) {
	rows, err := r.db.pool.QueryContext(ctx,
		`SELECT `+stagingColumns+` FROM transactions_staging ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	defer rows.Close()

	staged, err := collectStaged(rows)
	if err != nil {
		return nil, fmt.Errorf("ListPending: %w", err)
	}
	return staged, nil
}

// PendingTx reads staged rows inside the commit transaction. An empty
// batchID selects all batches.
func (r *StagingRepository) PendingTx(ctx context.Context, tx *sql.Tx, batchID string) ([]domain.StagedTransaction, error) {
	query := `SELECT ` + stagingColumns + ` FROM transactions_staging`
	var args []any
	if batchID != "" {
		query += ` WHERE batch_id = ?`
		args = append(args, batchID)
	}
	query += ` ORDER BY id`

	rows, err := tx.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("PendingTx: %w", err)
	}
	defer rows.Close()

	staged, err := collectStaged(rows)
	if err != nil {
		return nil, fmt.Errorf("PendingTx: %w", err)
	}
	return staged, nil
}

// DeleteTx removes the given staged rows inside the commit transaction.
func (r *StagingRepository) DeleteTx(ctx context.Context, tx *sql.Tx, ids []int64) error {
	stmt, err := tx.PrepareContext(ctx, r.db.Rebind(`DELETE FROM transactions_staging WHERE id = ?`))
	if err != nil {
		return fmt.Errorf("DeleteTx: prepare: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("DeleteTx: id=%d: %w", id, err)
		}
	}
	return nil
}

func (r *StagingRepository) Clear(ctx context.Context, batchID string) (int64, error) {
	res, err := r.db.pool.ExecContext(ctx, r.db.Rebind(
		`DELETE FROM transactions_staging WHERE batch_id = ?`), batchID,
	)
	if err != nil {
		return 0, fmt.Errorf("Clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Clear: rows affected: %w", err)
	}
	return n, nil
}

func (r *StagingRepository) ClearAll(ctx context.Context) (int64, error) {
	res, err := r.db.pool.ExecContext(ctx, `DELETE FROM transactions_staging`)
	if err != nil {
		return 0, fmt.Errorf("ClearAll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ClearAll: rows affected: %w", err)
	}
	return n, nil
}

func (r *StagingRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions_staging`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

// Batches summarises staged rows per batch, oldest batch first.
func (r *StagingRepository) Batches(ctx context.Context) ([]domain.BatchSummary, error) {
	rows, err := r.db.pool.QueryContext(ctx,
		`SELECT batch_id, COUNT(*) FROM transactions_staging GROUP BY batch_id ORDER BY MIN(id)`,
	)
	if err != nil {
		return nil, fmt.Errorf("Batches: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchSummary
	for rows.Next() {
		var b domain.BatchSummary
		if err := rows.Scan(&b.BatchID, &b.Rows); err != nil {
			return nil, fmt.Errorf("Batches: scan: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Batches: rows: %w", err)
	}
	return out, nil
}

func collectStaged(rows *sql.Rows) ([]domain.StagedTransaction, error) {
	var out []domain.StagedTransaction
	for rows.Next() {
		st, err := scanStaged(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func scanStaged(s scanner) (*domain.StagedTransaction, error) {
	var (
		st     domain.StagedTransaction
		date   dateValue
		txType string
	)
	err := s.Scan(
		&st.ID, &st.ExternalID, &st.AccountExternalID, &st.ISIN, &st.Symbol, &date, &txType,
		&st.Quantity, &st.Price, &st.Amount, &st.Currency, &st.AmountLocal, &st.ExchangeRate,
		&st.Fee, &st.FeeCurrency, &st.FeeLocal, &st.ParentExternalID, &st.Description,
		&st.SourceFile, &st.BatchID, &st.Fingerprint,
	)
	if err != nil {
		return nil, err
	}
	st.Date = date.t
	st.Type = domain.TxType(txType)
	return &st, nil
}
