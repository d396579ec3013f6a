package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

const ledgerColumns = `t.id, t.external_id, t.account_id, a.external_id, t.instrument_id,
	COALESCE(i.isin, ''), COALESCE(i.symbol, ''), t.date, t.type, t.quantity, t.price,
	t.amount, t.currency, t.amount_local, t.exchange_rate, t.fee, t.fee_currency,
	t.fee_local, t.parent_external_id, t.description, t.source_file, t.batch_id, t.hash`

const ledgerFrom = ` FROM transactions t
	JOIN accounts a ON a.id = t.account_id
	LEFT JOIN instruments i ON i.id = t.instrument_id`

// LedgerRepository is the permanent transaction record. Rows are appended
// by the commit protocol and removed only by batch reversal.
type LedgerRepository struct {
	db *DB
}

func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Append inserts t and sets its ledger-assigned ID.
func (r *LedgerRepository) Append(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	err := tx.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO transactions (
			external_id, account_id, instrument_id, date, type, quantity, price,
			amount, currency, exchange_rate, amount_local, fee, fee_currency,
			fee_local, parent_external_id, description, source_file, batch_id, hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		t.ExternalID, t.AccountID, t.InstrumentID, domain.FormatDate(t.Date), string(t.Type),
		t.Quantity, t.Price, t.Amount, t.Currency, t.ExchangeRate, t.AmountLocal,
		t.Fee, t.FeeCurrency, t.FeeLocal, t.ParentExternalID, t.Description,
		t.SourceFile, t.BatchID, t.Fingerprint,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("Append: external_id=%s: %w", t.ExternalID, err)
	}
	return nil
}

// All returns the full ledger in replay order: date, then insertion order.
func (r *LedgerRepository) All(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.db.pool.QueryContext(ctx,
		`SELECT `+ledgerColumns+ledgerFrom+` ORDER BY t.date, t.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}
	defer rows.Close()

	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("All: %w", err)
	}
	return txs, nil
}

func (r *LedgerRepository) ByBatch(ctx context.Context, batchID string) ([]domain.Transaction, error) {
	rows, err := r.db.pool.QueryContext(ctx, r.db.Rebind(
		`SELECT `+ledgerColumns+ledgerFrom+` WHERE t.batch_id = ? ORDER BY t.date, t.id`),
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("ByBatch: %w", err)
	}
	defer rows.Close()

	txs, err := collectTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("ByBatch: %w", err)
	}
	return txs, nil
}

func (r *LedgerRepository) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := r.db.pool.QueryRowContext(ctx, r.db.Rebind(
		`SELECT COUNT(*) FROM transactions WHERE hash = ?`), fingerprint,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("HasFingerprint: %w", err)
	}
	return n > 0, nil
}

// HasFingerprintTx is HasFingerprint inside the commit transaction, so rows
// appended earlier in the same commit are visible.
func (r *LedgerRepository) HasFingerprintTx(ctx context.Context, tx *sql.Tx, fingerprint string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, r.db.Rebind(
		`SELECT COUNT(*) FROM transactions WHERE hash = ?`), fingerprint,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("HasFingerprintTx: %w", err)
	}
	return n > 0, nil
}

// Fingerprints loads every committed fingerprint for bulk dedup.
func (r *LedgerRepository) Fingerprints(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.pool.QueryContext(ctx, `SELECT DISTINCT hash FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("Fingerprints: %w", err)
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("Fingerprints: scan: %w", err)
		}
		set[h] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Fingerprints: rows: %w", err)
	}
	return set, nil
}

func (r *LedgerRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return n, nil
}

// DeleteBatch removes every ledger row of one batch. Used only by the
// operator-driven batch reversal.
func (r *LedgerRepository) DeleteBatch(ctx context.Context, tx *sql.Tx, batchID string) (int64, error) {
	res, err := tx.ExecContext(ctx, r.db.Rebind(`DELETE FROM transactions WHERE batch_id = ?`), batchID)
	if err != nil {
		return 0, fmt.Errorf("DeleteBatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteBatch: rows affected: %w", err)
	}
	return n, nil
}

func collectTransactions(rows *sql.Rows) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return txs, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var (
		t            domain.Transaction
		instrumentID sql.NullInt64
		date         dateValue
		txType       string
	)
	err := s.Scan(
		&t.ID, &t.ExternalID, &t.AccountID, &t.AccountExternalID, &instrumentID,
		&t.ISIN, &t.Symbol, &date, &txType, &t.Quantity, &t.Price,
		&t.Amount, &t.Currency, &t.AmountLocal, &t.ExchangeRate, &t.Fee, &t.FeeCurrency,
		&t.FeeLocal, &t.ParentExternalID, &t.Description, &t.SourceFile, &t.BatchID, &t.Fingerprint,
	)
	if err != nil {
		return nil, err
	}
	if instrumentID.Valid {
		id := instrumentID.Int64
		t.InstrumentID = &id
	}
	t.Date = date.t
	t.Type = domain.TxType(txType)
	return &t, nil
}
