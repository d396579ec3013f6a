package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

const accountColumns = `id, external_id, name, broker, currency, type`

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, tx *sql.Tx, a *domain.Account) error {
	err := tx.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO accounts (external_id, name, broker, currency, type)
		VALUES (?, ?, ?, ?, ?) RETURNING id`),
		a.ExternalID, a.Name, a.Broker, a.Currency, a.Type,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	row := r.db.pool.QueryRowContext(ctx, r.db.Rebind(
		`SELECT `+accountColumns+` FROM accounts WHERE external_id = ?`), externalID,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByExternalID: %s: %w", externalID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByExternalID: %w", err)
	}
	return a, nil
}

// EnsureTx returns the account id for externalID, creating a placeholder
// account in the base currency when none exists.
func (r *AccountRepository) EnsureTx(ctx context.Context, tx *sql.Tx, externalID, baseCurrency string) (int64, bool, error) {
	var id int64
	err := tx.QueryRowContext(ctx, r.db.Rebind(
		`SELECT id FROM accounts WHERE external_id = ?`), externalID,
	).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("EnsureTx: lookup: %w", err)
	}

	a := &domain.Account{
		ExternalID: externalID,
		Name:       domain.PlaceholderAccountName(externalID),
		Currency:   baseCurrency,
	}
	if err := r.Create(ctx, tx, a); err != nil {
		return 0, false, fmt.Errorf("EnsureTx: %w", err)
	}
	return a.ID, true, nil
}

func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.db.pool.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return out, nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	if err := s.Scan(&a.ID, &a.ExternalID, &a.Name, &a.Broker, &a.Currency, &a.Type); err != nil {
		return nil, err
	}
	return &a, nil
}
