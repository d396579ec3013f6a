package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

const instrumentColumns = `id, COALESCE(isin, ''), symbol, name, type, currency,
	sector, region, country, asset_class`

type InstrumentRepository struct {
	db *DB
}

func NewInstrumentRepository(db *DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

func (r *InstrumentRepository) Create(ctx context.Context, tx *sql.Tx, in *domain.Instrument) error {
	var isin any
	if in.ISIN != "" {
		isin = in.ISIN
	}
	err := tx.QueryRowContext(ctx, r.db.Rebind(
		`INSERT INTO instruments (isin, symbol, name, type, currency, sector, region, country, asset_class)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		isin, in.Symbol, in.Name, in.Type, in.Currency, in.Sector, in.Region, in.Country, in.AssetClass,
	).Scan(&in.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

// EnsureTx resolves the instrument of a record by ISIN, falling back to
// symbol for unmapped rows, and creates it when unknown. Cash events with
// neither return (0, false, nil).
func (r *InstrumentRepository) EnsureTx(ctx context.Context, tx *sql.Tx, rec domain.Record) (int64, bool, error) {
	isin := strings.ToUpper(strings.TrimSpace(rec.ISIN))
	symbol := strings.TrimSpace(rec.Symbol)
	if isin == "" && symbol == "" {
		return 0, false, nil
	}

	var (
		id  int64
		err error
	)
	if isin != "" {
		err = tx.QueryRowContext(ctx, r.db.Rebind(`SELECT id FROM instruments WHERE isin = ?`), isin).Scan(&id)
	} else {
		err = tx.QueryRowContext(ctx, r.db.Rebind(
			`SELECT id FROM instruments WHERE symbol = ? ORDER BY id LIMIT 1`), symbol,
		).Scan(&id)
	}
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("EnsureTx: lookup: %w", err)
	}

	in := &domain.Instrument{ISIN: isin, Symbol: symbol, Currency: rec.Currency}
	if err := r.Create(ctx, tx, in); err != nil {
		return 0, false, fmt.Errorf("EnsureTx: %w", err)
	}
	return in.ID, true, nil
}

func (r *InstrumentRepository) GetByID(ctx context.Context, id int64) (*domain.Instrument, error) {
	row := r.db.pool.QueryRowContext(ctx, r.db.Rebind(
		`SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`), id,
	)
	in, err := scanInstrument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return in, nil
}

func (r *InstrumentRepository) List(ctx context.Context) ([]domain.Instrument, error) {
	return r.query(ctx, "List", `SELECT `+instrumentColumns+` FROM instruments ORDER BY id`)
}

// WithoutSymbol lists instruments that cannot be priced because no ticker
// was ever mapped.
func (r *InstrumentRepository) WithoutSymbol(ctx context.Context) ([]domain.Instrument, error) {
	return r.query(ctx, "WithoutSymbol",
		`SELECT `+instrumentColumns+` FROM instruments WHERE symbol = '' ORDER BY id`)
}

func (r *InstrumentRepository) query(ctx context.Context, op, q string, args ...any) ([]domain.Instrument, error) {
	rows, err := r.db.pool.QueryContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Instrument
	for rows.Next() {
		in, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return out, nil
}

func scanInstrument(s scanner) (*domain.Instrument, error) {
	var in domain.Instrument
	err := s.Scan(&in.ID, &in.ISIN, &in.Symbol, &in.Name, &in.Type, &in.Currency,
		&in.Sector, &in.Region, &in.Country, &in.AssetClass)
	if err != nil {
		return nil, err
	}
	return &in, nil
}
