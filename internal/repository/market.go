package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

// MarketRepository stores price and FX points. Points are append-only:
// a second write for the same key is ignored.
type MarketRepository struct {
	db *DB
}

func NewMarketRepository(db *DB) *MarketRepository {
	return &MarketRepository{db: db}
}

func (r *MarketRepository) SavePrice(ctx context.Context, p domain.PricePoint) (bool, error) {
	res, err := r.db.pool.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO market_prices (symbol, date, close, currency, source)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (symbol, date) DO NOTHING`),
		strings.ToUpper(p.Symbol), domain.FormatDate(p.Date), p.Close, p.Currency, p.Source,
	)
	if err != nil {
		return false, fmt.Errorf("SavePrice: %s: %w", p.Symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SavePrice: rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *MarketRepository) SaveFxRate(ctx context.Context, p domain.FxRatePoint) (bool, error) {
	res, err := r.db.pool.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO exchange_rates (from_currency, to_currency, date, rate, source)
		VALUES (?, ?, ?, ?, ?) ON CONFLICT (from_currency, to_currency, date) DO NOTHING`),
		p.From, p.To, domain.FormatDate(p.Date), p.Rate, p.Source,
	)
	if err != nil {
		return false, fmt.Errorf("SaveFxRate: %s: %w", domain.PairKey(p.From, p.To), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("SaveFxRate: rows affected: %w", err)
	}
	return n > 0, nil
}

// PriceAtOrBefore returns the latest price on or before date.
func (r *MarketRepository) PriceAtOrBefore(ctx context.Context, symbol string, date time.Time) (*domain.PricePoint, error) {
	var (
		p domain.PricePoint
		d dateValue
	)
	err := r.db.pool.QueryRowContext(ctx, r.db.Rebind(
		`SELECT symbol, date, close, currency, source FROM market_prices
		WHERE symbol = ? AND date <= ? ORDER BY date DESC LIMIT 1`),
		strings.ToUpper(symbol), domain.FormatDate(date),
	).Scan(&p.Symbol, &d, &p.Close, &p.Currency, &p.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("PriceAtOrBefore: %s: %w", symbol, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("PriceAtOrBefore: %w", err)
	}
	p.Date = d.t
	return &p, nil
}

func (r *MarketRepository) FxRateAtOrBefore(ctx context.Context, from, to string, date time.Time) (*domain.FxRatePoint, error) {
	var (
		p domain.FxRatePoint
		d dateValue
	)
	err := r.db.pool.QueryRowContext(ctx, r.db.Rebind(
		`SELECT from_currency, to_currency, date, rate, source FROM exchange_rates
		WHERE from_currency = ? AND to_currency = ? AND date <= ? ORDER BY date DESC LIMIT 1`),
		from, to, domain.FormatDate(date),
	).Scan(&p.From, &p.To, &d, &p.Rate, &p.Source)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("FxRateAtOrBefore: %s: %w", domain.PairKey(from, to), domain.ErrNotFound)
		}
		return nil, fmt.Errorf("FxRateAtOrBefore: %w", err)
	}
	p.Date = d.t
	return &p, nil
}

// LatestPriceDates maps each priced symbol to its most recent price date.
func (r *MarketRepository) LatestPriceDates(ctx context.Context) (map[string]time.Time, error) {
	rows, err := r.db.pool.QueryContext(ctx,
		`SELECT symbol, MAX(date) FROM market_prices GROUP BY symbol`,
	)
	if err != nil {
		return nil, fmt.Errorf("LatestPriceDates: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			sym string
			d   dateValue
		)
		if err := rows.Scan(&sym, &d); err != nil {
			return nil, fmt.Errorf("LatestPriceDates: scan: %w", err)
		}
		out[sym] = d.t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LatestPriceDates: rows: %w", err)
	}
	return out, nil
}
