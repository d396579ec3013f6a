package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type marketStore interface {
	PriceAtOrBefore(ctx context.Context, symbol string, date time.Time) (*domain.PricePoint, error)
	FxRateAtOrBefore(ctx context.Context, from, to string, date time.Time) (*domain.FxRatePoint, error)
}

// Snapshot answers price and FX lookups from stored market data. A missing
// point is a *domain.PriceGapError so callers can report the gap and carry
// on.
type Snapshot struct {
	store marketStore
	cache *cache.Cache
}

func NewSnapshot(store marketStore, ttl time.Duration) *Snapshot {
	return &Snapshot{
		store: store,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Price returns the close on date, or the latest close before it.
func (s *Snapshot) Price(ctx context.Context, symbol string, date time.Time) (*domain.PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	date = domain.Day(date)
	key := "price|" + symbol + "|" + domain.FormatDate(date)
	if v, ok := s.cache.Get(key); ok {
		p := v.(domain.PricePoint)
		return &p, nil
	}

	p, err := s.store.PriceAtOrBefore(ctx, symbol, date)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.PriceGapError{Symbol: symbol, Date: date}
		}
		return nil, fmt.Errorf("Snapshot.Price: %w", err)
	}

	s.cache.Set(key, *p, cache.DefaultExpiration)
	return p, nil
}

// FxRate converts one unit of from into to. When both directions are stored
// the pair with the later point on or before date is used.
func (s *Snapshot) FxRate(ctx context.Context, from, to string, date time.Time) (float64, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return 1, nil
	}
	date = domain.Day(date)
	key := "fx|" + domain.PairKey(from, to) + "|" + domain.FormatDate(date)
	if v, ok := s.cache.Get(key); ok {
		return v.(float64), nil
	}

	rate, err := s.fxRate(ctx, from, to, date)
	if err != nil {
		return 0, err
	}
	s.cache.Set(key, rate, cache.DefaultExpiration)
	return rate, nil
}

func (s *Snapshot) fxRate(ctx context.Context, from, to string, date time.Time) (float64, error) {
	direct, err := s.fxPoint(ctx, from, to, date)
	if err != nil {
		return 0, err
	}
	inv, err := s.fxPoint(ctx, to, from, date)
	if err != nil {
		return 0, err
	}
	if inv != nil && inv.Rate == 0 {
		inv = nil
	}

	// The fresher point wins; direct on a tie.
	switch {
	case direct != nil && (inv == nil || !inv.Date.After(direct.Date)):
		return direct.Rate, nil
	case inv != nil:
		return 1 / inv.Rate, nil
	}
	return 0, &domain.PriceGapError{Symbol: domain.PairKey(from, to), Date: date}
}

// fxPoint returns nil when the pair has no point on or before date.
func (s *Snapshot) fxPoint(ctx context.Context, from, to string, date time.Time) (*domain.FxRatePoint, error) {
	p, err := s.store.FxRateAtOrBefore(ctx, from, to, date)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("Snapshot.FxRate: %w", err)
	}
	return p, nil
}

// Flush drops memoized lookups, e.g. after a refresh stored new points.
func (s *Snapshot) Flush() {
	s.cache.Flush()
}
