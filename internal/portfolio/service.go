// Package portfolio builds the read-side reports: holdings, performance,
// realized gains, income and data gaps. Every report replays the ledger up
// to an as-of date; nothing here writes.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/costbasis"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/splits"
)

type ledgerReader interface {
	All(ctx context.Context) ([]domain.Transaction, error)
}

type instrumentReader interface {
	List(ctx context.Context) ([]domain.Instrument, error)
	WithoutSymbol(ctx context.Context) ([]domain.Instrument, error)
}

type marketSource interface {
	Price(ctx context.Context, symbol string, date time.Time) (*domain.PricePoint, error)
	FxRate(ctx context.Context, from, to string, date time.Time) (float64, error)
}

type priceDateReader interface {
	LatestPriceDates(ctx context.Context) (map[string]time.Time, error)
}

type Service struct {
	ledger       ledgerReader
	instruments  instrumentReader
	market       marketSource
	priceDates   priceDateReader
	taxonomy     *config.Taxonomy
	baseCurrency string
	staleDays    int
}

func NewService(ledger ledgerReader, instruments instrumentReader, market marketSource, priceDates priceDateReader, cfg *config.Config) *Service {
	tax := cfg.Taxonomy
	if tax == nil {
		tax = config.DefaultTaxonomy()
	}
	return &Service{
		ledger:       ledger,
		instruments:  instruments,
		market:       market,
		priceDates:   priceDates,
		taxonomy:     tax,
		baseCurrency: cfg.BaseCurrency,
		staleDays:    cfg.StalePriceDays,
	}
}

// state is one replay of the ledger as of a date.
type state struct {
	asOf        time.Time
	txs         []domain.Transaction
	resolver    *splits.Resolver
	replay      *costbasis.Result
	instruments map[int64]domain.Instrument
}

func (s *Service) load(ctx context.Context, asOf time.Time) (*state, error) {
	asOf = domain.Day(asOf)

	all, err := s.ledger.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	insts, err := s.instruments.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	txs := make([]domain.Transaction, 0, len(all))
	for _, t := range all {
		if !t.Date.After(asOf) {
			txs = append(txs, t)
		}
	}

	// Splits after asOf still matter: they scale quantities onto the
	// split-adjusted price series.
	resolver := splits.New(all)
	res, err := costbasis.Replay(txs, resolver)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	st := &state{
		asOf:        asOf,
		txs:         txs,
		resolver:    resolver,
		replay:      res,
		instruments: make(map[int64]domain.Instrument, len(insts)),
	}
	for _, in := range insts {
		st.instruments[in.ID] = in
	}
	return st, nil
}

func (st *state) instrument(p costbasis.Position) domain.Instrument {
	in, ok := st.instruments[p.InstrumentID]
	if !ok {
		in = domain.Instrument{ID: p.InstrumentID, Symbol: p.Symbol, ISIN: p.ISIN}
	}
	return in
}

// Round2 rounds a base-currency amount for display.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// FormatAmount renders v with two decimals.
func FormatAmount(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}
