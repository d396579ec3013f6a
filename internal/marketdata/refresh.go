package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

type marketWriter interface {
	SavePrice(ctx context.Context, p domain.PricePoint) (bool, error)
	SaveFxRate(ctx context.Context, p domain.FxRatePoint) (bool, error)
}

// Quote names a symbol to price and the currency it trades in.
type Quote struct {
	Symbol   string
	Currency string
}

type Pair struct {
	From string
	To   string
}

func (p Pair) String() string {
	return domain.PairKey(p.From, p.To)
}

type RefreshResult struct {
	PricesAdded int
	FxAdded     int
	Unchanged   int
	Missing     []string
	Failed      []string
}

// Refresher pulls points from a Provider into the market data store. Stored
// points are never overwritten, so a refresh can be repeated at will.
type Refresher struct {
	provider Provider
	store    marketWriter
	source   string
}

func NewRefresher(provider Provider, store marketWriter, source string) *Refresher {
	return &Refresher{provider: provider, store: store, source: source}
}

// Refresh fetches every quote and pair for date. A provider failure for one
// item is logged and collected; the rest are still fetched.
func (r *Refresher) Refresh(ctx context.Context, quotes []Quote, pairs []Pair, date time.Time) (*RefreshResult, error) {
	log := logging.FromContext(ctx)
	date = domain.Day(date)
	res := &RefreshResult{}
	var errs []error

	for _, q := range quotes {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("Refresh: %w", err)
		}
		symbol := strings.ToUpper(q.Symbol)

		price, found, err := r.provider.GetPrice(ctx, symbol, date)
		if err != nil {
			log.Warn("price fetch failed", "symbol", symbol, "date", domain.FormatDate(date), "error", err)
			res.Failed = append(res.Failed, symbol)
			errs = append(errs, err)
			continue
		}
		if !found {
			res.Missing = append(res.Missing, symbol)
			continue
		}

		added, err := r.store.SavePrice(ctx, domain.PricePoint{
			Symbol: symbol, Date: date, Close: price, Currency: q.Currency, Source: r.source,
		})
		if err != nil {
			return res, fmt.Errorf("Refresh: %w", err)
		}
		tally(res, added, &res.PricesAdded)
	}

	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("Refresh: %w", err)
		}
		pair := Pair{From: strings.ToUpper(p.From), To: strings.ToUpper(p.To)}
		if pair.From == pair.To {
			continue
		}

		fx, found, err := r.provider.GetFxRate(ctx, pair.String(), date)
		if err != nil {
			log.Warn("fx fetch failed", "pair", pair.String(), "date", domain.FormatDate(date), "error", err)
			res.Failed = append(res.Failed, pair.String())
			errs = append(errs, err)
			continue
		}
		if !found {
			res.Missing = append(res.Missing, pair.String())
			continue
		}

		added, err := r.store.SaveFxRate(ctx, domain.FxRatePoint{
			From: pair.From, To: pair.To, Date: date, Rate: fx, Source: r.source,
		})
		if err != nil {
			return res, fmt.Errorf("Refresh: %w", err)
		}
		tally(res, added, &res.FxAdded)
	}

	log.Info("market data refreshed",
		"date", domain.FormatDate(date),
		"prices_added", res.PricesAdded,
		"fx_added", res.FxAdded,
		"unchanged", res.Unchanged,
		"missing", len(res.Missing),
		"failed", len(res.Failed),
	)

	if len(errs) > 0 {
		return res, fmt.Errorf("Refresh: %w", errors.Join(errs...))
	}
	return res, nil
}

func tally(res *RefreshResult, added bool, counter *int) {
	if added {
		*counter++
		return
	}
	res.Unchanged++
}
