package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/costbasis"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

// Holding is one open position. Quantity is in units of the split-adjusted
// price series as of the report date.
type Holding struct {
	AccountExternalID string
	InstrumentID      int64
	Symbol            string
	ISIN              string
	Name              string
	Quantity          float64
	TotalCost         float64
	UnitCost          float64
	Currency          string
	Price             float64
	PriceDate         time.Time
	FxRate            float64
	MarketValue       float64
	Unrealized        float64
	Priced            bool
}

type Holdings struct {
	AsOf         time.Time
	BaseCurrency string
	Rows         []Holding
	TotalCost    float64
	TotalValue   float64
	Unrealized   float64
	Gaps         []Gap
}

// Holdings values every open position as of asOf. Positions without a
// price or FX rate are still listed, unpriced, and reported as gaps.
func (s *Service) Holdings(ctx context.Context, asOf time.Time) (*Holdings, error) {
	st, err := s.load(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("Holdings: %w", err)
	}

	out := &Holdings{AsOf: st.asOf, BaseCurrency: s.baseCurrency}
	for _, p := range st.replay.Positions {
		if !p.Open() {
			continue
		}
		h, gap, err := s.value(ctx, st, p)
		if err != nil {
			return nil, fmt.Errorf("Holdings: %w", err)
		}
		out.Rows = append(out.Rows, h)
		out.TotalCost += h.TotalCost
		if h.Priced {
			out.TotalValue += h.MarketValue
			out.Unrealized += h.Unrealized
		}
		if gap != nil {
			out.Gaps = append(out.Gaps, *gap)
		}
	}

	sort.SliceStable(out.Rows, func(i, j int) bool {
		if out.Rows[i].AccountExternalID != out.Rows[j].AccountExternalID {
			return out.Rows[i].AccountExternalID < out.Rows[j].AccountExternalID
		}
		return out.Rows[i].Symbol < out.Rows[j].Symbol
	})
	return out, nil
}

func (s *Service) value(ctx context.Context, st *state, p costbasis.Position) (Holding, *Gap, error) {
	in := st.instrument(p)
	ratio, err := st.resolver.AdjustmentRatio(p.InstrumentID, st.asOf)
	if err != nil {
		return Holding{}, nil, err
	}

	h := Holding{
		AccountExternalID: p.AccountExternalID,
		InstrumentID:      p.InstrumentID,
		Symbol:            in.Symbol,
		ISIN:              in.ISIN,
		Name:              in.Name,
		Quantity:          p.Quantity * ratio,
		TotalCost:         p.TotalCost,
	}
	if h.Quantity != 0 {
		h.UnitCost = h.TotalCost / h.Quantity
	}

	if in.Symbol == "" {
		return h, &Gap{Kind: GapNoSymbol, InstrumentID: in.ID, Label: in.Label(), Detail: "instrument has no ticker symbol"}, nil
	}

	price, err := s.market.Price(ctx, in.Symbol, st.asOf)
	if err != nil {
		if gap, ok := asGap(err, GapNoPrice, in); ok {
			return h, gap, nil
		}
		return Holding{}, nil, err
	}

	h.Price = price.Close
	h.PriceDate = price.Date
	h.Currency = firstNonEmpty(price.Currency, in.Currency, s.baseCurrency)

	fx, err := s.market.FxRate(ctx, h.Currency, s.baseCurrency, st.asOf)
	if err != nil {
		if gap, ok := asGap(err, GapNoFx, in); ok {
			return h, gap, nil
		}
		return Holding{}, nil, err
	}

	h.FxRate = fx
	h.MarketValue = h.Quantity * h.Price * fx
	h.Unrealized = h.MarketValue - h.TotalCost
	h.Priced = true
	return h, nil, nil
}

func asGap(err error, kind GapKind, in domain.Instrument) (*Gap, bool) {
	var pg *domain.PriceGapError
	if !errors.As(err, &pg) {
		return nil, false
	}
	return &Gap{Kind: kind, InstrumentID: in.ID, Label: in.Label(), Detail: pg.Error()}, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
