package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type GapKind string

const (
	GapNoSymbol   GapKind = "no_symbol"
	GapNoPrice    GapKind = "no_price"
	GapNoFx       GapKind = "no_fx"
	GapStalePrice GapKind = "stale_price"
)

type Gap struct {
	Kind         GapKind
	InstrumentID int64
	Label        string
	Detail       string
	LastPrice    time.Time
}

type GapReport struct {
	AsOf time.Time
	Gaps []Gap
}

// Gaps lists what keeps the reports from being complete: held instruments
// without a usable price or FX rate, instruments that cannot be priced for
// lack of a symbol, and prices older than the staleness window.
func (s *Service) Gaps(ctx context.Context, asOf time.Time) (*GapReport, error) {
	st, err := s.load(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("Gaps: %w", err)
	}
	latest, err := s.priceDates.LatestPriceDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("Gaps: %w", err)
	}

	report := &GapReport{AsOf: st.asOf}
	seen := make(map[string]bool)
	add := func(g Gap) {
		k := string(g.Kind) + "|" + fmt.Sprint(g.InstrumentID)
		if !seen[k] {
			seen[k] = true
			report.Gaps = append(report.Gaps, g)
		}
	}

	staleBefore := st.asOf.AddDate(0, 0, -s.staleDays)
	for _, p := range st.replay.Positions {
		if !p.Open() {
			continue
		}
		_, gap, err := s.value(ctx, st, p)
		if err != nil {
			return nil, fmt.Errorf("Gaps: %w", err)
		}
		if gap != nil {
			add(*gap)
			continue
		}

		in := st.instrument(p)
		last, ok := latest[strings.ToUpper(in.Symbol)]
		if ok && last.Before(staleBefore) {
			add(Gap{
				Kind:         GapStalePrice,
				InstrumentID: in.ID,
				Label:        in.Label(),
				Detail:       fmt.Sprintf("last price %s is more than %d days old", domain.FormatDate(last), s.staleDays),
				LastPrice:    last,
			})
		}
	}

	unmapped, err := s.instruments.WithoutSymbol(ctx)
	if err != nil {
		return nil, fmt.Errorf("Gaps: %w", err)
	}
	for _, in := range unmapped {
		add(Gap{Kind: GapNoSymbol, InstrumentID: in.ID, Label: in.Label(), Detail: "instrument has no ticker symbol"})
	}

	sort.SliceStable(report.Gaps, func(i, j int) bool {
		if report.Gaps[i].Kind != report.Gaps[j].Kind {
			return report.Gaps[i].Kind < report.Gaps[j].Kind
		}
		return report.Gaps[i].Label < report.Gaps[j].Label
	})
	return report, nil
}

// IsGap reports whether err only means market data is missing.
func IsGap(err error) bool {
	return errors.Is(err, domain.ErrPriceGap)
}
