package portfolio

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/marketdata"
)

// MarketTargets lists what a price refresh should fetch for asOf: every
// held instrument with a symbol, and each trading currency against the base
// currency.
func (s *Service) MarketTargets(ctx context.Context, asOf time.Time) ([]marketdata.Quote, []marketdata.Pair, error) {
	st, err := s.load(ctx, asOf)
	if err != nil {
		return nil, nil, fmt.Errorf("MarketTargets: %w", err)
	}

	var (
		quotes []marketdata.Quote
		pairs  []marketdata.Pair
	)
	seenSym := make(map[string]bool)
	seenCur := make(map[string]bool)
	for _, p := range st.replay.Positions {
		if !p.Open() {
			continue
		}
		in := st.instrument(p)
		sym := strings.ToUpper(in.Symbol)
		if sym == "" || seenSym[sym] {
			continue
		}
		seenSym[sym] = true

		cur := firstNonEmpty(strings.ToUpper(in.Currency), s.baseCurrency)
		quotes = append(quotes, marketdata.Quote{Symbol: sym, Currency: cur})
		if cur != s.baseCurrency && !seenCur[cur] {
			seenCur[cur] = true
			pairs = append(pairs, marketdata.Pair{From: cur, To: s.baseCurrency})
		}
	}
	return quotes, pairs, nil
}
