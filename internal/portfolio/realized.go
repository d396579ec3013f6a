package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/costbasis"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type RealizedRow struct {
	costbasis.Realization
	AccountExternalID string
	Symbol            string
}

type RealizedReport struct {
	AsOf   time.Time
	Rows   []RealizedRow
	ByYear map[int]float64
	Total  float64
}

// Realized lists every sale up to asOf with the gain against average cost.
func (s *Service) Realized(ctx context.Context, asOf time.Time) (*RealizedReport, error) {
	st, err := s.load(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("Realized: %w", err)
	}

	accounts := make(map[int64]string)
	for _, p := range st.replay.Positions {
		accounts[p.AccountID] = p.AccountExternalID
	}

	out := &RealizedReport{AsOf: st.asOf, ByYear: make(map[int]float64)}
	for _, r := range st.replay.Realizations {
		out.Rows = append(out.Rows, RealizedRow{
			Realization:       r,
			AccountExternalID: accounts[r.AccountID],
			Symbol:            st.instruments[r.InstrumentID].Label(),
		})
		out.ByYear[r.Date.Year()] += r.Gain
		out.Total += r.Gain
	}
	return out, nil
}

type IncomeLine struct {
	Type   domain.TxType
	Count  int
	Amount float64
}

type IncomeReport struct {
	AsOf  time.Time
	Lines []IncomeLine
	Total float64
}

// Income sums cash events by type. External flows (deposits, withdrawals
// and transfers) are money moved by the investor, not income, and are left
// out.
func (s *Service) Income(ctx context.Context, asOf time.Time) (*IncomeReport, error) {
	st, err := s.load(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("Income: %w", err)
	}

	byType := make(map[domain.TxType]*IncomeLine)
	for _, ev := range st.replay.CashEvents {
		if s.taxonomy.IsExternalFlow(string(ev.Type)) {
			continue
		}
		line, ok := byType[ev.Type]
		if !ok {
			line = &IncomeLine{Type: ev.Type}
			byType[ev.Type] = line
		}
		line.Count++
		line.Amount += ev.AmountLocal
	}

	out := &IncomeReport{AsOf: st.asOf}
	for _, line := range byType {
		out.Lines = append(out.Lines, *line)
		out.Total += line.Amount
	}
	sort.Slice(out.Lines, func(i, j int) bool { return out.Lines[i].Type < out.Lines[j].Type })
	return out, nil
}
