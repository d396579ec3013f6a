package portfolio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/xirr"
)

type InstrumentReturn struct {
	InstrumentID int64
	Symbol       string
	MarketValue  float64
	Realized     float64
	Income       float64
	XIRR         *float64
	Error        string
}

type Performance struct {
	AsOf          time.Time
	BaseCurrency  string
	NetInvested   float64
	HoldingsValue float64
	CashBalance   float64
	TotalValue    float64
	Realized      float64
	Unrealized    float64
	XIRR          *float64
	Error         string
	Gaps          []Gap
	Instruments   []InstrumentReturn
}

// Performance computes the money-weighted return of the whole portfolio
// from external flows (taxonomy external_flows) plus the terminal value,
// and the return of each instrument from its own trades and income. A rate
// that cannot be determined is reported in Error, not as a number.
func (s *Service) Performance(ctx context.Context, asOf time.Time) (*Performance, error) {
	st, err := s.load(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("Performance: %w", err)
	}

	out := &Performance{AsOf: st.asOf, BaseCurrency: s.baseCurrency}
	values := make(map[int64]float64)
	unpriced := make(map[int64]bool)
	for _, p := range st.replay.Positions {
		if !p.Open() {
			continue
		}
		h, gap, err := s.value(ctx, st, p)
		if err != nil {
			return nil, fmt.Errorf("Performance: %w", err)
		}
		if gap != nil {
			out.Gaps = append(out.Gaps, *gap)
			unpriced[p.InstrumentID] = true
			continue
		}
		values[p.InstrumentID] += h.MarketValue
		out.HoldingsValue += h.MarketValue
		out.Unrealized += h.Unrealized
	}

	var flows []xirr.Flow
	for _, t := range st.txs {
		out.CashBalance += t.AmountLocal
		if s.taxonomy.IsExternalFlow(string(t.Type)) {
			out.NetInvested += t.AmountLocal
			flows = append(flows, xirr.Flow{Date: t.Date, Amount: -t.AmountLocal})
		}
	}
	for _, r := range st.replay.Realizations {
		out.Realized += r.Gain
	}
	out.TotalValue = out.HoldingsValue + out.CashBalance

	if len(out.Gaps) > 0 {
		out.Error = fmt.Sprintf("%d holdings have no market value", len(out.Gaps))
	} else {
		flows = append(flows, xirr.Flow{Date: st.asOf, Amount: out.TotalValue})
		out.XIRR, out.Error = solve(flows)
	}

	out.Instruments = s.instrumentReturns(st, values, unpriced)
	return out, nil
}

func (s *Service) instrumentReturns(st *state, values map[int64]float64, unpriced map[int64]bool) []InstrumentReturn {
	flows := make(map[int64][]xirr.Flow)
	byID := make(map[int64]*InstrumentReturn)
	get := func(id int64) *InstrumentReturn {
		r, ok := byID[id]
		if !ok {
			r = &InstrumentReturn{InstrumentID: id, Symbol: st.instruments[id].Label()}
			byID[id] = r
		}
		return r
	}

	for _, t := range st.txs {
		if !t.HasInstrument() {
			continue
		}
		id := *t.InstrumentID
		var amount float64
		switch t.Type {
		case domain.TxTypeBuy:
			amount = -math.Abs(t.AmountLocal)
		case domain.TxTypeSell:
			amount = math.Abs(t.AmountLocal)
		case domain.TxTypeCorporateAction:
			continue
		default:
			amount = t.AmountLocal
			get(id).Income += t.AmountLocal
		}
		get(id)
		flows[id] = append(flows[id], xirr.Flow{Date: t.Date, Amount: amount})
	}
	for _, r := range st.replay.Realizations {
		get(r.InstrumentID).Realized += r.Gain
	}

	out := make([]InstrumentReturn, 0, len(byID))
	for id, r := range byID {
		r.MarketValue = values[id]
		if unpriced[id] {
			r.Error = "no market value"
		} else {
			f := flows[id]
			if r.MarketValue != 0 {
				f = append(f, xirr.Flow{Date: st.asOf, Amount: r.MarketValue})
			}
			r.XIRR, r.Error = solve(f)
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func solve(flows []xirr.Flow) (*float64, string) {
	r, err := xirr.Solve(flows)
	if err != nil {
		if errors.Is(err, domain.ErrIndeterminate) {
			return nil, "indeterminate"
		}
		return nil, err.Error()
	}
	return &r, ""
}
