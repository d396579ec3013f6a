// Package splits derives split adjustment ratios from corporate-action rows
// in the ledger.
//
// A split is a pair of CORPORATE_ACTION rows on the same date, account and
// instrument: one leg with positive quantity (units in), one with negative
// quantity (units out). The ratio is in / |out|. An instrument exchange is
// one out leg and one in leg on the same date and account but on two
// different instruments. Anything else is malformed, and every lookup for
// an affected instrument fails with a *domain.DataQualityError.
package splits

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

// ratioTolerance is the relative difference allowed between accounts that
// report the same split.
const ratioTolerance = 1e-9

type Event struct {
	InstrumentID int64
	Date         time.Time
	Ratio        float64
	TxIDs        []int64
}

type Leg struct {
	TxID         int64
	InstrumentID int64
	Quantity     float64
}

// Exchange moves a position from one instrument to another, e.g. after an
// ISIN change or a merger.
type Exchange struct {
	Date      time.Time
	AccountID int64
	Out       Leg
	In        Leg
}

type Resolver struct {
	events    map[int64][]Event
	invalid   map[int64]error
	exchanges map[int64]Exchange
}

type groupKey struct {
	date      time.Time
	accountID int64
}

// New indexes the corporate actions in txs. It never fails: malformed
// events are remembered per instrument and reported on lookup, so other
// instruments stay usable.
func New(txs []domain.Transaction) *Resolver {
	r := &Resolver{
		events:    make(map[int64][]Event),
		invalid:   make(map[int64]error),
		exchanges: make(map[int64]Exchange),
	}

	groups := make(map[groupKey][]domain.Transaction)
	var order []groupKey
	for _, t := range txs {
		if t.Type != domain.TxTypeCorporateAction || !t.HasInstrument() {
			continue
		}
		k := groupKey{date: t.Date, accountID: t.AccountID}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], t)
	}

	type splitKey struct {
		instrumentID int64
		date         time.Time
	}
	found := make(map[splitKey]Event)
	var splitOrder []splitKey

	for _, k := range order {
		byInstrument := make(map[int64][]domain.Transaction)
		var instruments []int64
		for _, t := range groups[k] {
			id := *t.InstrumentID
			if _, ok := byInstrument[id]; !ok {
				instruments = append(instruments, id)
			}
			byInstrument[id] = append(byInstrument[id], t)
		}

		var singles []domain.Transaction
		for _, id := range instruments {
			legs := byInstrument[id]
			if len(legs) == 1 {
				singles = append(singles, legs[0])
				continue
			}

			ev, err := splitFromLegs(legs)
			if err != nil {
				r.markInvalid(id, err)
				continue
			}
			sk := splitKey{instrumentID: id, date: k.date}
			prev, seen := found[sk]
			switch {
			case !seen:
				found[sk] = ev
				splitOrder = append(splitOrder, sk)
			case math.Abs(prev.Ratio-ev.Ratio) > ratioTolerance*math.Max(prev.Ratio, ev.Ratio):
				r.markInvalid(id, qualityError(legs[0], append(prev.TxIDs, ev.TxIDs...),
					fmt.Sprintf("accounts disagree on ratio: %g vs %g", prev.Ratio, ev.Ratio)))
			default:
				prev.TxIDs = append(prev.TxIDs, ev.TxIDs...)
				found[sk] = prev
			}
		}

		r.pairExchange(singles)
	}

	for _, sk := range splitOrder {
		r.events[sk.instrumentID] = append(r.events[sk.instrumentID], found[sk])
	}
	for id := range r.events {
		evs := r.events[id]
		sort.Slice(evs, func(i, j int) bool { return evs[i].Date.Before(evs[j].Date) })
	}
	return r
}

func splitFromLegs(legs []domain.Transaction) (Event, error) {
	ids := txIDs(legs)
	if len(legs) > 2 {
		return Event{}, qualityError(legs[0], ids, fmt.Sprintf("%d legs on one date", len(legs)))
	}

	var in, out *domain.Transaction
	for i := range legs {
		switch {
		case legs[i].Quantity > 0:
			in = &legs[i]
		case legs[i].Quantity < 0:
			out = &legs[i]
		}
	}
	if in == nil || out == nil {
		return Event{}, qualityError(legs[0], ids, "missing in or out leg")
	}

	ratio := in.Quantity / math.Abs(out.Quantity)
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) || ratio <= 0 {
		return Event{}, qualityError(legs[0], ids, fmt.Sprintf("ratio %g is not a positive number", ratio))
	}
	return Event{InstrumentID: *legs[0].InstrumentID, Date: legs[0].Date, Ratio: ratio, TxIDs: ids}, nil
}

// pairExchange accepts exactly one lone out leg and one lone in leg on the
// same date and account as an exchange between their instruments.
func (r *Resolver) pairExchange(singles []domain.Transaction) {
	if len(singles) == 0 {
		return
	}

	var in, out []domain.Transaction
	for _, t := range singles {
		switch {
		case t.Quantity > 0:
			in = append(in, t)
		case t.Quantity < 0:
			out = append(out, t)
		}
	}

	if len(in) != 1 || len(out) != 1 || len(in)+len(out) != len(singles) {
		ids := txIDs(singles)
		for _, t := range singles {
			r.markInvalid(*t.InstrumentID, qualityError(t, ids, "unpaired corporate action leg"))
		}
		return
	}

	ex := Exchange{
		Date:      out[0].Date,
		AccountID: out[0].AccountID,
		Out:       Leg{TxID: out[0].ID, InstrumentID: *out[0].InstrumentID, Quantity: out[0].Quantity},
		In:        Leg{TxID: in[0].ID, InstrumentID: *in[0].InstrumentID, Quantity: in[0].Quantity},
	}
	r.exchanges[ex.Out.TxID] = ex
	r.exchanges[ex.In.TxID] = ex
}

func (r *Resolver) markInvalid(instrumentID int64, err error) {
	if _, ok := r.invalid[instrumentID]; !ok {
		r.invalid[instrumentID] = err
	}
}

// Err reports the first malformed event recorded for the instrument.
func (r *Resolver) Err(instrumentID int64) error {
	return r.invalid[instrumentID]
}

// Events lists the instrument's splits in date order.
func (r *Resolver) Events(instrumentID int64) ([]Event, error) {
	if err := r.invalid[instrumentID]; err != nil {
		return nil, err
	}
	return r.events[instrumentID], nil
}

// AdjustmentRatio is the product of the ratios of every split after asOf.
// Scaling a quantity held on asOf by it makes it comparable with a
// split-adjusted price series. 1.0 when the instrument never split.
func (r *Resolver) AdjustmentRatio(instrumentID int64, asOf time.Time) (float64, error) {
	evs, err := r.Events(instrumentID)
	if err != nil {
		return 0, err
	}
	ratio := 1.0
	for _, ev := range evs {
		if ev.Date.After(asOf) {
			ratio *= ev.Ratio
		}
	}
	return ratio, nil
}

func (r *Resolver) AdjustedQuantity(raw float64, instrumentID int64, asOf time.Time) (float64, error) {
	ratio, err := r.AdjustmentRatio(instrumentID, asOf)
	if err != nil {
		return 0, err
	}
	return raw * ratio, nil
}

// RatioOn returns the ratio of the split on exactly date, 1.0 when there
// was none.
func (r *Resolver) RatioOn(instrumentID int64, date time.Time) (float64, error) {
	evs, err := r.Events(instrumentID)
	if err != nil {
		return 0, err
	}
	for _, ev := range evs {
		if ev.Date.Equal(date) {
			return ev.Ratio, nil
		}
	}
	return 1, nil
}

// Exchange returns the exchange the transaction is a leg of.
func (r *Resolver) Exchange(txID int64) (Exchange, bool) {
	ex, ok := r.exchanges[txID]
	return ex, ok
}

func qualityError(t domain.Transaction, ids []int64, reason string) *domain.DataQualityError {
	return &domain.DataQualityError{
		Instrument: instrumentLabel(t),
		Date:       t.Date,
		TxIDs:      ids,
		Reason:     reason,
	}
}

func instrumentLabel(t domain.Transaction) string {
	switch {
	case t.Symbol != "":
		return t.Symbol
	case t.ISIN != "":
		return t.ISIN
	default:
		return fmt.Sprintf("#%d", *t.InstrumentID)
	}
}

func txIDs(txs []domain.Transaction) []int64 {
	ids := make([]int64, len(txs))
	for i, t := range txs {
		ids[i] = t.ID
	}
	return ids
}
