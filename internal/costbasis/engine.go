// Package costbasis replays the ledger into weighted-average cost positions,
// realized gains and cash events. All amounts are in the base currency.
package costbasis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/splits"
)

// QuantityTolerance absorbs floating point residue: a sell may exceed the
// held quantity by this much, and a remainder this small closes the
// position.
const QuantityTolerance = 1e-9

type corporateActions interface {
	RatioOn(instrumentID int64, date time.Time) (float64, error)
	Exchange(txID int64) (splits.Exchange, bool)
}

type Position struct {
	AccountID         int64
	AccountExternalID string
	InstrumentID      int64
	Symbol            string
	ISIN              string
	Quantity          float64
	TotalCost         float64
}

func (p Position) UnitCost() float64 {
	if p.Quantity == 0 {
		return 0
	}
	return p.TotalCost / p.Quantity
}

func (p Position) Open() bool {
	return p.Quantity != 0
}

type Realization struct {
	TxID         int64
	Date         time.Time
	AccountID    int64
	InstrumentID int64
	Quantity     float64
	Proceeds     float64
	CostRemoved  float64
	Gain         float64
}

type CashEvent struct {
	TxID         int64
	Date         time.Time
	AccountID    int64
	InstrumentID *int64
	Type         domain.TxType
	Currency     string
	AmountLocal  float64
	FeeLocal     float64
}

type Result struct {
	Positions    []Position
	Realizations []Realization
	CashEvents   []CashEvent
}

// Position returns the final state of one (account, instrument) pair.
func (r *Result) Position(accountID, instrumentID int64) (Position, bool) {
	for _, p := range r.Positions {
		if p.AccountID == accountID && p.InstrumentID == instrumentID {
			return p, true
		}
	}
	return Position{}, false
}

type posKey struct {
	accountID    int64
	instrumentID int64
}

type engine struct {
	actions   corporateActions
	positions map[posKey]*Position
	order     []posKey
	applied   map[string]bool
	res       *Result
}

// Replay walks txs, which must already be in ledger replay order (date,
// then id). Unsorted input is rejected, not re-sorted. The first data
// integrity problem stops the replay with a *domain.DataIntegrityError.
func Replay(txs []domain.Transaction, actions corporateActions) (*Result, error) {
	e := &engine{
		actions:   actions,
		positions: make(map[posKey]*Position),
		applied:   make(map[string]bool),
		res:       &Result{},
	}

	for i, t := range txs {
		if i > 0 && !txs[i-1].Before(t) {
			return nil, integrityError(t, domain.ErrUnsorted,
				fmt.Sprintf("follows transaction %d dated %s", txs[i-1].ID, domain.FormatDate(txs[i-1].Date)))
		}
		if err := e.apply(t); err != nil {
			return nil, err
		}
	}

	for _, k := range e.order {
		e.res.Positions = append(e.res.Positions, *e.positions[k])
	}
	sort.SliceStable(e.res.Positions, func(i, j int) bool {
		a, b := e.res.Positions[i], e.res.Positions[j]
		if a.AccountID != b.AccountID {
			return a.AccountID < b.AccountID
		}
		return a.InstrumentID < b.InstrumentID
	})
	return e.res, nil
}

func (e *engine) apply(t domain.Transaction) error {
	switch {
	case t.Type == domain.TxTypeBuy && t.HasInstrument():
		p := e.position(t.AccountID, *t.InstrumentID, t)
		p.Quantity += math.Abs(t.Quantity)
		// amount_local already carries the fee; fee_local is informational.
		p.TotalCost += math.Abs(t.AmountLocal)
		return nil

	case t.Type == domain.TxTypeSell && t.HasInstrument():
		return e.sell(t)

	case t.Type == domain.TxTypeCorporateAction && t.HasInstrument():
		return e.corporateAction(t)

	case t.Type == domain.TxTypeBuy, t.Type == domain.TxTypeSell:
		return integrityError(t, domain.ErrNotFound, "trade has no instrument")
	}

	e.res.CashEvents = append(e.res.CashEvents, CashEvent{
		TxID:         t.ID,
		Date:         t.Date,
		AccountID:    t.AccountID,
		InstrumentID: t.InstrumentID,
		Type:         t.Type,
		Currency:     t.Currency,
		AmountLocal:  t.AmountLocal,
		FeeLocal:     t.FeeLocal,
	})
	return nil
}

func (e *engine) sell(t domain.Transaction) error {
	p := e.position(t.AccountID, *t.InstrumentID, t)
	sold := math.Abs(t.Quantity)

	removed, err := reduce(p, sold, t)
	if err != nil {
		return err
	}

	proceeds := math.Abs(t.AmountLocal)
	e.res.Realizations = append(e.res.Realizations, Realization{
		TxID:         t.ID,
		Date:         t.Date,
		AccountID:    t.AccountID,
		InstrumentID: *t.InstrumentID,
		Quantity:     sold,
		Proceeds:     proceeds,
		CostRemoved:  removed,
		Gain:         proceeds - removed,
	})
	return nil
}

// reduce takes qty units out of p at its average cost and returns the cost
// removed.
func reduce(p *Position, qty float64, t domain.Transaction) (float64, error) {
	if p.Quantity <= 0 {
		return 0, integrityError(t, domain.ErrDivisionByZero, "no units held")
	}
	if qty > p.Quantity+QuantityTolerance {
		return 0, integrityError(t, domain.ErrOversell,
			fmt.Sprintf("selling %g of %g held", qty, p.Quantity))
	}

	removed := p.UnitCost() * qty
	p.Quantity -= qty
	p.TotalCost -= removed
	if math.Abs(p.Quantity) <= QuantityTolerance {
		p.Quantity = 0
		p.TotalCost = 0
	}
	return removed, nil
}

func (e *engine) corporateAction(t domain.Transaction) error {
	if ex, ok := e.actions.Exchange(t.ID); ok {
		return e.exchange(t, ex)
	}

	key := fmt.Sprintf("split|%d|%d|%s", t.AccountID, *t.InstrumentID, domain.FormatDate(t.Date))
	if e.applied[key] {
		return nil
	}
	e.applied[key] = true

	ratio, err := e.actions.RatioOn(*t.InstrumentID, t.Date)
	if err != nil {
		return integrityError(t, err, "")
	}
	p := e.position(t.AccountID, *t.InstrumentID, t)
	p.Quantity *= ratio
	return nil
}

// exchange moves the out instrument's units and their cost into the in
// instrument. Both legs are applied when the first one is reached.
func (e *engine) exchange(t domain.Transaction, ex splits.Exchange) error {
	key := fmt.Sprintf("exchange|%d", ex.Out.TxID)
	if e.applied[key] {
		return nil
	}
	e.applied[key] = true

	from := e.position(ex.AccountID, ex.Out.InstrumentID, t)
	moved, err := reduce(from, math.Abs(ex.Out.Quantity), t)
	if err != nil {
		return err
	}

	to := e.position(ex.AccountID, ex.In.InstrumentID, domain.Transaction{})
	to.Quantity += math.Abs(ex.In.Quantity)
	to.TotalCost += moved
	return nil
}

func (e *engine) position(accountID, instrumentID int64, t domain.Transaction) *Position {
	k := posKey{accountID: accountID, instrumentID: instrumentID}
	p, ok := e.positions[k]
	if !ok {
		p = &Position{AccountID: accountID, InstrumentID: instrumentID}
		e.positions[k] = p
		e.order = append(e.order, k)
	}
	if p.AccountExternalID == "" {
		p.AccountExternalID = t.AccountExternalID
	}
	if p.Symbol == "" && t.InstrumentID != nil && *t.InstrumentID == instrumentID {
		p.Symbol, p.ISIN = t.Symbol, t.ISIN
	}
	return p
}

func integrityError(t domain.Transaction, err error, detail string) *domain.DataIntegrityError {
	instrument := t.Symbol
	if instrument == "" {
		instrument = t.ISIN
	}
	return &domain.DataIntegrityError{
		TxID:       t.ID,
		Account:    t.AccountExternalID,
		Instrument: instrument,
		Date:       t.Date,
		Detail:     detail,
		Err:        err,
	}
}
