package handler

import (
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/portfolio"
	"github.com/josh-kwaku/folio-ledger/internal/review"
)

var round = portfolio.Round2

type stagedDTO struct {
	ID                int64   `json:"id"`
	BatchID           string  `json:"batch_id"`
	ExternalID        string  `json:"external_id"`
	AccountExternalID string  `json:"account_external_id"`
	Date              string  `json:"date"`
	Type              string  `json:"type"`
	Symbol            string  `json:"symbol,omitempty"`
	ISIN              string  `json:"isin,omitempty"`
	Quantity          float64 `json:"quantity"`
	Currency          string  `json:"currency"`
	Amount            float64 `json:"amount"`
	AmountLocal       float64 `json:"amount_local"`
	Fingerprint       string  `json:"fingerprint"`
}

type batchDTO struct {
	BatchID string `json:"batch_id"`
	Rows    int    `json:"rows"`
}

type stagingDTO struct {
	Batches []batchDTO  `json:"batches"`
	Rows    []stagedDTO `json:"rows"`
}

func toStagingDTO(p *review.Pending) stagingDTO {
	out := stagingDTO{
		Batches: make([]batchDTO, len(p.Batches)),
		Rows:    make([]stagedDTO, len(p.Rows)),
	}
	for i, b := range p.Batches {
		out.Batches[i] = batchDTO{BatchID: b.BatchID, Rows: b.Rows}
	}
	for i, s := range p.Rows {
		out.Rows[i] = stagedDTO{
			ID:                s.ID,
			BatchID:           s.BatchID,
			ExternalID:        s.ExternalID,
			AccountExternalID: s.AccountExternalID,
			Date:              domain.FormatDate(s.Date),
			Type:              string(s.Type),
			Symbol:            s.Symbol,
			ISIN:              s.ISIN,
			Quantity:          s.Quantity,
			Currency:          s.Currency,
			Amount:            s.Amount,
			AmountLocal:       s.AmountLocal,
			Fingerprint:       s.Fingerprint,
		}
	}
	return out
}

type holdingDTO struct {
	Account     string   `json:"account"`
	Symbol      string   `json:"symbol"`
	ISIN        string   `json:"isin,omitempty"`
	Quantity    float64  `json:"quantity"`
	UnitCost    float64  `json:"unit_cost"`
	TotalCost   float64  `json:"total_cost"`
	Currency    string   `json:"currency,omitempty"`
	Price       *float64 `json:"price"`
	PriceDate   string   `json:"price_date,omitempty"`
	FxRate      *float64 `json:"fx_rate"`
	MarketValue *float64 `json:"market_value"`
	Unrealized  *float64 `json:"unrealized"`
}

type holdingsDTO struct {
	AsOf         string       `json:"as_of"`
	BaseCurrency string       `json:"base_currency"`
	TotalCost    float64      `json:"total_cost"`
	TotalValue   float64      `json:"total_value"`
	Unrealized   float64      `json:"unrealized"`
	Holdings     []holdingDTO `json:"holdings"`
	Gaps         []gapDTO     `json:"gaps"`
}

func toHoldingsDTO(h *portfolio.Holdings) holdingsDTO {
	out := holdingsDTO{
		AsOf:         domain.FormatDate(h.AsOf),
		BaseCurrency: h.BaseCurrency,
		TotalCost:    round(h.TotalCost),
		TotalValue:   round(h.TotalValue),
		Unrealized:   round(h.Unrealized),
		Holdings:     make([]holdingDTO, len(h.Rows)),
		Gaps:         toGapDTOs(h.Gaps),
	}
	for i, r := range h.Rows {
		d := holdingDTO{
			Account:   r.AccountExternalID,
			Symbol:    r.Symbol,
			ISIN:      r.ISIN,
			Quantity:  r.Quantity,
			UnitCost:  round(r.UnitCost),
			TotalCost: round(r.TotalCost),
			Currency:  r.Currency,
		}
		if r.Priced {
			price, fx, mv, unrl := r.Price, r.FxRate, round(r.MarketValue), round(r.Unrealized)
			d.Price, d.FxRate, d.MarketValue, d.Unrealized = &price, &fx, &mv, &unrl
			d.PriceDate = domain.FormatDate(r.PriceDate)
		}
		out.Holdings[i] = d
	}
	return out
}

type instrumentReturnDTO struct {
	Symbol      string   `json:"symbol"`
	MarketValue float64  `json:"market_value"`
	Realized    float64  `json:"realized"`
	Income      float64  `json:"income"`
	XIRR        *float64 `json:"xirr"`
	Error       string   `json:"error,omitempty"`
}

type performanceDTO struct {
	AsOf          string                `json:"as_of"`
	BaseCurrency  string                `json:"base_currency"`
	NetInvested   float64               `json:"net_invested"`
	HoldingsValue float64               `json:"holdings_value"`
	CashBalance   float64               `json:"cash_balance"`
	TotalValue    float64               `json:"total_value"`
	Realized      float64               `json:"realized"`
	Unrealized    float64               `json:"unrealized"`
	XIRR          *float64              `json:"xirr"`
	Error         string                `json:"error,omitempty"`
	Instruments   []instrumentReturnDTO `json:"instruments"`
	Gaps          []gapDTO              `json:"gaps"`
}

func toPerformanceDTO(p *portfolio.Performance) performanceDTO {
	out := performanceDTO{
		AsOf:          domain.FormatDate(p.AsOf),
		BaseCurrency:  p.BaseCurrency,
		NetInvested:   round(p.NetInvested),
		HoldingsValue: round(p.HoldingsValue),
		CashBalance:   round(p.CashBalance),
		TotalValue:    round(p.TotalValue),
		Realized:      round(p.Realized),
		Unrealized:    round(p.Unrealized),
		XIRR:          p.XIRR,
		Error:         p.Error,
		Instruments:   make([]instrumentReturnDTO, len(p.Instruments)),
		Gaps:          toGapDTOs(p.Gaps),
	}
	for i, r := range p.Instruments {
		out.Instruments[i] = instrumentReturnDTO{
			Symbol:      r.Symbol,
			MarketValue: round(r.MarketValue),
			Realized:    round(r.Realized),
			Income:      round(r.Income),
			XIRR:        r.XIRR,
			Error:       r.Error,
		}
	}
	return out
}

type realizedRowDTO struct {
	TransactionID int64   `json:"transaction_id"`
	Date          string  `json:"date"`
	Account       string  `json:"account"`
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	Proceeds      float64 `json:"proceeds"`
	CostRemoved   float64 `json:"cost_removed"`
	Gain          float64 `json:"gain"`
}

func toRealizedDTO(r *portfolio.RealizedReport) map[string]any {
	rows := make([]realizedRowDTO, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = realizedRowDTO{
			TransactionID: row.TxID,
			Date:          domain.FormatDate(row.Date),
			Account:       row.AccountExternalID,
			Symbol:        row.Symbol,
			Quantity:      row.Quantity,
			Proceeds:      round(row.Proceeds),
			CostRemoved:   round(row.CostRemoved),
			Gain:          round(row.Gain),
		}
	}
	byYear := make(map[int]float64, len(r.ByYear))
	for y, v := range r.ByYear {
		byYear[y] = round(v)
	}
	return map[string]any{
		"as_of":   domain.FormatDate(r.AsOf),
		"total":   round(r.Total),
		"by_year": byYear,
		"rows":    rows,
	}
}

func toIncomeDTO(r *portfolio.IncomeReport) map[string]any {
	lines := make([]map[string]any, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = map[string]any{"type": string(l.Type), "count": l.Count, "amount": round(l.Amount)}
	}
	return map[string]any{
		"as_of": domain.FormatDate(r.AsOf),
		"total": round(r.Total),
		"lines": lines,
	}
}

type gapDTO struct {
	Kind      string `json:"kind"`
	Label     string `json:"label"`
	Detail    string `json:"detail"`
	LastPrice string `json:"last_price,omitempty"`
}

func toGapDTOs(gaps []portfolio.Gap) []gapDTO {
	out := make([]gapDTO, len(gaps))
	for i, g := range gaps {
		out[i] = gapDTO{Kind: string(g.Kind), Label: g.Label, Detail: g.Detail}
		if !g.LastPrice.IsZero() {
			out[i].LastPrice = domain.FormatDate(g.LastPrice)
		}
	}
	return out
}
