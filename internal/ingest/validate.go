package ingest

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

var isinPattern = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}[0-9]$`)

// Validator checks parser output against the standard record schema and
// normalises what it can: type aliases, currency case, missing exchange
// rates.
type Validator struct {
	baseCurrency string
	taxonomy     *config.Taxonomy
}

func NewValidator(baseCurrency string, taxonomy *config.Taxonomy) *Validator {
	if taxonomy == nil {
		taxonomy = config.DefaultTaxonomy()
	}
	return &Validator{baseCurrency: strings.ToUpper(baseCurrency), taxonomy: taxonomy}
}

// Validate returns the normalised record or a *domain.ValidationError naming
// the first field that failed. row is the 1-based position in the parser
// output, 0 for manual entries.
func (v *Validator) Validate(ctx context.Context, row int, rec domain.Record) (domain.Record, error) {
	fail := func(field, reason string, err error) (domain.Record, error) {
		return domain.Record{}, &domain.ValidationError{
			Row: row, ExternalID: rec.ExternalID, Field: field, Reason: reason, Err: err,
		}
	}

	if strings.TrimSpace(rec.ExternalID) == "" {
		return fail("external_id", "required", nil)
	}
	if rec.Date.IsZero() {
		return fail("date", "missing or not an ISO-8601 date", domain.ErrInvalidDate)
	}
	rec.Date = domain.Day(rec.Date)

	rec.AccountExternalID = strings.TrimSpace(rec.AccountExternalID)
	if rec.AccountExternalID == "" {
		return fail("account_external_id", "required", nil)
	}

	if strings.TrimSpace(string(rec.Type)) == "" {
		return fail("type", "required", domain.ErrUnknownType)
	}
	rec.Type = domain.TxType(v.taxonomy.Canonical(string(rec.Type)))
	if !rec.Type.IsValid() {
		return fail("type", "unknown type "+string(rec.Type), domain.ErrUnknownType)
	}

	rec.Currency = strings.ToUpper(strings.TrimSpace(rec.Currency))
	if rec.Currency == "" {
		rec.Currency = v.baseCurrency
	}
	if !domain.IsCurrencyCode(rec.Currency) {
		return fail("currency", "not an ISO 4217 code: "+rec.Currency, domain.ErrInvalidCurrency)
	}
	rec.FeeCurrency = strings.ToUpper(strings.TrimSpace(rec.FeeCurrency))
	if rec.FeeCurrency != "" && !domain.IsCurrencyCode(rec.FeeCurrency) {
		return fail("fee_currency", "not an ISO 4217 code: "+rec.FeeCurrency, domain.ErrInvalidCurrency)
	}

	numbers := []struct {
		name string
		v    float64
	}{
		{"quantity", rec.Quantity},
		{"price", rec.Price},
		{"amount", rec.Amount},
		{"amount_local", rec.AmountLocal},
		{"exchange_rate", rec.ExchangeRate},
		{"fee", rec.Fee},
		{"fee_local", rec.FeeLocal},
	}
	for _, n := range numbers {
		if math.IsNaN(n.v) || math.IsInf(n.v, 0) {
			return fail(n.name, "not a finite number", nil)
		}
	}

	rec.ISIN = strings.ToUpper(strings.TrimSpace(rec.ISIN))
	if rec.ISIN != "" && !isinPattern.MatchString(rec.ISIN) {
		logging.FromContext(ctx).Debug("non-standard isin", "external_id", rec.ExternalID, "isin", rec.ISIN)
	}
	rec.Symbol = strings.TrimSpace(rec.Symbol)

	if rec.AmountLocal == 0 && rec.Amount != 0 && rec.Currency == v.baseCurrency {
		rec.AmountLocal = rec.Amount
	}
	if rec.ExchangeRate == 0 {
		switch {
		case rec.Amount != 0:
			rec.ExchangeRate = rec.AmountLocal / rec.Amount
		case rec.Currency == v.baseCurrency:
			rec.ExchangeRate = 1
		}
	}
	return rec, nil
}
