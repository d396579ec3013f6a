package ingest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

func validRecord() domain.Record {
	return domain.Record{
		ExternalID:        "row-1",
		AccountExternalID: "9017671",
		ISIN:              "us0378331005",
		Symbol:            " AAPL ",
		Date:              domain.MustDate("2024-01-15"),
		Type:              domain.TxTypeBuy,
		Quantity:          10,
		Price:             150,
		Amount:            -1500,
		Currency:          "usd",
		AmountLocal:       -15750,
		FeeCurrency:       "USD",
	}
}

func TestValidate(t *testing.T) {
	v := NewValidator("nok", config.DefaultTaxonomy())
	ctx := context.Background()

	tests := []struct {
		name      string
		mutate    func(r *domain.Record)
		wantField string
		wantErr   error
	}{
		{name: "valid"},
		{name: "missing external id", mutate: func(r *domain.Record) { r.ExternalID = "" }, wantField: "external_id"},
		{name: "missing date", mutate: func(r *domain.Record) { r.Date = time.Time{} }, wantField: "date", wantErr: domain.ErrInvalidDate},
		{name: "missing account", mutate: func(r *domain.Record) { r.AccountExternalID = "  " }, wantField: "account_external_id"},
		{name: "missing type", mutate: func(r *domain.Record) { r.Type = "" }, wantField: "type", wantErr: domain.ErrUnknownType},
		{name: "unknown type", mutate: func(r *domain.Record) { r.Type = "GIFT" }, wantField: "type", wantErr: domain.ErrUnknownType},
		{name: "bad currency", mutate: func(r *domain.Record) { r.Currency = "DOLLARS" }, wantField: "currency", wantErr: domain.ErrInvalidCurrency},
		{name: "unknown currency code", mutate: func(r *domain.Record) { r.Currency = "XYZ" }, wantField: "currency", wantErr: domain.ErrInvalidCurrency},
		{name: "bad fee currency", mutate: func(r *domain.Record) { r.FeeCurrency = "KR" }, wantField: "fee_currency", wantErr: domain.ErrInvalidCurrency},
		{name: "nan amount", mutate: func(r *domain.Record) { r.Amount = math.NaN() }, wantField: "amount"},
		{name: "infinite fee", mutate: func(r *domain.Record) { r.FeeLocal = math.Inf(1) }, wantField: "fee_local"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := validRecord()
			if tc.mutate != nil {
				tc.mutate(&rec)
			}

			_, err := v.Validate(ctx, 3, rec)
			if tc.wantField == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, domain.ErrValidation)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			}
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.wantField, verr.Field)
			assert.Equal(t, 3, verr.Row)
		})
	}
}

func TestValidate_Normalises(t *testing.T) {
	v := NewValidator("NOK", nil)
	ctx := context.Background()

	got, err := v.Validate(ctx, 1, validRecord())
	require.NoError(t, err)
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, "US0378331005", got.ISIN)
	assert.Equal(t, "AAPL", got.Symbol)
	assert.InDelta(t, 10.5, got.ExchangeRate, 1e-12, "filled from amount_local / amount")

	alias := validRecord()
	alias.Type = "bytte uttak vp"
	got, err = v.Validate(ctx, 1, alias)
	require.NoError(t, err)
	assert.Equal(t, domain.TxTypeCorporateAction, got.Type)

	cash := validRecord()
	cash.Type = domain.TxTypeDeposit
	cash.Currency = ""
	cash.Amount = 5000
	cash.AmountLocal = 0
	got, err = v.Validate(ctx, 1, cash)
	require.NoError(t, err)
	assert.Equal(t, "NOK", got.Currency, "empty currency defaults to base")
	assert.InDelta(t, 5000, got.AmountLocal, 1e-12)
	assert.InDelta(t, 1, got.ExchangeRate, 1e-12)

	zero := validRecord()
	zero.Amount, zero.AmountLocal, zero.Currency = 0, 0, "NOK"
	got, err = v.Validate(ctx, 1, zero)
	require.NoError(t, err)
	assert.InDelta(t, 1, got.ExchangeRate, 1e-12)
}
