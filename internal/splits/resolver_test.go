package splits

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

func ca(id, account, instrument int64, date string, qty float64) domain.Transaction {
	inst := instrument
	return domain.Transaction{
		ID:           id,
		AccountID:    account,
		InstrumentID: &inst,
		Record: domain.Record{
			Date:     domain.MustDate(date),
			Type:     domain.TxTypeCorporateAction,
			Symbol:   "SYM",
			Quantity: qty,
		},
	}
}

func buy(id, account, instrument int64, date string, qty float64) domain.Transaction {
	t := ca(id, account, instrument, date, qty)
	t.Type = domain.TxTypeBuy
	return t
}

func TestAdjustmentRatio(t *testing.T) {
	r := New([]domain.Transaction{
		buy(1, 1, 7, "2020-01-01", 10),
		ca(2, 1, 7, "2021-06-01", -10),
		ca(3, 1, 7, "2021-06-01", 20),
		ca(4, 1, 7, "2022-06-01", 60),
		ca(5, 1, 7, "2022-06-01", -20),
	})

	tests := []struct {
		name string
		asOf string
		want float64
	}{
		{"before both splits", "2020-01-01", 6},
		{"day of first split", "2021-06-01", 3},
		{"between splits", "2021-12-31", 3},
		{"after both", "2023-01-01", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.AdjustmentRatio(7, domain.MustDate(tc.asOf))
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}

	q, err := r.AdjustedQuantity(10, 7, domain.MustDate("2020-01-01"))
	require.NoError(t, err)
	assert.InDelta(t, 60, q, 1e-12)

	ratio, err := r.RatioOn(7, domain.MustDate("2021-06-01"))
	require.NoError(t, err)
	assert.InDelta(t, 2, ratio, 1e-12)

	ratio, err = r.RatioOn(7, domain.MustDate("2021-06-02"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio)
}

func TestNoCorporateActions(t *testing.T) {
	r := New([]domain.Transaction{buy(1, 1, 7, "2020-01-01", 10)})

	got, err := r.AdjustmentRatio(7, domain.MustDate("1990-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = r.AdjustmentRatio(99, domain.MustDate("1990-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, got, "unknown instrument")
}

func TestSameSplitInTwoAccounts(t *testing.T) {
	r := New([]domain.Transaction{
		ca(1, 1, 7, "2021-06-01", -10),
		ca(2, 1, 7, "2021-06-01", 40),
		ca(3, 2, 7, "2021-06-01", -3),
		ca(4, 2, 7, "2021-06-01", 12),
	})

	evs, err := r.Events(7)
	require.NoError(t, err)
	require.Len(t, evs, 1, "one split per instrument and date")
	assert.InDelta(t, 4, evs[0].Ratio, 1e-12)
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, evs[0].TxIDs)
}

func TestMalformedSplits(t *testing.T) {
	tests := []struct {
		name    string
		txs     []domain.Transaction
		wantIDs []int64
	}{
		{
			name:    "three legs",
			txs:     []domain.Transaction{ca(1, 1, 7, "2021-06-01", -10), ca(2, 1, 7, "2021-06-01", 20), ca(3, 1, 7, "2021-06-01", 5)},
			wantIDs: []int64{1, 2, 3},
		},
		{
			name:    "two in legs",
			txs:     []domain.Transaction{ca(1, 1, 7, "2021-06-01", 10), ca(2, 1, 7, "2021-06-01", 20)},
			wantIDs: []int64{1, 2},
		},
		{
			name:    "zero out quantity",
			txs:     []domain.Transaction{ca(1, 1, 7, "2021-06-01", 0), ca(2, 1, 7, "2021-06-01", 20)},
			wantIDs: []int64{1, 2},
		},
		{
			name:    "lone leg",
			txs:     []domain.Transaction{ca(1, 1, 7, "2021-06-01", 20)},
			wantIDs: []int64{1},
		},
		{
			name: "accounts disagree",
			txs: []domain.Transaction{
				ca(1, 1, 7, "2021-06-01", -10), ca(2, 1, 7, "2021-06-01", 20),
				ca(3, 2, 7, "2021-06-01", -10), ca(4, 2, 7, "2021-06-01", 30),
			},
			wantIDs: []int64{1, 2, 3, 4},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(tc.txs)

			_, err := r.AdjustmentRatio(7, domain.MustDate("2020-01-01"))
			require.ErrorIs(t, err, domain.ErrMalformedSplit)

			var dq *domain.DataQualityError
			require.ErrorAs(t, err, &dq)
			assert.ElementsMatch(t, tc.wantIDs, dq.TxIDs)
			assert.Equal(t, "SYM", dq.Instrument)

			_, err = r.RatioOn(7, domain.MustDate("2021-06-01"))
			require.ErrorIs(t, err, domain.ErrMalformedSplit)
		})
	}
}

func TestMalformedSplitIsolatedToInstrument(t *testing.T) {
	r := New([]domain.Transaction{
		ca(1, 1, 7, "2021-06-01", 20),
		ca(2, 1, 8, "2021-06-01", -5),
		ca(3, 1, 8, "2021-06-01", 10),
	})

	require.ErrorIs(t, r.Err(7), domain.ErrMalformedSplit)
	got, err := r.AdjustmentRatio(8, domain.MustDate("2020-01-01"))
	require.NoError(t, err)
	assert.InDelta(t, 2, got, 1e-12)
}

func TestExchange(t *testing.T) {
	r := New([]domain.Transaction{
		buy(1, 1, 7, "2020-01-01", 10),
		ca(2, 1, 7, "2022-03-01", -10),
		ca(3, 1, 9, "2022-03-01", 5),
	})

	ex, ok := r.Exchange(2)
	require.True(t, ok)
	assert.Equal(t, int64(7), ex.Out.InstrumentID)
	assert.Equal(t, int64(9), ex.In.InstrumentID)
	assert.Equal(t, -10.0, ex.Out.Quantity)
	assert.Equal(t, 5.0, ex.In.Quantity)

	same, ok := r.Exchange(3)
	require.True(t, ok)
	assert.Equal(t, ex, same)

	_, ok = r.Exchange(1)
	assert.False(t, ok)

	ratio, err := r.AdjustmentRatio(7, domain.MustDate("2020-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, ratio, "an exchange is not a split")
}
