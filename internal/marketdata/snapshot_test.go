package marketdata_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/marketdata"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
	"github.com/josh-kwaku/folio-ledger/internal/testutil"
)

func seedMarket(t *testing.T, repo *repository.MarketRepository) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []domain.PricePoint{
		{Symbol: "AAPL", Date: domain.MustDate("2024-01-12"), Close: 180, Currency: "USD", Source: "test"},
		{Symbol: "AAPL", Date: domain.MustDate("2024-01-15"), Close: 185, Currency: "USD", Source: "test"},
	} {
		_, err := repo.SavePrice(ctx, p)
		require.NoError(t, err)
	}
	_, err := repo.SaveFxRate(ctx, domain.FxRatePoint{From: "USD", To: "NOK", Date: domain.MustDate("2024-01-12"), Rate: 10, Source: "test"})
	require.NoError(t, err)
}

func TestSnapshot_Price(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *repository.DB) {
		repo := repository.NewMarketRepository(db)
		seedMarket(t, repo)
		snap := marketdata.NewSnapshot(repo, time.Minute)
		ctx := context.Background()

		tests := []struct {
			name     string
			date     string
			want     float64
			wantDate string
		}{
			{"exact date", "2024-01-15", 185, "2024-01-15"},
			{"weekend falls back", "2024-01-14", 180, "2024-01-12"},
			{"later date uses latest", "2024-03-01", 185, "2024-01-15"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				p, err := snap.Price(ctx, "aapl", domain.MustDate(tc.date))
				require.NoError(t, err)
				assert.Equal(t, tc.want, p.Close)
				assert.Equal(t, tc.wantDate, domain.FormatDate(p.Date))
				assert.Equal(t, "USD", p.Currency)
			})
		}

		_, err := snap.Price(ctx, "AAPL", domain.MustDate("2024-01-01"))
		require.ErrorIs(t, err, domain.ErrPriceGap)
		var gap *domain.PriceGapError
		require.True(t, errors.As(err, &gap))
		assert.Equal(t, "AAPL", gap.Symbol)

		_, err = snap.Price(ctx, "MSFT", domain.MustDate("2024-01-15"))
		require.ErrorIs(t, err, domain.ErrPriceGap)
	})
}

func TestSnapshot_FxRate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewMarketRepository(db)
	seedMarket(t, repo)
	snap := marketdata.NewSnapshot(repo, time.Minute)
	ctx := context.Background()

	rate, err := snap.FxRate(ctx, "USD", "NOK", domain.MustDate("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, rate)

	rate, err = snap.FxRate(ctx, "NOK", "USD", domain.MustDate("2024-01-15"))
	require.NoError(t, err)
	assert.InDelta(t, 0.1, rate, 1e-12, "inverse pair")

	rate, err = snap.FxRate(ctx, "nok", "NOK", domain.MustDate("1990-01-01"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, rate)

	_, err = snap.FxRate(ctx, "EUR", "NOK", domain.MustDate("2024-01-15"))
	require.ErrorIs(t, err, domain.ErrPriceGap)

	_, err = snap.FxRate(ctx, "USD", "NOK", domain.MustDate("2024-01-11"))
	require.ErrorIs(t, err, domain.ErrPriceGap)
}

func TestSnapshot_CachesUntilFlushed(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewMarketRepository(db)
	seedMarket(t, repo)
	snap := marketdata.NewSnapshot(repo, time.Hour)
	ctx := context.Background()

	p, err := snap.Price(ctx, "AAPL", domain.MustDate("2024-01-16"))
	require.NoError(t, err)
	assert.Equal(t, 185.0, p.Close)

	_, err = repo.SavePrice(ctx, domain.PricePoint{Symbol: "AAPL", Date: domain.MustDate("2024-01-16"), Close: 190, Currency: "USD", Source: "test"})
	require.NoError(t, err)

	p, err = snap.Price(ctx, "AAPL", domain.MustDate("2024-01-16"))
	require.NoError(t, err)
	assert.Equal(t, 185.0, p.Close, "memoized")

	snap.Flush()
	p, err = snap.Price(ctx, "AAPL", domain.MustDate("2024-01-16"))
	require.NoError(t, err)
	assert.Equal(t, 190.0, p.Close)
}

func TestSnapshot_FxRatePrefersFresherDirection(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *repository.DB) {
		repo := repository.NewMarketRepository(db)
		ctx := context.Background()
		for _, p := range []domain.FxRatePoint{
			{From: "USD", To: "NOK", Date: domain.MustDate("2024-01-01"), Rate: 10, Source: "test"},
			{From: "NOK", To: "USD", Date: domain.MustDate("2024-01-05"), Rate: 0.08, Source: "test"},
			{From: "USD", To: "NOK", Date: domain.MustDate("2024-01-08"), Rate: 11, Source: "test"},
			{From: "NOK", To: "USD", Date: domain.MustDate("2024-01-08"), Rate: 0.05, Source: "test"},
		} {
			_, err := repo.SaveFxRate(ctx, p)
			require.NoError(t, err)
		}
		snap := marketdata.NewSnapshot(repo, time.Minute)

		tests := []struct {
			name     string
			from, to string
			date     string
			want     float64
		}{
			{"direct only so far", "USD", "NOK", "2024-01-03", 10},
			{"inverse is newer", "USD", "NOK", "2024-01-06", 12.5},
			{"only the inverse so far", "NOK", "USD", "2024-01-02", 0.1},
			{"same day keeps the direct pair", "USD", "NOK", "2024-01-10", 11},
			{"same day from the other side", "NOK", "USD", "2024-01-10", 0.05},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				rate, err := snap.FxRate(ctx, tc.from, tc.to, domain.MustDate(tc.date))
				require.NoError(t, err)
				assert.InDelta(t, tc.want, rate, 1e-9)
			})
		}
	})
}
