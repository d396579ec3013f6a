package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

func newTestClient(url string) *Client {
	return NewClient(url, "secret",
		WithRateLimit(1000),
		WithRetries(3, time.Millisecond),
		WithTimeout(2*time.Second),
	)
}

func TestClient_GetPrice(t *testing.T) {
	var gotKey, gotPath, gotDate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotPath = r.URL.Path
		gotDate = r.URL.Query().Get("date")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(priceResponse{Symbol: "AAPL", Date: "2024-01-15", Close: 185.25, Currency: "USD"})
	}))
	defer srv.Close()

	price, found, err := newTestClient(srv.URL).GetPrice(context.Background(), "AAPL", domain.MustDate("2024-01-15"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 185.25, price)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "/v1/prices/AAPL", gotPath)
	assert.Equal(t, "2024-01-15", gotDate)
}

func TestClient_GetFxRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/fx/USD_NOK", r.URL.Path)
		json.NewEncoder(w).Encode(fxResponse{Pair: "USD_NOK", Date: "2024-01-15", Rate: 10.42})
	}))
	defer srv.Close()

	rate, found, err := newTestClient(srv.URL).GetFxRate(context.Background(), "USD_NOK", domain.MustDate("2024-01-15"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 10.42, rate)
}

func TestClient_Statuses(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantFound bool
		wantErr   bool
		wantCalls int32
	}{
		{name: "not found is absent data", statuses: []int{http.StatusNotFound}, wantCalls: 1},
		{name: "server error retried", statuses: []int{500, 502, 200}, wantFound: true, wantCalls: 3},
		{name: "rate limited retried", statuses: []int{429, 200}, wantFound: true, wantCalls: 2},
		{name: "client error not retried", statuses: []int{http.StatusBadRequest}, wantErr: true, wantCalls: 1},
		{name: "retries exhausted", statuses: []int{500, 500, 500, 500, 500}, wantErr: true, wantCalls: 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tc.statuses[min(int(n), len(tc.statuses))-1]
				if status != http.StatusOK {
					http.Error(w, "nope", status)
					return
				}
				json.NewEncoder(w).Encode(priceResponse{Close: 42})
			}))
			defer srv.Close()

			price, found, err := newTestClient(srv.URL).GetPrice(context.Background(), "EQNR", domain.MustDate("2024-01-15"))
			assert.Equal(t, tc.wantCalls, calls.Load())
			assert.Equal(t, tc.wantFound, found)
			if tc.wantErr {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, tc.statuses[len(tc.statuses)-1], apiErr.StatusCode)
				return
			}
			require.NoError(t, err)
			if tc.wantFound {
				assert.Equal(t, 42.0, price)
			}
		})
	}
}

func TestClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := newTestClient(srv.URL).GetPrice(ctx, "EQNR", domain.MustDate("2024-01-15"))
	require.ErrorIs(t, err, context.Canceled)
}
