package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/portfolio"
	"github.com/josh-kwaku/folio-ledger/internal/review"
)

type mockReports struct {
	asOf time.Time
	err  error
}

func (m *mockReports) Holdings(_ context.Context, asOf time.Time) (*portfolio.Holdings, error) {
	m.asOf = asOf
	if m.err != nil {
		return nil, m.err
	}
	return &portfolio.Holdings{
		AsOf:         asOf,
		BaseCurrency: "NOK",
		TotalCost:    7500,
		TotalValue:   13500.004,
		Rows: []portfolio.Holding{
			{AccountExternalID: "A1", Symbol: "AAPL", Quantity: 45, TotalCost: 7500, Price: 30, FxRate: 10, MarketValue: 13500.004, Priced: true, PriceDate: asOf},
			{AccountExternalID: "A1", ISIN: "NO0000000001", TotalCost: 500},
		},
		Gaps: []portfolio.Gap{{Kind: portfolio.GapNoSymbol, Label: "NO0000000001"}},
	}, nil
}

func (m *mockReports) Performance(_ context.Context, asOf time.Time) (*portfolio.Performance, error) {
	rate := 0.1
	return &portfolio.Performance{AsOf: asOf, XIRR: &rate}, m.err
}

func (m *mockReports) Realized(_ context.Context, asOf time.Time) (*portfolio.RealizedReport, error) {
	return &portfolio.RealizedReport{AsOf: asOf, ByYear: map[int]float64{2023: 500}, Total: 500}, m.err
}

func (m *mockReports) Income(_ context.Context, asOf time.Time) (*portfolio.IncomeReport, error) {
	return &portfolio.IncomeReport{AsOf: asOf}, m.err
}

func (m *mockReports) Gaps(_ context.Context, asOf time.Time) (*portfolio.GapReport, error) {
	return &portfolio.GapReport{AsOf: asOf}, m.err
}

type mockStaging struct{}

func (mockStaging) Pending(context.Context) (*review.Pending, error) {
	return &review.Pending{
		Rows: []domain.StagedTransaction{{
			ID:          1,
			BatchID:     "file_import_20240115_120000",
			Fingerprint: "abc",
			Record:      domain.Record{ExternalID: "e1", Date: domain.MustDate("2024-01-15"), Type: domain.TxTypeBuy},
		}},
		Batches: []domain.BatchSummary{{BatchID: "file_import_20240115_120000", Rows: 1}},
	}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestReportHandler_Holdings(t *testing.T) {
	reports := &mockReports{}
	h := NewReportHandler(reports, mockStaging{})

	rec := httptest.NewRecorder()
	h.Holdings(rec, httptest.NewRequest(http.MethodGet, "/api/v1/holdings?as_of=2024-01-02", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MustDate("2024-01-02"), reports.asOf)

	resp := decode(t, rec)
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "2024-01-02", data["as_of"])
	assert.Equal(t, 13500.0, data["total_value"])

	rows := data["holdings"].([]any)
	require.Len(t, rows, 2)
	assert.Equal(t, 13500.0, rows[0].(map[string]any)["market_value"])
	assert.Nil(t, rows[1].(map[string]any)["market_value"], "unpriced holdings have no value")
	assert.Len(t, data["gaps"], 1)
}

func TestReportHandler_DefaultsToToday(t *testing.T) {
	reports := &mockReports{}
	h := NewReportHandler(reports, mockStaging{})
	h.now = func() time.Time { return time.Date(2024, 5, 17, 15, 4, 5, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.Holdings(rec, httptest.NewRequest(http.MethodGet, "/api/v1/holdings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MustDate("2024-05-17"), reports.asOf)
}

func TestReportHandler_BadAsOf(t *testing.T) {
	h := NewReportHandler(&mockReports{}, mockStaging{})

	rec := httptest.NewRecorder()
	h.Performance(rec, httptest.NewRequest(http.MethodGet, "/api/v1/performance?as_of=17.05.2024", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
}

func TestReportHandler_Staging(t *testing.T) {
	h := NewReportHandler(&mockReports{}, mockStaging{})

	rec := httptest.NewRecorder()
	h.Staging(rec, httptest.NewRequest(http.MethodGet, "/api/v1/staging", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec).Data.(map[string]any)
	rows := data["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "e1", rows[0].(map[string]any)["external_id"])
	assert.Equal(t, "2024-01-15", rows[0].(map[string]any)["date"])
}

func TestRespondDomainError(t *testing.T) {
	integrity := &domain.DataIntegrityError{
		TxID: 7, Account: "A1", Instrument: "AAPL", Date: domain.MustDate("2024-01-02"), Err: domain.ErrOversell,
	}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound, "RESOURCE_NOT_FOUND"},
		{"lock held", domain.ErrLockHeld, http.StatusConflict, "LEDGER_LOCKED"},
		{"nothing staged", domain.ErrNothingStaged, http.StatusConflict, "NOTHING_STAGED"},
		{"backup failed", fmt.Errorf("commit: %w", domain.ErrBackupFailed), http.StatusInternalServerError, "BACKUP_FAILED"},
		{"integrity", fmt.Errorf("Holdings: %w", integrity), http.StatusUnprocessableEntity, "DATA_INTEGRITY"},
		{"malformed split", &domain.DataQualityError{Instrument: "AAPL", Reason: "lone leg"}, http.StatusUnprocessableEntity, "MALFORMED_SPLIT"},
		{"price gap", &domain.PriceGapError{Symbol: "AAPL"}, http.StatusUnprocessableEntity, "PRICE_GAP"},
		{"invalid currency", &domain.ValidationError{Field: "currency", Err: domain.ErrInvalidCurrency}, http.StatusBadRequest, "INVALID_CURRENCY"},
		{"validation", &domain.ValidationError{Field: "account"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondDomainError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestRespondDomainError_IntegrityDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondDomainError(rec, &domain.DataIntegrityError{
		TxID: 7, Account: "A1", Instrument: "AAPL", Date: domain.MustDate("2024-01-02"), Err: domain.ErrOversell,
	})

	details := decode(t, rec).Error.Details.(map[string]any)
	assert.Equal(t, 7.0, details["transaction_id"])
	assert.Equal(t, "AAPL", details["instrument"])
	assert.Equal(t, "2024-01-02", details["date"])
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

type stubCounter struct {
	n   int64
	err error
}

func (s stubCounter) Count(context.Context) (int64, error) { return s.n, s.err }

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ping       error
		count      error
		wantStatus int
	}{
		{"ready", nil, nil, http.StatusOK},
		{"database down", errors.New("refused"), nil, http.StatusServiceUnavailable},
		{"not migrated", nil, errors.New("no such table"), http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(stubPinger{tc.ping}, stubCounter{n: 3, err: tc.count})
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
