package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
	"github.com/josh-kwaku/folio-ledger/internal/portfolio"
	"github.com/josh-kwaku/folio-ledger/internal/review"
)

type reportService interface {
	Holdings(ctx context.Context, asOf time.Time) (*portfolio.Holdings, error)
	Performance(ctx context.Context, asOf time.Time) (*portfolio.Performance, error)
	Realized(ctx context.Context, asOf time.Time) (*portfolio.RealizedReport, error)
	Income(ctx context.Context, asOf time.Time) (*portfolio.IncomeReport, error)
	Gaps(ctx context.Context, asOf time.Time) (*portfolio.GapReport, error)
}

type stagingService interface {
	Pending(ctx context.Context) (*review.Pending, error)
}

// ReportHandler serves the read-only views. Writes stay with the CLI.
type ReportHandler struct {
	reports reportService
	staging stagingService
	now     func() time.Time
}

func NewReportHandler(reports reportService, staging stagingService) *ReportHandler {
	return &ReportHandler{reports: reports, staging: staging, now: time.Now}
}

// asOf reads the optional as_of query parameter, defaulting to today.
func (h *ReportHandler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return domain.Day(h.now()), true
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "as_of", Message: "must be YYYY-MM-DD"}})
		return time.Time{}, false
	}
	return d, true
}

func (h *ReportHandler) Staging(w http.ResponseWriter, r *http.Request) {
	p, err := h.staging.Pending(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list staging", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toStagingDTO(p))
}

func (h *ReportHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	res, err := h.reports.Holdings(r.Context(), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build holdings", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toHoldingsDTO(res))
}

func (h *ReportHandler) Performance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	res, err := h.reports.Performance(r.Context(), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build performance", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toPerformanceDTO(res))
}

func (h *ReportHandler) Realized(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	res, err := h.reports.Realized(r.Context(), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build realized gains", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toRealizedDTO(res))
}

func (h *ReportHandler) Income(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	res, err := h.reports.Income(r.Context(), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build income", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, toIncomeDTO(res))
}

func (h *ReportHandler) Gaps(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	res, err := h.reports.Gaps(r.Context(), asOf)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to build gap report", "error", err)
		RespondDomainError(w, err)
		return
	}
	RespondSuccess(w, http.StatusOK, map[string]any{
		"as_of": domain.FormatDate(res.AsOf),
		"gaps":  toGapDTOs(res.Gaps),
	})
}
