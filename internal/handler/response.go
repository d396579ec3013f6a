package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type integrityDetails struct {
	TransactionID int64  `json:"transaction_id"`
	Account       string `json:"account"`
	Instrument    string `json:"instrument"`
	Date          string `json:"date"`
	Reason        string `json:"reason"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	var (
		appErr    *AppError
		details   any
		integrity *domain.DataIntegrityError
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInvalidCurrency):
		appErr = ErrInvalidCurrency
	case errors.Is(err, domain.ErrInvalidDate):
		appErr = ErrInvalidDate
	case errors.Is(err, domain.ErrValidation):
		appErr = ErrValidationFailed
	case errors.Is(err, domain.ErrLockHeld):
		appErr = ErrLedgerLocked
	case errors.Is(err, domain.ErrNothingStaged):
		appErr = ErrNothingStaged
	case errors.Is(err, domain.ErrBackupFailed):
		appErr = ErrBackupFailed
	case errors.Is(err, domain.ErrMalformedSplit):
		appErr = ErrMalformedSplit
		details = err.Error()
	case errors.As(err, &integrity):
		appErr = ErrDataIntegrity
		details = integrityDetails{
			TransactionID: integrity.TxID,
			Account:       integrity.Account,
			Instrument:    integrity.Instrument,
			Date:          domain.FormatDate(integrity.Date),
			Reason:        integrity.Error(),
		}
	case errors.Is(err, domain.ErrPriceGap):
		appErr = ErrPriceGap
		details = err.Error()
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, details)
}
