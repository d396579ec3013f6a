package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidCurrency = &AppError{http.StatusBadRequest, "INVALID_CURRENCY", "Invalid currency"}
	ErrInvalidDate     = &AppError{http.StatusBadRequest, "INVALID_DATE", "Dates must be YYYY-MM-DD"}
	ErrLedgerLocked    = &AppError{http.StatusConflict, "LEDGER_LOCKED", "The ledger is locked by another operation, retry later"}
	ErrNothingStaged   = &AppError{http.StatusConflict, "NOTHING_STAGED", "Nothing is staged"}
	ErrDataIntegrity   = &AppError{http.StatusUnprocessableEntity, "DATA_INTEGRITY", "The ledger cannot be replayed"}
	ErrMalformedSplit  = &AppError{http.StatusUnprocessableEntity, "MALFORMED_SPLIT", "A corporate action in the ledger is malformed"}
	ErrPriceGap        = &AppError{http.StatusUnprocessableEntity, "PRICE_GAP", "Market data is missing"}
	ErrBackupFailed    = &AppError{http.StatusInternalServerError, "BACKUP_FAILED", "Backup failed, nothing was changed"}
)
