package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// Validation: malformed parser or manual-entry output, never staged.
	ErrValidation      = errors.New("validation failed")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidDate     = errors.New("invalid date")
	ErrUnknownType     = errors.New("unknown transaction type")
	ErrUnknownSource   = errors.New("no parser registered for source")

	// Data integrity: halt the computation, report the offending record.
	ErrOversell       = errors.New("sell exceeds quantity held")
	ErrMalformedSplit = errors.New("malformed split event")
	ErrDivisionByZero = errors.New("division by zero quantity")
	ErrUnsorted       = errors.New("transactions not in replay order")

	// Infrastructure: fail closed.
	ErrBackupFailed  = errors.New("backup failed")
	ErrLockHeld      = errors.New("ledger is locked by another operation")
	ErrNothingStaged = errors.New("nothing staged")
	ErrNotFound      = errors.New("not found")
	ErrBatchExists   = errors.New("batch id already issued")

	ErrIndeterminate = errors.New("indeterminate: no converged rate")
	ErrPriceGap      = errors.New("no market data at or before date")
)

type ValidationError struct {
	Row        int
	ExternalID string
	Field      string
	Reason     string
	Err        error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d (external_id=%q): %s: %s", e.Row, e.ExternalID, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// DataIntegrityError identifies the ledger row a replay stopped on.
type DataIntegrityError struct {
	TxID       int64
	Account    string
	Instrument string
	Date       time.Time
	Detail     string
	Err        error
}

func (e *DataIntegrityError) Error() string {
	msg := fmt.Sprintf("transaction %d (account=%s instrument=%s date=%s): %v",
		e.TxID, e.Account, e.Instrument, FormatDate(e.Date), e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *DataIntegrityError) Unwrap() error { return e.Err }

type DataQualityError struct {
	Instrument string
	Date       time.Time
	TxIDs      []int64
	Reason     string
}

func (e *DataQualityError) Error() string {
	ids := make([]string, len(e.TxIDs))
	for i, id := range e.TxIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("split for instrument %s on %s (transactions %s): %s",
		e.Instrument, FormatDate(e.Date), strings.Join(ids, ","), e.Reason)
}

func (e *DataQualityError) Unwrap() error { return ErrMalformedSplit }

type PriceGapError struct {
	Symbol string
	Date   time.Time
}

func (e *PriceGapError) Error() string {
	return fmt.Sprintf("%s on %s: %v", e.Symbol, FormatDate(e.Date), ErrPriceGap)
}

func (e *PriceGapError) Unwrap() error { return ErrPriceGap }
