package domain

import (
	"strings"
	"time"
)

type TxType string

const (
	TxTypeBuy              TxType = "BUY"
	TxTypeSell             TxType = "SELL"
	TxTypeDividend         TxType = "DIVIDEND"
	TxTypeDeposit          TxType = "DEPOSIT"
	TxTypeWithdrawal       TxType = "WITHDRAWAL"
	TxTypeInterest         TxType = "INTEREST"
	TxTypeFee              TxType = "FEE"
	TxTypeTax              TxType = "TAX"
	TxTypeCorporateAction  TxType = "CORPORATE_ACTION"
	TxTypeTransferIn       TxType = "TRANSFER_IN"
	TxTypeTransferOut      TxType = "TRANSFER_OUT"
	TxTypeCurrencyExchange TxType = "CURRENCY_EXCHANGE"
	TxTypeAdjustment       TxType = "ADJUSTMENT"
	TxTypeOther            TxType = "OTHER"
)

var validTxTypes = map[TxType]bool{
	TxTypeBuy: true, TxTypeSell: true, TxTypeDividend: true, TxTypeDeposit: true,
	TxTypeWithdrawal: true, TxTypeInterest: true, TxTypeFee: true, TxTypeTax: true,
	TxTypeCorporateAction: true, TxTypeTransferIn: true, TxTypeTransferOut: true,
	TxTypeCurrencyExchange: true, TxTypeAdjustment: true, TxTypeOther: true,
}

func (t TxType) IsValid() bool {
	return validTxTypes[t]
}

// AffectsPosition reports whether the type changes units held.
func (t TxType) AffectsPosition() bool {
	return t == TxTypeBuy || t == TxTypeSell || t == TxTypeCorporateAction
}

// Record is the standard transaction record every parser and the manual
// entry path produce.
type Record struct {
	ExternalID        string
	AccountExternalID string
	ISIN              string
	Symbol            string
	Date              time.Time
	Type              TxType
	Quantity          float64
	Price             float64
	Amount            float64
	Currency          string
	AmountLocal       float64
	ExchangeRate      float64
	Description       string
	SourceFile        string
	Fee               float64
	FeeCurrency       string
	FeeLocal          float64
	ParentExternalID  string
}

// InstrumentKey is the cross-broker identity of the record's instrument:
// ISIN when mapped, symbol otherwise. Empty for pure cash events.
func (r Record) InstrumentKey() string {
	if r.ISIN != "" {
		return strings.ToUpper(r.ISIN)
	}
	return strings.ToUpper(r.Symbol)
}

type StagedTransaction struct {
	ID int64
	Record
	BatchID     string
	Fingerprint string
}

// Transaction is a committed ledger row. Rows are never updated.
type Transaction struct {
	ID int64
	Record
	AccountID    int64
	InstrumentID *int64
	BatchID      string
	Fingerprint  string
}

func (t Transaction) HasInstrument() bool {
	return t.InstrumentID != nil
}

// Before orders transactions by date, then by ledger insertion order.
func (t Transaction) Before(o Transaction) bool {
	if !t.Date.Equal(o.Date) {
		return t.Date.Before(o.Date)
	}
	return t.ID < o.ID
}
