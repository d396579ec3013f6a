package testutil

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
)

var extSeq atomic.Int64

// NewRecord builds a valid BUY record in NOK. Override fields on the result.
func NewRecord(account, symbol, date string, amount float64) domain.Record {
	return domain.Record{
		ExternalID:        fmt.Sprintf("ext-%d", extSeq.Add(1)),
		AccountExternalID: account,
		Symbol:            symbol,
		Date:              domain.MustDate(date),
		Type:              domain.TxTypeBuy,
		Quantity:          1,
		Price:             math.Abs(amount),
		Amount:            amount,
		Currency:          "NOK",
		AmountLocal:       amount,
		ExchangeRate:      1,
		FeeCurrency:       "NOK",
		SourceFile:        "fixture.csv",
	}
}

func SeedAccount(t *testing.T, db *repository.DB, externalID, currency string) *domain.Account {
	t.Helper()
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()

	a := &domain.Account{ExternalID: externalID, Name: "Account " + externalID, Broker: "test", Currency: currency}
	if err := repository.NewAccountRepository(db).Create(ctx, tx, a); err != nil {
		t.Fatalf("seed account %s: %v", externalID, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return a
}

// StageRecords stages recs under batchID with the given fingerprints.
func StageRecords(t *testing.T, db *repository.DB, batchID string, recs []domain.Record, fingerprint func(domain.Record) string) []domain.StagedTransaction {
	t.Helper()
	ctx := context.Background()
	repo := repository.NewStagingRepository(db)

	out := make([]domain.StagedTransaction, 0, len(recs))
	for _, rec := range recs {
		st := domain.StagedTransaction{Record: rec, BatchID: batchID, Fingerprint: fingerprint(rec)}
		if err := repo.Stage(ctx, &st); err != nil {
			t.Fatalf("stage %s: %v", rec.ExternalID, err)
		}
		out = append(out, st)
	}
	return out
}

func CountRows(t *testing.T, db *repository.DB, table string) int {
	t.Helper()
	var n int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
