package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
	"github.com/josh-kwaku/folio-ledger/internal/testutil"
)

func appendAll(t *testing.T, db *repository.DB, txs ...*domain.Transaction) {
	t.Helper()
	ctx := context.Background()
	ledger := repository.NewLedgerRepository(db)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()
	for _, l := range txs {
		require.NoError(t, ledger.Append(ctx, tx, l))
	}
	require.NoError(t, tx.Commit())
}

func ledgerRow(accountID int64, extID, date, batchID, fingerprint string) *domain.Transaction {
	rec := testutil.NewRecord("9017671", "", date, 100)
	rec.ExternalID = extID
	rec.Type = domain.TxTypeDeposit
	rec.Quantity = 0
	return &domain.Transaction{Record: rec, AccountID: accountID, BatchID: batchID, Fingerprint: fingerprint}
}

func TestLedger_ReplayOrder(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *repository.DB) {
		ctx := context.Background()
		acct := testutil.SeedAccount(t, db, "9017671", "NOK")
		ledger := repository.NewLedgerRepository(db)

		appendAll(t, db,
			ledgerRow(acct.ID, "a", "2024-03-01", "b1", "h-a"),
			ledgerRow(acct.ID, "b", "2024-01-01", "b1", "h-b"),
			ledgerRow(acct.ID, "c", "2024-03-01", "b2", "h-c"),
		)

		all, err := ledger.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"b", "a", "c"}, []string{all[0].ExternalID, all[1].ExternalID, all[2].ExternalID})
		assert.Equal(t, "9017671", all[0].AccountExternalID)
		assert.Nil(t, all[0].InstrumentID)
		assert.Equal(t, domain.MustDate("2024-01-01"), all[0].Date)
		for i := 1; i < len(all); i++ {
			assert.True(t, all[i-1].Before(all[i]))
		}

		found, err := ledger.HasFingerprint(ctx, "h-b")
		require.NoError(t, err)
		assert.True(t, found)
		found, err = ledger.HasFingerprint(ctx, "h-z")
		require.NoError(t, err)
		assert.False(t, found)

		batch, err := ledger.ByBatch(ctx, "b1")
		require.NoError(t, err)
		assert.Len(t, batch, 2)

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		n, err := ledger.DeleteBatch(ctx, tx, "b1")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		assert.Equal(t, int64(2), n)

		count, err := ledger.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestStaging_InsertionOrderAndClear(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *repository.DB) {
		ctx := context.Background()
		staging := repository.NewStagingRepository(db)
		fp := func(r domain.Record) string { return "fp-" + r.ExternalID }

		first := testutil.NewRecord("9017671", "AAPL", "2024-02-01", -100)
		second := testutil.NewRecord("9017671", "AAPL", "2024-01-01", -100)
		testutil.StageRecords(t, db, "file_import_1", []domain.Record{first, second}, fp)
		testutil.StageRecords(t, db, "manual_1", []domain.Record{first}, fp)

		pending, err := staging.ListPending(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 3, "staging never rejects duplicates")
		assert.Equal(t, first.ExternalID, pending[0].ExternalID, "insertion order, not date order")
		assert.Equal(t, second.ExternalID, pending[1].ExternalID)
		assert.Equal(t, "fp-"+first.ExternalID, pending[0].Fingerprint)

		batches, err := staging.Batches(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.BatchSummary{
			{BatchID: "file_import_1", Rows: 2},
			{BatchID: "manual_1", Rows: 1},
		}, batches)

		n, err := staging.Clear(ctx, "file_import_1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = staging.ClearAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 0, testutil.CountRows(t, db, "transactions_staging"))
	})
}

func TestBatch_RegisterNeverReuses(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	batches := repository.NewBatchRepository(db)

	require.NoError(t, batches.Register(ctx, "manual_20240101_120000", "manual"))
	err := batches.Register(ctx, "manual_20240101_120000", "manual")
	require.ErrorIs(t, err, domain.ErrBatchExists)

	ok, err := batches.Exists(ctx, "manual_20240101_120000")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInstrument_EnsureByISINThenSymbol(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	instruments := repository.NewInstrumentRepository(db)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	rec := testutil.NewRecord("9017671", "AAPL", "2024-01-01", -100)
	rec.ISIN = "us0378331005"
	id, created, err := instruments.EnsureTx(ctx, tx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	rec.Symbol = "APPLE INC"
	again, created, err := instruments.EnsureTx(ctx, tx, rec)
	require.NoError(t, err)
	assert.False(t, created, "ISIN wins over a differing symbol")
	assert.Equal(t, id, again)

	cash := testutil.NewRecord("9017671", "", "2024-01-01", 100)
	none, created, err := instruments.EnsureTx(ctx, tx, cash)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, none)
	require.NoError(t, tx.Commit())

	unmapped, err := instruments.WithoutSymbol(ctx)
	require.NoError(t, err)
	assert.Empty(t, unmapped)
}

func TestMarket_AtOrBefore(t *testing.T) {
	testutil.ForEachBackend(t, func(t *testing.T, db *repository.DB) {
		ctx := context.Background()
		market := repository.NewMarketRepository(db)

		added, err := market.SavePrice(ctx, domain.PricePoint{Symbol: "eqnr", Date: domain.MustDate("2024-01-02"), Close: 300, Currency: "NOK", Source: "test"})
		require.NoError(t, err)
		assert.True(t, added)
		added, err = market.SavePrice(ctx, domain.PricePoint{Symbol: "EQNR", Date: domain.MustDate("2024-01-02"), Close: 999, Currency: "NOK", Source: "test"})
		require.NoError(t, err)
		assert.False(t, added, "points are append-only")

		p, err := market.PriceAtOrBefore(ctx, "EQNR", domain.MustDate("2024-01-10"))
		require.NoError(t, err)
		assert.Equal(t, 300.0, p.Close)
		assert.Equal(t, domain.MustDate("2024-01-02"), p.Date)

		_, err = market.PriceAtOrBefore(ctx, "EQNR", domain.MustDate("2024-01-01"))
		require.ErrorIs(t, err, domain.ErrNotFound)

		_, err = market.SaveFxRate(ctx, domain.FxRatePoint{From: "USD", To: "NOK", Date: domain.MustDate("2024-01-01"), Rate: 10.5})
		require.NoError(t, err)
		fx, err := market.FxRateAtOrBefore(ctx, "USD", "NOK", domain.MustDate("2024-06-01"))
		require.NoError(t, err)
		assert.Equal(t, 10.5, fx.Rate)

		latest, err := market.LatestPriceDates(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.MustDate("2024-01-02"), latest["EQNR"])
	})
}

func TestLock_Exclusive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	release, err := db.Lock(ctx)
	require.NoError(t, err)

	_, err = db.Lock(ctx)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	release()
	release()

	again, err := db.Lock(ctx)
	require.NoError(t, err)
	again()
}

func TestRebind(t *testing.T) {
	pg := repository.NewDB(nil, repository.DialectPostgres)
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = '?' AND c = $2`,
		pg.Rebind(`SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?`))

	lite := repository.NewDB(nil, repository.DialectSQLite)
	assert.Equal(t, `SELECT ?`, lite.Rebind(`SELECT ?`))
}
