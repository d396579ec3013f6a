package ingest_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/backup"
	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/dedup"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/ingest"
	"github.com/josh-kwaku/folio-ledger/internal/parser"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
	"github.com/josh-kwaku/folio-ledger/internal/review"
	"github.com/josh-kwaku/folio-ledger/internal/testutil"
)

const standardHeader = "external_id,account_external_id,isin,symbol,date,type,quantity,price,amount,currency,amount_local,exchange_rate,description,source_file,fee,fee_currency,fee_local"

var exportRows = []string{
	"e1,9017671,US0378331005,AAPL,2024-01-15,BUY,10,150,-1501,USD,-15760.5,10.5,,,1,USD,10.5",
	"e2,9017671,,,2024-01-14,DEPOSIT,0,0,20000,NOK,20000,1,,,0,NOK,0",
	"e3,9017671,,AAPL,2024-01-16,GIFT,1,150,-150,USD,-1575,10.5,,,0,USD,0",
	"e4,9017671,US0378331005,AAPL,2024-02-15,SELL,-4,160,639,USD,6709.5,10.5,,,1,USD,10.5",
	"e5,9017671,US0378331005,AAPL,2024-02-15,SELL,-4,160,639,USD,6709.5,10.5,second fill,,1,USD,10.5",
}

type harness struct {
	db     *repository.DB
	cfg    *config.Config
	ingest *ingest.Service
	review *review.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	root := t.TempDir()
	cfg := &config.Config{
		BaseCurrency: "NOK",
		RawDir:       filepath.Join(root, "raw"),
		ArchiveDir:   filepath.Join(root, "archive"),
		Taxonomy:     config.DefaultTaxonomy(),
	}

	ledger := repository.NewLedgerRepository(db)
	staging := repository.NewStagingRepository(db)
	return &harness{
		db:  db,
		cfg: cfg,
		ingest: ingest.NewService(
			db,
			parser.DefaultRegistry(cfg.BaseCurrency),
			dedup.NewChecker(ledger),
			staging,
			repository.NewBatchRepository(db),
			cfg,
		),
		review: review.NewService(
			db,
			backup.New(db, filepath.Join(root, "backups")),
			staging,
			ledger,
			repository.NewAccountRepository(db),
			repository.NewInstrumentRepository(db),
			cfg.BaseCurrency,
		),
	}
}

func (h *harness) drop(t *testing.T, source, name string, lines ...string) string {
	t.Helper()
	dir := filepath.Join(h.cfg.RawDir, source)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	return path
}

func TestRun_StagesValidFreshRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	path := h.drop(t, "standard", "export.csv", append([]string{standardHeader}, exportRows...)...)
	h.drop(t, "saxo", "ignored.csv", standardHeader)

	res, err := h.ingest.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 5, res.Parsed)
	assert.Equal(t, 1, res.Invalid, "GIFT is not a known type")
	assert.Equal(t, 1, res.InBatchRepeats, "e5 collides with e4")
	assert.Equal(t, 3, res.Staged)
	assert.True(t, strings.HasPrefix(res.BatchID, "file_import_"), res.BatchID)

	pending, err := h.review.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending.Rows, 3)
	assert.Equal(t, "e1", pending.Rows[0].ExternalID)
	assert.Equal(t, res.BatchID, pending.Rows[0].BatchID)
	assert.Equal(t, dedup.Fingerprint(pending.Rows[0].Record), pending.Rows[0].Fingerprint)

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "imported file leaves the raw directory")
	_, err = os.Stat(filepath.Join(h.cfg.ArchiveDir, "standard", "export.csv"))
	assert.NoError(t, err)

	_, err = os.Stat(filepath.Join(h.cfg.RawDir, "saxo", "ignored.csv"))
	assert.NoError(t, err, "files of unknown sources stay put")
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	lines := append([]string{standardHeader}, exportRows...)

	h.drop(t, "standard", "export.csv", lines...)
	first, err := h.ingest.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, first.Staged)

	_, err = h.review.Commit(ctx)
	require.NoError(t, err)
	ledgerAfterFirst, err := repository.NewLedgerRepository(h.db).All(ctx)
	require.NoError(t, err)

	h.drop(t, "standard", "export.csv", lines...)
	second, err := h.ingest.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Staged)
	assert.Equal(t, 4, second.Duplicates, "e5 now matches the committed e4")
	assert.Empty(t, second.BatchID, "no batch is issued for an all-duplicate import")
	assert.Equal(t, 0, testutil.CountRows(t, h.db, "transactions_staging"))

	_, err = h.review.Commit(ctx)
	require.ErrorIs(t, err, domain.ErrNothingStaged)

	ledgerAfterSecond, err := repository.NewLedgerRepository(h.db).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledgerAfterFirst, ledgerAfterSecond)

	entries, err := os.ReadDir(filepath.Join(h.cfg.ArchiveDir, "standard"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "second copy archived beside the first")
}

func TestRun_NoRawDir(t *testing.T) {
	h := newHarness(t)

	res, err := h.ingest.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Files)
	assert.Equal(t, 0, res.Staged)
}

func TestRun_BatchIDsNeverReused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.drop(t, "standard", "a.csv", standardHeader, exportRows[0])
	first, err := h.ingest.Run(ctx)
	require.NoError(t, err)

	h.drop(t, "standard", "b.csv", standardHeader, exportRows[1])
	second, err := h.ingest.Run(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestStageManual(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rec := testutil.NewRecord("9017671", "EQNR", "2024-03-01", -2500)
	rec.ExternalID = ""
	rec.SourceFile = ""

	res, err := h.ingest.StageManual(ctx, rec)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.True(t, strings.HasPrefix(res.BatchID, "manual_"), res.BatchID)
	assert.NotEmpty(t, res.Record.ExternalID)
	assert.Equal(t, "manual", res.Record.SourceFile)

	_, err = h.review.Commit(ctx)
	require.NoError(t, err)

	again, err := h.ingest.StageManual(ctx, rec)
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Empty(t, again.BatchID)
	assert.Equal(t, 0, testutil.CountRows(t, h.db, "transactions_staging"))

	bad := rec
	bad.Currency = "NOPE"
	_, err = h.ingest.StageManual(ctx, bad)
	require.ErrorIs(t, err, domain.ErrInvalidCurrency)
}

func TestStaging_WaitsForTheLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	path := h.drop(t, "standard", "export.csv", append([]string{standardHeader}, exportRows...)...)
	rec := testutil.NewRecord("9017671", "EQNR", "2024-03-01", -2500)

	release, err := h.db.Lock(ctx)
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{"manual entry", func() error { _, err := h.ingest.StageManual(ctx, rec); return err }},
		{"file import", func() error { _, err := h.ingest.Run(ctx); return err }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, tc.run(), domain.ErrLockHeld)
		})
	}
	assert.Equal(t, 0, testutil.CountRows(t, h.db, "transactions_staging"))
	assert.FileExists(t, path, "raw file stays put")

	release()

	res, err := h.ingest.StageManual(ctx, rec)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, testutil.CountRows(t, h.db, "transactions_staging"))
}
