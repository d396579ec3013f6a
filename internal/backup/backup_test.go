package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/folio-ledger/internal/backup"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
	"github.com/josh-kwaku/folio-ledger/internal/testutil"
)

func seedLedgerRow(t *testing.T, db *repository.DB) {
	t.Helper()
	ctx := context.Background()
	acct := testutil.SeedAccount(t, db, "acc-"+time.Now().Format("150405.000000000"), "NOK")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer tx.Rollback()

	rec := testutil.NewRecord(acct.ExternalID, "", "2024-01-02", 1000)
	rec.Type = domain.TxTypeDeposit
	row := &domain.Transaction{Record: rec, AccountID: acct.ID, BatchID: "manual_20240102_000000", Fingerprint: "0123456789abcdef0123456789abcdef"}
	require.NoError(t, repository.NewLedgerRepository(db).Append(ctx, tx, row))
	require.NoError(t, tx.Commit())
}

func TestFileBackup_CreatesVerifiedCopy(t *testing.T) {
	db := testutil.SetupTestDB(t)
	seedLedgerRow(t, db)
	dir := filepath.Join(t.TempDir(), "backups")

	b, err := backup.New(db, dir).Create(context.Background(), "before_commit")
	require.NoError(t, err)

	assert.Equal(t, int64(1), b.Rows)
	assert.Contains(t, filepath.Base(b.Location), "portfolio_before_commit_")
	info, err := os.Stat(b.Location)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestFileBackup_SameSecondGetsDistinctFiles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	dir := t.TempDir()
	b := backup.NewFileBackup(db, dir)

	first, err := b.Create(context.Background(), "before_commit")
	require.NoError(t, err)
	second, err := b.Create(context.Background(), "before_commit")
	require.NoError(t, err)

	assert.NotEqual(t, first.Location, second.Location)
}

func TestFileBackup_UnwritableDirFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := backup.NewFileBackup(db, filepath.Join(blocker, "backups")).Create(context.Background(), "before_commit")
	require.ErrorIs(t, err, domain.ErrBackupFailed)
}

func TestSnapshotBackup_Postgres(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	seedLedgerRow(t, db)

	bk := backup.New(db, "")
	first, err := bk.Create(context.Background(), "before commit")
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Rows)
	assert.Contains(t, first.Location, "ledger_backup_before_commit_")

	second, err := bk.Create(context.Background(), "before commit")
	require.NoError(t, err)
	assert.NotEqual(t, first.Location, second.Location)

	var n int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM `+first.Location).Scan(&n))
	assert.Equal(t, 1, n)
}
