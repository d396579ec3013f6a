// Package backup takes verified point-in-time copies of the ledger store.
// A backup that cannot be verified is reported as domain.ErrBackupFailed.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
)

const timestampLayout = "20060102_150405"

var labelSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

type Backuper interface {
	Create(ctx context.Context, label string) (*domain.Backup, error)
}

// New picks the mechanism for the store's dialect.
func New(db *repository.DB, dir string) Backuper {
	if db.Dialect() == repository.DialectPostgres {
		return NewSnapshotBackup(db)
	}
	return NewFileBackup(db, dir)
}

func cleanLabel(label string) string {
	l := labelSanitizer.ReplaceAllString(strings.ToLower(label), "_")
	if l == "" {
		return "manual"
	}
	return l
}

func ledgerCount(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// FileBackup writes a SQLite copy with VACUUM INTO and verifies it by
// integrity check and ledger row count.
type FileBackup struct {
	db  *repository.DB
	dir string
	now func() time.Time
}

func NewFileBackup(db *repository.DB, dir string) *FileBackup {
	return &FileBackup{db: db, dir: dir, now: time.Now}
}

func (b *FileBackup) Create(ctx context.Context, label string) (*domain.Backup, error) {
	log := logging.FromContext(ctx)
	at := b.now()

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("Create: mkdir: %v: %w", err, domain.ErrBackupFailed)
	}

	want, err := ledgerCount(ctx, b.db.Conn())
	if err != nil {
		return nil, fmt.Errorf("Create: count source: %v: %w", err, domain.ErrBackupFailed)
	}

	base := fmt.Sprintf("portfolio_%s_%s", cleanLabel(label), at.Format(timestampLayout))
	path := filepath.Join(b.dir, base+".db.bak")
	for i := 2; fileExists(path); i++ {
		path = filepath.Join(b.dir, fmt.Sprintf("%s_%d.db.bak", base, i))
	}

	quoted := "'" + strings.ReplaceAll(path, "'", "''") + "'"
	if _, err := b.db.Conn().ExecContext(ctx, `VACUUM INTO `+quoted); err != nil {
		return nil, fmt.Errorf("Create: vacuum into: %v: %w", err, domain.ErrBackupFailed)
	}

	if err := verifyFile(ctx, path, want); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("Create: verify %s: %v: %w", path, err, domain.ErrBackupFailed)
	}

	log.Info("backup created", "label", label, "backup_path", path, "ledger_rows", want)
	return &domain.Backup{Label: label, Location: path, CreatedAt: at, Rows: want}, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func verifyFile(ctx context.Context, path string, wantRows int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("empty file")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}

	got, err := ledgerCount(ctx, db)
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	if got != wantRows {
		return fmt.Errorf("ledger rows: got %d, want %d", got, wantRows)
	}
	return nil
}

// SnapshotBackup copies the ledger into a timestamped table on the same
// Postgres server and verifies the row count. Server-level backups are left
// to the hosting provider.
type SnapshotBackup struct {
	db  *repository.DB
	now func() time.Time
}

func NewSnapshotBackup(db *repository.DB) *SnapshotBackup {
	return &SnapshotBackup{db: db, now: time.Now}
}

func (b *SnapshotBackup) Create(ctx context.Context, label string) (*domain.Backup, error) {
	log := logging.FromContext(ctx)
	at := b.now()
	base := fmt.Sprintf("ledger_backup_%s_%s", cleanLabel(label), at.Format(timestampLayout))

	want, err := ledgerCount(ctx, b.db.Conn())
	if err != nil {
		return nil, fmt.Errorf("Create: count source: %v: %w", err, domain.ErrBackupFailed)
	}

	table := base
	for i := 2; ; i++ {
		var exists bool
		if err := b.db.Conn().QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&exists); err != nil {
			return nil, fmt.Errorf("Create: probe %s: %v: %w", table, err, domain.ErrBackupFailed)
		}
		if !exists {
			break
		}
		table = fmt.Sprintf("%s_%d", base, i)
	}

	if _, err := b.db.Conn().ExecContext(ctx, `CREATE TABLE `+table+` AS SELECT * FROM transactions`); err != nil {
		return nil, fmt.Errorf("Create: snapshot: %v: %w", err, domain.ErrBackupFailed)
	}

	var got int64
	if err := b.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&got); err != nil {
		return nil, fmt.Errorf("Create: verify: %v: %w", err, domain.ErrBackupFailed)
	}
	if got != want {
		return nil, fmt.Errorf("Create: verify %s: got %d rows, want %d: %w", table, got, want, domain.ErrBackupFailed)
	}

	log.Info("backup created", "label", label, "backup_table", table, "ledger_rows", want)
	return &domain.Backup{Label: label, Location: table, CreatedAt: at, Rows: want}, nil
}
