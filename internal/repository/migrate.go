package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate applies every *.up.sql for the active dialect that has not been
// recorded in schema_migrations yet.
func (d *DB) Migrate(ctx context.Context) error {
	log := logging.FromContext(ctx)

	if _, err := d.pool.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)`,
	); err != nil {
		return fmt.Errorf("Migrate: bootstrap: %w", err)
	}

	dir := path.Join("migrations", d.dialect.String())
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("Migrate: read %s: %w", dir, err)
	}

	var upFiles []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			upFiles = append(upFiles, e.Name())
		}
	}
	sort.Strings(upFiles)

	for _, f := range upFiles {
		version := strings.TrimSuffix(f, ".up.sql")

		var n int
		if err := d.pool.QueryRowContext(ctx,
			d.Rebind(`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`), version,
		).Scan(&n); err != nil {
			return fmt.Errorf("Migrate: check %s: %w", version, err)
		}
		if n > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, path.Join(dir, f))
		if err != nil {
			return fmt.Errorf("Migrate: read %s: %w", f, err)
		}

		tx, err := d.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("Migrate: %w", err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("Migrate: execute %s: %w", f, err)
		}
		if _, err := tx.ExecContext(ctx,
			d.Rebind(`INSERT INTO schema_migrations (version) VALUES (?)`), version,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("Migrate: record %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("Migrate: commit %s: %w", f, err)
		}

		log.Info("migration applied", "version", version, "dialect", d.dialect.String())
	}

	return nil
}
