package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

// advisoryLockKey identifies the ledger hold in pg_advisory_lock.
const advisoryLockKey int64 = 0x666f6c696f

var processLock sync.Mutex

// Lock takes the exclusive hold on the ledger and staging store. It fails
// fast with domain.ErrLockHeld when another process holds it. The returned
// release func is safe to call more than once.
func (d *DB) Lock(ctx context.Context) (func(), error) {
	if !processLock.TryLock() {
		return nil, fmt.Errorf("Lock: %w", domain.ErrLockHeld)
	}

	var release func()
	var err error
	switch d.dialect {
	case DialectPostgres:
		release, err = d.advisoryLock(ctx)
	default:
		release, err = fileLock(d.path)
	}
	if err != nil {
		processLock.Unlock()
		return nil, fmt.Errorf("Lock: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			processLock.Unlock()
		})
	}, nil
}

// advisoryLock holds a session lock on a dedicated connection. Postgres
// drops it if the session dies.
func (d *DB) advisoryLock(ctx context.Context) (func(), error) {
	conn, err := d.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("advisoryLock: conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("advisoryLock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, domain.ErrLockHeld
	}

	return func() {
		// Closing the connection also drops the lock if the unlock fails.
		conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
		conn.Close()
	}, nil
}
