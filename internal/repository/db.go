package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DB is the ledger store handle. Queries are written with ? placeholders and
// rebound for the active dialect.
type DB struct {
	pool    *sql.DB
	dialect Dialect
	path    string
}

func NewDB(pool *sql.DB, dialect Dialect) *DB {
	return &DB{pool: pool, dialect: dialect}
}

func (d *DB) Conn() *sql.DB {
	return d.pool
}

func (d *DB) Dialect() Dialect {
	return d.dialect
}

// Path is the SQLite database file, empty for Postgres or in-memory stores.
func (d *DB) Path() string {
	return d.path
}

func (d *DB) Close() error {
	return d.pool.Close()
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("BeginTx: %w", err)
	}
	return tx, nil
}

func (d *DB) Rebind(query string) string {
	if d.dialect != DialectPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type PoolConfig struct {
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetimeS int
	ConnMaxIdleTimeS int
}

// Open connects to the configured backend and pings it.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*DB, error) {
	switch driver {
	case "sqlite":
		return NewSQLiteDB(ctx, dsn)
	case "postgres":
		return NewPostgresDB(ctx, dsn, pool)
	default:
		return nil, fmt.Errorf("Open: unsupported driver %q", driver)
	}
}

// dateValue scans DATE columns from Postgres and TEXT columns from SQLite.
type dateValue struct {
	t time.Time
}

func (v *dateValue) Scan(src any) error {
	switch s := src.(type) {
	case time.Time:
		v.t = domain.Day(s)
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	case nil:
		v.t = time.Time{}
		return nil
	default:
		return fmt.Errorf("dateValue: unsupported type %T", src)
	}
}

func (v *dateValue) parse(s string) error {
	if len(s) > len(domain.DateLayout) {
		s = s[:len(domain.DateLayout)]
	}
	t, err := domain.ParseDate(s)
	if err != nil {
		return err
	}
	v.t = t
	return nil
}
