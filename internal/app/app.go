// Package app wires configuration, storage and services for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/backup"
	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/dedup"
	"github.com/josh-kwaku/folio-ledger/internal/ingest"
	"github.com/josh-kwaku/folio-ledger/internal/marketdata"
	"github.com/josh-kwaku/folio-ledger/internal/parser"
	"github.com/josh-kwaku/folio-ledger/internal/portfolio"
	"github.com/josh-kwaku/folio-ledger/internal/repository"
	"github.com/josh-kwaku/folio-ledger/internal/review"
)

const connectAttempts = 30

type App struct {
	Config *config.Config
	DB     *repository.DB

	Ledger      *repository.LedgerRepository
	Staging     *repository.StagingRepository
	Accounts    *repository.AccountRepository
	Instruments *repository.InstrumentRepository
	Market      *repository.MarketRepository

	Ingest    *ingest.Service
	Review    *review.Service
	Portfolio *portfolio.Service
	Snapshot  *marketdata.Snapshot
	Refresher *marketdata.Refresher
}

// New connects to the configured store and builds every service on top of
// it. Close the returned App when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := connectDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:      cfg,
		DB:          db,
		Ledger:      repository.NewLedgerRepository(db),
		Staging:     repository.NewStagingRepository(db),
		Accounts:    repository.NewAccountRepository(db),
		Instruments: repository.NewInstrumentRepository(db),
		Market:      repository.NewMarketRepository(db),
	}

	a.Ingest = ingest.NewService(
		db,
		parser.DefaultRegistry(cfg.BaseCurrency),
		dedup.NewChecker(a.Ledger),
		a.Staging,
		repository.NewBatchRepository(db),
		cfg,
	)
	a.Review = review.NewService(
		db,
		backup.New(db, cfg.BackupDir),
		a.Staging,
		a.Ledger,
		a.Accounts,
		a.Instruments,
		cfg.BaseCurrency,
	)
	a.Snapshot = marketdata.NewSnapshot(a.Market, time.Duration(cfg.PriceCacheTTLS)*time.Second)
	a.Portfolio = portfolio.NewService(a.Ledger, a.Instruments, a.Snapshot, a.Market, cfg)

	client := marketdata.NewClient(cfg.MarketDataURL, cfg.MarketDataAPIKey,
		marketdata.WithRateLimit(cfg.MarketDataRPS),
		marketdata.WithTimeout(time.Duration(cfg.MarketDataTimeoutS)*time.Second),
	)
	a.Refresher = marketdata.NewRefresher(client, a.Market, "provider")

	return a, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// connectDB retries until the database answers, for containers that start
// before their database.
func connectDB(ctx context.Context, cfg *config.Config) (*repository.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range connectAttempts {
		var db *repository.DB
		if db, err = repository.Open(ctx, cfg.DBDriver, cfg.DatabaseURL, pool); err == nil {
			return db, nil
		}
		if cfg.DBDriver == "sqlite" {
			break
		}
		slog.Info("waiting for database", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connectDB: %w", ctx.Err())
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: %w", err)
}
