package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/app"
	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/handler"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
	"github.com/josh-kwaku/folio-ledger/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("folio-api", cfg.LogLevel, cfg.AppEnv, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	health := handler.NewHealthHandler(a.DB.Conn(), a.Ledger)
	reports := handler.NewReportHandler(a.Portfolio, a.Review)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Liveness)
	mux.HandleFunc("GET /health/ready", health.Readiness)
	mux.HandleFunc("GET /api/v1/staging", reports.Staging)
	mux.HandleFunc("GET /api/v1/holdings", reports.Holdings)
	mux.HandleFunc("GET /api/v1/performance", reports.Performance)
	mux.HandleFunc("GET /api/v1/realized", reports.Realized)
	mux.HandleFunc("GET /api/v1/income", reports.Income)
	mux.HandleFunc("GET /api/v1/gaps", reports.Gaps)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.Tracing(middleware.Logging(middleware.Recovery(mux))),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr, "db_driver", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
