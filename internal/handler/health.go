package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type ledgerCounter interface {
	Count(ctx context.Context) (int64, error)
}

type HealthHandler struct {
	db     pinger
	ledger ledgerCounter
}

func NewHealthHandler(db pinger, ledger ledgerCounter) *HealthHandler {
	return &HealthHandler{db: db, ledger: ledger}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness needs a reachable database with a migrated ledger table.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok", "ledger": "ok"}
	status := http.StatusOK
	var rows int64

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		checks["database"] = "down"
		checks["ledger"] = "unknown"
		status = http.StatusServiceUnavailable
	} else if n, err := h.ledger.Count(r.Context()); err != nil {
		slog.Warn("readiness check failed: ledger unreadable", "error", err)
		checks["ledger"] = "down"
		status = http.StatusServiceUnavailable
	} else {
		rows = n
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "down"
	}

	RespondJSON(w, status, map[string]any{
		"status":      overall,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"ledger_rows": rows,
		"checks":      checks,
	})
}
