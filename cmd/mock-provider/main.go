// Command mock-provider serves deterministic daily closes and FX rates over
// the market data JSON API, for local runs and demos.
package main

import (
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

// Symbols listed here are answered with 404, to exercise gap reporting.
var unknownSymbols = map[string]bool{"DELISTED": true}

var baseRates = map[string]float64{
	"USD_NOK": 10.5,
	"EUR_NOK": 11.5,
	"SEK_NOK": 1.0,
	"DKK_NOK": 1.55,
	"GBP_NOK": 13.4,
	"HKD_NOK": 1.35,
}

func main() {
	logging.Init("mock-provider", "info", os.Getenv("APP_ENV"), os.Stdout)
	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /v1/prices/{symbol}", handlePrice)
	mux.HandleFunc("GET /v1/fx/{pair}", handleFx)

	slog.Info("mock provider started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	date, ok := parseDate(w, r)
	if !ok {
		return
	}
	if unknownSymbols[symbol] {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":   symbol,
		"date":     domain.FormatDate(date),
		"close":    price(symbol, date),
		"currency": "USD",
	})
}

func handleFx(w http.ResponseWriter, r *http.Request) {
	pair := strings.ToUpper(r.PathValue("pair"))
	date, ok := parseDate(w, r)
	if !ok {
		return
	}

	base, ok := baseRates[pair]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown pair"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pair": pair,
		"date": domain.FormatDate(date),
		"rate": round(base*(1+0.02*wave(pair, date)), 4),
	})
}

func parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return domain.Day(time.Now()), true
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return d, true
}

// price is a stable function of symbol and date: a per-symbol base level
// with a slow drift and a yearly wave.
func price(symbol string, date time.Time) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	level := 20 + float64(h.Sum32()%480)
	years := float64(date.Unix()) / (365 * 24 * 3600)
	drift := math.Pow(1.06, years-50)
	return round(level*drift*(1+0.1*wave(symbol, date)), 2)
}

func wave(key string, date time.Time) float64 {
	h := fnv.New32a()
	h.Write([]byte(key))
	phase := float64(h.Sum32()%365) / 365 * 2 * math.Pi
	return math.Sin(float64(date.YearDay())/365*2*math.Pi + phase)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

