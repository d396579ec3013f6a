// Package parser maps broker export files onto the standard record. Each
// broker has one Parser; the Registry selects it by source key.
package parser

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

type Parser interface {
	Parse(ctx context.Context, path string) ([]domain.Record, error)
}

type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry holds every built-in parser keyed by its raw-data
// directory name.
func DefaultRegistry(baseCurrency string) *Registry {
	r := NewRegistry()
	r.Register("standard", NewStandardParser())
	r.Register("nordnet", NewNordnetParser(baseCurrency))
	return r
}

func (r *Registry) Register(source string, p Parser) {
	r.parsers[strings.ToLower(source)] = p
}

func (r *Registry) Get(source string) (Parser, error) {
	p, ok := r.parsers[strings.ToLower(source)]
	if !ok {
		return nil, fmt.Errorf("Get: %q: %w", source, domain.ErrUnknownSource)
	}
	return p, nil
}

func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// cleanNum parses broker-formatted numbers: "1 234,56", "-12.5", "" (zero).
func cleanNum(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cleanNum %q: %w", s, err)
	}
	return v, nil
}

// headerIndex maps column names to positions. Repeated names get .1, .2
// suffixes in order of appearance.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		name := h
		if n := seen[h]; n > 0 {
			name = fmt.Sprintf("%s.%d", h, n)
		}
		seen[h]++
		idx[name] = i
	}
	return idx
}

type row struct {
	cols []string
	idx  map[string]int
}

func (r row) get(name string) string {
	i, ok := r.idx[name]
	if !ok || i >= len(r.cols) {
		return ""
	}
	return strings.TrimSpace(r.cols[i])
}

func (r row) num(name string) (float64, error) {
	v, err := cleanNum(r.get(name))
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", name, err)
	}
	return v, nil
}
