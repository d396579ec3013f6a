package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

// StandardParser reads CSV files whose header row uses the standard record
// field names. It is the format of manual exports and re-imports.
type StandardParser struct{}

func NewStandardParser() *StandardParser {
	return &StandardParser{}
}

func (p *StandardParser) Parse(ctx context.Context, path string) ([]domain.Record, error) {
	log := logging.FromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("StandardParser.Parse: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("StandardParser.Parse: header: %w", err)
	}
	idx := headerIndex(lower(header))

	var out []domain.Record
	line := 1
	for {
		cols, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			log.Warn("unreadable csv row skipped", "file", path, "line", line, "error", err)
			continue
		}

		rec, err := standardRecord(row{cols: cols, idx: idx})
		if err != nil {
			log.Warn("csv row skipped", "file", path, "line", line, "error", err)
			continue
		}
		if rec.SourceFile == "" {
			rec.SourceFile = filepath.Base(path)
		}
		out = append(out, rec)
	}
	return out, nil
}

func standardRecord(r row) (domain.Record, error) {
	rec := domain.Record{
		ExternalID:        r.get("external_id"),
		AccountExternalID: r.get("account_external_id"),
		ISIN:              r.get("isin"),
		Symbol:            r.get("symbol"),
		Type:              domain.TxType(r.get("type")),
		Currency:          strings.ToUpper(r.get("currency")),
		Description:       r.get("description"),
		SourceFile:        r.get("source_file"),
		FeeCurrency:       strings.ToUpper(r.get("fee_currency")),
		ParentExternalID:  r.get("parent_external_id"),
	}

	if d := r.get("date"); d != "" {
		// A bad date leaves the zero value for validation to report.
		rec.Date, _ = domain.ParseDate(d)
	}

	fields := []struct {
		name string
		dst  *float64
	}{
		{"quantity", &rec.Quantity},
		{"price", &rec.Price},
		{"amount", &rec.Amount},
		{"amount_local", &rec.AmountLocal},
		{"exchange_rate", &rec.ExchangeRate},
		{"fee", &rec.Fee},
		{"fee_local", &rec.FeeLocal},
	}
	for _, f := range fields {
		v, err := r.num(f.name)
		if err != nil {
			return domain.Record{}, err
		}
		*f.dst = v
	}
	return rec, nil
}

func lower(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(strings.TrimSpace(s))
	}
	return out
}
