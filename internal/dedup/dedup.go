// Package dedup fingerprints incoming records and filters out those already
// present in the committed ledger.
package dedup

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

// Fingerprint hashes date|account|type|symbol|amount. Records that agree on
// those five fields are the same economic event, whatever else differs.
// Two genuinely separate but identical trades on one day collapse into one.
func Fingerprint(rec domain.Record) string {
	key := strings.Join([]string{
		domain.FormatDate(rec.Date),
		strings.TrimSpace(rec.AccountExternalID),
		strings.ToUpper(string(rec.Type)),
		strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		decimal.NewFromFloat(rec.Amount).StringFixed(2),
	}, "|")
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

type ledgerIndex interface {
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)
	Fingerprints(ctx context.Context) (map[string]struct{}, error)
}

type Checker struct {
	ledger ledgerIndex
}

func NewChecker(ledger ledgerIndex) *Checker {
	return &Checker{ledger: ledger}
}

// IsDuplicate reports whether rec's fingerprint is already committed.
// Staged rows are not consulted.
func (c *Checker) IsDuplicate(ctx context.Context, rec domain.Record) (bool, error) {
	found, err := c.ledger.HasFingerprint(ctx, Fingerprint(rec))
	if err != nil {
		return false, fmt.Errorf("IsDuplicate: %w", err)
	}
	return found, nil
}

type Candidate struct {
	domain.Record
	Fingerprint string
}

type Result struct {
	Fresh          []Candidate
	Duplicates     int
	InBatchRepeats int
}

// Filter drops records already in the ledger and repeats of a fingerprint
// earlier in the same input. Drops are logged, not returned as errors.
func (c *Checker) Filter(ctx context.Context, recs []domain.Record) (*Result, error) {
	log := logging.FromContext(ctx)

	committed, err := c.ledger.Fingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("Filter: %w", err)
	}

	res := &Result{}
	seen := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		fp := Fingerprint(rec)
		if _, ok := committed[fp]; ok {
			res.Duplicates++
			log.Debug("duplicate skipped", "fingerprint", fp, "external_id", rec.ExternalID)
			continue
		}
		if _, ok := seen[fp]; ok {
			res.InBatchRepeats++
			log.Info("identical record in same import skipped",
				"fingerprint", fp,
				"external_id", rec.ExternalID,
				"date", domain.FormatDate(rec.Date),
				"symbol", rec.Symbol,
				"amount", rec.Amount,
			)
			continue
		}
		seen[fp] = struct{}{}
		res.Fresh = append(res.Fresh, Candidate{Record: rec, Fingerprint: fp})
	}
	return res, nil
}
