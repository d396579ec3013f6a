// Package ingest turns broker export files and manual entries into staged
// rows: parse, validate, drop duplicates, stage under a fresh batch id.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/dedup"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
	"github.com/josh-kwaku/folio-ledger/internal/parser"
)

const maxBatchIDAttempts = 5

type locker interface {
	Lock(ctx context.Context) (func(), error)
}

type parserRegistry interface {
	Get(source string) (parser.Parser, error)
}

type duplicateChecker interface {
	IsDuplicate(ctx context.Context, rec domain.Record) (bool, error)
	Filter(ctx context.Context, recs []domain.Record) (*dedup.Result, error)
}

type stagingRepo interface {
	StageBatch(ctx context.Context, rows []domain.StagedTransaction) error
}

type batchRepo interface {
	Register(ctx context.Context, batchID, source string) error
}

type Service struct {
	store     locker
	parsers   parserRegistry
	checker   duplicateChecker
	staging   stagingRepo
	batches   batchRepo
	validator *Validator
	config    *config.Config
	now       func() time.Time
}

func NewService(
	store locker,
	parsers parserRegistry,
	checker duplicateChecker,
	staging stagingRepo,
	batches batchRepo,
	cfg *config.Config,
) *Service {
	return &Service{
		store:     store,
		parsers:   parsers,
		checker:   checker,
		staging:   staging,
		batches:   batches,
		validator: NewValidator(cfg.BaseCurrency, cfg.Taxonomy),
		config:    cfg,
		now:       time.Now,
	}
}

type RunResult struct {
	BatchID        string
	Files          int
	Parsed         int
	Invalid        int
	Duplicates     int
	InBatchRepeats int
	Staged         int
}

type sourceFile struct {
	source string
	path   string
}

// Run imports every file under RawDir/<source>/ for each source with a
// registered parser. All fresh rows land in one file_import batch. Files
// are moved to ArchiveDir/<source>/ once their rows are staged. Rows that
// fail validation are logged and skipped. Run holds the store lock
// throughout and fails with domain.ErrLockHeld when another operation has it.
func (s *Service) Run(ctx context.Context) (*RunResult, error) {
	log := logging.FromContext(ctx)
	start := time.Now()

	release, err := s.store.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	defer release()

	files, err := s.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	res := &RunResult{}
	var (
		valid    []domain.Record
		imported []sourceFile
	)
	for _, f := range files {
		p, err := s.parsers.Get(f.source)
		if err != nil {
			return nil, fmt.Errorf("Run: %w", err)
		}

		recs, err := p.Parse(ctx, f.path)
		if err != nil {
			log.Error("file could not be parsed, left in place", "source", f.source, "file", f.path, "error", err)
			continue
		}
		res.Files++
		res.Parsed += len(recs)
		imported = append(imported, f)

		for i, rec := range recs {
			clean, err := s.validator.Validate(ctx, i+1, rec)
			if err != nil {
				res.Invalid++
				log.Warn("invalid row skipped", "source", f.source, "file", f.path, "error", err)
				continue
			}
			valid = append(valid, clean)
		}
	}

	filtered, err := s.checker.Filter(ctx, valid)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	res.Duplicates = filtered.Duplicates
	res.InBatchRepeats = filtered.InBatchRepeats

	if len(filtered.Fresh) > 0 {
		batchID, err := s.reserveBatch(ctx, domain.BatchSourceFileImport)
		if err != nil {
			return nil, fmt.Errorf("Run: %w", err)
		}
		if err := s.stage(ctx, batchID, filtered.Fresh); err != nil {
			return nil, fmt.Errorf("Run: %w", err)
		}
		res.BatchID = batchID
		res.Staged = len(filtered.Fresh)
	}

	for _, f := range imported {
		if err := s.archive(f); err != nil {
			log.Error("archive failed", "file", f.path, "error", err)
		}
	}

	log.Info("ingestion complete",
		"batch_id", res.BatchID,
		"files", res.Files,
		"rows_parsed", res.Parsed,
		"rows_invalid", res.Invalid,
		"rows_duplicate", res.Duplicates+res.InBatchRepeats,
		"rows_staged", res.Staged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

type ManualResult struct {
	BatchID   string
	Record    domain.Record
	Duplicate bool
}

// StageManual validates and stages one hand-entered record under its own
// manual batch. A duplicate of a committed row is reported, not staged.
func (s *Service) StageManual(ctx context.Context, rec domain.Record) (*ManualResult, error) {
	log := logging.FromContext(ctx)

	release, err := s.store.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("StageManual: %w", err)
	}
	defer release()

	if rec.ExternalID == "" {
		rec.ExternalID = uuid.NewString()
	}
	if rec.SourceFile == "" {
		rec.SourceFile = domain.BatchSourceManual
	}

	clean, err := s.validator.Validate(ctx, 0, rec)
	if err != nil {
		return nil, fmt.Errorf("StageManual: %w", err)
	}

	dup, err := s.checker.IsDuplicate(ctx, clean)
	if err != nil {
		return nil, fmt.Errorf("StageManual: %w", err)
	}
	if dup {
		log.Info("manual entry matches a committed transaction, not staged",
			"external_id", clean.ExternalID, "fingerprint", dedup.Fingerprint(clean))
		return &ManualResult{Record: clean, Duplicate: true}, nil
	}

	batchID, err := s.reserveBatch(ctx, domain.BatchSourceManual)
	if err != nil {
		return nil, fmt.Errorf("StageManual: %w", err)
	}
	cand := []dedup.Candidate{{Record: clean, Fingerprint: dedup.Fingerprint(clean)}}
	if err := s.stage(ctx, batchID, cand); err != nil {
		return nil, fmt.Errorf("StageManual: %w", err)
	}

	log.Info("manual entry staged", "batch_id", batchID, "external_id", clean.ExternalID)
	return &ManualResult{BatchID: batchID, Record: clean}, nil
}

func (s *Service) stage(ctx context.Context, batchID string, cands []dedup.Candidate) error {
	rows := make([]domain.StagedTransaction, len(cands))
	for i, c := range cands {
		rows[i] = domain.StagedTransaction{Record: c.Record, BatchID: batchID, Fingerprint: c.Fingerprint}
	}
	if err := s.staging.StageBatch(ctx, rows); err != nil {
		return fmt.Errorf("stage: %w", err)
	}
	return nil
}

// reserveBatch registers <source>_<timestamp>. When that second's id is
// already taken it waits for the next second.
func (s *Service) reserveBatch(ctx context.Context, source string) (string, error) {
	for range maxBatchIDAttempts {
		at := s.now()
		id := domain.NewBatchID(source, at)
		err := s.batches.Register(ctx, id, source)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrBatchExists) {
			return "", fmt.Errorf("reserveBatch: %w", err)
		}

		wait := time.Until(at.Truncate(time.Second).Add(time.Second))
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("reserveBatch: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("reserveBatch: %s: %w", source, domain.ErrBatchExists)
}

func (s *Service) discover(ctx context.Context) ([]sourceFile, error) {
	log := logging.FromContext(ctx)

	dirs, err := os.ReadDir(s.config.RawDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("raw data directory missing", "dir", s.config.RawDir)
			return nil, nil
		}
		return nil, fmt.Errorf("discover: %w", err)
	}

	var out []sourceFile
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		source := d.Name()
		if _, err := s.parsers.Get(source); err != nil {
			log.Warn("no parser for source directory, skipped", "source", source)
			continue
		}

		entries, err := os.ReadDir(filepath.Join(s.config.RawDir, source))
		if err != nil {
			return nil, fmt.Errorf("discover: %s: %w", source, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			out = append(out, sourceFile{source: source, path: filepath.Join(s.config.RawDir, source, e.Name())})
		}
	}
	return out, nil
}

// archive moves an imported file out of the raw directory. An existing
// archive file of the same name is kept and the new one gets a timestamp.
func (s *Service) archive(f sourceFile) error {
	dir := filepath.Join(s.config.ArchiveDir, f.source)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	name := filepath.Base(f.path)
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(dir, fmt.Sprintf("%s_%s%s",
			strings.TrimSuffix(name, ext), s.now().Format("20060102_150405.000000000"), ext))
	}
	if err := os.Rename(f.path, dst); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}
