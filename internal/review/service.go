// Package review promotes staged rows into the ledger or discards them.
//
// Every operation that writes the ledger runs under the exclusive ledger
// hold and takes a verified backup first. If the backup fails nothing is
// touched. The append and the staging cleanup share one database
// transaction, so a failed commit leaves the ledger as it was and the rows
// still staged.
package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

type State string

const (
	StateStaged    State = "STAGED"
	StateBackedUp  State = "BACKED_UP"
	StateCommitted State = "COMMITTED"
	StateCleared   State = "CLEARED"
)

type store interface {
	Lock(ctx context.Context) (func(), error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type backuper interface {
	Create(ctx context.Context, label string) (*domain.Backup, error)
}

type stagingRepo interface {
	ListPending(ctx context.Context) ([]domain.StagedTransaction, error)
	PendingTx(ctx context.Context, tx *sql.Tx, batchID string) ([]domain.StagedTransaction, error)
	DeleteTx(ctx context.Context, tx *sql.Tx, ids []int64) error
	Clear(ctx context.Context, batchID string) (int64, error)
	ClearAll(ctx context.Context) (int64, error)
	Batches(ctx context.Context) ([]domain.BatchSummary, error)
}

type ledgerRepo interface {
	Append(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	HasFingerprintTx(ctx context.Context, tx *sql.Tx, fingerprint string) (bool, error)
	ByBatch(ctx context.Context, batchID string) ([]domain.Transaction, error)
	DeleteBatch(ctx context.Context, tx *sql.Tx, batchID string) (int64, error)
}

type accountRepo interface {
	EnsureTx(ctx context.Context, tx *sql.Tx, externalID, baseCurrency string) (int64, bool, error)
}

type instrumentRepo interface {
	EnsureTx(ctx context.Context, tx *sql.Tx, rec domain.Record) (int64, bool, error)
}

type Service struct {
	store        store
	backup       backuper
	staging      stagingRepo
	ledger       ledgerRepo
	accounts     accountRepo
	instruments  instrumentRepo
	baseCurrency string
}

func NewService(
	st store,
	backup backuper,
	staging stagingRepo,
	ledger ledgerRepo,
	accounts accountRepo,
	instruments instrumentRepo,
	baseCurrency string,
) *Service {
	return &Service{
		store:        st,
		backup:       backup,
		staging:      staging,
		ledger:       ledger,
		accounts:     accounts,
		instruments:  instruments,
		baseCurrency: baseCurrency,
	}
}

type Pending struct {
	Rows    []domain.StagedTransaction
	Batches []domain.BatchSummary
}

// Pending lists everything staged, in insertion order, for operator review.
func (s *Service) Pending(ctx context.Context) (*Pending, error) {
	rows, err := s.staging.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}
	batches, err := s.staging.Batches(ctx)
	if err != nil {
		return nil, fmt.Errorf("Pending: %w", err)
	}
	return &Pending{Rows: rows, Batches: batches}, nil
}

type CommitResult struct {
	State              State
	Backup             *domain.Backup
	BatchIDs           []string
	Committed          int
	Skipped            int
	AccountsCreated    int
	InstrumentsCreated int
}

// Commit promotes every staged row into the ledger.
func (s *Service) Commit(ctx context.Context) (*CommitResult, error) {
	res, err := s.commit(ctx, "")
	if err != nil {
		return res, fmt.Errorf("Commit: %w", err)
	}
	return res, nil
}

// CommitBatch promotes the staged rows of one batch and leaves other
// batches staged.
func (s *Service) CommitBatch(ctx context.Context, batchID string) (*CommitResult, error) {
	if batchID == "" {
		return nil, fmt.Errorf("CommitBatch: batch id required: %w", domain.ErrValidation)
	}
	res, err := s.commit(ctx, batchID)
	if err != nil {
		return res, fmt.Errorf("CommitBatch: %w", err)
	}
	return res, nil
}

func (s *Service) commit(ctx context.Context, batchID string) (*CommitResult, error) {
	ctx = logging.WithAttrs(ctx, "operation", "commit")
	log := logging.FromContext(ctx)
	start := time.Now()

	release, err := s.store.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	res := &CommitResult{State: StateStaged}

	staged, err := s.staging.ListPending(ctx)
	if err != nil {
		return res, err
	}
	if countBatch(staged, batchID) == 0 {
		return res, domain.ErrNothingStaged
	}

	b, err := s.backup.Create(ctx, "before_commit")
	if err != nil {
		log.Error("backup failed, commit aborted, staging untouched", "error", err)
		return res, backupErr(err)
	}
	res.Backup = b
	res.State = StateBackedUp

	if err := s.promote(ctx, batchID, res); err != nil {
		log.Error("commit failed, ledger unchanged, rows still staged",
			"backup_path", b.Location, "error", err)
		return res, err
	}
	res.State = StateCommitted

	log.Info("staging committed",
		"batches", res.BatchIDs,
		"rows_committed", res.Committed,
		"rows_skipped", res.Skipped,
		"accounts_created", res.AccountsCreated,
		"instruments_created", res.InstrumentsCreated,
		"backup_path", b.Location,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// promote appends the staged rows and deletes them from staging in one
// transaction. Rows whose fingerprint reached the ledger after they were
// staged are dropped instead of appended.
func (s *Service) promote(ctx context.Context, batchID string, res *CommitResult) error {
	log := logging.FromContext(ctx)

	tx, err := s.store.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	defer tx.Rollback()

	rows, err := s.staging.PendingTx(ctx, tx, batchID)
	if err != nil {
		return fmt.Errorf("promote: %w", err)
	}

	accounts := make(map[string]int64)
	instruments := make(map[string]int64)
	seenBatch := make(map[string]bool)
	ids := make([]int64, 0, len(rows))
	var committed, skipped, accCreated, instCreated int

	for _, st := range rows {
		ids = append(ids, st.ID)
		if !seenBatch[st.BatchID] {
			seenBatch[st.BatchID] = true
			res.BatchIDs = append(res.BatchIDs, st.BatchID)
		}

		dup, err := s.ledger.HasFingerprintTx(ctx, tx, st.Fingerprint)
		if err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		if dup {
			skipped++
			log.Info("staged row already in ledger, dropped",
				"batch_id", st.BatchID, "external_id", st.ExternalID, "fingerprint", st.Fingerprint)
			continue
		}

		accID, ok := accounts[st.AccountExternalID]
		if !ok {
			var created bool
			accID, created, err = s.accounts.EnsureTx(ctx, tx, st.AccountExternalID, s.baseCurrency)
			if err != nil {
				return fmt.Errorf("promote: account %s: %w", st.AccountExternalID, err)
			}
			if created {
				accCreated++
				log.Info("placeholder account created", "account", st.AccountExternalID)
			}
			accounts[st.AccountExternalID] = accID
		}

		t := &domain.Transaction{
			Record:      st.Record,
			AccountID:   accID,
			BatchID:     st.BatchID,
			Fingerprint: st.Fingerprint,
		}
		if key := st.InstrumentKey(); key != "" {
			instID, ok := instruments[key]
			if !ok {
				var created bool
				instID, created, err = s.instruments.EnsureTx(ctx, tx, st.Record)
				if err != nil {
					return fmt.Errorf("promote: instrument %s: %w", key, err)
				}
				if created {
					instCreated++
				}
				instruments[key] = instID
			}
			if instID != 0 {
				t.InstrumentID = &instID
			}
		}

		if err := s.ledger.Append(ctx, tx, t); err != nil {
			return fmt.Errorf("promote: %w", err)
		}
		committed++
	}

	if err := s.staging.DeleteTx(ctx, tx, ids); err != nil {
		return fmt.Errorf("promote: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("promote: commit: %w", err)
	}

	res.Committed = committed
	res.Skipped = skipped
	res.AccountsCreated = accCreated
	res.InstrumentsCreated = instCreated
	return nil
}

type ClearResult struct {
	State   State
	BatchID string
	Rows    int64
}

// Clear discards one staged batch. The ledger is not touched. Irreversible.
func (s *Service) Clear(ctx context.Context, batchID string) (*ClearResult, error) {
	if batchID == "" {
		return nil, fmt.Errorf("Clear: batch id required: %w", domain.ErrValidation)
	}
	n, err := s.clear(ctx, func() (int64, error) { return s.staging.Clear(ctx, batchID) })
	if err != nil {
		return nil, fmt.Errorf("Clear: %w", err)
	}
	logging.FromContext(ctx).Info("staged batch cleared", "batch_id", batchID, "rows", n)
	return &ClearResult{State: StateCleared, BatchID: batchID, Rows: n}, nil
}

// ClearAll discards everything staged.
func (s *Service) ClearAll(ctx context.Context) (*ClearResult, error) {
	n, err := s.clear(ctx, func() (int64, error) { return s.staging.ClearAll(ctx) })
	if err != nil {
		return nil, fmt.Errorf("ClearAll: %w", err)
	}
	logging.FromContext(ctx).Info("staging cleared", "rows", n)
	return &ClearResult{State: StateCleared, Rows: n}, nil
}

func (s *Service) clear(ctx context.Context, del func() (int64, error)) (int64, error) {
	release, err := s.store.Lock(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return del()
}

type RevertResult struct {
	BatchID string
	Rows    int64
	Backup  *domain.Backup
}

// RevertBatch removes every ledger row of a committed batch. It is the
// operator's emergency recovery path and is backed up like a commit.
func (s *Service) RevertBatch(ctx context.Context, batchID string) (*RevertResult, error) {
	ctx = logging.WithAttrs(ctx, "operation", "revert", "batch_id", batchID)
	log := logging.FromContext(ctx)

	if batchID == "" {
		return nil, fmt.Errorf("RevertBatch: batch id required: %w", domain.ErrValidation)
	}

	release, err := s.store.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("RevertBatch: %w", err)
	}
	defer release()

	rows, err := s.ledger.ByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("RevertBatch: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("RevertBatch: batch %s: %w", batchID, domain.ErrNotFound)
	}

	b, err := s.backup.Create(ctx, "before_revert")
	if err != nil {
		log.Error("backup failed, revert aborted", "error", err)
		return nil, fmt.Errorf("RevertBatch: %w", backupErr(err))
	}

	tx, err := s.store.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("RevertBatch: %w", err)
	}
	defer tx.Rollback()

	n, err := s.ledger.DeleteBatch(ctx, tx, batchID)
	if err != nil {
		return nil, fmt.Errorf("RevertBatch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("RevertBatch: commit: %w", err)
	}

	log.Warn("ledger batch reverted", "rows", n, "backup_path", b.Location)
	return &RevertResult{BatchID: batchID, Rows: n, Backup: b}, nil
}

func countBatch(rows []domain.StagedTransaction, batchID string) int {
	if batchID == "" {
		return len(rows)
	}
	n := 0
	for _, r := range rows {
		if r.BatchID == batchID {
			n++
		}
	}
	return n
}

func backupErr(err error) error {
	if errors.Is(err, domain.ErrBackupFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrBackupFailed, err)
}
