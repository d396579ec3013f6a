//go:build unix

package repository

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

// fileLock takes flock(2) on <db>.lock. The kernel drops it when the
// process exits, so a crash cannot leave the ledger locked.
func fileLock(dbPath string) (func(), error) {
	if dbPath == "" {
		return func() {}, nil
	}

	f, err := os.OpenFile(dbPath+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("fileLock: open: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, domain.ErrLockHeld
		}
		return nil, fmt.Errorf("fileLock: flock: %w", err)
	}

	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
