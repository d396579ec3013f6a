//go:build !unix

package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/josh-kwaku/folio-ledger/internal/domain"
)

// fileLock uses an exclusive-create marker file. A crash leaves the marker
// behind and it has to be removed by hand.
func fileLock(dbPath string) (func(), error) {
	if dbPath == "" {
		return func() {}, nil
	}

	lockPath := dbPath + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, domain.ErrLockHeld
		}
		return nil, fmt.Errorf("fileLock: %w", err)
	}
	fmt.Fprintf(f, "%d\n", os.Getpid())
	f.Close()

	return func() { os.Remove(lockPath) }, nil
}
