package domain

import (
	"fmt"
	"time"
)

const (
	BatchSourceFileImport = "file_import"
	BatchSourceManual     = "manual"
)

const batchTimeLayout = "20060102_150405"

// NewBatchID returns <source>_<YYYYMMDD_HHMMSS>.
func NewBatchID(source string, at time.Time) string {
	return fmt.Sprintf("%s_%s", source, at.Format(batchTimeLayout))
}

type BatchSummary struct {
	BatchID string
	Rows    int
}

type Backup struct {
	Label     string
	Location  string
	CreatedAt time.Time
	Rows      int64
}
