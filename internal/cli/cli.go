// Package cli implements the folio operator commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/josh-kwaku/folio-ledger/internal/app"
	"github.com/josh-kwaku/folio-ledger/internal/config"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/logging"
)

// Commands lists every command, for registration with a Commander.
var Commands = []subcommands.Command{
	&migrateCmd{},
	&ingestCmd{},
	&addCmd{},
	&reviewCmd{},
	&commitCmd{},
	&clearCmd{},
	&revertCmd{},
	&holdingsCmd{},
	&performanceCmd{},
	&realizedCmd{},
	&incomeCmd{},
	&pricesCmd{},
	&gapsCmd{},
}

// Stdout receives report output; logs go to stderr.
var Stdout io.Writer = os.Stdout

// run loads configuration, opens the store and hands the wired App to fn.
func run(ctx context.Context, fn func(ctx context.Context, a *app.App) error) subcommands.ExitStatus {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	logging.Init("folio", cfg.LogLevel, cfg.AppEnv, os.Stderr)

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// describe turns the errors an operator can act on into a hint.
func describe(err error) string {
	var integrity *domain.DataIntegrityError
	switch {
	case errors.Is(err, domain.ErrLockHeld):
		return "the ledger is locked by another folio process; try again when it finishes"
	case errors.Is(err, domain.ErrBackupFailed):
		return fmt.Sprintf("backup failed, nothing was changed: %v", err)
	case errors.As(err, &integrity):
		return fmt.Sprintf("ledger replay stopped at transaction %d: %v", integrity.TxID, err)
	default:
		return err.Error()
	}
}

// dateFlag parses -date, defaulting to today.
func dateFlag(raw string) (time.Time, error) {
	if raw == "" {
		return domain.Day(time.Now()), nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("-date: %w", err)
	}
	return d, nil
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
}

type asOfFlag struct {
	date string
}

func (a *asOfFlag) register(f *flag.FlagSet) {
	f.StringVar(&a.date, "date", "", "Report date, YYYY-MM-DD (defaults to today).")
}
