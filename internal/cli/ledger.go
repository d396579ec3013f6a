package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/josh-kwaku/folio-ledger/internal/app"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/portfolio"
	"github.com/josh-kwaku/folio-ledger/internal/review"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or upgrade the database schema" }
func (*migrateCmd) Usage() string {
	return `folio migrate

  Applies every pending schema migration. Safe to run repeatedly.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app.App) error {
		if err := a.DB.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(Stdout, "schema up to date")
		return nil
	})
}

type ingestCmd struct{}

func (*ingestCmd) Name() string     { return "ingest" }
func (*ingestCmd) Synopsis() string { return "stage every broker export waiting in the raw directory" }
func (*ingestCmd) Usage() string {
	return `folio ingest

  Parses the files under RAW_DIR/<source>/, drops rows already in the
  ledger and stages the rest as one batch. Imported files move to
  ARCHIVE_DIR. Nothing reaches the ledger until 'folio commit'.
`
}
func (*ingestCmd) SetFlags(*flag.FlagSet) {}

func (*ingestCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app.App) error {
		res, err := a.Ingest.Run(ctx)
		if err != nil {
			return err
		}

		w := table()
		fmt.Fprintf(w, "files\t%d\n", res.Files)
		fmt.Fprintf(w, "parsed\t%d\n", res.Parsed)
		fmt.Fprintf(w, "invalid\t%d\n", res.Invalid)
		fmt.Fprintf(w, "duplicates\t%d\n", res.Duplicates)
		fmt.Fprintf(w, "repeated in batch\t%d\n", res.InBatchRepeats)
		fmt.Fprintf(w, "staged\t%d\n", res.Staged)
		if res.BatchID != "" {
			fmt.Fprintf(w, "batch\t%s\n", res.BatchID)
		}
		return w.Flush()
	})
}

// addCmd stages one hand-entered transaction.
type addCmd struct {
	account     string
	date        string
	typ         string
	symbol      string
	isin        string
	quantity    float64
	price       float64
	amount      float64
	currency    string
	amountLocal float64
	rate        float64
	fee         float64
	feeCurrency string
	feeLocal    float64
	description string
}

func (*addCmd) Name() string     { return "add" }
func (*addCmd) Synopsis() string { return "stage a manual transaction" }
func (*addCmd) Usage() string {
	return `folio add -account <id> -date <YYYY-MM-DD> -type <TYPE> [flags]

  Stages a single transaction under its own manual batch. Amounts follow
  the ledger sign convention: money leaving the account is negative.
  -amount-local defaults to -amount when the currency is the base
  currency.
`
}

func (c *addCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Broker account id.")
	f.StringVar(&c.date, "date", "", "Trade date, YYYY-MM-DD.")
	f.StringVar(&c.typ, "type", "", "Transaction type, e.g. BUY, SELL, DIVIDEND, DEPOSIT.")
	f.StringVar(&c.symbol, "symbol", "", "Ticker symbol.")
	f.StringVar(&c.isin, "isin", "", "ISIN.")
	f.Float64Var(&c.quantity, "quantity", 0, "Units; negative for sells.")
	f.Float64Var(&c.price, "price", 0, "Unit price in the trade currency.")
	f.Float64Var(&c.amount, "amount", 0, "Amount in the trade currency, fees included.")
	f.StringVar(&c.currency, "currency", "", "Trade currency (defaults to the base currency).")
	f.Float64Var(&c.amountLocal, "amount-local", 0, "Amount in the base currency.")
	f.Float64Var(&c.rate, "rate", 0, "Exchange rate to the base currency.")
	f.Float64Var(&c.fee, "fee", 0, "Fee in the fee currency.")
	f.StringVar(&c.feeCurrency, "fee-currency", "", "Fee currency (defaults to the trade currency).")
	f.Float64Var(&c.feeLocal, "fee-local", 0, "Fee in the base currency.")
	f.StringVar(&c.description, "description", "", "Free text.")
}

func (c *addCmd) record(baseCurrency string) (domain.Record, error) {
	if c.account == "" || c.date == "" || c.typ == "" {
		return domain.Record{}, fmt.Errorf("-account, -date and -type are required")
	}
	d, err := domain.ParseDate(c.date)
	if err != nil {
		return domain.Record{}, fmt.Errorf("-date: %w", err)
	}

	rec := domain.Record{
		AccountExternalID: c.account,
		Date:              d,
		Type:              domain.TxType(strings.ToUpper(c.typ)),
		Symbol:            c.symbol,
		ISIN:              c.isin,
		Quantity:          c.quantity,
		Price:             c.price,
		Amount:            c.amount,
		Currency:          c.currency,
		AmountLocal:       c.amountLocal,
		ExchangeRate:      c.rate,
		Fee:               c.fee,
		FeeCurrency:       c.feeCurrency,
		FeeLocal:          c.feeLocal,
		Description:       c.description,
	}
	if rec.Currency == "" {
		rec.Currency = baseCurrency
	}
	if rec.FeeCurrency == "" {
		rec.FeeCurrency = rec.Currency
	}
	if rec.Currency == baseCurrency {
		if rec.AmountLocal == 0 {
			rec.AmountLocal = rec.Amount
		}
		if rec.FeeLocal == 0 {
			rec.FeeLocal = rec.Fee
		}
		if rec.ExchangeRate == 0 {
			rec.ExchangeRate = 1
		}
	}
	return rec, nil
}

func (c *addCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app.App) error {
		rec, err := c.record(a.Config.BaseCurrency)
		if err != nil {
			return err
		}

		res, err := a.Ingest.StageManual(ctx, rec)
		if err != nil {
			return err
		}
		if res.Duplicate {
			fmt.Fprintln(Stdout, "already in the ledger, nothing staged")
			return nil
		}
		fmt.Fprintf(Stdout, "staged %s as %s in batch %s\n", res.Record.Type, res.Record.ExternalID, res.BatchID)
		return nil
	})
}

type reviewCmd struct {
	rows bool
}

func (*reviewCmd) Name() string     { return "review" }
func (*reviewCmd) Synopsis() string { return "show what is staged for the next commit" }
func (*reviewCmd) Usage() string {
	return `folio review [-rows]

  Lists staged batches, and with -rows every staged transaction.
`
}

func (c *reviewCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.rows, "rows", false, "List every staged transaction.")
}

func (c *reviewCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app.App) error {
		p, err := a.Review.Pending(ctx)
		if err != nil {
			return err
		}
		if len(p.Batches) == 0 {
			fmt.Fprintln(Stdout, "nothing staged")
			return nil
		}

		w := table()
		fmt.Fprintln(w, "BATCH\tROWS")
		for _, b := range p.Batches {
			fmt.Fprintf(w, "%s\t%d\n", b.BatchID, b.Rows)
		}
		if c.rows {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "BATCH\tDATE\tACCOUNT\tTYPE\tINSTRUMENT\tQUANTITY\tAMOUNT\tCCY")
			for _, r := range p.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%g\t%s\t%s\n",
					r.BatchID, domain.FormatDate(r.Date), r.AccountExternalID, r.Type,
					r.InstrumentKey(), r.Quantity, portfolio.FormatAmount(r.AmountLocal), r.Currency)
			}
		}
		return w.Flush()
	})
}

type commitCmd struct {
	batch string
}

func (*commitCmd) Name() string     { return "commit" }
func (*commitCmd) Synopsis() string { return "back up the ledger and commit staged transactions" }
func (*commitCmd) Usage() string {
	return `folio commit [-batch <id>]

  Backs up the ledger, then moves staged rows into it in one
  transaction. Without -batch every staged batch is committed.
`
}

func (c *commitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.batch, "batch", "", "Commit only this batch.")
}

func (c *commitCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app.App) error {
		var (
			res *review.CommitResult
			err error
		)
		if c.batch != "" {
			res, err = a.Review.CommitBatch(ctx, c.batch)
		} else {
			res, err = a.Review.Commit(ctx)
		}
		if errors.Is(err, domain.ErrNothingStaged) {
			fmt.Fprintln(Stdout, "nothing staged")
			return nil
		}
		if err != nil {
			return err
		}

		w := table()
		fmt.Fprintf(w, "backup\t%s\n", res.Backup.Location)
		fmt.Fprintf(w, "batches\t%d\n", len(res.BatchIDs))
		fmt.Fprintf(w, "committed\t%d\n", res.Committed)
		fmt.Fprintf(w, "skipped duplicates\t%d\n", res.Skipped)
		fmt.Fprintf(w, "new accounts\t%d\n", res.AccountsCreated)
		fmt.Fprintf(w, "new instruments\t%d\n", res.InstrumentsCreated)
		return w.Flush()
	})
}

type clearCmd struct {
	batch string
	all   bool
}

func (*clearCmd) Name() string     { return "clear" }
func (*clearCmd) Synopsis() string { return "discard staged transactions" }
func (*clearCmd) Usage() string {
	return `folio clear -batch <id> | -all

  Drops staged rows without touching the ledger. This cannot be undone;
  re-run 'folio ingest' on the archived files to stage them again.
`
}

func (c *clearCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.batch, "batch", "", "Batch to discard.")
	f.BoolVar(&c.all, "all", false, "Discard every staged batch.")
}

func (c *clearCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.batch == "") == !c.all {
		fmt.Fprintln(os.Stderr, "exactly one of -batch or -all is required")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, a *app.App) error {
		var (
			res *review.ClearResult
			err error
		)
		if c.all {
			res, err = a.Review.ClearAll(ctx)
		} else {
			res, err = a.Review.Clear(ctx, c.batch)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "cleared %d staged rows\n", res.Rows)
		return nil
	})
}

type revertCmd struct {
	yes bool
}

func (*revertCmd) Name() string     { return "revert" }
func (*revertCmd) Synopsis() string { return "remove a committed batch from the ledger" }
func (*revertCmd) Usage() string {
	return `folio revert -yes <batch-id>

  Deletes every ledger row of a committed batch after backing up the
  ledger. Meant for recovering from a bad import.
`
}

func (c *revertCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm the removal.")
}

func (c *revertCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "a single batch id is required")
		return subcommands.ExitUsageError
	}
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to revert without -yes")
		return subcommands.ExitUsageError
	}
	batchID := f.Arg(0)

	return run(ctx, func(ctx context.Context, a *app.App) error {
		res, err := a.Review.RevertBatch(ctx, batchID)
		if err != nil {
			return err
		}
		fmt.Fprintf(Stdout, "removed %d rows of %s, backup at %s\n", res.Rows, res.BatchID, res.Backup.Location)
		return nil
	})
}
