package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/subcommands"

	"github.com/josh-kwaku/folio-ledger/internal/app"
	"github.com/josh-kwaku/folio-ledger/internal/domain"
	"github.com/josh-kwaku/folio-ledger/internal/portfolio"
)

// report parses -date and runs fn against the wired App.
func report(ctx context.Context, raw string, fn func(ctx context.Context, a *app.App, asOf time.Time) error) subcommands.ExitStatus {
	asOf, err := dateFlag(raw)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a, asOf)
	})
}

func printGaps(gaps []portfolio.Gap) {
	if len(gaps) == 0 {
		return
	}
	fmt.Fprintf(Stdout, "\n%d instrument(s) could not be valued, see 'folio gaps'\n", len(gaps))
}

type holdingsCmd struct {
	asOfFlag
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "open positions valued at market" }
func (*holdingsCmd) Usage() string {
	return `folio holdings [-date <YYYY-MM-DD>]

  Lists open positions with their average cost and market value in the
  base currency. Quantities are split-adjusted to the report date.
`
}
func (c *holdingsCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, c.date, func(ctx context.Context, a *app.App, asOf time.Time) error {
		h, err := a.Portfolio.Holdings(ctx, asOf)
		if err != nil {
			return err
		}

		w := table()
		fmt.Fprintf(w, "ACCOUNT\tINSTRUMENT\tQUANTITY\tCOST\tPRICE\tVALUE (%s)\tUNREALIZED\n", h.BaseCurrency)
		for _, r := range h.Rows {
			price, value, unrealized := "-", "-", "-"
			if r.Priced {
				price = fmt.Sprintf("%s %s", portfolio.FormatAmount(r.Price), r.Currency)
				value = portfolio.FormatAmount(r.MarketValue)
				unrealized = portfolio.FormatAmount(r.Unrealized)
			}
			fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\t%s\t%s\t%s\n",
				r.AccountExternalID, firstOf(r.Symbol, r.ISIN, r.Name), r.Quantity,
				portfolio.FormatAmount(r.TotalCost), price, value, unrealized)
		}
		fmt.Fprintf(w, "total\t\t\t%s\t\t%s\t%s\n",
			portfolio.FormatAmount(h.TotalCost), portfolio.FormatAmount(h.TotalValue), portfolio.FormatAmount(h.Unrealized))
		if err := w.Flush(); err != nil {
			return err
		}
		printGaps(h.Gaps)
		return nil
	})
}

type performanceCmd struct {
	asOfFlag
}

func (*performanceCmd) Name() string     { return "performance" }
func (*performanceCmd) Synopsis() string { return "money-weighted return of the portfolio" }
func (*performanceCmd) Usage() string {
	return `folio performance [-date <YYYY-MM-DD>]

  Reports net invested capital, current value and the annualized
  money-weighted return (XIRR), overall and per instrument.
`
}
func (c *performanceCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *performanceCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, c.date, func(ctx context.Context, a *app.App, asOf time.Time) error {
		p, err := a.Portfolio.Performance(ctx, asOf)
		if err != nil {
			return err
		}

		w := table()
		fmt.Fprintf(w, "net invested\t%s %s\n", portfolio.FormatAmount(p.NetInvested), p.BaseCurrency)
		fmt.Fprintf(w, "holdings\t%s\n", portfolio.FormatAmount(p.HoldingsValue))
		fmt.Fprintf(w, "cash\t%s\n", portfolio.FormatAmount(p.CashBalance))
		fmt.Fprintf(w, "total value\t%s\n", portfolio.FormatAmount(p.TotalValue))
		fmt.Fprintf(w, "realized\t%s\n", portfolio.FormatAmount(p.Realized))
		fmt.Fprintf(w, "unrealized\t%s\n", portfolio.FormatAmount(p.Unrealized))
		fmt.Fprintf(w, "xirr\t%s\n", rate(p.XIRR, p.Error))
		fmt.Fprintln(w)

		fmt.Fprintln(w, "INSTRUMENT\tVALUE\tREALIZED\tINCOME\tXIRR")
		for _, r := range p.Instruments {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Symbol,
				portfolio.FormatAmount(r.MarketValue), portfolio.FormatAmount(r.Realized),
				portfolio.FormatAmount(r.Income), rate(r.XIRR, r.Error))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		printGaps(p.Gaps)
		return nil
	})
}

func rate(r *float64, reason string) string {
	if r == nil {
		return "n/a (" + reason + ")"
	}
	return fmt.Sprintf("%.2f%%", *r*100)
}

type realizedCmd struct {
	asOfFlag
	rows bool
}

func (*realizedCmd) Name() string     { return "realized" }
func (*realizedCmd) Synopsis() string { return "realized gains by year" }
func (*realizedCmd) Usage() string {
	return `folio realized [-date <YYYY-MM-DD>] [-rows]

  Sums realized gains on sales up to the report date by calendar year,
  and with -rows lists every sale.
`
}

func (c *realizedCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.BoolVar(&c.rows, "rows", false, "List every sale.")
}

func (c *realizedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, c.date, func(ctx context.Context, a *app.App, asOf time.Time) error {
		r, err := a.Portfolio.Realized(ctx, asOf)
		if err != nil {
			return err
		}

		w := table()
		if c.rows {
			fmt.Fprintln(w, "DATE\tACCOUNT\tINSTRUMENT\tQUANTITY\tPROCEEDS\tCOST\tGAIN")
			for _, row := range r.Rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\t%s\t%s\n",
					domain.FormatDate(row.Date), row.AccountExternalID, row.Symbol, row.Quantity,
					portfolio.FormatAmount(row.Proceeds), portfolio.FormatAmount(row.CostRemoved),
					portfolio.FormatAmount(row.Gain))
			}
			fmt.Fprintln(w)
		}

		years := make([]int, 0, len(r.ByYear))
		for y := range r.ByYear {
			years = append(years, y)
		}
		sort.Ints(years)
		fmt.Fprintln(w, "YEAR\tGAIN")
		for _, y := range years {
			fmt.Fprintf(w, "%d\t%s\n", y, portfolio.FormatAmount(r.ByYear[y]))
		}
		fmt.Fprintf(w, "total\t%s\n", portfolio.FormatAmount(r.Total))
		return w.Flush()
	})
}

type incomeCmd struct {
	asOfFlag
}

func (*incomeCmd) Name() string     { return "income" }
func (*incomeCmd) Synopsis() string { return "dividends, interest, fees and taxes by type" }
func (*incomeCmd) Usage() string {
	return `folio income [-date <YYYY-MM-DD>]

  Sums cash events other than deposits and withdrawals by type.
`
}
func (c *incomeCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *incomeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, c.date, func(ctx context.Context, a *app.App, asOf time.Time) error {
		r, err := a.Portfolio.Income(ctx, asOf)
		if err != nil {
			return err
		}

		w := table()
		fmt.Fprintln(w, "TYPE\tCOUNT\tAMOUNT")
		for _, l := range r.Lines {
			fmt.Fprintf(w, "%s\t%d\t%s\n", l.Type, l.Count, portfolio.FormatAmount(l.Amount))
		}
		fmt.Fprintf(w, "total\t\t%s\n", portfolio.FormatAmount(r.Total))
		return w.Flush()
	})
}

type pricesCmd struct {
	asOfFlag
}

func (*pricesCmd) Name() string     { return "prices" }
func (*pricesCmd) Synopsis() string { return "fetch prices and exchange rates for held instruments" }
func (*pricesCmd) Usage() string {
	return `folio prices [-date <YYYY-MM-DD>]

  Asks the market data provider for the closing price of every open
  position and the exchange rates needed to value them, and stores what
  is new.
`
}
func (c *pricesCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *pricesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, c.date, func(ctx context.Context, a *app.App, asOf time.Time) error {
		quotes, pairs, err := a.Portfolio.MarketTargets(ctx, asOf)
		if err != nil {
			return err
		}

		res, refreshErr := a.Refresher.Refresh(ctx, quotes, pairs, asOf)
		a.Snapshot.Flush()
		if res != nil {
			w := table()
			fmt.Fprintf(w, "prices added\t%d\n", res.PricesAdded)
			fmt.Fprintf(w, "rates added\t%d\n", res.FxAdded)
			fmt.Fprintf(w, "unchanged\t%d\n", res.Unchanged)
			for _, m := range res.Missing {
				fmt.Fprintf(w, "missing\t%s\n", m)
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
		return refreshErr
	})
}

type gapsCmd struct {
	asOfFlag
}

func (*gapsCmd) Name() string     { return "gaps" }
func (*gapsCmd) Synopsis() string { return "instruments that cannot be valued" }
func (*gapsCmd) Usage() string {
	return `folio gaps [-date <YYYY-MM-DD>]

  Lists open positions without a symbol, a price or an exchange rate, and
  prices older than STALE_PRICE_DAYS.
`
}
func (c *gapsCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *gapsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return report(ctx, c.date, func(ctx context.Context, a *app.App, asOf time.Time) error {
		r, err := a.Portfolio.Gaps(ctx, asOf)
		if err != nil {
			return err
		}
		if len(r.Gaps) == 0 {
			fmt.Fprintln(Stdout, "every open position can be valued")
			return nil
		}

		w := table()
		fmt.Fprintln(w, "KIND\tINSTRUMENT\tLAST PRICE\tDETAIL")
		for _, g := range r.Gaps {
			last := "-"
			if !g.LastPrice.IsZero() {
				last = domain.FormatDate(g.LastPrice)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", g.Kind, g.Label, last, g.Detail)
		}
		return w.Flush()
	})
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
