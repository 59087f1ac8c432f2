package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ledger/internal/cli"
	"ledger/internal/core"
	"ledger/internal/rates"
)

var (
	rateDate  string
	rateLimit int
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Inspect and load exchange rates",
}

var ratesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append rates from a YAML rate file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := rates.LoadRateFile(args[0])
		if err != nil {
			return err
		}
		ledger, _, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		n, err := ledger.Rates.Append(cmd.Context(), loaded...)
		if err != nil {
			return err
		}
		logger.Info("imported rates", "file", args[0], "read", len(loaded), "inserted", n)
		return nil
	},
}

var ratesGetCmd = &cobra.Command{
	Use:   "get <from> <to>",
	Short: "Resolve the rate for a pair as of a date (default today)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parsePair(args)
		if err != nil {
			return err
		}
		asOf, err := dateFlag(rateDate)
		if err != nil {
			return err
		}
		ledger, _, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		q, err := ledger.Rates.Quote(cmd.Context(), from, to, asOf)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s %s as of %s (%s", q.Source, q.Target, q.Rate, q.AsOf, q.Provider)
		if q.Inverse {
			fmt.Fprint(cmd.OutOrStdout(), ", inverse")
		}
		fmt.Fprintln(cmd.OutOrStdout(), ")")
		return nil
	},
}

var ratesListCmd = &cobra.Command{
	Use:   "list <from> <to>",
	Short: "Print stored rates for a pair as a rate file, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parsePair(args)
		if err != nil {
			return err
		}
		ledger, _, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		history, err := ledger.Rates.History(cmd.Context(), from, to, rateLimit)
		if err != nil {
			return err
		}
		return rates.EncodeRates(cmd.OutOrStdout(), history)
	},
}

var ratesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch rates from the configured rate source once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		on := core.Date{}
		if rateDate != "" {
			d, err := core.ParseDate(rateDate)
			if err != nil {
				return err
			}
			on = d
		}
		ledger, cfg, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		source, err := cli.NewRateSource(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if source == nil {
			return fmt.Errorf("no rate source configured (RATE_SOURCE=%s)", cfg.RateSource)
		}
		result, err := rates.NewRefresher(source, ledger.Rates, nil).RefreshOn(cmd.Context(), on)
		logger.Info("fetched rates",
			"source", source.Name(),
			"fetched", result.Fetched,
			"inserted", result.Inserted,
			"failed", len(result.Failed))
		return err
	},
}

func parsePair(args []string) (core.Currency, core.Currency, error) {
	from, err := core.ParseCurrency(args[0])
	if err != nil {
		return "", "", err
	}
	to, err := core.ParseCurrency(args[1])
	if err != nil {
		return "", "", err
	}
	return from, to, nil
}

// dateFlag parses a YYYY-MM-DD flag value; empty means today.
func dateFlag(s string) (core.Date, error) {
	if s == "" {
		return core.DateOf(time.Now()), nil
	}
	return core.ParseDate(s)
}

func init() {
	ratesGetCmd.Flags().StringVar(&rateDate, "date", "", "As-of date (YYYY-MM-DD)")
	ratesFetchCmd.Flags().StringVar(&rateDate, "date", "", "Publication date to fetch (YYYY-MM-DD, default latest)")
	ratesListCmd.Flags().IntVar(&rateLimit, "limit", 30, "Maximum number of rates (0 for all)")

	ratesCmd.AddCommand(ratesImportCmd)
	ratesCmd.AddCommand(ratesGetCmd)
	ratesCmd.AddCommand(ratesListCmd)
	ratesCmd.AddCommand(ratesFetchCmd)
}
