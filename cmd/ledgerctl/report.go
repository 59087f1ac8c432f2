package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"ledger/internal/core"
)

var (
	ownerID string
	month   string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the per-category spending of a month in the owner's base currency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ledger, _, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		period, err := monthFlag(ledger.Budgets.CurrentPeriod())
		if err != nil {
			return err
		}
		summary, err := ledger.Summaries.Summarize(cmd.Context(), ownerID, period)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s  %s\n\n", summary.Period, summary.BaseCurrency)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "CATEGORY\tTOTAL\tSHARE\tCOUNT\t")
		for _, e := range summary.Entries {
			fmt.Fprintf(tw, "%s\t%s\t%s%%\t%d\t\n", e.Name, summary.BaseCurrency.Format(e.Total), e.Percentage.StringFixed(2), e.Count)
		}
		fmt.Fprintf(tw, "Total\t%s\t\t\t\n", summary.BaseCurrency.Format(summary.Total))
		return tw.Flush()
	},
}

var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Manage an owner's monthly budget",
}

var budgetSetCmd = &cobra.Command{
	Use:   "set <limit>",
	Short: "Set the monthly budget limit in the owner's base currency (0 clears it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := decimal.NewFromString(args[0])
		if err != nil {
			return fmt.Errorf("invalid limit %q: %w", args[0], err)
		}
		ledger, _, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		profile, status, err := ledger.Budgets.SetBudgetLimit(cmd.Context(), ownerID, limit)
		if err != nil {
			return err
		}
		logger.Info("budget updated", "owner", profile.OwnerID, "limit", profile.BudgetLimit.String(), "currency", profile.BaseCurrency)
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var budgetCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Evaluate spending against the budget for a month",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ledger, _, err := openLedger(cmd.Context())
		if err != nil {
			return err
		}
		defer ledger.Close()

		period, err := monthFlag(ledger.Budgets.CurrentPeriod())
		if err != nil {
			return err
		}
		status, err := ledger.Budgets.Evaluate(cmd.Context(), ownerID, period)
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

func monthFlag(def core.Period) (core.Period, error) {
	if month == "" {
		return def, nil
	}
	return core.ParsePeriod(month)
}

func printStatus(w io.Writer, s core.BudgetStatus) {
	fmt.Fprintf(w, "%s: spent %s", s.Period, s.BaseCurrency.Format(s.CurrentSpend))
	if s.Percentage == nil {
		fmt.Fprintln(w, " (no budget set)")
		return
	}
	fmt.Fprintf(w, " of %s (%s%%)\n", s.BaseCurrency.Format(s.BudgetLimit), s.Percentage.StringFixed(2))
	for _, n := range s.Notifications {
		fmt.Fprintf(w, "[%s] %s\n", n.Type, n.Message)
	}
}

func init() {
	for _, c := range []*cobra.Command{summaryCmd, budgetSetCmd, budgetCheckCmd} {
		c.Flags().StringVarP(&ownerID, "owner", "o", "", "Owner ID")
		_ = c.MarkFlagRequired("owner")
	}
	summaryCmd.Flags().StringVarP(&month, "month", "m", "", "Month (YYYY-MM, default current)")
	budgetCheckCmd.Flags().StringVarP(&month, "month", "m", "", "Month (YYYY-MM, default current)")

	budgetCmd.AddCommand(budgetSetCmd)
	budgetCmd.AddCommand(budgetCheckCmd)
}
