package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/westsidetechsolutions/meter/domain/usage"
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect and adjust usage",
	Long: `Inspect and adjust per-period usage.

Examples:
  meter usage show user_123
  meter usage history user_123
  meter usage increment user_123 storageMb 25`,
}

var usageShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show current-period usage against plan limits",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageShow,
}

var usageHistoryCmd = &cobra.Command{
	Use:   "history <user-id>",
	Short: "List usage records, newest period first",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageHistory,
}

var usageIncrementCmd = &cobra.Command{
	Use:   "increment <user-id> <field> <amount>",
	Short: "Add to a usage counter without a limit check",
	Args:  cobra.ExactArgs(3),
	RunE:  runUsageIncrement,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.AddCommand(usageShowCmd)
	usageCmd.AddCommand(usageHistoryCmd)
	usageCmd.AddCommand(usageIncrementCmd)
}

func runUsageShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	sub, err := a.Subscribers.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	rec, window, err := a.Usage.Current(cmd.Context(), sub)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User %s, plan %s, period %s .. %s\n\n", sub.ID,
		a.Limits.Entitlements(sub.PlanID).PlanID,
		window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tCURRENT\tLIMIT\tUSED\tSTATUS")
	for _, d := range a.Limits.Summary(sub, rec) {
		limit, used := "unlimited", "-"
		if !d.IsUnlimited() {
			limit = strconv.FormatInt(d.Limit, 10)
			used = strconv.FormatFloat(d.PercentUsed, 'f', 1, 64) + "%"
		}
		status := "ok"
		switch {
		case !d.Allowed:
			status = "limit reached"
		case d.Approaching:
			status = "approaching"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", d.Field, d.Current, limit, used, status)
	}
	return w.Flush()
}

func runUsageHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	records, err := a.Usage.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintf(out, "No usage recorded for user %s.\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PERIOD START\tPERIOD END\tAPI CALLS\tITEMS\tSTORAGE MB")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n",
			r.PeriodStart.Format("2006-01-02 15:04"), r.PeriodEnd.Format("2006-01-02 15:04"),
			r.APICalls, r.ItemsCreated, r.StorageMB)
	}
	return w.Flush()
}

func runUsageIncrement(cmd *cobra.Command, args []string) error {
	field, err := usage.ParseField(args[1])
	if err != nil {
		return err
	}
	amount, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", args[2], err)
	}

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	rec, err := a.Usage.Increment(cmd.Context(), args[0], field, amount)
	if err != nil {
		return err
	}
	v, _ := rec.Value(field)
	fmt.Fprintf(cmd.OutOrStdout(), "%s for %s is now %d.\n", field, args[0], v)
	return nil
}
