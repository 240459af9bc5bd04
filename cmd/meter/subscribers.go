package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var subscribersCmd = &cobra.Command{
	Use:   "subscribers",
	Short: "Manage subscriber plans and billing periods",
	Long: `Manage the billing view of users.

A subscriber carries a plan identifier and the end of the current
billing period. Usage is counted per period.

Examples:
  meter subscribers set user_123 --plan=price_pro --period-end=2024-02-01T00:00:00Z
  meter subscribers show user_123
  meter subscribers sync-stripe sub_1Nabc`,
}

var subscribersSetCmd = &cobra.Command{
	Use:   "set <user-id>",
	Short: "Set a subscriber's plan and period end",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribersSet,
}

var subscribersShowCmd = &cobra.Command{
	Use:   "show <user-id>",
	Short: "Show a subscriber and the current billing window",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribersShow,
}

var subscribersSyncCmd = &cobra.Command{
	Use:   "sync-stripe <subscription-id>",
	Short: "Copy a Stripe subscription into the subscriber store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubscribersSync,
}

var (
	subPlan      string
	subPeriodEnd string
)

func init() {
	rootCmd.AddCommand(subscribersCmd)

	subscribersCmd.AddCommand(subscribersSetCmd)
	subscribersCmd.AddCommand(subscribersShowCmd)
	subscribersCmd.AddCommand(subscribersSyncCmd)

	subscribersSetCmd.Flags().StringVar(&subPlan, "plan", "", "plan identifier")
	subscribersSetCmd.Flags().StringVar(&subPeriodEnd, "period-end", "", "period end (RFC 3339, date or unix seconds)")
}

func runSubscribersSet(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	sub, err := a.Subscribers.Set(cmd.Context(), args[0], subPlan, subPeriodEnd)
	if err != nil {
		return err
	}
	if sub.PlanID != "" && !a.Limits.Catalog().Known(sub.PlanID) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: plan %q is not in the catalog; %s limits apply\n",
			sub.PlanID, a.Limits.Catalog().FallbackID())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subscriber %s set to plan %q.\n", sub.ID, sub.PlanID)
	return nil
}

func runSubscribersShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	sub, err := a.Subscribers.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	window, err := a.Usage.Window(cmd.Context(), sub)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:        %s\n", sub.ID)
	fmt.Fprintf(out, "Plan:        %s (effective %s)\n", displayOr(sub.PlanID, "-"), a.Limits.Entitlements(sub.PlanID).PlanID)
	fmt.Fprintf(out, "Period end:  %s\n", displayOr(sub.CurrentPeriodEnd, "-"))
	fmt.Fprintf(out, "Window:      %s .. %s", window.Start.Format("2006-01-02 15:04"), window.End.Format("2006-01-02 15:04"))
	if window.Fallback {
		fmt.Fprint(out, " (fallback)")
	}
	fmt.Fprintln(out)
	return nil
}

func runSubscribersSync(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	syncer, err := a.StripeSyncer()
	if err != nil {
		return err
	}
	sub, err := syncer.Sync(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subscriber %s synced: plan %q, period end %s.\n", sub.ID, sub.PlanID, sub.CurrentPeriodEnd)
	return nil
}

func displayOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
