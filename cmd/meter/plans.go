package main

import (
	"fmt"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/westsidetechsolutions/meter/config"
)

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Show the plan catalog",
	Long: `Show the plan entitlement catalog.

Built-in plans are price_free, price_pro and price_business. Extra plans
and overrides come from the plans section of the config file.

Examples:
  meter plans list`,
}

var plansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all plans and their limits",
	RunE:  runPlansList,
}

func init() {
	rootCmd.AddCommand(plansCmd)

	plansCmd.AddCommand(plansListCmd)
}

func runPlansList(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return err
	}
	catalog := cfg.Catalog()

	plans := catalog.Plans()
	sort.Slice(plans, func(i, j int) bool { return plans[i].PlanID < plans[j].PlanID })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PLAN\tITEMS\tAPI CALLS\tSTORAGE MB\tWARN AT")
	for _, p := range plans {
		id := p.PlanID
		if id == catalog.FallbackID() {
			id += " (default)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%\n", id,
			limitString(p.MaxItems), limitString(p.MaxAPICalls), limitString(p.MaxStorageMB),
			p.SoftOveragePercent*100)
	}
	return w.Flush()
}

func limitString(l *int64) string {
	if l == nil {
		return "unlimited"
	}
	return strconv.FormatInt(*l, 10)
}
