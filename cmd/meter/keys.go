package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/westsidetechsolutions/meter/app"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
	Long: `Manage meter API keys.

Each user can have multiple API keys. The raw key is shown once at
issue time; only its hash is stored.

Examples:
  meter keys list --user=user_123
  meter keys issue --user=user_123 --name=ci
  meter keys revoke key_abc123`,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a user's API keys",
	RunE:  runKeysList,
}

var keysIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API key",
	RunE:  runKeysIssue,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key-id>",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runKeysRevoke,
}

var (
	keyUserID string
	keyName   string
	keyPrefix string
)

func init() {
	rootCmd.AddCommand(keysCmd)

	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysIssueCmd)
	keysCmd.AddCommand(keysRevokeCmd)

	keysListCmd.Flags().StringVar(&keyUserID, "user", "", "user ID (required)")
	keysListCmd.MarkFlagRequired("user")
	keysIssueCmd.Flags().StringVar(&keyUserID, "user", "", "user ID (required)")
	keysIssueCmd.Flags().StringVar(&keyName, "name", "", "key name (optional)")
	keysIssueCmd.Flags().StringVar(&keyPrefix, "prefix", "", "override the configured key prefix")
	keysIssueCmd.MarkFlagRequired("user")
}

func runKeysList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	keys, err := a.Keys.List(cmd.Context(), keyUserID)
	if err != nil {
		return fmt.Errorf("failed to list keys: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintf(out, "No keys found for user %s.\n", keyUserID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tCREATED\tLAST USED")
	for _, k := range keys {
		status := "active"
		if k.RevokedAt != nil {
			status = "revoked"
		}
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Name, status, k.CreatedAt.Format("2006-01-02"), lastUsed)
	}
	return w.Flush()
}

func runKeysIssue(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	req := app.IssueRequest{UserID: keyUserID, Name: keyName}
	if cmd.Flags().Changed("prefix") {
		req.Prefix = &keyPrefix
	}

	res, err := a.Keys.Issue(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("failed to issue key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key ID:  %s\n", res.Key.ID)
	fmt.Fprintf(out, "User:    %s\n", res.Key.UserID)
	fmt.Fprintf(out, "API key: %s\n", res.Raw)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Store this key now. It cannot be shown again.")
	return nil
}

func runKeysRevoke(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if err := a.Keys.Revoke(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Key %s revoked.\n", args[0])
	return nil
}
