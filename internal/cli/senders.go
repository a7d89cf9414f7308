package cli

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/server"
)

var sendersAs string

func init() {
	rootCmd.AddCommand(sendersCmd)
	sendersCmd.AddCommand(sendersListCmd)
	sendersCmd.AddCommand(sendersAddCmd)
	sendersCmd.AddCommand(sendersRemoveCmd)
	sendersCmd.PersistentFlags().StringVar(&sendersAs, "as", "", "Operator principal performing the change")
}

var sendersCmd = &cobra.Command{
	Use:   "senders",
	Short: "Manage the allowed-sender list",
}

var sendersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sender records, including revoked ones",
	RunE:  runSendersList,
}

var sendersAddCmd = &cobra.Command{
	Use:   "add <sender> [sender...]",
	Short: "Grant senders",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSendersAdd,
}

var sendersRemoveCmd = &cobra.Command{
	Use:   "remove <sender> [sender...]",
	Short: "Revoke senders",
	Long: "Revokes senders. Validation within the same second as the removal still\n" +
		"passes; afterwards the sender is strictly rejected at flow boundaries.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSendersRemove,
}

func runSendersList(cmd *cobra.Command, args []string) error {
	engine, err := server.NewEngine(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	snap := engine.Validator.Senders()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		rec := snap[k]
		state := "allowed"
		if !rec.Permitted {
			state = fmt.Sprintf("revoked at %s", time.Unix(rec.LastChange, 0).UTC().Format(time.RFC3339))
		}
		fmt.Printf("%-40s %s\n", k, state)
	}
	return nil
}

func runSendersAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := server.NewEngine(ctx, configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Validator.AddAllowedSenders(ctx, sendersAs, args...); err != nil {
		return err
	}
	fmt.Printf("added %d sender(s)\n", len(args))
	return nil
}

func runSendersRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := server.NewEngine(ctx, configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Validator.RemoveAllowedSenders(ctx, sendersAs, args...); err != nil {
		return err
	}
	fmt.Printf("removed %d sender(s)\n", len(args))
	return nil
}
