package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/rules"
	"github.com/spherex-xyz/flowguard/internal/server"
)

var rulesAs string

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesShowCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesSetCmd.Flags().StringVar(&rulesAs, "as", "", "Operator principal performing the change")
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show or change the active enforcement rules",
}

var rulesShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active enforcement mode and engine status",
	RunE:  runRulesShow,
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <mode>",
	Short: "Set the enforcement mode (continuity, prefix_flow, or off)",
	Long: "Switches the engine between enforcement modes. At most one enforcement\n" +
		"rule is active at a time; \"off\" disables tracking and checks entirely.\n" +
		"The change is persisted and survives restarts.",
	Args: cobra.ExactArgs(1),
	RunE: runRulesSet,
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	engine, err := server.NewEngine(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	out, _ := json.MarshalIndent(engine.Validator.Status(), "", "  ")
	fmt.Println(string(out))
	return nil
}

func runRulesSet(cmd *cobra.Command, args []string) error {
	mode, err := rules.ParseMode(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := server.NewEngine(ctx, configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	if mode == 0 {
		err = engine.Validator.DisableAllRules(ctx, rulesAs)
	} else {
		err = engine.Validator.SetRules(ctx, rulesAs, mode)
	}
	if err != nil {
		return err
	}

	fmt.Printf("mode: %s\n", engine.Validator.Status().Mode)
	return nil
}
