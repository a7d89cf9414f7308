package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/flow"
	"github.com/spherex-xyz/flowguard/internal/server"
)

var simulateCaller string

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simulateCaller, "caller", "", "Sender identity presented on every hook")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <id> [id...]",
	Short: "Run a signed id sequence through the live hooks",
	Long: "Drives the engine's enter and exit hooks with a signed routine id\n" +
		"sequence (positive = entry, negative = exit) under a fresh transaction\n" +
		"identity, printing the outcome of each step. Unlike check, this\n" +
		"exercises sender gating, depth tracking, and persistence.\n" +
		"Exits 77 on the first blocked step.",
	Args: cobra.MinimumNArgs(1),
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := server.NewEngine(ctx, configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	session := engine.Begin()
	fmt.Printf("session %s\n", session)

	// Nesting counter decides which hooks cross the flow boundary: the
	// outermost entry and its matching exit are external, the rest internal.
	nesting := 0
	for _, id := range ids {
		var stepErr error
		var label string

		switch {
		case id > 0 && nesting == 0:
			label = "enter"
			stepErr = engine.Validator.EnterExternal(ctx, id, simulateCaller, nil)
			nesting++
		case id > 0:
			label = "enter"
			stepErr = engine.Validator.EnterInternal(ctx, id, simulateCaller)
			nesting++
		case id < 0 && nesting == 1:
			label = "exit"
			stepErr = engine.Validator.ExitExternal(ctx, -id, simulateCaller, 0, nil, nil)
			nesting--
		case id < 0:
			label = "exit"
			stepErr = engine.Validator.ExitInternal(ctx, -id, simulateCaller, 0)
			nesting--
		default:
			return fmt.Errorf("routine id must be non-zero")
		}

		st := engine.Validator.Status()
		if stepErr == nil {
			fmt.Printf("  %-5s %6d  ok       depth=%d\n", label, id, st.Depth)
			continue
		}

		var authErr *flow.AuthorizationError
		var intErr *flow.IntegrityError
		var cfgErr *flow.ConfigurationError
		if errors.As(stepErr, &authErr) || errors.As(stepErr, &intErr) || errors.As(stepErr, &cfgErr) {
			fmt.Printf("  %-5s %6d  BLOCKED  %s\n", label, id, stepErr)
			engine.Close()
			os.Exit(77)
		}
		return stepErr
	}

	fmt.Printf("flow approved, fingerprint %s\n", engine.Validator.Status().Fingerprint)
	return nil
}
