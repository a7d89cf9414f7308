package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/server"
)

var checkJSON bool

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Output as JSON")
}

var checkCmd = &cobra.Command{
	Use:   "check <id> [id...]",
	Short: "Check a routine id sequence against the approved patterns (dry-run)",
	Long: "Folds the signed routine id sequence (positive = entry, negative = exit)\n" +
		"into a fingerprint and reports whether it is approved. Engine state is\n" +
		"not touched. Exits 0 if approved, 77 if not.",
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid routine id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	engine, err := server.NewEngine(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	fp, allowed := engine.Validator.CheckSequence(ids)

	if checkJSON {
		out, _ := json.MarshalIndent(map[string]any{
			"fingerprint": fp.String(),
			"allowed":     allowed,
		}, "", "  ")
		fmt.Println(string(out))
	} else if allowed {
		fmt.Printf("ALLOWED %s\n", fp)
	} else {
		fmt.Printf("BLOCKED %s\n", fp)
	}

	if !allowed {
		os.Exit(77)
	}
	return nil
}
