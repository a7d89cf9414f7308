package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/fingerprint"
	"github.com/spherex-xyz/flowguard/internal/server"
)

var (
	patternsAs  string
	patternsIDs string
)

func init() {
	rootCmd.AddCommand(patternsCmd)
	patternsCmd.AddCommand(patternsListCmd)
	patternsCmd.AddCommand(patternsAddCmd)
	patternsCmd.AddCommand(patternsRemoveCmd)
	patternsCmd.PersistentFlags().StringVar(&patternsAs, "as", "", "Operator principal performing the change")
	patternsAddCmd.Flags().StringVar(&patternsIDs, "ids", "", "Signed routine id sequence to fold (e.g. 1,2,-2,-1)")
	patternsRemoveCmd.Flags().StringVar(&patternsIDs, "ids", "", "Signed routine id sequence to fold (e.g. 1,2,-2,-1)")
}

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Manage the approved call-flow patterns",
}

var patternsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pattern records, including revoked ones",
	RunE:  runPatternsList,
}

var patternsAddCmd = &cobra.Command{
	Use:   "add [fingerprint...]",
	Short: "Approve patterns by hex fingerprint or --ids sequence",
	RunE:  runPatternsAdd,
}

var patternsRemoveCmd = &cobra.Command{
	Use:   "remove [fingerprint...]",
	Short: "Revoke patterns by hex fingerprint or --ids sequence",
	RunE:  runPatternsRemove,
}

// resolvePatterns collects fingerprints from hex args plus an optional
// folded --ids sequence.
func resolvePatterns(args []string) ([]fingerprint.Hash, error) {
	var patterns []fingerprint.Hash
	for _, a := range args {
		h, err := fingerprint.Parse(a)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, h)
	}

	if patternsIDs != "" {
		var ids []int64
		for _, part := range strings.Split(patternsIDs, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid routine id %q: %w", part, err)
			}
			ids = append(ids, id)
		}
		patterns = append(patterns, fingerprint.FoldSequence(ids))
	}

	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns given: pass hex fingerprints or --ids")
	}
	return patterns, nil
}

func runPatternsList(cmd *cobra.Command, args []string) error {
	engine, err := server.NewEngine(context.Background(), configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	snap := engine.Validator.Patterns()
	keys := make([]string, 0, len(snap))
	recs := make(map[string]bool, len(snap))
	changes := make(map[string]int64, len(snap))
	for h, rec := range snap {
		k := h.String()
		keys = append(keys, k)
		recs[k] = rec.Permitted
		changes[k] = rec.LastChange
	}
	sort.Strings(keys)

	for _, k := range keys {
		state := "approved"
		if !recs[k] {
			state = fmt.Sprintf("revoked at %s", time.Unix(changes[k], 0).UTC().Format(time.RFC3339))
		}
		fmt.Printf("%s %s\n", k, state)
	}
	return nil
}

func runPatternsAdd(cmd *cobra.Command, args []string) error {
	patterns, err := resolvePatterns(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := server.NewEngine(ctx, configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Validator.AddAllowedPatterns(ctx, patternsAs, patterns...); err != nil {
		return err
	}
	for _, p := range patterns {
		fmt.Printf("approved %s\n", p)
	}
	return nil
}

func runPatternsRemove(cmd *cobra.Command, args []string) error {
	patterns, err := resolvePatterns(args)
	if err != nil {
		return err
	}

	ctx := context.Background()
	engine, err := server.NewEngine(ctx, configPath)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Validator.RemoveAllowedPatterns(ctx, patternsAs, patterns...); err != nil {
		return err
	}
	for _, p := range patterns {
		fmt.Printf("revoked %s\n", p)
	}
	return nil
}
