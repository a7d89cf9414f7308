package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/audit"
)

var (
	tailLines       int
	tailJSON        bool
	auditVerifyJSON bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditVerifyCmd.Flags().BoolVar(&auditVerifyJSON, "json", false, "Print the verification result as JSON")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().BoolVar(&tailJSON, "json", false, "Print raw entries as indented JSON")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long: "Walks the JSONL audit log, validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous entry, and summarizes the guard\n" +
		"activity it covers. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent audit log entries",
	Long:  "Renders the last N audit entries as one line each: timestamp, depth,\noutcome, event, and the routine/caller involved.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])

	if auditVerifyJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		if !result.Valid {
			os.Exit(1)
		}
		return nil
	}

	if !result.Valid {
		fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
		os.Exit(1)
	}

	fmt.Printf("OK: %d entries verified across %d sessions (%d blocked, %d irregular)\n",
		result.Lines, result.Sessions, result.Blocked, result.Irregular)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	entries, err := lastEntries(args[0], tailLines)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if tailJSON {
			out, err := json.MarshalIndent(e, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			continue
		}
		fmt.Println(renderEntry(e))
	}
	return nil
}

// lastEntries reads the final n parseable entries from a JSONL log.
// Unparseable lines are skipped; the chain check belongs to verify.
func lastEntries(path string, n int) ([]audit.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var entries []audit.Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e audit.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

func renderEntry(e audit.Entry) string {
	subject := e.Caller
	if e.Routine != 0 {
		subject = fmt.Sprintf("%d %s", e.Routine, e.Caller)
	}
	line := fmt.Sprintf("%s  d%-3d %-8s %-16s %s", e.Timestamp, e.Depth, e.Outcome, e.Event, subject)
	if e.Reason != "" {
		line += "  (" + e.Reason + ")"
	}
	return line
}
