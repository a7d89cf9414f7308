package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/integrity"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "flowguard",
	Short: "Call-flow integrity guard",
	Long:  "Tracks the nested call sequence of each transaction as a rolling fingerprint\nand blocks any flow whose shape was never approved. Enforcement, not observability.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := integrity.Verify(); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(78) // EX_CONFIG
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.flowguard/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
