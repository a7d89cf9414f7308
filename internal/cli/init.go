package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spherex-xyz/flowguard/internal/config"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap flowguard configuration",
	Long: `Creates ~/.flowguard/ with a commented default config.yaml.

Edit the generated file to set the enforcement mode, allowed senders,
and approved call-flow patterns, then start the engine:
  flowguard serve`,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}

	wrote, err := writeIfMissing(path, config.DefaultConfigYAML())
	if err != nil {
		return err
	}

	if wrote {
		fmt.Printf("Created %s\n", path)
	} else {
		fmt.Printf("%s already exists (use --force to overwrite)\n", path)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  edit %s\n", path)
	fmt.Println("  flowguard check 1 -1")
	fmt.Println("  flowguard serve")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
