package cli

import (
	"github.com/spf13/cobra"
)

var dropCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "drop",
	Short: "Drop the target database",
	RunE:  runDrop,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	dropCmd.Flags().Bool("dry-run", false, "log the drop without performing it")
	rootCmd.AddCommand(dropCmd)
}

func runDrop(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig.Clone()
	cfg.Drop = true

	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	return executeRun(cmd, cfg)
}
