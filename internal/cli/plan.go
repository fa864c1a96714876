package cli

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "plan",
	Short: "Show what a migration would do",
	Long: `Run the migration as a dry run: every script that would run is listed
and every database change is logged, but nothing is written to the
database or its audit tables.`,
	RunE: runPlan,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig.Clone()
	cfg.DryRun = true
	cfg.Drop = false

	return executeRun(cmd, cfg)
}
