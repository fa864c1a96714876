package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/executor"
	"github.com/aqasim81/schemakick/internal/hash"
	"github.com/aqasim81/schemakick/internal/migration"
	"github.com/aqasim81/schemakick/internal/runner"
	"github.com/aqasim81/schemakick/internal/tokens"
)

var migrateCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "migrate",
	Short: "Run the migration",
	Long: `Create the database if needed, then run every stage folder in order,
recording each script that runs. Supports dry-run and drop modes.`,
	RunE: runMigrate,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	migrateCmd.Flags().Bool("dry-run", false, "log what would happen without changing the database")
	migrateCmd.Flags().Bool("drop", false, "drop the database instead of migrating it")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig.Clone()

	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}

	if cmd.Flags().Changed("drop") {
		cfg.Drop, _ = cmd.Flags().GetBool("drop")
	}

	return executeRun(cmd, cfg)
}

// runCounts tallies progress events for the closing summary.
type runCounts struct {
	ran     int
	skipped int
}

// executeRun wires the target, migrator and runner for cfg and runs them.
func executeRun(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	h, err := hash.New(cfg.HashAlgorithm)
	if err != nil {
		return err
	}

	fsys := afero.NewOsFs()

	db, err := newDatabase(cfg, log, fsys)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintf(out, "Connecting to %s\n", config.RedactURL(cfg.DatabaseURL))

	var counts runCounts

	replacer := tokens.New(cfg)
	m := executor.New(db, h, cfg,
		executor.WithLogger(log),
		executor.WithTokenReplacer(replacer),
		executor.WithProgressCallback(progressPrinter(out, &counts)),
	)

	r := runner.New(cfg, m, migration.NewKnownFolders(cfg, time.Now()),
		runner.WithFs(fsys),
		runner.WithLogger(log),
		runner.WithTokenReplacer(replacer),
		runner.WithConfirm(stdinConfirm(cmd.InOrStdin(), out)),
		runner.WithAppVersion(version),
	)

	res, err := r.Run(ctx)
	if err != nil {
		return err
	}

	printResult(out, cfg, res, counts)

	return nil
}

func progressPrinter(out io.Writer, counts *runCounts) func(executor.ProgressEvent) {
	return func(event executor.ProgressEvent) {
		switch event.Status {
		case executor.StatusStarting:
			fmt.Fprintf(out, "  Running %s ... ", event.Script)
		case executor.StatusCompleted:
			fmt.Fprintf(out, "done (%s)\n", event.Duration.Truncate(time.Millisecond))
			counts.ran++
		case executor.StatusSkipped:
			counts.skipped++
		case executor.StatusFailed:
			fmt.Fprintf(out, "FAILED\n")
			fmt.Fprintf(out, "    Error: %v\n", event.Error)
		}
	}
}

func printResult(out io.Writer, cfg *config.Config, res runner.Result, counts runCounts) {
	switch res.Outcome {
	case runner.OutcomeDropped:
		if cfg.DryRun {
			fmt.Fprintln(out, "\nDry run complete: the database would be dropped.")
		} else {
			fmt.Fprintln(out, "\nDrop complete.")
		}
	case runner.OutcomeAbortedMissingSupportTables:
		fmt.Fprintln(out, "\nDry run stopped: the database has no audit tables yet, so nothing more can be simulated.")
	default:
		if cfg.DryRun {
			fmt.Fprintf(out, "\nDry run complete: %d script(s) would run, %d unchanged. Version would be %s.\n",
				counts.ran, counts.skipped, res.Version)
		} else {
			fmt.Fprintf(out, "\nMigrate complete: %d ran, %d skipped. Now at version %s.\n",
				counts.ran, counts.skipped, res.Version)
		}
	}

	if !cfg.DisableOutput {
		fmt.Fprintf(out, "Change drop: %s\n", res.ChangeDropPath)
	}
}
