package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
)

// errUnknownOutputFormat is returned for an unsupported --format value.
var errUnknownOutputFormat = errors.New("unknown output format")

var statusCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "status",
	Short: "Show the database version and script history",
	Long: `Display the version last recorded for the repository and every
script recorded in the audit tables.`,
	RunE: runStatus,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	statusCmd.Flags().String("format", "text", "output format (text, json)")
	rootCmd.AddCommand(statusCmd)
}

type scriptStatus struct {
	Name      string `json:"name"`
	VersionID int64  `json:"version_id"`
	Hash      string `json:"hash"`
	OneTime   bool   `json:"one_time"`
}

type statusReport struct {
	Server      string         `json:"server"`
	Database    string         `json:"database"`
	AuditTables bool           `json:"audit_tables"`
	Version     string         `json:"version"`
	Scripts     []scriptStatus `json:"scripts"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("%w: %q", errUnknownOutputFormat, format)
	}

	// Status only reads. Dry run keeps a missing SQLite file from being
	// created by the connection.
	cfg := AppConfig.Clone()
	cfg.DryRun = true

	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	db, err := newDatabase(cfg, log, afero.NewOsFs())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := collectStatus(ctx, db, cfg)
	if closeErr := db.Close(ctx); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		return err
	}

	if format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	printStatus(cmd.OutOrStdout(), report)

	return nil
}

func collectStatus(ctx context.Context, db database.Database, cfg *config.Config) (statusReport, error) {
	if err := db.InitializeConnections(ctx, cfg); err != nil {
		return statusReport{}, err
	}

	report := statusReport{Server: db.ServerName(), Database: db.DatabaseName(), Version: "0"}

	if err := db.OpenConnection(ctx, false); err != nil {
		return report, err
	}

	has, err := db.HasSupportTables(ctx)
	if err != nil {
		return report, fmt.Errorf("checking audit tables: %w", err)
	}

	report.AuditTables = has
	if !has {
		return report, nil
	}

	v, err := db.GetVersion(ctx, cfg.RepositoryPath)
	if err != nil {
		return report, fmt.Errorf("reading version: %w", err)
	}

	if v != "" {
		report.Version = v
	}

	runs, err := db.ListScriptsRun(ctx)
	if err != nil {
		return report, fmt.Errorf("listing scripts run: %w", err)
	}

	for _, r := range runs {
		report.Scripts = append(report.Scripts, scriptStatus{
			Name:      r.ScriptName,
			VersionID: r.VersionID,
			Hash:      r.TextHash,
			OneTime:   r.OneTimeScript,
		})
	}

	return report, nil
}

func printStatus(out io.Writer, r statusReport) {
	fmt.Fprintf(out, "Database: %s on %s\n", r.Database, r.Server)

	if !r.AuditTables {
		fmt.Fprintln(out, "No audit tables found: nothing has been migrated yet.")
		return
	}

	fmt.Fprintf(out, "Version:  %s\n", r.Version)
	fmt.Fprintf(out, "Scripts run: %d\n\n", len(r.Scripts))

	if len(r.Scripts) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCRIPT\tVERSION ID\tONE TIME\tHASH")

	for _, s := range r.Scripts {
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", s.Name, s.VersionID, s.OneTime, s.Hash)
	}

	_ = w.Flush()
}
