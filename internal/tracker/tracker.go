// Package tracker persists the audit trail of a migration target: one row
// per versioning, per script run and per script failure.
package tracker

import (
	"context"
	"fmt"
	"os/user"
	"regexp"
	"strings"
	"time"
)

// Row is the single-row result of QueryRow.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row result. pgx.Rows satisfies it directly.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier runs statements on whatever connection the owning dialect
// currently has open, transactional or not.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// ScriptRun is a ScriptsRun row.
type ScriptRun struct {
	ID            int64
	VersionID     int64
	ScriptName    string
	TextOfScript  string
	TextHash      string
	OneTimeScript bool
}

// ScriptRunError is a ScriptsRunErrors row.
type ScriptRunError struct {
	RepositoryPath        string
	Version               string
	ScriptName            string
	TextOfScript          string
	ErroneousPartOfScript string
	ErrorMessage          string
}

// Store reads and appends audit rows. Rows are never updated or deleted.
type Store struct {
	q       Querier
	dialect Dialect
	tables  TableNames
	user    string
	now     func() time.Time
}

// New creates a Store writing through q.
func New(q Querier, d Dialect, tables TableNames) *Store {
	return &Store{
		q:       q,
		dialect: d,
		tables:  tables,
		user:    CurrentUser(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Tables returns the qualified audit table names.
func (s *Store) Tables() TableNames {
	return s.tables
}

// CreateScript returns the DDL EnsureTables runs, for the change-drop output.
func (s *Store) CreateScript() string {
	return strings.Join(schemaStatements(s.dialect, s.tables), ";\n\n") + ";\n"
}

// EnsureTables creates the audit tables if they do not exist.
func (s *Store) EnsureTables(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.dialect, s.tables) {
		if err := s.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrTableCreation, err)
		}
	}

	return nil
}

// InsertVersion appends a version row and returns its id.
func (s *Store) InsertVersion(ctx context.Context, repositoryPath, version string) (int64, error) {
	now := s.now()

	var id int64

	err := s.q.QueryRow(ctx, s.bind(fmt.Sprintf(
		`INSERT INTO %s (repository_path, version, entry_date, modified_date, entered_by)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`, s.tables.Version)),
		repositoryPath, version, now, now, s.user,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("recording version %s: %w", version, err)
	}

	return id, nil
}

// GetVersion returns the newest version recorded for repositoryPath, or ""
// when none exists.
func (s *Store) GetVersion(ctx context.Context, repositoryPath string) (string, error) {
	var version string

	err := s.q.QueryRow(ctx, s.bind(fmt.Sprintf(
		`SELECT COALESCE((SELECT version FROM %s WHERE repository_path = $1 ORDER BY id DESC LIMIT 1), '')`,
		s.tables.Version)),
		repositoryPath,
	).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("reading current version: %w", err)
	}

	return version, nil
}

// InsertScriptRun appends a ScriptsRun row.
func (s *Store) InsertScriptRun(ctx context.Context, r ScriptRun) error {
	now := s.now()

	err := s.q.Exec(ctx, s.bind(fmt.Sprintf(
		`INSERT INTO %s (version_id, script_name, text_of_script, text_hash, one_time_script,
		                 entry_date, modified_date, entered_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.tables.ScriptsRun)),
		nullableID(r.VersionID), r.ScriptName, r.TextOfScript, r.TextHash, r.OneTimeScript,
		now, now, s.user,
	)
	if err != nil {
		return fmt.Errorf("recording script %s: %w", r.ScriptName, err)
	}

	return nil
}

// InsertScriptRunError appends a ScriptsRunErrors row.
func (s *Store) InsertScriptRunError(ctx context.Context, r ScriptRunError) error {
	now := s.now()

	err := s.q.Exec(ctx, s.bind(fmt.Sprintf(
		`INSERT INTO %s (repository_path, version, script_name, text_of_script,
		                 erroneous_part_of_script, error_message, entry_date, modified_date, entered_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`, s.tables.ScriptsRunErrors)),
		r.RepositoryPath, r.Version, r.ScriptName, r.TextOfScript,
		r.ErroneousPartOfScript, r.ErrorMessage, now, now, s.user,
	)
	if err != nil {
		return fmt.Errorf("recording error for script %s: %w", r.ScriptName, err)
	}

	return nil
}

// HasRunScript reports whether any ScriptsRun row exists for name.
func (s *Store) HasRunScript(ctx context.Context, name string) (bool, error) {
	var exists bool

	err := s.q.QueryRow(ctx, s.bind(fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE script_name = $1)`, s.tables.ScriptsRun)),
		name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking if script %s has run: %w", name, err)
	}

	return exists, nil
}

// GetCurrentScriptHash returns the hash of the latest run of name, or ""
// when it never ran.
func (s *Store) GetCurrentScriptHash(ctx context.Context, name string) (string, error) {
	var h string

	err := s.q.QueryRow(ctx, s.bind(fmt.Sprintf(
		`SELECT COALESCE((SELECT text_hash FROM %s WHERE script_name = $1 ORDER BY id DESC LIMIT 1), '')`,
		s.tables.ScriptsRun)),
		name,
	).Scan(&h)
	if err != nil {
		return "", fmt.Errorf("reading hash of script %s: %w", name, err)
	}

	return h, nil
}

// ListScriptsRun returns every ScriptsRun row in insertion order, without
// script text.
func (s *Store) ListScriptsRun(ctx context.Context) ([]ScriptRun, error) {
	rows, err := s.q.Query(ctx, fmt.Sprintf(
		`SELECT id, COALESCE(version_id, 0), COALESCE(script_name, ''), COALESCE(text_hash, ''), one_time_script
		 FROM %s ORDER BY id`, s.tables.ScriptsRun))
	if err != nil {
		return nil, fmt.Errorf("querying scripts run: %w", err)
	}
	defer rows.Close()

	var runs []ScriptRun

	for rows.Next() {
		var r ScriptRun
		if err := rows.Scan(&r.ID, &r.VersionID, &r.ScriptName, &r.TextHash, &r.OneTimeScript); err != nil {
			return nil, fmt.Errorf("scanning script run row: %w", err)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning scripts run: %w", err)
	}

	return runs, nil
}

var placeholder = regexp.MustCompile(`\$\d+`) //nolint:gochecknoglobals // compiled once, used by bind

// bind rewrites $N placeholders for drivers that only understand "?".
// Every query here uses each placeholder once and in order.
func (s *Store) bind(query string) string {
	if s.dialect == SQLite {
		return placeholder.ReplaceAllString(query, "?")
	}

	return query
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}

	return id
}

// CurrentUser names the OS account recorded in entered_by.
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}

	return "unknown"
}
