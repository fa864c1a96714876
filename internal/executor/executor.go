// Package executor is the single gateway for every change a migration makes
// to a target database. It decides whether a script runs, keeps the audit
// trail, and turns each mutation into a logged no-op in dry run.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aqasim81/schemakick/internal/config"
	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/hash"
	"github.com/aqasim81/schemakick/internal/logging"
	"github.com/aqasim81/schemakick/internal/script"
	"github.com/aqasim81/schemakick/internal/tokens"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// ProgressEvent is emitted for each script RunSQL considers.
type ProgressEvent struct {
	Script   string
	Status   string
	Duration time.Duration
	Error    error
}

// Phase orders database-level scripts in the change-drop output.
type Phase int

// Phases.
const (
	PhaseBefore Phase = iota
	PhaseDuring
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseDuring:
		return "during"
	case PhaseAfter:
		return "after"
	default:
		return "before"
	}
}

// AuditScript is a database-level script the Migrator ran, or would have
// run in dry run.
type AuditScript struct {
	Name  string
	SQL   string
	Phase Phase
}

// Migrator executes scripts and database-level operations against one
// target. It is not safe for concurrent use.
type Migrator struct {
	db       database.Database
	hasher   hash.Hasher
	cfg      config.Config
	detector *script.Detector
	policy   *script.Policy
	replacer *tokens.Replacer

	log        logrus.FieldLogger
	onProgress func(ProgressEvent)
	onScript   []func(AuditScript)

	inTransaction bool
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Migrator) { m.log = l }
}

// WithProgressCallback sets a function called for each script processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(m *Migrator) { m.onProgress = fn }
}

// WithScriptCallback sets a function receiving every database-level script,
// live or dry run.
func WithScriptCallback(fn func(AuditScript)) Option {
	return func(m *Migrator) { m.onScript = append(m.onScript, fn) }
}

// WithTokenReplacer sets the replacer applied to restore options.
func WithTokenReplacer(r *tokens.Replacer) Option {
	return func(m *Migrator) { m.replacer = r }
}

// New creates a Migrator over db. cfg is copied.
func New(db database.Database, h hash.Hasher, cfg *config.Config, opts ...Option) *Migrator {
	m := &Migrator{
		db:     db,
		hasher: h,
		cfg:    *cfg.Clone(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.log == nil {
		m.log = logging.Discard()
	}

	if m.replacer == nil {
		m.replacer = tokens.New(&m.cfg)
	}

	m.detector = script.NewDetector(h, db, m.log)
	m.policy = script.NewPolicy(m.detector, db, m.cfg.RunAllAnyTimeScripts)

	return m
}

// Database returns the target the Migrator drives.
func (m *Migrator) Database() database.Database { return m.db }

// DryRun reports whether mutations are suppressed.
func (m *Migrator) DryRun() bool { return m.cfg.DryRun }

// InitializeConnections resolves the target's connection settings.
func (m *Migrator) InitializeConnections(ctx context.Context) error {
	if err := m.db.InitializeConnections(ctx, &m.cfg); err != nil {
		return fmt.Errorf("initializing connections: %w", err)
	}

	return nil
}

// OpenConnection opens the default connection. withTransaction is
// remembered so steps that must run outside the transaction can restore it.
func (m *Migrator) OpenConnection(ctx context.Context, withTransaction bool) error {
	m.inTransaction = withTransaction

	if err := m.db.OpenConnection(ctx, withTransaction); err != nil {
		return fmt.Errorf("opening connection: %w", err)
	}

	return nil
}

// CloseConnection commits any transaction and closes the default connection.
func (m *Migrator) CloseConnection(ctx context.Context) error {
	if err := m.db.CloseConnection(ctx); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}

	return nil
}

// OpenAdminConnection opens the server-level connection.
func (m *Migrator) OpenAdminConnection(ctx context.Context) error {
	if err := m.db.OpenAdminConnection(ctx); err != nil {
		return fmt.Errorf("opening admin connection: %w", err)
	}

	return nil
}

// CloseAdminConnection closes the server-level connection.
func (m *Migrator) CloseAdminConnection(ctx context.Context) error {
	if err := m.db.CloseAdminConnection(ctx); err != nil {
		return fmt.Errorf("closing admin connection: %w", err)
	}

	return nil
}

// Close releases every handle of the target.
func (m *Migrator) Close(ctx context.Context) error {
	return m.db.Close(ctx)
}

// AddScriptCallback registers another receiver of database-level scripts.
func (m *Migrator) AddScriptCallback(fn func(AuditScript)) {
	m.onScript = append(m.onScript, fn)
}

func (m *Migrator) emit(name, sql string, phase Phase) {
	if sql == "" {
		return
	}

	for _, fn := range m.onScript {
		fn(AuditScript{Name: name, SQL: sql, Phase: phase})
	}
}

func (m *Migrator) fireProgress(event ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
