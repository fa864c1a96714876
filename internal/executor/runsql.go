package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/script"
	"github.com/aqasim81/schemakick/internal/splitter"
	"github.com/aqasim81/schemakick/internal/tracker"
)

// Request is one script handed to RunSQL.
type Request struct {
	Script         script.Script
	VersionID      int64
	Version        string
	RepositoryPath string
	Environment    string
	Connection     database.ConnectionType
}

// RunSQL runs a script when the run policy allows it and reports whether
// it ran. In dry run the script counts as ran but nothing is executed or
// recorded.
func (m *Migrator) RunSQL(ctx context.Context, req Request) (bool, error) {
	s := req.Script
	log := m.log.WithField("script", s.Name)

	if err := m.handleOneTimeChanged(ctx, req); err != nil {
		m.fireProgress(ProgressEvent{Script: s.Name, Status: StatusFailed, Error: err})

		return false, err
	}

	category := s.Category()
	envFile := category == script.EnvironmentScoped
	rightEnv := envFile && m.environmentMatches(s.Name, req.Environment)

	shouldRun, err := m.policy.ShouldRun(ctx, s)
	if err != nil {
		return false, err
	}

	if (rightEnv || !envFile) && shouldRun {
		m.fireProgress(ProgressEvent{Script: s.Name, Status: StatusStarting})

		start := time.Now()
		err := m.runAllStatements(ctx, req)
		duration := time.Since(start)

		if err != nil {
			m.fireProgress(ProgressEvent{Script: s.Name, Status: StatusFailed, Duration: duration, Error: err})

			return false, err
		}

		m.fireProgress(ProgressEvent{Script: s.Name, Status: StatusCompleted, Duration: duration})

		return true, nil
	}

	// Environment files already said why they were passed over.
	if !envFile {
		reason := "No changes were found to run"
		if category == script.OneTime {
			reason = "One time script"
		}

		log.Infof("    Skipped %s - %s.", s.Name, reason)
	}

	m.fireProgress(ProgressEvent{Script: s.Name, Status: StatusSkipped})

	return false, nil
}

func (m *Migrator) environmentMatches(name, env string) bool {
	m.log.Debugf("Checking to see if %s is an environment file. We are in the %s environment.", name, env)

	match := script.InEnvironment(name, env)

	arrow, negation := "->", ""
	if !match {
		arrow, negation = "  ", " NOT"
	}

	if m.cfg.DryRun {
		m.log.Infof(" %s %s is an environment file. We are in the %s environment. This would%s have run.", arrow, name, env, negation)
	} else {
		m.log.Infof(" %s %s is an environment file. We are in the %s environment. This will%s run.", arrow, name, env, negation)
	}

	return match
}

// handleOneTimeChanged fails the run, or warns, when a run-once script was
// edited after it ran. A run-once script that never ran is not drift.
func (m *Migrator) handleOneTimeChanged(ctx context.Context, req Request) error {
	s := req.Script
	if !s.RunOnce {
		return nil
	}

	ran, err := m.db.HasRunScriptAlready(ctx, s.Name)
	if err != nil {
		return fmt.Errorf("checking whether %s ran: %w", s.Name, err)
	}

	if !ran {
		return nil
	}

	changed, err := m.detector.Changed(ctx, s.Name, s.Text)
	if err != nil {
		return err
	}

	if !changed {
		return nil
	}

	if m.cfg.WarnOnOneTimeScriptChanges {
		m.log.Warnf("%s is a one time script that has changed since it was run.", s.Name)

		return nil
	}

	msg := fmt.Sprintf("%s has changed since the last time it was run. By default this is not allowed - "+
		"scripts that run once should never change. To change this behavior to a warning, please set "+
		"warn_on_one_time_script_changes to true and run again. Stopping execution.", s.Name)

	m.rollback(ctx)
	m.recordError(ctx, req, s.Text, msg)
	m.closeAfterFailure(ctx)

	return fmt.Errorf("%w: %s", ErrOneTimeScriptChanged, msg)
}

func (m *Migrator) runAllStatements(ctx context.Context, req Request) error {
	s := req.Script
	server, name := m.db.ServerName(), m.db.DatabaseName()

	if m.cfg.DryRun {
		m.log.Infof(" -> Would have run %s on %s - %s.", s.Name, server, name)
		m.log.Infof(" -> Would record %s script ran on %s - %s in the %s table.",
			s.Name, server, name, m.db.Tables().ScriptsRun)

		return nil
	}

	m.log.Infof(" -> Running %s on %s - %s.", s.Name, server, name)

	stmts, err := m.statements(s.Text)
	if err != nil {
		return fmt.Errorf("splitting %s: %w", s.Name, err)
	}

	for _, stmt := range stmts {
		if err := m.db.RunSQL(ctx, stmt, req.Connection); err != nil {
			m.log.WithError(err).Errorf("Error executing file '%s': statement running was '%s'", s.Name, stmt)

			m.rollback(ctx)
			m.recordError(ctx, req, stmt, err.Error())
			m.closeAfterFailure(ctx)

			return fmt.Errorf("%w: %s: %w", ErrScriptExecution, s.Name, err)
		}
	}

	return m.recordRun(ctx, req)
}

// statements cuts text into the units sent to the target.
func (m *Migrator) statements(text string) ([]string, error) {
	if !m.db.SplitBatchStatements() {
		return []string{text}, nil
	}

	if pattern := m.db.StatementSeparatorPattern(); pattern != "" {
		return splitter.Split(text, pattern)
	}

	if sp, ok := m.db.(database.StatementSplitter); ok {
		return sp.SplitStatements(text)
	}

	return []string{text}, nil
}

func (m *Migrator) recordRun(ctx context.Context, req Request) error {
	s := req.Script

	m.log.Debugf(" -> Recording %s script ran on %s - %s.", s.Name, m.db.ServerName(), m.db.DatabaseName())

	err := m.db.InsertScriptRun(ctx, tracker.ScriptRun{
		VersionID:     req.VersionID,
		ScriptName:    s.Name,
		TextOfScript:  s.Text,
		TextHash:      m.hasher.Hash(s.Text),
		OneTimeScript: s.RunOnce,
	})
	if err != nil {
		return fmt.Errorf("recording %s: %w", s.Name, err)
	}

	return nil
}

// recordError writes a ScriptsRunErrors row. It runs while a failure is
// already being returned, so its own failure is only logged.
func (m *Migrator) recordError(ctx context.Context, req Request, erroneous, message string) {
	s := req.Script
	server, name := m.db.ServerName(), m.db.DatabaseName()

	if m.cfg.DryRun {
		m.log.Infof(" -> Would have recorded %s script ran with error on %s - %s in the %s table.",
			s.Name, server, name, m.db.Tables().ScriptsRunErrors)

		return
	}

	m.log.Debugf(" -> Recording %s script ran with error on %s - %s.", s.Name, server, name)

	err := m.db.InsertScriptRunError(ctx, tracker.ScriptRunError{
		RepositoryPath:        req.RepositoryPath,
		Version:               req.Version,
		ScriptName:            s.Name,
		TextOfScript:          s.Text,
		ErroneousPartOfScript: erroneous,
		ErrorMessage:          message,
	})
	if err != nil {
		m.log.WithError(err).Errorf("recording error of %s", s.Name)
	}
}
