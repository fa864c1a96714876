package runner

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/aqasim81/schemakick/internal/database"
	"github.com/aqasim81/schemakick/internal/executor"
	"github.com/aqasim81/schemakick/internal/migration"
	"github.com/aqasim81/schemakick/internal/script"
)

// stage carries the version a folder's scripts are recorded against.
type stage struct {
	versionID int64
	version   string
}

// traverse hands every script of folder to the Migrator in order and
// copies the ones that ran into the change-drop folder.
func (r *Runner) traverse(ctx context.Context, folder migration.Folder, st stage, ct database.ConnectionType) error {
	if !folder.Enabled() {
		return nil
	}

	suffix := ""
	if folder.RunOnce {
		suffix += " (one-time only scripts)."
	}

	if folder.RunEveryTime {
		suffix += " (every time scripts)"
	}

	log := r.log.WithField("folder", folder.Name)
	log.Infof("Looking for %s scripts in \"%s\"%s", folder.FriendlyName, folder.Path, suffix)

	paths, err := migration.ListScripts(r.fs, folder.Path, r.cfg.SearchAllSubdirectories)
	if err != nil {
		return err
	}

	for _, path := range paths {
		text, err := migration.ReadScript(r.fs, path)
		if err != nil {
			return err
		}

		if !r.cfg.DisableTokenReplacement {
			text = r.replacer.Replace(text)
		}

		log.Debugf(" Found and running %s.", path)

		name := filepath.Base(path)

		ran, err := r.m.RunSQL(ctx, executor.Request{
			Script: script.Script{
				Name:         name,
				Path:         path,
				Text:         text,
				RunOnce:      folder.RunOnce,
				RunEveryTime: folder.RunEveryTime,
			},
			VersionID:      st.versionID,
			Version:        st.version,
			RepositoryPath: r.cfg.RepositoryPath,
			Environment:    r.cfg.EnvironmentName,
			Connection:     ct,
		})
		if err != nil {
			return err
		}

		if ran {
			r.result.ScriptsRan = append(r.result.ScriptsRan, name)
			r.copyToChangeDrop(path)
		}
	}

	return nil
}

// copyToChangeDrop copies a script that ran to
// <change_drop>/itemsRan/<path relative to the scripts root>. Failures
// are warnings.
func (r *Runner) copyToChangeDrop(path string) {
	if r.cfg.DisableOutput {
		return
	}

	rel, err := filepath.Rel(r.folders.Root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	dest := filepath.Join(r.folders.ChangeDrop, "itemsRan", rel)
	r.log.Debugf("Copying file %s to %s.", filepath.Base(path), dest)

	if err := r.copyFile(path, dest); err != nil {
		r.log.WithError(err).Warnf("Unable to copy %s to %s.", path, dest)
	}
}

func (r *Runner) copyFile(src, dest string) error {
	data, err := migration.ReadScript(r.fs, src)
	if err != nil {
		return err
	}

	return r.writeFile(dest, data)
}

func (r *Runner) writeFile(dest, content string) error {
	if err := r.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
	}

	if err := afero.WriteFile(r.fs, dest, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}

	return nil
}

// writeAuditScript stores a database-level script under
// <change_drop>/<phase>/<name>.sql. Failures are warnings.
func (r *Runner) writeAuditScript(s executor.AuditScript) {
	if r.cfg.DisableOutput {
		return
	}

	dest := filepath.Join(r.folders.ChangeDrop, s.Phase.String(), s.Name+".sql")

	if err := r.writeFile(dest, s.SQL); err != nil {
		r.log.WithError(err).Warnf("Unable to write %s.", dest)
	}
}
