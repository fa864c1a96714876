// Package migration describes the fixed set of stage folders a migration
// walks and discovers the scripts inside them.
package migration

import (
	"path/filepath"
	"time"

	"github.com/aqasim81/schemakick/internal/config"
)

// Folder is one stage of a migration: a directory of scripts sharing a
// run policy.
type Folder struct {
	Name         string
	Path         string
	FriendlyName string
	RunOnce      bool
	RunEveryTime bool
}

// Enabled reports whether the stage has a directory configured.
func (f Folder) Enabled() bool {
	return f.Name != ""
}

// KnownFolders is the complete, immutable stage set of one run plus the
// change-drop directory receiving its audit output.
type KnownFolders struct {
	BeforeMigration             Folder
	AlterDatabase               Folder
	RunAfterCreateDatabase      Folder
	RunBeforeUp                 Folder
	Up                          Folder
	RunFirstAfterUp             Folder
	Functions                   Folder
	Views                       Folder
	Sprocs                      Folder
	Indexes                     Folder
	RunAfterOtherAnyTimeScripts Folder
	Permissions                 Folder
	AfterMigration              Folder

	Root       string
	ChangeDrop string
}

// NewKnownFolders builds the stage set from configuration. The change-drop
// directory is stamped with now so runs never overwrite each other.
func NewKnownFolders(cfg *config.Config, now time.Time) KnownFolders {
	root := cfg.SQLFilesDirectory
	f := cfg.Folders

	folder := func(name, friendly string, once, everyTime bool) Folder {
		path := ""
		if name != "" {
			path = filepath.Join(root, name)
		}

		return Folder{Name: name, Path: path, FriendlyName: friendly, RunOnce: once, RunEveryTime: everyTime}
	}

	return KnownFolders{
		BeforeMigration:             folder(f.BeforeMigration, "Before Migration", false, true),
		AlterDatabase:               folder(f.AlterDatabase, "Alter Database", false, false),
		RunAfterCreateDatabase:      folder(f.RunAfterCreateDatabase, "Run After Create Database", false, false),
		RunBeforeUp:                 folder(f.RunBeforeUp, "Run Before Update", false, false),
		Up:                          folder(f.Up, "Update", true, false),
		RunFirstAfterUp:             folder(f.RunFirstAfterUp, "Run First After Update", false, false),
		Functions:                   folder(f.Functions, "Function", false, false),
		Views:                       folder(f.Views, "View", false, false),
		Sprocs:                      folder(f.Sprocs, "Stored Procedure", false, false),
		Indexes:                     folder(f.Indexes, "Index", false, false),
		RunAfterOtherAnyTimeScripts: folder(f.RunAfterOtherAnyTimeScripts, "Run after Other Anytime Scripts", false, false),
		Permissions:                 folder(f.Permissions, "Permission", false, true),
		AfterMigration:              folder(f.AfterMigration, "After Migration", false, true),

		Root:       root,
		ChangeDrop: filepath.Join(cfg.OutputPath, now.UTC().Format("20060102_150405")),
	}
}
