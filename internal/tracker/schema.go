package tracker

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour of the audit tables.
type Dialect int

// Supported dialects.
const (
	Postgres Dialect = iota
	SQLite
)

// TableNames holds the qualified names of the three audit tables.
type TableNames struct {
	Version          string
	ScriptsRun       string
	ScriptsRunErrors string
}

// NewTableNames qualifies the table names for the dialect. PostgreSQL keeps
// them in their own schema; SQLite has no schemas, so the schema name
// becomes a prefix.
func NewTableNames(d Dialect, schema, version, scriptsRun, scriptsRunErrors string) TableNames {
	sep := "."
	if d == SQLite {
		sep = "_"
	}

	qualify := func(table string) string {
		if schema == "" {
			return table
		}

		return schema + sep + table
	}

	return TableNames{
		Version:          qualify(version),
		ScriptsRun:       qualify(scriptsRun),
		ScriptsRunErrors: qualify(scriptsRunErrors),
	}
}

type columnTypes struct {
	id        string
	text      string
	shortText string
	timestamp string
	boolean   string
}

func typesFor(d Dialect) columnTypes {
	if d == SQLite {
		return columnTypes{
			id:        "INTEGER PRIMARY KEY AUTOINCREMENT",
			text:      "TEXT",
			shortText: "TEXT",
			timestamp: "DATETIME",
			boolean:   "BOOLEAN",
		}
	}

	return columnTypes{
		id:        "BIGSERIAL PRIMARY KEY",
		text:      "TEXT",
		shortText: "VARCHAR(255)",
		timestamp: "TIMESTAMPTZ",
		boolean:   "BOOLEAN",
	}
}

// schemaStatements returns the idempotent DDL creating the audit tables.
func schemaStatements(d Dialect, t TableNames) []string {
	c := typesFor(d)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id              %s,
    repository_path %s NULL,
    version         %s NULL,
    entry_date      %s NULL,
    modified_date   %s NULL,
    entered_by      %s NULL
)`, t.Version, c.id, c.shortText, c.shortText, c.timestamp, c.timestamp, c.shortText),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id              %s,
    version_id      BIGINT NULL REFERENCES %s (id),
    script_name     %s NULL,
    text_of_script  %s NULL,
    text_hash       %s NULL,
    one_time_script %s NOT NULL DEFAULT FALSE,
    entry_date      %s NULL,
    modified_date   %s NULL,
    entered_by      %s NULL
)`, t.ScriptsRun, c.id, t.Version, c.shortText, c.text, c.shortText, c.boolean, c.timestamp, c.timestamp, c.shortText),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (script_name)`,
			indexName(t.ScriptsRun, "script_name"), t.ScriptsRun),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id                       %s,
    repository_path          %s NULL,
    version                  %s NULL,
    script_name              %s NULL,
    text_of_script           %s NULL,
    erroneous_part_of_script %s NULL,
    error_message            %s NULL,
    entry_date               %s NULL,
    modified_date            %s NULL,
    entered_by               %s NULL
)`, t.ScriptsRunErrors, c.id, c.shortText, c.shortText, c.shortText, c.text, c.text, c.text,
			c.timestamp, c.timestamp, c.shortText),
	}
}

// indexName builds an unqualified index name; PostgreSQL places the index
// in the table's schema.
func indexName(table, column string) string {
	return strings.ReplaceAll(table, ".", "_") + "_" + column + "_idx"
}
