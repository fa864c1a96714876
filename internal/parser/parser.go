// Package parser wraps the PostgreSQL grammar for statement splitting and
// statement inspection.
package parser //nolint:revive // intentional: does not conflict with go/parser in internal package

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ParseResult holds the parsed AST and original SQL.
type ParseResult struct {
	Stmts []*pg_query.RawStmt
	SQL   string
}

// Parse parses a PostgreSQL SQL string and returns the AST.
// Returns an empty result (zero statements) for empty or whitespace-only input.
func Parse(sql string) (*ParseResult, error) {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return &ParseResult{SQL: sql}, nil
	}

	tree, err := pg_query.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	return &ParseResult{
		Stmts: tree.Stmts,
		SQL:   sql,
	}, nil
}

// Split cuts a script into top-level statements using the PostgreSQL
// scanner, so dollar-quoted bodies and nested comments stay intact.
// The scanner tolerates statements the parser would reject, leaving
// syntax errors for the server to report against the right statement.
func Split(sql string) ([]string, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, nil
	}

	stmts, err := pg_query.SplitWithScanner(sql, true)
	if err != nil {
		return nil, fmt.Errorf("splitting SQL: %w", err)
	}

	out := stmts[:0]

	for _, s := range stmts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	return out, nil
}
