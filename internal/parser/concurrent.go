package parser //nolint:revive // see parser.go

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// ContainsConcurrentIndex reports whether any statement is a
// CREATE INDEX CONCURRENTLY, which PostgreSQL refuses inside a transaction
// block.
func ContainsConcurrentIndex(sql string) (bool, error) {
	result, err := Parse(sql)
	if err != nil {
		return false, fmt.Errorf("parsing SQL for concurrent index detection: %w", err)
	}

	for _, stmt := range result.Stmts {
		node, ok := stmt.Stmt.Node.(*pg_query.Node_IndexStmt)
		if !ok {
			continue
		}

		if node.IndexStmt != nil && node.IndexStmt.Concurrent {
			return true, nil
		}
	}

	return false, nil
}
