// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// DestructiveOp represents a type of destructive SQL operation.
type DestructiveOp string

const (
	OpDelete   DestructiveOp = "DELETE"
	OpDrop     DestructiveOp = "DROP"
	OpAlter    DestructiveOp = "ALTER"
	OpTruncate DestructiveOp = "TRUNCATE"
	OpUpdate   DestructiveOp = "UPDATE"
	OpSafe     DestructiveOp = ""
)

// DryRunResult holds the outcome of a dry-run analysis.
type DryRunResult struct {
	Query       string
	Args        []interface{}
	Operation   DestructiveOp
	Destructive bool
	// Affected is the number of rows a DELETE would remove, or -1 when it
	// was not counted.
	Affected int64
}

// ClassifySQL returns the destructive operation type for a SQL statement.
// Returns OpSafe if the statement is not destructive.
func ClassifySQL(query string) DestructiveOp {
	normalized := strings.ToUpper(strings.TrimSpace(query))
	for _, op := range []DestructiveOp{OpDelete, OpDrop, OpAlter, OpTruncate, OpUpdate} {
		if strings.HasPrefix(normalized, string(op)) {
			return op
		}
	}
	return OpSafe
}

// DryRunExec analyzes a SQL statement without executing it and logs a
// warning if it is destructive. For a DELETE it counts the rows the
// statement would remove, provided db is not nil.
func DryRunExec(logger *slog.Logger, db *sql.DB, query string, args ...interface{}) DryRunResult {
	op := ClassifySQL(query)
	result := DryRunResult{
		Query:       query,
		Args:        args,
		Operation:   op,
		Destructive: op != OpSafe,
		Affected:    -1,
	}

	if op == OpDelete && db != nil {
		count := "SELECT COUNT(*)" + strings.TrimSpace(query)[len(OpDelete):]
		if err := db.QueryRow(count, args...).Scan(&result.Affected); err != nil {
			logger.Debug("dry-run row count failed", "query", query, "error", err)
			result.Affected = -1
		}
	}

	if result.Destructive {
		logger.Warn("[DRY-RUN] destructive SQL detected",
			"operation", string(op),
			"query", query,
			"args", fmt.Sprintf("%v", args),
			"affected", result.Affected,
		)
	}

	return result
}
