// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/logger"
)

// Report records one optimization run
type Report struct {
	ID                    int64     `json:"id"`
	Name                  string    `json:"name"`
	Hash                  string    `json:"hash"`
	Passes                string    `json:"passes"`
	OriginalSize          int       `json:"original_size"`
	OptimizedSize         int       `json:"optimized_size"`
	OriginalInstructions  int       `json:"original_instructions"`
	OptimizedInstructions int       `json:"optimized_instructions"`
	Removed               int       `json:"removed"`
	Fallback              bool      `json:"fallback"`
	ErrorMsg              string    `json:"error_msg"`
	DurationMS            int64     `json:"duration_ms"`
	Timestamp             time.Time `json:"timestamp"`
}

// Store handles database operations
type Store struct {
	db *sql.DB
}

// DefaultPath returns the report database location under the user's home
// directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home dir: %w", err)
	}
	return filepath.Join(home, ".stackopt", "reports.db"), nil
}

// InitDB opens the SQLite database at path, creating it and its directory
// when missing. ":memory:" opens a private in-memory database.
func InitDB(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.WrapStoreError("failed to create data dir", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapStoreError("failed to open db", err)
	}
	// A second connection to :memory: would see an empty database.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		hash TEXT NOT NULL,
		passes TEXT,
		original_size INTEGER,
		optimized_size INTEGER,
		original_instructions INTEGER,
		optimized_instructions INTEGER,
		removed INTEGER,
		fallback INTEGER,
		error_msg TEXT,
		duration_ms INTEGER,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_hash ON reports(hash);
	CREATE INDEX IF NOT EXISTS idx_reports_name ON reports(name);
	CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(timestamp);
	`
	_, err := db.Exec(query)
	if err != nil {
		return errors.WrapStoreError("failed to init schema", err)
	}
	return nil
}

// SaveReport persists a report and sets its ID. A zero timestamp is
// replaced by the current time.
func (s *Store) SaveReport(r *Report) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	query := `
	INSERT INTO reports (name, hash, passes, original_size, optimized_size,
		original_instructions, optimized_instructions, removed, fallback,
		error_msg, duration_ms, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.Exec(query, r.Name, r.Hash, r.Passes, r.OriginalSize, r.OptimizedSize,
		r.OriginalInstructions, r.OptimizedInstructions, r.Removed, r.Fallback,
		r.ErrorMsg, r.DurationMS, r.Timestamp.UnixNano())
	if err != nil {
		return errors.WrapStoreError("failed to insert report", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		r.ID = id
	}
	logger.Logger.Debug("report saved", "name", r.Name, "hash", r.Hash, "id", r.ID)
	return nil
}

// SearchParams defines the criteria for searching reports
type SearchParams struct {
	Hash         string
	NameRegex    string
	FallbackOnly bool
	Limit        int
}

// SearchReports returns the reports matching params, newest first.
func (s *Store) SearchReports(params SearchParams) ([]Report, error) {
	query := `SELECT id, name, hash, passes, original_size, optimized_size,
		original_instructions, optimized_instructions, removed, fallback,
		error_msg, duration_ms, timestamp FROM reports WHERE 1=1`
	args := []interface{}{}

	if params.Hash != "" {
		query += " AND hash = ?"
		args = append(args, params.Hash)
	}
	if params.FallbackOnly {
		query += " AND fallback = 1"
	}

	query += " ORDER BY timestamp DESC, id DESC"

	var nameRe *regexp.Regexp
	if params.NameRegex != "" {
		var err error
		nameRe, err = regexp.Compile(params.NameRegex)
		if err != nil {
			return nil, errors.WrapValidationError(fmt.Sprintf("invalid name regex: %v", err))
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.WrapStoreError("query failed", err)
	}
	defer rows.Close()

	var results []Report
	for rows.Next() {
		if params.Limit > 0 && len(results) >= params.Limit {
			break
		}

		var r Report
		var passes, errMsg sql.NullString
		var ts int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Hash, &passes, &r.OriginalSize, &r.OptimizedSize,
			&r.OriginalInstructions, &r.OptimizedInstructions, &r.Removed, &r.Fallback,
			&errMsg, &r.DurationMS, &ts); err != nil {
			return nil, errors.WrapStoreError("scan failed", err)
		}
		r.Passes, r.ErrorMsg = passes.String, errMsg.String
		r.Timestamp = time.Unix(0, ts).UTC()

		if nameRe != nil && !nameRe.MatchString(r.Name) {
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStoreError("query failed", err)
	}

	return results, nil
}

// Prune deletes reports older than cutoff and returns how many were
// removed. With dryRun set nothing is deleted; the count is what would be.
func (s *Store) Prune(cutoff time.Time, dryRun bool) (int64, error) {
	const query = "DELETE FROM reports WHERE timestamp < ?"
	if dryRun {
		r := DryRunExec(logger.Logger, s.db, query, cutoff.UnixNano())
		if r.Affected < 0 {
			return 0, errors.WrapStoreError("count failed", fmt.Errorf("could not count rows for %q", query))
		}
		return r.Affected, nil
	}

	res, err := s.db.Exec(query, cutoff.UnixNano())
	if err != nil {
		return 0, errors.WrapStoreError("delete failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.WrapStoreError("delete failed", err)
	}
	logger.Logger.Info("Reports pruned", "count", n, "before", cutoff)
	return n, nil
}
