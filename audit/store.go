// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/cmgzone/notebookllm/lib/sqlitepool"
)

// Store persists audit entries in SQLite. Writes are pure appends;
// there is no update or delete path.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening an audit store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Logger receives operational messages. Required.
	Logger *slog.Logger
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS file_audit_log (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	action         TEXT NOT NULL,
	path           TEXT NOT NULL,
	success        INTEGER NOT NULL,
	error_code     TEXT,
	byte_count     INTEGER NOT NULL DEFAULT 0,
	content_digest TEXT,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_file_audit_user
	ON file_audit_log(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS shell_audit_log (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	mode             TEXT NOT NULL,
	command          TEXT NOT NULL,
	args             TEXT,
	cwd              TEXT,
	success          INTEGER NOT NULL,
	exit_code        INTEGER,
	error_code       TEXT,
	duration_ms      INTEGER NOT NULL DEFAULT 0,
	stdout_bytes     INTEGER NOT NULL DEFAULT 0,
	stderr_bytes     INTEGER NOT NULL DEFAULT 0,
	stdout_truncated INTEGER NOT NULL DEFAULT 0,
	stderr_truncated INTEGER NOT NULL DEFAULT 0,
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shell_audit_user
	ON shell_audit_log(user_id, created_at DESC);
`

// OpenStore opens (and creates if necessary) the audit store at the
// given path. The caller must Close the store when done.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("audit store: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Logger:   cfg.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, auditSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// AppendFile appends one file audit entry. The entry's ID and
// CreatedAt must already be set by the enforcement point.
func (s *Store) AppendFile(ctx context.Context, entry *FileEntry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit store: append file: %w", err)
	}
	defer s.pool.Put(conn)

	var errorCode any
	if entry.ErrorCode != "" {
		errorCode = entry.ErrorCode
	}
	var digest any
	if entry.ContentDigest != "" {
		digest = entry.ContentDigest
	}

	err = sqlitex.Execute(conn, `INSERT INTO file_audit_log
		(id, user_id, action, path, success, error_code, byte_count,
		 content_digest, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.ID,
				entry.UserID,
				entry.Action,
				entry.Path,
				boolToInt(entry.Success),
				errorCode,
				entry.ByteCount,
				digest,
				entry.DurationMs,
				entry.CreatedAt.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("audit store: append file entry %s: %w", entry.ID, err)
	}
	return nil
}

// AppendShell appends one shell audit entry. The entry's ID and
// CreatedAt must already be set by the execution engine.
func (s *Store) AppendShell(ctx context.Context, entry *ShellEntry) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("audit store: append shell: %w", err)
	}
	defer s.pool.Put(conn)

	var argsJSON any
	if len(entry.Args) > 0 {
		data, err := json.Marshal(entry.Args)
		if err != nil {
			return fmt.Errorf("audit store: marshal args: %w", err)
		}
		argsJSON = string(data)
	}
	var cwd any
	if entry.Cwd != "" {
		cwd = entry.Cwd
	}
	var exitCode any
	if entry.ExitCode != nil {
		exitCode = *entry.ExitCode
	}
	var errorCode any
	if entry.ErrorCode != "" {
		errorCode = entry.ErrorCode
	}

	err = sqlitex.Execute(conn, `INSERT INTO shell_audit_log
		(id, user_id, mode, command, args, cwd, success, exit_code,
		 error_code, duration_ms, stdout_bytes, stderr_bytes,
		 stdout_truncated, stderr_truncated, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				entry.ID,
				entry.UserID,
				entry.Mode,
				entry.Command,
				argsJSON,
				cwd,
				boolToInt(entry.Success),
				exitCode,
				errorCode,
				entry.DurationMs,
				entry.StdoutBytes,
				entry.StderrBytes,
				boolToInt(entry.StdoutTruncated),
				boolToInt(entry.StderrTruncated),
				entry.CreatedAt.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("audit store: append shell entry %s: %w", entry.ID, err)
	}
	return nil
}

// FileFilter selects file audit entries. UserID is required.
type FileFilter struct {
	UserID string
	Action string // optional exact match
	Limit  int    // default 50, capped at 500
}

// ListFile returns the user's file audit entries, newest first.
func (s *Store) ListFile(ctx context.Context, filter FileFilter) ([]FileEntry, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("audit store: UserID is required")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit store: list file: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT id, user_id, action, path, success, error_code,
			byte_count, content_digest, duration_ms, created_at
		FROM file_audit_log WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.Action != "" {
		query += " AND action = ?"
		args = append(args, filter.Action)
	}
	// rowid breaks same-millisecond ties by insertion order; the random
	// hex ids carry no ordering.
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	var entries []FileEntry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entries = append(entries, scanFileEntry(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: list file for %s: %w", filter.UserID, err)
	}
	return entries, nil
}

// ShellFilter selects shell audit entries. UserID is required.
type ShellFilter struct {
	UserID string
	Mode   string // optional exact match
	Limit  int    // default 50, capped at 500
}

// ListShell returns the user's shell audit entries, newest first.
func (s *Store) ListShell(ctx context.Context, filter ShellFilter) ([]ShellEntry, error) {
	if filter.UserID == "" {
		return nil, fmt.Errorf("audit store: UserID is required")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit store: list shell: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT id, user_id, mode, command, args, cwd, success,
			exit_code, error_code, duration_ms, stdout_bytes, stderr_bytes,
			stdout_truncated, stderr_truncated, created_at
		FROM shell_audit_log WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.Mode != "" {
		query += " AND mode = ?"
		args = append(args, filter.Mode)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	var entries []ShellEntry
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			entry, err := scanShellEntry(stmt)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audit store: list shell for %s: %w", filter.UserID, err)
	}
	return entries, nil
}

// CountShell returns the number of shell entries for a user. Used by
// the status surface and by tests asserting the one-entry-per-attempt
// invariant.
func (s *Store) CountShell(ctx context.Context, userID string) (int64, error) {
	return s.countForUser(ctx, "shell_audit_log", userID)
}

// CountFile returns the number of file entries for a user.
func (s *Store) CountFile(ctx context.Context, userID string) (int64, error) {
	return s.countForUser(ctx, "file_audit_log", userID)
}

func (s *Store) countForUser(ctx context.Context, table, userID string) (int64, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return 0, fmt.Errorf("audit store: count: %w", err)
	}
	defer s.pool.Put(conn)

	var count int64
	err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM "+table+" WHERE user_id = ?",
		&sqlitex.ExecOptions{
			Args: []any{userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return 0, fmt.Errorf("audit store: count %s for %s: %w", table, userID, err)
	}
	return count, nil
}

// scanFileEntry reads one file_audit_log row. Column order: id(0),
// user_id(1), action(2), path(3), success(4), error_code(5),
// byte_count(6), content_digest(7), duration_ms(8), created_at(9).
func scanFileEntry(stmt *sqlite.Stmt) FileEntry {
	entry := FileEntry{
		ID:         stmt.ColumnText(0),
		UserID:     stmt.ColumnText(1),
		Action:     stmt.ColumnText(2),
		Path:       stmt.ColumnText(3),
		Success:    stmt.ColumnInt(4) != 0,
		ByteCount:  stmt.ColumnInt64(6),
		DurationMs: stmt.ColumnInt64(8),
		CreatedAt:  time.UnixMilli(stmt.ColumnInt64(9)),
	}
	if !stmt.ColumnIsNull(5) {
		entry.ErrorCode = stmt.ColumnText(5)
	}
	if !stmt.ColumnIsNull(7) {
		entry.ContentDigest = stmt.ColumnText(7)
	}
	return entry
}

// scanShellEntry reads one shell_audit_log row. Column order: id(0),
// user_id(1), mode(2), command(3), args(4), cwd(5), success(6),
// exit_code(7), error_code(8), duration_ms(9), stdout_bytes(10),
// stderr_bytes(11), stdout_truncated(12), stderr_truncated(13),
// created_at(14).
func scanShellEntry(stmt *sqlite.Stmt) (ShellEntry, error) {
	entry := ShellEntry{
		ID:              stmt.ColumnText(0),
		UserID:          stmt.ColumnText(1),
		Mode:            stmt.ColumnText(2),
		Command:         stmt.ColumnText(3),
		Success:         stmt.ColumnInt(6) != 0,
		DurationMs:      stmt.ColumnInt64(9),
		StdoutBytes:     stmt.ColumnInt64(10),
		StderrBytes:     stmt.ColumnInt64(11),
		StdoutTruncated: stmt.ColumnInt(12) != 0,
		StderrTruncated: stmt.ColumnInt(13) != 0,
		CreatedAt:       time.UnixMilli(stmt.ColumnInt64(14)),
	}
	if !stmt.ColumnIsNull(4) {
		if err := json.Unmarshal([]byte(stmt.ColumnText(4)), &entry.Args); err != nil {
			return entry, fmt.Errorf("unmarshal args for %s: %w", entry.ID, err)
		}
	}
	if !stmt.ColumnIsNull(5) {
		entry.Cwd = stmt.ColumnText(5)
	}
	if !stmt.ColumnIsNull(7) {
		code := stmt.ColumnInt(7)
		entry.ExitCode = &code
	}
	if !stmt.ColumnIsNull(8) {
		entry.ErrorCode = stmt.ColumnText(8)
	}
	return entry, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
