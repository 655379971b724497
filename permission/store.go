// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

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

// Store is the durable capability table: permission grants and
// deferred-approval requests, backed by SQLite. All methods are safe
// for concurrent use; reads dominate (every enforcement-point call
// queries active grants) and run without locking in WAL mode.
type Store struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening a capability store.
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

const storeSchema = `
CREATE TABLE IF NOT EXISTS permissions (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	resource    TEXT NOT NULL,
	actions     TEXT NOT NULL,
	scope       TEXT,
	granted_at  INTEGER NOT NULL,
	expires_at  INTEGER,
	revoked_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_permissions_user_resource
	ON permissions(user_id, resource);

CREATE TABLE IF NOT EXISTS permission_requests (
	id                    TEXT PRIMARY KEY,
	user_id               TEXT NOT NULL,
	resource              TEXT NOT NULL,
	actions               TEXT NOT NULL,
	scope                 TEXT,
	expires_in_days       INTEGER NOT NULL DEFAULT 0,
	reason                TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL DEFAULT 'pending',
	requested_at          INTEGER NOT NULL,
	responded_at          INTEGER,
	granted_permission_id TEXT REFERENCES permissions(id)
);
CREATE INDEX IF NOT EXISTS idx_permission_requests_user
	ON permission_requests(user_id, status);
CREATE INDEX IF NOT EXISTS idx_permission_requests_status
	ON permission_requests(status);
`

// OpenStore opens (and creates if necessary) the capability store at
// the given path. The caller must Close the store when done.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("permission store: Logger is required")
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
			return sqlitex.ExecuteScript(conn, storeSchema, nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("permission store: %w", err)
	}

	return &Store{pool: pool, logger: cfg.Logger}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Insert writes a new permission row. The permission's ID must be
// unique; grants are never deduplicated against existing rows for the
// same resource.
func (s *Store) Insert(ctx context.Context, p *Permission) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("permission store: insert: %w", err)
	}
	defer s.pool.Put(conn)

	return insertPermission(conn, p)
}

// insertPermission writes one permission row on an already-borrowed
// connection. Shared by Insert and the approve transaction.
func insertPermission(conn *sqlite.Conn, p *Permission) error {
	actionsJSON, err := json.Marshal(p.Actions)
	if err != nil {
		return fmt.Errorf("permission store: marshal actions: %w", err)
	}

	scopeJSON, err := EncodeScope(p.Scope)
	if err != nil {
		return fmt.Errorf("permission store: %w", err)
	}
	var scopeValue any
	if scopeJSON != nil {
		scopeValue = string(scopeJSON)
	}

	var expiresAt any
	if p.ExpiresAt != nil {
		expiresAt = p.ExpiresAt.UnixMilli()
	}

	err = sqlitex.Execute(conn, `INSERT INTO permissions
		(id, user_id, resource, actions, scope, granted_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		&sqlitex.ExecOptions{
			Args: []any{
				p.ID,
				p.UserID,
				string(p.Resource),
				string(actionsJSON),
				scopeValue,
				p.GrantedAt.UnixMilli(),
				expiresAt,
			},
		})
	if err != nil {
		return fmt.Errorf("permission store: insert %s: %w", p.ID, err)
	}
	return nil
}

// ActiveGrants returns the user's active permissions for a resource:
// not revoked, and either never expiring or expiring after now. This
// is the hot-path query behind every authorization check.
func (s *Store) ActiveGrants(ctx context.Context, userID string, resource Resource, now time.Time) ([]Permission, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: active grants: %w", err)
	}
	defer s.pool.Put(conn)

	var grants []Permission
	err = sqlitex.Execute(conn, `SELECT id, user_id, resource, actions, scope,
			granted_at, expires_at, revoked_at
		FROM permissions
		WHERE user_id = ? AND resource = ?
			AND revoked_at IS NULL
			AND (expires_at IS NULL OR expires_at > ?)`,
		&sqlitex.ExecOptions{
			Args: []any{userID, string(resource), now.UnixMilli()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				p, err := scanPermission(stmt)
				if err != nil {
					return err
				}
				grants = append(grants, p)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("permission store: active grants for %s/%s: %w", userID, resource, err)
	}
	return grants, nil
}

// Revoke sets revoked_at on a permission owned by userID that is not
// yet revoked. Returns false when no such row exists — the caller
// maps that to NotFound. Revocation is one-way: revoked_at is never
// cleared.
func (s *Store) Revoke(ctx context.Context, userID, permissionID string, at time.Time) (bool, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("permission store: revoke: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, `UPDATE permissions SET revoked_at = ?
		WHERE id = ? AND user_id = ? AND revoked_at IS NULL`,
		&sqlitex.ExecOptions{
			Args: []any{at.UnixMilli(), permissionID, userID},
		})
	if err != nil {
		return false, fmt.Errorf("permission store: revoke %s: %w", permissionID, err)
	}
	return conn.Changes() == 1, nil
}

// List returns all of the user's permissions (active, expired, and
// revoked), optionally filtered by resource, newest grant first.
func (s *Store) List(ctx context.Context, userID string, resource Resource) ([]Permission, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: list: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT id, user_id, resource, actions, scope,
			granted_at, expires_at, revoked_at
		FROM permissions WHERE user_id = ?`
	args := []any{userID}
	if resource != "" {
		query += " AND resource = ?"
		args = append(args, string(resource))
	}
	query += " ORDER BY granted_at DESC, id"

	var permissions []Permission
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			p, err := scanPermission(stmt)
			if err != nil {
				return err
			}
			permissions = append(permissions, p)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("permission store: list for %s: %w", userID, err)
	}
	return permissions, nil
}

// StatsByResource returns per-resource totals and active counts for a
// user. Activity is evaluated against the supplied instant.
func (s *Store) StatsByResource(ctx context.Context, userID string, now time.Time) ([]Stats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: stats: %w", err)
	}
	defer s.pool.Put(conn)

	var stats []Stats
	err = sqlitex.Execute(conn, `SELECT resource, COUNT(*),
			SUM(CASE WHEN revoked_at IS NULL
				AND (expires_at IS NULL OR expires_at > ?)
				THEN 1 ELSE 0 END)
		FROM permissions WHERE user_id = ?
		GROUP BY resource ORDER BY resource`,
		&sqlitex.ExecOptions{
			Args: []any{now.UnixMilli(), userID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats = append(stats, Stats{
					Resource: Resource(stmt.ColumnText(0)),
					Total:    stmt.ColumnInt(1),
					Active:   stmt.ColumnInt(2),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("permission store: stats for %s: %w", userID, err)
	}
	return stats, nil
}

// ActiveResources returns the distinct resources for which the user
// holds at least one active grant, sorted.
func (s *Store) ActiveResources(ctx context.Context, userID string, now time.Time) ([]Resource, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: active resources: %w", err)
	}
	defer s.pool.Put(conn)

	var resources []Resource
	err = sqlitex.Execute(conn, `SELECT DISTINCT resource FROM permissions
		WHERE user_id = ? AND revoked_at IS NULL
			AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY resource`,
		&sqlitex.ExecOptions{
			Args: []any{userID, now.UnixMilli()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				resources = append(resources, Resource(stmt.ColumnText(0)))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("permission store: active resources for %s: %w", userID, err)
	}
	return resources, nil
}

// InsertRequest writes a new pending permission request.
func (s *Store) InsertRequest(ctx context.Context, r *Request) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("permission store: insert request: %w", err)
	}
	defer s.pool.Put(conn)

	actionsJSON, err := json.Marshal(r.Actions)
	if err != nil {
		return fmt.Errorf("permission store: marshal request actions: %w", err)
	}

	scopeJSON, err := EncodeScope(r.Scope)
	if err != nil {
		return fmt.Errorf("permission store: %w", err)
	}
	var scopeValue any
	if scopeJSON != nil {
		scopeValue = string(scopeJSON)
	}

	err = sqlitex.Execute(conn, `INSERT INTO permission_requests
		(id, user_id, resource, actions, scope, expires_in_days, reason,
		 status, requested_at, responded_at, granted_permission_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, NULL, NULL)`,
		&sqlitex.ExecOptions{
			Args: []any{
				r.ID,
				r.UserID,
				string(r.Resource),
				string(actionsJSON),
				scopeValue,
				r.ExpiresInDays,
				r.Reason,
				r.RequestedAt.UnixMilli(),
			},
		})
	if err != nil {
		return fmt.Errorf("permission store: insert request %s: %w", r.ID, err)
	}
	return nil
}

// ListRequests returns requests, newest first, optionally filtered by
// user and status.
func (s *Store) ListRequests(ctx context.Context, userID string, status RequestStatus) ([]Request, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: list requests: %w", err)
	}
	defer s.pool.Put(conn)

	query := `SELECT id, user_id, resource, actions, scope, expires_in_days,
			reason, status, requested_at, responded_at, granted_permission_id
		FROM permission_requests WHERE 1=1`
	var args []any
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY requested_at DESC, id"

	var requests []Request
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r, err := scanRequest(stmt)
			if err != nil {
				return err
			}
			requests = append(requests, r)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("permission store: list requests: %w", err)
	}
	return requests, nil
}

// GetRequest loads one request by ID. Returns a NotFoundError when no
// row matches.
func (s *Store) GetRequest(ctx context.Context, requestID string) (*Request, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: get request: %w", err)
	}
	defer s.pool.Put(conn)

	var found *Request
	err = sqlitex.Execute(conn, `SELECT id, user_id, resource, actions, scope,
			expires_in_days, reason, status, requested_at, responded_at,
			granted_permission_id
		FROM permission_requests WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{requestID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r, err := scanRequest(stmt)
				if err != nil {
					return err
				}
				found = &r
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("permission store: get request %s: %w", requestID, err)
	}
	if found == nil {
		return nil, &NotFoundError{Kind: "request", ID: requestID}
	}
	return found, nil
}

// ResolveRequest transitions a pending request to approved or denied.
// On approval, grant must be the permission to create; the insert and
// the status update commit atomically. Returns the updated request,
// or a NotFoundError when the request does not exist or has already
// been resolved.
func (s *Store) ResolveRequest(ctx context.Context, requestID string, status RequestStatus, respondedAt time.Time, grant *Permission) (request *Request, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("permission store: resolve request: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("permission store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var found *Request
	err = sqlitex.Execute(conn, `SELECT id, user_id, resource, actions, scope,
			expires_in_days, reason, status, requested_at, responded_at,
			granted_permission_id
		FROM permission_requests WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []any{requestID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				r, err := scanRequest(stmt)
				if err != nil {
					return err
				}
				found = &r
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("permission store: load request %s: %w", requestID, err)
	}
	if found == nil || found.Status != StatusPending {
		// A resolved request is immutable; treat a second resolution
		// the same as a missing row.
		return nil, &NotFoundError{Kind: "request", ID: requestID}
	}

	grantedID := any(nil)
	if grant != nil {
		if err := insertPermission(conn, grant); err != nil {
			return nil, err
		}
		grantedID = grant.ID
	}

	err = sqlitex.Execute(conn, `UPDATE permission_requests
		SET status = ?, responded_at = ?, granted_permission_id = ?
		WHERE id = ? AND status = 'pending'`,
		&sqlitex.ExecOptions{
			Args: []any{string(status), respondedAt.UnixMilli(), grantedID, requestID},
		})
	if err != nil {
		return nil, fmt.Errorf("permission store: update request %s: %w", requestID, err)
	}

	found.Status = status
	found.RespondedAt = &respondedAt
	if grant != nil {
		found.GrantedPermissionID = grant.ID
	}
	return found, nil
}

// scanPermission reads one permissions row. Column order must match
// the SELECT lists above: id(0), user_id(1), resource(2), actions(3),
// scope(4), granted_at(5), expires_at(6), revoked_at(7).
func scanPermission(stmt *sqlite.Stmt) (Permission, error) {
	p := Permission{
		ID:        stmt.ColumnText(0),
		UserID:    stmt.ColumnText(1),
		Resource:  Resource(stmt.ColumnText(2)),
		GrantedAt: time.UnixMilli(stmt.ColumnInt64(5)),
	}

	if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &p.Actions); err != nil {
		return p, fmt.Errorf("unmarshal actions for %s: %w", p.ID, err)
	}

	if !stmt.ColumnIsNull(4) {
		scope, err := DecodeScope(p.Resource, []byte(stmt.ColumnText(4)))
		if err != nil {
			return p, fmt.Errorf("decode scope for %s: %w", p.ID, err)
		}
		p.Scope = scope
	}

	if !stmt.ColumnIsNull(6) {
		t := time.UnixMilli(stmt.ColumnInt64(6))
		p.ExpiresAt = &t
	}
	if !stmt.ColumnIsNull(7) {
		t := time.UnixMilli(stmt.ColumnInt64(7))
		p.RevokedAt = &t
	}
	return p, nil
}

// scanRequest reads one permission_requests row. Column order: id(0),
// user_id(1), resource(2), actions(3), scope(4), expires_in_days(5),
// reason(6), status(7), requested_at(8), responded_at(9),
// granted_permission_id(10).
func scanRequest(stmt *sqlite.Stmt) (Request, error) {
	r := Request{
		ID:            stmt.ColumnText(0),
		UserID:        stmt.ColumnText(1),
		Resource:      Resource(stmt.ColumnText(2)),
		ExpiresInDays: stmt.ColumnInt(5),
		Reason:        stmt.ColumnText(6),
		Status:        RequestStatus(stmt.ColumnText(7)),
		RequestedAt:   time.UnixMilli(stmt.ColumnInt64(8)),
	}

	if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &r.Actions); err != nil {
		return r, fmt.Errorf("unmarshal actions for %s: %w", r.ID, err)
	}

	if !stmt.ColumnIsNull(4) {
		scope, err := DecodeScope(r.Resource, []byte(stmt.ColumnText(4)))
		if err != nil {
			return r, fmt.Errorf("decode scope for %s: %w", r.ID, err)
		}
		r.Scope = scope
	}

	if !stmt.ColumnIsNull(9) {
		t := time.UnixMilli(stmt.ColumnInt64(9))
		r.RespondedAt = &t
	}
	if !stmt.ColumnIsNull(10) {
		r.GrantedPermissionID = stmt.ColumnText(10)
	}
	return r, nil
}
