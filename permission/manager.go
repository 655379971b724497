// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/lib/ident"
)

// Manager validates, creates, revokes, and evaluates capability
// grants. Enforcement points (fileguard, shellexec) hold a Manager
// and call Check before touching the OS.
type Manager struct {
	store  *Store
	clock  clock.Clock
	logger *slog.Logger
}

// ManagerConfig holds the dependencies for a Manager. All fields are
// required.
type ManagerConfig struct {
	Store  *Store
	Clock  clock.Clock
	Logger *slog.Logger
}

// NewManager creates a permission manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("permission manager: Store is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("permission manager: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("permission manager: Logger is required")
	}
	return &Manager{
		store:  cfg.Store,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// GrantSpec describes a new grant. Scope may be nil; for files and
// shell a nil scope produces a grant that authorizes nothing until
// replaced, since those enforcement points fail closed without one.
type GrantSpec struct {
	Resource  Resource
	Actions   []string
	Scope     Scope
	ExpiresAt *time.Time
}

// Grant validates the spec and inserts a new permission row. Existing
// grants for the same resource are left untouched: authorization is
// the union of all active grants, so overlapping grants coexist.
func (m *Manager) Grant(ctx context.Context, userID string, spec GrantSpec) (*Permission, error) {
	if err := validateGrant(spec.Resource, spec.Actions); err != nil {
		return nil, err
	}

	p := &Permission{
		ID:        ident.New(ident.PrefixPermission),
		UserID:    userID,
		Resource:  spec.Resource,
		Actions:   spec.Actions,
		Scope:     spec.Scope,
		GrantedAt: m.clock.Now(),
		ExpiresAt: spec.ExpiresAt,
	}
	if err := m.store.Insert(ctx, p); err != nil {
		return nil, err
	}

	m.logger.Info("permission granted",
		"permission_id", p.ID,
		"user_id", userID,
		"resource", p.Resource,
		"actions", p.Actions,
	)
	return p, nil
}

// Check decides whether an operation is authorized. It never returns
// an error: a store failure, an unknown resource, or a grant without
// the scope its resource requires all deny (fail closed). Expiry is
// evaluated against the clock at call time.
//
// Check is a pure read with no side effects, safe on every request
// path under arbitrary concurrent load.
func (m *Manager) Check(ctx context.Context, userID string, q Query) bool {
	if userID == "" || !ValidResource(q.Resource) {
		return false
	}

	grants, err := m.store.ActiveGrants(ctx, userID, q.Resource, m.clock.Now())
	if err != nil {
		// Fail closed. The denial is visible in the enforcement
		// point's audit entry; log the cause here.
		m.logger.Warn("permission check failed closed",
			"user_id", userID,
			"resource", q.Resource,
			"error", err,
		)
		return false
	}

	for i := range grants {
		if grantCovers(&grants[i], q) {
			return true
		}
	}
	return false
}

// grantCovers reports whether a single active grant authorizes the
// query: the action must be in the grant's action set and the scope
// must match. A grant with no scope document covers the query only
// when the resource does not require one.
func grantCovers(p *Permission, q Query) bool {
	actionMatched := false
	for _, action := range p.Actions {
		if action == q.Action {
			actionMatched = true
			break
		}
	}
	if !actionMatched {
		return false
	}

	if p.Scope == nil {
		return !scopeRequired[p.Resource]
	}
	return p.Scope.matches(q)
}

// Revoke marks a permission as revoked. Returns a NotFoundError when
// the permission does not exist, belongs to another user, or is
// already revoked — the net authorization effect of a repeated call
// is unchanged, but the caller is told the row was not theirs to
// revoke.
func (m *Manager) Revoke(ctx context.Context, userID, permissionID string) error {
	revoked, err := m.store.Revoke(ctx, userID, permissionID, m.clock.Now())
	if err != nil {
		return err
	}
	if !revoked {
		return &NotFoundError{Kind: "permission", ID: permissionID}
	}
	m.logger.Info("permission revoked",
		"permission_id", permissionID,
		"user_id", userID,
	)
	return nil
}

// List returns the user's grants, optionally filtered by resource.
// Revoked and expired grants are included; they are part of the
// user's history.
func (m *Manager) List(ctx context.Context, userID string, resource Resource) ([]Permission, error) {
	if resource != "" && !ValidResource(resource) {
		return nil, invalidResource(resource)
	}
	return m.store.List(ctx, userID, resource)
}

// GetStats returns per-resource grant counts (total and active).
func (m *Manager) GetStats(ctx context.Context, userID string) ([]Stats, error) {
	return m.store.StatsByResource(ctx, userID, m.clock.Now())
}

// HasAny reports whether the user holds at least one active grant for
// the resource, regardless of actions or scope.
func (m *Manager) HasAny(ctx context.Context, userID string, resource Resource) (bool, error) {
	if !ValidResource(resource) {
		return false, invalidResource(resource)
	}
	grants, err := m.store.ActiveGrants(ctx, userID, resource, m.clock.Now())
	if err != nil {
		return false, err
	}
	return len(grants) > 0, nil
}

// AuthorizedResources returns the resources for which the user holds
// at least one active grant.
func (m *Manager) AuthorizedResources(ctx context.Context, userID string) ([]Resource, error) {
	return m.store.ActiveResources(ctx, userID, m.clock.Now())
}

// RequestSpec describes a deferred-approval permission request.
type RequestSpec struct {
	Resource      Resource
	Actions       []string
	Scope         Scope
	ExpiresInDays int
	Reason        string
}

// CreateRequest validates and records a pending permission request.
// The same vocabulary rules as Grant apply, so an approved request
// always yields a valid permission.
func (m *Manager) CreateRequest(ctx context.Context, userID string, spec RequestSpec) (*Request, error) {
	if err := validateGrant(spec.Resource, spec.Actions); err != nil {
		return nil, err
	}
	if spec.ExpiresInDays < 0 {
		return nil, &ValidationError{
			Code:    CodeInvalidAction,
			Message: "expiresInDays must not be negative",
		}
	}

	r := &Request{
		ID:            ident.New(ident.PrefixRequest),
		UserID:        userID,
		Resource:      spec.Resource,
		Actions:       spec.Actions,
		Scope:         spec.Scope,
		ExpiresInDays: spec.ExpiresInDays,
		Reason:        spec.Reason,
		Status:        StatusPending,
		RequestedAt:   m.clock.Now(),
	}
	if err := m.store.InsertRequest(ctx, r); err != nil {
		return nil, err
	}

	m.logger.Info("permission request created",
		"request_id", r.ID,
		"user_id", userID,
		"resource", r.Resource,
	)
	return r, nil
}

// ListRequests returns requests newest-first, optionally filtered by
// user and status.
func (m *Manager) ListRequests(ctx context.Context, userID string, status RequestStatus) ([]Request, error) {
	return m.store.ListRequests(ctx, userID, status)
}

// Approve resolves a pending request by creating the permission it
// asked for and linking it. Fails with NotFoundError when the request
// is unknown or already resolved.
func (m *Manager) Approve(ctx context.Context, requestID string) (*Request, *Permission, error) {
	// Build the grant before entering the store so the transaction
	// only does row writes. The request row is re-read inside the
	// transaction; its fields cannot have changed because resolved
	// requests are immutable and pending ones only change through
	// this path.
	pending, err := m.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}

	now := m.clock.Now()
	grant := &Permission{
		ID:        ident.New(ident.PrefixPermission),
		UserID:    pending.UserID,
		Resource:  pending.Resource,
		Actions:   pending.Actions,
		Scope:     pending.Scope,
		GrantedAt: now,
	}
	if pending.ExpiresInDays > 0 {
		expiresAt := now.AddDate(0, 0, pending.ExpiresInDays)
		grant.ExpiresAt = &expiresAt
	}

	resolved, err := m.store.ResolveRequest(ctx, requestID, StatusApproved, now, grant)
	if err != nil {
		return nil, nil, err
	}

	m.logger.Info("permission request approved",
		"request_id", requestID,
		"permission_id", grant.ID,
		"user_id", grant.UserID,
	)
	return resolved, grant, nil
}

// Deny resolves a pending request without creating a permission.
// Fails with NotFoundError when the request is unknown or already
// resolved.
func (m *Manager) Deny(ctx context.Context, requestID string) (*Request, error) {
	resolved, err := m.store.ResolveRequest(ctx, requestID, StatusDenied, m.clock.Now(), nil)
	if err != nil {
		return nil, err
	}
	m.logger.Info("permission request denied", "request_id", requestID)
	return resolved, nil
}

// validateGrant checks resource and action vocabulary for Grant and
// CreateRequest.
func validateGrant(resource Resource, actions []string) error {
	if !ValidResource(resource) {
		return invalidResource(resource)
	}
	if len(actions) == 0 {
		return &ValidationError{
			Code:    CodeInvalidAction,
			Message: "at least one action is required",
		}
	}
	for _, action := range actions {
		if !ValidAction(resource, action) {
			return invalidAction(resource, action)
		}
	}
	return nil
}
