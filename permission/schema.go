// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"slices"
	"time"
)

// Resource identifies a class of sensitive capability a grant covers.
type Resource string

// The fixed resource vocabulary. Grants for any other value are
// rejected with an InvalidResource validation error.
const (
	ResourceFiles     Resource = "files"
	ResourceShell     Resource = "shell"
	ResourceGmail     Resource = "gmail"
	ResourceNotebooks Resource = "notebooks"
)

// actionVocabulary maps each resource to the actions a grant may
// carry. Grant validation checks every requested action against this
// table.
var actionVocabulary = map[Resource][]string{
	ResourceFiles:     {"read", "write", "list", "delete"},
	ResourceShell:     {"execute"},
	ResourceGmail:     {"read", "send"},
	ResourceNotebooks: {"read", "write", "share"},
}

// ValidResource reports whether r is in the fixed resource enum.
func ValidResource(r Resource) bool {
	_, ok := actionVocabulary[r]
	return ok
}

// ValidAction reports whether action is in r's allowed-action
// vocabulary.
func ValidAction(r Resource, action string) bool {
	return slices.Contains(actionVocabulary[r], action)
}

// Actions returns the allowed-action vocabulary for r, or nil for an
// unknown resource.
func Actions(r Resource) []string {
	return slices.Clone(actionVocabulary[r])
}

// Permission is one capability grant. Grants are never hard-deleted:
// revocation sets RevokedAt once, and the row is kept for history.
type Permission struct {
	ID       string
	UserID   string
	Resource Resource

	// Actions is the non-empty set of actions this grant covers,
	// drawn from the resource's vocabulary.
	Actions []string

	// Scope restricts the grant beyond resource and action. Nil means
	// the grant carries no scope document; whether that authorizes
	// anything depends on the resource (files and shell fail closed
	// without one).
	Scope Scope

	GrantedAt time.Time

	// ExpiresAt is the instant the grant stops authorizing. Nil means
	// the grant never expires.
	ExpiresAt *time.Time

	// RevokedAt is set once by Revoke and never cleared.
	RevokedAt *time.Time
}

// Active reports whether the grant participates in authorization
// decisions at the given instant.
func (p *Permission) Active(now time.Time) bool {
	if p.RevokedAt != nil {
		return false
	}
	return p.ExpiresAt == nil || p.ExpiresAt.After(now)
}

// RequestStatus is the lifecycle state of a deferred-approval
// permission request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// Request is a deferred-approval workflow item. A request is
// immutable once its status leaves pending.
type Request struct {
	ID       string
	UserID   string
	Resource Resource
	Actions  []string
	Scope    Scope

	// ExpiresInDays bounds the lifetime of the permission created on
	// approval. Zero means the granted permission never expires.
	ExpiresInDays int

	// Reason is the requester's free-form justification, shown to
	// whoever approves or denies.
	Reason string

	Status      RequestStatus
	RequestedAt time.Time
	RespondedAt *time.Time

	// GrantedPermissionID links the permission created by approval.
	// Empty for pending and denied requests.
	GrantedPermissionID string
}

// Stats summarizes a user's grants for one resource.
type Stats struct {
	Resource Resource `json:"resource"`
	Total    int      `json:"total"`
	Active   int      `json:"active"`
}
