// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import "time"

// WireScope is the external shape of a scope document. It carries the
// same keys as the stored form, so a scope round-trips unchanged
// between grant submission, storage, and listing.
type WireScope struct {
	AllowedPaths     []string `json:"allowedPaths,omitempty" cbor:"allowedPaths,omitempty"`
	AllowedCommands  []string `json:"allowedCommands,omitempty" cbor:"allowedCommands,omitempty"`
	AllowUnsandboxed bool     `json:"allowUnsandboxed,omitempty" cbor:"allowUnsandboxed,omitempty"`
	NotebookIDs      []string `json:"notebookIds,omitempty" cbor:"notebookIds,omitempty"`
}

// ToScope converts the wire document to the concrete scope kind for a
// resource. A zero document still produces a scope; callers that want
// "no scope" pass nil at a higher level.
func (w WireScope) ToScope(resource Resource) Scope {
	return scopeDocument{
		AllowedPaths:     w.AllowedPaths,
		AllowedCommands:  w.AllowedCommands,
		AllowUnsandboxed: w.AllowUnsandboxed,
		NotebookIDs:      w.NotebookIDs,
	}.toScope(resource)
}

func wireScope(s Scope) *WireScope {
	if s == nil {
		return nil
	}
	doc := s.document()
	return &WireScope{
		AllowedPaths:     doc.AllowedPaths,
		AllowedCommands:  doc.AllowedCommands,
		AllowUnsandboxed: doc.AllowUnsandboxed,
		NotebookIDs:      doc.NotebookIDs,
	}
}

// WirePermission is the external shape of a grant.
type WirePermission struct {
	ID        string     `json:"id" cbor:"id"`
	UserID    string     `json:"userId" cbor:"userId"`
	Resource  Resource   `json:"resource" cbor:"resource"`
	Actions   []string   `json:"actions" cbor:"actions"`
	Scope     *WireScope `json:"scope,omitempty" cbor:"scope,omitempty"`
	GrantedAt time.Time  `json:"grantedAt" cbor:"grantedAt"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" cbor:"expiresAt,omitempty"`
	RevokedAt *time.Time `json:"revokedAt,omitempty" cbor:"revokedAt,omitempty"`
}

// Wire converts a grant to its external shape.
func (p *Permission) Wire() WirePermission {
	return WirePermission{
		ID:        p.ID,
		UserID:    p.UserID,
		Resource:  p.Resource,
		Actions:   p.Actions,
		Scope:     wireScope(p.Scope),
		GrantedAt: p.GrantedAt,
		ExpiresAt: p.ExpiresAt,
		RevokedAt: p.RevokedAt,
	}
}

// WirePermissions converts a listing.
func WirePermissions(permissions []Permission) []WirePermission {
	out := make([]WirePermission, len(permissions))
	for i := range permissions {
		out[i] = permissions[i].Wire()
	}
	return out
}

// WireRequest is the external shape of a deferred-approval request.
type WireRequest struct {
	ID       string     `json:"id" cbor:"id"`
	UserID   string     `json:"userId" cbor:"userId"`
	Resource Resource   `json:"resource" cbor:"resource"`
	Actions  []string   `json:"actions" cbor:"actions"`
	Scope    *WireScope `json:"scope,omitempty" cbor:"scope,omitempty"`

	ExpiresInDays int    `json:"expiresInDays,omitempty" cbor:"expiresInDays,omitempty"`
	Reason        string `json:"reason,omitempty" cbor:"reason,omitempty"`

	Status      RequestStatus `json:"status" cbor:"status"`
	RequestedAt time.Time     `json:"requestedAt" cbor:"requestedAt"`
	RespondedAt *time.Time    `json:"respondedAt,omitempty" cbor:"respondedAt,omitempty"`

	GrantedPermissionID string `json:"grantedPermissionId,omitempty" cbor:"grantedPermissionId,omitempty"`
}

// Wire converts a request to its external shape.
func (r *Request) Wire() WireRequest {
	return WireRequest{
		ID:                  r.ID,
		UserID:              r.UserID,
		Resource:            r.Resource,
		Actions:             r.Actions,
		Scope:               wireScope(r.Scope),
		ExpiresInDays:       r.ExpiresInDays,
		Reason:              r.Reason,
		Status:              r.Status,
		RequestedAt:         r.RequestedAt,
		RespondedAt:         r.RespondedAt,
		GrantedPermissionID: r.GrantedPermissionID,
	}
}

// WireRequests converts a listing.
func WireRequests(requests []Request) []WireRequest {
	out := make([]WireRequest, len(requests))
	for i := range requests {
		out[i] = requests[i].Wire()
	}
	return out
}
