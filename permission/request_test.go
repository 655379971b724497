// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRequestApprovalCreatesLinkedGrant(t *testing.T) {
	manager, clk := newTestManager(t)
	ctx := context.Background()

	request, err := manager.CreateRequest(ctx, "alice", RequestSpec{
		Resource:      ResourceShell,
		Actions:       []string{"execute"},
		Scope:         ShellScope{AllowedCommands: []string{"python3"}},
		ExpiresInDays: 7,
		Reason:        "run analysis scripts",
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if request.Status != StatusPending {
		t.Fatalf("new request status = %q", request.Status)
	}

	query := Query{Resource: ResourceShell, Action: "execute", Command: "python3"}
	if manager.Check(ctx, "alice", query) {
		t.Fatal("pending request already authorizes")
	}

	resolved, granted, err := manager.Approve(ctx, request.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if resolved.Status != StatusApproved {
		t.Errorf("resolved status = %q", resolved.Status)
	}
	if resolved.GrantedPermissionID != granted.ID {
		t.Errorf("GrantedPermissionID = %q, want %q", resolved.GrantedPermissionID, granted.ID)
	}
	if granted.ExpiresAt == nil {
		t.Fatal("approved grant has no expiry despite ExpiresInDays")
	}
	wantExpiry := clk.Now().AddDate(0, 0, 7)
	if !granted.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("ExpiresAt = %v, want %v", granted.ExpiresAt, wantExpiry)
	}

	if !manager.Check(ctx, "alice", query) {
		t.Error("approved request does not authorize")
	}

	clk.Advance(8 * 24 * time.Hour)
	if manager.Check(ctx, "alice", query) {
		t.Error("grant from approved request outlived ExpiresInDays")
	}
}

func TestRequestDenialCreatesNoGrant(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	request, err := manager.CreateRequest(ctx, "alice", RequestSpec{
		Resource: ResourceFiles,
		Actions:  []string{"write"},
		Scope:    FileScope{AllowedPaths: []string{"/srv"}},
		Reason:   "save outputs",
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}

	resolved, err := manager.Deny(ctx, request.ID)
	if err != nil {
		t.Fatalf("Deny: %v", err)
	}
	if resolved.Status != StatusDenied {
		t.Errorf("status = %q", resolved.Status)
	}
	if resolved.GrantedPermissionID != "" {
		t.Errorf("denied request links permission %q", resolved.GrantedPermissionID)
	}

	if manager.Check(ctx, "alice", Query{
		Resource: ResourceFiles, Action: "write", Path: "/srv/out.txt",
	}) {
		t.Error("denied request authorizes")
	}

	permissions, err := manager.List(ctx, "alice", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(permissions) != 0 {
		t.Errorf("denial created %d permissions", len(permissions))
	}
}

func TestResolvedRequestIsImmutable(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	request, err := manager.CreateRequest(ctx, "alice", RequestSpec{
		Resource: ResourceGmail,
		Actions:  []string{"read"},
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := manager.Deny(ctx, request.ID); err != nil {
		t.Fatalf("Deny: %v", err)
	}

	var notFound *NotFoundError
	if _, _, err := manager.Approve(ctx, request.ID); !errors.As(err, &notFound) {
		t.Errorf("Approve after Deny: got %v, want NotFoundError", err)
	}
	if _, err := manager.Deny(ctx, request.ID); !errors.As(err, &notFound) {
		t.Errorf("second Deny: got %v, want NotFoundError", err)
	}
}

func TestApproveUnknownRequest(t *testing.T) {
	manager, _ := newTestManager(t)

	var notFound *NotFoundError
	if _, _, err := manager.Approve(context.Background(), "preq-missing"); !errors.As(err, &notFound) {
		t.Errorf("Approve(unknown): got %v, want NotFoundError", err)
	}
}

func TestListRequestsFilters(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	first, err := manager.CreateRequest(ctx, "alice", RequestSpec{
		Resource: ResourceFiles, Actions: []string{"read"},
		Scope: FileScope{AllowedPaths: []string{"/a"}},
	})
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, err := manager.CreateRequest(ctx, "bob", RequestSpec{
		Resource: ResourceShell, Actions: []string{"execute"},
		Scope: ShellScope{AllowedCommands: []string{"ls"}},
	}); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if _, _, err := manager.Approve(ctx, first.ID); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	pending, err := manager.ListRequests(ctx, "", StatusPending)
	if err != nil {
		t.Fatalf("ListRequests(pending): %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != "bob" {
		t.Errorf("pending = %+v, want bob's request only", pending)
	}

	aliceRequests, err := manager.ListRequests(ctx, "alice", "")
	if err != nil {
		t.Fatalf("ListRequests(alice): %v", err)
	}
	if len(aliceRequests) != 1 || aliceRequests[0].Status != StatusApproved {
		t.Errorf("alice requests = %+v", aliceRequests)
	}
}
