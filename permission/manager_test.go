// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/cmgzone/notebookllm/lib/clock"
)

// newTestManager opens a store in a temp directory and returns a
// manager wired to a fake clock.
func newTestManager(t *testing.T) (*Manager, *clock.FakeClock) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	store, err := OpenStore(StoreConfig{
		Path:   filepath.Join(t.TempDir(), "permissions.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	manager, err := NewManager(ManagerConfig{Store: store, Clock: clk, Logger: logger})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return manager, clk
}

func TestGrantAndCheck(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	granted, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceFiles,
		Actions:  []string{"read"},
		Scope:    FileScope{AllowedPaths: []string{"/home/alice/documents"}},
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if granted.ID == "" {
		t.Fatal("granted permission has no ID")
	}

	if !manager.Check(ctx, "alice", Query{
		Resource: ResourceFiles, Action: "read",
		Path: "/home/alice/documents/notes.md",
	}) {
		t.Error("in-scope read denied")
	}
	if manager.Check(ctx, "alice", Query{
		Resource: ResourceFiles, Action: "read",
		Path: "/home/alice/documents2/notes.md",
	}) {
		t.Error("prefix-collision sibling allowed")
	}
	if manager.Check(ctx, "alice", Query{
		Resource: ResourceFiles, Action: "write",
		Path: "/home/alice/documents/notes.md",
	}) {
		t.Error("ungranted action allowed")
	}
	if manager.Check(ctx, "mallory", Query{
		Resource: ResourceFiles, Action: "read",
		Path: "/home/alice/documents/notes.md",
	}) {
		t.Error("other user's grant leaked")
	}
}

func TestGrantValidation(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: "dropbox",
		Actions:  []string{"read"},
	})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || validationErr.Code != CodeInvalidResource {
		t.Errorf("unknown resource: got %v, want InvalidResource", err)
	}

	_, err = manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceShell,
		Actions:  []string{"read"},
	})
	if !errors.As(err, &validationErr) || validationErr.Code != CodeInvalidAction {
		t.Errorf("action outside vocabulary: got %v, want InvalidAction", err)
	}

	_, err = manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceShell,
		Actions:  nil,
	})
	if !errors.As(err, &validationErr) {
		t.Errorf("empty actions: got %v, want ValidationError", err)
	}
}

func TestCheckExpiryBoundary(t *testing.T) {
	manager, clk := newTestManager(t)
	ctx := context.Background()

	expiresAt := clk.Now().Add(time.Hour)
	_, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource:  ResourceFiles,
		Actions:   []string{"read"},
		Scope:     FileScope{AllowedPaths: []string{"/data"}},
		ExpiresAt: &expiresAt,
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	query := Query{Resource: ResourceFiles, Action: "read", Path: "/data/report.csv"}

	if !manager.Check(ctx, "alice", query) {
		t.Error("grant denied before expiry")
	}

	// Expiry is re-evaluated on every call against the clock, not
	// cached from grant time.
	clk.Advance(time.Hour)
	if manager.Check(ctx, "alice", query) {
		t.Error("grant allowed at its expiry instant")
	}
	clk.Advance(time.Minute)
	if manager.Check(ctx, "alice", query) {
		t.Error("expired grant allowed")
	}
}

func TestCheckMultiGrantUnion(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	scope := FileScope{AllowedPaths: []string{"/shared"}}
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceFiles, Actions: []string{"read"}, Scope: scope,
	}); err != nil {
		t.Fatalf("Grant read: %v", err)
	}
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceFiles, Actions: []string{"write"}, Scope: scope,
	}); err != nil {
		t.Fatalf("Grant write: %v", err)
	}

	for _, action := range []string{"read", "write"} {
		if !manager.Check(ctx, "alice", Query{
			Resource: ResourceFiles, Action: action, Path: "/shared/file",
		}) {
			t.Errorf("action %q denied despite union of grants", action)
		}
	}
}

func TestCheckFailsClosedWithoutScope(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	// A files grant without a scope document authorizes nothing.
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceFiles, Actions: []string{"read"},
	}); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if manager.Check(ctx, "alice", Query{
		Resource: ResourceFiles, Action: "read", Path: "/anything",
	}) {
		t.Error("scopeless files grant authorized a read")
	}

	// Resources without a scope-requiring enforcement point treat a
	// missing scope as unrestricted.
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceGmail, Actions: []string{"read"},
	}); err != nil {
		t.Fatalf("Grant gmail: %v", err)
	}
	if !manager.Check(ctx, "alice", Query{Resource: ResourceGmail, Action: "read"}) {
		t.Error("scopeless gmail grant denied")
	}
}

func TestRevokeIsOneWay(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	granted, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceShell,
		Actions:  []string{"execute"},
		Scope:    ShellScope{AllowedCommands: []string{"echo"}},
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	query := Query{Resource: ResourceShell, Action: "execute", Command: "echo"}
	if !manager.Check(ctx, "alice", query) {
		t.Fatal("grant denied before revocation")
	}

	if err := manager.Revoke(ctx, "alice", granted.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if manager.Check(ctx, "alice", query) {
		t.Error("revoked grant still authorizes")
	}

	// A second revoke is NotFound; authorization state is unchanged.
	err = manager.Revoke(ctx, "alice", granted.ID)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("second Revoke: got %v, want NotFoundError", err)
	}
	if manager.Check(ctx, "alice", query) {
		t.Error("authorization state changed after failed revoke")
	}
}

func TestRevokeForeignPermission(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	granted, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceGmail, Actions: []string{"read"},
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}

	var notFound *NotFoundError
	if err := manager.Revoke(ctx, "mallory", granted.ID); !errors.As(err, &notFound) {
		t.Errorf("foreign revoke: got %v, want NotFoundError", err)
	}
	if !manager.Check(ctx, "alice", Query{Resource: ResourceGmail, Action: "read"}) {
		t.Error("foreign revoke affected the owner's grant")
	}
}

func TestListAndStats(t *testing.T) {
	manager, clk := newTestManager(t)
	ctx := context.Background()

	expired := clk.Now().Add(-time.Hour)
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceFiles, Actions: []string{"read"},
		Scope: FileScope{AllowedPaths: []string{"/a"}}, ExpiresAt: &expired,
	}); err != nil {
		t.Fatalf("Grant expired: %v", err)
	}
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceFiles, Actions: []string{"read"},
		Scope: FileScope{AllowedPaths: []string{"/b"}},
	}); err != nil {
		t.Fatalf("Grant active: %v", err)
	}
	if _, err := manager.Grant(ctx, "alice", GrantSpec{
		Resource: ResourceGmail, Actions: []string{"send"},
	}); err != nil {
		t.Fatalf("Grant gmail: %v", err)
	}

	all, err := manager.List(ctx, "alice", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List returned %d permissions, want 3", len(all))
	}

	filesOnly, err := manager.List(ctx, "alice", ResourceFiles)
	if err != nil {
		t.Fatalf("List files: %v", err)
	}
	if len(filesOnly) != 2 {
		t.Errorf("List(files) returned %d, want 2", len(filesOnly))
	}

	stats, err := manager.GetStats(ctx, "alice")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	byResource := make(map[Resource]Stats)
	for _, s := range stats {
		byResource[s.Resource] = s
	}
	if s := byResource[ResourceFiles]; s.Total != 2 || s.Active != 1 {
		t.Errorf("files stats = %+v, want total 2 active 1", s)
	}
	if s := byResource[ResourceGmail]; s.Total != 1 || s.Active != 1 {
		t.Errorf("gmail stats = %+v, want total 1 active 1", s)
	}

	resources, err := manager.AuthorizedResources(ctx, "alice")
	if err != nil {
		t.Fatalf("AuthorizedResources: %v", err)
	}
	if len(resources) != 2 {
		t.Errorf("AuthorizedResources = %v, want [files gmail]", resources)
	}

	hasShell, err := manager.HasAny(ctx, "alice", ResourceShell)
	if err != nil {
		t.Fatalf("HasAny: %v", err)
	}
	if hasShell {
		t.Error("HasAny(shell) = true with no shell grants")
	}
}

func TestCheckNeverPanicsOnBadInput(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	if manager.Check(ctx, "", Query{Resource: ResourceFiles, Action: "read"}) {
		t.Error("empty user authorized")
	}
	if manager.Check(ctx, "alice", Query{Resource: "bogus", Action: "read"}) {
		t.Error("unknown resource authorized")
	}
}
