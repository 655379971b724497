// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package fileguard

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/cmgzone/notebookllm/audit"
	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/lib/ident"
	"github.com/cmgzone/notebookllm/permission"
)

// Error codes surfaced in results and audit entries.
const (
	// CodePathNotAllowed covers both sandbox-root escapes and
	// permission denials. The two are deliberately indistinguishable
	// to the caller so probing the sandbox boundary reveals nothing
	// about granted scopes.
	CodePathNotAllowed = "FILE_PATH_NOT_ALLOWED"

	// CodeIOFailed is an authorized operation that failed at the
	// filesystem layer (missing file, permission bits, full disk).
	CodeIOFailed = "FILE_IO_FAILED"
)

// Guard enforces path-scoped file access for one sandbox root.
type Guard struct {
	root    string
	manager *permission.Manager
	audits  *audit.Store
	clock   clock.Clock
	logger  *slog.Logger
}

// Config holds the dependencies for a Guard. All fields are required.
type Config struct {
	// Root is the sandbox root directory. Canonical paths outside this
	// tree are rejected before any permission lookup. Must be absolute
	// and exist; symlinks in it are resolved once at construction so
	// containment checks compare canonical forms on both sides.
	Root string

	Manager *permission.Manager
	Audits  *audit.Store
	Clock   clock.Clock
	Logger  *slog.Logger
}

// NewGuard validates the configuration and returns a Guard.
func NewGuard(cfg Config) (*Guard, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("fileguard: Root is required")
	}
	if !filepath.IsAbs(cfg.Root) {
		return nil, fmt.Errorf("fileguard: Root must be absolute, got %q", cfg.Root)
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("fileguard: Manager is required")
	}
	if cfg.Audits == nil {
		return nil, fmt.Errorf("fileguard: Audits is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("fileguard: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("fileguard: Logger is required")
	}
	root, err := filepath.EvalSymlinks(filepath.Clean(cfg.Root))
	if err != nil {
		return nil, fmt.Errorf("fileguard: resolving Root: %w", err)
	}
	return &Guard{
		root:    root,
		manager: cfg.Manager,
		audits:  cfg.Audits,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
	}, nil
}

// Root returns the sandbox root the guard enforces.
func (g *Guard) Root() string {
	return g.root
}

// Result is the common outcome shape for file operations. On denial or
// I/O failure Success is false and ErrorCode names the branch;
// AuditLogID is always set.
type Result struct {
	Success    bool   `json:"success"`
	ErrorCode  string `json:"errorCode,omitempty"`
	Path       string `json:"path"`
	AuditLogID string `json:"auditLogId"`
}

// ReadResult carries the file content on success.
type ReadResult struct {
	Result
	Content   []byte `json:"content,omitempty"`
	ByteCount int64  `json:"byteCount"`
}

// WriteResult carries the write accounting on success.
type WriteResult struct {
	Result
	BytesWritten  int64  `json:"bytesWritten"`
	ContentDigest string `json:"contentDigest,omitempty"`
}

// DirEntry is one entry in a listing.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"isDir"`
	Size  int64  `json:"size"`
}

// ListResult carries the directory entries on success.
type ListResult struct {
	Result
	Entries []DirEntry `json:"entries,omitempty"`
}

// Read reads a file inside the sandbox root.
func (g *Guard) Read(ctx context.Context, userID, path string) (*ReadResult, error) {
	start := g.clock.Now()
	result := &ReadResult{Result: Result{Path: path}}

	canonical, allowed, err := g.authorize(ctx, userID, "read", path)
	if err != nil {
		return nil, err
	}
	if !allowed {
		result.ErrorCode = CodePathNotAllowed
		return result, g.appendAudit(ctx, userID, "read", path, &result.Result, 0, "", start)
	}
	result.Path = canonical

	content, err := os.ReadFile(canonical)
	if err != nil {
		result.ErrorCode = CodeIOFailed
		g.logger.Warn("file read failed", "user_id", userID, "path", canonical, "error", err)
		return result, g.appendAudit(ctx, userID, "read", canonical, &result.Result, 0, "", start)
	}

	result.Success = true
	result.Content = content
	result.ByteCount = int64(len(content))
	return result, g.appendAudit(ctx, userID, "read", canonical, &result.Result, result.ByteCount, "", start)
}

// Write writes a file inside the sandbox root, creating parent
// directories as needed. The audit entry records a BLAKE3 digest of
// the content so an auditor can prove what bytes landed.
func (g *Guard) Write(ctx context.Context, userID, path string, content []byte) (*WriteResult, error) {
	start := g.clock.Now()
	result := &WriteResult{Result: Result{Path: path}}

	canonical, allowed, err := g.authorize(ctx, userID, "write", path)
	if err != nil {
		return nil, err
	}
	if !allowed {
		result.ErrorCode = CodePathNotAllowed
		return result, g.appendAudit(ctx, userID, "write", path, &result.Result, 0, "", start)
	}
	result.Path = canonical

	digest := contentDigest(content)
	if err := os.MkdirAll(filepath.Dir(canonical), 0o755); err != nil {
		result.ErrorCode = CodeIOFailed
		g.logger.Warn("file write failed", "user_id", userID, "path", canonical, "error", err)
		return result, g.appendAudit(ctx, userID, "write", canonical, &result.Result, 0, digest, start)
	}
	if err := os.WriteFile(canonical, content, 0o644); err != nil {
		result.ErrorCode = CodeIOFailed
		g.logger.Warn("file write failed", "user_id", userID, "path", canonical, "error", err)
		return result, g.appendAudit(ctx, userID, "write", canonical, &result.Result, 0, digest, start)
	}

	result.Success = true
	result.BytesWritten = int64(len(content))
	result.ContentDigest = digest
	return result, g.appendAudit(ctx, userID, "write", canonical, &result.Result, result.BytesWritten, digest, start)
}

// List lists a directory inside the sandbox root.
func (g *Guard) List(ctx context.Context, userID, path string) (*ListResult, error) {
	start := g.clock.Now()
	result := &ListResult{Result: Result{Path: path}}

	canonical, allowed, err := g.authorize(ctx, userID, "list", path)
	if err != nil {
		return nil, err
	}
	if !allowed {
		result.ErrorCode = CodePathNotAllowed
		return result, g.appendAudit(ctx, userID, "list", path, &result.Result, 0, "", start)
	}
	result.Path = canonical

	entries, err := os.ReadDir(canonical)
	if err != nil {
		result.ErrorCode = CodeIOFailed
		g.logger.Warn("directory list failed", "user_id", userID, "path", canonical, "error", err)
		return result, g.appendAudit(ctx, userID, "list", canonical, &result.Result, 0, "", start)
	}

	result.Success = true
	result.Entries = make([]DirEntry, 0, len(entries))
	for _, entry := range entries {
		item := DirEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			item.Size = info.Size()
		}
		result.Entries = append(result.Entries, item)
	}
	return result, g.appendAudit(ctx, userID, "list", canonical, &result.Result,
		int64(len(result.Entries)), "", start)
}

// authorize canonicalizes the path and runs the permission check. The
// bool result is the authorization decision; the error is reserved for
// caller misuse. The sandbox-root check runs first and does not
// consult permissions at all.
func (g *Guard) authorize(ctx context.Context, userID, action, path string) (string, bool, error) {
	if userID == "" {
		return "", false, fmt.Errorf("fileguard: userID is required")
	}
	if path == "" {
		return "", false, fmt.Errorf("fileguard: path is required")
	}

	canonical, ok := g.canonicalize(path)
	if !ok {
		return path, false, nil
	}

	allowed := g.manager.Check(ctx, userID, permission.Query{
		Resource: permission.ResourceFiles,
		Action:   action,
		Path:     canonical,
	})
	return canonical, allowed, nil
}

// canonicalize resolves path to an absolute cleaned form and reports
// whether it stays inside the sandbox root. Relative paths are taken
// relative to the root. Symlinks in the existing portion of the path
// are resolved so a link pointing outside the root cannot smuggle the
// prefix check.
func (g *Guard) canonicalize(path string) (string, bool) {
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(g.root, candidate)
	}
	candidate = filepath.Clean(candidate)
	if !within(g.root, candidate) {
		return candidate, false
	}

	resolved, err := resolveExisting(candidate)
	if err != nil {
		// The path does not exist yet (a fresh write target) or is
		// unreadable; the cleaned form already passed the boundary
		// check, and the I/O layer reports its own failure.
		return candidate, true
	}
	if !within(g.root, resolved) {
		return resolved, false
	}
	return resolved, true
}

// resolveExisting resolves symlinks on the longest existing prefix of
// path and rejoins the non-existing remainder.
func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir, base := filepath.Split(filepath.Clean(path))
	dir = strings.TrimSuffix(dir, string(filepath.Separator))
	if dir == "" || dir == path {
		return "", err
	}
	resolvedDir, dirErr := resolveExisting(dir)
	if dirErr != nil {
		return "", dirErr
	}
	return filepath.Join(resolvedDir, base), nil
}

// within reports whether candidate equals root or sits beneath it.
// Both must already be absolute and cleaned.
func within(root, candidate string) bool {
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

// appendAudit writes the single audit entry for an attempt and fills
// in the result's AuditLogID. An audit sink failure is a hard error:
// the operation result must not be returned as if it were recorded.
func (g *Guard) appendAudit(ctx context.Context, userID, action, path string, result *Result, byteCount int64, digest string, start time.Time) error {
	now := g.clock.Now()
	entry := &audit.FileEntry{
		ID:            ident.New(ident.PrefixFileAudit),
		UserID:        userID,
		Action:        action,
		Path:          path,
		Success:       result.Success,
		ErrorCode:     result.ErrorCode,
		ByteCount:     byteCount,
		ContentDigest: digest,
		DurationMs:    now.Sub(start).Milliseconds(),
		CreatedAt:     now,
	}
	if err := g.audits.AppendFile(ctx, entry); err != nil {
		return fmt.Errorf("fileguard: recording audit entry: %w", err)
	}
	result.AuditLogID = entry.ID
	return nil
}

func contentDigest(content []byte) string {
	sum := blake3.Sum256(content)
	return hex.EncodeToString(sum[:])
}
