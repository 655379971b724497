// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Wildcard matches any path or command when it appears in an
// allow-list. It never implies the unsandboxed gate.
const Wildcard = "*"

// Scope is the resource-specific restriction attached to a grant.
// The concrete type is determined by the grant's resource: files
// carry a FileScope, shell a ShellScope, everything else a
// GenericScope. The scopeDocument form is what gets stored and what
// travels over the API.
type Scope interface {
	// matches evaluates the scope against a concrete query. A nil
	// receiver is handled by the caller (Check), which fails closed
	// for resources that require a scope.
	matches(q Query) bool

	// document converts the scope to its stored JSON shape.
	document() scopeDocument
}

// FileScope restricts a files grant to a set of path prefixes.
type FileScope struct {
	// AllowedPaths are absolute paths. A candidate path matches an
	// entry if it equals the entry or sits underneath it; matching is
	// path-boundary-aware, so /home/a/docs never admits
	// /home/a/docs2. The Wildcard entry matches any path.
	AllowedPaths []string
}

func (s FileScope) matches(q Query) bool {
	return PathAllowed(s.AllowedPaths, q.Path)
}

func (s FileScope) document() scopeDocument {
	return scopeDocument{AllowedPaths: s.AllowedPaths}
}

// ShellScope restricts a shell grant to an exact-match command
// allow-list, with a separate gate for unsandboxed execution.
type ShellScope struct {
	// AllowedCommands are command tokens compared by exact string
	// match (not path-resolved). The Wildcard entry matches any
	// command.
	AllowedCommands []string

	// AllowUnsandboxed gates direct host execution. It is independent
	// of the command match: a Wildcard allow-list does not imply it.
	AllowUnsandboxed bool
}

func (s ShellScope) matches(q Query) bool {
	if !CommandAllowed(s.AllowedCommands, q.Command) {
		return false
	}
	if q.Unsandboxed && !s.AllowUnsandboxed {
		return false
	}
	return true
}

func (s ShellScope) document() scopeDocument {
	return scopeDocument{
		AllowedCommands:  s.AllowedCommands,
		AllowUnsandboxed: s.AllowUnsandboxed,
	}
}

// GenericScope restricts grants for resources without a dedicated
// matcher. An empty scope places no restriction beyond resource and
// action.
type GenericScope struct {
	// NotebookIDs, when non-empty, restricts the grant to the listed
	// notebooks.
	NotebookIDs []string
}

func (s GenericScope) matches(q Query) bool {
	if len(s.NotebookIDs) == 0 {
		return true
	}
	if q.NotebookID == "" {
		return false
	}
	return slices.Contains(s.NotebookIDs, q.NotebookID) ||
		slices.Contains(s.NotebookIDs, Wildcard)
}

func (s GenericScope) document() scopeDocument {
	return scopeDocument{NotebookIDs: s.NotebookIDs}
}

// Query carries the scope context of one authorization check. Only
// the fields relevant to the queried resource are consulted.
type Query struct {
	Resource Resource
	Action   string

	// Path is the candidate filesystem path (files resource).
	Path string

	// Command is the candidate command token (shell resource).
	Command string

	// Unsandboxed is true when the caller wants direct host
	// execution (shell resource).
	Unsandboxed bool

	// NotebookID identifies the target notebook (notebooks resource).
	NotebookID string
}

// scopeRequired marks the resources whose enforcement points demand
// an explicit scope document. A grant for these resources with no
// scope authorizes nothing (fail closed).
var scopeRequired = map[Resource]bool{
	ResourceFiles: true,
	ResourceShell: true,
}

// scopeDocument is the stored and wire shape of a scope: a single
// JSON document whose recognized keys depend on the resource.
type scopeDocument struct {
	AllowedPaths     []string `json:"allowedPaths,omitempty"`
	AllowedCommands  []string `json:"allowedCommands,omitempty"`
	AllowUnsandboxed bool     `json:"allowUnsandboxed,omitempty"`
	NotebookIDs      []string `json:"notebookIds,omitempty"`
}

// DecodeScope parses a stored or submitted scope document for the
// given resource. Returns nil for empty input. Unrecognized keys are
// ignored; the resource decides which keys are read.
func DecodeScope(resource Resource, data []byte) (Scope, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var doc scopeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing scope document: %w", err)
	}
	return doc.toScope(resource), nil
}

// EncodeScope serializes a scope to its stored JSON document. Returns
// nil for a nil scope.
func EncodeScope(s Scope) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	data, err := json.Marshal(s.document())
	if err != nil {
		return nil, fmt.Errorf("encoding scope document: %w", err)
	}
	return data, nil
}

// toScope selects the concrete scope kind for a resource.
func (doc scopeDocument) toScope(resource Resource) Scope {
	switch resource {
	case ResourceFiles:
		return FileScope{AllowedPaths: doc.AllowedPaths}
	case ResourceShell:
		return ShellScope{
			AllowedCommands:  doc.AllowedCommands,
			AllowUnsandboxed: doc.AllowUnsandboxed,
		}
	default:
		return GenericScope{NotebookIDs: doc.NotebookIDs}
	}
}

// PathAllowed reports whether candidate falls inside any entry of a
// path allow-list.
//
// Both sides are normalized to cleaned absolute form with any
// trailing separator stripped. A candidate matches an entry when it
// equals the entry exactly or starts with the entry plus a path
// separator — never a bare string-prefix test, so an entry
// /home/user/documents does not admit /home/user/documents2.
func PathAllowed(allowed []string, candidate string) bool {
	if candidate == "" {
		return false
	}
	normalizedCandidate := normalizePath(candidate)
	for _, entry := range allowed {
		if entry == Wildcard {
			return true
		}
		normalizedEntry := normalizePath(entry)
		if normalizedEntry == "" {
			continue
		}
		if normalizedCandidate == normalizedEntry {
			return true
		}
		if strings.HasPrefix(normalizedCandidate, normalizedEntry+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// CommandAllowed reports whether command appears in the allow-list by
// exact token match, or the list carries the Wildcard.
func CommandAllowed(allowed []string, command string) bool {
	if command == "" {
		return false
	}
	return slices.Contains(allowed, command) || slices.Contains(allowed, Wildcard)
}

// normalizePath cleans a path and strips any trailing separator. The
// root path "/" is preserved as-is.
func normalizePath(path string) string {
	cleaned := filepath.Clean(path)
	if cleaned != string(filepath.Separator) {
		cleaned = strings.TrimSuffix(cleaned, string(filepath.Separator))
	}
	return cleaned
}
