// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool wraps zombiezen sqlitex.Pool with the standard
// pragmas used by every store in this repository: WAL journaling,
// a busy timeout, and foreign keys enabled. The permission and audit
// stores share one pool per database file.
package sqlitepool
