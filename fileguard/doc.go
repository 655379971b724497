// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package fileguard is the enforcement point for filesystem access.
// Every operation follows the same order: canonicalize the path and
// reject anything that escapes the sandbox root (unconditional, before
// any permission lookup), check the caller's file permission, perform
// the I/O, and append exactly one audit entry whatever the outcome.
//
// Authorization denials are result values, not Go errors: a caller can
// always branch on Result.Success and surface Result.ErrorCode. Errors
// are reserved for misuse (empty user, empty path) and for audit-sink
// failures.
package fileguard
