// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import "time"

// FileEntry records one file enforcement point attempt. An entry is
// written whether the attempt succeeded, failed authorization, or
// failed at the I/O layer; ErrorCode distinguishes the branches.
type FileEntry struct {
	ID     string `json:"id" cbor:"id"`
	UserID string `json:"userId" cbor:"user_id"`

	// Action is the file action attempted: read, write, list, delete.
	Action string `json:"action" cbor:"action"`

	// Path is the canonicalized target path. For denied traversal
	// attempts it is the path as submitted, since canonicalization is
	// what rejected it.
	Path string `json:"path" cbor:"path"`

	Success bool `json:"success" cbor:"success"`

	// ErrorCode is set on failure: FILE_PATH_NOT_ALLOWED for
	// authorization denials, an I/O error class otherwise.
	ErrorCode string `json:"errorCode,omitempty" cbor:"error_code,omitempty"`

	// ByteCount is the number of bytes read or written.
	ByteCount int64 `json:"byteCount,omitempty" cbor:"byte_count,omitempty"`

	// ContentDigest is the hex BLAKE3 digest of written content, so
	// an auditor can prove what bytes landed without storing them.
	ContentDigest string `json:"contentDigest,omitempty" cbor:"content_digest,omitempty"`

	DurationMs int64     `json:"durationMs" cbor:"duration_ms"`
	CreatedAt  time.Time `json:"createdAt" cbor:"created_at"`
}

// ShellEntry records one shell execution attempt, including attempts
// rejected before any process was spawned.
type ShellEntry struct {
	ID     string `json:"id" cbor:"id"`
	UserID string `json:"userId" cbor:"user_id"`

	// Mode is sandboxed, unsandboxed, or dry_run. Denied attempts
	// record the mode that was requested.
	Mode string `json:"mode" cbor:"mode"`

	Command string   `json:"command" cbor:"command"`
	Args    []string `json:"args,omitempty" cbor:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty" cbor:"cwd,omitempty"`

	Success bool `json:"success" cbor:"success"`

	// ExitCode is the process exit status. Nil when no process ran
	// (denied, dry run, spawn failure).
	ExitCode *int `json:"exitCode,omitempty" cbor:"exit_code,omitempty"`

	// ErrorCode is set on failure: an authorization code
	// (SHELL_COMMAND_NOT_ALLOWED, UNSANDBOXED_MODE_NOT_ALLOWED), or
	// an execution code (EXECUTION_TIMEOUT, SPAWN_FAILED,
	// NONZERO_EXIT).
	ErrorCode string `json:"errorCode,omitempty" cbor:"error_code,omitempty"`

	DurationMs int64 `json:"durationMs" cbor:"duration_ms"`

	// Output accounting: captured byte counts and whether the capture
	// ceiling truncated either stream.
	StdoutBytes     int64 `json:"stdoutBytes" cbor:"stdout_bytes"`
	StderrBytes     int64 `json:"stderrBytes" cbor:"stderr_bytes"`
	StdoutTruncated bool  `json:"stdoutTruncated,omitempty" cbor:"stdout_truncated,omitempty"`
	StderrTruncated bool  `json:"stderrTruncated,omitempty" cbor:"stderr_truncated,omitempty"`

	CreatedAt time.Time `json:"createdAt" cbor:"created_at"`
}
