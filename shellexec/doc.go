// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package shellexec turns an authorized shell-command request into a
// resource-limited, network-isolated execution, a dry run, or a
// rejection. Every invocation moves through the same states: received,
// authorized or denied, then one of sandboxed, unsandboxed, or dry_run
// execution, then completed, timeout, or error, and finally audited.
// Exactly one audit entry is written per invocation on every branch,
// including attempts rejected before any process was spawned.
//
// The sandboxed path runs the command under bubblewrap with all
// namespaces unshared and no network, wrapped in a transient systemd
// scope carrying the profile's CPU, memory, and task limits. The
// Spawner interface isolates that machinery so the engine's decision
// logic is testable without spawning anything.
package shellexec
