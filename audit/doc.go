// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit is the append-only record of every file and shell
// operation attempt. Entries are written by the enforcement points
// for allowed and denied attempts alike — exactly one entry per
// attempt — and are never updated or deleted by this service.
// Retention and rotation are external concerns; the Export methods
// exist so an external archiver can drain the log as a compressed
// CBOR stream.
package audit
