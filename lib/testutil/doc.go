// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: channel waits with
// timeout safety valves and short-path temp directories for Unix
// sockets.
package testutil
