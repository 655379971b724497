// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability. Production code
// injects Real(); tests inject Fake() and advance time explicitly.
//
// Permission expiry and execution timeouts are both wall-clock
// decisions, so every function that compares against "now" or arms a
// timer takes a clock.Clock instead of calling the time package
// directly.
package clock
