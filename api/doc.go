// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP surface of the guard service. Identity
// arrives as an X-User-ID header set by a trusted upstream (the
// notebook backend terminates authentication); requests without it
// are rejected with 401.
//
// Status mapping: malformed input is 400 with a validation code,
// unknown or already-revoked resources are 404, authorization denials
// from the enforcement points are 403 carrying the result envelope,
// and execution failures of authorized work (nonzero exit, timeout,
// I/O errors) are 200 with success=false so callers can always branch
// on the envelope.
package api
