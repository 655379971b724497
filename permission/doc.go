// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// Package permission implements the capability store and the
// permission manager: time-bounded, revocable grants over sensitive
// resources (filesystem, shell, connected accounts) and the
// scope-matching algorithm that decides whether a concrete operation
// is authorized.
//
// Authorization is additive: a user may hold any number of
// overlapping grants for a resource, and an operation is allowed if
// any active grant covers it. A grant is active while it is not
// revoked and not past its expiry; expiry is evaluated against the
// injected clock on every check, never cached.
//
// Check is the hot-path decision primitive. It is a pure read, never
// returns an error, and fails closed: a store failure or malformed
// scope document denies the operation.
package permission
