// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import "fmt"

// Validation error codes.
const (
	CodeInvalidResource = "INVALID_RESOURCE"
	CodeInvalidAction   = "INVALID_ACTION"
)

// ValidationError reports a malformed grant or request: an unknown
// resource, or an action outside the resource's vocabulary. The
// operation is never partially applied.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func invalidResource(r Resource) error {
	return &ValidationError{
		Code:    CodeInvalidResource,
		Message: fmt.Sprintf("unknown resource %q", r),
	}
}

func invalidAction(r Resource, action string) error {
	return &ValidationError{
		Code:    CodeInvalidAction,
		Message: fmt.Sprintf("action %q is not valid for resource %q", action, r),
	}
}

// NotFoundError reports an operation against a row that does not
// exist from the caller's perspective: revoking an unknown or
// already-revoked permission, or resolving an unknown or
// already-resolved request. Distinct from an authorization failure.
type NotFoundError struct {
	Kind string // "permission" or "request"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}
