// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmgzone/notebookllm/permission"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	writeJSON(w, logger, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeDomainError maps the typed errors from the permission layer to
// HTTP statuses: validation is 400, not-found is 404, anything else is
// an opaque 500.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var validationErr *permission.ValidationError
	if errors.As(err, &validationErr) {
		writeError(w, logger, http.StatusBadRequest, validationErr.Code, validationErr.Message)
		return
	}

	var notFound *permission.NotFoundError
	if errors.As(err, &notFound) {
		writeError(w, logger, http.StatusNotFound, "NOT_FOUND", notFound.Error())
		return
	}

	logger.Error("internal error", "error", err)
	writeError(w, logger, http.StatusInternalServerError, "INTERNAL", "internal error")
}

// decodeBody decodes a JSON request body, rejecting unknown fields so
// a typo in a scope key fails loudly instead of granting nothing.
func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
