// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmgzone/notebookllm/audit"
	"github.com/cmgzone/notebookllm/fileguard"
	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/permission"
	"github.com/cmgzone/notebookllm/shellexec"
)

// userHeader carries the caller identity, set by the trusted upstream.
const userHeader = "X-User-ID"

// Handler routes the guard API.
type Handler struct {
	manager *permission.Manager
	guard   *fileguard.Guard
	engine  *shellexec.Engine
	audits  *audit.Store
	clock   clock.Clock
	logger  *slog.Logger
	mux     *http.ServeMux
}

// HandlerConfig holds the dependencies for the API handler. All
// fields are required.
type HandlerConfig struct {
	Manager *permission.Manager
	Guard   *fileguard.Guard
	Engine  *shellexec.Engine
	Audits  *audit.Store
	Clock   clock.Clock
	Logger  *slog.Logger
}

// NewHandler validates the configuration and builds the routed
// handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("api: Manager is required")
	}
	if cfg.Guard == nil {
		return nil, fmt.Errorf("api: Guard is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("api: Engine is required")
	}
	if cfg.Audits == nil {
		return nil, fmt.Errorf("api: Audits is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("api: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("api: Logger is required")
	}

	h := &Handler{
		manager: cfg.Manager,
		guard:   cfg.Guard,
		engine:  cfg.Engine,
		audits:  cfg.Audits,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("PUT /permissions/{resource}", h.user(h.grantPermission))
	h.mux.HandleFunc("GET /permissions", h.user(h.listPermissions))
	h.mux.HandleFunc("GET /permissions/stats", h.user(h.permissionStats))
	h.mux.HandleFunc("POST /permissions/{id}/revoke", h.user(h.revokePermission))

	h.mux.HandleFunc("POST /permissions/requests", h.user(h.createRequest))
	h.mux.HandleFunc("GET /permissions/requests", h.user(h.listRequests))
	h.mux.HandleFunc("POST /permissions/requests/{id}/approve", h.user(h.approveRequest))
	h.mux.HandleFunc("POST /permissions/requests/{id}/deny", h.user(h.denyRequest))

	h.mux.HandleFunc("POST /shell/execute", h.user(h.shellExecute))
	h.mux.HandleFunc("GET /shell/audit-logs", h.user(h.shellAuditLogs))

	h.mux.HandleFunc("POST /files/write", h.user(h.fileWrite))
	h.mux.HandleFunc("GET /files/read", h.user(h.fileRead))
	h.mux.HandleFunc("GET /files/list", h.user(h.fileList))
	h.mux.HandleFunc("GET /files/audit-logs", h.user(h.fileAuditLogs))

	h.mux.HandleFunc("GET /audit-logs/export", h.user(h.auditExport))

	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// user wraps a handler with identity extraction. No header, no entry.
func (h *Handler) user(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			writeError(w, h.logger, http.StatusUnauthorized, "UNAUTHENTICATED",
				userHeader+" header is required")
			return
		}
		next(w, r, userID)
	}
}

// scopeBody is the JSON scope shape shared by grant and request
// bodies. Which keys matter depends on the resource.
type scopeBody struct {
	AllowedPaths     []string `json:"allowedPaths,omitempty"`
	AllowedCommands  []string `json:"allowedCommands,omitempty"`
	AllowUnsandboxed bool     `json:"allowUnsandboxed,omitempty"`
	NotebookIDs      []string `json:"notebookIds,omitempty"`
}

func (b scopeBody) toScope(resource permission.Resource) permission.Scope {
	switch resource {
	case permission.ResourceFiles:
		if b.AllowedPaths == nil {
			return nil
		}
		return permission.FileScope{AllowedPaths: b.AllowedPaths}
	case permission.ResourceShell:
		if b.AllowedCommands == nil && !b.AllowUnsandboxed {
			return nil
		}
		return permission.ShellScope{
			AllowedCommands:  b.AllowedCommands,
			AllowUnsandboxed: b.AllowUnsandboxed,
		}
	default:
		if b.NotebookIDs == nil {
			return nil
		}
		return permission.GenericScope{NotebookIDs: b.NotebookIDs}
	}
}

type grantBody struct {
	scopeBody

	// Actions defaults to the resource's full action vocabulary.
	Actions []string `json:"actions,omitempty"`

	// ExpiresInDays of zero means the grant does not expire.
	ExpiresInDays int `json:"expiresInDays,omitempty"`
}

func (h *Handler) grantPermission(w http.ResponseWriter, r *http.Request, userID string) {
	resource := permission.Resource(r.PathValue("resource"))

	var body grantBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	actions := body.Actions
	if actions == nil {
		actions = permission.Actions(resource)
	}

	spec := permission.GrantSpec{
		Resource: resource,
		Actions:  actions,
		Scope:    body.toScope(resource),
	}
	if body.ExpiresInDays < 0 {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_EXPIRY",
			"expiresInDays must not be negative")
		return
	}
	if body.ExpiresInDays > 0 {
		expiresAt := h.clock.Now().AddDate(0, 0, body.ExpiresInDays)
		spec.ExpiresAt = &expiresAt
	}

	granted, err := h.manager.Grant(r.Context(), userID, spec)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, granted.Wire())
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request, userID string) {
	resource := permission.Resource(r.URL.Query().Get("resource"))

	permissions, err := h.manager.List(r.Context(), userID, resource)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"permissions": permission.WirePermissions(permissions),
	})
}

func (h *Handler) permissionStats(w http.ResponseWriter, r *http.Request, userID string) {
	stats, err := h.manager.GetStats(r.Context(), userID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) revokePermission(w http.ResponseWriter, r *http.Request, userID string) {
	permissionID := r.PathValue("id")
	if err := h.manager.Revoke(r.Context(), userID, permissionID); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"success": true,
		"id":      permissionID,
	})
}

type requestBody struct {
	scopeBody

	Resource      permission.Resource `json:"resource"`
	Actions       []string            `json:"actions"`
	ExpiresInDays int                 `json:"expiresInDays,omitempty"`
	Reason        string              `json:"reason,omitempty"`
}

func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request, userID string) {
	var body requestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	request, err := h.manager.CreateRequest(r.Context(), userID, permission.RequestSpec{
		Resource:      body.Resource,
		Actions:       body.Actions,
		Scope:         body.toScope(body.Resource),
		ExpiresInDays: body.ExpiresInDays,
		Reason:        body.Reason,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, request.Wire())
}

// listRequests serves the approver view: all users' requests, with an
// optional status filter.
func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, _ string) {
	status := permission.RequestStatus(r.URL.Query().Get("status"))

	requests, err := h.manager.ListRequests(r.Context(), "", status)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"requests": permission.WireRequests(requests),
	})
}

func (h *Handler) approveRequest(w http.ResponseWriter, r *http.Request, _ string) {
	request, granted, err := h.manager.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"request":    request.Wire(),
		"permission": granted.Wire(),
	})
}

func (h *Handler) denyRequest(w http.ResponseWriter, r *http.Request, _ string) {
	request, err := h.manager.Deny(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"request": request.Wire()})
}

func (h *Handler) shellExecute(w http.ResponseWriter, r *http.Request, userID string) {
	var spec shellexec.ExecSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if spec.Command == "" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", "command is required")
		return
	}

	result, err := h.engine.Execute(r.Context(), userID, spec)
	if err != nil {
		if errors.Is(err, shellexec.ErrCwdOutsideRoot) {
			writeError(w, h.logger, http.StatusBadRequest, "INVALID_CWD", err.Error())
			return
		}
		writeDomainError(w, h.logger, err)
		return
	}

	// Authorization denials are 403; execution failures of authorized
	// work stay 200 so callers branch on the envelope.
	status := http.StatusOK
	if result.Denied() {
		status = http.StatusForbidden
	}
	writeJSON(w, h.logger, status, result)
}

func (h *Handler) shellAuditLogs(w http.ResponseWriter, r *http.Request, userID string) {
	entries, err := h.audits.ListShell(r.Context(), audit.ShellFilter{
		UserID: userID,
		Mode:   r.URL.Query().Get("mode"),
		Limit:  queryLimit(r),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"entries": entries})
}

type fileWriteBody struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (h *Handler) fileWrite(w http.ResponseWriter, r *http.Request, userID string) {
	var body fileWriteBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if body.Path == "" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", "path is required")
		return
	}

	result, err := h.guard.Write(r.Context(), userID, body.Path, []byte(body.Content))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, fileStatus(&result.Result), result)
}

func (h *Handler) fileRead(w http.ResponseWriter, r *http.Request, userID string) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", "path query parameter is required")
		return
	}

	result, err := h.guard.Read(r.Context(), userID, path)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, fileStatus(&result.Result), map[string]any{
		"success":    result.Success,
		"errorCode":  result.ErrorCode,
		"path":       result.Path,
		"content":    string(result.Content),
		"byteCount":  result.ByteCount,
		"auditLogId": result.AuditLogID,
	})
}

func (h *Handler) fileList(w http.ResponseWriter, r *http.Request, userID string) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY", "path query parameter is required")
		return
	}

	result, err := h.guard.List(r.Context(), userID, path)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, fileStatus(&result.Result), result)
}

func (h *Handler) fileAuditLogs(w http.ResponseWriter, r *http.Request, userID string) {
	entries, err := h.audits.ListFile(r.Context(), audit.FileFilter{
		UserID: userID,
		Action: r.URL.Query().Get("action"),
		Limit:  queryLimit(r),
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]any{"entries": entries})
}

// auditExport streams the caller's audit log as a zstd-compressed
// CBOR sequence for offline archiving. kind selects the log.
func (h *Handler) auditExport(w http.ResponseWriter, r *http.Request, userID string) {
	kind := r.URL.Query().Get("kind")
	if kind != "file" && kind != "shell" {
		writeError(w, h.logger, http.StatusBadRequest, "INVALID_BODY",
			"kind query parameter must be file or shell")
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s-audit-%s.cbor.zst", kind, userID))

	now := h.clock.Now()
	var err error
	if kind == "file" {
		err = h.audits.ExportFile(r.Context(), w, userID, now)
	} else {
		err = h.audits.ExportShell(r.Context(), w, userID, now)
	}
	if err != nil {
		// Headers are already out; all we can do is log and cut the
		// stream short.
		h.logger.Error("audit export failed", "user_id", userID, "kind", kind, "error", err)
	}
}

// fileStatus maps a file result to its HTTP status: denial is 403,
// everything else (success or I/O failure) is 200.
func fileStatus(result *fileguard.Result) int {
	if result.ErrorCode == fileguard.CodePathNotAllowed {
		return http.StatusForbidden
	}
	return http.StatusOK
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
