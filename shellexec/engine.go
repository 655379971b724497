// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmgzone/notebookllm/audit"
	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/lib/ident"
	"github.com/cmgzone/notebookllm/permission"
)

// Execution modes as recorded in results and audit entries.
const (
	ModeSandboxed   = "sandboxed"
	ModeUnsandboxed = "unsandboxed"
	ModeDryRun      = "dry_run"
)

// Error codes surfaced in results and audit entries. The first two
// are authorization denials (no process is spawned); the rest
// classify how an authorized execution ended.
const (
	CodeCommandNotAllowed     = "SHELL_COMMAND_NOT_ALLOWED"
	CodeUnsandboxedNotAllowed = "UNSANDBOXED_MODE_NOT_ALLOWED"
	CodeTimeout               = "EXECUTION_TIMEOUT"
	CodeSpawnFailed           = "SPAWN_FAILED"
	CodeNonzeroExit           = "NONZERO_EXIT"
	CodeExecFailed            = "EXECUTION_FAILED"
)

// ErrCwdOutsideRoot reports a requested working directory that
// resolves outside the execution root.
var ErrCwdOutsideRoot = errors.New("cwd outside execution root")

// Engine authorizes and runs shell commands.
type Engine struct {
	manager *permission.Manager
	audits  *audit.Store
	spawner Spawner
	clock   clock.Clock
	logger  *slog.Logger
	workdir string
	profile Profile
}

// Config holds the dependencies for an Engine. All fields except
// Profile are required; a zero Profile is replaced by DefaultProfile.
type Config struct {
	Manager *permission.Manager
	Audits  *audit.Store
	Spawner Spawner
	Clock   clock.Clock
	Logger  *slog.Logger

	// Workdir is the host directory commands run in. Sandboxed runs
	// see it bind-mounted read-write at /workspace.
	Workdir string

	Profile Profile
}

// NewEngine validates the configuration and returns an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("shellexec: Manager is required")
	}
	if cfg.Audits == nil {
		return nil, fmt.Errorf("shellexec: Audits is required")
	}
	if cfg.Spawner == nil {
		return nil, fmt.Errorf("shellexec: Spawner is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("shellexec: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("shellexec: Logger is required")
	}
	if cfg.Workdir == "" {
		return nil, fmt.Errorf("shellexec: Workdir is required")
	}

	profile := cfg.Profile
	if profile.IsZero() {
		profile = DefaultProfile()
	}
	if err := profile.validate(); err != nil {
		return nil, fmt.Errorf("shellexec: %w", err)
	}

	return &Engine{
		manager: cfg.Manager,
		audits:  cfg.Audits,
		spawner: cfg.Spawner,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		workdir: filepath.Clean(cfg.Workdir),
		profile: profile,
	}, nil
}

// ExecSpec is one execution request.
type ExecSpec struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`

	// Cwd is an optional working directory, taken relative to the
	// engine's execution root. Empty runs in the root itself; a value
	// that resolves outside the root is rejected before authorization.
	Cwd string `json:"cwd,omitempty"`

	// Sandboxed defaults to true when absent. An explicit false
	// requests direct host execution, which requires a grant with the
	// unsandboxed gate set; no command allow-list entry, including the
	// wildcard, implies it.
	Sandboxed *bool `json:"sandboxed,omitempty"`

	// DryRun validates authorization and records an audit entry but
	// spawns nothing.
	DryRun bool `json:"dryRun,omitempty"`

	// TimeoutMs overrides the profile timeout downward. Values of zero
	// or above the profile ceiling use the profile value.
	TimeoutMs int `json:"timeoutMs,omitempty"`
}

// unsandboxed reports whether the request explicitly opted out of the
// sandbox.
func (s ExecSpec) unsandboxed() bool {
	return s.Sandboxed != nil && !*s.Sandboxed
}

// Result is the outcome of one invocation. Denials and execution
// failures are values here, never Go errors, so the audit trail and
// the caller always see the same classification.
type Result struct {
	Success bool   `json:"success"`
	Mode    string `json:"mode"`

	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`

	// ExitCode is nil when no process ran.
	ExitCode *int `json:"exitCode,omitempty"`

	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	StdoutTruncated bool   `json:"stdoutTruncated,omitempty"`
	StderrTruncated bool   `json:"stderrTruncated,omitempty"`

	ErrorCode  string `json:"errorCode,omitempty"`
	DurationMs int64  `json:"durationMs"`
	AuditLogID string `json:"auditLogId"`
}

// Denied reports whether the result is an authorization denial, as
// opposed to an execution that ran and failed.
func (r *Result) Denied() bool {
	return r.ErrorCode == CodeCommandNotAllowed || r.ErrorCode == CodeUnsandboxedNotAllowed
}

// Execute runs one invocation through the full state machine. The
// returned error is reserved for caller misuse and audit-sink
// failures; everything else is expressed in the Result.
func (e *Engine) Execute(ctx context.Context, userID string, spec ExecSpec) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("shellexec: userID is required")
	}
	if spec.Command == "" {
		return nil, fmt.Errorf("shellexec: command is required")
	}
	cwd, err := e.resolveCwd(spec.Cwd)
	if err != nil {
		return nil, err
	}

	start := e.clock.Now()
	result := &Result{
		Mode:    e.mode(spec),
		Command: spec.Command,
		Args:    spec.Args,
	}

	query := permission.Query{
		Resource:    permission.ResourceShell,
		Action:      "execute",
		Command:     spec.Command,
		Unsandboxed: spec.unsandboxed(),
	}
	if !e.manager.Check(ctx, userID, query) {
		result.ErrorCode = e.denialCode(ctx, userID, spec, query)
		e.logger.Info("shell execution denied",
			"user_id", userID,
			"command", spec.Command,
			"mode", result.Mode,
			"error_code", result.ErrorCode,
		)
		return result, e.appendAudit(ctx, userID, spec, result, cwd, nil, nil, start)
	}

	if spec.DryRun {
		result.Success = true
		return result, e.appendAudit(ctx, userID, spec, result, cwd, nil, nil, start)
	}

	stdout := newCappedBuffer(e.profile.MaxOutputBytes)
	stderr := newCappedBuffer(e.profile.MaxOutputBytes)

	execCtx, cancel := context.WithTimeout(ctx, e.timeout(spec))
	defer cancel()

	exitCode, err := e.spawner.Spawn(execCtx, SpawnRequest{
		Command:   spec.Command,
		Args:      spec.Args,
		Workdir:   cwd,
		Sandboxed: !spec.unsandboxed(),
		ScopeName: "notebookllm-" + ident.New("exec"),
		Profile:   e.profile,
		Stdout:    stdout,
		Stderr:    stderr,
	})

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.StdoutTruncated = stdout.Truncated()
	result.StderrTruncated = stderr.Truncated()

	switch {
	case err == nil && exitCode == 0:
		result.Success = true
		result.ExitCode = &exitCode

	case err == nil:
		result.ErrorCode = CodeNonzeroExit
		result.ExitCode = &exitCode

	case isSpawnFailure(err):
		result.ErrorCode = CodeSpawnFailed
		e.logger.Error("shell spawn failed",
			"user_id", userID, "command", spec.Command, "error", err)

	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		// Deadline expiry and caller cancellation both land here; in
		// either case the process group was killed before it finished.
		result.ErrorCode = CodeTimeout

	default:
		// The process started but its outcome could not be collected.
		result.ErrorCode = CodeExecFailed
		e.logger.Error("shell execution failed",
			"user_id", userID, "command", spec.Command, "error", err)
	}

	return result, e.appendAudit(ctx, userID, spec, result, cwd, stdout, stderr, start)
}

// resolveCwd joins a request working directory onto the execution root
// and rejects any value that escapes it.
func (e *Engine) resolveCwd(cwd string) (string, error) {
	if cwd == "" {
		return e.workdir, nil
	}
	resolved := filepath.Clean(filepath.Join(e.workdir, cwd))
	if resolved != e.workdir &&
		!strings.HasPrefix(resolved, e.workdir+string(filepath.Separator)) {
		return "", fmt.Errorf("shellexec: %w: %q", ErrCwdOutsideRoot, cwd)
	}
	return resolved, nil
}

func (e *Engine) mode(spec ExecSpec) string {
	switch {
	case spec.DryRun:
		return ModeDryRun
	case spec.unsandboxed():
		return ModeUnsandboxed
	default:
		return ModeSandboxed
	}
}

// denialCode distinguishes "this command is not on your allow-list"
// from "the command is allowed but not outside the sandbox".
func (e *Engine) denialCode(ctx context.Context, userID string, spec ExecSpec, query permission.Query) string {
	if !spec.unsandboxed() {
		return CodeCommandNotAllowed
	}
	sandboxedQuery := query
	sandboxedQuery.Unsandboxed = false
	if e.manager.Check(ctx, userID, sandboxedQuery) {
		return CodeUnsandboxedNotAllowed
	}
	return CodeCommandNotAllowed
}

func (e *Engine) timeout(spec ExecSpec) time.Duration {
	ceiling := e.profile.Timeout()
	if spec.TimeoutMs > 0 {
		requested := time.Duration(spec.TimeoutMs) * time.Millisecond
		if requested < ceiling {
			return requested
		}
	}
	return ceiling
}

// appendAudit writes the single audit entry for an invocation and
// fills in the result's AuditLogID.
func (e *Engine) appendAudit(ctx context.Context, userID string, spec ExecSpec, result *Result, cwd string, stdout, stderr *cappedBuffer, start time.Time) error {
	now := e.clock.Now()
	entry := &audit.ShellEntry{
		ID:         ident.New(ident.PrefixShellAudit),
		UserID:     userID,
		Mode:       result.Mode,
		Command:    spec.Command,
		Args:       spec.Args,
		Cwd:        cwd,
		Success:    result.Success,
		ExitCode:   result.ExitCode,
		ErrorCode:  result.ErrorCode,
		DurationMs: now.Sub(start).Milliseconds(),
		CreatedAt:  now,
	}
	if stdout != nil {
		entry.StdoutBytes = stdout.Total()
		entry.StdoutTruncated = stdout.Truncated()
	}
	if stderr != nil {
		entry.StderrBytes = stderr.Total()
		entry.StderrTruncated = stderr.Truncated()
	}
	if err := e.audits.AppendShell(ctx, entry); err != nil {
		return fmt.Errorf("shellexec: recording audit entry: %w", err)
	}
	result.AuditLogID = entry.ID
	result.DurationMs = entry.DurationMs
	return nil
}
