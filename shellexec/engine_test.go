// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cmgzone/notebookllm/audit"
	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/permission"
)

// fakeSpawner records requests and plays back a scripted outcome.
type fakeSpawner struct {
	calls []SpawnRequest

	stdout   string
	stderr   string
	exitCode int
	err      error

	// advance moves the fake clock during the "execution" so duration
	// accounting is observable.
	advance time.Duration
	clk     *clock.FakeClock
}

func (f *fakeSpawner) Spawn(ctx context.Context, req SpawnRequest) (int, error) {
	f.calls = append(f.calls, req)
	if f.stdout != "" {
		req.Stdout.Write([]byte(f.stdout))
	}
	if f.stderr != "" {
		req.Stderr.Write([]byte(f.stderr))
	}
	if f.advance > 0 {
		f.clk.Advance(f.advance)
	}
	return f.exitCode, f.err
}

type testEngine struct {
	engine  *Engine
	manager *permission.Manager
	audits  *audit.Store
	spawner *fakeSpawner
	clk     *clock.FakeClock
}

func newTestEngine(t *testing.T, profile Profile) *testEngine {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	clk := clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	permStore, err := permission.OpenStore(permission.StoreConfig{
		Path:   filepath.Join(t.TempDir(), "permissions.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("permission.OpenStore: %v", err)
	}
	t.Cleanup(func() { permStore.Close() })

	manager, err := permission.NewManager(permission.ManagerConfig{
		Store: permStore, Clock: clk, Logger: logger,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	audits, err := audit.OpenStore(audit.StoreConfig{
		Path:   filepath.Join(t.TempDir(), "audit.db"),
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("audit.OpenStore: %v", err)
	}
	t.Cleanup(func() { audits.Close() })

	spawner := &fakeSpawner{clk: clk}
	engine, err := NewEngine(Config{
		Manager: manager,
		Audits:  audits,
		Spawner: spawner,
		Clock:   clk,
		Logger:  logger,
		Workdir: t.TempDir(),
		Profile: profile,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &testEngine{engine: engine, manager: manager, audits: audits, spawner: spawner, clk: clk}
}

// sandboxed builds the pointer form used by the request body, where
// absence means "sandboxed".
func sandboxed(v bool) *bool { return &v }

func (te *testEngine) grantShell(t *testing.T, userID string, scope permission.ShellScope) {
	t.Helper()
	_, err := te.manager.Grant(context.Background(), userID, permission.GrantSpec{
		Resource: permission.ResourceShell,
		Actions:  []string{"execute"},
		Scope:    scope,
	})
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
}

func TestSandboxedExecution(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"python3"}})

	te.spawner.stdout = "analysis complete\n"
	te.spawner.advance = 850 * time.Millisecond

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{
		Command: "python3",
		Args:    []string{"analyze.py"},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Mode != ModeSandboxed {
		t.Fatalf("result = %+v", result)
	}
	if result.ExitCode == nil || *result.ExitCode != 0 {
		t.Errorf("ExitCode = %v", result.ExitCode)
	}
	if result.Stdout != "analysis complete\n" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if result.DurationMs != 850 {
		t.Errorf("DurationMs = %d, want 850", result.DurationMs)
	}
	if result.AuditLogID == "" {
		t.Error("no audit log id")
	}

	if len(te.spawner.calls) != 1 {
		t.Fatalf("spawner called %d times", len(te.spawner.calls))
	}
	call := te.spawner.calls[0]
	if !call.Sandboxed {
		t.Error("spawn request not sandboxed")
	}
	if call.Command != "python3" || len(call.Args) != 1 {
		t.Errorf("spawn request = %+v", call)
	}
	if !strings.HasPrefix(call.ScopeName, "notebookllm-") {
		t.Errorf("ScopeName = %q", call.ScopeName)
	}

	entries, err := te.audits.ListShell(ctx, audit.ShellFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListShell: %v", err)
	}
	if len(entries) != 1 || entries[0].Mode != ModeSandboxed || !entries[0].Success {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestDeniedCommandNeverSpawns(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"ls"}})

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "rm"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("denied command succeeded")
	}
	if result.ErrorCode != CodeCommandNotAllowed {
		t.Errorf("ErrorCode = %q", result.ErrorCode)
	}
	if !result.Denied() {
		t.Error("Denied() = false for an authorization denial")
	}
	if result.ExitCode != nil {
		t.Errorf("denial has exit code %d", *result.ExitCode)
	}
	if len(te.spawner.calls) != 0 {
		t.Fatalf("spawner called %d times on denial", len(te.spawner.calls))
	}

	entries, err := te.audits.ListShell(ctx, audit.ShellFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListShell: %v", err)
	}
	if len(entries) != 1 || entries[0].ErrorCode != CodeCommandNotAllowed {
		t.Errorf("audit entries = %+v", entries)
	}
}

func TestUnsandboxedRequiresExplicitGate(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()

	// A wildcard command list does not imply the unsandboxed gate.
	te.grantShell(t, "alice", permission.ShellScope{
		AllowedCommands: []string{permission.Wildcard},
	})

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{
		Command: "make", Sandboxed: sandboxed(false),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ErrorCode != CodeUnsandboxedNotAllowed {
		t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, CodeUnsandboxedNotAllowed)
	}
	if len(te.spawner.calls) != 0 {
		t.Fatal("denied unsandboxed request spawned")
	}

	// With the gate set, the same request runs directly on the host.
	te.grantShell(t, "bob", permission.ShellScope{
		AllowedCommands:  []string{"make"},
		AllowUnsandboxed: true,
	})
	result, err = te.engine.Execute(ctx, "bob", ExecSpec{
		Command: "make", Sandboxed: sandboxed(false),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Mode != ModeUnsandboxed {
		t.Fatalf("result = %+v", result)
	}
	if te.spawner.calls[len(te.spawner.calls)-1].Sandboxed {
		t.Error("unsandboxed request spawned sandboxed")
	}
}

func TestUnknownCommandDenialIsNotUnsandboxedDenial(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{
		AllowedCommands:  []string{"ls"},
		AllowUnsandboxed: true,
	})

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{
		Command: "rm", Sandboxed: sandboxed(false),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ErrorCode != CodeCommandNotAllowed {
		t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, CodeCommandNotAllowed)
	}
}

func TestDryRunSpawnsNothing(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"terraform"}})

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{
		Command: "terraform", Args: []string{"apply"}, DryRun: true,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success || result.Mode != ModeDryRun {
		t.Fatalf("result = %+v", result)
	}
	if result.AuditLogID == "" {
		t.Error("dry run has no audit log id")
	}
	if len(te.spawner.calls) != 0 {
		t.Fatalf("dry run spawned %d processes", len(te.spawner.calls))
	}

	entries, err := te.audits.ListShell(ctx, audit.ShellFilter{UserID: "alice", Mode: ModeDryRun})
	if err != nil {
		t.Fatalf("ListShell: %v", err)
	}
	if len(entries) != 1 || !entries[0].Success {
		t.Errorf("audit entries = %+v", entries)
	}

	// An unauthorized dry run is still a denial.
	denied, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "rm", DryRun: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if denied.Success || denied.ErrorCode != CodeCommandNotAllowed {
		t.Errorf("unauthorized dry run = %+v", denied)
	}
}

func TestTimeoutClassification(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"sleep"}})

	te.spawner.stdout = "partial"
	te.spawner.exitCode = -1
	te.spawner.err = context.DeadlineExceeded

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "sleep"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("timed-out execution reported success")
	}
	if result.ErrorCode != CodeTimeout {
		t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, CodeTimeout)
	}
	if result.ExitCode != nil {
		t.Errorf("timeout has exit code %d", *result.ExitCode)
	}
	// Partial output survives the kill.
	if result.Stdout != "partial" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
}

func TestNonzeroExit(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"pytest"}})

	te.spawner.exitCode = 3
	te.spawner.stderr = "2 failed\n"

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "pytest"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("failing execution reported success")
	}
	if result.ErrorCode != CodeNonzeroExit {
		t.Errorf("ErrorCode = %q", result.ErrorCode)
	}
	if result.ExitCode == nil || *result.ExitCode != 3 {
		t.Errorf("ExitCode = %v, want 3", result.ExitCode)
	}
	if result.Stderr != "2 failed\n" {
		t.Errorf("Stderr = %q", result.Stderr)
	}
	if result.Denied() {
		t.Error("execution failure classified as denial")
	}
}

func TestSpawnFailure(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"nonexistent"}})

	te.spawner.exitCode = -1
	te.spawner.err = &errSpawn{err: errors.New("executable not found")}

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "nonexistent"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ErrorCode != CodeSpawnFailed {
		t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, CodeSpawnFailed)
	}
	if result.ExitCode != nil {
		t.Error("spawn failure has an exit code")
	}
}

func TestOutputTruncation(t *testing.T) {
	profile := DefaultProfile()
	profile.MaxOutputBytes = 16
	te := newTestEngine(t, profile)
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"yes"}})

	te.spawner.stdout = strings.Repeat("y\n", 100)

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "yes"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.StdoutTruncated {
		t.Error("StdoutTruncated = false")
	}
	if len(result.Stdout) != 16 {
		t.Errorf("captured %d bytes, want 16", len(result.Stdout))
	}
	if result.StderrTruncated {
		t.Error("StderrTruncated = true with no stderr output")
	}

	entries, err := te.audits.ListShell(ctx, audit.ShellFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListShell: %v", err)
	}
	if entries[0].StdoutBytes != 200 {
		t.Errorf("audited StdoutBytes = %d, want full 200", entries[0].StdoutBytes)
	}
	if !entries[0].StdoutTruncated {
		t.Error("audit entry not flagged truncated")
	}
}

func TestEveryBranchProducesOneAuditEntry(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"ls"}})

	specs := []ExecSpec{
		{Command: "ls"},                    // success
		{Command: "rm"},                    // denied
		{Command: "ls", DryRun: true},      // dry run
		{Command: "ls", Sandboxed: sandboxed(false)}, // unsandboxed denial
	}
	for i, spec := range specs {
		if _, err := te.engine.Execute(ctx, "alice", spec); err != nil {
			t.Fatalf("Execute %d: %v", i, err)
		}
	}

	count, err := te.audits.CountShell(ctx, "alice")
	if err != nil {
		t.Fatalf("CountShell: %v", err)
	}
	if count != int64(len(specs)) {
		t.Errorf("audit count = %d, want %d", count, len(specs))
	}
}

func TestExecuteInputValidation(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()

	if _, err := te.engine.Execute(ctx, "", ExecSpec{Command: "ls"}); err == nil {
		t.Error("empty user accepted")
	}
	if _, err := te.engine.Execute(ctx, "alice", ExecSpec{}); err == nil {
		t.Error("empty command accepted")
	}

	if _, err := NewEngine(Config{}); err == nil {
		t.Error("zero config accepted")
	}
	if _, err := NewEngine(Config{Profile: Profile{TimeoutSeconds: -1}}); err == nil {
		t.Error("negative timeout accepted")
	}
}

func TestTimeoutOverrideOnlyLowers(t *testing.T) {
	te := newTestEngine(t, Profile{})

	ceiling := te.engine.profile.Timeout()
	if got := te.engine.timeout(ExecSpec{}); got != ceiling {
		t.Errorf("default timeout = %v, want %v", got, ceiling)
	}
	if got := te.engine.timeout(ExecSpec{TimeoutMs: 5000}); got != 5*time.Second {
		t.Errorf("lowered timeout = %v, want 5s", got)
	}
	over := int(ceiling/time.Millisecond) + 100
	if got := te.engine.timeout(ExecSpec{TimeoutMs: over}); got != ceiling {
		t.Errorf("raised timeout = %v, want ceiling %v", got, ceiling)
	}
}

func TestCwdResolution(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"ls"}})

	root := te.engine.workdir

	// Relative cwd runs in a subdirectory of the execution root.
	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "ls", Cwd: "data/raw"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v", result)
	}
	if got := te.spawner.calls[0].Workdir; got != filepath.Join(root, "data/raw") {
		t.Errorf("Workdir = %q, want %q", got, filepath.Join(root, "data/raw"))
	}

	// "/" is the sandbox's own root, not the host's.
	if _, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "ls", Cwd: "/"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := te.spawner.calls[1].Workdir; got != root {
		t.Errorf("Workdir = %q, want root %q", got, root)
	}

	// Escapes are rejected before any audit entry is written.
	if _, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "ls", Cwd: "../outside"}); !errors.Is(err, ErrCwdOutsideRoot) {
		t.Fatalf("escape cwd error = %v, want ErrCwdOutsideRoot", err)
	}
	count, err := te.audits.CountShell(ctx, "alice")
	if err != nil {
		t.Fatalf("CountShell: %v", err)
	}
	if count != 2 {
		t.Errorf("audit count = %d, want 2", count)
	}
}

func TestWaitFailureIsNotTimeout(t *testing.T) {
	te := newTestEngine(t, Profile{})
	ctx := context.Background()
	te.grantShell(t, "alice", permission.ShellScope{AllowedCommands: []string{"ls"}})

	te.spawner.exitCode = -1
	te.spawner.err = errors.New("wait: no child processes")

	result, err := te.engine.Execute(ctx, "alice", ExecSpec{Command: "ls"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Success {
		t.Fatal("failed wait reported success")
	}
	if result.ErrorCode != CodeExecFailed {
		t.Errorf("ErrorCode = %q, want %q", result.ErrorCode, CodeExecFailed)
	}
	if result.ExitCode != nil {
		t.Error("failed wait has an exit code")
	}

	entries, err := te.audits.ListShell(ctx, audit.ShellFilter{UserID: "alice"})
	if err != nil {
		t.Fatalf("ListShell: %v", err)
	}
	if len(entries) != 1 || entries[0].ErrorCode != CodeExecFailed {
		t.Errorf("audit entries = %+v", entries)
	}
}
