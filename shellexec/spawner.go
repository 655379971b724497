// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SpawnRequest describes one process to run. The engine has already
// authorized it; the spawner only carries it out.
type SpawnRequest struct {
	Command string
	Args    []string

	// Workdir is the execution working directory on the host. The
	// sandboxed path bind-mounts it at /workspace; the unsandboxed
	// path chdirs into it.
	Workdir string

	// Sandboxed selects the bubblewrap-plus-scope path. False runs
	// the command directly on the host.
	Sandboxed bool

	// ScopeName names the transient systemd scope for sandboxed runs,
	// so an operator can find it in systemctl output.
	ScopeName string

	Profile Profile

	Stdout io.Writer
	Stderr io.Writer
}

// Spawner runs an authorized command to completion. The int result is
// the process exit code. A non-nil error with exit code -1 means the
// process could not be started at all; ctx expiry is reported as the
// ctx error after the process group has been killed.
type Spawner interface {
	Spawn(ctx context.Context, req SpawnRequest) (int, error)
}

// errSpawn wraps start failures so the engine can tell "never ran"
// from "ran and failed".
type errSpawn struct {
	err error
}

func (e *errSpawn) Error() string { return "spawn: " + e.err.Error() }
func (e *errSpawn) Unwrap() error { return e.err }

// isSpawnFailure reports whether err means the process never started.
func isSpawnFailure(err error) bool {
	var spawnErr *errSpawn
	return errors.As(err, &spawnErr)
}

// LocalSpawner executes commands on the local host. Sandboxed
// requests run under bubblewrap inside a systemd resource scope;
// unsandboxed requests run the command directly.
type LocalSpawner struct{}

// Spawn implements Spawner.
func (s *LocalSpawner) Spawn(ctx context.Context, req SpawnRequest) (int, error) {
	argv, err := s.buildArgv(req)
	if err != nil {
		return -1, &errSpawn{err: err}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	if !req.Sandboxed {
		cmd.Dir = req.Workdir
	}
	// Own process group so expiry can kill the whole tree, and
	// Pdeathsig so nothing survives this service dying mid-run.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: unix.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		return -1, &errSpawn{err: err}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		// Negative pid signals the whole process group.
		unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		<-waitDone
		return -1, ctx.Err()

	case waitErr := <-waitDone:
		if waitErr == nil {
			return 0, nil
		}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("shellexec: wait: %w", waitErr)
	}
}

func (s *LocalSpawner) buildArgv(req SpawnRequest) ([]string, error) {
	if !req.Sandboxed {
		return append([]string{req.Command}, req.Args...), nil
	}

	bwrap, err := bwrapPath()
	if err != nil {
		return nil, err
	}
	bwrapArgs, err := buildBwrapArgs(req.Profile, req.Workdir, req.Command, req.Args)
	if err != nil {
		return nil, err
	}
	argv := append([]string{bwrap}, bwrapArgs...)
	return wrapResourceScope(req.ScopeName, req.Profile.Resources, argv), nil
}
