// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

import (
	"fmt"
	"os"
	"os/exec"
)

// workspaceMount is where the execution working directory appears
// inside the sandbox.
const workspaceMount = "/workspace"

// baseReadOnlyBinds are the host trees every sandboxed command sees.
// Optional entries are skipped when the host does not have them
// (merged-/usr distributions have /bin and /lib as symlinks into
// /usr, which --ro-bind handles fine either way).
var baseReadOnlyBinds = []struct {
	path     string
	optional bool
}{
	{path: "/usr"},
	{path: "/bin", optional: true},
	{path: "/sbin", optional: true},
	{path: "/lib", optional: true},
	{path: "/lib64", optional: true},
	{path: "/etc/alternatives", optional: true},
}

// buildBwrapArgs constructs the bubblewrap argument list for one
// sandboxed execution. All namespaces are unshared and the network is
// always off; there is no profile switch that re-enables it. The
// working directory is bind-mounted read-write at /workspace and the
// environment is cleared down to a fixed minimal set.
func buildBwrapArgs(profile Profile, workdir string, command string, args []string) ([]string, error) {
	if workdir == "" {
		return nil, fmt.Errorf("shellexec: workdir is required")
	}
	if command == "" {
		return nil, fmt.Errorf("shellexec: command is required")
	}

	bwrapArgs := []string{
		"--unshare-pid",
		"--unshare-net",
		"--unshare-ipc",
		"--unshare-uts",
		"--unshare-cgroup",
		"--unshare-user",
		"--die-with-parent",
		"--new-session",
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
	}

	for _, bind := range baseReadOnlyBinds {
		if bind.optional {
			if _, err := os.Stat(bind.path); os.IsNotExist(err) {
				continue
			}
		}
		bwrapArgs = append(bwrapArgs, "--ro-bind", bind.path, bind.path)
	}
	for _, path := range profile.ExtraReadOnlyBinds {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		bwrapArgs = append(bwrapArgs, "--ro-bind", path, path)
	}

	bwrapArgs = append(bwrapArgs,
		"--bind", workdir, workspaceMount,
		"--chdir", workspaceMount,
		"--clearenv",
		"--setenv", "HOME", workspaceMount,
		"--setenv", "LANG", "C.UTF-8",
		"--setenv", "PATH", "/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin",
	)

	bwrapArgs = append(bwrapArgs, "--")
	bwrapArgs = append(bwrapArgs, command)
	bwrapArgs = append(bwrapArgs, args...)
	return bwrapArgs, nil
}

// lookPath is swapped in tests to control tool availability.
var lookPath = exec.LookPath

// bwrapPath locates the bubblewrap binary.
func bwrapPath() (string, error) {
	path, err := lookPath("bwrap")
	if err != nil {
		return "", fmt.Errorf("shellexec: bwrap not found: %w", err)
	}
	return path, nil
}

// wrapResourceScope prefixes argv with a transient systemd user scope
// carrying the profile's resource limits. Returns argv unchanged when
// systemd-run is unavailable or no limits are configured; the sandbox
// still runs, just without cgroup enforcement.
func wrapResourceScope(scopeName string, limits ResourceLimits, argv []string) []string {
	if !limits.HasLimits() {
		return argv
	}
	if _, err := lookPath("systemd-run"); err != nil {
		return argv
	}

	wrapped := []string{"systemd-run", "--user", "--scope", "--quiet"}
	if scopeName != "" {
		wrapped = append(wrapped, "--unit="+scopeName)
	}
	if limits.TasksMax > 0 {
		wrapped = append(wrapped, fmt.Sprintf("--property=TasksMax=%d", limits.TasksMax))
	}
	if limits.MemoryMax != "" {
		wrapped = append(wrapped, "--property=MemoryMax="+limits.MemoryMax)
	}
	if limits.CPUQuota != "" {
		wrapped = append(wrapped, "--property=CPUQuota="+limits.CPUQuota)
	}
	wrapped = append(wrapped, "--")
	return append(wrapped, argv...)
}
