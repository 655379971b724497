// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ResourceLimits are the systemd scope properties applied to a
// sandboxed execution. Zero values mean "no limit for this property".
type ResourceLimits struct {
	// CPUQuota in systemd syntax, e.g. "100%" is one full core.
	CPUQuota string `yaml:"cpuQuota"`

	// MemoryMax in systemd syntax, e.g. "512M", "2G".
	MemoryMax string `yaml:"memoryMax"`

	// TasksMax bounds processes and threads inside the scope.
	TasksMax int `yaml:"tasksMax"`
}

// HasLimits reports whether any property is set.
func (r ResourceLimits) HasLimits() bool {
	return r.CPUQuota != "" || r.MemoryMax != "" || r.TasksMax > 0
}

// Profile is the execution policy for shell commands: resource limits,
// the wall-clock timeout, the output capture ceiling, and any extra
// read-only binds the sandbox needs beyond the base system mounts.
type Profile struct {
	// TimeoutSeconds is the wall-clock ceiling per execution.
	TimeoutSeconds int `yaml:"timeoutSeconds"`

	// MaxOutputBytes caps captured stdout and stderr independently.
	// Output past the cap is discarded and the truncation flag set.
	MaxOutputBytes int64 `yaml:"maxOutputBytes"`

	Resources ResourceLimits `yaml:"resources"`

	// ExtraReadOnlyBinds are host paths bind-mounted read-only into
	// the sandbox at the same location, e.g. a toolchain under /opt.
	// Missing paths are skipped.
	ExtraReadOnlyBinds []string `yaml:"extraReadOnlyBinds"`
}

// DefaultProfile is the policy used when no profile file is given:
// one core, half a gigabyte, thirty seconds, one megabyte of output
// per stream.
func DefaultProfile() Profile {
	return Profile{
		TimeoutSeconds: 30,
		MaxOutputBytes: 1 << 20,
		Resources: ResourceLimits{
			CPUQuota:  "100%",
			MemoryMax: "512M",
			TasksMax:  64,
		},
	}
}

// IsZero reports whether no field of the profile is set. A zero
// profile in an engine config selects DefaultProfile.
func (p Profile) IsZero() bool {
	return p.TimeoutSeconds == 0 &&
		p.MaxOutputBytes == 0 &&
		!p.Resources.HasLimits() &&
		len(p.ExtraReadOnlyBinds) == 0
}

// Timeout returns the profile timeout as a duration.
func (p Profile) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// LoadProfile reads a profile from a YAML file. Fields absent from the
// file keep their default values.
func LoadProfile(path string) (Profile, error) {
	profile := DefaultProfile()

	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("shellexec: reading profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("shellexec: parsing profile %s: %w", path, err)
	}
	if err := profile.validate(); err != nil {
		return profile, fmt.Errorf("shellexec: profile %s: %w", path, err)
	}
	return profile, nil
}

func (p Profile) validate() error {
	if p.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeoutSeconds must be positive, got %d", p.TimeoutSeconds)
	}
	if p.MaxOutputBytes <= 0 {
		return fmt.Errorf("maxOutputBytes must be positive, got %d", p.MaxOutputBytes)
	}
	if p.Resources.TasksMax < 0 {
		return fmt.Errorf("tasksMax must not be negative, got %d", p.Resources.TasksMax)
	}
	return nil
}
