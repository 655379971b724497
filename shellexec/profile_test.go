// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package shellexec

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	path := writeProfile(t, `
timeoutSeconds: 120
resources:
  memoryMax: 2G
  tasksMax: 256
extraReadOnlyBinds:
  - /opt/toolchain
`)
	profile, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}

	if profile.Timeout() != 2*time.Minute {
		t.Errorf("Timeout = %v", profile.Timeout())
	}
	if profile.Resources.MemoryMax != "2G" || profile.Resources.TasksMax != 256 {
		t.Errorf("Resources = %+v", profile.Resources)
	}
	// Fields absent from the file keep their defaults.
	if profile.MaxOutputBytes != DefaultProfile().MaxOutputBytes {
		t.Errorf("MaxOutputBytes = %d", profile.MaxOutputBytes)
	}
	if profile.Resources.CPUQuota != DefaultProfile().Resources.CPUQuota {
		t.Errorf("CPUQuota = %q", profile.Resources.CPUQuota)
	}
	if len(profile.ExtraReadOnlyBinds) != 1 {
		t.Errorf("ExtraReadOnlyBinds = %v", profile.ExtraReadOnlyBinds)
	}
}

func TestLoadProfileRejectsBadValues(t *testing.T) {
	if _, err := LoadProfile(writeProfile(t, "timeoutSeconds: -5\n")); err == nil {
		t.Error("negative timeout accepted")
	}
	if _, err := LoadProfile(writeProfile(t, "maxOutputBytes: 0\n")); err == nil {
		t.Error("zero output cap accepted")
	}
	if _, err := LoadProfile(writeProfile(t, "timeoutSeconds: [nope\n")); err == nil {
		t.Error("malformed yaml accepted")
	}
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestProfileIsZero(t *testing.T) {
	if !(Profile{}).IsZero() {
		t.Error("zero profile reported as set")
	}
	if DefaultProfile().IsZero() {
		t.Error("default profile reported as zero")
	}
	if (Profile{ExtraReadOnlyBinds: []string{"/opt"}}).IsZero() {
		t.Error("binds-only profile reported as zero")
	}
	if (Profile{Resources: ResourceLimits{TasksMax: 1}}).IsZero() {
		t.Error("limits-only profile reported as zero")
	}
}

func TestHasLimits(t *testing.T) {
	if (ResourceLimits{}).HasLimits() {
		t.Error("zero limits reported as set")
	}
	if !(ResourceLimits{TasksMax: 1}).HasLimits() {
		t.Error("TasksMax alone not reported")
	}
	if !(ResourceLimits{CPUQuota: "50%"}).HasLimits() {
		t.Error("CPUQuota alone not reported")
	}
}
