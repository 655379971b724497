// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package permission

import "testing"

func TestPathAllowedBoundary(t *testing.T) {
	allowed := []string{"/home/user/documents"}

	tests := []struct {
		candidate string
		want      bool
	}{
		{"/home/user/documents", true},
		{"/home/user/documents/", true},
		{"/home/user/documents/file.txt", true},
		{"/home/user/documents/nested/deep/file.txt", true},
		// The classic prefix-collision bypass: a sibling directory
		// whose name extends the allowed entry.
		{"/home/user/documents2", false},
		{"/home/user/documents2/file.txt", false},
		{"/home/user/docum", false},
		{"/home/user", false},
		{"/etc/passwd", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := PathAllowed(allowed, tt.candidate); got != tt.want {
			t.Errorf("PathAllowed(%q) = %v, want %v", tt.candidate, got, tt.want)
		}
	}
}

func TestPathAllowedNormalizesBothSides(t *testing.T) {
	// Trailing slashes and redundant elements on either side must not
	// change the decision.
	if !PathAllowed([]string{"/srv/data/"}, "/srv/data/reports/../reports/q1.csv") {
		t.Error("cleaned candidate under cleaned entry was denied")
	}
	if PathAllowed([]string{"/srv/data/"}, "/srv/data/../secrets") {
		t.Error("candidate escaping the entry via .. was allowed")
	}
}

func TestPathAllowedWildcard(t *testing.T) {
	if !PathAllowed([]string{Wildcard}, "/anywhere/at/all") {
		t.Error("wildcard entry did not match")
	}
	if PathAllowed([]string{Wildcard}, "") {
		t.Error("wildcard matched an empty candidate")
	}
}

func TestPathAllowedEmptyList(t *testing.T) {
	if PathAllowed(nil, "/home/user/documents") {
		t.Error("empty allow-list matched a path")
	}
}

func TestCommandAllowedExactMatch(t *testing.T) {
	allowed := []string{"echo", "node"}

	tests := []struct {
		command string
		want    bool
	}{
		{"echo", true},
		{"node", true},
		{"Echo", false}, // exact-string, case-sensitive
		{"echoo", false},
		{"/bin/echo", false}, // token match, not path-resolved
		{"rm", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := CommandAllowed(allowed, tt.command); got != tt.want {
			t.Errorf("CommandAllowed(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestCommandAllowedWildcard(t *testing.T) {
	if !CommandAllowed([]string{Wildcard}, "anything") {
		t.Error("wildcard entry did not match")
	}
}

func TestShellScopeUnsandboxedGate(t *testing.T) {
	scope := ShellScope{AllowedCommands: []string{Wildcard}}

	sandboxed := Query{Resource: ResourceShell, Action: "execute", Command: "node"}
	if !scope.matches(sandboxed) {
		t.Error("sandboxed query denied by wildcard command scope")
	}

	// A wildcard command list never implies the unsandboxed gate.
	unsandboxed := sandboxed
	unsandboxed.Unsandboxed = true
	if scope.matches(unsandboxed) {
		t.Error("unsandboxed query allowed without AllowUnsandboxed")
	}

	scope.AllowUnsandboxed = true
	if !scope.matches(unsandboxed) {
		t.Error("unsandboxed query denied despite AllowUnsandboxed")
	}
}

func TestGenericScopeNotebookRestriction(t *testing.T) {
	unrestricted := GenericScope{}
	if !unrestricted.matches(Query{Resource: ResourceNotebooks, NotebookID: "nb-1"}) {
		t.Error("empty generic scope should not restrict")
	}

	restricted := GenericScope{NotebookIDs: []string{"nb-1", "nb-2"}}
	if !restricted.matches(Query{Resource: ResourceNotebooks, NotebookID: "nb-2"}) {
		t.Error("listed notebook denied")
	}
	if restricted.matches(Query{Resource: ResourceNotebooks, NotebookID: "nb-3"}) {
		t.Error("unlisted notebook allowed")
	}
	if restricted.matches(Query{Resource: ResourceNotebooks}) {
		t.Error("restricted scope matched a query with no notebook")
	}
}

func TestDecodeScopeSelectsKindByResource(t *testing.T) {
	document := []byte(`{"allowedPaths":["/data"],"allowedCommands":["echo"],"allowUnsandboxed":true,"notebookIds":["nb-1"]}`)

	fileScope, err := DecodeScope(ResourceFiles, document)
	if err != nil {
		t.Fatalf("DecodeScope(files): %v", err)
	}
	fs, ok := fileScope.(FileScope)
	if !ok {
		t.Fatalf("files scope decoded as %T", fileScope)
	}
	if len(fs.AllowedPaths) != 1 || fs.AllowedPaths[0] != "/data" {
		t.Errorf("AllowedPaths = %v", fs.AllowedPaths)
	}

	shellScope, err := DecodeScope(ResourceShell, document)
	if err != nil {
		t.Fatalf("DecodeScope(shell): %v", err)
	}
	ss, ok := shellScope.(ShellScope)
	if !ok {
		t.Fatalf("shell scope decoded as %T", shellScope)
	}
	if !ss.AllowUnsandboxed || len(ss.AllowedCommands) != 1 {
		t.Errorf("ShellScope = %+v", ss)
	}

	genericScope, err := DecodeScope(ResourceNotebooks, document)
	if err != nil {
		t.Fatalf("DecodeScope(notebooks): %v", err)
	}
	if _, ok := genericScope.(GenericScope); !ok {
		t.Fatalf("notebooks scope decoded as %T", genericScope)
	}
}

func TestDecodeScopeEmpty(t *testing.T) {
	for _, input := range [][]byte{nil, {}, []byte("null")} {
		scope, err := DecodeScope(ResourceFiles, input)
		if err != nil {
			t.Errorf("DecodeScope(%q): %v", input, err)
		}
		if scope != nil {
			t.Errorf("DecodeScope(%q) = %v, want nil", input, scope)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := ShellScope{AllowedCommands: []string{"echo", "ls"}, AllowUnsandboxed: true}
	data, err := EncodeScope(original)
	if err != nil {
		t.Fatalf("EncodeScope: %v", err)
	}
	decoded, err := DecodeScope(ResourceShell, data)
	if err != nil {
		t.Fatalf("DecodeScope: %v", err)
	}
	got, ok := decoded.(ShellScope)
	if !ok {
		t.Fatalf("decoded as %T", decoded)
	}
	if !got.AllowUnsandboxed || len(got.AllowedCommands) != 2 {
		t.Errorf("round trip lost data: %+v", got)
	}
}
