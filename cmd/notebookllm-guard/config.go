// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// config is the daemon configuration, read from a JSONC file (JSON
// with comments and trailing commas) so deployments can annotate
// their settings in place.
type config struct {
	// ListenAddress is the HTTP API listen address.
	ListenAddress string `json:"listenAddress"`

	// SocketPath is the Unix control socket path.
	SocketPath string `json:"socketPath"`

	// DataDir holds the SQLite databases. Created if missing.
	DataDir string `json:"dataDir"`

	// SandboxRoot is the tree file operations are confined to and the
	// working directory shell commands run in. Must be absolute.
	SandboxRoot string `json:"sandboxRoot"`

	// ProfilePath optionally points at an execution profile YAML.
	// Empty means built-in defaults.
	ProfilePath string `json:"profilePath"`

	// PoolSize for each SQLite pool. Zero uses the pool default.
	PoolSize int `json:"poolSize"`

	// ShutdownSeconds bounds graceful HTTP shutdown.
	ShutdownSeconds int `json:"shutdownSeconds"`
}

func defaultConfig() config {
	return config{
		ListenAddress:   "127.0.0.1:8787",
		SocketPath:      "/run/notebookllm/guard.sock",
		DataDir:         "/var/lib/notebookllm",
		ShutdownSeconds: 10,
	}
}

// loadConfig reads and validates a JSONC config file, filling in
// defaults for absent fields.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("listenAddress is required")
	}
	if c.SocketPath == "" {
		return fmt.Errorf("socketPath is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir is required")
	}
	if c.SandboxRoot == "" {
		return fmt.Errorf("sandboxRoot is required")
	}
	if !filepath.IsAbs(c.SandboxRoot) {
		return fmt.Errorf("sandboxRoot must be absolute, got %q", c.SandboxRoot)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("poolSize must not be negative")
	}
	if c.ShutdownSeconds <= 0 {
		return fmt.Errorf("shutdownSeconds must be positive")
	}
	return nil
}
