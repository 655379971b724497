// Copyright 2026 The NotebookLLM Authors
// SPDX-License-Identifier: Apache-2.0

// notebookllm-guard is the authorization and sandboxing daemon for
// the notebook assistant backend. It serves the HTTP API used by the
// backend and a Unix control socket for local operators, backed by
// SQLite permission and audit stores.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cmgzone/notebookllm/api"
	"github.com/cmgzone/notebookllm/audit"
	"github.com/cmgzone/notebookllm/fileguard"
	"github.com/cmgzone/notebookllm/lib/clock"
	"github.com/cmgzone/notebookllm/lib/service"
	"github.com/cmgzone/notebookllm/permission"
	"github.com/cmgzone/notebookllm/shellexec"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listenFlag  string
		socketFlag  string
		dataDirFlag string
		rootFlag    string
		profileFlag string
		logLevel    string
	)

	pflag.StringVar(&configPath, "config", "", "path to JSONC config file")
	pflag.StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides config)")
	pflag.StringVar(&socketFlag, "socket", "", "control socket path (overrides config)")
	pflag.StringVar(&dataDirFlag, "data-dir", "", "database directory (overrides config)")
	pflag.StringVar(&rootFlag, "sandbox-root", "", "sandbox root directory (overrides config)")
	pflag.StringVar(&profileFlag, "profile", "", "execution profile YAML (overrides config)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	cfg := defaultConfig()
	if configPath != "" {
		var err error
		cfg, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}
	if listenFlag != "" {
		cfg.ListenAddress = listenFlag
	}
	if socketFlag != "" {
		cfg.SocketPath = socketFlag
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}
	if rootFlag != "" {
		cfg.SandboxRoot = rootFlag
	}
	if profileFlag != "" {
		cfg.ProfilePath = profileFlag
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.MkdirAll(cfg.SandboxRoot, 0o750); err != nil {
		return fmt.Errorf("creating sandbox root: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o750); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	clk := clock.Real()

	permStore, err := permission.OpenStore(permission.StoreConfig{
		Path:     filepath.Join(cfg.DataDir, "permissions.db"),
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer permStore.Close()

	audits, err := audit.OpenStore(audit.StoreConfig{
		Path:     filepath.Join(cfg.DataDir, "audit.db"),
		PoolSize: cfg.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer audits.Close()

	manager, err := permission.NewManager(permission.ManagerConfig{
		Store:  permStore,
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	guard, err := fileguard.NewGuard(fileguard.Config{
		Root:    cfg.SandboxRoot,
		Manager: manager,
		Audits:  audits,
		Clock:   clk,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	profile := shellexec.DefaultProfile()
	if cfg.ProfilePath != "" {
		profile, err = shellexec.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return err
		}
	}

	engine, err := shellexec.NewEngine(shellexec.Config{
		Manager: manager,
		Audits:  audits,
		Spawner: &shellexec.LocalSpawner{},
		Clock:   clk,
		Logger:  logger,
		Workdir: cfg.SandboxRoot,
		Profile: profile,
	})
	if err != nil {
		return err
	}

	handler, err := api.NewHandler(api.HandlerConfig{
		Manager: manager,
		Guard:   guard,
		Engine:  engine,
		Audits:  audits,
		Clock:   clk,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	httpServer := api.NewServer(api.ServerConfig{
		Address:         cfg.ListenAddress,
		Handler:         handler,
		ShutdownTimeout: time.Duration(cfg.ShutdownSeconds) * time.Second,
		Logger:          logger,
	})

	controlServer := service.NewSocketServer(cfg.SocketPath, logger)
	registerControlActions(controlServer, &controlDeps{
		manager:   manager,
		audits:    audits,
		clock:     clk,
		startedAt: clk.Now(),
		address:   cfg.ListenAddress,
		root:      cfg.SandboxRoot,
	})

	logger.Info("notebookllm-guard starting",
		"listen", cfg.ListenAddress,
		"socket", cfg.SocketPath,
		"sandbox_root", cfg.SandboxRoot,
	)

	errCh := make(chan error, 2)
	go func() { errCh <- httpServer.Serve(ctx) }()
	go func() { errCh <- controlServer.Serve(ctx) }()

	// First failure (or clean shutdown) wins; the shared context
	// brings the other server down.
	err = <-errCh
	stop()
	if second := <-errCh; err == nil {
		err = second
	}
	return err
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
