// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/cli"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/nomad-render-worker/internal/cache"
	"github.com/hashicorp/nomad-render-worker/internal/certs"
	"github.com/hashicorp/nomad-render-worker/internal/conn"
	"github.com/hashicorp/nomad-render-worker/internal/config"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline"
	"github.com/hashicorp/nomad-render-worker/internal/pipeline/sandbox"
	"github.com/hashicorp/nomad-render-worker/internal/queue"
	"github.com/hashicorp/nomad-render-worker/internal/scheduler"
)

// maxCachedTemplates bounds the Template Cache's LRU; not user
// configurable since it trades disk usage for cache hit rate, not
// correctness.
const maxCachedTemplates = 64

type runCommand struct{}

func runCommandFactory() (cli.Command, error) {
	return runCommand{}, nil
}

func (runCommand) Help() string {
	return "Usage: render-worker run [-config-dir=...] [-run-mode=...]\n\n" +
		"  Starts the rendering worker: loads configuration, establishes the\n" +
		"  mTLS listener, and begins accepting connections from the main server."
}

func (runCommand) Synopsis() string { return "Starts the rendering worker" }

func (runCommand) Run(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configDir := fs.String("config-dir", "config", "directory holding default.hcl/<run-mode>.hcl/local.hcl")
	runMode := fs.String("run-mode", os.Getenv("RUN_MODE"), "optional environment name selecting an additional config overlay")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configDir, *runMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %s\n", err)
		return 1
	}

	level := hclog.LevelFromString(cfg.LogLevel)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	log := hclog.New(&hclog.LoggerOptions{Name: "render-worker", Level: level})

	if err := resetStartupDirectories(cfg.TempTemplatePath); err != nil {
		log.Error("failed preparing startup directories", "error", err)
		return 1
	}

	bundle, err := certs.Load(cfg.CACertPath, cfg.ClientCertPath, cfg.ClientKeyPath, cfg.RevocationListPath)
	if err != nil {
		log.Error("failed loading certificates", "error", err)
		return 1
	}

	if err := sandbox.LockProcess("temp", cfg.TempTemplatePath); err != nil {
		log.Warn("landlock restriction unavailable on this kernel, continuing without it", "error", err)
	}

	tplCache, err := cache.New(log, cfg.TempTemplatePath, maxCachedTemplates)
	if err != nil {
		log.Error("failed constructing template cache", "error", err)
		return 1
	}

	jobQueue := queue.NewQueue()
	statusMap := queue.NewStatusMap()
	executor := pipeline.New(log, "temp", sandbox.BwrapRunner{})
	sched := scheduler.New(log, jobQueue, statusMap, tplCache, tplCache, executor, cfg.MaxRenderingThreads)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sched.Run(ctx)

	host := cfg.Hostname
	if !cfg.BindToHost {
		host = "0.0.0.0"
	}
	addr := fmt.Sprintf("%s:%d", host, cfg.Port)

	listener, err := tls.Listen("tcp", addr, bundle.ServerConfig())
	if err != nil {
		log.Error("failed starting listener", "addr", addr, "error", err)
		return 1
	}
	defer listener.Close()
	log.Info("listening", "addr", addr)

	handler := conn.New(log, tplCache, jobQueue, statusMap, "temp")

	go acceptLoop(log, listener, handler)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return 0
}

func acceptLoop(log hclog.Logger, listener net.Listener, handler *conn.Handler) {
	for {
		nc, err := listener.Accept()
		if err != nil {
			log.Error("failed accepting connection", "error", err)
			return
		}
		log.Debug("accepted connection", "remote_addr", nc.RemoteAddr())
		go handler.Handle(nc)
	}
}

// resetStartupDirectories mirrors the original source's startup sequence:
// the scratch directory is wiped so no stale job leftovers survive a
// restart, while the template cache directory is created if missing but
// only cleared if it already exists.
func resetStartupDirectories(tempTemplatePath string) error {
	if err := os.RemoveAll("temp"); err != nil {
		return fmt.Errorf("clearing temp directory: %w", err)
	}
	if err := os.Mkdir("temp", 0o755); err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}

	if _, err := os.Stat(tempTemplatePath); err == nil {
		entries, readErr := os.ReadDir(tempTemplatePath)
		if readErr != nil {
			return fmt.Errorf("reading template directory: %w", readErr)
		}
		for _, entry := range entries {
			if rmErr := os.RemoveAll(fmt.Sprintf("%s/%s", tempTemplatePath, entry.Name())); rmErr != nil {
				return fmt.Errorf("clearing template directory: %w", rmErr)
			}
		}
	} else if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(tempTemplatePath, 0o755); mkErr != nil {
			return fmt.Errorf("creating template directory: %w", mkErr)
		}
	} else {
		return fmt.Errorf("statting template directory: %w", err)
	}

	return nil
}
