// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/specdr/specdr/internal/config"
	"github.com/specdr/specdr/internal/log"
	"github.com/specdr/specdr/internal/masters"
	"github.com/specdr/specdr/internal/qa"
)

func runQAServe(args []string) int {
	fs := flag.NewFlagSet("qa serve", flag.ExitOnError)
	configPath := fs.String("config", "", "runtime config file (YAML)")
	_ = fs.Parse(args)

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: "specdr"})
	logger := log.WithComponent("cli")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	idx, err := masters.NewIndex(cfg.Masters.Backend, cfg.Masters.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	store := masters.NewStore(filepath.Join(cfg.WorkDir, "Masters"), cfg.Masters.Reuse, version, idx)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close masters store")
		}
	}()

	state := qa.NewState(
		filepath.Join(cfg.WorkDir, "Science"),
		filepath.Join(cfg.WorkDir, "QA"),
		store,
	)
	if err := state.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("initial snapshot refresh")
	}
	if err := state.Watch(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer state.Stop()

	// Hot-reload the runtime config; a changed working directory takes
	// effect on the next restart, but listeners keep the snapshot fresh.
	holder := config.NewHolder(cfg, loader, *configPath)
	if err := holder.StartWatcher(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer holder.Stop()

	reloads := make(chan config.AppConfig, 1)
	holder.RegisterListener(reloads)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-reloads:
				if err := state.Refresh(ctx); err != nil {
					logger.Warn().Err(err).Msg("snapshot refresh after reload")
				}
			}
		}
	}()

	srv := qa.NewServer(cfg.QA, state, prometheus.DefaultGatherer, version)
	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
