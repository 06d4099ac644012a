// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/renameio/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/specdr/specdr/internal/log"
	"github.com/specdr/specdr/internal/masters"
	"github.com/specdr/specdr/internal/pipeline"
	"github.com/specdr/specdr/internal/qa"
	"github.com/specdr/specdr/internal/reduxfile"
)

func runReduce(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	file := fs.String("f", "", "reduction file")
	configPath := fs.String("config", "", "runtime config file (YAML)")
	_ = fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: -f is required")
		fs.Usage()
		return 2
	}

	cfg, err := loadRuntime(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger := log.WithComponent("cli")

	rf, err := reduxfile.Read(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := rf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	pset, err := rf.ParSet()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	inst, err := rf.Spectrograph()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	// The parameter block can redirect outputs; the runtime config provides
	// the base working directory.
	base := cfg.WorkDir
	if rp := pset.String("rdx.redux_path"); rp != "" && rp != "." {
		base = rp
	}
	mastersDir := filepath.Join(base, pset.String("calibrations.caldir"))
	sciDir := filepath.Join(base, pset.String("rdx.scidir"))
	qaDir := filepath.Join(base, pset.String("rdx.qadir"))
	reuse := cfg.Masters.Reuse || pset.Bool("calibrations.reuse_masters")

	idx, err := masters.NewIndex(cfg.Masters.Backend, cfg.Masters.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	store := masters.NewStore(mastersDir, reuse, version, idx)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close masters store")
		}
	}()

	p, err := pipeline.New(pipeline.Options{
		Par:         pset,
		File:        rf,
		Inst:        inst,
		Store:       store,
		SciDir:      sciDir,
		Workers:     cfg.Pipeline.Workers,
		StepTimeout: cfg.Pipeline.StepTimeout,
		Metrics:     pipeline.NewMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := p.Run(ctx)
	if summary != nil {
		if err := writeSummary(qaDir, summary); err != nil {
			logger.Warn().Err(err).Msg("write run summary")
		}
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}

	for _, det := range summary.Detectors {
		for _, path := range det.Spec1D {
			fmt.Printf("  %s\n", path)
		}
	}
	fmt.Printf("✓ reduction complete (%s, setup %s, %d detector(s))\n",
		summary.Instrument, summary.Setup, len(summary.Detectors))
	return 0
}

func writeSummary(qaDir string, summary *pipeline.Summary) error {
	if err := os.MkdirAll(qaDir, 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(qaDir, qa.SummaryFile), data, 0o640)
}
