// SPDX-License-Identifier: MIT

// Package qa serves the state of a reduction for inspection: run summaries,
// extracted spectra, master-frame inventory, and prometheus metrics.
package qa

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/specdr/specdr/internal/log"
	"github.com/specdr/specdr/internal/masters"
	"github.com/specdr/specdr/internal/pipeline"
)

// SummaryFile is the name of the run summary written into the QA directory.
const SummaryFile = "run_summary.json"

// Snapshot is a point-in-time view of the reduction outputs.
type Snapshot struct {
	UpdatedAt time.Time         `json:"updated_at"`
	Summary   *pipeline.Summary `json:"summary,omitempty"`
	Spectra   []string          `json:"spectra"`
	Masters   []masters.Record  `json:"masters"`
}

// State watches the output directories and keeps a current Snapshot.
type State struct {
	sciDir string
	qaDir  string
	store  *masters.Store

	mu       sync.RWMutex
	snapshot Snapshot

	watcher *fsnotify.Watcher
	logger  zerolog.Logger
}

// NewState creates a state view over the given output directories. store may
// be nil when no master index is available.
func NewState(sciDir, qaDir string, store *masters.Store) *State {
	return &State{
		sciDir: sciDir,
		qaDir:  qaDir,
		store:  store,
		logger: log.WithComponent("qa"),
	}
}

// Snapshot returns the current view.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Refresh rescans the output directories.
func (s *State) Refresh(ctx context.Context) error {
	snap := Snapshot{UpdatedAt: time.Now().UTC(), Spectra: []string{}, Masters: []masters.Record{}}

	summaryPath := filepath.Join(s.qaDir, SummaryFile)
	// #nosec G304 -- the QA directory is operator configuration
	if data, err := os.ReadFile(summaryPath); err == nil {
		var sum pipeline.Summary
		if err := json.Unmarshal(data, &sum); err != nil {
			s.logger.Warn().Err(err).Str("path", summaryPath).Msg("unreadable run summary")
		} else {
			snap.Summary = &sum
		}
	}

	if entries, err := os.ReadDir(s.sciDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			snap.Spectra = append(snap.Spectra, e.Name())
		}
		sort.Strings(snap.Spectra)
	}

	if s.store != nil {
		recs, err := s.store.List(ctx)
		if err != nil {
			return err
		}
		snap.Masters = recs
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
	return nil
}

// Watch refreshes the snapshot whenever the output directories change.
// Directories that do not exist yet are skipped; a refresh picks them up
// once created by the pipeline.
func (s *State) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	watching := 0
	for _, dir := range []string{s.sciDir, s.qaDir} {
		if dir == "" {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.Debug().Err(err).Str("dir", dir).Msg("not watching directory")
			continue
		}
		watching++
	}
	s.logger.Info().
		Str("event", "qa.watcher_started").
		Int("dirs", watching).
		Msg("watching output directories")

	go s.watchLoop(ctx)
	return nil
}

func (s *State) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			_ = s.watcher.Close()
			return
		case _, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := s.Refresh(ctx); err != nil {
					s.logger.Error().Err(err).Str("event", "qa.refresh_failed").Msg("snapshot refresh failed")
				}
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error().Err(err).Str("event", "qa.watcher_error").Msg("watcher error")
		}
	}
}

// Stop closes the watcher if one is running.
func (s *State) Stop() {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
}
