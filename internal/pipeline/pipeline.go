// SPDX-License-Identifier: MIT

// Package pipeline runs a spectroscopic reduction: calibration steps build
// master frames, then science frames are reduced and extracted. Steps form
// a DAG and every detector runs the chain independently.
package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/log"
	"github.com/specdr/specdr/internal/masters"
	"github.com/specdr/specdr/internal/par"
	"github.com/specdr/specdr/internal/reduxfile"
)

type step struct {
	name string
	deps []string
	run  func(*detectorRun, context.Context) error
}

// stepChain is the reduction DAG in definition order. Dependencies express
// data flow: the arc needs the bias, the wavelength solution needs the arc,
// and so on.
var stepChain = []step{
	{name: "bias", run: (*detectorRun).stepBias},
	{name: "arc", deps: []string{"bias"}, run: (*detectorRun).stepArc},
	{name: "trace", deps: []string{"bias"}, run: (*detectorRun).stepTrace},
	{name: "wavelengths", deps: []string{"arc"}, run: (*detectorRun).stepWavelengths},
	{name: "tilts", deps: []string{"arc", "trace"}, run: (*detectorRun).stepTilts},
	{name: "flatfield", deps: []string{"bias", "trace"}, run: (*detectorRun).stepFlatField},
	{name: "science", deps: []string{"wavelengths", "tilts", "flatfield"}, run: (*detectorRun).stepScience},
}

// Options configures a pipeline run.
type Options struct {
	Par    *par.Set
	File   *reduxfile.File
	Inst   *instrument.Instrument
	Store  *masters.Store
	Loader Loader

	// SciDir receives the extracted spectra.
	SciDir string
	// Workers bounds concurrent detector reductions; 0 means no bound.
	Workers int
	// StepTimeout bounds each step; 0 disables the bound.
	StepTimeout time.Duration
	// Metrics may be nil to disable instrumentation.
	Metrics *Metrics
}

// Pipeline reduces one reduction file.
type Pipeline struct {
	par    *par.Set
	file   *reduxfile.File
	inst   *instrument.Instrument
	store  *masters.Store
	loader Loader

	sciDir      string
	workers     int
	stepTimeout time.Duration
	metrics     *Metrics
	logger      zerolog.Logger

	order []string
	steps map[string]step
}

// New builds a pipeline and verifies the step graph is acyclic.
func New(opts Options) (*Pipeline, error) {
	if opts.Par == nil || opts.File == nil || opts.Inst == nil || opts.Store == nil {
		return nil, errors.New("pipeline: missing required options")
	}
	if opts.Loader == nil {
		opts.Loader = FileLoader{}
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	stepsByName := make(map[string]step, len(stepChain))
	for _, s := range stepChain {
		if err := g.AddVertex(s.name); err != nil {
			return nil, errors.Wrapf(err, "add step %s", s.name)
		}
		stepsByName[s.name] = s
	}
	for _, s := range stepChain {
		for _, dep := range s.deps {
			if err := g.AddEdge(dep, s.name); err != nil {
				return nil, errors.Wrapf(err, "add edge %s -> %s", dep, s.name)
			}
		}
	}
	order, err := graph.TopologicalSort(g)
	if err != nil {
		return nil, errors.Wrap(err, "sort step graph")
	}

	return &Pipeline{
		par:         opts.Par,
		file:        opts.File,
		inst:        opts.Inst,
		store:       opts.Store,
		loader:      opts.Loader,
		sciDir:      opts.SciDir,
		workers:     opts.Workers,
		stepTimeout: opts.StepTimeout,
		metrics:     opts.Metrics,
		logger:      log.WithComponent("pipeline"),
		order:       order,
		steps:       stepsByName,
	}, nil
}

// StepOrder returns the execution order of the steps.
func (p *Pipeline) StepOrder() []string {
	return append([]string(nil), p.order...)
}

// StepResult records one executed step.
type StepResult struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
	Status   string        `json:"status"`
}

// DetectorResult records the reduction of one detector.
type DetectorResult struct {
	Detector int          `json:"detector"`
	Steps    []StepResult `json:"steps"`
	Spec1D   []string     `json:"spec1d"`
	Err      string       `json:"error,omitempty"`
}

// Summary records a whole pipeline run.
type Summary struct {
	Instrument string           `json:"instrument"`
	Setup      string           `json:"setup"`
	Started    time.Time        `json:"started"`
	Finished   time.Time        `json:"finished"`
	Detectors  []DetectorResult `json:"detectors"`
}

// Run reduces all selected detectors. The returned summary covers every
// detector even when some fail; the error is the first detector failure.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	detectors, err := p.selectDetectors()
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Instrument: p.inst.Name,
		Setup:      p.file.Setup,
		Started:    time.Now().UTC(),
	}
	p.logger.Info().
		Str("event", "pipeline.start").
		Str("instrument", p.inst.Name).
		Str("setup", p.file.Setup).
		Ints("detectors", detectors).
		Msg("starting reduction")

	results := make([]DetectorResult, len(detectors))
	g, gctx := errgroup.WithContext(ctx)
	if p.workers > 0 {
		g.SetLimit(p.workers)
	}
	for i, det := range detectors {
		i, det := i, det
		g.Go(func() error {
			res, err := p.runDetector(gctx, det)
			results[i] = res
			return err
		})
	}
	runErr := g.Wait()

	summary.Finished = time.Now().UTC()
	summary.Detectors = results
	sort.Slice(summary.Detectors, func(a, b int) bool {
		return summary.Detectors[a].Detector < summary.Detectors[b].Detector
	})

	if runErr != nil {
		p.logger.Error().Err(runErr).Str("event", "pipeline.failed").Msg("reduction failed")
		return summary, runErr
	}
	p.logger.Info().
		Str("event", "pipeline.done").
		Dur("elapsed", summary.Finished.Sub(summary.Started)).
		Msg("reduction complete")
	return summary, nil
}

func (p *Pipeline) selectDetectors() ([]int, error) {
	all := len(p.inst.Detectors)
	wanted := p.par.IntList("rdx.detnum")
	if len(wanted) == 0 {
		out := make([]int, all)
		for i := range out {
			out[i] = i + 1
		}
		return out, nil
	}
	for _, d := range wanted {
		if d < 1 || d > all {
			return nil, errors.Errorf("detector %d out of range: %s has %d detectors", d, p.inst.Name, all)
		}
	}
	return append([]int(nil), wanted...), nil
}

func (p *Pipeline) runDetector(ctx context.Context, det int) (DetectorResult, error) {
	run := &detectorRun{
		p:      p,
		detNum: det,
		key:    masters.Key(p.file.Setup, det),
	}
	res := DetectorResult{Detector: det}
	logger := p.logger.With().Int("detector", det).Logger()

	for _, name := range p.order {
		s := p.steps[name]
		stepCtx := ctx
		cancel := func() {}
		if p.stepTimeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, p.stepTimeout)
		}

		start := time.Now()
		err := s.run(run, stepCtx)
		cancel()
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
		}
		res.Steps = append(res.Steps, StepResult{Name: name, Duration: elapsed, Status: status})
		p.metrics.observeStep(name, status, elapsed)

		if err != nil {
			res.Err = err.Error()
			logger.Error().Err(err).Str("step", name).Msg("step failed")
			return res, errors.Wrapf(err, "detector %d step %s", det, name)
		}
		logger.Debug().Str("step", name).Dur("elapsed", elapsed).Msg("step complete")
	}

	res.Spec1D = run.spec1d
	return res, nil
}
