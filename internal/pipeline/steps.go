// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/specdr/specdr/internal/masters"
	"github.com/specdr/specdr/internal/reduxfile"
)

// Master payloads. Each calibration step produces one of these per detector;
// the masters store persists them between runs.

// BiasMaster is the combined bias frame.
type BiasMaster struct {
	Image *Image `json:"image"`
}

// ArcMaster is the combined, bias-subtracted arc frame and its extracted
// one-dimensional spectrum.
type ArcMaster struct {
	Image    *Image    `json:"image"`
	Spectrum []float64 `json:"spectrum"`
}

// Slit is one illuminated region on the detector, bounded by its left and
// right edges in spatial pixels.
type Slit struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

// TraceMaster holds the slit edges found on the combined trace frame.
type TraceMaster struct {
	Slits []Slit `json:"slits"`
}

// TiltsMaster models the spatial tilt of the arc lines: a polynomial in the
// normalized spatial coordinate giving the spectral shift in pixels.
type TiltsMaster struct {
	Coeffs []float64 `json:"coeffs"`
	NLines int       `json:"nlines"`
}

// FlatMaster is the normalized pixel flat.
type FlatMaster struct {
	Image *Image `json:"image"`
}

// detectorRun carries the state of one detector through the step chain.
type detectorRun struct {
	p      *Pipeline
	detNum int
	key    string

	bias  *BiasMaster
	arc   *ArcMaster
	trace *TraceMaster
	wave  *WaveSolution
	tilts *TiltsMaster
	flat  *FlatMaster

	spec1d []string
}

func (r *detectorRun) provenance(frames []reduxfile.Frame) masters.Provenance {
	inputs := make([]string, len(frames))
	for i, f := range frames {
		inputs[i] = f.Path
	}
	return masters.Provenance{
		Instrument: r.p.inst.Name,
		Setup:      r.p.file.Setup,
		Detector:   r.detNum,
		Inputs:     inputs,
	}
}

// loadFrame reads one frame for this detector and checks it against the
// declared detector geometry. Every frame entering the reduction passes
// through here, so the pixel arithmetic downstream can assume matching
// dimensions.
func (r *detectorRun) loadFrame(ctx context.Context, path string) (*Image, error) {
	img, err := r.p.loader.Load(ctx, path, r.detNum)
	if err != nil {
		return nil, err
	}
	det := r.p.inst.Detectors[r.detNum-1]
	if img.SpecPixels() != det.SpecPixels || img.SpatPixels() != det.SpatPixels {
		return nil, errors.Errorf("frame %s: image is %dx%d, detector %d of %s expects %dx%d",
			path, img.SpecPixels(), img.SpatPixels(), r.detNum, r.p.inst.Name,
			det.SpecPixels, det.SpatPixels)
	}
	return img, nil
}

// loadFrames reads all frames of one type for this detector.
func (r *detectorRun) loadFrames(ctx context.Context, t reduxfile.FrameType) ([]*Image, []reduxfile.Frame, error) {
	frames := r.p.file.FramesOfType(t)
	images := make([]*Image, 0, len(frames))
	for _, f := range frames {
		img, err := r.loadFrame(ctx, f.Path)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
	}
	return images, frames, nil
}

// combineGroup loads and stacks the frames of one calibration group,
// checking the configured minimum count.
func (r *detectorRun) combineGroup(ctx context.Context, t reduxfile.FrameType, group string) (*Image, []reduxfile.Frame, error) {
	images, frames, err := r.loadFrames(ctx, t)
	if err != nil {
		return nil, nil, err
	}
	if want := r.p.par.Int(group + ".number"); len(images) < want {
		return nil, nil, errors.Errorf("%s: need %d %s frames, have %d", group, want, t, len(images))
	}
	det := r.p.inst.Detectors[r.detNum-1]
	img, err := Combine(images, combineOptionsFrom(r.p.par, group, det))
	if err != nil {
		return nil, nil, err
	}
	return img, frames, nil
}

func (r *detectorRun) stepBias(ctx context.Context) error {
	var cached BiasMaster
	if _, err := r.p.store.Load(ctx, masters.TypeBias, r.key, &cached); err == nil {
		r.bias = &cached
		return nil
	} else if !errors.Is(err, masters.ErrNotFound) {
		return err
	}

	img, frames, err := r.combineGroup(ctx, reduxfile.FrameBias, "calibrations.biasframe")
	if err != nil {
		return err
	}
	r.bias = &BiasMaster{Image: img}
	_, err = r.p.store.Save(ctx, masters.TypeBias, r.key, r.provenance(frames), r.bias)
	return err
}

func (r *detectorRun) stepArc(ctx context.Context) error {
	var cached ArcMaster
	if _, err := r.p.store.Load(ctx, masters.TypeArc, r.key, &cached); err == nil {
		r.arc = &cached
		return nil
	} else if !errors.Is(err, masters.ErrNotFound) {
		return err
	}

	img, frames, err := r.combineGroup(ctx, reduxfile.FrameArc, "calibrations.arcframe")
	if err != nil {
		return err
	}
	subtract(img, r.bias.Image)
	r.arc = &ArcMaster{Image: img, Spectrum: collapseSpatial(img)}
	_, err = r.p.store.Save(ctx, masters.TypeArc, r.key, r.provenance(frames), r.arc)
	return err
}

func (r *detectorRun) stepTrace(ctx context.Context) error {
	var cached TraceMaster
	if _, err := r.p.store.Load(ctx, masters.TypeTrace, r.key, &cached); err == nil {
		r.trace = &cached
		return nil
	} else if !errors.Is(err, masters.ErrNotFound) {
		return err
	}

	img, frames, err := r.combineGroup(ctx, reduxfile.FrameTrace, "calibrations.traceframe")
	if err != nil {
		return err
	}
	subtract(img, r.bias.Image)

	slits := findSlits(img,
		r.p.par.Float("calibrations.slits.sigdetect"),
		r.p.par.Float("calibrations.slits.minslit_length"))
	if len(slits) == 0 {
		return errors.New("no slits found on trace frame")
	}
	r.trace = &TraceMaster{Slits: slits}
	_, err = r.p.store.Save(ctx, masters.TypeTrace, r.key, r.provenance(frames), r.trace)
	return err
}

func (r *detectorRun) stepWavelengths(ctx context.Context) error {
	var cached WaveSolution
	if _, err := r.p.store.Load(ctx, masters.TypeWaveCalib, r.key, &cached); err == nil {
		r.wave = &cached
		return nil
	} else if !errors.Is(err, masters.ErrNotFound) {
		return err
	}

	p := r.p.par
	lamps := p.StringList("calibrations.wavelengths.lamps")
	lineList, err := LineList(lamps, r.p.inst.WaveMin, r.p.inst.WaveMax)
	if err != nil {
		return err
	}

	wp := WavePar{
		Sigdetect:    p.Float("calibrations.wavelengths.sigdetect"),
		RMSThreshold: p.Float("calibrations.wavelengths.rms_threshold"),
		MatchToler:   p.Float("calibrations.wavelengths.match_toler"),
		NFirst:       p.Int("calibrations.wavelengths.n_first"),
		NFinal:       p.Int("calibrations.wavelengths.n_final"),
	}
	lines := DetectLines(r.arc.Spectrum, wp.Sigdetect)
	r.p.logger.Debug().
		Int("detector", r.detNum).
		Int("lines", len(lines)).
		Strs("lamps", lamps).
		Msg("arc lines detected")

	sol, err := FitWavelengths(lines, lineList, r.p.inst.WaveMin, r.p.inst.WaveMax, len(r.arc.Spectrum), wp)
	if err != nil {
		return err
	}
	r.wave = sol

	arcFrames := r.p.file.FramesOfType(reduxfile.FrameArc)
	_, err = r.p.store.Save(ctx, masters.TypeWaveCalib, r.key, r.provenance(arcFrames), sol)
	return err
}

func (r *detectorRun) stepTilts(ctx context.Context) error {
	var cached TiltsMaster
	if _, err := r.p.store.Load(ctx, masters.TypeTilts, r.key, &cached); err == nil {
		r.tilts = &cached
		return nil
	} else if !errors.Is(err, masters.ErrNotFound) {
		return err
	}

	tilts, err := fitTilts(r.arc.Image, r.trace.Slits,
		r.p.par.Float("calibrations.tilts.tracethresh"),
		r.p.par.Int("calibrations.tilts.spat_order"),
		r.p.par.Float("calibrations.tilts.maxdev"))
	if err != nil {
		return err
	}
	r.tilts = tilts

	arcFrames := r.p.file.FramesOfType(reduxfile.FrameArc)
	_, err = r.p.store.Save(ctx, masters.TypeTilts, r.key, r.provenance(arcFrames), tilts)
	return err
}

func (r *detectorRun) stepFlatField(ctx context.Context) error {
	if r.p.par.String("calibrations.flatfield.method") == "skip" {
		r.flat = nil
		return nil
	}

	var cached FlatMaster
	if _, err := r.p.store.Load(ctx, masters.TypeFlat, r.key, &cached); err == nil {
		r.flat = &cached
		return nil
	} else if !errors.Is(err, masters.ErrNotFound) {
		return err
	}

	img, frames, err := r.combineGroup(ctx, reduxfile.FramePixelFlat, "calibrations.pixelflatframe")
	if err != nil {
		return err
	}
	subtract(img, r.bias.Image)

	flat := normalizeFlat(img, r.p.par.Bool("calibrations.flatfield.illumflatten"))
	r.flat = &FlatMaster{Image: flat}
	_, err = r.p.store.Save(ctx, masters.TypeFlat, r.key, r.provenance(frames), r.flat)
	return err
}

// subtract subtracts b from a in place. Images of mismatched size were
// rejected earlier by Combine.
func subtract(a, b *Image) {
	for ri := range a.Pixels {
		for ci := range a.Pixels[ri] {
			a.Pixels[ri][ci] -= b.Pixels[ri][ci]
		}
	}
}

// collapseSpatial sums the image along the spatial axis, producing a
// one-dimensional spectrum.
func collapseSpatial(img *Image) []float64 {
	spec := make([]float64, img.SpecPixels())
	for ri, row := range img.Pixels {
		var sum float64
		for _, v := range row {
			sum += v
		}
		spec[ri] = sum
	}
	return spec
}

// findSlits locates illuminated regions in the spatial profile of the trace
// frame. A slit is a contiguous run of columns whose flux exceeds the
// detection threshold; runs shorter than minLength pixels are dropped.
func findSlits(img *Image, sigdetect, minLength float64) []Slit {
	nspat := img.SpatPixels()
	profile := make([]float64, nspat)
	for _, row := range img.Pixels {
		for ci, v := range row {
			profile[ci] += v
		}
	}
	for ci := range profile {
		profile[ci] /= float64(img.SpecPixels())
	}

	bg := median(profile)
	sigma := mad(profile)
	if sigma == 0 {
		sigma = stddev(profile)
	}
	threshold := bg + sigdetect*sigma
	// A uniformly illuminated detector is one full slit.
	if sigma == 0 || threshold >= maxOf(profile) {
		threshold = bg / 2
	}

	var slits []Slit
	start := -1
	for ci := 0; ci <= nspat; ci++ {
		on := ci < nspat && profile[ci] > threshold
		switch {
		case on && start < 0:
			start = ci
		case !on && start >= 0:
			if float64(ci-start) >= math.Max(minLength, 2) {
				slits = append(slits, Slit{Left: float64(start), Right: float64(ci - 1)})
			}
			start = -1
		}
	}
	return slits
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

// fitTilts measures how arc lines shift in the spectral direction as a
// function of spatial position, and fits a polynomial in the normalized
// spatial coordinate. Lines whose centroid scatter exceeds maxdev pixels
// are rejected.
func fitTilts(arc *Image, slits []Slit, tracethresh float64, spatOrder int, maxdev float64) (*TiltsMaster, error) {
	spec := collapseSpatial(arc)
	lines := DetectLines(spec, tracethresh)
	if len(lines) == 0 {
		return nil, errors.New("no arc lines strong enough for tilt tracing")
	}

	nspat := arc.SpatPixels()
	var xs, ys []float64
	used := 0
	for _, ln := range lines {
		row := int(math.Round(ln.Pixel))
		if row < 1 || row >= arc.SpecPixels()-1 {
			continue
		}
		var lineXs, lineYs []float64
		for _, slit := range slits {
			for ci := int(slit.Left); ci <= int(slit.Right) && ci < nspat; ci++ {
				shift, ok := centroidShift(arc, row, ci)
				if !ok {
					continue
				}
				lineXs = append(lineXs, 2*float64(ci)/float64(nspat-1)-1)
				lineYs = append(lineYs, shift)
			}
		}
		if len(lineYs) < spatOrder+2 {
			continue
		}
		if dev := stddev(lineYs); dev > maxdev {
			continue
		}
		xs = append(xs, lineXs...)
		ys = append(ys, lineYs...)
		used++
	}
	if used == 0 {
		return nil, errors.New("all arc lines rejected during tilt tracing")
	}

	coeffs, err := polyfit(xs, ys, spatOrder)
	if err != nil {
		return nil, errors.Wrap(err, "tilt fit")
	}
	return &TiltsMaster{Coeffs: coeffs, NLines: used}, nil
}

// centroidShift measures the spectral centroid of a line at one spatial
// column, relative to the nominal row.
func centroidShift(arc *Image, row, col int) (float64, bool) {
	vm := arc.Pixels[row-1][col]
	v0 := arc.Pixels[row][col]
	vp := arc.Pixels[row+1][col]
	denom := vm - 2*v0 + vp
	if denom == 0 || v0 <= 0 {
		return 0, false
	}
	shift := 0.5 * (vm - vp) / denom
	if math.Abs(shift) > 1 {
		return 0, false
	}
	return shift, true
}

// normalizeFlat divides out the spectral response (row means) and, when
// illumflatten is set, the spatial illumination (column means), leaving
// pixel-to-pixel sensitivity variations around unity.
func normalizeFlat(img *Image, illum bool) *Image {
	nspec, nspat := img.SpecPixels(), img.SpatPixels()

	rowMeans := make([]float64, nspec)
	for ri, row := range img.Pixels {
		rowMeans[ri] = mean(row)
	}
	colMeans := make([]float64, nspat)
	if illum {
		for _, row := range img.Pixels {
			for ci, v := range row {
				colMeans[ci] += v
			}
		}
		overall := 0.0
		for ci := range colMeans {
			colMeans[ci] /= float64(nspec)
			overall += colMeans[ci]
		}
		overall /= float64(nspat)
		for ci := range colMeans {
			if overall != 0 {
				colMeans[ci] /= overall
			}
		}
	}

	out := &Image{Exptime: img.Exptime, Airmass: img.Airmass, Pixels: make([][]float64, nspec)}
	for ri := range img.Pixels {
		out.Pixels[ri] = make([]float64, nspat)
		for ci, v := range img.Pixels[ri] {
			norm := rowMeans[ri]
			if illum && colMeans[ci] != 0 {
				norm *= colMeans[ci]
			}
			if norm <= 0 {
				out.Pixels[ri][ci] = 1
				continue
			}
			out.Pixels[ri][ci] = v / norm
		}
	}
	return out
}
