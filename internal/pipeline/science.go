// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"

	"github.com/specdr/specdr/internal/reduxfile"
)

// Spec1D is an extracted one-dimensional spectrum, the end product of the
// reduction.
type Spec1D struct {
	Frame    string `json:"frame"`
	Target   string `json:"target,omitempty"`
	Setup    string `json:"setup"`
	Detector int    `json:"detector"`

	Wave []float64 `json:"wave"`
	Flux []float64 `json:"flux"`
	Sky  []float64 `json:"sky"`

	// FlexureShift is the applied spectral flexure correction in pixels.
	FlexureShift float64 `json:"flexure_shift"`
}

func (r *detectorRun) stepScience(ctx context.Context) error {
	frames := r.p.file.FramesOfType(reduxfile.FrameScience)
	frames = append(frames, r.p.file.FramesOfType(reduxfile.FrameStandard)...)
	if len(frames) == 0 {
		return errors.New("no science frames to reduce")
	}

	for _, frame := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := r.reduceFrame(ctx, frame)
		if err != nil {
			return errors.Wrapf(err, "reduce %s", frame.Path)
		}
		r.spec1d = append(r.spec1d, path)
	}
	return nil
}

func (r *detectorRun) reduceFrame(ctx context.Context, frame reduxfile.Frame) (string, error) {
	img, err := r.loadFrame(ctx, frame.Path)
	if err != nil {
		return "", err
	}
	subtract(img, r.bias.Image)
	if r.flat != nil {
		divide(img, r.flat.Image)
	}

	p := r.p.par
	slit := widestSlit(r.trace.Slits)
	lo, hi := trimSlit(slit, p.IntList("reduce.trim_edge"), img.SpatPixels())
	if hi-lo < 3 {
		return "", errors.Errorf("slit too narrow after edge trimming (%d columns)", hi-lo+1)
	}

	det := r.p.inst.Detectors[r.detNum-1]
	radius := p.Float("reduce.extraction.boxcar_radius") / det.Platescale
	if radius < 1 {
		radius = 1
	}

	objPos := objectPosition(img, lo, hi)
	sky := skySpectrum(img, lo, hi, objPos, radius)
	if !p.Bool("reduce.skysub.global_sky_std") && frame.Type == reduxfile.FrameStandard {
		for i := range sky {
			sky[i] = 0
		}
	}

	var flux []float64
	switch p.String("reduce.extraction.method") {
	case "boxcar":
		flux = extractBoxcar(img, sky, objPos, radius)
	default: // optimal
		flux = extractOptimal(img, sky, objPos, radius, p.Float("reduce.extraction.sn_gauss"))
	}

	shift := 0.0
	if method := p.String("flexure.method"); method != "skip" {
		shift, err = r.flexureShift(sky)
		if err != nil {
			return "", err
		}
	}

	spec := &Spec1D{
		Frame:        frame.Path,
		Target:       frame.Target,
		Setup:        r.p.file.Setup,
		Detector:     r.detNum,
		Flux:         flux,
		Sky:          sky,
		FlexureShift: shift,
	}
	spec.Wave = make([]float64, len(flux))
	tiltShift := 0.0
	if r.tilts != nil && img.SpatPixels() > 1 {
		x := 2*objPos/float64(img.SpatPixels()-1) - 1
		tiltShift = polyval(r.tilts.Coeffs, x)
	}
	for row := range spec.Wave {
		spec.Wave[row] = r.wave.Wave(float64(row) - tiltShift - shift)
	}

	return r.writeSpec1D(spec)
}

// flexureShift cross-correlates the observed sky spectrum against the
// configured reference sky to measure spectral flexure in pixels.
func (r *detectorRun) flexureShift(sky []float64) (float64, error) {
	ref := r.p.par.String("flexure.spectrum")
	if ref == "" {
		r.p.logger.Warn().
			Int("detector", r.detNum).
			Msg("flexure correction requested but no reference spectrum configured, skipping")
		return 0, nil
	}

	// #nosec G304 -- the reference spectrum path comes from the parameter set
	data, err := os.ReadFile(ref)
	if err != nil {
		return 0, errors.Wrapf(err, "load flexure reference %s", ref)
	}
	var refSky []float64
	if err := json.Unmarshal(data, &refSky); err != nil {
		return 0, errors.Wrapf(err, "parse flexure reference %s", ref)
	}

	maxShift := r.p.par.Int("flexure.maxshift")
	return crossCorrelate(sky, refSky, maxShift), nil
}

// crossCorrelate returns the integer lag in [-maxLag, maxLag] that maximizes
// the correlation of a against b.
func crossCorrelate(a, b []float64, maxLag int) float64 {
	bestLag, bestCorr := 0, math.Inf(-1)
	for lag := -maxLag; lag <= maxLag; lag++ {
		var corr float64
		n := 0
		for i := range a {
			j := i + lag
			if j < 0 || j >= len(b) {
				continue
			}
			corr += a[i] * b[j]
			n++
		}
		if n == 0 {
			continue
		}
		corr /= float64(n)
		if corr > bestCorr {
			bestCorr, bestLag = corr, lag
		}
	}
	return float64(bestLag)
}

func (r *detectorRun) writeSpec1D(spec *Spec1D) (string, error) {
	if err := os.MkdirAll(r.p.sciDir, 0o750); err != nil {
		return "", errors.Wrap(err, "create science dir")
	}
	base := strings.TrimSuffix(filepath.Base(spec.Frame), filepath.Ext(spec.Frame))
	name := fmt.Sprintf("spec1d_%s_%s_det%02d.json", base, spec.Setup, spec.Detector)
	path := filepath.Join(r.p.sciDir, name)

	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal spec1d")
	}
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}

	r.p.logger.Info().
		Str("event", "science.extracted").
		Str("frame", spec.Frame).
		Str("target", spec.Target).
		Int("detector", spec.Detector).
		Str("path", path).
		Msg("spectrum extracted")
	return path, nil
}

// divide divides a by b in place, ignoring non-positive flat values.
func divide(a, b *Image) {
	for ri := range a.Pixels {
		for ci := range a.Pixels[ri] {
			if f := b.Pixels[ri][ci]; f > 0 {
				a.Pixels[ri][ci] /= f
			}
		}
	}
}

func widestSlit(slits []Slit) Slit {
	best := slits[0]
	for _, s := range slits[1:] {
		if s.Right-s.Left > best.Right-best.Left {
			best = s
		}
	}
	return best
}

func trimSlit(slit Slit, trim []int, nspat int) (int, int) {
	lo, hi := int(slit.Left), int(slit.Right)
	if len(trim) == 2 {
		lo += trim[0]
		hi -= trim[1]
	}
	if lo < 0 {
		lo = 0
	}
	if hi >= nspat {
		hi = nspat - 1
	}
	return lo, hi
}

// objectPosition finds the spatial centroid of the brightest object within
// the slit.
func objectPosition(img *Image, lo, hi int) float64 {
	profile := make([]float64, hi-lo+1)
	for _, row := range img.Pixels {
		for i := range profile {
			profile[i] += row[lo+i]
		}
	}
	bg := median(profile)

	peak, peakVal := 0, math.Inf(-1)
	for i, v := range profile {
		if v > peakVal {
			peak, peakVal = i, v
		}
	}
	// Flux-weighted centroid over the peak neighborhood.
	var sum, wsum float64
	for i := peak - 2; i <= peak+2; i++ {
		if i < 0 || i >= len(profile) {
			continue
		}
		w := profile[i] - bg
		if w <= 0 {
			continue
		}
		sum += w * float64(lo+i)
		wsum += w
	}
	if wsum == 0 {
		return float64(lo + peak)
	}
	return sum / wsum
}

// skySpectrum estimates the sky level per spectral row as the median of the
// in-slit pixels away from the object, scaled to the extraction width.
func skySpectrum(img *Image, lo, hi int, objPos, radius float64) []float64 {
	sky := make([]float64, img.SpecPixels())
	var vals []float64
	for ri, row := range img.Pixels {
		vals = vals[:0]
		for ci := lo; ci <= hi; ci++ {
			if math.Abs(float64(ci)-objPos) <= 2*radius {
				continue
			}
			vals = append(vals, row[ci])
		}
		if len(vals) == 0 {
			// No sky pixels; fall back to the row median.
			vals = append(vals, median(row[lo:hi+1]))
		}
		sky[ri] = median(vals)
	}
	return sky
}

// extractBoxcar sums the sky-subtracted flux in a fixed window around the
// object.
func extractBoxcar(img *Image, sky []float64, objPos, radius float64) []float64 {
	flux := make([]float64, img.SpecPixels())
	lo := int(math.Floor(objPos - radius))
	hi := int(math.Ceil(objPos + radius))
	for ri, row := range img.Pixels {
		var sum float64
		for ci := lo; ci <= hi; ci++ {
			if ci < 0 || ci >= len(row) {
				continue
			}
			sum += row[ci] - sky[ri]
		}
		flux[ri] = sum
	}
	return flux
}

// extractOptimal extracts with a Gaussian spatial profile, which suppresses
// noise in the wings relative to a plain boxcar.
func extractOptimal(img *Image, sky []float64, objPos, radius, snGauss float64) []float64 {
	sigma := radius / 2
	if sigma <= 0 {
		sigma = 1
	}
	window := radius * math.Max(snGauss/2, 1)

	flux := make([]float64, img.SpecPixels())
	for ri, row := range img.Pixels {
		var num, den float64
		for ci := range row {
			d := float64(ci) - objPos
			if math.Abs(d) > window {
				continue
			}
			p := math.Exp(-0.5 * d * d / (sigma * sigma))
			num += p * (row[ci] - sky[ri])
			den += p * p
		}
		if den > 0 {
			// num/den estimates the profile amplitude; scale to total flux
			// so boxcar and optimal agree for a matched Gaussian source.
			flux[ri] = num / den * sigma * math.Sqrt(2*math.Pi)
		}
	}
	return flux
}
