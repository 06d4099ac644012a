// SPDX-License-Identifier: MIT

package pipeline

import (
	"math"

	"github.com/pkg/errors"
)

// ErrWaveFit is returned when no wavelength solution meets the configured
// RMS threshold. Callers match it with errors.Is.
var ErrWaveFit = errors.New("wavelength solution rejected")

// Line is a detected arc line.
type Line struct {
	Pixel     float64 `json:"pixel"`
	Amplitude float64 `json:"amplitude"`
}

// MatchedLine pairs a detected line with its identification in the list.
type MatchedLine struct {
	Pixel float64 `json:"pixel"`
	Wave  float64 `json:"wave"`
}

// WaveSolution is a fitted pixel-to-wavelength mapping for one detector.
type WaveSolution struct {
	// Coeffs map pixel to Angstrom, lowest order first.
	Coeffs []float64 `json:"coeffs"`
	// RMS is the fit residual in pixels.
	RMS    float64       `json:"rms"`
	NLines int           `json:"nlines"`
	Lines  []MatchedLine `json:"lines"`
}

// Wave evaluates the solution at a pixel position.
func (s *WaveSolution) Wave(pixel float64) float64 {
	return polyval(s.Coeffs, pixel)
}

// WavePar carries the calibration settings read from the parameter set.
type WavePar struct {
	Sigdetect    float64
	RMSThreshold float64
	MatchToler   float64
	NFirst       int
	NFinal       int
}

// DetectLines finds emission lines in an extracted arc spectrum: local
// maxima more than sigdetect sigma above the background, with sub-pixel
// centroids from a parabolic refinement.
func DetectLines(spec []float64, sigdetect float64) []Line {
	if len(spec) < 3 {
		return nil
	}
	bg := median(spec)
	sigma := mad(spec)
	if sigma == 0 {
		// A mostly empty spectrum has zero MAD; fall back to a clipped
		// estimate so the peaks themselves do not set the threshold.
		sigma = clippedSigma(spec)
	}
	threshold := bg + sigdetect*sigma

	var lines []Line
	for i := 1; i < len(spec)-1; i++ {
		v := spec[i]
		if v < threshold || v < spec[i-1] || v <= spec[i+1] {
			continue
		}
		// Parabola through the peak and its neighbors.
		denom := spec[i-1] - 2*v + spec[i+1]
		shift := 0.0
		if denom != 0 {
			shift = 0.5 * (spec[i-1] - spec[i+1]) / denom
		}
		if math.Abs(shift) > 1 {
			shift = 0
		}
		lines = append(lines, Line{Pixel: float64(i) + shift, Amplitude: v - bg})
	}
	return lines
}

// FitWavelengths identifies detected arc lines against a line list and fits
// a polynomial dispersion solution. Starting from a linear guess over the
// instrument's wavelength coverage, it alternates matching and fitting while
// raising the polynomial order from nFirst to nFinal, rejects outliers by
// sigma clipping, and finally enforces the RMS threshold.
func FitWavelengths(lines []Line, lineList []float64, waveMin, waveMax float64, npix int, p WavePar) (*WaveSolution, error) {
	if len(lines) == 0 {
		return nil, errors.New("no arc lines detected")
	}
	if npix < 2 {
		return nil, errors.Errorf("spectrum too short (%d pixels)", npix)
	}

	dispersion := (waveMax - waveMin) / float64(npix-1)
	coeffs := []float64{waveMin, dispersion}

	order := p.NFirst
	if order < 1 {
		order = 1
	}
	for {
		matches := matchLines(lines, lineList, coeffs, p.MatchToler*dispersion)
		if len(matches) < order+2 {
			return nil, errors.Wrapf(ErrWaveFit, "only %d lines matched at order %d", len(matches), order)
		}

		px := make([]float64, len(matches))
		wv := make([]float64, len(matches))
		for i, m := range matches {
			px[i] = m.Pixel
			wv[i] = m.Wave
		}
		fit, err := polyfit(px, wv, order)
		if err != nil {
			return nil, errors.Wrap(err, "wavelength fit")
		}
		coeffs = fit

		if order >= p.NFinal {
			matches = clipOutliers(matches, coeffs)
			if len(matches) < order+2 {
				return nil, errors.Wrapf(ErrWaveFit, "%d lines left after outlier rejection", len(matches))
			}
			px = px[:0]
			wv = wv[:0]
			for _, m := range matches {
				px = append(px, m.Pixel)
				wv = append(wv, m.Wave)
			}
			if coeffs, err = polyfit(px, wv, order); err != nil {
				return nil, errors.Wrap(err, "wavelength refit")
			}

			rms := rmsPixels(matches, coeffs, dispersion)
			if rms > p.RMSThreshold {
				return nil, errors.Wrapf(ErrWaveFit, "rms %.3f pixels exceeds threshold %.3f", rms, p.RMSThreshold)
			}
			return &WaveSolution{
				Coeffs: coeffs,
				RMS:    rms,
				NLines: len(matches),
				Lines:  matches,
			}, nil
		}
		order++
	}
}

// matchLines pairs each detected line with the nearest list line within the
// tolerance (in Angstrom), keeping each list line at most once.
func matchLines(lines []Line, lineList []float64, coeffs []float64, toler float64) []MatchedLine {
	used := make(map[int]bool, len(lineList))
	var matches []MatchedLine
	for _, ln := range lines {
		wave := polyval(coeffs, ln.Pixel)
		best, bestDist := -1, toler
		for i, w := range lineList {
			if used[i] {
				continue
			}
			d := math.Abs(w - wave)
			if d <= bestDist {
				best, bestDist = i, d
			}
		}
		if best >= 0 {
			used[best] = true
			matches = append(matches, MatchedLine{Pixel: ln.Pixel, Wave: lineList[best]})
		}
	}
	return matches
}

// clipOutliers drops matches whose residual exceeds 3 sigma of the residual
// distribution.
func clipOutliers(matches []MatchedLine, coeffs []float64) []MatchedLine {
	res := make([]float64, len(matches))
	for i, m := range matches {
		res[i] = m.Wave - polyval(coeffs, m.Pixel)
	}
	sigma := stddev(res)
	if sigma == 0 {
		return matches
	}
	m0 := mean(res)
	out := matches[:0]
	for i, m := range matches {
		if math.Abs(res[i]-m0) <= 3*sigma {
			out = append(out, m)
		}
	}
	return out
}

func rmsPixels(matches []MatchedLine, coeffs []float64, dispersion float64) float64 {
	var sum float64
	for _, m := range matches {
		r := (m.Wave - polyval(coeffs, m.Pixel)) / dispersion
		sum += r * r
	}
	return math.Sqrt(sum / float64(len(matches)))
}
