// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// synthSpectrum builds an arc spectrum with Gaussian lines at the pixel
// positions implied by a linear dispersion over [waveMin, waveMax].
func synthSpectrum(npix int, waveMin, waveMax float64, waves []float64) []float64 {
	spec := make([]float64, npix)
	disp := (waveMax - waveMin) / float64(npix-1)
	for i := range spec {
		spec[i] = 100 // flat background
	}
	for _, w := range waves {
		center := (w - waveMin) / disp
		for i := range spec {
			d := float64(i) - center
			spec[i] += 5000 * math.Exp(-0.5*d*d/(1.2*1.2))
		}
	}
	return spec
}

func TestDetectLines(t *testing.T) {
	waves := []float64{4200, 4800, 5400, 6000}
	spec := synthSpectrum(512, 4000, 7000, waves)

	lines := DetectLines(spec, 5.0)
	require.Len(t, lines, len(waves))

	disp := 3000.0 / 511.0
	for i, w := range waves {
		assert.InDelta(t, (w-4000)/disp, lines[i].Pixel, 0.3)
		assert.Greater(t, lines[i].Amplitude, 1000.0)
	}
}

func TestDetectLinesNothingAboveThreshold(t *testing.T) {
	spec := make([]float64, 100)
	for i := range spec {
		spec[i] = 50 + float64(i%3)
	}
	assert.Empty(t, DetectLines(spec, 50))
}

func TestFitWavelengths(t *testing.T) {
	list, err := LineList([]string{"HgI", "HeI"}, 4000, 7000)
	require.NoError(t, err)

	spec := synthSpectrum(1024, 4000, 7000, list)
	lines := DetectLines(spec, 5.0)
	require.GreaterOrEqual(t, len(lines), 8)

	sol, err := FitWavelengths(lines, list, 4000, 7000, len(spec), WavePar{
		Sigdetect:    5.0,
		RMSThreshold: 0.5,
		MatchToler:   3.0,
		NFirst:       2,
		NFinal:       4,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, sol.NLines, 8)
	assert.Less(t, sol.RMS, 0.5)

	// The recovered solution reproduces the synthetic dispersion.
	disp := 3000.0 / 1023.0
	for _, w := range []float64{4358.33, 5460.74, 5875.62} {
		pixel := (w - 4000) / disp
		assert.InDelta(t, w, sol.Wave(pixel), 2.0)
	}
}

func TestFitWavelengthsRMSGate(t *testing.T) {
	list, err := LineList([]string{"HgI", "HeI"}, 4000, 7000)
	require.NoError(t, err)
	spec := synthSpectrum(1024, 4000, 7000, list)
	lines := DetectLines(spec, 5.0)

	// Perturb the detected positions so no solution can meet an extreme
	// threshold.
	for i := range lines {
		if i%2 == 0 {
			lines[i].Pixel += 1.5
		} else {
			lines[i].Pixel -= 1.5
		}
	}
	_, err = FitWavelengths(lines, list, 4000, 7000, len(spec), WavePar{
		RMSThreshold: 0.001,
		MatchToler:   3.0,
		NFirst:       2,
		NFinal:       4,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWaveFit), "got %v", err)
}

func TestFitWavelengthsNoLines(t *testing.T) {
	_, err := FitWavelengths(nil, []float64{5000}, 4000, 7000, 512, WavePar{})
	require.Error(t, err)
}

func TestLineList(t *testing.T) {
	list, err := LineList([]string{"HgI"}, 4000, 6000)
	require.NoError(t, err)
	assert.Equal(t, []float64{4046.56, 4358.33, 5460.74, 5769.60, 5790.66}, list)

	_, err = LineList([]string{"FeAr"}, 4000, 6000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no line list for lamp "FeAr"`)

	_, err = LineList([]string{"HgI"}, 9000, 9500)
	require.Error(t, err)

	_, err = LineList(nil, 4000, 6000)
	require.Error(t, err)
}
