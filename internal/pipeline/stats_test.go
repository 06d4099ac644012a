// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, median([]float64{1, 2, 3, 4}))
	assert.Equal(t, 0.0, median(nil))
}

func TestMAD(t *testing.T) {
	// Constant data has zero scatter even with one wild outlier.
	assert.Equal(t, 0.0, mad([]float64{2, 2, 2, 2, 2, 2, 1000}))
	assert.InDelta(t, 1.4826, mad([]float64{1, 2, 3, 4, 5}), 1e-9)
}

func TestPolyfitRecoversPolynomial(t *testing.T) {
	// y = 2 - 3x + 0.5x^2
	want := []float64{2, -3, 0.5}
	var xs, ys []float64
	for i := 0; i < 20; i++ {
		x := float64(i) * 0.7
		xs = append(xs, x)
		ys = append(ys, polyval(want, x))
	}

	got, err := polyfit(xs, ys, 2)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6)
	}
}

func TestPolyfitTooFewPoints(t *testing.T) {
	_, err := polyfit([]float64{1, 2}, []float64{1, 2}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs at least")
}

func TestPolyfitSingular(t *testing.T) {
	// Duplicate x values at order 2 make the normal equations singular.
	_, err := polyfit([]float64{1, 1, 1}, []float64{1, 2, 3}, 2)
	require.Error(t, err)
}

func TestPolyval(t *testing.T) {
	assert.Equal(t, 7.0, polyval([]float64{1, 2}, 3))
	assert.Equal(t, 0.0, polyval(nil, 10))
}
