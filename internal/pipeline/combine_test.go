// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatImage(value, exptime float64) *Image {
	return &Image{
		Exptime: exptime,
		Pixels:  [][]float64{{value, value}, {value, value}},
	}
}

func TestCombineMedian(t *testing.T) {
	out, err := Combine([]*Image{flatImage(10, 1), flatImage(20, 1), flatImage(100, 1)},
		CombineOptions{Method: "median"})
	require.NoError(t, err)
	assert.Equal(t, 20.0, out.Pixels[0][0])
}

func TestCombineWeightMean(t *testing.T) {
	// A frame with triple the exposure carries triple the weight.
	out, err := Combine([]*Image{flatImage(10, 1), flatImage(20, 3)},
		CombineOptions{Method: "weightmean"})
	require.NoError(t, err)
	assert.InDelta(t, 17.5, out.Pixels[0][0], 1e-9)
	assert.InDelta(t, 2.0, out.Exptime, 1e-9)
}

func TestCombineSaturatedReject(t *testing.T) {
	imgs := []*Image{flatImage(100, 1), flatImage(100, 1), flatImage(65535, 1)}
	out, err := Combine(imgs, CombineOptions{
		Method: "mean", SatPix: "reject", Saturation: 65535, Nonlinear: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, out.Pixels[0][0])
}

func TestCombineSaturatedForce(t *testing.T) {
	imgs := []*Image{flatImage(65000, 1), flatImage(65000, 1)}
	out, err := Combine(imgs, CombineOptions{
		Method: "mean", SatPix: "force", Saturation: 60000, Nonlinear: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 60000.0, out.Pixels[0][0])
}

func TestCombineAllSaturated(t *testing.T) {
	imgs := []*Image{flatImage(65535, 1), flatImage(65535, 1)}
	out, err := Combine(imgs, CombineOptions{
		Method: "mean", SatPix: "reject", Saturation: 65535, Nonlinear: 0.9,
	})
	require.NoError(t, err)
	assert.Equal(t, 65535.0, out.Pixels[0][0])
}

func TestCombineNLoHi(t *testing.T) {
	imgs := []*Image{flatImage(1, 1), flatImage(10, 1), flatImage(11, 1), flatImage(12, 1), flatImage(1000, 1)}
	out, err := Combine(imgs, CombineOptions{Method: "mean", NLoHi: [2]int{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, 11.0, out.Pixels[0][0])
}

func TestCombineSizeMismatch(t *testing.T) {
	small := &Image{Exptime: 1, Pixels: [][]float64{{1}}}
	_, err := Combine([]*Image{flatImage(1, 1), small}, CombineOptions{Method: "mean"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 2x2")
}

func TestCombineEmpty(t *testing.T) {
	_, err := Combine(nil, CombineOptions{Method: "mean"})
	require.Error(t, err)
}
