// SPDX-License-Identifier: MIT

package pipeline

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// mad returns the median absolute deviation scaled to the Gaussian sigma
// equivalent (1.4826 * MAD).
func mad(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - m)
	}
	return 1.4826 * median(dev)
}

// clippedSigma estimates the background scatter by iteratively rejecting
// values beyond 3 sigma, so isolated peaks do not inflate the estimate.
func clippedSigma(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	for iter := 0; iter < 5; iter++ {
		m := mean(s)
		sd := stddev(s)
		if sd == 0 {
			return 0
		}
		kept := s[:0]
		for _, x := range s {
			if math.Abs(x-m) <= 3*sd {
				kept = append(kept, x)
			}
		}
		if len(kept) == len(s) || len(kept) < 3 {
			break
		}
		s = kept
	}
	return stddev(s)
}

// polyfit fits a polynomial of the given order to (x, y) by least squares.
// Coefficients are returned lowest order first.
func polyfit(x, y []float64, order int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, errors.Errorf("polyfit: %d x values but %d y values", len(x), len(y))
	}
	n := order + 1
	if len(x) < n {
		return nil, errors.Errorf("polyfit: order %d needs at least %d points, have %d", order, n, len(x))
	}

	// Normal equations A^T A c = A^T y with A the Vandermonde matrix.
	ata := make([][]float64, n)
	aty := make([]float64, n)
	for i := range ata {
		ata[i] = make([]float64, n)
	}
	for k := range x {
		powers := make([]float64, n)
		p := 1.0
		for i := 0; i < n; i++ {
			powers[i] = p
			p *= x[k]
		}
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				ata[i][j] += powers[i] * powers[j]
			}
			aty[i] += powers[i] * y[k]
		}
	}

	coeffs, err := solve(ata, aty)
	if err != nil {
		return nil, errors.Wrap(err, "polyfit")
	}
	return coeffs, nil
}

// solve solves the linear system m*x = b by Gaussian elimination with
// partial pivoting. m and b are modified in place.
func solve(m [][]float64, b []float64) ([]float64, error) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, errors.New("singular matrix")
		}
		m[col], m[pivot] = m[pivot], m[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < n; row++ {
			f := m[row][col] / m[col][col]
			for k := col; k < n; k++ {
				m[row][k] -= f * m[col][k]
			}
			b[row] -= f * b[col]
		}
	}

	x := make([]float64, n)
	for row := n - 1; row >= 0; row-- {
		sum := b[row]
		for k := row + 1; k < n; k++ {
			sum -= m[row][k] * x[k]
		}
		x[row] = sum / m[row][row]
	}
	return x, nil
}

// polyval evaluates a polynomial (coefficients lowest order first) at x.
func polyval(coeffs []float64, x float64) float64 {
	var y float64
	for i := len(coeffs) - 1; i >= 0; i-- {
		y = y*x + coeffs[i]
	}
	return y
}
