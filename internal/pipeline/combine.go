// SPDX-License-Identifier: MIT

package pipeline

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/par"
)

// CombineOptions controls how a stack of frames is collapsed into one.
type CombineOptions struct {
	// Method is "weightmean" (exposure-time weighted), "median", or "mean".
	Method string
	// SatPix handles saturated pixels: "reject" drops them from the stack,
	// "force" clamps them to the saturation level, "nothing" keeps them.
	SatPix string
	// SigClip rejects stack values more than this many sigma from the
	// stack median. Zero disables clipping.
	SigClip float64
	// NLoHi drops the lowest/highest values from each pixel stack.
	NLoHi [2]int

	Saturation float64
	Nonlinear  float64
}

// combineOptionsFrom reads the combine settings of one frame group, e.g.
// "calibrations.biasframe".
func combineOptionsFrom(p *par.Set, group string, det instrument.Detector) CombineOptions {
	opts := CombineOptions{
		Method:     p.String(group + ".combine"),
		SatPix:     p.String(group + ".satpix"),
		SigClip:    p.Float(group + ".sigclip"),
		Saturation: det.Saturation,
		Nonlinear:  det.Nonlinear,
	}
	if lohi := p.IntList(group + ".n_lohi"); len(lohi) == 2 {
		opts.NLoHi = [2]int{lohi[0], lohi[1]}
	}
	return opts
}

// Combine collapses a stack of equally sized images into one.
func Combine(images []*Image, opts CombineOptions) (*Image, error) {
	if len(images) == 0 {
		return nil, errors.New("combine: no images")
	}
	nspec, nspat := images[0].SpecPixels(), images[0].SpatPixels()
	for i, img := range images[1:] {
		if img.SpecPixels() != nspec || img.SpatPixels() != nspat {
			return nil, errors.Errorf("combine: image %d is %dx%d, want %dx%d",
				i+1, img.SpecPixels(), img.SpatPixels(), nspec, nspat)
		}
	}

	satLevel := opts.Saturation * opts.Nonlinear
	out := &Image{
		Exptime: meanExptime(images),
		Airmass: images[0].Airmass,
		Pixels:  make([][]float64, nspec),
	}

	values := make([]float64, 0, len(images))
	weights := make([]float64, 0, len(images))
	for r := 0; r < nspec; r++ {
		out.Pixels[r] = make([]float64, nspat)
		for c := 0; c < nspat; c++ {
			values = values[:0]
			weights = weights[:0]
			for _, img := range images {
				v := img.Pixels[r][c]
				if satLevel > 0 && v >= satLevel {
					switch opts.SatPix {
					case "reject":
						continue
					case "force":
						v = opts.Saturation
					}
				}
				values = append(values, v)
				weights = append(weights, img.Exptime)
			}
			if len(values) == 0 {
				// Every frame saturated here; report the saturation level.
				out.Pixels[r][c] = opts.Saturation
				continue
			}
			values, weights = rejectLoHi(values, weights, opts.NLoHi)
			values, weights = sigClip(values, weights, opts.SigClip)
			out.Pixels[r][c] = collapse(values, weights, opts.Method)
		}
	}
	return out, nil
}

func meanExptime(images []*Image) float64 {
	var sum float64
	for _, img := range images {
		sum += img.Exptime
	}
	return sum / float64(len(images))
}

func rejectLoHi(values, weights []float64, lohi [2]int) ([]float64, []float64) {
	lo, hi := lohi[0], lohi[1]
	if lo+hi == 0 || lo+hi >= len(values) {
		return values, weights
	}
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	keep := idx[lo : len(idx)-hi]
	outV := make([]float64, 0, len(keep))
	outW := make([]float64, 0, len(keep))
	for _, i := range keep {
		outV = append(outV, values[i])
		outW = append(outW, weights[i])
	}
	return outV, outW
}

func sigClip(values, weights []float64, nsigma float64) ([]float64, []float64) {
	if nsigma <= 0 || len(values) < 3 {
		return values, weights
	}
	m := median(values)
	s := stddev(values)
	if s == 0 {
		return values, weights
	}
	outV := values[:0]
	outW := weights[:0]
	for i, v := range values {
		if v >= m-nsigma*s && v <= m+nsigma*s {
			outV = append(outV, v)
			outW = append(outW, weights[i])
		}
	}
	if len(outV) == 0 {
		return values, weights
	}
	return outV, outW
}

func collapse(values, weights []float64, method string) float64 {
	switch method {
	case "median":
		return median(values)
	case "mean":
		return mean(values)
	default: // weightmean
		var sum, wsum float64
		for i, v := range values {
			w := weights[i]
			if w <= 0 {
				w = 1
			}
			sum += v * w
			wsum += w
		}
		return sum / wsum
	}
}
