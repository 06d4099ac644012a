// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"encoding/json"
	"os"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
)

// Image is a raw detector image: rows along the spectral direction, columns
// along the spatial direction.
type Image struct {
	Exptime float64     `json:"exptime"`
	Airmass float64     `json:"airmass"`
	Pixels  [][]float64 `json:"pixels"`
}

// SpecPixels returns the length of the spectral axis.
func (img *Image) SpecPixels() int { return len(img.Pixels) }

// SpatPixels returns the length of the spatial axis.
func (img *Image) SpatPixels() int {
	if len(img.Pixels) == 0 {
		return 0
	}
	return len(img.Pixels[0])
}

// Loader reads raw frames for a given detector. Implementations hide the
// on-disk container from the reduction steps.
type Loader interface {
	Load(ctx context.Context, path string, detector int) (*Image, error)
}

// FileLoader reads raw frames stored as JSON image containers, one file per
// exposure. Multi-detector instruments store one image per detector under
// the "detectors" key.
type FileLoader struct{}

type frameContainer struct {
	Exptime   float64       `json:"exptime"`
	Airmass   float64       `json:"airmass"`
	Pixels    [][]float64   `json:"pixels,omitempty"`
	Detectors [][][]float64 `json:"detectors,omitempty"`
}

// Load reads the frame at path and returns the image for the 1-based
// detector number.
func (FileLoader) Load(_ context.Context, path string, detector int) (*Image, error) {
	// #nosec G304 -- frame paths come from the reduction file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load frame %s", path)
	}
	var c frameContainer
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(err, "parse frame %s", path)
	}

	img := &Image{Exptime: c.Exptime, Airmass: c.Airmass}
	switch {
	case len(c.Detectors) > 0:
		if detector < 1 || detector > len(c.Detectors) {
			return nil, errors.Errorf("frame %s has %d detectors, want detector %d", path, len(c.Detectors), detector)
		}
		img.Pixels = c.Detectors[detector-1]
	case len(c.Pixels) > 0:
		if detector != 1 {
			return nil, errors.Errorf("frame %s has a single detector, want detector %d", path, detector)
		}
		img.Pixels = c.Pixels
	default:
		return nil, errors.Errorf("frame %s contains no pixel data", path)
	}
	if len(img.Pixels) == 0 || len(img.Pixels[0]) == 0 {
		return nil, errors.Errorf("frame %s has an empty image", path)
	}
	width := len(img.Pixels[0])
	for i, row := range img.Pixels {
		if len(row) != width {
			return nil, errors.Errorf("frame %s: row %d has %d columns, expected %d", path, i, len(row), width)
		}
	}
	return img, nil
}

// WriteFrame writes a single-detector frame container, mainly for tests and
// synthetic data generation.
func WriteFrame(path string, img *Image) error {
	data, err := json.Marshal(frameContainer{
		Exptime: img.Exptime,
		Airmass: img.Airmass,
		Pixels:  img.Pixels,
	})
	if err != nil {
		return errors.Wrap(err, "marshal frame")
	}
	return errors.Wrapf(renameio.WriteFile(path, data, 0o640), "write frame %s", path)
}
