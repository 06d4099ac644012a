// SPDX-License-Identifier: MIT

// Package instrument holds the registry of supported spectrographs. Each
// instrument carries its detector properties and a sparse parameter override
// tree; merging the overrides onto the base defaults yields the baseline
// parameter set a user file is applied against.
package instrument

import (
	"fmt"

	"github.com/specdr/specdr/internal/par"
)

// Detector describes one detector of an instrument.
type Detector struct {
	Platescale    float64   `yaml:"platescale"`    // arcsec/pixel
	Gain          []float64 `yaml:"gain"`          // e-/ADU per amplifier
	ReadNoise     []float64 `yaml:"read_noise"`    // e- per amplifier
	Saturation    float64   `yaml:"saturation"`    // ADU
	Nonlinear     float64   `yaml:"nonlinear"`     // fraction of saturation
	NumAmplifiers int       `yaml:"num_amplifiers"`
	SpecPixels    int       `yaml:"spec_pixels"`
	SpatPixels    int       `yaml:"spat_pixels"`
}

// Instrument is a registered spectrograph.
type Instrument struct {
	Name      string         `yaml:"name"`
	Telescope string         `yaml:"telescope"`
	Camera    string         `yaml:"camera"`
	WaveMin   float64        `yaml:"wave_min"` // Angstroms
	WaveMax   float64        `yaml:"wave_max"`
	Detectors []Detector     `yaml:"detectors"`
	Defaults  map[string]any `yaml:"defaults"` // sparse parameter overrides
}

func (i *Instrument) validate() error {
	if i.Name == "" {
		return fmt.Errorf("instrument definition has no name")
	}
	if i.Telescope == "" {
		return fmt.Errorf("instrument %s: telescope is required", i.Name)
	}
	if len(i.Detectors) == 0 {
		return fmt.Errorf("instrument %s: at least one detector is required", i.Name)
	}
	for n, d := range i.Detectors {
		if d.Platescale <= 0 {
			return fmt.Errorf("instrument %s: detector %d: platescale must be positive", i.Name, n+1)
		}
		if d.SpecPixels <= 0 || d.SpatPixels <= 0 {
			return fmt.Errorf("instrument %s: detector %d: pixel dimensions must be positive", i.Name, n+1)
		}
		if len(d.Gain) != d.NumAmplifiers || len(d.ReadNoise) != d.NumAmplifiers {
			return fmt.Errorf("instrument %s: detector %d: gain/read_noise must list one value per amplifier", i.Name, n+1)
		}
	}
	if i.WaveMax <= i.WaveMin {
		return fmt.Errorf("instrument %s: wavelength coverage is empty", i.Name)
	}
	return nil
}

// ParSet returns the full parameter hierarchy with this instrument's
// defaults merged on top of the base defaults. The spectrograph name is
// pinned so the returned set validates on its own.
func (i *Instrument) ParSet() (*par.Set, error) {
	set := par.ReduxSet()
	if err := set.Set("rdx.spectrograph", i.Name); err != nil {
		return nil, err
	}
	if len(i.Defaults) == 0 {
		return set, nil
	}
	tree, err := treeFromMap(i.Defaults)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: defaults: %w", i.Name, err)
	}
	if err := set.Apply(tree); err != nil {
		return nil, fmt.Errorf("instrument %s: defaults: %w", i.Name, err)
	}
	return set, nil
}

// treeFromMap converts the decoded YAML override map into a parameter tree.
func treeFromMap(m map[string]any) (*par.Tree, error) {
	t := par.NewTree()
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			sub, err := treeFromMap(val)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			t.Put(k, sub)
		case []any:
			list := make([]string, len(val))
			for n, e := range val {
				list[n] = fmt.Sprintf("%v", e)
			}
			t.Put(k, list)
		case string, bool, int, float64:
			t.Put(k, val)
		default:
			return nil, fmt.Errorf("%s: unsupported value type %T", k, v)
		}
	}
	return t, nil
}
