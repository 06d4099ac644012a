// SPDX-License-Identifier: MIT

package pipeline

import (
	"sort"

	"github.com/pkg/errors"
)

// lampLines maps lamp names to their strongest line wavelengths in Angstrom.
var lampLines = map[string][]float64{
	"HeI":  {3888.65, 4026.19, 4471.48, 4713.15, 4921.93, 5015.68, 5875.62, 6678.15, 7065.19},
	"HgI":  {3650.15, 4046.56, 4358.33, 5460.74, 5769.60, 5790.66},
	"CdI":  {3610.51, 4678.15, 4799.91, 5085.82, 6438.47},
	"NeI":  {5852.49, 5944.83, 6143.06, 6402.25, 6929.47, 7032.41, 7245.17},
	"ArI":  {6965.43, 7067.22, 7383.98, 7503.87, 7635.11, 7723.76, 8115.31},
	"KrI":  {5570.29, 5870.92, 7601.54, 7694.54, 8059.50},
	"XeI":  {7119.60, 8231.63, 8280.12, 8819.41},
	"ZnI":  {4680.14, 4722.15, 4810.53, 6362.34},
	"ThAr": {4158.59, 4609.57, 5187.75, 6457.28},
}

// LineList merges the line lists of the given lamps, restricted to the
// instrument's wavelength coverage, sorted ascending.
func LineList(lamps []string, waveMin, waveMax float64) ([]float64, error) {
	if len(lamps) == 0 {
		return nil, errors.New("no lamps configured for wavelength calibration")
	}
	var out []float64
	for _, lamp := range lamps {
		lines, ok := lampLines[lamp]
		if !ok {
			return nil, errors.Errorf("no line list for lamp %q", lamp)
		}
		for _, w := range lines {
			if w >= waveMin && w <= waveMax {
				out = append(out, w)
			}
		}
	}
	if len(out) == 0 {
		return nil, errors.Errorf("no lamp lines fall in wavelength range %.0f-%.0f", waveMin, waveMax)
	}
	sort.Float64s(out)
	return out, nil
}
