// SPDX-License-Identifier: MIT

package reduxfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"bias_0001.json":  `{"exptime": 0, "airmass": 1.0}`,
		"arc_0001.json":   `{"exptime": 30, "airmass": 1.0}`,
		"flat_0001.json":  `{"exptime": 15, "airmass": 1.0}`,
		"trace_0001.json": `{"exptime": 15, "airmass": 1.0}`,
		"j1217.json":      `{"exptime": 1200, "airmass": 1.18, "target": "J1217+3905"}`,
		"std_feige.json":  `{"exptime": 120, "airmass": 1.05, "target": "Feige 34"}`,
		"README.md":       "not a frame",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	f, err := Scan(dir, ScanOptions{Spectrograph: "shane_kast_blue"})
	require.NoError(t, err)

	assert.Equal(t, "A", f.Setup)
	require.Len(t, f.Frames, 6)
	assert.Len(t, f.FramesOfType(FrameBias), 1)
	assert.Len(t, f.FramesOfType(FrameArc), 1)
	assert.Len(t, f.FramesOfType(FramePixelFlat), 1)
	assert.Len(t, f.FramesOfType(FrameTrace), 1)
	assert.Len(t, f.FramesOfType(FrameStandard), 1)

	sci := f.FramesOfType(FrameScience)
	require.Len(t, sci, 1)
	assert.Equal(t, 1200.0, sci[0].Exptime)
	assert.Equal(t, "J1217+3905", sci[0].Target)

	require.NoError(t, f.Validate())

	// The generated skeleton round-trips through the parser.
	var b strings.Builder
	require.NoError(t, f.Write(&b))
	again, err := Parse([]byte(b.String()))
	require.NoError(t, err)
	inst, err := again.Spectrograph()
	require.NoError(t, err)
	assert.Equal(t, "shane_kast_blue", inst.Name)
}

func TestScanRequiresSpectrograph(t *testing.T) {
	_, err := Scan(t.TempDir(), ScanOptions{})
	assert.True(t, errors.Is(err, ErrNoSpectrograph))
}

func TestScanEmptyDir(t *testing.T) {
	_, err := Scan(t.TempDir(), ScanOptions{Spectrograph: "shane_kast_blue"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no raw frames")
}

func TestClassifyName(t *testing.T) {
	cases := map[string]FrameType{
		"Bias_0042.fits":   FrameBias,
		"zero001.json":     FrameBias,
		"comp_hg.fits":     FrameArc,
		"domeflat_01.json": FramePixelFlat,
		"trace_b.json":     FrameTrace,
		"std_bd284.json":   FrameStandard,
		"ngc2403.json":     FrameScience,
	}
	for name, want := range cases {
		assert.Equal(t, want, classifyName(name), name)
	}
}
