// SPDX-License-Identifier: MIT

package reduxfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# Reduction of 2026-01-12 Kast blue data.
[rdx]
    spectrograph = shane_kast_blue
[calibrations]
    [[wavelengths]]
        rms_threshold = 0.25

setup read
Setup A
setup end

data read
path | frametype | exptime | airmass | target
raw/b0001.fits | bias      | 0    | 1.0 |
raw/b0002.fits | bias      | 0    | 1.0 |
raw/b0010.fits | arc       | 30   | 1.0 |
raw/b0020.fits | pixelflat | 15   | 1.0 |
raw/b0021.fits | trace     | 15   | 1.0 |
raw/b0042.fits | science   | 1200 | 1.18 | J1217+3905
data end
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "A", f.Setup)
	require.Len(t, f.Frames, 6)
	assert.Equal(t, Frame{Path: "raw/b0042.fits", Type: FrameScience, Exptime: 1200, Airmass: 1.18, Target: "J1217+3905"}, f.Frames[5])
	assert.Len(t, f.FramesOfType(FrameBias), 2)
	assert.Empty(t, f.FramesOfType(FrameStandard))
}

func TestValidateChecksFramePaths(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	// The sample's raw/ frames do not exist here.
	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `frame "raw/b0001.fits"`)

	// With every frame on disk the same file validates.
	dir := t.TempDir()
	for i := range f.Frames {
		path := filepath.Join(dir, filepath.Base(f.Frames[i].Path))
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
		f.Frames[i].Path = path
	}
	require.NoError(t, f.Validate())

	// A directory in the frame column is as unusable as a missing file.
	f.Frames[0].Path = dir
	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}

func TestParSetLayersOverrides(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	set, err := f.ParSet()
	require.NoError(t, err)

	// The user's value wins over the instrument default (0.2) and the base
	// default (0.15).
	assert.Equal(t, 0.25, set.Float("calibrations.wavelengths.rms_threshold"))
	// Instrument defaults untouched by the user still apply.
	assert.Equal(t, "boxcar", set.String("flexure.method"))
	assert.Equal(t, "shane_kast_blue", set.String("rdx.spectrograph"))
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"unterminated data", "data read\npath | frametype\n", "unterminated data"},
		{"data end alone", "data end\n", "'data end' without"},
		{"bad setup line", "setup read\nconfig A\nsetup end\ndata read\npath | frametype\na.fits | bias\ndata end\n", "expected 'Setup"},
		{"unknown column", "data read\npath | frametype | humidity\na.fits | bias | 0.4\ndata end\n", `unknown data column "humidity"`},
		{"missing path column", "data read\nframetype | exptime\nbias | 0\ndata end\n", "requires 'path' and 'frametype'"},
		{"ragged row", "data read\npath | frametype | exptime\na.fits | bias\ndata end\n", "has 2 columns, header has 3"},
		{"bad frame type", "data read\npath | frametype\na.fits | dark\ndata end\n", `invalid frame type "dark"`},
		{"bad exptime", "data read\npath | frametype | exptime\na.fits | bias | long\ndata end\n", `invalid exptime "long"`},
		{"content after data", "data read\npath | frametype\na.fits | bias\ndata end\nstray\n", "content outside blocks"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "want ErrFormat, got %v", err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateRejectsDuplicatePaths(t *testing.T) {
	in := `[rdx]
    spectrograph = shane_kast_blue
data read
path | frametype
a.fits | bias
a.fits | arc
data end
`
	f, err := Parse([]byte(in))
	require.NoError(t, err)
	err = f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate frame path "a.fits"`)
}

func TestValidateRequiresSpectrograph(t *testing.T) {
	f, err := Parse([]byte("data read\npath | frametype\na.fits | bias\ndata end\n"))
	require.NoError(t, err)
	assert.True(t, errors.Is(f.Validate(), ErrNoSpectrograph))
}

func TestSpectrographUnknown(t *testing.T) {
	in := "[rdx]\n    spectrograph = palomar_dbsp\ndata read\npath | frametype\na.fits | bias\ndata end\n"
	f, err := Parse([]byte(in))
	require.NoError(t, err)
	_, err = f.Spectrograph()
	require.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, f.Write(&b))

	again, err := Parse([]byte(b.String()))
	require.NoError(t, err)

	assert.Equal(t, f.Setup, again.Setup)
	if diff := cmp.Diff(f.Frames, again.Frames); diff != "" {
		t.Errorf("frames differ after round trip (-before +after):\n%s", diff)
	}

	set1, err := f.ParSet()
	require.NoError(t, err)
	set2, err := again.ParSet()
	require.NoError(t, err)
	assert.Empty(t, set1.Diff(set2))
}
