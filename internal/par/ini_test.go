// SPDX-License-Identifier: MIT

package par

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigNesting(t *testing.T) {
	input := `
# user overrides
[rdx]
    spectrograph = shane_kast_blue
[calibrations]
    reuse_masters = True
    [[wavelengths]]
        rms_threshold = 0.25   # tighter than the default
        lamps = HeI, NeI, ArI
`
	tree, err := ParseConfig([]byte(input))
	require.NoError(t, err)

	rdx, ok := tree.Get("rdx")
	require.True(t, ok)
	v, ok := rdx.(*Tree).Get("spectrograph")
	require.True(t, ok)
	assert.Equal(t, "shane_kast_blue", v)

	cal, _ := tree.Get("calibrations")
	wv, ok := cal.(*Tree).Get("wavelengths")
	require.True(t, ok)
	lamps, _ := wv.(*Tree).Get("lamps")
	assert.Equal(t, []string{"HeI", "NeI", "ArI"}, lamps)
	rms, _ := wv.(*Tree).Get("rms_threshold")
	assert.Equal(t, "0.25", rms)
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"skipped level", "[[deep]]\nkey = 1\n"},
		{"unbalanced brackets", "[section\nkey = 1\n"},
		{"bare line", "[s]\nnot an assignment\n"},
		{"empty key", "[s]\n= 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrSyntax))
		})
	}
}

func TestParseValueQuoting(t *testing.T) {
	tree, err := ParseConfig([]byte("[s]\nname = 'a, b'\nlist = x,\n"))
	require.NoError(t, err)
	s, _ := tree.Get("s")
	name, _ := s.(*Tree).Get("name")
	assert.Equal(t, "a, b", name)
	list, _ := s.(*Tree).Get("list")
	assert.Equal(t, []string{"x"}, list)
}

func TestApplyRejectsUnknownPaths(t *testing.T) {
	set := ReduxSet()

	tree, err := ParseConfig([]byte("[calibrations]\n[[wavelengths]]\nrms_treshold = 0.2\n"))
	require.NoError(t, err)
	err = set.Apply(tree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKey))
	assert.Contains(t, err.Error(), "calibrations.wavelengths.rms_treshold")

	tree, err = ParseConfig([]byte("[notasection]\nkey = 1\n"))
	require.NoError(t, err)
	err = set.Apply(tree)
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestApplyValidatesValues(t *testing.T) {
	set := ReduxSet()
	tree, err := ParseConfig([]byte("[flexure]\nmethod = sideways\n"))
	require.NoError(t, err)
	err = set.Apply(tree)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestTreeMergePrecedence(t *testing.T) {
	base, err := ParseConfig([]byte("[a]\nx = 1\ny = 2\n"))
	require.NoError(t, err)
	over, err := ParseConfig([]byte("[a]\ny = 3\n"))
	require.NoError(t, err)

	base.Merge(over)
	a, _ := base.Get("a")
	x, _ := a.(*Tree).Get("x")
	y, _ := a.(*Tree).Get("y")
	assert.Equal(t, "1", x)
	assert.Equal(t, "3", y)
}

func TestConfigLinesRoundTrip(t *testing.T) {
	set := ReduxSet()
	require.NoError(t, set.Set("rdx.spectrograph", "shane_kast_blue"))
	require.NoError(t, set.Set("calibrations.wavelengths.rms_threshold", 0.25))
	require.NoError(t, set.Set("calibrations.wavelengths.lamps", []string{"HeI", "NeI"}))
	require.NoError(t, set.Set("reduce.extraction.method", "boxcar"))

	lines := set.ConfigLines(EmitOptions{ExcludeDefaults: true})
	tree, err := ParseConfig([]byte(strings.Join(lines, "\n")))
	require.NoError(t, err)

	reparsed := ReduxSet()
	require.NoError(t, reparsed.Apply(tree))

	if diff := cmp.Diff([]string(nil), set.Diff(reparsed)); diff != "" {
		t.Errorf("round trip changed values (-want +got):\n%s", diff)
	}
	assert.Equal(t, set.Changed(), reparsed.Changed())
}

func TestConfigLinesExcludeDefaultsIsSparse(t *testing.T) {
	set := ReduxSet()
	require.NoError(t, set.Set("calibrations.wavelengths.sigdetect", 10.0))

	lines := set.ConfigLines(EmitOptions{ExcludeDefaults: true})
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "[calibrations]")
	assert.Contains(t, joined, "[[wavelengths]]")
	assert.Contains(t, joined, "sigdetect = 10")
	// Untouched sections are dropped entirely.
	assert.NotContains(t, joined, "[flexure]")
	assert.NotContains(t, joined, "rms_threshold")
}

func TestConfigLinesDescriptions(t *testing.T) {
	set := ReduxSet()
	lines := set.ConfigLines(EmitOptions{IncludeDescr: true})
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "# Execution parameters for the reduction run")
	assert.Contains(t, joined, "[rdx]")
}
