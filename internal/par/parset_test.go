// SPDX-License-Identifier: MIT

package par

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet() *Set {
	return New("proc",
		&Def{Key: "method", Kind: KindString, Default: "optimal", Options: []string{"optimal", "boxcar"}},
		&Def{Key: "radius", Kind: KindFloat, Default: 1.5},
		&Def{Key: "order", Kind: KindInt, Default: 3},
		&Def{Key: "clip", Kind: KindBool, Default: true},
		&Def{Key: "lamps", Kind: KindStringList},
		&Def{Key: "window", Kind: KindIntList, Default: []int{0, 0}},
		&Def{Key: "target", Kind: KindString, Required: true},
	)
}

func TestSetDefaults(t *testing.T) {
	s := testSet()
	assert.Equal(t, "optimal", s.String("method"))
	assert.Equal(t, 1.5, s.Float("radius"))
	assert.Equal(t, 3, s.Int("order"))
	assert.True(t, s.Bool("clip"))
	assert.Nil(t, s.StringList("lamps"))
	assert.Equal(t, []int{0, 0}, s.IntList("window"))
}

func TestSetAssignCoercion(t *testing.T) {
	s := testSet()

	require.NoError(t, s.Set("radius", "2.25"))
	assert.Equal(t, 2.25, s.Float("radius"))

	require.NoError(t, s.Set("order", "5"))
	assert.Equal(t, 5, s.Int("order"))

	require.NoError(t, s.Set("clip", "False"))
	assert.False(t, s.Bool("clip"))

	require.NoError(t, s.Set("lamps", []string{"HeI", "NeI"}))
	assert.Equal(t, []string{"HeI", "NeI"}, s.StringList("lamps"))

	// Scalars promote to single-element lists.
	require.NoError(t, s.Set("lamps", "ArI"))
	assert.Equal(t, []string{"ArI"}, s.StringList("lamps"))

	require.NoError(t, s.Set("window", []string{"10", "20"}))
	assert.Equal(t, []int{10, 20}, s.IntList("window"))
}

func TestSetRejectsInvalid(t *testing.T) {
	s := testSet()

	err := s.Set("method", "gaussian")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = s.Set("order", "three")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	err = s.Set("nope", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestValidateRequired(t *testing.T) {
	s := testSet()

	err := s.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingRequired))
	assert.Contains(t, err.Error(), "target")

	require.NoError(t, s.Set("target", "HD84937"))
	assert.NoError(t, s.Validate())
}

func TestChanged(t *testing.T) {
	s := testSet()
	assert.Empty(t, s.Changed())

	require.NoError(t, s.Set("radius", 3.0))
	require.NoError(t, s.Set("target", "HD84937"))
	assert.Equal(t, []string{"radius", "target"}, s.Changed())
}

func TestNestedPaths(t *testing.T) {
	root := New("",
		&Def{Key: "outer", Kind: KindSet, Child: New("outer",
			&Def{Key: "inner", Kind: KindSet, Child: New("inner",
				&Def{Key: "value", Kind: KindInt, Default: 7},
			)},
		)},
	)

	assert.Equal(t, 7, root.Int("outer.inner.value"))
	require.NoError(t, root.Set("outer.inner.value", 9))
	assert.Equal(t, 9, root.Int("outer.inner.value"))
	assert.Equal(t, []string{"outer.inner.value"}, root.Changed())

	err := root.Set("outer.missing.value", 1)
	assert.True(t, errors.Is(err, ErrUnknownKey))
}

func TestCloneIsolation(t *testing.T) {
	s := testSet()
	require.NoError(t, s.Set("lamps", []string{"HeI"}))

	c := s.Clone()
	require.NoError(t, c.Set("radius", 9.0))
	require.NoError(t, c.Set("lamps", []string{"NeI"}))

	assert.Equal(t, 1.5, s.Float("radius"))
	assert.Equal(t, []string{"HeI"}, s.StringList("lamps"))
	assert.Equal(t, 9.0, c.Float("radius"))
}

func TestDiff(t *testing.T) {
	a := testSet()
	b := testSet()
	require.NoError(t, b.Set("order", 5))
	require.NoError(t, b.Set("clip", false))

	assert.Equal(t, []string{"order", "clip"}, a.Diff(b))
	assert.Empty(t, a.Diff(a.Clone()))
}
