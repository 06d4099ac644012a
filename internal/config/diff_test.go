// SPDX-License-Identifier: MIT

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDiffNoChanges(t *testing.T) {
	cfg := Defaults()
	sum := Diff(cfg, cfg)
	assert.Empty(t, sum.ChangedFields)
	assert.False(t, sum.RestartRequired)
}

func TestDiffHotReloadable(t *testing.T) {
	old := Defaults()
	next := Defaults()
	next.Log.Level = "debug"
	next.Pipeline.Workers = 4
	next.QA.ReadTimeout = 30 * time.Second

	sum := Diff(old, next)
	assert.Equal(t, []string{"Log.Level", "Pipeline.Workers", "QA.ReadTimeout"}, sum.ChangedFields)
	assert.False(t, sum.RestartRequired)
}

func TestDiffRestartRequired(t *testing.T) {
	old := Defaults()
	next := Defaults()
	next.WorkDir = "/data/run42"
	next.Log.Level = "debug"

	sum := Diff(old, next)
	assert.Equal(t, []string{"Log.Level", "WorkDir"}, sum.ChangedFields)
	assert.True(t, sum.RestartRequired)
}

func TestDiffIgnoresVersion(t *testing.T) {
	old := Defaults()
	next := Defaults()
	next.Version = "v2"
	assert.Empty(t, Diff(old, next).ChangedFields)
}
