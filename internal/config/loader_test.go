// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvWorkDir, EnvMastersBackend, EnvMastersDB, EnvMastersReuse,
		EnvQAListen, EnvWorkers, EnvStepTimeout, EnvLogLevel,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := NewLoader("", "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Masters.Backend)
	assert.Equal(t, ":8088", cfg.QA.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "test", cfg.Version)
	assert.True(t, filepath.IsAbs(cfg.WorkDir))
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "specdr.yaml")
	data := `
workdir: ` + dir + `
masters:
  backend: sqlite
  reuse: true
pipeline:
  workers: 4
  step_timeout: 30s
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Masters.Backend)
	assert.True(t, cfg.Masters.Reuse)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Unset file fields keep their defaults.
	assert.Equal(t, ":8088", cfg.QA.Listen)
	// The sqlite backend gets a derived database path.
	assert.Equal(t, filepath.Join(dir, "Masters", "index.db"), cfg.Masters.DBPath)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "specdr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvWorkers, "8")

	cfg, err := NewLoader(path, "test").Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
}

func TestLoadStrictRejectsUnknownFields(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "specdr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("wrokdir: /tmp\n"), 0o600))

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsNonYAML(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "specdr.toml")
	require.NoError(t, os.WriteFile(path, []byte("workdir = '/tmp'\n"), 0o600))

	_, err := NewLoader(path, "test").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestValidate(t *testing.T) {
	base := Defaults()

	cases := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr error
	}{
		{"valid", func(*AppConfig) {}, nil},
		{"bad backend", func(c *AppConfig) { c.Masters.Backend = "postgres" }, ErrInvalidBackend},
		{"bad listen", func(c *AppConfig) { c.QA.Listen = "no-port" }, ErrInvalidListen},
		{"negative workers", func(c *AppConfig) { c.Pipeline.Workers = -1 }, ErrInvalidWorkers},
		{"bad level", func(c *AppConfig) { c.Log.Level = "verbose" }, ErrInvalidLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := Validate(cfg)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tc.wantErr), "got %v", err)
		})
	}
}

func TestParseBool(t *testing.T) {
	t.Setenv("SPECDR_TEST_BOOL", "yes")
	assert.True(t, ParseBool("SPECDR_TEST_BOOL", false))

	t.Setenv("SPECDR_TEST_BOOL", "0")
	assert.False(t, ParseBool("SPECDR_TEST_BOOL", true))

	t.Setenv("SPECDR_TEST_BOOL", "maybe")
	assert.True(t, ParseBool("SPECDR_TEST_BOOL", true))
}

func TestParseDuration(t *testing.T) {
	t.Setenv("SPECDR_TEST_DUR", "90s")
	assert.Equal(t, 90*time.Second, ParseDuration("SPECDR_TEST_DUR", time.Minute))

	t.Setenv("SPECDR_TEST_DUR", "soon")
	assert.Equal(t, time.Minute, ParseDuration("SPECDR_TEST_DUR", time.Minute))
}
