// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/specdr/specdr/internal/log"
)

// Environment variable names. All runtime overrides share the SPECDR_ prefix.
const (
	EnvWorkDir        = "SPECDR_WORKDIR"
	EnvMastersBackend = "SPECDR_MASTERS_BACKEND"
	EnvMastersDB      = "SPECDR_MASTERS_DB"
	EnvMastersReuse   = "SPECDR_MASTERS_REUSE"
	EnvQAListen       = "SPECDR_QA_LISTEN"
	EnvWorkers        = "SPECDR_PIPELINE_WORKERS"
	EnvStepTimeout    = "SPECDR_STEP_TIMEOUT"
	EnvLogLevel       = "SPECDR_LOG_LEVEL"
)

// ParseString reads a string from the environment or returns the default.
// Empty values fall back to the default.
func ParseString(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		logger := log.WithComponent("config")
		logger.Debug().
			Str("key", key).
			Str("source", "environment").
			Msg("using environment variable")
		return v
	}
	return defaultValue
}

// ParseBool reads a boolean from the environment. It accepts "true",
// "false", "1", "0", "yes", "no" (case-insensitive) and falls back to the
// default on anything else.
func ParseBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	logger := log.WithComponent("config")
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Bool("default", defaultValue).
		Msg("invalid boolean in environment variable, using default")
	return defaultValue
}

// ParseInt reads an integer from the environment, falling back to the
// default on parse errors.
func ParseInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseDuration reads a duration in Go duration format (e.g. "30s"),
// falling back to the default on parse errors.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger := log.WithComponent("config")
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}
