// SPDX-License-Identifier: MIT

// Package config loads the runtime configuration of the tool itself:
// working directories, the master-frame store, the QA server, and pipeline
// concurrency. Science parameters (what the reduction computes) live in the
// parameter hierarchy instead and are configured per reduction run.
//
// Precedence: environment variables > config file > defaults.
package config

import "time"

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version string

	// WorkDir is the root for all run outputs (science, QA, masters).
	WorkDir string

	Masters  MastersConfig
	QA       QAConfig
	Pipeline PipelineConfig
	Log      LogConfig
}

// MastersConfig controls the master-frame store.
type MastersConfig struct {
	// Backend selects the index backend: "memory" or "sqlite".
	Backend string
	// DBPath is the sqlite database path; ignored for the memory backend.
	// Empty means <WorkDir>/Masters/index.db.
	DBPath string
	// Reuse makes the pipeline load existing masters instead of rebuilding.
	Reuse bool
}

// QAConfig controls the QA inspection server.
type QAConfig struct {
	Listen          string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// PipelineConfig controls reduction concurrency.
type PipelineConfig struct {
	// Workers bounds the per-detector fan-out; 0 means one worker per detector.
	Workers int
	// StepTimeout bounds a single pipeline step; 0 disables the bound.
	StepTimeout time.Duration
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		WorkDir: ".",
		Masters: MastersConfig{
			Backend: "memory",
		},
		QA: QAConfig{
			Listen:          ":8088",
			ReadTimeout:     10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Pipeline: PipelineConfig{
			Workers:     0,
			StepTimeout: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// FileConfig mirrors AppConfig for strict YAML decoding. Pointer fields
// distinguish "absent" from "zero" so the file only overrides what it sets.
type FileConfig struct {
	WorkDir *string `yaml:"workdir"`

	Masters *struct {
		Backend *string `yaml:"backend"`
		DBPath  *string `yaml:"db_path"`
		Reuse   *bool   `yaml:"reuse"`
	} `yaml:"masters"`

	QA *struct {
		Listen          *string        `yaml:"listen"`
		ReadTimeout     *time.Duration `yaml:"read_timeout"`
		ShutdownTimeout *time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"qa"`

	Pipeline *struct {
		Workers     *int           `yaml:"workers"`
		StepTimeout *time.Duration `yaml:"step_timeout"`
	} `yaml:"pipeline"`

	Log *struct {
		Level *string `yaml:"level"`
	} `yaml:"log"`
}
