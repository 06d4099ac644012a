// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader resolves the runtime configuration with precedence
// ENV > file > defaults.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a loader. configPath may be empty for ENV-only operation.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Load resolves the configuration: defaults, then the file (strict YAML),
// then environment overrides, then validation.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		mergeFileConfig(&cfg, fileCfg)
	}

	mergeEnvConfig(&cfg)

	if abs, err := filepath.Abs(cfg.WorkDir); err == nil {
		cfg.WorkDir = abs
	}
	if cfg.Masters.Backend == "sqlite" && cfg.Masters.DBPath == "" {
		cfg.Masters.DBPath = filepath.Join(cfg.WorkDir, "Masters", "index.db")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile parses a YAML config file in strict mode. Unknown fields are
// fatal to catch typos before they silently misconfigure a run.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return &fileCfg, nil
}

func mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	if f.WorkDir != nil {
		cfg.WorkDir = *f.WorkDir
	}
	if f.Masters != nil {
		if f.Masters.Backend != nil {
			cfg.Masters.Backend = *f.Masters.Backend
		}
		if f.Masters.DBPath != nil {
			cfg.Masters.DBPath = *f.Masters.DBPath
		}
		if f.Masters.Reuse != nil {
			cfg.Masters.Reuse = *f.Masters.Reuse
		}
	}
	if f.QA != nil {
		if f.QA.Listen != nil {
			cfg.QA.Listen = *f.QA.Listen
		}
		if f.QA.ReadTimeout != nil {
			cfg.QA.ReadTimeout = *f.QA.ReadTimeout
		}
		if f.QA.ShutdownTimeout != nil {
			cfg.QA.ShutdownTimeout = *f.QA.ShutdownTimeout
		}
	}
	if f.Pipeline != nil {
		if f.Pipeline.Workers != nil {
			cfg.Pipeline.Workers = *f.Pipeline.Workers
		}
		if f.Pipeline.StepTimeout != nil {
			cfg.Pipeline.StepTimeout = *f.Pipeline.StepTimeout
		}
	}
	if f.Log != nil && f.Log.Level != nil {
		cfg.Log.Level = *f.Log.Level
	}
}

func mergeEnvConfig(cfg *AppConfig) {
	cfg.WorkDir = ParseString(EnvWorkDir, cfg.WorkDir)
	cfg.Masters.Backend = ParseString(EnvMastersBackend, cfg.Masters.Backend)
	cfg.Masters.DBPath = ParseString(EnvMastersDB, cfg.Masters.DBPath)
	cfg.Masters.Reuse = ParseBool(EnvMastersReuse, cfg.Masters.Reuse)
	cfg.QA.Listen = ParseString(EnvQAListen, cfg.QA.Listen)
	cfg.Pipeline.Workers = ParseInt(EnvWorkers, cfg.Pipeline.Workers)
	cfg.Pipeline.StepTimeout = ParseDuration(EnvStepTimeout, cfg.Pipeline.StepTimeout)
	cfg.Log.Level = ParseString(EnvLogLevel, cfg.Log.Level)
}
