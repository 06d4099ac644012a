// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"net"
)

// Validate checks a resolved configuration. The first violation is returned;
// the wrapped sentinel identifies the field.
func Validate(cfg AppConfig) error {
	switch cfg.Masters.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: %q (want memory or sqlite)", ErrInvalidBackend, cfg.Masters.Backend)
	}

	if cfg.QA.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.QA.Listen); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidListen, cfg.QA.Listen, err)
		}
	}

	if cfg.Pipeline.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Pipeline.Workers)
	}

	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.Log.Level)
	}

	return nil
}
