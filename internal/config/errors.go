// SPDX-License-Identifier: MIT

package config

import "errors"

// Sentinel errors for configuration validation. Callers match them with
// errors.Is; the wrapped message carries the offending value.
var (
	ErrInvalidBackend = errors.New("invalid masters backend")
	ErrInvalidListen  = errors.New("invalid QA listen address")
	ErrInvalidWorkers = errors.New("invalid pipeline worker count")
	ErrInvalidLevel   = errors.New("invalid log level")
)
