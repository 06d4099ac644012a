// SPDX-License-Identifier: MIT

package par

import "errors"

var (
	// ErrUnknownKey classifies assignments to parameters that do not exist in
	// the hierarchy. Use errors.Is(err, ErrUnknownKey) instead of string
	// matching.
	ErrUnknownKey = errors.New("unknown parameter")

	// ErrInvalidValue classifies values that fail kind conversion or fall
	// outside the allowed options.
	ErrInvalidValue = errors.New("invalid parameter value")

	// ErrMissingRequired is returned by Validate when required parameters
	// are unset.
	ErrMissingRequired = errors.New("missing required parameters")

	// ErrSyntax classifies malformed parameter-file input.
	ErrSyntax = errors.New("parameter file syntax error")
)
