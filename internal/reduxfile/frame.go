// SPDX-License-Identifier: MIT

package reduxfile

import (
	"fmt"
	"strings"
)

// FrameType classifies a raw frame by its role in the reduction.
type FrameType string

const (
	FrameBias      FrameType = "bias"
	FrameArc       FrameType = "arc"
	FrameTrace     FrameType = "trace"
	FramePixelFlat FrameType = "pixelflat"
	FrameScience   FrameType = "science"
	FrameStandard  FrameType = "standard"
)

// FrameTypes lists all valid frame types in reduction order.
func FrameTypes() []FrameType {
	return []FrameType{FrameBias, FrameArc, FrameTrace, FramePixelFlat, FrameScience, FrameStandard}
}

// ParseFrameType converts a string from the data block into a FrameType.
func ParseFrameType(s string) (FrameType, error) {
	ft := FrameType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range FrameTypes() {
		if ft == known {
			return ft, nil
		}
	}
	return "", fmt.Errorf("invalid frame type %q", s)
}

// Frame is one row of the data block: a raw file and its metadata.
type Frame struct {
	Path    string
	Type    FrameType
	Exptime float64
	Airmass float64
	Target  string
}
