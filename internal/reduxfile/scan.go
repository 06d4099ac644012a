// SPDX-License-Identifier: MIT

package reduxfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/specdr/specdr/internal/par"
)

// ScanOptions configures a raw-directory scan.
type ScanOptions struct {
	// Spectrograph names the instrument written into the parameter block.
	Spectrograph string
	// Setup names the configuration; defaults to "A".
	Setup string
}

// frameMeta is the metadata subset read from a raw frame container.
type frameMeta struct {
	Exptime float64 `json:"exptime"`
	Airmass float64 `json:"airmass"`
	Target  string  `json:"target"`
}

// Scan builds a reduction file skeleton from a directory of raw frames.
// Frames are classified by file name; the result is meant to be reviewed
// and corrected by the observer before running.
func Scan(rawDir string, opts ScanOptions) (*File, error) {
	if opts.Spectrograph == "" {
		return nil, ErrNoSpectrograph
	}
	if opts.Setup == "" {
		opts.Setup = "A"
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("scan raw dir: %w", err)
	}

	f := &File{Setup: opts.Setup}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".json", ".fits", ".fit":
		default:
			continue
		}
		path := filepath.Join(rawDir, e.Name())
		frame := Frame{Path: path, Type: classifyName(e.Name())}
		if meta, ok := readFrameMeta(path); ok {
			frame.Exptime = meta.Exptime
			frame.Airmass = meta.Airmass
			frame.Target = meta.Target
		}
		f.Frames = append(f.Frames, frame)
	}
	if len(f.Frames) == 0 {
		return nil, fmt.Errorf("no raw frames found in %s", rawDir)
	}
	sort.Slice(f.Frames, func(i, j int) bool { return f.Frames[i].Path < f.Frames[j].Path })

	f.OverrideLines = []string{
		"[rdx]",
		"    spectrograph = " + opts.Spectrograph,
	}
	tree, err := par.ParseConfig([]byte(strings.Join(f.OverrideLines, "\n")))
	if err != nil {
		return nil, err
	}
	f.Overrides = tree
	return f, nil
}

// classifyName guesses the frame type from the file name. Unknown names
// default to science, the safest guess to review.
func classifyName(name string) FrameType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "bias") || strings.Contains(n, "zero"):
		return FrameBias
	case strings.Contains(n, "arc") || strings.Contains(n, "comp"):
		return FrameArc
	case strings.Contains(n, "trace"):
		return FrameTrace
	case strings.Contains(n, "flat"):
		return FramePixelFlat
	case strings.Contains(n, "std") || strings.Contains(n, "standard"):
		return FrameStandard
	default:
		return FrameScience
	}
}

// readFrameMeta extracts exposure metadata from a raw frame container when
// the container is readable; classification still works without it.
func readFrameMeta(path string) (frameMeta, bool) {
	// #nosec G304 -- paths come from the scanned directory listing
	data, err := os.ReadFile(path)
	if err != nil {
		return frameMeta{}, false
	}
	var meta frameMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return frameMeta{}, false
	}
	return meta, true
}
