// SPDX-License-Identifier: MIT

// Package reduxfile reads and writes reduction files: the single input a
// reduction run starts from. A reduction file has three parts, in order: a
// parameter block in the plain-text parameter format (listing only the
// values the user changes), a setup block naming the configuration, and a
// data block tabulating the raw frames.
//
//	[rdx]
//	    spectrograph = shane_kast_blue
//
//	setup read
//	Setup A
//	setup end
//
//	data read
//	path | frametype | exptime | airmass
//	raw/b0001.fits | bias | 0 | 1.0
//	data end
package reduxfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/par"
)

var (
	// ErrFormat classifies structural problems in a reduction file.
	ErrFormat = errors.New("malformed reduction file")
	// ErrNoSpectrograph is returned when the parameter block does not name
	// an instrument.
	ErrNoSpectrograph = errors.New("reduction file does not set rdx.spectrograph")
)

// File is a parsed reduction file.
type File struct {
	Setup  string
	Frames []Frame

	// Overrides is the parsed parameter block; OverrideLines preserves its
	// raw text for round-tripping.
	Overrides     *par.Tree
	OverrideLines []string
}

// Read parses the reduction file at path.
func Read(path string) (*File, error) {
	// #nosec G304 -- reduction file paths are provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reduction file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse parses reduction-file text.
func Parse(data []byte) (*File, error) {
	f := &File{}
	lines := strings.Split(string(data), "\n")

	var paramLines, setupLines, dataLines []string
	block := "param"
	for n, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == "setup read":
			if block != "param" {
				return nil, fmt.Errorf("%w: line %d: unexpected 'setup read'", ErrFormat, n+1)
			}
			block = "setup"
		case trimmed == "setup end":
			if block != "setup" {
				return nil, fmt.Errorf("%w: line %d: 'setup end' without 'setup read'", ErrFormat, n+1)
			}
			block = "after-setup"
		case trimmed == "data read":
			if block != "param" && block != "after-setup" {
				return nil, fmt.Errorf("%w: line %d: unexpected 'data read'", ErrFormat, n+1)
			}
			block = "data"
		case trimmed == "data end":
			if block != "data" {
				return nil, fmt.Errorf("%w: line %d: 'data end' without 'data read'", ErrFormat, n+1)
			}
			block = "after-data"
		default:
			switch block {
			case "param":
				paramLines = append(paramLines, raw)
			case "setup":
				setupLines = append(setupLines, trimmed)
			case "data":
				dataLines = append(dataLines, trimmed)
			case "after-setup", "after-data":
				if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
					return nil, fmt.Errorf("%w: line %d: content outside blocks", ErrFormat, n+1)
				}
			}
		}
	}
	if block == "setup" || block == "data" {
		return nil, fmt.Errorf("%w: unterminated %s block", ErrFormat, block)
	}

	if err := f.parseSetup(setupLines); err != nil {
		return nil, err
	}
	if err := f.parseData(dataLines); err != nil {
		return nil, err
	}

	f.OverrideLines = trimBlank(paramLines)
	tree, err := par.ParseConfig([]byte(strings.Join(f.OverrideLines, "\n")))
	if err != nil {
		return nil, err
	}
	f.Overrides = tree
	return f, nil
}

func (f *File) parseSetup(lines []string) error {
	for _, l := range lines {
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		name, ok := strings.CutPrefix(l, "Setup ")
		if !ok {
			return fmt.Errorf("%w: setup block line %q (expected 'Setup <name>')", ErrFormat, l)
		}
		if f.Setup != "" {
			return fmt.Errorf("%w: multiple setups in one reduction file", ErrFormat)
		}
		f.Setup = strings.TrimSpace(name)
	}
	if f.Setup == "" {
		f.Setup = "A"
	}
	return nil
}

func (f *File) parseData(lines []string) error {
	var header []string
	for _, l := range lines {
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		cols := splitRow(l)
		if header == nil {
			header = cols
			if err := checkHeader(header); err != nil {
				return err
			}
			continue
		}
		if len(cols) != len(header) {
			return fmt.Errorf("%w: data row %q has %d columns, header has %d",
				ErrFormat, l, len(cols), len(header))
		}
		frame, err := frameFromRow(header, cols)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFormat, err)
		}
		f.Frames = append(f.Frames, frame)
	}
	return nil
}

func splitRow(l string) []string {
	parts := strings.Split(l, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func checkHeader(header []string) error {
	seen := map[string]bool{}
	for _, c := range header {
		switch c {
		case "path", "frametype", "exptime", "airmass", "target":
			if seen[c] {
				return fmt.Errorf("%w: duplicate data column %q", ErrFormat, c)
			}
			seen[c] = true
		default:
			return fmt.Errorf("%w: unknown data column %q", ErrFormat, c)
		}
	}
	if !seen["path"] || !seen["frametype"] {
		return fmt.Errorf("%w: data block requires 'path' and 'frametype' columns", ErrFormat)
	}
	return nil
}

func frameFromRow(header, cols []string) (Frame, error) {
	var frame Frame
	for i, c := range header {
		v := cols[i]
		switch c {
		case "path":
			frame.Path = v
		case "frametype":
			ft, err := ParseFrameType(v)
			if err != nil {
				return Frame{}, err
			}
			frame.Type = ft
		case "exptime":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Frame{}, fmt.Errorf("invalid exptime %q", v)
			}
			frame.Exptime = f
		case "airmass":
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return Frame{}, fmt.Errorf("invalid airmass %q", v)
			}
			frame.Airmass = f
		case "target":
			frame.Target = v
		}
	}
	if frame.Path == "" {
		return Frame{}, fmt.Errorf("data row with empty path")
	}
	return frame, nil
}

func trimBlank(lines []string) []string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return lines[start:end]
}

// Validate checks the integrity of the file: a registered spectrograph, at
// least one frame, no duplicate frame paths, and every frame present on
// disk. Catching a missing frame here beats failing mid-reduction.
func (f *File) Validate() error {
	if _, err := f.Spectrograph(); err != nil {
		return err
	}
	if len(f.Frames) == 0 {
		return fmt.Errorf("%w: data block lists no frames", ErrFormat)
	}
	seen := make(map[string]bool, len(f.Frames))
	for _, frame := range f.Frames {
		if seen[frame.Path] {
			return fmt.Errorf("%w: duplicate frame path %q", ErrFormat, frame.Path)
		}
		seen[frame.Path] = true
	}
	for _, frame := range f.Frames {
		if info, err := os.Stat(frame.Path); err != nil {
			return fmt.Errorf("frame %q: %w", frame.Path, err)
		} else if info.IsDir() {
			return fmt.Errorf("frame %q is a directory", frame.Path)
		}
	}
	return nil
}

// Spectrograph resolves the instrument named in the parameter block.
func (f *File) Spectrograph() (*instrument.Instrument, error) {
	name := f.spectrographName()
	if name == "" {
		return nil, ErrNoSpectrograph
	}
	return instrument.Get(name)
}

func (f *File) spectrographName() string {
	if f.Overrides == nil {
		return ""
	}
	rdx, ok := f.Overrides.Get("rdx")
	if !ok {
		return ""
	}
	sub, ok := rdx.(*par.Tree)
	if !ok {
		return ""
	}
	v, ok := sub.Get("spectrograph")
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// ParSet builds the effective parameter set for this reduction: base
// defaults, then the instrument's defaults, then the user's parameter block,
// each layer overriding the previous one.
func (f *File) ParSet() (*par.Set, error) {
	inst, err := f.Spectrograph()
	if err != nil {
		return nil, err
	}
	set, err := inst.ParSet()
	if err != nil {
		return nil, err
	}
	if err := set.Apply(f.Overrides); err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// FramesOfType returns the frames with the given type, preserving order.
func (f *File) FramesOfType(t FrameType) []Frame {
	var out []Frame
	for _, frame := range f.Frames {
		if frame.Type == t {
			out = append(out, frame)
		}
	}
	return out
}

// Write renders the reduction file. The output parses back to an equal File.
func (f *File) Write(w io.Writer) error {
	var b strings.Builder
	for _, l := range f.OverrideLines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	if len(f.OverrideLines) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("setup read\n")
	setup := f.Setup
	if setup == "" {
		setup = "A"
	}
	b.WriteString("Setup " + setup + "\n")
	b.WriteString("setup end\n\n")

	b.WriteString("data read\n")
	b.WriteString("path | frametype | exptime | airmass | target\n")
	for _, frame := range f.Frames {
		fmt.Fprintf(&b, "%s | %s | %s | %s | %s\n",
			frame.Path, frame.Type,
			strconv.FormatFloat(frame.Exptime, 'g', -1, 64),
			strconv.FormatFloat(frame.Airmass, 'g', -1, 64),
			frame.Target)
	}
	b.WriteString("data end\n")

	_, err := io.WriteString(w, b.String())
	return err
}
