// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/google/renameio/v2"

	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/reduxfile"
)

func runSetup(args []string) int {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	rawDir := fs.String("r", "", "directory of raw frames")
	spectrograph := fs.String("s", "", "spectrograph name")
	setup := fs.String("setup", "A", "setup name")
	output := fs.String("o", "", "output reduction file (default <spectrograph>_<setup>.specdr)")
	_ = fs.Parse(args)

	if *rawDir == "" || *spectrograph == "" {
		fmt.Fprintln(os.Stderr, "Error: -r and -s are required")
		fs.Usage()
		return 2
	}

	if _, err := instrument.Get(*spectrograph); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	f, err := reduxfile.Scan(*rawDir, reduxfile.ScanOptions{
		Spectrograph: *spectrograph,
		Setup:        *setup,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out := *output
	if out == "" {
		out = fmt.Sprintf("%s_%s.specdr", *spectrograph, f.Setup)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := renameio.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: write %s: %v\n", out, err)
		return 1
	}

	fmt.Printf("✓ wrote %s (%d frames, setup %s)\n", out, len(f.Frames), f.Setup)
	fmt.Println("Review the frame types before running: specdr run -f " + out)
	return 0
}
