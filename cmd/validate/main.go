// SPDX-License-Identifier: MIT

// validate checks a reduction file: structure, frame table, instrument, and
// parameter overrides.
//
// Usage:
//
//	validate -f observation.specdr
//	validate --file observation.specdr
//
// Exit codes:
//   - 0: Reduction file is valid
//   - 1: Reduction file is invalid (parse or validation error)
//   - 2: Usage error (missing required flag)
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/reduxfile"
)

var version = "dev"

func main() {
	var file string
	var showVersion bool

	flag.StringVar(&file, "file", "", "path to reduction file")
	flag.StringVar(&file, "f", "", "path to reduction file (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if dir := os.Getenv(instrument.EnvInstrumentDir); dir != "" {
		if err := instrument.LoadDir(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file is required")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  validate -f observation.specdr")
		fmt.Fprintln(os.Stderr, "  validate --file observation.specdr")
		os.Exit(2)
	}

	rf, err := reduxfile.Read(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		os.Exit(1)
	}

	if err := rf.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Validation error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		os.Exit(1)
	}

	// Resolving the parameter set applies the overrides against the full
	// hierarchy, catching unknown keys and invalid values.
	set, err := rf.ParSet()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parameter error in %s:\n", file)
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ %s is valid\n", file)
	fmt.Printf("  spectrograph: %s\n", set.String("rdx.spectrograph"))
	fmt.Printf("  frames:       %d\n", len(rf.Frames))
	if changed := set.Changed(); len(changed) > 0 {
		fmt.Printf("  non-default parameters:\n")
		for _, path := range changed {
			v, _ := set.Get(path)
			fmt.Printf("    %s = %v\n", path, v)
		}
	}
}
