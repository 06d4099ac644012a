// SPDX-License-Identifier: MIT

// specdr reduces spectroscopic observations.
//
// Usage:
//
//	specdr setup -r <rawdir> -s <spectrograph> [-o file.specdr]
//	specdr run -f <file.specdr> [-config specdr.yaml]
//	specdr qa serve [-config specdr.yaml]
package main

import (
	"fmt"
	"os"

	"github.com/specdr/specdr/internal/config"
	"github.com/specdr/specdr/internal/instrument"
	"github.com/specdr/specdr/internal/log"
)

// version is injected at build time via -ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// Site-local instrument definitions extend the built-in registry.
	if dir := os.Getenv(instrument.EnvInstrumentDir); dir != "" {
		if err := instrument.LoadDir(dir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	var code int
	switch os.Args[1] {
	case "setup":
		code = runSetup(os.Args[2:])
	case "run":
		code = runReduce(os.Args[2:])
	case "qa":
		if len(os.Args) < 3 || os.Args[2] != "serve" {
			fmt.Fprintln(os.Stderr, "Error: unknown qa subcommand (want: qa serve)")
			code = 2
			break
		}
		code = runQAServe(os.Args[3:])
	case "version", "-version", "--version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		usage()
		code = 2
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  specdr setup -r <rawdir> -s <spectrograph> [-o file.specdr]")
	fmt.Fprintln(os.Stderr, "  specdr run -f <file.specdr> [-config specdr.yaml]")
	fmt.Fprintln(os.Stderr, "  specdr qa serve [-config specdr.yaml]")
	fmt.Fprintln(os.Stderr, "  specdr version")
}

// loadRuntime resolves the runtime configuration and configures logging.
func loadRuntime(configPath string) (config.AppConfig, error) {
	cfg, err := config.NewLoader(configPath, version).Load()
	if err != nil {
		return cfg, err
	}
	log.Configure(log.Config{Level: cfg.Log.Level, Service: "specdr"})
	return cfg, nil
}
