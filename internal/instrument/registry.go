// SPDX-License-Identifier: MIT

package instrument

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/specdr/specdr/internal/par"
)

//go:embed defs/*.yaml
var builtinDefs embed.FS

// ErrUnknown is wrapped by Get when the instrument name is not registered.
var ErrUnknown = fmt.Errorf("unknown instrument")

// EnvInstrumentDir names the environment variable holding a directory of
// site-local instrument definitions loaded at startup.
const EnvInstrumentDir = "SPECDR_INSTRUMENT_DIR"

var (
	registryOnce sync.Once
	registryMu   sync.RWMutex
	registry     map[string]*Instrument
	registryErr  error
)

func buildRegistry() (map[string]*Instrument, error) {
	entries, err := builtinDefs.ReadDir("defs")
	if err != nil {
		return nil, fmt.Errorf("read builtin instrument defs: %w", err)
	}
	r := make(map[string]*Instrument, len(entries))
	for _, e := range entries {
		data, err := builtinDefs.ReadFile("defs/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		inst, err := Decode(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		if _, dup := r[inst.Name]; dup {
			return nil, fmt.Errorf("duplicate instrument definition: %s", inst.Name)
		}
		r[inst.Name] = inst
	}
	return r, nil
}

func getRegistry() (map[string]*Instrument, error) {
	registryOnce.Do(func() {
		registry, registryErr = buildRegistry()
	})
	return registry, registryErr
}

// Decode parses a single instrument definition. Unknown fields are rejected
// to catch misspelled keys in user-supplied definitions.
func Decode(data []byte) (*Instrument, error) {
	var inst Instrument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inst); err != nil {
		return nil, fmt.Errorf("strict instrument parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("instrument definition contains multiple documents")
	}
	if err := inst.validate(); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Get returns the registered instrument with the given name. The error for
// an unknown name lists all known instruments.
func Get(name string) (*Instrument, error) {
	r, err := getRegistry()
	if err != nil {
		return nil, err
	}
	registryMu.RLock()
	inst, ok := r[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknown, name, strings.Join(Names(), ", "))
	}
	return inst, nil
}

// Defaults returns the fully merged parameter set for a registered
// instrument: the base defaults with the instrument's overrides applied.
func Defaults(name string) (*par.Set, error) {
	inst, err := Get(name)
	if err != nil {
		return nil, err
	}
	return inst.ParSet()
}

// Names returns the sorted names of all registered instruments.
func Names() []string {
	r, err := getRegistry()
	if err != nil {
		return nil
	}
	registryMu.RLock()
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	registryMu.RUnlock()
	sort.Strings(names)
	return names
}

// LoadDir registers additional instrument definitions from *.yaml files in
// dir. Definitions may not shadow built-in instruments.
func LoadDir(dir string) error {
	r, err := getRegistry()
	if err != nil {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return err
	}
	for _, path := range matches {
		// #nosec G304 -- instrument directories are provided by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read instrument file: %w", err)
		}
		inst, err := Decode(data)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		registryMu.Lock()
		if _, dup := r[inst.Name]; dup {
			registryMu.Unlock()
			return fmt.Errorf("%s: instrument %q is already registered", filepath.Base(path), inst.Name)
		}
		r[inst.Name] = inst
		registryMu.Unlock()
	}
	return nil
}
