// SPDX-License-Identifier: MIT

// Package masters persists calibration products ("master frames") between
// runs. Each product is written as Master<Type>_<key>.json containing a
// provenance header and the product payload; an index keeps the inventory
// queryable across runs.
package masters

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/specdr/specdr/internal/log"
)

// Type identifies a class of master frame.
type Type string

const (
	TypeBias      Type = "Bias"
	TypeArc       Type = "Arc"
	TypeTrace     Type = "Trace"
	TypePixelFlat Type = "PixelFlat"
	TypeWaveCalib Type = "WaveCalib"
	TypeTilts     Type = "Tilts"
	TypeFlat      Type = "Flat"
)

// ErrNotFound is returned when a requested master does not exist in the
// index. Callers match it with errors.Is and fall back to rebuilding.
var ErrNotFound = errors.New("master frame not found")

// Provenance records where a master frame came from.
type Provenance struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Key        string    `json:"key"`
	Instrument string    `json:"instrument"`
	Setup      string    `json:"setup"`
	Detector   int       `json:"detector"`
	Inputs     []string  `json:"inputs"`
	Checksum   string    `json:"checksum"` // sha256 of the payload JSON
	CreatedAt  time.Time `json:"created_at"`
	Version    string    `json:"version"`
}

// Record is an index entry: provenance plus the on-disk location.
type Record struct {
	Provenance
	Path string `json:"path"`
}

type envelope struct {
	Provenance Provenance      `json:"provenance"`
	Data       json.RawMessage `json:"data"`
}

// Key builds the standard master key from setup name and detector number,
// e.g. "A_01".
func Key(setup string, detector int) string {
	return fmt.Sprintf("%s_%02d", setup, detector)
}

// FileName returns the canonical file name for a master frame.
func FileName(typ Type, key string) string {
	return fmt.Sprintf("Master%s_%s.json", typ, key)
}

// checksum hashes the compacted form so the value is stable across the
// re-indentation the envelope writer applies.
func checksum(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err == nil {
		data = buf.Bytes()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store writes, indexes, and (when reuse is enabled) reloads master frames.
type Store struct {
	dir     string
	reuse   bool
	version string
	index   Index
	logger  zerolog.Logger
}

// NewStore creates a store rooted at dir. The directory is created on the
// first save. reuse governs whether Load returns existing masters.
func NewStore(dir string, reuse bool, version string, index Index) *Store {
	return &Store{
		dir:     dir,
		reuse:   reuse,
		version: version,
		index:   index,
		logger:  log.WithComponent("masters"),
	}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Save writes a master frame atomically and records it in the index. The
// payload must be JSON-marshalable.
func (s *Store) Save(ctx context.Context, typ Type, key string, prov Provenance, payload any) (Record, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return Record{}, fmt.Errorf("create masters dir: %w", err)
	}

	prov.ID = uuid.NewString()
	prov.Type = typ
	prov.Key = key
	prov.CreatedAt = time.Now().UTC()
	prov.Version = s.version

	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	prov.Checksum = checksum(data)
	out, err := json.MarshalIndent(envelope{Provenance: prov, Data: data}, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s envelope: %w", typ, err)
	}

	path := filepath.Join(s.dir, FileName(typ, key))
	// Atomic write: a crashed run never leaves a truncated master behind.
	if err := renameio.WriteFile(path, out, 0o640); err != nil {
		return Record{}, fmt.Errorf("write master %s: %w", path, err)
	}

	rec := Record{Provenance: prov, Path: path}
	if err := s.index.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("index master %s: %w", path, err)
	}

	s.logger.Info().
		Str("event", "masters.saved").
		Str("type", string(typ)).
		Str("key", key).
		Str("path", path).
		Int("inputs", len(prov.Inputs)).
		Msg("master frame saved")
	return rec, nil
}

// Load reads a previously saved master into out. It returns ErrNotFound when
// reuse is disabled, the index has no entry, or the file is gone.
func (s *Store) Load(ctx context.Context, typ Type, key string, out any) (Record, error) {
	if !s.reuse {
		return Record{}, fmt.Errorf("%w: reuse disabled (%s %s)", ErrNotFound, typ, key)
	}

	rec, err := s.index.Get(ctx, typ, key)
	if err != nil {
		return Record{}, err
	}

	// #nosec G304 -- paths come from the store's own index
	data, err := os.ReadFile(rec.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s indexed but missing on disk", ErrNotFound, rec.Path)
		}
		return Record{}, fmt.Errorf("read master %s: %w", rec.Path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Record{}, fmt.Errorf("parse master %s: %w", rec.Path, err)
	}
	if env.Provenance.Checksum != "" && env.Provenance.Checksum != checksum(env.Data) {
		return Record{}, fmt.Errorf("master %s: payload checksum mismatch", rec.Path)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return Record{}, fmt.Errorf("parse master %s payload: %w", rec.Path, err)
		}
	}

	s.logger.Info().
		Str("event", "masters.reused").
		Str("type", string(typ)).
		Str("key", key).
		Str("path", rec.Path).
		Msg("reusing existing master frame")
	return rec, nil
}

// List returns all indexed masters.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	return s.index.List(ctx)
}

// Close releases the underlying index.
func (s *Store) Close() error {
	return s.index.Close()
}
