// SPDX-License-Identifier: MIT

package masters

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type biasPayload struct {
	Level  float64 `json:"level"`
	Frames int     `json:"frames"`
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewStore(dir, true, "test", NewMemoryIndex())
	defer store.Close()

	key := Key("A", 1)
	prov := Provenance{
		Instrument: "shane_kast_blue",
		Setup:      "A",
		Detector:   1,
		Inputs:     []string{"raw/b0001.fits", "raw/b0002.fits"},
	}

	rec, err := store.Save(ctx, TypeBias, key, prov, biasPayload{Level: 1042.5, Frames: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Equal(t, "test", rec.Version)
	assert.Equal(t, filepath.Join(dir, "MasterBias_A_01.json"), rec.Path)
	assert.FileExists(t, rec.Path)

	var got biasPayload
	loaded, err := store.Load(ctx, TypeBias, key, &got)
	require.NoError(t, err)
	assert.Equal(t, biasPayload{Level: 1042.5, Frames: 2}, got)
	assert.Equal(t, rec.ID, loaded.ID)
	assert.Equal(t, []string{"raw/b0001.fits", "raw/b0002.fits"}, loaded.Inputs)
	assert.Len(t, rec.Checksum, 64)
}

func TestLoadRejectsCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir(), true, "test", NewMemoryIndex())
	defer store.Close()

	rec, err := store.Save(ctx, TypeBias, Key("A", 1), Provenance{}, biasPayload{Level: 1042.5})
	require.NoError(t, err)

	data, err := os.ReadFile(rec.Path)
	require.NoError(t, err)
	tampered := bytes.Replace(data, []byte("1042.5"), []byte("9042.5"), 1)
	require.NotEqual(t, data, tampered)
	require.NoError(t, os.WriteFile(rec.Path, tampered, 0o600))

	_, err = store.Load(ctx, TypeBias, Key("A", 1), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestLoadWithReuseDisabled(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir(), false, "test", NewMemoryIndex())
	defer store.Close()

	_, err := store.Save(ctx, TypeArc, Key("A", 1), Provenance{}, biasPayload{})
	require.NoError(t, err)

	_, err = store.Load(ctx, TypeArc, Key("A", 1), nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadMissing(t *testing.T) {
	store := NewStore(t.TempDir(), true, "test", NewMemoryIndex())
	defer store.Close()

	_, err := store.Load(context.Background(), TypeTilts, Key("B", 2), nil)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadIndexedButDeleted(t *testing.T) {
	ctx := context.Background()
	store := NewStore(t.TempDir(), true, "test", NewMemoryIndex())
	defer store.Close()

	rec, err := store.Save(ctx, TypeFlat, Key("A", 1), Provenance{}, biasPayload{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(rec.Path))

	_, err = store.Load(ctx, TypeFlat, Key("A", 1), nil)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "missing on disk")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "MasterWaveCalib_A_03.json", FileName(TypeWaveCalib, Key("A", 3)))
}

func TestSQLiteIndex(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "index.db")

	idx, err := OpenSQLiteIndex(dbPath)
	require.NoError(t, err)

	rec := Record{
		Provenance: Provenance{
			ID:         "id-1",
			Type:       TypeBias,
			Key:        "A_01",
			Instrument: "keck_lris_red",
			Setup:      "A",
			Detector:   1,
			Inputs:     []string{"a.fits"},
			Version:    "test",
		},
		Path: "/tmp/MasterBias_A_01.json",
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	require.NoError(t, idx.Put(ctx, rec))

	// Upsert replaces on the same (type, key).
	rec.ID = "id-2"
	rec.Inputs = []string{"a.fits", "b.fits"}
	require.NoError(t, idx.Put(ctx, rec))

	got, err := idx.Get(ctx, TypeBias, "A_01")
	require.NoError(t, err)
	assert.Equal(t, "id-2", got.ID)
	assert.Equal(t, []string{"a.fits", "b.fits"}, got.Inputs)

	_, err = idx.Get(ctx, TypeArc, "A_01")
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, idx.Close())

	// The inventory survives reopening.
	idx2, err := OpenSQLiteIndex(dbPath)
	require.NoError(t, err)
	defer idx2.Close()

	recs, err := idx2.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, TypeBias, recs[0].Type)
}

func TestNewIndex(t *testing.T) {
	idx, err := NewIndex("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, idx)

	_, err = NewIndex("redis", "")
	assert.Error(t, err)
}
