// SPDX-License-Identifier: MIT

package qa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/specdr/specdr/internal/config"
	"github.com/specdr/specdr/internal/masters"
	"github.com/specdr/specdr/internal/pipeline"
)

func testState(t *testing.T) (*State, string, string) {
	t.Helper()
	root := t.TempDir()
	sciDir := filepath.Join(root, "Science")
	qaDir := filepath.Join(root, "QA")
	require.NoError(t, os.MkdirAll(sciDir, 0o750))
	require.NoError(t, os.MkdirAll(qaDir, 0o750))
	return NewState(sciDir, qaDir, nil), sciDir, qaDir
}

func testServer(t *testing.T, state *State) *httptest.Server {
	t.Helper()
	srv := NewServer(config.QAConfig{}, state, prometheus.NewRegistry(), "test")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url) // #nosec G107 -- test server URL
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthz(t *testing.T) {
	state, _, _ := testState(t)
	ts := testServer(t, state)

	var body map[string]string
	resp := getJSON(t, ts.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestStatusReflectsOutputs(t *testing.T) {
	state, sciDir, qaDir := testState(t)

	sum := pipeline.Summary{Instrument: "shane_kast_blue", Setup: "A"}
	data, err := json.Marshal(sum)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(qaDir, SummaryFile), data, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(sciDir, "spec1d_a_A_det01.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(sciDir, "notes.txt"), []byte("x"), 0o600))

	require.NoError(t, state.Refresh(context.Background()))
	ts := testServer(t, state)

	var snap Snapshot
	getJSON(t, ts.URL+"/api/status", &snap)
	require.NotNil(t, snap.Summary)
	assert.Equal(t, "shane_kast_blue", snap.Summary.Instrument)
	assert.Equal(t, []string{"spec1d_a_A_det01.json"}, snap.Spectra)

	var spectra []string
	getJSON(t, ts.URL+"/api/spectra", &spectra)
	assert.Equal(t, snap.Spectra, spectra)
}

func TestMastersEndpoint(t *testing.T) {
	root := t.TempDir()
	store := masters.NewStore(filepath.Join(root, "Masters"), false, "test", masters.NewMemoryIndex())
	defer store.Close()

	_, err := store.Save(context.Background(), masters.TypeBias, "A_01",
		masters.Provenance{Instrument: "synth", Setup: "A", Detector: 1}, map[string]int{"n": 1})
	require.NoError(t, err)

	state := NewState(filepath.Join(root, "Science"), filepath.Join(root, "QA"), store)
	require.NoError(t, state.Refresh(context.Background()))
	ts := testServer(t, state)

	var recs []masters.Record
	getJSON(t, ts.URL+"/api/masters", &recs)
	require.Len(t, recs, 1)
	assert.Equal(t, masters.TypeBias, recs[0].Type)
	assert.Equal(t, "A_01", recs[0].Key)
}

func TestMetricsEndpoint(t *testing.T) {
	state, _, _ := testState(t)
	reg := prometheus.NewRegistry()
	pipeline.NewMetrics(reg)

	srv := NewServer(config.QAConfig{}, state, reg, "test")
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := getJSON(t, ts.URL+"/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWatchRefreshes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	state, sciDir, _ := testState(t)
	require.NoError(t, state.Refresh(context.Background()))
	assert.Empty(t, state.Snapshot().Spectra)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, state.Watch(ctx))
	defer state.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(sciDir, "spec1d_new.json"), []byte("{}"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		if len(state.Snapshot().Spectra) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("snapshot was not refreshed after directory change")
		case <-time.After(50 * time.Millisecond):
		}
	}
}
