package rollout

import (
	"archive/zip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/strategy"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/transport"
	"github.com/vidaldiego/znvault-plugin-payara-sub001/pkg/types"
)

// newTestArchive writes a one-entry WAR to a temp file and returns its path.
func newTestArchive(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.war")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	w, err := zw.Create("x")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return path
}

// newFakeAgentFleet runs one minimal /deploy endpoint per key of fail; each
// succeeds unless fail[addr] is true.
func newFakeAgentFleet(t *testing.T, fail map[string]bool) map[string]*httptest.Server {
	t.Helper()
	servers := make(map[string]*httptest.Server)
	for addr := range fail {
		addr := addr
		servers[addr] = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/deploy" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			if fail[addr] {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"success": true, "filesChanged": 1})
		}))
	}
	return servers
}

func TestCoordinatorCanaryAbortsOnFirstBatchFailure(t *testing.T) {
	hosts := []types.HostDescriptor{{Address: "a"}, {Address: "b"}, {Address: "c"}}
	fail := map[string]bool{"a": true, "b": false, "c": false}
	servers := newFakeAgentFleet(t, fail)
	defer func() {
		for _, s := range servers {
			s.Close()
		}
	}()

	s, err := strategy.Parse("1+R")
	require.NoError(t, err)

	analyses := map[string]types.HostAnalysis{
		"a": {Host: hosts[0], Reachable: true, Diff: types.Diff{Changed: []string{"x"}}},
		"b": {Host: hosts[1], Reachable: true, Diff: types.Diff{Changed: []string{"x"}}},
		"c": {Host: hosts[2], Reachable: true, Diff: types.Diff{Changed: []string{"x"}}},
	}

	deployer := NewHostDeployer(newTestArchive(t), transport.DefaultConfig())

	coord := &Coordinator{
		Deployer: deployer,
		BaseURLFn: func(h types.HostDescriptor) string {
			return servers[h.Address].URL
		},
	}

	summary := coord.Run(context.Background(), hosts, s, analyses, types.RolloutOptions{})

	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, summary.FailedBatch)
	assert.Equal(t, types.HostFailed, summary.Results["a"].Outcome)
	assert.Equal(t, types.HostSkipped, summary.Results["b"].Outcome)
	assert.Equal(t, types.HostSkipped, summary.Results["c"].Outcome)
}

func TestCoordinatorSequentialContinuesPastFailure(t *testing.T) {
	hosts := []types.HostDescriptor{{Address: "a"}, {Address: "b"}}
	fail := map[string]bool{"a": true, "b": false}
	servers := newFakeAgentFleet(t, fail)
	defer func() {
		for _, s := range servers {
			s.Close()
		}
	}()

	s, err := strategy.Parse("sequential")
	require.NoError(t, err)

	analyses := map[string]types.HostAnalysis{
		"a": {Host: hosts[0], Reachable: true, Diff: types.Diff{Changed: []string{"x"}}},
		"b": {Host: hosts[1], Reachable: true, Diff: types.Diff{Changed: []string{"x"}}},
	}

	deployer := NewHostDeployer(newTestArchive(t), transport.DefaultConfig())

	coord := &Coordinator{
		Deployer: deployer,
		BaseURLFn: func(h types.HostDescriptor) string {
			return servers[h.Address].URL
		},
	}

	summary := coord.Run(context.Background(), hosts, s, analyses, types.RolloutOptions{})

	assert.False(t, summary.Aborted)
	assert.Equal(t, types.HostFailed, summary.Results["a"].Outcome)
	assert.Equal(t, types.HostSucceeded, summary.Results["b"].Outcome)
}
