package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/aird/internal/command"
	"github.com/dokzlo13/aird/internal/config"
	"github.com/dokzlo13/aird/internal/device"
	"github.com/dokzlo13/aird/internal/ledger"
)

// fakeCloud serves one humidifier and accepts every write.
func fakeCloud(t *testing.T, pulls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/devices/state", func(w http.ResponseWriter, r *http.Request) {
		pulls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"devices": []map[string]any{{
				"id": "hum1",
				"state": map[string]any{
					"standby":         false,
					"night_mode":      false,
					"auto_mode":       false,
					"target_humidity": 50,
					"fan_speed":       2,
				},
				"sensors": map[string]float64{"humidity": 44},
			}},
		})
	})
	mux.HandleFunc("PUT /v1/devices/{id}/attributes/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
cloud:
  base_url: ` + baseURL + `
  rate_limit_rps: 100
poll:
  interval: 1h
ledger:
  enabled: true
devices:
  - id: hum1
    name: Bedroom
    model: humidifier-v1
`))
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "aird.sqlite")
	return cfg
}

func TestApp_PollBindsAndWritesAreAudited(t *testing.T) {
	var pulls atomic.Int32
	srv := fakeCloud(t, &pulls)
	cfg := testConfig(t, srv.URL)

	application, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, Status{Configured: 1, Ledger: true}, application.Status())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, application.Start(ctx))
	defer func() { _ = application.Stop() }()

	svc := application.Services()
	require.Eventually(t, svc.Registry.Ready, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, pulls.Load(), int32(1))
	assert.Equal(t, Status{Configured: 1, Bound: 1, Ready: true, Ledger: true}, application.Status())

	hum, ok := svc.Registry.Get("hum1")
	require.True(t, ok)
	assert.Equal(t, "Bedroom", hum.Name())
	require.NotNil(t, hum.HumidityControl())
	assert.False(t, hum.HumidityControl().Enabled())

	res, err := hum.SetAttribute(ctx, device.KeyNightMode, device.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, command.Applied, res.Outcome)
	assert.True(t, hum.Snapshot().Bool(device.KeyNightMode))

	var entries []*ledger.Entry
	require.Eventually(t, func() bool {
		entries, err = svc.Ledger.ByDevice("hum1", 10)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, ledger.EntryCommandApplied, entries[0].Type)
	assert.Equal(t, "night_mode", entries[0].Attribute)
	assert.Equal(t, "manual", entries[0].Origin)

	require.NoError(t, application.ResetLedger())
	entries, err = svc.Ledger.ByDevice("hum1", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewServices_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing", "dir", "aird.sqlite")

	_, err := NewServices(cfg)
	assert.Error(t, err)
}
