package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
cloud:
  base_url: https://api.example.test
devices:
  - id: hum1
    model: humidifier-v1
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := cfg.Poll.Interval.Duration(); got != 30*time.Second {
		t.Errorf("poll interval = %v, want 30s", got)
	}
	if cfg.Control.DecreaseThreshold <= cfg.Control.IncreaseThreshold {
		t.Errorf("decrease threshold %v should be wider than increase %v",
			cfg.Control.DecreaseThreshold, cfg.Control.IncreaseThreshold)
	}
	if got := cfg.Debounce.Window.Duration(); got != 500*time.Millisecond {
		t.Errorf("debounce window = %v, want 500ms", got)
	}
	if cfg.Devices[0].Name != "hum1" {
		t.Errorf("device name should default to id, got %q", cfg.Devices[0].Name)
	}
	if cfg.EventBus.Workers != 4 || cfg.EventBus.QueueSize != 256 {
		t.Errorf("unexpected eventbus defaults: %+v", cfg.EventBus)
	}
}

func TestParse_Overrides(t *testing.T) {
	data := minimal + `
poll:
  interval: 10s
control:
  enabled: true
  increase_threshold: 2
  decrease_threshold: 4
  manual_cooldown: 1h
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Control.Enabled {
		t.Error("control should be enabled")
	}
	if got := cfg.Control.ManualCooldown.Duration(); got != time.Hour {
		t.Errorf("manual cooldown = %v, want 1h", got)
	}
	if got := cfg.Poll.Interval.Duration(); got != 10*time.Second {
		t.Errorf("poll interval = %v, want 10s", got)
	}
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no base url",
			yaml:    "devices:\n  - id: a\n    model: purifier-small\n",
			wantErr: "cloud.base_url",
		},
		{
			name:    "no devices",
			yaml:    "cloud:\n  base_url: http://x\n",
			wantErr: "at least one device",
		},
		{
			name:    "duplicate id",
			yaml:    "cloud:\n  base_url: http://x\ndevices:\n  - id: a\n    model: purifier-small\n  - id: a\n    model: purifier-small\n",
			wantErr: `duplicate id "a"`,
		},
		{
			name:    "empty id",
			yaml:    "cloud:\n  base_url: http://x\ndevices:\n  - model: purifier-small\n",
			wantErr: "id is required",
		},
		{
			name:    "unknown model",
			yaml:    "cloud:\n  base_url: http://x\ndevices:\n  - id: a\n    model: toaster\n",
			wantErr: `unknown device model "toaster"`,
		},
		{
			name:    "narrow decrease band",
			yaml:    minimal + "control:\n  increase_threshold: 6\n  decrease_threshold: 2\n",
			wantErr: "decrease_threshold",
		},
		{
			name:    "equal thresholds",
			yaml:    minimal + "control:\n  increase_threshold: 4\n  decrease_threshold: 4\n",
			wantErr: "decrease_threshold must be wider",
		},
		{
			name:    "bad duration",
			yaml:    minimal + "poll:\n  interval: soon\n",
			wantErr: "failed to parse config",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("AIRD_TEST_TOKEN", "secret")

	tests := []struct {
		in   string
		want string
	}{
		{"token: ${AIRD_TEST_TOKEN}", "token: secret"},
		{"token: ${AIRD_TEST_TOKEN:fallback}", "token: secret"},
		{"token: ${AIRD_TEST_MISSING:fallback}", "token: fallback"},
		{"token: ${AIRD_TEST_MISSING}", "token: "},
		{"token: plain", "token: plain"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("AIRD_TEST_BASE", "https://cloud.example.test")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Replace(minimal, "https://api.example.test", "${AIRD_TEST_BASE}", 1)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cloud.BaseURL != "https://cloud.example.test" {
		t.Errorf("base url = %q", cfg.Cloud.BaseURL)
	}
	if ids := cfg.DeviceIDs(); len(ids) != 1 || ids[0] != "hum1" {
		t.Errorf("DeviceIDs = %v", ids)
	}
	if _, ok := cfg.Device("hum1"); !ok {
		t.Error("Device(hum1) not found")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
