package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"pmx-pose-renderer/internal/skeleton"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
render_size: 256
supersample: 3
yaw: 30
log_level: debug
ik_overrides:
  左足:
    lower: [-90, 0, 0]
    upper: [0, 0, 0]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RenderSize != 256 || cfg.Supersample != 3 || cfg.Yaw != 30 || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	// unset keys keep the defaults
	if cfg.Pitch != Default().Pitch {
		t.Errorf("pitch = %v", cfg.Pitch)
	}
	if lim, ok := cfg.IKOverrides["左足"]; !ok || lim.Lower[0] != -90 {
		t.Errorf("overrides = %v", cfg.IKOverrides)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "render_sise: 10\n"},
		{"bad type", "workers: many\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("no error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "none.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: %v", err)
	}
}

func TestLoadEmpty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pitch != Default().Pitch {
		t.Errorf("pitch = %v", cfg.Pitch)
	}
}

func TestResolve(t *testing.T) {
	yaw := 45.0
	zero := 0.0
	tests := []struct {
		name  string
		file  Config
		flags Flags
		check func(t *testing.T, c Config)
	}{
		{"defaults", Config{}, Flags{}, func(t *testing.T, c Config) {
			if c.RenderSize != 512 || c.Supersample != 2 || c.FillRatio != 0.9 || c.Workers <= 0 || c.OutputDir != "renders" {
				t.Errorf("cfg = %+v", c)
			}
		}},
		{"flags win", Config{RenderSize: 128, Workers: 2}, Flags{Size: 64, Workers: 8, Yaw: &yaw}, func(t *testing.T, c Config) {
			if c.RenderSize != 64 || c.Workers != 8 || c.Yaw != 45 {
				t.Errorf("cfg = %+v", c)
			}
		}},
		{"explicit zero pitch", Config{Pitch: -10}, Flags{Pitch: &zero}, func(t *testing.T, c Config) {
			if c.Pitch != 0 {
				t.Errorf("pitch = %v", c.Pitch)
			}
		}},
		{"file kept", Config{Supersample: 4, LogFormat: "json"}, Flags{}, func(t *testing.T, c Config) {
			if c.Supersample != 4 || c.LogFormat != "json" {
				t.Errorf("cfg = %+v", c)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.file
			c.Resolve(tt.flags)
			tt.check(t, c)
		})
	}
}

func TestIKLimits(t *testing.T) {
	c := Config{IKOverrides: map[string]Limit{"左足": {Lower: [3]float32{-90, 0, 0}}}}
	lim := c.IKLimits()
	if _, ok := lim[skeleton.KneeLeft]; !ok {
		t.Error("knee limit missing")
	}
	if got := lim["左足"].Lower[0]; math.Abs(float64(got)+math.Pi/2) > 1e-5 {
		t.Errorf("lower X = %v, want -pi/2", got)
	}

	c.DisableKneeOverride = true
	lim = c.IKLimits()
	if _, ok := lim[skeleton.KneeRight]; ok {
		t.Error("knee limit kept while disabled")
	}
	if len(lim) != 1 {
		t.Errorf("limits = %v", lim)
	}
}
