package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/skeleton"
	"pmx-pose-renderer/internal/viewmatrix"
)

// Config holds render settings, logging and IK tuning.
type Config struct {
	OutputDir string `yaml:"output_dir"`

	// Render settings
	RenderSize  int     `yaml:"render_size"`
	Supersample int     `yaml:"supersample"`
	FillRatio   float64 `yaml:"fill_ratio"`
	Workers     int     `yaml:"workers"`
	Yaw         float64 `yaml:"yaw"`
	Pitch       float64 `yaml:"pitch"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// IKOverrides are per-bone link limits in degrees, keyed by bone name.
	IKOverrides         map[string]Limit `yaml:"ik_overrides"`
	DisableKneeOverride bool             `yaml:"disable_knee_override"`
}

// Limit is an IK link angle range in degrees.
type Limit struct {
	Lower [3]float32 `yaml:"lower"`
	Upper [3]float32 `yaml:"upper"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Pitch: viewmatrix.DefaultPitch,
		Yaw:   viewmatrix.DefaultYaw,
	}
}

// Load reads a YAML config file. Fields not set in the file keep their
// Default values; unknown keys are an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags holds CLI flag values that override config file settings. Nil
// pointers and zero values leave the file setting alone.
type Flags struct {
	OutputDir   string
	Size        int
	Supersample int
	Workers     int
	Yaw         *float64
	Pitch       *float64
	LogLevel    string
	LogFormat   string
}

// Resolve applies flags over the file values and fills defaults.
func (c *Config) Resolve(flags Flags) {
	if flags.OutputDir != "" {
		c.OutputDir = flags.OutputDir
	}
	if flags.Size > 0 {
		c.RenderSize = flags.Size
	}
	if flags.Supersample > 0 {
		c.Supersample = flags.Supersample
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.Yaw != nil {
		c.Yaw = *flags.Yaw
	}
	if flags.Pitch != nil {
		c.Pitch = *flags.Pitch
	}
	if flags.LogLevel != "" {
		c.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		c.LogFormat = flags.LogFormat
	}

	if c.OutputDir == "" {
		c.OutputDir = "renders"
	}
	if c.RenderSize <= 0 {
		c.RenderSize = 512
	}
	if c.Supersample <= 0 {
		c.Supersample = 2
	}
	if c.FillRatio <= 0 || c.FillRatio > 1 {
		c.FillRatio = 0.9
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// InitLogging installs the global logger described by LogLevel and LogFormat.
func (c *Config) InitLogging() error {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.LogFormat)
	if err != nil {
		return err
	}
	logging.Init(level, format)
	return nil
}

// IKLimits returns the link limit table for skeleton construction: the
// built-in knee limits unless disabled, then the configured overrides in
// radians.
func (c *Config) IKLimits() map[string]pmx.AngleLimit {
	out := make(map[string]pmx.AngleLimit)
	if !c.DisableKneeOverride {
		for name, lim := range skeleton.DefaultIKOverrides() {
			out[name] = lim
		}
	}
	for name, lim := range c.IKOverrides {
		out[name] = pmx.AngleLimit{Lower: degrees(lim.Lower), Upper: degrees(lim.Upper)}
	}
	return out
}

func degrees(v [3]float32) (r mgl32.Vec3) {
	for i := range v {
		r[i] = float32(mathutil.Deg2Rad(float64(v[i])))
	}
	return r
}
