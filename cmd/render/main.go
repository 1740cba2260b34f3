// Command render poses a PMX model and writes WebP previews.
package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-gl/mathgl/mgl32"

	"pmx-pose-renderer/internal/batch"
	"pmx-pose-renderer/internal/config"
	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/mathutil"
	"pmx-pose-renderer/internal/model"
	"pmx-pose-renderer/internal/texture"
)

// CLI defines the command-line interface using Kong
var CLI struct {
	Config    string `name:"config" short:"c" help:"YAML config file" type:"path"`
	LogLevel  string `name:"log-level" help:"debug, info, warn or error"`
	LogFormat string `name:"log-format" help:"text or json"`

	Pose  PoseCmd  `cmd:"" help:"Render one pose of a model"`
	Sheet SheetCmd `cmd:"" help:"Render one image per morph plus a manifest"`
}

type renderFlags struct {
	Size        int      `name:"size" help:"Output image size in pixels"`
	Supersample int      `name:"supersample" help:"Supersampling factor"`
	Yaw         *float64 `name:"yaw" help:"Camera yaw in degrees"`
	Pitch       *float64 `name:"pitch" help:"Camera pitch in degrees"`
}

// PoseCmd renders a single pose.
type PoseCmd struct {
	Render renderFlags        `embed:""`
	Model  string             `name:"model" short:"m" required:"" type:"existingfile" help:"PMX file (.pmx or .pmx.xz)"`
	Morph  map[string]float32 `name:"morph" help:"Morph weight as name=w (repeatable)"`
	Bone   []string           `name:"bone" sep:"none" help:"Bone translation as name=x,y,z (repeatable)"`
	Rotate []string           `name:"rotate" sep:"none" help:"Bone rotation in degrees as name=x,y,z (repeatable)"`
	Frames int                `name:"frames" default:"1" help:"Number of 30 fps frames to simulate"`
	Out    string             `name:"out" short:"o" default:"pose.webp" type:"path" help:"Output WebP file"`
}

func (p *PoseCmd) Run() error {
	cfg, err := loadConfig(p.Render, "", 0)
	if err != nil {
		return err
	}

	loader := model.NewLoader(model.WithIKOverrides(cfg.IKLimits()))
	m, err := loader.Load(context.Background(), p.Model)
	if err != nil {
		return err
	}

	for name, w := range p.Morph {
		if err := m.ApplyMorph(name, w); err != nil {
			return err
		}
	}
	for _, s := range p.Bone {
		name, v, err := parseAssign(s)
		if err != nil {
			return err
		}
		b, err := m.GetBoneByName(name)
		if err != nil {
			return err
		}
		b.SetTranslation(v)
	}
	for _, s := range p.Rotate {
		name, v, err := parseAssign(s)
		if err != nil {
			return err
		}
		b, err := m.GetBoneByName(name)
		if err != nil {
			return err
		}
		b.SetRotation(mathutil.QuatXYZ(v.Mul(mgl32.DegToRad(1))))
	}

	for i := 0; i < max(p.Frames, 1); i++ {
		m.Update(1.0 / 30)
	}

	store := texture.NewStore(texture.BuildIndex(filepath.Dir(p.Model)))
	set := store.AcquireAll(m.Data().Textures)
	defer set.Release()

	img := batch.Render(m, set.Images(), batchConfig(cfg))
	if err := batch.WriteWebP(p.Out, img); err != nil {
		return err
	}
	logging.Info("pose rendered", "out", p.Out, "frames", max(p.Frames, 1))
	return nil
}

// SheetCmd renders every morph of a model.
type SheetCmd struct {
	Render  renderFlags `embed:""`
	Model   string      `name:"model" short:"m" required:"" type:"existingfile" help:"PMX file (.pmx or .pmx.xz)"`
	Out     string      `name:"out" short:"o" type:"path" help:"Output directory"`
	Workers int         `name:"workers" help:"Number of worker goroutines (default: NumCPU)"`
}

func (s *SheetCmd) Run() error {
	cfg, err := loadConfig(s.Render, s.Out, s.Workers)
	if err != nil {
		return err
	}

	loader := model.NewLoader()
	raw, err := model.ReadFile(s.Model)
	if err != nil {
		return err
	}
	data, err := loader.Parse(context.Background(), raw)
	if err != nil {
		return err
	}

	bc := batchConfig(cfg)
	bc.OutputDir = cfg.OutputDir
	bc.Workers = cfg.Workers
	bc.Textures = texture.NewStore(texture.BuildIndex(filepath.Dir(s.Model)))
	bc.Options = []model.Option{model.WithIKOverrides(cfg.IKLimits())}

	jobs := batch.Jobs(data)
	logging.Info("morph sheet", "model", data.Name, "morphs", len(jobs), "workers", bc.Workers, "output", bc.OutputDir)

	start := time.Now()
	results := batch.Run(bc, data, jobs)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	logging.Info("morph sheet done", "rendered", len(results)-failed, "failed", failed, "elapsed", time.Since(start).Round(time.Millisecond))

	manifest := filepath.Join(cfg.OutputDir, "manifest.json")
	if err := batch.WriteManifest(manifest, data, results); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d morphs failed", failed, len(results))
	}
	return nil
}

func loadConfig(rf renderFlags, outputDir string, workers int) (config.Config, error) {
	cfg := config.Default()
	if CLI.Config != "" {
		var err error
		if cfg, err = config.Load(CLI.Config); err != nil {
			return cfg, err
		}
	}
	cfg.Resolve(config.Flags{
		OutputDir:   outputDir,
		Size:        rf.Size,
		Supersample: rf.Supersample,
		Workers:     workers,
		Yaw:         rf.Yaw,
		Pitch:       rf.Pitch,
		LogLevel:    CLI.LogLevel,
		LogFormat:   CLI.LogFormat,
	})
	return cfg, cfg.InitLogging()
}

func batchConfig(cfg config.Config) batch.Config {
	return batch.Config{
		Size:        cfg.RenderSize,
		Supersample: cfg.Supersample,
		Yaw:         cfg.Yaw,
		Pitch:       cfg.Pitch,
		FillRatio:   cfg.FillRatio,
	}
}

// parseAssign splits "name=x,y,z".
func parseAssign(s string) (string, mgl32.Vec3, error) {
	name, vals, ok := strings.Cut(s, "=")
	parts := strings.Split(vals, ",")
	if !ok || name == "" || len(parts) != 3 {
		return "", mgl32.Vec3{}, fmt.Errorf("want name=x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return "", mgl32.Vec3{}, fmt.Errorf("%q: %w", s, err)
		}
		v[i] = float32(f)
	}
	return name, v, nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("render"),
		kong.Description("Pose PMX models and render WebP previews"),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
