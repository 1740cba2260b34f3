package batch

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HugoSmits86/nativewebp"

	"pmx-pose-renderer/internal/logging"
	"pmx-pose-renderer/internal/model"
	"pmx-pose-renderer/internal/pmx"
	"pmx-pose-renderer/internal/postprocess"
	"pmx-pose-renderer/internal/raster"
	"pmx-pose-renderer/internal/texture"
)

// Config holds all shared resources for a morph sheet run.
type Config struct {
	OutputDir   string
	Size        int
	Supersample int
	Workers     int
	Yaw, Pitch  float64 // degrees
	FillRatio   float64
	Textures    *texture.Store // nil renders untextured
	Options     []model.Option
}

// Job renders one morph at full weight.
type Job struct {
	Morph pmx.Index
	Name  string
	Image string // path relative to OutputDir
}

// Result holds the outcome of processing one job.
type Result struct {
	Job
	Success bool
	Error   string
}

// Jobs lists one job per morph of data.
func Jobs(data *pmx.Model) []Job {
	jobs := make([]Job, len(data.Morphs))
	for i := range data.Morphs {
		jobs[i] = Job{
			Morph: pmx.Index(i),
			Name:  data.Morphs[i].Name,
			Image: fmt.Sprintf("%03d.webp", i),
		}
	}
	return jobs
}

// Run processes all jobs using a worker pool. Every worker poses its own
// Model over the shared parse result.
func Run(cfg Config, data *pmx.Model, jobs []Job) []Result {
	total := len(jobs)
	results := make([]Result, total)
	var processed atomic.Int64
	workers := max(cfg.Workers, 1)

	var textures []*image.NRGBA
	if cfg.Textures != nil {
		set := cfg.Textures.AcquireAll(data.Textures)
		defer set.Release()
		textures = set.Images()
	}

	start := time.Now()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if p := processed.Load(); p > 0 {
					rate := float64(p) / time.Since(start).Seconds()
					logging.Info("morph sheet progress", "done", p, "total", total, "per_sec", fmt.Sprintf("%.1f", rate))
				}
			}
		}
	}()

	jobChan := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobChan {
				results[idx] = processJob(cfg, data, textures, jobs[idx])
				processed.Add(1)
			}
		}()
	}

	for i := range jobs {
		jobChan <- i
	}
	close(jobChan)

	wg.Wait()
	close(done)

	return results
}

func processJob(cfg Config, data *pmx.Model, textures []*image.NRGBA, job Job) Result {
	fail := func(err error) Result {
		logging.Warn("morph render failed", "morph", job.Name, "error", err)
		return Result{Job: job, Error: err.Error()}
	}

	m, err := model.New(data, cfg.Options...)
	if err != nil {
		return fail(err)
	}
	if err := m.ApplyMorphIndex(job.Morph, 1); err != nil {
		return fail(err)
	}
	m.Update(0)

	img := Render(m, textures, cfg)
	if err := WriteWebP(filepath.Join(cfg.OutputDir, job.Image), img); err != nil {
		return fail(err)
	}
	return Result{Job: job, Success: true}
}

// Render draws the current pose of m with cfg's camera, downsamples and
// centers it in a Size square.
func Render(m *model.Model, textures []*image.NRGBA, cfg Config) *image.NRGBA {
	img := raster.RenderModel(raster.BuildScene(m, textures, cfg.Yaw, cfg.Pitch), cfg.Size, cfg.Supersample)
	if cfg.Supersample > 1 {
		img = postprocess.Downsample(img, cfg.Size)
	}
	if cfg.FillRatio > 0 {
		img = postprocess.CropAndCenter(img, cfg.Size, cfg.FillRatio)
	}
	return img
}

// WriteWebP encodes img losslessly to path, creating parent directories.
func WriteWebP(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := nativewebp.Encode(f, img, nil); err != nil {
		f.Close()
		return fmt.Errorf("webp encode: %w", err)
	}
	return f.Close()
}
