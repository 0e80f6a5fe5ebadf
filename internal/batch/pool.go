// Package batch exports every image in a directory with a profile.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/manifest"
	"github.com/AnyUserName/webx/internal/metrics"
	"github.com/AnyUserName/webx/internal/pipeline"
	"github.com/AnyUserName/webx/internal/profile"
)

// Config holds all parameters for a batch run.
type Config struct {
	InputDir      string
	OutputDir     string
	Profile       profile.Profile
	Workers       int
	Crop          *pipeline.Rect // in source coordinates, applied to every width
	NoRegressSize bool           // skip variants larger than the source
	Resample      string

	Backend *backend.Memory
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Runner orchestrates a batch export.
type Runner struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a configured runner.
func New(cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Backend == nil {
		cfg.Backend = backend.NewMemory(backend.WithLogger(cfg.Logger))
	}
	return &Runner{cfg: cfg, logger: cfg.Logger}
}

// Run exports every source and returns the manifest. Individual failures
// are logged; the run fails only if every source failed or ctx ended.
func (r *Runner) Run(ctx context.Context) (*manifest.Manifest, error) {
	sources, err := ScanImages(r.cfg.InputDir, r.cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no images found in %s", r.cfg.InputDir)
	}
	r.logger.Info("batch start",
		zap.Int("images", len(sources)), zap.Int("workers", r.cfg.Workers), zap.String("profile", r.cfg.Profile.Name))

	results := make([]processResult, len(sources))
	var wg sync.WaitGroup
	sem := make(chan struct{}, r.cfg.Workers)

	for i, src := range sources {
		wg.Add(1)
		go func(idx int, s Source) {
			defer wg.Done()
			select {
			case sem <- struct{}{}: // acquire
			case <-ctx.Done():
				results[idx] = processResult{key: s.Key, err: ctx.Err()}
				return
			}
			defer func() { <-sem }() // release

			r.logger.Debug("processing", zap.String("asset", s.Key))
			results[idx] = r.processImage(s)
			if results[idx].err == nil {
				r.logger.Debug("done", zap.String("asset", s.Key), zap.Int("variants", len(results[idx].asset.Variants)))
			}
		}(i, src)
	}
	wg.Wait()

	m := manifest.New(r.cfg.Profile.Name)
	var errs []error
	skipped := 0
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		m.Assets[res.key] = res.asset
		skipped += res.skippedRegress
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		for _, e := range errs {
			r.logger.Error("export failed", zap.Error(e))
		}
		if len(errs) == len(sources) {
			return nil, fmt.Errorf("all %d images failed: %w", len(errs), errors.Join(errs...))
		}
		r.logger.Warn("partial failure", zap.Int("failed", len(errs)), zap.Int("total", len(sources)))
	}
	if skipped > 0 {
		r.logger.Info("skipped variants larger than source", zap.Int("count", skipped))
	}

	m.BuildInfo = &manifest.BuildInfo{Workers: r.cfg.Workers, Resample: r.cfg.Resample}
	m.Stats.Failed = len(errs)
	m.ComputeStats()
	return m, nil
}
