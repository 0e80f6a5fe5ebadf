package batch

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/encoder"
	"github.com/AnyUserName/webx/internal/hasher"
	"github.com/AnyUserName/webx/internal/manifest"
	"github.com/AnyUserName/webx/internal/pipeline"
)

// processResult holds the result of exporting a single source image.
type processResult struct {
	key            string
	asset          manifest.Asset
	err            error
	skippedRegress int // variants skipped because larger than the source
}

// processImage loads one source and saves every width and encoder of the
// profile through its own pipeline.
func (r *Runner) processImage(src Source) processResult {
	result := processResult{key: src.Key}
	b := r.cfg.Backend

	img, err := b.Load(src.AbsPath)
	if err != nil {
		result.err = fmt.Errorf("load %s: %w", src.RelPath, err)
		return result
	}
	defer b.Delete(img)

	srcHash, _, err := hasher.FileHash(src.AbsPath, hasher.HexLen)
	if err != nil {
		result.err = err
		return result
	}

	origW, origH := b.Dimensions(img)
	layers := b.Layers(img)
	hasAlpha := false
	for _, l := range layers {
		hasAlpha = hasAlpha || b.HasAlpha(l)
	}
	result.asset = manifest.Asset{
		Original: manifest.OriginalInfo{
			Width:    origW,
			Height:   origH,
			Format:   src.Format,
			Size:     src.Size,
			HasAlpha: hasAlpha,
			Layers:   len(layers),
		},
		SourceHash:  srcHash,
		AspectRatio: float64(origW) / float64(origH),
	}
	if c := r.cfg.Crop; c != nil {
		result.asset.Crop = &manifest.Rect{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
	}

	keyDir := path.Dir(src.Key)
	if err := os.MkdirAll(filepath.Join(r.cfg.OutputDir, filepath.FromSlash(keyDir)), 0o755); err != nil {
		result.err = fmt.Errorf("mkdir: %w", err)
		return result
	}

	for _, w := range r.cfg.Profile.EffectiveWidths(origW) {
		h := max(int(float64(origH)*float64(w)/float64(origW)), 1)
		if err := r.exportWidth(img, src, keyDir, w, h, &result); err != nil {
			result.err = err
			return result
		}
	}
	return result
}

func (r *Runner) exportWidth(img *backend.Image, src Source, keyDir string, w, h int, result *processResult) error {
	p, err := pipeline.New(pipeline.Config{
		Backend: r.cfg.Backend,
		Source:  img,
		Logger:  r.logger.With(zap.String("asset", src.Key)),
		Metrics: r.cfg.Metrics,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", src.RelPath, err)
	}
	defer p.Close()

	// Crop is given in source coordinates; Resize carries it to the new size.
	if c := r.cfg.Crop; c != nil {
		p.Crop(c.Width, c.Height, c.X, c.Y, true)
	}
	p.Resize(w, h)

	encs, err := r.cfg.Profile.Encoders()
	if err != nil {
		return err
	}
	for _, enc := range encs {
		v, err := r.saveVariant(p, enc, src, keyDir, w, h)
		if err != nil {
			r.logger.Warn("export failed",
				zap.String("asset", src.Key), zap.Int("width", w), zap.String("encoder", enc.Name()), zap.Error(err))
			continue
		}
		if r.cfg.NoRegressSize && v.Size >= src.Size {
			r.logger.Debug("skip variant larger than source",
				zap.String("asset", src.Key), zap.Int("width", w), zap.String("encoder", enc.Name()),
				zap.Int64("bytes", v.Size), zap.Int64("source_bytes", src.Size))
			os.Remove(filepath.Join(r.cfg.OutputDir, filepath.FromSlash(v.Path)))
			result.skippedRegress++
			continue
		}
		result.asset.Variants = append(result.asset.Variants, v)
	}
	return nil
}

// saveVariant writes one encoder's output under a content-addressed name:
// key.width.hash.ext
func (r *Runner) saveVariant(p *pipeline.Pipeline, enc encoder.Encoder, src Source, keyDir string, w, h int) (manifest.Variant, error) {
	dir := filepath.Join(r.cfg.OutputDir, filepath.FromSlash(keyDir))
	tmp, err := os.CreateTemp(dir, ".webx-*."+enc.Extension())
	if err != nil {
		return manifest.Variant{}, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	p.SetEncoder(enc)
	if err := p.SaveToFile(tmpPath); err != nil {
		return manifest.Variant{}, err
	}
	hash, size, err := hasher.FileHash(tmpPath, hasher.HexLen)
	if err != nil {
		return manifest.Variant{}, err
	}

	name := fmt.Sprintf("%s.%d.%s.%s", path.Base(src.Key), w, hash[:8], enc.Extension())
	rel := path.Join(keyDir, name)
	if err := os.Rename(tmpPath, filepath.Join(r.cfg.OutputDir, filepath.FromSlash(rel))); err != nil {
		return manifest.Variant{}, fmt.Errorf("rename %s: %w", rel, err)
	}

	out := p.CropRect()
	return manifest.Variant{
		Encoder:      enc.Name(),
		Width:        w,
		Height:       h,
		OutputWidth:  out.Width,
		OutputHeight: out.Height,
		Size:         size,
		Hash:         hash,
		Path:         rel,
	}, nil
}
