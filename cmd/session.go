package cmd

import (
	"fmt"
	"image"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/config"
	"github.com/AnyUserName/webx/internal/encoder"
	"github.com/AnyUserName/webx/internal/metrics"
	"github.com/AnyUserName/webx/internal/pipeline"
	"github.com/AnyUserName/webx/internal/profile"
)

// session is one loaded source with its pipeline.
type session struct {
	cfg    *config.Session
	b      *backend.Memory
	source *backend.Image
	reg    *encoder.Registry
	p      *pipeline.Pipeline
}

type sessionOptions struct {
	metrics *metrics.Metrics
	delay   time.Duration // overrides cfg.Debounce when set
}

// openSession loads cfg.Source plus its overlay layers and builds a pipeline
// with the selected encoder and geometry applied.
func openSession(cfg *config.Session, opts sessionOptions) (*session, error) {
	filter, err := backend.ParseFilter(cfg.Resample)
	if err != nil {
		return nil, err
	}
	b := backend.NewMemory(backend.WithLogger(logger.Named("backend")), backend.WithFilter(filter))

	src, err := b.Load(cfg.Source)
	if err != nil {
		return nil, err
	}
	for _, l := range cfg.Layers {
		if err := addOverlay(b, src, l); err != nil {
			b.Delete(src)
			return nil, err
		}
	}

	reg, err := configuredRegistry(cfg)
	if err != nil {
		b.Delete(src)
		return nil, err
	}
	enc := reg.Get(cfg.Format)
	if enc == nil {
		b.Delete(src)
		return nil, fmt.Errorf("unknown format %q (have %v)", cfg.Format, reg.Names())
	}

	delay := cfg.Debounce
	if opts.delay > 0 {
		delay = opts.delay
	}
	p, err := pipeline.New(pipeline.Config{
		Backend: b,
		Source:  src,
		Encoder: enc,
		Logger:  logger.Named("pipeline"),
		Metrics: opts.metrics,
		Delay:   delay,
	})
	if err != nil {
		b.Delete(src)
		return nil, err
	}

	s := &session{cfg: cfg, b: b, source: src, reg: reg, p: p}
	s.applyGeometry(cfg)
	logger.Info("session opened",
		zap.String("source", cfg.Source), zap.Stringer("size", p.OriginalSize()),
		zap.Int("layers", src.NumLayers()), zap.String("encoder", enc.Name()))
	return s, nil
}

// configuredRegistry returns the default encoders with cfg's settings and,
// when set, its profile applied.
func configuredRegistry(cfg *config.Session) (*encoder.Registry, error) {
	reg := encoder.NewRegistry()
	var prof *profile.Profile
	if cfg.Profile != "" {
		p, ok := profile.Lookup(cfg.Profile)
		if !ok {
			return nil, fmt.Errorf("unknown profile %q (have %v)", cfg.Profile, profile.Names())
		}
		prof = &p
	}
	for _, name := range reg.Names() {
		enc := reg.Get(name)
		if err := cfg.Configure(enc); err != nil {
			return nil, err
		}
		if prof != nil {
			prof.Apply(enc)
		}
	}
	return reg, nil
}

func addOverlay(b *backend.Memory, dst *backend.Image, l config.Layer) error {
	ov, err := b.Load(l.Path)
	if err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	defer b.Delete(ov)
	layers := b.Layers(ov)
	if len(layers) == 0 {
		return fmt.Errorf("overlay %s: no layers", l.Path)
	}
	added, err := b.AddLayer(dst, filepath.Base(l.Path), b.Rasterize(layers[0]), image.Pt(l.X, l.Y))
	if err != nil {
		return fmt.Errorf("overlay %s: %w", l.Path, err)
	}
	added.SetVisible(!l.Hidden)
	return nil
}

// applyGeometry pushes cfg's resize and crop into the pipeline. A zero
// resize dimension keeps the original one; an unset crop keeps the frame.
func (s *session) applyGeometry(cfg *config.Session) {
	orig := s.p.OriginalSize()
	w, h := cfg.Resize.Width, cfg.Resize.Height
	if w == 0 {
		w = orig.Width
	}
	if h == 0 {
		h = orig.Height
	}
	s.p.Resize(w, h)
	if cfg.Crop.Set() {
		s.p.Crop(cfg.Crop.Width, cfg.Crop.Height, cfg.Crop.X, cfg.Crop.Y, true)
	}
}

func (s *session) Close() {
	s.p.Close()
	s.b.Delete(s.source)
}
