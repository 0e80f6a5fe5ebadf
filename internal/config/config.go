// Package config loads export sessions from YAML files with WEBX_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/fsnotify/fsnotify"
	validatorV10 "github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/encoder"
	"github.com/AnyUserName/webx/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. WEBX_JPEG_QUALITY.
const EnvPrefix = "WEBX"

var validate = validatorV10.New()

// Session describes one export: the source, its overlays, the geometry
// edits and the encoder settings.
type Session struct {
	Source   string         `mapstructure:"source" yaml:"source" validate:"required"`
	Layers   []Layer        `mapstructure:"layers" yaml:"layers" validate:"dive"`
	Output   string         `mapstructure:"output" yaml:"output" default:"preview"`
	Format   string         `mapstructure:"format" yaml:"format" default:"jpeg" validate:"oneof=jpeg jpg png png24 png8 gif"`
	Profile  string         `mapstructure:"profile" yaml:"profile"`
	Resize   Resize         `mapstructure:"resize" yaml:"resize"`
	Crop     Crop           `mapstructure:"crop" yaml:"crop"`
	JPEG     JPEG           `mapstructure:"jpeg" yaml:"jpeg"`
	PNG      PNG            `mapstructure:"png" yaml:"png"`
	Indexed  Indexed        `mapstructure:"indexed" yaml:"indexed"`
	Resample string         `mapstructure:"resample" yaml:"resample" default:"lanczos" validate:"oneof=nearest box linear hermite mitchell catmullrom bspline gaussian lanczos"`
	Debounce time.Duration  `mapstructure:"debounce" yaml:"debounce" default:"150ms" validate:"gte=0"`
	Log      logging.Config `mapstructure:"log" yaml:"log"`
}

// Layer is an extra image stacked above the source before export.
type Layer struct {
	Path   string `mapstructure:"path" yaml:"path" validate:"required"`
	X      int    `mapstructure:"x" yaml:"x"`
	Y      int    `mapstructure:"y" yaml:"y"`
	Hidden bool   `mapstructure:"hidden" yaml:"hidden"`
}

// Resize is the requested output size. Zero keeps the source dimension.
type Resize struct {
	Width  int `mapstructure:"width" yaml:"width" validate:"gte=0,lte=10000"`
	Height int `mapstructure:"height" yaml:"height" validate:"gte=0,lte=10000"`
}

// Crop is the retained region of the resized image. A zero size keeps the
// full frame.
type Crop struct {
	X      int `mapstructure:"x" yaml:"x"`
	Y      int `mapstructure:"y" yaml:"y"`
	Width  int `mapstructure:"width" yaml:"width" validate:"gte=0,lte=10000"`
	Height int `mapstructure:"height" yaml:"height" validate:"gte=0,lte=10000"`
}

// Set reports whether a crop was requested.
func (c Crop) Set() bool { return c.Width > 0 && c.Height > 0 }

type JPEG struct {
	Quality       int     `mapstructure:"quality" yaml:"quality" default:"85" validate:"gte=1,lte=100"`
	Smoothing     float64 `mapstructure:"smoothing" yaml:"smoothing" validate:"gte=0,lte=1"`
	StripMetadata bool    `mapstructure:"strip-metadata" yaml:"strip-metadata"`
}

type PNG struct {
	Compression int `mapstructure:"compression" yaml:"compression" default:"9" validate:"gte=0,lte=9"`
}

type Indexed struct {
	Palette      string `mapstructure:"palette" yaml:"palette" default:"optimum" validate:"oneof=reuse optimum web mono"`
	Colors       int    `mapstructure:"colors" yaml:"colors" default:"256" validate:"gte=2,lte=256"`
	Dither       string `mapstructure:"dither" yaml:"dither" default:"none" validate:"oneof=none fs fs-low-bleed positioned"`
	AlphaDither  bool   `mapstructure:"alpha-dither" yaml:"alpha-dither"`
	RemoveUnused bool   `mapstructure:"remove-unused" yaml:"remove-unused" default:"true"`
}

// Default returns a session with every default applied.
func Default() *Session {
	s := &Session{}
	if err := defaults.Set(s); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return s
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// Keys absent from the file are only visible to Unmarshal once bound.
	for _, key := range []string{
		"source", "output", "format", "profile", "resample", "debounce",
		"resize.width", "resize.height",
		"jpeg.quality", "jpeg.smoothing", "jpeg.strip-metadata",
		"png.compression",
		"indexed.palette", "indexed.colors", "indexed.dither", "indexed.alpha-dither", "indexed.remove-unused",
		"log.level", "log.format", "log.file",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the session file at path.
func Load(path string) (*Session, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Session, error) {
	s := Default()
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks field ranges.
func (s *Session) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validatorV10.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Watch loads path and calls fn with every later revision of the file.
// Revisions that fail to decode are logged and skipped.
func Watch(path string, logger *zap.Logger, fn func(*Session)) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	s, err := decode(v)
	if err != nil {
		return nil, err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := decode(v)
		if err != nil {
			logger.Warn("ignoring config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Debug("config changed", zap.String("file", e.Name), zap.Stringer("op", e.Op))
		fn(next)
	})
	v.WatchConfig()
	return s, nil
}

// Configure copies the session's encoder settings onto enc.
func (s *Session) Configure(enc encoder.Encoder) error {
	switch e := enc.(type) {
	case *encoder.JPEG:
		e.Quality = s.JPEG.Quality
		e.Smoothing = s.JPEG.Smoothing
		e.StripMetadata = s.JPEG.StripMetadata
	case *encoder.PNG24:
		e.Compression = s.PNG.Compression
	case *encoder.PNG8:
		e.Compression = s.PNG.Compression
		return s.Indexed.apply(&e.Indexed)
	case *encoder.GIF:
		return s.Indexed.apply(&e.Indexed)
	}
	return nil
}

func (ix Indexed) apply(dst *encoder.Indexed) error {
	pal, err := encoder.ParsePalette(ix.Palette)
	if err != nil {
		return err
	}
	d, err := encoder.ParseDither(ix.Dither)
	if err != nil {
		return err
	}
	dst.Palette = pal
	dst.Colors = ix.Colors
	dst.Dither = d
	dst.AlphaDither = ix.AlphaDither
	dst.RemoveUnused = ix.RemoveUnused
	return nil
}
