package encoder

import (
	"fmt"
	"strings"

	"github.com/AnyUserName/webx/internal/backend"
)

// Indexed holds the palette settings shared by PNG8 and GIF.
type Indexed struct {
	Palette      backend.PaletteType
	Colors       int // 2-256
	Dither       backend.DitherType
	AlphaDither  bool
	RemoveUnused bool
}

func DefaultIndexed() Indexed {
	return Indexed{
		Palette:      backend.PaletteOptimum,
		Colors:       256,
		Dither:       backend.DitherNone,
		RemoveUnused: true,
	}
}

// Options converts the settings into backend conversion options for a layer
// with or without alpha. Reuse is never passed through: it only applies when
// the source already has a palette.
func (ix Indexed) Options(hasAlpha bool) backend.IndexedOptions {
	pal := ix.Palette
	if pal == backend.PaletteReuse {
		pal = backend.PaletteOptimum
	}
	n := ix.Colors
	if n <= 0 || n > 256 {
		n = 256
	}
	n = max(n, 2)
	if n == 256 && hasAlpha {
		n = 255
	}
	return backend.IndexedOptions{
		Dither:       ix.Dither,
		Palette:      pal,
		NumColors:    n,
		AlphaDither:  ix.AlphaDither,
		RemoveUnused: ix.RemoveUnused,
	}
}

// target returns the image and layer to save plus a release func for any
// temporary image it created.
func (ix Indexed) target(in RenderInput) (*backend.Image, *backend.Layer, func(), error) {
	if err := in.valid(); err != nil {
		return nil, nil, nil, err
	}
	if ix.Palette == backend.PaletteReuse && in.Indexed != nil && in.IndexedLayer != nil {
		return in.Indexed, in.IndexedLayer, func() {}, nil
	}

	b := in.Backend
	dup, err := b.Duplicate(in.Working)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("duplicate: %w", err)
	}
	release := func() { b.Delete(dup) }
	if err := b.ConvertIndexed(dup, ix.Options(b.HasAlpha(in.WorkingLayer))); err != nil {
		release()
		return nil, nil, nil, fmt.Errorf("convert indexed: %w", err)
	}
	layers := b.Layers(dup)
	if len(layers) == 0 {
		release()
		return nil, nil, nil, ErrNoImage
	}
	return dup, layers[0], release, nil
}

var dithers = map[string]backend.DitherType{
	"none":         backend.DitherNone,
	"fs":           backend.DitherFloydSteinberg,
	"fs-low-bleed": backend.DitherFloydSteinbergLowBleed,
	"positioned":   backend.DitherPositioned,
}

var palettes = map[string]backend.PaletteType{
	"reuse":   backend.PaletteReuse,
	"optimum": backend.PaletteOptimum,
	"web":     backend.PaletteWeb,
	"mono":    backend.PaletteMono,
}

// ParseDither resolves none, fs, fs-low-bleed or positioned.
func ParseDither(s string) (backend.DitherType, error) {
	d, ok := dithers[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown dither %q", s)
	}
	return d, nil
}

// ParsePalette resolves reuse, optimum, web or mono.
func ParsePalette(s string) (backend.PaletteType, error) {
	p, ok := palettes[strings.ToLower(s)]
	if !ok {
		return 0, fmt.Errorf("unknown palette %q", s)
	}
	return p, nil
}
