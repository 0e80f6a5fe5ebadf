package backend

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/soniakeys/quant/median"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// maxSamples bounds the pixels fed to the median-cut quantizer.
const maxSamples = 1 << 18

// lowBleedFactor scales the error carried by the low-bleed diffusion.
const lowBleedFactor = 0.75

var bayer8 = [8][8]uint8{
	{0, 32, 8, 40, 2, 34, 10, 42},
	{48, 16, 56, 24, 50, 18, 58, 26},
	{12, 44, 4, 36, 14, 46, 6, 38},
	{60, 28, 52, 20, 62, 30, 54, 22},
	{3, 35, 11, 43, 1, 33, 9, 41},
	{51, 19, 59, 27, 49, 17, 57, 25},
	{15, 47, 7, 39, 13, 45, 5, 37},
	{63, 31, 55, 23, 61, 29, 53, 21},
}

// WebPalette returns the 216 colour web-safe palette.
func WebPalette() color.Palette {
	pal := make(color.Palette, 0, 216)
	for r := 0; r < 6; r++ {
		for g := 0; g < 6; g++ {
			for b := 0; b < 6; b++ {
				pal = append(pal, color.NRGBA{uint8(r * 51), uint8(g * 51), uint8(b * 51), 0xff})
			}
		}
	}
	return pal
}

// MonoPalette returns black and white.
func MonoPalette() color.Palette {
	return color.Palette{color.NRGBA{0, 0, 0, 0xff}, color.NRGBA{0xff, 0xff, 0xff, 0xff}}
}

// ConvertIndexed maps every layer onto a shared palette. Pixels with low
// alpha become the transparent entry, which is appended when any layer has
// an alpha channel.
func (m *Memory) ConvertIndexed(img *Image, opts IndexedOptions) error {
	if err := check(img); err != nil {
		return err
	}
	if img.base == Indexed {
		return ErrAlreadyIndexed
	}
	n := min(max(opts.NumColors, 2), 256)

	hasAlpha := false
	for _, l := range img.layers {
		hasAlpha = hasAlpha || l.alpha
	}

	var pal color.Palette
	switch opts.Palette {
	case PaletteReuse:
		return fmt.Errorf("%w: palette reuse needs an indexed source", ErrNotIndexed)
	case PaletteWeb:
		pal = WebPalette()
	case PaletteMono:
		pal = MonoPalette()
	default:
		if hasAlpha && n == 256 {
			n = 255
		}
		pal = optimumPalette(composite(img), n)
	}
	if hasAlpha && len(pal) == 256 {
		pal = pal[:255]
	}
	opaque := pal
	transparent := -1
	if hasAlpha {
		pal = append(append(color.Palette(nil), opaque...), color.NRGBA{})
		transparent = len(pal) - 1
	}

	mapped := make([]*image.Paletted, len(img.layers))
	for i, l := range img.layers {
		src := imaging.Clone(l.pix)
		dst := image.NewPaletted(src.Rect, opaque)
		dither(dst, flattenAlpha(src), opts.Dither)
		dst.Palette = pal
		if transparent >= 0 {
			applyAlpha(dst, src, uint8(transparent), opts.AlphaDither)
		}
		mapped[i] = dst
	}

	if opts.RemoveUnused {
		pal = compact(pal, mapped)
	}
	for i, l := range img.layers {
		mapped[i].Palette = pal
		l.pix = mapped[i]
	}
	img.palette = pal
	img.base = Indexed
	m.logger.Debug("converted to indexed",
		zap.Int("image", img.id), zap.Int("colors", len(pal)), zap.Int("dither", int(opts.Dither)))
	return nil
}

func optimumPalette(canvas *image.NRGBA, n int) color.Palette {
	b := canvas.Bounds()
	total := b.Dx() * b.Dy()
	step := max(1, (total+maxSamples-1)/maxSamples)

	samples := make([]color.NRGBA, 0, min(total, maxSamples))
	for i := 0; i < total; i += step {
		c := canvas.NRGBAAt(b.Min.X+i%b.Dx(), b.Min.Y+i/b.Dx())
		if c.A >= 0x80 {
			c.A = 0xff
			samples = append(samples, c)
		}
	}
	if len(samples) == 0 {
		return color.Palette{color.NRGBA{0, 0, 0, 0xff}}
	}
	strip := image.NewNRGBA(image.Rect(0, 0, len(samples), 1))
	for i, c := range samples {
		strip.SetNRGBA(i, 0, c)
	}
	pal := median.Quantizer(n).Quantize(make(color.Palette, 0, n), strip)
	if len(pal) > n {
		pal = pal[:n]
	}
	if len(pal) == 0 {
		pal = color.Palette{samples[0]}
	}
	return pal
}

// flattenAlpha returns a copy with every pixel made opaque so colour mapping
// ignores coverage.
func flattenAlpha(src *image.NRGBA) *image.NRGBA {
	out := image.NewNRGBA(src.Rect)
	copy(out.Pix, src.Pix)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	return out
}

func dither(dst *image.Paletted, src *image.NRGBA, kind DitherType) {
	r := dst.Bounds()
	switch kind {
	case DitherFloydSteinberg:
		draw.FloydSteinberg.Draw(dst, r, src, r.Min)
	case DitherFloydSteinbergLowBleed:
		diffuse(dst, src, lowBleedFactor)
	case DitherPositioned:
		ordered(dst, src)
	default:
		draw.Draw(dst, r, src, r.Min, draw.Src)
	}
}

// diffuse is Floyd-Steinberg with the carried error scaled by factor.
func diffuse(dst *image.Paletted, src *image.NRGBA, factor float64) {
	r := src.Rect
	w := r.Dx()
	cur := make([][3]float64, w+2)
	next := make([][3]float64, w+2)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := x - r.Min.X + 1
			c := src.NRGBAAt(x, y)
			want := [3]float64{
				float64(c.R) + cur[i][0],
				float64(c.G) + cur[i][1],
				float64(c.B) + cur[i][2],
			}
			idx := dst.Palette.Index(color.NRGBA{clamp8(want[0]), clamp8(want[1]), clamp8(want[2]), 0xff})
			dst.SetColorIndex(x, y, uint8(idx))
			pr, pg, pb, _ := dst.Palette[idx].RGBA()
			got := [3]float64{float64(pr >> 8), float64(pg >> 8), float64(pb >> 8)}
			for k := 0; k < 3; k++ {
				e := (want[k] - got[k]) * factor
				cur[i+1][k] += e * 7 / 16
				next[i-1][k] += e * 3 / 16
				next[i][k] += e * 5 / 16
				next[i+1][k] += e * 1 / 16
			}
		}
		cur, next = next, cur
		clear(next)
	}
}

// ordered applies an 8x8 Bayer threshold before nearest-colour mapping.
func ordered(dst *image.Paletted, src *image.NRGBA) {
	spread := 255.0 / float64(max(len(dst.Palette)-1, 1))
	spread = min(spread, 64)
	r := src.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			d := (float64(bayer8[y&7][x&7])+0.5)/64 - 0.5
			off := d * spread
			idx := dst.Palette.Index(color.NRGBA{
				clamp8(float64(c.R) + off),
				clamp8(float64(c.G) + off),
				clamp8(float64(c.B) + off),
				0xff,
			})
			dst.SetColorIndex(x, y, uint8(idx))
		}
	}
}

// applyAlpha marks pixels below the alpha threshold as transparent. With
// alphaDither the threshold follows the Bayer matrix.
func applyAlpha(dst *image.Paletted, src *image.NRGBA, transparent uint8, alphaDither bool) {
	r := src.Rect
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			a := src.NRGBAAt(x, y).A
			threshold := uint8(0x80)
			if alphaDither {
				threshold = uint8((int(bayer8[y&7][x&7])*255 + 255/2) / 64)
				if threshold == 0 {
					threshold = 1
				}
			}
			if a < threshold {
				dst.SetColorIndex(x, y, transparent)
			}
		}
	}
}

// compact drops palette entries no layer references and remaps indexes.
func compact(pal color.Palette, layers []*image.Paletted) color.Palette {
	used := make([]bool, len(pal))
	for _, p := range layers {
		for _, ix := range p.Pix {
			used[ix] = true
		}
	}
	remap := make([]uint8, len(pal))
	out := make(color.Palette, 0, len(pal))
	for i, c := range pal {
		if used[i] {
			remap[i] = uint8(len(out))
			out = append(out, c)
		}
	}
	if len(out) == len(pal) {
		return pal
	}
	for _, p := range layers {
		for i, ix := range p.Pix {
			p.Pix[i] = remap[ix]
		}
	}
	return out
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
