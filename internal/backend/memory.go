package backend

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
)

// Memory is an in-process Backend keeping every image in memory.
type Memory struct {
	mu     sync.Mutex
	nextID int
	live   map[int]*Image
	filter imaging.ResampleFilter
	logger *zap.Logger
}

// Option configures a Memory backend.
type Option func(*Memory)

func WithLogger(l *zap.Logger) Option {
	return func(m *Memory) { m.logger = l }
}

// WithFilter sets the resampling filter used by Scale.
func WithFilter(f imaging.ResampleFilter) Option {
	return func(m *Memory) { m.filter = f }
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		live:   make(map[int]*Image),
		filter: imaging.Lanczos,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var filters = map[string]imaging.ResampleFilter{
	"nearest":    imaging.NearestNeighbor,
	"box":        imaging.Box,
	"linear":     imaging.Linear,
	"hermite":    imaging.Hermite,
	"mitchell":   imaging.MitchellNetravali,
	"catmullrom": imaging.CatmullRom,
	"bspline":    imaging.BSpline,
	"gaussian":   imaging.Gaussian,
	"lanczos":    imaging.Lanczos,
}

// ParseFilter resolves a resampling filter by name.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	f, ok := filters[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resample filter %q", name)
	}
	return f, nil
}

// Live reports how many images have been created and not yet deleted.
func (m *Memory) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

func (m *Memory) id() int {
	m.nextID++
	return m.nextID
}

// NewImage creates an empty image. pal is only used for Indexed images.
func (m *Memory) NewImage(width, height int, base BaseType, pal color.Palette) *Image {
	m.mu.Lock()
	defer m.mu.Unlock()
	img := &Image{
		id:       m.id(),
		width:    width,
		height:   height,
		base:     base,
		metadata: make(map[string][]byte),
	}
	if base == Indexed {
		img.palette = append(color.Palette(nil), pal...)
	}
	m.live[img.id] = img
	return img
}

// AddLayer places src on top of img at offset. Pixels are converted to the
// image's colour model.
func (m *Memory) AddLayer(img *Image, name string, src image.Image, offset image.Point) (*Layer, error) {
	if err := check(img); err != nil {
		return nil, err
	}
	l := m.newLayer(img, name, toModel(src, img.base, img.palette))
	l.offset = offset
	l.alpha = !isOpaque(src)
	img.layers = append([]*Layer{l}, img.layers...)
	return l, nil
}

func (m *Memory) newLayer(img *Image, name string, pix draw.Image) *Layer {
	m.mu.Lock()
	id := m.id()
	m.mu.Unlock()
	return &Layer{id: id, name: name, owner: img, visible: true, pix: pix}
}

func check(img *Image) error {
	if img == nil || img.deleted {
		return ErrDeleted
	}
	return nil
}

func owns(img *Image, layer *Layer) error {
	if layer == nil || layer.owner != img {
		return ErrForeignLayer
	}
	return nil
}

func (m *Memory) Duplicate(img *Image) (*Image, error) {
	if err := check(img); err != nil {
		return nil, err
	}
	dup := m.NewImage(img.width, img.height, img.base, img.palette)
	for k, v := range img.metadata {
		dup.metadata[k] = append([]byte(nil), v...)
	}
	for _, l := range img.layers {
		nl := m.newLayer(dup, l.name, clonePix(l.pix))
		nl.visible = l.visible
		nl.offset = l.offset
		nl.alpha = l.alpha
		dup.layers = append(dup.layers, nl)
	}
	return dup, nil
}

func (m *Memory) Layers(img *Image) []*Layer {
	if check(img) != nil {
		return nil
	}
	return append([]*Layer(nil), img.layers...)
}

// MergeVisibleLayers composites all visible layers into one layer placed at
// the position of the bottom-most visible layer. Invisible layers survive.
func (m *Memory) MergeVisibleLayers(img *Image) (*Layer, error) {
	if err := check(img); err != nil {
		return nil, err
	}
	var visible []*Layer
	for _, l := range img.layers {
		if l.visible {
			visible = append(visible, l)
		}
	}
	if len(visible) == 0 {
		return nil, ErrNoVisibleLayers
	}
	if len(visible) == 1 {
		return visible[0], nil
	}

	canvas := composite(img)
	bottom := visible[len(visible)-1]
	merged := m.newLayer(img, bottom.name, toModel(canvas, img.base, img.palette))
	merged.alpha = !canvas.Opaque()

	layers := make([]*Layer, 0, len(img.layers)-len(visible)+1)
	for _, l := range img.layers {
		switch {
		case l == bottom:
			layers = append(layers, merged)
			l.owner = nil
		case l.visible:
			l.owner = nil
		default:
			layers = append(layers, l)
		}
	}
	img.layers = layers
	return merged, nil
}

func (m *Memory) RemoveLayer(img *Image, layer *Layer) error {
	if err := check(img); err != nil {
		return err
	}
	if err := owns(img, layer); err != nil {
		return err
	}
	for i, l := range img.layers {
		if l == layer {
			img.layers = append(img.layers[:i], img.layers[i+1:]...)
			break
		}
	}
	layer.owner = nil
	return nil
}

// ResizeLayerToImage grows or shrinks the layer so it exactly covers the
// image canvas. Uncovered pixels become transparent.
func (m *Memory) ResizeLayerToImage(img *Image, layer *Layer) error {
	if err := check(img); err != nil {
		return err
	}
	if err := owns(img, layer); err != nil {
		return err
	}
	if layer.coversImage() {
		return nil
	}

	canvas := img.Bounds()
	covered := layer.Bounds().Intersect(canvas)
	switch p := layer.pix.(type) {
	case *image.Paletted:
		pal, transparent, evicted := withTransparent(img.palette)
		if evicted >= 0 {
			remapIndex(img, uint8(transparent), uint8(evicted))
		}
		dst := image.NewPaletted(canvas, pal)
		for i := range dst.Pix {
			dst.Pix[i] = uint8(transparent)
		}
		for y := covered.Min.Y; y < covered.Max.Y; y++ {
			sp := p.PixOffset(covered.Min.X-layer.offset.X, y-layer.offset.Y)
			dp := dst.PixOffset(covered.Min.X, y)
			copy(dst.Pix[dp:dp+covered.Dx()], p.Pix[sp:sp+covered.Dx()])
		}
		img.palette = pal
		repalette(img)
		layer.pix = dst
	default:
		dst := image.NewNRGBA(canvas)
		draw.Draw(dst, layer.Bounds(), layer.pix, image.Point{}, draw.Src)
		layer.pix = dst
	}
	if covered != canvas {
		layer.alpha = true
	}
	layer.offset = image.Point{}
	return nil
}

// Scale resamples every layer so the image becomes width x height.
func (m *Memory) Scale(img *Image, width, height int) error {
	if err := check(img); err != nil {
		return err
	}
	if width < 1 || height < 1 {
		return fmt.Errorf("%w: scale to %dx%d", ErrInvalidGeometry, width, height)
	}
	if width == img.width && height == img.height {
		return nil
	}
	sx := float64(width) / float64(img.width)
	sy := float64(height) / float64(img.height)
	for _, l := range img.layers {
		w, h := l.Size()
		nw := max(1, int(math.Round(float64(w)*sx)))
		nh := max(1, int(math.Round(float64(h)*sy)))
		resized := imaging.Resize(l.pix, nw, nh, m.filter)
		l.pix = toModel(resized, img.base, img.palette)
		l.offset = image.Pt(
			int(math.Round(float64(l.offset.X)*sx)),
			int(math.Round(float64(l.offset.Y)*sy)),
		)
	}
	img.width, img.height = width, height
	return nil
}

// Crop cuts the canvas to the given rectangle. Layers falling completely
// outside it are dropped.
func (m *Memory) Crop(img *Image, width, height, x, y int) error {
	if err := check(img); err != nil {
		return err
	}
	r := image.Rect(x, y, x+width, y+height)
	if width < 1 || height < 1 || !r.In(img.Bounds()) {
		return fmt.Errorf("%w: crop %v of %dx%d", ErrInvalidGeometry, r, img.width, img.height)
	}
	kept := img.layers[:0]
	for _, l := range img.layers {
		inter := l.Bounds().Intersect(r)
		if inter.Empty() {
			l.owner = nil
			continue
		}
		l.pix = cropPix(l.pix, inter.Sub(l.offset))
		l.offset = inter.Min.Sub(r.Min)
		kept = append(kept, l)
	}
	img.layers = kept
	img.width, img.height = width, height
	return nil
}

// Flatten composites visible layers over white, discards everything else and
// returns the single remaining opaque layer.
func (m *Memory) Flatten(img *Image) (*Layer, error) {
	if err := check(img); err != nil {
		return nil, err
	}
	name := "Background"
	if n := len(img.layers); n > 0 {
		name = img.layers[n-1].name
	}
	bg := imaging.New(img.width, img.height, color.White)
	flat := imaging.Overlay(bg, composite(img), image.Point{}, 1.0)
	for _, l := range img.layers {
		l.owner = nil
	}
	if img.base == Indexed {
		img.palette = opaqueEntries(img.palette)
	}
	layer := m.newLayer(img, name, toModel(flat, img.base, img.palette))
	img.layers = []*Layer{layer}
	return layer, nil
}

// ConvertRGB switches an indexed or grayscale image to RGB.
func (m *Memory) ConvertRGB(img *Image) error {
	if err := check(img); err != nil {
		return err
	}
	if img.base == RGB {
		return nil
	}
	for _, l := range img.layers {
		if _, ok := l.pix.(*image.Paletted); ok {
			l.pix = imaging.Clone(l.pix)
		}
	}
	img.base = RGB
	img.palette = nil
	return nil
}

func (m *Memory) IsIndexed(layer *Layer) bool {
	return layer != nil && layer.owner != nil && layer.owner.base == Indexed
}

func (m *Memory) IsRGB(layer *Layer) bool {
	return layer != nil && layer.owner != nil && layer.owner.base == RGB
}

func (m *Memory) HasAlpha(layer *Layer) bool {
	return layer != nil && layer.alpha
}

func (m *Memory) DetachMetadata(img *Image, name string) {
	if check(img) != nil {
		return
	}
	delete(img.metadata, name)
}

func (m *Memory) Delete(img *Image) {
	if img == nil || img.deleted {
		return
	}
	m.mu.Lock()
	delete(m.live, img.id)
	m.mu.Unlock()
	for _, l := range img.layers {
		l.owner = nil
	}
	img.deleted = true
	img.layers = nil
	img.palette = nil
	img.metadata = nil
}

// Rasterize returns an independent NRGBA copy of the layer pixels.
func (m *Memory) Rasterize(layer *Layer) image.Image {
	if layer == nil {
		return image.NewNRGBA(image.Rectangle{})
	}
	return imaging.Clone(layer.pix)
}

func (m *Memory) Dimensions(img *Image) (int, int) {
	if check(img) != nil {
		return 0, 0
	}
	return img.width, img.height
}

// composite draws the visible layers bottom-up onto a transparent canvas.
func composite(img *Image) *image.NRGBA {
	canvas := image.NewNRGBA(img.Bounds())
	for i := len(img.layers) - 1; i >= 0; i-- {
		l := img.layers[i]
		if !l.visible {
			continue
		}
		draw.Draw(canvas, l.Bounds(), l.pix, image.Point{}, draw.Over)
	}
	return canvas
}

// toModel converts src into the pixel storage for base, with its origin at 0,0.
func toModel(src image.Image, base BaseType, pal color.Palette) draw.Image {
	if base == Indexed {
		if p, ok := src.(*image.Paletted); ok && samePalette(p.Palette, pal) {
			return clonePix(p)
		}
		b := src.Bounds()
		dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), pal)
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}
	return imaging.Clone(src)
}

func clonePix(src draw.Image) draw.Image {
	p, ok := src.(*image.Paletted)
	if !ok {
		return imaging.Clone(src)
	}
	b := p.Bounds()
	dst := image.NewPaletted(image.Rect(0, 0, b.Dx(), b.Dy()), p.Palette)
	for y := 0; y < b.Dy(); y++ {
		sp := p.PixOffset(b.Min.X, b.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], p.Pix[sp:sp+b.Dx()])
	}
	return dst
}

func cropPix(src draw.Image, r image.Rectangle) draw.Image {
	if p, ok := src.(*image.Paletted); ok {
		return clonePix(p.SubImage(r).(*image.Paletted))
	}
	return imaging.Crop(src, r)
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

func samePalette(a, b color.Palette) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		r1, g1, b1, a1 := a[i].RGBA()
		r2, g2, b2, a2 := b[i].RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
			return false
		}
	}
	return true
}

// withTransparent returns pal with a fully transparent entry and its index,
// appending one when the palette has room. A full palette gives up its last
// colour; evicted is the nearest remaining entry pixels using it must move
// to, or -1 when nothing was evicted.
func withTransparent(pal color.Palette) (out color.Palette, transparent, evicted int) {
	for i, c := range pal {
		if _, _, _, a := c.RGBA(); a == 0 {
			return pal, i, -1
		}
	}
	if len(pal) < 256 {
		out = append(append(color.Palette(nil), pal...), color.NRGBA{})
		return out, len(out) - 1, -1
	}
	last := len(pal) - 1
	evicted = pal[:last].Index(pal[last])
	out = append(color.Palette(nil), pal...)
	out[last] = color.NRGBA{}
	return out, last, evicted
}

// remapIndex rewrites index from to to in every paletted layer of img.
func remapIndex(img *Image, from, to uint8) {
	for _, l := range img.layers {
		p, ok := l.pix.(*image.Paletted)
		if !ok {
			continue
		}
		for i, ix := range p.Pix {
			if ix == from {
				p.Pix[i] = to
			}
		}
	}
}

func opaqueEntries(pal color.Palette) color.Palette {
	out := make(color.Palette, 0, len(pal))
	for _, c := range pal {
		if _, _, _, a := c.RGBA(); a != 0 {
			out = append(out, c)
		}
	}
	return out
}

// repalette points every paletted layer at the image palette after entries
// were appended. Existing indexes stay valid.
func repalette(img *Image) {
	for _, l := range img.layers {
		if p, ok := l.pix.(*image.Paletted); ok {
			p.Palette = img.palette
		}
	}
}
