package backend

import (
	"image"
	"image/color"
	"image/draw"
)

// Image is a layered image handle owned by a Memory backend.
type Image struct {
	id       int
	width    int
	height   int
	base     BaseType
	palette  color.Palette
	layers   []*Layer // top first
	metadata map[string][]byte
	deleted  bool
}

func (img *Image) ID() int        { return img.id }
func (img *Image) Width() int     { return img.width }
func (img *Image) Height() int    { return img.height }
func (img *Image) Base() BaseType { return img.base }
func (img *Image) Deleted() bool  { return img.deleted }
func (img *Image) NumLayers() int { return len(img.layers) }

func (img *Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, img.width, img.height)
}

// Palette returns a copy of the colormap of an indexed image.
func (img *Image) Palette() color.Palette {
	return append(color.Palette(nil), img.palette...)
}

// Metadata returns the named metadata blob, or nil.
func (img *Image) Metadata(name string) []byte {
	return img.metadata[name]
}

func (img *Image) SetMetadata(name string, data []byte) {
	if img.metadata == nil {
		img.metadata = make(map[string][]byte)
	}
	img.metadata[name] = append([]byte(nil), data...)
}

// Layer is one drawable of an Image. Pixels are stored with their origin at
// (0,0); Offset places them on the image canvas.
type Layer struct {
	id      int
	name    string
	owner   *Image
	visible bool
	offset  image.Point
	alpha   bool
	pix     draw.Image // *image.NRGBA or *image.Paletted
}

func (l *Layer) ID() int                 { return l.id }
func (l *Layer) Name() string            { return l.name }
func (l *Layer) Visible() bool           { return l.visible }
func (l *Layer) SetVisible(v bool)       { l.visible = v }
func (l *Layer) Offset() image.Point     { return l.offset }
func (l *Layer) SetOffset(p image.Point) { l.offset = p }

// Size returns the pixel dimensions of the layer.
func (l *Layer) Size() (int, int) {
	b := l.pix.Bounds()
	return b.Dx(), b.Dy()
}

// Bounds is the layer rectangle in image coordinates.
func (l *Layer) Bounds() image.Rectangle {
	return l.pix.Bounds().Add(l.offset)
}

func (l *Layer) coversImage() bool {
	return l.owner != nil && l.Bounds() == l.owner.Bounds()
}
