// Package backend owns the pixel data of an export session and performs every
// image operation the pipeline and the encoders ask for: duplicate, merge,
// scale, crop, palette conversion, flatten, rasterize, save and load.
//
// Images are handles. A handle stays valid until Delete is called on it; the
// caller that created or duplicated an image is responsible for deleting it.
package backend

import (
	"errors"
	"image"
)

var (
	ErrDeleted           = errors.New("image has been deleted")
	ErrForeignLayer      = errors.New("layer does not belong to image")
	ErrNoVisibleLayers   = errors.New("image has no visible layers")
	ErrAlreadyIndexed    = errors.New("image is already indexed")
	ErrNotIndexed        = errors.New("image is not indexed")
	ErrUnsupportedFormat = errors.New("unsupported save format")
	ErrInvalidGeometry   = errors.New("invalid geometry")
)

// BaseType is the colour model shared by all layers of an image.
type BaseType int

const (
	RGB BaseType = iota
	Gray
	Indexed
)

func (t BaseType) String() string {
	switch t {
	case RGB:
		return "rgb"
	case Gray:
		return "gray"
	case Indexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// DitherType selects how colours are mapped onto a reduced palette.
type DitherType int

const (
	DitherNone DitherType = iota
	DitherFloydSteinberg
	DitherFloydSteinbergLowBleed
	DitherPositioned
)

// PaletteType selects where the palette of an indexed conversion comes from.
type PaletteType int

const (
	PaletteReuse PaletteType = iota
	PaletteOptimum
	PaletteWeb
	PaletteMono
)

// IndexedOptions controls ConvertIndexed.
type IndexedOptions struct {
	Dither       DitherType
	Palette      PaletteType
	NumColors    int
	AlphaDither  bool
	RemoveUnused bool
}

// SaveOptions carries format-specific parameters for Save.
type SaveOptions interface {
	Format() string
}

// JPEGOptions: Quality is 1-100, Smoothing 0-1 applies a blur before encoding.
type JPEGOptions struct {
	Quality   int
	Smoothing float64
}

func (JPEGOptions) Format() string { return "jpeg" }

// PNGOptions: Compression is the 0-9 zlib-style level.
type PNGOptions struct {
	Compression int
}

func (PNGOptions) Format() string { return "png" }

type GIFOptions struct{}

func (GIFOptions) Format() string { return "gif" }

// MetadataExif is the metadata key under which raw EXIF (APP1 payload) is kept.
const MetadataExif = "exif-data"

// Backend is the set of image operations the export pipeline depends on.
type Backend interface {
	Duplicate(img *Image) (*Image, error)
	MergeVisibleLayers(img *Image) (*Layer, error)
	Layers(img *Image) []*Layer
	RemoveLayer(img *Image, layer *Layer) error
	ResizeLayerToImage(img *Image, layer *Layer) error
	Scale(img *Image, width, height int) error
	Crop(img *Image, width, height, x, y int) error
	ConvertIndexed(img *Image, opts IndexedOptions) error
	Flatten(img *Image) (*Layer, error)
	ConvertRGB(img *Image) error
	IsIndexed(layer *Layer) bool
	IsRGB(layer *Layer) bool
	HasAlpha(layer *Layer) bool
	DetachMetadata(img *Image, name string)
	Delete(img *Image)
	Rasterize(layer *Layer) image.Image
	Dimensions(img *Image) (width, height int)
	Save(img *Image, layer *Layer, path string, opts SaveOptions) error
	Load(path string) (*Image, error)
	FileSize(path string) (int64, error)
}
