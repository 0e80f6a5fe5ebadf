package encoder

import (
	"fmt"
	"image"

	"github.com/AnyUserName/webx/internal/backend"
)

// JPEG encodes the working image as baseline JPEG.
type JPEG struct {
	Quality       int     // 1-100
	Smoothing     float64 // 0-1
	StripMetadata bool
}

func NewJPEG() *JPEG { return &JPEG{Quality: 85} }

func (e *JPEG) Name() string      { return "jpeg" }
func (e *JPEG) Extension() string { return "jpg" }

func (e *JPEG) Save(in RenderInput, path string) error {
	if err := in.valid(); err != nil {
		return err
	}
	b := in.Backend
	img, layer := in.Working, in.WorkingLayer

	// JPEG has no alpha and stripping metadata must not touch the working copy.
	if b.HasAlpha(layer) || e.StripMetadata {
		dup, err := b.Duplicate(img)
		if err != nil {
			return fmt.Errorf("duplicate: %w", err)
		}
		defer b.Delete(dup)
		if e.StripMetadata {
			b.DetachMetadata(dup, backend.MetadataExif)
		}
		flat, err := b.Flatten(dup)
		if err != nil {
			return fmt.Errorf("flatten: %w", err)
		}
		img, layer = dup, flat
	}

	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return b.Save(img, layer, path, backend.JPEGOptions{
		Quality:   quality,
		Smoothing: min(max(e.Smoothing, 0), 1),
	})
}

func (e *JPEG) RenderPreview(in RenderInput) (image.Image, int64, error) {
	return renderPreview(e, in)
}
