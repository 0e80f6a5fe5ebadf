package encoder

import (
	"errors"
	"image"

	"github.com/AnyUserName/webx/internal/backend"
)

var ErrNoImage = errors.New("render input has no working image")

// RenderInput is what the pipeline hands an encoder: the regenerated working
// image and, when the source was indexed, an indexed companion.
type RenderInput struct {
	Backend      backend.Backend
	Working      *backend.Image
	WorkingLayer *backend.Layer
	Indexed      *backend.Image // may be nil
	IndexedLayer *backend.Layer // may be nil
	Width        int
	Height       int
}

func (in RenderInput) valid() error {
	if in.Backend == nil || in.Working == nil || in.WorkingLayer == nil {
		return ErrNoImage
	}
	return nil
}

// Encoder saves a RenderInput in one web format.
type Encoder interface {
	// Name returns the variant name (jpeg, png8, png24, gif).
	Name() string

	// Extension returns the file extension without dot.
	Extension() string

	// Save writes the rendered image to path. Temporary images are released
	// before returning.
	Save(in RenderInput, path string) error

	// RenderPreview encodes the input, decodes the result and returns it with
	// the encoded byte size.
	RenderPreview(in RenderInput) (image.Image, int64, error)
}
