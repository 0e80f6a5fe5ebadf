package encoder

import (
	"image"

	"github.com/AnyUserName/webx/internal/backend"
)

// GIF writes a single-frame GIF using the indexed conversion settings.
type GIF struct {
	Indexed
}

func NewGIF() *GIF { return &GIF{Indexed: DefaultIndexed()} }

func (e *GIF) Name() string      { return "gif" }
func (e *GIF) Extension() string { return "gif" }

func (e *GIF) Save(in RenderInput, path string) error {
	img, layer, release, err := e.target(in)
	if err != nil {
		return err
	}
	defer release()
	return in.Backend.Save(img, layer, path, backend.GIFOptions{})
}

func (e *GIF) RenderPreview(in RenderInput) (image.Image, int64, error) {
	return renderPreview(e, in)
}
