package encoder

import (
	"image"

	"github.com/AnyUserName/webx/internal/backend"
)

// PNG24 writes the working image as truecolor PNG, with alpha when present.
type PNG24 struct {
	Compression int // 0-9
}

func NewPNG24() *PNG24 { return &PNG24{Compression: 9} }

func (e *PNG24) Name() string      { return "png24" }
func (e *PNG24) Extension() string { return "png" }

func (e *PNG24) Save(in RenderInput, path string) error {
	if err := in.valid(); err != nil {
		return err
	}
	return in.Backend.Save(in.Working, in.WorkingLayer, path, backend.PNGOptions{Compression: e.Compression})
}

func (e *PNG24) RenderPreview(in RenderInput) (image.Image, int64, error) {
	return renderPreview(e, in)
}

// PNG8 writes a palette PNG built by the indexed conversion settings.
type PNG8 struct {
	Indexed
	Compression int // 0-9
}

func NewPNG8() *PNG8 { return &PNG8{Indexed: DefaultIndexed(), Compression: 9} }

func (e *PNG8) Name() string      { return "png8" }
func (e *PNG8) Extension() string { return "png" }

func (e *PNG8) Save(in RenderInput, path string) error {
	img, layer, release, err := e.target(in)
	if err != nil {
		return err
	}
	defer release()
	return in.Backend.Save(img, layer, path, backend.PNGOptions{Compression: e.Compression})
}

func (e *PNG8) RenderPreview(in RenderInput) (image.Image, int64, error) {
	return renderPreview(e, in)
}
