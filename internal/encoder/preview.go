package encoder

import (
	"fmt"
	"image"
	"os"
	"sync/atomic"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// renderPreview round-trips the input through a temp file so the preview
// shows real codec artifacts and the size is the real encoded size.
func renderPreview(enc Encoder, in RenderInput) (image.Image, int64, error) {
	if err := in.valid(); err != nil {
		return nil, 0, err
	}
	id := tempCounter.Add(1)
	f, err := os.CreateTemp("", fmt.Sprintf("webx_preview_%d_*.%s", id, enc.Extension()))
	if err != nil {
		return nil, 0, fmt.Errorf("create temp: %w", err)
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := enc.Save(in, path); err != nil {
		return nil, 0, fmt.Errorf("%s save: %w", enc.Name(), err)
	}

	b := in.Backend
	loaded, err := b.Load(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%s reload: %w", enc.Name(), err)
	}
	defer b.Delete(loaded)

	layers := b.Layers(loaded)
	if len(layers) == 0 {
		return nil, 0, fmt.Errorf("%s reload: %w", enc.Name(), ErrNoImage)
	}
	raster := b.Rasterize(layers[0])

	size, err := b.FileSize(path)
	if err != nil {
		return nil, 0, fmt.Errorf("stat preview: %w", err)
	}
	return raster, size, nil
}
