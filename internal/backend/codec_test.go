package backend

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadFormats(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name string
		opts SaveOptions
		ext  string
		base BaseType
	}{
		{"jpeg", JPEGOptions{Quality: 90}, "jpg", RGB},
		{"jpeg-smoothed", JPEGOptions{Quality: 50, Smoothing: 0.5}, "jpg", RGB},
		{"png", PNGOptions{Compression: 9}, "png", RGB},
		{"png-fast", PNGOptions{Compression: 1}, "png", RGB},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMemory()
			img := m.NewImage(12, 8, RGB, nil)
			l, err := m.AddLayer(img, "g", gradient(12, 8), image.Point{})
			require.NoError(t, err)

			path := filepath.Join(dir, tc.name+"."+tc.ext)
			require.NoError(t, m.Save(img, l, path, tc.opts))

			size, err := m.FileSize(path)
			require.NoError(t, err)
			assert.Positive(t, size)

			loaded, err := m.Load(path)
			require.NoError(t, err)
			assert.Equal(t, 12, loaded.Width())
			assert.Equal(t, 8, loaded.Height())
			assert.Equal(t, tc.base, loaded.Base())
			assert.Equal(t, tc.name+"."+tc.ext, m.Layers(loaded)[0].Name())
		})
	}
}

func TestSaveIndexedPNGAndGIF(t *testing.T) {
	m := NewMemory()
	img := m.NewImage(8, 8, RGB, nil)
	l, err := m.AddLayer(img, "g", gradient(8, 8), image.Point{})
	require.NoError(t, err)
	require.NoError(t, m.ConvertIndexed(img, IndexedOptions{Palette: PaletteOptimum, NumColors: 8}))

	dir := t.TempDir()
	for _, tc := range []struct {
		path string
		opts SaveOptions
	}{
		{filepath.Join(dir, "a.png"), PNGOptions{Compression: 6}},
		{filepath.Join(dir, "a.gif"), GIFOptions{}},
	} {
		require.NoError(t, m.Save(img, l, tc.path, tc.opts))
		loaded, err := m.Load(tc.path)
		require.NoError(t, err)
		assert.Equal(t, Indexed, loaded.Base(), tc.path)
		assert.LessOrEqual(t, len(loaded.Palette()), 8)
	}
}

type bogusOptions struct{}

func (bogusOptions) Format() string { return "bogus" }

func TestSaveRejectsUnknownFormat(t *testing.T) {
	m := NewMemory()
	img, l := newRGB(t, m, 2, 2, red)
	err := m.Save(img, l, filepath.Join(t.TempDir(), "x"), bogusOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	other, _ := newRGB(t, m, 2, 2, red)
	err = m.Save(other, l, filepath.Join(t.TempDir(), "y"), PNGOptions{})
	assert.ErrorIs(t, err, ErrForeignLayer)
}

func TestJPEGExifRoundTrip(t *testing.T) {
	m := NewMemory()
	img, l := newRGB(t, m, 4, 4, red)
	exif := append([]byte("Exif\x00\x00"), bytes.Repeat([]byte{0x42}, 32)...)
	img.SetMetadata(MetadataExif, exif)

	path := filepath.Join(t.TempDir(), "e.jpg")
	require.NoError(t, m.Save(img, l, path, JPEGOptions{Quality: 80}))
	loaded, err := m.Load(path)
	require.NoError(t, err)
	assert.Equal(t, exif, loaded.Metadata(MetadataExif))

	m.DetachMetadata(img, MetadataExif)
	require.NoError(t, m.Save(img, l, path, JPEGOptions{Quality: 80}))
	loaded, err = m.Load(path)
	require.NoError(t, err)
	assert.Nil(t, loaded.Metadata(MetadataExif))
}

func TestJPEGFlattensAlpha(t *testing.T) {
	m := NewMemory()
	img := m.NewImage(2, 2, RGB, nil)
	l, err := m.AddLayer(img, "clear", image.NewNRGBA(image.Rect(0, 0, 2, 2)), image.Point{})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, m.Save(img, l, path, JPEGOptions{Quality: 100}))
	loaded, err := m.Load(path)
	require.NoError(t, err)
	r, g, b, _ := m.Rasterize(m.Layers(loaded)[0]).At(0, 0).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestLoadErrors(t *testing.T) {
	m := NewMemory()
	_, err := m.Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	junk := filepath.Join(t.TempDir(), "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("not an image"), 0o644))
	_, err = m.Load(junk)
	assert.Error(t, err)
	assert.Zero(t, m.Live())
}

func TestLoadGray(t *testing.T) {
	m := NewMemory()
	g := image.NewGray(image.Rect(0, 0, 3, 3))
	g.SetGray(1, 1, color.Gray{200})
	path := filepath.Join(t.TempDir(), "g.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, g))
	require.NoError(t, f.Close())

	loaded, err := m.Load(path)
	require.NoError(t, err)
	assert.Equal(t, Gray, loaded.Base())
	assert.False(t, m.IsRGB(m.Layers(loaded)[0]))
}

func TestExtractExifIgnoresOtherSegments(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x04, 'J', 'F', 0xff, 0xda}
	assert.Nil(t, extractExif(data))
	assert.Nil(t, extractExif([]byte("nope")))
}
