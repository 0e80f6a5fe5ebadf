package backend

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	red   = color.NRGBA{255, 0, 0, 255}
	green = color.NRGBA{0, 255, 0, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

func newRGB(t *testing.T, m *Memory, w, h int, c color.NRGBA) (*Image, *Layer) {
	t.Helper()
	img := m.NewImage(w, h, RGB, nil)
	l, err := m.AddLayer(img, "Background", solid(w, h, c), image.Point{})
	require.NoError(t, err)
	return img, l
}

func TestDuplicateIsIndependent(t *testing.T) {
	m := NewMemory()
	img, _ := newRGB(t, m, 4, 4, red)
	img.SetMetadata(MetadataExif, []byte("Exif\x00\x00abc"))

	dup, err := m.Duplicate(img)
	require.NoError(t, err)
	require.NotEqual(t, img.ID(), dup.ID())
	assert.Equal(t, 2, m.Live())

	require.NoError(t, m.Scale(dup, 2, 2))
	m.DetachMetadata(dup, MetadataExif)
	w, h := m.Dimensions(img)
	assert.Equal(t, 4, w)
	assert.Equal(t, 4, h)
	assert.NotNil(t, img.Metadata(MetadataExif))
	assert.Nil(t, dup.Metadata(MetadataExif))
}

func TestDeleteInvalidatesHandle(t *testing.T) {
	m := NewMemory()
	img, l := newRGB(t, m, 2, 2, red)
	m.Delete(img)
	m.Delete(img)

	assert.Zero(t, m.Live())
	assert.True(t, img.Deleted())
	_, err := m.Duplicate(img)
	assert.ErrorIs(t, err, ErrDeleted)
	assert.ErrorIs(t, m.Scale(img, 1, 1), ErrDeleted)
	assert.False(t, m.IsRGB(l))
	w, h := m.Dimensions(img)
	assert.Zero(t, w+h)
}

func TestMergeVisibleLayers(t *testing.T) {
	m := NewMemory()
	img, _ := newRGB(t, m, 4, 4, red)
	top, err := m.AddLayer(img, "patch", solid(2, 2, blue), image.Pt(1, 1))
	require.NoError(t, err)
	hidden, err := m.AddLayer(img, "hidden", solid(4, 4, green), image.Point{})
	require.NoError(t, err)
	hidden.SetVisible(false)

	merged, err := m.MergeVisibleLayers(img)
	require.NoError(t, err)
	assert.Equal(t, "Background", merged.Name())
	assert.False(t, m.HasAlpha(merged))

	layers := m.Layers(img)
	require.Len(t, layers, 2)
	assert.Same(t, hidden, layers[0])
	assert.Same(t, merged, layers[1])
	assert.ErrorIs(t, m.RemoveLayer(img, top), ErrForeignLayer)

	px := m.Rasterize(merged)
	assert.Equal(t, blue, px.(*image.NRGBA).NRGBAAt(1, 1))
	assert.Equal(t, red, px.(*image.NRGBA).NRGBAAt(0, 0))
}

func TestMergeWithoutVisibleLayers(t *testing.T) {
	m := NewMemory()
	_, l := newRGB(t, m, 2, 2, red)
	l.SetVisible(false)
	_, err := m.MergeVisibleLayers(l.owner)
	assert.ErrorIs(t, err, ErrNoVisibleLayers)
}

func TestResizeLayerToImage(t *testing.T) {
	m := NewMemory()
	img := m.NewImage(6, 4, RGB, nil)
	l, err := m.AddLayer(img, "small", solid(2, 2, green), image.Pt(3, 1))
	require.NoError(t, err)
	assert.False(t, m.HasAlpha(l))

	require.NoError(t, m.ResizeLayerToImage(img, l))
	w, h := l.Size()
	assert.Equal(t, 6, w)
	assert.Equal(t, 4, h)
	assert.Equal(t, image.Point{}, l.Offset())
	assert.True(t, m.HasAlpha(l))

	px := m.Rasterize(l).(*image.NRGBA)
	assert.Equal(t, green, px.NRGBAAt(3, 1))
	assert.Equal(t, uint8(0), px.NRGBAAt(0, 0).A)
}

func TestResizeIndexedLayerAddsTransparency(t *testing.T) {
	m := NewMemory()
	pal := color.Palette{red, blue}
	img := m.NewImage(4, 4, Indexed, pal)
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	l, err := m.AddLayer(img, "idx", src, image.Pt(1, 1))
	require.NoError(t, err)

	require.NoError(t, m.ResizeLayerToImage(img, l))
	require.Len(t, img.Palette(), 3)
	p := l.pix.(*image.Paletted)
	assert.Equal(t, uint8(2), p.ColorIndexAt(0, 0))
	assert.Equal(t, uint8(0), p.ColorIndexAt(1, 1))
}

func TestResizeIndexedLayerFullPalette(t *testing.T) {
	m := NewMemory()
	pal := make(color.Palette, 256)
	for i := range pal {
		pal[i] = color.NRGBA{uint8(i), 0, 0, 0xff}
	}
	img := m.NewImage(4, 4, Indexed, pal)
	src := image.NewPaletted(image.Rect(0, 0, 2, 2), pal)
	src.Pix = []uint8{255, 10, 255, 10}
	l, err := m.AddLayer(img, "idx", src, image.Pt(1, 1))
	require.NoError(t, err)

	require.NoError(t, m.ResizeLayerToImage(img, l))
	got := img.Palette()
	require.Len(t, got, 256)
	_, _, _, a := got[255].RGBA()
	assert.Zero(t, a, "last entry becomes transparent")

	p := l.pix.(*image.Paletted)
	assert.Equal(t, uint8(255), p.ColorIndexAt(0, 0))
	assert.Equal(t, uint8(254), p.ColorIndexAt(1, 1), "evicted colour maps to its nearest neighbour")
	assert.Equal(t, uint8(10), p.ColorIndexAt(2, 1))
	assert.True(t, l.alpha)
}

func TestScaleAndCrop(t *testing.T) {
	m := NewMemory(WithFilter(imaging.NearestNeighbor))
	img, l := newRGB(t, m, 10, 10, red)
	_, err := m.AddLayer(img, "corner", solid(5, 5, blue), image.Pt(5, 5))
	require.NoError(t, err)

	require.NoError(t, m.Scale(img, 20, 20))
	w, h := m.Dimensions(img)
	assert.Equal(t, 20, w)
	assert.Equal(t, 20, h)
	lw, lh := l.Size()
	assert.Equal(t, 20, lw)
	assert.Equal(t, 20, lh)
	assert.Equal(t, image.Pt(10, 10), m.Layers(img)[0].Offset())

	require.NoError(t, m.Crop(img, 8, 6, 2, 3))
	w, h = m.Dimensions(img)
	assert.Equal(t, 8, w)
	assert.Equal(t, 6, h)
	assert.Len(t, m.Layers(img), 1, "corner layer falls outside the crop")

	assert.ErrorIs(t, m.Crop(img, 9, 1, 0, 0), ErrInvalidGeometry)
	assert.ErrorIs(t, m.Scale(img, 0, 5), ErrInvalidGeometry)
}

func TestFlattenOverWhite(t *testing.T) {
	m := NewMemory()
	img := m.NewImage(2, 1, RGB, nil)
	half := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	half.SetNRGBA(0, 0, color.NRGBA{0, 0, 0, 255})
	_, err := m.AddLayer(img, "a", half, image.Point{})
	require.NoError(t, err)

	flat, err := m.Flatten(img)
	require.NoError(t, err)
	assert.False(t, m.HasAlpha(flat))
	assert.Len(t, m.Layers(img), 1)

	px := m.Rasterize(flat).(*image.NRGBA)
	assert.Equal(t, color.NRGBA{0, 0, 0, 255}, px.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{255, 255, 255, 255}, px.NRGBAAt(1, 0))
}

func TestConvertRGB(t *testing.T) {
	m := NewMemory()
	pal := color.Palette{red, green}
	img := m.NewImage(2, 2, Indexed, pal)
	l, err := m.AddLayer(img, "idx", image.NewPaletted(image.Rect(0, 0, 2, 2), pal), image.Point{})
	require.NoError(t, err)
	require.True(t, m.IsIndexed(l))

	require.NoError(t, m.ConvertRGB(img))
	assert.True(t, m.IsRGB(l))
	assert.Nil(t, img.Palette())
	assert.Equal(t, red, m.Rasterize(l).(*image.NRGBA).NRGBAAt(0, 0))
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(" Lanczos ")
	require.NoError(t, err)
	assert.Equal(t, 3.0, f.Support)

	_, err = ParseFilter("bicubic-ish")
	assert.Error(t, err)
}
