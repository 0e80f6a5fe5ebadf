package batch

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/manifest"
	"github.com/AnyUserName/webx/internal/pipeline"
	"github.com/AnyUserName/webx/internal/profile"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 6), uint8(y * 12), 90, 0xff})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func testProfile() profile.Profile {
	return profile.Profile{
		Name:    "test",
		Widths:  []int{16, 32},
		Formats: []string{"jpeg", "png8"},
		Quality: 80,
		Colors:  16,
	}
}

func TestScanImages(t *testing.T) {
	in := t.TempDir()
	writePNG(t, filepath.Join(in, "b.png"), 4, 4)
	writePNG(t, filepath.Join(in, "icons", "a.PNG"), 4, 4)
	writePNG(t, filepath.Join(in, ".cache", "c.png"), 4, 4)
	writePNG(t, filepath.Join(in, "out", "d.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0o644))

	sources, err := ScanImages(in, filepath.Join(in, "out"))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "b", sources[0].Key)
	assert.Equal(t, "icons/a", sources[1].Key)
	assert.Equal(t, "icons/a.PNG", sources[1].RelPath)
	assert.Equal(t, "png", sources[1].Format)
	assert.Positive(t, sources[0].Size)

	assert.True(t, IsImage("x.JPEG"))
	assert.False(t, IsImage("x.svg"))
}

func TestRunWritesVariantsAndManifest(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(in, "hero.png"), 40, 20)
	writePNG(t, filepath.Join(in, "nested", "logo.png"), 40, 20)

	mem := backend.NewMemory(backend.WithFilter(imaging.NearestNeighbor))
	r := New(Config{InputDir: in, OutputDir: out, Profile: testProfile(), Workers: 2, Backend: mem})
	m, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, m.Assets, 2)
	hero := m.Assets["hero"]
	assert.Equal(t, 40, hero.Original.Width)
	assert.Equal(t, 2.0, hero.AspectRatio)
	assert.NotEmpty(t, hero.SourceHash)
	require.Len(t, hero.Variants, 4)
	assert.Equal(t, "jpeg", hero.Variants[0].Encoder)
	assert.Equal(t, 16, hero.Variants[0].Width)
	assert.Equal(t, 8, hero.Variants[0].OutputHeight)
	assert.Equal(t, "png8", hero.Variants[1].Encoder)

	assert.Equal(t, 8, m.Stats.TotalVariants)
	assert.Empty(t, manifest.Validate(m, out))
	assert.Equal(t, 0, mem.Live())

	_, err = os.Stat(filepath.Join(out, "nested"))
	assert.NoError(t, err)
}

func TestRunCropFollowsResize(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(in, "hero.png"), 40, 20)

	p := testProfile()
	p.Formats = []string{"png24"}
	r := New(Config{
		InputDir: in, OutputDir: out, Profile: p,
		Crop:    &pipeline.Rect{X: 0, Y: 0, Width: 20, Height: 10},
		Backend: backend.NewMemory(backend.WithFilter(imaging.NearestNeighbor)),
	})
	m, err := r.Run(context.Background())
	require.NoError(t, err)

	vs := m.Assets["hero"].Variants
	require.Len(t, vs, 2)
	assert.Equal(t, [2]int{8, 4}, [2]int{vs[0].OutputWidth, vs[0].OutputHeight})
	assert.Equal(t, [2]int{16, 8}, [2]int{vs[1].OutputWidth, vs[1].OutputHeight})
	require.NotNil(t, m.Assets["hero"].Crop)
	assert.Empty(t, manifest.Validate(m, out))
}

func TestRunFailures(t *testing.T) {
	_, err := New(Config{InputDir: t.TempDir(), OutputDir: t.TempDir(), Profile: testProfile()}).Run(context.Background())
	assert.Error(t, err, "empty input")

	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "broken.png"), []byte("not a png"), 0o644))
	_, err = New(Config{InputDir: in, OutputDir: t.TempDir(), Profile: testProfile()}).Run(context.Background())
	assert.Error(t, err, "all failed")

	writePNG(t, filepath.Join(in, "ok.png"), 20, 20)
	m, err := New(Config{InputDir: in, OutputDir: t.TempDir(), Profile: testProfile()}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, m.Stats.Failed)
	assert.Len(t, m.Assets, 1)
}

func TestRunCancelled(t *testing.T) {
	in := t.TempDir()
	writePNG(t, filepath.Join(in, "a.png"), 20, 20)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{InputDir: in, OutputDir: t.TempDir(), Profile: testProfile()}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNoRegressSize(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(in, "tiny.png"), 2, 2)

	p := testProfile()
	p.Formats = []string{"jpeg"}
	m, err := New(Config{InputDir: in, OutputDir: out, Profile: p, NoRegressSize: true}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, m.Assets["tiny"].Variants)
}
