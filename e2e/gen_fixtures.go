//go:build ignore

// gen_fixtures creates small images and a session file for a webx smoke test.
// Usage: go run gen_fixtures.go <output_dir>
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
)

const session = `source: %[1]s
output: %[2]s
format: png8
resize:
  width: 320
  height: 180
crop:
  x: 20
  y: 10
  width: 280
  height: 160
indexed:
  colors: 64
  dither: fs
layers:
  - path: %[3]s
    x: 8
    y: 8
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gen_fixtures <output_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]
	if err := os.MkdirAll(filepath.Join(dir, "icons"), 0o755); err != nil {
		panic(err)
	}

	banner := filepath.Join(dir, "banner.jpg")
	logo := filepath.Join(dir, "logo.png")
	writeJPEG(banner, gradient(400, 225))
	writePNG(logo, alphaGradient(64, 64))
	for i := 1; i <= 3; i++ {
		writeGIF(filepath.Join(dir, "icons", fmt.Sprintf("icon-%d.gif", i)), checker(48, 48, uint8(i*60)))
	}

	body := fmt.Sprintf(session, banner, filepath.Join(dir, "preview"), logo)
	if err := os.WriteFile(filepath.Join(dir, "session.yaml"), []byte(body), 0o644); err != nil {
		panic(err)
	}

	fmt.Fprintf(os.Stderr, "[gen_fixtures] created 5 images and session.yaml in %s\n", dir)
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

// checker is a paletted two-tone pattern so GIF sources load as indexed.
func checker(w, h int, base uint8) *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette.WebSafe)
	a := img.Palette.Index(color.NRGBA{R: base, G: 255 - base, B: 102, A: 255})
	b := img.Palette.Index(color.White)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/8+y/8)%2 == 0 {
				img.SetColorIndex(x, y, uint8(a))
			} else {
				img.SetColorIndex(x, y, uint8(b))
			}
		}
	}
	return img
}

func alphaGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 60, B: 30, A: uint8(x * 255 / w)})
		}
	}
	return img
}

func create(path string) *os.File {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	return f
}

func writePNG(path string, img image.Image) {
	f := create(path)
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		panic(err)
	}
}

func writeJPEG(path string, img image.Image) {
	f := create(path)
	defer f.Close()
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		panic(err)
	}
}

func writeGIF(path string, img *image.Paletted) {
	f := create(path)
	defer f.Close()
	if err := gif.Encode(f, img, nil); err != nil {
		panic(err)
	}
}
