package backend

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var exifHeader = []byte("Exif\x00\x00")

// Save writes layer of img to path in the format selected by opts.
func (m *Memory) Save(img *Image, layer *Layer, path string, opts SaveOptions) error {
	if err := check(img); err != nil {
		return err
	}
	if err := owns(img, layer); err != nil {
		return err
	}

	var buf bytes.Buffer
	var err error
	switch o := opts.(type) {
	case JPEGOptions:
		err = encodeJPEG(&buf, img, layer, o)
	case PNGOptions:
		err = encodePNG(&buf, layer, o)
	case GIFOptions:
		err = encodeGIF(&buf, layer)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedFormat, opts)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", opts.Format(), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	m.logger.Debug("saved image",
		zap.String("path", path), zap.String("format", opts.Format()), zap.Int("bytes", buf.Len()))
	return nil
}

func encodeJPEG(w io.Writer, img *Image, layer *Layer, o JPEGOptions) error {
	src := imaging.Clone(layer.pix)
	if layer.alpha {
		bg := imaging.New(src.Rect.Dx(), src.Rect.Dy(), color.White)
		src = imaging.Overlay(bg, src, image.Point{}, 1.0)
	}
	if o.Smoothing > 0 {
		src = imaging.Blur(src, o.Smoothing*2)
	}
	q := min(max(o.Quality, 1), 100)

	var body bytes.Buffer
	if err := jpeg.Encode(&body, src, &jpeg.Options{Quality: q}); err != nil {
		return err
	}
	data := body.Bytes()
	exif := img.metadata[MetadataExif]
	if len(exif) == 0 || len(exif)+2 > 0xffff || len(data) < 2 {
		_, err := w.Write(data)
		return err
	}
	// APP1 goes right after SOI.
	seg := make([]byte, 4, 4+len(exif))
	seg[0], seg[1] = 0xff, 0xe1
	binary.BigEndian.PutUint16(seg[2:], uint16(len(exif)+2))
	seg = append(seg, exif...)
	for _, part := range [][]byte{data[:2], seg, data[2:]} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

func pngLevel(c int) png.CompressionLevel {
	switch {
	case c <= 0:
		return png.NoCompression
	case c <= 3:
		return png.BestSpeed
	case c <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func encodePNG(w io.Writer, layer *Layer, o PNGOptions) error {
	enc := png.Encoder{CompressionLevel: pngLevel(o.Compression)}
	return enc.Encode(w, layer.pix)
}

func encodeGIF(w io.Writer, layer *Layer) error {
	return gif.Encode(w, layer.pix, &gif.Options{NumColors: 256, Drawer: draw.FloydSteinberg})
}

// Load decodes the file at path into a new single-layer image. Paletted
// sources become Indexed images, grayscale sources Gray.
func (m *Memory) Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := src.Bounds()

	base := RGB
	var pal color.Palette
	switch s := src.(type) {
	case *image.Paletted:
		base, pal = Indexed, s.Palette
	case *image.Gray, *image.Gray16:
		base = Gray
	}
	img := m.NewImage(b.Dx(), b.Dy(), base, pal)
	l := m.newLayer(img, filepath.Base(path), toModel(src, base, img.palette))
	l.alpha = !isOpaque(src)
	img.layers = []*Layer{l}

	if format == "jpeg" {
		if exif := extractExif(data); exif != nil {
			img.metadata[MetadataExif] = exif
		}
	}
	m.logger.Debug("loaded image",
		zap.String("path", path), zap.String("format", format),
		zap.Int("width", b.Dx()), zap.Int("height", b.Dy()), zap.Stringer("base", base))
	return img, nil
}

// extractExif returns the first APP1 Exif payload of a JPEG stream.
func extractExif(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xff || data[1] != 0xd8 {
		return nil
	}
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xff {
			return nil
		}
		marker := data[i+1]
		if marker == 0xda || marker == 0xd9 {
			return nil
		}
		n := int(binary.BigEndian.Uint16(data[i+2:]))
		if n < 2 || i+2+n > len(data) {
			return nil
		}
		payload := data[i+4 : i+2+n]
		if marker == 0xe1 && bytes.HasPrefix(payload, exifHeader) {
			return append([]byte(nil), payload...)
		}
		i += 2 + n
	}
	return nil
}

func (m *Memory) FileSize(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
