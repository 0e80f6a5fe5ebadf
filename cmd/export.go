package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/AnyUserName/webx/internal/config"
	"github.com/AnyUserName/webx/internal/hasher"
	"github.com/AnyUserName/webx/internal/manifest"
	"github.com/AnyUserName/webx/internal/pipeline"
	"github.com/AnyUserName/webx/internal/prefs"
)

var (
	exportConfig string
	exportOut    string
	exportResize string
	exportScale  float64
	exportCrop   string
	exportReport string
	exportLayers []string
	exportOpts   = config.Default()
)

var exportCmd = &cobra.Command{
	Use:   "export <image>",
	Short: "Export one image to a web format",
	Long: `Loads an image, applies an optional resize and crop, and saves it with
the selected encoder (jpeg, png24, png8, gif).

The crop is given in resized coordinates as WxH+X+Y. Out of range values
are clipped rather than rejected. Without --format the last format used is
taken from the preferences file.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportConfig, "config", "c", "", "session file supplying defaults for every flag")
	f.StringVarP(&exportOut, "out", "o", "", "output file (default: <name>-web.<ext> next to the source)")
	f.StringVarP(&exportOpts.Format, "format", "f", exportOpts.Format, "encoder: jpeg, png24, png8, gif")
	f.StringVar(&exportOpts.Profile, "profile", "", "apply a profile's quality and palette settings")
	f.StringVar(&exportResize, "resize", "", "output size WxH")
	f.Float64Var(&exportScale, "scale", 0, "scale factor applied to the source size")
	f.StringVar(&exportCrop, "crop", "", "crop WxH+X+Y in resized coordinates")
	f.StringSliceVar(&exportLayers, "layer", nil, "overlay image path[+X+Y], repeatable")
	f.StringVar(&exportOpts.Resample, "resample", exportOpts.Resample, "resample filter")
	f.StringVar(&exportReport, "report", "", "write a manifest for the export to this path")
	addEncoderFlags(f, exportOpts)
	rootCmd.AddCommand(exportCmd)
}

// addEncoderFlags binds encoder settings on s to fs.
func addEncoderFlags(fs *pflag.FlagSet, s *config.Session) {
	fs.IntVarP(&s.JPEG.Quality, "quality", "q", s.JPEG.Quality, "JPEG quality 1-100")
	fs.Float64Var(&s.JPEG.Smoothing, "smoothing", s.JPEG.Smoothing, "JPEG smoothing 0-1")
	fs.BoolVar(&s.JPEG.StripMetadata, "strip-metadata", s.JPEG.StripMetadata, "drop EXIF from JPEG output")
	fs.IntVar(&s.PNG.Compression, "compression", s.PNG.Compression, "PNG compression 0-9")
	fs.StringVar(&s.Indexed.Palette, "palette", s.Indexed.Palette, "palette: optimum, reuse, web, mono")
	fs.IntVar(&s.Indexed.Colors, "colors", s.Indexed.Colors, "palette size 2-256")
	fs.StringVar(&s.Indexed.Dither, "dither", s.Indexed.Dither, "dither: none, fs, fs-low-bleed, positioned")
	fs.BoolVar(&s.Indexed.AlphaDither, "alpha-dither", s.Indexed.AlphaDither, "dither transparency")
	fs.BoolVar(&s.Indexed.RemoveUnused, "remove-unused", s.Indexed.RemoveUnused, "drop unused palette entries")
}

// flagSession merges the changed flags of cmd over base.
func flagSession(cmd *cobra.Command, base, flags *config.Session) {
	fs := cmd.Flags()
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("format", func() { base.Format = flags.Format })
	set("profile", func() { base.Profile = flags.Profile })
	set("resample", func() { base.Resample = flags.Resample })
	set("quality", func() { base.JPEG.Quality = flags.JPEG.Quality })
	set("smoothing", func() { base.JPEG.Smoothing = flags.JPEG.Smoothing })
	set("strip-metadata", func() { base.JPEG.StripMetadata = flags.JPEG.StripMetadata })
	set("compression", func() { base.PNG.Compression = flags.PNG.Compression })
	set("palette", func() { base.Indexed.Palette = flags.Indexed.Palette })
	set("colors", func() { base.Indexed.Colors = flags.Indexed.Colors })
	set("dither", func() { base.Indexed.Dither = flags.Indexed.Dither })
	set("alpha-dither", func() { base.Indexed.AlphaDither = flags.Indexed.AlphaDither })
	set("remove-unused", func() { base.Indexed.RemoveUnused = flags.Indexed.RemoveUnused })
}

// parseLayer parses path or path+X+Y.
func parseLayer(s string) (config.Layer, error) {
	i := strings.IndexAny(s, "+")
	if i < 0 {
		return config.Layer{Path: s}, nil
	}
	r, err := parseCrop("1x1" + s[i:])
	if err != nil {
		return config.Layer{}, fmt.Errorf("invalid layer %q: want path+X+Y", s)
	}
	return config.Layer{Path: s[:i], X: r.X, Y: r.Y}, nil
}

func resolvePrefsPath() string {
	if prefsPath != "" {
		return prefsPath
	}
	p, err := prefs.DefaultPath()
	if err != nil {
		return ""
	}
	return p
}

// exportSession builds the session for runExport from the config file,
// flags and preferences.
func exportSession(cmd *cobra.Command, source string) (*config.Session, prefs.Prefs, error) {
	s := config.Default()
	if exportConfig != "" {
		loaded, err := config.Load(exportConfig)
		if err != nil {
			return nil, prefs.Prefs{}, err
		}
		s = loaded
	}

	var pr prefs.Prefs
	if path := resolvePrefsPath(); path != "" {
		loaded, found, err := prefs.Load(path)
		if err != nil {
			logger.Warn("ignoring preferences", zap.String("path", path), zap.Error(err))
		} else if found {
			pr = loaded
			if exportConfig == "" && pr.LastFormat != "" {
				s.Format = pr.LastFormat
			}
		}
	}

	flagSession(cmd, s, exportOpts)
	s.Source = source
	for _, spec := range exportLayers {
		l, err := parseLayer(spec)
		if err != nil {
			return nil, pr, err
		}
		s.Layers = append(s.Layers, l)
	}
	if err := s.Validate(); err != nil {
		return nil, pr, err
	}
	return s, pr, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	start := time.Now()
	s, pr, err := exportSession(cmd, args[0])
	if err != nil {
		return err
	}
	if exportResize != "" && exportScale > 0 {
		return fmt.Errorf("--resize and --scale are mutually exclusive")
	}

	sess, err := openSession(s, sessionOptions{})
	if err != nil {
		return err
	}
	defer sess.Close()
	p := sess.p

	switch {
	case exportResize != "":
		size, err := parseSize(exportResize)
		if err != nil {
			return err
		}
		p.Resize(size.Width, size.Height)
	case exportScale > 0:
		size := scaledSize(p.OriginalSize(), exportScale)
		p.Resize(size.Width, size.Height)
	}
	if exportCrop != "" {
		r, err := parseCrop(exportCrop)
		if err != nil {
			return err
		}
		p.Crop(r.Width, r.Height, r.X, r.Y, true)
	}

	enc := p.Encoder()
	out := exportOut
	if out == "" {
		base := strings.TrimSuffix(s.Source, filepath.Ext(s.Source))
		out = base + "-web." + enc.Extension()
	}
	logVerbose("source: %s (%s)", s.Source, p.OriginalSize())
	logVerbose("resize: %s, crop: %dx%d+%d+%d", p.ResizeSize(), p.CropRect().Width, p.CropRect().Height, p.CropRect().X, p.CropRect().Y)

	var size int64
	p.OnOutputChanged(func(o pipeline.Output) { size = o.SizeBytes })
	if err := p.SaveToFile(out); err != nil {
		return err
	}
	crop := p.CropRect()

	fmt.Printf("  %s → %s\n", s.Source, out)
	fmt.Printf("  Encoder: %s  Size: %dx%d  File: %s  (%s)\n",
		enc.Name(), crop.Width, crop.Height, formatBytes(size), time.Since(start).Round(time.Millisecond))

	if path := resolvePrefsPath(); path != "" {
		pr.LastFormat = enc.Name()
		if err := prefs.Save(path, pr); err != nil {
			logger.Warn("could not save preferences", zap.String("path", path), zap.Error(err))
		}
	}

	if exportReport != "" {
		return writeExportReport(sess, out, exportReport)
	}
	return nil
}

// writeExportReport writes a single-asset manifest for the file at out.
func writeExportReport(sess *session, out, reportPath string) error {
	p := sess.p
	srcHash, srcSize, err := hasher.FileHash(sess.cfg.Source, hasher.HexLen)
	if err != nil {
		return err
	}
	outHash, outSize, err := hasher.FileHash(out, hasher.HexLen)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(filepath.Dir(reportPath), out)
	if err != nil {
		rel = out
	}

	orig, resize, crop := p.OriginalSize(), p.ResizeSize(), p.CropRect()
	hasAlpha := false
	for _, l := range sess.b.Layers(sess.source) {
		hasAlpha = hasAlpha || sess.b.HasAlpha(l)
	}
	asset := manifest.Asset{
		Original: manifest.OriginalInfo{
			Width:    orig.Width,
			Height:   orig.Height,
			Format:   strings.TrimPrefix(strings.ToLower(filepath.Ext(sess.cfg.Source)), "."),
			Size:     srcSize,
			HasAlpha: hasAlpha,
			Layers:   sess.source.NumLayers(),
		},
		SourceHash:  srcHash,
		AspectRatio: float64(orig.Width) / float64(orig.Height),
		Variants: []manifest.Variant{{
			Encoder:      p.Encoder().Name(),
			Width:        resize.Width,
			Height:       resize.Height,
			OutputWidth:  crop.Width,
			OutputHeight: crop.Height,
			Size:         outSize,
			Hash:         outHash,
			Path:         filepath.ToSlash(rel),
		}},
	}
	if crop.Size() != resize {
		asset.Crop = &manifest.Rect{X: crop.X, Y: crop.Y, Width: crop.Width, Height: crop.Height}
	}

	m := manifest.New(sess.cfg.Profile)
	m.BuildInfo = &manifest.BuildInfo{Workers: 1, Resample: sess.cfg.Resample}
	key := strings.TrimSuffix(filepath.Base(sess.cfg.Source), filepath.Ext(sess.cfg.Source))
	m.Assets[key] = asset
	if err := os.MkdirAll(filepath.Dir(reportPath), 0o755); err != nil {
		return err
	}
	if err := manifest.WriteJSON(m, reportPath); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logVerbose("report: %s", reportPath)
	return nil
}
