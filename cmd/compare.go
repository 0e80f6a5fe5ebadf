package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/webx/internal/config"
	"github.com/AnyUserName/webx/internal/hasher"
	"github.com/AnyUserName/webx/internal/manifest"
	"github.com/AnyUserName/webx/internal/pipeline"
)

var (
	compareResize string
	compareCrop   string
	compareOutDir string
	compareSort   bool
	compareOpts   = config.Default()
)

var compareCmd = &cobra.Command{
	Use:   "compare <image>",
	Short: "Render an image with every encoder and compare sizes",
	Long: `Renders the image once per encoder after the same resize and crop and
prints the encoded size of each. With --out-dir every result is also saved
and a manifest is written next to them.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompare,
}

func init() {
	f := compareCmd.Flags()
	f.StringVar(&compareResize, "resize", "", "output size WxH")
	f.StringVar(&compareCrop, "crop", "", "crop WxH+X+Y in resized coordinates")
	f.StringVar(&compareOutDir, "out-dir", "", "save every result and a manifest here")
	f.BoolVar(&compareSort, "sort", false, "sort rows by size")
	f.StringVar(&compareOpts.Resample, "resample", compareOpts.Resample, "resample filter")
	addEncoderFlags(f, compareOpts)
	rootCmd.AddCommand(compareCmd)
}

type compareRow struct {
	encoder string
	size    int64
	elapsed time.Duration
	err     error
}

func runCompare(cmd *cobra.Command, args []string) error {
	s := config.Default()
	flagSession(cmd, s, compareOpts)
	s.Source = args[0]
	if err := s.Validate(); err != nil {
		return err
	}

	// Ticks never fire: every cycle is driven by Flush.
	sess, err := openSession(s, sessionOptions{delay: time.Hour})
	if err != nil {
		return err
	}
	defer sess.Close()
	p := sess.p

	if compareResize != "" {
		size, err := parseSize(compareResize)
		if err != nil {
			return err
		}
		p.Resize(size.Width, size.Height)
	}
	if compareCrop != "" {
		r, err := parseCrop(compareCrop)
		if err != nil {
			return err
		}
		p.Crop(r.Width, r.Height, r.X, r.Y, true)
	}

	var last pipeline.Output
	p.OnOutputChanged(func(o pipeline.Output) { last = o })

	var m *manifest.Manifest
	if compareOutDir != "" {
		if err := os.MkdirAll(compareOutDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		m = manifest.New("")
	}
	key := strings.TrimSuffix(filepath.Base(s.Source), filepath.Ext(s.Source))
	var variants []manifest.Variant

	var rows []compareRow
	for _, name := range sess.reg.Names() {
		enc := sess.reg.Get(name)
		start := time.Now()
		p.SetEncoder(enc)
		p.Flush()
		row := compareRow{encoder: name, size: last.SizeBytes, elapsed: time.Since(start), err: last.Err}
		rows = append(rows, row)
		logVerbose("%s: %s in %s", name, formatBytes(row.size), row.elapsed.Round(time.Millisecond))

		if m == nil || row.err != nil {
			continue
		}
		file := fmt.Sprintf("%s.%s.%s", key, name, enc.Extension())
		out := filepath.Join(compareOutDir, file)
		if err := p.SaveToFile(out); err != nil {
			return err
		}
		hash, size, err := hasher.FileHash(out, hasher.HexLen)
		if err != nil {
			return err
		}
		resize, crop := p.ResizeSize(), p.CropRect()
		variants = append(variants, manifest.Variant{
			Encoder: name, Width: resize.Width, Height: resize.Height,
			OutputWidth: crop.Width, OutputHeight: crop.Height,
			Size: size, Hash: hash, Path: file,
		})
	}

	srcInfo, err := os.Stat(s.Source)
	if err != nil {
		return err
	}
	printCompareReport(s.Source, srcInfo.Size(), p.CropRect(), rows)

	if m != nil {
		srcHash, _, err := hasher.FileHash(s.Source, hasher.HexLen)
		if err != nil {
			return err
		}
		orig := p.OriginalSize()
		m.Assets[key] = manifest.Asset{
			Original: manifest.OriginalInfo{
				Width: orig.Width, Height: orig.Height,
				Format: strings.TrimPrefix(strings.ToLower(filepath.Ext(s.Source)), "."),
				Size:   srcInfo.Size(), Layers: sess.source.NumLayers(),
			},
			SourceHash:  srcHash,
			AspectRatio: float64(orig.Width) / float64(orig.Height),
			Variants:    variants,
		}
		m.BuildInfo = &manifest.BuildInfo{Workers: 1, Resample: s.Resample}
		path := filepath.Join(compareOutDir, manifest.FileName)
		if err := manifest.WriteJSON(m, path); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		fmt.Printf("  Manifest:    %s\n\n", path)
	}
	return nil
}

func printCompareReport(source string, sourceSize int64, crop pipeline.Rect, rows []compareRow) {
	if compareSort {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].size < rows[j].size })
	}

	fmt.Println()
	fmt.Printf("  Source: %s (%s)\n", truncKey(source, 50), formatBytes(sourceSize))
	fmt.Printf("  Output: %dx%d\n", crop.Width, crop.Height)
	fmt.Println()
	fmt.Printf("    %-7s %10s %8s %8s\n", "encoder", "size", "ratio", "time")
	for _, r := range rows {
		if r.err != nil {
			fmt.Printf("    %-7s  failed: %v\n", r.encoder, r.err)
			continue
		}
		ratio := float64(0)
		if sourceSize > 0 {
			ratio = float64(r.size) / float64(sourceSize) * 100
		}
		fmt.Printf("    %-7s %10s %7.1f%% %8s\n",
			r.encoder, formatBytes(r.size), ratio, r.elapsed.Round(time.Millisecond))
	}
	fmt.Println()
}
