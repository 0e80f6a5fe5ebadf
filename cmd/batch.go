package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/batch"
	"github.com/AnyUserName/webx/internal/encoder"
	"github.com/AnyUserName/webx/internal/manifest"
	"github.com/AnyUserName/webx/internal/profile"
)

var (
	batchOutDir    string
	batchProfile   string
	batchWorkers   int
	batchWidths    []int
	batchFormats   []string
	batchQuality   int
	batchCrop      string
	batchResample  string
	batchNoRegress bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <input_dir>",
	Short: "Export every image in a directory with a profile",
	Long: `Scans the input directory for images (png, jpg, jpeg, gif, bmp, tiff, webp),
exports each profile width with each profile encoder, and writes a manifest.

Output filenames are content-addressed: <key>.<w>.<hash>.<ext>`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchOutDir, "out", "o", "./webx_out", "output directory")
	f.StringVarP(&batchProfile, "profile", "p", "web", "export profile ("+strings.Join(profile.Names(), ", ")+")")
	f.IntVarP(&batchWorkers, "workers", "w", 0, "parallel workers (0 = NumCPU)")
	f.IntSliceVar(&batchWidths, "widths", nil, "custom widths (overrides profile)")
	f.StringSliceVar(&batchFormats, "formats", nil, "custom encoders (overrides profile)")
	f.IntVarP(&batchQuality, "quality", "q", 0, "JPEG quality 1-100 (0 = profile default)")
	f.StringVar(&batchCrop, "crop", "", "crop WxH+X+Y in source coordinates, applied to every width")
	f.StringVar(&batchResample, "resample", "lanczos", "resample filter")
	f.BoolVar(&batchNoRegress, "no-regress-size", true, "skip variants larger than the source file")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	start := time.Now()

	absInput, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve input path: %w", err)
	}
	absOutput, err := filepath.Abs(batchOutDir)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	prof := profile.Get(batchProfile)
	if batchWidths != nil {
		prof.Widths = batchWidths
	}
	if batchFormats != nil {
		prof.Formats = batchFormats
	}
	if batchQuality > 0 {
		prof.Quality = batchQuality
	}
	if _, err := prof.Encoders(); err != nil {
		return err
	}

	cfg := batch.Config{
		InputDir:      absInput,
		OutputDir:     absOutput,
		Profile:       prof,
		Workers:       batchWorkers,
		NoRegressSize: batchNoRegress,
		Resample:      batchResample,
		Logger:        logger.Named("batch"),
	}
	if batchCrop != "" {
		r, err := parseCrop(batchCrop)
		if err != nil {
			return err
		}
		cfg.Crop = &r
	}
	filter, err := backend.ParseFilter(batchResample)
	if err != nil {
		return err
	}
	cfg.Backend = backend.NewMemory(backend.WithLogger(logger.Named("backend")), backend.WithFilter(filter))

	logVerbose("input:   %s", absInput)
	logVerbose("output:  %s", absOutput)
	logVerbose("profile: %s (widths=%v, formats=%v, quality=%d)", prof.Name, prof.Widths, prof.Formats, prof.Quality)

	if err := os.MkdirAll(absOutput, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	m, err := batch.New(cfg).Run(ctx)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	manifestPath := filepath.Join(absOutput, manifest.FileName)
	if err := manifest.WriteJSON(m, manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	printBatchReport(m, time.Since(start))
	return nil
}

func printBatchReport(m *manifest.Manifest, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Println("║               webx batch complete                ║")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()

	stats := m.Stats
	ratio := float64(0)
	if stats.TotalInputBytes > 0 {
		ratio = float64(stats.TotalOutputBytes) / float64(stats.TotalInputBytes) * 100
	}

	fmt.Printf("  Assets:      %d\n", stats.TotalAssets)
	fmt.Printf("  Variants:    %d\n", stats.TotalVariants)
	fmt.Printf("  Input size:  %s\n", formatBytes(stats.TotalInputBytes))
	fmt.Printf("  Output size: %s\n", formatBytes(stats.TotalOutputBytes))
	fmt.Printf("  Ratio:       %.1f%% of original\n", ratio)
	if stats.Failed > 0 {
		fmt.Printf("  Failed:      %d sources\n", stats.Failed)
	}
	fmt.Printf("  Time:        %s\n", elapsed.Round(time.Millisecond))
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:     %d  (resample %s)\n", m.BuildInfo.Workers, m.BuildInfo.Resample)
	}
	fmt.Println()

	if len(m.Assets) > 0 {
		type assetSize struct {
			key        string
			inputSize  int64
			outputSize int64
		}
		var items []assetSize
		for key, a := range m.Assets {
			var outSum int64
			for _, v := range a.Variants {
				outSum += v.Size
			}
			items = append(items, assetSize{key, a.Original.Size, outSum})
		}
		sort.Slice(items, func(i, j int) bool {
			return items[i].inputSize > items[j].inputSize
		})
		n := min(len(items), 10)
		fmt.Printf("  Top %d heaviest (original → exported):\n", n)
		for _, it := range items[:n] {
			fmt.Printf("    %-40s %8s → %8s\n",
				truncKey(it.key, 40), formatBytes(it.inputSize), formatBytes(it.outputSize))
		}
		fmt.Println()
	}

	fmt.Printf("  Encoders:    %s\n", strings.Join(usedEncoders(m), ", "))
	data, _ := json.Marshal(m)
	fmt.Printf("  Manifest:    %s (%s)\n", manifest.FileName, formatBytes(int64(len(data))))
	fmt.Println()
}

// signalContext returns cmd's context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// usedEncoders lists the encoders present in m in registry order.
func usedEncoders(m *manifest.Manifest) []string {
	set := map[string]bool{}
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			set[v.Encoder] = true
		}
	}
	var out []string
	for _, name := range encoder.NewRegistry().Names() {
		if set[name] {
			out = append(out, name)
		}
	}
	return out
}
