package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AnyUserName/webx/internal/encoder"
	"github.com/AnyUserName/webx/internal/manifest"
)

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_manifest>",
	Short: "Display statistics for an export directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, args []string) error {
	m, _, err := manifest.ReadJSON(args[0])
	if err != nil {
		return err
	}
	printStats(m)
	return nil
}

func printStats(m *manifest.Manifest) {
	fmt.Println()
	fmt.Printf("  Manifest version: %d\n", m.Version)
	if m.RunID != "" {
		fmt.Printf("  Run:              %s\n", m.RunID)
	}
	fmt.Printf("  Generated:        %s\n", m.GeneratedAt)
	fmt.Printf("  Profile:          %s\n", m.Profile)
	if m.BuildInfo != nil {
		fmt.Printf("  Workers:          %d\n", m.BuildInfo.Workers)
		if m.BuildInfo.Resample != "" {
			fmt.Printf("  Resample:         %s\n", m.BuildInfo.Resample)
		}
	}
	fmt.Println()

	s := m.Stats
	fmt.Printf("  Total assets:     %d\n", s.TotalAssets)
	fmt.Printf("  Total variants:   %d\n", s.TotalVariants)
	fmt.Printf("  Input size:       %s\n", formatBytes(s.TotalInputBytes))
	fmt.Printf("  Output size:      %s\n", formatBytes(s.TotalOutputBytes))
	if s.TotalInputBytes > 0 {
		ratio := float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100
		fmt.Printf("  Compression:      %.1f%% of original\n", ratio)
	}
	if s.Failed > 0 {
		fmt.Printf("  Failed sources:   %d\n", s.Failed)
	}
	fmt.Println()

	type encStat struct {
		count int
		bytes int64
	}
	byEncoder := map[string]encStat{}
	byWidth := map[int]int{}
	for _, a := range m.Assets {
		for _, v := range a.Variants {
			es := byEncoder[v.Encoder]
			es.count++
			es.bytes += v.Size
			byEncoder[v.Encoder] = es
			byWidth[v.Width]++
		}
	}

	fmt.Println("  Encoder breakdown:")
	for _, name := range encoder.NewRegistry().Names() {
		if es, ok := byEncoder[name]; ok {
			avg := es.bytes / int64(es.count)
			fmt.Printf("    %-6s  %4d files  %9s  (avg %s)\n", name, es.count, formatBytes(es.bytes), formatBytes(avg))
		}
	}
	fmt.Println()

	widths := make([]int, 0, len(byWidth))
	for w := range byWidth {
		widths = append(widths, w)
	}
	sort.Ints(widths)
	fmt.Println("  Width breakdown:")
	for _, w := range widths {
		fmt.Printf("    %5dpx  %4d variants\n", w, byWidth[w])
	}
	fmt.Println()

	cropped := 0
	var warnings []string
	for key, a := range m.Assets {
		if a.Crop != nil {
			cropped++
		}
		if len(a.Variants) == 0 {
			warnings = append(warnings, fmt.Sprintf("asset %q has no variants", key))
		}
	}
	sort.Strings(warnings)
	fmt.Printf("  Cropped assets:   %d / %d\n", cropped, len(m.Assets))
	if len(warnings) > 0 {
		fmt.Println()
		fmt.Printf("  Warnings (%d):\n", len(warnings))
		for _, w := range warnings {
			fmt.Printf("    ⚠ %s\n", w)
		}
	}
	fmt.Println()
}
