package cmd

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/AnyUserName/webx/internal/pipeline"
)

var (
	sizeRe = regexp.MustCompile(`^(\d+)[xX](\d+)$`)
	cropRe = regexp.MustCompile(`^(\d+)[xX](\d+)([+-]\d+)([+-]\d+)$`)
)

// parseSize parses WxH.
func parseSize(s string) (pipeline.Size, error) {
	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return pipeline.Size{}, fmt.Errorf("invalid size %q: want WxH", s)
	}
	w, _ := strconv.Atoi(m[1])
	h, _ := strconv.Atoi(m[2])
	if w < 1 || h < 1 {
		return pipeline.Size{}, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	return pipeline.Size{Width: w, Height: h}, nil
}

// parseCrop parses WxH+X+Y. Offsets may be negative; the pipeline clips
// them.
func parseCrop(s string) (pipeline.Rect, error) {
	m := cropRe.FindStringSubmatch(s)
	if m == nil {
		return pipeline.Rect{}, fmt.Errorf("invalid crop %q: want WxH+X+Y", s)
	}
	var v [4]int
	for i := range v {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return pipeline.Rect{}, fmt.Errorf("invalid crop %q: %w", s, err)
		}
		v[i] = n
	}
	return pipeline.Rect{X: v[2], Y: v[3], Width: v[0], Height: v[1]}, nil
}

// scaledSize applies factor to orig, keeping each side at least 1.
func scaledSize(orig pipeline.Size, factor float64) pipeline.Size {
	return pipeline.Size{
		Width:  max(int(float64(orig.Width)*factor+0.5), 1),
		Height: max(int(float64(orig.Height)*factor+0.5), 1),
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func truncKey(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max+3:]
}
