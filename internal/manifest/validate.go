package manifest

import (
	"fmt"
	"os"
	"path/filepath"
)

// Validate checks m for structural problems and, relative to baseDir, for
// missing or resized files. It returns one message per problem.
func Validate(m *Manifest, baseDir string) []string {
	var errs []string

	if m.Version != SupportedManifestVersion {
		errs = append(errs, fmt.Sprintf("unsupported manifest version: %d", m.Version))
	}

	for key, asset := range m.Assets {
		if asset.Original.Width <= 0 || asset.Original.Height <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid original dimensions %dx%d",
				key, asset.Original.Width, asset.Original.Height))
		}
		if asset.SourceHash == "" {
			errs = append(errs, fmt.Sprintf("asset %q: missing source hash", key))
		}
		if asset.AspectRatio <= 0 {
			errs = append(errs, fmt.Sprintf("asset %q: invalid aspect ratio %.4f", key, asset.AspectRatio))
		}
		if c := asset.Crop; c != nil && (c.Width <= 0 || c.Height <= 0 || c.X < 0 || c.Y < 0) {
			errs = append(errs, fmt.Sprintf("asset %q: invalid crop %dx%d+%d+%d", key, c.Width, c.Height, c.X, c.Y))
		}
		if len(asset.Variants) == 0 {
			errs = append(errs, fmt.Sprintf("asset %q: no variants", key))
		}

		seenPaths := map[string]bool{}
		for i, v := range asset.Variants {
			if v.Encoder == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: empty encoder", key, i))
			}
			if v.OutputWidth <= 0 || v.OutputHeight <= 0 {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: invalid dimensions %dx%d",
					key, i, v.OutputWidth, v.OutputHeight))
			}
			if v.Width > 0 && v.Height > 0 && (v.OutputWidth > v.Width || v.OutputHeight > v.Height) {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: output %dx%d exceeds resize %dx%d",
					key, i, v.OutputWidth, v.OutputHeight, v.Width, v.Height))
			}
			if v.Hash == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: missing hash", key, i))
			}
			if v.Path == "" {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: missing path", key, i))
				continue
			}

			if seenPaths[v.Path] {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: duplicate path %q", key, i, v.Path))
			}
			seenPaths[v.Path] = true

			info, err := os.Stat(filepath.Join(baseDir, v.Path))
			if err != nil {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: file not found: %s", key, i, v.Path))
			} else if v.Size > 0 && info.Size() != v.Size {
				errs = append(errs, fmt.Sprintf("asset %q variant[%d]: size mismatch: manifest=%d, disk=%d",
					key, i, v.Size, info.Size()))
			}
		}
	}

	variantCount := 0
	for _, a := range m.Assets {
		variantCount += len(a.Variants)
	}
	if m.Stats.TotalAssets != len(m.Assets) {
		errs = append(errs, fmt.Sprintf("stats.total_assets mismatch: %d != %d", m.Stats.TotalAssets, len(m.Assets)))
	}
	if m.Stats.TotalVariants != variantCount {
		errs = append(errs, fmt.Sprintf("stats.total_variants mismatch: %d != %d", m.Stats.TotalVariants, variantCount))
	}

	return errs
}
