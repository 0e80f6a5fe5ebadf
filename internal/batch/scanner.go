package batch

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Source represents a discovered image file.
type Source struct {
	// AbsPath is the path to the file on disk.
	AbsPath string
	// RelPath is the slash-separated path relative to the input directory.
	RelPath string
	// Key is the asset key (relpath without extension).
	Key string
	// Format is the normalised source format (png, jpeg, gif, bmp, tiff, webp).
	Format string
	// Size is the file size in bytes.
	Size int64
}

// formats maps recognised extensions to the decoder format name.
var formats = map[string]string{
	".png":  "png",
	".jpg":  "jpeg",
	".jpeg": "jpeg",
	".gif":  "gif",
	".bmp":  "bmp",
	".tif":  "tiff",
	".tiff": "tiff",
	".webp": "webp",
}

// IsImage reports whether path has a loadable image extension.
func IsImage(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ScanImages walks inputDir and returns every image source sorted by key.
// Hidden directories and files are skipped, as is skipDir when non-empty.
func ScanImages(inputDir, skipDir string) ([]Source, error) {
	var sources []Source
	skipDir = filepath.Clean(skipDir)

	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(d.Name(), ".") && path != inputDir
		if d.IsDir() {
			if hidden || (skipDir != "." && filepath.Clean(path) == skipDir && path != inputDir) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		format, ok := formats[ext]
		if hidden || !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		sources = append(sources, Source{
			AbsPath: path,
			RelPath: rel,
			Key:     strings.TrimSuffix(rel, filepath.Ext(rel)),
			Format:  format,
			Size:    info.Size(),
		})
		return nil
	})

	sort.Slice(sources, func(i, j int) bool { return sources[i].Key < sources[j].Key })
	return sources, err
}
