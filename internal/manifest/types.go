package manifest

// FileName is the manifest file written next to exported images.
const FileName = "webx.manifest.json"

// Manifest is the report of an export run.
type Manifest struct {
	Version     int              `json:"version"`
	RunID       string           `json:"run_id,omitempty"`
	GeneratedAt string           `json:"generated_at"`
	Profile     string           `json:"profile"`
	BasePath    string           `json:"base_path"`
	BuildInfo   *BuildInfo       `json:"build_info,omitempty"`
	Assets      map[string]Asset `json:"assets"`
	Stats       Stats            `json:"stats"`
}

// BuildInfo captures run parameters for diagnostics.
type BuildInfo struct {
	Workers  int    `json:"workers"`
	Resample string `json:"resample,omitempty"`
}

// Asset describes one source image and every file exported from it.
type Asset struct {
	Original    OriginalInfo `json:"original"`
	SourceHash  string       `json:"source_hash"`    // xxhash64 of the source file
	AspectRatio float64      `json:"aspect_ratio"`   // width / height of the source
	Crop        *Rect        `json:"crop,omitempty"` // crop applied to every variant
	Variants    []Variant    `json:"variants"`
}

// OriginalInfo holds metadata about the source image.
type OriginalInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	Size     int64  `json:"size"`
	HasAlpha bool   `json:"has_alpha"`
	Layers   int    `json:"layers,omitempty"`
}

// Rect is a crop rectangle in resized-image coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Variant is one exported file.
type Variant struct {
	Encoder      string `json:"encoder"` // "jpeg", "png24", "png8", "gif"
	Width        int    `json:"width"`   // resize width before crop
	Height       int    `json:"height"`
	OutputWidth  int    `json:"output_width"`
	OutputHeight int    `json:"output_height"`
	Size         int64  `json:"size"` // bytes on disk
	Hash         string `json:"hash"` // first 16 hex chars of xxhash64
	Path         string `json:"path"` // relative to base_path
}

// Stats aggregates run metrics.
type Stats struct {
	TotalInputBytes  int64 `json:"total_input_bytes"`
	TotalOutputBytes int64 `json:"total_output_bytes"`
	TotalAssets      int   `json:"total_assets"`
	TotalVariants    int   `json:"total_variants"`
	Failed           int   `json:"failed,omitempty"` // sources that could not be exported
}

// SupportedManifestVersion is the current schema version.
const SupportedManifestVersion = 1
