package profile

import (
	"fmt"
	"sort"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/encoder"
)

// Profile defines export parameters for a target use.
type Profile struct {
	Name    string
	Widths  []int    // target widths for resize
	Formats []string // encoder names in priority order
	Quality int      // JPEG quality 1-100
	Colors  int      // palette size for png8 and gif
	Dither  backend.DitherType
	Retina  bool // also export 2x variants
}

// Built-in profiles.
var profiles = map[string]Profile{
	"web": {
		Name:    "web",
		Widths:  []int{320, 640, 960, 1280},
		Formats: []string{"jpeg", "png8"},
		Quality: 82,
		Colors:  256,
		Retina:  true,
	},
	"web-hq": {
		Name:    "web-hq",
		Widths:  []int{320, 640, 960, 1280, 1920},
		Formats: []string{"jpeg", "png24"},
		Quality: 90,
		Colors:  256,
		Retina:  true,
	},
	"minimal": {
		Name:    "minimal",
		Widths:  []int{320, 640},
		Formats: []string{"jpeg"},
		Quality: 75,
		Colors:  128,
	},
	"icons": {
		Name:    "icons",
		Widths:  []int{16, 32, 64},
		Formats: []string{"png8", "gif"},
		Quality: 90,
		Colors:  64,
		Dither:  backend.DitherFloydSteinberg,
		Retina:  true,
	},
}

// Get returns a profile by name. Falls back to web if unknown.
func Get(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	p := profiles["web"]
	p.Name = name // preserve requested name
	return p
}

// Lookup returns a profile by name and whether it is built in.
func Lookup(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// Names returns the built-in profile names, sorted.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EffectiveWidths returns all widths including retina variants.
func (p Profile) EffectiveWidths(originalWidth int) []int {
	seen := map[int]bool{}
	var result []int

	for _, w := range p.Widths {
		if w > originalWidth {
			continue // don't upscale
		}
		if !seen[w] {
			seen[w] = true
			result = append(result, w)
		}
		if p.Retina {
			w2 := w * 2
			if w2 <= originalWidth && !seen[w2] {
				seen[w2] = true
				result = append(result, w2)
			}
		}
	}

	// An image narrower than every target is exported at its own width.
	if len(result) == 0 && originalWidth > 0 {
		result = append(result, originalWidth)
	}

	return result
}

// Encoders builds one configured encoder per profile format.
func (p Profile) Encoders() ([]encoder.Encoder, error) {
	reg := encoder.NewRegistry()
	out := make([]encoder.Encoder, 0, len(p.Formats))
	for _, f := range p.Formats {
		enc := reg.Get(f)
		if enc == nil {
			return nil, fmt.Errorf("profile %s: unknown format %q", p.Name, f)
		}
		p.Apply(enc)
		out = append(out, enc)
	}
	return out, nil
}

// Apply copies the profile's quality and palette settings onto enc.
func (p Profile) Apply(enc encoder.Encoder) {
	switch e := enc.(type) {
	case *encoder.JPEG:
		if p.Quality > 0 {
			e.Quality = p.Quality
		}
	case *encoder.PNG8:
		p.applyIndexed(&e.Indexed)
	case *encoder.GIF:
		p.applyIndexed(&e.Indexed)
	}
}

func (p Profile) applyIndexed(ix *encoder.Indexed) {
	if p.Colors > 0 {
		ix.Colors = p.Colors
	}
	ix.Dither = p.Dither
}
