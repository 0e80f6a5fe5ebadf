package encoder

import (
	"fmt"
	"strings"
)

// Registry holds the encoder variants in presentation order.
type Registry struct {
	encoders map[string]Encoder
	order    []string
}

// NewRegistry registers encs, or the four default variants when none given.
func NewRegistry(encs ...Encoder) *Registry {
	if len(encs) == 0 {
		encs = []Encoder{NewJPEG(), NewPNG24(), NewPNG8(), NewGIF()}
	}
	r := &Registry{encoders: make(map[string]Encoder)}
	for _, enc := range encs {
		r.Register(enc)
	}
	return r
}

// Register adds enc, replacing any encoder with the same name.
func (r *Registry) Register(enc Encoder) {
	name := enc.Name()
	if _, ok := r.encoders[name]; !ok {
		r.order = append(r.order, name)
	}
	r.encoders[name] = enc
}

var aliases = map[string]string{
	"jpg": "jpeg",
	"png": "png24",
}

// Get returns an encoder by name or alias, or nil.
func (r *Registry) Get(name string) Encoder {
	name = strings.ToLower(strings.TrimSpace(name))
	if enc, ok := r.encoders[name]; ok {
		return enc
	}
	return r.encoders[aliases[name]]
}

// Names returns all registered encoder names in order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// ForExtension returns the first encoder writing ext (with or without dot).
func (r *Registry) ForExtension(ext string) Encoder {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	for _, name := range r.order {
		if enc := r.encoders[name]; enc.Extension() == ext {
			return enc
		}
	}
	return nil
}

// String returns a summary of registered encoders.
func (r *Registry) String() string {
	if len(r.order) == 0 {
		return "no encoders registered"
	}
	return fmt.Sprintf("encoders: %s", strings.Join(r.order, ", "))
}
