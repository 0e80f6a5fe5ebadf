package encoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryDefaults(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"jpeg", "png24", "png8", "gif"}, r.Names())
	assert.Equal(t, "encoders: jpeg, png24, png8, gif", r.String())

	assert.Equal(t, "jpeg", r.Get("JPG").Name())
	assert.Equal(t, "png24", r.Get("png").Name())
	assert.Equal(t, "png8", r.Get("png8").Name())
	assert.Nil(t, r.Get("webp"))
}

func TestRegistryExtensions(t *testing.T) {
	r := NewRegistry()
	for ext, want := range map[string]string{
		".jpg": "jpeg",
		"jpeg": "jpeg",
		"PNG":  "png24",
		".gif": "gif",
	} {
		enc := r.ForExtension(ext)
		if assert.NotNil(t, enc, ext) {
			assert.Equal(t, want, enc.Name(), ext)
		}
	}
	assert.Nil(t, r.ForExtension(".tiff"))

	exts := map[string]string{}
	for _, name := range r.Names() {
		exts[name] = r.Get(name).Extension()
	}
	assert.Equal(t, map[string]string{"jpeg": "jpg", "png24": "png", "png8": "png", "gif": "gif"}, exts)
}

func TestRegistryRegisterReplaces(t *testing.T) {
	r := NewRegistry(NewGIF())
	custom := &JPEG{Quality: 40}
	r.Register(custom)
	r.Register(&JPEG{Quality: 60})

	assert.Equal(t, []string{"gif", "jpeg"}, r.Names())
	assert.Equal(t, 60, r.Get("jpeg").(*JPEG).Quality)
	assert.Equal(t, "no encoders registered", (&Registry{}).String())
}
