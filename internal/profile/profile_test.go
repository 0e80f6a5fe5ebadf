package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/webx/internal/backend"
	"github.com/AnyUserName/webx/internal/encoder"
)

func TestGetFallsBack(t *testing.T) {
	p := Get("custom")
	assert.Equal(t, "custom", p.Name)
	assert.Equal(t, profiles["web"].Widths, p.Widths)

	_, ok := Lookup("custom")
	assert.False(t, ok)
	_, ok = Lookup("icons")
	assert.True(t, ok)
}

func TestNamesSorted(t *testing.T) {
	assert.Equal(t, []string{"icons", "minimal", "web", "web-hq"}, Names())
}

func TestEffectiveWidths(t *testing.T) {
	p := Get("web")
	assert.Equal(t, []int{320, 640, 1280, 960}, p.EffectiveWidths(1300))
	assert.Equal(t, []int{320, 640}, p.EffectiveWidths(700))
	assert.Equal(t, []int{200}, p.EffectiveWidths(200))
	assert.Empty(t, p.EffectiveWidths(0))
}

func TestEncoders(t *testing.T) {
	encs, err := Get("icons").Encoders()
	require.NoError(t, err)
	require.Len(t, encs, 2)

	png8, ok := encs[0].(*encoder.PNG8)
	require.True(t, ok)
	assert.Equal(t, 64, png8.Colors)
	assert.Equal(t, backend.DitherFloydSteinberg, png8.Dither)

	encs, err = Get("minimal").Encoders()
	require.NoError(t, err)
	assert.Equal(t, 75, encs[0].(*encoder.JPEG).Quality)

	bad := Profile{Name: "bad", Formats: []string{"webp"}}
	_, err = bad.Encoders()
	assert.Error(t, err)
}
