package prefs

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	in := `# comment
(dialog-layout 10 20 800 600 350)

(unknown-thing 1 2)
(last-format png8)
garbage line
`
	p, err := Parse(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, Layout{10, 20, 800, 600, 350}, p.Layout)
	assert.Equal(t, "png8", p.LastFormat)
}

func TestParseMalformedLayout(t *testing.T) {
	p, err := Parse(strings.NewReader("(dialog-layout 5 x 100)\n"))
	require.NoError(t, err)
	assert.Equal(t, Layout{X: 5, Width: 100}, p.Layout)
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	want := Prefs{Layout: Layout{1, 2, 3, 4, 5}, LastFormat: "gif"}
	require.NoError(t, Save(path, want))

	got, found, err := Load(path)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)
}

func TestLoadMissing(t *testing.T) {
	p, found, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Prefs{}, p)
}

func TestWriteOmitsEmptyFormat(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Prefs{}.Write(&sb))
	assert.Contains(t, sb.String(), "(dialog-layout 0 0 0 0 0)")
	assert.NotContains(t, sb.String(), "last-format")
}
