package util

import (
	"net/url"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestFilenameFromURL(t *testing.T) {
	assert := assert_.New(t)

	u, _ := url.Parse("https://cdn.example.com/media/clip.mp4?token=x")
	name, err := FilenameFromURL(u)
	assert.NoError(err)
	assert.Equal("clip.mp4", name)

	for _, s := range []string{"https://cdn.example.com/", "https://cdn.example.com/a/.."} {
		u, _ = url.Parse(s)
		_, err = FilenameFromURL(u)
		assert.ErrorIs(err, ErrNoFilename, s)
	}
	_, err = FilenameFromURL(nil)
	assert.ErrorIs(err, ErrNoFilename)
}

func TestExtensionFromURL(t *testing.T) {
	assert := assert_.New(t)

	u, _ := url.Parse("https://cdn.example.com/media/Clip.MP4")
	assert.Equal("mp4", ExtensionFromURL(u))
	u, _ = url.Parse("https://cdn.example.com/watch")
	assert.Equal("", ExtensionFromURL(u))
	assert.Equal("", ExtensionFromURL(nil))
}

func TestSanitizeFilename(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal("My Video", SanitizeFilename("My Video"))
	assert.Equal("ab", SanitizeFilename("a/b"))
	assert.Equal("what", SanitizeFilename(`wh<a>t?`))
	assert.Equal("trailing", SanitizeFilename("trailing... "))
	assert.Equal("", SanitizeFilename(".."))
	assert.Equal("_CON.mp4", SanitizeFilename("CON.mp4"))
	assert.Equal("tab", SanitizeFilename("t\ta\nb"))

	long := SanitizeFilename(strings.Repeat("é", 300))
	assert.LessOrEqual(len(long), maxFilenameBytes)
	assert.True(strings.HasPrefix(long, "é"))
}
