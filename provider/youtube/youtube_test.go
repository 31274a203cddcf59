package youtube

import (
	"net/url"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/mycoderisyad/video-downloader-uploader"
)

func TestExtractVideoID(t *testing.T) {
	assert := assert_.New(t)

	cases := map[string]string{
		"https://www.youtube.com/watch?v=abc123":      "abc123",
		"https://m.youtube.com/watch?v=abc123&t=10":   "abc123",
		"https://music.youtube.com/watch?v=abc123":    "abc123",
		"https://youtu.be/abc123":                     "abc123",
		"https://youtu.be/abc123?si=share":            "abc123",
		"https://www.youtube.com/shorts/abc123":       "abc123",
		"https://www.youtube.com/embed/abc123":        "abc123",
		"http://www.youtube.com/v/abc123":             "abc123",
		"https://www.youtube-nocookie.com/embed/abc1": "abc1",
	}
	for s, expected := range cases {
		u, _ := url.Parse(s)
		id, err := extractVideoID(u)
		assert.NoError(err, s)
		assert.Equal(expected, id, s)
	}

	for _, s := range []string{"https://www.youtube.com/watch", "https://www.youtube.com/@channel", "https://vimeo.com/1"} {
		u, _ := url.Parse(s)
		_, err := extractVideoID(u)
		assert.Error(err, s)
	}
}

func TestMatch(t *testing.T) {
	assert := assert_.New(t)

	u, _ := url.Parse("https://youtu.be/abc123")
	s, err := Match(u)
	assert.NoError(err)
	assert.Equal(video_downloader.PlatformYouTube, s.Platform)
	assert.Equal(video_downloader.RouteTool, s.Route)
	assert.Equal("abc123", s.ID)

	// Still YouTube, just not a single video
	u, _ = url.Parse("https://www.youtube.com/@channel")
	s, err = Match(u)
	assert.NoError(err)
	assert.Equal("", s.ID)

	u, _ = url.Parse("https://notyoutube.com/watch?v=abc")
	_, err = Match(u)
	assert.Error(err)
}

func TestWatchURL(t *testing.T) {
	assert_.Equal(t, "https://www.youtube.com/watch?v=abc123", WatchURL("abc123"))
}
