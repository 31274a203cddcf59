package providers

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/mycoderisyad/video-downloader-uploader"
)

func TestDefaultRegistry(t *testing.T) {
	assert := assert_.New(t)

	type expect struct {
		provider string
		platform video_downloader.Platform
		route    video_downloader.Route
	}
	cases := map[string]expect{
		"https://youtu.be/abc123":                        {"youtube", video_downloader.PlatformYouTube, video_downloader.RouteTool},
		"https://www.youtube.com/watch?v=abc123":         {"youtube", video_downloader.PlatformYouTube, video_downloader.RouteTool},
		"https://vimeo.com/12345":                        {"vimeo", video_downloader.PlatformVimeo, video_downloader.RouteTool},
		"https://www.facebook.com/watch/?v=1":            {"facebook", video_downloader.PlatformFacebook, video_downloader.RouteTool},
		"https://fb.watch/xyz/":                          {"facebook", video_downloader.PlatformFacebook, video_downloader.RouteTool},
		"https://www.instagram.com/reel/Cabc/":           {"instagram", video_downloader.PlatformInstagram, video_downloader.RouteTool},
		"https://cdn.example.com/live/index.m3u8?t=1":    {"stream", video_downloader.PlatformOther, video_downloader.RouteStream},
		"https://cdn.example.com/files/clip.MP4":         {"raw", video_downloader.PlatformOther, video_downloader.RouteFile},
		"https://www.dailymotion.com/video/x8abc":        {"other", video_downloader.PlatformOther, video_downloader.RouteTool},
		"https://example.com/playlist.m3u8/../clip.mp4":  {"stream", video_downloader.PlatformOther, video_downloader.RouteStream},
		"https://www.instagram.com/p/Cabc/media.mp4?x=1": {"instagram", video_downloader.PlatformInstagram, video_downloader.RouteTool},
	}
	for s, e := range cases {
		m, err := video_downloader.DefaultProviderRegistry.Match(s)
		if assert.NoError(err, s) {
			assert.Equal(e.provider, m.ProviderName, s)
			assert.Equal(e.platform, m.Source.Platform, s)
			assert.Equal(e.route, m.Source.Route, s)
		}
	}

	_, err := video_downloader.DefaultProviderRegistry.Match("not-a-url")
	assert.ErrorIs(err, video_downloader.ErrInvalidURL)
}
