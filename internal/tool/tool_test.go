package tool

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
)

func TestQuality_FormatSelector(t *testing.T) {
	assert := assert_.New(t)

	expected := map[Quality]string{
		QualityBest:  "best",
		Quality1080p: "best[height<=1080]",
		Quality720p:  "best[height<=720]",
		Quality480p:  "best[height<=480]",
		Quality360p:  "best[height<=360]",
	}
	for q, sel := range expected {
		assert.Equal(sel, q.FormatSelector(), q)
		// Deterministic
		assert.Equal(q.FormatSelector(), q.FormatSelector())
	}
	assert.Equal("best", Quality("4k").FormatSelector())
}

func TestParseQuality(t *testing.T) {
	assert := assert_.New(t)

	q, err := ParseQuality("")
	assert.NoError(err)
	assert.Equal(QualityBest, q)
	q, err = ParseQuality("720p")
	assert.NoError(err)
	assert.Equal(Quality720p, q)
	_, err = ParseQuality("4k")
	assert.Error(err)
}

func TestParseChoice(t *testing.T) {
	assert := assert_.New(t)

	c, err := ParseChoice("")
	assert.NoError(err)
	assert.Equal(Auto, c)
	c, err = ParseChoice("gallery-dl")
	assert.NoError(err)
	assert.Equal(GalleryDl, c)
	_, err = ParseChoice("ffmpeg")
	assert.Error(err)
	_, err = ParseChoice("wget")
	assert.Error(err)
}

func TestArgs(t *testing.T) {
	assert := assert_.New(t)

	r := Request{URL: "https://youtu.be/abc", Quality: Quality720p, Dir: "/dl", Base: "Title_id"}
	args, err := Args(YtDlp, r)
	assert.NoError(err)
	assert.Equal([]string{
		"-f", "best[height<=720]", "--newline", "--no-playlist", "--no-part", "--merge-output-format", "mp4",
		"-o", "/dl/Title_id.%(ext)s", "https://youtu.be/abc",
	}, args)

	// youtube-dl takes the equivalent command line
	args2, err := Args(YoutubeDl, r)
	assert.NoError(err)
	assert.Equal(args, args2)

	args, err = Args(GalleryDl, r)
	assert.NoError(err)
	assert.Equal([]string{"-D", "/dl", "-f", "Title_id.{extension}", "https://youtu.be/abc"}, args)

	args, err = Args(YouGet, r)
	assert.NoError(err)
	assert.Equal([]string{"-o", "/dl", "-O", "Title_id", "https://youtu.be/abc"}, args)

	args, err = Args(FFmpeg, r)
	assert.NoError(err)
	assert.Contains(args, "copy")
	assert.NotContains(args, "libx264")
	assert.Equal("/dl/Title_id.mp4", args[len(args)-1])

	r.Rescale = true
	args, err = Args(FFmpeg, r)
	assert.NoError(err)
	assert.Contains(args, "scale=-2:720")

	_, err = Args(Auto, r)
	assert.Error(err)
}

func TestSelectChain(t *testing.T) {
	assert := assert_.New(t)

	assert.Equal([]ID{YtDlp}, SelectChain(video_downloader.PlatformYouTube, Auto))
	assert.Equal([]ID{YtDlp}, SelectChain(video_downloader.PlatformVimeo, Auto))
	assert.Equal([]ID{YtDlp}, SelectChain(video_downloader.PlatformOther, Auto))
	assert.Equal([]ID{GalleryDl}, SelectChain(video_downloader.PlatformInstagram, Auto))
	assert.Equal([]ID{GalleryDl}, SelectChain(video_downloader.PlatformFacebook, Unselected))

	assert.Equal([]ID{GalleryDl, YtDlp}, SelectChain(video_downloader.PlatformInstagram, GalleryDl))
	assert.Equal([]ID{YtDlp, GalleryDl}, SelectChain(video_downloader.PlatformFacebook, YtDlp))
	assert.Equal([]ID{YtDlp}, SelectChain(video_downloader.PlatformYouTube, YtDlp))
	assert.Equal([]ID{YouGet}, SelectChain(video_downloader.PlatformInstagram, YouGet))
	assert.Equal([]ID{GalleryDl}, SelectChain(video_downloader.PlatformVimeo, GalleryDl))
}

func TestResolveFallback(t *testing.T) {
	assert := assert_.New(t)

	r := ResolveFallback(video_downloader.PlatformYouTube, YtDlp, failure.BotDetection, false)
	if assert.NotNil(r) {
		assert.Equal(YoutubeDl, r.To)
		assert.True(r.Internal)
	}
	assert.Nil(ResolveFallback(video_downloader.PlatformYouTube, YtDlp, failure.NotFound, false))
	assert.Nil(ResolveFallback(video_downloader.PlatformVimeo, YtDlp, failure.BotDetection, false))

	r = ResolveFallback(video_downloader.PlatformInstagram, GalleryDl, failure.NotFound, true)
	if assert.NotNil(r) {
		assert.Equal(YtDlp, r.To)
		assert.False(r.Internal)
	}
	// Auto mode never falls back between gallery-dl and yt-dlp
	assert.Nil(ResolveFallback(video_downloader.PlatformInstagram, GalleryDl, failure.NotFound, false))
	assert.Nil(ResolveFallback(video_downloader.PlatformFacebook, YtDlp, failure.RateLimited, true))
	assert.NotNil(ResolveFallback(video_downloader.PlatformFacebook, YtDlp, failure.BotDetection, true))
}

func TestClassify(t *testing.T) {
	assert := assert_.New(t)

	cases := map[string]failure.Kind{
		"ERROR: [youtube] abc: Private video. Sign in if you've been granted access":     failure.PrivateContent,
		"ERROR: [youtube] abc: Sign in to confirm you’re not a bot. Use --cookies":       failure.BotDetection,
		"ERROR: [youtube] abc: Sign in to confirm you're not a bot":                      failure.BotDetection,
		"ERROR: unable to download video data: HTTP Error 429: Too Many Requests":        failure.RateLimited,
		"ERROR: [youtube] abc: Video unavailable":                                        failure.NotFound,
		"ERROR: Unsupported URL: https://example.com/":                                   failure.NotFound,
		"[instagram][error] HttpError: '404 Not Found' for 'https://www.instagram.com/'": failure.NotFound,
		"ERROR: The uploader has not made this video available in your country":          failure.RegionBlocked,
		"ERROR: [youtube] abc: Requested format is not available":                        failure.FormatUnavailable,
		"[instagram][error] AuthorizationError: Login required":                          failure.BotDetection,
		"Traceback (most recent call last): KeyError":                                    failure.GenericFailure,
		"":                                                                               failure.GenericFailure,
	}
	for stderr, kind := range cases {
		assert.Equal(kind, Classify(stderr), stderr)
	}
}
