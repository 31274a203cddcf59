package stream

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mycoderisyad/video-downloader-uploader"
)

const Name = "stream"

// Match accepts HLS playlist URLs, recognised by "m3u8" anywhere in the URL. These always go to ffmpeg, whichever
// site hosts them, so this provider runs before any platform provider.
func Match(u *url.URL) (*video_downloader.Source, error) {
	if !strings.Contains(strings.ToLower(u.String()), "m3u8") {
		return nil, fmt.Errorf("not an m3u8 URL")
	}
	return &video_downloader.Source{
		URL:      u,
		Platform: video_downloader.PlatformOther,
		Route:    video_downloader.RouteStream,
	}, nil
}

func init() {
	video_downloader.DefaultProviderRegistry.MustCreatePriority(Name, Match, video_downloader.PriorityHighest)
}
