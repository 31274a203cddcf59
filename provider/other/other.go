package other

import (
	"net/url"

	"github.com/mycoderisyad/video-downloader-uploader"
)

const Name = "other"

// Match accepts any URL that got this far, leaving it to yt-dlp's generic extractor.
func Match(u *url.URL) (*video_downloader.Source, error) {
	return &video_downloader.Source{
		URL:      u,
		Platform: video_downloader.PlatformOther,
		Route:    video_downloader.RouteTool,
	}, nil
}

func init() {
	video_downloader.DefaultProviderRegistry.MustCreatePriority(Name, Match, video_downloader.PriorityLowest)
}
