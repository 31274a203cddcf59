package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/mycoderisyad/video-downloader-uploader"
)

const Name = "youtube"

var hosts = []string{"youtube.com", "youtu.be", "youtube-nocookie.com"}

// Match accepts any URL on a YouTube host. The video ID is filled in when the URL names a single video.
func Match(u *url.URL) (*video_downloader.Source, error) {
	if !isYouTubeHost(u.Hostname()) {
		return nil, fmt.Errorf("unrecognised hostname")
	}
	source := &video_downloader.Source{
		URL:      u,
		Platform: video_downloader.PlatformYouTube,
		Route:    video_downloader.RouteTool,
	}
	if videoID, err := extractVideoID(u); err == nil {
		source.ID = videoID
	}
	return source, nil
}

// Preview fetches title, author, duration and thumbnail through the player API.
func Preview(ctx context.Context, s *video_downloader.Source) (*video_downloader.Preview, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("could not extract video ID")
	}
	client := youtube.Client{}
	video, err := client.GetVideoContext(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	preview := &video_downloader.Preview{
		Title:    video.Title,
		Author:   video.Author,
		Duration: video.Duration,
	}
	// Largest thumbnail wins
	var best uint
	for _, thumb := range video.Thumbnails {
		if thumb.Width*thumb.Height >= best {
			best = thumb.Width * thumb.Height
			preview.Thumbnail = thumb.URL
		}
	}
	return preview, nil
}

func New() video_downloader.Provider {
	return video_downloader.Provider{Name: Name, Match: Match, Preview: Preview}
}

// WatchURL is the canonical URL of a video.
func WatchURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

func isYouTubeHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Extract video ID from YouTube URL.
//
// Allowed URL formats:
//
//	http(s?)://(www|m|music).youtube.com/(watch|details)?v={VIDEO_ID}
//	http(s?)://(www|m).youtube.com/(v|shorts|embed|live)/{VIDEO_ID}
//	http(s?)://youtu.be/{VIDEO_ID}
func extractVideoID(u *url.URL) (string, error) {
	var id string
	host := strings.ToLower(u.Hostname())
	switch {
	case host == "youtu.be":
		id = strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)[0]
	case isYouTubeHost(host):
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case len(parts) >= 2 && (parts[0] == "v" || parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live"):
			id = parts[1]
		case u.Path == "/watch" || u.Path == "/details":
			if !u.Query().Has("v") {
				return "", fmt.Errorf("missing ?v= query parameter")
			}
			id = u.Query().Get("v")
		}
	default:
		return "", fmt.Errorf("unrecognised hostname")
	}
	if id == "" {
		return "", fmt.Errorf("could not extract video ID")
	}
	return id, nil
}

func init() {
	video_downloader.DefaultProviderRegistry.MustAdd(New())
}
