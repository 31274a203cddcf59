package video_downloader

// Platform is the coarse classification of where a URL points, decided once when a job is created.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformVimeo     Platform = "vimeo"
	PlatformFacebook  Platform = "facebook"
	PlatformInstagram Platform = "instagram"
	PlatformOther     Platform = "other"
)

func (p Platform) String() string {
	return string(p)
}

// Social platforms are where gallery-dl is preferred and the gallery-dl/yt-dlp fallback pair applies.
func (p Platform) IsSocial() bool {
	return p == PlatformInstagram || p == PlatformFacebook
}

// Route is how a matched URL gets downloaded.
type Route string

const (
	// RouteStream is an HLS playlist, remuxed by ffmpeg.
	RouteStream Route = "stream"
	// RouteFile is a plain media file, fetched directly over HTTP.
	RouteFile Route = "file"
	// RouteTool goes through the external downloader tool chain.
	RouteTool Route = "tool"
)
