package raw

import (
	"fmt"
	"net/url"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/generic"
	"github.com/mycoderisyad/video-downloader-uploader/util"
)

const (
	Name = "raw"
	// After the platforms, before the catch-all.
	Priority int16 = 100
)

type Config struct {
	Extensions generic.Set[string]
}

func NewConfig() Config {
	return Config{
		Extensions: generic.NewSet(
			"avi",
			"flv",
			"m4a",
			"m4v",
			"mkv",
			"mov",
			"mp3",
			"mp4",
			"webm",
		),
	}
}

// Match accepts URLs whose path names a media file, which can be fetched without any external tool.
func (c *Config) Match(u *url.URL) (*video_downloader.Source, error) {
	filename, err := util.FilenameFromURL(u)
	if err != nil {
		return nil, err
	}
	extension := util.ExtensionFromURL(u)
	if extension == "" {
		return nil, fmt.Errorf("no file extension found")
	}
	if !c.Extensions.Contains(extension) {
		return nil, fmt.Errorf("unknown file extension %v", extension)
	}
	return &video_downloader.Source{
		URL:      u,
		Platform: video_downloader.PlatformOther,
		Route:    video_downloader.RouteFile,
		Filename: filename,
	}, nil
}

func (c Config) Provider() video_downloader.Provider {
	return video_downloader.Provider{
		Name:  Name,
		Match: c.Match,
	}
}

func init() {
	video_downloader.DefaultProviderRegistry.MustAdd(NewConfig().Provider().WithPriority(Priority))
}
