// Package social recognises the platforms that are only told apart by hostname.
package social

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mycoderisyad/video-downloader-uploader"
)

type Config struct {
	Platform video_downloader.Platform
	Hosts    []string
}

func (c Config) Match(u *url.URL) (*video_downloader.Source, error) {
	host := strings.ToLower(u.Hostname())
	for _, h := range c.Hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return &video_downloader.Source{
				URL:      u,
				Platform: c.Platform,
				Route:    video_downloader.RouteTool,
			}, nil
		}
	}
	return nil, fmt.Errorf("unrecognised hostname")
}

func (c Config) Provider() video_downloader.Provider {
	return video_downloader.Provider{
		Name:  c.Platform.String(),
		Match: c.Match,
	}
}

var (
	Vimeo     = Config{Platform: video_downloader.PlatformVimeo, Hosts: []string{"vimeo.com"}}
	Facebook  = Config{Platform: video_downloader.PlatformFacebook, Hosts: []string{"facebook.com", "fb.watch", "fb.com"}}
	Instagram = Config{Platform: video_downloader.PlatformInstagram, Hosts: []string{"instagram.com", "instagr.am"}}
)

func init() {
	for _, c := range []Config{Vimeo, Facebook, Instagram} {
		video_downloader.DefaultProviderRegistry.MustAdd(c.Provider())
	}
}
