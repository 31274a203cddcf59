// Package providers registers every URL provider with video_downloader.DefaultProviderRegistry.
package providers

import (
	_ "github.com/mycoderisyad/video-downloader-uploader/provider/other"
	_ "github.com/mycoderisyad/video-downloader-uploader/provider/raw"
	_ "github.com/mycoderisyad/video-downloader-uploader/provider/social"
	_ "github.com/mycoderisyad/video-downloader-uploader/provider/stream"
	_ "github.com/mycoderisyad/video-downloader-uploader/provider/youtube"
)
