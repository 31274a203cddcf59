// Package tool knows the external downloader programs: their IDs, their command lines, which ones to try for a
// platform, when to fall back to another, and how to read their failures.
package tool

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/mycoderisyad/video-downloader-uploader/generic"
)

type ID string

const (
	FFmpeg     ID = "ffmpeg"
	YtDlp      ID = "yt-dlp"
	YoutubeDl  ID = "youtube-dl"
	GalleryDl  ID = "gallery-dl"
	YouGet     ID = "you-get"
	Auto       ID = "auto"
	Unselected ID = ""
)

// Choosable are the values accepted as a user's downloader choice. ffmpeg is only used for streams and youtube-dl
// only as yt-dlp's fallback, so neither is offered.
var Choosable = generic.NewSet(Auto, YtDlp, GalleryDl, YouGet)

func (id ID) String() string {
	return string(id)
}

// ParseChoice validates a user's downloader choice, where empty means Auto.
func ParseChoice(s string) (ID, error) {
	id := ID(s)
	if id == Unselected {
		return Auto, nil
	}
	if !Choosable.Contains(id) {
		return Unselected, fmt.Errorf("unknown downloader %q, expected one of %v", s, generic.Sorted(Choosable))
	}
	return id, nil
}

type Quality string

const (
	QualityBest  Quality = "best"
	Quality1080p Quality = "1080p"
	Quality720p  Quality = "720p"
	Quality480p  Quality = "480p"
	Quality360p  Quality = "360p"
)

var Qualities = generic.NewSet(QualityBest, Quality1080p, Quality720p, Quality480p, Quality360p)

var qualityHeights = map[Quality]int{
	Quality1080p: 1080,
	Quality720p:  720,
	Quality480p:  480,
	Quality360p:  360,
}

// ParseQuality validates a requested quality, where empty means best.
func ParseQuality(s string) (Quality, error) {
	q := Quality(s)
	if q == "" {
		return QualityBest, nil
	}
	if !Qualities.Contains(q) {
		return "", fmt.Errorf("unknown quality %q, expected one of %v", s, generic.Sorted(Qualities))
	}
	return q, nil
}

// Height is the maximum video height for the quality, or 0 for best.
func (q Quality) Height() int {
	return qualityHeights[q]
}

// FormatSelector is the yt-dlp/youtube-dl "-f" value for the quality.
func (q Quality) FormatSelector() string {
	if h := q.Height(); h > 0 {
		return "best[height<=" + strconv.Itoa(h) + "]"
	}
	return "best"
}

// Request is what a tool is asked to download, and where to.
type Request struct {
	URL     string
	Quality Quality
	// Dir and Base name the output as Dir/Base.<ext>, with the extension chosen by the tool.
	Dir  string
	Base string
	// Rescale asks ffmpeg to re-encode to Quality's height rather than copying streams.
	Rescale bool
}

func (r Request) outputTemplate() string {
	return filepath.Join(r.Dir, r.Base)
}

// Args builds the command line arguments for running the tool on the request.
func Args(id ID, r Request) ([]string, error) {
	switch id {
	case YtDlp, YoutubeDl:
		return []string{
			"-f", r.Quality.FormatSelector(),
			"--newline",
			"--no-playlist",
			"--no-part",
			"--merge-output-format", "mp4",
			"-o", r.outputTemplate() + ".%(ext)s",
			r.URL,
		}, nil
	case GalleryDl:
		return []string{
			"-D", r.Dir,
			"-f", r.Base + ".{extension}",
			r.URL,
		}, nil
	case YouGet:
		return []string{
			"-o", r.Dir,
			"-O", r.Base,
			r.URL,
		}, nil
	case FFmpeg:
		args := []string{
			"-hide_banner",
			"-nostats",
			"-y",
			"-i", r.URL,
		}
		if h := r.Quality.Height(); r.Rescale && h > 0 {
			args = append(args,
				"-vf", "scale=-2:"+strconv.Itoa(h),
				"-c:v", "libx264",
				"-preset", "fast",
				"-crf", "23",
				"-c:a", "copy",
			)
		} else {
			args = append(args, "-c", "copy")
		}
		return append(args,
			"-bsf:a", "aac_adtstoasc",
			"-f", "mp4",
			"-progress", "pipe:1",
			r.outputTemplate()+".mp4",
		), nil
	}
	return nil, fmt.Errorf("no command line for tool %q", id)
}
