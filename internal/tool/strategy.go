package tool

import (
	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/generic"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
)

// FallbackRule says: when From fails with one of Kinds on one of Platforms, try To next.
type FallbackRule struct {
	Platforms generic.Set[video_downloader.Platform]
	From      ID
	To        ID
	Kinds     generic.Set[failure.Kind]
	// ExplicitOnly rules apply only when the user picked From themselves, never in auto mode.
	ExplicitOnly bool
	// Internal rules are retried by the runner itself, within the same tool invocation.
	Internal bool
}

func (r FallbackRule) applies(platform video_downloader.Platform, from ID, kind failure.Kind, explicit bool) bool {
	if r.ExplicitOnly && !explicit {
		return false
	}
	return r.From == from && r.Platforms.Contains(platform) && r.Kinds.Contains(kind)
}

var social = generic.NewSet(video_downloader.PlatformInstagram, video_downloader.PlatformFacebook)

// FallbackRules is every fallback there is, in priority order.
var FallbackRules = []FallbackRule{
	{
		// yt-dlp gets singled out by YouTube's bot check more often than the older youtube-dl
		Platforms: generic.NewSet(video_downloader.PlatformYouTube),
		From:      YtDlp,
		To:        YoutubeDl,
		Kinds:     generic.NewSet(failure.BotDetection),
		Internal:  true,
	},
	{
		Platforms:    social,
		From:         GalleryDl,
		To:           YtDlp,
		Kinds:        generic.NewSet(failure.BotDetection, failure.NotFound),
		ExplicitOnly: true,
	},
	{
		Platforms:    social,
		From:         YtDlp,
		To:           GalleryDl,
		Kinds:        generic.NewSet(failure.BotDetection, failure.NotFound),
		ExplicitOnly: true,
	},
}

// ResolveFallback finds the rule for a failed attempt, or nil if the failure is final.
func ResolveFallback(platform video_downloader.Platform, from ID, kind failure.Kind, explicit bool) *FallbackRule {
	for i := range FallbackRules {
		if FallbackRules[i].applies(platform, from, kind, explicit) {
			return &FallbackRules[i]
		}
	}
	return nil
}

// Primary is the tool used for a platform in auto mode.
func Primary(platform video_downloader.Platform) ID {
	if platform.IsSocial() {
		return GalleryDl
	}
	return YtDlp
}

// SelectChain gives the tools to try, in order, for a platform and the user's choice. Auto mode is the platform's
// primary tool alone; an explicit choice is followed by the target of any orchestrator-level fallback rule for it.
func SelectChain(platform video_downloader.Platform, choice ID) []ID {
	if choice == Auto || choice == Unselected {
		return []ID{Primary(platform)}
	}
	chain := []ID{choice}
	for _, r := range FallbackRules {
		if !r.Internal && r.ExplicitOnly && r.From == choice && r.Platforms.Contains(platform) {
			chain = append(chain, r.To)
			break
		}
	}
	return chain
}
