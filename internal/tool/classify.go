package tool

import (
	"regexp"

	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
)

// A ClassifyRule matches tool output to a failure Kind.
type ClassifyRule struct {
	Pattern *regexp.Regexp
	Kind    failure.Kind
}

func rule(pattern string, kind failure.Kind) ClassifyRule {
	return ClassifyRule{Pattern: regexp.MustCompile(`(?i)` + pattern), Kind: kind}
}

// ClassifyRules are tried top to bottom against a failed tool's stderr; the first match wins.
var ClassifyRules = []ClassifyRule{
	rule(`Private video|This video is private|login required to view|private account`, failure.PrivateContent),
	rule(`Sign in to confirm you.re not a bot|confirm you are not a robot|checkpoint required`, failure.BotDetection),
	rule(`HTTP Error 429|Too Many Requests|rate[- ]limit`, failure.RateLimited),
	rule(`available in your (country|region)|geo[- ]?restrict|blocked it in your country`, failure.RegionBlocked),
	rule(`Requested format is not available|no video formats found`, failure.FormatUnavailable),
	rule(`Video unavailable|HTTP Error 404|404 Not Found|Unsupported URL|No suitable extractor|NotFoundError|does not exist|No results for`, failure.NotFound),
	rule(`Sign in to|login required|cookies? (are|is) (needed|required)|AuthorizationError`, failure.BotDetection),
}

// Classify finds the Kind of a tool failure from its stderr, or GenericFailure.
func Classify(stderr string) failure.Kind {
	for _, r := range ClassifyRules {
		if r.Pattern.MatchString(stderr) {
			return r.Kind
		}
	}
	return failure.GenericFailure
}
