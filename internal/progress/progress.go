// Package progress turns the progress output of the external tools into one normalized shape.
package progress

import (
	"bytes"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dannav/hhmmss"
	"github.com/dustin/go-humanize"
)

// Sample is one normalized reading. Nil fields were not present in the output, and must not overwrite a previously
// known value.
type Sample struct {
	Percent        *float64
	BytesPerSecond *float64
	ETASeconds     *int64
	TotalBytes     *int64

	// OutTime and Duration come from ffmpeg, and only become a Percent through a Tracker.
	OutTime  *time.Duration
	Duration *time.Duration
}

// Empty is true if the sample carries nothing.
func (s *Sample) Empty() bool {
	return s == nil || (s.Percent == nil && s.BytesPerSecond == nil && s.ETASeconds == nil && s.TotalBytes == nil &&
		s.OutTime == nil && s.Duration == nil)
}

// Merge copies every field that is set in other over s.
func (s *Sample) Merge(other *Sample) {
	if other == nil {
		return
	}
	if other.Percent != nil {
		s.Percent = other.Percent
	}
	if other.BytesPerSecond != nil {
		s.BytesPerSecond = other.BytesPerSecond
	}
	if other.ETASeconds != nil {
		s.ETASeconds = other.ETASeconds
	}
	if other.TotalBytes != nil {
		s.TotalBytes = other.TotalBytes
	}
	if other.OutTime != nil {
		s.OutTime = other.OutTime
	}
	if other.Duration != nil {
		s.Duration = other.Duration
	}
}

const ffmpegTool = "ffmpeg"

var (
	percentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	// "of 12.34MiB", "of ~  12.34MiB"
	totalRe = regexp.MustCompile(`of\s+~?\s*(\d+(?:\.\d+)?\s*[KMG]iB)`)
	speedRe = regexp.MustCompile(`(\d+(?:\.\d+)?\s*(?:[KMG]iB|B))/s`)
	etaRe   = regexp.MustCompile(`ETA\s+(\d+(?::\d{2}){1,2})`)

	outTimeRe   = regexp.MustCompile(`^out_time_us=(\d+)`)
	totalSizeRe = regexp.MustCompile(`^total_size=(\d+)`)
	durationRe  = regexp.MustCompile(`Duration:\s*(\d+:\d{2}:\d{2}(?:\.\d+)?)`)
)

// Parse reads the complete lines in chunk, and returns the combination of every reading found, later lines winning.
// Text after the last line terminator is ignored, since a cut-off line can hold a truncated number. It returns nil
// when nothing matched, which is not an error.
func Parse(tool string, chunk string) *Sample {
	parseLine := parsePercentLine
	if tool == ffmpegTool {
		parseLine = parseFFmpegLine
	}
	var sample Sample
	for _, line := range splitLines(chunk) {
		sample.Merge(parseLine(line))
	}
	if sample.Empty() {
		return nil
	}
	return &sample
}

// yt-dlp and friends redraw their progress line with \r, so both \r and \n end a line.
func isLineEnd(r rune) bool {
	return r == '\r' || r == '\n'
}

// ScanLines is a bufio.SplitFunc for tool output. Each token keeps its \r or \n terminator, so it can go straight to
// Parse. A final line without a terminator is returned at EOF, with "\n" to be appended by the caller.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func splitLines(chunk string) []string {
	end := strings.LastIndexFunc(chunk, isLineEnd)
	if end < 0 {
		return nil
	}
	return strings.FieldsFunc(chunk[:end], isLineEnd)
}

func parsePercentLine(line string) *Sample {
	var s Sample
	if m := percentRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			s.Percent = ptr(clamp(v))
		}
	}
	if m := totalRe.FindStringSubmatch(line); m != nil {
		if v, ok := parseBytes(m[1]); ok {
			s.TotalBytes = ptr(int64(v))
		}
	}
	if m := speedRe.FindStringSubmatch(line); m != nil {
		if v, ok := parseBytes(m[1]); ok {
			s.BytesPerSecond = ptr(float64(v))
		}
	}
	if m := etaRe.FindStringSubmatch(line); m != nil {
		if d, ok := parseClock(m[1]); ok {
			s.ETASeconds = ptr(int64(d / time.Second))
		}
	}
	if s.Empty() {
		return nil
	}
	return &s
}

func parseFFmpegLine(line string) *Sample {
	line = strings.TrimSpace(line)
	var s Sample
	if m := outTimeRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			s.OutTime = ptr(time.Duration(v) * time.Microsecond)
		}
	}
	if m := totalSizeRe.FindStringSubmatch(line); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			s.TotalBytes = ptr(v)
		}
	}
	if m := durationRe.FindStringSubmatch(line); m != nil {
		if d, ok := parseClock(m[1]); ok && d > 0 {
			s.Duration = ptr(d)
		}
	}
	if s.Empty() {
		return nil
	}
	return &s
}

// parseBytes understands "12.34MiB" and "512B". Binary prefixes only: K=1024, M=1024², G=1024³.
func parseBytes(s string) (uint64, bool) {
	v, err := humanize.ParseBytes(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseClock reads "M:SS", "H:MM:SS" and "H:MM:SS.ff".
func parseClock(s string) (time.Duration, bool) {
	whole, frac, _ := strings.Cut(s, ".")
	parts := strings.Split(whole, ":")
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	for i, p := range parts {
		if len(p) < 2 {
			parts[i] = "0" + p
		}
	}
	d, err := hhmmss.Parse(strings.Join(parts, ":"))
	if err != nil {
		return 0, false
	}
	if frac != "" {
		if f, err := strconv.ParseFloat("0."+frac, 64); err == nil {
			d += time.Duration(f * float64(time.Second))
		}
	}
	return d, true
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func ptr[T any](v T) *T {
	return &v
}
