package progress

import (
	"bufio"
	"strings"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_YtDlp(t *testing.T) {
	assert := assert_.New(t)

	s := Parse("yt-dlp", "[download]  45.3% of ~  12.00MiB at    1.50MiB/s ETA 01:05 (frag 3/10)\n")
	require.NotNil(t, s)
	assert.InDelta(45.3, *s.Percent, 0.001)
	assert.Equal(int64(12*1024*1024), *s.TotalBytes)
	assert.InDelta(1.5*1024*1024, *s.BytesPerSecond, 1)
	assert.Equal(int64(65), *s.ETASeconds)
}

func TestParse_CarriageReturns(t *testing.T) {
	assert := assert_.New(t)

	// Several redraws in one chunk: later readings win
	s := Parse("yt-dlp", "[download]  10.0% of 1.00GiB at 2.00KiB/s ETA 1:00:00\r[download]  20.5% of 1.00GiB at 4.00KiB/s ETA 59:00\r")
	require.NotNil(t, s)
	assert.InDelta(20.5, *s.Percent, 0.001)
	assert.InDelta(4096, *s.BytesPerSecond, 0.001)
	assert.Equal(int64(1024*1024*1024), *s.TotalBytes)
	assert.Equal(int64(3540), *s.ETASeconds)
}

func TestParse_CutOffLine(t *testing.T) {
	assert := assert_.New(t)

	// An unterminated line may end mid-number ("1:23:4" of "1:23:45"), so it yields nothing
	assert.Nil(Parse("yt-dlp", "[download]  45.0% of 1.00GiB at 12.50MiB/s ETA 1:23:4"))

	// Only the complete line before the cut counts
	s := Parse("yt-dlp", "[download]  10.0% of 1.00GiB at 2.00KiB/s ETA 1:00:00\n[download]  20.5% of 1.00GiB at 12.5")
	require.NotNil(t, s)
	assert.InDelta(10.0, *s.Percent, 0.001)
	assert.InDelta(2048, *s.BytesPerSecond, 0.001)
	assert.Equal(int64(3600), *s.ETASeconds)
}

func TestParse_NoMatch(t *testing.T) {
	assert := assert_.New(t)

	assert.Nil(Parse("yt-dlp", "[youtube] abc123: Downloading webpage\n"))
	assert.Nil(Parse("gallery-dl", ""))
	assert.Nil(Parse("ffmpeg", "frame=  100 fps=25\n"))
}

func TestParse_Clamp(t *testing.T) {
	assert := assert_.New(t)

	s := Parse("you-get", "150.0% done\n")
	require.NotNil(t, s)
	assert.Equal(100.0, *s.Percent)
}

func TestParse_UnknownSpeed(t *testing.T) {
	assert := assert_.New(t)

	s := Parse("yt-dlp", "[download]   0.0% of ~ 5.00MiB at Unknown B/s ETA Unknown\n")
	require.NotNil(t, s)
	assert.Equal(0.0, *s.Percent)
	assert.Nil(s.BytesPerSecond)
	assert.Nil(s.ETASeconds)
}

func TestParse_FFmpeg(t *testing.T) {
	assert := assert_.New(t)

	s := Parse("ffmpeg", "  Duration: 00:01:40.50, start: 0.000000, bitrate: N/A\n")
	require.NotNil(t, s)
	assert.Equal(100*time.Second+500*time.Millisecond, *s.Duration)

	s = Parse("ffmpeg", "frame=10\nout_time_us=25000000\ntotal_size=1048576\nprogress=continue\n")
	require.NotNil(t, s)
	assert.Equal(25*time.Second, *s.OutTime)
	assert.Equal(int64(1048576), *s.TotalBytes)
	assert.Nil(s.Percent)
}

func TestTracker(t *testing.T) {
	assert := assert_.New(t)

	tr := NewTracker(0)
	// No duration yet, so no percent, and nothing else worth publishing
	assert.Nil(tr.Feed(Parse("ffmpeg", "out_time_us=1000000\n")))
	assert.Nil(tr.Feed(Parse("ffmpeg", "Duration: 00:00:10.00, start\n")))
	s := tr.Feed(Parse("ffmpeg", "out_time_us=2500000\n"))
	require.NotNil(t, s)
	assert.InDelta(25.0, *s.Percent, 0.001)

	tr = NewTracker(4 * time.Second)
	s = tr.Feed(Parse("ffmpeg", "out_time_us=8000000\n"))
	require.NotNil(t, s)
	assert.Equal(100.0, *s.Percent)
	assert.Nil(tr.Feed(nil))
}

func TestMeter(t *testing.T) {
	assert := assert_.New(t)

	now := time.Unix(1000, 0)
	m := newMeterClock(func() time.Time { return now })
	// Zero elapsed time gives no sample rather than Inf/NaN
	assert.Nil(m.Update(100, 1000))

	now = now.Add(2 * time.Second)
	s := m.Update(500, 1000)
	require.NotNil(t, s)
	assert.Equal(250.0, *s.BytesPerSecond)
	assert.Equal(50.0, *s.Percent)
	assert.Equal(int64(2), *s.ETASeconds)
	assert.Equal(int64(1000), *s.TotalBytes)

	// Unknown total: speed only
	s = m.Update(500, 0)
	require.NotNil(t, s)
	assert.Nil(s.Percent)
	assert.Nil(s.ETASeconds)

	// Nothing downloaded yet: no ETA
	s = m.Update(0, 1000)
	require.NotNil(t, s)
	assert.Nil(s.ETASeconds)
}

func TestScanLines(t *testing.T) {
	assert := assert_.New(t)

	scanner := bufio.NewScanner(strings.NewReader("[download]  1.0%\r[download]  2.0%\r\nDone\ntail"))
	scanner.Split(ScanLines)
	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	assert.NoError(scanner.Err())
	assert.Equal([]string{"[download]  1.0%\r", "[download]  2.0%\r", "\n", "Done\n", "tail"}, tokens)
}
