package progress

import (
	"time"
)

// Tracker turns ffmpeg's elapsed output time into a percentage, once the total duration is known. The duration comes
// either from the playlist up front or from ffmpeg's own "Duration:" banner line.
type Tracker struct {
	duration time.Duration
	last     Sample
}

func NewTracker(duration time.Duration) *Tracker {
	return &Tracker{duration: duration}
}

// Feed folds s into the tracker, returning the sample to publish (with Percent filled in when possible), or nil.
func (t *Tracker) Feed(s *Sample) *Sample {
	if s == nil {
		return nil
	}
	if s.Duration != nil && t.duration <= 0 {
		t.duration = *s.Duration
	}
	t.last.Merge(s)
	out := *s
	if s.OutTime != nil && t.duration > 0 {
		out.Percent = ptr(clamp(float64(*s.OutTime) / float64(t.duration) * 100))
	}
	if out.Percent == nil && out.TotalBytes == nil && out.BytesPerSecond == nil && out.ETASeconds == nil {
		return nil
	}
	return &out
}

// Meter computes speed and ETA for a byte stream the core reads itself, where no tool reports them.
type Meter struct {
	start time.Time
	now   func() time.Time
}

func NewMeter() *Meter {
	return newMeterClock(time.Now)
}

func newMeterClock(now func() time.Time) *Meter {
	return &Meter{start: now(), now: now}
}

// Update returns a sample for downloaded of expected bytes (expected 0 if unknown). No sample is produced while no time
// has elapsed, as speed and ETA would be undefined.
func (m *Meter) Update(downloaded int64, expected int64) *Sample {
	elapsed := m.now().Sub(m.start).Seconds()
	if elapsed <= 0 {
		return nil
	}
	speed := float64(downloaded) / elapsed
	s := &Sample{BytesPerSecond: ptr(speed)}
	if expected > 0 {
		s.TotalBytes = ptr(expected)
		s.Percent = ptr(clamp(float64(downloaded) / float64(expected) * 100))
		if speed > 0 {
			remaining := expected - downloaded
			if remaining < 0 {
				remaining = 0
			}
			s.ETASeconds = ptr(int64(float64(remaining) / speed))
		}
	}
	return s
}
