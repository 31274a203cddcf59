// Package job keeps the records of download and upload jobs that clients poll.
package job

import (
	"errors"
	"math"
	"time"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/generic"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/progress"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrOutputPathSet = errors.New("job output path is already set")
	ErrDuplicateID   = errors.New("job ID already exists")
)

type Kind string

const (
	KindDownload     Kind = "download"
	KindUpload       Kind = "upload"
	KindDirectUpload Kind = "direct_upload"
)

type Status string

const (
	StatusStarting    Status = "starting"
	StatusDownloading Status = "downloading"
	StatusUploading   Status = "uploading"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
)

func (s Status) String() string {
	return string(s)
}

var runningStatuses = generic.NewSet(
	StatusStarting,
	StatusDownloading,
	StatusUploading,
)

// IsRunning returns true if the status is one where some task is still driving the job.
func (s Status) IsRunning() bool {
	return runningStatuses.Contains(s)
}

func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusError
}

type Mode string

const (
	ModeServer Mode = "server"
	ModeDirect Mode = "direct"
)

// Job is a snapshot of one job. Pointer telemetry fields are nil until a value has been seen.
type Job struct {
	ID         string                    `diff:"-"`
	Kind       Kind                      `diff:"kind"`
	Status     Status                    `diff:"status"`
	Progress   float64                   `diff:"progress"`
	Speed      *float64                  `diff:"speed"`
	ETA        *int64                    `diff:"eta"`
	TotalBytes *int64                    `diff:"total_bytes"`
	SourceURL  string                    `diff:"source_url"`
	OutputPath string                    `diff:"output_path"`
	Platform   video_downloader.Platform `diff:"platform"`
	Error      string                    `diff:"error"`
	ErrorKind  failure.Kind              `diff:"error_kind"`
	CreatedAt  time.Time                 `diff:"-"`
	UpdatedAt  time.Time                 `diff:"-"`

	BatchID        string `diff:"batch_id"`
	Title          string `diff:"title"`
	Mode           Mode   `diff:"mode"`
	Tool           string `diff:"tool"`
	ReadyForClient bool   `diff:"ready_for_client"`
	// DownloadJobID is the download an upload job publishes.
	DownloadJobID string `diff:"download_job_id"`
	VideoID       string `diff:"video_id"`
	SessionID     string `diff:"-"`
}

// Patch is a partial update. Nil fields leave the stored value alone.
type Patch struct {
	Status *Status
	// Progress only ever increases, unless ResetProgress starts a new phase first.
	Progress      *float64
	ResetProgress bool
	Speed         *float64
	ETA           *int64
	TotalBytes    *int64
	OutputPath    *string
	// Err records a failure; it should come with Status set to StatusError.
	Err            error
	Title          *string
	Tool           *string
	ReadyForClient *bool
	VideoID        *string
}

// Apply merges p into j.
func (j *Job) Apply(p Patch, now time.Time) error {
	if p.OutputPath != nil && j.OutputPath != "" && j.OutputPath != *p.OutputPath {
		return ErrOutputPathSet
	}
	if p.ResetProgress {
		j.Progress = 0
		j.Speed, j.ETA, j.TotalBytes = nil, nil, nil
	}
	if p.Progress != nil {
		j.Progress = math.Max(j.Progress, clampPercent(*p.Progress))
	}
	if p.Speed != nil {
		j.Speed = ref(*p.Speed)
	}
	if p.ETA != nil {
		j.ETA = ref(*p.ETA)
	}
	if p.TotalBytes != nil {
		j.TotalBytes = ref(*p.TotalBytes)
	}
	if p.OutputPath != nil {
		j.OutputPath = *p.OutputPath
	}
	if p.Title != nil {
		j.Title = *p.Title
	}
	if p.Tool != nil {
		j.Tool = *p.Tool
	}
	if p.ReadyForClient != nil {
		j.ReadyForClient = *p.ReadyForClient
	}
	if p.VideoID != nil {
		j.VideoID = *p.VideoID
	}
	if p.Status != nil {
		j.Status = *p.Status
		if j.Status != StatusError {
			j.Error, j.ErrorKind = "", ""
		}
	}
	if p.Err != nil {
		j.Error = failure.MessageOf(p.Err)
		j.ErrorKind = failure.KindOf(p.Err)
	}
	j.UpdatedAt = now
	return nil
}

func clampPercent(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(100, v))
}

func ref[T any](v T) *T {
	return &v
}

// Helpers for building patches.

func StatusPatch(s Status) Patch {
	return Patch{Status: &s}
}

func ErrorPatch(err error) Patch {
	s := StatusError
	return Patch{Status: &s, Err: err}
}

// SamplePatch turns a progress reading into a patch, leaving out whatever the reading did not have.
func SamplePatch(s *progress.Sample) Patch {
	if s == nil {
		return Patch{}
	}
	return Patch{
		Progress:   s.Percent,
		Speed:      s.BytesPerSecond,
		ETA:        s.ETASeconds,
		TotalBytes: s.TotalBytes,
	}
}
