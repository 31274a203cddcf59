// Package uploader publishes downloaded videos to YouTube, either from a finished download job or straight from a
// link in one composite job.
package uploader

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/download"
	"github.com/mycoderisyad/video-downloader-uploader/internal/downloader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/progress"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/youtube"
)

var (
	ErrDownloadNotFinished = errors.New("download is not finished yet")
	ErrFileMissing         = errors.New("downloaded file no longer exists")
	ErrNotDownload         = errors.New("job is not a download")
)

type Config struct {
	Settings   *video_downloader.Config
	Store      job.Store
	Sessions   session.Database
	API        youtube.API
	Downloader *downloader.Downloader
	// Minimum interval between job updates from upload progress.
	ProgressUpdateInterval time.Duration
	Clock                  func() time.Time
}

// Request uploads the output of a finished download job.
type Request struct {
	DownloadJobID string
	Title         string
	Description   string
	Tags          []string
	Privacy       string
	Category      string
	SessionID     string
}

// LinkRequest downloads a URL and uploads it in one job.
type LinkRequest struct {
	URL         string
	Title       string
	Description string
	Quality     string
	Tags        []string
	Privacy     string
	Category    string
	SessionID   string
}

type Uploader struct {
	config Config
	log    *zap.SugaredLogger
}

func New(config Config) *Uploader {
	if config.Settings == nil {
		settings := video_downloader.DefaultConfig()
		config.Settings = &settings
	}
	if config.ProgressUpdateInterval <= 0 {
		config.ProgressUpdateInterval = time.Second
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	return &Uploader{config: config, log: zap.S().Named("uploader")}
}

func (u *Uploader) now() time.Time {
	return u.config.Clock()
}

func invalid(err error) error {
	return &failure.Error{Kind: failure.InvalidInput, Message: err.Error(), Err: err}
}

// Upload checks that the download can be published and that the session is authenticated, then starts the upload in
// the background. Nothing is created when a check fails.
func (u *Uploader) Upload(req Request) (job.Job, error) {
	src, err := u.config.Store.Get(req.DownloadJobID)
	if err != nil {
		return job.Job{}, &failure.Error{Kind: failure.NotFound, Message: "Download job not found.", Err: err}
	}
	if src.Kind != job.KindDownload {
		return job.Job{}, invalid(ErrNotDownload)
	}
	if src.Status != job.StatusCompleted {
		return job.Job{}, invalid(ErrDownloadNotFinished)
	}
	if _, err := os.Stat(src.OutputPath); err != nil {
		return job.Job{}, &failure.Error{Kind: failure.NotFound, Message: ErrFileMissing.Error(), Err: err}
	}
	if err := u.requireToken(req.SessionID); err != nil {
		return job.Job{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = src.Title
	}
	j, err := u.config.Store.Create(job.Job{
		Kind:          job.KindUpload,
		Title:         title,
		DownloadJobID: src.ID,
		SessionID:     req.SessionID,
		Platform:      video_downloader.PlatformYouTube,
	})
	if err != nil {
		return job.Job{}, err
	}
	video := youtube.Video{
		Title:       title,
		Description: req.Description,
		Tags:        req.Tags,
		CategoryID:  req.Category,
		Privacy:     req.Privacy,
	}
	path := src.OutputPath
	u.config.Downloader.Go(j.ID, func(ctx context.Context) {
		log := u.log.With("job_id", j.ID, "download_job_id", src.ID)
		log.Infow("upload started", "path", path)
		u.update(log, j.ID, job.StatusPatch(job.StatusUploading))
		u.publish(ctx, log, j.ID, req.SessionID, path, video, 0, 100)
	})
	return j, nil
}

// UploadViaLink validates the URL like a download would, then runs a DirectUpload job: download into a temporary
// directory for the first half of the progress, upload for the second half.
func (u *Uploader) UploadViaLink(req LinkRequest) (job.Job, error) {
	plan, err := u.config.Downloader.Prepare(downloader.Request{
		URL:     req.URL,
		Title:   req.Title,
		Quality: req.Quality,
	})
	if err != nil {
		return job.Job{}, err
	}
	if err := u.requireToken(req.SessionID); err != nil {
		return job.Job{}, err
	}
	j, err := u.config.Store.Create(job.Job{
		Kind:      job.KindDirectUpload,
		SourceURL: plan.Match.Source.String(),
		Platform:  plan.Platform(),
		Title:     plan.Title,
		Mode:      plan.Mode,
		SessionID: req.SessionID,
	})
	if err != nil {
		return job.Job{}, err
	}
	if updated, err := u.config.Store.Update(j.ID, job.StatusPatch(job.StatusDownloading)); err == nil {
		j = updated
	}
	video := youtube.Video{
		Title:       plan.Title,
		Description: req.Description,
		Tags:        req.Tags,
		CategoryID:  req.Category,
		Privacy:     req.Privacy,
	}
	u.config.Downloader.Go(j.ID, func(ctx context.Context) {
		u.runDirect(ctx, j.ID, plan, req.SessionID, video)
	})
	return j, nil
}

func (u *Uploader) runDirect(ctx context.Context, jobID string, plan *downloader.Plan, sessionID string, video youtube.Video) {
	log := u.log.With("job_id", jobID, "platform", plan.Platform())
	log.Infow("direct upload started", "url", plan.Match.Source.String())
	err := download.WithDownloadState(func(state *download.DownloadState) error {
		result, err := u.config.Downloader.Fetch(ctx, jobID, plan, state.TempDir(), downloader.Reporter{
			Attempt: func(t string) {
				u.update(log, jobID, job.Patch{Tool: &t})
			},
			Sample: func(s *progress.Sample) {
				u.update(log, jobID, job.SamplePatch(scaleSample(s, 0, 50)))
			},
		})
		if err != nil {
			return err
		}
		uploading := job.StatusUploading
		half := 50.0
		u.update(log, jobID, job.Patch{Status: &uploading, ResetProgress: true, Progress: &half})
		u.publish(ctx, log, jobID, sessionID, result.OutputPath, video, 50, 100)
		return nil
	}, download.WithTempDir(u.config.Settings.TempDir), download.WithPattern("upload-"+jobID+"-*"))
	if err != nil {
		if ctx.Err() == nil {
			log.Warnw("direct upload failed", "kind", failure.KindOf(err), "error", err)
		}
		u.update(log, jobID, job.ErrorPatch(err))
	}
}

// publish uploads path and records the outcome on the job, mapping upload progress onto [lo, hi].
func (u *Uploader) publish(ctx context.Context, log *zap.SugaredLogger, jobID string, sessionID string, path string, video youtube.Video, lo float64, hi float64) {
	token, config, err := u.Token(ctx, sessionID, false)
	if err != nil {
		log.Warnw("no usable token", "error", err)
		u.update(log, jobID, job.ErrorPatch(err))
		return
	}

	var mu sync.Mutex
	var lastReport time.Time
	onProgress := func(sent, total int64) {
		if total <= 0 {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if now.Sub(lastReport) < u.config.ProgressUpdateInterval && sent < total {
			return
		}
		lastReport = now
		pct := lo + (hi-lo)*float64(sent)/float64(total)
		u.update(log, jobID, job.Patch{Progress: &pct, TotalBytes: &total})
	}

	videoID, err := u.config.API.Upload(ctx, config, token, path, video, onProgress)
	if err != nil {
		err = u.classify(sessionID, err)
		if ctx.Err() == nil {
			log.Warnw("upload failed", "kind", failure.KindOf(err), "error", err)
		}
		u.update(log, jobID, job.ErrorPatch(err))
		return
	}

	completed := job.StatusCompleted
	full := 100.0
	u.update(log, jobID, job.Patch{Status: &completed, Progress: &full, VideoID: &videoID})
	log.Infow("upload completed", "video_id", videoID)
}

func (u *Uploader) requireToken(sessionID string) error {
	ok, err := u.HasToken(sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return authRequired(session.ErrNoToken)
	}
	return nil
}

// classify turns an API error into a failure. A 401 also discards the session's token, since it will not work again.
func (u *Uploader) classify(sessionID string, err error) error {
	var fe *failure.Error
	if errors.As(err, &fe) {
		return err
	}
	apiErr := youtube.APIError(err)
	if apiErr == nil {
		return failure.New(failure.GenericFailure, err)
	}
	switch apiErr.Code {
	case http.StatusUnauthorized:
		if err := u.config.Sessions.DeleteToken(sessionID); err != nil {
			u.log.Warnw("failed to discard token", "session_id", sessionID, "error", err)
		}
		return authRequired(err)
	case http.StatusForbidden:
		if youtube.IsQuotaError(apiErr) {
			return failure.New(failure.QuotaExceeded, err)
		}
		return failure.New(failure.PermissionDenied, err)
	}
	fe = failure.New(failure.GenericFailure, err)
	if apiErr.Message != "" {
		fe.Message = apiErr.Message
	}
	return fe
}

func (u *Uploader) update(log *zap.SugaredLogger, jobID string, p job.Patch) {
	if _, err := u.config.Store.Update(jobID, p); err != nil && !errors.Is(err, job.ErrJobNotFound) {
		log.Warnw("failed to update job", "error", err)
	}
}

// scaleSample maps a phase's percent onto [lo, hi] of the whole job.
func scaleSample(s *progress.Sample, lo float64, hi float64) *progress.Sample {
	if s == nil || s.Percent == nil {
		return s
	}
	scaled := *s
	p := *s.Percent
	pct := lo + (hi-lo)*p/100
	scaled.Percent = &pct
	return &scaled
}
