package downloader

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/hls"
	"github.com/mycoderisyad/video-downloader-uploader/internal/progress"
	"github.com/mycoderisyad/video-downloader-uploader/internal/runner"
	"github.com/mycoderisyad/video-downloader-uploader/internal/tool"
	"github.com/mycoderisyad/video-downloader-uploader/util"
)

// HTTPTool is reported as the tool for direct file downloads.
const HTTPTool = "http"

// fetchStream remuxes an HLS playlist with ffmpeg. A master playlist is narrowed to one variant here; a media playlist
// can only be brought down to the requested height by re-encoding.
func (d *Downloader) fetchStream(ctx context.Context, plan *Plan, dir string, base string, report Reporter) (*runner.Result, error) {
	target := plan.Match.Source.String()
	height := plan.Quality.Height()
	rescale := height > 0
	var duration time.Duration
	if hp, err := hls.Resolve(ctx, d.config.HTTPClient, target, height); err != nil {
		d.log.Infow("could not inspect playlist, passing it to ffmpeg as is", "url", target, "error", err)
	} else {
		target = hp.URL
		duration = hp.Duration
		rescale = rescale && !hp.Master
	}
	report.Attempt(tool.FFmpeg.String())
	return d.config.Runner.Run(ctx, runner.Invocation{
		Tool:     tool.FFmpeg,
		Platform: plan.Platform(),
		Request: tool.Request{
			URL:     target,
			Quality: plan.Quality,
			Dir:     dir,
			Base:    base,
			Rescale: rescale,
		},
		Duration: duration,
	}, report.Sample)
}

// fetchFile streams a plain media file over HTTP, computing speed and ETA itself.
func (d *Downloader) fetchFile(ctx context.Context, plan *Plan, dir string, base string, report Reporter) (*runner.Result, error) {
	report.Attempt(HTTPTool)
	ext := util.ExtensionFromURL(plan.Match.Source.URL)
	if ext == "" {
		ext = "mp4"
	}
	filename := base + "." + ext

	meter := progress.NewMeter()
	var mu sync.Mutex
	var lastReport time.Time
	dl, err := video_downloader.NewDownloadBuilder().
		WithContext(ctx).
		WithHTTPClient(d.config.HTTPClient).
		WithTargetDir(dir).
		WithProgressCallback(func(downloaded int64, expected int64) {
			mu.Lock()
			defer mu.Unlock()
			now := time.Now()
			if now.Sub(lastReport) < d.config.ProgressUpdateInterval && (expected == 0 || downloaded < expected) {
				return
			}
			if s := meter.Update(downloaded, expected); s != nil {
				lastReport = now
				report.Sample(s)
			}
		}).
		Build()
	if err != nil {
		return nil, failure.New(failure.GenericFailure, err)
	}
	if err := dl.SaveURL(filename, plan.Match.Source.String()); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, classifyHTTPError(err)
	}
	return &runner.Result{Tool: HTTPTool, OutputPath: dl.Path(filename)}, nil
}

func classifyHTTPError(err error) error {
	var statusErr *video_downloader.HTTPStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			return &failure.Error{Kind: failure.NotFound, Message: failure.NotFound.Message(), Tool: HTTPTool, Err: err}
		case http.StatusTooManyRequests:
			return &failure.Error{Kind: failure.RateLimited, Message: failure.RateLimited.Message(), Tool: HTTPTool, Err: err}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &failure.Error{Kind: failure.PrivateContent, Message: failure.PrivateContent.Message(), Tool: HTTPTool, Err: err}
		}
	}
	fe := failure.New(failure.GenericFailure, err)
	fe.Tool = HTTPTool
	return fe
}
