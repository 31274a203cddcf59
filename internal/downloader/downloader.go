// Package downloader drives download jobs: it validates the request, picks how to fetch the URL, walks the tool
// chain, and keeps the job record up to date for polling clients.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/progress"
	"github.com/mycoderisyad/video-downloader-uploader/internal/runner"
	"github.com/mycoderisyad/video-downloader-uploader/internal/sync_"
	"github.com/mycoderisyad/video-downloader-uploader/internal/tool"
)

var (
	ErrURLRequired   = errors.New("URL is required")
	ErrDirectYouTube = errors.New("YouTube videos cannot be downloaded in direct mode, use server mode instead")
	ErrUnknownMode   = errors.New("unknown download mode, expected server or direct")
)

// How long Delete waits for a cancelled job to stop before removing it anyway.
const stopTimeout = 10 * time.Second

// ToolRunner runs one external tool; *runner.Runner is the real one.
type ToolRunner interface {
	Run(ctx context.Context, inv runner.Invocation, onSample func(*progress.Sample)) (*runner.Result, error)
}

type Config struct {
	Settings   *video_downloader.Config
	Store      job.Store
	Runner     ToolRunner
	Registry   *video_downloader.ProviderRegistry
	HTTPClient *http.Client
	// Minimum interval between job updates from a direct HTTP fetch, which reports on every write.
	ProgressUpdateInterval time.Duration
}

// Request is a download as asked for by a client. Empty optional fields take their defaults.
type Request struct {
	URL       string
	Title     string
	Quality   string
	Mode      string
	Choice    string
	BatchID   string
	SessionID string
}

// Plan is a validated Request.
type Plan struct {
	Match   *video_downloader.Match
	Title   string
	Quality tool.Quality
	Mode    job.Mode
	Choice  tool.ID
}

func (p *Plan) Platform() video_downloader.Platform {
	return p.Match.Source.Platform
}

// Reporter receives what happens during a Fetch. Either func may be nil.
type Reporter struct {
	Attempt func(tool string)
	Sample  func(*progress.Sample)
}

type activeJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Downloader struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	active  *sync_.Map[string, *activeJob]
	running sync.WaitGroup
}

func New(config Config, ctx context.Context) *Downloader {
	if config.Registry == nil {
		config.Registry = &video_downloader.DefaultProviderRegistry
	}
	if config.HTTPClient == nil {
		config.HTTPClient = video_downloader.NewHTTPClient()
	}
	if config.Settings == nil {
		settings := video_downloader.DefaultConfig()
		config.Settings = &settings
	}
	if config.ProgressUpdateInterval <= 0 {
		config.ProgressUpdateInterval = 500 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Downloader{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("downloader"),
		active:    sync_.NewMap[string, *activeJob](),
	}
}

// Prepare validates a request without creating anything. Every error is an InvalidInput failure.
func (d *Downloader) Prepare(req Request) (*Plan, error) {
	invalid := func(err error) (*Plan, error) {
		return nil, &failure.Error{Kind: failure.InvalidInput, Message: err.Error(), Err: err}
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return invalid(ErrURLRequired)
	}
	quality, err := tool.ParseQuality(req.Quality)
	if err != nil {
		return invalid(err)
	}
	choice, err := tool.ParseChoice(req.Choice)
	if err != nil {
		return invalid(err)
	}
	var mode job.Mode
	switch job.Mode(req.Mode) {
	case "", job.ModeServer:
		mode = job.ModeServer
	case job.ModeDirect:
		mode = job.ModeDirect
	default:
		return invalid(ErrUnknownMode)
	}
	match, err := d.config.Registry.Match(rawURL)
	if err != nil {
		return nil, &failure.Error{Kind: failure.InvalidInput, Message: failure.InvalidInput.Message(), Err: err}
	}
	if mode == job.ModeDirect && match.Source.Platform == video_downloader.PlatformYouTube {
		return invalid(ErrDirectYouTube)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = fmt.Sprintf("video_%d", time.Now().Unix())
	}
	return &Plan{Match: match, Title: title, Quality: quality, Mode: mode, Choice: choice}, nil
}

// Submit validates the request, creates its job, and starts downloading in the background. Nothing is created when
// validation fails.
func (d *Downloader) Submit(req Request) (job.Job, error) {
	plan, err := d.Prepare(req)
	if err != nil {
		return job.Job{}, err
	}
	j, err := d.config.Store.Create(job.Job{
		Kind:      job.KindDownload,
		SourceURL: plan.Match.Source.String(),
		Platform:  plan.Platform(),
		Title:     plan.Title,
		Mode:      plan.Mode,
		BatchID:   req.BatchID,
		SessionID: req.SessionID,
	})
	if err != nil {
		return job.Job{}, err
	}
	d.Go(j.ID, func(ctx context.Context) {
		d.Run(ctx, j.ID, plan)
	})
	return j, nil
}

// Go runs f in the background on behalf of a job, so that Delete can cancel it and Close can wait for it.
func (d *Downloader) Go(jobID string, f func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(d.ctx)
	a := &activeJob{cancel: cancel, done: make(chan struct{})}
	d.active.Store(jobID, a)
	d.running.Add(1)
	go func() {
		defer d.running.Done()
		defer close(a.done)
		defer cancel()
		defer d.active.DeleteIf(jobID, func(v *activeJob) bool { return v == a })
		f(ctx)
	}()
}

// Run downloads a planned URL for an existing job, keeping the job up to date until it completes or fails.
func (d *Downloader) Run(ctx context.Context, jobID string, plan *Plan) {
	log := d.log.With("job_id", jobID, "platform", plan.Platform(), "route", plan.Match.Source.Route)
	log.Infow("download started", "url", plan.Match.Source.String(), "quality", plan.Quality, "mode", plan.Mode)
	d.update(log, jobID, job.StatusPatch(job.StatusDownloading))

	result, err := d.Fetch(ctx, jobID, plan, d.config.Settings.DownloadDir, Reporter{
		Attempt: func(t string) {
			d.update(log, jobID, job.Patch{Tool: &t})
		},
		Sample: func(s *progress.Sample) {
			d.update(log, jobID, job.SamplePatch(s))
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			log.Infow("download cancelled")
		} else {
			log.Warnw("download failed", "kind", failure.KindOf(err), "error", err)
		}
		d.update(log, jobID, job.ErrorPatch(err))
		return
	}

	completed := job.StatusCompleted
	full := 100.0
	ready := plan.Mode == job.ModeDirect
	if _, err := d.config.Store.Update(jobID, job.Patch{
		Status:         &completed,
		Progress:       &full,
		OutputPath:     &result.OutputPath,
		ReadyForClient: &ready,
	}); err != nil {
		// Job deleted meanwhile, so nobody will ever collect the file
		log.Infow("discarding output of removed job", "output", result.OutputPath, "error", err)
		removeFile(log, result.OutputPath)
		return
	}
	log.Infow("download completed", "tool", result.Tool, "output", result.OutputPath)
}

func (d *Downloader) update(log *zap.SugaredLogger, jobID string, p job.Patch) {
	if _, err := d.config.Store.Update(jobID, p); err != nil && !errors.Is(err, job.ErrJobNotFound) {
		log.Warnw("failed to update job", "error", err)
	}
}

// Fetch downloads a planned URL into dir, choosing the route from the URL's match. It does not touch the job store, so
// that composite jobs can report progress their own way.
func (d *Downloader) Fetch(ctx context.Context, jobID string, plan *Plan, dir string, report Reporter) (*runner.Result, error) {
	base, err := d.config.Settings.TargetBase(plan.Title, jobID)
	if err != nil {
		return nil, failure.New(failure.GenericFailure, fmt.Errorf("bad target filename template: %w", err))
	}
	if report.Sample == nil {
		report.Sample = func(*progress.Sample) {}
	}
	if report.Attempt == nil {
		report.Attempt = func(string) {}
	}
	var result *runner.Result
	switch plan.Match.Source.Route {
	case video_downloader.RouteStream:
		result, err = d.fetchStream(ctx, plan, dir, base, report)
	case video_downloader.RouteFile:
		result, err = d.fetchFile(ctx, plan, dir, base, report)
	default:
		result, err = d.fetchWithTools(ctx, plan, dir, base, report)
	}
	if err != nil {
		removeOutputs(d.log, dir, base)
		return nil, err
	}
	return result, nil
}

// fetchWithTools walks the tool chain. A later tool is only tried when the fallback rules allow it for the failure of
// the one before.
func (d *Downloader) fetchWithTools(ctx context.Context, plan *Plan, dir string, base string, report Reporter) (*runner.Result, error) {
	explicit := plan.Choice != tool.Auto
	chain := tool.SelectChain(plan.Platform(), plan.Choice)
	log := d.log.With("chain", chain)
	var lastErr error
	for i, t := range chain {
		report.Attempt(t.String())
		result, err := d.config.Runner.Run(ctx, runner.Invocation{
			Tool:     t,
			Platform: plan.Platform(),
			Request: tool.Request{
				URL:     plan.Match.Source.String(),
				Quality: plan.Quality,
				Dir:     dir,
				Base:    base,
			},
			Explicit: explicit,
		}, report.Sample)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil || i+1 >= len(chain) {
			break
		}
		kind := failure.KindOf(err)
		rule := tool.ResolveFallback(plan.Platform(), t, kind, explicit)
		if rule == nil || rule.Internal || rule.To != chain[i+1] {
			break
		}
		log.Infow("falling back to next tool", "from", t, "to", rule.To, "kind", kind)
		removeOutputs(d.log, dir, base)
	}
	return nil, lastErr
}

// Delete stops a job if it is running, then removes it and its output file.
func (d *Downloader) Delete(jobID string) (job.Job, error) {
	d.Stop(jobID)
	j, err := d.config.Store.Delete(jobID)
	if err != nil {
		return job.Job{}, err
	}
	if j.OutputPath != "" {
		removeFile(d.log, j.OutputPath)
	}
	d.log.Infow("job deleted", "job_id", jobID)
	return j, nil
}

// Stop cancels a running job, which kills its tool, and waits a bounded time for it to wind down.
func (d *Downloader) Stop(jobID string) {
	a, ok := d.active.Load(jobID)
	if !ok {
		return
	}
	a.cancel()
	select {
	case <-a.done:
	case <-time.After(stopTimeout):
		d.log.Warnw("job did not stop in time", "job_id", jobID)
	}
}

// ClearAll deletes every job, returning how many were removed.
func (d *Downloader) ClearAll() (int, error) {
	var result error
	count := 0
	for _, j := range d.config.Store.List() {
		if _, err := d.Delete(j.ID); err != nil {
			if !errors.Is(err, job.ErrJobNotFound) {
				result = multierror.Append(result, err)
			}
			continue
		}
		count++
	}
	return count, result
}

// Close cancels every running job and waits for them.
func (d *Downloader) Close() {
	d.ctxCancel()
	d.running.Wait()
}

func removeFile(log *zap.SugaredLogger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnw("failed to remove file", "path", path, "error", err)
	}
}

// removeOutputs deletes anything a failed attempt left as dir/base.*.
func removeOutputs(log *zap.SugaredLogger, dir string, base string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), base+".") {
			removeFile(log, filepath.Join(dir, entry.Name()))
		}
	}
}
