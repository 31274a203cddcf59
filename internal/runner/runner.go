// Package runner runs one external downloader tool to completion, streaming its progress.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"go.uber.org/zap"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/progress"
	"github.com/mycoderisyad/video-downloader-uploader/internal/pubsub"
	"github.com/mycoderisyad/video-downloader-uploader/internal/sync_"
	"github.com/mycoderisyad/video-downloader-uploader/internal/tool"
)

const (
	DefaultNoOutputTimeout = 5 * time.Minute
	stderrTailBytes        = 64 * 1024
	readBufSize            = 4096
	maxLineBytes           = 1 << 20
	sampleBufSize          = 64
	// After the process is killed, how long to wait for grandchildren still holding stdout/stderr open.
	waitDelay = 5 * time.Second
)

var ErrNoOutputFile = errors.New("tool finished but no output file was found")

// Leftovers of interrupted or in-progress downloads, never the final file.
var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

type Config struct {
	// NoOutputTimeout kills a tool that has printed nothing at all this long after starting.
	NoOutputTimeout time.Duration
	// ToolPath maps a tool to its executable; nil means look the tool ID up on $PATH.
	ToolPath func(tool.ID) string
}

type Runner struct {
	config Config
	log    *zap.SugaredLogger
}

func New(config Config) *Runner {
	if config.NoOutputTimeout <= 0 {
		config.NoOutputTimeout = DefaultNoOutputTimeout
	}
	if config.ToolPath == nil {
		config.ToolPath = func(id tool.ID) string { return string(id) }
	}
	return &Runner{config: config, log: zap.S().Named("runner")}
}

// Invocation is one request to run a tool.
type Invocation struct {
	Tool     tool.ID
	Platform video_downloader.Platform
	Request  tool.Request
	// Explicit is true when the user chose the tool, rather than auto mode.
	Explicit bool
	// Duration of the media if known up front, for turning ffmpeg's position into a percentage.
	Duration time.Duration
}

// Result is a successful run. Tool is the tool that actually produced the file, which differs from the requested one
// after an internal fallback.
type Result struct {
	Tool       tool.ID
	OutputPath string
}

// Execution is a running Invocation. Samples must be drained until it is closed, then Wait gives the outcome.
type Execution struct {
	samples pubsub.Channel[*progress.Sample]
	done    chan struct{}
	result  *Result
	err     error
}

// Samples delivers progress in the order the tool printed it, and is closed when the run (including any internal
// fallback) has ended.
func (e *Execution) Samples() <-chan *progress.Sample {
	return e.samples.Receive()
}

// Wait blocks until the run has ended.
func (e *Execution) Wait() (*Result, error) {
	<-e.done
	return e.result, e.err
}

// Start runs the invocation in the background.
func (r *Runner) Start(ctx context.Context, inv Invocation) *Execution {
	e := &Execution{
		samples: pubsub.NewChannel[*progress.Sample](sampleBufSize),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(e.done)
		defer e.samples.Close()
		e.result, e.err = r.runWithFallback(ctx, inv, e.samples)
	}()
	return e
}

// Run is Start followed by Wait, handing each sample to onSample.
func (r *Runner) Run(ctx context.Context, inv Invocation, onSample func(*progress.Sample)) (*Result, error) {
	e := r.Start(ctx, inv)
	for s := range e.Samples() {
		if onSample != nil {
			onSample(s)
		}
	}
	return e.Wait()
}

func (r *Runner) runWithFallback(ctx context.Context, inv Invocation, out pubsub.Sender[*progress.Sample]) (*Result, error) {
	result, err := r.runOnce(ctx, inv, out)
	if err == nil || ctx.Err() != nil {
		return result, err
	}
	kind := failure.KindOf(err)
	rule := tool.ResolveFallback(inv.Platform, inv.Tool, kind, inv.Explicit)
	if rule == nil || !rule.Internal {
		return nil, err
	}
	r.log.Infow("retrying with fallback tool", "from", inv.Tool, "to", rule.To, "kind", kind)
	fallback := inv
	fallback.Tool = rule.To
	if result, fallbackErr := r.runOnce(ctx, fallback, out); fallbackErr == nil {
		return result, nil
	} else {
		return nil, fallbackErr
	}
}

type chunk struct {
	stderr bool
	data   string
}

func (r *Runner) runOnce(ctx context.Context, inv Invocation, out pubsub.Sender[*progress.Sample]) (*Result, error) {
	log := r.log.With("tool", inv.Tool, "url", inv.Request.URL)
	args, err := tool.Args(inv.Tool, inv.Request)
	if err != nil {
		return nil, failure.New(failure.InvalidInput, err)
	}
	path := r.config.ToolPath(inv.Tool)
	if err := os.MkdirAll(inv.Request.Dir, 0755); err != nil {
		return nil, failure.New(failure.GenericFailure, fmt.Errorf("failed to create output dir: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.WaitDelay = waitDelay
	configureProcess(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, failure.New(failure.GenericFailure, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, failure.New(failure.GenericFailure, err)
	}

	log.Debugw("starting tool", "command", shellescape.QuoteCommand(append([]string{path}, args...)))
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
			return nil, &failure.Error{Kind: failure.ToolUnavailable, Message: failure.ToolUnavailable.Message(), Tool: string(inv.Tool), Err: err}
		}
		return nil, &failure.Error{Kind: failure.GenericFailure, Tool: string(inv.Tool), Err: err}
	}

	var sawOutput, timedOut sync_.Event
	timer := time.AfterFunc(r.config.NoOutputTimeout, func() {
		if !sawOutput.IsSet() {
			timedOut.Set()
			cancel()
		}
	})
	defer timer.Stop()

	chunks := make(chan chunk, sampleBufSize)
	var readers sync.WaitGroup
	readers.Add(2)
	go readStream(stdout, false, chunks, &readers)
	go readStream(stderr, true, chunks, &readers)
	go func() {
		readers.Wait()
		close(chunks)
	}()

	tail := newTail(stderrTailBytes)
	tracker := progress.NewTracker(inv.Duration)
	for c := range chunks {
		sawOutput.Set()
		if c.stderr {
			tail.Write(c.data)
		}
		sample := progress.Parse(string(inv.Tool), c.data)
		if inv.Tool == tool.FFmpeg {
			sample = tracker.Feed(sample)
		}
		if sample != nil {
			out.Send(sample)
		}
	}
	waitErr := cmd.Wait()

	switch {
	case timedOut.IsSet():
		log.Warnw("tool produced no output, killed", "timeout", r.config.NoOutputTimeout)
		return nil, &failure.Error{Kind: failure.Timeout, Message: failure.Timeout.Message(), Tool: string(inv.Tool), Err: waitErr}
	case ctx.Err() != nil:
		return nil, fmt.Errorf("%s cancelled: %w", inv.Tool, ctx.Err())
	case waitErr != nil:
		detail := tail.String()
		kind := tool.Classify(detail)
		fe := &failure.Error{Kind: kind, Message: kind.Message(), Tool: string(inv.Tool), Detail: detail, Err: waitErr}
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			fe.ExitCode = exitErr.ExitCode()
		}
		if kind == failure.GenericFailure {
			fe.Message = lastLine(detail)
		}
		log.Infow("tool failed", "kind", kind, "exit_code", fe.ExitCode)
		return nil, fe
	}

	outputPath, err := FindOutput(inv.Request.Dir, inv.Request.Base)
	if err != nil {
		return nil, &failure.Error{Kind: failure.GenericFailure, Message: err.Error(), Tool: string(inv.Tool), Err: err}
	}
	log.Infow("tool finished", "output", outputPath)
	return &Result{Tool: inv.Tool, OutputPath: outputPath}, nil
}

// readStream sends one chunk per complete output line, so that a progress line split across pipe reads is never parsed
// in pieces.
func readStream(r io.Reader, isStderr bool, out chan<- chunk, wg *sync.WaitGroup) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, readBufSize), maxLineBytes)
	scanner.Split(progress.ScanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasSuffix(line, "\n") && !strings.HasSuffix(line, "\r") {
			// The stream ended, so the last line is complete
			line += "\n"
		}
		out <- chunk{stderr: isStderr, data: line}
	}
	// An overlong line stops the scanner; keep draining so the tool never blocks on a full pipe
	_, _ = io.Copy(io.Discard, r)
}

// FindOutput locates the file a tool wrote as dir/base.<ext>, ignoring partial-download leftovers. If a tool left more
// than one candidate (e.g. separate streams before merging), the largest wins.
func FindOutput(dir string, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	type candidate struct {
		path string
		size int64
	}
	var candidates []candidate
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, base+".") || isPartial(name) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{filepath.Join(dir, name), info.Size()})
	}
	if len(candidates) == 0 {
		return "", ErrNoOutputFile
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].size > candidates[j].size })
	return candidates[0].path, nil
}

func isPartial(name string) bool {
	for _, suffix := range partialSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	lines := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return failure.GenericFailure.Message()
}

// tail keeps the last max bytes written to it.
type tail struct {
	max int
	buf []byte
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) Write(s string) {
	t.buf = append(t.buf, s...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tail) String() string {
	return string(t.buf)
}
