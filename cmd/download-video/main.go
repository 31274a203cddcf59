package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/async"
	"github.com/mycoderisyad/video-downloader-uploader/internal/downloader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/runner"
	"github.com/mycoderisyad/video-downloader-uploader/internal/tool"
	_ "github.com/mycoderisyad/video-downloader-uploader/providers"
)

var ErrDownloadFailed = errors.New("download failed")

func main() {
	logger, err := zap.NewDevelopment(zap.IncreaseLevel(zap.InfoLevel))
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = video_downloader.WithLogger(ctx, logger.Sugar())

	app := &cli.App{
		Name:      "download-video",
		Usage:     "download videos into a directory",
		ArgsUsage: "URL...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "target",
				Value: ".",
				Usage: "save downloaded video to `DIR`",
			},
			&cli.StringFlag{
				Name:  "quality",
				Value: string(tool.QualityBest),
				Usage: "best, 1080p, 720p, 480p or 360p",
			},
			&cli.StringFlag{
				Name:  "downloader",
				Value: string(tool.Auto),
				Usage: "auto, yt-dlp, gallery-dl or you-get",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "name the file after `TITLE` (default: video_<timestamp>)",
			},
		},
		Action: func(c *cli.Context) error {
			settings := video_downloader.DefaultConfig()
			settings.DownloadDir = c.String("target")
			if err := os.MkdirAll(settings.DownloadDir, 0755); err != nil {
				return err
			}
			for _, source := range c.Args().Slice() {
				req := downloader.Request{
					URL:     source,
					Title:   c.String("title"),
					Quality: c.String("quality"),
					Choice:  c.String("downloader"),
				}
				if err := download(ctx, &settings, req); err != nil {
					return err
				}
			}
			return nil
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err = <-result:
		if err != nil {
			logger.Fatal(err.Error())
		}
	case <-ctx.Done():
		stop()
		err = <-result
		if err != nil {
			logger.Fatal(err.Error())
		}
	}
}

func download(ctx context.Context, settings *video_downloader.Config, req downloader.Request) error {
	logger := video_downloader.Logger(ctx)
	logger.Infof("Downloading from %s into %s", req.URL, settings.DownloadDir)

	store := job.NewMemoryStore()
	defer store.Close()
	dl := downloader.New(downloader.Config{
		Settings: settings,
		Store:    store,
		Runner:   runner.New(runner.Config{NoOutputTimeout: settings.NoOutputTimeout}),
	}, ctx)
	defer dl.Close()

	plan, err := dl.Prepare(req)
	if err != nil {
		return err
	}
	logger.Infof("Matched %s (%s, %s)", plan.Match.ProviderName, plan.Platform(), plan.Match.Source.Route)

	// Subscribe before submitting, under a known ID, so that no update is missed
	j, err := store.Create(job.Job{Kind: job.KindDownload, SourceURL: plan.Match.Source.String(), Platform: plan.Platform(), Title: plan.Title})
	if err != nil {
		return err
	}
	events, err := store.SubscribeJob(j.ID)
	if err != nil {
		return err
	}
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	dl.Go(j.ID, func(ctx context.Context) {
		dl.Run(ctx, j.ID, plan)
	})

	for event := range events.Receive() {
		current := event.New
		if current == nil {
			break
		}
		_ = bar.Set(int(current.Progress))
		bar.Describe(describe(current))
		switch current.Status {
		case job.StatusCompleted:
			_ = bar.Finish()
			logger.Infof("Download complete: %s", current.OutputPath)
			return nil
		case job.StatusError:
			_ = bar.Exit()
			return fmt.Errorf("%w: %s", ErrDownloadFailed, current.Error)
		}
	}
	return ctx.Err()
}

func describe(j *job.Job) string {
	desc := j.Tool
	if desc == "" {
		desc = string(j.Status)
	}
	if j.Speed != nil {
		desc += " " + humanize.Bytes(uint64(*j.Speed)) + "/s"
	}
	if j.TotalBytes != nil {
		desc += " of " + humanize.Bytes(uint64(*j.TotalBytes))
	}
	return desc
}
