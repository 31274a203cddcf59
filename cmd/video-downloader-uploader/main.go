package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/template"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-colorable"
	"github.com/r3labs/diff/v3"
	"github.com/urfave/cli/v2"
	"github.com/xhit/go-str2duration/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/async"
	"github.com/mycoderisyad/video-downloader-uploader/database"
	"github.com/mycoderisyad/video-downloader-uploader/internal/boltdb"
	"github.com/mycoderisyad/video-downloader-uploader/internal/downloader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/runner"
	"github.com/mycoderisyad/video-downloader-uploader/internal/server"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/tool"
	"github.com/mycoderisyad/video-downloader-uploader/internal/uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/youtube"
	_ "github.com/mycoderisyad/video-downloader-uploader/providers"
)

func main() {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults := video_downloader.DefaultConfig()
	app := &cli.App{
		Name:  "video-downloader-uploader",
		Usage: "download videos with external tools and publish them to YouTube",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "development logging", EnvVars: []string{"DEBUG"}},
			&cli.StringFlag{Name: "listen", Value: defaults.ListenAddr, Usage: "serve the API on `ADDR`", EnvVars: []string{"LISTEN_ADDR"}},
			&cli.StringFlag{Name: "download-dir", Value: defaults.DownloadDir, Usage: "save downloads to `DIR`", EnvVars: []string{"DOWNLOAD_DIR"}},
			&cli.StringFlag{Name: "temp-dir", Usage: "scratch space for direct uploads (default: system temp)", EnvVars: []string{"TEMP_DIR"}},
			&cli.StringFlag{Name: "retention", Value: "24h", Usage: "remove jobs and files older than `DURATION` (e.g. 24h, 7d)", EnvVars: []string{"RETENTION"}},
			&cli.StringFlag{Name: "sweep-interval", Value: "1h", Usage: "look for expired jobs every `DURATION`", EnvVars: []string{"SWEEP_INTERVAL"}},
			&cli.StringFlag{Name: "no-output-timeout", Value: "5m", Usage: "kill a tool that prints nothing for `DURATION`", EnvVars: []string{"NO_OUTPUT_TIMEOUT"}},
			&cli.StringSliceFlag{Name: "tool-path", Usage: "use `TOOL=PATH` as the executable for a tool", EnvVars: []string{"TOOL_PATHS"}},
			&cli.StringFlag{Name: "target-template", Value: video_downloader.DefaultTargetTemplate, Usage: "output filename `TEMPLATE`, without extension", EnvVars: []string{"TARGET_TEMPLATE"}},
			&cli.StringFlag{Name: "youtube-client-id", EnvVars: []string{"YOUTUBE_CLIENT_ID"}},
			&cli.StringFlag{Name: "youtube-client-secret", EnvVars: []string{"YOUTUBE_CLIENT_SECRET"}},
			&cli.StringFlag{Name: "youtube-redirect-uri", Value: "http://localhost:3031/api/auth/youtube/callback", EnvVars: []string{"YOUTUBE_REDIRECT_URI"}},
			&cli.StringFlag{Name: "session-secret", Usage: "key for signing session cookies", EnvVars: []string{"SESSION_SECRET"}},
			&cli.BoolFlag{Name: "secure-cookies", Usage: "only send session cookies over HTTPS", EnvVars: []string{"SECURE_COOKIES"}},
			&cli.StringFlag{Name: "token-store", Value: defaults.TokenStore, Usage: "keep OAuth tokens in `STORE`: bolt, sqlite or memory", EnvVars: []string{"TOKEN_STORE"}},
			&cli.StringFlag{Name: "token-store-path", Value: defaults.TokenStorePath, Usage: "token database `FILE`", EnvVars: []string{"TOKEN_STORE_PATH"}},
			&cli.Float64Flag{Name: "rate-limit", Value: defaults.RateLimit, Usage: "requests per second per client, 0 to disable", EnvVars: []string{"RATE_LIMIT"}},
			&cli.IntFlag{Name: "rate-burst", Value: defaults.RateBurst, EnvVars: []string{"RATE_BURST"}},
		},
		Before: func(c *cli.Context) error {
			return setupLogging(c.Bool("debug"))
		},
		Action: func(c *cli.Context) error {
			settings, err := configFromFlags(c)
			if err != nil {
				return err
			}
			return serve(ctx, settings, c.Bool("secure-cookies"))
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.Run(os.Args) })

	select {
	case err := <-result:
		if err != nil {
			log.Fatal(err)
		}
	case <-ctx.Done():
		stop()
		if err := <-result; err != nil {
			log.Fatal(err)
		}
	}
}

func setupLogging(debug bool) error {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// Colour codes need translating on Windows consoles
	sink := zapcore.AddSync(colorable.NewColorableStderr())
	logger, err := config.Build(zap.WrapCore(func(zapcore.Core) zapcore.Core {
		return zapcore.NewCore(zapcore.NewConsoleEncoder(config.EncoderConfig), sink, config.Level)
	}))
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	zap.RedirectStdLog(logger)
	return nil
}

func parseDuration(c *cli.Context, name string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(c.String(name))
	if err != nil {
		return 0, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

func configFromFlags(c *cli.Context) (*video_downloader.Config, error) {
	settings := video_downloader.DefaultConfig()
	var err error
	if settings.Retention, err = parseDuration(c, "retention"); err != nil {
		return nil, err
	}
	if settings.SweepInterval, err = parseDuration(c, "sweep-interval"); err != nil {
		return nil, err
	}
	if settings.NoOutputTimeout, err = parseDuration(c, "no-output-timeout"); err != nil {
		return nil, err
	}
	for _, entry := range c.StringSlice("tool-path") {
		id, path, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("--tool-path: expected TOOL=PATH, got %q", entry)
		}
		settings.ToolPaths[id] = path
	}
	if settings.TargetTemplate, err = template.New("target_file").Parse(c.String("target-template")); err != nil {
		return nil, fmt.Errorf("--target-template: %w", err)
	}
	settings.DownloadDir = c.String("download-dir")
	settings.TempDir = c.String("temp-dir")
	settings.ListenAddr = c.String("listen")
	settings.OAuth = video_downloader.OAuthConfig{
		ClientID:     c.String("youtube-client-id"),
		ClientSecret: c.String("youtube-client-secret"),
		RedirectURI:  c.String("youtube-redirect-uri"),
	}
	settings.SessionSecret = c.String("session-secret")
	settings.TokenStore = c.String("token-store")
	settings.TokenStorePath = c.String("token-store-path")
	settings.RateLimit = c.Float64("rate-limit")
	settings.RateBurst = c.Int("rate-burst")
	return &settings, nil
}

func openTokenStore(settings *video_downloader.Config) (session.Database, error) {
	switch settings.TokenStore {
	case "bolt":
		return boltdb.New(settings.TokenStorePath)
	case "sqlite":
		return database.Open(settings.TokenStorePath)
	case "memory":
		return session.NewMemoryDatabase(), nil
	}
	return nil, fmt.Errorf("unknown token store %q, expected bolt, sqlite or memory", settings.TokenStore)
}

func serve(ctx context.Context, settings *video_downloader.Config, secureCookies bool) error {
	logger := zap.S()
	if err := os.MkdirAll(settings.DownloadDir, 0755); err != nil {
		return err
	}
	tokens, err := openTokenStore(settings)
	if err != nil {
		return fmt.Errorf("failed to open token store: %w", err)
	}
	defer tokens.Close()

	store := job.NewMemoryStore()
	defer store.Close()
	go logJobEvents(store)

	dl := downloader.New(downloader.Config{
		Settings: settings,
		Store:    store,
		Runner: runner.New(runner.Config{
			NoOutputTimeout: settings.NoOutputTimeout,
			ToolPath:        func(id tool.ID) string { return settings.ToolPath(string(id)) },
		}),
	}, ctx)
	defer dl.Close()
	// Expired jobs that are still running have their tool killed before their files are removed
	go job.RunJanitor(ctx, store, func(j job.Job) { dl.Stop(j.ID) }, settings.SweepInterval, settings.Retention)

	up := uploader.New(uploader.Config{
		Settings:   settings,
		Store:      store,
		Sessions:   tokens,
		API:        youtube.New(),
		Downloader: dl,
	})
	sessions := session.NewManager(settings.SessionSecret)
	sessions.Secure = secureCookies

	logger.Infow("starting",
		"download_dir", settings.DownloadDir,
		"retention", settings.Retention,
		"token_store", settings.TokenStore,
	)
	return server.New(server.Config{
		Settings:   settings,
		Store:      store,
		Downloader: dl,
		Uploader:   up,
		Sessions:   sessions,
	}).ListenAndServe(ctx)
}

// logJobEvents logs every job change, field by field at debug level.
func logJobEvents(store job.Store) {
	logger := zap.S().Named("jobs")
	events, err := store.Subscribe()
	if err != nil {
		logger.Errorf("failed to subscribe to job events: %v", err)
		return
	}
	for event := range events.Receive() {
		switch event.Type {
		case job.EventAdded:
			logger.Infow("job added", "job_id", event.JobID(), "kind", event.New.Kind, "url", event.New.SourceURL)
		case job.EventRemoved:
			logger.Infow("job removed", "job_id", event.JobID())
		case job.EventUpdated:
			changes, err := diff.Diff(event.Old, event.New)
			if err != nil {
				logger.Errorf("failed to diff old and new job state: %v", err)
				continue
			}
			for _, change := range changes {
				logger.Debugf("%s: %v: %#v -> %#v", event.JobID(), change.Path, change.From, change.To)
			}
			if event.Old.Status != event.New.Status {
				logger.Infow("job status changed", "job_id", event.JobID(), "from", event.Old.Status, "to", event.New.Status)
			}
		}
	}
}
