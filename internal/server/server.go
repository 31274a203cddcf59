// Package server is the JSON HTTP API in front of the download and upload orchestrators.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/downloader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/sync_"
	"github.com/mycoderisyad/video-downloader-uploader/internal/uploader"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Settings   *video_downloader.Config
	Store      job.Store
	Downloader *downloader.Downloader
	Uploader   *uploader.Uploader
	Sessions   *session.Manager
	Registry   *video_downloader.ProviderRegistry
}

type Server struct {
	config Config
	router chi.Router
	log    *zap.SugaredLogger
}

func New(config Config) *Server {
	if config.Registry == nil {
		config.Registry = &video_downloader.DefaultProviderRegistry
	}
	s := &Server{config: config, log: zap.S().Named("server")}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	if s.config.Settings.RateLimit > 0 {
		r.Use(newRateLimiter(rate.Limit(s.config.Settings.RateLimit), s.config.Settings.RateBurst).Middleware)
	}
	r.Use(s.config.Sessions.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/download", s.handleDownload)
		r.Get("/download-status/{jobId}", s.handleDownloadStatus)
		r.Get("/download-file/{jobId}", s.handleDownloadFile)
		r.Delete("/cleanup/{jobId}", s.handleCleanup)
		r.Delete("/clear-all", s.handleClearAll)
		r.Post("/preview", s.handlePreview)

		r.Post("/upload-youtube", s.handleUploadYouTube)
		r.Post("/upload-via-link", s.handleUploadViaLink)
		r.Get("/upload-status/{jobId}", s.handleUploadStatus)

		r.Get("/auth/youtube", s.handleAuthStart)
		r.Post("/auth/youtube", s.handleAuthStart)
		r.Get("/auth/youtube/callback", s.handleAuthCallback)
		r.Get("/auth/status", s.handleAuthStatus)
		r.Post("/auth/status", s.handleAuthStatus)
		r.Post("/auth/disconnect", s.handleAuthDisconnect)
		r.Post("/auth/refresh", s.handleAuthRefresh)
		r.Post("/save-credentials", s.handleSaveCredentials)
	})
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Settings.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errs := make(chan error, 1)
	go func() {
		s.log.Infow("listening", "addr", srv.Addr)
		errs <- srv.ListenAndServe()
	}()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debugw("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"remote", r.RemoteAddr,
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// Above this many tracked clients the limiter map is reset rather than grown.
const maxLimiterClients = 10000

type rateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *sync_.Map[string, *rate.Limiter]
}

func newRateLimiter(limit rate.Limit, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{limit: limit, burst: burst, clients: sync_.NewMap[string, *rate.Limiter]()}
}

func (l *rateLimiter) get(client string) *rate.Limiter {
	return l.clients.LoadOrCreate(client, maxLimiterClients, func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
}

func (l *rateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := r.RemoteAddr
		if host, _, err := net.SplitHostPort(client); err == nil {
			client = host
		}
		if !l.get(client).Allow() {
			respondJSON(w, http.StatusTooManyRequests, response{"success": false, "message": "Too many requests, slow down."})
			return
		}
		next.ServeHTTP(w, r)
	})
}
