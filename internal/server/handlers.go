package server

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mycoderisyad/video-downloader-uploader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/downloader"
	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/uploader"
	"github.com/mycoderisyad/video-downloader-uploader/provider/youtube"
)

type downloadRequest struct {
	URL              string `json:"url"`
	Title            string `json:"title"`
	Quality          string `json:"quality"`
	DownloadMode     string `json:"downloadMode"`
	DownloaderChoice string `json:"downloaderChoice"`
	BatchID          string `json:"batchId"`
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	j, err := s.config.Downloader.Submit(downloader.Request{
		URL:       req.URL,
		Title:     req.Title,
		Quality:   req.Quality,
		Mode:      req.DownloadMode,
		Choice:    req.DownloaderChoice,
		BatchID:   req.BatchID,
		SessionID: session.ID(r.Context()),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"jobId": j.ID, "status": j.Status, "platform": j.Platform, "message": "Download started"})
}

func jobStatus(j job.Job) response {
	body := response{
		"id":        j.ID,
		"status":    j.Status,
		"progress":  j.Progress,
		"title":     j.Title,
		"platform":  j.Platform,
		"createdAt": j.CreatedAt,
	}
	if j.Error != "" {
		body["error"] = j.Error
		body["errorKind"] = j.ErrorKind
	}
	if j.Speed != nil {
		body["speed"] = *j.Speed
	}
	if j.ETA != nil {
		body["eta"] = *j.ETA
	}
	if j.TotalBytes != nil {
		body["fileSize"] = *j.TotalBytes
	}
	if j.Tool != "" {
		body["tool"] = j.Tool
	}
	return body
}

func (s *Server) handleDownloadStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.config.Store.Get(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, err)
		return
	}
	body := jobStatus(j)
	body["mode"] = j.Mode
	body["readyForClient"] = j.ReadyForClient
	if j.Status == job.StatusCompleted {
		body["fileName"] = filepath.Base(j.OutputPath)
	}
	respondOK(w, body)
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	j, err := s.config.Store.Get(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, err)
		return
	}
	if j.Status != job.StatusCompleted || j.OutputPath == "" {
		respondError(w, &failure.Error{Kind: failure.InvalidInput, Message: "Download is not finished yet."})
		return
	}
	f, err := os.Open(j.OutputPath)
	if err != nil {
		respondError(w, &failure.Error{Kind: failure.NotFound, Message: "The downloaded file no longer exists.", Err: err})
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		respondError(w, failure.New(failure.GenericFailure, err))
		return
	}
	name := filepath.Base(j.OutputPath)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobId")
	if _, err := s.config.Downloader.Delete(id); err != nil && !errors.Is(err, job.ErrJobNotFound) {
		respondError(w, err)
		return
	}
	respondOK(w, response{"message": "Files cleaned up successfully"})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	count, err := s.config.Downloader.ClearAll()
	if err != nil {
		s.log.Warnw("clear-all left some files behind", "error", err)
	}
	respondOK(w, response{"cleared": count, "message": "All jobs and files cleared"})
}

const previewTimeout = 15 * time.Second

type previewRequest struct {
	URL string `json:"url"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	match, err := s.config.Registry.Match(req.URL)
	if err != nil {
		respondError(w, &failure.Error{Kind: failure.InvalidInput, Message: failure.InvalidInput.Message(), Err: err})
		return
	}
	body := response{
		"platform": match.Source.Platform,
		"route":    match.Source.Route,
	}
	ctx, cancel := context.WithTimeout(r.Context(), previewTimeout)
	defer cancel()
	preview, err := s.config.Registry.Preview(ctx, match)
	switch {
	case err == nil:
		body["title"] = preview.Title
		body["author"] = preview.Author
		body["duration"] = int64(preview.Duration.Seconds())
		body["thumbnail"] = preview.Thumbnail
	case errors.Is(err, video_downloader.ErrNoPreview):
	default:
		s.log.Infow("preview failed", "url", req.URL, "error", err)
	}
	respondOK(w, body)
}

type uploadRequest struct {
	DownloadJobID string   `json:"downloadJobId"`
	JobID         string   `json:"jobId"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	Privacy       string   `json:"privacy"`
	Category      string   `json:"category"`
}

func (s *Server) handleUploadYouTube(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	downloadJobID := req.DownloadJobID
	if downloadJobID == "" {
		downloadJobID = req.JobID
	}
	if downloadJobID == "" {
		respondError(w, &failure.Error{Kind: failure.InvalidInput, Message: "Download job ID is required."})
		return
	}
	j, err := s.config.Uploader.Upload(uploader.Request{
		DownloadJobID: downloadJobID,
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		Privacy:       req.Privacy,
		Category:      req.Category,
		SessionID:     session.ID(r.Context()),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"uploadJobId": j.ID, "status": j.Status, "message": "YouTube upload started"})
}

type uploadViaLinkRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Quality     string   `json:"quality"`
	Tags        []string `json:"tags"`
	Privacy     string   `json:"privacy"`
	Category    string   `json:"category"`
}

func (s *Server) handleUploadViaLink(w http.ResponseWriter, r *http.Request) {
	var req uploadViaLinkRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	j, err := s.config.Uploader.UploadViaLink(uploader.LinkRequest{
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		Quality:     req.Quality,
		Tags:        req.Tags,
		Privacy:     req.Privacy,
		Category:    req.Category,
		SessionID:   session.ID(r.Context()),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"jobId": j.ID, "status": j.Status, "message": "Download and upload started"})
}

func (s *Server) handleUploadStatus(w http.ResponseWriter, r *http.Request) {
	j, err := s.config.Store.Get(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, err)
		return
	}
	body := jobStatus(j)
	if j.VideoID != "" {
		body["videoId"] = j.VideoID
		body["videoUrl"] = youtube.WatchURL(j.VideoID)
	}
	if j.DownloadJobID != "" {
		body["downloadJobId"] = j.DownloadJobID
	}
	respondOK(w, body)
}
