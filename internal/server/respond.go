package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/job"
)

type response map[string]any

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, body response) {
	body["success"] = true
	respondJSON(w, http.StatusOK, body)
}

// respondError reports a failure that prevented the request itself. Failures inside a job never come through here,
// they end up on the job instead.
func respondError(w http.ResponseWriter, err error) {
	body := response{"success": false}
	var status int
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		status = http.StatusNotFound
		body["message"] = "Job not found."
	default:
		kind := failure.KindOf(err)
		status = kind.HTTPStatus()
		body["message"] = failure.MessageOf(err)
		body["error"] = kind
		if kind == failure.AuthRequired {
			body["requireAuth"] = true
		}
	}
	respondJSON(w, status, body)
}

// decode reads a JSON body into v. An empty body leaves v alone.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return &failure.Error{Kind: failure.InvalidInput, Message: "Request body is not valid JSON.", Err: err}
}
