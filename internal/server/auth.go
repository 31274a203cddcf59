package server

import (
	"errors"
	"net/http"

	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/youtube"
)

type credentialsRequest struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
}

func (c credentialsRequest) empty() bool {
	return c.ClientID == "" && c.ClientSecret == "" && c.RedirectURI == ""
}

func (c credentialsRequest) credentials() *session.Credentials {
	return &session.Credentials{ClientID: c.ClientID, ClientSecret: c.ClientSecret, RedirectURI: c.RedirectURI}
}

// handleAuthStart returns the Google consent URL. Credentials posted along with it are saved for the session first.
func (s *Server) handleAuthStart(w http.ResponseWriter, r *http.Request) {
	sessionID := session.ID(r.Context())
	if r.Method == http.MethodPost {
		var req credentialsRequest
		if err := decode(r, &req); err != nil {
			respondError(w, err)
			return
		}
		if !req.empty() {
			if err := s.config.Uploader.SaveCredentials(sessionID, req.credentials()); err != nil {
				respondError(w, err)
				return
			}
		}
	}
	authURL, err := s.config.Uploader.AuthURL(sessionID, s.config.Sessions.NewState(sessionID))
	if errors.Is(err, youtube.ErrNoClientCredentials) {
		respondJSON(w, http.StatusInternalServerError, response{
			"success": false,
			"message": "YouTube credentials are not configured. Save your own client credentials or set them on the server.",
		})
		return
	} else if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"authUrl": authURL, "message": "Redirect user to this URL for YouTube authentication"})
}

// handleAuthCallback finishes the flow for whichever session the state was issued to, so it works even if the
// browser comes back without the cookie.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		s.log.Infow("authentication refused", "error", e)
		http.Redirect(w, r, "/?auth=error", http.StatusFound)
		return
	}
	code := q.Get("code")
	sessionID, err := s.config.Sessions.ParseState(q.Get("state"))
	if code == "" || err != nil {
		respondError(w, &failure.Error{Kind: failure.InvalidInput, Message: "Invalid authentication callback.", Err: err})
		return
	}
	if err := s.config.Uploader.CompleteAuth(r.Context(), sessionID, code); err != nil {
		s.log.Warnw("authentication failed", "session_id", sessionID, "error", err)
		http.Redirect(w, r, "/?auth=error", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/?auth=success", http.StatusFound)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := session.ID(r.Context())
	ok, err := s.config.Uploader.HasToken(sessionID)
	if err != nil {
		respondError(w, err)
		return
	}
	if !ok {
		respondOK(w, response{"authenticated": false})
		return
	}
	body := response{"authenticated": true}
	ch, err := s.config.Uploader.Channel(r.Context(), sessionID)
	switch {
	case err == nil:
		body["userInfo"] = ch
	case failure.KindOf(err) == failure.AuthRequired:
		body["authenticated"] = false
	default:
		s.log.Infow("could not fetch channel info", "session_id", sessionID, "error", err)
	}
	respondOK(w, body)
}

func (s *Server) handleAuthDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.config.Uploader.Disconnect(session.ID(r.Context())); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"message": "Disconnected from YouTube"})
}

func (s *Server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token, _, err := s.config.Uploader.Token(r.Context(), session.ID(r.Context()), true)
	if err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"expiry": token.Expiry, "message": "Token refreshed"})
}

func (s *Server) handleSaveCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.config.Uploader.SaveCredentials(session.ID(r.Context()), req.credentials()); err != nil {
		respondError(w, err)
		return
	}
	respondOK(w, response{"message": "Credentials saved"})
}
