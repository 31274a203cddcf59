package uploader

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"

	"github.com/mycoderisyad/video-downloader-uploader/internal/failure"
	"github.com/mycoderisyad/video-downloader-uploader/internal/session"
	"github.com/mycoderisyad/video-downloader-uploader/internal/youtube"
)

// Tokens expiring sooner than this are refreshed before use.
const refreshWindow = 5 * time.Minute

// OAuthConfig resolves the OAuth client for a session: its own saved credentials if any, else the server's.
func (u *Uploader) OAuthConfig(sessionID string) (*oauth2.Config, error) {
	defaults := u.config.Settings.OAuth
	creds, err := u.config.Sessions.GetCredentials(sessionID)
	switch {
	case err == nil:
		redirect := creds.RedirectURI
		if redirect == "" {
			redirect = defaults.RedirectURI
		}
		return youtube.OAuthConfig(creds.ClientID, creds.ClientSecret, redirect)
	case errors.Is(err, session.ErrNoCredentials):
		return youtube.OAuthConfig(defaults.ClientID, defaults.ClientSecret, defaults.RedirectURI)
	default:
		return nil, err
	}
}

// SaveCredentials stores a session's own OAuth client.
func (u *Uploader) SaveCredentials(sessionID string, creds *session.Credentials) error {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return &failure.Error{Kind: failure.InvalidInput, Message: "Client ID and client secret are required."}
	}
	return u.config.Sessions.PutCredentials(sessionID, creds)
}

// AuthURL starts the OAuth flow for a session.
func (u *Uploader) AuthURL(sessionID string, state string) (string, error) {
	config, err := u.OAuthConfig(sessionID)
	if err != nil {
		return "", err
	}
	return u.config.API.AuthURL(config, state), nil
}

// CompleteAuth exchanges the callback's code and stores the resulting token for the session.
func (u *Uploader) CompleteAuth(ctx context.Context, sessionID string, code string) error {
	config, err := u.OAuthConfig(sessionID)
	if err != nil {
		return err
	}
	token, err := u.config.API.Exchange(ctx, config, code)
	if err != nil {
		return &failure.Error{Kind: failure.AuthRequired, Message: failure.AuthRequired.Message(), Err: err}
	}
	u.log.Infow("session authenticated", "session_id", sessionID, "expiry", token.Expiry)
	return u.config.Sessions.PutToken(sessionID, token)
}

// Disconnect forgets the session's token.
func (u *Uploader) Disconnect(sessionID string) error {
	return u.config.Sessions.DeleteToken(sessionID)
}

// HasToken reports whether the session has authenticated, without checking the token is still good.
func (u *Uploader) HasToken(sessionID string) (bool, error) {
	_, err := u.config.Sessions.GetToken(sessionID)
	if errors.Is(err, session.ErrNoToken) {
		return false, nil
	}
	return err == nil, err
}

func authRequired(err error) error {
	return &failure.Error{Kind: failure.AuthRequired, Message: failure.AuthRequired.Message(), Err: err}
}

// Token gives a usable token for the session, refreshing it first when it is close to expiry or when force is set.
// A failed refresh invalidates the stored token.
func (u *Uploader) Token(ctx context.Context, sessionID string, force bool) (*oauth2.Token, *oauth2.Config, error) {
	token, err := u.config.Sessions.GetToken(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNoToken) {
			return nil, nil, authRequired(err)
		}
		return nil, nil, err
	}
	config, err := u.OAuthConfig(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !force && (token.Expiry.IsZero() || u.now().Add(refreshWindow).Before(token.Expiry)) {
		return token, config, nil
	}

	log := u.log.With("session_id", sessionID)
	fresh, err := u.config.API.Refresh(ctx, config, token)
	if err != nil {
		log.Warnw("token refresh failed, discarding token", "error", err)
		if err := u.config.Sessions.DeleteToken(sessionID); err != nil {
			log.Warnw("failed to discard token", "error", err)
		}
		return nil, nil, authRequired(err)
	}
	if err := u.config.Sessions.PutToken(sessionID, fresh); err != nil {
		return nil, nil, err
	}
	log.Infow("token refreshed", "expiry", fresh.Expiry)
	return fresh, config, nil
}

// Channel describes the account a session is connected to.
func (u *Uploader) Channel(ctx context.Context, sessionID string) (*youtube.Channel, error) {
	token, config, err := u.Token(ctx, sessionID, false)
	if err != nil {
		return nil, err
	}
	ch, err := u.config.API.Channel(ctx, config, token)
	if err != nil {
		return nil, u.classify(sessionID, err)
	}
	return ch, nil
}
