// Package session identifies API clients with a signed cookie, and stores their YouTube OAuth state.
package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CookieName = "vdu_session"
	cookieAge  = 30 * 24 * time.Hour
)

var ErrBadSignature = errors.New("bad signature")

type contextKey struct{}

// WithID attaches a session ID to a request context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID returns the session ID from a context, or "" outside a session.
func ID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

type Manager struct {
	secret []byte
	// Secure cookies are only sent over HTTPS.
	Secure bool
	log    *zap.SugaredLogger
}

// NewManager signs with secret, or with a random key if it is empty, in which case sessions do not survive a restart.
func NewManager(secret string) *Manager {
	m := &Manager{secret: []byte(secret), log: zap.S().Named("session")}
	if len(m.secret) == 0 {
		m.secret = make([]byte, 32)
		if _, err := rand.Read(m.secret); err != nil {
			panic(err)
		}
		m.log.Warn("no session secret configured, sessions will not survive a restart")
	}
	return m
}

func (m *Manager) mac(value string) string {
	h := hmac.New(sha256.New, m.secret)
	h.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// Sign appends a MAC to value.
func (m *Manager) Sign(value string) string {
	return value + "." + m.mac(value)
}

// Verify checks a value produced by Sign and returns the original value.
func (m *Manager) Verify(signed string) (string, error) {
	i := strings.LastIndexByte(signed, '.')
	if i < 0 {
		return "", ErrBadSignature
	}
	value, sig := signed[:i], signed[i+1:]
	if !hmac.Equal([]byte(sig), []byte(m.mac(value))) {
		return "", ErrBadSignature
	}
	return value, nil
}

// Get returns the request's session ID, starting a new session (and setting its cookie) when the request has no
// valid one.
func (m *Manager) Get(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if id, err := m.Verify(c.Value); err == nil {
			return id
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    m.Sign(id),
		Path:     "/",
		MaxAge:   int(cookieAge.Seconds()),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	m.log.Debugw("new session", "session_id", id)
	return id
}

// Middleware puts the session ID of every request into its context.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := m.Get(w, r)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// NewState makes an OAuth state parameter bound to a session.
func (m *Manager) NewState(sessionID string) string {
	return m.Sign(sessionID + ":" + uuid.NewString())
}

// ParseState returns the session an OAuth state parameter was made for.
func (m *Manager) ParseState(state string) (string, error) {
	value, err := m.Verify(state)
	if err != nil {
		return "", err
	}
	sessionID, _, ok := strings.Cut(value, ":")
	if !ok || sessionID == "" {
		return "", ErrBadSignature
	}
	return sessionID, nil
}
