package session

import (
	"errors"

	"golang.org/x/oauth2"

	"github.com/mycoderisyad/video-downloader-uploader/internal/sync_"
)

var (
	ErrNoToken       = errors.New("no token for session")
	ErrNoCredentials = errors.New("no credentials for session")
)

// Credentials are OAuth client credentials a session supplied itself, overriding the server's.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

// Database persists per-session OAuth state. Get methods return ErrNoToken/ErrNoCredentials when nothing is stored.
type Database interface {
	GetToken(sessionID string) (*oauth2.Token, error)
	PutToken(sessionID string, token *oauth2.Token) error
	DeleteToken(sessionID string) error
	GetCredentials(sessionID string) (*Credentials, error)
	PutCredentials(sessionID string, creds *Credentials) error
	Close() error
}

type memoryState struct {
	tokens      map[string]oauth2.Token
	credentials map[string]Credentials
}

type MemoryDatabase struct {
	state *sync_.RWMutexed[memoryState]
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		state: sync_.NewRWMutexed(memoryState{
			tokens:      make(map[string]oauth2.Token),
			credentials: make(map[string]Credentials),
		}),
	}
}

func (d *MemoryDatabase) GetToken(sessionID string) (token *oauth2.Token, err error) {
	err = d.state.RLocked(func(s *memoryState) error {
		t, ok := s.tokens[sessionID]
		if !ok {
			return ErrNoToken
		}
		token = &t
		return nil
	})
	return token, err
}

func (d *MemoryDatabase) PutToken(sessionID string, token *oauth2.Token) error {
	return d.state.Locked(func(s *memoryState) error {
		s.tokens[sessionID] = *token
		return nil
	})
}

func (d *MemoryDatabase) DeleteToken(sessionID string) error {
	return d.state.Locked(func(s *memoryState) error {
		delete(s.tokens, sessionID)
		return nil
	})
}

func (d *MemoryDatabase) GetCredentials(sessionID string) (creds *Credentials, err error) {
	err = d.state.RLocked(func(s *memoryState) error {
		c, ok := s.credentials[sessionID]
		if !ok {
			return ErrNoCredentials
		}
		creds = &c
		return nil
	})
	return creds, err
}

func (d *MemoryDatabase) PutCredentials(sessionID string, creds *Credentials) error {
	return d.state.Locked(func(s *memoryState) error {
		s.credentials[sessionID] = *creds
		return nil
	})
}

func (d *MemoryDatabase) Close() error {
	return nil
}
