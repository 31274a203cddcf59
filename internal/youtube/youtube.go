// Package youtube talks to Google: the OAuth2 flow, and the YouTube Data API for uploads and channel info.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

const (
	DefaultCategory = "22"
	DefaultPrivacy  = "private"
	maxTitleLength  = 100
)

var Scopes = []string{ytapi.YoutubeUploadScope, ytapi.YoutubeScope}

var (
	ErrNoClientCredentials = errors.New("YouTube client ID and secret are not configured")
	ErrNoVideoID           = errors.New("upload completed but no video ID was returned")
)

// OAuthConfig builds the OAuth2 client configuration for an app registration.
func OAuthConfig(clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrNoClientCredentials
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}, nil
}

type Video struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	Privacy     string
}

type Channel struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// API is everything the service needs from Google.
type API interface {
	AuthURL(config *oauth2.Config, state string) string
	Exchange(ctx context.Context, config *oauth2.Config, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*oauth2.Token, error)
	Upload(ctx context.Context, config *oauth2.Config, token *oauth2.Token, path string, video Video, progress func(sent, total int64)) (string, error)
	Channel(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*Channel, error)
}

type Client struct {
	// HTTPClient is used for token endpoint calls, if set.
	HTTPClient *http.Client
	log        *zap.SugaredLogger
}

func New() *Client {
	return &Client{log: zap.S().Named("youtube")}
}

func (c *Client) context(ctx context.Context) context.Context {
	if c.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient)
	}
	return ctx
}

// AuthURL asks for offline access, so that the exchange yields a refresh token.
func (c *Client) AuthURL(config *oauth2.Config, state string) string {
	return config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (c *Client) Exchange(ctx context.Context, config *oauth2.Config, code string) (*oauth2.Token, error) {
	return config.Exchange(c.context(ctx), code)
}

// Refresh always goes to the token endpoint, even when token has not expired. The refresh token is carried over when
// Google does not issue a new one.
func (c *Client) Refresh(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*oauth2.Token, error) {
	if token.RefreshToken == "" {
		return nil, errors.New("token has no refresh token")
	}
	stale := &oauth2.Token{RefreshToken: token.RefreshToken}
	fresh, err := config.TokenSource(c.context(ctx), stale).Token()
	if err != nil {
		return nil, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}
	return fresh, nil
}

func (c *Client) service(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*ytapi.Service, error) {
	return ytapi.NewService(ctx, option.WithTokenSource(config.TokenSource(c.context(ctx), token)))
}

// Upload sends the file at path as a new video and returns its ID.
func (c *Client) Upload(ctx context.Context, config *oauth2.Config, token *oauth2.Token, path string, video Video, progress func(sent, total int64)) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	svc, err := c.service(ctx, config, token)
	if err != nil {
		return "", err
	}

	total := info.Size()
	call := svc.Videos.Insert([]string{"snippet", "status"}, NewVideo(video)).
		Media(f).
		Context(ctx)
	if progress != nil {
		call = call.ProgressUpdater(func(current, _ int64) {
			progress(current, total)
		})
	}
	c.log.Infow("uploading video", "path", path, "size", total, "title", video.Title, "privacy", video.Privacy)
	result, err := call.Do()
	if err != nil {
		return "", err
	}
	if result.Id == "" {
		return "", ErrNoVideoID
	}
	return result.Id, nil
}

// NewVideo fills in the API resource for an upload, applying defaults.
func NewVideo(video Video) *ytapi.Video {
	if video.CategoryID == "" {
		video.CategoryID = DefaultCategory
	}
	if video.Privacy == "" {
		video.Privacy = DefaultPrivacy
	}
	return &ytapi.Video{
		Snippet: &ytapi.VideoSnippet{
			Title:       truncate(video.Title, maxTitleLength),
			Description: video.Description,
			Tags:        video.Tags,
			CategoryId:  video.CategoryID,
		},
		Status: &ytapi.VideoStatus{
			PrivacyStatus:           video.Privacy,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
}

func (c *Client) Channel(ctx context.Context, config *oauth2.Config, token *oauth2.Token) (*Channel, error) {
	svc, err := c.service(ctx, config, token)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("account has no YouTube channel")
	}
	item := resp.Items[0]
	ch := &Channel{ID: item.Id}
	if item.Snippet != nil {
		ch.Title = item.Snippet.Title
		if t := item.Snippet.Thumbnails; t != nil && t.Default != nil {
			ch.Thumbnail = t.Default.Url
		}
	}
	return ch, nil
}

// APIError describes a failed API call by its status code and reasons, or returns nil if err did not come from the API.
func APIError(err error) *googleapi.Error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return nil
}

// IsQuotaError reports whether a 403 was about quota rather than permissions.
func IsQuotaError(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		switch item.Reason {
		case "quotaExceeded", "dailyLimitExceeded", "rateLimitExceeded", "uploadLimitExceeded":
			return true
		}
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "quota")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
