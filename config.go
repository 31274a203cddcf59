package video_downloader

import (
	"strings"
	"text/template"
	"time"

	"github.com/mycoderisyad/video-downloader-uploader/util"
)

const (
	DefaultRetention       = 24 * time.Hour
	DefaultSweepInterval   = time.Hour
	DefaultNoOutputTimeout = 5 * time.Minute
	DefaultListenAddr      = ":3031"
	DefaultTargetTemplate  = "{{.Title}}_{{.JobID}}"
)

// OAuthConfig is the YouTube OAuth2 client used when a session has not saved its own credentials.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Config carries every runtime setting of the service.
type Config struct {
	DownloadDir     string
	TempDir         string
	Retention       time.Duration
	SweepInterval   time.Duration
	NoOutputTimeout time.Duration
	// ToolPaths overrides the executable used for a tool ID, e.g. "yt-dlp" -> "/opt/bin/yt-dlp".
	ToolPaths      map[string]string
	TargetTemplate *template.Template

	ListenAddr    string
	OAuth         OAuthConfig
	SessionSecret string
	// TokenStore is one of "bolt", "sqlite" or "memory".
	TokenStore     string
	TokenStorePath string
	RateLimit      float64
	RateBurst      int
}

func DefaultConfig() Config {
	return Config{
		DownloadDir:     "downloads",
		TempDir:         "",
		Retention:       DefaultRetention,
		SweepInterval:   DefaultSweepInterval,
		NoOutputTimeout: DefaultNoOutputTimeout,
		ToolPaths:       map[string]string{},
		TargetTemplate:  template.Must(template.New("target_file").Parse(DefaultTargetTemplate)),
		ListenAddr:      DefaultListenAddr,
		TokenStore:      "bolt",
		TokenStorePath:  "tokens.db",
		RateLimit:       5,
		RateBurst:       20,
	}
}

// ToolPath gives the executable for a tool ID, defaulting to the ID itself (looked up on $PATH).
func (c *Config) ToolPath(id string) string {
	if p, ok := c.ToolPaths[id]; ok && p != "" {
		return p
	}
	return id
}

type targetFileTemplateArgs struct {
	Title string
	JobID string
}

// TargetBase renders the target filename, without extension, for a job. The title is sanitized before rendering and
// the job ID keeps names unique between concurrent jobs.
func (c *Config) TargetBase(title string, jobID string) (string, error) {
	tmpl := c.TargetTemplate
	if tmpl == nil {
		tmpl = template.Must(template.New("target_file").Parse(DefaultTargetTemplate))
	}
	args := targetFileTemplateArgs{
		Title: util.SanitizeFilename(title),
		JobID: jobID,
	}
	builder := strings.Builder{}
	if err := tmpl.Execute(&builder, &args); err != nil {
		return "", err
	}
	return util.SanitizeFilename(builder.String()), nil
}
