// Package download manages the scratch directories a download is written into.
package download

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

type downloadConfig struct {
	baseTargetDir string
	baseTempDir   string
	pattern       string
}

type DownloadConfigOption func(*downloadConfig)

// WithTargetDir makes sure dir exists before the download starts.
func WithTargetDir(dir string) DownloadConfigOption {
	return func(c *downloadConfig) {
		c.baseTargetDir = dir
	}
}

// WithTempDir sets where the temporary directory is created. An empty dir keeps the system default.
func WithTempDir(dir string) DownloadConfigOption {
	return func(c *downloadConfig) {
		if dir != "" {
			c.baseTempDir = dir
		}
	}
}

// WithPattern names the temporary directory, as for os.MkdirTemp.
func WithPattern(pattern string) DownloadConfigOption {
	return func(c *downloadConfig) {
		c.pattern = pattern
	}
}

type DownloadState struct {
	config  downloadConfig
	tempDir string
}

func newDownloadState(config downloadConfig) (*DownloadState, error) {
	if len(config.baseTargetDir) > 0 {
		if err := os.MkdirAll(config.baseTargetDir, 0755); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(config.baseTempDir, 0755); err != nil {
		return nil, err
	}
	tempDir, err := os.MkdirTemp(config.baseTempDir, config.pattern)
	if err != nil {
		return nil, err
	}
	return &DownloadState{config: config, tempDir: tempDir}, nil
}

func (s *DownloadState) close() {
	if err := os.RemoveAll(s.tempDir); err != nil {
		zap.S().Named("download").Warnw("failed to clean up temporary directory", "dir", s.tempDir, "error", err)
	}
}

// TempDir is removed, with everything in it, when the download state is closed.
func (s *DownloadState) TempDir() string {
	return s.tempDir
}

// TargetDir is where finished files belong, or "" if no target was configured.
func (s *DownloadState) TargetDir() string {
	return s.config.baseTargetDir
}

func (s *DownloadState) CreateTemp(pattern string) (*os.File, error) {
	return os.CreateTemp(s.tempDir, pattern)
}

// Keep moves a file out of the temporary directory into the target directory, returning its new path.
func (s *DownloadState) Keep(path string) (string, error) {
	target := filepath.Join(s.config.baseTargetDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

// WithDownloadState runs f with a fresh temporary directory, which is removed when f returns.
func WithDownloadState(f func(state *DownloadState) error, opts ...DownloadConfigOption) error {
	config := downloadConfig{
		baseTargetDir: "",
		baseTempDir:   os.TempDir(),
		pattern:       "video-downloader-*",
	}
	for _, opt := range opts {
		opt(&config)
	}
	if state, err := newDownloadState(config); err != nil {
		return err
	} else {
		defer state.close()
		return f(state)
	}
}
