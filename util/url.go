package util

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

func FilenameFromURL(url *url.URL) (string, error) {
	if url == nil {
		return "", ErrNoFilename
	}
	p := strings.Trim(url.Path, "/")
	if p == "" {
		return "", ErrNoFilename
	}
	pathElements := strings.Split(p, "/")
	filename := pathElements[len(pathElements)-1]
	if filename == "" {
		return "", ErrNoFilename
	}
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(filename, ".", "") == "" {
		return "", ErrNoFilename
	}
	return filename, nil
}

// ExtensionFromURL returns the lower-cased extension of the URL's filename, without the dot.
func ExtensionFromURL(url *url.URL) string {
	filename, err := FilenameFromURL(url)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
}
