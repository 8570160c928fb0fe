package util

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alanbriolat/ezfetch/generic"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

var allowedSchemes = generic.NewSet("http", "https")

// ValidationError reports user input that was rejected before any work was started.
type ValidationError struct {
	// What was being validated, e.g. "URL"
	Field  string
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Input, e.Reason)
}

// ValidateURL parses s and checks that it is an absolute http(s) URL with a host.
func ValidateURL(s string) (*url.URL, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, &ValidationError{Field: "URL", Input: s, Reason: "empty"}
	}
	parsed, err := url.Parse(s)
	if err != nil {
		return nil, &ValidationError{Field: "URL", Input: s, Reason: err.Error()}
	}
	if !allowedSchemes.Contains(strings.ToLower(parsed.Scheme)) {
		return nil, &ValidationError{Field: "URL", Input: s, Reason: "scheme must be http or https"}
	}
	if parsed.Host == "" {
		return nil, &ValidationError{Field: "URL", Input: s, Reason: "missing host"}
	}
	return parsed, nil
}

func FilenameFromURL(url *url.URL) (string, error) {
	if url == nil {
		return "", ErrNoFilename
	}
	path := strings.Trim(url.Path, "/")
	if path == "" {
		return "", ErrNoFilename
	}
	pathElements := strings.Split(path, "/")
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

func FilenameFromURLString(s string) (string, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return "", err
	} else {
		return FilenameFromURL(parsedURL)
	}
}
