// Package metadata resolves what a URL points at, using the downloader's metadata-only mode.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitly/go-simplejson"
	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch/internal/process"
	"github.com/alanbriolat/ezfetch/internal/tools"
)

var (
	ErrNoDocument = errors.New("downloader returned no metadata")
)

type Info struct {
	ID         string
	Title      string
	RawTitle   string
	Uploader   string
	Thumbnail  string
	Extension  string
	WebpageURL string
	Duration   time.Duration
}

// Parse reads a metadata document. Only fields the rest of the program needs are extracted; Title is sanitized for
// use as a filename.
func Parse(doc []byte) (*Info, error) {
	j, err := simplejson.NewJson(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}
	if _, err := j.Map(); err != nil {
		return nil, fmt.Errorf("invalid metadata document: %w", err)
	}
	info := &Info{
		ID:         j.Get("id").MustString(),
		RawTitle:   j.Get("title").MustString(),
		Uploader:   j.Get("uploader").MustString(),
		Thumbnail:  j.Get("thumbnail").MustString(),
		Extension:  j.Get("ext").MustString(),
		WebpageURL: j.Get("webpage_url").MustString(),
	}
	if seconds, err := j.Get("duration").Float64(); err == nil && seconds > 0 {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	info.Title = Sanitize(info.RawTitle)
	return info, nil
}

// Resolver runs the downloader at Path to fetch metadata.
type Resolver struct {
	Runner process.Runner
	Path   string
}

// Resolve fetches and parses the metadata for url. The child process is terminated if ctx ends first.
func (r *Resolver) Resolve(ctx context.Context, url string) (*Info, error) {
	log := zap.S().Named("metadata").With("url", url)
	p, err := r.Runner.Start(r.Path, tools.ResolveArgs(url))
	if err != nil {
		return nil, err
	}
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			_ = p.Terminate()
		case <-finished:
		}
	}()

	var doc string
	for line := range p.Output() {
		switch {
		case line.Stream == process.Stderr:
			log.Debugw("downloader", "stderr", line.Text)
		case doc == "" && strings.HasPrefix(strings.TrimSpace(line.Text), "{"):
			doc = line.Text
		}
	}
	if err := p.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if doc == "" {
		return nil, ErrNoDocument
	}
	info, err := Parse([]byte(doc))
	if err != nil {
		return nil, err
	}
	log.Debugw("resolved", "id", info.ID, "title", info.Title)
	return info, nil
}
