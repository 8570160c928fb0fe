// Package thumbnail fetches the preview image named by a task's metadata, scaled to the size the preview pane shows.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

const (
	DefaultWidth  = 544
	DefaultHeight = 301
	// Larger responses are not images anyone meant to show as a preview.
	maxBytes = 16 << 20
)

type HTTPError struct {
	URL    string
	Status string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetching %s: %s", e.URL, e.Status)
}

type Fetcher struct {
	Client *http.Client
	Width  int
	Height int
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		Client: http.DefaultClient,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
}

// Fetch downloads and decodes the image at url, resized to exactly Width x Height.
func (f *Fetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{URL: url, Status: resp.Status}
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxBytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding thumbnail: %w", err)
	}
	width, height := f.Width, f.Height
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// Save fetches the image at url and writes it to path, in the format implied by the extension of path.
func (f *Fetcher) Save(ctx context.Context, url string, path string) error {
	img, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("saving thumbnail: %w", err)
	}
	zap.S().Named("thumbnail").Debugw("saved thumbnail", "url", url, "path", path)
	return nil
}
