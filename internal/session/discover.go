package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alanbriolat/ezfetch/generic"
)

// Leftovers of an incomplete or resumable download.
var skippedExtensions = generic.NewSet(".part", ".ytdl", ".temp", ".tmp")

type FileNotFoundError struct {
	Dir  string
	Name string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("no downloaded file found for %q in %s", e.Name, e.Dir)
}

// findOutput finds the file the downloader produced for stem, i.e. "<stem>.<ext>" with a single extension.
// Directory entries are sorted, so the choice is deterministic when there are several.
func findOutput(stem string) (string, error) {
	dir, base := filepath.Dir(stem), filepath.Base(stem)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("searching for downloaded file: %w", err)
	}
	prefix := base + "."
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		ext := strings.TrimPrefix(name, base)
		if len(ext) < 2 || strings.Contains(ext[1:], ".") || skippedExtensions.Contains(strings.ToLower(ext)) {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", &FileNotFoundError{Dir: dir, Name: base}
}
