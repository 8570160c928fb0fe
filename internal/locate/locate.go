// Package locate finds external tool executables on disk.
package locate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var (
	ErrNotFound      = errors.New("executable not found")
	ErrNotExecutable = errors.New("not executable")
)

// NotFoundError is returned by Locate when no candidate matched. Tried records why each candidate was rejected.
type NotFoundError struct {
	Tool  string
	Tried *multierror.Error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Locator resolves a tool name to an executable path: first any well-known installation paths registered for the
// tool in Fixed, then each directory of SearchPath in order.
type Locator struct {
	Fixed      map[string][]string
	SearchPath []string
	// Suffix is appended to the tool name when searching directories, e.g. ".exe" on Windows.
	Suffix string
}

// Default returns a Locator for the current platform: well-known paths, then the directory containing the running
// executable (and its "bin" subdirectory), then $PATH.
func Default() *Locator {
	l := &Locator{
		Fixed: map[string][]string{},
	}
	if runtime.GOOS == "windows" {
		l.Suffix = ".exe"
		l.Fixed["ffmpeg"] = []string{`C:\ffmpeg\bin\ffmpeg.exe`}
	} else {
		for _, tool := range []string{"ffmpeg", "yt-dlp"} {
			l.Fixed[tool] = []string{"/usr/local/bin/" + tool, "/opt/homebrew/bin/" + tool}
		}
	}
	if self, err := os.Executable(); err == nil {
		dir := filepath.Dir(self)
		l.SearchPath = append(l.SearchPath, dir, filepath.Join(dir, "bin"))
	}
	l.SearchPath = append(l.SearchPath, filepath.SplitList(os.Getenv("PATH"))...)
	return l
}

// Locate returns the first candidate path for tool that exists and is executable.
func (l *Locator) Locate(tool string) (string, error) {
	var tried *multierror.Error
	for _, candidate := range l.candidates(tool) {
		if err := checkExecutable(candidate); err != nil {
			tried = multierror.Append(tried, err)
			continue
		}
		return candidate, nil
	}
	return "", &NotFoundError{Tool: tool, Tried: tried}
}

// Available reports whether Locate would succeed for tool.
func (l *Locator) Available(tool string) bool {
	_, err := l.Locate(tool)
	return err == nil
}

func (l *Locator) candidates(tool string) []string {
	candidates := append([]string(nil), l.Fixed[tool]...)
	name := tool
	if l.Suffix != "" && !strings.HasSuffix(strings.ToLower(name), strings.ToLower(l.Suffix)) {
		name += l.Suffix
	}
	for _, dir := range l.SearchPath {
		if dir == "" {
			continue
		}
		candidates = append(candidates, filepath.Join(dir, name))
	}
	return candidates
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", path)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotExecutable)
	}
	return nil
}
