// Package tools describes the command-line contracts of the external downloader and transcoder.
package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alanbriolat/ezfetch/generic"
)

const (
	Downloader = "yt-dlp"
	Transcoder = "ffmpeg"
)

type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeVideo, ModeAudio:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

func (m Mode) Valid() bool {
	return m == ModeVideo || m == ModeAudio
}

// Format is the downloader's format selector for the mode.
func (m Mode) Format() string {
	if m == ModeAudio {
		return "bestaudio"
	}
	return "bestvideo+bestaudio"
}

// TargetExt is the extension produced by conversion.
func (m Mode) TargetExt() string {
	if m == ModeAudio {
		return ".mp3"
	}
	return ".mp4"
}

// ResolveArgs asks the downloader for the metadata document of a single item, without downloading it.
func ResolveArgs(url string) []string {
	return []string{"--no-playlist", "--dump-json", url}
}

// DownloadArgs downloads url so that the output lands at stem + "." + <whatever extension the downloader picks>.
func DownloadArgs(url string, mode Mode, stem string) []string {
	return []string{
		"-f", mode.Format(),
		"--no-playlist",
		"--newline",
		"-o", stem + ".%(ext)s",
		url,
	}
}

// TranscodeArgs converts input into output for the mode, overwriting output.
func TranscodeArgs(input string, output string, mode Mode) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input}
	if mode == ModeAudio {
		args = append(args, "-vn", "-c:a", "libmp3lame")
	} else {
		args = append(args, "-c:v", "copy", "-c:a", "aac")
	}
	return append(args, output)
}

var mediaExtensions = generic.NewSet(
	".3gp", ".aac", ".avi", ".flac", ".flv", ".m4a", ".m4v", ".mkv", ".mov", ".mp3", ".mp4", ".oga", ".ogg",
	".opus", ".wav", ".weba", ".webm",
)

// Stem strips a media extension from a chosen save path, since the downloader decides the real extension. Other
// dots are kept: "v1.2 release" is a name, not an extension.
func Stem(savePath string) string {
	ext := filepath.Ext(savePath)
	if mediaExtensions.Contains(strings.ToLower(ext)) {
		return strings.TrimSuffix(savePath, ext)
	}
	return savePath
}
