package process

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestScanLines(t *testing.T) {
	assert := assert_.New(t)
	scanner := bufio.NewScanner(strings.NewReader("a\rb\nc\r\n\r\nd"))
	scanner.Split(scanLines)
	var tokens []string
	for scanner.Scan() {
		tokens = append(tokens, scanner.Text())
	}
	assert.Nil(scanner.Err())
	assert.Equal([]string{"a", "b", "c", "", "", "", "d"}, tokens)
}

func TestProcessError_Message(t *testing.T) {
	assert := assert_.New(t)

	err := &ProcessError{Path: "/usr/bin/yt-dlp", ExitCode: 1, Stderr: []string{
		"WARNING: something odd",
		"ERROR: [generic] Unsupported URL: https://example.com",
		"",
		"  ",
	}}
	assert.Equal("ERROR: [generic] Unsupported URL: https://example.com", err.Message())
	assert.Equal("yt-dlp exited with code 1: ERROR: [generic] Unsupported URL: https://example.com", err.Error())

	assert.Equal("WARNING: something odd\nERROR: [generic] Unsupported URL: https://example.com", err.Output())

	err = &ProcessError{Path: "ffmpeg", ExitCode: 69, Stderr: []string{"", "first", "Conversion failed!"}}
	assert.Equal("Conversion failed!", err.Message())
	assert.Equal("first\nConversion failed!", err.Output())

	err = &ProcessError{Path: "ffmpeg", ExitCode: 2}
	assert.Equal("ffmpeg exited with code 2", err.Error())
	assert.Equal("", err.Output())
}

func TestExecRunner_LaunchError(t *testing.T) {
	assert := assert_.New(t)
	missing := filepath.Join(t.TempDir(), "no-such-tool")
	_, err := (&ExecRunner{}).Start(missing, nil)
	var launchErr *LaunchError
	if assert.ErrorAs(err, &launchErr) {
		assert.Equal(missing, launchErr.Path)
		assert.True(errors.Is(err, os.ErrNotExist))
	}
}
