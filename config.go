package ezfetch

import (
	"path/filepath"
	"strings"
	"text/template"

	"github.com/alanbriolat/ezfetch/internal/metadata"
	"github.com/alanbriolat/ezfetch/internal/tools"
	"github.com/alanbriolat/ezfetch/util"
)

const (
	DefaultSaveNameTemplate = "{{.Title}}"
	fallbackSaveName        = "output"
)

// SaveConfig decides where a download is saved when the user doesn't choose a path.
type SaveConfig struct {
	TargetDir          string
	TargetFileTemplate *template.Template
}

func NewSaveConfig() *SaveConfig {
	return &SaveConfig{
		TargetDir:          ".",
		TargetFileTemplate: template.Must(ParseSaveNameTemplate(DefaultSaveNameTemplate)),
	}
}

func ParseSaveNameTemplate(text string) (*template.Template, error) {
	return template.New("target_file").Option("missingkey=error").Parse(text)
}

// GetTargetPath renders the file name template for a resolved task. Names are sanitized after rendering; if nothing
// usable is left, the last path element of the URL is tried, then a fixed name. The extension is the conversion
// target for the mode, which the downloader may replace.
func (c *SaveConfig) GetTargetPath(url string, info *metadata.Info, mode tools.Mode) (string, error) {
	args := targetFileTemplateArgs{URL: url, Mode: mode}
	if info != nil {
		args.Info = *info
		args.Title = info.Title
	}
	builder := strings.Builder{}
	if err := c.TargetFileTemplate.Execute(&builder, &args); err != nil {
		return "", err
	}
	name := metadata.Sanitize(builder.String())
	if name == "" {
		if fromURL, err := util.FilenameFromURLString(url); err == nil {
			name = metadata.Sanitize(strings.TrimSuffix(fromURL, filepath.Ext(fromURL)))
		}
	}
	if name == "" {
		name = fallbackSaveName
	}
	return filepath.Join(c.TargetDir, name+mode.TargetExt()), nil
}

type targetFileTemplateArgs struct {
	Title string
	URL   string
	Mode  tools.Mode
	Info  metadata.Info
}
