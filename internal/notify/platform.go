package notify

import (
	"runtime"
	"strings"
)

// New returns a Notifier using whatever the current platform offers.
func New() *Notifier {
	return ForPlatform(runtime.GOOS)
}

func ForPlatform(goos string) *Notifier {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return &Notifier{
			Sound: Command{Name: "paplay", Args: []string{"/usr/share/sounds/freedesktop/stereo/complete.oga"}},
			Desktop: CommandDesktop{Name: "notify-send", Args: func(title, message string) []string {
				return []string{"--app-name=ezfetch", title, message}
			}},
		}
	case "darwin":
		return &Notifier{
			Sound: Command{Name: "afplay", Args: []string{"/System/Library/Sounds/Glass.aiff"}},
			Desktop: CommandDesktop{Name: "osascript", Args: func(title, message string) []string {
				script := "display notification " + appleScriptString(message) + " with title " + appleScriptString(title)
				return []string{"-e", script}
			}},
		}
	case "windows":
		return &Notifier{
			Sound: Command{Name: "powershell", Args: []string{
				"-NoProfile", "-NonInteractive", "-Command", "[System.Media.SystemSounds]::Asterisk.Play()",
			}},
			Desktop: CommandDesktop{Name: "powershell", Args: func(title, message string) []string {
				return []string{"-NoProfile", "-NonInteractive", "-Command", balloonScript(title, message)}
			}},
		}
	default:
		return &Notifier{}
	}
}

func appleScriptString(s string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
}

func powerShellString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func balloonScript(title, message string) string {
	return strings.Join([]string{
		"Add-Type -AssemblyName System.Windows.Forms",
		"$n = New-Object System.Windows.Forms.NotifyIcon",
		"$n.Icon = [System.Drawing.SystemIcons]::Information",
		"$n.Visible = $true",
		"$n.ShowBalloonTip(5000, " + powerShellString(title) + ", " + powerShellString(message) + ", 'Info')",
		"Start-Sleep -Seconds 5",
		"$n.Dispose()",
	}, "; ")
}
