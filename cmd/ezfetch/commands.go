package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alanbriolat/ezfetch/database"
	"github.com/alanbriolat/ezfetch/internal/locate"
	"github.com/alanbriolat/ezfetch/internal/settings"
	"github.com/alanbriolat/ezfetch/internal/tools"
)

var settingsCommand = &cli.Command{
	Name:  "settings",
	Usage: "show or change preferences",
	Subcommands: []*cli.Command{
		{
			Name:  "show",
			Usage: "print the current preferences",
			Action: func(c *cli.Context) error {
				store, err := openPreferences(c)
				if err != nil {
					return err
				}
				defer store.Close()
				prefs, err := store.Load()
				if err != nil {
					return err
				}
				return printPreferences(c.App.Writer, prefs)
			},
		},
		{
			Name:  "set",
			Usage: "change preferences, leaving unmentioned ones as they are",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "play-sound", Usage: "play a sound when a download completes"},
				&cli.BoolFlag{Name: "show-notification", Usage: "show a desktop notification when a download completes"},
				&cli.BoolFlag{Name: "auto-convert", Usage: "convert downloads to mp4/mp3 (needs ffmpeg)"},
			},
			Action: func(c *cli.Context) error {
				store, err := openPreferences(c)
				if err != nil {
					return err
				}
				defer store.Close()
				prefs, err := store.Load()
				if err != nil {
					return err
				}
				prefs = applyPreferenceFlags(c, prefs)
				if err := store.Save(prefs); err != nil {
					return err
				}
				return printPreferences(c.App.Writer, prefs)
			},
		},
	},
}

func applyPreferenceFlags(c *cli.Context, prefs settings.Preferences) settings.Preferences {
	if c.IsSet("play-sound") {
		prefs.PlaySound = c.Bool("play-sound")
	}
	if c.IsSet("show-notification") {
		prefs.ShowNotification = c.Bool("show-notification")
	}
	if c.IsSet("auto-convert") {
		prefs.AutoConvert = c.Bool("auto-convert")
	}
	return prefs
}

func printPreferences(w io.Writer, prefs settings.Preferences) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "play-sound\t%v\n", prefs.PlaySound)
	_, _ = fmt.Fprintf(tw, "show-notification\t%v\n", prefs.ShowNotification)
	autoConvert := fmt.Sprint(prefs.AutoConvert)
	if prefs.AutoConvert && !prefs.TranscoderAvailable {
		autoConvert += " (inactive, " + tools.Transcoder + " not found)"
	}
	_, _ = fmt.Fprintf(tw, "auto-convert\t%s\n", autoConvert)
	return tw.Flush()
}

var toolsCommand = &cli.Command{
	Name:  "tools",
	Usage: "show where the external tools were found",
	Action: func(c *cli.Context) error {
		store, err := openPreferences(c)
		if err != nil {
			return err
		}
		defer store.Close()
		locator := locate.Default()
		detectTranscoder(locator, store)
		return printTools(c.App.Writer, locator)
	},
}

func printTools(w io.Writer, locator *locate.Locator) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, tool := range []string{tools.Downloader, tools.Transcoder} {
		path, err := locator.Locate(tool)
		var notFound *locate.NotFoundError
		switch {
		case err == nil:
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", tool, path)
		case errors.As(err, &notFound):
			_, _ = fmt.Fprintf(tw, "%s\tnot found (%d locations tried)\n", tool, len(notFound.Tried.WrappedErrors()))
		default:
			_, _ = fmt.Fprintf(tw, "%s\t%v\n", tool, err)
		}
	}
	return tw.Flush()
}

var historyCommand = &cli.Command{
	Name:  "history",
	Usage: "list recently finished downloads",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Value: 20,
			Usage: "show at most `N` entries",
		},
		&cli.BoolFlag{
			Name:  "clear",
			Usage: "delete all history instead",
		},
	},
	Action: func(c *cli.Context) error {
		db, err := openHistory(c)
		if err != nil {
			return err
		}
		defer db.Close()
		if c.Bool("clear") {
			n, err := db.ClearTasks()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(c.App.Writer, "Removed %d entries\n", n)
			return nil
		}
		tasks, err := db.RecentTasks(c.Int("limit"))
		if err != nil {
			return err
		}
		return printHistory(c.App.Writer, tasks)
	},
}

func printHistory(w io.Writer, tasks []database.Task) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FINISHED\tOUTCOME\tMODE\tTITLE\tDETAIL")
	for _, t := range tasks {
		detail := t.Path
		if t.Error != "" {
			detail = t.Error
		}
		title := t.Title
		if title == "" {
			title = t.URL
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			t.FinishedAt.Local().Format(time.DateTime), t.Outcome, t.Mode, title, detail)
	}
	return tw.Flush()
}
