package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch"
	"github.com/alanbriolat/ezfetch/internal/locate"
	"github.com/alanbriolat/ezfetch/internal/metadata"
	"github.com/alanbriolat/ezfetch/internal/notify"
	"github.com/alanbriolat/ezfetch/internal/session"
	"github.com/alanbriolat/ezfetch/internal/settings"
	"github.com/alanbriolat/ezfetch/internal/thumbnail"
	"github.com/alanbriolat/ezfetch/internal/tools"
)

var errCancelled = errors.New("cancelled")

var fetchCommand = &cli.Command{
	Name:      "fetch",
	Usage:     "download from each URL in turn",
	ArgsUsage: "URL...",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "audio",
			Usage: "download the audio stream only",
		},
		&cli.StringFlag{
			Name:  "dir",
			Value: ".",
			Usage: "save downloads to `DIR`",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "save to `PATH` instead of a name from --name-template (single URL only)",
		},
		&cli.StringFlag{
			Name:  "name-template",
			Value: ezfetch.DefaultSaveNameTemplate,
			Usage: "text/template for the file name, with .Title, .URL, .Mode and .Info",
		},
		&cli.BoolFlag{
			Name:  "thumbnail",
			Usage: "also save the preview thumbnail into the cache directory",
		},
	},
	Action: fetch,
}

func fetch(c *cli.Context) error {
	log := ezfetch.Logger(c.Context).Sugar()
	urls := c.Args().Slice()
	if len(urls) == 0 {
		return cli.Exit("no URL given", 2)
	}
	if c.IsSet("output") && len(urls) > 1 {
		return cli.Exit("--output can only be used with a single URL", 2)
	}
	mode := tools.ModeVideo
	if c.Bool("audio") {
		mode = tools.ModeAudio
	}
	saveConfig := ezfetch.NewSaveConfig()
	saveConfig.TargetDir = c.String("dir")
	tmpl, err := ezfetch.ParseSaveNameTemplate(c.String("name-template"))
	if err != nil {
		return fmt.Errorf("invalid --name-template: %w", err)
	}
	saveConfig.TargetFileTemplate = tmpl

	prefs, err := openPreferences(c)
	if err != nil {
		return err
	}
	defer prefs.Close()
	history, err := openHistory(c)
	if err != nil {
		return err
	}
	defer history.Close()

	locator := locate.Default()
	detectTranscoder(locator, prefs)

	cfg := session.DefaultConfig
	cfg.Locator = locator
	cfg.Confirmer = terminalConfirmer(os.Stdin, os.Stderr)
	cfg.Notifier = notify.New()
	cfg.History = history
	cfg.Preferences = prefs
	// Interrupts go through RequestCancel instead, which the user may decline
	ctx, cancel := detach(c.Context)
	defer cancel()
	ses, err := session.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer ses.Close()

	tr := newTracker(os.Stderr)
	events, err := ses.Subscribe(64)
	if err != nil {
		return err
	}
	go func() {
		for e := range events.Receive() {
			tr.handle(e)
		}
	}()
	finished, err := ses.SubscribeFinished(16)
	if err != nil {
		return err
	}
	go func() {
		for e := range finished.Receive() {
			logFinished(log, e.(session.TaskFinished).Entry)
		}
	}()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	f := &fetcher{
		ctx:        ctx,
		session:    ses,
		tracker:    tr,
		interrupts: interrupts,
		mode:       mode,
		saveConfig: saveConfig,
		output:     c.String("output"),
	}
	if c.Bool("thumbnail") {
		f.thumbnails = thumbnail.NewFetcher()
		f.thumbnailDir = filepath.Join(defaultDir(os.UserCacheDir), "thumbnails")
	}
	for _, url := range urls {
		path, err := f.fetchOne(url)
		if err != nil {
			return err
		}
		log.Infof("Saved %s", path)
	}
	return nil
}

// detach keeps the logger of parent but not its cancellation, which the first interrupt triggers even if the user
// then declines to cancel.
func detach(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(ezfetch.WithLogger(context.Background(), ezfetch.Logger(parent)))
}

// detectTranscoder records whether conversion is possible, since the preference is meaningless without it.
func detectTranscoder(locator *locate.Locator, store settings.Store) {
	log := zap.S()
	prefs, err := store.Load()
	if err != nil {
		log.Warnw("failed to load preferences", "error", err)
		return
	}
	available := locator.Available(tools.Transcoder)
	if prefs.TranscoderAvailable == available {
		return
	}
	prefs.TranscoderAvailable = available
	if err := store.Save(prefs); err != nil {
		log.Warnw("failed to save preferences", "error", err)
	}
}

type fetcher struct {
	ctx          context.Context
	session      *session.Session
	tracker      *tracker
	interrupts   <-chan os.Signal
	mode         tools.Mode
	saveConfig   *ezfetch.SaveConfig
	output       string
	thumbnails   *thumbnail.Fetcher
	thumbnailDir string
}

func (f *fetcher) fetchOne(url string) (string, error) {
	log := zap.S().With("url", url)
	f.tracker.reset()
	id, err := f.session.SubmitURL(url)
	if err != nil {
		return "", err
	}
	select {
	case <-f.tracker.resolved.Wait():
	case <-f.interrupts:
		return "", errCancelled
	}
	snap := f.tracker.latest.Get()
	if snap.State != session.StateReadyToDownload {
		return "", fmt.Errorf("resolving %s: %s", url, snap.Error)
	}
	log.Infof("Found %q", snap.Title)

	if f.thumbnails != nil && snap.Thumbnail != "" {
		path := filepath.Join(f.thumbnailDir, string(id)+".jpg")
		if err := f.thumbnails.Save(f.ctx, snap.Thumbnail, path); err != nil {
			log.Warnw("failed to save thumbnail", "error", err)
		} else {
			log.Infof("Thumbnail saved to %s", path)
		}
	}

	savePath := f.output
	if savePath == "" {
		info := &metadata.Info{Title: snap.Title, Thumbnail: snap.Thumbnail, Duration: snap.Duration}
		if savePath, err = f.saveConfig.GetTargetPath(url, info, f.mode); err != nil {
			return "", err
		}
	}
	f.tracker.startProgress(snap.Title)
	if err := f.session.StartDownload(f.mode, savePath); err != nil {
		f.tracker.stopProgress()
		return "", err
	}

	for {
		select {
		case <-f.tracker.finished.Wait():
			f.tracker.stopProgress()
			snap := f.tracker.latest.Get()
			if err := f.session.Acknowledge(); err != nil {
				log.Warnw("failed to acknowledge task", "error", err)
			}
			if snap.State != session.StateCompleted {
				if snap.Detail != "" {
					log.Warnf("Tool output:\n%s", snap.Detail)
				}
				return "", errors.New(snap.Error)
			}
			return snap.SavePath, nil
		case <-f.interrupts:
			cancelled, err := f.session.RequestCancel()
			if errors.Is(err, session.ErrNoActiveTask) {
				// Finished while the interrupt was in flight
				continue
			} else if err != nil {
				return "", err
			}
			if cancelled {
				f.tracker.stopProgress()
				return "", errCancelled
			}
		}
	}
}
