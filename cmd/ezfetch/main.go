package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/alanbriolat/ezfetch"
	"github.com/alanbriolat/ezfetch/async"
	"github.com/alanbriolat/ezfetch/database"
	"github.com/alanbriolat/ezfetch/internal/boltdb"
)

const appName = "ezfetch"

func main() {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.Level.SetLevel(zap.InfoLevel)
	logger, err := config.Build()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync()
	zap.RedirectStdLog(logger)
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = ezfetch.WithLogger(ctx, logger)

	app := &cli.App{
		Name:  appName,
		Usage: "download video or audio from a URL with yt-dlp, optionally converting it with ffmpeg",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Value: defaultDir(os.UserConfigDir),
				Usage: "keep settings and history in `DIR`",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log debug output, including the output of external tools",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				config.Level.SetLevel(zap.DebugLevel)
			}
			return os.MkdirAll(c.String("config-dir"), 0750)
		},
		Commands: []*cli.Command{
			fetchCommand,
			settingsCommand,
			toolsCommand,
			historyCommand,
		},
		HideHelpCommand: true,
	}

	result := async.Run(func() error { return app.RunContext(ctx, os.Args) })

	select {
	case err = <-result:
	case <-ctx.Done():
		// Interrupts are handled by the running command, so wait for it to finish
		err = <-result
	}
	if err != nil {
		logger.Fatal(err.Error())
	}
}

func defaultDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, appName)
}

func openPreferences(c *cli.Context) (boltdb.Database, error) {
	prefs, err := boltdb.New(filepath.Join(c.String("config-dir"), "settings.db"))
	if err != nil {
		return nil, fmt.Errorf("opening settings: %w", err)
	}
	return prefs, nil
}

func openHistory(c *cli.Context) (*database.Database, error) {
	path := filepath.Join(c.String("config-dir"), "history.sqlite3")
	db, err := database.New(path, ezfetch.Logger(c.Context))
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating history: %w", err)
	}
	return db, nil
}
