package main

import (
	"context"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()
	ctx := log.WithContext(context.Background())

	app := &cli.App{
		Name:    "shelvr",
		Usage:   "a personal EPUB library and reader",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print results as JSON"},
		},
		Commands: []*cli.Command{
			importCommand,
			listCommand,
			searchCommand,
			showCommand,
			editCommand,
			deleteCommand,
			progressCommand,
			readCommand,
			prefsCommand,
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}
