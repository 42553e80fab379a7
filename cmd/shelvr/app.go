package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shelvr/shelvr/pkg/books"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/database"
	"github.com/shelvr/shelvr/pkg/fileutils"
	"github.com/shelvr/shelvr/pkg/library"
	"github.com/shelvr/shelvr/pkg/locations"
	"github.com/shelvr/shelvr/pkg/metadata"
	"github.com/shelvr/shelvr/pkg/migrations"
	"github.com/shelvr/shelvr/pkg/preferences"
	"github.com/shelvr/shelvr/pkg/reader"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

// app holds every service, wired once per command invocation.
type app struct {
	cfg       *config.Config
	db        *bun.DB
	books     *books.Service
	library   *library.Service
	reader    *reader.Service
	locations *locations.Cache
	prefs     *preferences.Store
}

// setup loads config, opens the database and brings the schema up to date.
// A migration failure aborts startup.
func setup(ctx context.Context) (*app, error) {
	log := logger.FromContext(ctx)

	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.BooksDir(), cfg.CoversDir(), cfg.CacheDir} {
		if err := fileutils.EnsureDir(dir); err != nil {
			return nil, errors.Wrapf(err, "failed to create storage directory: %s", dir)
		}
	}

	db, err := database.New(cfg)
	if err != nil {
		return nil, err
	}

	result, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(result.Applied) > 0 {
		log.Info("migrated database", logger.Data{"from": result.From, "to": result.To})
	}

	// The locations cache only saves time, so the app runs without it.
	cache, err := locations.Open(cfg.CacheDir)
	if err != nil {
		log.Err(err).Warn("locations cache unavailable")
		cache = nil
	}

	bookService := books.NewService(db)
	prefs := preferences.NewStore(cfg.PreferencesFilePath)
	importer := library.NewImporter(cfg, metadata.NewService(cfg))

	return &app{
		cfg:       cfg,
		db:        db,
		books:     bookService,
		library:   library.NewService(cfg, bookService, importer, cache, prefs),
		reader:    reader.NewService(cfg, bookService, cache, prefs),
		locations: cache,
		prefs:     prefs,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	log := logger.FromContext(ctx)
	if err := a.locations.Close(); err != nil {
		log.Err(err).Error("locations cache close error")
	}
	if err := a.db.Close(); err != nil {
		log.Err(err).Error("database close error")
	}
}

// withApp runs fn with a freshly wired app and closes it afterwards.
func withApp(fn func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		a, err := setup(c.Context)
		if err != nil {
			return err
		}
		defer a.Close(c.Context)
		return fn(c, a)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return errors.WithStack(enc.Encode(v))
}

func percent(p float64) string {
	return fmt.Sprintf("%.0f%%", p*100)
}
