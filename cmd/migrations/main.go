package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/shelvr/shelvr/pkg/database"
	"github.com/shelvr/shelvr/pkg/migrations"
	"github.com/urfave/cli/v2"
)

const migrationsDir = "pkg/migrations"

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	app := &cli.App{
		Name:        "migrations",
		Usage:       "CLI to interact with migrations",
		Description: "CLI to interact with the schema_migrations ledger",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply every pending migration",
				Action: func(c *cli.Context) error {
					result, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}

					if len(result.Applied) == 0 {
						fmt.Printf("There are no new migrations to run (at v%d)\n", result.To)
						return nil
					}

					for _, m := range result.Applied {
						fmt.Printf("Applied %s\n", m)
					}
					fmt.Printf("Migrated from v%d to v%d\n", result.From, result.To)
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "roll back the most recently applied migration",
				Action: func(c *cli.Context) error {
					m, err := migrations.Rollback(c.Context, db)
					if err != nil {
						return err
					}

					if m == nil {
						fmt.Printf("There are no migrations to roll back\n")
						return nil
					}

					fmt.Printf("Rolled back %s\n", m)
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "create a Go migration with the next version number",
				ArgsUsage: "<name words...>",
				Action: func(c *cli.Context) error {
					name := strcase.ToSnake(strings.Join(c.Args().Slice(), " "))
					if name == "" {
						return errors.New("a migration name is required")
					}

					version := migrations.Migrations.Latest() + 1
					path := filepath.Join(migrationsDir, fmt.Sprintf("%04d_%s.go", version, name))
					if _, err := os.Stat(path); err == nil {
						return errors.Errorf("%s already exists", path)
					}

					content := fmt.Sprintf(migrationTemplate, version, name)
					if err := os.WriteFile(path, []byte(content), 0644); err != nil { //nolint:gosec
						return errors.WithStack(err)
					}
					fmt.Printf("Created migration v%d_%s (%s)\n", version, name, path)

					return nil
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					report, err := migrations.Status(c.Context, db)
					if err != nil {
						return err
					}

					fmt.Printf("Current version: v%d\n", report.Current)
					fmt.Printf("Latest version: v%d\n", report.Latest)
					for _, m := range report.Applied {
						fmt.Printf("  applied  v%d_%s\n", m.Version, m.Name)
					}
					for _, m := range report.Pending {
						fmt.Printf("  pending  %s\n", m)
					}

					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

const migrationTemplate = `package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(%d, %q, up, down)
}
`
