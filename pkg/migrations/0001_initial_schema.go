package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `
			CREATE TABLE books (
				id TEXT PRIMARY KEY NOT NULL,
				title TEXT NOT NULL,
				authors TEXT,
				description TEXT,
				cover_path TEXT,
				file_path TEXT NOT NULL,
				source TEXT NOT NULL CHECK (source IN ('local', 'komga')),
				komga_book_id TEXT,
				komga_server_id TEXT,
				file_size INTEGER,
				page_count INTEGER,
				published_date TEXT,
				language TEXT,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.ExecContext(ctx, `
			CREATE TABLE reading_progress (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				book_id TEXT NOT NULL UNIQUE REFERENCES books (id) ON DELETE CASCADE,
				cfi TEXT,
				percentage REAL NOT NULL DEFAULT 0.0,
				chapter TEXT,
				chapter_title TEXT,
				last_read_at INTEGER NOT NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}

		indexes := []string{
			`CREATE INDEX ix_books_source ON books (source)`,
			`CREATE INDEX ix_books_komga_server_id ON books (komga_server_id)`,
			`CREATE INDEX ix_books_title ON books (title COLLATE NOCASE)`,
			`CREATE INDEX ix_books_updated_at ON books (updated_at DESC)`,
			`CREATE INDEX ix_reading_progress_book_id ON reading_progress (book_id)`,
			`CREATE INDEX ix_reading_progress_last_read_at ON reading_progress (last_read_at DESC)`,
		}
		for _, stmt := range indexes {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	down := func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS reading_progress`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.ExecContext(ctx, `DROP TABLE IF EXISTS books`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(1, "initial_schema", up, down)
}
