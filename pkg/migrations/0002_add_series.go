package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `ALTER TABLE books ADD COLUMN series TEXT`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.ExecContext(ctx, `ALTER TABLE books ADD COLUMN series_index REAL`)
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `ALTER TABLE books DROP COLUMN series_index`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = tx.ExecContext(ctx, `ALTER TABLE books DROP COLUMN series`)
		return errors.WithStack(err)
	}

	Migrations.MustRegister(2, "add_series", up, down)
}
