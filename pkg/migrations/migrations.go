package migrations

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

// MigrationFunc applies (or reverts) one schema revision inside tx.
type MigrationFunc func(ctx context.Context, tx bun.Tx) error

// Migration is one numbered schema revision.
type Migration struct {
	Version int
	Name    string
	Up      MigrationFunc
	Down    MigrationFunc
}

func (m Migration) String() string {
	return fmt.Sprintf("v%d_%s", m.Version, m.Name)
}

// Registry holds the known revisions in ascending version order.
type Registry struct {
	migrations []Migration
}

// Migrations is the registry every revision file adds itself to.
var Migrations = &Registry{}

// MustRegister adds a revision. Versions must be positive and unique.
func (r *Registry) MustRegister(version int, name string, up, down MigrationFunc) {
	if version <= 0 {
		panic(fmt.Sprintf("migrations: invalid version %d", version))
	}
	for _, m := range r.migrations {
		if m.Version == version {
			panic(fmt.Sprintf("migrations: duplicate version %d (%s, %s)", version, m.Name, name))
		}
	}
	r.migrations = append(r.migrations, Migration{Version: version, Name: name, Up: up, Down: down})
	sort.Slice(r.migrations, func(i, j int) bool {
		return r.migrations[i].Version < r.migrations[j].Version
	})
}

// Sorted returns a copy of the registered revisions, oldest first.
func (r *Registry) Sorted() []Migration {
	return append([]Migration(nil), r.migrations...)
}

// Latest returns the highest registered version, or 0.
func (r *Registry) Latest() int {
	if len(r.migrations) == 0 {
		return 0
	}
	return r.migrations[len(r.migrations)-1].Version
}

// AppliedMigration is one row of the schema_migrations ledger.
type AppliedMigration struct {
	bun.BaseModel `bun:"table:schema_migrations"`

	Version   int    `bun:",pk,autoincrement:false"`
	Name      string `bun:",nullzero,notnull"`
	AppliedAt int64  `bun:",notnull"`
}

const createLedger = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)
`

// Result describes a BringUpToDate run.
type Result struct {
	From    int
	To      int
	Applied []Migration
}

// BringUpToDate applies the revisions of the default registry.
func BringUpToDate(ctx context.Context, db *bun.DB) (*Result, error) {
	return Migrations.BringUpToDate(ctx, db)
}

// BringUpToDate applies, in order, every revision newer than the ledger's
// current version. Each revision and its ledger row commit together; the
// first failure stops the run and is returned.
func (r *Registry) BringUpToDate(ctx context.Context, db *bun.DB) (*Result, error) {
	log := logger.FromContext(ctx)

	current, err := r.currentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	log.Info("current schema version", logger.Data{"version": current})

	result := &Result{From: current, To: current}
	for _, m := range r.migrations {
		if m.Version <= current {
			continue
		}

		log.Info("running migration", logger.Data{"version": m.Version, "name": m.Name})
		err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := m.Up(ctx, tx); err != nil {
				return err
			}
			row := &AppliedMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UnixMilli()}
			_, err := tx.NewInsert().Model(row).Exec(ctx)
			return errors.WithStack(err)
		})
		if err != nil {
			log.Err(err).Error("migration failed", logger.Data{"version": m.Version, "name": m.Name})
			return result, errors.Wrapf(err, "migration %s failed", m)
		}

		result.Applied = append(result.Applied, m)
		result.To = m.Version
	}

	return result, nil
}

// Rollback reverts the most recently applied revision of the default registry.
func Rollback(ctx context.Context, db *bun.DB) (*Migration, error) {
	return Migrations.Rollback(ctx, db)
}

// Rollback reverts the most recently applied revision and removes its ledger
// row. It returns nil when nothing has been applied.
func (r *Registry) Rollback(ctx context.Context, db *bun.DB) (*Migration, error) {
	current, err := r.currentVersion(ctx, db)
	if err != nil {
		return nil, err
	}
	if current == 0 {
		return nil, nil
	}

	var target *Migration
	for i := range r.migrations {
		if r.migrations[i].Version == current {
			target = &r.migrations[i]
		}
	}
	if target == nil {
		return nil, errors.Errorf("applied version %d is not registered", current)
	}
	if target.Down == nil {
		return nil, errors.Errorf("migration %s cannot be rolled back", target)
	}

	err = db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := target.Down(ctx, tx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*AppliedMigration)(nil)).Where("version = ?", target.Version).Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "rollback of %s failed", target)
	}

	logger.FromContext(ctx).Info("rolled back migration", logger.Data{"version": target.Version, "name": target.Name})
	return target, nil
}

// StatusReport is the ledger compared with the registry.
type StatusReport struct {
	Current int
	Latest  int
	Applied []AppliedMigration
	Pending []Migration
}

// Status reports the ledger state of the default registry.
func Status(ctx context.Context, db *bun.DB) (*StatusReport, error) {
	return Migrations.Status(ctx, db)
}

// Status reads the ledger without changing anything except creating the
// ledger table when it is missing.
func (r *Registry) Status(ctx context.Context, db *bun.DB) (*StatusReport, error) {
	current, err := r.currentVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	report := &StatusReport{Current: current, Latest: r.Latest()}
	err = db.NewSelect().Model(&report.Applied).Order("version ASC").Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	for _, m := range r.migrations {
		if m.Version > current {
			report.Pending = append(report.Pending, m)
		}
	}
	return report, nil
}

func (r *Registry) currentVersion(ctx context.Context, db *bun.DB) (int, error) {
	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return 0, errors.WithStack(err)
	}

	var current int
	err := db.NewSelect().
		Model((*AppliedMigration)(nil)).
		ColumnExpr("COALESCE(MAX(version), 0)").
		Scan(ctx, &current)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return current, nil
}
