package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shelvr/shelvr/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EnforcesForeignKeys(t *testing.T) {
	t.Parallel()

	db, err := New(config.NewForTest())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()

	var enabled int
	require.NoError(t, db.NewRaw("PRAGMA foreign_keys").Scan(ctx, &enabled))
	assert.Equal(t, 1, enabled)

	_, err = db.ExecContext(ctx, `CREATE TABLE parents (id TEXT PRIMARY KEY)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `CREATE TABLE children (id INTEGER PRIMARY KEY, parent_id TEXT REFERENCES parents(id) ON DELETE CASCADE)`)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO children (parent_id) VALUES ('ghost')`)
	require.Error(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO parents (id) VALUES ('p1')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO children (parent_id) VALUES ('p1')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `DELETE FROM parents WHERE id = 'p1'`)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.NewRaw("SELECT COUNT(*) FROM children").Scan(ctx, &count))
	assert.Equal(t, 0, count)
}

func TestNew_MemoryDatabaseIsShared(t *testing.T) {
	t.Parallel()

	db, err := New(config.NewForTest())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE notes (body TEXT)`)
	require.NoError(t, err)

	// A second statement must see the table even though the pool could have
	// opened another connection.
	_, err = db.ExecContext(ctx, `INSERT INTO notes (body) VALUES ('kept')`)
	require.NoError(t, err)
}

func TestNew_FileDatabase(t *testing.T) {
	t.Parallel()

	cfg := config.NewForTest()
	cfg.DatabaseFilePath = filepath.Join(t.TempDir(), "shelvr.sqlite")
	cfg.DatabaseDebug = true

	db, err := New(cfg)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.NewRaw("PRAGMA journal_mode").Scan(WithLogging(context.Background()), &mode))
	assert.Equal(t, "wal", mode)
}
