package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelvr/shelvr/pkg/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type key int

const ctxKey key = 0

// WithLogging enables query logging for calls made with the returned context
// when the database was opened with DatabaseDebug.
func WithLogging(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey, true)
}

type logQueryHook struct {
	log logger.Logger
}

func (*logQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *logQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	enabled, ok := ctx.Value(ctxKey).(bool)
	if !ok || !enabled {
		return
	}

	data := logger.Data{"duration_ms": time.Since(event.StartTime).Milliseconds()}
	if event.Err != nil {
		data["error"] = event.Err.Error()
	}
	qh.log.Debug(event.Query, data)
}

// New opens the SQLite database named by cfg.DatabaseFilePath. Every pooled
// connection is wrapped so that it enforces foreign keys (needed for the
// reading_progress cascade) and retries statements that hit SQLITE_BUSY.
func New(cfg *config.Config) (*bun.DB, error) {
	connector, err := openConnector(cfg.DatabaseFilePath)
	if err != nil {
		return nil, err
	}

	busy := &busyConnector{
		connector: connector,
		policy:    retryPolicy{maxRetries: cfg.DatabaseMaxRetries, baseDelay: 50 * time.Millisecond, maxDelay: 2 * time.Second},
		init: []string{
			"PRAGMA foreign_keys = ON",
			fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.DatabaseBusyTimeout.Milliseconds()),
		},
	}
	sqldb := sql.OpenDB(busy)

	// Each connection to ":memory:" is its own empty database, so the pool
	// must never grow past one.
	if isMemory(cfg.DatabaseFilePath) {
		sqldb.SetMaxOpenConns(1)
		sqldb.SetConnMaxLifetime(0)
		sqldb.SetMaxIdleConns(1)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	// print out all queries in debug mode
	if cfg.DatabaseDebug {
		db.AddQueryHook(&logQueryHook{logger.NewWithLevel("debug")})
	}

	// Retry up to a few times to ensure that the database can connect.
	for i := 0; i < max(cfg.DatabaseConnectRetryCount, 1); i++ {
		_, err = db.Exec("SELECT 1")
		if err == nil {
			break
		}
		time.Sleep(cfg.DatabaseConnectRetryDelay)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if !isMemory(cfg.DatabaseFilePath) {
		// WAL lets the reader keep reading while progress writes land.
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return nil, errors.Wrap(err, "failed to enable WAL mode")
		}
	}

	return db, nil
}

func openConnector(dsn string) (driver.Connector, error) {
	drv := sqliteshim.Driver()
	if dc, ok := drv.(driver.DriverContext); ok {
		connector, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return connector, nil
	}
	return newDriverConnector(drv, dsn), nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || dsn == "file::memory:"
}
