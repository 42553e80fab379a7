package database

import (
	"context"
	"database/sql/driver"
	"math/rand"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// driverConnector adapts a plain driver.Driver to driver.Connector for
// drivers that don't implement driver.DriverContext.
type driverConnector struct {
	driver driver.Driver
	dsn    string
}

func newDriverConnector(drv driver.Driver, dsn string) *driverConnector {
	return &driverConnector{driver: drv, dsn: dsn}
}

func (dc *driverConnector) Connect(_ context.Context) (driver.Conn, error) {
	return dc.driver.Open(dc.dsn)
}

func (dc *driverConnector) Driver() driver.Driver {
	return dc.driver
}

// retryPolicy retries SQLITE_BUSY/SQLITE_LOCKED failures with jittered
// exponential backoff.
type retryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// isBusyError matches the lock-contention errors of both mattn/go-sqlite3 and
// modernc.org/sqlite, which only agree on the message text.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}

func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay * time.Duration(1<<attempt)
	if d <= 0 || d > p.maxDelay {
		d = p.maxDelay
	}
	if quarter := int64(d / 4); quarter > 0 {
		d += time.Duration(rand.Int63n(quarter))
	}
	return min(d, p.maxDelay)
}

// do runs fn until it succeeds, fails with a non-busy error, exhausts the
// retries, or ctx is done.
func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); !isBusyError(err) || attempt >= p.maxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
}

// busyConnector hands out connections that run init once when opened and
// retry busy statements under policy.
type busyConnector struct {
	connector driver.Connector
	policy    retryPolicy
	init      []string
}

func (bc *busyConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := bc.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	for _, stmt := range bc.init {
		if err := execOnConn(ctx, conn, stmt); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "init connection: %s", stmt)
		}
	}
	return &busyConn{conn: conn, policy: bc.policy}, nil
}

func (bc *busyConnector) Driver() driver.Driver {
	return bc.connector.Driver()
}

func execOnConn(ctx context.Context, conn driver.Conn, query string) error {
	if execer, ok := conn.(driver.ExecerContext); ok {
		_, err := execer.ExecContext(ctx, query, nil)
		if !errors.Is(err, driver.ErrSkip) {
			return err
		}
	}
	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	_, err = stmt.Exec(nil) //nolint:staticcheck // deprecated but the only option without ExecerContext
	return err
}

// busyConn wraps a driver.Conn and retries busy failures.
type busyConn struct {
	conn   driver.Conn
	policy retryPolicy
}

func (c *busyConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &busyStmt{stmt: stmt, policy: c.policy}, nil
}

func (c *busyConn) Close() error {
	return c.conn.Close()
}

func (c *busyConn) Begin() (driver.Tx, error) {
	var tx driver.Tx
	err := c.policy.do(context.Background(), func() error {
		var innerErr error
		tx, innerErr = c.conn.Begin() //nolint:staticcheck // deprecated but required for interface
		return innerErr
	})
	return tx, err
}

func (c *busyConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	beginner, ok := c.conn.(driver.ConnBeginTx)
	if !ok {
		return c.Begin()
	}
	var tx driver.Tx
	err := c.policy.do(ctx, func() error {
		var innerErr error
		tx, innerErr = beginner.BeginTx(ctx, opts)
		return innerErr
	})
	return tx, err
}

func (c *busyConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	preparer, ok := c.conn.(driver.ConnPrepareContext)
	if !ok {
		return c.Prepare(query)
	}
	stmt, err := preparer.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &busyStmt{stmt: stmt, policy: c.policy}, nil
}

func (c *busyConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var result driver.Result
	err := c.policy.do(ctx, func() error {
		var innerErr error
		result, innerErr = execer.ExecContext(ctx, query, args)
		return innerErr
	})
	return result, err
}

func (c *busyConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := c.conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	var rows driver.Rows
	err := c.policy.do(ctx, func() error {
		var innerErr error
		rows, innerErr = queryer.QueryContext(ctx, query, args)
		return innerErr
	})
	return rows, err
}

func (c *busyConn) Ping(ctx context.Context) error {
	if pinger, ok := c.conn.(driver.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (c *busyConn) ResetSession(ctx context.Context) error {
	if resetter, ok := c.conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

func (c *busyConn) IsValid() bool {
	if v, ok := c.conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

// busyStmt wraps a driver.Stmt and retries busy failures.
type busyStmt struct {
	stmt   driver.Stmt
	policy retryPolicy
}

func (s *busyStmt) Close() error {
	return s.stmt.Close()
}

func (s *busyStmt) NumInput() int {
	return s.stmt.NumInput()
}

func (s *busyStmt) Exec(args []driver.Value) (driver.Result, error) {
	var result driver.Result
	err := s.policy.do(context.Background(), func() error {
		var innerErr error
		result, innerErr = s.stmt.Exec(args) //nolint:staticcheck // deprecated but required for interface
		return innerErr
	})
	return result, err
}

func (s *busyStmt) Query(args []driver.Value) (driver.Rows, error) {
	var rows driver.Rows
	err := s.policy.do(context.Background(), func() error {
		var innerErr error
		rows, innerErr = s.stmt.Query(args) //nolint:staticcheck // deprecated but required for interface
		return innerErr
	})
	return rows, err
}

func (s *busyStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	execer, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		return s.Exec(namedToValues(args))
	}
	var result driver.Result
	err := s.policy.do(ctx, func() error {
		var innerErr error
		result, innerErr = execer.ExecContext(ctx, args)
		return innerErr
	})
	return result, err
}

func (s *busyStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	queryer, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		return s.Query(namedToValues(args))
	}
	var rows driver.Rows
	err := s.policy.do(ctx, func() error {
		var innerErr error
		rows, innerErr = queryer.QueryContext(ctx, args)
		return innerErr
	})
	return rows, err
}

func namedToValues(args []driver.NamedValue) []driver.Value {
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	return values
}
