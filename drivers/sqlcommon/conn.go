// Package sqlcommon is the shared database/sql-backed adapter used by the
// four relational family drivers (MySQL, PostgreSQL, SQLite, Firebird).
// It implements dbc.RelationalConnection once against *sql.DB / *sql.Conn,
// generalizing the teacher's own sqldriver.Conn (a single-backend
// database/sql/driver.Conn) to front four.
package sqlcommon

import (
	"context"
	"database/sql"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

// orphanable is implemented by every live child (statement, result set) a
// Conn tracks so Close can invalidate them synchronously, per spec.md
// invariant 2.
type orphanable interface {
	orphan()
}

// Conn is the shared relational connection adapter. Each dbc.Connection
// instance owns exactly one *sql.Conn checked out of a *sql.DB configured
// with a single open connection, so the per-connection mutex below is the
// real serialization point for concurrent use from multiple goroutines
// (spec.md §4.2.2), not an artifact of database/sql's own pooling.
type Conn struct {
	mu sync.Mutex

	db         *sql.DB
	sqlConn    *sql.Conn
	driverName string
	url        *dbc.ConnectionURL
	isolations dbc.IsolationTranslation
	cursorModel bool

	closed     bool
	autoCommit bool
	txActive   bool
	isolation  dbc.IsolationLevel
	tx         *sql.Tx

	children map[orphanable]struct{}
	log      *logrus.Entry
}

// Open dials driverName (already registered with database/sql by the
// caller's own package init, e.g. go-sql-driver/mysql) with dsn, pins the
// pool to exactly one physical connection, and returns a Conn ready for
// use. cursorModel classifies the backend per spec.md §9 ("Implementers
// MUST classify each backend and document the classification").
func Open(ctx context.Context, driverName, dsn string, u *dbc.ConnectionURL, isolations dbc.IsolationTranslation, cursorModel bool) (*Conn, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "opening "+driverName+" connection")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	sqlConn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "acquiring native "+driverName+" handle")
	}
	if err := sqlConn.PingContext(ctx); err != nil {
		sqlConn.Close()
		db.Close()
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "pinging "+driverName)
	}

	return &Conn{
		db:          db,
		sqlConn:     sqlConn,
		driverName:  driverName,
		url:         u,
		isolations:  isolations,
		cursorModel: cursorModel,
		autoCommit:  true,
		children:    map[orphanable]struct{}{},
		log:         logrus.WithField("driver", driverName).WithField("target", u.Target),
	}, nil
}

func (c *Conn) URL() *dbc.ConnectionURL { return c.url }

func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close is idempotent. It finalizes every tracked child before releasing
// the native handle (Open Question 1 in DESIGN.md): children are orphaned
// first, under the same mutex a statement's own Close() checks, so there
// is no window where a statement sees itself not-yet-orphaned but the
// native handle already gone.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	for child := range c.children {
		child.orphan()
	}
	c.children = nil

	var err error
	if c.tx != nil {
		if rbErr := c.tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			c.log.WithError(rbErr).Warn("rollback during close failed")
		}
		c.tx = nil
	}
	if cErr := c.sqlConn.Close(); cErr != nil {
		err = cErr
	}
	if dErr := c.db.Close(); dErr != nil && err == nil {
		err = dErr
	}
	c.closed = true
	if err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "closing "+c.driverName+" connection")
	}
	return nil
}

// ReturnToPool resets mutable session state and rolls back any open
// transaction, but leaves the native handle open for reuse (spec.md §4.2).
func (c *Conn) ReturnToPool(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return dbcerr.New(dbcerr.ConnectionClosed, "return to pool on closed connection")
	}
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil && err != sql.ErrTxDone {
			c.log.WithError(err).Warn("rollback during return-to-pool failed")
		}
		c.tx = nil
	}
	c.txActive = false
	c.autoCommit = true
	c.isolation = dbc.IsolationNone
	return nil
}

// trackLocked records o as a live child of c. c.mu is a plain
// sync.Mutex and is not reentrant: a goroutine that locks it again while
// holding it deadlocks. trackLocked therefore does not lock, and every
// caller must already hold c.mu — both call sites (PrepareStatement,
// newCursorResultSet) run inside a withLock closure.
func (c *Conn) trackLocked(o orphanable) { c.children[o] = struct{}{} }

// untrack removes o from c's child set. Unlike trackLocked, callers
// (Stmt.Close, cursorResultSet.Close) call this without already holding
// c.mu, so it takes the lock itself.
func (c *Conn) untrack(o orphanable) { c.mu.Lock(); delete(c.children, o); c.mu.Unlock() }

// withLock runs fn with the connection mutex held, failing fast with
// ConnectionClosed if the connection has already been closed. It is the
// single chokepoint every operation that crosses the native handle
// boundary uses (spec.md §4.2.2).
func (c *Conn) withLock(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return dbcerr.New(dbcerr.ConnectionClosed, "operation on closed connection")
	}
	return fn()
}

func (c *Conn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

func (c *Conn) TransactionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txActive
}

func (c *Conn) TransactionIsolation() dbc.IsolationLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isolation
}

func (c *Conn) SetAutoCommit(ctx context.Context, on bool) error {
	return c.withLock(func() error {
		if on && c.tx != nil {
			if err := c.tx.Commit(); err != nil {
				return dbcerr.Wrap(dbcerr.Backend, err, "committing before enabling autocommit")
			}
			c.tx = nil
			c.txActive = false
		}
		c.autoCommit = on
		return nil
	})
}

func (c *Conn) BeginTransaction(ctx context.Context) error {
	return c.withLock(func() error {
		if c.txActive {
			return dbcerr.New(dbcerr.TransactionState, "transaction already active")
		}
		opts := &sql.TxOptions{Isolation: isolationToSQL(c.isolation)}
		tx, err := c.sqlConn.BeginTx(ctx, opts)
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "beginning transaction")
		}
		c.tx = tx
		c.txActive = true
		c.autoCommit = false
		return nil
	})
}

func (c *Conn) Commit(ctx context.Context) error {
	return c.withLock(func() error {
		if c.tx == nil {
			return dbcerr.New(dbcerr.TransactionState, "commit without begin")
		}
		err := c.tx.Commit()
		c.tx = nil
		c.txActive = false
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "commit")
		}
		return nil
	})
}

func (c *Conn) Rollback(ctx context.Context) error {
	return c.withLock(func() error {
		if c.tx == nil {
			return dbcerr.New(dbcerr.TransactionState, "rollback without begin")
		}
		err := c.tx.Rollback()
		c.tx = nil
		c.txActive = false
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "rollback")
		}
		return nil
	})
}

// SetTransactionIsolation may end an in-flight transaction and begin a new
// one, per spec.md §4.2.1 — that is a documented, permitted observable
// effect, not a bug.
func (c *Conn) SetTransactionIsolation(ctx context.Context, level dbc.IsolationLevel) error {
	if _, err := c.isolations.Translate(level); err != nil {
		return err
	}
	return c.withLock(func() error {
		wasActive := c.txActive
		if wasActive {
			if err := c.tx.Commit(); err != nil {
				return dbcerr.Wrap(dbcerr.Backend, err, "committing before isolation change")
			}
			c.tx = nil
			c.txActive = false
		}
		c.isolation = level
		if wasActive {
			opts := &sql.TxOptions{Isolation: isolationToSQL(level)}
			tx, err := c.sqlConn.BeginTx(ctx, opts)
			if err != nil {
				return dbcerr.Wrap(dbcerr.Backend, err, "restarting transaction after isolation change")
			}
			c.tx = tx
			c.txActive = true
		}
		return nil
	})
}

func isolationToSQL(level dbc.IsolationLevel) sql.IsolationLevel {
	switch level {
	case dbc.IsolationReadUncommitted:
		return sql.LevelReadUncommitted
	case dbc.IsolationReadCommitted:
		return sql.LevelReadCommitted
	case dbc.IsolationRepeatableRead:
		return sql.LevelRepeatableRead
	case dbc.IsolationSerializable:
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}

// queryable abstracts over *sql.Conn and *sql.Tx so prepare/execute paths
// work identically whether or not a transaction is active.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (c *Conn) queryable() queryable {
	if c.tx != nil {
		return c.tx
	}
	return c.sqlConn
}

func (c *Conn) ExecuteQuery(ctx context.Context, query string, args ...any) (dbc.ResultSet, error) {
	var rs dbc.ResultSet
	err := c.withLock(func() error {
		rows, err := c.queryable().QueryContext(ctx, query, args...)
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "executing query")
		}
		if c.cursorModel {
			cr, err := newCursorResultSet(c, rows)
			if err != nil {
				return err
			}
			rs = cr
			return nil
		}
		br, err := newBufferedResultSet(rows)
		if err != nil {
			return err
		}
		rs = br
		return nil
	})
	return rs, err
}

func (c *Conn) ExecuteUpdate(ctx context.Context, query string, args ...any) (uint64, error) {
	var count uint64
	err := c.withLock(func() error {
		res, err := c.queryable().ExecContext(ctx, query, args...)
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "executing update")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "reading rows affected")
		}
		count = uint64(n)
		return nil
	})
	return count, err
}

// withLockResultSet runs a prepared statement's native query under the
// connection mutex, dispatching to the cursor or buffered result set
// model exactly like ExecuteQuery does for ad-hoc queries.
func (c *Conn) withLockResultSet(ctx context.Context, native *sql.Stmt, args []any) (dbc.ResultSet, error) {
	var rs dbc.ResultSet
	err := c.withLock(func() error {
		rows, err := native.QueryContext(ctx, args...)
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "executing prepared query")
		}
		if c.cursorModel {
			cr, err := newCursorResultSet(c, rows)
			if err != nil {
				return err
			}
			rs = cr
			return nil
		}
		br, err := newBufferedResultSet(rows)
		if err != nil {
			return err
		}
		rs = br
		return nil
	})
	return rs, err
}

func (c *Conn) PrepareStatement(ctx context.Context, query string) (dbc.PreparedStatement, error) {
	var stmt *Stmt
	err := c.withLock(func() error {
		native, err := c.queryable().PrepareContext(ctx, query)
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "preparing statement")
		}
		stmt = newStmt(c, native)
		c.trackLocked(stmt)
		return nil
	})
	return stmt, err
}
