package sqlcommon

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

// Stmt adapts *sql.Stmt to dbc.PreparedStatement. It holds a weak
// reference to its owning Conn in the sense spec.md §9 allows for
// garbage-collected languages: a pointer plus a closed flag checked on
// every operation, rather than a true weak pointer, since Go's GC already
// keeps the Conn alive for the statement's lifetime and the invalidation
// invariant only requires "fails fast after close", not "collected
// early".
type Stmt struct {
	mu       sync.Mutex
	owner    *Conn
	native   *sql.Stmt
	args     []any
	closed   bool
	orphaned bool
}

func newStmt(owner *Conn, native *sql.Stmt) *Stmt {
	return &Stmt{owner: owner, native: native}
}

// orphan is called by the owning Conn's Close, under the Conn's mutex, to
// invalidate this statement without touching its (already-being-finalized)
// native handle a second time.
func (s *Stmt) orphan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.orphaned || s.closed {
		return
	}
	s.orphaned = true
	s.native.Close()
	s.native = nil
}

func (s *Stmt) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.orphaned
}

func (s *Stmt) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	orphaned := s.orphaned
	native := s.native
	s.native = nil
	s.mu.Unlock()

	if orphaned || native == nil {
		// The owning connection already finalized this statement's
		// native handle (DESIGN.md Open Question 1); nothing left to do.
		return nil
	}
	s.owner.untrack(s)
	if err := native.Close(); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "closing statement")
	}
	return nil
}

func (s *Stmt) bind(idx int, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.orphaned {
		return dbcerr.New(dbcerr.StatementClosed, "bind on closed statement")
	}
	if idx < 1 {
		return dbcerr.Newf(dbcerr.BindError, "parameter index %d out of range", idx)
	}
	for len(s.args) < idx {
		s.args = append(s.args, nil)
	}
	s.args[idx-1] = v
	return nil
}

func (s *Stmt) BindInt32(idx int, v int32) error            { return s.bind(idx, v) }
func (s *Stmt) BindInt64(idx int, v int64) error            { return s.bind(idx, v) }
func (s *Stmt) BindDouble(idx int, v float64) error         { return s.bind(idx, v) }
func (s *Stmt) BindBool(idx int, v bool) error               { return s.bind(idx, v) }
func (s *Stmt) BindString(idx int, v string) error           { return s.bind(idx, v) }
func (s *Stmt) BindNull(idx int) error                       { return s.bind(idx, nil) }
func (s *Stmt) BindDate(idx int, v time.Time) error          { return s.bind(idx, v.Format("2006-01-02")) }
func (s *Stmt) BindTimestamp(idx int, v time.Time) error     { return s.bind(idx, v) }
func (s *Stmt) BindTime(idx int, v time.Time) error          { return s.bind(idx, v.Format("15:04:05")) }
func (s *Stmt) BindBytes(idx int, v []byte) error            { return s.bind(idx, v) }

func (s *Stmt) BindBlob(idx int, v *dbc.Blob) error {
	if v == nil {
		return dbcerr.Newf(dbcerr.BindError, "nil blob at parameter %d", idx)
	}
	length, err := v.Length()
	if err != nil {
		return err
	}
	data, err := v.GetBytes(1, length)
	if err != nil {
		return err
	}
	return s.bind(idx, data)
}

// BindInputStream reads the stream until EOF and binds the resulting
// bytes, since database/sql drivers require the full parameter value up
// front rather than accepting a streaming reader. length only presizes
// the buffer; it does not cap the read, so a stream longer than length
// is bound in full.
func (s *Stmt) BindInputStream(idx int, stream dbc.InputStream, length int64) error {
	if stream == nil {
		return dbcerr.Newf(dbcerr.BindError, "nil input stream at parameter %d", idx)
	}
	buf := make([]byte, 0, length)
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if n < 0 {
			break // EOF per spec.md §4.5
		}
		if err != nil {
			return dbcerr.Wrap(dbcerr.BindError, err, "reading input stream for binding")
		}
	}
	return s.bind(idx, buf)
}

func (s *Stmt) snapshotArgs() ([]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.orphaned {
		return nil, dbcerr.New(dbcerr.StatementClosed, "execute on closed statement")
	}
	out := make([]any, len(s.args))
	copy(out, s.args)
	return out, nil
}

func (s *Stmt) ExecuteQuery(ctx context.Context) (dbc.ResultSet, error) {
	args, err := s.snapshotArgs()
	if err != nil {
		return nil, err
	}
	return s.owner.withLockResultSet(ctx, s.native, args)
}

func (s *Stmt) ExecuteUpdate(ctx context.Context) (uint64, error) {
	args, err := s.snapshotArgs()
	if err != nil {
		return 0, err
	}
	var count uint64
	lockErr := s.owner.withLock(func() error {
		if s.closed || s.orphaned {
			return dbcerr.New(dbcerr.StatementClosed, "execute on closed statement")
		}
		res, err := s.native.ExecContext(ctx, args...)
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "executing prepared update")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dbcerr.Wrap(dbcerr.Backend, err, "reading rows affected")
		}
		count = uint64(n)
		return nil
	})
	return count, lockErr
}

// Execute reports whether the statement produced a result set, per
// spec.md §4.3. A prepared statement's shape (query vs. exec) is not
// known ahead of time from *sql.Stmt, so this treats any statement
// returning columns as a query.
func (s *Stmt) Execute(ctx context.Context) (bool, error) {
	rs, err := s.ExecuteQuery(ctx)
	if err != nil {
		return false, err
	}
	if len(rs.ColumnNames()) == 0 {
		rs.Close()
		return false, nil
	}
	return true, nil
}
