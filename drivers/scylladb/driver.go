// Package scylladb registers the ScyllaDB dbc driver, fronting
// github.com/gocql/gocql to implement dbc.ColumnarConnection. gocql
// transparently prepares and caches statements per-query-string, so this
// driver's PreparedStatement is a thin positional-argument binder rather
// than a distinct wire-level prepare step.
package scylladb

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

type scyllaDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&scyllaDriver{})
}

func (d *scyllaDriver) Scheme() string { return "scylladb" }

func (d *scyllaDriver) AcceptsURL(u *dbc.ConnectionURL) bool { return u.Scheme == "scylladb" }

func (d *scyllaDriver) Family() dbc.Family { return dbc.FamilyColumnar }

func (d *scyllaDriver) ConnectColumnar(ctx context.Context, u *dbc.ConnectionURL) (dbc.ColumnarConnection, error) {
	cluster := gocql.NewCluster(parseHosts(u.Host)...)
	cluster.Keyspace = u.Target
	cluster.Timeout = 10 * time.Second
	if u.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: u.Username,
			Password: u.Password,
		}
	}
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "connecting to scylladb cluster")
	}
	return &conn{session: session, url: u}, nil
}

// parseHosts splits the comma-separated node list a dbc:scylladb:// URL
// carries in its host component, trimming incidental whitespace around
// each entry.
func parseHosts(host string) []string {
	hosts := strings.Split(host, ",")
	for i, h := range hosts {
		hosts[i] = strings.TrimSpace(h)
	}
	return hosts
}

// conn wraps a *gocql.Session as dbc.ColumnarConnection. The session
// manages its own connection pool to the cluster, so the dbc-level mutex
// only guards the closed flag, not query execution itself.
type conn struct {
	mu      sync.Mutex
	session *gocql.Session
	url     *dbc.ConnectionURL
	closed  bool
}

func (c *conn) URL() *dbc.ConnectionURL { return c.url }

func (c *conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.session.Close()
	return nil
}

func (c *conn) ReturnToPool(ctx context.Context) error { return nil }

func (c *conn) ExecuteQuery(ctx context.Context, cql string, args ...any) (dbc.ResultSet, error) {
	iter := c.session.Query(cql, args...).WithContext(ctx).Iter()
	return newResultSet(iter)
}

func (c *conn) ExecuteUpdate(ctx context.Context, cql string, args ...any) (uint64, error) {
	if err := c.session.Query(cql, args...).WithContext(ctx).Exec(); err != nil {
		return 0, dbcerr.Wrap(dbcerr.Backend, err, "executing cql statement")
	}
	return 0, nil // gocql does not report affected-row counts for non-LWT statements
}

func (c *conn) PrepareStatement(ctx context.Context, cql string) (dbc.PreparedStatement, error) {
	return &stmt{conn: c, cql: cql}, nil
}

// stmt binds positional arguments for later execution via
// *gocql.Session.Query, since gocql itself handles wire-level prepare
// and caching transparently per query string.
type stmt struct {
	mu     sync.Mutex
	conn   *conn
	cql    string
	args   []any
	closed bool
}

func (s *stmt) bind(idx int, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return dbcerr.New(dbcerr.StatementClosed, "bind on closed statement")
	}
	for len(s.args) < idx {
		s.args = append(s.args, nil)
	}
	s.args[idx-1] = v
	return nil
}

func (s *stmt) BindInt32(idx int, v int32) error        { return s.bind(idx, v) }
func (s *stmt) BindInt64(idx int, v int64) error        { return s.bind(idx, v) }
func (s *stmt) BindDouble(idx int, v float64) error     { return s.bind(idx, v) }
func (s *stmt) BindBool(idx int, v bool) error           { return s.bind(idx, v) }
func (s *stmt) BindString(idx int, v string) error       { return s.bind(idx, v) }
func (s *stmt) BindNull(idx int) error                   { return s.bind(idx, nil) }
func (s *stmt) BindDate(idx int, v time.Time) error      { return s.bind(idx, v) }
func (s *stmt) BindTimestamp(idx int, v time.Time) error { return s.bind(idx, v) }
func (s *stmt) BindTime(idx int, v time.Time) error      { return s.bind(idx, v) }
func (s *stmt) BindBytes(idx int, v []byte) error        { return s.bind(idx, v) }

func (s *stmt) BindBlob(idx int, v *dbc.Blob) error {
	length, err := v.Length()
	if err != nil {
		return err
	}
	b, err := v.GetBytes(1, length)
	if err != nil {
		return err
	}
	return s.bind(idx, b)
}

func (s *stmt) BindInputStream(idx int, stream dbc.InputStream, length int64) error {
	buf := make([]byte, 0, length)
	chunk := make([]byte, 4096)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if n < 0 {
			break
		}
		if err != nil {
			return dbcerr.Wrap(dbcerr.BindError, err, "reading input stream for binding")
		}
	}
	return s.bind(idx, buf)
}

func (s *stmt) ExecuteQuery(ctx context.Context) (dbc.ResultSet, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, dbcerr.New(dbcerr.StatementClosed, "execute on closed statement")
	}
	args := append([]any(nil), s.args...)
	s.mu.Unlock()
	return s.conn.ExecuteQuery(ctx, s.cql, args...)
}

func (s *stmt) ExecuteUpdate(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, dbcerr.New(dbcerr.StatementClosed, "execute on closed statement")
	}
	args := append([]any(nil), s.args...)
	s.mu.Unlock()
	return s.conn.ExecuteUpdate(ctx, s.cql, args...)
}

func (s *stmt) Execute(ctx context.Context) (bool, error) {
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

func (s *stmt) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stmt) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// resultSet wraps a *gocql.Iter, materializing rows eagerly since gocql's
// iterator does not expose per-row Scan into arbitrary destinations
// without column metadata known up front; this makes ScyllaDB a
// buffered-model family member like the `database/sql`-backed relational
// buffered drivers (spec.md §9).
type resultSet struct {
	names  []string
	index  map[string]int
	data   [][]any
	row    int64
	before bool
	after  bool
	closed bool
}

func newResultSet(iter *gocql.Iter) (*resultSet, error) {
	cols := iter.Columns()
	names := make([]string, len(cols))
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		if _, exists := index[strings.ToLower(c.Name)]; !exists {
			index[strings.ToLower(c.Name)] = i + 1
		}
	}

	var data [][]any
	for {
		dest := make([]any, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if !iter.Scan(ptrs...) {
			break
		}
		data = append(data, dest)
	}
	if err := iter.Close(); err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "iterating cql result")
	}
	return &resultSet{names: names, index: index, data: data, before: true}, nil
}

func (rs *resultSet) Next(ctx context.Context) (bool, error) {
	if rs.closed {
		return false, dbcerr.New(dbcerr.ResultClosed, "next on closed result set")
	}
	rs.before = false
	if rs.row >= int64(len(rs.data)) {
		rs.after = true
		return false, nil
	}
	rs.row++
	return true, nil
}

func (rs *resultSet) IsBeforeFirst() bool   { return rs.before }
func (rs *resultSet) IsAfterLast() bool     { return rs.after }
func (rs *resultSet) Row() int64            { return rs.row }
func (rs *resultSet) ColumnNames() []string { return rs.names }

func (rs *resultSet) ColumnIndex(name string) (int, error) {
	if i, ok := rs.index[strings.ToLower(name)]; ok {
		return i, nil
	}
	return 0, dbcerr.Newf(dbcerr.BindError, "unknown column %q", name)
}

func (rs *resultSet) cell(col int) (any, error) {
	if rs.before || rs.after {
		return nil, dbcerr.New(dbcerr.NoCurrentRow, "no current row")
	}
	current := rs.data[rs.row-1]
	if col < 1 || col > len(current) {
		return nil, dbcerr.Newf(dbcerr.BindError, "column index %d out of range", col)
	}
	return current[col-1], nil
}

// IsNull reports whether the column holds an explicit CQL null. Per
// DESIGN.md's Open Question 2, typed accessors on a null ScyllaDB column
// fail with dbcerr.NullValue instead of silently returning a zero value,
// since CQL's null and "absent" are a distinction applications rely on.
func (rs *resultSet) IsNull(col int) (bool, error) {
	v, err := rs.cell(col)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

func (rs *resultSet) requireNonNull(col int) (any, error) {
	v, err := rs.cell(col)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, dbcerr.Newf(dbcerr.NullValue, "column %d is null", col)
	}
	return v, nil
}

func (rs *resultSet) GetInt32(col int) (int32, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return 0, err
	}
	n, ok := v.(int32)
	if !ok {
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not int32", col)
	}
	return n, nil
}

func (rs *resultSet) GetInt64(col int) (int64, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	default:
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not int64", col)
	}
}

func (rs *resultSet) GetDouble(col int) (float64, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not float64", col)
	}
	return n, nil
}

func (rs *resultSet) GetBool(col int) (bool, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return false, err
	}
	n, ok := v.(bool)
	if !ok {
		return false, dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not bool", col)
	}
	return n, nil
}

func (rs *resultSet) GetString(col int) (string, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return "", err
	}
	switch n := v.(type) {
	case string:
		return n, nil
	case gocql.UUID:
		return n.String(), nil
	default:
		return "", dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not string", col)
	}
}

func (rs *resultSet) GetDate(col int) (time.Time, error)      { return rs.getTime(col) }
func (rs *resultSet) GetTimestamp(col int) (time.Time, error) { return rs.getTime(col) }
func (rs *resultSet) GetTime(col int) (time.Time, error)      { return rs.getTime(col) }

func (rs *resultSet) getTime(col int) (time.Time, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return time.Time{}, err
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not time.Time", col)
	}
	return t, nil
}

func (rs *resultSet) GetBytes(col int) ([]byte, error) {
	v, err := rs.requireNonNull(col)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, dbcerr.Newf(dbcerr.TypeNotSupported, "column %d is not bytes", col)
	}
	return b, nil
}

func (rs *resultSet) GetBlob(col int) (*dbc.Blob, error) {
	b, err := rs.GetBytes(col)
	if err != nil {
		return nil, err
	}
	return dbc.NewBlob(b), nil
}

// GetBinaryStream returns a bounded in-memory stream over a blob column,
// grounded on cpp_dbc's ScyllaMemoryInputStream: ScyllaDB has no
// server-side streaming BLOB cursor, so the whole value is read up front.
func (rs *resultSet) GetBinaryStream(col int) (dbc.InputStream, error) {
	b, err := rs.GetBytes(col)
	if err != nil {
		return nil, err
	}
	return dbc.NewMemoryInputStream(b), nil
}

func (rs *resultSet) Close() error {
	rs.closed = true
	return nil
}

func (rs *resultSet) IsClosed() bool { return rs.closed }
