package sqlcommon

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

// columnIndex builds a first-occurrence-wins name->index map, since SQL
// result sets permit duplicate column names (e.g. a join on the same
// column from two tables) and spec.md §4.4 only requires ColumnIndex to
// resolve *a* matching column, not disambiguate duplicates.
func columnIndex(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		key := strings.ToLower(n)
		if _, exists := idx[key]; !exists {
			idx[key] = i + 1
		}
	}
	return idx
}

// rowState tracks the three-state cursor model common to both result set
// implementations: BEFORE_FIRST, ON_ROW, AFTER_LAST (spec.md §4.4).
type rowState struct {
	row        int64
	beforeFirst bool
	afterLast   bool
}

func newRowState() rowState { return rowState{beforeFirst: true} }

func (s *rowState) advance(ok bool) {
	s.beforeFirst = false
	if !ok {
		s.afterLast = true
		return
	}
	s.row++
}

// cellAt reports whether a database/sql scan destination (already
// populated by Scan into *any) holds SQL NULL. The typed get* helpers
// below map a NULL cell to their type's zero value, matching DESIGN.md's
// Open Question 2 decision for the relational family.
func cellAt(v any) (isNull bool) {
	return v == nil
}

// --- cursor-model result set (SQLite) ---

// cursorResultSet shares its owning Conn's mutex: rows live on the wire
// until the caller advances or closes, so every access must be
// serialized with any other use of the same physical connection
// (spec.md §9's cursor-model classification).
type cursorResultSet struct {
	owner   *Conn
	rows    *sql.Rows
	names   []string
	index   map[string]int
	state   rowState
	current []any
	closed  bool
	orphaned bool
}

func newCursorResultSet(owner *Conn, rows *sql.Rows) (*cursorResultSet, error) {
	names, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "reading column names")
	}
	rs := &cursorResultSet{
		owner: owner,
		rows:  rows,
		names: names,
		index: columnIndex(names),
		state: newRowState(),
	}
	// newCursorResultSet only ever runs inside a withLock closure
	// (ExecuteQuery, withLockResultSet), so owner.mu is already held —
	// trackLocked, not track.
	owner.trackLocked(rs)
	return rs, nil
}

// orphan is called by the owning Conn's Close, which already holds
// owner.mu, to invalidate this result set without touching its
// (already-being-finalized) native handle a second time. It must not
// lock owner.mu itself.
func (rs *cursorResultSet) orphan() {
	if rs.orphaned || rs.closed {
		return
	}
	rs.orphaned = true
	rs.rows.Close()
}

// IsClosed and Close take owner.mu directly, the same serialization
// point Next uses — rs.closed/rs.orphaned are otherwise unprotected
// outside a query in flight.
func (rs *cursorResultSet) IsClosed() bool {
	rs.owner.mu.Lock()
	defer rs.owner.mu.Unlock()
	return rs.closed || rs.orphaned
}

func (rs *cursorResultSet) Close() error {
	rs.owner.mu.Lock()
	if rs.closed {
		rs.owner.mu.Unlock()
		return nil
	}
	rs.closed = true
	orphaned := rs.orphaned
	rs.owner.mu.Unlock()

	if orphaned {
		return nil
	}
	rs.owner.untrack(rs)
	if err := rs.rows.Close(); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "closing result set")
	}
	return nil
}

func (rs *cursorResultSet) Next(ctx context.Context) (bool, error) {
	var ok bool
	err := rs.owner.withLock(func() error {
		if rs.closed || rs.orphaned {
			return dbcerr.New(dbcerr.ResultClosed, "next on closed result set")
		}
		ok = rs.rows.Next()
		if ok {
			dest := make([]any, len(rs.names))
			ptrs := make([]any, len(rs.names))
			for i := range dest {
				ptrs[i] = &dest[i]
			}
			if err := rs.rows.Scan(ptrs...); err != nil {
				return dbcerr.Wrap(dbcerr.Backend, err, "scanning row")
			}
			rs.current = dest
		} else if rerr := rs.rows.Err(); rerr != nil {
			return dbcerr.Wrap(dbcerr.Backend, rerr, "iterating rows")
		} else {
			rs.current = nil
		}
		rs.state.advance(ok)
		return nil
	})
	return ok, err
}

func (rs *cursorResultSet) IsBeforeFirst() bool { return rs.state.beforeFirst }
func (rs *cursorResultSet) IsAfterLast() bool   { return rs.state.afterLast }
func (rs *cursorResultSet) Row() int64          { return rs.state.row }
func (rs *cursorResultSet) ColumnNames() []string { return rs.names }

func (rs *cursorResultSet) ColumnIndex(name string) (int, error) {
	return columnIndexLookup(rs.index, name)
}

func (rs *cursorResultSet) cell(col int) (any, error) {
	rs.owner.mu.Lock()
	defer rs.owner.mu.Unlock()
	if rs.state.beforeFirst || rs.state.afterLast {
		return nil, dbcerr.New(dbcerr.NoCurrentRow, "no current row")
	}
	if col < 1 || col > len(rs.current) {
		return nil, dbcerr.Newf(dbcerr.BindError, "column index %d out of range", col)
	}
	return rs.current[col-1], nil
}

func (rs *cursorResultSet) IsNull(col int) (bool, error) {
	v, err := rs.cell(col)
	if err != nil {
		return false, err
	}
	return cellAt(v), nil
}

func (rs *cursorResultSet) GetInt32(col int) (int32, error)       { return getInt32(rs.cell(col)) }
func (rs *cursorResultSet) GetInt64(col int) (int64, error)       { return getInt64(rs.cell(col)) }
func (rs *cursorResultSet) GetDouble(col int) (float64, error)    { return getDouble(rs.cell(col)) }
func (rs *cursorResultSet) GetBool(col int) (bool, error)         { return getBool(rs.cell(col)) }
func (rs *cursorResultSet) GetString(col int) (string, error)     { return getString(rs.cell(col)) }
func (rs *cursorResultSet) GetDate(col int) (time.Time, error)    { return getTime(rs.cell(col)) }
func (rs *cursorResultSet) GetTimestamp(col int) (time.Time, error) { return getTime(rs.cell(col)) }
func (rs *cursorResultSet) GetTime(col int) (time.Time, error)    { return getTime(rs.cell(col)) }
func (rs *cursorResultSet) GetBytes(col int) ([]byte, error)      { return getBytes(rs.cell(col)) }

func (rs *cursorResultSet) GetBlob(col int) (*dbc.Blob, error) {
	b, err := getBytes(rs.cell(col))
	if err != nil {
		return nil, err
	}
	return dbc.NewBlob(b), nil
}

func (rs *cursorResultSet) GetBinaryStream(col int) (dbc.InputStream, error) {
	b, err := getBytes(rs.cell(col))
	if err != nil {
		return nil, err
	}
	return dbc.NewMemoryInputStream(b), nil
}

// --- buffered-model result set (MySQL, PostgreSQL, Firebird) ---

// bufferedResultSet is fully materialized before Next is ever called, so
// it no longer contends with the owning Conn's mutex at all (spec.md
// §9's buffered-model classification). It is independently safe to read
// after its originating query returns.
type bufferedResultSet struct {
	names  []string
	index  map[string]int
	data   [][]any
	state  rowState
	closed bool
}

func newBufferedResultSet(rows *sql.Rows) (*bufferedResultSet, error) {
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "reading column names")
	}
	var data [][]any
	for rows.Next() {
		dest := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, dbcerr.Wrap(dbcerr.Backend, err, "scanning row")
		}
		data = append(data, dest)
	}
	if err := rows.Err(); err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "iterating rows")
	}
	return &bufferedResultSet{
		names: names,
		index: columnIndex(names),
		state: newRowState(),
		data:  data,
	}, nil
}

func (rs *bufferedResultSet) orphan() { rs.closed = true }

func (rs *bufferedResultSet) IsClosed() bool { return rs.closed }

func (rs *bufferedResultSet) Close() error {
	rs.closed = true
	return nil
}

func (rs *bufferedResultSet) Next(ctx context.Context) (bool, error) {
	if rs.closed {
		return false, dbcerr.New(dbcerr.ResultClosed, "next on closed result set")
	}
	ok := rs.state.row < int64(len(rs.data))
	rs.state.advance(ok)
	return ok, nil
}

func (rs *bufferedResultSet) IsBeforeFirst() bool   { return rs.state.beforeFirst }
func (rs *bufferedResultSet) IsAfterLast() bool     { return rs.state.afterLast }
func (rs *bufferedResultSet) Row() int64            { return rs.state.row }
func (rs *bufferedResultSet) ColumnNames() []string { return rs.names }

func (rs *bufferedResultSet) ColumnIndex(name string) (int, error) {
	return columnIndexLookup(rs.index, name)
}

func (rs *bufferedResultSet) cell(col int) (any, error) {
	if rs.state.beforeFirst || rs.state.afterLast {
		return nil, dbcerr.New(dbcerr.NoCurrentRow, "no current row")
	}
	current := rs.data[rs.state.row-1]
	if col < 1 || col > len(current) {
		return nil, dbcerr.Newf(dbcerr.BindError, "column index %d out of range", col)
	}
	return current[col-1], nil
}

func (rs *bufferedResultSet) IsNull(col int) (bool, error) {
	v, err := rs.cell(col)
	if err != nil {
		return false, err
	}
	return cellAt(v), nil
}

func (rs *bufferedResultSet) GetInt32(col int) (int32, error)       { return getInt32(rs.cell(col)) }
func (rs *bufferedResultSet) GetInt64(col int) (int64, error)       { return getInt64(rs.cell(col)) }
func (rs *bufferedResultSet) GetDouble(col int) (float64, error)    { return getDouble(rs.cell(col)) }
func (rs *bufferedResultSet) GetBool(col int) (bool, error)         { return getBool(rs.cell(col)) }
func (rs *bufferedResultSet) GetString(col int) (string, error)     { return getString(rs.cell(col)) }
func (rs *bufferedResultSet) GetDate(col int) (time.Time, error)    { return getTime(rs.cell(col)) }
func (rs *bufferedResultSet) GetTimestamp(col int) (time.Time, error) { return getTime(rs.cell(col)) }
func (rs *bufferedResultSet) GetTime(col int) (time.Time, error)    { return getTime(rs.cell(col)) }
func (rs *bufferedResultSet) GetBytes(col int) ([]byte, error)      { return getBytes(rs.cell(col)) }

func (rs *bufferedResultSet) GetBlob(col int) (*dbc.Blob, error) {
	b, err := getBytes(rs.cell(col))
	if err != nil {
		return nil, err
	}
	return dbc.NewBlob(b), nil
}

func (rs *bufferedResultSet) GetBinaryStream(col int) (dbc.InputStream, error) {
	b, err := getBytes(rs.cell(col))
	if err != nil {
		return nil, err
	}
	return dbc.NewMemoryInputStream(b), nil
}

// --- shared cell-conversion helpers ---

func columnIndexLookup(index map[string]int, name string) (int, error) {
	if i, ok := index[strings.ToLower(name)]; ok {
		return i, nil
	}
	return 0, dbcerr.Newf(dbcerr.BindError, "unknown column %q", name)
}

func getInt32(v any, err error) (int32, error) {
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return int32(n), nil
	case int32:
		return n, nil
	case float64:
		return int32(n), nil
	case []byte:
		return parseInt32(string(n))
	case string:
		return parseInt32(n)
	default:
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to int32", v)
	}
}

func getInt64(v any, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return parseInt64(string(n))
	case string:
		return parseInt64(n)
	default:
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to int64", v)
	}
}

func getDouble(v any, err error) (float64, error) {
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case []byte:
		return parseFloat64(string(n))
	case string:
		return parseFloat64(n)
	default:
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to float64", v)
	}
}

func getBool(v any, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	switch n := v.(type) {
	case nil:
		return false, nil
	case bool:
		return n, nil
	case int64:
		return n != 0, nil
	case []byte:
		return n[0] != 0 && string(n) != "false" && string(n) != "0", nil
	default:
		return false, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to bool", v)
	}
}

func getString(v any, err error) (string, error) {
	if err != nil {
		return "", err
	}
	switch n := v.(type) {
	case nil:
		return "", nil
	case string:
		return n, nil
	case []byte:
		return string(n), nil
	case time.Time:
		return n.Format(time.RFC3339), nil
	default:
		return "", dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to string", v)
	}
}

func getBytes(v any, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	switch n := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return n, nil
	case string:
		return []byte(n), nil
	default:
		return nil, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to bytes", v)
	}
}

func getTime(v any, err error) (time.Time, error) {
	if err != nil {
		return time.Time{}, err
	}
	switch n := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return n, nil
	case []byte:
		return parseTime(string(n))
	case string:
		return parseTime(n)
	default:
		return time.Time{}, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot convert %T to time.Time", v)
	}
}

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot parse %q as int32", s)
	}
	return int32(n), nil
}

func parseInt64(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot parse %q as int64", s)
	}
	return n, nil
}

func parseFloat64(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot parse %q as float64", s)
	}
	return f, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, dbcerr.Newf(dbcerr.TypeNotSupported, "cannot parse %q as time.Time", s)
}
