package dbc

import (
	"context"
	"time"
)

// Connection is the capability surface every family shares, per
// spec.md §4.2: close is idempotent, ReturnToPool resets session state
// instead of physically closing (used by the pool control plane).
type Connection interface {
	Close() error
	IsClosed() bool
	URL() *ConnectionURL

	// ReturnToPool resets mutable session state (auto-commit on,
	// isolation at session default, any open transaction rolled back)
	// and leaves the native handle usable for reuse by the pool. It is
	// distinct from Close, which permanently releases the native handle.
	ReturnToPool(ctx context.Context) error
}

// RelationalConnection is the SQL + transactions family (spec.md §4.2).
type RelationalConnection interface {
	Connection

	PrepareStatement(ctx context.Context, sql string) (PreparedStatement, error)
	ExecuteQuery(ctx context.Context, sql string, args ...any) (ResultSet, error)
	ExecuteUpdate(ctx context.Context, sql string, args ...any) (uint64, error)

	SetAutoCommit(ctx context.Context, on bool) error
	AutoCommit() bool

	BeginTransaction(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	TransactionActive() bool

	SetTransactionIsolation(ctx context.Context, level IsolationLevel) error
	TransactionIsolation() IsolationLevel
}

// DocumentConnection is the JSON-collection family (spec.md §4.2).
type DocumentConnection interface {
	Connection

	Collection(name string) Collection
	CreateCollection(ctx context.Context, name string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	DropCollection(ctx context.Context, name string) error
	RunCommand(ctx context.Context, cmd map[string]any) (map[string]any, error)
	CreateDocument(ctx context.Context, collection string, doc map[string]any) (id any, err error)
}

// Collection is a single document collection within a DocumentConnection.
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc map[string]any) (id any, err error)
	FindOne(ctx context.Context, filter map[string]any) (map[string]any, error)
	Find(ctx context.Context, filter map[string]any) (DocumentCursor, error)
	UpdateOne(ctx context.Context, filter, update map[string]any) (matched, modified int64, err error)
	DeleteOne(ctx context.Context, filter map[string]any) (deleted int64, err error)
}

// DocumentCursor iterates the results of Collection.Find.
type DocumentCursor interface {
	Next(ctx context.Context) bool
	Decode() (map[string]any, error)
	Close(ctx context.Context) error
}

// ColumnarConnection is the CQL (Cassandra/ScyllaDB-style) family
// (spec.md §4.2), with bound-parameter prepared statements.
type ColumnarConnection interface {
	Connection

	ExecuteQuery(ctx context.Context, cql string, args ...any) (ResultSet, error)
	ExecuteUpdate(ctx context.Context, cql string, args ...any) (uint64, error)
	PrepareStatement(ctx context.Context, cql string) (PreparedStatement, error)
}

// KVConnection exposes opaque commands over a key-value store
// (spec.md §4.2): ping plus untyped argument lists, since the core does
// not standardize a command vocabulary across KV backends.
type KVConnection interface {
	Connection

	Ping(ctx context.Context) error
	Do(ctx context.Context, args ...any) (any, error)
}

// ParamType enumerates the recognized prepared-statement parameter types
// from spec.md §4.3.
type ParamType int

const (
	ParamInt32 ParamType = iota
	ParamInt64
	ParamDouble
	ParamBool
	ParamString
	ParamNull
	ParamDate
	ParamTimestamp
	ParamTime
	ParamBytes
	ParamBlob
	ParamInputStream
)

// PreparedStatement is an iterator-producing statement bound to a live
// connection, per spec.md §4.3. Binding is positional and 1-indexed.
type PreparedStatement interface {
	BindInt32(paramIndex int, v int32) error
	BindInt64(paramIndex int, v int64) error
	BindDouble(paramIndex int, v float64) error
	BindBool(paramIndex int, v bool) error
	BindString(paramIndex int, v string) error
	BindNull(paramIndex int) error
	BindDate(paramIndex int, v time.Time) error
	BindTimestamp(paramIndex int, v time.Time) error
	BindTime(paramIndex int, v time.Time) error
	BindBytes(paramIndex int, v []byte) error
	BindBlob(paramIndex int, v *Blob) error
	BindInputStream(paramIndex int, stream InputStream, length int64) error

	ExecuteQuery(ctx context.Context) (ResultSet, error)
	ExecuteUpdate(ctx context.Context) (uint64, error)
	Execute(ctx context.Context) (hasResultSet bool, err error)

	Close() error
	IsClosed() bool
}

// ResultSet iterates rows/documents produced by a query, per spec.md §4.4.
// Cursor states: BEFORE_FIRST (initial) -> ON_ROW -> AFTER_LAST.
type ResultSet interface {
	Next(ctx context.Context) (bool, error)
	IsBeforeFirst() bool
	IsAfterLast() bool
	Row() int64

	ColumnNames() []string
	ColumnIndex(name string) (int, error)

	IsNull(col int) (bool, error)
	GetInt32(col int) (int32, error)
	GetInt64(col int) (int64, error)
	GetDouble(col int) (float64, error)
	GetBool(col int) (bool, error)
	GetString(col int) (string, error)
	GetDate(col int) (time.Time, error)
	GetTimestamp(col int) (time.Time, error)
	GetTime(col int) (time.Time, error)
	GetBytes(col int) ([]byte, error)
	GetBlob(col int) (*Blob, error)
	GetBinaryStream(col int) (InputStream, error)

	Close() error
	IsClosed() bool
}
