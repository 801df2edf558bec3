package dbc

import (
	"strings"

	"github.com/oarkflow/dbc/dbcerr"
)

// IsolationLevel is the closed set of transaction isolation levels
// spec.md §4.2.1 requires every relational driver to support, translating
// into its own nearest-stronger backend semantics where an exact level is
// unavailable.
type IsolationLevel int

const (
	IsolationNone IsolationLevel = iota
	IsolationReadUncommitted
	IsolationReadCommitted
	IsolationRepeatableRead
	IsolationSerializable
)

func (l IsolationLevel) String() string {
	switch l {
	case IsolationNone:
		return "NONE"
	case IsolationReadUncommitted:
		return "READ_UNCOMMITTED"
	case IsolationReadCommitted:
		return "READ_COMMITTED"
	case IsolationRepeatableRead:
		return "REPEATABLE_READ"
	case IsolationSerializable:
		return "SERIALIZABLE"
	default:
		return "UNKNOWN"
	}
}

// ParseIsolationLevel maps the configuration strings from spec.md §6.3
// (case-insensitive) onto the enum. Unrecognized strings fail with
// dbcerr.ParseError.
func ParseIsolationLevel(s string) (IsolationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return IsolationNone, nil
	case "read_uncommitted":
		return IsolationReadUncommitted, nil
	case "read_committed":
		return IsolationReadCommitted, nil
	case "repeatable_read":
		return IsolationRepeatableRead, nil
	case "serializable":
		return IsolationSerializable, nil
	default:
		return 0, dbcerr.Newf(dbcerr.ParseError, "unrecognized isolation level %q", s)
	}
}

// IsolationTranslation is a fixed per-backend mapping from the portable
// enum to a backend's native SQL clause for SET TRANSACTION ISOLATION
// LEVEL. Per spec.md §9 "Isolation translation", this table is fixed at
// design time; changing an entry is a breaking change.
type IsolationTranslation map[IsolationLevel]string

// Translate looks up the backend-native clause for level, walking up to
// the next stronger level when the backend's table has no direct entry
// (spec.md §4.2.1: "where a backend lacks a level it is mapped to the
// nearest stronger level").
func (t IsolationTranslation) Translate(level IsolationLevel) (string, error) {
	for l := level; l <= IsolationSerializable; l++ {
		if clause, ok := t[l]; ok {
			return clause, nil
		}
	}
	return "", dbcerr.Newf(dbcerr.IsolationUnsupported, "no mapping for isolation level %s or stronger", level)
}

// MySQLIsolations is the stable per-driver mapping for MySQL, which
// supports all four standard levels natively; NONE has no entry and
// resolves to READ UNCOMMITTED, the next stronger level.
var MySQLIsolations = IsolationTranslation{
	IsolationReadUncommitted: "READ UNCOMMITTED",
	IsolationReadCommitted:   "READ COMMITTED",
	IsolationRepeatableRead:  "REPEATABLE READ",
	IsolationSerializable:    "SERIALIZABLE",
}

// PostgreSQLIsolations maps onto Postgres's three distinct levels; NONE and
// READ_UNCOMMITTED both resolve to Postgres's READ COMMITTED, which is its
// weakest level (Postgres silently treats READ UNCOMMITTED as READ
// COMMITTED server-side, so this mapping mirrors the backend exactly).
var PostgreSQLIsolations = IsolationTranslation{
	IsolationReadCommitted:  "READ COMMITTED",
	IsolationRepeatableRead: "REPEATABLE READ",
	IsolationSerializable:   "SERIALIZABLE",
}

// SQLiteIsolations: SQLite's own locking model only distinguishes
// serialized (default) transactions; every requested level maps to
// SERIALIZABLE, its only and strongest level.
var SQLiteIsolations = IsolationTranslation{
	IsolationSerializable: "",
}

// FirebirdIsolations mirrors Firebird's three supported levels.
var FirebirdIsolations = IsolationTranslation{
	IsolationReadCommitted:  "READ COMMITTED",
	IsolationRepeatableRead: "SNAPSHOT",
	IsolationSerializable:   "SNAPSHOT TABLE STABILITY",
}
