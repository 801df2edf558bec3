// Package sqlite registers the SQLite dbc driver, fronting
// github.com/mattn/go-sqlite3 through the shared sqlcommon adapter.
package sqlite

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/drivers/sqlcommon"
)

const driverName = "sqlite3"

// sqliteDriver is the canonical cursor-model relational driver (spec.md
// §9): a single file-backed connection with one cursor live on the wire
// at a time, so its result sets share the connection mutex rather than
// materializing ahead of time.
type sqliteDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&sqliteDriver{})
}

func (d *sqliteDriver) Scheme() string { return "sqlite" }

func (d *sqliteDriver) AcceptsURL(u *dbc.ConnectionURL) bool { return u.Scheme == "sqlite" }

func (d *sqliteDriver) Family() dbc.Family { return dbc.FamilyRelational }

func (d *sqliteDriver) ConnectRelational(ctx context.Context, u *dbc.ConnectionURL) (dbc.RelationalConnection, error) {
	dsn := buildDSN(u)
	return sqlcommon.Open(ctx, driverName, dsn, u, dbc.SQLiteIsolations, true)
}

// buildDSN resolves the file path or ":memory:" target, per
// dbc:sqlite:///absolute/path.db and dbc:sqlite://:memory: forms.
func buildDSN(u *dbc.ConnectionURL) string {
	target := u.Target
	if target == "" {
		target = u.Host
	}
	if target == "" {
		target = ":memory:"
	}
	if len(u.Options) == 0 {
		return target
	}
	dsn := target + "?"
	sep := ""
	for k, v := range u.Options {
		dsn += sep + k + "=" + v
		sep = "&"
	}
	return dsn
}
