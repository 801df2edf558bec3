// Package mysql registers the MySQL dbc driver, fronting
// github.com/go-sql-driver/mysql through the shared sqlcommon adapter.
package mysql

import (
	"context"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/drivers/sqlcommon"
)

const driverName = "mysql"

// mysqlDriver is a buffered-model relational driver (spec.md §9): result
// sets are fully materialized before being handed back, matching
// go-sql-driver/mysql's own row-buffering behavior under the hood.
type mysqlDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&mysqlDriver{})
}

func (d *mysqlDriver) Scheme() string { return "mysql" }

func (d *mysqlDriver) AcceptsURL(u *dbc.ConnectionURL) bool { return u.Scheme == "mysql" }

func (d *mysqlDriver) Family() dbc.Family { return dbc.FamilyRelational }

func (d *mysqlDriver) ConnectRelational(ctx context.Context, u *dbc.ConnectionURL) (dbc.RelationalConnection, error) {
	dsn := buildDSN(u)
	return sqlcommon.Open(ctx, driverName, dsn, u, dbc.MySQLIsolations, false)
}

// buildDSN translates a parsed dbc.ConnectionURL into go-sql-driver/mysql's
// own DSN grammar: user:password@tcp(host:port)/dbname?params.
func buildDSN(u *dbc.ConnectionURL) string {
	var cred string
	if u.Username != "" {
		cred = u.Username
		if u.Password != "" {
			cred += ":" + u.Password
		}
		cred += "@"
	}
	host := u.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port
	if port == 0 {
		port = 3306
	}
	dsn := fmt.Sprintf("%stcp(%s:%d)/%s", cred, host, port, u.Target)
	if len(u.Options) == 0 {
		return dsn + "?parseTime=true"
	}
	sep := "?"
	for k, v := range u.Options {
		dsn += sep + k + "=" + v
		sep = "&"
	}
	if _, ok := u.Options["parseTime"]; !ok {
		dsn += "&parseTime=true"
	}
	return dsn
}
