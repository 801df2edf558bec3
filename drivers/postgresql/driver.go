// Package postgresql registers the PostgreSQL dbc driver, fronting
// github.com/lib/pq through the shared sqlcommon adapter.
package postgresql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/drivers/sqlcommon"
)

const driverName = "postgres"

// postgresDriver is a buffered-model relational driver (spec.md §9),
// same classification as MySQL and Firebird.
type postgresDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&postgresDriver{})
}

func (d *postgresDriver) Scheme() string { return "postgresql" }

func (d *postgresDriver) AcceptsURL(u *dbc.ConnectionURL) bool {
	return u.Scheme == "postgresql" || u.Scheme == "postgres"
}

func (d *postgresDriver) Family() dbc.Family { return dbc.FamilyRelational }

func (d *postgresDriver) ConnectRelational(ctx context.Context, u *dbc.ConnectionURL) (dbc.RelationalConnection, error) {
	dsn := buildDSN(u)
	return sqlcommon.Open(ctx, driverName, dsn, u, dbc.PostgreSQLIsolations, false)
}

// buildDSN translates a parsed dbc.ConnectionURL into lib/pq's
// key=value connection string grammar.
func buildDSN(u *dbc.ConnectionURL) string {
	var parts []string
	host := u.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port
	if port == 0 {
		port = 5432
	}
	parts = append(parts, fmt.Sprintf("host=%s", host), fmt.Sprintf("port=%d", port))
	if u.Target != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", u.Target))
	}
	if u.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", u.Username))
	}
	if u.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", u.Password))
	}
	sslmode := "disable"
	for k, v := range u.Options {
		if k == "sslmode" {
			sslmode = v
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}
	parts = append(parts, fmt.Sprintf("sslmode=%s", sslmode))
	return strings.Join(parts, " ")
}
