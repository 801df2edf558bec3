// Package firebird registers the Firebird dbc driver, fronting
// github.com/nakagami/firebirdsql through the shared sqlcommon adapter.
package firebird

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/nakagami/firebirdsql"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
	"github.com/oarkflow/dbc/drivers/sqlcommon"
)

const driverName = "firebirdsql"

// firebirdDriver is a buffered-model relational driver (spec.md §9).
type firebirdDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&firebirdDriver{})
}

func (d *firebirdDriver) Scheme() string { return "firebird" }

func (d *firebirdDriver) AcceptsURL(u *dbc.ConnectionURL) bool { return u.Scheme == "firebird" }

func (d *firebirdDriver) Family() dbc.Family { return dbc.FamilyRelational }

func (d *firebirdDriver) ConnectRelational(ctx context.Context, u *dbc.ConnectionURL) (dbc.RelationalConnection, error) {
	dsn := buildDSN(u)
	conn, err := sqlcommon.Open(ctx, driverName, dsn, u, dbc.FirebirdIsolations, false)
	if err != nil {
		return nil, err
	}
	return &reservedWordConn{RelationalConnection: conn}, nil
}

// buildDSN translates a parsed dbc.ConnectionURL into
// nakagami/firebirdsql's user:password@host:port/path DSN grammar.
func buildDSN(u *dbc.ConnectionURL) string {
	host := u.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port
	if port == 0 {
		port = 3050
	}
	return fmt.Sprintf("%s:%s@%s:%d/%s", u.Username, u.Password, host, port, u.Target)
}

// reservedWords is the small set Firebird rejects when used unquoted as
// an identifier; "value" is the canonical case the original exercises.
var reservedWords = map[string]struct{}{
	"value":  {},
	"date":   {},
	"time":   {},
	"type":   {},
	"position": {},
	"left":   {},
	"right":  {},
}

var identifierPattern = regexp.MustCompile(`"[^"]*"|'[^']*'|[A-Za-z_][A-Za-z0-9_]*`)

// reservedWordConn wraps sqlcommon's Conn to reject statements that
// reference a reserved word as a bare (unquoted) identifier with
// dbcerr.ParseError, rather than forwarding Firebird's own confusing
// backend error for the same condition (SPEC_FULL.md §10).
type reservedWordConn struct {
	dbc.RelationalConnection
}

func (c *reservedWordConn) PrepareStatement(ctx context.Context, query string) (dbc.PreparedStatement, error) {
	if word, bad := findUnquotedReservedWord(query); bad {
		return nil, dbcerr.Newf(dbcerr.ParseError, "unquoted reserved word %q in statement; quote it as \"%s\"", word, word)
	}
	return c.RelationalConnection.PrepareStatement(ctx, query)
}

func (c *reservedWordConn) ExecuteQuery(ctx context.Context, query string, args ...any) (dbc.ResultSet, error) {
	if word, bad := findUnquotedReservedWord(query); bad {
		return nil, dbcerr.Newf(dbcerr.ParseError, "unquoted reserved word %q in statement; quote it as \"%s\"", word, word)
	}
	return c.RelationalConnection.ExecuteQuery(ctx, query, args...)
}

func (c *reservedWordConn) ExecuteUpdate(ctx context.Context, query string, args ...any) (uint64, error) {
	if word, bad := findUnquotedReservedWord(query); bad {
		return 0, dbcerr.Newf(dbcerr.ParseError, "unquoted reserved word %q in statement; quote it as \"%s\"", word, word)
	}
	return c.RelationalConnection.ExecuteUpdate(ctx, query, args...)
}

func findUnquotedReservedWord(query string) (string, bool) {
	for _, tok := range identifierPattern.FindAllString(query, -1) {
		if strings.HasPrefix(tok, `"`) || strings.HasPrefix(tok, "'") {
			continue // quoted, Firebird treats it as a literal identifier
		}
		if _, reserved := reservedWords[strings.ToLower(tok)]; reserved {
			return tok, true
		}
	}
	return "", false
}
