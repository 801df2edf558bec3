package dbc

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/oarkflow/dbc/dbcerr"
)

// ProductPrefix is the single literal identifying this library family in a
// connection URL, per spec.md §6.1.
const ProductPrefix = "dbc"

// ConnectionURL is the parsed form of a dbc: connection string:
//
//	dbc:<scheme>://[user-info@]<host>[:<port>]/<target>[?options]
type ConnectionURL struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
	Target   string // database name, keyspace, or db-index
	Options  map[string]string
	Raw      string
}

// ParseURL parses a canonical dbc connection string. SQLite has no
// host/port (embedded backend) and its Target is a filesystem path or the
// literal ":memory:"; Firebird has no host/port when Target is an absolute
// local filesystem path.
func ParseURL(raw string) (*ConnectionURL, error) {
	prefix := ProductPrefix + ":"
	if !strings.HasPrefix(raw, prefix) {
		return nil, dbcerr.Newf(dbcerr.ParseError, "connection URL %q missing %q product prefix", raw, prefix)
	}
	rest := strings.TrimPrefix(raw, prefix)

	schemeEnd := strings.Index(rest, "://")
	if schemeEnd < 0 {
		return nil, dbcerr.Newf(dbcerr.ParseError, "connection URL %q missing scheme separator", raw)
	}
	scheme := rest[:schemeEnd]
	if scheme == "" {
		return nil, dbcerr.Newf(dbcerr.ParseError, "connection URL %q has empty scheme", raw)
	}

	// Reassemble as a standard URL (scheme://...) so net/url can parse the
	// authority/path/query skeleton; the dbc: product-prefix split above is
	// the only bespoke part of this grammar.
	u, err := url.Parse(scheme + "://" + rest[schemeEnd+3:])
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.ParseError, err, "parsing connection URL")
	}

	cu := &ConnectionURL{
		Scheme:  u.Scheme,
		Host:    u.Hostname(),
		Target:  strings.TrimPrefix(u.Path, "/"),
		Options: map[string]string{},
		Raw:     raw,
	}

	if u.User != nil {
		cu.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cu.Password = pw
		}
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, dbcerr.Wrap(dbcerr.ParseError, err, "parsing port")
		}
		cu.Port = port
	}

	for k, vs := range u.Query() {
		if len(vs) > 0 {
			cu.Options[k] = vs[len(vs)-1]
		}
	}

	switch cu.Scheme {
	case "sqlite":
		// dbc:sqlite://./local.db, dbc:sqlite://:memory: and
		// dbc:sqlite:///abs/path.db carry no authority: everything before
		// '?' is the path or literal, taken verbatim because net/url splits
		// ":memory:" into host and port and drops an absolute path's
		// leading slash.
		cu.Target, _, _ = strings.Cut(rest[schemeEnd+3:], "?")
		cu.Host = ""
	case "firebird":
		// dbc:firebird:///abs/path/EMPLOYEE.FDB has no host; its absolute
		// path lives in Path, already stripped of its leading slash above,
		// so restore it. With a host, Target is what follows the host's
		// slash: an alias, or an absolute path written with a second slash.
		if cu.Host == "" && strings.HasPrefix(u.Path, "/") {
			cu.Target = u.Path
		}
	case "redis":
		if cu.Target == "" {
			cu.Target = "0"
		}
	}

	return cu, nil
}

// Option returns the named query option and whether it was present.
func (u *ConnectionURL) Option(name string) (string, bool) {
	v, ok := u.Options[name]
	return v, ok
}
