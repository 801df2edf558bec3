package mysql

import (
	"strings"
	"testing"

	"github.com/oarkflow/dbc"
)

func TestBuildDSNDefaultsHostAndPort(t *testing.T) {
	u := &dbc.ConnectionURL{Username: "app", Password: "secret", Target: "appdb"}
	dsn := buildDSN(u)
	if !strings.Contains(dsn, "app:secret@tcp(127.0.0.1:3306)/appdb") {
		t.Fatalf("unexpected dsn: %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Fatalf("expected parseTime=true appended, got %q", dsn)
	}
}

func TestBuildDSNHonorsExplicitHostPort(t *testing.T) {
	u := &dbc.ConnectionURL{Host: "db.internal", Port: 3307, Target: "orders"}
	dsn := buildDSN(u)
	if !strings.Contains(dsn, "tcp(db.internal:3307)/orders") {
		t.Fatalf("unexpected dsn: %q", dsn)
	}
}

func TestAcceptsURLOnlyMySQLScheme(t *testing.T) {
	d := &mysqlDriver{}
	if !d.AcceptsURL(&dbc.ConnectionURL{Scheme: "mysql"}) {
		t.Fatal("expected mysql scheme to be accepted")
	}
	if d.AcceptsURL(&dbc.ConnectionURL{Scheme: "postgresql"}) {
		t.Fatal("expected postgresql scheme to be rejected")
	}
}
