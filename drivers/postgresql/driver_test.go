package postgresql

import (
	"strings"
	"testing"

	"github.com/oarkflow/dbc"
)

func TestBuildDSNIncludesSSLModeDefault(t *testing.T) {
	u := &dbc.ConnectionURL{Host: "localhost", Port: 5432, Target: "appdb", Username: "app"}
	dsn := buildDSN(u)
	for _, want := range []string{"host=localhost", "port=5432", "dbname=appdb", "user=app", "sslmode=disable"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("dsn %q missing %q", dsn, want)
		}
	}
}

func TestBuildDSNHonorsExplicitSSLMode(t *testing.T) {
	u := &dbc.ConnectionURL{Target: "appdb", Options: map[string]string{"sslmode": "require"}}
	dsn := buildDSN(u)
	if !strings.Contains(dsn, "sslmode=require") {
		t.Fatalf("expected explicit sslmode to be honored, got %q", dsn)
	}
	if strings.Count(dsn, "sslmode=") != 1 {
		t.Fatalf("expected exactly one sslmode entry, got %q", dsn)
	}
}

func TestAcceptsURLAcceptsBothSchemeSpellings(t *testing.T) {
	d := &postgresDriver{}
	if !d.AcceptsURL(&dbc.ConnectionURL{Scheme: "postgresql"}) {
		t.Fatal("expected postgresql scheme accepted")
	}
	if !d.AcceptsURL(&dbc.ConnectionURL{Scheme: "postgres"}) {
		t.Fatal("expected postgres scheme accepted")
	}
}
