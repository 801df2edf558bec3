package firebird

import (
	"testing"

	"github.com/oarkflow/dbc"
)

func TestFindUnquotedReservedWordDetectsBareUsage(t *testing.T) {
	word, bad := findUnquotedReservedWord(`SELECT value FROM readings`)
	if !bad || word != "value" {
		t.Fatalf("expected to flag bare 'value', got %q bad=%v", word, bad)
	}
}

func TestFindUnquotedReservedWordIgnoresQuotedIdentifier(t *testing.T) {
	_, bad := findUnquotedReservedWord(`SELECT "value" FROM readings`)
	if bad {
		t.Fatal("expected quoted reserved word to be accepted")
	}
}

func TestFindUnquotedReservedWordIgnoresStringLiteral(t *testing.T) {
	_, bad := findUnquotedReservedWord(`SELECT id FROM readings WHERE label = 'value'`)
	if bad {
		t.Fatal("expected reserved word inside a string literal to be ignored")
	}
}

func TestFindUnquotedReservedWordAllowsCleanQuery(t *testing.T) {
	_, bad := findUnquotedReservedWord(`SELECT id, amount FROM ledger`)
	if bad {
		t.Fatal("expected clean query to pass")
	}
}

func TestBuildDSNFormatsUserHostPort(t *testing.T) {
	u := &dbc.ConnectionURL{
		Username: "SYSDBA",
		Password: "masterkey",
		Host:     "localhost",
		Port:     3050,
		Target:   "/data/EMPLOYEE.FDB",
	}
	got := buildDSN(u)
	want := "SYSDBA:masterkey@localhost:3050//data/EMPLOYEE.FDB"
	if got != want {
		t.Fatalf("dsn = %q, want %q", got, want)
	}
}
