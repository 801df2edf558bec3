package redis

import (
	"testing"

	"github.com/oarkflow/dbc"
)

func TestAddrDefaultsHostAndPort(t *testing.T) {
	if got := addr(&dbc.ConnectionURL{}); got != "127.0.0.1:6379" {
		t.Fatalf("addr = %q, want 127.0.0.1:6379", got)
	}
}

func TestAddrHonorsExplicitHostPort(t *testing.T) {
	u := &dbc.ConnectionURL{Host: "cache.internal", Port: 6380}
	if got := addr(u); got != "cache.internal:6380" {
		t.Fatalf("addr = %q, want cache.internal:6380", got)
	}
}

func TestParseDBIndexParsesTarget(t *testing.T) {
	n, err := parseDBIndex("3")
	if err != nil || n != 3 {
		t.Fatalf("parseDBIndex = %d, %v; want 3, nil", n, err)
	}
}

func TestParseDBIndexRejectsEmptyTarget(t *testing.T) {
	if _, err := parseDBIndex(""); err == nil {
		t.Fatal("expected error for empty target")
	}
}

func TestAcceptsURLOnlyRedisScheme(t *testing.T) {
	d := &redisDriver{}
	if !d.AcceptsURL(&dbc.ConnectionURL{Scheme: "redis"}) {
		t.Fatal("expected redis scheme to be accepted")
	}
	if d.AcceptsURL(&dbc.ConnectionURL{Scheme: "mongodb"}) {
		t.Fatal("expected mongodb scheme to be rejected")
	}
}
