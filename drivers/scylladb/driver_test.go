package scylladb

import (
	"reflect"
	"testing"

	"github.com/oarkflow/dbc"
)

func TestParseHostsSplitsAndTrims(t *testing.T) {
	got := parseHosts("node1, node2 ,node3")
	want := []string{"node1", "node2", "node3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("hosts = %v, want %v", got, want)
	}
}

func TestParseHostsSingleNode(t *testing.T) {
	got := parseHosts("node1")
	want := []string{"node1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("hosts = %v, want %v", got, want)
	}
}

func TestAcceptsURLOnlyScyllaScheme(t *testing.T) {
	d := &scyllaDriver{}
	if !d.AcceptsURL(&dbc.ConnectionURL{Scheme: "scylladb"}) {
		t.Fatal("expected scylladb scheme to be accepted")
	}
	if d.AcceptsURL(&dbc.ConnectionURL{Scheme: "mongodb"}) {
		t.Fatal("expected mongodb scheme to be rejected")
	}
}
