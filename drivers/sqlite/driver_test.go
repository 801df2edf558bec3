package sqlite

import (
	"context"
	"testing"

	"github.com/oarkflow/dbc"
)

func TestBuildDSNDefaultsToInMemory(t *testing.T) {
	if got := buildDSN(&dbc.ConnectionURL{}); got != ":memory:" {
		t.Fatalf("dsn = %q, want :memory:", got)
	}
}

func TestBuildDSNUsesTargetOverHost(t *testing.T) {
	u := &dbc.ConnectionURL{Host: "ignored", Target: "/data/app.db"}
	if got := buildDSN(u); got != "/data/app.db" {
		t.Fatalf("dsn = %q, want /data/app.db", got)
	}
}

func TestBuildDSNFallsBackToHostWhenTargetEmpty(t *testing.T) {
	u := &dbc.ConnectionURL{Host: "/data/app.db"}
	if got := buildDSN(u); got != "/data/app.db" {
		t.Fatalf("dsn = %q, want /data/app.db", got)
	}
}

// TestMemoryRoundTrip drives a real :memory: SQLite connection through the
// full cursor-model path: prepare/execute/next (exercising the trackLocked
// fix that previously self-deadlocked every PrepareStatement and every
// cursor-model ExecuteQuery), a transaction commit and rollback, and a
// BLOB bind/read round trip.
func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := &sqliteDriver{}
	conn, err := d.ConnectRelational(ctx, &dbc.ConnectionURL{})
	if err != nil {
		t.Fatalf("ConnectRelational: %v", err)
	}
	defer conn.Close()

	if _, err := conn.ExecuteUpdate(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, payload BLOB)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	insert, err := conn.PrepareStatement(ctx, `INSERT INTO widgets (id, name, payload) VALUES (?, ?, ?)`)
	if err != nil {
		t.Fatalf("PrepareStatement insert: %v", err)
	}
	defer insert.Close()

	blob := dbc.NewBlob([]byte("binary-payload"))
	if err := insert.BindInt32(1, 1); err != nil {
		t.Fatalf("bind id: %v", err)
	}
	if err := insert.BindString(2, "sprocket"); err != nil {
		t.Fatalf("bind name: %v", err)
	}
	if err := insert.BindBlob(3, blob); err != nil {
		t.Fatalf("bind blob: %v", err)
	}
	if n, err := insert.ExecuteUpdate(ctx); err != nil || n != 1 {
		t.Fatalf("ExecuteUpdate insert: n=%d err=%v", n, err)
	}

	query, err := conn.PrepareStatement(ctx, `SELECT id, name, payload FROM widgets WHERE id = ?`)
	if err != nil {
		t.Fatalf("PrepareStatement select: %v", err)
	}
	defer query.Close()
	if err := query.BindInt32(1, 1); err != nil {
		t.Fatalf("bind select id: %v", err)
	}

	rs, err := query.ExecuteQuery(ctx)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	defer rs.Close()

	ok, err := rs.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected one row")
	}
	if name, err := rs.GetString(2); err != nil || name != "sprocket" {
		t.Fatalf("GetString name = %q err=%v, want sprocket", name, err)
	}
	payload, err := rs.GetBytes(3)
	if err != nil {
		t.Fatalf("GetBytes payload: %v", err)
	}
	if string(payload) != "binary-payload" {
		t.Fatalf("payload = %q, want binary-payload", payload)
	}
	if ok, err := rs.Next(ctx); err != nil || ok {
		t.Fatalf("expected exactly one row, Next returned ok=%v err=%v", ok, err)
	}

	// §8 scenario 3: commit makes a row visible after the transaction ends.
	if err := conn.BeginTransaction(ctx); err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if _, err := conn.ExecuteUpdate(ctx, `INSERT INTO widgets (id, name) VALUES (2, 'committed')`); err != nil {
		t.Fatalf("insert in transaction: %v", err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	countRS, err := conn.ExecuteQuery(ctx, `SELECT COUNT(*) FROM widgets WHERE id = 2`)
	if err != nil {
		t.Fatalf("count query: %v", err)
	}
	if ok, err := countRS.Next(ctx); err != nil || !ok {
		t.Fatalf("count Next: ok=%v err=%v", ok, err)
	}
	if n, err := countRS.GetInt64(1); err != nil || n != 1 {
		t.Fatalf("count = %d err=%v, want 1 after commit", n, err)
	}
	countRS.Close()

	// §8 scenario 3: rollback leaves no trace.
	if err := conn.BeginTransaction(ctx); err != nil {
		t.Fatalf("BeginTransaction 2: %v", err)
	}
	if _, err := conn.ExecuteUpdate(ctx, `INSERT INTO widgets (id, name) VALUES (3, 'rolled-back')`); err != nil {
		t.Fatalf("insert before rollback: %v", err)
	}
	if err := conn.Rollback(ctx); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	rolledBackRS, err := conn.ExecuteQuery(ctx, `SELECT COUNT(*) FROM widgets WHERE id = 3`)
	if err != nil {
		t.Fatalf("rolled-back count query: %v", err)
	}
	if ok, err := rolledBackRS.Next(ctx); err != nil || !ok {
		t.Fatalf("rolled-back count Next: ok=%v err=%v", ok, err)
	}
	if n, err := rolledBackRS.GetInt64(1); err != nil || n != 0 {
		t.Fatalf("count = %d err=%v, want 0 after rollback", n, err)
	}
	rolledBackRS.Close()
}
