package txmanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/pool"
)

// fakeConn is a minimal in-memory dbc.RelationalConnection used to drive
// the transaction manager without a real backend.
type fakeConn struct {
	mu         sync.Mutex
	closed     bool
	autoCommit bool
	active     bool
	isolation  dbc.IsolationLevel
	commits    int
	rollbacks  int
}

func newFakeConn() *fakeConn { return &fakeConn{autoCommit: true} }

func (c *fakeConn) Close() error   { c.mu.Lock(); defer c.mu.Unlock(); c.closed = true; return nil }
func (c *fakeConn) IsClosed() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.closed }
func (c *fakeConn) URL() *dbc.ConnectionURL { return &dbc.ConnectionURL{Scheme: "fake"} }

// ReturnToPool mirrors the reset every real dbc.Connection performs, per
// connection.go's documented contract, so tests can observe it the same
// way a real driver's Conn.ReturnToPool would behave.
func (c *fakeConn) ReturnToPool(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.autoCommit = true
	c.isolation = dbc.IsolationNone
	return nil
}

func (c *fakeConn) PrepareStatement(ctx context.Context, sql string) (dbc.PreparedStatement, error) {
	return nil, nil
}
func (c *fakeConn) ExecuteQuery(ctx context.Context, sql string, args ...any) (dbc.ResultSet, error) {
	return nil, nil
}
func (c *fakeConn) ExecuteUpdate(ctx context.Context, sql string, args ...any) (uint64, error) {
	return 0, nil
}

func (c *fakeConn) SetAutoCommit(ctx context.Context, on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoCommit = on
	return nil
}
func (c *fakeConn) AutoCommit() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.autoCommit }

func (c *fakeConn) BeginTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = true
	c.autoCommit = false
	return nil
}
func (c *fakeConn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.commits++
	return nil
}
func (c *fakeConn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.rollbacks++
	return nil
}
func (c *fakeConn) TransactionActive() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.active }

func (c *fakeConn) SetTransactionIsolation(ctx context.Context, level dbc.IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isolation = level
	return nil
}
func (c *fakeConn) TransactionIsolation() dbc.IsolationLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isolation
}

// newSingleConnPool builds a size-1 pool around a single fakeConn so
// tests can still inspect commits/rollbacks/autoCommit on the exact
// connection Begin borrowed.
func newSingleConnPool() (*pool.RelationalPool, *fakeConn) {
	conn := newFakeConn()
	factory := func(ctx context.Context) (dbc.RelationalConnection, error) { return conn, nil }
	p := pool.New[dbc.RelationalConnection](factory, nil, pool.Config{
		MaxSize:           1,
		ConnectionTimeout: time.Second,
	})
	return p, conn
}

func TestBeginCommitRestoresAutoCommit(t *testing.T) {
	p, conn := newSingleConnPool()
	defer p.Close()
	m := New(p, time.Hour)
	defer m.Shutdown(context.Background())

	id, err := m.Begin(context.Background(), dbc.IsolationReadCommitted)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !m.IsActive(id) {
		t.Fatal("expected transaction to be active")
	}

	if err := m.Commit(context.Background(), id); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if m.IsActive(id) {
		t.Fatal("expected transaction to be forgotten after commit")
	}
	if conn.commits != 1 {
		t.Fatalf("commits = %d, want 1", conn.commits)
	}
	if !conn.AutoCommit() {
		t.Fatal("expected auto-commit restored after commit")
	}
	if p.Stats().Idle != 1 {
		t.Fatalf("expected connection returned to pool idle list after commit, stats = %+v", p.Stats())
	}
}

func TestRollbackRestoresAutoCommitAndForgetsID(t *testing.T) {
	p, conn := newSingleConnPool()
	defer p.Close()
	m := New(p, time.Hour)
	defer m.Shutdown(context.Background())

	id, err := m.Begin(context.Background(), dbc.IsolationNone)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Rollback(context.Background(), id); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if conn.rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1", conn.rollbacks)
	}
	if !conn.AutoCommit() {
		t.Fatal("expected auto-commit restored after rollback")
	}
	if _, err := m.Connection(id); err == nil {
		t.Fatal("expected unknown-transaction error after rollback")
	}
}

func TestUnknownTransactionIDFails(t *testing.T) {
	p, _ := newSingleConnPool()
	defer p.Close()
	m := New(p, time.Hour)
	defer m.Shutdown(context.Background())

	if _, err := m.Connection("does-not-exist"); err == nil {
		t.Fatal("expected error resolving an unregistered transaction id")
	}
	if err := m.Commit(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected error committing an unregistered transaction id")
	}
}

func TestIdleTransactionIsReaped(t *testing.T) {
	p, conn := newSingleConnPool()
	defer p.Close()
	m := New(p, 20*time.Millisecond)
	defer m.Shutdown(context.Background())

	id, err := m.Begin(context.Background(), dbc.IsolationNone)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.SetTransactionTimeout(id, 10*time.Millisecond); err != nil {
		t.Fatalf("SetTransactionTimeout: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	// The reaper drops the id before it rolls back and returns the
	// connection, so also wait for the connection to reach the idle list.
	for (m.IsActive(id) || p.Stats().Idle != 1) && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.IsActive(id) {
		t.Fatal("expected idle transaction to be reaped")
	}
	if conn.rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1", conn.rollbacks)
	}
	if p.Stats().Idle != 1 {
		t.Fatalf("expected reaped connection returned to pool idle list, stats = %+v", p.Stats())
	}
}

func TestShutdownRollsBackRemainingTransactions(t *testing.T) {
	p, conn := newSingleConnPool()
	defer p.Close()
	m := New(p, time.Hour)
	if _, err := m.Begin(context.Background(), dbc.IsolationNone); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	m.Shutdown(context.Background())
	if conn.rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1 after shutdown", conn.rollbacks)
	}
	if p.Stats().Idle != 1 {
		t.Fatalf("expected connection returned to pool idle list after shutdown, stats = %+v", p.Stats())
	}
}
