// Package txmanager implements the named-transaction manager from
// spec.md §4.7: transactions are addressed by an opaque id rather than
// held as a Go value the caller must thread through call stacks, so a
// transaction begun in one request handler can be committed or rolled
// back from another. It generalizes the teacher's lock/locker.go
// UUID-keyed, TTL-expiring map idiom from distributed locks to
// in-process transaction handles, and borrows vitess's tx_pool.go
// ticker-driven "kill outdated transactions" shape for the idle reaper.
//
// Per spec.md §3/§4.7, the manager owns a reference to the connection
// pool it transacts against: Begin borrows a connection, and
// Commit/Rollback/the idle reaper always return it, whether or not the
// operation itself succeeded. A connection is never handed back to the
// caller directly — it is addressed only by the transaction id — so the
// pool is the sole place the connection can end up afterward.
package txmanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
	"github.com/oarkflow/dbc/pool"
)

// entry is one live named transaction: the relational connection it was
// opened on, plus bookkeeping used by the idle reaper.
type entry struct {
	conn       dbc.RelationalConnection
	isolation  dbc.IsolationLevel
	startedAt  time.Time
	lastTouch  time.Time
	idleTTL    time.Duration
}

// Manager is a process-wide, UUID-keyed registry of in-flight named
// transactions, per spec.md §4.7. Begin borrows a connection from pool
// and opens a transaction on it; Commit/Rollback resolve the id back to
// its connection, perform the operation, and return the connection to
// pool — which itself restores auto-commit via
// dbc.Connection.ReturnToPool — per the "finally" guarantee in spec.md
// §4.7.2.
type Manager struct {
	mu      sync.Mutex
	pool    *pool.RelationalPool
	txns    map[string]*entry
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	reapTick time.Duration
}

// defaultIdleTTL is applied to a transaction that didn't specify its own
// timeout via SetTransactionTimeout.
const defaultIdleTTL = 5 * time.Minute

// New starts a Manager bound to p and its idle-transaction reaper,
// polling every reapInterval (vitess's tx_pool.go ticks at
// transactionTimeout/10; a direct interval is used here since named
// transactions don't share one global timeout).
func New(p *pool.RelationalPool, reapInterval time.Duration) *Manager {
	if reapInterval <= 0 {
		reapInterval = 30 * time.Second
	}
	m := &Manager{
		pool:     p,
		txns:     make(map[string]*entry),
		stopCh:   make(chan struct{}),
		reapTick: reapInterval,
	}
	m.wg.Add(1)
	go m.reapLoop()
	return m
}

// Begin borrows a connection from the manager's pool, starts a
// transaction on it at the given isolation level (or IsolationNone to
// leave the connection's current isolation unchanged), and registers it
// under a fresh UUID v4 id. The borrowed connection is only reachable
// through that id from this point on.
func (m *Manager) Begin(ctx context.Context, isolation dbc.IsolationLevel) (string, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return "", dbcerr.New(dbcerr.PoolClosed, "transaction manager is closed")
	}

	conn, err := m.pool.Borrow(ctx)
	if err != nil {
		return "", err
	}

	if isolation != dbc.IsolationNone {
		if err := conn.SetTransactionIsolation(ctx, isolation); err != nil {
			m.pool.Return(ctx, conn)
			return "", err
		}
	}
	if err := conn.BeginTransaction(ctx); err != nil {
		m.pool.Return(ctx, conn)
		return "", err
	}

	id := uuid.New().String()
	now := time.Now()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Rollback(ctx)
		m.pool.Return(ctx, conn)
		return "", dbcerr.New(dbcerr.PoolClosed, "transaction manager is closed")
	}
	m.txns[id] = &entry{
		conn:      conn,
		isolation: isolation,
		startedAt: now,
		lastTouch: now,
		idleTTL:   defaultIdleTTL,
	}
	m.mu.Unlock()
	return id, nil
}

// Connection resolves id to the connection its transaction is running
// on and bumps its idle-timeout clock. It is the only call that resets
// that clock: IsActive and SetTransactionTimeout leave it unchanged.
func (m *Manager) Connection(id string) (dbc.RelationalConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[id]
	if !ok {
		return nil, dbcerr.Newf(dbcerr.UnknownTransaction, "unknown transaction %q", id)
	}
	e.lastTouch = time.Now()
	return e.conn, nil
}

// SetTransactionTimeout overrides the idle timeout for a single named
// transaction (spec.md §4.7.1).
func (m *Manager) SetTransactionTimeout(id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.txns[id]
	if !ok {
		return dbcerr.Newf(dbcerr.UnknownTransaction, "unknown transaction %q", id)
	}
	e.idleTTL = ttl
	return nil
}

// IsActive reports whether id still names a live transaction.
func (m *Manager) IsActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.txns[id]
	return ok
}

// Commit forgets the id, commits the named transaction, and returns its
// connection to the pool (which restores auto-commit), whether or not
// the commit succeeded (spec.md §4.7.2's "finally" guarantee: the id is never left dangling).
func (m *Manager) Commit(ctx context.Context, id string) error {
	return m.finish(ctx, id, func(conn dbc.RelationalConnection) error {
		return conn.Commit(ctx)
	})
}

// Rollback is the Commit analogue for aborting a named transaction.
func (m *Manager) Rollback(ctx context.Context, id string) error {
	return m.finish(ctx, id, func(conn dbc.RelationalConnection) error {
		return conn.Rollback(ctx)
	})
}

func (m *Manager) finish(ctx context.Context, id string, op func(dbc.RelationalConnection) error) error {
	m.mu.Lock()
	e, ok := m.txns[id]
	if ok {
		delete(m.txns, id)
	}
	m.mu.Unlock()

	if !ok {
		return dbcerr.Newf(dbcerr.UnknownTransaction, "unknown transaction %q", id)
	}

	opErr := op(e.conn)
	// Returning to the pool runs dbc.Connection.ReturnToPool, which
	// restores auto-commit and rolls back anything left open — the
	// "finally" half of the guarantee, satisfied by handing the
	// connection back rather than by a second explicit call here.
	if err := m.pool.Return(ctx, e.conn); err != nil && opErr == nil {
		return err
	}
	return opErr
}

// reapLoop kills transactions that have been idle longer than their TTL,
// rolling them back and restoring auto-commit — the named-transaction
// equivalent of vitess's transactionKiller sweeping outdated connections.
func (m *Manager) reapLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.reapTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	now := time.Now()
	m.mu.Lock()
	var expired []*entry
	for id, e := range m.txns {
		if now.Sub(e.lastTouch) > e.idleTTL {
			expired = append(expired, e)
			delete(m.txns, id)
		}
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		logrus.WithField("component", "txmanager").
			WithField("count", len(expired)).
			Warn("reaping idle transactions")
	}

	ctx := context.Background()
	for _, e := range expired {
		e.conn.Rollback(ctx)
		m.pool.Return(ctx, e.conn)
	}
}

// Shutdown stops the reaper and rolls back every still-open transaction.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.stopCh)
	remaining := m.txns
	m.txns = make(map[string]*entry)
	m.mu.Unlock()

	m.wg.Wait()

	for _, e := range remaining {
		e.conn.Rollback(ctx)
		m.pool.Return(ctx, e.conn)
	}
}
