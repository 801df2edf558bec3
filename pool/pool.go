// Package pool implements the generic connection pool control plane from
// spec.md §4.6: a family-agnostic pool of dbc.Connection values with
// bounded growth, idle/lifetime eviction, and blocking borrow with
// timeout. It generalizes the teacher's single-tenant pool idiom (weak
// acknowledgement, return-to-idle-or-close-and-decrement accounting) to
// work over any dbc.Connection implementation via a type parameter.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

// Pooled is the capability a pool manages: every dbc connection family
// satisfies it already.
type Pooled interface {
	dbc.Connection
}

// Factory creates a new native connection on demand.
type Factory[T Pooled] func(ctx context.Context) (T, error)

// Validator checks a borrowed or returned connection is still usable.
// A nil Validator disables the corresponding TestOnBorrow/TestOnReturn
// check.
type Validator[T Pooled] func(ctx context.Context, conn T) error

// Config holds the pool's sizing and lifecycle policy, per spec.md §4.6.
type Config struct {
	InitialSize int

	MaxSize int
	MinIdle int

	ConnectionTimeout time.Duration
	IdleTimeout       time.Duration
	MaxLifetime       time.Duration

	ValidationInterval time.Duration
	TestOnBorrow       bool
	TestOnReturn       bool

	// TransactionIsolation is stored only: Borrow hands connections out
	// without setting an isolation level on them.
	TransactionIsolation dbc.IsolationLevel
}

func (c Config) withDefaults() Config {
	// MaxSize == 0 is a deliberate caller choice (spec.md §8: borrowing
	// from a maxSize=0 pool fails immediately), so only a negative value
	// is treated as "unset" and defaulted.
	if c.MaxSize < 0 {
		c.MaxSize = 10
	}
	if c.MinIdle < 0 {
		c.MinIdle = 0
	}
	if c.MinIdle > c.MaxSize {
		c.MinIdle = c.MaxSize
	}
	if c.InitialSize > c.MaxSize {
		c.InitialSize = c.MaxSize
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.ValidationInterval <= 0 {
		c.ValidationInterval = 30 * time.Second
	}
	return c
}

// maxBorrowRetries bounds the testOnBorrow validate-and-retry loop
// (DESIGN.md Open Question 3): create/validate, then retry at most twice
// more before failing with PoolExhausted, rather than looping forever
// against a backend that is refusing every connection.
const maxBorrowRetries = 3

type entry[T Pooled] struct {
	conn      T
	createdAt time.Time
	lastUsed  time.Time
}

// Pool is a generic, family-agnostic connection pool, per spec.md §4.6.
// The mutex plus sync.Cond pair serializes all size-accounting decisions
// and lets Borrow block efficiently until a connection is returned,
// evicted, or the pool is closed — the same wakeup discipline as a
// single-tenant pool scaled down to one tenant.
type Pool[T Pooled] struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg      Config
	factory  Factory[T]
	validate Validator[T]

	idle    []entry[T]
	active  map[any]entry[T]
	total   int
	waiting int

	closed bool
	stopCh chan struct{}
	wg     sync.WaitGroup

	log *logrus.Entry
}

// New constructs a pool and starts its background maintenance worker.
// It does not block on pre-warming InitialSize connections; call WarmUp
// for that, or let Borrow create connections lazily on demand.
func New[T Pooled](factory Factory[T], validate Validator[T], cfg Config) *Pool[T] {
	cfg = cfg.withDefaults()
	p := &Pool[T]{
		cfg:      cfg,
		factory:  factory,
		validate: validate,
		active:   make(map[any]entry[T]),
		stopCh:   make(chan struct{}),
		log:      logrus.WithField("component", "pool"),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(1)
	go p.maintain()

	return p
}

// WarmUp synchronously creates up to cfg.InitialSize idle connections.
// A failure part-way through leaves the pool usable with whatever
// connections were created before the failure.
func (p *Pool[T]) WarmUp(ctx context.Context) error {
	for i := 0; i < p.cfg.InitialSize; i++ {
		p.mu.Lock()
		if p.closed || p.total >= p.cfg.MaxSize {
			p.mu.Unlock()
			return nil
		}
		p.total++
		p.mu.Unlock()

		conn, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return dbcerr.Wrap(dbcerr.ConnectFailure, err, "warming up pool")
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			conn.Close()
			return nil
		}
		now := time.Now()
		p.idle = append(p.idle, entry[T]{conn: conn, createdAt: now, lastUsed: now})
		p.cond.Signal()
		p.mu.Unlock()
	}
	return nil
}

// Borrow returns a ready-to-use connection, creating one if the pool is
// under cfg.MaxSize and no idle connection is available, or blocking
// until one is returned, evicted, or ctx/cfg.ConnectionTimeout elapses.
func (p *Pool[T]) Borrow(ctx context.Context) (T, error) {
	deadline := time.Now().Add(p.cfg.ConnectionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if p.cfg.MaxSize == 0 {
		var zero T
		return zero, dbcerr.New(dbcerr.PoolExhausted, "pool has maxSize=0, no connections can ever be created")
	}

	p.mu.Lock()
	for attempt := 0; ; {
		select {
		case <-ctx.Done():
			p.mu.Unlock()
			var zero T
			return zero, ctx.Err()
		default:
		}

		if p.closed {
			p.mu.Unlock()
			var zero T
			return zero, dbcerr.New(dbcerr.PoolClosed, "borrow from closed pool")
		}

		for len(p.idle) > 0 {
			e := p.idle[len(p.idle)-1]
			p.idle = p.idle[:len(p.idle)-1]

			if p.expired(e) {
				p.total--
				p.mu.Unlock()
				e.conn.Close()
				p.mu.Lock()
				continue
			}

			if p.cfg.TestOnBorrow && p.validate != nil {
				p.mu.Unlock()
				err := p.validate(ctx, e.conn)
				p.mu.Lock()
				if err != nil {
					p.total--
					p.mu.Unlock()
					e.conn.Close()
					p.mu.Lock()
					attempt++
					if attempt >= maxBorrowRetries {
						p.mu.Unlock()
						var zero T
						return zero, dbcerr.New(dbcerr.PoolExhausted, "exhausted borrow validation retries")
					}
					continue
				}
			}

			e.lastUsed = time.Now()
			p.active[any(e.conn)] = e
			p.mu.Unlock()
			return e.conn, nil
		}

		if p.total < p.cfg.MaxSize {
			p.total++
			p.mu.Unlock()

			conn, err := p.factory(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				var zero T
				return zero, dbcerr.Wrap(dbcerr.ConnectFailure, err, "creating pooled connection")
			}

			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				conn.Close()
				var zero T
				return zero, dbcerr.New(dbcerr.PoolClosed, "borrow from closed pool")
			}
			now := time.Now()
			p.active[any(conn)] = entry[T]{conn: conn, createdAt: now, lastUsed: now}
			p.mu.Unlock()
			return conn, nil
		}

		p.waiting++
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.waiting--
			p.mu.Unlock()
			var zero T
			return zero, dbcerr.New(dbcerr.PoolTimeout, "borrow timed out waiting for a connection")
		}
		timer := time.AfterFunc(remaining, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		})
		p.cond.Wait()
		timer.Stop()
		p.waiting--
		// loop retries from the top, mu still held
	}
}

// Return releases conn back to the pool, resetting its session state via
// dbc.Connection.ReturnToPool. A connection that fails validation,
// expired its lifetime, or errors on reset is closed and discarded
// instead of returned to idle.
func (p *Pool[T]) Return(ctx context.Context, conn T) error {
	p.mu.Lock()
	e, tracked := p.active[any(conn)]
	if tracked {
		delete(p.active, any(conn))
	}
	closed := p.closed
	p.mu.Unlock()

	if !tracked {
		return dbcerr.New(dbcerr.Backend, "connection not borrowed from this pool")
	}

	discard := closed || p.expired(e)
	if !discard {
		if err := conn.ReturnToPool(ctx); err != nil {
			discard = true
		}
	}
	if !discard && p.cfg.TestOnReturn && p.validate != nil {
		if err := p.validate(ctx, conn); err != nil {
			discard = true
		}
	}

	if discard {
		p.mu.Lock()
		p.total--
		p.cond.Signal()
		p.mu.Unlock()
		conn.Close()
		return nil
	}

	p.mu.Lock()
	e.lastUsed = time.Now()
	p.idle = append(p.idle, e)
	p.cond.Signal()
	p.mu.Unlock()
	return nil
}

func (p *Pool[T]) expired(e entry[T]) bool {
	if p.cfg.MaxLifetime > 0 && time.Since(e.createdAt) > p.cfg.MaxLifetime {
		return true
	}
	return e.conn.IsClosed()
}

// Stats reports a point-in-time snapshot of pool occupancy.
type Stats struct {
	Total   int
	Active  int
	Idle    int
	Waiting int
	Closed  bool
}

func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Total:   p.total,
		Active:  len(p.active),
		Idle:    len(p.idle),
		Waiting: p.waiting,
		Closed:  p.closed,
	}
}

// maintain runs the periodic idle/lifetime reaper and min-idle
// replenishment, grounded on the teacher's reapLoop ticker shape.
func (p *Pool[T]) maintain() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.ValidationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool[T]) reapIdle() {
	p.mu.Lock()
	if len(p.idle) <= p.cfg.MinIdle {
		p.mu.Unlock()
		p.topUpIdle(context.Background())
		return
	}
	excess := len(p.idle) - p.cfg.MinIdle
	kept := make([]entry[T], 0, len(p.idle))
	var reaped []T
	for i, e := range p.idle {
		idleFor := time.Since(e.lastUsed)
		if i < excess && (idleFor > p.cfg.IdleTimeout || p.expired(e)) {
			reaped = append(reaped, e.conn)
			p.total--
			continue
		}
		kept = append(kept, e)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, conn := range reaped {
		conn.Close()
	}

	p.topUpIdle(context.Background())
}

// topUpIdle creates connections to restore cfg.MinIdle, bounded by
// cfg.MaxSize, mirroring WarmUp's create-then-append loop. Run from
// reapIdle after eviction so a burst of borrows that drained idle below
// MinIdle gets replenished on the next maintenance tick rather than only
// on the next Borrow.
func (p *Pool[T]) topUpIdle(ctx context.Context) {
	for {
		p.mu.Lock()
		if p.closed || len(p.idle) >= p.cfg.MinIdle || p.total >= p.cfg.MaxSize {
			p.mu.Unlock()
			return
		}
		p.total++
		p.mu.Unlock()

		conn, err := p.factory(ctx)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			p.log.WithError(err).Warn("min-idle replenishment failed")
			return
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			conn.Close()
			return
		}
		now := time.Now()
		p.idle = append(p.idle, entry[T]{conn: conn, createdAt: now, lastUsed: now})
		p.cond.Signal()
		p.mu.Unlock()
	}
}

// Close shuts down the pool: stops the maintenance worker, closes every
// idle connection, and closes any still-active connection. Safe to call
// more than once.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stopCh)
	p.cond.Broadcast()

	idle := p.idle
	p.idle = nil
	active := make([]entry[T], 0, len(p.active))
	for _, e := range p.active {
		active = append(active, e)
	}
	p.active = make(map[any]entry[T])
	p.mu.Unlock()

	p.wg.Wait()

	for _, e := range idle {
		e.conn.Close()
	}
	for _, e := range active {
		e.conn.Close()
	}
	return nil
}

// RelationalPool, DocumentPool, ColumnarPool, and KVPool are the
// concrete per-family pool instantiations SPEC_FULL.md §4.6 names.
type (
	RelationalPool = Pool[dbc.RelationalConnection]
	DocumentPool   = Pool[dbc.DocumentConnection]
	ColumnarPool   = Pool[dbc.ColumnarConnection]
	KVPool         = Pool[dbc.KVConnection]
)
