package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oarkflow/dbc"
)

// fakeConn is a minimal dbc.Connection used to exercise Pool without a
// real backend.
type fakeConn struct {
	mu     sync.Mutex
	id     int
	closed bool
	fail   bool
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
func (c *fakeConn) URL() *dbc.ConnectionURL                { return &dbc.ConnectionURL{Scheme: "fake"} }
func (c *fakeConn) ReturnToPool(ctx context.Context) error { return nil }

func newFactory() (Factory[*fakeConn], *int32) {
	var counter int32
	return func(ctx context.Context) (*fakeConn, error) {
		n := atomic.AddInt32(&counter, 1)
		return &fakeConn{id: int(n)}, nil
	}, &counter
}

func TestBorrowCreatesUpToMaxSize(t *testing.T) {
	factory, counter := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 2, ConnectionTimeout: time.Second})
	defer p.Close()

	c1, err := p.Borrow(context.Background())
	if err != nil {
		t.Fatalf("Borrow 1: %v", err)
	}
	c2, err := p.Borrow(context.Background())
	if err != nil {
		t.Fatalf("Borrow 2: %v", err)
	}
	if c1 == c2 {
		t.Fatal("expected distinct connections")
	}
	if got := atomic.LoadInt32(counter); got != 2 {
		t.Fatalf("factory called %d times, want 2", got)
	}
}

func TestBorrowTimesOutWhenExhausted(t *testing.T) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 1, ConnectionTimeout: 50 * time.Millisecond})
	defer p.Close()

	if _, err := p.Borrow(context.Background()); err != nil {
		t.Fatalf("Borrow 1: %v", err)
	}
	_, err := p.Borrow(context.Background())
	if err == nil {
		t.Fatal("expected timeout error borrowing beyond MaxSize")
	}
}

func TestReturnedConnectionIsReused(t *testing.T) {
	factory, counter := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 1, ConnectionTimeout: time.Second})
	defer p.Close()

	c1, err := p.Borrow(context.Background())
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}
	if err := p.Return(context.Background(), c1); err != nil {
		t.Fatalf("Return: %v", err)
	}
	c2, err := p.Borrow(context.Background())
	if err != nil {
		t.Fatalf("Borrow again: %v", err)
	}
	if c1 != c2 {
		t.Fatal("expected the returned connection to be reused")
	}
	if got := atomic.LoadInt32(counter); got != 1 {
		t.Fatalf("factory called %d times, want 1", got)
	}
}

func TestBlockedBorrowWakesOnReturn(t *testing.T) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 1, ConnectionTimeout: time.Second})
	defer p.Close()

	c1, err := p.Borrow(context.Background())
	if err != nil {
		t.Fatalf("Borrow: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := p.Borrow(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := p.Return(context.Background(), c1); err != nil {
		t.Fatalf("Return: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked Borrow: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Borrow never woke after Return")
	}
}

func TestCloseClosesIdleAndActiveConnections(t *testing.T) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 2, ConnectionTimeout: time.Second})

	c1, _ := p.Borrow(context.Background())
	c2, _ := p.Borrow(context.Background())
	p.Return(context.Background(), c1)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c1.IsClosed() || !c2.IsClosed() {
		t.Fatal("expected both idle and active connections closed")
	}
	if _, err := p.Borrow(context.Background()); err == nil {
		t.Fatal("expected borrow from a closed pool to fail")
	}
}

func TestBorrowFromZeroMaxSizeFailsImmediately(t *testing.T) {
	factory, counter := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 0, ConnectionTimeout: time.Second})
	defer p.Close()

	start := time.Now()
	_, err := p.Borrow(context.Background())
	if err == nil {
		t.Fatal("expected borrow from a maxSize=0 pool to fail")
	}
	if elapsed := time.Since(start); elapsed >= p.cfg.ConnectionTimeout {
		t.Fatalf("borrow took %v, expected immediate failure rather than waiting out the timeout", elapsed)
	}
	if got := atomic.LoadInt32(counter); got != 0 {
		t.Fatalf("factory called %d times, want 0", got)
	}
}

func TestMaintenanceReplenishesMinIdle(t *testing.T) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{
		MaxSize:            3,
		MinIdle:            2,
		ConnectionTimeout:  time.Second,
		ValidationInterval: 10 * time.Millisecond,
	})
	defer p.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Idle >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	stats := p.Stats()
	if stats.Idle < 2 {
		t.Fatalf("expected maintenance to top up idle connections to MinIdle, stats = %+v", stats)
	}
}

func TestStatsReflectsOccupancy(t *testing.T) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{MaxSize: 2, ConnectionTimeout: time.Second})
	defer p.Close()

	c1, _ := p.Borrow(context.Background())
	stats := p.Stats()
	if stats.Active != 1 || stats.Total != 1 {
		t.Fatalf("stats after borrow = %+v", stats)
	}

	p.Return(context.Background(), c1)
	stats = p.Stats()
	if stats.Idle != 1 || stats.Active != 0 {
		t.Fatalf("stats after return = %+v", stats)
	}
}
