package pool

import (
	"context"
	"testing"
	"time"
)

// BenchmarkBorrowReturn measures steady-state borrow/return throughput
// against a warm pool, the Go-idiomatic analogue of cpp_dbc's
// connection-pool throughput benchmark (original_source/libs/cpp_dbc/
// benchmark/benchmark_main.cpp), which times repeated acquire/release
// cycles against a fixed-size pool.
func BenchmarkBorrowReturn(b *testing.B) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{
		InitialSize:       4,
		MaxSize:           4,
		ValidationInterval: time.Hour,
	})
	defer p.Close()

	ctx := context.Background()
	if err := p.WarmUp(ctx); err != nil {
		b.Fatalf("warm up: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		conn, err := p.Borrow(ctx)
		if err != nil {
			b.Fatalf("borrow: %v", err)
		}
		if err := p.Return(ctx, conn); err != nil {
			b.Fatalf("return: %v", err)
		}
	}
}

// BenchmarkBorrowReturnParallel measures the same cycle under concurrent
// callers contending on the pool's sync.Cond waiter queue.
func BenchmarkBorrowReturnParallel(b *testing.B) {
	factory, _ := newFactory()
	p := New[*fakeConn](factory, nil, Config{
		InitialSize:       8,
		MaxSize:           8,
		ValidationInterval: time.Hour,
	})
	defer p.Close()

	ctx := context.Background()
	if err := p.WarmUp(ctx); err != nil {
		b.Fatalf("warm up: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			conn, err := p.Borrow(ctx)
			if err != nil {
				b.Fatalf("borrow: %v", err)
			}
			if err := p.Return(ctx, conn); err != nil {
				b.Fatalf("return: %v", err)
			}
		}
	})
}
