package dbc

import (
	"context"
	"fmt"
	"sync"

	"github.com/oarkflow/dbc/dbcerr"
)

// Registry is a process-wide mapping from URL scheme to driver factory,
// per spec.md §4.1. Registration is idempotent for the same scheme-driver
// pair; resolution iterates registered drivers in insertion order and
// returns the first whose AcceptsURL predicate matches.
//
// DefaultRegistry is the process-wide instance every driver package
// registers itself into from its own init(), mirroring database/sql's
// sql.Register idiom. Registry is also independently constructible so
// tests don't pollute global state.
type Registry struct {
	mu      sync.Mutex
	drivers []Driver
	byKey   map[string]struct{} // scheme+type-identity dedup key
}

// NewRegistry returns an empty, independently usable registry.
func NewRegistry() *Registry {
	return &Registry{byKey: map[string]struct{}{}}
}

// DefaultRegistry is the process-wide registry driver packages register
// into via their init() functions.
var DefaultRegistry = NewRegistry()

// Register adds driver under its own scheme. Registering the same
// (scheme, driver) pair more than once is a no-op.
func (r *Registry) Register(driver Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s|%T", driver.Scheme(), driver)
	if _, exists := r.byKey[key]; exists {
		return
	}
	r.byKey[key] = struct{}{}
	r.drivers = append(r.drivers, driver)
}

// Resolve returns the first registered driver whose AcceptsURL matches u,
// in insertion order. Fails with dbcerr.NoDriver if none match.
func (r *Registry) Resolve(u *ConnectionURL) (Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.drivers {
		if d.AcceptsURL(u) {
			return d, nil
		}
	}
	return nil, dbcerr.Newf(dbcerr.NoDriver, "no registered driver accepts scheme %q", u.Scheme)
}

// ConnectRelational resolves u to a driver and opens a relational
// connection, failing with dbcerr.WrongFamily if the resolved driver is
// not a relational driver.
func (r *Registry) ConnectRelational(ctx context.Context, raw string) (RelationalConnection, error) {
	u, d, err := r.resolveURL(raw)
	if err != nil {
		return nil, err
	}
	return d.ConnectRelational(ctx, u)
}

// ConnectDocument is the Document-family analogue of ConnectRelational.
func (r *Registry) ConnectDocument(ctx context.Context, raw string) (DocumentConnection, error) {
	u, d, err := r.resolveURL(raw)
	if err != nil {
		return nil, err
	}
	return d.ConnectDocument(ctx, u)
}

// ConnectColumnar is the Columnar-family analogue of ConnectRelational.
func (r *Registry) ConnectColumnar(ctx context.Context, raw string) (ColumnarConnection, error) {
	u, d, err := r.resolveURL(raw)
	if err != nil {
		return nil, err
	}
	return d.ConnectColumnar(ctx, u)
}

// ConnectKV is the KV-family analogue of ConnectRelational.
func (r *Registry) ConnectKV(ctx context.Context, raw string) (KVConnection, error) {
	u, d, err := r.resolveURL(raw)
	if err != nil {
		return nil, err
	}
	return d.ConnectKV(ctx, u)
}

func (r *Registry) resolveURL(raw string) (*ConnectionURL, Driver, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return nil, nil, err
	}
	d, err := r.Resolve(u)
	if err != nil {
		return nil, nil, err
	}
	return u, d, nil
}

func wrongFamilyErr(requested Family) error {
	return dbcerr.Newf(dbcerr.WrongFamily, "driver does not produce %s connections", requested)
}
