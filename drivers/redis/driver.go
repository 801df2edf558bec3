// Package redis registers the Redis dbc driver, fronting
// github.com/redis/go-redis/v9 to implement dbc.KVConnection.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

type redisDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&redisDriver{})
}

func (d *redisDriver) Scheme() string { return "redis" }

func (d *redisDriver) AcceptsURL(u *dbc.ConnectionURL) bool { return u.Scheme == "redis" }

func (d *redisDriver) Family() dbc.Family { return dbc.FamilyKV }

func (d *redisDriver) ConnectKV(ctx context.Context, u *dbc.ConnectionURL) (dbc.KVConnection, error) {
	opts := &goredis.Options{
		Addr:     addr(u),
		Username: u.Username,
		Password: u.Password,
	}
	if db, err := parseDBIndex(u.Target); err == nil {
		opts.DB = db
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "pinging redis")
	}
	return &conn{client: client, url: u}, nil
}

func addr(u *dbc.ConnectionURL) string {
	host := u.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := u.Port
	if port == 0 {
		port = 6379
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func parseDBIndex(target string) (int, error) {
	if target == "" {
		return 0, fmt.Errorf("no db index")
	}
	return strconv.Atoi(target)
}

// conn wraps a *goredis.Client as dbc.KVConnection. Redis has no
// session-level transaction/isolation state of the kind relational
// connections carry, so ReturnToPool is a no-op, matching spec.md §4.2's
// allowance for families without mutable session state.
type conn struct {
	mu     sync.Mutex
	client *goredis.Client
	url    *dbc.ConnectionURL
	closed bool
}

func (c *conn) URL() *dbc.ConnectionURL { return c.url }

func (c *conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.client.Close(); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "closing redis client")
	}
	return nil
}

func (c *conn) ReturnToPool(ctx context.Context) error { return nil }

func (c *conn) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "pinging redis")
	}
	return nil
}

// Do forwards an opaque command (e.g. "GET", "key") to the server, per
// spec.md §4.2's KV command vocabulary contract.
func (c *conn) Do(ctx context.Context, args ...any) (any, error) {
	res := c.client.Do(ctx, args...)
	if err := res.Err(); err != nil {
		if err == goredis.Nil {
			return nil, dbcerr.New(dbcerr.NullValue, "key not found")
		}
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "executing redis command")
	}
	return res.Val(), nil
}
