// Package mongodb registers the MongoDB dbc driver, fronting
// go.mongodb.org/mongo-driver/mongo to implement dbc.DocumentConnection.
package mongodb

import (
	"context"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oarkflow/dbc"
	"github.com/oarkflow/dbc/dbcerr"
)

type mongoDriver struct {
	dbc.BaseDriver
}

func init() {
	dbc.DefaultRegistry.Register(&mongoDriver{})
}

func (d *mongoDriver) Scheme() string { return "mongodb" }

func (d *mongoDriver) AcceptsURL(u *dbc.ConnectionURL) bool { return u.Scheme == "mongodb" }

func (d *mongoDriver) Family() dbc.Family { return dbc.FamilyDocument }

func (d *mongoDriver) ConnectDocument(ctx context.Context, u *dbc.ConnectionURL) (dbc.DocumentConnection, error) {
	uri := buildURI(u)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "connecting to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, dbcerr.Wrap(dbcerr.ConnectFailure, err, "pinging mongodb")
	}
	return &conn{
		client: client,
		db:     client.Database(u.Target),
		url:    u,
	}, nil
}

func buildURI(u *dbc.ConnectionURL) string {
	uri := "mongodb://"
	if u.Username != "" {
		uri += u.Username
		if u.Password != "" {
			uri += ":" + u.Password
		}
		uri += "@"
	}
	host := u.Host
	if host == "" {
		host = "127.0.0.1"
	}
	uri += host
	if u.Port != 0 {
		uri += fmt.Sprintf(":%d", u.Port)
	}
	uri += "/"
	return uri
}

type conn struct {
	mu     sync.Mutex
	client *mongo.Client
	db     *mongo.Database
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
	if err := c.client.Disconnect(context.Background()); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "disconnecting mongodb client")
	}
	return nil
}

// ReturnToPool is a no-op: the mongo-driver client already owns its own
// internal connection pool per spec.md's allowance that a family may
// delegate pooling to its native client when the family has no session
// state to reset (no auto-commit, no transaction, per spec.md §4.2).
func (c *conn) ReturnToPool(ctx context.Context) error { return nil }

func (c *conn) Collection(name string) dbc.Collection {
	return &collection{coll: c.db.Collection(name)}
}

func (c *conn) CreateCollection(ctx context.Context, name string) error {
	if err := c.db.CreateCollection(ctx, name); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "creating collection")
	}
	return nil
}

func (c *conn) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := c.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return false, dbcerr.Wrap(dbcerr.Backend, err, "listing collections")
	}
	return len(names) > 0, nil
}

func (c *conn) DropCollection(ctx context.Context, name string) error {
	if err := c.db.Collection(name).Drop(ctx); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "dropping collection")
	}
	return nil
}

func (c *conn) RunCommand(ctx context.Context, cmd map[string]any) (map[string]any, error) {
	var out bson.M
	if err := c.db.RunCommand(ctx, toBSON(cmd)).Decode(&out); err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "running mongodb command")
	}
	return map[string]any(out), nil
}

func (c *conn) CreateDocument(ctx context.Context, collection string, doc map[string]any) (any, error) {
	return c.Collection(collection).InsertOne(ctx, doc)
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) Name() string { return c.coll.Name() }

func (c *collection) InsertOne(ctx context.Context, doc map[string]any) (any, error) {
	res, err := c.coll.InsertOne(ctx, toBSON(doc))
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "inserting document")
	}
	return res.InsertedID, nil
}

func (c *collection) FindOne(ctx context.Context, filter map[string]any) (map[string]any, error) {
	var out bson.M
	err := c.coll.FindOne(ctx, toBSON(filter)).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "finding document")
	}
	return map[string]any(out), nil
}

func (c *collection) Find(ctx context.Context, filter map[string]any) (dbc.DocumentCursor, error) {
	cur, err := c.coll.Find(ctx, toBSON(filter))
	if err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "finding documents")
	}
	return &cursor{cur: cur}, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter, update map[string]any) (int64, int64, error) {
	res, err := c.coll.UpdateOne(ctx, toBSON(filter), bson.M{"$set": toBSON(update)})
	if err != nil {
		return 0, 0, dbcerr.Wrap(dbcerr.Backend, err, "updating document")
	}
	return res.MatchedCount, res.ModifiedCount, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter map[string]any) (int64, error) {
	res, err := c.coll.DeleteOne(ctx, toBSON(filter))
	if err != nil {
		return 0, dbcerr.Wrap(dbcerr.Backend, err, "deleting document")
	}
	return res.DeletedCount, nil
}

type cursor struct {
	cur     *mongo.Cursor
	current bson.M
}

func (cu *cursor) Next(ctx context.Context) bool { return cu.cur.Next(ctx) }

func (cu *cursor) Decode() (map[string]any, error) {
	var out bson.M
	if err := cu.cur.Decode(&out); err != nil {
		return nil, dbcerr.Wrap(dbcerr.Backend, err, "decoding document")
	}
	return map[string]any(out), nil
}

func (cu *cursor) Close(ctx context.Context) error {
	if err := cu.cur.Close(ctx); err != nil {
		return dbcerr.Wrap(dbcerr.Backend, err, "closing cursor")
	}
	return nil
}

func toBSON(m map[string]any) bson.M {
	if m == nil {
		return bson.M{}
	}
	return bson.M(m)
}
