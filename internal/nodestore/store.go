package nodestore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/paulmach/orb"
)

// GeometryCodec converts between in-memory geometries and their binary
// database representation. geo.Codec implements it; tests substitute
// failing codecs.
type GeometryCodec interface {
	Encode(orb.Geometry) ([]byte, error)
	Decode([]byte) (orb.Geometry, error)
}

// Store is the row-oriented access path. All operations are synchronous,
// acquire their session per call and hold no state between calls; concurrent
// use is safe as long as the underlying pool hands out independent
// connections.
type Store interface {
	// Get returns the node with the given id, or nil when absent.
	Get(ctx context.Context, id int64) (*Node, error)

	// GetMany resolves ids in input order: the result has the same length,
	// duplicates each get their own slot, and absent ids yield nil entries.
	GetMany(ctx context.Context, ids []int64) ([]*Node, error)

	// Put inserts the node or fully replaces every non-key column of an
	// existing row, tags included.
	Put(ctx context.Context, node *Node) error

	// PutMany upserts a batch in one round trip. Empty input is a no-op.
	PutMany(ctx context.Context, nodes []*Node) error

	// Delete removes a node; deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error

	// DeleteMany removes a batch in one round trip. Empty input is a no-op.
	DeleteMany(ctx context.Context, ids []int64) error

	// Each streams every stored node to fn, stopping at the first error.
	Each(ctx context.Context, fn func(*Node) error) error
}

// BulkLoader streams nodes into storage without per-row round trips.
type BulkLoader interface {
	Load(ctx context.Context, src Source) error
}

// Pool is the subset of pgxpool.Pool the statement path needs; pgxmock
// satisfies it for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
