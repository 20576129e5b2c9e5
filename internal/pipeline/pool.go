package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/nodestore"
)

// NewPool opens a connection pool for the configured database. Every
// connection gets the hstore type registered, which the tags column
// needs for both statement parameters and scans.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// At least 4 connections: loader, updater batches and DDL
	minConns := cfg.Workers
	if minConns < 4 {
		minConns = 4
	}
	poolConfig.MaxConns = int32(minConns)

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		var oid uint32
		err := conn.QueryRow(ctx, "SELECT oid FROM pg_type WHERE typname = 'hstore'").Scan(&oid)
		if errors.Is(err, pgx.ErrNoRows) {
			// Extension not installed yet; EnsureSchema creates it and
			// later connections pick it up
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get hstore OID: %w", err)
		}
		conn.TypeMap().RegisterType(&pgtype.Type{
			Name:  "hstore",
			OID:   oid,
			Codec: pgtype.HstoreCodec{},
		})
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return pool, nil
}

// NodeTable maps the configured schema, table and column names onto the
// store's table descriptor.
func NodeTable(cfg *config.Config) nodestore.Table {
	return nodestore.Table{
		Schema: cfg.DBSchema,
		Name:   cfg.Table,
		Columns: nodestore.Columns{
			ID:        cfg.Columns.ID,
			Version:   cfg.Columns.Version,
			UID:       cfg.Columns.UID,
			Timestamp: cfg.Columns.Timestamp,
			Changeset: cfg.Columns.Changeset,
			Tags:      cfg.Columns.Tags,
			Longitude: cfg.Columns.Longitude,
			Latitude:  cfg.Columns.Latitude,
			Geometry:  cfg.Columns.Geometry,
		},
	}
}
