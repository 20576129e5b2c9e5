package pipeline

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/nodestore"
)

// Schema owns the DDL around the node table: extensions, table creation
// and the post-load finalization.
type Schema struct {
	cfg   *config.Config
	pool  *pgxpool.Pool
	table nodestore.Table
}

// NewSchema creates the DDL helper for the configured table
func NewSchema(cfg *config.Config, pool *pgxpool.Pool) *Schema {
	return &Schema{
		cfg:   cfg,
		pool:  pool,
		table: NodeTable(cfg),
	}
}

// Ensure creates the PostGIS and hstore extensions and the schema
func (s *Schema) Ensure(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS hstore"); err != nil {
		return fmt.Errorf("failed to create hstore extension: %w", err)
	}

	if s.cfg.DBSchema != "public" {
		createSchema := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{s.cfg.DBSchema}.Sanitize())
		if _, err := s.pool.Exec(ctx, createSchema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// PrepareTable creates the node table for loading. The table starts
// UNLOGGED to skip WAL during the bulk load; Finalize flips it back.
func (s *Schema) PrepareTable(ctx context.Context, dropExisting bool) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	qualified := s.table.Qualified()

	if dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", qualified)); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	q := func(c string) string { return pgx.Identifier{c}.Sanitize() }
	cols := s.table.Columns

	createSQL := fmt.Sprintf(`
		CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			%s BIGINT NOT NULL,
			%s INTEGER NOT NULL,
			%s INTEGER NOT NULL,
			%s TIMESTAMPTZ,
			%s BIGINT NOT NULL,
			%s hstore,
			%s DOUBLE PRECISION NOT NULL,
			%s DOUBLE PRECISION NOT NULL,
			%s GEOMETRY(Point, %d)
		)
	`, qualified,
		q(cols.ID), q(cols.Version), q(cols.UID), q(cols.Timestamp), q(cols.Changeset),
		q(cols.Tags), q(cols.Longitude), q(cols.Latitude), q(cols.Geometry), s.cfg.Projection)

	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if !dropExisting {
		if _, err := conn.Exec(ctx, fmt.Sprintf("TRUNCATE %s", qualified)); err != nil {
			return fmt.Errorf("failed to truncate table: %w", err)
		}
	}

	return nil
}

// Finalize makes the table durable and queryable after a bulk load: SET
// LOGGED, primary key, spatial index and planner statistics. The
// primary key also backs the upsert path during updates.
func (s *Schema) Finalize(ctx context.Context) error {
	log := logger.Get()
	qualified := s.table.Qualified()
	q := func(c string) string { return pgx.Identifier{c}.Sanitize() }

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SET maintenance_work_mem = '1GB'"); err != nil {
		log.Debug("Could not raise maintenance_work_mem", zap.Error(err))
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("ALTER TABLE %s SET LOGGED", qualified)); err != nil {
		return fmt.Errorf("failed to set table logged: %w", err)
	}

	log.Info("Creating indexes", zap.String("table", s.cfg.Table))

	pkSQL := fmt.Sprintf("ALTER TABLE %s ADD PRIMARY KEY (%s)", qualified, q(s.table.Columns.ID))
	if _, err := conn.Exec(ctx, pkSQL); err != nil {
		return fmt.Errorf("failed to create primary key: %w", err)
	}

	gistIdx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (%s)",
		pgx.Identifier{s.cfg.Table + "_geom_idx"}.Sanitize(), qualified, q(s.table.Columns.Geometry))
	if _, err := conn.Exec(ctx, gistIdx); err != nil {
		return fmt.Errorf("failed to create spatial index: %w", err)
	}

	if _, err := conn.Exec(ctx, fmt.Sprintf("ANALYZE %s", qualified)); err != nil {
		return fmt.Errorf("failed to analyze table: %w", err)
	}

	log.Info("Indexes created", zap.String("table", s.cfg.Table))
	return nil
}
