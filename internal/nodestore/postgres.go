package nodestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Columns names the nine node columns in their fixed semantic order.
type Columns struct {
	ID        string
	Version   string
	UID       string
	Timestamp string
	Changeset string
	Tags      string
	Longitude string
	Latitude  string
	Geometry  string
}

// DefaultColumns is the layout the import DDL creates.
func DefaultColumns() Columns {
	return Columns{
		ID:        "id",
		Version:   "version",
		UID:       "uid",
		Timestamp: "timestamp",
		Changeset: "changeset",
		Tags:      "tags",
		Longitude: "lon",
		Latitude:  "lat",
		Geometry:  "geom",
	}
}

// names returns the column names in tuple order.
func (c Columns) names() []string {
	return []string{c.ID, c.Version, c.UID, c.Timestamp, c.Changeset, c.Tags, c.Longitude, c.Latitude, c.Geometry}
}

// Table locates the node table. Schema may be empty to defer to the
// connection's search path. The table name and column names are fixed at
// construction of a store; there is no runtime renaming.
type Table struct {
	Schema  string
	Name    string
	Columns Columns
}

// DefaultTable targets public.osm_nodes with the default column layout.
func DefaultTable() Table {
	return Table{Schema: "public", Name: "osm_nodes", Columns: DefaultColumns()}
}

// Qualified returns the quoted, optionally schema-qualified table name.
func (t Table) Qualified() string {
	if t.Schema == "" {
		return pgx.Identifier{t.Name}.Sanitize()
	}
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

// ColumnList returns the quoted column names joined in tuple order, as used
// by INSERT and COPY statements.
func (t Table) ColumnList() string {
	quoted := make([]string, 0, 9)
	for _, c := range t.Columns.names() {
		quoted = append(quoted, pgx.Identifier{c}.Sanitize())
	}
	return strings.Join(quoted, ", ")
}

// PostgresStore is the statement-based accessor. All statement text is built
// once here and reused; only parameters vary per call.
type PostgresStore struct {
	pool   Pool
	mapper RowMapper
	table  Table

	selectSQL    string
	selectInSQL  string
	selectAllSQL string
	upsertSQL    string
	deleteSQL    string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore builds the accessor for table over pool. The pool's
// connections must have the hstore type registered (pipeline.NewPool does
// this) for tag parameters and scans to work.
func NewPostgresStore(pool Pool, table Table, mapper RowMapper) *PostgresStore {
	q := func(c string) string { return pgx.Identifier{c}.Sanitize() }
	cols := table.Columns

	selected := make([]string, 0, 9)
	for _, c := range cols.names()[:8] {
		selected = append(selected, q(c))
	}
	selected = append(selected, fmt.Sprintf("st_asbinary(%s)", q(cols.Geometry)))
	selectList := strings.Join(selected, ", ")

	assigned := make([]string, 0, 8)
	for _, c := range cols.names()[1:] {
		assigned = append(assigned, fmt.Sprintf("%s = excluded.%s", q(c), q(c)))
	}

	s := &PostgresStore{pool: pool, mapper: mapper, table: table}
	s.selectSQL = fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		selectList, table.Qualified(), q(cols.ID))
	s.selectInSQL = fmt.Sprintf("SELECT %s FROM %s WHERE %s = ANY ($1)",
		selectList, table.Qualified(), q(cols.ID))
	s.selectAllSQL = fmt.Sprintf("SELECT %s FROM %s", selectList, table.Qualified())
	s.upsertSQL = fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, ST_GeomFromEWKB($9)) ON CONFLICT (%s) DO UPDATE SET %s",
		table.Qualified(), table.ColumnList(), q(cols.ID), strings.Join(assigned, ", "))
	s.deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table.Qualified(), q(cols.ID))
	return s
}

// Get returns the node with id, or nil when no row matches.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Node, error) {
	node, err := s.mapper.FromRow(s.pool.QueryRow(ctx, s.selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	return node, nil
}

// GetMany resolves ids preserving input order and duplicates; absent ids
// yield nil slots. Empty input returns an empty slice without a query.
func (s *PostgresStore) GetMany(ctx context.Context, ids []int64) ([]*Node, error) {
	if len(ids) == 0 {
		return []*Node{}, nil
	}
	rows, err := s.pool.Query(ctx, s.selectInSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: select %d nodes: %w", ErrStore, len(ids), err)
	}
	defer rows.Close()

	found := make(map[int64]*Node, len(ids))
	for rows.Next() {
		node, err := s.mapper.FromRow(rows)
		if err != nil {
			return nil, fmt.Errorf("select %d nodes: %w", len(ids), err)
		}
		found[node.ID] = node
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: select %d nodes: %w", ErrStore, len(ids), err)
	}

	out := make([]*Node, len(ids))
	for i, id := range ids {
		out[i] = found[id]
	}
	return out, nil
}

// Put inserts node or fully replaces the existing row's non-key columns.
func (s *PostgresStore) Put(ctx context.Context, node *Node) error {
	args, err := s.mapper.Columns(node)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, s.upsertSQL, args...); err != nil {
		return fmt.Errorf("%w: put node %d: %w", ErrStore, node.ID, err)
	}
	return nil
}

// PutMany upserts nodes in one batch round trip. Conversion failures surface
// before anything is sent; statement failures abort the remaining batch.
func (s *PostgresStore) PutMany(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, node := range nodes {
		args, err := s.mapper.Columns(node)
		if err != nil {
			return err
		}
		batch.Queue(s.upsertSQL, args...)
	}
	return s.runBatch(ctx, batch, "put", len(nodes))
}

// Delete removes the node with id; absent ids succeed.
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, s.deleteSQL, id); err != nil {
		return fmt.Errorf("%w: delete node %d: %w", ErrStore, id, err)
	}
	return nil
}

// DeleteMany removes a batch of ids in one round trip.
func (s *PostgresStore) DeleteMany(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, id := range ids {
		batch.Queue(s.deleteSQL, id)
	}
	return s.runBatch(ctx, batch, "delete", len(ids))
}

// Each streams every stored node to fn in storage order. Errors from fn
// return unwrapped; storage and decode failures carry their category.
func (s *PostgresStore) Each(ctx context.Context, fn func(*Node) error) error {
	rows, err := s.pool.Query(ctx, s.selectAllSQL)
	if err != nil {
		return fmt.Errorf("%w: scan nodes: %w", ErrStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		node, err := s.mapper.FromRow(rows)
		if err != nil {
			return fmt.Errorf("scan nodes: %w", err)
		}
		if err := fn(node); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: scan nodes: %w", ErrStore, err)
	}
	return nil
}

func (s *PostgresStore) runBatch(ctx context.Context, batch *pgx.Batch, op string, n int) error {
	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%w: %s %d nodes (statement %d): %w", ErrStore, op, n, i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("%w: %s %d nodes: %w", ErrStore, op, n, err)
	}
	return nil
}
