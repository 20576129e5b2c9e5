package nodestore

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wegman-software/pgnode/internal/pgcopy"
)

// RowMapper converts nodes to and from the flat nine-column tuple shared by
// the statement and bulk paths. The column order is fixed everywhere: id,
// version, uid, timestamp, changeset, tags, longitude, latitude, geometry.
// A RowMapper is pure; it performs no I/O of its own.
type RowMapper struct {
	codec GeometryCodec
}

// NewRowMapper returns a mapper serializing geometries with codec.
func NewRowMapper(codec GeometryCodec) RowMapper {
	return RowMapper{codec: codec}
}

// Columns returns the nine statement arguments for node, in column order.
// Null markers follow the Node conventions: zero timestamp, nil tags and nil
// geometry become SQL nulls.
func (m RowMapper) Columns(node *Node) ([]any, error) {
	geom, err := m.geometryBytes(node)
	if err != nil {
		return nil, err
	}
	var ts any
	if !node.Timestamp.IsZero() {
		ts = node.Timestamp.UTC()
	}
	var tags any
	if node.Tags != nil {
		tags = pgtype.Hstore(node.Tags)
	}
	var geomArg any
	if geom != nil {
		geomArg = geom
	}
	return []any{node.ID, node.Version, node.UID, ts, node.Changeset, tags, node.Lon, node.Lat, geomArg}, nil
}

// FromRow scans one selected row back into a node. It works on both QueryRow
// results and iterated rows. pgx.ErrNoRows passes through untouched so
// callers can translate it into an absent result; every other failure wraps
// ErrDecode.
func (m RowMapper) FromRow(row pgx.Row) (*Node, error) {
	var (
		node Node
		ts   *time.Time
		tags pgtype.Hstore
		geom []byte
	)
	err := row.Scan(&node.ID, &node.Version, &node.UID, &ts, &node.Changeset, &tags, &node.Lon, &node.Lat, &geom)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan node row: %w", ErrDecode, err)
	}
	if ts != nil {
		node.Timestamp = ts.UTC()
	}
	if tags != nil {
		node.Tags = Tags(tags)
	}
	if geom != nil {
		g, err := m.codec.Decode(geom)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d geometry: %w", ErrDecode, node.ID, err)
		}
		node.Geometry = g
	}
	return &node, nil
}

// EncodeRow writes node as one bulk-binary row. The geometry is serialized
// before any row bytes are emitted, so a codec failure aborts with the
// stream still aligned on a row boundary.
func (m RowMapper) EncodeRow(w *pgcopy.Writer, node *Node) error {
	geom, err := m.geometryBytes(node)
	if err != nil {
		return err
	}
	if err := w.BeginRow(9); err != nil {
		return err
	}
	if err := w.WriteInt64(node.ID); err != nil {
		return err
	}
	if err := w.WriteInt32(node.Version); err != nil {
		return err
	}
	if err := w.WriteInt32(node.UID); err != nil {
		return err
	}
	if err := w.WriteTimestamp(node.Timestamp); err != nil {
		return err
	}
	if err := w.WriteInt64(node.Changeset); err != nil {
		return err
	}
	if err := w.WriteHstore(node.Tags); err != nil {
		return err
	}
	if err := w.WriteFloat64(node.Lon); err != nil {
		return err
	}
	if err := w.WriteFloat64(node.Lat); err != nil {
		return err
	}
	return w.WriteBytes(geom)
}

func (m RowMapper) geometryBytes(node *Node) ([]byte, error) {
	if node.Geometry == nil {
		return nil, nil
	}
	b, err := m.codec.Encode(node.Geometry)
	if err != nil {
		return nil, fmt.Errorf("%w: node %d geometry: %w", ErrEncode, node.ID, err)
	}
	return b, nil
}
