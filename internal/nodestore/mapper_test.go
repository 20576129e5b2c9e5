package nodestore

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/wegman-software/pgnode/internal/geo"
	"github.com/wegman-software/pgnode/internal/pgcopy"
)

func strptr(s string) *string { return &s }

// errCodec fails every conversion with a fixed error.
type errCodec struct{ err error }

func (c errCodec) Encode(orb.Geometry) ([]byte, error) { return nil, c.err }
func (c errCodec) Decode([]byte) (orb.Geometry, error) { return nil, c.err }

func testNode() *Node {
	return &Node{
		ID:        624,
		Version:   3,
		UID:       42,
		Timestamp: time.Date(2021, 6, 5, 12, 30, 15, 0, time.UTC),
		Changeset: 9000,
		Tags: Tags{
			"highway": strptr("primary"),
			"name":    strptr("Unter den Linden"),
			"lit":     nil,
		},
		Lon:      13.3774,
		Lat:      52.5162,
		Geometry: orb.Point{13.3774, 52.5162},
	}
}

func TestNewTags(t *testing.T) {
	if got := NewTags(nil); got != nil {
		t.Fatalf("NewTags(nil) = %v, want nil", got)
	}
	tags := NewTags(map[string]string{"highway": "primary", "oneway": "yes"})
	if len(tags) != 2 {
		t.Fatalf("len = %d, want 2", len(tags))
	}
	if v := tags["highway"]; v == nil || *v != "primary" {
		t.Errorf("tags[highway] = %v, want primary", v)
	}
	if v := tags["oneway"]; v == nil || *v != "yes" {
		t.Errorf("tags[oneway] = %v, want yes", v)
	}
}

func TestTagsValues(t *testing.T) {
	var nilTags Tags
	if got := nilTags.Values(); got != nil {
		t.Fatalf("nil.Values() = %v, want nil", got)
	}
	tags := Tags{"highway": strptr("primary"), "lit": nil}
	got := tags.Values()
	want := map[string]string{"highway": "primary"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}
}

func TestColumns(t *testing.T) {
	codec := geo.NewCodec(geo.SRIDWGS84)
	m := NewRowMapper(codec)
	node := testNode()

	args, err := m.Columns(node)
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	if len(args) != 9 {
		t.Fatalf("len(args) = %d, want 9", len(args))
	}
	if got := args[0].(int64); got != 624 {
		t.Errorf("id = %d, want 624", got)
	}
	if got := args[1].(int32); got != 3 {
		t.Errorf("version = %d, want 3", got)
	}
	if got := args[2].(int32); got != 42 {
		t.Errorf("uid = %d, want 42", got)
	}
	ts, ok := args[3].(time.Time)
	if !ok || !ts.Equal(node.Timestamp) {
		t.Errorf("timestamp = %v, want %v", args[3], node.Timestamp)
	}
	if got := args[4].(int64); got != 9000 {
		t.Errorf("changeset = %d, want 9000", got)
	}
	if got := args[6].(float64); got != 13.3774 {
		t.Errorf("lon = %v, want 13.3774", got)
	}
	if got := args[7].(float64); got != 52.5162 {
		t.Errorf("lat = %v, want 52.5162", got)
	}

	wantGeom, err := codec.Encode(node.Geometry)
	if err != nil {
		t.Fatalf("encode geometry: %v", err)
	}
	if got := args[8].([]byte); !bytes.Equal(got, wantGeom) {
		t.Errorf("geometry = %x, want %x", got, wantGeom)
	}
}

func TestColumnsNullMarkers(t *testing.T) {
	m := NewRowMapper(geo.NewCodec(geo.SRIDWGS84))
	args, err := m.Columns(&Node{ID: 625})
	if err != nil {
		t.Fatalf("Columns: %v", err)
	}
	for _, i := range []int{3, 5, 8} {
		if args[i] != nil {
			t.Errorf("args[%d] = %v, want nil", i, args[i])
		}
	}
	// Plain values stay values even at zero.
	if got := args[1].(int32); got != 0 {
		t.Errorf("version = %d, want 0", got)
	}
	if got := args[6].(float64); got != 0 {
		t.Errorf("lon = %v, want 0", got)
	}
}

func TestColumnsBadGeometry(t *testing.T) {
	m := NewRowMapper(errCodec{err: errors.New("boom")})
	_, err := m.Columns(testNode())
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}
}

func TestEncodeRowRoundTrip(t *testing.T) {
	codec := geo.NewCodec(geo.SRIDWGS84)
	m := NewRowMapper(codec)
	full := testNode()
	sparse := &Node{ID: 625, Version: 1, Lon: 0.5, Lat: 0.5}

	var buf bytes.Buffer
	w := pgcopy.NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, node := range []*Node{full, sparse} {
		if err := m.EncodeRow(w, node); err != nil {
			t.Fatalf("encode node %d: %v", node.ID, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r := pgcopy.NewReader(&buf)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("read header: %v", err)
	}

	got, err := readNode(r, codec)
	if err != nil {
		t.Fatalf("read full row: %v", err)
	}
	if got.ID != 624 || got.Version != 3 || got.UID != 42 || got.Changeset != 9000 {
		t.Errorf("scalars = %d/%d/%d/%d, want 624/3/42/9000", got.ID, got.Version, got.UID, got.Changeset)
	}
	if !got.Timestamp.Equal(full.Timestamp) {
		t.Errorf("timestamp = %v, want %v", got.Timestamp, full.Timestamp)
	}
	if !reflect.DeepEqual(got.Tags, full.Tags) {
		t.Errorf("tags = %v, want %v", got.Tags, full.Tags)
	}
	if got.Lon != full.Lon || got.Lat != full.Lat {
		t.Errorf("coords = %v/%v, want %v/%v", got.Lon, got.Lat, full.Lon, full.Lat)
	}
	if pt, ok := got.Geometry.(orb.Point); !ok || pt != full.Geometry.(orb.Point) {
		t.Errorf("geometry = %v, want %v", got.Geometry, full.Geometry)
	}

	got, err = readNode(r, codec)
	if err != nil {
		t.Fatalf("read sparse row: %v", err)
	}
	if got.ID != 625 || got.Version != 1 {
		t.Errorf("scalars = %d/%d, want 625/1", got.ID, got.Version)
	}
	if !got.Timestamp.IsZero() {
		t.Errorf("timestamp = %v, want zero", got.Timestamp)
	}
	if got.Tags != nil {
		t.Errorf("tags = %v, want nil", got.Tags)
	}
	if got.Geometry != nil {
		t.Errorf("geometry = %v, want nil", got.Geometry)
	}

	if _, err := r.ReadRow(); err != io.EOF {
		t.Fatalf("after last row err = %v, want io.EOF", err)
	}
}

func TestEncodeRowBadGeometryKeepsRowBoundary(t *testing.T) {
	m := NewRowMapper(errCodec{err: errors.New("boom")})

	var buf bytes.Buffer
	w := pgcopy.NewWriter(&buf)
	if err := w.WriteHeader(); err != nil {
		t.Fatalf("write header: %v", err)
	}
	headerLen := buf.Len()

	err := m.EncodeRow(w, testNode())
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("err = %v, want ErrEncode", err)
	}
	// The geometry is converted before any row bytes go out, so the failed
	// row must not have started.
	if buf.Len() != headerLen {
		t.Errorf("stream grew to %d bytes, want %d", buf.Len(), headerLen)
	}
}

// readNode decodes one row the way the mapper laid it out.
func readNode(r *pgcopy.Reader, codec GeometryCodec) (*Node, error) {
	fields, err := r.ReadRow()
	if err != nil {
		return nil, err
	}
	if fields != 9 {
		return nil, errors.New("unexpected field count")
	}
	var node Node
	if node.ID, _, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	if node.Version, _, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if node.UID, _, err = r.ReadInt32(); err != nil {
		return nil, err
	}
	if node.Timestamp, err = r.ReadTimestamp(); err != nil {
		return nil, err
	}
	if node.Changeset, _, err = r.ReadInt64(); err != nil {
		return nil, err
	}
	tags, err := r.ReadHstore()
	if err != nil {
		return nil, err
	}
	if tags != nil {
		node.Tags = Tags(tags)
	}
	if node.Lon, _, err = r.ReadFloat64(); err != nil {
		return nil, err
	}
	if node.Lat, _, err = r.ReadFloat64(); err != nil {
		return nil, err
	}
	geom, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if geom != nil {
		if node.Geometry, err = codec.Decode(geom); err != nil {
			return nil, err
		}
	}
	return &node, nil
}
