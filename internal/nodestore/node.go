// Package nodestore persists OSM point entities in PostgreSQL. It offers two
// access paths over the same nine-column layout: PostgresStore runs
// parameterized statements for point and batch reads, upserts and deletes,
// and CopyLoader streams large batches through COPY FROM STDIN BINARY using
// the pgcopy wire encoder.
package nodestore

import (
	"time"

	"github.com/paulmach/orb"
)

// Tags is a node's free-form key/value map with hstore semantics: values are
// nullable, keys are not. A nil Tags marks the whole column as null; a
// non-nil empty map stays an empty hstore. Key order carries no meaning.
type Tags map[string]*string

// NewTags converts a plain string map into Tags with every value present.
func NewTags(kv map[string]string) Tags {
	if kv == nil {
		return nil
	}
	t := make(Tags, len(kv))
	for k, v := range kv {
		t[k] = &v
	}
	return t
}

// Values flattens the tags back into a plain map, dropping null values.
func (t Tags) Values() map[string]string {
	if t == nil {
		return nil
	}
	kv := make(map[string]string, len(t))
	for k, v := range t {
		if v != nil {
			kv[k] = *v
		}
	}
	return kv
}

// Node is one persisted point entity. ID is the unique key. Version, UID and
// Changeset are revision metadata carried as plain values; zero is stored as
// zero, never as null. The nullable fields use Go zero markers instead: the
// zero Timestamp, a nil Tags map and a nil Geometry all persist as null.
//
// Lon and Lat are stored redundantly next to Geometry for scalar access.
// Nothing in this package checks that the pair matches the geometry; the
// geometry is transmitted exactly as given.
type Node struct {
	ID        int64
	Version   int32
	UID       int32
	Timestamp time.Time
	Changeset int64
	Tags      Tags
	Lon       float64
	Lat       float64
	Geometry  orb.Geometry
}
