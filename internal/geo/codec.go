// Package geo converts between orb geometries and the PostGIS binary
// geometry encodings. Writes produce little-endian EWKB carrying a
// configured SRID; reads accept both EWKB and the plain WKB that
// st_asbinary returns.
package geo

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/ewkb"
)

// Spatial reference systems this tooling works in.
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

// Codec encodes and decodes geometries for one spatial reference system.
type Codec struct {
	srid int
}

// NewCodec returns a codec stamping the given SRID onto encoded geometries.
func NewCodec(srid int) *Codec {
	return &Codec{srid: srid}
}

// SRID returns the codec's spatial reference identifier.
func (c *Codec) SRID() int {
	return c.srid
}

// Encode marshals g as EWKB with the codec's SRID.
func (c *Codec) Encode(g orb.Geometry) ([]byte, error) {
	if g == nil {
		return nil, fmt.Errorf("geo: cannot encode nil geometry")
	}
	b, err := ewkb.Marshal(g, c.srid)
	if err != nil {
		return nil, fmt.Errorf("geo: encode %s: %w", g.GeoJSONType(), err)
	}
	return b, nil
}

// Decode unmarshals WKB or EWKB bytes into a geometry. Any SRID embedded in
// the input is accepted and discarded; the caller tracks reference systems.
func (c *Codec) Decode(b []byte) (orb.Geometry, error) {
	g, _, err := ewkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("geo: decode geometry: %w", err)
	}
	return g, nil
}

// Point builds a point geometry from scalar coordinates.
func Point(lon, lat float64) orb.Point {
	return orb.Point{lon, lat}
}
