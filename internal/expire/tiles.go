package expire

import (
	"fmt"
	"math"
)

// Tile represents a map tile at a specific zoom level
type Tile struct {
	Z int // Zoom level
	X int // X coordinate (column)
	Y int // Y coordinate (row)
}

// String returns the tile in z/x/y format
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// Key returns a unique string key for the tile (for deduplication)
func (t Tile) Key() string {
	return t.String()
}

// Web Mercator constants
const (
	// Maximum latitude for Web Mercator (approximately 85.051129°)
	MaxMercatorLat = 85.0511287798
	// Minimum latitude for Web Mercator
	MinMercatorLat = -85.0511287798
)

// LatLonToTile converts latitude/longitude to tile coordinates at a given zoom level
// Uses the standard Web Mercator tile scheme (OSM/Google style)
func LatLonToTile(lat, lon float64, zoom int) Tile {
	// Clamp latitude to valid Web Mercator range
	if lat > MaxMercatorLat {
		lat = MaxMercatorLat
	}
	if lat < MinMercatorLat {
		lat = MinMercatorLat
	}

	// Clamp longitude to valid range
	if lon < -180 {
		lon = -180
	}
	if lon > 180 {
		lon = 180
	}

	n := float64(int(1) << zoom) // 2^zoom

	// Calculate X tile coordinate
	x := int((lon + 180.0) / 360.0 * n)
	if x >= int(n) {
		x = int(n) - 1
	}

	// Calculate Y tile coordinate using Mercator projection
	latRad := lat * math.Pi / 180.0
	y := int((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)
	if y >= int(n) {
		y = int(n) - 1
	}
	if y < 0 {
		y = 0
	}

	return Tile{Z: zoom, X: x, Y: y}
}

// GetAffectedTilesForPoint returns all tiles containing a point across zoom levels
func GetAffectedTilesForPoint(lat, lon float64, minZoom, maxZoom int) []Tile {
	tiles := make([]Tile, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		tiles = append(tiles, LatLonToTile(lat, lon, z))
	}
	return tiles
}
