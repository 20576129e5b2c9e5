package expire

import (
	"testing"
)

func TestLatLonToTile(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		zoom     int
		wantX    int
		wantY    int
	}{
		{
			name:  "London at zoom 10",
			lat:   51.5074,
			lon:   -0.1278,
			zoom:  10,
			wantX: 511,
			wantY: 340,
		},
		{
			name:  "Monaco at zoom 12",
			lat:   43.7384,
			lon:   7.4246,
			zoom:  12,
			wantX: 2132,
			wantY: 1493,
		},
		{
			name:  "Berlin at zoom 12",
			lat:   52.5162,
			lon:   13.3774,
			zoom:  12,
			wantX: 2200,
			wantY: 1343,
		},
		{
			name:  "New York at zoom 10",
			lat:   40.7128,
			lon:   -74.0060,
			zoom:  10,
			wantX: 301,
			wantY: 385,
		},
		{
			name:  "Origin at zoom 0",
			lat:   0,
			lon:   0,
			zoom:  0,
			wantX: 0,
			wantY: 0,
		},
		{
			name:  "Origin at zoom 1",
			lat:   0,
			lon:   0,
			zoom:  1,
			wantX: 1,
			wantY: 1,
		},
		{
			name:  "Near equator at zoom 15",
			lat:   0.5,
			lon:   0.5,
			zoom:  15,
			wantX: 16429,
			wantY: 16338,
		},
		{
			name:  "Beyond mercator limit clamps",
			lat:   89.9,
			lon:   0,
			zoom:  5,
			wantX: 16,
			wantY: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tile := LatLonToTile(tt.lat, tt.lon, tt.zoom)
			if tile.X != tt.wantX || tile.Y != tt.wantY {
				t.Errorf("LatLonToTile(%f, %f, %d) = (%d, %d), want (%d, %d)",
					tt.lat, tt.lon, tt.zoom, tile.X, tile.Y, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestGetAffectedTilesForPoint(t *testing.T) {
	tiles := GetAffectedTilesForPoint(43.7384, 7.4246, 10, 12)

	// One tile per zoom level.
	if len(tiles) != 3 {
		t.Fatalf("expected 3 tiles (one per zoom), got %d", len(tiles))
	}

	zooms := make(map[int]bool)
	for _, tile := range tiles {
		zooms[tile.Z] = true
	}
	for z := 10; z <= 12; z++ {
		if !zooms[z] {
			t.Errorf("expected tile at zoom %d", z)
		}
	}
}

func TestTileString(t *testing.T) {
	tile := Tile{Z: 12, X: 2144, Y: 1501}
	expected := "12/2144/1501"
	if tile.String() != expected {
		t.Errorf("expected %s, got %s", expected, tile.String())
	}
}
