package proj

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestParseSRID(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "4326", want: 4326},
		{input: "EPSG:4326", want: 4326},
		{input: "3857", want: 3857},
		{input: "EPSG:3857", want: 3857},
		{input: "900913", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseSRID(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSRID(%q) = %d, want error", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSRID(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSRID(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestNewTransformerRejectsUnsupported(t *testing.T) {
	if _, err := NewTransformer(3857, 4326); err == nil {
		t.Error("source 3857: want error")
	}
	if _, err := NewTransformer(4326, 900913); err == nil {
		t.Error("target 900913: want error")
	}
}

func TestTransformWebMercator(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID3857)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		lon, lat float64
		x, y     float64
	}{
		{name: "berlin", lon: 13.3774, lat: 52.5162, x: 1489165.3561379379, y: 6894004.638463682},
		{name: "origin", lon: 0, lat: 0, x: 0, y: 0},
		{name: "date line", lon: -180, lat: 0, x: -20037508.342789244, y: 0},
		{name: "pole clamped", lon: 0, lat: 89.9, x: 0, y: 20048966.104014594},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := tr.Transform(tt.lon, tt.lat)
			if math.Abs(x-tt.x) > 1e-6 || math.Abs(y-tt.y) > 1e-6 {
				t.Errorf("Transform(%v, %v) = (%v, %v), want (%v, %v)", tt.lon, tt.lat, x, y, tt.x, tt.y)
			}
		})
	}
}

func TestTransformIdentity(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID4326)
	if err != nil {
		t.Fatal(err)
	}
	if tr.NeedsTransform() {
		t.Error("NeedsTransform() = true for identity")
	}
	if x, y := tr.Transform(13.3774, 52.5162); x != 13.3774 || y != 52.5162 {
		t.Errorf("identity moved the point to (%v, %v)", x, y)
	}
}

func TestPoint(t *testing.T) {
	tr, err := NewTransformer(SRID4326, SRID3857)
	if err != nil {
		t.Fatal(err)
	}
	got := tr.Point(orb.Point{13.3774, 52.5162})
	if math.Abs(got[0]-1489165.3561379379) > 1e-6 || math.Abs(got[1]-6894004.638463682) > 1e-6 {
		t.Errorf("Point = %v", got)
	}
}
