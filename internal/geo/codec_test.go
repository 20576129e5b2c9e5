package geo

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/paulmach/orb"
)

func TestEncodePointGolden(t *testing.T) {
	// Little-endian EWKB, SRID flag 0x20000000, SRID 4326, POINT(1 2).
	want, _ := hex.DecodeString("0101000020e6100000000000000000f03f0000000000000040")

	got, err := NewCodec(SRIDWGS84).Encode(Point(1, 2))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("Encode() = %x, want %x", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	c := NewCodec(SRIDWGS84)
	p := Point(13.3774, 52.5162)

	b, err := c.Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	g, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got, ok := g.(orb.Point)
	if !ok {
		t.Fatalf("Decode() type = %T, want orb.Point", g)
	}
	if got != p {
		t.Errorf("round trip = %v, want %v", got, p)
	}
}

func TestDecodePlainWKB(t *testing.T) {
	// st_asbinary output carries no SRID; the decoder must accept it.
	b, _ := hex.DecodeString("0101000000000000000000f03f0000000000000040")

	g, err := NewCodec(SRIDWGS84).Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if p, ok := g.(orb.Point); !ok || p != (orb.Point{1, 2}) {
		t.Errorf("Decode() = %v (%T), want POINT(1 2)", g, g)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := NewCodec(SRIDWGS84).Decode([]byte{0x42, 0x00, 0x13}); err == nil {
		t.Error("expected error decoding garbage bytes")
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := NewCodec(SRIDWGS84).Encode(nil); err == nil {
		t.Error("expected error encoding nil geometry")
	}
}
