package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/nodestore"
)

func TestExporterRun(t *testing.T) {
	store := newFakeStore()
	store.nodes[1] = &nodestore.Node{
		ID: 1, Version: 1, UID: 7, Changeset: 100,
		Tags: nodestore.NewTags(map[string]string{"amenity": "cafe"}),
		Lon:  13.3774, Lat: 52.5162,
		Geometry: orb.Point{13.3774, 52.5162},
	}
	store.nodes[2] = &nodestore.Node{
		ID: 2, Version: 1, UID: 7, Changeset: 100,
		Lon: 2.3522, Lat: 48.8566,
	}

	path := filepath.Join(t.TempDir(), "nodes.parquet")
	exporter := NewExporter(config.DefaultConfig(), store)

	stats, err := exporter.Run(context.Background(), path)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if stats.RowsWritten != 2 {
		t.Errorf("RowsWritten = %d, want 2", stats.RowsWritten)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("output file is empty")
	}
}

type failingStore struct {
	*fakeStore
}

func (s *failingStore) Each(ctx context.Context, fn func(*nodestore.Node) error) error {
	return errors.New("connection lost")
}

func TestExporterRunStoreError(t *testing.T) {
	store := &failingStore{fakeStore: newFakeStore()}
	path := filepath.Join(t.TempDir(), "nodes.parquet")

	exporter := NewExporter(config.DefaultConfig(), store)
	if _, err := exporter.Run(context.Background(), path); err == nil {
		t.Fatal("expected error when the store iteration fails")
	}
}
