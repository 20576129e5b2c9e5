package osc

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleOSC = `<?xml version="1.0" encoding="UTF-8"?>
<osmChange version="0.6" generator="test">
  <create>
    <node id="1" lat="43.7384" lon="7.4246" version="1" changeset="123" timestamp="2024-01-15T12:00:00Z" user="testuser" uid="1">
      <tag k="name" v="Test Node"/>
      <tag k="amenity" v="cafe"/>
    </node>
    <way id="100" version="1" changeset="124">
      <nd ref="1"/>
      <nd ref="2"/>
      <nd ref="3"/>
      <tag k="highway" v="primary"/>
    </way>
  </create>
  <modify>
    <node id="2" lat="43.7390" lon="7.4250" version="2">
      <tag k="name" v="Modified Node"/>
    </node>
    <relation id="200" version="2">
      <member type="way" ref="100" role="outer"/>
      <member type="way" ref="101" role="inner"/>
      <tag k="type" v="multipolygon"/>
    </relation>
  </modify>
  <delete>
    <node id="999"/>
    <way id="998"/>
  </delete>
</osmChange>`

func collectChanges(t *testing.T, changes <-chan Change, errChan <-chan error) []Change {
	t.Helper()

	var all []Change
	for change := range changes {
		all = append(all, change)
	}
	for err := range errChan {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	return all
}

func TestParseOSC(t *testing.T) {
	parser := NewParser()
	changes, errChan := parser.ParseReader(context.Background(), strings.NewReader(sampleOSC))
	all := collectChanges(t, changes, errChan)

	stats := parser.Stats()
	if stats.NodesCreated != 1 {
		t.Errorf("expected 1 node created, got %d", stats.NodesCreated)
	}
	if stats.NodesModified != 1 {
		t.Errorf("expected 1 node modified, got %d", stats.NodesModified)
	}
	if stats.NodesDeleted != 1 {
		t.Errorf("expected 1 node deleted, got %d", stats.NodesDeleted)
	}
	if stats.WaysSkipped != 2 {
		t.Errorf("expected 2 ways skipped, got %d", stats.WaysSkipped)
	}
	if stats.RelationsSkipped != 1 {
		t.Errorf("expected 1 relation skipped, got %d", stats.RelationsSkipped)
	}
	if stats.Total() != 3 {
		t.Errorf("expected 3 total node changes, got %d", stats.Total())
	}

	if len(all) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(all))
	}

	created := all[0]
	if created.Action != ActionCreate {
		t.Errorf("expected create action, got %s", created.Action)
	}
	node := created.Node
	if node == nil {
		t.Fatal("expected node data")
	}
	if node.ID != 1 {
		t.Errorf("expected node ID 1, got %d", node.ID)
	}
	if node.Lat != 43.7384 || node.Lon != 7.4246 {
		t.Errorf("unexpected coordinates: lat=%f lon=%f", node.Lat, node.Lon)
	}
	if node.Version != 1 {
		t.Errorf("expected version 1, got %d", node.Version)
	}
	if node.Changeset != 123 {
		t.Errorf("expected changeset 123, got %d", node.Changeset)
	}
	if node.User != "testuser" || node.UID != 1 {
		t.Errorf("unexpected user: %s (%d)", node.User, node.UID)
	}
	wantTime := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	if !node.Timestamp.Equal(wantTime) {
		t.Errorf("expected timestamp %v, got %v", wantTime, node.Timestamp)
	}
	if node.Tags["name"] != "Test Node" {
		t.Errorf("expected name 'Test Node', got '%s'", node.Tags["name"])
	}
	if node.Tags["amenity"] != "cafe" {
		t.Errorf("expected amenity 'cafe', got '%s'", node.Tags["amenity"])
	}

	modified := all[1]
	if modified.Action != ActionModify {
		t.Errorf("expected modify action, got %s", modified.Action)
	}
	if modified.Node.ID != 2 {
		t.Errorf("expected node ID 2, got %d", modified.Node.ID)
	}
	if modified.Node.Tags["name"] != "Modified Node" {
		t.Errorf("expected name 'Modified Node', got '%s'", modified.Node.Tags["name"])
	}

	deleted := all[2]
	if deleted.Action != ActionDelete {
		t.Errorf("expected delete action, got %s", deleted.Action)
	}
	if deleted.Node.ID != 999 {
		t.Errorf("expected node ID 999, got %d", deleted.Node.ID)
	}
	if len(deleted.Node.Tags) != 0 {
		t.Errorf("expected no tags on deleted node, got %v", deleted.Node.Tags)
	}
}

func TestParseFilePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.osc")
	if err := os.WriteFile(path, []byte(sampleOSC), 0o644); err != nil {
		t.Fatal(err)
	}

	parser := NewParser()
	changes, errChan := parser.ParseFile(context.Background(), path)
	all := collectChanges(t, changes, errChan)

	if len(all) != 3 {
		t.Errorf("expected 3 changes, got %d", len(all))
	}
}

func TestParseFileGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "changes.osc.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(sampleOSC)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	parser := NewParser()
	changes, errChan := parser.ParseFile(context.Background(), path)
	all := collectChanges(t, changes, errChan)

	if len(all) != 3 {
		t.Errorf("expected 3 changes, got %d", len(all))
	}
	stats := parser.Stats()
	if stats.Total() != 3 {
		t.Errorf("expected 3 node changes, got %d", stats.Total())
	}
}

func TestParseFileMissing(t *testing.T) {
	parser := NewParser()
	changes, errChan := parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.osc"))
	for range changes {
	}
	if err := <-errChan; err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseMalformedXML(t *testing.T) {
	parser := NewParser()
	changes, errChan := parser.ParseReader(context.Background(), strings.NewReader(`<osmChange><create><node id="1" lat="1.0"`))
	for range changes {
	}
	if err := <-errChan; err == nil {
		t.Fatal("expected parse error for truncated document")
	}
}
