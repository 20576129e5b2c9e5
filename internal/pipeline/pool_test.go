package pipeline

import (
	"testing"

	"github.com/wegman-software/pgnode/internal/config"
)

func TestNodeTable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DBSchema = "staging"
	cfg.Table = "points"
	cfg.Columns.Geometry = "way"

	table := NodeTable(cfg)

	if table.Schema != "staging" || table.Name != "points" {
		t.Errorf("table = %s.%s, want staging.points", table.Schema, table.Name)
	}
	if table.Columns.Geometry != "way" {
		t.Errorf("geometry column = %s, want way", table.Columns.Geometry)
	}
	if table.Columns.ID != "id" {
		t.Errorf("id column = %s, want id", table.Columns.ID)
	}
}
