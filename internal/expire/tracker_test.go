package expire

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrackerDeduplicates(t *testing.T) {
	tracker := NewTracker(12, 12)

	// Two nearby points in the same zoom-12 tile, expired repeatedly.
	tracker.ExpirePoint(52.5162, 13.3774)
	tracker.ExpirePoint(52.5162, 13.3774)
	tracker.ExpirePoint(52.5170, 13.3780)

	if got := tracker.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestTrackerZoomRange(t *testing.T) {
	tracker := NewTracker(10, 12)
	tracker.ExpirePoint(43.7384, 7.4246)

	if got := tracker.Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}

	counts := tracker.CountByZoom()
	for z := 10; z <= 12; z++ {
		if counts[z] != 1 {
			t.Errorf("zoom %d count = %d, want 1", z, counts[z])
		}
	}
}

func TestTrackerDisabled(t *testing.T) {
	tracker := NewTracker(12, 12)
	tracker.Disable()

	tracker.ExpirePoint(52.5162, 13.3774)
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() on disabled tracker = %d, want 0", got)
	}
	if tracker.IsEnabled() {
		t.Error("IsEnabled() = true after Disable")
	}
}

func TestTrackerGetTilesSorted(t *testing.T) {
	tracker := NewTracker(12, 12)
	tracker.ExpirePoint(43.7384, 7.4246)  // Monaco: 12/2132/1493
	tracker.ExpirePoint(52.5162, 13.3774) // Berlin: 12/2200/1343

	tiles := tracker.GetTiles()
	if len(tiles) != 2 {
		t.Fatalf("len = %d, want 2", len(tiles))
	}
	if tiles[0].X != 2132 || tiles[1].X != 2200 {
		t.Errorf("tiles not sorted by column: %v", tiles)
	}
}

func TestTrackerWriteToFile(t *testing.T) {
	tracker := NewTracker(12, 12)
	tracker.ExpirePoint(52.5162, 13.3774)
	tracker.ExpirePoint(43.7384, 7.4246)

	path := filepath.Join(t.TempDir(), "expire.list")
	if err := tracker.WriteToFile(path); err != nil {
		t.Fatalf("WriteToFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0] != "12/2132/1493" || lines[1] != "12/2200/1343" {
		t.Errorf("file content = %v", lines)
	}
}

func TestTrackerAppendToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expire.list")

	first := NewTracker(12, 12)
	first.ExpirePoint(52.5162, 13.3774)
	if err := first.AppendToFile(path); err != nil {
		t.Fatalf("AppendToFile: %v", err)
	}

	second := NewTracker(12, 12)
	second.ExpirePoint(43.7384, 7.4246)
	if err := second.AppendToFile(path); err != nil {
		t.Fatalf("AppendToFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("lines = %v, want two appended runs", lines)
	}
}

func TestTrackerClear(t *testing.T) {
	tracker := NewTracker(12, 14)
	tracker.ExpirePoint(52.5162, 13.3774)
	tracker.Clear()

	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() after Clear = %d, want 0", got)
	}

	stats := tracker.GetStats()
	if stats.TotalTiles != 0 || stats.MinZoom != 12 || stats.MaxZoom != 14 {
		t.Errorf("GetStats() = %+v", stats)
	}
}
