package metrics

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewCollectorClampsInterval(t *testing.T) {
	c := NewCollector(10*time.Millisecond, zap.NewNop())
	if c.interval != 30*time.Second {
		t.Errorf("interval = %v, want 30s for sub-second input", c.interval)
	}

	c = NewCollector(5*time.Second, zap.NewNop())
	if c.interval != 5*time.Second {
		t.Errorf("interval = %v, want 5s", c.interval)
	}
}

func TestCollectPopulatesSnapshot(t *testing.T) {
	c := NewCollector(time.Minute, zap.NewNop())

	if c.GetMetrics() != nil {
		t.Fatal("expected no metrics before first collect")
	}

	c.collect()

	m := c.GetMetrics()
	if m == nil {
		t.Fatal("expected metrics after collect")
	}
	if m.Timestamp.IsZero() {
		t.Error("expected a timestamp on the snapshot")
	}

	// Second sample works against the recorded baselines
	c.collect()
	if c.GetMetrics() == nil {
		t.Fatal("expected metrics after second collect")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	c := NewCollector(time.Minute, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatGB(1.25); got != "1.2 GB" && got != "1.3 GB" {
		t.Errorf("formatGB(1.25) = %q", got)
	}
	if got := formatGB(0); got != "0.0 GB" {
		t.Errorf("formatGB(0) = %q", got)
	}
	if got := formatMBps(42.5); got != "42.5 MB/s" {
		t.Errorf("formatMBps(42.5) = %q", got)
	}
}
