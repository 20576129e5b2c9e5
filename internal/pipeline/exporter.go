package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/geo"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/nodestore"
	"github.com/wegman-software/pgnode/internal/parquet"
)

// ExportStats summarizes an export run
type ExportStats struct {
	RowsWritten int64
	Duration    time.Duration
}

// Exporter streams the node table into a Parquet file
type Exporter struct {
	cfg   *config.Config
	store nodestore.Store
}

// NewExporter creates an exporter reading from store
func NewExporter(cfg *config.Config, store nodestore.Store) *Exporter {
	return &Exporter{cfg: cfg, store: store}
}

// Run writes every stored node to path, one Parquet row group per
// configured batch size
func (e *Exporter) Run(ctx context.Context, path string) (*ExportStats, error) {
	log := logger.Get()
	start := time.Now()

	writer, err := parquet.NewNodeWriter(path, geo.NewCodec(e.cfg.Projection), e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	log.Info("Starting export",
		zap.String("output", path),
		zap.String("table", e.cfg.Table))

	lastReport := time.Now()
	err = e.store.Each(ctx, func(n *nodestore.Node) error {
		if err := writer.Write(n); err != nil {
			return err
		}
		if time.Since(lastReport) >= 5*time.Second {
			log.Info("Export progress", zap.Int64("rows", writer.Rows()))
			lastReport = time.Now()
		}
		return nil
	})
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("export failed: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close Parquet writer: %w", err)
	}

	stats := &ExportStats{
		RowsWritten: writer.Rows(),
		Duration:    time.Since(start),
	}

	log.Info("Export complete",
		zap.Int64("rows", stats.RowsWritten),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))

	return stats, nil
}
