package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/flex"
	"github.com/wegman-software/pgnode/internal/geo"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/metrics"
	"github.com/wegman-software/pgnode/internal/nodestore"
	"github.com/wegman-software/pgnode/internal/pbf"
)

// ImporterOptions holds import-specific knobs. Append loads into the
// existing table without preparing or finalizing it.
type ImporterOptions struct {
	DropExisting  bool
	CreateIndexes bool
	Append        bool
}

// ImportStats holds combined import statistics
type ImportStats struct {
	Extract    pbf.Stats
	RowsLoaded int64
	Duration   time.Duration
}

// Importer runs the bulk load: PBF extraction streamed through the
// binary COPY loader into a fresh node table.
type Importer struct {
	cfg  *config.Config
	pool *pgxpool.Pool
	opts ImporterOptions
}

// NewImporter creates a new importer over an open pool
func NewImporter(cfg *config.Config, pool *pgxpool.Pool, opts ImporterOptions) *Importer {
	return &Importer{
		cfg:  cfg,
		pool: pool,
		opts: opts,
	}
}

// Run executes the import
func (i *Importer) Run(ctx context.Context) (*ImportStats, error) {
	log := logger.Get()
	start := time.Now()

	if i.cfg.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()

		collector := metrics.NewCollector(i.cfg.MetricsInterval, log)
		go collector.Start(metricsCtx)
		log.Info("System metrics collection started",
			zap.Duration("interval", i.cfg.MetricsInterval))
	}

	var filter *flex.Filter
	if i.cfg.FlexScript != "" {
		filter = flex.NewFilter(i.cfg.Projection)
		defer filter.Close()
		if err := filter.LoadFile(i.cfg.FlexScript); err != nil {
			return nil, err
		}
		log.Info("Flex script loaded", zap.String("script", i.cfg.FlexScript))
	}

	extractor, err := pbf.NewExtractor(i.cfg, filter)
	if err != nil {
		return nil, err
	}

	schema := NewSchema(i.cfg, i.pool)
	if err := schema.Ensure(ctx); err != nil {
		return nil, err
	}
	if !i.opts.Append {
		if err := schema.PrepareTable(ctx, i.opts.DropExisting); err != nil {
			return nil, fmt.Errorf("failed to prepare table %s: %w", i.cfg.Table, err)
		}
	}

	table := NodeTable(i.cfg)
	mapper := nodestore.NewRowMapper(geo.NewCodec(i.cfg.Projection))
	loader := nodestore.NewCopyLoader(i.pool, table, mapper)

	log.Info("Starting import",
		zap.String("input", i.cfg.InputFile),
		zap.String("table", i.cfg.Table),
		zap.Int("projection", i.cfg.Projection))

	nodes, errChan := extractor.Extract(ctx)

	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	go i.reportProgress(progressCtx, extractor)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := loader.Load(gctx, nodestore.ChanSource(gctx, nodes)); err != nil {
			return fmt.Errorf("copy load failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	cancelProgress()

	if i.opts.CreateIndexes && !i.opts.Append {
		indexStart := time.Now()
		if err := schema.Finalize(ctx); err != nil {
			return nil, err
		}
		log.Info("Table finalized", zap.Duration("duration", time.Since(indexStart).Round(time.Second)))
	}

	extractStats := extractor.Stats()
	stats := &ImportStats{
		Extract:    extractStats,
		RowsLoaded: extractStats.NodesKept,
		Duration:   time.Since(start),
	}

	log.Info("Import complete",
		zap.Int64("nodes_read", extractStats.NodesRead),
		zap.Int64("nodes_loaded", extractStats.NodesKept),
		zap.Int64("skipped_bounds", extractStats.SkippedBounds),
		zap.Int64("skipped_filter", extractStats.SkippedFilter),
		zap.String("input_size", FormatBytes(extractStats.BytesRead)),
		zap.Duration("duration", stats.Duration.Round(time.Second)))

	return stats, nil
}

// reportProgress periodically logs load progress with instantaneous rates
func (i *Importer) reportProgress(ctx context.Context, extractor *pbf.Extractor) {
	log := logger.Get()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastKept int64
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := extractor.Stats()
			now := time.Now()
			elapsed := now.Sub(lastTime).Seconds()

			var rate float64
			if elapsed > 0 {
				rate = float64(stats.NodesKept-lastKept) / elapsed
			}

			log.Info("Loading progress",
				zap.Int64("read", stats.NodesRead),
				zap.Int64("loaded", stats.NodesKept),
				zap.String("rate", FormatThroughput(rate)))

			lastKept = stats.NodesKept
			lastTime = now
		}
	}
}
