package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/pipeline"
	"github.com/wegman-software/pgnode/internal/proj"
)

var (
	createIndexes bool
	dropExisting  bool
	appendMode    bool
	bboxStr       string
	projectionStr string
	flexScript    string
)

var importCmd = &cobra.Command{
	Use:   "import <input.osm.pbf>",
	Short: "Bulk load nodes from a PBF file",
	Long: `Stream nodes from an OSM PBF file into the node table:

  1. Create extensions and the target table (UNLOGGED during the load)
  2. Decode PBF blocks in parallel, apply bbox and Lua filters
  3. COPY BINARY the surviving nodes into PostgreSQL
  4. Set the table LOGGED, add the primary key and spatial index

Extraction and loading run concurrently, so rows reach PostgreSQL
while the PBF file is still being decoded.`,
	Args: cobra.ExactArgs(1),
	Run:  runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&createIndexes, "create-indexes", true, "Create primary key and spatial index after loading")
	importCmd.Flags().BoolVar(&dropExisting, "drop-existing", false, "Drop the existing table before loading")
	importCmd.Flags().BoolVar(&appendMode, "append", false, "Load into the existing table without truncating or re-indexing")
	importCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	importCmd.Flags().StringVarP(&projectionStr, "projection", "E", "", "Stored geometry SRID (4326 or 3857)")
	importCmd.Flags().StringVarP(&flexScript, "flex", "S", "", "Lua script filtering and rewriting nodes")
}

func runImport(cmd *cobra.Command, args []string) {
	cfg.InputFile = args[0]
	log := logger.Get()

	// Parse bounding box if provided
	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}

	// Parse projection
	if projectionStr != "" {
		srid, err := proj.ParseSRID(projectionStr)
		if err != nil {
			exitWithError("invalid projection", err)
		}
		cfg.Projection = srid
	}

	if flexScript != "" {
		cfg.FlexScript = flexScript
	}

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	totalStart := time.Now()

	logFields := []zap.Field{
		zap.String("input", cfg.InputFile),
		zap.String("output", fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)),
		zap.String("table", cfg.Table),
		zap.Int("workers", cfg.Workers),
		zap.Int("projection", cfg.Projection),
	}
	if cfg.BBox != nil && cfg.BBox.IsSet {
		logFields = append(logFields, zap.String("bbox",
			fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", cfg.BBox.MinLon, cfg.BBox.MinLat, cfg.BBox.MaxLon, cfg.BBox.MaxLat)))
	}
	if cfg.FlexScript != "" {
		logFields = append(logFields, zap.String("flex", cfg.FlexScript))
	}
	if appendMode {
		logFields = append(logFields, zap.Bool("append", true))
	}
	log.Info("Starting pgnode import", logFields...)

	ctx := context.Background()

	pool, err := pipeline.NewPool(ctx, cfg)
	if err != nil {
		exitWithError("failed to connect to database", err)
	}
	defer pool.Close()

	importer := pipeline.NewImporter(cfg, pool, pipeline.ImporterOptions{
		DropExisting:  dropExisting,
		CreateIndexes: createIndexes,
		Append:        appendMode,
	})

	stats, err := importer.Run(ctx)
	if err != nil {
		exitWithError("import failed", err)
	}

	totalElapsed := time.Since(totalStart)
	log.Info("Import finished",
		zap.Duration("total_time", totalElapsed.Round(time.Second)),
		zap.Int64("nodes_read", stats.Extract.NodesRead),
		zap.Int64("nodes_loaded", stats.RowsLoaded),
		zap.Float64("throughput_mb_s", float64(stats.Extract.BytesRead)/(1024*1024)/totalElapsed.Seconds()),
	)
}
