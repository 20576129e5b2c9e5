package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/pgnode/internal/geo"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/nodestore"
	"github.com/wegman-software/pgnode/internal/pipeline"
)

var exportCmd = &cobra.Command{
	Use:   "export <output.parquet>",
	Short: "Export the node table to a Parquet file",
	Long: `Stream the node table into a Zstd-compressed Parquet file.

Columns: id, version, uid, timestamp, changeset, tags (JSON), lon, lat
and geometry (EWKB). Rows stream straight from the table, so the
export works on tables larger than memory.`,
	Args: cobra.ExactArgs(1),
	Run:  runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	ctx := context.Background()

	pool, err := pipeline.NewPool(ctx, cfg)
	if err != nil {
		exitWithError("failed to connect to database", err)
	}
	defer pool.Close()

	store := nodestore.NewPostgresStore(pool, pipeline.NodeTable(cfg), nodestore.NewRowMapper(geo.NewCodec(cfg.Projection)))
	exporter := pipeline.NewExporter(cfg, store)

	stats, err := exporter.Run(ctx, args[0])
	if err != nil {
		exitWithError("export failed", err)
	}

	log.Info("Export finished",
		zap.String("output", args[0]),
		zap.Int64("rows", stats.RowsWritten))
}
