package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spf13/cobra"
	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/flex"
	"github.com/wegman-software/pgnode/internal/geo"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/nodestore"
	"github.com/wegman-software/pgnode/internal/pipeline"
	"github.com/wegman-software/pgnode/internal/replication"
)

var (
	initReplication bool
	sourceStr       string
	stateFile       string
	maxUpdates      int
	expireOutput    string
	expireMinZoom   int
	expireMaxZoom   int
)

var updateCmd = &cobra.Command{
	Use:   "update [file.osc ...]",
	Short: "Apply OsmChange files to the node table",
	Long: `Apply node changes to the database, either from local OsmChange
files or from a replication server.

With file arguments, each file is applied in order. Plain .osc and
gzip-compressed .osc.gz files are supported.

Without arguments, pgnode runs in replication mode: it reads the local
state file, downloads pending diffs from the source and applies them
until caught up. Initialize the state first:

  pgnode update --init --source geofabrik/monaco --state-file state.txt

Creates and modifies become upserts; deletes remove rows. A node that
no longer passes the bbox or Lua filters is removed as well. With
--expire-output, the Web Mercator tiles touched by the changes are
written as a z/x/y list.`,
	Args: cobra.ArbitraryArgs,
	Run:  runUpdate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show replication status",
	Long: `Compare the local replication state against the remote source and
report the sequence lag.`,
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)

	updateCmd.Flags().BoolVar(&initReplication, "init", false, "Initialize replication state from the source and exit")
	updateCmd.Flags().StringVar(&sourceStr, "source", "", "Replication source (e.g., geofabrik/monaco, planet-minute, or a URL)")
	updateCmd.Flags().StringVar(&stateFile, "state-file", "", "Local file tracking the applied sequence")
	updateCmd.Flags().IntVar(&maxUpdates, "max-updates", 0, "Maximum number of diffs to apply (0 = until caught up)")
	updateCmd.Flags().StringVarP(&bboxStr, "bbox", "b", "", "Bounding box filter: minlon,minlat,maxlon,maxlat")
	updateCmd.Flags().StringVarP(&flexScript, "flex", "S", "", "Lua script filtering and rewriting nodes")
	updateCmd.Flags().StringVarP(&expireOutput, "expire-output", "e", "", "Path to expire tiles output file")
	updateCmd.Flags().IntVar(&expireMinZoom, "expire-min-zoom", 0, "Minimum zoom level for tile expiry")
	updateCmd.Flags().IntVar(&expireMaxZoom, "expire-max-zoom", 0, "Maximum zoom level for tile expiry")

	statusCmd.Flags().StringVar(&sourceStr, "source", "", "Replication source (e.g., geofabrik/monaco, planet-minute, or a URL)")
	statusCmd.Flags().StringVar(&stateFile, "state-file", "", "Local file tracking the applied sequence")
}

func runUpdate(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if bboxStr != "" {
		bbox, err := config.ParseBBox(bboxStr)
		if err != nil {
			exitWithError("invalid bbox", err)
		}
		cfg.BBox = bbox
	}
	if flexScript != "" {
		cfg.FlexScript = flexScript
	}
	if expireOutput != "" {
		cfg.ExpireOutput = expireOutput
	}
	if expireMinZoom > 0 {
		cfg.ExpireMinZoom = expireMinZoom
	}
	if expireMaxZoom > 0 {
		cfg.ExpireMaxZoom = expireMaxZoom
	}
	if sourceStr != "" {
		cfg.ReplicationURL = sourceStr
	}
	if stateFile != "" {
		cfg.StateFile = stateFile
	}

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}

	// Replication init needs no database connection
	if initReplication {
		replicator, err := newReplicator()
		if err != nil {
			exitWithError("failed to create replicator", err)
		}
		if err := replicator.Init(context.Background()); err != nil {
			exitWithError("failed to initialize replication", err)
		}
		state := replicator.State()
		fmt.Printf("Replication initialized.\nSource: %s\nSequence: %d\nTimestamp: %s\n",
			cfg.ReplicationURL, state.SequenceNumber, state.Timestamp.Format(time.RFC3339))
		return
	}

	// Cancel on Ctrl+C so the current batch flushes and state stays consistent
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	pool, err := pipeline.NewPool(ctx, cfg)
	if err != nil {
		exitWithError("failed to connect to database", err)
	}
	defer pool.Close()

	store := nodestore.NewPostgresStore(pool, pipeline.NodeTable(cfg), nodestore.NewRowMapper(geo.NewCodec(cfg.Projection)))

	var filter *flex.Filter
	if cfg.FlexScript != "" {
		filter = flex.NewFilter(cfg.Projection)
		defer filter.Close()
		if err := filter.LoadFile(cfg.FlexScript); err != nil {
			exitWithError("failed to load flex script", err)
		}
	}

	updater, err := pipeline.NewUpdater(cfg, store, filter)
	if err != nil {
		exitWithError("failed to create updater", err)
	}

	if len(args) > 0 {
		applyLocalFiles(ctx, updater, args)
	} else {
		applyReplication(ctx, updater)
	}

	writeExpireList(updater)
}

// applyLocalFiles applies OSC files in argument order
func applyLocalFiles(ctx context.Context, updater *pipeline.Updater, paths []string) {
	log := logger.Get()

	for _, path := range paths {
		stats, err := updater.ApplyFile(ctx, path)
		if err != nil {
			exitWithError(fmt.Sprintf("failed to apply %s", path), err)
		}
		log.Info("Applied change file",
			zap.String("file", path),
			zap.Int64("created", stats.NodesCreated),
			zap.Int64("modified", stats.NodesModified),
			zap.Int64("deleted", stats.NodesDeleted))
	}
}

// applyReplication catches up against the replication source, one diff
// at a time
func applyReplication(ctx context.Context, updater *pipeline.Updater) {
	log := logger.Get()

	replicator, err := newReplicator()
	if err != nil {
		exitWithError("failed to create replicator", err)
	}
	if err := replicator.LoadState(); err != nil {
		exitWithError("failed to load replication state", err)
	}

	updatesApplied := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("Replication interrupted", zap.Int("updates_applied", updatesApplied))
			return
		default:
		}

		hasUpdates, behind, err := replicator.CheckForUpdates(ctx)
		if err != nil {
			exitWithError("failed to check for updates", err)
		}
		if !hasUpdates {
			if updatesApplied == 0 {
				log.Info("Already up to date")
			} else {
				log.Info("Caught up", zap.Int("updates_applied", updatesApplied))
			}
			return
		}

		log.Info("Updates available", zap.Int64("behind", behind))

		oscPath, nextState, err := replicator.FetchNextUpdate(ctx)
		if err != nil {
			exitWithError("failed to fetch update", err)
		}
		if oscPath == "" {
			log.Warn("Update not yet available, try again later")
			return
		}

		if _, err := updater.ApplyFile(ctx, oscPath); err != nil {
			exitWithError("failed to apply update", err)
		}

		if err := replicator.UpdateState(nextState); err != nil {
			exitWithError("failed to update state", err)
		}

		updatesApplied++
		log.Info("Applied update",
			zap.Int64("sequence", nextState.SequenceNumber),
			zap.Time("timestamp", nextState.Timestamp))

		if maxUpdates > 0 && updatesApplied >= maxUpdates {
			log.Info("Reached max updates limit", zap.Int("max", maxUpdates))
			return
		}
	}
}

// writeExpireList writes the collected expire tiles, if any
func writeExpireList(updater *pipeline.Updater) {
	tracker := updater.ExpireTracker()
	if tracker == nil {
		return
	}
	if err := tracker.AppendToFile(cfg.ExpireOutput); err != nil {
		exitWithError("failed to write expire tiles", err)
	}
}

func newReplicator() (*replication.Replicator, error) {
	if cfg.ReplicationURL == "" {
		return nil, fmt.Errorf("--source is required (or set replication_url in the config file)")
	}
	if cfg.StateFile == "" {
		return nil, fmt.Errorf("--state-file is required (or set state_file in the config file)")
	}

	source, err := replication.ParseSource(cfg.ReplicationURL)
	if err != nil {
		return nil, fmt.Errorf("invalid source %q: %w", cfg.ReplicationURL, err)
	}

	return replication.NewReplicator(source, cfg.StateFile)
}

func runStatus(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if sourceStr != "" {
		cfg.ReplicationURL = sourceStr
	}
	if stateFile != "" {
		cfg.StateFile = stateFile
	}

	replicator, err := newReplicator()
	if err != nil {
		exitWithError("failed to create replicator", err)
	}

	status, err := replicator.GetStatus(context.Background())
	if err != nil {
		exitWithError("failed to get status", err)
	}

	log.Info("Replication status",
		zap.String("source", status.Source),
		zap.Int64("local_sequence", status.LocalSequence),
		zap.Int64("remote_sequence", status.RemoteSequence),
		zap.Int64("behind", status.Behind),
		zap.Duration("lag", status.Lag))

	fmt.Print(status.String())
}
