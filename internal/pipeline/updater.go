package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/paulmach/orb"
	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/expire"
	"github.com/wegman-software/pgnode/internal/flex"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/nodestore"
	"github.com/wegman-software/pgnode/internal/osc"
	"github.com/wegman-software/pgnode/internal/proj"
)

// UpdateStats tracks change application statistics
type UpdateStats struct {
	NodesCreated     int64
	NodesModified    int64
	NodesDeleted     int64
	NodesFiltered    int64
	WaysSkipped      int64
	RelationsSkipped int64
	Duration         time.Duration
}

// Updater applies OsmChange files against the node table through the
// statement-based store. Creates and modifies upsert; a node that no
// longer passes the bounds or Lua filters is removed instead, since an
// earlier version of it may be stored.
type Updater struct {
	cfg         *config.Config
	store       nodestore.Store
	filter      *flex.Filter
	transformer *proj.Transformer
	tracker     *expire.Tracker

	// At most one of these is non-empty at a time so that flushes
	// preserve the change order within the file
	puts    []*nodestore.Node
	deletes []int64

	filtered int64
}

// NewUpdater creates a new updater. The filter may be nil when no Lua
// script is configured.
func NewUpdater(cfg *config.Config, store nodestore.Store, filter *flex.Filter) (*Updater, error) {
	transformer, err := proj.NewTransformer(proj.SRID4326, cfg.Projection)
	if err != nil {
		return nil, err
	}

	var tracker *expire.Tracker
	if cfg.ExpireOutput != "" {
		tracker = expire.NewTracker(cfg.ExpireMinZoom, cfg.ExpireMaxZoom)
	}

	return &Updater{
		cfg:         cfg,
		store:       store,
		filter:      filter,
		transformer: transformer,
		tracker:     tracker,
	}, nil
}

// ExpireTracker returns the expire tracker, or nil when expiry is not
// configured. The caller writes the tile list after processing.
func (u *Updater) ExpireTracker() *expire.Tracker {
	return u.tracker
}

// ApplyFile parses an OsmChange file and applies its node changes
func (u *Updater) ApplyFile(ctx context.Context, oscPath string) (*UpdateStats, error) {
	log := logger.Get()
	start := time.Now()

	log.Info("Applying change file", zap.String("file", oscPath))

	parser := osc.NewParser()
	changes, errChan := parser.ParseFile(ctx, oscPath)

	for change := range changes {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := u.apply(ctx, change); err != nil {
			return nil, err
		}
	}

	if err := <-errChan; err != nil {
		return nil, fmt.Errorf("OSC parsing failed: %w", err)
	}

	if err := u.flush(ctx); err != nil {
		return nil, err
	}

	ps := parser.Stats()
	stats := &UpdateStats{
		NodesCreated:     ps.NodesCreated,
		NodesModified:    ps.NodesModified,
		NodesDeleted:     ps.NodesDeleted,
		NodesFiltered:    u.filtered,
		WaysSkipped:      ps.WaysSkipped,
		RelationsSkipped: ps.RelationsSkipped,
		Duration:         time.Since(start),
	}

	log.Info("Change file applied",
		zap.Int64("created", stats.NodesCreated),
		zap.Int64("modified", stats.NodesModified),
		zap.Int64("deleted", stats.NodesDeleted),
		zap.Int64("filtered", stats.NodesFiltered),
		zap.Int64("ways_skipped", stats.WaysSkipped),
		zap.Int64("relations_skipped", stats.RelationsSkipped),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)))

	return stats, nil
}

func (u *Updater) apply(ctx context.Context, change osc.Change) error {
	node := change.Node
	if node == nil {
		return nil
	}

	if change.Action == osc.ActionDelete {
		// Delete entries carry no coordinates, expire the stored location
		if err := u.expireStored(ctx, node.ID); err != nil {
			return err
		}
		return u.queueDelete(ctx, node.ID)
	}

	n, keep, err := u.convert(node)
	if err != nil {
		return err
	}

	if u.tracker != nil {
		if change.Action == osc.ActionModify || !keep {
			// The node may have moved or vanished from the table,
			// expire where it used to be
			if err := u.expireStored(ctx, node.ID); err != nil {
				return err
			}
		}
		if keep {
			u.tracker.ExpirePoint(node.Lat, node.Lon)
		}
	}

	if !keep {
		u.filtered++
		return u.queueDelete(ctx, node.ID)
	}
	return u.queuePut(ctx, n)
}

// convert applies the bounds and Lua filters and builds the store node.
// keep reports whether the change should upsert; false means remove.
func (u *Updater) convert(n *osc.Node) (*nodestore.Node, bool, error) {
	if u.cfg.BBox != nil && !u.cfg.BBox.Contains(n.Lat, n.Lon) {
		return nil, false, nil
	}

	tags := n.Tags
	if u.filter != nil && u.filter.HasProcessNode() {
		obj := &flex.Object{
			ID:        n.ID,
			Version:   n.Version,
			Changeset: n.Changeset,
			UID:       n.UID,
			User:      n.User,
			Lat:       n.Lat,
			Lon:       n.Lon,
			Tags:      tags,
		}
		keep, err := u.filter.ProcessNode(obj)
		if err != nil {
			return nil, false, fmt.Errorf("filter failed on node %d: %w", n.ID, err)
		}
		if !keep {
			return nil, false, nil
		}
		tags = obj.Tags
	}

	return &nodestore.Node{
		ID:        n.ID,
		Version:   n.Version,
		UID:       n.UID,
		Timestamp: n.Timestamp,
		Changeset: n.Changeset,
		Tags:      nodestore.NewTags(tags),
		Lon:       n.Lon,
		Lat:       n.Lat,
		Geometry:  u.transformer.Point(orb.Point{n.Lon, n.Lat}),
	}, true, nil
}

// expireStored marks the tile of the node's stored location, if any
func (u *Updater) expireStored(ctx context.Context, id int64) error {
	if u.tracker == nil {
		return nil
	}
	node, err := u.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if node != nil {
		u.tracker.ExpirePoint(node.Lat, node.Lon)
	}
	return nil
}

func (u *Updater) queuePut(ctx context.Context, n *nodestore.Node) error {
	if len(u.deletes) > 0 {
		if err := u.flushDeletes(ctx); err != nil {
			return err
		}
	}
	u.puts = append(u.puts, n)
	if len(u.puts) >= u.cfg.BatchSize {
		return u.flushPuts(ctx)
	}
	return nil
}

func (u *Updater) queueDelete(ctx context.Context, id int64) error {
	if len(u.puts) > 0 {
		if err := u.flushPuts(ctx); err != nil {
			return err
		}
	}
	u.deletes = append(u.deletes, id)
	if len(u.deletes) >= u.cfg.BatchSize {
		return u.flushDeletes(ctx)
	}
	return nil
}

func (u *Updater) flush(ctx context.Context) error {
	if err := u.flushPuts(ctx); err != nil {
		return err
	}
	return u.flushDeletes(ctx)
}

func (u *Updater) flushPuts(ctx context.Context) error {
	if len(u.puts) == 0 {
		return nil
	}
	if err := u.store.PutMany(ctx, u.puts); err != nil {
		return err
	}
	u.puts = u.puts[:0]
	return nil
}

func (u *Updater) flushDeletes(ctx context.Context) error {
	if len(u.deletes) == 0 {
		return nil
	}
	if err := u.store.DeleteMany(ctx, u.deletes); err != nil {
		return err
	}
	u.deletes = u.deletes[:0]
	return nil
}
