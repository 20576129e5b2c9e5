package pbf

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/wegman-software/pgnode/internal/config"
	"github.com/wegman-software/pgnode/internal/flex"
	"github.com/wegman-software/pgnode/internal/logger"
	"github.com/wegman-software/pgnode/internal/nodestore"
	"github.com/wegman-software/pgnode/internal/proj"
)

// Stats holds extraction statistics
type Stats struct {
	NodesRead     int64
	NodesKept     int64
	SkippedBounds int64
	SkippedFilter int64
	BytesRead     int64
}

// Extractor streams nodes out of a PBF file. Ways and relations are
// not read: PBF files are sorted with nodes first, so scanning stops
// at the first way.
type Extractor struct {
	cfg         *config.Config
	filter      *flex.Filter
	transformer *proj.Transformer

	nodesRead     atomic.Int64
	nodesKept     atomic.Int64
	skippedBounds atomic.Int64
	skippedFilter atomic.Int64
	bytesRead     int64
}

// NewExtractor creates a PBF extractor. The filter may be nil when no
// Lua script is configured.
func NewExtractor(cfg *config.Config, filter *flex.Filter) (*Extractor, error) {
	transformer, err := proj.NewTransformer(proj.SRID4326, cfg.Projection)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		cfg:         cfg,
		filter:      filter,
		transformer: transformer,
	}, nil
}

// Stats returns the extraction counters. Valid once the node channel
// has been drained.
func (e *Extractor) Stats() Stats {
	return Stats{
		NodesRead:     e.nodesRead.Load(),
		NodesKept:     e.nodesKept.Load(),
		SkippedBounds: e.skippedBounds.Load(),
		SkippedFilter: e.skippedFilter.Load(),
		BytesRead:     e.bytesRead,
	}
}

// Extract opens the configured input file and streams its nodes. The
// node channel is closed when extraction finishes; the error channel
// receives at most one error.
func (e *Extractor) Extract(ctx context.Context) (<-chan *nodestore.Node, <-chan error) {
	nodes := make(chan *nodestore.Node, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(nodes)
		defer close(errChan)

		f, err := os.Open(e.cfg.InputFile)
		if err != nil {
			errChan <- err
			return
		}
		defer f.Close()

		if info, err := f.Stat(); err == nil {
			e.bytesRead = info.Size()
		}

		if err := e.scan(ctx, f, nodes); err != nil {
			errChan <- err
		}
	}()

	return nodes, errChan
}

// ExtractReader streams nodes from an already open reader
func (e *Extractor) ExtractReader(ctx context.Context, r io.Reader) (<-chan *nodestore.Node, <-chan error) {
	nodes := make(chan *nodestore.Node, 1000)
	errChan := make(chan error, 1)

	go func() {
		defer close(nodes)
		defer close(errChan)

		if err := e.scan(ctx, r, nodes); err != nil {
			errChan <- err
		}
	}()

	return nodes, errChan
}

func (e *Extractor) scan(ctx context.Context, r io.Reader, out chan<- *nodestore.Node) error {
	log := logger.Get()

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// The osmpbf scanner decodes blocks in parallel
	scanner := osmpbf.New(ctx, r, workers)
	defer scanner.Close()

	progressCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	progress := NewProgressTicker(progressCtx, func() {
		log.Debug("PBF extraction progress",
			zap.Int64("read", e.nodesRead.Load()),
			zap.Int64("kept", e.nodesKept.Load()))
	})
	go progress.Run()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch o := scanner.Object().(type) {
		case *osm.Node:
			node, keep, err := e.convert(o)
			if err != nil {
				return err
			}
			if !keep {
				continue
			}
			select {
			case out <- node:
				e.nodesKept.Add(1)
			case <-ctx.Done():
				return ctx.Err()
			}
		case *osm.Way:
			// Stop at the first way, all nodes have been seen
			return nil
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("PBF read error: %w", err)
	}

	return nil
}

// convert turns a decoded PBF node into a store node, applying the
// bounding box and Lua filters.
func (e *Extractor) convert(o *osm.Node) (*nodestore.Node, bool, error) {
	e.nodesRead.Add(1)

	if e.cfg.BBox != nil && !e.cfg.BBox.Contains(o.Lat, o.Lon) {
		e.skippedBounds.Add(1)
		return nil, false, nil
	}

	tags := make(map[string]string, len(o.Tags))
	for _, tag := range o.Tags {
		tags[tag.Key] = tag.Value
	}

	if e.filter != nil && e.filter.HasProcessNode() {
		obj := &flex.Object{
			ID:        int64(o.ID),
			Version:   int32(o.Version),
			Changeset: int64(o.ChangesetID),
			UID:       int32(o.UserID),
			User:      o.User,
			Lat:       o.Lat,
			Lon:       o.Lon,
			Tags:      tags,
		}
		keep, err := e.filter.ProcessNode(obj)
		if err != nil {
			return nil, false, fmt.Errorf("filter failed on node %d: %w", o.ID, err)
		}
		if !keep {
			e.skippedFilter.Add(1)
			return nil, false, nil
		}
		tags = obj.Tags
	}

	// Lon and Lat stay in WGS84, only the geometry is projected
	return &nodestore.Node{
		ID:        int64(o.ID),
		Version:   int32(o.Version),
		UID:       int32(o.UserID),
		Timestamp: o.Timestamp,
		Changeset: int64(o.ChangesetID),
		Tags:      nodestore.NewTags(tags),
		Lon:       o.Lon,
		Lat:       o.Lat,
		Geometry:  e.transformer.Point(orb.Point{o.Lon, o.Lat}),
	}, true, nil
}
