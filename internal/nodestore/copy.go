package nodestore

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wegman-software/pgnode/internal/pgcopy"
)

// Source yields nodes for bulk loading, in order. It mirrors the shape of
// pgx.CopyFromSource: Next advances and Node returns the current entity.
// Err reports why iteration stopped early, if it did.
type Source interface {
	Next() bool
	Node() *Node
	Err() error
}

// SliceSource adapts a fixed slice.
func SliceSource(nodes []*Node) Source {
	return &sliceSource{nodes: nodes}
}

type sliceSource struct {
	nodes []*Node
	cur   *Node
}

func (s *sliceSource) Next() bool {
	if len(s.nodes) == 0 {
		return false
	}
	s.cur = s.nodes[0]
	s.nodes = s.nodes[1:]
	return true
}

func (s *sliceSource) Node() *Node { return s.cur }

func (s *sliceSource) Err() error { return nil }

// ChanSource adapts a channel, stopping early when ctx is canceled; the
// cancellation then surfaces through Err.
func ChanSource(ctx context.Context, ch <-chan *Node) Source {
	return &chanSource{ctx: ctx, ch: ch}
}

type chanSource struct {
	ctx context.Context
	ch  <-chan *Node
	cur *Node
}

func (s *chanSource) Next() bool {
	select {
	case node, ok := <-s.ch:
		if !ok {
			return false
		}
		s.cur = node
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *chanSource) Node() *Node { return s.cur }

func (s *chanSource) Err() error { return s.ctx.Err() }

// CopyLoader is the bulk access path: it streams nodes into the table as one
// COPY FROM STDIN BINARY operation, encoding rows with pgcopy instead of
// issuing per-row statements. A load is all-or-nothing; on any failure the
// stream is aborted without a trailer and the server discards the copy.
type CopyLoader struct {
	pool   *pgxpool.Pool
	mapper RowMapper
	table  Table
	sql    string
}

var _ BulkLoader = (*CopyLoader)(nil)

// NewCopyLoader builds a loader for table over pool. The COPY statement text
// is fixed here, matching the mapper's column order.
func NewCopyLoader(pool *pgxpool.Pool, table Table, mapper RowMapper) *CopyLoader {
	return &CopyLoader{
		pool:   pool,
		mapper: mapper,
		table:  table,
		sql:    fmt.Sprintf("COPY %s (%s) FROM STDIN BINARY", table.Qualified(), table.ColumnList()),
	}
}

// Load drains src into the table. An empty source returns before a
// connection is acquired or the sink opened. Encoding failures surface as
// ErrEncode and win over the copy error they cause; sink and server failures
// wrap ErrStore; source failures return as the source reported them.
func (l *CopyLoader) Load(ctx context.Context, src Source) error {
	if !src.Next() {
		if err := src.Err(); err != nil {
			return err
		}
		return nil
	}
	first := src.Node()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquire connection: %w", ErrStore, err)
	}
	defer conn.Release()

	pr, pw := io.Pipe()
	var encErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		encErr = l.encode(pw, first, src)
		if encErr != nil {
			pw.CloseWithError(encErr)
			return
		}
		pw.Close()
	}()

	_, copyErr := conn.Conn().PgConn().CopyFrom(ctx, pr, l.sql)
	// Unblock the encoder if the server side died mid-stream.
	pr.CloseWithError(copyErr)
	<-done

	if encErr != nil && errors.Is(encErr, ErrEncode) {
		return encErr
	}
	if copyErr != nil {
		return fmt.Errorf("%w: copy into %s: %w", ErrStore, l.table.Qualified(), copyErr)
	}
	return encErr
}

// encode writes the whole stream: header, the already-read first node, the
// rest of the source, then the trailer. Write failures reaching the pipe are
// storage failures; row conversion failures keep their ErrEncode category.
func (l *CopyLoader) encode(pw io.Writer, first *Node, src Source) error {
	buf := bufio.NewWriterSize(pw, 64*1024)
	w := pgcopy.NewWriter(buf)

	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("%w: write copy header: %w", ErrStore, err)
	}
	node := first
	for {
		if err := l.mapper.EncodeRow(w, node); err != nil {
			if errors.Is(err, ErrEncode) {
				return err
			}
			return fmt.Errorf("%w: write row for node %d: %w", ErrStore, node.ID, err)
		}
		if !src.Next() {
			break
		}
		node = src.Node()
	}
	if err := src.Err(); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: write copy trailer: %w", ErrStore, err)
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("%w: flush copy stream: %w", ErrStore, err)
	}
	return nil
}
