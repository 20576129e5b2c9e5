package parquet

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/pgnode/internal/geo"
	"github.com/wegman-software/pgnode/internal/nodestore"
)

// TagsToJSON converts node tags to a JSON string. Entries with a nil
// value come out as JSON null.
func TagsToJSON(tags nodestore.Tags) string {
	if len(tags) == 0 {
		return "{}"
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// NodeWriter writes nodes to a Parquet file with Zstd compression.
// Rows accumulate in an Arrow record builder and flush as one record
// batch per batchSize rows. The geometry column carries EWKB in the
// codec's SRID.
type NodeWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	codec     *geo.Codec
	batchSize int
	count     int
	rows      int64
}

// NewNodeWriter creates a new node Parquet writer
func NewNodeWriter(path string, codec *geo.Codec, batchSize int) (*NodeWriter, error) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "version", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "uid", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "timestamp", Type: arrow.FixedWidthTypes.Timestamp_us, Nullable: true},
		{Name: "changeset", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "lon", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "lat", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "geometry", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)

	return &NodeWriter{
		file:      f,
		writer:    writer,
		builder:   builder,
		codec:     codec,
		batchSize: batchSize,
	}, nil
}

// Write writes a node
func (w *NodeWriter) Write(n *nodestore.Node) error {
	w.builder.Field(0).(*array.Int64Builder).Append(n.ID)
	w.builder.Field(1).(*array.Int32Builder).Append(n.Version)
	w.builder.Field(2).(*array.Int32Builder).Append(n.UID)

	if n.Timestamp.IsZero() {
		w.builder.Field(3).AppendNull()
	} else {
		w.builder.Field(3).(*array.TimestampBuilder).Append(arrow.Timestamp(n.Timestamp.UnixMicro()))
	}

	w.builder.Field(4).(*array.Int64Builder).Append(n.Changeset)
	w.builder.Field(5).(*array.StringBuilder).Append(TagsToJSON(n.Tags))
	w.builder.Field(6).(*array.Float64Builder).Append(n.Lon)
	w.builder.Field(7).(*array.Float64Builder).Append(n.Lat)

	if n.Geometry == nil {
		w.builder.Field(8).AppendNull()
	} else {
		b, err := w.codec.Encode(n.Geometry)
		if err != nil {
			return err
		}
		w.builder.Field(8).(*array.BinaryBuilder).Append(b)
	}

	w.count++
	w.rows++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Rows returns the number of rows written so far
func (w *NodeWriter) Rows() int64 {
	return w.rows
}

func (w *NodeWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes pending rows and closes the file
func (w *NodeWriter) Close() error {
	if err := w.flush(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	// The parquet writer closes its own sink
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
