// Package pgcopy implements the PostgreSQL COPY BINARY wire format: the
// 19-byte stream header, length-prefixed big-endian fields with -1 null
// markers, the timestamp and hstore binary encodings, and the end-of-stream
// trailer. The Writer produces streams accepted by COPY ... FROM STDIN BINARY;
// the Reader is the symmetric decoder.
package pgcopy

import (
	"encoding/binary"
	"io"
	"math"
	"time"
)

// signature is the fixed 11-byte preamble of every COPY BINARY stream.
var signature = []byte{'P', 'G', 'C', 'O', 'P', 'Y', '\n', 0xff, '\r', '\n', 0x00}

// unixToPostgresEpochMicros is the offset between the Unix epoch and the
// PostgreSQL timestamp epoch (2000-01-01T00:00:00), in microseconds.
const unixToPostgresEpochMicros = 946684800 * 1_000_000

// Writer encodes rows in COPY BINARY format onto an io.Writer. It performs
// no buffering of its own; wrap the destination in a bufio.Writer when the
// underlying writes are expensive. The zero Writer is not usable, call
// NewWriter.
type Writer struct {
	w       io.Writer
	scratch [8]byte
	closed  bool
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the stream signature followed by the flags field and the
// header extension length, both zero. It must be called exactly once, before
// the first row.
func (w *Writer) WriteHeader() error {
	if _, err := w.w.Write(signature); err != nil {
		return err
	}
	// Flags and header extension length, all zero.
	var ext [8]byte
	_, err := w.w.Write(ext[:])
	return err
}

// BeginRow starts a new row holding the given number of fields.
func (w *Writer) BeginRow(fields int) error {
	return w.writeInt16(int16(fields))
}

// WriteNull writes a null field marker: a field length of -1 with no payload.
func (w *Writer) WriteNull() error {
	return w.writeInt32(-1)
}

// WriteInt16 writes a 2-byte big-endian integer field.
func (w *Writer) WriteInt16(v int16) error {
	if err := w.writeInt32(2); err != nil {
		return err
	}
	return w.writeInt16(v)
}

// WriteInt32 writes a 4-byte big-endian integer field.
func (w *Writer) WriteInt32(v int32) error {
	if err := w.writeInt32(4); err != nil {
		return err
	}
	return w.writeInt32(v)
}

// WriteInt64 writes an 8-byte big-endian integer field.
func (w *Writer) WriteInt64(v int64) error {
	if err := w.writeInt32(8); err != nil {
		return err
	}
	return w.writeInt64(v)
}

// WriteFloat64 writes an 8-byte IEEE-754 big-endian double field.
func (w *Writer) WriteFloat64(v float64) error {
	if err := w.writeInt32(8); err != nil {
		return err
	}
	return w.writeInt64(int64(math.Float64bits(v)))
}

// WriteString writes a text field: length prefix plus raw bytes.
func (w *Writer) WriteString(s string) error {
	if err := w.writeInt32(int32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w.w, s)
	return err
}

// WriteBytes writes a variable-length binary field verbatim, with no
// reinterpretation of the payload. A nil slice writes the null marker; an
// empty non-nil slice writes a zero-length field.
func (w *Writer) WriteBytes(b []byte) error {
	if b == nil {
		return w.WriteNull()
	}
	if err := w.writeInt32(int32(len(b))); err != nil {
		return err
	}
	_, err := w.w.Write(b)
	return err
}

// WriteTimestamp writes a timestamp field as the number of microseconds
// between the PostgreSQL epoch (2000-01-01T00:00:00) and t, interpreted in
// UTC with sub-microsecond precision truncated. The zero time writes the
// null marker.
func (w *Writer) WriteTimestamp(t time.Time) error {
	if t.IsZero() {
		return w.WriteNull()
	}
	if err := w.writeInt32(8); err != nil {
		return err
	}
	return w.writeInt64(t.UnixMicro() - unixToPostgresEpochMicros)
}

// WriteHstore writes a key/value map in the hstore binary format: a 4-byte
// entry count, then for each entry a length-prefixed key and a
// length-prefixed value, where a nil value is marked with length -1. A nil
// map writes the null marker; an empty map writes an entry count of zero.
func (w *Writer) WriteHstore(m map[string]*string) error {
	if m == nil {
		return w.WriteNull()
	}
	size := 4
	for k, v := range m {
		size += 4 + len(k) + 4
		if v != nil {
			size += len(*v)
		}
	}
	if err := w.writeInt32(int32(size)); err != nil {
		return err
	}
	if err := w.writeInt32(int32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := w.writeInt32(int32(len(k))); err != nil {
			return err
		}
		if _, err := io.WriteString(w.w, k); err != nil {
			return err
		}
		if v == nil {
			if err := w.writeInt32(-1); err != nil {
				return err
			}
			continue
		}
		if err := w.writeInt32(int32(len(*v))); err != nil {
			return err
		}
		if _, err := io.WriteString(w.w, *v); err != nil {
			return err
		}
	}
	return nil
}

// Close writes the end-of-stream trailer, a single int16 of -1. The trailer
// goes out once; further calls do nothing. Close does not close or flush the
// underlying writer; the sink stays owned by the caller.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.writeInt16(-1)
}

func (w *Writer) writeInt16(v int16) error {
	binary.BigEndian.PutUint16(w.scratch[:2], uint16(v))
	_, err := w.w.Write(w.scratch[:2])
	return err
}

func (w *Writer) writeInt32(v int32) error {
	binary.BigEndian.PutUint32(w.scratch[:4], uint32(v))
	_, err := w.w.Write(w.scratch[:4])
	return err
}

func (w *Writer) writeInt64(v int64) error {
	binary.BigEndian.PutUint64(w.scratch[:8], uint64(v))
	_, err := w.w.Write(w.scratch[:8])
	return err
}
