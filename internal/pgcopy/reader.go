package pgcopy

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Reader decodes a COPY BINARY stream produced by a Writer or by PostgreSQL
// itself (COPY ... TO STDOUT BINARY). Calls must mirror the field layout the
// stream was written with: ReadHeader once, then ReadRow followed by one
// typed read per field, until ReadRow returns io.EOF at the trailer.
type Reader struct {
	r       io.Reader
	scratch [11]byte
}

// NewReader returns a Reader consuming from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadHeader consumes and validates the stream header. Unknown flag bits and
// header extensions produced by other writers are rejected; this decoder only
// accepts the baseline format it writes.
func (r *Reader) ReadHeader() error {
	if _, err := io.ReadFull(r.r, r.scratch[:11]); err != nil {
		return err
	}
	if !bytes.Equal(r.scratch[:11], signature) {
		return fmt.Errorf("pgcopy: invalid stream signature %q", r.scratch[:11])
	}
	flags, err := r.readInt32()
	if err != nil {
		return err
	}
	if flags != 0 {
		return fmt.Errorf("pgcopy: unsupported header flags %#x", flags)
	}
	extLen, err := r.readInt32()
	if err != nil {
		return err
	}
	if extLen < 0 {
		return fmt.Errorf("pgcopy: negative header extension length %d", extLen)
	}
	if extLen > 0 {
		if _, err := io.CopyN(io.Discard, r.r, int64(extLen)); err != nil {
			return err
		}
	}
	return nil
}

// ReadRow reads the next row marker and returns its field count. At the
// end-of-stream trailer it returns io.EOF.
func (r *Reader) ReadRow() (int, error) {
	n, err := r.readInt16()
	if err != nil {
		return 0, err
	}
	if n == -1 {
		return 0, io.EOF
	}
	if n < 0 {
		return 0, fmt.Errorf("pgcopy: invalid field count %d", n)
	}
	return int(n), nil
}

// ReadInt16 reads a 2-byte integer field. The second return reports a null
// field, in which case the value is zero.
func (r *Reader) ReadInt16() (int16, bool, error) {
	null, err := r.fixedField(2)
	if err != nil || null {
		return 0, null, err
	}
	v, err := r.readInt16()
	return v, false, err
}

// ReadInt32 reads a 4-byte integer field.
func (r *Reader) ReadInt32() (int32, bool, error) {
	null, err := r.fixedField(4)
	if err != nil || null {
		return 0, null, err
	}
	v, err := r.readInt32()
	return v, false, err
}

// ReadInt64 reads an 8-byte integer field.
func (r *Reader) ReadInt64() (int64, bool, error) {
	null, err := r.fixedField(8)
	if err != nil || null {
		return 0, null, err
	}
	v, err := r.readInt64()
	return v, false, err
}

// ReadFloat64 reads an 8-byte IEEE-754 double field.
func (r *Reader) ReadFloat64() (float64, bool, error) {
	null, err := r.fixedField(8)
	if err != nil || null {
		return 0, null, err
	}
	v, err := r.readInt64()
	return math.Float64frombits(uint64(v)), false, err
}

// ReadBytes reads a variable-length binary field. A null field yields a nil
// slice; a present zero-length field yields an empty non-nil slice.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.fieldLength()
	if err != nil {
		return nil, err
	}
	if n == -1 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadString reads a text field. The second return reports a null field.
func (r *Reader) ReadString() (string, bool, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", false, err
	}
	if b == nil {
		return "", true, nil
	}
	return string(b), false, nil
}

// ReadTimestamp reads a timestamp field and converts it back from the
// PostgreSQL epoch to a UTC time.Time. A null field yields the zero time.
func (r *Reader) ReadTimestamp() (time.Time, error) {
	micros, null, err := r.ReadInt64()
	if err != nil || null {
		return time.Time{}, err
	}
	return time.UnixMicro(micros + unixToPostgresEpochMicros).UTC(), nil
}

// ReadHstore reads an hstore binary field. A null field yields a nil map.
func (r *Reader) ReadHstore() (map[string]*string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	if len(b) < 4 {
		return nil, fmt.Errorf("pgcopy: hstore payload truncated at %d bytes", len(b))
	}
	count := int32(binary.BigEndian.Uint32(b))
	if count < 0 {
		return nil, fmt.Errorf("pgcopy: negative hstore entry count %d", count)
	}
	m := make(map[string]*string, count)
	off := 4
	for i := int32(0); i < count; i++ {
		key, keyNull, next, err := hstoreChunk(b, off)
		if err != nil {
			return nil, err
		}
		if keyNull {
			return nil, fmt.Errorf("pgcopy: null hstore key at entry %d", i)
		}
		val, valNull, end, err := hstoreChunk(b, next)
		if err != nil {
			return nil, err
		}
		if valNull {
			m[string(key)] = nil
		} else {
			s := string(val)
			m[string(key)] = &s
		}
		off = end
	}
	if off != len(b) {
		return nil, fmt.Errorf("pgcopy: %d trailing bytes after hstore entries", len(b)-off)
	}
	return m, nil
}

// hstoreChunk decodes one length-prefixed chunk of an hstore payload starting
// at off, returning the chunk, whether it was null, and the next offset.
func hstoreChunk(b []byte, off int) ([]byte, bool, int, error) {
	if off+4 > len(b) {
		return nil, false, 0, fmt.Errorf("pgcopy: hstore payload truncated at byte %d", off)
	}
	n := int32(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if n == -1 {
		return nil, true, off, nil
	}
	if n < 0 || off+int(n) > len(b) {
		return nil, false, 0, fmt.Errorf("pgcopy: hstore chunk length %d out of range", n)
	}
	return b[off : off+int(n)], false, off + int(n), nil
}

// fixedField consumes a field length prefix and checks it against the
// expected fixed width, reporting whether the field is null.
func (r *Reader) fixedField(want int32) (bool, error) {
	n, err := r.fieldLength()
	if err != nil {
		return false, err
	}
	if n == -1 {
		return true, nil
	}
	if n != want {
		return false, fmt.Errorf("pgcopy: field length %d, want %d", n, want)
	}
	return false, nil
}

func (r *Reader) fieldLength() (int32, error) {
	n, err := r.readInt32()
	if err != nil {
		return 0, err
	}
	if n < -1 {
		return 0, fmt.Errorf("pgcopy: invalid field length %d", n)
	}
	return n, nil
}

func (r *Reader) readInt16() (int16, error) {
	if _, err := io.ReadFull(r.r, r.scratch[:2]); err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(r.scratch[:2])), nil
}

func (r *Reader) readInt32() (int32, error) {
	if _, err := io.ReadFull(r.r, r.scratch[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.scratch[:4])), nil
}

func (r *Reader) readInt64() (int64, error) {
	if _, err := io.ReadFull(r.r, r.scratch[:8]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(r.scratch[:8])), nil
}
