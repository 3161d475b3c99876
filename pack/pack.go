// Package pack implements the multi-part buffer used for checkpoint state.
//
// A packed buffer is a sequence of parts. Each part is prefixed by an
// unsigned varint holding its length plus one; a prefix of zero marks an
// absent part. Scalars are stored as parts of their own: float64 as
// 8 little-endian bytes, ints as signed varints and strings NUL-terminated.
package pack

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShort is returned when a buffer ends inside a part.
	ErrShort = errors.New("pack: buffer too short")
	// ErrMalformed is returned when a part does not decode as the requested type.
	ErrMalformed = errors.New("pack: malformed part")
	// ErrAbsent is returned when a required part is absent.
	ErrAbsent = errors.New("pack: required part absent")
	// ErrTrailing is returned by Reader.Done when unread bytes remain.
	ErrTrailing = errors.New("pack: trailing bytes")
)

// Writer appends parts to a buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Part appends a present part. A nil or empty slice is still present.
func (w *Writer) Part(p []byte) {
	w.buf = binary.AppendUvarint(w.buf, uint64(len(p))+1)
	w.buf = append(w.buf, p...)
}

// Absent appends an absent part.
func (w *Writer) Absent() {
	w.buf = binary.AppendUvarint(w.buf, 0)
}

// Float64 appends a float64 part, bit-exact.
func (w *Writer) Float64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.Part(b[:])
}

// Int appends an integer part.
func (w *Writer) Int(v int) {
	w.Part(binary.AppendVarint(nil, int64(v)))
}

// String appends s NUL-terminated. The empty string is written as absent.
func (w *Writer) String(s string) {
	if s == "" {
		w.Absent()
		return
	}
	p := make([]byte, 0, len(s)+1)
	p = append(p, s...)
	w.Part(append(p, 0))
}

// Bytes returns the packed buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Reader consumes parts from a packed buffer in order.
type Reader struct {
	data []byte
	off  int
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Part returns the next part. ok is false for an absent part.
func (r *Reader) Part() (p []byte, ok bool, err error) {
	n, sz := binary.Uvarint(r.data[r.off:])
	if sz <= 0 {
		return nil, false, fmt.Errorf("%w: bad length prefix at offset %d", ErrShort, r.off)
	}
	r.off += sz
	if n == 0 {
		return nil, false, nil
	}
	n--
	if n > uint64(len(r.data)-r.off) {
		return nil, false, fmt.Errorf("%w: part of %d bytes at offset %d", ErrShort, n, r.off)
	}
	p = r.data[r.off : r.off+int(n)]
	r.off += int(n)
	return p, true, nil
}

// Required returns the next part, failing if it is absent.
func (r *Reader) Required() ([]byte, error) {
	p, ok, err := r.Part()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAbsent
	}
	return p, nil
}

// Float64 reads a float64 part.
func (r *Reader) Float64() (float64, error) {
	p, err := r.Required()
	if err != nil {
		return 0, err
	}
	if len(p) != 8 {
		return 0, fmt.Errorf("%w: float64 part of %d bytes", ErrMalformed, len(p))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(p)), nil
}

// Int reads an integer part.
func (r *Reader) Int() (int, error) {
	p, err := r.Required()
	if err != nil {
		return 0, err
	}
	v, sz := binary.Varint(p)
	if sz != len(p) || sz <= 0 {
		return 0, fmt.Errorf("%w: int part", ErrMalformed)
	}
	return int(v), nil
}

// String reads a NUL-terminated string part. An absent part reads as "".
func (r *Reader) String() (string, error) {
	p, ok, err := r.Part()
	if err != nil || !ok {
		return "", err
	}
	i := bytes.IndexByte(p, 0)
	if i != len(p)-1 {
		return "", fmt.Errorf("%w: string part not NUL-terminated", ErrMalformed)
	}
	return string(p[:i]), nil
}

// Done reports an error if unread bytes remain.
func (r *Reader) Done() error {
	if r.off != len(r.data) {
		return fmt.Errorf("%w: %d bytes", ErrTrailing, len(r.data)-r.off)
	}
	return nil
}
