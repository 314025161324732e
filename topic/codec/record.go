// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fluxtopic/topic/types"
	"github.com/google/uuid"
)

// Schema versions. A reader accepts any version; fields introduced after the
// version of the payload are left at their defaults.
const (
	Version1       uint16 = 1
	Version2       uint16 = 2
	CurrentVersion        = Version2
)

var (
	ErrCorrupt         = errors.New("corrupt record")
	ErrUnknownVersion  = errors.New("unknown schema version")
	ErrUnexpectedOp    = errors.New("unexpected operation type")
	ErrUnknownOpType   = errors.New("unknown operation type")
	ErrChecksumFailure = errors.New("checksum mismatch")
)

// Writer encodes a flat record as a schema version followed by positionally
// tagged, length-prefixed fields.
type Writer struct {
	version uint16
	buf     *BufferWriter
	scratch *BufferWriter
}

// NewWriter starts a record for the given schema version.
func NewWriter(version uint16) *Writer {
	w := newFieldWriter(version)
	w.buf.WriteUvarint(uint64(version))
	return w
}

func newFieldWriter(version uint16) *Writer {
	return &Writer{
		version: version,
		buf:     NewBufferWriter(64),
		scratch: NewBufferWriter(16),
	}
}

// Version returns the schema version being written.
func (w *Writer) Version() uint16 {
	return w.version
}

// Bytes returns the encoded record.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Raw writes a field with an opaque payload.
func (w *Writer) Raw(tag uint32, payload []byte) {
	w.buf.WriteUvarint(uint64(tag))
	w.buf.WriteBytes(payload)
}

func (w *Writer) scalar(tag uint32, fn func(b *BufferWriter)) {
	w.scratch.pos = 0
	fn(w.scratch)
	w.Raw(tag, w.scratch.Bytes())
}

// Int writes a signed integer field.
func (w *Writer) Int(tag uint32, v int64) {
	w.scalar(tag, func(b *BufferWriter) { b.WriteVarint(v) })
}

// Bool writes a boolean field.
func (w *Writer) Bool(tag uint32, v bool) {
	var b uint8
	if v {
		b = 1
	}
	w.scalar(tag, func(bw *BufferWriter) { bw.WriteUint8(b) })
}

// String writes a string field.
func (w *Writer) String(tag uint32, v string) {
	w.Raw(tag, []byte(v))
}

// UUID writes a 16 byte UUID field.
func (w *Writer) UUID(tag uint32, v uuid.UUID) {
	w.Raw(tag, v[:])
}

// Time writes a time field as Unix nanoseconds. The zero time is omitted.
func (w *Writer) Time(tag uint32, v time.Time) {
	if v.IsZero() {
		return
	}
	w.Int(tag, v.UnixNano())
}

// Ints writes a list of signed integers.
func (w *Writer) Ints(tag uint32, vs []int64) {
	w.scalar(tag, func(b *BufferWriter) {
		b.WriteUvarint(uint64(len(vs)))
		for _, v := range vs {
			b.WriteVarint(v)
		}
	})
}

// Nested writes a nested record sharing the writer's version.
func (w *Writer) Nested(tag uint32, fn func(*Writer)) {
	nw := newFieldWriter(w.version)
	fn(nw)
	w.Raw(tag, nw.Bytes())
}

// Position writes a position as a nested record.
func (w *Writer) Position(tag uint32, p types.Position) {
	w.Nested(tag, func(n *Writer) {
		n.Int(1, p.Page)
		n.Int(2, int64(p.Offset))
	})
}

// Subscriber writes a subscriber id as a nested record.
func (w *Writer) Subscriber(tag uint32, s types.SubscriberID) {
	w.Nested(tag, func(n *Writer) {
		n.Int(1, int64(s.Member))
		n.Int(2, s.Local)
		n.UUID(3, s.OwnerUUID)
	})
}

// Reader decodes a record written by Writer. Errors are sticky: getters return
// defaults after the first failure and Err reports it.
type Reader struct {
	version uint16
	fields  map[uint32][]byte
	err     error
}

// NewReader parses the version and field table of a record.
func NewReader(data []byte) (*Reader, error) {
	br := NewBufferReader(data)
	v, err := br.ReadUvarint()
	if err != nil {
		return nil, fmt.Errorf("%w: version: %w", ErrCorrupt, err)
	}
	if v == 0 || v > 0xffff {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, v)
	}
	r, err := parseFields(br)
	if err != nil {
		return nil, err
	}
	r.version = uint16(v)
	return r, nil
}

func parseFields(br *BufferReader) (*Reader, error) {
	r := &Reader{fields: make(map[uint32][]byte)}
	for br.Remaining() > 0 {
		tag, err := br.ReadUvarint()
		if err != nil {
			return nil, fmt.Errorf("%w: tag: %w", ErrCorrupt, err)
		}
		payload, err := br.ReadBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: field %d: %w", ErrCorrupt, tag, err)
		}
		r.fields[uint32(tag)] = payload
	}
	return r, nil
}

// Version returns the schema version of the payload.
func (r *Reader) Version() uint16 {
	return r.version
}

// Err returns the first decoding error.
func (r *Reader) Err() error {
	return r.err
}

// Has reports whether a field is present.
func (r *Reader) Has(tag uint32) bool {
	_, ok := r.fields[tag]
	return ok
}

func (r *Reader) fail(tag uint32, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: field %d: %w", ErrCorrupt, tag, err)
	}
}

// Raw returns the payload of a field, nil if absent.
func (r *Reader) Raw(tag uint32) []byte {
	return r.fields[tag]
}

// Int reads a signed integer field, def if absent.
func (r *Reader) Int(tag uint32, def int64) int64 {
	p, ok := r.fields[tag]
	if !ok || r.err != nil {
		return def
	}
	v, err := NewBufferReader(p).ReadVarint()
	if err != nil {
		r.fail(tag, err)
		return def
	}
	return v
}

// Bool reads a boolean field, false if absent.
func (r *Reader) Bool(tag uint32) bool {
	p, ok := r.fields[tag]
	if !ok || r.err != nil {
		return false
	}
	if len(p) != 1 {
		r.fail(tag, errors.New("bad bool"))
		return false
	}
	return p[0] == 1
}

// String reads a string field, "" if absent.
func (r *Reader) String(tag uint32) string {
	return string(r.fields[tag])
}

// UUID reads a UUID field, uuid.Nil if absent.
func (r *Reader) UUID(tag uint32) uuid.UUID {
	p, ok := r.fields[tag]
	if !ok || r.err != nil {
		return uuid.Nil
	}
	id, err := uuid.FromBytes(p)
	if err != nil {
		r.fail(tag, err)
		return uuid.Nil
	}
	return id
}

// Time reads a time field, the zero time if absent.
func (r *Reader) Time(tag uint32) time.Time {
	if !r.Has(tag) {
		return time.Time{}
	}
	return time.Unix(0, r.Int(tag, 0))
}

// Ints reads a list of signed integers.
func (r *Reader) Ints(tag uint32) []int64 {
	p, ok := r.fields[tag]
	if !ok || r.err != nil {
		return nil
	}
	br := NewBufferReader(p)
	n, err := br.ReadUvarint()
	if err != nil {
		r.fail(tag, err)
		return nil
	}
	if n > uint64(len(p)) {
		r.fail(tag, errors.New("bad list length"))
		return nil
	}
	vs := make([]int64, 0, n)
	for range n {
		v, err := br.ReadVarint()
		if err != nil {
			r.fail(tag, err)
			return nil
		}
		vs = append(vs, v)
	}
	return vs
}

// Nested reads a nested record, nil if absent.
func (r *Reader) Nested(tag uint32) *Reader {
	p, ok := r.fields[tag]
	if !ok || r.err != nil {
		return nil
	}
	nr, err := parseFields(NewBufferReader(p))
	if err != nil {
		r.fail(tag, err)
		return nil
	}
	nr.version = r.version
	return nr
}

// Position reads a nested position, def if absent.
func (r *Reader) Position(tag uint32, def types.Position) types.Position {
	n := r.Nested(tag)
	if n == nil {
		return def
	}
	p := types.Position{Page: n.Int(1, def.Page), Offset: int32(n.Int(2, int64(def.Offset)))}
	if n.err != nil {
		r.fail(tag, n.err)
		return def
	}
	return p
}

// Subscriber reads a nested subscriber id, the null subscriber if absent.
func (r *Reader) Subscriber(tag uint32) types.SubscriberID {
	n := r.Nested(tag)
	if n == nil {
		return types.NullSubscriber
	}
	s := types.SubscriberID{
		Member:    int32(n.Int(1, 0)),
		Local:     n.Int(2, 0),
		OwnerUUID: n.UUID(3),
	}
	if n.err != nil {
		r.fail(tag, n.err)
		return types.NullSubscriber
	}
	return s
}

// BytesList writes a list of byte slices.
func (w *Writer) BytesList(tag uint32, vs [][]byte) {
	size := binaryUvarintLen(uint64(len(vs)))
	for _, v := range vs {
		size += binaryUvarintLen(uint64(len(v))) + len(v)
	}
	b := NewBufferWriter(size)
	b.WriteUvarint(uint64(len(vs)))
	for _, v := range vs {
		b.WriteBytes(v)
	}
	w.Raw(tag, b.Bytes())
}

// List writes n nested records produced by fn.
func (w *Writer) List(tag uint32, n int, fn func(i int, w *Writer)) {
	items := make([][]byte, n)
	for i := range n {
		nw := newFieldWriter(w.version)
		fn(i, nw)
		items[i] = nw.Bytes()
	}
	w.BytesList(tag, items)
}

func binaryUvarintLen(v uint64) int {
	size := 1
	for v >= 0x80 {
		v >>= 7
		size++
	}
	return size
}

// BytesList reads a list of byte slices.
func (r *Reader) BytesList(tag uint32) [][]byte {
	p, ok := r.fields[tag]
	if !ok || r.err != nil {
		return nil
	}
	br := NewBufferReader(p)
	n, err := br.ReadUvarint()
	if err != nil {
		r.fail(tag, err)
		return nil
	}
	if n > uint64(len(p)) {
		r.fail(tag, errors.New("bad list length"))
		return nil
	}
	vs := make([][]byte, 0, n)
	for range n {
		v, err := br.ReadBytes()
		if err != nil {
			r.fail(tag, err)
			return nil
		}
		vs = append(vs, v)
	}
	return vs
}

// List reads a list of nested records.
func (r *Reader) List(tag uint32) []*Reader {
	items := r.BytesList(tag)
	if items == nil {
		return nil
	}
	out := make([]*Reader, 0, len(items))
	for _, item := range items {
		nr, err := parseFields(NewBufferReader(item))
		if err != nil {
			r.fail(tag, err)
			return nil
		}
		nr.version = r.version
		out = append(out, nr)
	}
	return out
}
