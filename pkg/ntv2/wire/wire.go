// Package wire provides the fixed-width push/pop primitives used by the NTV2
// message codecs. Every field of every message goes through one Encoder or
// Decoder, each bound to a single byte order.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ByteOrder reads and appends fixed-width integers.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Order is the canonical byte order of encoded NTV2 messages.
var Order ByteOrder = binary.BigEndian

// ErrShortBuffer is returned when a decode runs past the end of the input.
var ErrShortBuffer = errors.New("wire: unexpected end of message")

// Encoder appends fixed-width integers to a byte slice.
type Encoder struct {
	buf   []byte
	order ByteOrder
}

// NewEncoder returns an Encoder writing in the given byte order,
// pre-sized for sizeHint bytes.
func NewEncoder(order ByteOrder, sizeHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, sizeHint), order: order}
}

// Bytes returns the encoded message.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

func (e *Encoder) U8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) U16(v uint16) { e.buf = e.order.AppendUint16(e.buf, v) }

func (e *Encoder) U32(v uint32) { e.buf = e.order.AppendUint32(e.buf, v) }

func (e *Encoder) U64(v uint64) { e.buf = e.order.AppendUint64(e.buf, v) }

// Bool encodes a boolean as a single byte.
func (e *Encoder) Bool(v bool) {
	if v {
		e.U8(1)
		return
	}
	e.U8(0)
}

// Raw appends bytes verbatim.
func (e *Encoder) Raw(p []byte) { e.buf = append(e.buf, p...) }

// PatchU32 overwrites the 32-bit word at offset, which must already have been
// written. It is used to back-fill size fields once a message is complete.
func (e *Encoder) PatchU32(offset int, v uint32) bool {
	if offset < 0 || offset+4 > len(e.buf) {
		return false
	}
	e.order.PutUint32(e.buf[offset:offset+4], v)
	return true
}

// Decoder reads fixed-width integers from a byte slice. The first failure is
// sticky: later reads return zero values and Err reports the failure.
type Decoder struct {
	buf   []byte
	pos   int
	order ByteOrder
	err   error
}

// NewDecoder returns a Decoder reading buf in the given byte order.
func NewDecoder(order ByteOrder, buf []byte) *Decoder {
	return &Decoder{buf: buf, order: order}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Pos returns the read offset.
func (d *Decoder) Pos() int { return d.pos }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.pos }

// Fail records err unless an earlier error is already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.pos, len(d.buf)-d.pos)
		return nil
	}
	p := d.buf[d.pos : d.pos+n]
	d.pos += n
	return p
}

func (d *Decoder) U8() uint8 {
	p := d.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (d *Decoder) U16() uint16 {
	p := d.take(2)
	if p == nil {
		return 0
	}
	return d.order.Uint16(p)
}

func (d *Decoder) U32() uint32 {
	p := d.take(4)
	if p == nil {
		return 0
	}
	return d.order.Uint32(p)
}

func (d *Decoder) U64() uint64 {
	p := d.take(8)
	if p == nil {
		return 0
	}
	return d.order.Uint64(p)
}

// Bool decodes a single-byte boolean.
func (d *Decoder) Bool() bool { return d.U8() != 0 }

// Raw returns the next n bytes. The slice aliases the input.
func (d *Decoder) Raw(n int) []byte { return d.take(n) }
