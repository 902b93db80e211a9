package buffer

import (
	"encoding/binary"
	"math/bits"
)

// elementWindow returns how many elements of the given size are readable
// starting at element offset, honoring maxCount (0 means no limit).
func (b *Buffer) elementWindow(size, offset, maxCount int) (int, bool) {
	if b.IsNULL() || offset < 0 || maxCount < 0 {
		return 0, false
	}
	total := len(b.data) / size
	if offset*size >= len(b.data) || offset > total {
		return 0, false
	}
	n := total - offset
	if maxCount > 0 && maxCount < n {
		n = maxCount
	}
	return n, true
}

// GetU8s returns up to maxCount bytes starting at offset (0 means all remaining).
func (b *Buffer) GetU8s(offset, maxCount int) ([]uint8, bool) {
	n, ok := b.elementWindow(1, offset, maxCount)
	if !ok {
		return nil, false
	}
	out := make([]uint8, n)
	copy(out, b.data[offset:offset+n])
	return out, true
}

// GetU16s returns up to maxCount host-order 16-bit words starting at word offset.
func (b *Buffer) GetU16s(offset, maxCount int, byteSwap bool) ([]uint16, bool) {
	n, ok := b.elementWindow(2, offset, maxCount)
	if !ok {
		return nil, false
	}
	out := make([]uint16, n)
	for i := range out {
		v := binary.NativeEndian.Uint16(b.data[(offset+i)*2:])
		if byteSwap {
			v = bits.ReverseBytes16(v)
		}
		out[i] = v
	}
	return out, true
}

// GetU32s returns up to maxCount host-order 32-bit words starting at word offset.
func (b *Buffer) GetU32s(offset, maxCount int, byteSwap bool) ([]uint32, bool) {
	n, ok := b.elementWindow(4, offset, maxCount)
	if !ok {
		return nil, false
	}
	out := make([]uint32, n)
	for i := range out {
		v := binary.NativeEndian.Uint32(b.data[(offset+i)*4:])
		if byteSwap {
			v = bits.ReverseBytes32(v)
		}
		out[i] = v
	}
	return out, true
}

// GetU64s returns up to maxCount host-order 64-bit words starting at word offset.
func (b *Buffer) GetU64s(offset, maxCount int, byteSwap bool) ([]uint64, bool) {
	n, ok := b.elementWindow(8, offset, maxCount)
	if !ok {
		return nil, false
	}
	out := make([]uint64, n)
	for i := range out {
		v := binary.NativeEndian.Uint64(b.data[(offset+i)*8:])
		if byteSwap {
			v = bits.ReverseBytes64(v)
		}
		out[i] = v
	}
	return out, true
}

// GetString returns the NUL-terminated string starting at byte offset,
// reading at most maxCount bytes (0 means all remaining).
func (b *Buffer) GetString(offset, maxCount int) (string, bool) {
	raw, ok := b.GetU8s(offset, maxCount)
	if !ok {
		return "", false
	}
	for i, c := range raw {
		if c == 0 {
			return string(raw[:i]), true
		}
	}
	return string(raw), true
}

// putWindow validates that count elements of size fit at element offset.
func (b *Buffer) putWindow(size, offset, count int) bool {
	if b.IsNULL() || offset < 0 {
		return false
	}
	if offset*size >= len(b.data) {
		return false
	}
	return (offset+count)*size <= len(b.data)
}

// PutU8s writes values at byte offset. Nothing is written if they don't fit.
func (b *Buffer) PutU8s(values []uint8, offset int) bool {
	if b.IsNULL() {
		return false
	}
	if len(values) == 0 {
		return true
	}
	if !b.putWindow(1, offset, len(values)) {
		return false
	}
	copy(b.data[offset:], values)
	return true
}

// PutU16s writes host-order 16-bit values at word offset.
func (b *Buffer) PutU16s(values []uint16, offset int, byteSwap bool) bool {
	if b.IsNULL() {
		return false
	}
	if len(values) == 0 {
		return true
	}
	if !b.putWindow(2, offset, len(values)) {
		return false
	}
	for i, v := range values {
		if byteSwap {
			v = bits.ReverseBytes16(v)
		}
		binary.NativeEndian.PutUint16(b.data[(offset+i)*2:], v)
	}
	return true
}

// PutU32s writes host-order 32-bit values at word offset.
func (b *Buffer) PutU32s(values []uint32, offset int, byteSwap bool) bool {
	if b.IsNULL() {
		return false
	}
	if len(values) == 0 {
		return true
	}
	if !b.putWindow(4, offset, len(values)) {
		return false
	}
	for i, v := range values {
		if byteSwap {
			v = bits.ReverseBytes32(v)
		}
		binary.NativeEndian.PutUint32(b.data[(offset+i)*4:], v)
	}
	return true
}

// PutU64s writes host-order 64-bit values at word offset.
func (b *Buffer) PutU64s(values []uint64, offset int, byteSwap bool) bool {
	if b.IsNULL() {
		return false
	}
	if len(values) == 0 {
		return true
	}
	if !b.putWindow(8, offset, len(values)) {
		return false
	}
	for i, v := range values {
		if byteSwap {
			v = bits.ReverseBytes64(v)
		}
		binary.NativeEndian.PutUint64(b.data[(offset+i)*8:], v)
	}
	return true
}

// U32 returns the host-order 32-bit word at word index, or 0 when out of range.
func (b *Buffer) U32(index int) uint32 {
	if b.IsNULL() || index < 0 || (index+1)*4 > len(b.data) {
		return 0
	}
	return binary.NativeEndian.Uint32(b.data[index*4:])
}

// SetU32 stores a host-order 32-bit word at word index.
func (b *Buffer) SetU32(index int, v uint32) bool {
	if b.IsNULL() || index < 0 || (index+1)*4 > len(b.data) {
		return false
	}
	binary.NativeEndian.PutUint32(b.data[index*4:], v)
	return true
}

// U16 returns the host-order 16-bit word at word index, or 0 when out of range.
func (b *Buffer) U16(index int) uint16 {
	if b.IsNULL() || index < 0 || (index+1)*2 > len(b.data) {
		return 0
	}
	return binary.NativeEndian.Uint16(b.data[index*2:])
}

// SetU16 stores a host-order 16-bit word at word index.
func (b *Buffer) SetU16(index int, v uint16) bool {
	if b.IsNULL() || index < 0 || (index+1)*2 > len(b.data) {
		return false
	}
	binary.NativeEndian.PutUint16(b.data[index*2:], v)
	return true
}

// ByteSwap16 reverses the byte order of every 16-bit word in place.
func (b *Buffer) ByteSwap16() bool {
	if b.IsNULL() {
		return false
	}
	for i := 0; i+2 <= len(b.data); i += 2 {
		b.data[i], b.data[i+1] = b.data[i+1], b.data[i]
	}
	return true
}

// ByteSwap32 reverses the byte order of every 32-bit word in place.
func (b *Buffer) ByteSwap32() bool {
	if b.IsNULL() {
		return false
	}
	for i := 0; i+4 <= len(b.data); i += 4 {
		v := binary.NativeEndian.Uint32(b.data[i:])
		binary.NativeEndian.PutUint32(b.data[i:], bits.ReverseBytes32(v))
	}
	return true
}

// ByteSwap64 reverses the byte order of every 64-bit word in place.
func (b *Buffer) ByteSwap64() bool {
	if b.IsNULL() {
		return false
	}
	for i := 0; i+8 <= len(b.data); i += 8 {
		v := binary.NativeEndian.Uint64(b.data[i:])
		binary.NativeEndian.PutUint64(b.data[i:], bits.ReverseBytes64(v))
	}
	return true
}
