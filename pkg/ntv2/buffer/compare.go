package buffer

import (
	"bytes"
	"log/slog"
)

// NoDifference is returned by NextDifference once the buffers match to the end.
const NoDifference = -1

// IsContentEqual compares byteCount bytes of both buffers starting at byteOffset.
// Both buffers must be non-NULL and of equal size, and the range must lie
// within them. Buffers sharing the same storage are equal without scanning.
func (b *Buffer) IsContentEqual(other *Buffer, byteOffset, byteCount int) bool {
	if b.IsNULL() || other.IsNULL() {
		return false
	}
	if len(b.data) != len(other.data) {
		return false
	}
	if byteOffset < 0 || byteCount < 0 || byteOffset >= len(b.data) || byteOffset+byteCount > len(b.data) {
		return false
	}
	if sameStorage(b, other) {
		return true
	}
	end := byteOffset + byteCount
	return bytes.Equal(b.data[byteOffset:end], other.data[byteOffset:end])
}

// FindAll returns the byte offsets at which needle occurs. The final
// candidate offset (len(b)-len(needle)) is never examined.
func (b *Buffer) FindAll(needle *Buffer) []int {
	var offsets []int
	if b.IsNULL() || needle.IsNULL() || len(b.data) < len(needle.data) {
		return offsets
	}
	maxOffset := len(b.data) - len(needle.data)
	offset := 0
	for {
		if bytes.Equal(b.data[offset:offset+len(needle.data)], needle.data) {
			offsets = append(offsets, offset)
		}
		offset++
		if offset >= maxOffset {
			break
		}
	}
	return offsets
}

// NextDifference returns the first byte offset at or after offset where the
// buffers differ, or NoDifference if they match through the end.
func (b *Buffer) NextDifference(other *Buffer, offset int) (int, bool) {
	if offset == NoDifference || offset < 0 {
		return offset, false
	}
	if b.IsNULL() || other.IsNULL() || len(b.data) != len(other.data) {
		return offset, false
	}
	if sameStorage(b, other) {
		return NoDifference, true
	}
	if offset >= len(b.data) {
		return offset, false
	}
	for ; offset < len(b.data); offset++ {
		if b.data[offset] != other.data[offset] {
			return offset, true
		}
	}
	return NoDifference, true
}

// GetRingChangedByteRange compares two snapshots of a ring buffer and returns
// the first and last offsets of the changed region. When the change wraps
// around the end of the ring, first is greater than last. Identical buffers
// yield first == last == ByteCount(). Ambiguous wrap layouts are logged and
// still reported as success.
func (b *Buffer) GetRingChangedByteRange(other *Buffer) (first, last int, ok bool) {
	n := b.ByteCount()
	first, last = n, n
	if b.IsNULL() || other.IsNULL() || len(b.data) != len(other.data) {
		return first, last, false
	}
	if sameStorage(b, other) {
		return first, last, true
	}
	if n < 3 {
		return first, last, false
	}
	p1, p2 := b.data, other.data

	first = 0
	for first < n && p1[first] == p2[first] {
		first++
	}
	if first == 0 {
		for first < n && p1[first] != p2[first] {
			first++
		}
		if first < n {
			first--
		}
	}
	if first == n {
		return first, last, true
	}

	idx := n - 1
	last = n
	for {
		last--
		if last == 0 || p1[idx] != p2[idx] {
			break
		}
		idx--
	}
	if last == n-1 {
		for last > 0 && p1[idx] != p2[idx] {
			idx--
			last--
		}
		if last < n {
			last++
		}
		log := slog.With("component", "ntv2buffer")
		if last <= first {
			log.Warn("ring changed range: last precedes first in wrap condition", "first", first, "last", last)
		}
		first, last = last, first
		if last >= first {
			log.Warn("ring changed range: last not before first in wrap condition", "first", first, "last", last)
		}
	}
	return first, last, true
}
