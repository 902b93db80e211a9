// Package buffer implements the ownership-tracked byte region that backs every
// AutoCirculate payload: video, audio, ancillary data, timecode arrays and
// register batches.
//
// A Buffer is either NULL (no storage, zero length) or it refers to a non-empty
// byte slice. Memory is either allocated by the Buffer itself (owned) or
// borrowed from the caller, in which case the caller keeps it alive and must
// not mutate it while a transfer that uses it is outstanding.
//
// Operations that can fail report it with a boolean result, never by panicking.
package buffer

import (
	"os"
	"unsafe"
)

// Flag bits carried in the wire representation of a Buffer.
const (
	FlagAllocated   uint32 = 1 << 0
	FlagPageAligned uint32 = 1 << 1
)

var defaultPageSize = os.Getpagesize()

// DefaultPageSize returns the alignment used for page-aligned allocations.
func DefaultPageSize() int {
	return defaultPageSize
}

// SetDefaultPageSize changes the page-aligned allocation boundary. The size
// must be a non-zero power of two.
func SetDefaultPageSize(size int) bool {
	if size <= 0 || size&(size-1) != 0 {
		return false
	}
	defaultPageSize = size
	return true
}

// Buffer is a flat byte region with explicit ownership.
type Buffer struct {
	data         []byte
	owned        bool
	pageAligned  bool
	kernelHandle uint64
}

// New returns a zero-filled, self-owned Buffer of the given size.
// A size of zero yields a NULL Buffer.
func New(byteCount int) *Buffer {
	b := &Buffer{}
	b.Allocate(byteCount, false)
	return b
}

// Wrap returns a Buffer borrowing the given slice.
func Wrap(data []byte) *Buffer {
	b := &Buffer{}
	b.Set(data, len(data))
	return b
}

// IsNULL reports whether the buffer has no storage.
func (b *Buffer) IsNULL() bool {
	return b == nil || len(b.data) == 0
}

// ByteCount returns the buffer length in bytes.
func (b *Buffer) ByteCount() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns the underlying storage. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// IsAllocatedBySDK reports whether the buffer owns its memory.
func (b *Buffer) IsAllocatedBySDK() bool {
	return b != nil && b.owned
}

// IsPageAligned reports whether the storage was allocated on a page boundary.
func (b *Buffer) IsPageAligned() bool {
	return b != nil && b.pageAligned
}

// Flags returns the wire flag bits describing this buffer.
func (b *Buffer) Flags() uint32 {
	var flags uint32
	if b.IsAllocatedBySDK() {
		flags |= FlagAllocated
	}
	if b.IsPageAligned() {
		flags |= FlagPageAligned
	}
	return flags
}

// KernelHandle returns the opaque handle used when the region is pinned.
func (b *Buffer) KernelHandle() uint64 {
	return b.kernelHandle
}

// SetKernelHandle records the opaque pinning handle.
func (b *Buffer) SetKernelHandle(h uint64) {
	b.kernelHandle = h
}

// Set releases any owned memory, then borrows the first byteCount bytes of data.
// It fails, leaving the buffer NULL, when exactly one of data and byteCount is
// empty, or when byteCount exceeds len(data).
func (b *Buffer) Set(data []byte, byteCount int) bool {
	b.Deallocate()
	b.data = nil
	hasData := len(data) > 0
	hasCount := byteCount > 0
	if !hasData && !hasCount {
		return true
	}
	if hasData != hasCount || byteCount > len(data) {
		return false
	}
	b.data = data[:byteCount:byteCount]
	return true
}

// SetAndFill borrows data like Set and then fills it with value.
func (b *Buffer) SetAndFill(data []byte, byteCount int, value byte) bool {
	return b.Set(data, byteCount) && b.Fill(value)
}

// Allocate gives the buffer byteCount bytes of zeroed, self-owned storage.
// An owned buffer that already has exactly byteCount bytes is zero-filled in
// place and keeps its storage. A byteCount of zero releases the buffer.
func (b *Buffer) Allocate(byteCount int, pageAligned bool) bool {
	if b.owned && byteCount > 0 && len(b.data) == byteCount {
		clear(b.data)
		return true
	}
	b.Set(nil, 0)
	if byteCount <= 0 {
		return byteCount == 0
	}
	if pageAligned {
		b.data = alignedBytes(byteCount, defaultPageSize)
	} else {
		b.data = make([]byte, byteCount)
	}
	b.owned = true
	b.pageAligned = pageAligned
	return true
}

// Deallocate releases self-owned storage. Borrowed storage is left untouched.
func (b *Buffer) Deallocate() bool {
	if b.owned {
		b.data = nil
		b.owned = false
		b.pageAligned = false
	}
	return true
}

// Truncate shortens the buffer. It cannot enlarge it; truncating an owned
// buffer to zero releases it.
func (b *Buffer) Truncate(byteCount int) bool {
	switch {
	case byteCount == len(b.data):
		return true
	case byteCount > len(b.data) || byteCount < 0:
		return false
	case byteCount == 0 && b.owned:
		return b.Deallocate()
	}
	b.data = b.data[:byteCount:byteCount]
	return true
}

// Fill sets every byte to value.
func (b *Buffer) Fill(value byte) bool {
	if b.IsNULL() {
		return false
	}
	for i := range b.data {
		b.data[i] = value
	}
	return true
}

// SetFrom copies as many bytes of src as fit into the existing storage.
func (b *Buffer) SetFrom(src *Buffer) bool {
	if src.IsNULL() || b.IsNULL() {
		return false
	}
	if sameStorage(b, src) {
		return true
	}
	copy(b.data, src.data)
	return true
}

// CopyFrom resizes the buffer to len(src) owned bytes and copies src into it.
// An empty src makes the buffer NULL.
func (b *Buffer) CopyFrom(src []byte) bool {
	if len(src) == 0 {
		return b.Set(nil, 0)
	}
	if !b.Allocate(len(src), b.pageAligned) {
		return false
	}
	copy(b.data, src)
	return true
}

// CopyFromBuffer copies byteCount bytes from src at srcOffset into the buffer
// at dstOffset. Nothing is copied when either range runs past its buffer.
func (b *Buffer) CopyFromBuffer(src *Buffer, srcOffset, dstOffset, byteCount int) bool {
	if src.IsNULL() || b.IsNULL() {
		return false
	}
	if srcOffset < 0 || dstOffset < 0 || byteCount < 0 {
		return false
	}
	if srcOffset+byteCount > len(src.data) || dstOffset+byteCount > len(b.data) {
		return false
	}
	copy(b.data[dstOffset:dstOffset+byteCount], src.data[srcOffset:srcOffset+byteCount])
	return true
}

// Assign makes the buffer an owned copy of src, reusing storage when sizes match.
func (b *Buffer) Assign(src *Buffer) bool {
	if b == src {
		return true
	}
	if src.IsNULL() {
		return b.Set(nil, 0)
	}
	if len(b.data) == len(src.data) {
		return b.SetFrom(src)
	}
	return b.Allocate(len(src.data), false) && b.SetFrom(src)
}

// Clone returns an owned deep copy.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{}
	if !b.IsNULL() {
		out.Allocate(len(b.data), b.pageAligned)
		copy(out.data, b.data)
	}
	return out
}

// SwapWith exchanges the storage of two buffers of equal size and flags.
func (b *Buffer) SwapWith(other *Buffer) bool {
	if other.IsNULL() || b.IsNULL() {
		return false
	}
	if len(other.data) != len(b.data) || other.Flags() != b.Flags() {
		return false
	}
	if sameStorage(b, other) {
		return true
	}
	b.data, other.data = other.data, b.data
	return true
}

// Segment returns a borrowed view of byteCount bytes starting at byteOffset.
func (b *Buffer) Segment(byteOffset, byteCount int) (*Buffer, bool) {
	seg := &Buffer{}
	if b.IsNULL() || byteOffset < 0 || byteCount < 0 {
		return seg, false
	}
	if byteOffset >= len(b.data) || byteOffset+byteCount > len(b.data) {
		return seg, false
	}
	ok := seg.Set(b.data[byteOffset:], byteCount)
	return seg, ok
}

func sameStorage(a, b *Buffer) bool {
	return len(a.data) == len(b.data) && len(a.data) > 0 && &a.data[0] == &b.data[0]
}

func alignedBytes(n, align int) []byte {
	raw := make([]byte, n+align)
	offset := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % uintptr(align)); rem != 0 {
		offset = align - rem
	}
	return raw[offset : offset+n : offset+n]
}
