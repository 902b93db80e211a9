package buffer

// SegmentedXferInfo describes a strided copy: SegmentCount segments of
// SegmentLength elements each, with independent source and destination
// starting offsets and pitches. Offsets, lengths and pitches are counted in
// elements of ElementLength bytes.
type SegmentedXferInfo struct {
	ElementLength  int
	SegmentCount   int
	SegmentLength  int
	SourceOffset   int
	SourcePitch    int
	SourceBottomUp bool
	DestOffset     int
	DestPitch      int
	DestBottomUp   bool
}

// IsValid reports whether the description moves at least one element.
func (x SegmentedXferInfo) IsValid() bool {
	return x.ElementLength > 0 && x.SegmentCount > 0 && x.SegmentLength > 0
}

// TotalBytes returns the number of bytes the transfer moves.
func (x SegmentedXferInfo) TotalBytes() int {
	return x.ElementLength * x.SegmentCount * x.SegmentLength
}

// CopyFromSegments copies every segment described by xfer from src into the
// buffer. It stops and fails at the first segment that would fall outside
// either buffer; segments already copied remain.
func (b *Buffer) CopyFromSegments(src *Buffer, xfer SegmentedXferInfo) bool {
	if !xfer.IsValid() || src.IsNULL() || b.IsNULL() {
		return false
	}
	srcOffset := xfer.SourceOffset * xfer.ElementLength
	dstOffset := xfer.DestOffset * xfer.ElementLength
	srcPitch := xfer.SourcePitch * xfer.ElementLength
	dstPitch := xfer.DestPitch * xfer.ElementLength
	segBytes := xfer.SegmentLength * xfer.ElementLength
	if xfer.SourceBottomUp {
		srcPitch = -srcPitch
	}
	if xfer.DestBottomUp {
		dstPitch = -dstPitch
	}
	for seg := 0; seg < xfer.SegmentCount; seg++ {
		if srcOffset < 0 || dstOffset < 0 {
			return false
		}
		if srcOffset+segBytes > len(src.data) || dstOffset+segBytes > len(b.data) {
			return false
		}
		copy(b.data[dstOffset:dstOffset+segBytes], src.data[srcOffset:srcOffset+segBytes])
		srcOffset += srcPitch
		dstOffset += dstPitch
	}
	return true
}
