package ntv2

import "github.com/smazurov/ntv2node/pkg/ntv2/buffer"

// SegmentedDMAInfo describes a sub-rectangle transfer: NumSegments rows of
// ActiveBytesPerRow bytes, with independent host and device pitches.
type SegmentedDMAInfo struct {
	NumSegments       uint32
	ActiveBytesPerRow uint32
	HostPitch         uint32
	DevicePitch       uint32
}

// ColorCorrectionMode selects how the color correction LUTs are applied.
type ColorCorrectionMode uint16

const (
	ColorCorrectionOff ColorCorrectionMode = iota
	ColorCorrectionSet
	ColorCorrection3WayOff
)

// ColorCorrectionData carries optional LUT data for one transfer.
type ColorCorrectionData struct {
	Mode       ColorCorrectionMode
	Saturation uint32
	Buffers    buffer.Buffer
}

// VidProcMode selects the mixer operation.
type VidProcMode uint16

const (
	VidProcMix VidProcMode = iota
	VidProcHorizontalWipe
	VidProcVerticalWipe
	VidProcKey
)

// VidProcInfo carries optional mixer settings for one transfer.
type VidProcInfo struct {
	Mode                  VidProcMode
	ForegroundVideo       Crosspoint
	BackgroundVideo       Crosspoint
	ForegroundKey         Crosspoint
	BackgroundKey         Crosspoint
	TransitionCoefficient uint32
	TransitionSoftness    uint32
}

// TransferStatus is the result of one Transfer.
type TransferStatus struct {
	State                 State
	TransferFrame         uint32
	BufferLevel           uint32
	FramesProcessed       uint32
	FramesDropped         uint32
	FrameStamp            FrameStamp
	AudioTransferSize     uint32
	AudioStartSample      uint32
	AncTransferSize       uint32
	AncField2TransferSize uint32
}

// Clear resets the result fields and invalidates the frame stamp timecodes.
func (ts *TransferStatus) Clear() {
	fs := ts.FrameStamp
	*ts = TransferStatus{FrameStamp: fs}
	ts.FrameStamp.Clear()
}

// Transfer describes the movement of exactly one frame between host and
// device memory. Buffers set with SetBuffers are borrowed for the duration of
// the call and must not be modified while it is outstanding.
type Transfer struct {
	Video             buffer.Buffer
	Audio             buffer.Buffer
	Anc               buffer.Buffer
	AncField2         buffer.Buffer
	OutputTimeCodes   buffer.Buffer
	Status            TransferStatus
	UserCookie        uint64
	VideoDMAOffset    uint32
	SegmentedDMA      SegmentedDMAInfo
	ColorCorrection   ColorCorrectionData
	FrameBufferFormat FrameBufferFormat
	Orientation       Orientation
	VidProc           VidProcInfo
	QuarterSizeExpand QuarterSizeExpand
	HDMIAux           buffer.Buffer
	PeerToPeerFlags   uint32
	FrameRepeatCount  uint32
	DesiredFrame      int32
	RP188             RP188
	Crosspoint        Crosspoint
}

// AutoFrame lets the device pick the next frame in sequence.
const AutoFrame int32 = -1

// NewTransfer returns a Transfer with default settings: auto-advance, one
// repeat, 10-bit YCbCr and all output timecodes invalid.
func NewTransfer() *Transfer {
	t := &Transfer{}
	t.Clear()
	return t
}

// NewTransferWithBuffers returns a default Transfer borrowing the given
// video, audio and ancillary buffers.
func NewTransferWithBuffers(video, audio, anc, ancF2 []byte) *Transfer {
	t := NewTransfer()
	t.SetBuffers(video, audio, anc, ancF2)
	return t
}

// Clear restores the defaults and releases every payload buffer.
func (t *Transfer) Clear() {
	t.Video.Set(nil, 0)
	t.Audio.Set(nil, 0)
	t.Anc.Set(nil, 0)
	t.AncField2.Set(nil, 0)
	t.HDMIAux.Set(nil, 0)
	t.ColorCorrection = ColorCorrectionData{}
	t.Status.Clear()
	t.UserCookie = 0
	t.VideoDMAOffset = 0
	t.SegmentedDMA = SegmentedDMAInfo{}
	t.FrameBufferFormat = FBF10BitYCbCr
	t.Orientation = OrientationTopDown
	t.VidProc = VidProcInfo{
		ForegroundVideo: CrosspointInvalid,
		BackgroundVideo: CrosspointInvalid,
		ForegroundKey:   CrosspointInvalid,
		BackgroundKey:   CrosspointInvalid,
	}
	t.QuarterSizeExpand = QuarterSizeExpandOff
	t.PeerToPeerFlags = 0
	t.FrameRepeatCount = 1
	t.DesiredFrame = AutoFrame
	t.RP188 = InvalidRP188
	t.Crosspoint = CrosspointInvalid
	t.OutputTimeCodes.Allocate(TimecodeArraySize, false)
	t.OutputTimeCodes.Fill(0xFF)
}

// SetBuffers borrows the video, audio and ancillary buffers. Empty slices
// clear the corresponding buffer.
func (t *Transfer) SetBuffers(video, audio, anc, ancF2 []byte) bool {
	return t.SetVideoBuffer(video) && t.SetAudioBuffer(audio) && t.SetAncBuffers(anc, ancF2)
}

func (t *Transfer) SetVideoBuffer(video []byte) bool { return t.Video.Set(video, len(video)) }
func (t *Transfer) SetAudioBuffer(audio []byte) bool { return t.Audio.Set(audio, len(audio)) }

func (t *Transfer) SetAncBuffers(anc, ancF2 []byte) bool {
	return t.Anc.Set(anc, len(anc)) && t.AncField2.Set(ancF2, len(ancF2))
}

// SetOutputTimeCode stores one output timecode.
func (t *Transfer) SetOutputTimeCode(tc RP188, index TCIndex) bool {
	return writeTimecode(&t.OutputTimeCodes, index, tc)
}

// SetOutputTimeCodes stores every timecode in the map. All indexes are
// attempted; the result is false if any of them was rejected.
func (t *Transfer) SetOutputTimeCodes(tcs map[TCIndex]RP188) bool {
	ok := true
	for idx, tc := range tcs {
		if !t.SetOutputTimeCode(tc, idx) {
			ok = false
		}
	}
	return ok
}

// SetAllOutputTimeCodes writes tc to every output timecode index. Field-2
// VITC indexes receive tc only when includeF2 is set and InvalidRP188
// otherwise.
func (t *Transfer) SetAllOutputTimeCodes(tc RP188, includeF2 bool) bool {
	n := timecodeCount(t.OutputTimeCodes.ByteCount())
	if n == 0 {
		return false
	}
	for i := range n {
		idx := TCIndex(i)
		v := tc
		if idx.IsVITC2() && !includeF2 {
			v = InvalidRP188
		}
		if !t.SetOutputTimeCode(v, idx) {
			return false
		}
	}
	return true
}

// GetOutputTimeCode returns one output timecode.
func (t *Transfer) GetOutputTimeCode(index TCIndex) (RP188, bool) {
	return readTimecode(&t.OutputTimeCodes, index)
}

// GetInputTimeCode returns one timecode captured with the frame.
func (t *Transfer) GetInputTimeCode(index TCIndex) (RP188, bool) {
	return t.Status.FrameStamp.GetInputTimeCode(index)
}

// GetInputTimeCodes returns every timecode captured with the frame.
func (t *Transfer) GetInputTimeCodes() ([]RP188, bool) {
	return t.Status.FrameStamp.GetInputTimeCodes()
}

// SetFrameBufferFormat overrides the pixel format for this transfer.
func (t *Transfer) SetFrameBufferFormat(f FrameBufferFormat) bool {
	if !f.IsValid() {
		return false
	}
	t.FrameBufferFormat = f
	return true
}

// EnableSegmentedDMAs turns on sub-rectangle transfer. Sizes are in bytes.
// It fails when the video buffer is owned by the Transfer, since segmented
// transfers address caller memory.
func (t *Transfer) EnableSegmentedDMAs(numSegments, activeBytesPerRow, hostPitch, devicePitch uint32) bool {
	if t.Video.IsAllocatedBySDK() {
		return false
	}
	if numSegments < 2 || activeBytesPerRow == 0 {
		return t.DisableSegmentedDMAs()
	}
	t.SegmentedDMA = SegmentedDMAInfo{
		NumSegments:       numSegments,
		ActiveBytesPerRow: activeBytesPerRow,
		HostPitch:         hostPitch,
		DevicePitch:       devicePitch,
	}
	return true
}

func (t *Transfer) DisableSegmentedDMAs() bool {
	t.SegmentedDMA = SegmentedDMAInfo{}
	return true
}

func (t *Transfer) SegmentedDMAsEnabled() bool { return t.SegmentedDMA.NumSegments > 1 }

// HostSegments returns the segmented copy describing where each row lives in
// the host video buffer, in bytes.
func (t *Transfer) HostSegments() buffer.SegmentedXferInfo {
	s := t.SegmentedDMA
	return buffer.SegmentedXferInfo{
		ElementLength: 1,
		SegmentCount:  int(s.NumSegments),
		SegmentLength: int(s.ActiveBytesPerRow),
		SourcePitch:   int(s.HostPitch),
		DestPitch:     int(s.DevicePitch),
		DestOffset:    int(t.VideoDMAOffset),
	}
}

// TransferFrame returns the frame the device used, valid after the call.
func (t *Transfer) TransferFrame() uint32 { return t.Status.TransferFrame }

// FrameStamp returns the frame stamp of the last transfer.
func (t *Transfer) FrameStamp() *FrameStamp { return &t.Status.FrameStamp }
