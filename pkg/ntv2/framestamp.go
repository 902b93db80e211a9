package ntv2

import "github.com/smazurov/ntv2node/pkg/ntv2/buffer"

// FrameStamp is the per-frame bookkeeping the device reports after a capture
// or playout cycle.
type FrameStamp struct {
	FrameTime                   int64
	RequestedFrame              uint32
	AudioClockTimeStamp         uint64
	AudioExpectedAddress        uint32
	AudioInStartAddress         uint32
	AudioInStopAddress          uint32
	AudioOutStopAddress         uint32
	AudioOutStartAddress        uint32
	TotalBytesTransferred       uint32
	StartSample                 uint32
	TimeCodes                   buffer.Buffer
	CurrentTime                 int64
	CurrentFrame                uint32
	CurrentFrameTime            int64
	AudioClockCurrentTime       uint64
	CurrentAudioExpectedAddress uint32
	CurrentAudioStartAddress    uint32
	CurrentFieldCount           uint32
	CurrentLineCount            uint32
	CurrentReps                 uint32
	CurrentUserCookie           uint64
	Frame                       uint32
	CurrentRP188                RP188
}

// NewFrameStamp returns a FrameStamp with a full timecode array, every entry
// set to InvalidRP188.
func NewFrameStamp() *FrameStamp {
	fs := &FrameStamp{}
	fs.resetTimeCodes()
	return fs
}

func (fs *FrameStamp) resetTimeCodes() {
	fs.TimeCodes.Allocate(TimecodeArraySize, false)
	fs.TimeCodes.Fill(0xFF)
}

// GetInputTimeCode returns the timecode at index. The index must lie below
// both MaxNumTimecodeIndexes and the number of entries the array actually
// holds; otherwise InvalidRP188 is returned with false.
func (fs *FrameStamp) GetInputTimeCode(index TCIndex) (RP188, bool) {
	return readTimecode(&fs.TimeCodes, index)
}

// GetInputTimeCodes returns every timecode in the array.
func (fs *FrameStamp) GetInputTimeCodes() ([]RP188, bool) {
	n := timecodeCount(fs.TimeCodes.ByteCount())
	if n == 0 {
		return nil, false
	}
	out := make([]RP188, 0, n)
	for i := range n {
		tc, _ := readTimecode(&fs.TimeCodes, TCIndex(i))
		out = append(out, tc)
	}
	return out, true
}

// GetInputTimeCodesForSDI returns the timecodes fed by one SDI input, keyed by
// index. With validOnly, entries holding InvalidRP188 are left out.
func (fs *FrameStamp) GetInputTimeCodesForSDI(sdiInput Channel, validOnly bool) (map[TCIndex]RP188, bool) {
	indexes := TCIndexesForSDIInput(sdiInput)
	if indexes == nil {
		return nil, false
	}
	out := make(map[TCIndex]RP188, len(indexes))
	for _, idx := range indexes {
		tc, ok := readTimecode(&fs.TimeCodes, idx)
		if !ok {
			return out, false
		}
		if validOnly && !tc.IsValid() {
			continue
		}
		out[idx] = tc
	}
	return out, true
}

// SetInputTimecode stores a timecode at index.
func (fs *FrameStamp) SetInputTimecode(index TCIndex, tc RP188) bool {
	return writeTimecode(&fs.TimeCodes, index, tc)
}

// Clear zeroes every field and invalidates the timecodes.
func (fs *FrameStamp) Clear() {
	*fs = FrameStamp{TimeCodes: fs.TimeCodes}
	fs.resetTimeCodes()
}

func readTimecode(b *buffer.Buffer, index TCIndex) (RP188, bool) {
	if int(index) >= timecodeCount(b.ByteCount()) {
		return InvalidRP188, false
	}
	words, ok := b.GetU32s(int(index)*3, 3, false)
	if !ok || len(words) != 3 {
		return InvalidRP188, false
	}
	return RP188{DBB: words[0], Low: words[1], High: words[2]}, true
}

func writeTimecode(b *buffer.Buffer, index TCIndex, tc RP188) bool {
	if int(index) >= timecodeCount(b.ByteCount()) {
		return false
	}
	return b.PutU32s([]uint32{tc.DBB, tc.Low, tc.High}, int(index)*3, false)
}
