package ntv2

import "fmt"

// RP188 is an SMPTE timecode as carried in the RP-188 registers.
type RP188 struct {
	DBB  uint32
	Low  uint32
	High uint32
}

// rp188Size is the size of one RP188 in a timecode array.
const rp188Size = 12

// InvalidRP188 marks a missing timecode, distinct from timecode zero.
var InvalidRP188 = RP188{DBB: 0xFFFFFFFF, Low: 0xFFFFFFFF, High: 0xFFFFFFFF}

func (r RP188) IsValid() bool {
	return r.DBB != 0xFFFFFFFF || r.Low != 0xFFFFFFFF || r.High != 0xFFFFFFFF
}

// NewRP188 builds a BCD timecode value from its components.
func NewRP188(hours, minutes, seconds, frames uint32) RP188 {
	return RP188{
		Low: (frames%10)&0xF | ((frames/10)&0x3)<<8 |
			(seconds%10)&0xF<<16 | ((seconds/10)&0x7)<<24,
		High: (minutes%10)&0xF | ((minutes/10)&0x7)<<8 |
			(hours%10)&0xF<<16 | ((hours/10)&0x3)<<24,
	}
}

// Components decodes the BCD digits of the timecode.
func (r RP188) Components() (hours, minutes, seconds, frames uint32) {
	frames = r.Low&0xF + (r.Low>>8&0x3)*10
	seconds = r.Low>>16&0xF + (r.Low>>24&0x7)*10
	minutes = r.High&0xF + (r.High>>8&0x7)*10
	hours = r.High>>16&0xF + (r.High>>24&0x3)*10
	return
}

func (r RP188) String() string {
	if !r.IsValid() {
		return "--:--:--:--"
	}
	h, m, s, f := r.Components()
	return fmt.Sprintf("%02d:%02d:%02d:%02d", h, m, s, f)
}

// TCIndex selects a timecode source within a timecode array.
type TCIndex uint16

const (
	TCIndexDefault TCIndex = iota
	TCIndexSDI1
	TCIndexSDI2
	TCIndexSDI3
	TCIndexSDI4
	TCIndexSDI1LTC
	TCIndexSDI2LTC
	TCIndexLTC1
	TCIndexLTC2
	TCIndexSDI5
	TCIndexSDI6
	TCIndexSDI7
	TCIndexSDI8
	TCIndexSDI3LTC
	TCIndexSDI4LTC
	TCIndexSDI5LTC
	TCIndexSDI6LTC
	TCIndexSDI7LTC
	TCIndexSDI8LTC
	TCIndexSDI1Field2
	TCIndexSDI2Field2
	TCIndexSDI3Field2
	TCIndexSDI4Field2
	TCIndexSDI5Field2
	TCIndexSDI6Field2
	TCIndexSDI7Field2
	TCIndexSDI8Field2
	MaxNumTimecodeIndexes
)

// TimecodeArraySize is the byte size of a full timecode array.
const TimecodeArraySize = int(MaxNumTimecodeIndexes) * rp188Size

func (i TCIndex) IsValid() bool { return i < MaxNumTimecodeIndexes }

// IsVITC2 reports whether the index holds a field-2 VITC timecode.
func (i TCIndex) IsVITC2() bool {
	return i >= TCIndexSDI1Field2 && i <= TCIndexSDI8Field2
}

// IsLTC reports whether the index holds an embedded or analog LTC timecode.
func (i TCIndex) IsLTC() bool {
	switch {
	case i == TCIndexSDI1LTC, i == TCIndexSDI2LTC, i == TCIndexLTC1, i == TCIndexLTC2:
		return true
	case i >= TCIndexSDI3LTC && i <= TCIndexSDI8LTC:
		return true
	}
	return false
}

func (i TCIndex) String() string {
	switch {
	case i == TCIndexDefault:
		return "default"
	case i == TCIndexLTC1:
		return "ltc1"
	case i == TCIndexLTC2:
		return "ltc2"
	case !i.IsValid():
		return "invalid"
	}
	for ch := range Channel(MaxChannels) {
		vitc, vitc2, ltc := sdiIndexes(ch)
		switch i {
		case vitc:
			return fmt.Sprintf("sdi%d-vitc", ch+1)
		case vitc2:
			return fmt.Sprintf("sdi%d-vitc2", ch+1)
		case ltc:
			return fmt.Sprintf("sdi%d-ltc", ch+1)
		}
	}
	return "invalid"
}

func sdiIndexes(ch Channel) (vitc, vitc2, ltc TCIndex) {
	if ch < Channel5 {
		vitc = TCIndexSDI1 + TCIndex(ch)
	} else {
		vitc = TCIndexSDI5 + TCIndex(ch-Channel5)
	}
	vitc2 = TCIndexSDI1Field2 + TCIndex(ch)
	switch ch {
	case Channel1:
		ltc = TCIndexSDI1LTC
	case Channel2:
		ltc = TCIndexSDI2LTC
	default:
		ltc = TCIndexSDI3LTC + TCIndex(ch-Channel3)
	}
	return vitc, vitc2, ltc
}

// TCIndexesForSDIInput returns the timecode indexes fed by one SDI input:
// its VITC, field-2 VITC and embedded LTC sources.
func TCIndexesForSDIInput(sdiInput Channel) []TCIndex {
	if !sdiInput.IsValid() {
		return nil
	}
	vitc, vitc2, ltc := sdiIndexes(sdiInput)
	return []TCIndex{vitc, vitc2, ltc}
}

// timecodeCount returns how many RP188 entries the array can hold, bounded by
// both its byte size and the number of timecode indexes.
func timecodeCount(byteCount int) int {
	return min(byteCount/rp188Size, int(MaxNumTimecodeIndexes))
}
