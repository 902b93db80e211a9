package ntv2

import (
	"errors"
	"fmt"
	"testing"
)

func TestCrosspointChannelMapping(t *testing.T) {
	for ch := Channel1; ch < ChannelInvalid; ch++ {
		in, out := InputCrosspoint(ch), OutputCrosspoint(ch)
		if !in.IsInput() || in.IsOutput() {
			t.Errorf("%s input crosspoint %d misclassified", ch, in)
		}
		if !out.IsOutput() || out.IsInput() {
			t.Errorf("%s output crosspoint %d misclassified", ch, out)
		}
		if in.Channel() != ch || out.Channel() != ch {
			t.Errorf("%s round trip: in=%s out=%s", ch, in.Channel(), out.Channel())
		}
	}
	if CrosspointMatte.Channel() != ChannelInvalid || CrosspointMatte.IsInput() {
		t.Error("matte is not a channel crosspoint")
	}
	if InputCrosspoint(ChannelInvalid) != CrosspointInvalid {
		t.Error("invalid channel should map to invalid crosspoint")
	}
}

func TestParseCrosspoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Crosspoint
		wantErr bool
	}{
		{"ch1", CrosspointChannel1, false},
		{"IN3", CrosspointInput3, false},
		{" ch8 ", CrosspointChannel8, false},
		{"14", CrosspointInput5, false},
		{"matte", CrosspointMatte, false},
		{"18", CrosspointInvalid, true},
		{"ch9", CrosspointInvalid, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCrosspoint(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseCrosspoint(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestOptionFlagsNames(t *testing.T) {
	f := OptionRP188 | OptionFields | OptionMultiLinkAudio3
	if got := f.String(); got != "rp188|fields|multilink-audio3" {
		t.Errorf("String() = %q", got)
	}
	back, err := ParseOptionFlags(f.Names())
	if err != nil || back != f {
		t.Errorf("ParseOptionFlags = %v, %v", back, err)
	}
	if _, err := ParseOptionFlags([]string{"bogus"}); err == nil {
		t.Error("unknown option should fail")
	}
}

func TestStateString(t *testing.T) {
	if StateStartingAtTime.String() != "StartingAtTime" || State(42).String() != "State(42)" {
		t.Errorf("unexpected names %q %q", StateStartingAtTime, State(42))
	}
}

func TestRP188Components(t *testing.T) {
	tc := NewRP188(23, 59, 58, 29)
	h, m, s, f := tc.Components()
	if h != 23 || m != 59 || s != 58 || f != 29 {
		t.Errorf("Components() = %d:%d:%d:%d", h, m, s, f)
	}
	if tc.String() != "23:59:58:29" {
		t.Errorf("String() = %q", tc.String())
	}
	if InvalidRP188.IsValid() || !(RP188{}).IsValid() {
		t.Error("only the all-ones value is invalid; zero is a valid timecode")
	}
}

func TestTCIndexesForSDIInput(t *testing.T) {
	tests := []struct {
		ch   Channel
		want []TCIndex
	}{
		{Channel1, []TCIndex{TCIndexSDI1, TCIndexSDI1Field2, TCIndexSDI1LTC}},
		{Channel2, []TCIndex{TCIndexSDI2, TCIndexSDI2Field2, TCIndexSDI2LTC}},
		{Channel3, []TCIndex{TCIndexSDI3, TCIndexSDI3Field2, TCIndexSDI3LTC}},
		{Channel5, []TCIndex{TCIndexSDI5, TCIndexSDI5Field2, TCIndexSDI5LTC}},
		{Channel8, []TCIndex{TCIndexSDI8, TCIndexSDI8Field2, TCIndexSDI8LTC}},
	}
	for _, tt := range tests {
		got := TCIndexesForSDIInput(tt.ch)
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.ch, got, tt.want)
		}
		if !got[1].IsVITC2() || got[0].IsVITC2() || !got[2].IsLTC() {
			t.Errorf("%s: index classification wrong", tt.ch)
		}
	}
	if TCIndexesForSDIInput(ChannelInvalid) != nil {
		t.Error("invalid channel should have no indexes")
	}
}

func TestErrorCodes(t *testing.T) {
	err := fmt.Errorf("transfer: %w", Errorf(ResultNotInitialized, "crosspoint %s", CrosspointInput1))
	if !errors.Is(err, ErrNotInitialized) {
		t.Error("errors.Is should match by code")
	}
	if errors.Is(err, ErrInvalidState) {
		t.Error("errors.Is matched a different code")
	}
	if CodeOf(err) != ResultNotInitialized || IsFatal(err) {
		t.Errorf("CodeOf = %s", CodeOf(err))
	}
	if !IsFatal(ErrDeviceNotOpen) || CodeOf(nil) != ResultSuccess || CodeOf(errors.New("x")) != ResultInternal {
		t.Error("fatal or fallback classification wrong")
	}
	if ResultSuccess.Err() != nil || !errors.Is(ResultFrameOutOfRange.Err(), ErrFrameOutOfRange) {
		t.Error("ResultCode.Err mapping wrong")
	}
}

func TestStatusHelpers(t *testing.T) {
	s := NewStatus(CrosspointInput1)
	if s.FrameCount() != 0 || s.Overlaps(0, 100) {
		t.Error("disabled status has no frame range")
	}
	s.State = StateRunning
	s.StartFrame, s.EndFrame = 4, 11
	s.BufferLevel = 3
	if s.FrameCount() != 8 || s.NumAvailableBuffers() != 5 {
		t.Errorf("FrameCount=%d available=%d", s.FrameCount(), s.NumAvailableBuffers())
	}
	if !s.Overlaps(11, 20) || s.Overlaps(12, 20) || !s.Overlaps(0, 4) || s.Overlaps(0, 3) {
		t.Error("overlap boundaries wrong")
	}
	if !s.ContainsFrame(4) || s.ContainsFrame(12) || !s.IsInput() {
		t.Error("ContainsFrame or IsInput wrong")
	}
}
