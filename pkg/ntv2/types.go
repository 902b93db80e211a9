// Package ntv2 holds the AutoCirculate data model shared by the device, the
// host-side client and the RPC transport: channel and crosspoint identifiers,
// channel status, per-frame stamps, transfer descriptors, register batches and
// the command envelope, together with their binary codec.
package ntv2

import (
	"fmt"
	"strconv"
	"strings"
)

// Channel identifies one of the device's frame stores.
type Channel uint16

const (
	Channel1 Channel = iota
	Channel2
	Channel3
	Channel4
	Channel5
	Channel6
	Channel7
	Channel8
	ChannelInvalid
)

// MaxChannels is the number of frame stores on the largest device.
const MaxChannels = 8

func (c Channel) IsValid() bool { return c < MaxChannels }

func (c Channel) String() string {
	if !c.IsValid() {
		return "ChInvalid"
	}
	return fmt.Sprintf("Ch%d", c+1)
}

// Crosspoint is a (channel, direction) pair identifying one streaming endpoint.
type Crosspoint uint16

const (
	CrosspointChannel1 Crosspoint = iota
	CrosspointChannel2
	CrosspointInput1
	CrosspointInput2
	CrosspointMatte
	CrosspointFgKey
	CrosspointChannel3
	CrosspointChannel4
	CrosspointInput3
	CrosspointInput4
	CrosspointChannel5
	CrosspointChannel6
	CrosspointChannel7
	CrosspointChannel8
	CrosspointInput5
	CrosspointInput6
	CrosspointInput7
	CrosspointInput8
	CrosspointInvalid
)

var outputCrosspoints = [MaxChannels]Crosspoint{
	CrosspointChannel1, CrosspointChannel2, CrosspointChannel3, CrosspointChannel4,
	CrosspointChannel5, CrosspointChannel6, CrosspointChannel7, CrosspointChannel8,
}

var inputCrosspoints = [MaxChannels]Crosspoint{
	CrosspointInput1, CrosspointInput2, CrosspointInput3, CrosspointInput4,
	CrosspointInput5, CrosspointInput6, CrosspointInput7, CrosspointInput8,
}

// OutputCrosspoint returns the playout crosspoint of a channel.
func OutputCrosspoint(ch Channel) Crosspoint {
	if !ch.IsValid() {
		return CrosspointInvalid
	}
	return outputCrosspoints[ch]
}

// InputCrosspoint returns the capture crosspoint of a channel.
func InputCrosspoint(ch Channel) Crosspoint {
	if !ch.IsValid() {
		return CrosspointInvalid
	}
	return inputCrosspoints[ch]
}

func (x Crosspoint) IsValid() bool { return x < CrosspointInvalid }

// IsInput reports whether the crosspoint is a capture endpoint.
func (x Crosspoint) IsInput() bool {
	for _, in := range inputCrosspoints {
		if in == x {
			return true
		}
	}
	return false
}

// IsOutput reports whether the crosspoint is a playout endpoint.
func (x Crosspoint) IsOutput() bool {
	for _, out := range outputCrosspoints {
		if out == x {
			return true
		}
	}
	return false
}

// Channel returns the frame store behind the crosspoint, or ChannelInvalid
// for the matte and key crosspoints.
func (x Crosspoint) Channel() Channel {
	for i := range MaxChannels {
		if outputCrosspoints[i] == x || inputCrosspoints[i] == x {
			return Channel(i)
		}
	}
	return ChannelInvalid
}

func (x Crosspoint) String() string {
	switch {
	case x == CrosspointMatte:
		return "matte"
	case x == CrosspointFgKey:
		return "fgkey"
	case x.IsInput():
		return fmt.Sprintf("in%d", x.Channel()+1)
	case x.IsOutput():
		return fmt.Sprintf("ch%d", x.Channel()+1)
	}
	return "invalid"
}

// ParseCrosspoint accepts the String form ("ch1", "in3", "matte") or the
// numeric crosspoint value.
func ParseCrosspoint(s string) (Crosspoint, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.ParseUint(s, 10, 16); err == nil {
		if x := Crosspoint(n); x.IsValid() {
			return x, nil
		}
		return CrosspointInvalid, fmt.Errorf("crosspoint %d out of range", n)
	}
	for x := CrosspointChannel1; x < CrosspointInvalid; x++ {
		if x.String() == s {
			return x, nil
		}
	}
	return CrosspointInvalid, fmt.Errorf("unknown crosspoint %q", s)
}

// State is the AutoCirculate state of one crosspoint.
type State uint16

const (
	StateDisabled State = iota
	StateInitializing
	StateStarting
	StatePaused
	StateStopping
	StateRunning
	StateStartingAtTime
)

var stateNames = [...]string{
	StateDisabled:       "Disabled",
	StateInitializing:   "Initializing",
	StateStarting:       "Starting",
	StatePaused:         "Paused",
	StateStopping:       "Stopping",
	StateRunning:        "Running",
	StateStartingAtTime: "StartingAtTime",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// AudioSystem identifies an audio engine bound to a channel.
type AudioSystem uint16

const (
	AudioSystem1 AudioSystem = iota
	AudioSystem2
	AudioSystem3
	AudioSystem4
	AudioSystem5
	AudioSystem6
	AudioSystem7
	AudioSystem8
	AudioSystemInvalid
)

func (a AudioSystem) IsValid() bool { return a < AudioSystemInvalid }

// Multi-link audio bits carried alongside the audio system in Init.
const (
	audioSystemMask  uint32 = 0x0F
	AudioSystemPlus1 uint32 = 0x100
	AudioSystemPlus2 uint32 = 0x200
	AudioSystemPlus3 uint32 = 0x400
)

// OptionFlags select the optional per-frame features of a channel.
type OptionFlags uint32

const (
	OptionRP188 OptionFlags = 1 << iota
	OptionLTC
	OptionFBFChange
	OptionFBOChange
	OptionColorCorrect
	OptionVidProc
	OptionAnc
	OptionAudioControl
	OptionFields
	OptionHDMIAux
	OptionMultiLinkAudio1
	OptionMultiLinkAudio2
	OptionMultiLinkAudio3
)

var optionNames = []struct {
	flag OptionFlags
	name string
}{
	{OptionRP188, "rp188"},
	{OptionLTC, "ltc"},
	{OptionFBFChange, "fbf-change"},
	{OptionFBOChange, "fbo-change"},
	{OptionColorCorrect, "color-correct"},
	{OptionVidProc, "vidproc"},
	{OptionAnc, "anc"},
	{OptionAudioControl, "audio-control"},
	{OptionFields, "fields"},
	{OptionHDMIAux, "hdmi-aux"},
	{OptionMultiLinkAudio1, "multilink-audio1"},
	{OptionMultiLinkAudio2, "multilink-audio2"},
	{OptionMultiLinkAudio3, "multilink-audio3"},
}

func (f OptionFlags) Has(flag OptionFlags) bool { return f&flag != 0 }

// Names returns the option names set in f, in bit order.
func (f OptionFlags) Names() []string {
	var names []string
	for _, o := range optionNames {
		if f.Has(o.flag) {
			names = append(names, o.name)
		}
	}
	return names
}

func (f OptionFlags) String() string {
	if f == 0 {
		return "none"
	}
	return strings.Join(f.Names(), "|")
}

// ParseOptionFlags parses a list of option names as produced by Names.
func ParseOptionFlags(names []string) (OptionFlags, error) {
	var f OptionFlags
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		found := false
		for _, o := range optionNames {
			if o.name == n {
				f |= o.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown option %q", n)
		}
	}
	return f, nil
}

// FrameBufferFormat is the pixel format of a frame store.
type FrameBufferFormat uint16

const (
	FBF10BitYCbCr FrameBufferFormat = iota
	FBF8BitYCbCr
	FBFARGB
	FBFRGBA
	FBF10BitRGB
	FBF8BitYCbCrYUY2
	FBFABGR
	FBF10BitDPX
	FBF10BitYCbCrDPX
	FBF8BitDVCPro
	FBF8BitYCbCr420
	FBF8BitHDV
	FBF24BitRGB
	FBF24BitBGR
	FBF10BitYCbCrA
	FBF10BitDPXLE
	FBF48BitRGB
	FBF12BitRGBPacked
	FBFPRORES
	FBFNumFormats
)

func (f FrameBufferFormat) IsValid() bool { return f < FBFNumFormats }

// Orientation is the line order of a frame buffer in host memory.
type Orientation uint16

const (
	OrientationTopDown Orientation = iota
	OrientationBottomUp
)

// QuarterSizeExpand doubles quarter-size frames on transfer when set.
type QuarterSizeExpand uint16

const (
	QuarterSizeExpandOff QuarterSizeExpand = iota
	QuarterSizeExpandOn
)
