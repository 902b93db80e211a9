package ntv2

// Status is the live state of one AutoCirculate crosspoint.
type Status struct {
	Crosspoint            Crosspoint
	State                 State
	StartFrame            int32
	EndFrame              int32
	ActiveFrame           int32
	RDTSCStartTime        uint64
	AudioClockStartTime   uint64
	RDTSCCurrentTime      uint64
	AudioClockCurrentTime uint64
	FramesProcessed       uint32
	FramesDropped         uint32
	BufferLevel           uint32
	OptionFlags           OptionFlags
	AudioSystem           AudioSystem
}

// NewStatus returns the status of an idle crosspoint.
func NewStatus(xpt Crosspoint) *Status {
	s := &Status{}
	s.Clear()
	s.Crosspoint = xpt
	return s
}

// Clear resets the status to Disabled, keeping nothing.
func (s *Status) Clear() {
	*s = Status{
		Crosspoint:  CrosspointInvalid,
		State:       StateDisabled,
		ActiveFrame: -1,
		AudioSystem: AudioSystemInvalid,
	}
}

// FrameCount returns the size of the frame range, 0 when none is assigned.
func (s *Status) FrameCount() uint32 {
	if s.State == StateDisabled || s.EndFrame < s.StartFrame {
		return 0
	}
	return uint32(s.EndFrame-s.StartFrame) + 1
}

// NumAvailableBuffers returns how many more frames can be queued before the
// ring is full.
func (s *Status) NumAvailableBuffers() uint32 {
	n := s.FrameCount()
	if s.BufferLevel >= n {
		return 0
	}
	return n - s.BufferLevel
}

func (s *Status) IsRunning() bool  { return s.State == StateRunning }
func (s *Status) IsStopped() bool  { return s.State == StateDisabled }
func (s *Status) IsPaused() bool   { return s.State == StatePaused }
func (s *Status) IsStarting() bool { return s.State == StateStarting || s.State == StateStartingAtTime }
func (s *Status) IsInput() bool    { return s.Crosspoint.IsInput() }
func (s *Status) IsOutput() bool   { return s.Crosspoint.IsOutput() }

func (s *Status) WithRP188() bool        { return s.OptionFlags.Has(OptionRP188) }
func (s *Status) WithLTC() bool          { return s.OptionFlags.Has(OptionLTC) }
func (s *Status) WithFBFChange() bool    { return s.OptionFlags.Has(OptionFBFChange) }
func (s *Status) WithFBOChange() bool    { return s.OptionFlags.Has(OptionFBOChange) }
func (s *Status) WithColorCorrect() bool { return s.OptionFlags.Has(OptionColorCorrect) }
func (s *Status) WithVidProc() bool      { return s.OptionFlags.Has(OptionVidProc) }
func (s *Status) WithCustomAnc() bool    { return s.OptionFlags.Has(OptionAnc) }
func (s *Status) WithHDMIAux() bool      { return s.OptionFlags.Has(OptionHDMIAux) }
func (s *Status) IsFieldMode() bool      { return s.OptionFlags.Has(OptionFields) }

// WithAudio reports whether the channel transfers audio.
func (s *Status) WithAudio() bool { return s.AudioSystem.IsValid() }

// ContainsFrame reports whether frame lies within the assigned range.
func (s *Status) ContainsFrame(frame int32) bool {
	return s.FrameCount() > 0 && frame >= s.StartFrame && frame <= s.EndFrame
}

// Overlaps reports whether two assigned frame ranges share a frame.
func (s *Status) Overlaps(start, end int32) bool {
	if s.FrameCount() == 0 {
		return false
	}
	return start <= s.EndFrame && end >= s.StartFrame
}
