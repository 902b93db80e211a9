package ntv2

import "fmt"

// CommandCode is the AutoCirculate command carried by an Envelope.
type CommandCode uint16

const (
	CmdInit CommandCode = iota
	CmdStart
	CmdStop
	CmdPause
	CmdGetStatus
	CmdGetFrameStamp
	CmdFlush
	CmdPreroll
	CmdTransfer
	CmdAbort
	CmdStartAtTime
	CmdTransferEx
	CmdTransferEx2
	CmdGetFrameStampEx2
	CmdSetCaptureTask
	CmdSetActiveFrame
)

var commandNames = map[CommandCode]string{
	CmdInit:             "init",
	CmdStart:            "start",
	CmdStop:             "stop",
	CmdPause:            "pause",
	CmdGetStatus:        "status",
	CmdGetFrameStamp:    "framestamp",
	CmdFlush:            "flush",
	CmdPreroll:          "preroll",
	CmdTransfer:         "transfer",
	CmdAbort:            "abort",
	CmdStartAtTime:      "start-at-time",
	CmdTransferEx:       "transfer-ex",
	CmdTransferEx2:      "transfer-ex2",
	CmdGetFrameStampEx2: "framestamp-ex2",
	CmdSetCaptureTask:   "capture-task",
	CmdSetActiveFrame:   "active-frame",
}

func (c CommandCode) String() string {
	if n, ok := commandNames[c]; ok {
		return n
	}
	return fmt.Sprintf("command(%d)", uint16(c))
}

// Envelope is the generic AutoCirculate request: a command code plus numeric,
// boolean and pointer slots whose meaning depends on the command. Commands
// that return data carry it in the matching payload field; a non-zero first
// pointer slot marks the payload as present on the wire.
type Envelope struct {
	Command    CommandCode
	Crosspoint Crosspoint
	LVal       [6]int32
	BVal       [8]bool
	PVal       [4]uint64

	Status     *Status
	FrameStamp *FrameStamp
	Transfer   *Transfer
}

// HasPayload reports whether the envelope carries the payload its command
// defines.
func (e *Envelope) HasPayload() bool {
	if e.PVal[0] == 0 {
		return false
	}
	switch e.Command {
	case CmdGetStatus:
		return e.Status != nil
	case CmdGetFrameStamp:
		return e.FrameStamp != nil
	case CmdTransferEx2:
		return e.Transfer != nil
	}
	return false
}

// Command is one AutoCirculate operation. Every variant converts to the
// Envelope slot layout; CommandFromEnvelope converts back.
type Command interface {
	Code() CommandCode
	Target() Crosspoint
	Envelope() *Envelope
}

// InitCommand assigns a frame range and features to a crosspoint.
type InitCommand struct {
	Crosspoint  Crosspoint
	StartFrame  int32
	EndFrame    int32
	NumChannels int32
	AudioSystem AudioSystem
	Options     OptionFlags
}

func (c InitCommand) Code() CommandCode  { return CmdInit }
func (c InitCommand) Target() Crosspoint { return c.Crosspoint }

func (c InitCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdInit, Crosspoint: c.Crosspoint}
	audio := uint32(c.AudioSystem)
	if c.Options.Has(OptionMultiLinkAudio1) {
		audio |= AudioSystemPlus1
	}
	if c.Options.Has(OptionMultiLinkAudio2) {
		audio |= AudioSystemPlus2
	}
	if c.Options.Has(OptionMultiLinkAudio3) {
		audio |= AudioSystemPlus3
	}
	e.LVal[0] = c.StartFrame
	e.LVal[1] = c.EndFrame
	e.LVal[2] = int32(audio)
	e.LVal[3] = c.NumChannels
	e.LVal[5] = int32(c.Options & envelopeOptionBits)
	e.BVal[0] = !c.Options.Has(OptionAudioControl) && c.AudioSystem.IsValid()
	e.BVal[1] = c.Options.Has(OptionRP188)
	e.BVal[2] = c.Options.Has(OptionFBFChange)
	e.BVal[3] = c.Options.Has(OptionFBOChange)
	e.BVal[4] = c.Options.Has(OptionColorCorrect)
	e.BVal[5] = c.Options.Has(OptionVidProc)
	e.BVal[6] = c.Options.Has(OptionAnc)
	e.BVal[7] = c.Options.Has(OptionLTC)
	return e
}

// envelopeOptionBits travel in the init option word. Audio control also
// rides there so it survives an init without an audio system.
const envelopeOptionBits = OptionFields | OptionHDMIAux | OptionAudioControl

func initFromEnvelope(e *Envelope) InitCommand {
	audio := uint32(e.LVal[2])
	c := InitCommand{
		Crosspoint:  e.Crosspoint,
		StartFrame:  e.LVal[0],
		EndFrame:    e.LVal[1],
		NumChannels: e.LVal[3],
		AudioSystem: AudioSystem(audio & audioSystemMask),
		Options:     OptionFlags(uint32(e.LVal[5])) & envelopeOptionBits,
	}
	flags := []struct {
		set  bool
		flag OptionFlags
	}{
		{audio&AudioSystemPlus1 != 0, OptionMultiLinkAudio1},
		{audio&AudioSystemPlus2 != 0, OptionMultiLinkAudio2},
		{audio&AudioSystemPlus3 != 0, OptionMultiLinkAudio3},
		{!e.BVal[0] && c.AudioSystem.IsValid(), OptionAudioControl},
		{e.BVal[1], OptionRP188},
		{e.BVal[2], OptionFBFChange},
		{e.BVal[3], OptionFBOChange},
		{e.BVal[4], OptionColorCorrect},
		{e.BVal[5], OptionVidProc},
		{e.BVal[6], OptionAnc},
		{e.BVal[7], OptionLTC},
	}
	for _, f := range flags {
		if f.set {
			c.Options |= f.flag
		}
	}
	return c
}

// StartCommand starts a crosspoint, immediately or at a host clock time.
type StartCommand struct {
	Crosspoint Crosspoint
	StartTime  int64
}

func (c StartCommand) Code() CommandCode {
	if c.StartTime != 0 {
		return CmdStartAtTime
	}
	return CmdStart
}

func (c StartCommand) Target() Crosspoint { return c.Crosspoint }

func (c StartCommand) Envelope() *Envelope {
	e := &Envelope{Command: c.Code(), Crosspoint: c.Crosspoint}
	if c.StartTime != 0 {
		e.LVal[0] = int32(uint64(c.StartTime) >> 32)
		e.LVal[1] = int32(uint32(c.StartTime))
	}
	return e
}

// StopCommand stops a crosspoint gracefully.
type StopCommand struct {
	Crosspoint Crosspoint
}

func (c StopCommand) Code() CommandCode  { return CmdStop }
func (c StopCommand) Target() Crosspoint { return c.Crosspoint }
func (c StopCommand) Envelope() *Envelope {
	return &Envelope{Command: CmdStop, Crosspoint: c.Crosspoint}
}

// AbortCommand disables a crosspoint without draining.
type AbortCommand struct {
	Crosspoint Crosspoint
}

func (c AbortCommand) Code() CommandCode  { return CmdAbort }
func (c AbortCommand) Target() Crosspoint { return c.Crosspoint }
func (c AbortCommand) Envelope() *Envelope {
	return &Envelope{Command: CmdAbort, Crosspoint: c.Crosspoint}
}

// NoPauseFrame in PauseCommand.AtFrame pauses at once.
const NoPauseFrame int32 = -1

// PauseCommand pauses a running crosspoint, or resumes a paused one when
// Resume is set. AtFrame other than NoPauseFrame defers the pause until
// that frame; frame 0 is a valid target, so build immediate pauses with
// NewPauseCommand.
type PauseCommand struct {
	Crosspoint     Crosspoint
	Resume         bool
	ClearDropCount bool
	AtFrame        int32
}

// NewPauseCommand pauses xpt at once.
func NewPauseCommand(xpt Crosspoint) PauseCommand {
	return PauseCommand{Crosspoint: xpt, AtFrame: NoPauseFrame}
}

// NewPauseAtCommand pauses xpt once it reaches frame.
func NewPauseAtCommand(xpt Crosspoint, frame int32) PauseCommand {
	return PauseCommand{Crosspoint: xpt, AtFrame: frame}
}

// NewResumeCommand resumes a paused xpt.
func NewResumeCommand(xpt Crosspoint, clearDropCount bool) PauseCommand {
	return PauseCommand{Crosspoint: xpt, Resume: true, ClearDropCount: clearDropCount, AtFrame: NoPauseFrame}
}

func (c PauseCommand) Code() CommandCode  { return CmdPause }
func (c PauseCommand) Target() Crosspoint { return c.Crosspoint }

func (c PauseCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdPause, Crosspoint: c.Crosspoint}
	e.BVal[0] = c.Resume
	e.BVal[1] = c.ClearDropCount
	e.LVal[5] = c.AtFrame
	return e
}

// FlushCommand discards queued frames.
type FlushCommand struct {
	Crosspoint     Crosspoint
	ClearDropCount bool
}

func (c FlushCommand) Code() CommandCode  { return CmdFlush }
func (c FlushCommand) Target() Crosspoint { return c.Crosspoint }

func (c FlushCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdFlush, Crosspoint: c.Crosspoint}
	e.BVal[0] = c.ClearDropCount
	return e
}

// PrerollCommand adjusts the number of frames queued ahead of playout.
type PrerollCommand struct {
	Crosspoint Crosspoint
	Frames     int32
}

func (c PrerollCommand) Code() CommandCode  { return CmdPreroll }
func (c PrerollCommand) Target() Crosspoint { return c.Crosspoint }

func (c PrerollCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdPreroll, Crosspoint: c.Crosspoint}
	e.LVal[0] = c.Frames
	return e
}

// GetStatusCommand queries a crosspoint.
type GetStatusCommand struct {
	Crosspoint Crosspoint
}

func (c GetStatusCommand) Code() CommandCode  { return CmdGetStatus }
func (c GetStatusCommand) Target() Crosspoint { return c.Crosspoint }

func (c GetStatusCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdGetStatus, Crosspoint: c.Crosspoint, Status: NewStatus(c.Crosspoint)}
	e.PVal[0] = 1
	return e
}

// GetFrameStampCommand queries the frame stamp of one frame of a crosspoint.
type GetFrameStampCommand struct {
	Crosspoint Crosspoint
	Frame      int32
}

func (c GetFrameStampCommand) Code() CommandCode  { return CmdGetFrameStamp }
func (c GetFrameStampCommand) Target() Crosspoint { return c.Crosspoint }

func (c GetFrameStampCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdGetFrameStamp, Crosspoint: c.Crosspoint, FrameStamp: NewFrameStamp()}
	e.LVal[0] = c.Frame
	e.PVal[0] = 1
	return e
}

// SetActiveFrameCommand overrides the live frame of a crosspoint.
type SetActiveFrameCommand struct {
	Crosspoint Crosspoint
	Frame      int32
}

func (c SetActiveFrameCommand) Code() CommandCode  { return CmdSetActiveFrame }
func (c SetActiveFrameCommand) Target() Crosspoint { return c.Crosspoint }

func (c SetActiveFrameCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdSetActiveFrame, Crosspoint: c.Crosspoint}
	e.LVal[0] = c.Frame
	return e
}

// TransferCommand moves one frame described by Transfer.
type TransferCommand struct {
	Transfer *Transfer
}

func (c TransferCommand) Code() CommandCode { return CmdTransferEx2 }

func (c TransferCommand) Target() Crosspoint {
	if c.Transfer == nil {
		return CrosspointInvalid
	}
	return c.Transfer.Crosspoint
}

func (c TransferCommand) Envelope() *Envelope {
	e := &Envelope{Command: CmdTransferEx2, Crosspoint: c.Target(), Transfer: c.Transfer}
	if c.Transfer != nil {
		e.PVal[0] = 1
	}
	return e
}

// CommandFromEnvelope interprets the generic slots of e.
func CommandFromEnvelope(e *Envelope) (Command, error) {
	switch e.Command {
	case CmdInit:
		return initFromEnvelope(e), nil
	case CmdStart:
		return StartCommand{Crosspoint: e.Crosspoint}, nil
	case CmdStartAtTime:
		t := int64(uint64(uint32(e.LVal[0]))<<32 | uint64(uint32(e.LVal[1])))
		return StartCommand{Crosspoint: e.Crosspoint, StartTime: t}, nil
	case CmdStop:
		return StopCommand{Crosspoint: e.Crosspoint}, nil
	case CmdAbort:
		return AbortCommand{Crosspoint: e.Crosspoint}, nil
	case CmdPause:
		atFrame := e.LVal[5]
		if e.BVal[0] || atFrame < 0 {
			atFrame = NoPauseFrame
		}
		return PauseCommand{
			Crosspoint:     e.Crosspoint,
			Resume:         e.BVal[0],
			ClearDropCount: e.BVal[1],
			AtFrame:        atFrame,
		}, nil
	case CmdFlush:
		return FlushCommand{Crosspoint: e.Crosspoint, ClearDropCount: e.BVal[0]}, nil
	case CmdPreroll:
		return PrerollCommand{Crosspoint: e.Crosspoint, Frames: e.LVal[0]}, nil
	case CmdGetStatus:
		return GetStatusCommand{Crosspoint: e.Crosspoint}, nil
	case CmdGetFrameStamp:
		return GetFrameStampCommand{Crosspoint: e.Crosspoint, Frame: e.LVal[0]}, nil
	case CmdSetActiveFrame:
		return SetActiveFrameCommand{Crosspoint: e.Crosspoint, Frame: e.LVal[0]}, nil
	case CmdTransferEx2:
		if e.Transfer == nil {
			return nil, Errorf(ResultBadParameter, "transfer command without transfer")
		}
		return TransferCommand{Transfer: e.Transfer}, nil
	}
	return nil, Errorf(ResultUnsupportedMessage, "unsupported autocirculate command %s", e.Command)
}
