package ntv2

// Register numbers shared by the device and its clients.
const (
	RegGlobalControl uint32 = 0
	RegStatus        uint32 = 48
	RegBoardID       uint32 = 50
)

// ControlCaptureBit is set in a channel control register while the channel
// captures and clear while it plays out.
const ControlCaptureBit uint32 = 1 << 0

// ChannelRegs names the registers that drive one frame store.
type ChannelRegs struct {
	Control     uint32
	OutputFrame uint32
	InputFrame  uint32
}

var channelRegs = [MaxChannels]ChannelRegs{
	{Control: 1, OutputFrame: 3, InputFrame: 4},
	{Control: 5, OutputFrame: 7, InputFrame: 8},
	{Control: 257, OutputFrame: 258, InputFrame: 259},
	{Control: 260, OutputFrame: 261, InputFrame: 262},
	{Control: 384, OutputFrame: 385, InputFrame: 386},
	{Control: 388, OutputFrame: 389, InputFrame: 390},
	{Control: 392, OutputFrame: 393, InputFrame: 394},
	{Control: 396, OutputFrame: 397, InputFrame: 398},
}

// ChannelRegisters returns the register block of a channel.
func ChannelRegisters(ch Channel) (ChannelRegs, bool) {
	if !ch.IsValid() {
		return ChannelRegs{}, false
	}
	return channelRegs[ch], true
}

// FrameRegister returns the register holding the active frame of xpt.
func (r ChannelRegs) FrameRegister(xpt Crosspoint) uint32 {
	if xpt.IsInput() {
		return r.InputFrame
	}
	return r.OutputFrame
}

// DeviceInfo describes an opened device.
type DeviceInfo struct {
	ID              string  `json:"id" example:"emu0" doc:"Device identifier"`
	Model           string  `json:"model" example:"ntv2-emulator" doc:"Device model"`
	BoardID         uint32  `json:"board_id" example:"268435456" doc:"Board identifier register value"`
	NumFrameBuffers uint32  `json:"num_frame_buffers" example:"16" doc:"Frame buffer slots in device memory"`
	FrameBytes      uint32  `json:"frame_bytes" example:"4147200" doc:"Size of one frame buffer slot"`
	NumRegisters    uint32  `json:"num_registers" example:"1024" doc:"Size of the register file"`
	FrameRate       float64 `json:"frame_rate" example:"29.97" doc:"Frame clock rate in Hz"`
	NumChannels     int     `json:"num_channels" example:"8" doc:"Frame stores"`
}
