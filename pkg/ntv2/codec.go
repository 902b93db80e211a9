package ntv2

import (
	"encoding/binary"

	"github.com/smazurov/ntv2node/pkg/ntv2/buffer"
	"github.com/smazurov/ntv2node/pkg/ntv2/wire"
)

// maxUnfilledBytes bounds the size of an output buffer a peer may ask us to
// allocate without sending its contents.
const maxUnfilledBytes = 64 << 20

// Message is a structure that travels with a Header and Trailer.
type Message interface {
	MessageType() MessageType
	encodePayload(e *encoder)
	decodePayload(d *decoder)
}

func (*Status) MessageType() MessageType         { return TypeStatus }
func (*FrameStamp) MessageType() MessageType     { return TypeFrameStamp }
func (*TransferStatus) MessageType() MessageType { return TypeTransferStatus }
func (*Transfer) MessageType() MessageType       { return TypeTransfer }
func (*GetRegisters) MessageType() MessageType   { return TypeGetRegisters }
func (*SetRegisters) MessageType() MessageType   { return TypeSetRegisters }

// leg selects which side of a request/response exchange is encoding: the
// client fills input buffers, the server fills output buffers.
type leg uint8

const (
	clientLeg leg = iota
	serverLeg
)

// Codec encodes messages in the canonical wire order. Multi-word buffer
// payloads held in memory in the host byte order are normalized to
// big-endian on the wire and restored on decode.
type Codec struct {
	host binary.ByteOrder
}

// NewCodec returns a codec for a host with the given memory byte order.
// A nil order means the running machine's order.
func NewCodec(host binary.ByteOrder) *Codec {
	if host == nil {
		host = binary.NativeEndian
	}
	return &Codec{host: host}
}

// DefaultCodec uses the running machine's byte order.
var DefaultCodec = NewCodec(nil)

func (c *Codec) hostIsLittleEndian() bool {
	return c.host.Uint16([]byte{1, 0}) == 1
}

// EncodeRequest encodes m as the client leg of an exchange.
func (c *Codec) EncodeRequest(m Message) []byte {
	e := c.newEncoder(clientLeg)
	e.message(m, 0, ResultSuccess)
	return e.Bytes()
}

// EncodeResponse encodes m as the server leg, carrying result in the header.
func (c *Codec) EncodeResponse(m Message, operation uint32, result ResultCode) []byte {
	e := c.newEncoder(serverLeg)
	e.message(m, operation, result)
	return e.Bytes()
}

// DecodeRequest decodes a client-leg message into m.
func (c *Codec) DecodeRequest(blob []byte, m Message) (Header, error) {
	return c.decode(blob, m, clientLeg)
}

// DecodeResponse decodes a server-leg message into m. A successful decode
// of a response carrying a failure status returns the header and no error;
// callers check Header.ResultStatus.
func (c *Codec) DecodeResponse(blob []byte, m Message) (Header, error) {
	return c.decode(blob, m, serverLeg)
}

func (c *Codec) decode(blob []byte, m Message, l leg) (Header, error) {
	d := c.newDecoder(blob, l)
	h := d.message(m)
	if err := d.Err(); err != nil {
		code := CodeOf(err)
		if code == ResultInternal {
			code = ResultDecodeFailed
		}
		return h, NewError(code, "decode "+m.MessageType().String(), err)
	}
	return h, nil
}

// PeekHeader decodes only the header of an encoded message.
func PeekHeader(blob []byte) (Header, error) {
	d := wire.NewDecoder(wire.Order, blob)
	h := decodeHeader(d)
	if err := d.Err(); err != nil {
		return h, NewError(ResultDecodeFailed, "peek header", err)
	}
	if h.Tag != HeaderTag {
		return h, Errorf(ResultDecodeFailed, "bad header tag %#08x", h.Tag)
	}
	return h, nil
}

// EncodeEnvelope encodes an AutoCirculate command envelope and its payload.
func (c *Codec) EncodeEnvelope(env *Envelope) []byte {
	e := c.newEncoder(clientLeg)
	e.U16(uint16(env.Command))
	e.U16(uint16(env.Crosspoint))
	for _, v := range env.LVal {
		e.U32(uint32(v))
	}
	for _, v := range env.BVal {
		e.Bool(v)
	}
	pvals := env.PVal
	switch env.Command {
	case CmdGetStatus, CmdGetFrameStamp, CmdTransferEx2:
		pvals[0] = 0
		if env.payload() != nil {
			pvals[0] = 1
		}
	}
	for _, v := range pvals {
		e.U64(v)
	}
	if pvals[0] != 0 {
		if m := env.payload(); m != nil {
			e.message(m, 0, ResultSuccess)
		}
	}
	return e.Bytes()
}

// DecodeEnvelope decodes an envelope encoded by EncodeEnvelope.
func (c *Codec) DecodeEnvelope(blob []byte) (*Envelope, error) {
	d := c.newDecoder(blob, clientLeg)
	env := &Envelope{}
	env.Command = CommandCode(d.U16())
	env.Crosspoint = Crosspoint(d.U16())
	for i := range env.LVal {
		env.LVal[i] = int32(d.U32())
	}
	for i := range env.BVal {
		env.BVal[i] = d.Bool()
	}
	for i := range env.PVal {
		env.PVal[i] = d.U64()
	}
	if env.PVal[0] != 0 {
		switch env.Command {
		case CmdGetStatus:
			env.Status = &Status{}
			d.message(env.Status)
		case CmdGetFrameStamp:
			env.FrameStamp = &FrameStamp{}
			d.message(env.FrameStamp)
		case CmdTransferEx2:
			env.Transfer = &Transfer{}
			d.message(env.Transfer)
		}
	}
	if err := d.Err(); err != nil {
		return nil, NewError(ResultDecodeFailed, "decode envelope", err)
	}
	return env, nil
}

func (env *Envelope) payload() Message {
	switch env.Command {
	case CmdGetStatus:
		if env.Status != nil {
			return env.Status
		}
	case CmdGetFrameStamp:
		if env.FrameStamp != nil {
			return env.FrameStamp
		}
	case CmdTransferEx2:
		if env.Transfer != nil {
			return env.Transfer
		}
	}
	return nil
}

type encoder struct {
	*wire.Encoder
	swap bool
	leg  leg
}

func (c *Codec) newEncoder(l leg) *encoder {
	return &encoder{Encoder: wire.NewEncoder(wire.Order, 256), swap: c.hostIsLittleEndian(), leg: l}
}

// message writes header, payload and trailer, then back-fills SizeInBytes.
func (e *encoder) message(m Message, operation uint32, result ResultCode) {
	start := e.Len()
	h := NewHeader(m.MessageType())
	h.Operation = operation
	h.ResultStatus = result
	encodeHeader(e.Encoder, h)
	m.encodePayload(e)
	t := NewTrailer()
	e.U32(t.Version)
	e.U32(t.Tag)
	e.PatchU32(start+sizeOffset, uint32(e.Len()-start))
}

// buffer writes (byteCount, flags) and, when fill is set, the contents with
// words of wordSize bytes normalized to big-endian. The source is never
// modified.
func (e *encoder) buffer(b *buffer.Buffer, fill bool, wordSize int) {
	e.U32(uint32(b.ByteCount()))
	e.U32(b.Flags())
	if !fill || b.IsNULL() {
		return
	}
	if !e.swap || wordSize <= 1 {
		e.Raw(b.Bytes())
		return
	}
	tmp := b.Clone()
	switch wordSize {
	case 2:
		tmp.ByteSwap16()
	case 4:
		tmp.ByteSwap32()
	case 8:
		tmp.ByteSwap64()
	}
	e.Raw(tmp.Bytes())
}

func (e *encoder) rp188(r RP188) {
	e.U32(r.DBB)
	e.U32(r.Low)
	e.U32(r.High)
}

type decoder struct {
	*wire.Decoder
	swap bool
	leg  leg
}

func (c *Codec) newDecoder(blob []byte, l leg) *decoder {
	return &decoder{Decoder: wire.NewDecoder(wire.Order, blob), swap: c.hostIsLittleEndian(), leg: l}
}

// message reads and validates the framing around m's payload. SizeInBytes is
// ignored.
func (d *decoder) message(m Message) Header {
	h := decodeHeader(d.Decoder)
	if d.Err() != nil {
		return h
	}
	if err := h.Validate(m.MessageType()); err != nil {
		d.Fail(err)
		return h
	}
	m.decodePayload(d)
	t := Trailer{Version: d.U32(), Tag: d.U32()}
	if d.Err() == nil {
		if err := t.Validate(); err != nil {
			d.Fail(err)
		}
	}
	return h
}

// buffer reads a buffer field. Filled contents replace b; an unfilled field
// only sizes b, keeping its contents when the size already matches.
func (d *decoder) buffer(b *buffer.Buffer, fill bool, wordSize int) {
	n := int(d.U32())
	flags := d.U32()
	if d.Err() != nil {
		return
	}
	pageAligned := flags&buffer.FlagPageAligned != 0
	if !fill {
		if n > maxUnfilledBytes {
			d.Fail(Errorf(ResultBufferTooSmall, "buffer of %d bytes exceeds limit", n))
			return
		}
		if b.ByteCount() != n {
			b.Allocate(n, pageAligned)
		}
		return
	}
	if n > d.Remaining() {
		d.Fail(Errorf(ResultDecodeFailed, "buffer of %d bytes with %d remaining", n, d.Remaining()))
		return
	}
	raw := d.Raw(n)
	if n == 0 {
		b.Set(nil, 0)
		return
	}
	b.Allocate(n, pageAligned)
	copy(b.Bytes(), raw)
	if d.swap {
		switch wordSize {
		case 2:
			b.ByteSwap16()
		case 4:
			b.ByteSwap32()
		case 8:
			b.ByteSwap64()
		}
	}
}

func (d *decoder) rp188() RP188 {
	return RP188{DBB: d.U32(), Low: d.U32(), High: d.U32()}
}

func encodeHeader(e *wire.Encoder, h Header) {
	e.U32(h.Tag)
	e.U32(uint32(h.Type))
	e.U32(h.HeaderVersion)
	e.U32(h.Version)
	e.U32(h.SizeInBytes)
	e.U32(h.PointerSize)
	e.U32(h.Operation)
	e.U32(uint32(h.ResultStatus))
}

func decodeHeader(d *wire.Decoder) Header {
	return Header{
		Tag:           d.U32(),
		Type:          MessageType(d.U32()),
		HeaderVersion: d.U32(),
		Version:       d.U32(),
		SizeInBytes:   d.U32(),
		PointerSize:   d.U32(),
		Operation:     d.U32(),
		ResultStatus:  ResultCode(d.U32()),
	}
}

func (s *Status) encodePayload(e *encoder) {
	e.U16(uint16(s.Crosspoint))
	e.U16(uint16(s.State))
	e.U32(uint32(s.StartFrame))
	e.U32(uint32(s.EndFrame))
	e.U32(uint32(s.ActiveFrame))
	e.U64(s.RDTSCStartTime)
	e.U64(s.AudioClockStartTime)
	e.U64(s.RDTSCCurrentTime)
	e.U64(s.AudioClockCurrentTime)
	e.U32(s.FramesProcessed)
	e.U32(s.FramesDropped)
	e.U32(s.BufferLevel)
	e.U32(uint32(s.OptionFlags))
	e.U16(uint16(s.AudioSystem))
}

func (s *Status) decodePayload(d *decoder) {
	s.Crosspoint = Crosspoint(d.U16())
	s.State = State(d.U16())
	s.StartFrame = int32(d.U32())
	s.EndFrame = int32(d.U32())
	s.ActiveFrame = int32(d.U32())
	s.RDTSCStartTime = d.U64()
	s.AudioClockStartTime = d.U64()
	s.RDTSCCurrentTime = d.U64()
	s.AudioClockCurrentTime = d.U64()
	s.FramesProcessed = d.U32()
	s.FramesDropped = d.U32()
	s.BufferLevel = d.U32()
	s.OptionFlags = OptionFlags(d.U32())
	s.AudioSystem = AudioSystem(d.U16())
}

func (fs *FrameStamp) encodePayload(e *encoder) {
	e.U64(uint64(fs.FrameTime))
	e.U32(fs.RequestedFrame)
	e.U64(fs.AudioClockTimeStamp)
	e.U32(fs.AudioExpectedAddress)
	e.U32(fs.AudioInStartAddress)
	e.U32(fs.AudioInStopAddress)
	e.U32(fs.AudioOutStopAddress)
	e.U32(fs.AudioOutStartAddress)
	e.U32(fs.TotalBytesTransferred)
	e.U32(fs.StartSample)
	e.buffer(&fs.TimeCodes, true, 4)
	e.U64(uint64(fs.CurrentTime))
	e.U32(fs.CurrentFrame)
	e.U64(uint64(fs.CurrentFrameTime))
	e.U64(fs.AudioClockCurrentTime)
	e.U32(fs.CurrentAudioExpectedAddress)
	e.U32(fs.CurrentAudioStartAddress)
	e.U32(fs.CurrentFieldCount)
	e.U32(fs.CurrentLineCount)
	e.U32(fs.CurrentReps)
	e.U64(fs.CurrentUserCookie)
	e.U32(fs.Frame)
	e.rp188(fs.CurrentRP188)
}

func (fs *FrameStamp) decodePayload(d *decoder) {
	fs.FrameTime = int64(d.U64())
	fs.RequestedFrame = d.U32()
	fs.AudioClockTimeStamp = d.U64()
	fs.AudioExpectedAddress = d.U32()
	fs.AudioInStartAddress = d.U32()
	fs.AudioInStopAddress = d.U32()
	fs.AudioOutStopAddress = d.U32()
	fs.AudioOutStartAddress = d.U32()
	fs.TotalBytesTransferred = d.U32()
	fs.StartSample = d.U32()
	d.buffer(&fs.TimeCodes, true, 4)
	fs.CurrentTime = int64(d.U64())
	fs.CurrentFrame = d.U32()
	fs.CurrentFrameTime = int64(d.U64())
	fs.AudioClockCurrentTime = d.U64()
	fs.CurrentAudioExpectedAddress = d.U32()
	fs.CurrentAudioStartAddress = d.U32()
	fs.CurrentFieldCount = d.U32()
	fs.CurrentLineCount = d.U32()
	fs.CurrentReps = d.U32()
	fs.CurrentUserCookie = d.U64()
	fs.Frame = d.U32()
	fs.CurrentRP188 = d.rp188()
}

func (ts *TransferStatus) encodePayload(e *encoder) {
	e.U16(uint16(ts.State))
	e.U32(ts.TransferFrame)
	e.U32(ts.BufferLevel)
	e.U32(ts.FramesProcessed)
	e.U32(ts.FramesDropped)
	e.message(&ts.FrameStamp, 0, ResultSuccess)
	e.U32(ts.AudioTransferSize)
	e.U32(ts.AudioStartSample)
	e.U32(ts.AncTransferSize)
	e.U32(ts.AncField2TransferSize)
}

func (ts *TransferStatus) decodePayload(d *decoder) {
	ts.State = State(d.U16())
	ts.TransferFrame = d.U32()
	ts.BufferLevel = d.U32()
	ts.FramesProcessed = d.U32()
	ts.FramesDropped = d.U32()
	d.message(&ts.FrameStamp)
	ts.AudioTransferSize = d.U32()
	ts.AudioStartSample = d.U32()
	ts.AncTransferSize = d.U32()
	ts.AncField2TransferSize = d.U32()
}

func (t *Transfer) encodePayload(e *encoder) {
	e.buffer(&t.Video, true, 1)
	e.buffer(&t.Audio, true, 1)
	e.buffer(&t.Anc, true, 1)
	e.buffer(&t.AncField2, true, 1)
	e.buffer(&t.OutputTimeCodes, true, 4)
	e.message(&t.Status, 0, ResultSuccess)
	e.U64(t.UserCookie)
	e.U32(t.VideoDMAOffset)
	e.U32(t.SegmentedDMA.NumSegments)
	e.U32(t.SegmentedDMA.ActiveBytesPerRow)
	e.U32(t.SegmentedDMA.HostPitch)
	e.U32(t.SegmentedDMA.DevicePitch)
	e.U16(uint16(t.ColorCorrection.Mode))
	e.U32(t.ColorCorrection.Saturation)
	e.buffer(&t.ColorCorrection.Buffers, true, 1)
	e.U16(uint16(t.FrameBufferFormat))
	e.U16(uint16(t.Orientation))
	e.U16(uint16(t.VidProc.Mode))
	e.U16(uint16(t.VidProc.ForegroundVideo))
	e.U16(uint16(t.VidProc.BackgroundVideo))
	e.U16(uint16(t.VidProc.ForegroundKey))
	e.U16(uint16(t.VidProc.BackgroundKey))
	e.U32(t.VidProc.TransitionCoefficient)
	e.U32(t.VidProc.TransitionSoftness)
	e.U16(uint16(t.QuarterSizeExpand))
	e.buffer(&t.HDMIAux, true, 1)
	e.U32(t.PeerToPeerFlags)
	e.U32(t.FrameRepeatCount)
	e.U32(uint32(t.DesiredFrame))
	e.rp188(t.RP188)
	e.U16(uint16(t.Crosspoint))
}

func (t *Transfer) decodePayload(d *decoder) {
	d.buffer(&t.Video, true, 1)
	d.buffer(&t.Audio, true, 1)
	d.buffer(&t.Anc, true, 1)
	d.buffer(&t.AncField2, true, 1)
	d.buffer(&t.OutputTimeCodes, true, 4)
	d.message(&t.Status)
	t.UserCookie = d.U64()
	t.VideoDMAOffset = d.U32()
	t.SegmentedDMA.NumSegments = d.U32()
	t.SegmentedDMA.ActiveBytesPerRow = d.U32()
	t.SegmentedDMA.HostPitch = d.U32()
	t.SegmentedDMA.DevicePitch = d.U32()
	t.ColorCorrection.Mode = ColorCorrectionMode(d.U16())
	t.ColorCorrection.Saturation = d.U32()
	d.buffer(&t.ColorCorrection.Buffers, true, 1)
	t.FrameBufferFormat = FrameBufferFormat(d.U16())
	t.Orientation = Orientation(d.U16())
	t.VidProc.Mode = VidProcMode(d.U16())
	t.VidProc.ForegroundVideo = Crosspoint(d.U16())
	t.VidProc.BackgroundVideo = Crosspoint(d.U16())
	t.VidProc.ForegroundKey = Crosspoint(d.U16())
	t.VidProc.BackgroundKey = Crosspoint(d.U16())
	t.VidProc.TransitionCoefficient = d.U32()
	t.VidProc.TransitionSoftness = d.U32()
	t.QuarterSizeExpand = QuarterSizeExpand(d.U16())
	d.buffer(&t.HDMIAux, true, 1)
	t.PeerToPeerFlags = d.U32()
	t.FrameRepeatCount = d.U32()
	t.DesiredFrame = int32(d.U32())
	t.RP188 = d.rp188()
	t.Crosspoint = Crosspoint(d.U16())
}

func (g *GetRegisters) encodePayload(e *encoder) {
	client := e.leg == clientLeg
	e.U32(g.InNumRegisters)
	e.buffer(&g.InRegisters, client, 4)
	e.U32(g.OutNumRegisters)
	e.buffer(&g.OutGoodRegs, !client, 4)
	e.buffer(&g.OutValues, !client, 4)
}

func (g *GetRegisters) decodePayload(d *decoder) {
	client := d.leg == clientLeg
	g.InNumRegisters = d.U32()
	d.buffer(&g.InRegisters, client, 4)
	g.OutNumRegisters = d.U32()
	d.buffer(&g.OutGoodRegs, !client, 4)
	d.buffer(&g.OutValues, !client, 4)
}

func (s *SetRegisters) encodePayload(e *encoder) {
	e.U32(s.InNumRegisters)
	e.buffer(&s.InRegInfos, true, 4)
	e.U32(s.OutNumFailures)
	e.buffer(&s.OutBadRegIndexes, true, 2)
}

func (s *SetRegisters) decodePayload(d *decoder) {
	s.InNumRegisters = d.U32()
	d.buffer(&s.InRegInfos, true, 4)
	s.OutNumFailures = d.U32()
	d.buffer(&s.OutBadRegIndexes, true, 2)
}
