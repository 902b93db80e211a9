package ntv2

import "fmt"

// FourCC packs four ASCII characters into a big-endian tag.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// MessageType identifies the structure that follows a Header.
type MessageType uint32

var (
	TypeStatus         = MessageType(FourCC('s', 't', 'a', 't'))
	TypeTransfer       = MessageType(FourCC('x', 'f', 'e', 'r'))
	TypeTransferStatus = MessageType(FourCC('x', 'f', 's', 't'))
	TypeFrameStamp     = MessageType(FourCC('s', 't', 'm', 'p'))
	TypeGetRegisters   = MessageType(FourCC('r', 'e', 'g', 'R'))
	TypeSetRegisters   = MessageType(FourCC('r', 'e', 'g', 'W'))
)

func (t MessageType) String() string {
	return string([]byte{byte(t >> 24), byte(t >> 16), byte(t >> 8), byte(t)})
}

// Framing constants.
var (
	HeaderTag  = FourCC('N', 'T', 'V', '2')
	TrailerTag = FourCC('n', 't', 'v', '2')
)

const (
	HeaderVersion        uint32 = 2
	CurrentStructVersion uint32 = 0
	PointerSize          uint32 = 8

	// HeaderSize and TrailerSize are the encoded sizes of the framing.
	HeaderSize  = 32
	TrailerSize = 8

	// sizeOffset locates SizeInBytes within an encoded header.
	sizeOffset = 16
)

// SDKVersion is the encoded version written into every trailer.
var SDKVersion = EncodeSDKVersion(17, 1, 0, 0)

// EncodeSDKVersion packs a version into a trailer version word.
func EncodeSDKVersion(major, minor, point, build uint8) uint32 {
	return uint32(major)<<24 | uint32(minor)<<16 | uint32(point)<<8 | uint32(build)
}

// Header precedes every encoded structure.
type Header struct {
	Tag           uint32
	Type          MessageType
	HeaderVersion uint32
	Version       uint32
	SizeInBytes   uint32
	PointerSize   uint32
	Operation     uint32
	ResultStatus  ResultCode
}

// NewHeader returns a header for the given message type.
func NewHeader(t MessageType) Header {
	return Header{
		Tag:           HeaderTag,
		Type:          t,
		HeaderVersion: HeaderVersion,
		Version:       CurrentStructVersion,
		PointerSize:   PointerSize,
	}
}

// Validate checks the framing fields of a decoded header against the
// expected message type.
func (h Header) Validate(want MessageType) error {
	if h.Tag != HeaderTag {
		return Errorf(ResultDecodeFailed, "bad header tag %#08x", h.Tag)
	}
	if h.HeaderVersion == 0 || h.HeaderVersion > HeaderVersion {
		return Errorf(ResultDecodeFailed, "unsupported header version %d", h.HeaderVersion)
	}
	if h.Type != want {
		return Errorf(ResultUnsupportedMessage, "message type %q, want %q", h.Type, want)
	}
	return nil
}

func (h Header) String() string {
	return fmt.Sprintf("%s v%d size=%d result=%s", h.Type, h.Version, h.SizeInBytes, h.ResultStatus)
}

// Trailer follows every encoded structure.
type Trailer struct {
	Version uint32
	Tag     uint32
}

// NewTrailer returns the trailer written by this SDK.
func NewTrailer() Trailer {
	return Trailer{Version: SDKVersion, Tag: TrailerTag}
}

func (t Trailer) Validate() error {
	if t.Tag != TrailerTag {
		return Errorf(ResultDecodeFailed, "bad trailer tag %#08x", t.Tag)
	}
	return nil
}
