package ntv2

import (
	"errors"
	"fmt"
)

// ResultCode is the status carried in a message header across the device or
// RPC boundary.
type ResultCode uint32

const (
	ResultSuccess ResultCode = iota
	ResultBadParameter
	ResultBadCrosspoint
	ResultInvalidState
	ResultNotInitialized
	ResultFrameOutOfRange
	ResultFrameRangeOverlap
	ResultNoFrameAvailable
	ResultBufferTooSmall
	ResultDecodeFailed
	ResultUnsupportedMessage
	ResultDeviceNotOpen
	ResultIncompatibleDevice
	ResultInternal
)

var resultNames = map[ResultCode]string{
	ResultSuccess:            "SUCCESS",
	ResultBadParameter:       "BAD_PARAMETER",
	ResultBadCrosspoint:      "BAD_CROSSPOINT",
	ResultInvalidState:       "INVALID_STATE",
	ResultNotInitialized:     "NOT_INITIALIZED",
	ResultFrameOutOfRange:    "FRAME_OUT_OF_RANGE",
	ResultFrameRangeOverlap:  "FRAME_RANGE_OVERLAP",
	ResultNoFrameAvailable:   "NO_FRAME_AVAILABLE",
	ResultBufferTooSmall:     "BUFFER_TOO_SMALL",
	ResultDecodeFailed:       "DECODE_FAILED",
	ResultUnsupportedMessage: "UNSUPPORTED_MESSAGE",
	ResultDeviceNotOpen:      "DEVICE_NOT_OPEN",
	ResultIncompatibleDevice: "INCOMPATIBLE_DEVICE",
	ResultInternal:           "INTERNAL",
}

func (c ResultCode) String() string {
	if name, ok := resultNames[c]; ok {
		return name
	}
	return fmt.Sprintf("RESULT_%d", uint32(c))
}

// IsFatal reports whether the code ends the session rather than a single call.
func (c ResultCode) IsFatal() bool {
	return c == ResultDeviceNotOpen || c == ResultIncompatibleDevice
}

// Err converts a received result code into an error, nil on success.
func (c ResultCode) Err() error {
	if c == ResultSuccess {
		return nil
	}
	return &Error{Code: c, Message: "device reported failure"}
}

// Error is a failure with a cross-boundary result code.
type Error struct {
	Code    ResultCode
	Message string
	Cause   error
}

// NewError creates a new error.
func NewError(code ResultCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Errorf creates a new error with a formatted message.
func Errorf(code ResultCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HasCode checks if the error matches a specific code.
func (e *Error) HasCode(code ResultCode) bool {
	return e.Code == code
}

// Is matches any *Error with the same code, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrBadParameter       = &Error{Code: ResultBadParameter, Message: "bad parameter"}
	ErrBadCrosspoint      = &Error{Code: ResultBadCrosspoint, Message: "bad crosspoint"}
	ErrInvalidState       = &Error{Code: ResultInvalidState, Message: "invalid state"}
	ErrNotInitialized     = &Error{Code: ResultNotInitialized, Message: "channel not initialized"}
	ErrFrameOutOfRange    = &Error{Code: ResultFrameOutOfRange, Message: "frame out of range"}
	ErrFrameRangeOverlap  = &Error{Code: ResultFrameRangeOverlap, Message: "frame range overlaps another channel"}
	ErrNoFrameAvailable   = &Error{Code: ResultNoFrameAvailable, Message: "no frame available"}
	ErrBufferTooSmall     = &Error{Code: ResultBufferTooSmall, Message: "buffer too small"}
	ErrDecodeFailed       = &Error{Code: ResultDecodeFailed, Message: "decode failed"}
	ErrUnsupportedMessage = &Error{Code: ResultUnsupportedMessage, Message: "unsupported message"}
	ErrDeviceNotOpen      = &Error{Code: ResultDeviceNotOpen, Message: "device not open"}
	ErrIncompatibleDevice = &Error{Code: ResultIncompatibleDevice, Message: "incompatible device"}
)

// CodeOf returns the result code carried by err. Errors without a code map to
// ResultInternal.
func CodeOf(err error) ResultCode {
	if err == nil {
		return ResultSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ResultInternal
}

// IsFatal reports whether err ends the device session.
func IsFatal(err error) bool {
	return CodeOf(err).IsFatal()
}
