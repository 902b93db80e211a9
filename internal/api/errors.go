package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// channelErrors are the statuses a channel or register operation can return.
var channelErrors = []int{400, 401, 404, 409, 503, 500}

// mapDeviceError converts a device result into an HTTP error.
func mapDeviceError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error503ServiceUnavailable("Device did not answer in time", err)
	}

	var devErr *ntv2.Error
	if !errors.As(err, &devErr) {
		return huma.Error500InternalServerError("Device operation failed", err)
	}

	switch devErr.Code {
	case ntv2.ResultBadParameter, ntv2.ResultBadCrosspoint,
		ntv2.ResultFrameOutOfRange, ntv2.ResultBufferTooSmall:
		return huma.Error400BadRequest(devErr.Message, err)
	case ntv2.ResultNotInitialized, ntv2.ResultNoFrameAvailable:
		return huma.Error404NotFound(devErr.Message, err)
	case ntv2.ResultInvalidState, ntv2.ResultFrameRangeOverlap:
		return huma.Error409Conflict(devErr.Message, err)
	case ntv2.ResultDeviceNotOpen, ntv2.ResultIncompatibleDevice:
		return huma.Error503ServiceUnavailable(devErr.Message, err)
	default:
		return huma.Error500InternalServerError(devErr.Message, err)
	}
}
