// Package rpc carries NTV2 messages between a host process and a device over
// NATS request/reply. Requests and replies are the binary encodings produced
// by ntv2.Codec; failures travel as the header result status plus a
// human-readable message in the Ntv2-Error header.
package rpc

import (
	"context"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// NATS headers used on every exchange.
const (
	HeaderTraceID = "Trace-Id"
	HeaderResult  = "Ntv2-Result"
	HeaderError   = "Ntv2-Error"
)

// Device is what a Server exposes over NATS.
type Device interface {
	Info(ctx context.Context) (ntv2.DeviceInfo, error)
	ReadRegisters(ctx context.Context, req *ntv2.GetRegisters) error
	WriteRegisters(ctx context.Context, req *ntv2.SetRegisters) error
	AutoCirculate(ctx context.Context, env *ntv2.Envelope) error
}

// setResult records the outcome of a request on reply headers.
func setResult(h nats.Header, err error) {
	h.Set(HeaderResult, strconv.FormatUint(uint64(ntv2.CodeOf(err)), 10))
	if err != nil {
		h.Set(HeaderError, err.Error())
	}
}

// resultError rebuilds the error a server reported. code is the result the
// reply body carried, ResultSuccess when there was none.
func resultError(h nats.Header, code ntv2.ResultCode) error {
	if v := h.Get(HeaderResult); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			code = ntv2.ResultCode(n)
		}
	}
	if code == ntv2.ResultSuccess {
		return nil
	}
	msg := h.Get(HeaderError)
	if msg == "" {
		msg = "device reported " + code.String()
	}
	return ntv2.NewError(code, msg, nil)
}
