package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/smazurov/ntv2node/internal/logging"
	ntvnats "github.com/smazurov/ntv2node/internal/nats"
	"github.com/smazurov/ntv2node/pkg/ntv2"
	"github.com/smazurov/ntv2node/pkg/ntv2/buffer"
)

// Client drives a remote device through its Server. It satisfies the
// autocirculate.Driver interface.
type Client struct {
	conn     *nats.Conn
	deviceID string
	codec    *ntv2.Codec
	timeout  time.Duration
	logger   *slog.Logger
}

// NewClient returns a client for the device published as deviceID. Requests
// whose context has no deadline time out after timeout; zero means 5
// seconds.
func NewClient(conn *nats.Conn, deviceID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		conn:     conn,
		deviceID: deviceID,
		codec:    ntv2.DefaultCodec,
		timeout:  timeout,
		logger:   logging.GetLogger("rpc"),
	}
}

// DeviceID returns the remote device identifier.
func (c *Client) DeviceID() string { return c.deviceID }

func (c *Client) request(ctx context.Context, subject string, data []byte) (*nats.Msg, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg := nats.NewMsg(subject)
	traceID := uuid.NewString()
	msg.Header.Set(HeaderTraceID, traceID)
	msg.Data = data

	reply, err := c.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, ntv2.NewError(ntv2.ResultDeviceNotOpen, "no server for device "+c.deviceID, err)
		}
		return nil, fmt.Errorf("request %s (trace %s): %w", subject, traceID, err)
	}
	c.logger.Debug("RPC reply received", "subject", subject, "trace_id", traceID, "bytes", len(reply.Data))
	return reply, nil
}

// Info fetches the remote device description.
func (c *Client) Info(ctx context.Context) (ntv2.DeviceInfo, error) {
	reply, err := c.request(ctx, ntvnats.SubjectDeviceInfo(c.deviceID), nil)
	if err != nil {
		return ntv2.DeviceInfo{}, err
	}
	if err := resultError(reply.Header, ntv2.ResultSuccess); err != nil {
		return ntv2.DeviceInfo{}, err
	}
	var info ntv2.DeviceInfo
	if err := json.Unmarshal(reply.Data, &info); err != nil {
		return ntv2.DeviceInfo{}, ntv2.NewError(ntv2.ResultDecodeFailed, "decode device info", err)
	}
	return info, nil
}

// exchange sends m as a request on the message subject and decodes the reply
// into m.
func (c *Client) exchange(ctx context.Context, m ntv2.Message) error {
	reply, err := c.request(ctx, ntvnats.SubjectDeviceMessage(c.deviceID), c.codec.EncodeRequest(m))
	if err != nil {
		return err
	}
	return c.decodeReply(reply, m)
}

func (c *Client) decodeReply(reply *nats.Msg, m ntv2.Message) error {
	if len(reply.Data) == 0 {
		if err := resultError(reply.Header, ntv2.ResultSuccess); err != nil {
			return err
		}
		return ntv2.Errorf(ntv2.ResultDecodeFailed, "empty %s reply", m.MessageType())
	}
	h, err := c.codec.DecodeResponse(reply.Data, m)
	if err != nil {
		return err
	}
	return resultError(reply.Header, h.ResultStatus)
}

// ReadRegisters reads a register batch from the remote device.
func (c *Client) ReadRegisters(ctx context.Context, req *ntv2.GetRegisters) error {
	return c.exchange(ctx, req)
}

// WriteRegisters writes a register batch to the remote device.
func (c *Client) WriteRegisters(ctx context.Context, req *ntv2.SetRegisters) error {
	return c.exchange(ctx, req)
}

// Status queries one crosspoint with a bare Status message.
func (c *Client) Status(ctx context.Context, xpt ntv2.Crosspoint) (*ntv2.Status, error) {
	st := ntv2.NewStatus(xpt)
	if err := c.exchange(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// AutoCirculate executes env on the remote device. Query payloads and the
// transfer status are filled in place; captured frames are copied into the
// caller's buffers.
func (c *Client) AutoCirculate(ctx context.Context, env *ntv2.Envelope) error {
	reply, err := c.request(ctx, ntvnats.SubjectDeviceAutoCirculate(c.deviceID), c.codec.EncodeEnvelope(env))
	if err != nil {
		return err
	}

	switch env.Command {
	case ntv2.CmdGetFrameStamp:
		fs := ntv2.NewFrameStamp()
		err = c.decodeReply(reply, fs)
		env.FrameStamp = fs
		env.PVal[0] = 1
	case ntv2.CmdTransferEx2:
		got := &ntv2.Transfer{}
		err = c.decodeReply(reply, got)
		if env.Transfer != nil && len(reply.Data) > 0 {
			mergeTransfer(env.Transfer, got)
		}
	default:
		st := ntv2.NewStatus(env.Crosspoint)
		err = c.decodeReply(reply, st)
		if env.Command == ntv2.CmdGetStatus {
			env.Status = st
			env.PVal[0] = 1
		}
	}
	return err
}

// mergeTransfer copies the results of a remote transfer into the caller's
// descriptor without replacing its borrowed buffers.
func mergeTransfer(dst, src *ntv2.Transfer) {
	dst.Status = src.Status
	if src.Crosspoint.IsValid() {
		dst.Crosspoint = src.Crosspoint
	}
	copyInto(&dst.Video, src.Video.Bytes())
	copyInto(&dst.Audio, src.Audio.Bytes())
	copyInto(&dst.Anc, src.Anc.Bytes())
	copyInto(&dst.AncField2, src.AncField2.Bytes())
}

func copyInto(dst *buffer.Buffer, src []byte) {
	if len(src) == 0 || dst.IsNULL() {
		return
	}
	copy(dst.Bytes(), src)
}
