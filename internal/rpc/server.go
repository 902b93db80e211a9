package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/smazurov/ntv2node/internal/logging"
	"github.com/smazurov/ntv2node/internal/metrics"
	ntvnats "github.com/smazurov/ntv2node/internal/nats"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// Server answers device requests on the subjects of one device id.
type Server struct {
	conn     *nats.Conn
	deviceID string
	device   Device
	codec    *ntv2.Codec
	timeout  time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewServer returns a server exposing device as deviceID. Each request runs
// with the given timeout; zero means 5 seconds.
func NewServer(conn *nats.Conn, deviceID string, device Device, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{
		conn:     conn,
		deviceID: deviceID,
		device:   device,
		codec:    ntv2.DefaultCodec,
		timeout:  timeout,
		logger:   logging.GetLogger("rpc"),
	}
}

// Start subscribes to the device subjects.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	handlers := map[string]nats.MsgHandler{
		ntvnats.SubjectDeviceMessage(s.deviceID):       s.handleMessage,
		ntvnats.SubjectDeviceAutoCirculate(s.deviceID): s.handleAutoCirculate,
		ntvnats.SubjectDeviceInfo(s.deviceID):          s.handleInfo,
	}
	for subject, handler := range handlers {
		sub, err := s.conn.Subscribe(subject, handler)
		if err != nil {
			s.cleanup()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	if err := s.conn.Flush(); err != nil {
		s.cleanup()
		return fmt.Errorf("flush subscriptions: %w", err)
	}
	s.logger.Info("RPC server started", "device", s.deviceID)
	return nil
}

// Stop removes the subscriptions. The connection stays open.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanup()
	s.logger.Info("RPC server stopped", "device", s.deviceID)
}

func (s *Server) cleanup() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = nil
}

func (s *Server) handleInfo(msg *nats.Msg) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	info, err := s.device.Info(ctx)
	var body []byte
	if err == nil {
		body, err = json.Marshal(info)
	}
	s.respond(msg, "info", body, err, start)
}

func (s *Server) handleMessage(msg *nats.Msg) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	h, err := ntv2.PeekHeader(msg.Data)
	if err != nil {
		s.respond(msg, "message", nil, err, start)
		return
	}
	op := "message:" + h.Type.String()

	var m ntv2.Message
	switch h.Type {
	case ntv2.TypeGetRegisters:
		req := &ntv2.GetRegisters{}
		if _, err = s.codec.DecodeRequest(msg.Data, req); err == nil {
			err = s.device.ReadRegisters(ctx, req)
			metrics.AddRegisterReads(s.deviceID, int(req.InNumRegisters), readFailures(req, err))
		}
		m = req
	case ntv2.TypeSetRegisters:
		req := &ntv2.SetRegisters{}
		if _, err = s.codec.DecodeRequest(msg.Data, req); err == nil {
			err = s.device.WriteRegisters(ctx, req)
			metrics.AddRegisterWrites(s.deviceID, int(req.InNumRegisters), writeFailures(req, err))
		}
		m = req
	case ntv2.TypeStatus:
		st := &ntv2.Status{}
		if _, err = s.codec.DecodeRequest(msg.Data, st); err == nil {
			env := ntv2.GetStatusCommand{Crosspoint: st.Crosspoint}.Envelope()
			err = s.device.AutoCirculate(ctx, env)
			st = env.Status
		}
		m = st
	case ntv2.TypeTransfer:
		xfer := &ntv2.Transfer{}
		if _, err = s.codec.DecodeRequest(msg.Data, xfer); err == nil {
			err = s.device.AutoCirculate(ctx, ntv2.TransferCommand{Transfer: xfer}.Envelope())
			trimTransfer(xfer)
		}
		m = xfer
	default:
		s.respond(msg, "message:unsupported", nil,
			ntv2.Errorf(ntv2.ResultUnsupportedMessage, "unsupported message type %q", h.Type), start)
		return
	}
	if err != nil && ntv2.CodeOf(err) == ntv2.ResultDecodeFailed {
		s.respond(msg, op, nil, err, start)
		return
	}
	s.respond(msg, op, s.codec.EncodeResponse(m, 0, ntv2.CodeOf(err)), err, start)
}

func (s *Server) handleAutoCirculate(msg *nats.Msg) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	env, err := s.codec.DecodeEnvelope(msg.Data)
	if err != nil {
		s.respond(msg, "autocirculate", nil, err, start)
		return
	}
	op := "autocirculate:" + env.Command.String()
	err = s.device.AutoCirculate(ctx, env)
	code := ntv2.CodeOf(err)

	var body []byte
	switch env.Command {
	case ntv2.CmdGetFrameStamp:
		if env.FrameStamp == nil {
			env.FrameStamp = ntv2.NewFrameStamp()
		}
		body = s.codec.EncodeResponse(env.FrameStamp, uint32(env.Command), code)
	case ntv2.CmdTransferEx2:
		if env.Transfer == nil {
			env.Transfer = ntv2.NewTransfer()
		}
		trimTransfer(env.Transfer)
		body = s.codec.EncodeResponse(env.Transfer, uint32(env.Command), code)
	default:
		st := env.Status
		if st == nil {
			st = s.statusAfter(ctx, env.Crosspoint)
		}
		body = s.codec.EncodeResponse(st, uint32(env.Command), code)
	}
	s.respond(msg, op, body, err, start)
}

// statusAfter reports the state a command left its crosspoint in.
func (s *Server) statusAfter(ctx context.Context, xpt ntv2.Crosspoint) *ntv2.Status {
	env := ntv2.GetStatusCommand{Crosspoint: xpt}.Envelope()
	if err := s.device.AutoCirculate(ctx, env); err != nil {
		return ntv2.NewStatus(xpt)
	}
	return env.Status
}

// readFailures counts the registers a read batch did not return. A failed
// request is reported by the RPC metrics alone; its counts are whatever
// the caller sent.
func readFailures(req *ntv2.GetRegisters, err error) int {
	if err != nil {
		return 0
	}
	return max(int(req.InNumRegisters)-int(req.OutNumRegisters), 0)
}

// writeFailures counts the rejected entries of a write batch.
func writeFailures(req *ntv2.SetRegisters, err error) int {
	if err != nil {
		return 0
	}
	return min(int(req.OutNumFailures), int(req.InNumRegisters))
}

// trimTransfer drops the payloads a playout reply does not need to return.
func trimTransfer(xfer *ntv2.Transfer) {
	if xfer.Crosspoint.IsInput() {
		return
	}
	xfer.Video.Set(nil, 0)
	xfer.Audio.Set(nil, 0)
	xfer.Anc.Set(nil, 0)
	xfer.AncField2.Set(nil, 0)
}

func (s *Server) respond(msg *nats.Msg, op string, body []byte, err error, start time.Time) {
	traceID := msg.Header.Get(HeaderTraceID)
	if traceID == "" {
		traceID = uuid.NewString()
	}
	reply := nats.NewMsg(msg.Reply)
	reply.Header.Set(HeaderTraceID, traceID)
	setResult(reply.Header, err)
	reply.Data = body

	code := ntv2.CodeOf(err)
	metrics.RecordRPCRequest(op, code.String(), time.Since(start))
	if err != nil {
		s.logger.Warn("RPC request failed", "op", op, "trace_id", traceID, "result", code, "error", err)
	} else {
		s.logger.Debug("RPC request served", "op", op, "trace_id", traceID, "bytes", len(body))
	}

	if msg.Reply == "" {
		return
	}
	if err := msg.RespondMsg(reply); err != nil {
		s.logger.Warn("Failed to send RPC reply", "op", op, "trace_id", traceID, "error", err)
	}
}
