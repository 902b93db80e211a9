package api

import (
	"context"
	"maps"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/smazurov/ntv2node/internal/events"
	"github.com/smazurov/ntv2node/internal/metrics/exporters"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

// registerSSERoutes registers the native Huma SSE endpoint.
func (s *Server) registerSSERoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of channel state changes, transfers, drops, register writes and channel metrics",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func() map[string]any {
		eventTypes := map[string]any{
			"channel-state":     events.ChannelStateChangedEvent{},
			"transfer":          events.TransferCompletedEvent{},
			"frames-dropped":    events.FramesDroppedEvent{},
			"registers-written": events.RegistersWrittenEvent{},
		}
		maps.Copy(eventTypes, exporters.GetEventTypesForEndpoint("events"))
		return eventTypes
	}(), func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Transfers arrive once per frame per channel.
		eventCh := make(chan any, 64)

		unsubscribers := []func(){
			events.SubscribeToChannel[events.ChannelStateChangedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.TransferCompletedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.FramesDroppedEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.RegistersWrittenEvent](s.eventBus, eventCh),
			events.SubscribeToChannel[events.ChannelMetricsEvent](s.eventBus, eventCh),
		}
		defer func() {
			for _, unsub := range unsubscribers {
				unsub()
			}
		}()

		// Seed the client with the state of every known channel.
		if err := s.sendChannelSnapshot(ctx, send); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}

// sendChannelSnapshot sends one channel-state event per frame store. Channels
// the device cannot report on are skipped.
func (s *Server) sendChannelSnapshot(ctx context.Context, send sse.Sender) error {
	if s.channels == nil {
		return nil
	}
	info, err := s.channels.DeviceInfo(ctx)
	if err != nil {
		s.logger.Debug("No device info for SSE snapshot", "error", err)
		return nil
	}
	for ch := range ntv2.Channel(info.NumChannels) {
		st, err := s.channels.GetStatus(ctx, ch)
		if err != nil {
			continue
		}
		state := st.State.String()
		if err := send.Data(events.ChannelStateChangedEvent{
			DeviceID:   info.ID,
			Crosspoint: st.Crosspoint.String(),
			From:       state,
			To:         state,
			StartFrame: st.StartFrame,
			EndFrame:   st.EndFrame,
		}); err != nil {
			return err
		}
	}
	return nil
}
