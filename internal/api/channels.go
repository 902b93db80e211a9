package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ntv2node/internal/api/models"
	"github.com/smazurov/ntv2node/internal/autocirculate"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

func (s *Server) registerChannelRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-channels",
		Method:      http.MethodGet,
		Path:        "/api/channels",
		Summary:     "List Channels",
		Description: "Get the AutoCirculate status of every frame store on the device",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *struct{}) (*models.ChannelListResponse, error) {
		info, err := s.channels.DeviceInfo(ctx)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		list := make([]models.ChannelStatusData, 0, info.NumChannels)
		for ch := range ntv2.Channel(info.NumChannels) {
			st, err := s.channels.GetStatus(ctx, ch)
			if err != nil {
				return nil, mapDeviceError(err)
			}
			list = append(list, models.NewChannelStatus(st))
		}
		resp := &models.ChannelListResponse{}
		resp.Body.Channels = list
		resp.Body.Count = len(list)
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-channel-status",
		Method:      http.MethodGet,
		Path:        "/api/channels/{channel}/status",
		Summary:     "Channel Status",
		Description: "Get the AutoCirculate status of one frame store",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *models.ChannelPath) (*models.ChannelStatusResponse, error) {
		st, err := s.channels.GetStatus(ctx, input.ID())
		if err != nil {
			return nil, mapDeviceError(err)
		}
		return &models.ChannelStatusResponse{Body: models.NewChannelStatus(st)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-frame-stamp",
		Method:      http.MethodGet,
		Path:        "/api/channels/{channel}/framestamp/{frame}",
		Summary:     "Frame Stamp",
		Description: "Get timing and timecode information for one frame of a running channel",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *models.FrameStampInput) (*models.FrameStampResponse, error) {
		fs, err := s.channels.GetFrameStamp(ctx, input.ID(), input.Frame)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		return &models.FrameStampResponse{Body: models.NewFrameStamp(fs)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "init-channel",
		Method:      http.MethodPost,
		Path:        "/api/channels/{channel}/init",
		Summary:     "Initialize Channel",
		Description: "Allocate a frame ring and prepare a frame store for capture or playout",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *models.InitRequest) (*models.ChannelStatusResponse, error) {
		opts, err := initOptions(input.Body)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		ch := input.ID()
		if input.Body.Direction == models.DirectionInput {
			err = s.channels.InitForInput(ctx, ch, opts)
		} else {
			err = s.channels.InitForOutput(ctx, ch, opts)
		}
		if err != nil {
			return nil, mapDeviceError(err)
		}
		s.logger.Info("Channel initialized via API", "channel", ch, "direction", input.Body.Direction)

		st, err := s.channels.GetStatus(ctx, ch)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		return &models.ChannelStatusResponse{Body: models.NewChannelStatus(st)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "channel-command",
		Method:      http.MethodPost,
		Path:        "/api/channels/{channel}/commands",
		Summary:     "Channel Command",
		Description: "Send an AutoCirculate command to a frame store and return its resulting status",
		Tags:        []string{"channels"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *models.CommandRequest) (*models.ChannelStatusResponse, error) {
		ch := input.ID()
		if err := s.runCommand(ctx, ch, input.Body); err != nil {
			return nil, mapDeviceError(err)
		}
		st, err := s.channels.GetStatus(ctx, ch)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		return &models.ChannelStatusResponse{Body: models.NewChannelStatus(st)}, nil
	})
}

// initOptions converts an init request into client options.
func initOptions(req models.InitRequestData) (autocirculate.InitOptions, error) {
	opts := autocirculate.DefaultInitOptions()
	if req.FrameCount > 0 {
		opts.FrameCount = req.FrameCount
	}
	opts.StartFrame = req.StartFrame
	opts.EndFrame = req.EndFrame
	if req.AudioSystem > 0 {
		opts.AudioSystem = ntv2.AudioSystem(req.AudioSystem - 1)
	}
	if req.NumChannels > 0 {
		opts.NumChannels = req.NumChannels
	}
	flags, err := ntv2.ParseOptionFlags(req.Options)
	if err != nil {
		return opts, ntv2.NewError(ntv2.ResultBadParameter, "invalid options", err)
	}
	opts.Options = flags
	return opts, nil
}

func (s *Server) runCommand(ctx context.Context, ch ntv2.Channel, req models.CommandRequestData) error {
	switch req.Command {
	case models.CommandStart:
		if req.StartTime > 0 {
			return s.channels.StartAt(ctx, ch, req.StartTime)
		}
		return s.channels.Start(ctx, ch)
	case models.CommandStop:
		return s.channels.Stop(ctx, ch)
	case models.CommandAbort:
		return s.channels.Abort(ctx, ch)
	case models.CommandPause:
		atFrame := ntv2.NoPauseFrame
		if req.Frame != nil {
			atFrame = *req.Frame
		}
		return s.channels.Pause(ctx, ch, atFrame)
	case models.CommandResume:
		return s.channels.Resume(ctx, ch, req.ClearDropCount)
	case models.CommandFlush:
		return s.channels.Flush(ctx, ch, req.ClearDropCount)
	case models.CommandPreroll:
		return s.channels.Preroll(ctx, ch, req.Frames)
	case models.CommandActiveFrame:
		if req.Frame == nil {
			return ntv2.Errorf(ntv2.ResultBadParameter, "active-frame needs a frame")
		}
		return s.channels.SetActiveFrame(ctx, ch, *req.Frame)
	default:
		return ntv2.Errorf(ntv2.ResultBadParameter, "unknown command %q", req.Command)
	}
}
