package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ntv2node/internal/api/models"
)

func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-device",
		Method:      http.MethodGet,
		Path:        "/api/device",
		Summary:     "Device",
		Description: "Describe the device: model, frame buffers and frame store count",
		Tags:        []string{"device"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *struct{}) (*models.DeviceInfoResponse, error) {
		info, err := s.channels.DeviceInfo(ctx)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		return &models.DeviceInfoResponse{Body: info}, nil
	})
}
