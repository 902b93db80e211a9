package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/ntv2node/internal/api/models"
	"github.com/smazurov/ntv2node/pkg/ntv2"
)

func (s *Server) registerRegisterRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "read-registers",
		Method:      http.MethodPost,
		Path:        "/api/registers/read",
		Summary:     "Read Registers",
		Description: "Read a batch of device registers. Unreadable registers are listed as missing.",
		Tags:        []string{"registers"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *models.RegisterReadRequest) (*models.RegisterReadResponse, error) {
		values, err := s.channels.ReadRegisters(ctx, input.Body.Registers)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		resp := &models.RegisterReadResponse{}
		resp.Body.Values = make([]models.RegisterValue, 0, len(values))
		resp.Body.Missing = []uint32{}
		for _, num := range input.Body.Registers {
			v, ok := values[num]
			if !ok {
				resp.Body.Missing = append(resp.Body.Missing, num)
				continue
			}
			resp.Body.Values = append(resp.Body.Values, models.RegisterValue{Num: num, Value: v})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "write-registers",
		Method:      http.MethodPost,
		Path:        "/api/registers/write",
		Summary:     "Write Registers",
		Description: "Apply a batch of masked register writes. Writes the device rejects are returned.",
		Tags:        []string{"registers"},
		Security:    withAuth(),
		Errors:      channelErrors,
	}, func(ctx context.Context, input *models.RegisterWriteRequest) (*models.RegisterWriteResponse, error) {
		infos := make([]ntv2.RegInfo, len(input.Body.Writes))
		for i, w := range input.Body.Writes {
			mask := w.Mask
			if mask == 0 {
				mask = 0xFFFFFFFF
			}
			infos[i] = ntv2.RegInfo{Num: w.Num, Value: w.Value, Mask: mask, Shift: w.Shift}
		}
		rejected, err := s.channels.WriteRegisters(ctx, infos)
		if err != nil {
			return nil, mapDeviceError(err)
		}
		resp := &models.RegisterWriteResponse{}
		resp.Body.Written = len(infos) - len(rejected)
		resp.Body.Rejected = make([]models.RegisterWrite, 0, len(rejected))
		for _, ri := range rejected {
			resp.Body.Rejected = append(resp.Body.Rejected, models.RegisterWrite{
				Num: ri.Num, Value: ri.Value, Mask: ri.Mask, Shift: ri.Shift,
			})
		}
		if len(rejected) > 0 {
			s.logger.Warn("Register writes rejected", "rejected", len(rejected), "requested", len(infos))
		}
		return resp, nil
	})
}
