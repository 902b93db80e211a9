package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// LEDStatusData describes the status LED and what it currently shows.
type LEDStatusData struct {
	Type              string   `json:"type" example:"system" doc:"LED driven by channel activity"`
	Indicator         string   `json:"indicator" example:"running" enum:"idle,running,dropping" doc:"Aggregate channel activity shown"`
	AvailableTypes    []string `json:"available_types" doc:"LED types available on this board"`
	AvailablePatterns []string `json:"available_patterns" doc:"LED patterns available on this board"`
}

type LEDStatusResponse struct {
	Body LEDStatusData
}

// registerLEDRoutes registers the LED status endpoint when an LED is driven.
func (s *Server) registerLEDRoutes() {
	if s.options.LED == nil {
		s.logger.Debug("Status LED disabled, skipping LED routes")
		return
	}

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led",
		Method:      http.MethodGet,
		Path:        "/api/leds",
		Summary:     "Get Status LED",
		Description: "Report the status LED, the channel activity it shows and the board's LED capabilities",
		Tags:        []string{"leds"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*LEDStatusResponse, error) {
		m := s.options.LED
		resp := &LEDStatusResponse{}
		resp.Body.Type = m.LEDType()
		resp.Body.Indicator = m.Indicator().String()
		resp.Body.AvailableTypes = m.Controller().Available()
		resp.Body.AvailablePatterns = m.Controller().Patterns()
		return resp, nil
	})
}
