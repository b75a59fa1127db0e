package app

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/aird/internal/config"
	"github.com/dokzlo13/aird/internal/httpapi"
)

// HTTPService wraps the API server.
type HTTPService struct {
	cfg    *config.Config
	server *httpapi.Server
}

// NewHTTPService creates a new HTTPService.
func NewHTTPService(cfg *config.Config, devices httpapi.Devices, metrics http.Handler) *HTTPService {
	return &HTTPService{
		cfg:    cfg,
		server: httpapi.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, devices, metrics),
	}
}

// Start begins the API server if enabled.
func (s *HTTPService) Start(ctx context.Context) {
	if !s.cfg.HTTP.Enabled {
		log.Debug().Msg("HTTP API disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("HTTP API server error")
		}
	}()
}
