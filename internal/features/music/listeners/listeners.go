package listeners

import (
	"github.com/hxnx/weeve/internal/music"
	"go.uber.org/zap"
)

// Listeners reacts to gateway events that concern music sessions.
type Listeners struct {
	service *music.Service
	logger  *zap.Logger
}

func New(service *music.Service, logger *zap.Logger) *Listeners {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listeners{
		service: service,
		logger:  logger.Named("listeners"),
	}
}
