package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/middleware"
	"github.com/brewnet/backend/internal/presence"
	"github.com/brewnet/backend/pkg/response"
)

// PresenceHandler upgrades authenticated requests onto the push channel.
type PresenceHandler struct {
	manager *presence.Manager
	logger  *zap.Logger
}

func NewPresenceHandler(manager *presence.Manager, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		manager: manager,
		logger:  logger,
	}
}

// Connect handles GET /ws
func (h *PresenceHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	if _, err := h.manager.Upgrade(w, r, userID); err != nil {
		if errors.Is(err, presence.ErrChannelNotReady) {
			h.logger.Warn("websocket refused, presence channel not ready", zap.String("user_id", userID))
			response.ServiceUnavailable(w, "realtime channel not ready")
			return
		}
		// The upgrader has already replied to the client.
		h.logger.Debug("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}
