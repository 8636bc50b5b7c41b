package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/internal/middleware"
	"github.com/brewnet/backend/pkg/response"
	"github.com/brewnet/backend/pkg/validator"
)

// SessionHandler maintains the online flag behind the discovery list.
type SessionHandler struct {
	service *domain.SessionService
	logger  *zap.Logger
}

func NewSessionHandler(service *domain.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: service,
		logger:  logger,
	}
}

// SignIn handles POST /session/sign-in
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	name := validator.SanitizeString(req.Name, 100)
	if name == "" {
		name = validator.SanitizeString(middleware.GetUserName(r.Context()), 100)
	}
	if !validator.ValidateName(name) {
		response.BadRequest(w, "name is too long")
		return
	}

	user, err := h.service.SignIn(r.Context(), userID, name)
	if err != nil {
		writeError(w, h.logger, err, "failed to sign in")
		return
	}

	h.logger.Info("user signed in", zap.String("user_id", userID))
	response.OK(w, user)
}

// SignOut handles POST /session/sign-out
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	if err := h.service.SignOut(r.Context(), userID); err != nil {
		writeError(w, h.logger, err, "failed to sign out")
		return
	}

	h.logger.Info("user signed out", zap.String("user_id", userID))
	response.OK(w, nil)
}

// OnlineUsers handles GET /users/online
func (h *SessionHandler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	users, err := h.service.OnlineUsers(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to fetch online users")
		return
	}

	response.OK(w, map[string]interface{}{"users": users})
}
