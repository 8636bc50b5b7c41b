package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/internal/middleware"
	"github.com/brewnet/backend/pkg/response"
	"github.com/brewnet/backend/pkg/validator"
)

type ConnectionHandler struct {
	connService *domain.ConnectionService
	logger      *zap.Logger
}

func NewConnectionHandler(connService *domain.ConnectionService, logger *zap.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connService: connService,
		logger:      logger,
	}
}

// SendRequest handles POST /connections/request
func (h *ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		ToUserID string `json:"toUserId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	var errs validator.ValidationErrors
	errs.RequireUserID("toUserId", req.ToUserID)
	if errs.HasErrors() {
		writeError(w, h.logger, errs, "invalid request")
		return
	}

	conn, err := h.connService.SendRequest(r.Context(), userID, req.ToUserID)
	if err != nil {
		writeError(w, h.logger, err, "failed to send request")
		return
	}

	response.Created(w, conn)
}

// Accept handles POST /connections/accept
func (h *ConnectionHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.connService.Accept, "failed to accept request")
}

// Reject handles POST /connections/reject
func (h *ConnectionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.connService.Reject, "failed to reject request")
}

func (h *ConnectionHandler) respond(
	w http.ResponseWriter,
	r *http.Request,
	transition func(ctx context.Context, receiverID, requesterID string) (*domain.Connection, error),
	failure string,
) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	var req struct {
		FromUserID string `json:"fromUserId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	var errs validator.ValidationErrors
	errs.RequireUserID("fromUserId", req.FromUserID)
	if errs.HasErrors() {
		writeError(w, h.logger, errs, "invalid request")
		return
	}

	conn, err := transition(r.Context(), userID, req.FromUserID)
	if err != nil {
		writeError(w, h.logger, err, failure)
		return
	}

	response.OK(w, conn)
}

// Remove handles DELETE /connections/{userId}
func (h *ConnectionHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	otherID := chi.URLParam(r, "userId")
	if !validator.ValidateUserID(otherID) {
		response.BadRequest(w, "invalid user id")
		return
	}

	if err := h.connService.Remove(r.Context(), userID, otherID); err != nil {
		writeError(w, h.logger, err, "failed to remove connection")
		return
	}

	response.OK(w, nil)
}

// GetConnections handles GET /connections
func (h *ConnectionHandler) GetConnections(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	conns, err := h.connService.Connections(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to fetch connections")
		return
	}
	if conns == nil {
		conns = []*domain.Connection{}
	}

	response.OK(w, map[string]interface{}{"connections": conns})
}

// GetPendingRequests handles GET /connections/requests
func (h *ConnectionHandler) GetPendingRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	reqs, err := h.connService.PendingRequests(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to fetch requests")
		return
	}

	response.OK(w, map[string]interface{}{"requests": reqs})
}

// GetStatus handles GET /connections/status/{userId}
func (h *ConnectionHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	otherID := chi.URLParam(r, "userId")
	if !validator.ValidateUserID(otherID) {
		response.BadRequest(w, "invalid user id")
		return
	}

	state, err := h.connService.Status(r.Context(), userID, otherID)
	if err != nil {
		writeError(w, h.logger, err, "failed to fetch status")
		return
	}

	response.OK(w, map[string]domain.RelationState{"status": state})
}
