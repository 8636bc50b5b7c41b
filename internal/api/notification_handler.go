package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/internal/middleware"
	"github.com/brewnet/backend/pkg/response"
)

type NotificationHandler struct {
	service *domain.NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service *domain.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

// GetNotifications handles GET /notifications/{userId}
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownPath(w, r)
	if !ok {
		return
	}

	notifs, err := h.service.ListUnread(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to fetch notifications")
		return
	}

	response.OK(w, map[string]interface{}{"notifications": notifs})
}

// UnreadCount handles GET /notifications/unread-count/{userId}
func (h *NotificationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownPath(w, r)
	if !ok {
		return
	}

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to count notifications")
		return
	}

	response.OK(w, map[string]int64{"count": count})
}

// MarkRead handles PUT /notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		response.BadRequest(w, "invalid notification id")
		return
	}

	if err := h.service.MarkRead(r.Context(), userID, id); err != nil {
		writeError(w, h.logger, err, "failed to update notification")
		return
	}

	response.OK(w, nil)
}

// MarkAllRead handles GET|PUT /notifications/readAll/{userId}
func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.ownPath(w, r)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err, "failed to update notifications")
		return
	}

	response.OK(w, map[string]int64{"updated": updated})
}

// ownPath returns the {userId} path parameter if it names the caller.
func (h *NotificationHandler) ownPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	callerID, ok := middleware.GetUserID(r.Context())
	if !ok {
		response.Unauthorized(w, "not authenticated")
		return "", false
	}

	if chi.URLParam(r, "userId") != callerID {
		response.Forbidden(w, "cannot access another user's notifications")
		return "", false
	}
	return callerID, true
}
