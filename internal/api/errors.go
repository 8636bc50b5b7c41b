package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/brewnet/backend/internal/domain"
	"github.com/brewnet/backend/pkg/response"
	"github.com/brewnet/backend/pkg/validator"
)

const maxBodyBytes = 1 << 20

// writeError maps domain errors onto the response envelope. Anything not
// recognised is logged and reported as a 500 with fallback as message.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		response.BadRequest(w, verrs.Error())
	case errors.Is(err, domain.ErrNotificationNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrConnectionNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, domain.ErrConnectionExists):
		response.Conflict(w, err.Error())
	case errors.Is(err, domain.ErrSelfConnection),
		errors.Is(err, domain.ErrSelfNotification),
		errors.Is(err, domain.ErrInvalidNotificationType):
		response.BadRequest(w, err.Error())
	default:
		logger.Error(fallback, zap.Error(err))
		response.InternalError(w, fallback)
	}
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
