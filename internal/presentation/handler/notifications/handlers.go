package notifications

import (
	"net/http"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/infrastructure/json"
	"github.com/hilthontt/bookingsync/internal/infrastructure/logging"
	"github.com/hilthontt/bookingsync/internal/notification"
)

type Handler struct {
	logger logging.Logger
}

func NewHandler(logger logging.Logger) *Handler {
	return &Handler{logger: logger}
}

// RouteHandler answers which screen a push payload opens.
func (h *Handler) RouteHandler(w http.ResponseWriter, r *http.Request) {
	var payload notification.Payload
	if err := json.Read(r, &payload); err != nil {
		json.WriteAppError(w, apperr.Wrap(apperr.Validation, err, err.Error()))
		return
	}

	target := notification.Route(payload)
	h.logger.Debug(logging.Notification, logging.Route, "notification routed", map[logging.ExtraKey]any{
		logging.Event:     payload.Type,
		logging.BookingID: payload.BookingID,
		logging.Screen:    target.Screen,
	})
	json.Write(w, http.StatusOK, target)
}
