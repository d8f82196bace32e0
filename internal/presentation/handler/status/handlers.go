package status

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/json"
	"github.com/hilthontt/bookingsync/internal/infrastructure/rest"
	"github.com/hilthontt/bookingsync/internal/realtime"
)

type Connection interface {
	State() realtime.State
}

type Rooms interface {
	Members() []string
}

type Chat interface {
	UnreadCount() int
	PeerTyping() bool
	Self() domain.Participant
}

// Session is the part of *booking.Session the handler drives.
type Session interface {
	Active() string
	Snapshot() domain.Snapshot
	Activate(ctx context.Context, bookingID string) error
	Close(ctx context.Context)
	Perform(ctx context.Context, action rest.Action, body any) (domain.Snapshot, error)
}

type Handler struct {
	conn    Connection
	rooms   Rooms
	chat    Chat
	session Session
}

func NewHandler(conn Connection, rooms Rooms, chat Chat, session Session) *Handler {
	return &Handler{
		conn:    conn,
		rooms:   rooms,
		chat:    chat,
		session: session,
	}
}

func (h *Handler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	state := h.conn.State()
	self := h.chat.Self()
	json.Write(w, http.StatusOK, statusResponse{
		State:         state.String(),
		Connected:     state == realtime.Connected,
		ActiveBooking: h.session.Active(),
		Rooms:         h.rooms.Members(),
		Unread:        h.chat.UnreadCount(),
		PeerTyping:    h.chat.PeerTyping(),
		Self:          self,
		PeerRole:      self.Counterpart(),
	})
}

func (h *Handler) GetSnapshotHandler(w http.ResponseWriter, r *http.Request) {
	bookingID := h.session.Active()
	if bookingID == "" {
		json.WriteError(w, http.StatusNotFound, "No active booking")
		return
	}
	json.Write(w, http.StatusOK, snapshotResponse{BookingID: bookingID, Snapshot: h.session.Snapshot()})
}

func (h *Handler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteAppError(w, apperr.Wrap(apperr.Validation, err, err.Error()))
		return
	}

	// A failed refresh still leaves the booking active; report it with the
	// snapshot the session has.
	if err := h.session.Activate(r.Context(), req.BookingID); err != nil && h.session.Active() != req.BookingID {
		json.WriteAppError(w, err)
		return
	}
	json.Write(w, http.StatusOK, snapshotResponse{BookingID: req.BookingID, Snapshot: h.session.Snapshot()})
}

func (h *Handler) CloseHandler(w http.ResponseWriter, r *http.Request) {
	h.session.Close(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) PerformActionHandler(w http.ResponseWriter, r *http.Request) {
	action := rest.Action(chi.URLParam(r, "action"))
	if !action.Valid() {
		json.WriteAppError(w, apperr.NewValidation("action: unknown"))
		return
	}

	var body map[string]any
	if err := json.Read(r, &body); err != nil && !errors.Is(err, io.EOF) {
		json.WriteAppError(w, apperr.Wrap(apperr.Validation, err, err.Error()))
		return
	}

	var payload any
	if len(body) > 0 {
		payload = body
	}

	snap, err := h.session.Perform(r.Context(), action, payload)
	if err != nil {
		json.WriteAppError(w, err)
		return
	}
	json.Write(w, http.StatusOK, snapshotResponse{BookingID: h.session.Active(), Snapshot: snap})
}
