package messages

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hilthontt/bookingsync/internal/apperr"
	"github.com/hilthontt/bookingsync/internal/domain"
	"github.com/hilthontt/bookingsync/internal/infrastructure/json"
)

// Store is the part of *booking.MessageStore the handler drives.
type Store interface {
	BookingID() string
	Messages() []domain.Message
	Send(ctx context.Context, content string, typ domain.MessageType) (*domain.Message, error)
	SendReadReceipt(ctx context.Context, messageID string)
	SetTyping(ctx context.Context, isTyping bool)
}

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	json.Write(w, http.StatusOK, messagesResponse{
		BookingID: h.store.BookingID(),
		Messages:  h.store.Messages(),
	})
}

func (h *Handler) CreateMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteAppError(w, apperr.Wrap(apperr.Validation, err, err.Error()))
		return
	}

	msg, err := h.store.Send(r.Context(), req.Content, domain.MessageType(req.Type))
	if err != nil {
		json.WriteAppError(w, err)
		return
	}
	json.Write(w, http.StatusCreated, msg)
}

func (h *Handler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageId")
	if messageID == "" {
		json.WriteAppError(w, apperr.NewValidation("messageId: missing"))
		return
	}

	h.store.SendReadReceipt(r.Context(), messageID)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) TypingHandler(w http.ResponseWriter, r *http.Request) {
	var req typingRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteAppError(w, apperr.Wrap(apperr.Validation, err, err.Error()))
		return
	}

	h.store.SetTyping(r.Context(), req.IsTyping)
	w.WriteHeader(http.StatusAccepted)
}
