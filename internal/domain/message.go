package domain

import (
	"encoding/json"
	"strings"
	"time"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageImage
}

// Message is one chat entry of a booking conversation. An empty ID means the
// server has not assigned one; such messages are never deduplicated.
type Message struct {
	ID        string      `json:"id,omitempty"`
	BookingID string      `json:"bookingId,omitempty"`
	SenderID  string      `json:"senderId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
	IsRead    bool        `json:"isRead"`
}

// NewMessage validates an outbound draft.
func NewMessage(bookingID, content string, typ MessageType) (*Message, error) {
	if bookingID == "" {
		return nil, ErrMissingBookingID
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if typ == "" {
		typ = MessageText
	}
	if !typ.Valid() {
		return nil, ErrInvalidMessageType
	}

	return &Message{
		BookingID: bookingID,
		Content:   content,
		Type:      typ,
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) HasID() bool {
	return m.ID != ""
}

// UnmarshalJSON accepts both camelCase and snake_case keys plus Mongo-style
// "_id", which the backend emits depending on the code path. Identifiers may
// be strings or numbers.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	aux := struct {
		*plain
		ID           opaqueID    `json:"id"`
		BookingID    opaqueID    `json:"bookingId"`
		SenderID     opaqueID    `json:"senderId"`
		MongoID      opaqueID    `json:"_id"`
		BookingIDAlt opaqueID    `json:"booking_id"`
		SenderIDAlt  opaqueID    `json:"sender_id"`
		IsReadAlt    *bool       `json:"is_read"`
		CreatedAtAlt *time.Time  `json:"created_at"`
		TypeAlt      MessageType `json:"message_type"`
	}{plain: (*plain)(m)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	m.ID = firstNonEmpty(string(aux.ID), string(aux.MongoID))
	m.BookingID = firstNonEmpty(string(aux.BookingID), string(aux.BookingIDAlt))
	m.SenderID = firstNonEmpty(string(aux.SenderID), string(aux.SenderIDAlt))
	if aux.IsReadAlt != nil && !m.IsRead {
		m.IsRead = *aux.IsReadAlt
	}
	if m.CreatedAt.IsZero() && aux.CreatedAtAlt != nil {
		m.CreatedAt = *aux.CreatedAtAlt
	}
	if m.Type == "" {
		m.Type = aux.TypeAlt
	}
	if m.Type == "" {
		m.Type = MessageText
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
