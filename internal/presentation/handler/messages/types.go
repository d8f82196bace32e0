package messages

import "github.com/hilthontt/bookingsync/internal/domain"

type createMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

type typingRequest struct {
	IsTyping bool `json:"isTyping"`
}

type messagesResponse struct {
	BookingID string           `json:"bookingId"`
	Messages  []domain.Message `json:"messages"`
}
