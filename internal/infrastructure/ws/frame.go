package ws

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame marks an inbound message that arrived intact but could
// not be decoded. The socket stays usable.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is the JSON envelope exchanged in both directions. Requests that
// expect an acknowledgment carry an AckID echoed back on the "ack" frame.
type Frame struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId,omitempty"`
	AckID  string          `json:"ackId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

type ErrorPayload struct {
	Code       string   `json:"code,omitempty"`
	Message    string   `json:"message"`
	RetryAfter float64  `json:"retryAfter,omitempty"` // seconds
	Fields     []string `json:"fields,omitempty"`
}

// UnmarshalJSON also accepts a bare string, which some server paths send in
// place of the error object.
func (p *ErrorPayload) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*p = ErrorPayload{Message: msg}
		return nil
	}

	type plain ErrorPayload
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ErrorPayload(v)
	return nil
}

// DecodeFrame parses one inbound message. Failures wrap ErrMalformedFrame.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return f, nil
}

// NewFrame marshals data into a frame of the given type.
func NewFrame(typ string, data any) (Frame, error) {
	f := Frame{Type: typ}
	if data == nil {
		return f, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	f.Data = raw
	return f, nil
}

// BookingRef is the payload of join and leave frames.
type BookingRef struct {
	BookingID string `json:"bookingId"`
}

type SendMessagePayload struct {
	BookingID string `json:"bookingId"`
	Content   string `json:"content"`
	Type      string `json:"type"`
}

type TypingPayload struct {
	BookingID string `json:"bookingId"`
	IsTyping  bool   `json:"isTyping"`
}

type MarkReadPayload struct {
	BookingID string `json:"bookingId"`
	MessageID string `json:"messageId"`
}
