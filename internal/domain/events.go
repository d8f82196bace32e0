package domain

import (
	"encoding/json"
	"fmt"
	"maps"
)

type EventKind string

const (
	EventNewMessage               EventKind = "new-message"
	EventStatusChanged            EventKind = "booking-status-changed"
	EventTyping                   EventKind = "user-typing"
	EventMessageRead              EventKind = "message-read"
	EventPaymentConfirmed         EventKind = "payment-confirmed"
	EventJobStartApproved         EventKind = "job-start-approved"
	EventJobCompleteApproved      EventKind = "job-complete-approved"
	EventAssignmentTimeoutWarning EventKind = "assignment-timeout-warning"
	EventQuoteTimeoutWarning      EventKind = "quote-timeout-warning"
	EventQuoteAccepted            EventKind = "quote-accepted"
	EventQuoteDeclined            EventKind = "quote-declined"
	EventJobConflictWarning       EventKind = "job-conflict-warning"
)

// customer-typing is emitted to providers and carries the same payload.
const wireCustomerTyping = "customer-typing"

// BookingUpdateKinds are the kinds folded into the booking snapshot.
var BookingUpdateKinds = []EventKind{
	EventStatusChanged,
	EventPaymentConfirmed,
	EventJobStartApproved,
	EventJobCompleteApproved,
	EventAssignmentTimeoutWarning,
	EventQuoteTimeoutWarning,
	EventQuoteAccepted,
	EventQuoteDeclined,
	EventJobConflictWarning,
}

func isBookingUpdate(kind EventKind) bool {
	for _, k := range BookingUpdateKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Event is implemented only by the variants in this file.
type Event interface {
	Kind() EventKind
	Booking() string
	isEvent()
}

type NewMessageEvent struct {
	BookingID string
	Message   Message
}

func (NewMessageEvent) Kind() EventKind   { return EventNewMessage }
func (e NewMessageEvent) Booking() string { return e.BookingID }
func (NewMessageEvent) isEvent()          {}

type TypingEvent struct {
	BookingID string
	UserID    string
	IsTyping  bool
}

func (TypingEvent) Kind() EventKind   { return EventTyping }
func (e TypingEvent) Booking() string { return e.BookingID }
func (TypingEvent) isEvent()          {}

type MessageReadEvent struct {
	BookingID string
	MessageID string
}

func (MessageReadEvent) Kind() EventKind   { return EventMessageRead }
func (e MessageReadEvent) Booking() string { return e.BookingID }
func (MessageReadEvent) isEvent()          {}

// BookingUpdateEvent carries any of BookingUpdateKinds. Payload never holds
// the booking id keys.
type BookingUpdateEvent struct {
	kind      EventKind
	BookingID string
	Payload   map[string]any
}

func NewBookingUpdate(kind EventKind, bookingID string, payload map[string]any) (BookingUpdateEvent, error) {
	if !isBookingUpdate(kind) {
		return BookingUpdateEvent{}, fmt.Errorf("%w: %s is not a booking update", ErrUnknownEvent, kind)
	}
	p := maps.Clone(payload)
	if p == nil {
		p = map[string]any{}
	}
	delete(p, "bookingId")
	delete(p, "booking_id")
	return BookingUpdateEvent{kind: kind, BookingID: bookingID, Payload: p}, nil
}

func (e BookingUpdateEvent) Kind() EventKind { return e.kind }
func (e BookingUpdateEvent) Booking() string { return e.BookingID }
func (BookingUpdateEvent) isEvent()          {}

// BookingIDFrom reads the booking id under either key spelling. Numeric ids
// are rendered as strings.
func BookingIDFrom(m map[string]any) string {
	return firstID(m, "bookingId", "booking_id")
}

func firstID(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := IDString(m[key]); v != "" {
			return v
		}
	}
	return ""
}

func firstBool(m map[string]any, keys ...string) bool {
	for _, key := range keys {
		if v, ok := m[key].(bool); ok {
			return v
		}
	}
	return false
}

// DecodeEvent turns a named wire event into its typed variant.
func DecodeEvent(name string, data json.RawMessage) (Event, error) {
	var fields map[string]any
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, name, err)
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}

	switch kind := EventKind(name); {
	case kind == EventNewMessage:
		return decodeNewMessage(data, fields)

	case kind == EventTyping || name == wireCustomerTyping:
		return TypingEvent{
			BookingID: BookingIDFrom(fields),
			UserID:    firstID(fields, "userId", "user_id", "customerId", "customer_id"),
			IsTyping:  firstBool(fields, "isTyping", "is_typing"),
		}, nil

	case kind == EventMessageRead:
		return MessageReadEvent{
			BookingID: BookingIDFrom(fields),
			MessageID: firstID(fields, "messageId", "message_id", "id"),
		}, nil

	case isBookingUpdate(kind):
		return NewBookingUpdate(kind, BookingIDFrom(fields), fields)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
	}
}

func decodeNewMessage(data json.RawMessage, fields map[string]any) (Event, error) {
	var envelope struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, EventNewMessage, err)
	}

	var msg Message
	if envelope.Message != nil {
		msg = *envelope.Message
	} else if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, EventNewMessage, err)
	}

	bookingID := BookingIDFrom(fields)
	if bookingID == "" {
		bookingID = msg.BookingID
	}
	if msg.BookingID == "" {
		msg.BookingID = bookingID
	}

	return NewMessageEvent{BookingID: bookingID, Message: msg}, nil
}

// WithBookingID fills in the booking id of an event that arrived without one
// in its payload, e.g. when only the frame's room carries it.
func WithBookingID(ev Event, bookingID string) Event {
	if ev.Booking() != "" || bookingID == "" {
		return ev
	}
	switch e := ev.(type) {
	case NewMessageEvent:
		e.BookingID = bookingID
		if e.Message.BookingID == "" {
			e.Message.BookingID = bookingID
		}
		return e
	case TypingEvent:
		e.BookingID = bookingID
		return e
	case MessageReadEvent:
		e.BookingID = bookingID
		return e
	case BookingUpdateEvent:
		e.BookingID = bookingID
		return e
	}
	return ev
}
