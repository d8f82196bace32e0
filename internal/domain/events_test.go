package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeNewMessageFlat(t *testing.T) {
	ev, err := DecodeEvent("new-message", json.RawMessage(`{
		"_id": "m1",
		"booking_id": "b1",
		"senderId": "u1",
		"content": "hello",
		"type": "text",
		"createdAt": "2026-01-02T03:04:05Z"
	}`))
	require.NoError(t, err)

	msg, ok := ev.(NewMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "b1", msg.Booking())
	assert.Equal(t, "m1", msg.Message.ID)
	assert.Equal(t, "u1", msg.Message.SenderID)
	assert.Equal(t, MessageText, msg.Message.Type)
	assert.Equal(t, "b1", msg.Message.BookingID)
}

func TestDecodeNewMessageNested(t *testing.T) {
	ev, err := DecodeEvent("new-message", json.RawMessage(`{
		"bookingId": "b2",
		"message": {"id": "m9", "senderId": "u2", "content": "pic", "type": "image"}
	}`))
	require.NoError(t, err)

	msg := ev.(NewMessageEvent)
	assert.Equal(t, "b2", msg.BookingID)
	assert.Equal(t, "m9", msg.Message.ID)
	assert.Equal(t, MessageImage, msg.Message.Type)
}

func TestDecodeTypingAcceptsBothNames(t *testing.T) {
	for _, name := range []string{"user-typing", "customer-typing"} {
		t.Run(name, func(t *testing.T) {
			ev, err := DecodeEvent(name, json.RawMessage(`{"bookingId":"b1","userId":"u3","isTyping":true}`))
			require.NoError(t, err)

			typing, ok := ev.(TypingEvent)
			require.True(t, ok)
			assert.Equal(t, EventTyping, typing.Kind())
			assert.Equal(t, "u3", typing.UserID)
			assert.True(t, typing.IsTyping)
		})
	}
}

func TestDecodeMessageRead(t *testing.T) {
	ev, err := DecodeEvent("message-read", json.RawMessage(`{"booking_id":"b1","message_id":"m1"}`))
	require.NoError(t, err)

	read := ev.(MessageReadEvent)
	assert.Equal(t, "b1", read.BookingID)
	assert.Equal(t, "m1", read.MessageID)
}

func TestDecodeBookingUpdateStripsBookingID(t *testing.T) {
	ev, err := DecodeEvent("payment-confirmed", json.RawMessage(`{"bookingId":"b1","booking_id":"b1","amount":42}`))
	require.NoError(t, err)

	update := ev.(BookingUpdateEvent)
	assert.Equal(t, EventPaymentConfirmed, update.Kind())
	assert.Equal(t, "b1", update.Booking())
	assert.Equal(t, map[string]any{"amount": float64(42)}, update.Payload)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := DecodeEvent("room.deleted", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := DecodeEvent("booking-status-changed", json.RawMessage(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestNewBookingUpdateRejectsNonUpdateKinds(t *testing.T) {
	_, err := NewBookingUpdate(EventNewMessage, "b1", nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestWithBookingIDFillsOnlyWhenMissing(t *testing.T) {
	ev, err := DecodeEvent("message-read", json.RawMessage(`{"messageId":"m1"}`))
	require.NoError(t, err)

	filled := WithBookingID(ev, "room-b1")
	assert.Equal(t, "room-b1", filled.Booking())

	kept := WithBookingID(filled, "other")
	assert.Equal(t, "room-b1", kept.Booking())
}

func TestDecodeAcceptsNumericIDs(t *testing.T) {
	tests := []struct {
		name      string
		event     string
		data      string
		bookingID string
		check     func(t *testing.T, ev Event)
	}{
		{
			name:      "new message",
			event:     "new-message",
			data:      `{"id":42,"bookingId":17,"senderId":9,"content":"hi"}`,
			bookingID: "17",
			check: func(t *testing.T, ev Event) {
				msg := ev.(NewMessageEvent).Message
				assert.Equal(t, "42", msg.ID)
				assert.Equal(t, "9", msg.SenderID)
				assert.Equal(t, "17", msg.BookingID)
			},
		},
		{
			name:      "mongo style id",
			event:     "new-message",
			data:      `{"_id":9007199254740993,"booking_id":"b1","content":"hi"}`,
			bookingID: "b1",
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "9007199254740993", ev.(NewMessageEvent).Message.ID)
			},
		},
		{
			name:      "message read",
			event:     "message-read",
			data:      `{"bookingId":17,"messageId":42}`,
			bookingID: "17",
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "42", ev.(MessageReadEvent).MessageID)
			},
		},
		{
			name:      "typing",
			event:     "user-typing",
			data:      `{"booking_id":17,"userId":5,"isTyping":true}`,
			bookingID: "17",
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "5", ev.(TypingEvent).UserID)
			},
		},
		{
			name:      "status change",
			event:     "booking-status-changed",
			data:      `{"bookingId":17,"status":"accepted"}`,
			bookingID: "17",
			check: func(t *testing.T, ev Event) {
				assert.Equal(t, "accepted", ev.(BookingUpdateEvent).Payload["status"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(tt.event, json.RawMessage(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.bookingID, ev.Booking())
			tt.check(t, ev)
		})
	}
}

func TestDecodeRejectsObjectID(t *testing.T) {
	_, err := DecodeEvent("new-message", json.RawMessage(`{"id":{"x":1},"content":"hi"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "b1", IDString("b1"))
	assert.Equal(t, "17", IDString(float64(17)))
	assert.Equal(t, "1.5", IDString(1.5))
	assert.Equal(t, "42", IDString(json.Number("42")))
	assert.Equal(t, "", IDString(true))
	assert.Equal(t, "", IDString(nil))
}
