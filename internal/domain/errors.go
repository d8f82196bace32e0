package domain

import "errors"

var (
	ErrEmptyContent       = errors.New("message content is empty")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrMissingBookingID   = errors.New("missing booking id")
	ErrUnknownEvent       = errors.New("unknown event")
	ErrMalformedPayload   = errors.New("malformed event payload")
)
