package domain

import (
	"maps"
	"time"
)

type BookingStatus string

const (
	StatusPending       BookingStatus = "pending"
	StatusAccepted      BookingStatus = "accepted"
	StatusRejected      BookingStatus = "rejected"
	StatusQuoted        BookingStatus = "quoted"
	StatusQuoteAccepted BookingStatus = "quote_accepted"
	StatusOnTheWay      BookingStatus = "on_the_way"
	StatusInProgress    BookingStatus = "in_progress"
	StatusCompleted     BookingStatus = "completed"
	StatusPaid          BookingStatus = "paid"
	StatusCancelled     BookingStatus = "cancelled"
)

// Snapshot field names shared by the reducer and its readers.
const (
	FieldID               = "id"
	FieldStatus           = "status"
	FieldQuotedAmount     = "quotedAmount"
	FieldTimeoutWarning   = "timeoutWarning"
	FieldTimeoutKind      = "timeoutKind"
	FieldSecondsRemaining = "secondsRemaining"
	FieldReason           = "reason"
	FieldQuoteAccepted    = "quoteAccepted"
	FieldQuoteDeclined    = "quoteDeclined"
	FieldConflictWarning  = "conflictWarning"
	FieldUpdatedAt        = "updatedAt"
)

// Snapshot is the shallow field map describing one booking as last seen by
// the client. Values come straight from JSON so numbers are float64.
type Snapshot map[string]any

func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return maps.Clone(s)
}

func (s Snapshot) String(key string) string {
	v, _ := s[key].(string)
	return v
}

func (s Snapshot) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

func (s Snapshot) Int(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (s Snapshot) Status() BookingStatus {
	return BookingStatus(s.String(FieldStatus))
}

func (s Snapshot) TimeoutWarning() bool {
	return s.Bool(FieldTimeoutWarning)
}

func (s Snapshot) SecondsRemaining() int {
	return s.Int(FieldSecondsRemaining)
}

// UpdatedAt parses the server timestamp, if the snapshot carries one.
func (s Snapshot) UpdatedAt() (time.Time, bool) {
	raw := s.String(FieldUpdatedAt)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
