// Package notification maps push notification payloads onto the screen that
// should open when the user taps them.
package notification

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/hilthontt/bookingsync/internal/domain"
)

const (
	ScreenChat           = "Chat"
	ScreenChats          = "Chats"
	ScreenReviews        = "Reviews"
	ScreenWithdrawals    = "Withdrawals"
	ScreenReferrals      = "Referrals"
	ScreenTier           = "Tier"
	ScreenEarnings       = "Earnings"
	ScreenBookingDetails = "BookingDetails"
	ScreenNotifications  = "Notifications"
)

const ParamBookingID = "bookingId"

// Target is where a notification navigates to.
type Target struct {
	Screen string            `json:"screen"`
	Params map[string]string `json:"params,omitempty"`
}

// Payload is the part of a push notification the router looks at.
type Payload struct {
	Type      string `json:"type"`
	BookingID string `json:"bookingId,omitempty"`
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*p = PayloadFromMap(raw)
	return nil
}

// PayloadFromMap reads a payload out of loosely typed push data. Both
// bookingId and booking_id are accepted, as strings or numbers.
func PayloadFromMap(m map[string]any) Payload {
	var p Payload
	p.Type, _ = m["type"].(string)
	p.BookingID = domain.BookingIDFrom(m)
	return p
}

type rule struct {
	words  []string
	target func(p Payload) Target
}

// rules are checked in order; the first whose words appear in the type wins.
// Words are singular; plural forms in the type match them.
var rules = []rule{
	{words: []string{"message", "chat"}, target: func(p Payload) Target {
		if p.BookingID == "" {
			return Target{Screen: ScreenChats}
		}
		return withBooking(ScreenChat, p.BookingID)
	}},
	{words: []string{"review"}, target: screen(ScreenReviews)},
	{words: []string{"withdrawal"}, target: screen(ScreenWithdrawals)},
	{words: []string{"referral"}, target: screen(ScreenReferrals)},
	{words: []string{"tier"}, target: screen(ScreenTier)},
	{words: []string{"point", "earning"}, target: screen(ScreenEarnings)},
}

// Route picks the target for p. It has no side effects.
func Route(p Payload) Target {
	words := typeWords(p.Type)
	for _, r := range rules {
		if matches(words, r.words) {
			return r.target(p)
		}
	}
	if p.BookingID != "" {
		return withBooking(ScreenBookingDetails, p.BookingID)
	}
	return Target{Screen: ScreenNotifications}
}

// Open routes p and hands the result to navigate.
func Open(p Payload, navigate func(Target)) Target {
	t := Route(p)
	if navigate != nil {
		navigate(t)
	}
	return t
}

// typeWords splits "new_message", "new-message" or "NewReview" style types
// into lower-case words.
func typeWords(typ string) []string {
	var b strings.Builder
	for i, r := range typ {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	return strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })
}

func matches(words, wanted []string) bool {
	for _, w := range words {
		w = singular(w)
		for _, x := range wanted {
			if w == x {
				return true
			}
		}
	}
	return false
}

// singular drops a plural "s" ("messages", "reviews"); "ss" endings and
// short words are left alone.
func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return w[:len(w)-1]
	}
	return w
}

func screen(name string) func(Payload) Target {
	return func(Payload) Target { return Target{Screen: name} }
}

func withBooking(name, bookingID string) Target {
	return Target{Screen: name, Params: map[string]string{ParamBookingID: bookingID}}
}
