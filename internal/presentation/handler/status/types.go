package status

import "github.com/hilthontt/bookingsync/internal/domain"

type statusResponse struct {
	State         string   `json:"state"`
	Connected     bool     `json:"connected"`
	ActiveBooking string   `json:"activeBooking,omitempty"`
	Rooms         []string `json:"rooms"`
	Unread        int      `json:"unread"`
	PeerTyping    bool     `json:"peerTyping"`

	Self     domain.Participant `json:"self"`
	PeerRole domain.Role        `json:"peerRole"`
}

type activateRequest struct {
	BookingID string `json:"bookingId"`
}

type snapshotResponse struct {
	BookingID string          `json:"bookingId"`
	Snapshot  domain.Snapshot `json:"snapshot"`
}
