package ws

// Outbound operation names and transport control frames. Inbound booking
// events are named in the domain package.
const (
	JoinBooking  = "join-booking"
	LeaveBooking = "leave-booking"
	SendMessage  = "send-message"
	SetTyping    = "typing"
	MarkRead     = "mark-read"

	Ack   = "ack"
	Ping  = "ping"
	Pong  = "pong"
	Error = "error"
)
