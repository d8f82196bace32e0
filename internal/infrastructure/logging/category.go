package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General      Category = "General"
	Connection   Category = "Connection"
	Room         Category = "Room"
	Chat         Category = "Chat"
	Booking      Category = "Booking"
	Rest         Category = "Rest"
	Notification Category = "Notification"
)

const (
	// General
	Startup  SubCategory = "Startup"
	Shutdown SubCategory = "Shutdown"

	// Connection
	Dial       SubCategory = "Dial"
	Reconnect  SubCategory = "Reconnect"
	Dispatch   SubCategory = "Dispatch"
	Keepalive  SubCategory = "Keepalive"
	Credential SubCategory = "Credential"

	// Room
	Join  SubCategory = "Join"
	Leave SubCategory = "Leave"

	// Chat / Booking
	Send       SubCategory = "Send"
	Typing     SubCategory = "Typing"
	ReadState  SubCategory = "ReadState"
	StaleEvent SubCategory = "StaleEvent"
	Transition SubCategory = "Transition"

	ExternalService SubCategory = "ExternalService"
	Route           SubCategory = "Route"
)

const (
	AppName      ExtraKey = "AppName"
	BookingID    ExtraKey = "BookingId"
	ActiveID     ExtraKey = "ActiveBookingId"
	MessageID    ExtraKey = "MessageId"
	Event        ExtraKey = "Event"
	Attempt      ExtraKey = "Attempt"
	Delay        ExtraKey = "Delay"
	URL          ExtraKey = "Url"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	ErrorKind    ExtraKey = "ErrorKind"
	ErrorMessage ExtraKey = "ErrorMessage"
	Screen       ExtraKey = "Screen"
)
